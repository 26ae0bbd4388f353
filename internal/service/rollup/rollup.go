// Package rollup 规格条目价格汇总的纯计算，不访问存储
package rollup

import (
	"fmt"
	"sort"

	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// Component 参与汇总的部件
type Component struct {
	UnitPrice decimal.Decimal
	Quantity  decimal.Decimal
	Currency  string // 为空沿用条目币种
}

// Input 单个规格条目的定价输入
type Input struct {
	UnitCost      decimal.Decimal
	Quantity      decimal.Decimal
	MarkupPercent decimal.Decimal
	Currency      string
	Components    []Component
}

// Total 汇总结果
type Total struct {
	UnitTotal       decimal.Decimal `json:"unit_total"`
	ComponentsTotal decimal.Decimal `json:"components_total"`
	GrandTotal      decimal.Decimal `json:"grand_total"`
	Currency        string          `json:"currency"`
}

// MismatchError 币种不一致
type MismatchError struct {
	Want string
	Got  string
}

func (e *MismatchError) Error() string {
	return fmt.Sprintf("currency mismatch: %s != %s", e.Want, e.Got)
}

// Compute 加价只作用于部件，不作用于条目本身的单价
//
//	unitTotal       = unitCost × quantity
//	componentsTotal = Σ unitPrice × quantity × (1 + markup/100)
//	grandTotal      = unitTotal + componentsTotal
func Compute(in Input) (Total, error) {
	multiplier := decimal.NewFromInt(1).Add(in.MarkupPercent.Div(hundred))

	componentsTotal := decimal.Zero
	for _, c := range in.Components {
		if c.Currency != "" && c.Currency != in.Currency {
			return Total{}, &MismatchError{Want: in.Currency, Got: c.Currency}
		}
		componentsTotal = componentsTotal.Add(c.UnitPrice.Mul(c.Quantity).Mul(multiplier))
	}

	unitTotal := in.UnitCost.Mul(in.Quantity)
	return Total{
		UnitTotal:       unitTotal,
		ComponentsTotal: componentsTotal,
		GrandTotal:      unitTotal.Add(componentsTotal),
		Currency:        in.Currency,
	}, nil
}

// Add 同币种相加，币种不同返回 MismatchError
func (t Total) Add(other Total) (Total, error) {
	if t.Currency != other.Currency {
		return Total{}, &MismatchError{Want: t.Currency, Got: other.Currency}
	}
	return Total{
		UnitTotal:       t.UnitTotal.Add(other.UnitTotal),
		ComponentsTotal: t.ComponentsTotal.Add(other.ComponentsTotal),
		GrandTotal:      t.GrandTotal.Add(other.GrandTotal),
		Currency:        t.Currency,
	}, nil
}

// Buckets 按币种分桶累加，从不混合不同币种
type Buckets struct {
	totals map[string]Total
}

func NewBuckets() *Buckets {
	return &Buckets{totals: make(map[string]Total)}
}

func (b *Buckets) Add(t Total) {
	current, ok := b.totals[t.Currency]
	if !ok {
		b.totals[t.Currency] = t
		return
	}
	// 同一个桶内币种必然一致
	sum, _ := current.Add(t)
	b.totals[t.Currency] = sum
}

// Subtotals 按币种代码排序输出
func (b *Buckets) Subtotals() []Total {
	out := make([]Total, 0, len(b.totals))
	for _, t := range b.totals {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Currency < out[j].Currency })
	return out
}

func (b *Buckets) Len() int {
	return len(b.totals)
}
