package rollup

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestComputeScenario(t *testing.T) {
	total, err := Compute(Input{
		UnitCost:      d("100"),
		Quantity:      d("2"),
		MarkupPercent: d("10"),
		Currency:      "USD",
		Components:    []Component{{UnitPrice: d("20"), Quantity: d("3")}},
	})
	require.NoError(t, err)
	assert.True(t, total.UnitTotal.Equal(d("200")), "unitTotal=%s", total.UnitTotal)
	assert.True(t, total.ComponentsTotal.Equal(d("66")), "componentsTotal=%s", total.ComponentsTotal)
	assert.True(t, total.GrandTotal.Equal(d("266")), "grandTotal=%s", total.GrandTotal)
	assert.Equal(t, "USD", total.Currency)
}

func TestComputeIsDeterministic(t *testing.T) {
	in := Input{
		UnitCost:      d("12.35"),
		Quantity:      d("3"),
		MarkupPercent: d("7.5"),
		Currency:      "EUR",
		Components: []Component{
			{UnitPrice: d("4.10"), Quantity: d("2")},
			{UnitPrice: d("0.99"), Quantity: d("11"), Currency: "EUR"},
		},
	}
	first, err := Compute(in)
	require.NoError(t, err)
	second, err := Compute(in)
	require.NoError(t, err)
	assert.True(t, first.GrandTotal.Equal(second.GrandTotal))
	assert.True(t, first.ComponentsTotal.Equal(second.ComponentsTotal))
}

func TestMarkupTwentyPercent(t *testing.T) {
	in := Input{
		UnitCost: d("50"),
		Quantity: d("1"),
		Currency: "USD",
		Components: []Component{
			{UnitPrice: d("13.33"), Quantity: d("7")},
			{UnitPrice: d("2.5"), Quantity: d("4")},
		},
	}
	base, err := Compute(in)
	require.NoError(t, err)

	in.MarkupPercent = d("20")
	marked, err := Compute(in)
	require.NoError(t, err)

	assert.True(t, marked.ComponentsTotal.Equal(base.ComponentsTotal.Mul(d("1.2"))))
	assert.True(t, marked.UnitTotal.Equal(base.UnitTotal), "加价不作用于条目单价")
}

func TestComputeRejectsForeignComponentCurrency(t *testing.T) {
	_, err := Compute(Input{
		UnitCost:   d("1"),
		Quantity:   d("1"),
		Currency:   "USD",
		Components: []Component{{UnitPrice: d("1"), Quantity: d("1"), Currency: "GBP"}},
	})
	var mismatch *MismatchError
	require.True(t, errors.As(err, &mismatch))
	assert.Equal(t, "USD", mismatch.Want)
	assert.Equal(t, "GBP", mismatch.Got)
}

func TestBucketsNeverBlendCurrencies(t *testing.T) {
	b := NewBuckets()
	b.Add(Total{UnitTotal: d("10"), ComponentsTotal: d("1"), GrandTotal: d("11"), Currency: "USD"})
	b.Add(Total{UnitTotal: d("5"), ComponentsTotal: d("0"), GrandTotal: d("5"), Currency: "EUR"})
	b.Add(Total{UnitTotal: d("2"), ComponentsTotal: d("2"), GrandTotal: d("4"), Currency: "USD"})

	subtotals := b.Subtotals()
	require.Len(t, subtotals, 2)
	assert.Equal(t, "EUR", subtotals[0].Currency)
	assert.True(t, subtotals[0].GrandTotal.Equal(d("5")))
	assert.Equal(t, "USD", subtotals[1].Currency)
	assert.True(t, subtotals[1].GrandTotal.Equal(d("15")))

	_, err := subtotals[0].Add(subtotals[1])
	assert.Error(t, err)
}
