package service

import (
	"context"
	"fmt"
	"sort"

	"github.com/shopspring/decimal"
	"github.com/studiodesk/ffetrack/internal/domain"
	"github.com/studiodesk/ffetrack/internal/model"
	"github.com/studiodesk/ffetrack/internal/repository"
	"github.com/studiodesk/ffetrack/internal/service/rollup"
)

const uncategorized = "Uncategorized"

// QuoteLine 报价单中的一行：一个被选中的规格
type QuoteLine struct {
	ItemID          uint            `json:"item_id"`
	Section         string          `json:"section"`
	Category        string          `json:"category"`
	Requirement     string          `json:"requirement"`
	OptionNumber    int             `json:"option_number"`
	Name            string          `json:"name"`
	Vendor          string          `json:"vendor"`
	ModelNumber     string          `json:"model_number"`
	Quantity        decimal.Decimal `json:"quantity"`
	UnitCost        decimal.Decimal `json:"unit_cost"`
	MarkupPercent   decimal.Decimal `json:"markup_percent"`
	ComponentsCount int             `json:"components_count"`
	Total           rollup.Total    `json:"total"`

	sectionIndex int
}

// CategoryTotal 单个类别下按币种的小计
type CategoryTotal struct {
	Category  string         `json:"category"`
	Subtotals []rollup.Total `json:"subtotals"`
}

// InstanceQuote 实例汇总，币种之间从不相加
type InstanceQuote struct {
	InstanceID uint            `json:"instance_id"`
	Lines      []QuoteLine     `json:"lines"`
	Subtotals  []rollup.Total  `json:"subtotals"`
	ByCategory []CategoryTotal `json:"by_category"`
}

// PricingService 规格条目的价格汇总与实例报价
type PricingService interface {
	ComputeTotal(ctx context.Context, actor Actor, specItemID uint) (*rollup.Total, error)
	InstanceQuote(ctx context.Context, actor Actor, instanceID uint) (*InstanceQuote, error)
	ExportQuote(ctx context.Context, actor Actor, instanceID uint) ([]byte, error)
}

type pricingService struct {
	store repository.Store
}

func NewPricingService(store repository.Store) PricingService {
	return &pricingService{store: store}
}

// ComputeTotal 纯计算，不写入
func (s *pricingService) ComputeTotal(ctx context.Context, actor Actor, specItemID uint) (*rollup.Total, error) {
	repos := s.store.Repos(ctx)
	item, err := repos.Items.Get(specItemID)
	if err != nil {
		return nil, lookupError(err, domain.EntityItem, specItemID)
	}
	if _, err := ownedInstance(repos, actor, item.InstanceID); err != nil {
		return nil, err
	}
	if !item.IsSpecItem {
		return nil, domain.InvalidArgument(domain.EntityItem, specItemID, "pricing applies to specification items")
	}
	total, err := rollup.Compute(rollupInput(item))
	if err != nil {
		return nil, pricingError(err, specItemID)
	}
	return &total, nil
}

// InstanceQuote 汇总实例内所有被选中的规格，按币种分桶，另按类别 × 币种分组
func (s *pricingService) InstanceQuote(ctx context.Context, actor Actor, instanceID uint) (*InstanceQuote, error) {
	repos := s.store.Repos(ctx)
	if _, err := ownedInstance(repos, actor, instanceID); err != nil {
		return nil, err
	}
	sections, err := repos.Sections.GetByInstanceID(instanceID)
	if err != nil {
		return nil, fmt.Errorf("failed to list sections: %w", err)
	}
	items, err := repos.Items.ListByInstance(instanceID)
	if err != nil {
		return nil, fmt.Errorf("failed to list items: %w", err)
	}
	specs, err := repos.Items.ListChosenSpecs(instanceID)
	if err != nil {
		return nil, fmt.Errorf("failed to list chosen specifications: %w", err)
	}

	sectionNames := make(map[uint]string, len(sections))
	sectionOrder := make(map[uint]int, len(sections))
	for i, section := range sections {
		sectionNames[section.ID] = section.Name
		sectionOrder[section.ID] = i
	}
	requirements := make(map[uint]model.InstanceItem)
	for _, item := range items {
		if item.IsRequirement() {
			requirements[item.ID] = item
		}
	}

	quote := &InstanceQuote{InstanceID: instanceID, Lines: []QuoteLine{}}
	totals := rollup.NewBuckets()
	byCategory := make(map[string]*rollup.Buckets)
	for i := range specs {
		spec := &specs[i]
		total, err := rollup.Compute(rollupInput(spec))
		if err != nil {
			return nil, pricingError(err, spec.ID)
		}

		line := QuoteLine{
			ItemID:          spec.ID,
			Section:         sectionNames[spec.SectionID],
			Category:        spec.Category,
			OptionNumber:    spec.OptionNumber,
			Name:            spec.Name,
			Vendor:          spec.Vendor,
			ModelNumber:     spec.ModelNumber,
			Quantity:        spec.Quantity,
			UnitCost:        spec.UnitCost,
			MarkupPercent:   spec.MarkupPercent,
			ComponentsCount: len(spec.Components),
			Total:           total,
			sectionIndex:    sectionOrder[spec.SectionID],
		}
		if spec.RequirementID != nil {
			if req, ok := requirements[*spec.RequirementID]; ok {
				line.Requirement = req.Name
				if line.Category == "" {
					line.Category = req.Category
				}
			}
		}
		if line.Category == "" {
			line.Category = uncategorized
		}
		quote.Lines = append(quote.Lines, line)

		totals.Add(total)
		bucket, ok := byCategory[line.Category]
		if !ok {
			bucket = rollup.NewBuckets()
			byCategory[line.Category] = bucket
		}
		bucket.Add(total)
	}

	sort.SliceStable(quote.Lines, func(i, j int) bool { return quote.Lines[i].sectionIndex < quote.Lines[j].sectionIndex })
	quote.Subtotals = totals.Subtotals()
	quote.ByCategory = make([]CategoryTotal, 0, len(byCategory))
	for category, bucket := range byCategory {
		quote.ByCategory = append(quote.ByCategory, CategoryTotal{Category: category, Subtotals: bucket.Subtotals()})
	}
	sort.Slice(quote.ByCategory, func(i, j int) bool { return quote.ByCategory[i].Category < quote.ByCategory[j].Category })
	return quote, nil
}
