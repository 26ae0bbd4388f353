package service

import (
	"context"
	"fmt"

	"github.com/xuri/excelize/v2"
)

const (
	quoteSheet    = "Quote"
	categorySheet = "By Category"
)

// QuoteHeader 报价单明细表头
var QuoteHeader = []string{
	"Section",
	"Category",
	"Requirement",
	"Option",
	"Product",
	"Vendor",
	"Model",
	"Qty",
	"Unit Cost",
	"Markup %",
	"Unit Total",
	"Components Total",
	"Grand Total",
	"Currency",
}

var categoryHeader = []string{"Category", "Currency", "Unit Total", "Components Total", "Grand Total"}

// 金额列（从 1 开始），单元格写数值并套用千分位两位小数格式
var (
	quoteMoneyColumns    = []int{9, 11, 12, 13}
	categoryMoneyColumns = []int{3, 4, 5}
)

// excel 内置数字格式 #,##0.00
const moneyNumFmt = 4

// ExportQuote 导出实例报价单（XLSX）；每个币种单独一行小计
func (s *pricingService) ExportQuote(ctx context.Context, actor Actor, instanceID uint) ([]byte, error) {
	quote, err := s.InstanceQuote(ctx, actor, instanceID)
	if err != nil {
		return nil, err
	}
	return generateQuoteExcel(quote)
}

func generateQuoteExcel(quote *InstanceQuote) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	index, err := f.NewSheet(quoteSheet)
	if err != nil {
		return nil, fmt.Errorf("failed to create sheet: %w", err)
	}
	if _, err := f.NewSheet(categorySheet); err != nil {
		return nil, fmt.Errorf("failed to create sheet: %w", err)
	}
	// 删除默认的 Sheet1
	f.DeleteSheet("Sheet1")
	f.SetActiveSheet(index)

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#E6F3FF"}, Pattern: 1},
		Border: []excelize.Border{
			{Type: "left", Color: "000000", Style: 1},
			{Type: "top", Color: "000000", Style: 1},
			{Type: "bottom", Color: "000000", Style: 1},
			{Type: "right", Color: "000000", Style: 1},
		},
		Alignment: &excelize.Alignment{Horizontal: "center", Vertical: "center"},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create header style: %w", err)
	}
	totalStyle, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return nil, fmt.Errorf("failed to create total style: %w", err)
	}
	moneyStyle, err := f.NewStyle(&excelize.Style{NumFmt: moneyNumFmt})
	if err != nil {
		return nil, fmt.Errorf("failed to create money style: %w", err)
	}
	totalMoneyStyle, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}, NumFmt: moneyNumFmt})
	if err != nil {
		return nil, fmt.Errorf("failed to create total style: %w", err)
	}

	if err := writeHeader(f, quoteSheet, QuoteHeader, headerStyle); err != nil {
		return nil, err
	}
	row := 2
	for _, line := range quote.Lines {
		values := []interface{}{
			line.Section,
			line.Category,
			line.Requirement,
			line.OptionNumber,
			line.Name,
			line.Vendor,
			line.ModelNumber,
			line.Quantity.InexactFloat64(),
			line.UnitCost.InexactFloat64(),
			line.MarkupPercent.InexactFloat64(),
			line.Total.UnitTotal.InexactFloat64(),
			line.Total.ComponentsTotal.InexactFloat64(),
			line.Total.GrandTotal.InexactFloat64(),
			line.Total.Currency,
		}
		if err := setRow(f, quoteSheet, row, values); err != nil {
			return nil, err
		}
		if err := styleCells(f, quoteSheet, row, quoteMoneyColumns, moneyStyle); err != nil {
			return nil, err
		}
		row++
	}

	// 币种小计
	row++
	for _, subtotal := range quote.Subtotals {
		values := make([]interface{}, len(QuoteHeader))
		values[0] = "Subtotal"
		values[10] = subtotal.UnitTotal.InexactFloat64()
		values[11] = subtotal.ComponentsTotal.InexactFloat64()
		values[12] = subtotal.GrandTotal.InexactFloat64()
		values[13] = subtotal.Currency
		if err := setRow(f, quoteSheet, row, values); err != nil {
			return nil, err
		}
		if err := styleRow(f, quoteSheet, row, len(QuoteHeader), totalStyle); err != nil {
			return nil, err
		}
		if err := styleCells(f, quoteSheet, row, quoteMoneyColumns[1:], totalMoneyStyle); err != nil {
			return nil, err
		}
		row++
	}

	if err := writeHeader(f, categorySheet, categoryHeader, headerStyle); err != nil {
		return nil, err
	}
	row = 2
	for _, category := range quote.ByCategory {
		for _, subtotal := range category.Subtotals {
			values := []interface{}{
				category.Category,
				subtotal.Currency,
				subtotal.UnitTotal.InexactFloat64(),
				subtotal.ComponentsTotal.InexactFloat64(),
				subtotal.GrandTotal.InexactFloat64(),
			}
			if err := setRow(f, categorySheet, row, values); err != nil {
				return nil, err
			}
			if err := styleCells(f, categorySheet, row, categoryMoneyColumns, moneyStyle); err != nil {
				return nil, err
			}
			row++
		}
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("failed to write workbook: %w", err)
	}
	return buf.Bytes(), nil
}

func writeHeader(f *excelize.File, sheet string, headers []string, style int) error {
	values := make([]interface{}, len(headers))
	for i, h := range headers {
		values[i] = h
	}
	if err := setRow(f, sheet, 1, values); err != nil {
		return err
	}
	if err := styleRow(f, sheet, 1, len(headers), style); err != nil {
		return err
	}
	last, err := excelize.ColumnNumberToName(len(headers))
	if err != nil {
		return fmt.Errorf("failed to convert column number: %w", err)
	}
	if err := f.SetColWidth(sheet, "A", last, 18); err != nil {
		return fmt.Errorf("failed to set column width: %w", err)
	}
	return nil
}

func setRow(f *excelize.File, sheet string, row int, values []interface{}) error {
	cell, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return fmt.Errorf("failed to convert coordinates: %w", err)
	}
	if err := f.SetSheetRow(sheet, cell, &values); err != nil {
		return fmt.Errorf("failed to write row %d: %w", row, err)
	}
	return nil
}

func styleRow(f *excelize.File, sheet string, row, cols, style int) error {
	start, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return fmt.Errorf("failed to convert coordinates: %w", err)
	}
	end, err := excelize.CoordinatesToCellName(cols, row)
	if err != nil {
		return fmt.Errorf("failed to convert coordinates: %w", err)
	}
	if err := f.SetCellStyle(sheet, start, end, style); err != nil {
		return fmt.Errorf("failed to set style: %w", err)
	}
	return nil
}

func styleCells(f *excelize.File, sheet string, row int, cols []int, style int) error {
	for _, col := range cols {
		cell, err := excelize.CoordinatesToCellName(col, row)
		if err != nil {
			return fmt.Errorf("failed to convert coordinates: %w", err)
		}
		if err := f.SetCellStyle(sheet, cell, cell, style); err != nil {
			return fmt.Errorf("failed to set style: %w", err)
		}
	}
	return nil
}
