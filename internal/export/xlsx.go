package export

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"
)

// XLSXWriter implements SheetWriter by writing a fresh workbook to a file path.
type XLSXWriter struct {
	path string
}

// NewXLSXWriter creates a writer that saves to path.
func NewXLSXWriter(path string) *XLSXWriter {
	return &XLSXWriter{path: path}
}

// Write replaces the workbook at path with one sheet per table.
func (w *XLSXWriter) Write(_ context.Context, tables []Table) error {
	f := excelize.NewFile()
	defer f.Close()

	numFmt := "#,##0.00####"
	numStyle, err := f.NewStyle(&excelize.Style{CustomNumFmt: &numFmt})
	if err != nil {
		return fmt.Errorf("creating number style: %w", err)
	}
	headerStyle, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return fmt.Errorf("creating header style: %w", err)
	}

	for i, t := range tables {
		if i == 0 {
			if err := f.SetSheetName("Sheet1", t.Name); err != nil {
				return fmt.Errorf("renaming first sheet: %w", err)
			}
		} else if _, err := f.NewSheet(t.Name); err != nil {
			return fmt.Errorf("creating sheet %s: %w", t.Name, err)
		}

		if err := f.SetSheetRow(t.Name, "A1", ptr(stringsToCells(t.Header))); err != nil {
			return fmt.Errorf("writing %s header: %w", t.Name, err)
		}
		if len(t.Header) > 0 {
			last, _ := excelize.CoordinatesToCellName(len(t.Header), 1)
			if err := f.SetCellStyle(t.Name, "A1", last, headerStyle); err != nil {
				return fmt.Errorf("styling %s header: %w", t.Name, err)
			}
		}

		for r, row := range t.Rows {
			for c, v := range row {
				cell, err := excelize.CoordinatesToCellName(c+1, r+2)
				if err != nil {
					return fmt.Errorf("cell name: %w", err)
				}
				if err := w.setCell(f, t.Name, cell, v, numStyle); err != nil {
					return fmt.Errorf("writing %s!%s: %w", t.Name, cell, err)
				}
			}
		}
	}

	if err := f.SaveAs(w.path); err != nil {
		return fmt.Errorf("saving workbook %s: %w", w.path, err)
	}
	return nil
}

func (w *XLSXWriter) setCell(f *excelize.File, sheet, cell string, v any, numStyle int) error {
	switch c := v.(type) {
	case decimal.Decimal:
		// Spreadsheet numbers are IEEE doubles; the exact value stays in the JSON snapshot.
		fl, _ := c.Float64()
		if err := f.SetCellFloat(sheet, cell, fl, -1, 64); err != nil {
			return err
		}
		return f.SetCellStyle(sheet, cell, cell, numStyle)
	case nil:
		return nil
	default:
		return f.SetCellValue(sheet, cell, c)
	}
}

func ptr[T any](v T) *T { return &v }
