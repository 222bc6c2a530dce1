// Package export writes a filing's structured tables to disk.
package export

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/xuri/excelize/v2"

	"github.com/dgallion1/filingrag/internal/doctree"
)

const defaultSheet = "Sheet1"

// SheetName names the sheet holding the n-th table (1-based).
func SheetName(n int, t doctree.Table) string {
	name := fmt.Sprintf("%d_%s", n, t.Type)
	if len(name) > excelize.MaxSheetNameLength {
		name = name[:excelize.MaxSheetNameLength]
	}
	return name
}

// Workbook writes one sheet per table: the header row, then body rows in
// header order. Rows without a cell per header are written as-is.
func Workbook(path string, tables []doctree.Table) error {
	if len(tables) == 0 {
		return nil
	}
	f := excelize.NewFile()
	defer f.Close()

	for i, t := range tables {
		sheet := SheetName(i+1, t)
		if _, err := f.NewSheet(sheet); err != nil {
			return fmt.Errorf("creating sheet %s: %w", sheet, err)
		}
		rowNum := 1
		if len(t.Headers) > 0 {
			if err := setRow(f, sheet, rowNum, t.Headers); err != nil {
				return err
			}
			rowNum++
		}
		for _, r := range t.Rows {
			if err := setRow(f, sheet, rowNum, r.Values(t.Headers)); err != nil {
				return err
			}
			rowNum++
		}
	}
	if err := f.DeleteSheet(defaultSheet); err != nil {
		return fmt.Errorf("deleting default sheet: %w", err)
	}
	f.SetActiveSheet(0)

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating export directory: %w", err)
	}
	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("saving workbook: %w", err)
	}
	return nil
}

// JSON writes the table records as an indented JSON array.
func JSON(path string, tables []doctree.Table) error {
	if tables == nil {
		tables = []doctree.Table{}
	}
	data, err := json.MarshalIndent(tables, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding tables: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating export directory: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}

func setRow(f *excelize.File, sheet string, row int, values []string) error {
	cell, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return err
	}
	vals := make([]any, len(values))
	for i, v := range values {
		vals[i] = v
	}
	if err := f.SetSheetRow(sheet, cell, &vals); err != nil {
		return fmt.Errorf("writing %s!%s: %w", sheet, cell, err)
	}
	return nil
}
