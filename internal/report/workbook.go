package report

import (
	"fmt"
	"io"
	"math"

	"github.com/xuri/excelize/v2"
)

const (
	summarySheet = "Summary"
	unitsSheet   = "Units"
)

// WriteWorkbook writes rep as an xlsx workbook with a Summary sheet (one row
// per student, one column per unit) and a Units sheet of class averages.
func WriteWorkbook(w io.Writer, rep *ClassReport) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", summarySheet); err != nil {
		return fmt.Errorf("rename sheet: %w", err)
	}
	if _, err := f.NewSheet(unitsSheet); err != nil {
		return fmt.Errorf("create units sheet: %w", err)
	}

	header := []any{"Student ID", "Name", "Completed units", "Total units", "Average completion"}
	for _, u := range rep.Units {
		header = append(header, u.ID)
	}
	if err := f.SetSheetRow(summarySheet, "A1", &header); err != nil {
		return fmt.Errorf("write header: %w", err)
	}

	for i, row := range rep.Students {
		values := []any{
			row.ID,
			row.Name,
			row.Summary.CompletedUnits,
			row.Summary.TotalUnits,
			round2(row.Summary.AverageCompletion),
		}
		for _, c := range row.Units {
			values = append(values, round2(c))
		}
		if err := setRow(f, summarySheet, i+2, values); err != nil {
			return err
		}
	}

	if err := f.SetSheetRow(unitsSheet, "A1", &[]any{"Unit ID", "Title", "Class average"}); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	for i, u := range rep.Units {
		if err := setRow(f, unitsSheet, i+2, []any{u.ID, u.Title, round2(u.Average)}); err != nil {
			return err
		}
	}
	footer := len(rep.Units) + 3
	if err := setRow(f, unitsSheet, footer, []any{"Class", "", round2(rep.AverageCompletion)}); err != nil {
		return err
	}

	if err := f.SetColWidth(summarySheet, "A", "B", 20); err != nil {
		return fmt.Errorf("set column width: %w", err)
	}
	f.SetActiveSheet(0)

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}

func setRow(f *excelize.File, sheet string, row int, values []any) error {
	cell, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return fmt.Errorf("cell name: %w", err)
	}
	if err := f.SetSheetRow(sheet, cell, &values); err != nil {
		return fmt.Errorf("write %s row %d: %w", sheet, row, err)
	}
	return nil
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
