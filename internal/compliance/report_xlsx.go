package compliance

import (
	"fmt"
	"io"
	"strings"

	"github.com/xuri/excelize/v2"
)

const (
	summarySheet = "Summary"
	resultsSheet = "Results"
)

// WriteReportXLSX writes a report as a workbook with a summary sheet and one row per scenario.
func WriteReportXLSX(w io.Writer, report *Report) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName(f.GetSheetName(0), summarySheet); err != nil {
		return fmt.Errorf("rename sheet: %w", err)
	}
	if _, err := f.NewSheet(resultsSheet); err != nil {
		return fmt.Errorf("create sheet: %w", err)
	}

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#E6F3FF"}, Pattern: 1},
	})
	if err != nil {
		return fmt.Errorf("create header style: %w", err)
	}

	summary := [][]interface{}{
		{"Report", report.ID},
		{"Device", report.Device},
		{"Created", report.CreatedAt.Format("2006-01-02 15:04:05")},
		{"Total", report.Summary.Total},
		{"Passed", report.Summary.Passed},
		{"Failed", report.Summary.Failed},
		{"Errored", report.Summary.Errored},
	}
	for i, row := range summary {
		for j, v := range row {
			if err := setCell(f, summarySheet, j+1, i+1, v); err != nil {
				return err
			}
		}
	}

	names := testValueColumns(report)
	header := append([]string{"Scenario", "tmaxfrac", "Compliant"}, names...)
	header = append(header, "Violations", "Error")
	for col, h := range header {
		if err := setCell(f, resultsSheet, col+1, 1, h); err != nil {
			return err
		}
	}
	last, err := excelize.CoordinatesToCellName(len(header), 1)
	if err != nil {
		return err
	}
	if err := f.SetCellStyle(resultsSheet, "A1", last, headerStyle); err != nil {
		return fmt.Errorf("set header style: %w", err)
	}

	for i, r := range report.Results {
		row := i + 2
		cells := []interface{}{r.Index + 1, nil, r.Compliant}
		if r.Tmaxfrac != nil {
			cells[1] = *r.Tmaxfrac
		}
		for _, name := range names {
			if v, ok := r.TestValues[name]; ok {
				cells = append(cells, v)
			} else {
				cells = append(cells, nil)
			}
		}
		cells = append(cells, strings.Join(r.Violations, "\n"), r.Error)

		for col, v := range cells {
			if v == nil || v == "" {
				continue
			}
			if err := setCell(f, resultsSheet, col+1, row, v); err != nil {
				return err
			}
		}
	}

	if err := f.SetPanes(resultsSheet, &excelize.Panes{
		Freeze:      true,
		YSplit:      1,
		TopLeftCell: "A2",
		ActivePane:  "bottomLeft",
	}); err != nil {
		return fmt.Errorf("freeze panes: %w", err)
	}

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("write xlsx: %w", err)
	}
	return nil
}

// testValueColumns lists every test value name used in the report, sorted.
func testValueColumns(report *Report) []string {
	seen := map[string]struct{}{}
	for _, r := range report.Results {
		for name := range r.TestValues {
			seen[name] = struct{}{}
		}
	}
	return sortedNames(seen)
}
