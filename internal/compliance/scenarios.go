package compliance

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/soa-checker/backend/internal/soa"
	"github.com/xuri/excelize/v2"
	"gopkg.in/yaml.v3"
)

// ScenarioFormat identifies the encoding of a scenario file.
type ScenarioFormat string

const (
	ScenarioJSON ScenarioFormat = "json"
	ScenarioYAML ScenarioFormat = "yaml"
	ScenarioCSV  ScenarioFormat = "csv"
	ScenarioXLSX ScenarioFormat = "xlsx"
)

// FormatFromName picks the scenario format from a file name.
func FormatFromName(name string) (ScenarioFormat, error) {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".json":
		return ScenarioJSON, nil
	case ".yaml", ".yml":
		return ScenarioYAML, nil
	case ".csv":
		return ScenarioCSV, nil
	case ".xlsx":
		return ScenarioXLSX, nil
	default:
		return "", fmt.Errorf("unsupported scenario file %q", name)
	}
}

// ParseScenarios reads scenarios from r. JSON is an array of objects and YAML a sequence of
// mappings; CSV and XLSX use a header row of names. Empty cells are omitted and values are
// left raw so that a malformed scenario only fails itself.
func ParseScenarios(r io.Reader, format ScenarioFormat) ([]Scenario, error) {
	switch format {
	case ScenarioJSON:
		return parseJSONScenarios(r)
	case ScenarioYAML:
		return parseYAMLScenarios(r)
	case ScenarioCSV:
		return parseCSVScenarios(r)
	case ScenarioXLSX:
		return parseXLSXScenarios(r)
	default:
		return nil, fmt.Errorf("unsupported scenario format %q", format)
	}
}

func parseJSONScenarios(r io.Reader) ([]Scenario, error) {
	dec := json.NewDecoder(r)
	dec.UseNumber()
	var scenarios []Scenario
	if err := dec.Decode(&scenarios); err != nil {
		return nil, fmt.Errorf("decode json scenarios: %w", err)
	}
	return scenarios, nil
}

func parseYAMLScenarios(r io.Reader) ([]Scenario, error) {
	var scenarios []Scenario
	if err := yaml.NewDecoder(r).Decode(&scenarios); err != nil {
		if errors.Is(err, io.EOF) {
			return []Scenario{}, nil
		}
		return nil, fmt.Errorf("decode yaml scenarios: %w", err)
	}
	return scenarios, nil
}

func parseCSVScenarios(r io.Reader) ([]Scenario, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	rows, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read csv scenarios: %w", err)
	}
	return rowsToScenarios(rows)
}

func parseXLSXScenarios(r io.Reader) ([]Scenario, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("open xlsx scenarios: %w", err)
	}
	defer f.Close()

	sheet := f.GetSheetName(0)
	if sheet == "" {
		return nil, errors.New("xlsx file has no sheets")
	}
	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, fmt.Errorf("read sheet %s: %w", sheet, err)
	}
	return rowsToScenarios(rows)
}

// rowsToScenarios maps a header row plus data rows to scenarios, skipping blank rows.
func rowsToScenarios(rows [][]string) ([]Scenario, error) {
	if len(rows) == 0 {
		return []Scenario{}, nil
	}

	header := make([]string, len(rows[0]))
	seen := make(map[string]bool, len(rows[0]))
	for i, h := range rows[0] {
		h = strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))
		if h != "" && seen[h] {
			return nil, fmt.Errorf("column %q appears twice in header", h)
		}
		seen[h] = true
		header[i] = h
	}

	scenarios := make([]Scenario, 0, len(rows)-1)
	for _, row := range rows[1:] {
		sc := Scenario{}
		for i, cell := range row {
			cell = strings.TrimSpace(cell)
			if i >= len(header) || header[i] == "" || cell == "" {
				continue
			}
			sc[header[i]] = cell
		}
		if len(sc) == 0 {
			continue
		}
		scenarios = append(scenarios, sc)
	}
	return scenarios, nil
}

// WriteScenariosXLSX writes scenarios as a single sheet with a header row. Columns are the
// given names in order.
func WriteScenariosXLSX(w io.Writer, columns []string, scenarios []Scenario) error {
	f := excelize.NewFile()
	defer f.Close()

	sheet := f.GetSheetName(0)
	for col, name := range columns {
		if err := setCell(f, sheet, col+1, 1, name); err != nil {
			return err
		}
	}
	for i, sc := range scenarios {
		for col, name := range columns {
			v, ok := sc[name]
			if !ok {
				continue
			}
			if err := setCell(f, sheet, col+1, i+2, v); err != nil {
				return err
			}
		}
	}

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("write xlsx: %w", err)
	}
	return nil
}

// WriteScenarioTemplate writes an empty scenario workbook for d: a tmaxfrac column followed by
// one column per parameter, and one row per declared level with only tmaxfrac filled in.
func WriteScenarioTemplate(w io.Writer, d *soa.Device) error {
	columns := []string{TmaxfracKey}
	for _, p := range d.Parameters() {
		columns = append(columns, p.Name())
	}
	levels := d.Levels()
	rows := make([]Scenario, 0, len(levels))
	for _, level := range levels {
		rows = append(rows, Scenario{TmaxfracKey: level})
	}
	return WriteScenariosXLSX(w, columns, rows)
}

func setCell(f *excelize.File, sheet string, col, row int, value interface{}) error {
	cell, err := excelize.CoordinatesToCellName(col, row)
	if err != nil {
		return err
	}
	return f.SetCellValue(sheet, cell, value)
}
