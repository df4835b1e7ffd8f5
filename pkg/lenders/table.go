package lenders

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
)

// LoadIssue describes a criteria row that was skipped.
type LoadIssue struct {
	Row    int    `json:"row"`
	Lender string `json:"lender,omitempty"`
	Reason string `json:"reason"`
}

// LoadTable reads a lender criteria table from a CSV file. A missing file
// yields an empty table.
func LoadTable(path string) ([]Criteria, []LoadIssue, error) {
	if path == "" {
		return []Criteria{}, nil, nil
	}
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return []Criteria{}, nil, nil
	}
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open lender table: %w", err)
	}
	defer f.Close()

	return ReadTable(f)
}

// ReadTable parses a lender criteria table. Empty cells mean no bound, an
// empty allows_stacking cell allows stacking and list cells are separated by
// ";". Rows with malformed values are skipped and reported.
func ReadTable(r io.Reader) ([]Criteria, []LoadIssue, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return []Criteria{}, nil, nil
	}
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read lender table header: %w", err)
	}

	columns := make(map[string]int, len(header))
	for i, h := range header {
		columns[strings.ToLower(strings.TrimSpace(h))] = i
	}
	if _, ok := columns["lender"]; !ok {
		return nil, nil, fmt.Errorf("lender table has no lender column")
	}

	table := []Criteria{}
	var issues []LoadIssue
	row := 1
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		row++
		if err != nil {
			issues = append(issues, LoadIssue{Row: row, Reason: err.Error()})
			continue
		}

		p := rowParser{columns: columns, record: record}
		c := Criteria{
			Lender:                  p.textCell("lender"),
			MinMonthlyRevenue:       p.floatCell("min_monthly_revenue"),
			MaxMonthlyRevenue:       p.floatCell("max_monthly_revenue"),
			MinFICO:                 p.intCell("min_fico"),
			MaxNSF:                  p.intCell("max_nsf"),
			MaxNegativeDays:         p.intCell("max_negative_days"),
			MaxPositions:            p.intCell("max_positions"),
			AllowsStacking:          p.boolCell("allows_stacking", true),
			MinTimeInBusinessMonths: p.intCell("min_time_in_business_months"),
			MinOwnershipPct:         p.floatCell("min_ownership_pct"),
			MinADB:                  p.floatCell("min_adb"),
			MaxHoldbackPct:          p.floatCell("max_holdback_pct"),
			MinAdvance:              p.floatCell("min_advance"),
			MaxAdvance:              p.floatCell("max_advance"),
			MinTermMonths:           p.floatCell("min_term_months"),
			MaxTermMonths:           p.floatCell("max_term_months"),
			ExcludedStates:          p.listCell("excluded_states"),
			ExcludedIndustries:      p.listCell("excluded_industries"),
		}

		if c.Lender == "" {
			p.errs = append(p.errs, "missing lender name")
		}
		if len(p.errs) > 0 {
			issues = append(issues, LoadIssue{Row: row, Lender: c.Lender, Reason: strings.Join(p.errs, "; ")})
			continue
		}
		table = append(table, c)
	}

	return table, issues, nil
}

// rowParser reads typed cells from one CSV record and collects parse errors.
type rowParser struct {
	columns map[string]int
	record  []string
	errs    []string
}

func (p *rowParser) textCell(name string) string {
	i, ok := p.columns[name]
	if !ok || i >= len(p.record) {
		return ""
	}
	return strings.TrimSpace(p.record[i])
}

func (p *rowParser) floatCell(name string) *float64 {
	s := strings.NewReplacer("$", "", ",", "", "%", "").Replace(p.textCell(name))
	if s == "" {
		return nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		p.errs = append(p.errs, fmt.Sprintf("invalid %s %q", name, p.textCell(name)))
		return nil
	}
	return &v
}

func (p *rowParser) intCell(name string) *int {
	s := p.textCell(name)
	if s == "" {
		return nil
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		p.errs = append(p.errs, fmt.Sprintf("invalid %s %q", name, s))
		return nil
	}
	return &v
}

// boolCell parses a yes/no cell. An empty cell returns def.
func (p *rowParser) boolCell(name string, def bool) bool {
	switch strings.ToLower(p.textCell(name)) {
	case "":
		return def
	case "false", "no", "n", "0":
		return false
	case "true", "yes", "y", "1":
		return true
	}
	p.errs = append(p.errs, fmt.Sprintf("invalid %s %q", name, p.textCell(name)))
	return false
}

func (p *rowParser) listCell(name string) []string {
	var out []string
	for _, v := range strings.Split(p.textCell(name), ";") {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}
