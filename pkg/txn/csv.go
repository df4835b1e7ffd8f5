package txn

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// columnAliases maps normalized CSV header names to record fields.
var columnAliases = map[string]string{
	"date":             "date",
	"posting date":     "date",
	"transaction date": "date",
	"description":      "description",
	"memo":             "description",
	"details":          "description",
	"amount":           "amount",
	"debit":            "debit",
	"withdrawal":       "debit",
	"withdrawals":      "debit",
	"credit":           "credit",
	"deposit":          "credit",
	"deposits":         "credit",
	"balance":          "balance",
	"running balance":  "balance",
	"running_balance":  "balance",
}

// LoadCSV reads a parsed statement CSV file.
// The file name is recorded as the transaction source.
func LoadCSV(path string) ([]Transaction, []ParseIssue, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open statement file: %w", err)
	}
	defer f.Close()

	return ReadCSV(f, filepath.Base(path))
}

// ReadCSV reads statement rows from r. The first row must be a header.
// Either an amount column or a debit/credit column pair is required.
func ReadCSV(r io.Reader, source string) ([]Transaction, []ParseIssue, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	rows, err := reader.ReadAll()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read CSV: %w", err)
	}
	if len(rows) == 0 {
		return nil, nil, nil
	}

	columns := make(map[string]int)
	for i, name := range rows[0] {
		key := strings.ToLower(strings.TrimSpace(name))
		if field, ok := columnAliases[key]; ok {
			if _, seen := columns[field]; !seen {
				columns[field] = i
			}
		}
	}

	if _, ok := columns["date"]; !ok {
		return nil, nil, fmt.Errorf("statement header has no date column")
	}
	_, hasAmount := columns["amount"]
	_, hasDebit := columns["debit"]
	_, hasCredit := columns["credit"]
	if !hasAmount && !hasDebit && !hasCredit {
		return nil, nil, fmt.Errorf("statement header has no amount or debit/credit columns")
	}

	records := make([]Record, 0, len(rows)-1)
	for _, row := range rows[1:] {
		rec := Record{
			Date:        cell(row, columns, "date"),
			Description: cell(row, columns, "description"),
			Balance:     cell(row, columns, "balance"),
		}
		if hasAmount {
			rec.Amount = cell(row, columns, "amount")
		} else {
			rec.Amount = debitCreditAmount(cell(row, columns, "debit"), cell(row, columns, "credit"))
		}
		records = append(records, rec)
	}

	transactions, issues := ParseRecords(records, source)
	return transactions, issues, nil
}

// cell returns the trimmed value of a mapped column, or "" when absent.
func cell(row []string, columns map[string]int, field string) string {
	i, ok := columns[field]
	if !ok || i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}

// debitCreditAmount folds split debit/credit columns into one signed amount string.
func debitCreditAmount(debit, credit string) string {
	if credit != "" {
		return credit
	}
	if debit == "" {
		return ""
	}
	debit = strings.TrimPrefix(debit, "-")
	return "-" + debit
}
