package market

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// ImportRow is one parsed row of an exchange price export.
type ImportRow struct {
	PriceBar
	Open float64
	High float64
	Low  float64
}

var csvColumns = []string{"symbol", "date", "open", "high", "low", "close", "turnover"}

// ParseCSV reads rows of Symbol,Date,Open,High,Low,Close,Turnover. The header
// row is required; column order is taken from it. Thousands separators in
// numbers are ignored and dates may be dd/mm/yyyy or yyyy-mm-dd.
func ParseCSV(r io.Reader) ([]ImportRow, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("empty csv")
		}
		return nil, fmt.Errorf("read header: %w", err)
	}

	index := make(map[string]int, len(header))
	for i, h := range header {
		index[strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))] = i
	}
	for _, col := range csvColumns {
		if _, ok := index[col]; !ok {
			return nil, fmt.Errorf("missing column %q", col)
		}
	}

	var rows []ImportRow
	line := 1
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		line++
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		if len(record) == 1 && strings.TrimSpace(record[0]) == "" {
			continue
		}

		row, err := parseRecord(record, index)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func parseRecord(record []string, index map[string]int) (ImportRow, error) {
	field := func(name string) string {
		i := index[name]
		if i >= len(record) {
			return ""
		}
		return strings.TrimSpace(record[i])
	}

	var row ImportRow
	row.Symbol = strings.ToUpper(field("symbol"))
	if row.Symbol == "" {
		return row, fmt.Errorf("empty symbol")
	}

	date, err := ParseDate(field("date"))
	if err != nil {
		return row, err
	}
	row.Date = date

	numbers := []struct {
		name string
		dst  *float64
	}{
		{"open", &row.Open},
		{"high", &row.High},
		{"low", &row.Low},
		{"close", &row.Close},
		{"turnover", &row.Turnover},
	}
	for _, n := range numbers {
		v, err := parseNumber(field(n.name))
		if err != nil {
			return row, fmt.Errorf("%s: %w", n.name, err)
		}
		*n.dst = v
	}
	if row.Close <= 0 {
		return row, fmt.Errorf("close must be positive")
	}
	return row, nil
}

func parseNumber(s string) (float64, error) {
	s = strings.ReplaceAll(s, ",", "")
	if s == "" || s == "-" {
		return 0, nil
	}
	return strconv.ParseFloat(s, 64)
}
