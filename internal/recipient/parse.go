package recipient

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/xuri/excelize/v2"
)

var textSeparator = regexp.MustCompile(`,|\t`)

// ParseText parses manually entered numbers: one row per line, columns
// separated by commas or tabs. Empty cells are dropped.
func ParseText(text string) [][]string {
	var rows [][]string
	for _, line := range strings.Split(text, "\n") {
		var cols []string
		for _, c := range textSeparator.Split(line, -1) {
			if c = strings.TrimSpace(c); c != "" {
				cols = append(cols, c)
			}
		}
		if len(cols) > 0 {
			rows = append(rows, cols)
		}
	}
	return rows
}

// ParseCSV reads comma separated rows with quoted fields and variable field
// counts. Cells are trimmed.
func ParseCSV(r io.Reader) ([][]string, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true
	reader.TrimLeadingSpace = true

	var rows [][]string
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to parse csv: %w", err)
		}
		for i := range record {
			record[i] = strings.TrimSpace(record[i])
		}
		if len(record) == 1 && record[0] == "" {
			continue
		}
		rows = append(rows, record)
	}
	return rows, nil
}

// ParseXLSX reads all rows of the first sheet of a workbook as strings
func ParseXLSX(r io.Reader) ([][]string, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("failed to open workbook: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, nil
	}

	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("failed to read sheet %q: %w", sheets[0], err)
	}
	return rows, nil
}

// ParseFile dispatches on the file extension: .csv and .txt are read as CSV,
// .xlsx as a workbook.
func ParseFile(name string, r io.Reader) ([][]string, error) {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".csv", ".txt":
		return ParseCSV(r)
	case ".xlsx":
		return ParseXLSX(r)
	default:
		return nil, fmt.Errorf("unsupported file type: %s", name)
	}
}
