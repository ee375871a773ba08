package batch

import (
	"encoding/csv"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"
	"golang.org/x/text/unicode/norm"
)

// ParseBoundaries splits a comma-separated list of boundary ids.
func ParseBoundaries(list string) []string {
	return NormalizeBoundaries(strings.Split(list, ","))
}

// NormalizeBoundaries trims and NFC-normalizes ids, drops blanks and
// duplicates, and keeps the first-seen order.
func NormalizeBoundaries(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = norm.NFC.String(strings.TrimSpace(id))
		if id == "" {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

// ListOptions selects the boundary ids in a list file.
type ListOptions struct {
	// Sheet names the xlsx sheet. Default: the first sheet.
	Sheet string
	// Column is a header name. When set, the first row is a header and ids
	// come from the matching column; otherwise every row's first cell is an id.
	Column string
}

// ReadBoundaryFile reads boundary ids from an .xlsx, .csv, or plain text file
// (one id per line) and normalizes them like ParseBoundaries.
func ReadBoundaryFile(path string, opts ListOptions) ([]string, error) {
	var (
		rows [][]string
		err  error
	)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".xlsx":
		rows, err = readXLSXRows(path, opts.Sheet)
	case ".csv":
		rows, err = readCSVRows(path)
	default:
		rows, err = readLines(path)
	}
	if err != nil {
		return nil, err
	}

	col := 0
	if opts.Column != "" {
		if len(rows) == 0 {
			return nil, eris.Errorf("batch: %s is empty", path)
		}
		col = slices.IndexFunc(rows[0], func(h string) bool {
			return strings.EqualFold(strings.TrimSpace(h), opts.Column)
		})
		if col < 0 {
			return nil, eris.Errorf("batch: %s has no column %q", path, opts.Column)
		}
		rows = rows[1:]
	}

	ids := make([]string, 0, len(rows))
	for _, row := range rows {
		if col < len(row) {
			ids = append(ids, row[col])
		}
	}
	return NormalizeBoundaries(ids), nil
}

func readXLSXRows(path, sheetName string) ([][]string, error) {
	f, err := xlsx.OpenFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "batch: open %s", path)
	}
	var sheet *xlsx.Sheet
	switch {
	case sheetName != "":
		s, ok := f.Sheet[sheetName]
		if !ok {
			return nil, eris.Errorf("batch: %s has no sheet %q", path, sheetName)
		}
		sheet = s
	case len(f.Sheets) > 0:
		sheet = f.Sheets[0]
	default:
		return nil, eris.Errorf("batch: %s has no sheets", path)
	}

	rows := make([][]string, 0, len(sheet.Rows))
	for _, row := range sheet.Rows {
		cells := make([]string, len(row.Cells))
		for j, c := range row.Cells {
			cells[j] = c.String()
		}
		rows = append(rows, cells)
	}
	return rows, nil
}

func readCSVRows(path string) ([][]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "batch: open %s", path)
	}
	defer f.Close() //nolint:errcheck

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	r.TrimLeadingSpace = true
	rows, err := r.ReadAll()
	if err != nil {
		return nil, eris.Wrapf(err, "batch: read %s", path)
	}
	return rows, nil
}

func readLines(path string) ([][]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "batch: read %s", path)
	}
	var rows [][]string
	for _, line := range strings.Split(string(data), "\n") {
		if line = strings.TrimSpace(line); line != "" && !strings.HasPrefix(line, "#") {
			rows = append(rows, []string{line})
		}
	}
	return rows, nil
}
