// Package workbook fills BOM spreadsheet templates with computed line items.
package workbook

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"
	"go.uber.org/zap"

	"github.com/sells-group/fiber-bom/internal/bom"
)

// DateLayout is the date stamp used in output file names.
const DateLayout = "20060102"

// Writer persists line items into a copy of a template.
type Writer interface {
	Write(templatePath, outPath string, items []bom.LineItem) error
}

// XLSX writes .xlsx templates with tealeg/xlsx.
type XLSX struct{}

// NewXLSX returns the xlsx template writer.
func NewXLSX() *XLSX { return &XLSX{} }

// Write opens templatePath, sets every item's cell and saves the result to
// outPath. The file is written under a temporary name and renamed, so a
// failed write never leaves a partial BOM behind.
func (w *XLSX) Write(templatePath, outPath string, items []bom.LineItem) error {
	log := zap.L().With(zap.String("component", "workbook"), zap.String("out", outPath))

	f, err := xlsx.OpenFile(templatePath)
	if err != nil {
		return eris.Wrapf(err, "workbook: open template %s", templatePath)
	}

	for _, it := range items {
		sheet, ok := f.Sheet[it.Sheet]
		if !ok {
			return eris.Errorf("workbook: template %s has no sheet %q", templatePath, it.Sheet)
		}
		col, row, err := xlsx.GetCoordsFromCellIDString(it.Cell)
		if err != nil {
			return eris.Wrapf(err, "workbook: bad cell %q for %s", it.Cell, it.Name)
		}
		setCell(sheet.Cell(row, col), it.Value)
	}

	if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
		return eris.Wrap(err, "workbook: create output dir")
	}
	tmp := outPath + ".tmp"
	if err := f.Save(tmp); err != nil {
		_ = os.Remove(tmp)
		return eris.Wrapf(err, "workbook: save %s", outPath)
	}
	if err := os.Rename(tmp, outPath); err != nil {
		_ = os.Remove(tmp)
		return eris.Wrapf(err, "workbook: rename %s", outPath)
	}

	log.Debug("workbook written", zap.Int("cells", len(items)))
	return nil
}

func setCell(c *xlsx.Cell, v bom.Value) {
	switch t := v.Any().(type) {
	case int64:
		c.SetInt64(t)
	case float64:
		c.SetFloat(t)
	case string:
		c.SetString(t)
	}
}

var unsafeChars = strings.NewReplacer(
	"/", "_", `\`, "_", ":", "_", "*", "_", "?", "_",
	`"`, "_", "<", "_", ">", "_", "|", "_",
)

// FileName returns "{boundary}_BOM_{YYYYMMDD}.xlsx" with path-unsafe
// characters in boundary replaced by underscores.
func FileName(boundary string, date time.Time) string {
	return unsafeChars.Replace(boundary) + "_BOM_" + date.Format(DateLayout) + ".xlsx"
}

// OutputPath joins dir and FileName.
func OutputPath(dir, boundary string, date time.Time) string {
	return filepath.Join(dir, FileName(boundary, date))
}

// ErrPathClaimed is returned when a second boundary of a batch maps to an
// output file another boundary already owns.
var ErrPathClaimed = eris.New("workbook: output path already claimed")

// Claims tracks the output paths handed out during one batch. Keys are
// compared case-insensitively since output directories may live on
// case-folding file systems.
type Claims map[string]string

// Claim reserves path for boundary. Claiming the same path again for the
// same boundary is a no-op.
func (c Claims) Claim(path, boundary string) error {
	key := strings.ToLower(filepath.Clean(path))
	if owner, ok := c[key]; ok && owner != boundary {
		return eris.Wrapf(ErrPathClaimed, "%s is written by boundary %q", path, owner)
	}
	c[key] = boundary
	return nil
}

// CheckTemplate verifies the template opens and contains every sheet named.
func CheckTemplate(path string, sheets ...string) error {
	if _, err := os.Stat(path); err != nil {
		return eris.Wrapf(err, "workbook: template %s", path)
	}
	f, err := xlsx.OpenFile(path)
	if err != nil {
		return eris.Wrapf(err, "workbook: open template %s", path)
	}
	for _, name := range sheets {
		if _, ok := f.Sheet[name]; !ok {
			return eris.Errorf("workbook: template %s has no sheet %q", path, name)
		}
	}
	return nil
}

// CheckTemplate implements the pre-flight check for the xlsx writer.
func (w *XLSX) CheckTemplate(path string, sheets ...string) error {
	return CheckTemplate(path, sheets...)
}
