package loader

import (
	"strconv"
	"strings"

	"github.com/jonas-p/go-shp"
	"github.com/rotisserie/eris"
)

// Record is one shapefile feature ready for COPY.
type Record struct {
	ID    int64
	Attrs map[string]any
	Geom  []byte
}

// ReadShapefile reads every feature of shpPath. Attribute names are
// lowercased, blank values become nulls, and numeric and logical DBF fields
// are typed. Geometries are EWKB tagged with srid; features without a usable
// geometry are skipped and counted.
func ReadShapefile(shpPath string, srid int) (records []Record, skipped int, err error) {
	reader, err := shp.Open(shpPath)
	if err != nil {
		return nil, 0, eris.Wrapf(err, "loader: open shapefile %s", shpPath)
	}
	defer func() { _ = reader.Close() }()

	fields := reader.Fields()
	names := make([]string, len(fields))
	for i, f := range fields {
		names[i] = strings.ToLower(strings.TrimRight(f.String(), "\x00 "))
	}

	for reader.Next() {
		n, shape := reader.Shape()
		wkb, encErr := EncodeEWKB(shape, srid)
		if encErr != nil || wkb == nil {
			skipped++
			continue
		}

		attrs := make(map[string]any, len(fields))
		for i, f := range fields {
			attrs[names[i]] = parseAttr(f.Fieldtype, reader.Attribute(i))
		}
		records = append(records, Record{ID: int64(n) + 1, Attrs: attrs, Geom: wkb})
	}
	if rerr := reader.Err(); rerr != nil {
		return records, skipped, eris.Wrapf(rerr, "loader: read shapefile %s", shpPath)
	}
	return records, skipped, nil
}

// parseAttr types a raw DBF value by its field type.
func parseAttr(fieldType byte, raw string) any {
	v := strings.TrimSpace(strings.TrimRight(raw, "\x00"))
	if v == "" {
		return nil
	}
	switch fieldType {
	case 'N', 'F':
		if i, err := strconv.ParseInt(v, 10, 64); err == nil {
			return i
		}
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
		return v
	case 'L':
		switch strings.ToUpper(v) {
		case "T", "Y":
			return true
		case "F", "N":
			return false
		default:
			return nil
		}
	default:
		return v
	}
}
