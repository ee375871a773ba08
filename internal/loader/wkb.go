package loader

import (
	"github.com/jonas-p/go-shp"
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/ewkb"
)

// EncodeEWKB converts a shapefile geometry to little-endian EWKB tagged with
// srid. Z and M shapes are flattened to XY. It returns nil, nil for null,
// empty or unsupported shapes.
func EncodeEWKB(shape shp.Shape, srid int) ([]byte, error) {
	g := toGeom(shape, srid)
	if g == nil {
		return nil, nil
	}
	data, err := ewkb.Marshal(g, ewkb.NDR)
	if err != nil {
		return nil, eris.Wrap(err, "loader: encode EWKB")
	}
	return data, nil
}

func toGeom(shape shp.Shape, srid int) geom.T {
	switch s := shape.(type) {
	case *shp.Point:
		return geom.NewPointFlat(geom.XY, []float64{s.X, s.Y}).SetSRID(srid)
	case *shp.PointZ:
		return geom.NewPointFlat(geom.XY, []float64{s.X, s.Y}).SetSRID(srid)
	case *shp.PointM:
		return geom.NewPointFlat(geom.XY, []float64{s.X, s.Y}).SetSRID(srid)
	case *shp.MultiPoint:
		return multiPoint(s.Points, srid)
	case *shp.MultiPointZ:
		return multiPoint(s.Points, srid)
	case *shp.MultiPointM:
		return multiPoint(s.Points, srid)
	case *shp.PolyLine:
		return multiLineString(s.Parts, s.Points, srid)
	case *shp.PolyLineZ:
		return multiLineString(s.Parts, s.Points, srid)
	case *shp.PolyLineM:
		return multiLineString(s.Parts, s.Points, srid)
	case *shp.Polygon:
		return multiPolygon(s.Parts, s.Points, srid)
	case *shp.PolygonZ:
		return multiPolygon(s.Parts, s.Points, srid)
	case *shp.PolygonM:
		return multiPolygon(s.Parts, s.Points, srid)
	default:
		return nil
	}
}

func multiPoint(points []shp.Point, srid int) geom.T {
	if len(points) == 0 {
		return nil
	}
	return geom.NewMultiPointFlat(geom.XY, flatten(points)).SetSRID(srid)
}

// partRanges splits points by the part start offsets.
func partRanges(parts []int32, points []shp.Point) [][]shp.Point {
	out := make([][]shp.Point, 0, len(parts))
	for i, start := range parts {
		end := int32(len(points))
		if i+1 < len(parts) {
			end = parts[i+1]
		}
		if start < 0 || start > end || end > int32(len(points)) {
			continue
		}
		out = append(out, points[start:end])
	}
	return out
}

func multiLineString(parts []int32, points []shp.Point, srid int) geom.T {
	mls := geom.NewMultiLineString(geom.XY).SetSRID(srid)
	for _, part := range partRanges(parts, points) {
		if len(part) < 2 {
			continue
		}
		if err := mls.Push(geom.NewLineStringFlat(geom.XY, flatten(part))); err != nil {
			continue
		}
	}
	if mls.NumLineStrings() == 0 {
		return nil
	}
	return mls
}

// multiPolygon groups rings into polygons. Shapefile outer rings run
// clockwise; a counter-clockwise ring is a hole in the preceding polygon.
func multiPolygon(parts []int32, points []shp.Point, srid int) geom.T {
	type poly struct {
		flat []float64
		ends []int
	}
	var polys []*poly
	for _, ring := range partRanges(parts, points) {
		if len(ring) < 4 {
			continue
		}
		if signedArea(ring) < 0 || len(polys) == 0 {
			polys = append(polys, &poly{})
		}
		p := polys[len(polys)-1]
		p.flat = append(p.flat, flatten(ring)...)
		p.ends = append(p.ends, len(p.flat))
	}
	if len(polys) == 0 {
		return nil
	}

	mp := geom.NewMultiPolygon(geom.XY).SetSRID(srid)
	for _, p := range polys {
		if err := mp.Push(geom.NewPolygonFlat(geom.XY, p.flat, p.ends)); err != nil {
			continue
		}
	}
	if mp.NumPolygons() == 0 {
		return nil
	}
	return mp
}

// signedArea is positive for counter-clockwise rings.
func signedArea(ring []shp.Point) float64 {
	var a float64
	for i := 0; i < len(ring)-1; i++ {
		a += ring[i].X*ring[i+1].Y - ring[i+1].X*ring[i].Y
	}
	return a / 2
}

func flatten(points []shp.Point) []float64 {
	flat := make([]float64, 0, len(points)*2)
	for _, p := range points {
		flat = append(flat, p.X, p.Y)
	}
	return flat
}
