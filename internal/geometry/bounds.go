package geometry

import (
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/xy"
)

// BBox returns the [minx, miny, maxx, maxy] envelope of a geometry, or nil
// when the geometry is nil or has no extent.
func BBox(g geom.T) []float64 {
	if g == nil {
		return nil
	}
	b := g.Bounds()
	if b.IsEmpty() {
		return nil
	}
	return []float64{b.Min(0), b.Min(1), b.Max(0), b.Max(1)}
}

// Centroid returns the lon/lat centroid of a geometry. ok is false when the
// centroid cannot be computed (nil or degenerate input).
func Centroid(g geom.T) (lon, lat float64, ok bool) {
	if g == nil {
		return 0, 0, false
	}
	c, err := xy.Centroid(g)
	if err != nil || len(c) < 2 {
		return 0, 0, false
	}
	return c[0], c[1], true
}
