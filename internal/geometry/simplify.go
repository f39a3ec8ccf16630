// Package geometry reduces raw flood-extent geometries to the lightweight
// WGS84 shapes carried by the spatial extract: reproject to Web Mercator,
// simplify at a metric tolerance, reproject back.
package geometry

import (
	"encoding/json"
	"fmt"
	"math"

	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/geojson"
	"go.uber.org/zap"
)

const (
	earthRadius = 6378137.0
	maxLat      = 85.051129 // Web Mercator latitude cutoff
)

// FromGeoJSONValue decodes an already-parsed GeoJSON value (as produced by
// the lenient parser) into a geom.T. Returns nil, nil for a nil value.
func FromGeoJSONValue(v any) (geom.T, error) {
	if v == nil {
		return nil, nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var g geom.T
	if err := geojson.Unmarshal(data, &g); err != nil {
		return nil, err
	}
	return g, nil
}

// Simplify reprojects a lon/lat polygon or multipolygon to Web Mercator,
// simplifies it at tolMeters preserving ring closure, and reprojects the
// result back to lon/lat. Anything unusable (nil input, empty shapes,
// non-areal geometry, rings that collapse below four points) yields nil
// rather than an error: one bad geometry must never abort a batch.
func Simplify(g geom.T, tolMeters float64) geom.T {
	if g == nil {
		return nil
	}

	switch t := g.(type) {
	case *geom.Polygon:
		rings := simplifyRings(t.Coords(), tolMeters)
		if len(rings) == 0 {
			return nil
		}
		return geom.NewPolygon(geom.XY).MustSetCoords(rings)

	case *geom.MultiPolygon:
		var polys [][][]geom.Coord
		for _, poly := range t.Coords() {
			rings := simplifyRings(poly, tolMeters)
			if len(rings) > 0 {
				polys = append(polys, rings)
			}
		}
		if len(polys) == 0 {
			return nil
		}
		if len(polys) == 1 {
			return geom.NewPolygon(geom.XY).MustSetCoords(polys[0])
		}
		return geom.NewMultiPolygon(geom.XY).MustSetCoords(polys)

	default:
		zap.L().Debug("geometry: skipping non-areal geometry",
			zap.String("type", fmt.Sprintf("%T", t)))
		return nil
	}
}

// simplifyRings simplifies each ring of one polygon. The first ring is the
// outer boundary: if it collapses, the polygon is gone and holes go with it.
func simplifyRings(rings [][]geom.Coord, tolMeters float64) [][]geom.Coord {
	var out [][]geom.Coord
	for i, ring := range rings {
		simp := simplifyRing(ring, tolMeters)
		if simp == nil {
			if i == 0 {
				return nil
			}
			continue
		}
		out = append(out, simp)
	}
	return out
}

// simplifyRing projects one closed lon/lat ring to Web Mercator, runs
// Douglas-Peucker at the metric tolerance, and projects back. Returns nil
// when fewer than four points survive (a degenerate ring).
func simplifyRing(ring []geom.Coord, tolMeters float64) []geom.Coord {
	if len(ring) < 4 {
		return nil
	}

	proj := make([]geom.Coord, len(ring))
	for i, c := range ring {
		x, y := forward(c[0], c[1])
		proj[i] = geom.Coord{x, y}
	}

	keep := douglasPeucker(proj, tolMeters)
	if len(keep) < 4 {
		return nil
	}

	out := make([]geom.Coord, len(keep))
	for i, c := range keep {
		lon, lat := inverse(c[0], c[1])
		out[i] = geom.Coord{lon, lat}
	}
	// Re-close: floating-point round trips can nudge the endpoints apart.
	out[len(out)-1] = geom.Coord{out[0][0], out[0][1]}
	return out
}

// douglasPeucker simplifies a point sequence, always keeping both endpoints.
// Every dropped vertex lies within tol of the retained chain.
func douglasPeucker(pts []geom.Coord, tol float64) []geom.Coord {
	if len(pts) <= 2 {
		return pts
	}

	keep := make([]bool, len(pts))
	keep[0], keep[len(pts)-1] = true, true
	dpMark(pts, 0, len(pts)-1, tol, keep)

	out := make([]geom.Coord, 0, len(pts))
	for i, k := range keep {
		if k {
			out = append(out, pts[i])
		}
	}
	return out
}

func dpMark(pts []geom.Coord, lo, hi int, tol float64, keep []bool) {
	if hi-lo < 2 {
		return
	}
	maxDist, maxIdx := 0.0, lo
	for i := lo + 1; i < hi; i++ {
		if d := segmentDistance(pts[i], pts[lo], pts[hi]); d > maxDist {
			maxDist, maxIdx = d, i
		}
	}
	if maxDist > tol {
		keep[maxIdx] = true
		dpMark(pts, lo, maxIdx, tol, keep)
		dpMark(pts, maxIdx, hi, tol, keep)
	}
}

// segmentDistance is the perpendicular distance from p to segment a-b,
// falling back to point distance when a and b coincide (the closed-ring
// case, where the anchor segment is degenerate).
func segmentDistance(p, a, b geom.Coord) float64 {
	dx, dy := b[0]-a[0], b[1]-a[1]
	lenSq := dx*dx + dy*dy
	if lenSq == 0 {
		return math.Hypot(p[0]-a[0], p[1]-a[1])
	}
	t := ((p[0]-a[0])*dx + (p[1]-a[1])*dy) / lenSq
	if t < 0 {
		t = 0
	} else if t > 1 {
		t = 1
	}
	return math.Hypot(p[0]-(a[0]+t*dx), p[1]-(a[1]+t*dy))
}

// forward projects lon/lat degrees to Web Mercator meters. Latitudes beyond
// the Mercator cutoff are clamped rather than rejected.
func forward(lon, lat float64) (x, y float64) {
	if lat > maxLat {
		lat = maxLat
	} else if lat < -maxLat {
		lat = -maxLat
	}
	x = earthRadius * lon * math.Pi / 180
	y = earthRadius * math.Log(math.Tan(math.Pi/4+lat*math.Pi/360))
	return x, y
}

// inverse projects Web Mercator meters back to lon/lat degrees.
func inverse(x, y float64) (lon, lat float64) {
	lon = x / earthRadius * 180 / math.Pi
	lat = (2*math.Atan(math.Exp(y/earthRadius)) - math.Pi/2) * 180 / math.Pi
	return lon, lat
}
