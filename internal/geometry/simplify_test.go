package geometry

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twpayne/go-geom"
)

// squareRing builds a closed square ring of side meters-ish degrees with a
// small mid-edge jog of jogDeg on the bottom edge.
func squareRing(jogDeg float64) []geom.Coord {
	return []geom.Coord{
		{-87.50, 33.20},
		{-87.45, 33.20 + jogDeg},
		{-87.40, 33.20},
		{-87.40, 33.30},
		{-87.50, 33.30},
		{-87.50, 33.20},
	}
}

func TestSimplify_NilGeometry(t *testing.T) {
	assert.Nil(t, Simplify(nil, 100))
}

func TestSimplify_DropsSmallJog(t *testing.T) {
	// A one-thousandth-degree jog is roughly 100m; a 500m tolerance must
	// remove it, leaving the plain square.
	poly := geom.NewPolygon(geom.XY).MustSetCoords([][]geom.Coord{squareRing(0.001)})
	out := Simplify(poly, 500)
	require.NotNil(t, out)

	simp, ok := out.(*geom.Polygon)
	require.True(t, ok)
	assert.Len(t, simp.Coords()[0], 5)
}

func TestSimplify_KeepsLargeJog(t *testing.T) {
	// A tenth of a degree is ~10km; a 500m tolerance must keep it.
	poly := geom.NewPolygon(geom.XY).MustSetCoords([][]geom.Coord{squareRing(0.1)})
	out := Simplify(poly, 500)
	require.NotNil(t, out)

	simp := out.(*geom.Polygon)
	assert.Len(t, simp.Coords()[0], 6)
}

func TestSimplify_ToleranceBound(t *testing.T) {
	// Every original vertex must lie within tolerance of the simplified
	// boundary, measured in the planar projection.
	tol := 500.0
	ring := squareRing(0.001)
	poly := geom.NewPolygon(geom.XY).MustSetCoords([][]geom.Coord{ring})
	out := Simplify(poly, tol)
	require.NotNil(t, out)

	simp := out.(*geom.Polygon).Coords()[0]
	proj := func(c geom.Coord) geom.Coord {
		x, y := forward(c[0], c[1])
		return geom.Coord{x, y}
	}
	for _, orig := range ring {
		p := proj(orig)
		minDist := math.Inf(1)
		for i := 0; i+1 < len(simp); i++ {
			d := segmentDistance(p, proj(simp[i]), proj(simp[i+1]))
			if d < minDist {
				minDist = d
			}
		}
		assert.LessOrEqual(t, minDist, tol, "vertex %v drifted beyond tolerance", orig)
	}
}

func TestSimplify_DegenerateRingIsNil(t *testing.T) {
	tiny := geom.NewPolygon(geom.XY).MustSetCoords([][]geom.Coord{{
		{-87.5, 33.2}, {-87.5, 33.2}, {-87.5, 33.2}, {-87.5, 33.2},
	}})
	assert.Nil(t, Simplify(tiny, 100))
}

func TestSimplify_HoleCollapsesBodySurvives(t *testing.T) {
	outer := squareRing(0.1)
	hole := []geom.Coord{
		{-87.47, 33.24}, {-87.4699, 33.24}, {-87.4699, 33.2401}, {-87.47, 33.24},
	}
	poly := geom.NewPolygon(geom.XY).MustSetCoords([][]geom.Coord{outer, hole})
	out := Simplify(poly, 500)
	require.NotNil(t, out)
	assert.Len(t, out.(*geom.Polygon).Coords(), 1)
}

func TestSimplify_MultiPolygon(t *testing.T) {
	a := squareRing(0.1)
	b := make([]geom.Coord, len(a))
	for i, c := range a {
		b[i] = geom.Coord{c[0] + 1, c[1] + 1}
	}
	mp := geom.NewMultiPolygon(geom.XY).MustSetCoords([][][]geom.Coord{{a}, {b}})
	out := Simplify(mp, 500)
	require.NotNil(t, out)
	assert.Equal(t, 2, out.(*geom.MultiPolygon).NumPolygons())
}

func TestSimplify_NonArealIsNil(t *testing.T) {
	pt := geom.NewPointFlat(geom.XY, []float64{-87.5, 33.2})
	assert.Nil(t, Simplify(pt, 100))
}

func TestSimplify_RoundTripStaysClosed(t *testing.T) {
	poly := geom.NewPolygon(geom.XY).MustSetCoords([][]geom.Coord{squareRing(0.1)})
	out := Simplify(poly, 500)
	require.NotNil(t, out)
	ring := out.(*geom.Polygon).Coords()[0]
	assert.Equal(t, ring[0], ring[len(ring)-1])
}

func TestFromGeoJSONValue(t *testing.T) {
	v := map[string]any{
		"type": "Polygon",
		"coordinates": []any{[]any{
			[]any{-87.5, 33.2}, []any{-87.4, 33.2}, []any{-87.4, 33.3}, []any{-87.5, 33.2},
		}},
	}
	g, err := FromGeoJSONValue(v)
	require.NoError(t, err)
	require.IsType(t, &geom.Polygon{}, g)

	g, err = FromGeoJSONValue(nil)
	require.NoError(t, err)
	assert.Nil(t, g)
}

func TestBBoxAndCentroid(t *testing.T) {
	poly := geom.NewPolygon(geom.XY).MustSetCoords([][]geom.Coord{{
		{0, 0}, {2, 0}, {2, 2}, {0, 2}, {0, 0},
	}})

	bbox := BBox(poly)
	require.NotNil(t, bbox)
	assert.Equal(t, []float64{0, 0, 2, 2}, bbox)

	lon, lat, ok := Centroid(poly)
	require.True(t, ok)
	assert.InDelta(t, 1.0, lon, 1e-9)
	assert.InDelta(t, 1.0, lat, 1e-9)

	assert.Nil(t, BBox(nil))
	_, _, ok = Centroid(nil)
	assert.False(t, ok)
}
