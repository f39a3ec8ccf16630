package catalog

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testNorm = Normalizer{Bucket: "sdmlab"}

func TestNormalize_EndToEndExample(t *testing.T) {
	rec, _ := testNorm.Normalize("FIM_Database/Tier_1/SiteA/foo_metadata.json", map[string]any{
		"File_Name": "foo.tif",
		"Date of Flood /Synthetic Flooding Event (return period (years))": "20210615 flood event",
		"Location of the centroid of the flood map":                       []any{-87.5, 33.2},
	})

	assert.Equal(t, "Tier_1/SiteA/foo", rec.ID)
	assert.Equal(t, "Tier_1", rec.Tier)
	assert.Equal(t, "SiteA", rec.Site)
	require.NotNil(t, rec.DateYMD)
	assert.Equal(t, "2021-06-15", *rec.DateYMD)
	assert.Nil(t, rec.ReturnPeriod)
	assert.Equal(t, -87.5, rec.CentroidLon)
	assert.Equal(t, 33.2, rec.CentroidLat)
	require.NotNil(t, rec.TifURL)
	assert.Equal(t, "https://sdmlab.s3.amazonaws.com/FIM_Database/Tier_1/SiteA/foo.tif", *rec.TifURL)
	assert.Equal(t, "https://sdmlab.s3.amazonaws.com/FIM_Database/Tier_1/SiteA/foo_metadata.json", rec.JSONURL)
	require.NotNil(t, rec.EventTS)
	assert.Equal(t, int64(20210615), *rec.EventTS)
}

func TestNormalize_TierCanonicalization(t *testing.T) {
	cases := map[string]string{
		"FIM_Database/Tier_2/S/x_metadata.json":   "Tier_2",
		"FIM_Database/tier-3/S/x_metadata.json":   "Tier_3",
		"FIM_Database/TIER 5/S/x_metadata.json":   "Tier_5",
		"FIM_Database/Uplands/S/x_metadata.json":  "Unknown_Tier",
		"FIM_Database/Tierless/S/x_metadata.json": "Tierless",
	}
	for key, want := range cases {
		rec, _ := testNorm.Normalize(key, map[string]any{})
		assert.Equal(t, want, rec.Tier, "key %s", key)
	}
}

func TestNormalize_SiteFromPath(t *testing.T) {
	rec, _ := testNorm.Normalize("FIM_Database/Tier_1/BlackWarrior/x_metadata.json", map[string]any{})
	assert.Equal(t, "BlackWarrior", rec.Site)

	rec, _ = testNorm.Normalize("x_metadata.json", map[string]any{})
	assert.Equal(t, "Unknown_Site", rec.Site)
}

func TestNormalize_Tier4ReturnPeriodOnly(t *testing.T) {
	rec, _ := testNorm.Normalize("FIM_Database/Tier_4/S/x_metadata.json", map[string]any{
		"Date of Flood /Synthetic Flooding Event (return period (years))": "100 year synthetic event",
	})
	assert.Nil(t, rec.DateYMD)
	require.NotNil(t, rec.ReturnPeriod)
	assert.Equal(t, 100, *rec.ReturnPeriod)
}

func TestNormalize_Tier4NeverParsesDates(t *testing.T) {
	// An eight-digit run reads as a date, which Tier_4 never carries, so
	// both temporal fields stay null.
	rec, _ := testNorm.Normalize("FIM_Database/Tier_4/S/x_metadata.json", map[string]any{
		"Date of Flood /Synthetic Flooding Event (return period (years))": "20210615",
	})
	assert.Nil(t, rec.DateYMD)
	assert.Nil(t, rec.ReturnPeriod)
}

func TestNormalize_NonTier4NeverHasReturnPeriod(t *testing.T) {
	rec, _ := testNorm.Normalize("FIM_Database/Tier_2/S/x_metadata.json", map[string]any{
		"Date of Flood /Synthetic Flooding Event (return period (years))": "500",
	})
	assert.Nil(t, rec.ReturnPeriod)
	assert.Nil(t, rec.DateYMD)
}

func TestNormalize_InvalidDateYieldsNull(t *testing.T) {
	rec, _ := testNorm.Normalize("FIM_Database/Tier_1/S/x_metadata.json", map[string]any{
		"Date of Flood": "99999999",
	})
	assert.Nil(t, rec.DateYMD)
}

func TestNormalize_DateRunAdjacentToDigitsIgnored(t *testing.T) {
	rec, _ := testNorm.Normalize("FIM_Database/Tier_1/S/x_metadata.json", map[string]any{
		"Date of Flood": "gauge 123456789 reading",
	})
	assert.Nil(t, rec.DateYMD)
}

func TestNormalize_CentroidFromExtentMidpoint(t *testing.T) {
	rec, _ := testNorm.Normalize("FIM_Database/Tier_1/S/x_metadata.json", map[string]any{
		"Extent": map[string]any{
			"xmin": -88.0, "ymin": 33.0, "xmax": -87.0, "ymax": 34.0,
		},
	})
	assert.Equal(t, -87.5, rec.CentroidLon)
	assert.Equal(t, 33.5, rec.CentroidLat)
}

func TestNormalize_CentroidSentinel(t *testing.T) {
	rec, _ := testNorm.Normalize("FIM_Database/Tier_1/S/x_metadata.json", map[string]any{
		"Location of the centroid of the flood map": []any{"bad", "data"},
	})
	assert.Equal(t, 0.0, rec.CentroidLon)
	assert.Equal(t, 0.0, rec.CentroidLat)
}

func TestNormalize_FieldAliases(t *testing.T) {
	rec, _ := testNorm.Normalize("FIM_Database/Tier_1/S/x_metadata.json", map[string]any{
		"File Name":   "alt.tif",
		"River Basin": "Black Warrior",
	})
	require.NotNil(t, rec.FileName)
	assert.Equal(t, "alt.tif", *rec.FileName)
	require.NotNil(t, rec.RiverBasin)
	assert.Equal(t, "Black Warrior", *rec.RiverBasin)
}

func TestNormalize_AliasPriorityOrder(t *testing.T) {
	rec, _ := testNorm.Normalize("FIM_Database/Tier_1/S/x_metadata.json", map[string]any{
		"File_Name": "primary.tif",
		"File Name": "secondary.tif",
	})
	assert.Equal(t, "primary.tif", *rec.FileName)
}

func TestNormalize_ResolutionCoercion(t *testing.T) {
	rec, _ := testNorm.Normalize("FIM_Database/Tier_1/S/x_metadata.json", map[string]any{
		"Resolution in meter": json.Number("10"),
	})
	require.NotNil(t, rec.ResolutionM)
	assert.Equal(t, 10.0, *rec.ResolutionM)

	rec, _ = testNorm.Normalize("FIM_Database/Tier_1/S/x_metadata.json", map[string]any{
		"Resolution (m)": "30",
	})
	require.NotNil(t, rec.ResolutionM)
	assert.Equal(t, 30.0, *rec.ResolutionM)
}

func TestNormalize_ReferencesCoercion(t *testing.T) {
	rec, _ := testNorm.Normalize("FIM_Database/Tier_1/S/x_metadata.json", map[string]any{})
	assert.Equal(t, []string{}, rec.References)

	rec, _ = testNorm.Normalize("FIM_Database/Tier_1/S/x_metadata.json", map[string]any{
		"References": "doi:10.1000/1",
	})
	assert.Equal(t, []string{"doi:10.1000/1"}, rec.References)

	rec, _ = testNorm.Normalize("FIM_Database/Tier_1/S/x_metadata.json", map[string]any{
		"References": []any{"a", json.Number("2021")},
	})
	assert.Equal(t, []string{"a", "2021"}, rec.References)
}

func TestNormalize_HUCKeepsLeadingZeros(t *testing.T) {
	rec, _ := testNorm.Normalize("FIM_Database/Tier_1/S/x_metadata.json", map[string]any{
		"HUC8":  "08070205",
		"HUC12": json.Number("31300050101"),
	})
	assert.Equal(t, "08070205", rec.HUC8)
	assert.Equal(t, "31300050101", rec.HUC12)
	assert.Empty(t, rec.HUC2)
}

func TestNormalize_QualityFallsBackToTier(t *testing.T) {
	rec, _ := testNorm.Normalize("FIM_Database/Tier_3/S/x_metadata.json", map[string]any{})
	assert.Equal(t, "Tier_3", rec.Quality)

	rec, _ = testNorm.Normalize("FIM_Database/Tier_3/S/x_metadata.json", map[string]any{
		"Quality": "validated",
	})
	assert.Equal(t, "validated", rec.Quality)
}

func TestNormalize_StringTruncation(t *testing.T) {
	long := strings.Repeat("x", 3*MaxStringLen)
	rec, _ := testNorm.Normalize("FIM_Database/Tier_1/S/x_metadata.json", map[string]any{
		"Description": long,
	})
	require.NotNil(t, rec.Description)
	assert.Len(t, *rec.Description, MaxStringLen)
}

func TestNormalize_GeometryPassthrough(t *testing.T) {
	geomVal := map[string]any{"type": "Polygon"}
	_, g := testNorm.Normalize("FIM_Database/Tier_1/S/x_metadata.json", map[string]any{
		"FIM_Geometry": geomVal,
	})
	assert.Equal(t, geomVal, g)

	_, g = testNorm.Normalize("FIM_Database/Tier_1/S/x_metadata.json", map[string]any{})
	assert.Nil(t, g)
}

func TestNormalize_IDFallsBackToKeyWithoutFileName(t *testing.T) {
	rec, _ := testNorm.Normalize("FIM_Database/Tier_1/S/event_metadata.json", map[string]any{})
	assert.Equal(t, "Tier_1/S/event_metadata", rec.ID)
}

func TestStableID(t *testing.T) {
	assert.Equal(t, "Tier_1/SiteA/foo", StableID("Tier_1", "SiteA", "foo.tif"))
	assert.Equal(t, "Tier_1/SiteA/foo", StableID("Tier_1", "SiteA", "deep/path/foo.tif"))
}
