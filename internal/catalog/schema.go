package catalog

import (
	"github.com/twpayne/go-geom"

	"github.com/sdmlab/fim-catalog/internal/geometry"
)

// TileFields is the attribute whitelist for tile output, defined once and
// consumed by both the extract encoder and the tippecanoe invocation. Order
// is the published property order. Tile payload size depends on this list
// staying minimal: anything not listed here is dropped from tiles.
var TileFields = []string{
	"feature_id", "site_id", "tier",
	"event_date", "event_ts",
	"metadata_url", "s3_prefix",
	"geom_version",
	"resolution_m", "huc8", "state", "basin", "source", "access_rights",
	"centroid", "bbox",
}

// TileProperties maps a record plus its geometry to the whitelisted tile
// attributes. Every TileFields entry must have a key here; the schema test
// fails on drift between the two.
func TileProperties(rec *Record, g geom.T) map[string]any {
	var centroid any
	if lon, lat, ok := geometry.Centroid(g); ok {
		centroid = []float64{lon, lat}
	} else {
		centroid = []float64{rec.CentroidLon, rec.CentroidLat}
	}

	var bbox any
	if b := geometry.BBox(g); b != nil {
		bbox = b
	}

	return map[string]any{
		"feature_id":    rec.FeatureID,
		"site_id":       rec.SiteID,
		"tier":          rec.Tier,
		"event_date":    nullable(rec.DateYMD),
		"event_ts":      nullable(rec.EventTS),
		"metadata_url":  rec.MetadataURL,
		"s3_prefix":     rec.S3Prefix,
		"geom_version":  rec.GeomVersion,
		"resolution_m":  nullable(rec.ResolutionM),
		"huc8":          rec.HUC8,
		"state":         nullable(rec.State),
		"basin":         nullable(rec.RiverBasin),
		"source":        nullable(rec.Source),
		"access_rights": nullable(rec.AccessRights),
		"centroid":      centroid,
		"bbox":          bbox,
	}
}

// CatalogField resolves a tile-extras field name (as passed to --include)
// to its value on a record. Returns ok=false for names the record schema
// does not carry.
func CatalogField(rec *Record, name string) (any, bool) {
	switch name {
	case "tif_url":
		return nullable(rec.TifURL), true
	case "json_url":
		return rec.JSONURL, true
	case "file_name":
		return nullable(rec.FileName), true
	case "description":
		return nullable(rec.Description), true
	case "quality":
		return rec.Quality, true
	case "references":
		return rec.References, true
	case "s3_key":
		return rec.S3Key, true
	case "date_raw":
		return nullable(rec.DateRaw), true
	case "return_period":
		return nullable(rec.ReturnPeriod), true
	case "huc2":
		return rec.HUC2, true
	case "huc4":
		return rec.HUC4, true
	case "huc6":
		return rec.HUC6, true
	case "huc10":
		return rec.HUC10, true
	case "huc12":
		return rec.HUC12, true
	case "centroid_lon":
		return rec.CentroidLon, true
	case "centroid_lat":
		return rec.CentroidLat, true
	default:
		return nil, false
	}
}

// nullable flattens typed nil pointers into untyped nils so JSON encoding
// emits null instead of a zero value.
func nullable[T any](p *T) any {
	if p == nil {
		return nil
	}
	return *p
}
