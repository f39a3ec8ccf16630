// Package tiles turns the spatial extract into vector tiles: a lean
// GeoJSON pass through tippecanoe, an MBTiles explode, and an upload with
// tile-correct headers.
package tiles

import (
	"encoding/json"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom/encoding/geojson"
	"go.uber.org/zap"

	"github.com/sdmlab/fim-catalog/internal/catalog"
)

// EncodeExtract writes the spatial extract as a GeoJSON FeatureCollection.
// Each feature carries the tile attribute whitelist plus the join key "id";
// the catalog snapshot holds everything else.
func EncodeExtract(features []catalog.ExtentFeature) ([]byte, error) {
	fc := geojson.FeatureCollection{Features: make([]*geojson.Feature, 0, len(features))}
	for _, f := range features {
		if f.Geometry == nil || f.Record == nil {
			continue
		}
		props := catalog.TileProperties(f.Record, f.Geometry)
		props["id"] = f.Record.ID
		fc.Features = append(fc.Features, &geojson.Feature{
			ID:         f.Record.ID,
			Geometry:   f.Geometry,
			Properties: props,
		})
	}
	data, err := json.Marshal(&fc)
	if err != nil {
		return nil, eris.Wrap(err, "tiles: encode extract")
	}
	return data, nil
}

// FieldList is the tile property whitelist plus any caller extras, deduped
// with whitelist order preserved. It drives both the merged GeoJSON and the
// tippecanoe --include arguments.
func FieldList(include []string) []string {
	fields := make([]string, 0, len(catalog.TileFields)+len(include))
	seen := make(map[string]bool, len(catalog.TileFields)+len(include))
	for _, f := range catalog.TileFields {
		fields = append(fields, f)
		seen[f] = true
	}
	for _, f := range include {
		if f != "" && !seen[f] {
			fields = append(fields, f)
			seen[f] = true
		}
	}
	return fields
}

// PrepareGeoJSON merges catalog fields into an existing extract and strips
// everything outside the whitelist. The join is a left join on the "id"
// property: features without a catalog record keep their extract
// attributes, features with one get the record's values plus the requested
// extras. Features without usable geometry are dropped. Returns the merged
// document and the number of features kept.
func PrepareGeoJSON(extract []byte, snap *catalog.Snapshot, include []string) ([]byte, int, error) {
	var fc geojson.FeatureCollection
	if err := json.Unmarshal(extract, &fc); err != nil {
		return nil, 0, eris.Wrap(err, "tiles: decode extract")
	}

	var byID map[string]*catalog.Record
	if snap != nil {
		byID = snap.RecordByID()
	}

	log := zap.L().With(zap.String("component", "tiles"))
	fields := FieldList(include)

	merged := geojson.FeatureCollection{Features: make([]*geojson.Feature, 0, len(fc.Features))}
	dropped := 0
	for _, f := range fc.Features {
		if f == nil || f.Geometry == nil || f.Geometry.Empty() {
			dropped++
			continue
		}

		id := featureID(f)
		rec := byID[id]

		var props map[string]any
		if rec != nil {
			props = catalog.TileProperties(rec, f.Geometry)
			for _, name := range include {
				if v, ok := catalog.CatalogField(rec, name); ok {
					props[name] = v
				}
			}
		} else {
			props = make(map[string]any, len(fields))
			for _, name := range fields {
				if v, ok := f.Properties[name]; ok {
					props[name] = v
				}
			}
		}

		merged.Features = append(merged.Features, &geojson.Feature{
			ID:         id,
			Geometry:   f.Geometry,
			Properties: props,
		})
	}

	if dropped > 0 {
		log.Info("dropped features without usable geometry", zap.Int("dropped", dropped))
	}
	if len(merged.Features) == 0 {
		return nil, 0, eris.New("tiles: extract has no tileable features")
	}

	data, err := json.Marshal(&merged)
	if err != nil {
		return nil, 0, eris.Wrap(err, "tiles: encode merged extract")
	}
	return data, len(merged.Features), nil
}

// featureID prefers the GeoJSON feature id, falling back to the "id"
// property the extract encoder writes.
func featureID(f *geojson.Feature) string {
	if f.ID != "" {
		return f.ID
	}
	if v, ok := f.Properties["id"].(string); ok {
		return v
	}
	return ""
}
