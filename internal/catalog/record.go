// Package catalog turns loosely-structured FIM metadata objects into the
// stable record schema published as the catalog snapshot, and owns the
// attribute schema shared with the tile builder.
package catalog

import (
	"encoding/json"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
)

// SchemaVersion identifies the published snapshot schema.
const SchemaVersion = "1.1"

// MaxStringLen bounds every string copied from source metadata, guarding
// against pathological documents.
const MaxStringLen = 2000

// Record is the normalized catalog entry for one metadata object. Pointer
// fields encode "absent in source" as JSON null, matching the published
// schema. Dates and return periods are mutually exclusive: Tier_4 records
// carry only ReturnPeriod, every other tier only DateYMD.
type Record struct {
	ID        string `json:"id"`
	FeatureID string `json:"feature_id"`
	Tier      string `json:"tier"`
	Site      string `json:"site"`
	SiteID    string `json:"site_id"`

	DateYMD      *string `json:"date_ymd"`
	EventTS      *int64  `json:"event_ts"`
	DateRaw      *string `json:"date_raw"`
	ReturnPeriod *int    `json:"return_period"`

	CentroidLon float64 `json:"centroid_lon"`
	CentroidLat float64 `json:"centroid_lat"`

	FileName     *string  `json:"file_name"`
	ResolutionM  *float64 `json:"resolution_m"`
	State        *string  `json:"state"`
	Description  *string  `json:"description"`
	RiverBasin   *string  `json:"river_basin"`
	Source       *string  `json:"source"`
	AccessRights *string  `json:"access_rights"`
	Quality      string   `json:"quality"`
	References   []string `json:"references"`

	HUC2  string `json:"huc2,omitempty"`
	HUC4  string `json:"huc4,omitempty"`
	HUC6  string `json:"huc6,omitempty"`
	HUC8  string `json:"huc8,omitempty"`
	HUC10 string `json:"huc10,omitempty"`
	HUC12 string `json:"huc12,omitempty"`

	TifURL      *string `json:"tif_url"`
	JSONURL     string  `json:"json_url"`
	MetadataURL string  `json:"metadata_url"`
	GeomVersion int     `json:"geom_version"`
	S3Key       string  `json:"s3_key"`
	S3Prefix    string  `json:"s3_prefix"`
}

// ErrorEntry records a per-object failure as the published [key, message]
// pair.
type ErrorEntry struct {
	Key     string
	Message string
}

// MarshalJSON encodes the entry as a two-element array.
func (e ErrorEntry) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]string{e.Key, e.Message})
}

// UnmarshalJSON decodes the two-element array form.
func (e *ErrorEntry) UnmarshalJSON(data []byte) error {
	var pair [2]string
	if err := json.Unmarshal(data, &pair); err != nil {
		return eris.Wrap(err, "catalog: decode error entry")
	}
	e.Key, e.Message = pair[0], pair[1]
	return nil
}

// Snapshot is the unit of publication: one immutable catalog document that
// wholesale-replaces its predecessor.
type Snapshot struct {
	SchemaVersion string       `json:"schema_version"`
	UpdatedAt     string       `json:"updated_at"`
	Records       []*Record    `json:"records"`
	Errors        []ErrorEntry `json:"errors"`
}

// RecordByID builds the join index used when merging catalog fields into
// tile features. First occurrence wins, mirroring the dedup order.
func (s *Snapshot) RecordByID() map[string]*Record {
	idx := make(map[string]*Record, len(s.Records))
	for _, r := range s.Records {
		if _, ok := idx[r.ID]; !ok {
			idx[r.ID] = r
		}
	}
	return idx
}

// ExtentFeature pairs a record with its simplified WGS84 geometry. Only
// records with usable geometry produce one.
type ExtentFeature struct {
	Record   *Record
	Geometry geom.T
}
