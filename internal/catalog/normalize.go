package catalog

import (
	"encoding/json"
	"fmt"
	"path"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Source-field alias tables, in resolution priority order. The metadata
// corpus renamed fields across tiers and over time; first present non-null
// value wins.
var (
	fileNameAliases   = []string{"File_Name", "File Name", "File name"}
	resolutionAliases = []string{"Resolution in meter", "Resolution (m)", "resolution_m"}
	basinAliases      = []string{"River Basin Name", "River Basin"}
	dateAliases       = []string{
		"Date of Flood /Synthetic Flooding Event (return period (years))",
		"Date of Flood",
		"Date",
	}

	centroidField = "Location of the centroid of the flood map"
	extentField   = "Extent"
	geometryField = "FIM_Geometry"

	hucLevels = []string{"HUC2", "HUC4", "HUC6", "HUC8", "HUC10", "HUC12"}

	tierRe     = regexp.MustCompile(`(?i)^\s*tier[_\s-]*(\d)\b`)
	digitRunRe = regexp.MustCompile(`\d+`)
)

// Normalizer maps raw metadata documents to Records using the bucket's
// public URL convention. Pure over its inputs.
type Normalizer struct {
	Bucket string
}

// HTTPURL derives the public object URL for a storage key.
func HTTPURL(bucket, key string) string {
	return fmt.Sprintf("https://%s.s3.amazonaws.com/%s", bucket, key)
}

// Normalize builds a Record from one parsed metadata document. The second
// return value is the raw FIM_Geometry value, if any; geometry handling is
// the caller's concern. Normalize never fails: unparseable fields default,
// they do not error.
func (n Normalizer) Normalize(metaKey string, meta map[string]any) (*Record, any) {
	parts := strings.Split(metaKey, "/")
	tier := tierFromSegments(parts)
	site := "Unknown_Site"
	if len(parts) >= 2 {
		site = parts[len(parts)-2]
	}
	folder := strings.Join(parts[:len(parts)-1], "/")

	fileName := stringField(meta, fileNameAliases...)
	var tifURL *string
	if fileName != nil {
		u := HTTPURL(n.Bucket, folder+"/"+*fileName)
		tifURL = &u
	}
	jsonURL := HTTPURL(n.Bucket, metaKey)

	dateRaw := rawField(meta, dateAliases...)
	var dateYMD *string
	var eventTS *int64
	var returnPeriod *int
	if tier == "Tier_4" {
		returnPeriod = extractReturnPeriod(dateRaw)
	} else {
		dateYMD = extractDateISO(dateRaw)
		if dateYMD != nil {
			ts, err := strconv.ParseInt(strings.ReplaceAll(*dateYMD, "-", ""), 10, 64)
			if err == nil {
				eventTS = &ts
			}
		}
	}

	lon, lat := centroidFromMeta(meta)

	rec := &Record{
		Tier:         tier,
		Site:         site,
		SiteID:       site,
		DateYMD:      dateYMD,
		EventTS:      eventTS,
		DateRaw:      stringify(dateRaw),
		ReturnPeriod: returnPeriod,
		CentroidLon:  lon,
		CentroidLat:  lat,
		FileName:     fileName,
		ResolutionM:  floatField(meta, resolutionAliases...),
		State:        stringField(meta, "State"),
		Description:  stringField(meta, "Description"),
		RiverBasin:   stringField(meta, basinAliases...),
		Source:       stringField(meta, "Source"),
		AccessRights: stringField(meta, "Access_Rights"),
		References:   coerceList(meta["References"]),
		TifURL:       tifURL,
		JSONURL:      jsonURL,
		MetadataURL:  jsonURL,
		GeomVersion:  1,
		S3Key:        metaKey,
		S3Prefix:     folder,
	}

	if q := stringField(meta, "Quality"); q != nil {
		rec.Quality = *q
	} else {
		rec.Quality = tier
	}

	hucs := []*string{&rec.HUC2, &rec.HUC4, &rec.HUC6, &rec.HUC8, &rec.HUC10, &rec.HUC12}
	for i, level := range hucLevels {
		if v, ok := meta[level]; ok && v != nil {
			*hucs[i] = truncate(valueString(v))
		}
	}

	base := metaKey
	if fileName != nil {
		base = *fileName
	}
	rec.ID = StableID(tier, site, base)
	rec.FeatureID = rec.ID

	return rec, meta[geometryField]
}

// tierFromSegments finds the first path segment naming a tier and
// canonicalizes it to Tier_<digit>. A tier-ish segment that does not match
// the pattern passes through trimmed; no tier segment at all yields
// Unknown_Tier.
func tierFromSegments(parts []string) string {
	for _, p := range parts {
		if !strings.HasPrefix(strings.ToLower(p), "tier") {
			continue
		}
		if m := tierRe.FindStringSubmatch(p); m != nil {
			return "Tier_" + m[1]
		}
		return strings.TrimSpace(p)
	}
	return "Unknown_Tier"
}

// StableID derives the composite identifier from tier, site, and the file
// name (or full key) with its extension stripped.
func StableID(tier, site, fileOrKey string) string {
	base := path.Base(fileOrKey)
	base = strings.TrimSuffix(base, path.Ext(base))
	return tier + "/" + site + "/" + base
}

// extractDateISO pulls an exactly-eight-digit run out of free text and
// parses it as YYYYMMDD. Runs adjacent to other digits do not count, and an
// unparseable run yields nil, not an error.
func extractDateISO(v any) *string {
	run := digitRun(v, 8, 8)
	if run == "" {
		return nil
	}
	t, err := time.Parse("20060102", run)
	if err != nil {
		return nil
	}
	iso := t.Format("2006-01-02")
	return &iso
}

// extractReturnPeriod pulls a 2-4 digit run as a return period in years.
// Text containing an eight-digit run reads as a date, never a return
// period.
func extractReturnPeriod(v any) *int {
	if digitRun(v, 8, 8) != "" {
		return nil
	}
	run := digitRun(v, 2, 4)
	if run == "" {
		return nil
	}
	n, err := strconv.Atoi(run)
	if err != nil {
		return nil
	}
	return &n
}

// digitRun returns the first maximal digit run in v's textual form whose
// length falls in [minLen, maxLen]. Non-string values are matched against
// their JSON form, mirroring how the source fields mix types.
func digitRun(v any, minLen, maxLen int) string {
	s := textOf(v)
	if s == "" {
		return ""
	}
	for _, run := range digitRunRe.FindAllString(s, -1) {
		if len(run) >= minLen && len(run) <= maxLen {
			return run
		}
	}
	return ""
}

func textOf(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	default:
		data, err := json.Marshal(t)
		if err != nil {
			return ""
		}
		return string(data)
	}
}

// centroidFromMeta resolves the record centroid: explicit [lon, lat] pair,
// then extent midpoint, then the (0, 0) unknown-location sentinel.
func centroidFromMeta(meta map[string]any) (lon, lat float64) {
	if pair, ok := meta[centroidField].([]any); ok && len(pair) >= 2 {
		x, okX := toFloat(pair[0])
		y, okY := toFloat(pair[1])
		if okX && okY {
			return x, y
		}
	}

	if ext, ok := meta[extentField].(map[string]any); ok {
		xmin, okA := toFloat(ext["xmin"])
		ymin, okB := toFloat(ext["ymin"])
		xmax, okC := toFloat(ext["xmax"])
		ymax, okD := toFloat(ext["ymax"])
		if okA && okB && okC && okD {
			return (xmin + xmax) / 2, (ymin + ymax) / 2
		}
	}

	return 0, 0
}

// rawField returns the first present non-null value among the aliases,
// untyped.
func rawField(meta map[string]any, names ...string) any {
	for _, name := range names {
		if v, ok := meta[name]; ok && v != nil {
			return v
		}
	}
	return nil
}

// stringField resolves aliases to a truncated string, nil when absent.
func stringField(meta map[string]any, names ...string) *string {
	v := rawField(meta, names...)
	if v == nil {
		return nil
	}
	s := truncate(valueString(v))
	return &s
}

// floatField resolves aliases to a float, tolerating numeric strings.
func floatField(meta map[string]any, names ...string) *float64 {
	v := rawField(meta, names...)
	if v == nil {
		return nil
	}
	f, ok := toFloat(v)
	if !ok {
		return nil
	}
	return &f
}

// stringify renders any value as a truncated display string, nil for nil.
func stringify(v any) *string {
	if v == nil {
		return nil
	}
	s := truncate(textOf(v))
	return &s
}

// coerceList normalizes absent/scalar/list values into an ordered string
// slice, never nil.
func coerceList(v any) []string {
	switch t := v.(type) {
	case nil:
		return []string{}
	case []any:
		out := make([]string, 0, len(t))
		for _, item := range t {
			out = append(out, truncate(valueString(item)))
		}
		return out
	default:
		return []string{truncate(valueString(v))}
	}
}

// valueString renders scalars the way the source wrote them: json.Number
// keeps its original digits, which is what preserves HUC leading zeros.
func valueString(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case json.Number:
		return t.String()
	case bool:
		return strconv.FormatBool(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	default:
		return textOf(v)
	}
}

func toFloat(v any) (float64, bool) {
	switch t := v.(type) {
	case json.Number:
		f, err := t.Float64()
		return f, err == nil
	case float64:
		return t, true
	case int:
		return float64(t), true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		return f, err == nil
	default:
		return 0, false
	}
}

func truncate(s string) string {
	if len(s) > MaxStringLen {
		return s[:MaxStringLen]
	}
	return s
}
