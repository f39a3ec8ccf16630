package main

import (
	"context"
	"encoding/json"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sdmlab/fim-catalog/internal/catalog"
	"github.com/sdmlab/fim-catalog/internal/tiles"
)

var tilesCmd = &cobra.Command{
	Use:   "tiles",
	Short: "Build vector tiles from the spatial extract",
	Long:  "Merges catalog fields into the extent extract, builds an MBTiles archive with tippecanoe, explodes it to {z}/{x}/{y}.pbf, and optionally uploads the tree with tile-correct headers.",
	RunE:  runTiles,
}

func init() {
	tilesCmd.Flags().String("geojson-in", "", "Local extract GeoJSON (default: fetch the configured extract key)")
	tilesCmd.Flags().String("catalog", "", "Local catalog snapshot to merge by id (default: fetch the configured core key)")
	tilesCmd.Flags().StringSlice("include", nil, "Extra catalog fields to include in tiles (e.g. tif_url,json_url)")
	tilesCmd.Flags().String("out-dir", "out_tiles", "Output directory")
	tilesCmd.Flags().String("layer-name", "", "Vector tile layer name")
	tilesCmd.Flags().Int("min-zoom", -1, "Minimum zoom")
	tilesCmd.Flags().Int("max-zoom", -1, "Maximum zoom")
	tilesCmd.Flags().Bool("skip-extract", false, "Keep the MBTiles archive only, no {z}/{x}/{y} explode")
	tilesCmd.Flags().Bool("keep-temp", false, "Keep the merged GeoJSON")
	tilesCmd.Flags().Bool("no-upload", false, "Do not upload tiles to the store")
	tilesCmd.Flags().String("upload-prefix", "", "Override the tile upload prefix")
	rootCmd.AddCommand(tilesCmd)
}

func runTiles(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if v, _ := cmd.Flags().GetString("layer-name"); v != "" {
		cfg.Tiles.LayerName = v
	}
	if v, _ := cmd.Flags().GetInt("min-zoom"); v >= 0 {
		cfg.Tiles.MinZoom = v
	}
	if v, _ := cmd.Flags().GetInt("max-zoom"); v >= 0 {
		cfg.Tiles.MaxZoom = v
	}
	if v, _ := cmd.Flags().GetString("upload-prefix"); v != "" {
		cfg.Tiles.UploadPrefix = v
	}
	if err := cfg.Validate("tiles"); err != nil {
		return err
	}

	extract, err := loadExtract(ctx, cmd)
	if err != nil {
		return err
	}
	snap, err := loadSnapshot(ctx, cmd)
	if err != nil {
		return err
	}

	include, _ := cmd.Flags().GetStringSlice("include")
	merged, kept, err := tiles.PrepareGeoJSON(extract, snap, include)
	if err != nil {
		return err
	}
	zap.L().Info("extract merged", zap.Int("features", kept))

	outDir, _ := cmd.Flags().GetString("out-dir")
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return eris.Wrapf(err, "mkdir %s", outDir)
	}

	geojsonPath := filepath.Join(outDir, "fimextent.geojson")
	if err := os.WriteFile(geojsonPath, merged, 0o644); err != nil {
		return eris.Wrapf(err, "write %s", geojsonPath)
	}
	if keep, _ := cmd.Flags().GetBool("keep-temp"); !keep {
		defer os.Remove(geojsonPath)
	}

	mbtilesPath := filepath.Join(outDir, cfg.Tiles.LayerName+".mbtiles")
	tp := tiles.NewTippecanoe(cfg.Tiles.TippecanoePath)
	err = tp.Build(ctx, geojsonPath, mbtilesPath, tiles.BuildOpts{
		Layer:   cfg.Tiles.LayerName,
		MinZoom: cfg.Tiles.MinZoom,
		MaxZoom: cfg.Tiles.MaxZoom,
		Include: include,
	})
	if err != nil {
		return err
	}

	if skip, _ := cmd.Flags().GetBool("skip-extract"); skip {
		zap.L().Info("mbtiles ready, serve it with a tile server", zap.String("path", mbtilesPath))
		return nil
	}

	tilesDir := filepath.Join(outDir, "tiles")
	count, err := tiles.Explode(ctx, mbtilesPath, tilesDir)
	if err != nil {
		return err
	}
	zap.L().Info("tiles exploded", zap.Int("tiles", count), zap.String("dir", tilesDir))

	if noUpload, _ := cmd.Flags().GetBool("no-upload"); noUpload {
		return nil
	}
	store, err := newStore(cfg, "")
	if err != nil {
		return err
	}
	tpl, err := tiles.Upload(ctx, store, tilesDir, cfg.Tiles.UploadPrefix)
	if err != nil {
		return err
	}
	zap.L().Info("tiles ready", zap.String("url_template", tpl))
	return nil
}

// loadExtract reads the extent extract from a local file when --geojson-in
// is set, otherwise from the store.
func loadExtract(ctx context.Context, cmd *cobra.Command) ([]byte, error) {
	if path, _ := cmd.Flags().GetString("geojson-in"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, eris.Wrapf(err, "read %s", path)
		}
		return data, nil
	}
	store, err := newStore(cfg, "")
	if err != nil {
		return nil, err
	}
	text, err := store.Fetch(ctx, cfg.Catalog.ExtractKey)
	if err != nil {
		return nil, err
	}
	return []byte(text), nil
}

// loadSnapshot reads the catalog snapshot for the id join. A missing local
// path falls back to the store; an unreadable snapshot is fatal since tiles
// without catalog context are useless for filtering.
func loadSnapshot(ctx context.Context, cmd *cobra.Command) (*catalog.Snapshot, error) {
	var data []byte
	if path, _ := cmd.Flags().GetString("catalog"); path != "" {
		var err error
		data, err = os.ReadFile(path)
		if err != nil {
			return nil, eris.Wrapf(err, "read %s", path)
		}
	} else {
		store, err := newStore(cfg, "")
		if err != nil {
			return nil, err
		}
		text, err := store.Fetch(ctx, cfg.Catalog.CoreKey)
		if err != nil {
			return nil, err
		}
		data = []byte(text)
	}

	var snap catalog.Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, eris.Wrap(err, "decode catalog snapshot")
	}
	return &snap, nil
}
