package main

import (
	"context"
	"encoding/json"
	"os"
	"os/signal"
	"syscall"

	"github.com/jonboulle/clockwork"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sdmlab/fim-catalog/internal/catalog"
	"github.com/sdmlab/fim-catalog/internal/storage"
	"github.com/sdmlab/fim-catalog/internal/tiles"
)

var buildCmd = &cobra.Command{
	Use:   "build",
	Short: "Build and publish the catalog snapshot",
	Long:  "Lists metadata objects under the configured prefix, normalizes every record, and publishes catalog_core.json plus the FIM_extents.geojson spatial extract. Individual bad objects are recorded in the snapshot, never fatal.",
	RunE:  runBuild,
}

func init() {
	buildCmd.Flags().String("bucket", "", "Override the configured bucket")
	buildCmd.Flags().String("prefix", "", "Override the metadata listing prefix")
	buildCmd.Flags().String("core-key", "", "Override the published catalog key")
	buildCmd.Flags().String("extract-key", "", "Override the published extract key")
	buildCmd.Flags().Float64("simplify-m", 0, "Simplification tolerance in meters (0 = configured default)")
	buildCmd.Flags().Bool("skip-geometry", false, "Skip geometry processing, catalog only")
	buildCmd.Flags().Bool("no-upload", false, "Do not publish artifacts to the store")
	buildCmd.Flags().String("out-core", "", "Also write the catalog snapshot to a local file")
	buildCmd.Flags().String("out-extract", "", "Also write the extract to a local file")
	buildCmd.Flags().Int("concurrency", 0, "Parallel metadata fetches (0 = configured default)")
	rootCmd.AddCommand(buildCmd)
}

func runBuild(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if v, _ := cmd.Flags().GetString("prefix"); v != "" {
		cfg.Catalog.Prefix = v
	}
	if v, _ := cmd.Flags().GetString("core-key"); v != "" {
		cfg.Catalog.CoreKey = v
	}
	if v, _ := cmd.Flags().GetString("extract-key"); v != "" {
		cfg.Catalog.ExtractKey = v
	}
	if cmd.Flags().Changed("simplify-m") {
		cfg.Catalog.SimplifyM, _ = cmd.Flags().GetFloat64("simplify-m")
	}
	if v, _ := cmd.Flags().GetInt("concurrency"); v > 0 {
		cfg.Catalog.Concurrency = v
	}
	if err := cfg.Validate("build"); err != nil {
		return err
	}

	bucket, _ := cmd.Flags().GetString("bucket")
	store, err := newStore(cfg, bucket)
	if err != nil {
		return err
	}

	skipGeometry, _ := cmd.Flags().GetBool("skip-geometry")
	builder := catalog.NewBuilder(store, clockwork.NewRealClock())
	res, err := builder.Run(ctx, catalog.BuildOpts{
		Prefix:          cfg.Catalog.Prefix,
		SimplifyMeters:  cfg.Catalog.SimplifyM,
		SkipGeometry:    skipGeometry,
		Concurrency:     cfg.Catalog.Concurrency,
		MaxErrorsLogged: cfg.Catalog.MaxErrorsLog,
	})
	if err != nil {
		return err
	}

	core, err := json.MarshalIndent(res.Snapshot, "", "  ")
	if err != nil {
		return eris.Wrap(err, "encode catalog snapshot")
	}

	var extract []byte
	if !skipGeometry {
		extract, err = tiles.EncodeExtract(res.Features)
		if err != nil {
			return err
		}
	}

	if out, _ := cmd.Flags().GetString("out-core"); out != "" {
		if err := os.WriteFile(out, core, 0o644); err != nil {
			return eris.Wrapf(err, "write %s", out)
		}
	}
	if out, _ := cmd.Flags().GetString("out-extract"); out != "" && extract != nil {
		if err := os.WriteFile(out, extract, 0o644); err != nil {
			return eris.Wrapf(err, "write %s", out)
		}
	}

	if noUpload, _ := cmd.Flags().GetBool("no-upload"); !noUpload {
		if err := publishArtifacts(ctx, store, core, extract); err != nil {
			return err
		}
	}

	zap.L().Info("catalog build complete",
		zap.String("run_id", res.RunID),
		zap.Int("listed", res.Listed),
		zap.Int("records", len(res.Snapshot.Records)),
		zap.Int("features", len(res.Features)),
		zap.Int("errors", len(res.Snapshot.Errors)))
	return nil
}

func publishArtifacts(ctx context.Context, store storage.Store, core, extract []byte) error {
	opts := storage.PutOptions{
		ContentType:  "application/json",
		CacheControl: storage.CacheControlDaily,
	}
	if err := store.Publish(ctx, cfg.Catalog.CoreKey, core, opts); err != nil {
		return err
	}
	if extract != nil {
		opts.ContentType = "application/geo+json"
		if err := store.Publish(ctx, cfg.Catalog.ExtractKey, extract, opts); err != nil {
			return err
		}
	}
	return nil
}
