package tiles

import (
	"bytes"
	"context"
	"os/exec"
	"strconv"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// ErrTippecanoeNotFound means the tippecanoe binary is missing from PATH.
// Tile builds cannot proceed without it.
var ErrTippecanoeNotFound = eris.New("tiles: tippecanoe not found in PATH, install it from https://github.com/felt/tippecanoe")

// Tippecanoe shells out to the tippecanoe CLI to build MBTiles from
// GeoJSON.
type Tippecanoe struct {
	binPath string
}

// NewTippecanoe creates a builder. If binPath is empty, "tippecanoe" is
// resolved from PATH.
func NewTippecanoe(binPath string) *Tippecanoe {
	if binPath == "" {
		binPath = "tippecanoe"
	}
	return &Tippecanoe{binPath: binPath}
}

// BuildOpts shape one tippecanoe invocation.
type BuildOpts struct {
	Layer   string
	MinZoom int
	MaxZoom int
	Include []string
}

// Build runs tippecanoe over geojsonPath and writes mbtilesPath. Only the
// whitelisted attributes survive into the tiles; everything else is
// excluded at build time so tile size does not depend on source metadata.
func (t *Tippecanoe) Build(ctx context.Context, geojsonPath, mbtilesPath string, opts BuildOpts) error {
	bin, err := exec.LookPath(t.binPath)
	if err != nil {
		return ErrTippecanoeNotFound
	}

	args := []string{
		"-o", mbtilesPath,
		"-l", opts.Layer,
		"-Z", strconv.Itoa(opts.MinZoom),
		"-z", strconv.Itoa(opts.MaxZoom),
		"--force",
		"--read-parallel",
		"--exclude-all",
	}
	for _, field := range FieldList(opts.Include) {
		args = append(args, "--include", field)
	}
	args = append(args,
		"--no-feature-limit", "--no-tile-size-limit",
		"--drop-densest-as-needed", "--drop-smallest-as-needed",
		"--coalesce", "--coalesce-densest-as-needed",
		"--detect-shared-borders",
		"--extend-zooms-if-still-dropping",
		"--generate-ids",
		geojsonPath,
	)

	zap.L().With(zap.String("component", "tiles")).Info("running tippecanoe",
		zap.String("bin", bin),
		zap.String("out", mbtilesPath),
		zap.String("layer", opts.Layer),
		zap.Int("min_zoom", opts.MinZoom),
		zap.Int("max_zoom", opts.MaxZoom))

	cmd := exec.CommandContext(ctx, bin, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return eris.Wrapf(err, "tiles: tippecanoe failed for %s: %s", geojsonPath, stderr.String())
	}
	return nil
}
