package tiles

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"
)

// Explode reads an MBTiles archive and writes its tiles out as
// {z}/{x}/{y}.pbf files under outDir for static hosting. MBTiles stores
// rows in TMS order, so the row index is flipped to the XYZ scheme on the
// way out. Tile blobs are written as-is; tippecanoe already gzips them.
// Any existing outDir is replaced. Returns the tile count.
func Explode(ctx context.Context, mbtilesPath, outDir string) (int, error) {
	db, err := sql.Open("sqlite", mbtilesPath+"?mode=ro")
	if err != nil {
		return 0, eris.Wrapf(err, "tiles: open %s", mbtilesPath)
	}
	defer db.Close()

	if err := os.RemoveAll(outDir); err != nil {
		return 0, eris.Wrapf(err, "tiles: clear %s", outDir)
	}

	rows, err := db.QueryContext(ctx,
		`SELECT zoom_level, tile_column, tile_row, tile_data FROM tiles`)
	if err != nil {
		return 0, eris.Wrapf(err, "tiles: read tiles from %s", mbtilesPath)
	}
	defer rows.Close()

	count := 0
	for rows.Next() {
		var z, col, row int
		var data []byte
		if err := rows.Scan(&z, &col, &row, &data); err != nil {
			return count, eris.Wrap(err, "tiles: scan tile row")
		}

		y := (1 << z) - 1 - row
		dir := filepath.Join(outDir, fmt.Sprintf("%d", z), fmt.Sprintf("%d", col))
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return count, eris.Wrapf(err, "tiles: mkdir %s", dir)
		}
		path := filepath.Join(dir, fmt.Sprintf("%d.pbf", y))
		if err := os.WriteFile(path, data, 0o644); err != nil {
			return count, eris.Wrapf(err, "tiles: write %s", path)
		}
		count++
	}
	if err := rows.Err(); err != nil {
		return count, eris.Wrap(err, "tiles: iterate tiles")
	}
	if count == 0 {
		zap.L().With(zap.String("component", "tiles")).
			Warn("mbtiles archive contained no tiles", zap.String("path", mbtilesPath))
	}
	return count, nil
}
