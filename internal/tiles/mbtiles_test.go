package tiles

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeMBTiles(t *testing.T, path string, tiles map[[3]int][]byte) {
	t.Helper()
	db, err := sql.Open("sqlite", path)
	require.NoError(t, err)
	defer db.Close()

	_, err = db.Exec(`CREATE TABLE tiles (zoom_level INTEGER, tile_column INTEGER, tile_row INTEGER, tile_data BLOB)`)
	require.NoError(t, err)
	for zcr, data := range tiles {
		_, err = db.Exec(`INSERT INTO tiles VALUES (?, ?, ?, ?)`, zcr[0], zcr[1], zcr[2], data)
		require.NoError(t, err)
	}
}

func TestExplode_FlipsTMSRows(t *testing.T) {
	dir := t.TempDir()
	mbtiles := filepath.Join(dir, "fim_extents.mbtiles")
	// zoom 3 has 8 rows, so TMS row 5 is XYZ y=2.
	writeMBTiles(t, mbtiles, map[[3]int][]byte{
		{3, 1, 5}: {0xAA},
		{0, 0, 0}: {0xBB},
	})

	out := filepath.Join(dir, "tiles")
	count, err := Explode(context.Background(), mbtiles, out)
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	data, err := os.ReadFile(filepath.Join(out, "3", "1", "2.pbf"))
	require.NoError(t, err)
	assert.Equal(t, []byte{0xAA}, data)

	data, err = os.ReadFile(filepath.Join(out, "0", "0", "0.pbf"))
	require.NoError(t, err)
	assert.Equal(t, []byte{0xBB}, data)
}

func TestExplode_ReplacesExistingDir(t *testing.T) {
	dir := t.TempDir()
	mbtiles := filepath.Join(dir, "fim_extents.mbtiles")
	writeMBTiles(t, mbtiles, map[[3]int][]byte{{1, 0, 0}: {0x01}})

	out := filepath.Join(dir, "tiles")
	require.NoError(t, os.MkdirAll(filepath.Join(out, "9", "9"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(out, "9", "9", "9.pbf"), []byte{0xFF}, 0o644))

	_, err := Explode(context.Background(), mbtiles, out)
	require.NoError(t, err)

	_, err = os.Stat(filepath.Join(out, "9", "9", "9.pbf"))
	assert.True(t, os.IsNotExist(err), "stale tiles must not survive a rebuild")
}

func TestExplode_EmptyArchive(t *testing.T) {
	dir := t.TempDir()
	mbtiles := filepath.Join(dir, "empty.mbtiles")
	writeMBTiles(t, mbtiles, nil)

	count, err := Explode(context.Background(), mbtiles, filepath.Join(dir, "tiles"))
	require.NoError(t, err)
	assert.Zero(t, count)
}
