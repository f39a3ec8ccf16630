package tiles

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sdmlab/fim-catalog/internal/storage"
)

// headersFor picks object headers by extension. Protobuf tiles come out of
// tippecanoe gzip-compressed, so they need Content-Encoding for browsers to
// transparently inflate them.
func headersFor(name string) storage.PutOptions {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".pbf":
		return storage.PutOptions{
			ContentType:     "application/x-protobuf",
			ContentEncoding: "gzip",
			CacheControl:    storage.CacheControlDaily,
		}
	case ".json":
		return storage.PutOptions{
			ContentType:  "application/json",
			CacheControl: storage.CacheControlDaily,
		}
	default:
		return storage.PutOptions{ContentType: "application/octet-stream"}
	}
}

// Upload pushes an exploded tile directory to the store under
// prefix + "/tiles/" and returns the {z}/{x}/{y} URL template clients
// consume.
func Upload(ctx context.Context, store storage.Store, dir, prefix string) (string, error) {
	log := zap.L().With(zap.String("component", "tiles"))

	uploaded := 0
	err := filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(dir, p)
		if err != nil {
			return err
		}
		body, err := os.ReadFile(p)
		if err != nil {
			return eris.Wrapf(err, "tiles: read %s", p)
		}
		key := path.Join(prefix, "tiles", filepath.ToSlash(rel))
		if err := store.Put(ctx, key, body, headersFor(p)); err != nil {
			return err
		}
		uploaded++
		return nil
	})
	if err != nil {
		return "", eris.Wrapf(err, "tiles: upload %s", dir)
	}

	tpl := fmt.Sprintf("https://%s.s3.amazonaws.com/%s/tiles/{z}/{x}/{y}.pbf", store.Bucket(), prefix)
	log.Info("tiles uploaded", zap.Int("objects", uploaded), zap.String("url_template", tpl))
	return tpl, nil
}
