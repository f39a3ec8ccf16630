package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sdmlab/fim-catalog/internal/storage"
	"github.com/sdmlab/fim-catalog/internal/tiles"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve exploded tiles and the catalog locally",
	Long:  "Serves an exploded tile tree at /tiles/{z}/{x}/{y}.pbf with an LRU cache, plus /catalog.json and /health. Meant for local preview and small deployments; production tiles live on S3.",
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().IntP("port", "p", 0, "HTTP server port (0 = configured default)")
	serveCmd.Flags().String("tiles-dir", "out_tiles/tiles", "Exploded tile tree to serve")
	serveCmd.Flags().String("catalog", "", "Local catalog snapshot (default: fetch the configured core key)")
	serveCmd.Flags().Int("cache-size", 0, "Tile cache max entries (0 = configured default)")
	serveCmd.Flags().Duration("cache-ttl", 0, "Tile cache TTL (0 = configured default)")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if v, _ := cmd.Flags().GetInt("port"); v > 0 {
		cfg.Serve.Port = v
	}
	if v, _ := cmd.Flags().GetInt("cache-size"); v > 0 {
		cfg.Serve.CacheSize = v
	}
	if v, _ := cmd.Flags().GetDuration("cache-ttl"); v > 0 {
		cfg.Serve.CacheTTLSecs = int(v.Seconds())
	}
	if err := cfg.Validate("serve"); err != nil {
		return err
	}

	tilesDir, _ := cmd.Flags().GetString("tiles-dir")
	if _, err := os.Stat(tilesDir); err != nil {
		return eris.Wrapf(err, "tiles dir %s", tilesDir)
	}

	catalogSrc, err := newCatalogSource(cmd)
	if err != nil {
		return err
	}

	cache := tiles.NewCache(cfg.Serve.CacheSize,
		time.Duration(cfg.Serve.CacheTTLSecs)*time.Second, clockwork.NewRealClock())

	mux := http.NewServeMux()
	mux.HandleFunc("/tiles/", func(w http.ResponseWriter, r *http.Request) {
		serveTile(w, r, tilesDir, cache)
	})
	mux.HandleFunc("/catalog.json", func(w http.ResponseWriter, r *http.Request) {
		serveCatalog(w, r, catalogSrc)
	})
	mux.HandleFunc("/cache/stats", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(cache.Stats())
	})
	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	addr := fmt.Sprintf(":%d", cfg.Serve.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	zap.L().Info("starting tile server",
		zap.String("addr", addr),
		zap.String("tiles_dir", tilesDir),
		zap.Int("cache_size", cfg.Serve.CacheSize))

	go func() {
		<-ctx.Done()
		zap.L().Info("shutting down tile server")
		_ = srv.Close()
	}()

	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return eris.Wrap(err, "tile server")
	}
	return nil
}

// catalogSource resolves the catalog body on demand so the served document
// tracks republishes without a restart.
type catalogSource func(r *http.Request) ([]byte, error)

func newCatalogSource(cmd *cobra.Command) (catalogSource, error) {
	if path, _ := cmd.Flags().GetString("catalog"); path != "" {
		return func(*http.Request) ([]byte, error) {
			return os.ReadFile(path)
		}, nil
	}

	store, err := newStore(cfg, "")
	if err != nil {
		return nil, err
	}
	cached := storage.NewCached(store,
		time.Duration(cfg.Serve.CacheTTLSecs)*time.Second, clockwork.NewRealClock())
	return func(r *http.Request) ([]byte, error) {
		text, err := cached.Fetch(r.Context(), cfg.Catalog.CoreKey)
		if err != nil {
			return nil, err
		}
		return []byte(text), nil
	}, nil
}

// serveTile handles /tiles/{z}/{x}/{y}.pbf requests from the exploded tree.
func serveTile(w http.ResponseWriter, r *http.Request, tilesDir string, cache *tiles.Cache) {
	z, x, y, ok := parseTilePath(r.URL.Path)
	if !ok {
		http.Error(w, "invalid tile path", http.StatusBadRequest)
		return
	}

	if cached := cache.Get(z, x, y); cached != nil {
		writeTile(w, cached, "hit")
		return
	}

	path := filepath.Join(tilesDir, strconv.Itoa(z), strconv.Itoa(x), strconv.Itoa(y)+".pbf")
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		zap.L().Error("tile read failed",
			zap.Int("z", z), zap.Int("x", x), zap.Int("y", y), zap.Error(err))
		http.Error(w, "tile read failed", http.StatusInternalServerError)
		return
	}

	cache.Put(z, x, y, data)
	writeTile(w, data, "miss")
}

func writeTile(w http.ResponseWriter, data []byte, cacheState string) {
	w.Header().Set("Content-Type", "application/x-protobuf")
	w.Header().Set("Content-Encoding", "gzip")
	w.Header().Set("X-Cache", cacheState)
	_, _ = w.Write(data)
}

func serveCatalog(w http.ResponseWriter, r *http.Request, src catalogSource) {
	body, err := src(r)
	if err != nil {
		zap.L().Error("catalog read failed", zap.Error(err))
		http.Error(w, "catalog unavailable", http.StatusBadGateway)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(body)
}

// parseTilePath splits /tiles/{z}/{x}/{y}.pbf into its coordinates.
func parseTilePath(urlPath string) (z, x, y int, ok bool) {
	parts := strings.Split(strings.TrimPrefix(urlPath, "/tiles/"), "/")
	if len(parts) != 3 || !strings.HasSuffix(parts[2], ".pbf") {
		return 0, 0, 0, false
	}

	var err error
	if z, err = strconv.Atoi(parts[0]); err != nil {
		return 0, 0, 0, false
	}
	if x, err = strconv.Atoi(parts[1]); err != nil {
		return 0, 0, 0, false
	}
	if y, err = strconv.Atoi(strings.TrimSuffix(parts[2], ".pbf")); err != nil {
		return 0, 0, 0, false
	}
	if z < 0 || x < 0 || y < 0 {
		return 0, 0, 0, false
	}
	return z, x, y, true
}
