package catalog

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sdmlab/fim-catalog/internal/geometry"
	"github.com/sdmlab/fim-catalog/internal/lenientjson"
	"github.com/sdmlab/fim-catalog/internal/storage"
)

// MetadataSuffix selects metadata objects out of the storage listing.
const MetadataSuffix = "_metadata.json"

// BuildOpts configures one batch run.
type BuildOpts struct {
	Prefix          string
	SimplifyMeters  float64
	SkipGeometry    bool
	Concurrency     int // parallel fetch/parse fan-out, default 8
	MaxErrorsLogged int // error contexts surfaced in the summary, default 5
}

// BuildResult is the outcome of one batch run: the snapshot to publish, the
// extent features derived from the same input pass, and summary counts.
type BuildResult struct {
	RunID    string
	Snapshot *Snapshot
	Features []ExtentFeature
	Listed   int
}

// Builder runs the catalog batch: list, fetch, parse, normalize, dedupe,
// simplify, assemble. Per-object failures degrade completeness, never
// availability; only listing-level failures abort a run.
type Builder struct {
	store storage.Store
	clock clockwork.Clock
	norm  Normalizer
}

// NewBuilder creates a Builder over the given store.
func NewBuilder(store storage.Store, clock clockwork.Clock) *Builder {
	return &Builder{
		store: store,
		clock: clock,
		norm:  Normalizer{Bucket: store.Bucket()},
	}
}

// outcome is one object's result, slotted by listing index so the parallel
// phase never races the deterministic ordering.
type outcome struct {
	rec  *Record
	geom *ExtentFeature // geometry attached later, after id assignment
	err  error
}

// Run executes the batch and assembles the snapshot.
func (b *Builder) Run(ctx context.Context, opts BuildOpts) (*BuildResult, error) {
	if opts.Concurrency <= 0 {
		opts.Concurrency = 8
	}
	if opts.MaxErrorsLogged <= 0 {
		opts.MaxErrorsLogged = 5
	}

	runID := uuid.NewString()
	log := zap.L().With(
		zap.String("component", "catalog.builder"),
		zap.String("run_id", runID),
	)

	keys, err := b.store.ListKeys(ctx, opts.Prefix, MetadataSuffix)
	if err != nil {
		return nil, eris.Wrapf(err, "catalog: list metadata under %s/%s", b.store.Bucket(), opts.Prefix)
	}
	log.Info("listed metadata objects",
		zap.Int("count", len(keys)),
		zap.String("prefix", opts.Prefix),
	)

	// Fetch, parse, normalize, and simplify fan out; each worker owns its
	// listing slot, so accumulation order stays deterministic.
	outcomes := make([]outcome, len(keys))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(opts.Concurrency)

	for i, key := range keys {
		g.Go(func() error {
			outcomes[i] = b.processOne(gctx, key, opts)
			return gctx.Err()
		})
	}
	if err := g.Wait(); err != nil {
		return nil, eris.Wrap(err, "catalog: batch cancelled")
	}

	// Serial accumulation: id dedup and the error list are single-writer.
	alloc := NewIDAllocator()
	snapshot := &Snapshot{
		SchemaVersion: SchemaVersion,
		UpdatedAt:     b.clock.Now().UTC().Truncate(time.Second).Format(time.RFC3339),
		Records:       []*Record{},
		Errors:        []ErrorEntry{},
	}
	var features []ExtentFeature

	for i, out := range outcomes {
		if out.err != nil {
			snapshot.Errors = append(snapshot.Errors, ErrorEntry{
				Key:     keys[i],
				Message: out.err.Error(),
			})
			continue
		}

		out.rec.ID = alloc.Assign(out.rec.ID)
		out.rec.FeatureID = out.rec.ID
		snapshot.Records = append(snapshot.Records, out.rec)

		if out.geom != nil {
			out.geom.Record = out.rec
			features = append(features, *out.geom)
		}
	}

	log.Info("batch complete",
		zap.Int("listed", len(keys)),
		zap.Int("records", len(snapshot.Records)),
		zap.Int("features", len(features)),
		zap.Int("errors", len(snapshot.Errors)),
	)
	for i, e := range snapshot.Errors {
		if i >= opts.MaxErrorsLogged {
			log.Warn("additional errors suppressed",
				zap.Int("suppressed", len(snapshot.Errors)-opts.MaxErrorsLogged))
			break
		}
		log.Warn("object skipped", zap.String("key", e.Key), zap.String("error", e.Message))
	}

	return &BuildResult{
		RunID:    runID,
		Snapshot: snapshot,
		Features: features,
		Listed:   len(keys),
	}, nil
}

// processOne handles a single metadata object end to end. Every failure
// mode, including a panic out of normalization, downgrades to a per-object
// error.
func (b *Builder) processOne(ctx context.Context, key string, opts BuildOpts) (out outcome) {
	defer func() {
		if r := recover(); r != nil {
			out = outcome{err: fmt.Errorf("panic during normalization: %v", r)}
		}
	}()

	raw, err := b.store.Fetch(ctx, key)
	if err != nil {
		return outcome{err: err}
	}

	parsed, err := lenientjson.Parse(raw, fmt.Sprintf("s3://%s/%s", b.store.Bucket(), key))
	if err != nil {
		return outcome{err: err}
	}

	meta, ok := parsed.(map[string]any)
	if !ok {
		return outcome{err: fmt.Errorf("metadata document is not a JSON object")}
	}

	rec, rawGeom := b.norm.Normalize(key, meta)

	var feature *ExtentFeature
	if !opts.SkipGeometry && rawGeom != nil {
		g, err := geometry.FromGeoJSONValue(rawGeom)
		if err != nil {
			// Unreadable geometry loses the feature, not the record.
			zap.L().Debug("catalog: unreadable geometry",
				zap.String("key", key), zap.Error(err))
		} else if simp := geometry.Simplify(g, opts.SimplifyMeters); simp != nil {
			feature = &ExtentFeature{Geometry: simp}
		}
	}

	return outcome{rec: rec, geom: feature}
}
