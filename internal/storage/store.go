// Package storage wraps the S3-compatible object store holding FIM metadata
// and published catalog artifacts.
package storage

import (
	"bytes"
	"context"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
	"golang.org/x/time/rate"
)

// CacheControlDaily is the cache policy for published snapshot artifacts:
// consumers may serve them up to a day stale.
const CacheControlDaily = "public, max-age=86400, stale-while-revalidate=86400"

// PutOptions carries the object metadata that matters for published
// artifacts.
type PutOptions struct {
	ContentType     string
	ContentEncoding string
	CacheControl    string
}

// Store is the object-store surface the pipeline needs. Implementations
// must return listing keys in lexicographic order; id dedup determinism
// depends on it.
type Store interface {
	// Bucket names the backing bucket, used for URL derivation.
	Bucket() string

	// ListKeys enumerates object keys under prefix whose lowercase form
	// ends in suffix, sorted lexicographically.
	ListKeys(ctx context.Context, prefix, suffix string) ([]string, error)

	// Fetch retrieves an object decoded as UTF-8, replacing invalid byte
	// sequences rather than failing.
	Fetch(ctx context.Context, key string) (string, error)

	// Put writes an object with the given metadata.
	Put(ctx context.Context, key string, body []byte, opts PutOptions) error

	// Publish atomically replaces the object at key: the body is staged
	// under a temporary key and swapped in with a server-side copy, so a
	// crash mid-write cannot leave a half-written artifact at key.
	Publish(ctx context.Context, key string, body []byte, opts PutOptions) error
}

// Options configures the S3 store.
type Options struct {
	Endpoint     string // host[:port], defaults to AWS S3
	Region       string
	AccessKey    string // empty pair means anonymous access
	SecretKey    string
	Secure       bool
	FetchTimeout time.Duration // per-object bound, default 30s
	FetchPerSec  float64       // fetch rate limit, default 50
}

// S3Store talks to an S3-compatible endpoint via minio-go.
type S3Store struct {
	client  *minio.Client
	bucket  string
	limiter *rate.Limiter
	timeout time.Duration
}

// New connects an S3Store. Credentials may be empty for public buckets.
func New(bucket string, opts Options) (*S3Store, error) {
	if bucket == "" {
		return nil, eris.New("storage: bucket is required")
	}
	endpoint := opts.Endpoint
	if endpoint == "" {
		endpoint = "s3.amazonaws.com"
		opts.Secure = true
	}
	if opts.FetchTimeout == 0 {
		opts.FetchTimeout = 30 * time.Second
	}
	if opts.FetchPerSec == 0 {
		opts.FetchPerSec = 50
	}

	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(opts.AccessKey, opts.SecretKey, ""),
		Secure: opts.Secure,
		Region: opts.Region,
	})
	if err != nil {
		return nil, eris.Wrap(err, "storage: connect")
	}

	return &S3Store{
		client:  client,
		bucket:  bucket,
		limiter: rate.NewLimiter(rate.Limit(opts.FetchPerSec), int(opts.FetchPerSec)),
		timeout: opts.FetchTimeout,
	}, nil
}

// Bucket returns the backing bucket name.
func (s *S3Store) Bucket() string { return s.bucket }

// ListKeys enumerates matching keys under prefix in lexicographic order.
func (s *S3Store) ListKeys(ctx context.Context, prefix, suffix string) ([]string, error) {
	suffix = strings.ToLower(suffix)

	var keys []string
	for obj := range s.client.ListObjects(ctx, s.bucket, minio.ListObjectsOptions{
		Prefix:    prefix,
		Recursive: true,
	}) {
		if obj.Err != nil {
			return nil, eris.Wrapf(obj.Err, "storage: list %s/%s", s.bucket, prefix)
		}
		if suffix == "" || strings.HasSuffix(strings.ToLower(obj.Key), suffix) {
			keys = append(keys, obj.Key)
		}
	}

	sort.Strings(keys)
	return keys, nil
}

// Fetch retrieves one object as best-effort UTF-8 text. Encoding problems
// degrade to replacement characters; network problems surface as errors for
// the caller to record per object.
func (s *S3Store) Fetch(ctx context.Context, key string) (string, error) {
	if err := s.limiter.Wait(ctx); err != nil {
		return "", eris.Wrap(err, "storage: rate limit wait")
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	obj, err := s.client.GetObject(ctx, s.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return "", eris.Wrapf(err, "storage: get %s", key)
	}
	defer obj.Close()

	data, err := io.ReadAll(obj)
	if err != nil {
		return "", eris.Wrapf(err, "storage: read %s", key)
	}

	return DecodeUTF8(data), nil
}

// DecodeUTF8 decodes bytes as UTF-8 with BOM tolerance, replacing invalid
// sequences with U+FFFD. Decoding never fails a batch.
func DecodeUTF8(data []byte) string {
	decoder := unicode.BOMOverride(unicode.UTF8.NewDecoder())
	out, _, err := transform.Bytes(decoder, data)
	if err != nil {
		// The replacement decoder does not error on bad input; anything
		// else means keep what the raw bytes give us.
		return string(data)
	}
	return string(out)
}

// Put writes an object with metadata.
func (s *S3Store) Put(ctx context.Context, key string, body []byte, opts PutOptions) error {
	_, err := s.client.PutObject(ctx, s.bucket, key, bytes.NewReader(body), int64(len(body)),
		minio.PutObjectOptions{
			ContentType:     opts.ContentType,
			ContentEncoding: opts.ContentEncoding,
			CacheControl:    opts.CacheControl,
		})
	if err != nil {
		return eris.Wrapf(err, "storage: put %s", key)
	}
	return nil
}

// Publish stages body next to key and swaps it into place server-side.
func (s *S3Store) Publish(ctx context.Context, key string, body []byte, opts PutOptions) error {
	stage := key + ".staging"
	if err := s.Put(ctx, stage, body, opts); err != nil {
		return err
	}

	_, err := s.client.CopyObject(ctx,
		minio.CopyDestOptions{Bucket: s.bucket, Object: key},
		minio.CopySrcOptions{Bucket: s.bucket, Object: stage},
	)
	if err != nil {
		return eris.Wrapf(err, "storage: publish swap %s", key)
	}

	if err := s.client.RemoveObject(ctx, s.bucket, stage, minio.RemoveObjectOptions{}); err != nil {
		// The stage object is junk at this point, not a publication
		// failure.
		zap.L().Warn("storage: could not remove staging object",
			zap.String("key", stage), zap.Error(err))
	}
	return nil
}
