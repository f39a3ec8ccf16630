package main

import (
	"time"

	"github.com/sdmlab/fim-catalog/internal/config"
	"github.com/sdmlab/fim-catalog/internal/storage"
)

// newStore connects the configured object store.
func newStore(cfg *config.Config, bucket string) (storage.Store, error) {
	if bucket == "" {
		bucket = cfg.Storage.Bucket
	}
	return storage.New(bucket, storage.Options{
		Endpoint:     cfg.Storage.Endpoint,
		Region:       cfg.Storage.Region,
		AccessKey:    cfg.Storage.AccessKey,
		SecretKey:    cfg.Storage.SecretKey,
		Secure:       !cfg.Storage.Insecure,
		FetchTimeout: time.Duration(cfg.Storage.FetchTimeout) * time.Second,
		FetchPerSec:  float64(cfg.Storage.FetchPerSec),
	})
}
