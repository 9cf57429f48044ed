package storage

import (
	"context"
	"fmt"

	"github.com/recipebox/apiserver/config"
)

// Open builds the configured backend and ensures its bucket exists.
func Open(ctx context.Context, cfg config.StorageConfig) (*Storage, error) {
	var (
		backend ObjectStorage
		err     error
	)
	switch cfg.Backend {
	case config.StorageLocal, "":
		backend, err = NewLocalClient(cfg.LocalDir)
	case config.StorageMinio:
		backend, err = NewMinioClient(cfg.Minio)
	case config.StorageGCS:
		backend, err = NewGCSClient(ctx, cfg.GCS)
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Backend)
	}
	if err != nil {
		return nil, fmt.Errorf("init %s storage: %w", cfg.Backend, err)
	}

	// Local files are served straight from the directory, so only object
	// stores get the prefix.
	s := NewStorage(backend)
	if cfg.Backend == config.StorageMinio || cfg.Backend == config.StorageGCS {
		s = NewPrefixedStorage(backend, cfg.Prefix)
	}
	if err := s.EnsureBucket(ctx); err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("ensure bucket %s: %w", s.Bucket(), err)
	}
	return s, nil
}
