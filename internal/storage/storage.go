package storage

import (
	"context"
	"errors"
	"io"
	"strings"
)

// ErrObjectNotFound is returned when a key does not exist in the backend.
var ErrObjectNotFound = errors.New("object not found")

// objectCacheControl is attached to uploaded objects. Stored names are
// never reused, so their content never changes.
const objectCacheControl = "public, max-age=31536000, immutable"

// ObjectStorage is implemented by every image backend.
type ObjectStorage interface {
	EnsureBucket(ctx context.Context) error
	Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error
	Get(ctx context.Context, key string) (io.ReadCloser, error)
	Delete(ctx context.Context, key string) error
	Bucket() string
	Close() error
}

// Storage forwards to a backend, keeping every key under an optional
// prefix so images can share a bucket with other data.
type Storage struct {
	backend ObjectStorage
	prefix  string
}

// NewStorage constructs a Storage that uses keys unchanged.
func NewStorage(backend ObjectStorage) *Storage {
	return NewPrefixedStorage(backend, "")
}

// NewPrefixedStorage constructs a Storage that stores name under
// "<prefix>/name".
func NewPrefixedStorage(backend ObjectStorage, prefix string) *Storage {
	prefix = strings.Trim(prefix, "/")
	if prefix != "" {
		prefix += "/"
	}
	return &Storage{backend: backend, prefix: prefix}
}

func (s *Storage) EnsureBucket(ctx context.Context) error {
	return s.backend.EnsureBucket(ctx)
}

func (s *Storage) Put(ctx context.Context, name string, r io.Reader, size int64, contentType string) error {
	key, err := s.key(name)
	if err != nil {
		return err
	}
	return s.backend.Put(ctx, key, r, size, contentType)
}

// Get opens a reader for name. It returns ErrObjectNotFound when the object
// does not exist.
func (s *Storage) Get(ctx context.Context, name string) (io.ReadCloser, error) {
	key, err := s.key(name)
	if err != nil {
		return nil, ErrObjectNotFound
	}
	return s.backend.Get(ctx, key)
}

// Delete removes name. Backends that can tell report a missing object as
// ErrObjectNotFound.
func (s *Storage) Delete(ctx context.Context, name string) error {
	key, err := s.key(name)
	if err != nil {
		return ErrObjectNotFound
	}
	return s.backend.Delete(ctx, key)
}

// Bucket returns the backend's bucket name.
func (s *Storage) Bucket() string {
	return s.backend.Bucket()
}

// Close releases the backend's client.
func (s *Storage) Close() error {
	return s.backend.Close()
}

func (s *Storage) key(name string) (string, error) {
	if strings.TrimSpace(name) == "" {
		return "", errors.New("object name is required")
	}
	return s.prefix + name, nil
}
