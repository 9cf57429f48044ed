package storage

import (
	"bytes"
	"context"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

type mapBackend struct {
	objects map[string][]byte
	closed  bool
}

func (m *mapBackend) EnsureBucket(context.Context) error { return nil }

func (m *mapBackend) Put(_ context.Context, key string, r io.Reader, _ int64, _ string) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	m.objects[key] = data
	return nil
}

func (m *mapBackend) Get(_ context.Context, key string) (io.ReadCloser, error) {
	data, ok := m.objects[key]
	if !ok {
		return nil, ErrObjectNotFound
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (m *mapBackend) Delete(_ context.Context, key string) error {
	if _, ok := m.objects[key]; !ok {
		return ErrObjectNotFound
	}
	delete(m.objects, key)
	return nil
}

func (m *mapBackend) Bucket() string { return "bucket" }

func (m *mapBackend) Close() error {
	m.closed = true
	return nil
}

func TestPrefixedStorageNamespacesKeys(t *testing.T) {
	ctx := context.Background()
	backend := &mapBackend{objects: map[string][]byte{}}
	s := NewPrefixedStorage(backend, "/images/")

	require.NoError(t, s.Put(ctx, "a.png", strings.NewReader("x"), 1, "image/png"))
	require.Contains(t, backend.objects, "images/a.png")

	rc, err := s.Get(ctx, "a.png")
	require.NoError(t, err)
	require.NoError(t, rc.Close())

	require.NoError(t, s.Delete(ctx, "a.png"))
	require.Empty(t, backend.objects)
	require.ErrorIs(t, s.Delete(ctx, "a.png"), ErrObjectNotFound)

	require.NoError(t, s.Close())
	require.True(t, backend.closed)
}

func TestStorageRejectsEmptyName(t *testing.T) {
	ctx := context.Background()
	s := NewStorage(&mapBackend{objects: map[string][]byte{}})

	require.Error(t, s.Put(ctx, " ", strings.NewReader("x"), 1, "image/png"))
	_, err := s.Get(ctx, "")
	require.ErrorIs(t, err, ErrObjectNotFound)
}
