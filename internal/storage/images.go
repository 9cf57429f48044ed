package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"path"
	"regexp"

	"github.com/google/uuid"
)

// ErrInvalidImage is returned when an upload is not an accepted image.
var ErrInvalidImage = errors.New("invalid image")

// imageTypes maps accepted sniffed content types to stored extensions.
var imageTypes = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/gif":  ".gif",
	"image/webp": ".webp",
}

var imageNamePattern = regexp.MustCompile(`^[0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12}\.(jpg|png|gif|webp)$`)

// Upload is an image file received from a client.
type Upload struct {
	Filename string
	Size     int64
	Reader   io.Reader
}

// Images stores recipe images under server-generated names.
type Images struct {
	storage  *Storage
	maxBytes int64
}

// NewImages constructs an image store that rejects uploads over maxBytes.
func NewImages(s *Storage, maxBytes int64) *Images {
	return &Images{storage: s, maxBytes: maxBytes}
}

// Accept validates the upload, stores it and returns its generated name.
func (i *Images) Accept(ctx context.Context, upload Upload) (string, error) {
	if upload.Reader == nil {
		return "", fmt.Errorf("%w: empty upload", ErrInvalidImage)
	}
	if upload.Size > i.maxBytes {
		return "", fmt.Errorf("%w: file exceeds %d bytes", ErrInvalidImage, i.maxBytes)
	}

	data, err := io.ReadAll(io.LimitReader(upload.Reader, i.maxBytes+1))
	if err != nil {
		return "", fmt.Errorf("read upload: %w", err)
	}
	if len(data) == 0 {
		return "", fmt.Errorf("%w: empty upload", ErrInvalidImage)
	}
	if int64(len(data)) > i.maxBytes {
		return "", fmt.Errorf("%w: file exceeds %d bytes", ErrInvalidImage, i.maxBytes)
	}

	contentType := http.DetectContentType(data)
	ext, ok := imageTypes[contentType]
	if !ok {
		return "", fmt.Errorf("%w: unsupported content type %s", ErrInvalidImage, contentType)
	}

	name := uuid.NewString() + ext
	if err := i.storage.Put(ctx, name, bytes.NewReader(data), int64(len(data)), contentType); err != nil {
		return "", fmt.Errorf("store image: %w", err)
	}
	return name, nil
}

// Discard removes a stored image. Missing images are not an error.
func (i *Images) Discard(ctx context.Context, name string) error {
	if name == "" {
		return nil
	}
	if err := i.storage.Delete(ctx, name); err != nil && !errors.Is(err, ErrObjectNotFound) {
		return err
	}
	return nil
}

// Open returns a reader for a stored image and its content type.
// Names that could not have been generated by Accept are reported as
// ErrObjectNotFound.
func (i *Images) Open(ctx context.Context, name string) (io.ReadCloser, string, error) {
	if !IsImageName(name) {
		return nil, "", ErrObjectNotFound
	}
	rc, err := i.storage.Get(ctx, name)
	if err != nil {
		return nil, "", err
	}
	contentType := mime.TypeByExtension(path.Ext(name))
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	return rc, contentType, nil
}

// IsImageName reports whether name has the shape of a generated image name.
func IsImageName(name string) bool {
	return imageNamePattern.MatchString(name)
}
