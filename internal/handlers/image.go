package handlers

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/recipebox/apiserver/internal/storage"
)

const imageCacheControl = "public, max-age=31536000, immutable"

// ImageOpener reads stored images by name.
type ImageOpener interface {
	Open(ctx context.Context, name string) (io.ReadCloser, string, error)
}

// ImageHandler serves uploaded recipe images.
type ImageHandler struct {
	images ImageOpener
}

func NewImageHandler(images ImageOpener) *ImageHandler {
	return &ImageHandler{images: images}
}

// ImageRouter registers the image route on the given router.
func ImageRouter(r chi.Router, handler *ImageHandler) {
	r.Get("/{name}", handler.ServeImage)
}

// ServeImage streams a stored image. Generated names never change content,
// so responses are cacheable indefinitely.
func (h *ImageHandler) ServeImage(w http.ResponseWriter, r *http.Request) {
	rc, contentType, err := h.images.Open(r.Context(), chi.URLParam(r, "name"))
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotFound) {
			writeError(w, http.StatusNotFound, "image not found")
			return
		}
		writeServiceError(w, r, err, "image")
		return
	}
	defer rc.Close()

	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Cache-Control", imageCacheControl)
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(http.StatusOK)
	_, _ = io.Copy(w, rc)
}
