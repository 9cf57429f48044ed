package storage

import (
	"bytes"
	"context"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

var pngHeader = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")

func newTestImages(t *testing.T, maxBytes int64) *Images {
	t.Helper()
	client, err := NewLocalClient(t.TempDir())
	require.NoError(t, err)
	return NewImages(NewStorage(client), maxBytes)
}

func TestImagesAcceptAndOpen(t *testing.T) {
	ctx := context.Background()
	images := newTestImages(t, 1<<10)

	name, err := images.Accept(ctx, Upload{Filename: "cake.PNG", Size: int64(len(pngHeader)), Reader: bytes.NewReader(pngHeader)})
	require.NoError(t, err)
	require.True(t, IsImageName(name), name)
	require.True(t, strings.HasSuffix(name, ".png"))

	rc, contentType, err := images.Open(ctx, name)
	require.NoError(t, err)
	defer rc.Close()
	require.Equal(t, "image/png", contentType)
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	require.Equal(t, pngHeader, data)

	require.NoError(t, images.Discard(ctx, name))
	require.NoError(t, images.Discard(ctx, name))
	_, _, err = images.Open(ctx, name)
	require.ErrorIs(t, err, ErrObjectNotFound)
}

func TestImagesAcceptRejects(t *testing.T) {
	ctx := context.Background()
	images := newTestImages(t, 32)

	_, err := images.Accept(ctx, Upload{Filename: "notes.txt", Reader: strings.NewReader("just some text")})
	require.ErrorIs(t, err, ErrInvalidImage)

	_, err = images.Accept(ctx, Upload{Filename: "empty.png", Reader: strings.NewReader("")})
	require.ErrorIs(t, err, ErrInvalidImage)

	big := append(append([]byte{}, pngHeader...), bytes.Repeat([]byte{0}, 64)...)
	_, err = images.Accept(ctx, Upload{Filename: "big.png", Reader: bytes.NewReader(big)})
	require.ErrorIs(t, err, ErrInvalidImage)

	_, err = images.Accept(ctx, Upload{Filename: "big.png", Size: 64, Reader: bytes.NewReader(pngHeader)})
	require.ErrorIs(t, err, ErrInvalidImage)
}

func TestImagesOpenRejectsForeignNames(t *testing.T) {
	images := newTestImages(t, 1<<10)
	for _, name := range []string{"../../etc/passwd", "cake.png", "0B2A8F1C-0000-4000-8000-000000000000.png"} {
		_, _, err := images.Open(context.Background(), name)
		require.ErrorIs(t, err, ErrObjectNotFound, name)
	}
}
