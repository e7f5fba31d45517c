// Package media implements the default media backend: metadata probing,
// thumbnail generation, and perceptual hashing for the still-image formats
// the Go standard library decodes. Video inputs are recognized by extension
// but require an external transcoder backend; this implementation reports
// them unsupported and the enrichment jobs count them as failed items.
package media

import (
	"context"
	"fmt"
	"image"
	_ "image/gif"
	"image/jpeg"
	_ "image/png"
	"os"
	"path/filepath"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/imago/internal/interfaces"
	"github.com/ternarybob/imago/internal/models"
)

// Backend is the standard-library media backend.
type Backend struct {
	logger arbor.ILogger
}

// NewBackend creates the default media backend.
func NewBackend(logger arbor.ILogger) interfaces.MediaBackend {
	return &Backend{logger: logger}
}

// GetMetadata probes width, height and format. Unreadable or undecodable
// inputs return zero metadata with the content type still derived from the
// extension, so the caller can persist what it knows.
func (b *Backend) GetMetadata(ctx context.Context, path string) (interfaces.MediaMetadata, error) {
	meta := interfaces.MediaMetadata{
		ContentType: models.ContentTypeForPath(path),
	}
	if err := ctx.Err(); err != nil {
		return meta, err
	}

	f, err := os.Open(path)
	if err != nil {
		return meta, nil
	}
	defer f.Close()

	config, format, err := image.DecodeConfig(f)
	if err != nil {
		return meta, nil
	}

	meta.Width = config.Width
	meta.Height = config.Height
	meta.Format = format
	return meta, nil
}

// GenerateThumbnail writes a JPEG still with the longest edge clamped to
// maxEdge, aspect preserved. The destination directory is created as
// needed; an empty or missing output is a backend failure.
func (b *Backend) GenerateThumbnail(ctx context.Context, src, dst string, maxEdge int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if maxEdge < 1 {
		return fmt.Errorf("%w: thumbnail max edge %d", interfaces.ErrBackend, maxEdge)
	}

	img, err := decodeImage(src)
	if err != nil {
		return fmt.Errorf("%w: decode %s: %v", interfaces.ErrBackend, src, err)
	}

	thumb := scaleToFit(img, maxEdge)

	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return fmt.Errorf("%w: create thumbnail directory: %v", interfaces.ErrBackend, err)
	}

	out, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("%w: create %s: %v", interfaces.ErrBackend, dst, err)
	}
	if err := jpeg.Encode(out, thumb, &jpeg.Options{Quality: 85}); err != nil {
		out.Close()
		os.Remove(dst)
		return fmt.Errorf("%w: encode %s: %v", interfaces.ErrBackend, dst, err)
	}
	if err := out.Close(); err != nil {
		return fmt.Errorf("%w: close %s: %v", interfaces.ErrBackend, dst, err)
	}

	info, err := os.Stat(dst)
	if err != nil || info.Size() == 0 {
		os.Remove(dst)
		return fmt.Errorf("%w: thumbnail output %s is empty or missing", interfaces.ErrBackend, dst)
	}
	return nil
}

// ComputePerceptualHash returns the 256-bit difference hash of an image as
// 64 lowercase hex digits. Deterministic for identical input bytes; small
// visual changes flip few bits.
func (b *Backend) ComputePerceptualHash(ctx context.Context, path string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	img, err := decodeImage(path)
	if err != nil {
		return "", fmt.Errorf("%w: decode %s: %v", interfaces.ErrBackend, path, err)
	}
	return differenceHash256(img), nil
}

func decodeImage(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return nil, err
	}
	return img, nil
}
