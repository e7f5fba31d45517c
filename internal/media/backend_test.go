package media

import (
	"context"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/imago/internal/interfaces"
)

// writeGradientPNG writes a w x h horizontal gradient test image.
func writeGradientPNG(t *testing.T, dir, name string, w, h int) string {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			v := uint8(x * 255 / w)
			img.SetRGBA(x, y, color.RGBA{R: v, G: v, B: v, A: 255})
		}
	}

	path := filepath.Join(dir, name)
	f, err := os.Create(path)
	require.NoError(t, err)
	require.NoError(t, png.Encode(f, img))
	require.NoError(t, f.Close())
	return path
}

func TestBackend_GetMetadata(t *testing.T) {
	backend := NewBackend(arbor.NewLogger())
	ctx := context.Background()
	dir := t.TempDir()

	path := writeGradientPNG(t, dir, "pic.png", 320, 200)
	meta, err := backend.GetMetadata(ctx, path)
	require.NoError(t, err)
	assert.Equal(t, 320, meta.Width)
	assert.Equal(t, 200, meta.Height)
	assert.Equal(t, "png", meta.Format)
	assert.Equal(t, "image/png", meta.ContentType)
}

func TestBackend_GetMetadataUndecodable(t *testing.T) {
	backend := NewBackend(arbor.NewLogger())
	dir := t.TempDir()

	// Not a real image: metadata stays zero but the content type is still
	// derived from the extension.
	path := filepath.Join(dir, "fake.jpg")
	require.NoError(t, os.WriteFile(path, []byte("not an image"), 0644))

	meta, err := backend.GetMetadata(context.Background(), path)
	require.NoError(t, err)
	assert.Zero(t, meta.Width)
	assert.Zero(t, meta.Height)
	assert.Equal(t, "image/jpeg", meta.ContentType)
}

func TestBackend_GenerateThumbnail(t *testing.T) {
	backend := NewBackend(arbor.NewLogger())
	ctx := context.Background()
	dir := t.TempDir()

	src := writeGradientPNG(t, dir, "src.png", 800, 600)
	dst := filepath.Join(dir, "nested", "thumb.jpg")

	require.NoError(t, backend.GenerateThumbnail(ctx, src, dst, 200))

	f, err := os.Open(dst)
	require.NoError(t, err)
	defer f.Close()
	config, format, err := image.DecodeConfig(f)
	require.NoError(t, err)
	assert.Equal(t, "jpeg", format)
	assert.Equal(t, 200, config.Width)
	assert.Equal(t, 150, config.Height)
}

func TestBackend_GenerateThumbnailFailures(t *testing.T) {
	backend := NewBackend(arbor.NewLogger())
	ctx := context.Background()
	dir := t.TempDir()

	err := backend.GenerateThumbnail(ctx, filepath.Join(dir, "missing.png"), filepath.Join(dir, "t.jpg"), 200)
	assert.ErrorIs(t, err, interfaces.ErrBackend)

	src := writeGradientPNG(t, dir, "src.png", 100, 100)
	err = backend.GenerateThumbnail(ctx, src, filepath.Join(dir, "t.jpg"), 0)
	assert.ErrorIs(t, err, interfaces.ErrBackend)
}

func TestBackend_ComputePerceptualHash(t *testing.T) {
	backend := NewBackend(arbor.NewLogger())
	ctx := context.Background()
	dir := t.TempDir()

	path := writeGradientPNG(t, dir, "pic.png", 400, 300)

	first, err := backend.ComputePerceptualHash(ctx, path)
	require.NoError(t, err)
	second, err := backend.ComputePerceptualHash(ctx, path)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Regexp(t, regexp.MustCompile(`^[0-9a-f]{64}$`), first)

	// A downscaled rendering of the same gradient stays visually close.
	small := writeGradientPNG(t, dir, "small.png", 200, 150)
	smallHash, err := backend.ComputePerceptualHash(ctx, small)
	require.NoError(t, err)
	distance, err := HammingDistance256(first, smallHash)
	require.NoError(t, err)
	assert.LessOrEqual(t, distance, 31)
}

func TestScaleToFit(t *testing.T) {
	wide := image.NewRGBA(image.Rect(0, 0, 1000, 400))
	scaled := scaleToFit(wide, 250)
	assert.Equal(t, 250, scaled.Bounds().Dx())
	assert.Equal(t, 100, scaled.Bounds().Dy())

	tall := image.NewRGBA(image.Rect(0, 0, 300, 900))
	scaled = scaleToFit(tall, 300)
	assert.Equal(t, 100, scaled.Bounds().Dx())
	assert.Equal(t, 300, scaled.Bounds().Dy())

	// Already within bounds: returned unchanged.
	small := image.NewRGBA(image.Rect(0, 0, 50, 40))
	assert.Equal(t, small, scaleToFit(small, 100))
}
