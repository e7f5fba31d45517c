package interfaces

import "context"

// MediaMetadata is the decoded shape of one media file. All-zero values mean
// the backend could not read the file.
type MediaMetadata struct {
	Width       int
	Height      int
	Format      string
	ContentType string
}

// MediaBackend is the only component aware of image and video codecs. The
// core assumes every call is slow and blocking.
//
// GenerateThumbnail writes a still image (JPEG, aspect preserved, longest
// edge <= maxEdge) and creates the destination directory as needed. For
// video inputs an implementation must pick the frame at
// min(duration-50ms, clamp(duration*0.2, 250ms, 10s)) - never the first
// frame and never beyond EOF. An empty or missing output file is an
// ErrBackend failure.
type MediaBackend interface {
	GetMetadata(ctx context.Context, path string) (MediaMetadata, error)
	GenerateThumbnail(ctx context.Context, src, dst string, maxEdge int) error

	// ComputePerceptualHash returns a 256-bit hash as 64 lowercase hex
	// digits. Image inputs only; callers skip videos.
	ComputePerceptualHash(ctx context.Context, path string) (string, error)
}
