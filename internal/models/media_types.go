package models

import (
	"path/filepath"
	"strings"
)

// MediaKind is the coarse classification used by the type: query directive.
type MediaKind string

const (
	MediaKindImage MediaKind = "image"
	MediaKindGif   MediaKind = "gif"
	MediaKindVideo MediaKind = "video"
)

// supportedMedia is the fixed in-core table of recognized extensions and
// their content types. The scanner enumerates nothing outside this set.
var supportedMedia = map[string]string{
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
	".gif":  "image/gif",
	".webp": "image/webp",
	".bmp":  "image/bmp",
	".jxl":  "image/jxl",
	".avif": "image/avif",
	".mp4":  "video/mp4",
	".webm": "video/webm",
	".mkv":  "video/x-matroska",
	".mov":  "video/quicktime",
	".avi":  "video/x-msvideo",
}

// IsSupportedMediaPath reports whether the file extension is in the
// supported-media set.
func IsSupportedMediaPath(path string) bool {
	_, ok := supportedMedia[strings.ToLower(filepath.Ext(path))]
	return ok
}

// ContentTypeForPath returns the content type for a supported media path,
// or the empty string for anything outside the supported set.
func ContentTypeForPath(path string) string {
	return supportedMedia[strings.ToLower(filepath.Ext(path))]
}

// KindForContentType maps a content type onto the type: directive buckets.
// GIFs are their own bucket so animated loops can be filtered apart from
// still images.
func KindForContentType(contentType string) MediaKind {
	switch {
	case contentType == "image/gif":
		return MediaKindGif
	case strings.HasPrefix(contentType, "video/"):
		return MediaKindVideo
	default:
		return MediaKindImage
	}
}

// IsImageContentType reports whether the content type is a still-image type
// eligible for perceptual hashing.
func IsImageContentType(contentType string) bool {
	return strings.HasPrefix(contentType, "image/")
}
