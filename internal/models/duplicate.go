package models

import "time"

// DuplicateGroupType distinguishes exact content-hash collisions from
// perceptual-hash clusters.
type DuplicateGroupType string

const (
	DuplicateTypeExact      DuplicateGroupType = "exact"
	DuplicateTypePerceptual DuplicateGroupType = "perceptual"
)

// DuplicateGroup is a set of posts the detector considers duplicates of each
// other. An unresolved group always has at least two entries; exact groups
// carry SimilarityPercent 100.
type DuplicateGroup struct {
	ID                int64              `json:"id"`
	Type              DuplicateGroupType `json:"type"`
	SimilarityPercent int                `json:"similarity_percent"`
	DetectedDate      time.Time          `json:"detected_date"`
	IsResolved        bool               `json:"is_resolved"`
}

// DuplicateGroupEntry links one post into a duplicate group.
type DuplicateGroupEntry struct {
	GroupID int64 `json:"group_id"`
	PostID  int64 `json:"post_id"`
}

// ExcludedFile is a (library, relativePath) pair the scanner skips
// unconditionally, regardless of content.
type ExcludedFile struct {
	ID           int64     `json:"id"`
	LibraryID    int64     `json:"library_id"`
	RelativePath string    `json:"relative_path"`
	ContentHash  string    `json:"content_hash"`
	ExcludedDate time.Time `json:"excluded_date"`
	Reason       string    `json:"reason"`
}

// Exclusion reasons written by the duplicate-resolution operations.
const (
	ExcludeReasonDuplicateResolution = "duplicate_resolution"
	ExcludeReasonUserRequest         = "user_request"
)
