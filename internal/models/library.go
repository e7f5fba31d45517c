package models

import "time"

// Library is a user-declared root directory on a local or mounted
// filesystem. All post paths are stored relative to RootPath.
type Library struct {
	ID                int64     `json:"id"`
	Name              string    `json:"name" validate:"required,min=1,max=200"`
	RootPath          string    `json:"root_path" validate:"required"`
	ScanIntervalHours int       `json:"scan_interval_hours" validate:"gte=0"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

// LibraryIgnoredPath is a normalized relative-path prefix whose subtree
// the scanner treats as nonexistent.
type LibraryIgnoredPath struct {
	ID          int64     `json:"id"`
	LibraryID   int64     `json:"library_id"`
	Prefix      string    `json:"relative_path_prefix"`
	CreatedDate time.Time `json:"created_date"`
}

// LibraryStats are derived aggregates over one library's posts.
type LibraryStats struct {
	PostCount      int64      `json:"post_count"`
	TotalSizeBytes int64      `json:"total_size_bytes"`
	LastImportDate *time.Time `json:"last_import_date,omitempty"`
}

// ScanResult summarizes one reconciliation pass over a library root.
type ScanResult struct {
	Scanned  int `json:"scanned"`
	Added    int `json:"added"`
	Updated  int `json:"updated"`
	Moved    int `json:"moved"`
	Orphaned int `json:"orphaned"`
}
