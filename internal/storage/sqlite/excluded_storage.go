package sqlite

import (
	"context"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/imago/internal/models"
)

// ExcludedFileStorage implements persistence for scanner exclusions.
type ExcludedFileStorage struct {
	db     *SQLiteDB
	logger arbor.ILogger
}

// NewExcludedFileStorage creates a new excluded file storage instance
func NewExcludedFileStorage(db *SQLiteDB, logger arbor.ILogger) *ExcludedFileStorage {
	return &ExcludedFileStorage{db: db, logger: logger}
}

// AddExcludedFile records one exclusion and fills in its assigned id.
// Re-excluding the same path is an idempotent success.
func (s *ExcludedFileStorage) AddExcludedFile(ctx context.Context, file *models.ExcludedFile) error {
	if file.ExcludedDate.IsZero() {
		file.ExcludedDate = time.Now().UTC()
	}
	result, err := s.db.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO excluded_files (library_id, relative_path, content_hash, excluded_date, reason)
		 VALUES (?, ?, ?, ?, ?)`,
		file.LibraryID, file.RelativePath, file.ContentHash, file.ExcludedDate.Unix(), file.Reason)
	if err != nil {
		return fmt.Errorf("failed to add excluded file: %w", mapConstraintErr(err))
	}
	if id, err := result.LastInsertId(); err == nil && id != 0 {
		file.ID = id
	}
	return nil
}

// ListExcludedFiles returns one library's exclusions ordered by path.
func (s *ExcludedFileStorage) ListExcludedFiles(ctx context.Context, libraryID int64) ([]*models.ExcludedFile, error) {
	rows, err := s.db.db.QueryContext(ctx,
		`SELECT id, library_id, relative_path, content_hash, excluded_date, reason
		 FROM excluded_files WHERE library_id = ? ORDER BY relative_path`, libraryID)
	if err != nil {
		return nil, fmt.Errorf("failed to list excluded files: %w", err)
	}
	defer rows.Close()

	var files []*models.ExcludedFile
	for rows.Next() {
		file := &models.ExcludedFile{}
		var excluded int64
		if err := rows.Scan(&file.ID, &file.LibraryID, &file.RelativePath,
			&file.ContentHash, &excluded, &file.Reason); err != nil {
			return nil, fmt.Errorf("failed to scan excluded file: %w", err)
		}
		file.ExcludedDate = unixToTime(excluded)
		files = append(files, file)
	}
	return files, rows.Err()
}

// ListExcludedPaths returns just the relative paths, for the scanner's
// skip set.
func (s *ExcludedFileStorage) ListExcludedPaths(ctx context.Context, libraryID int64) ([]string, error) {
	rows, err := s.db.db.QueryContext(ctx,
		`SELECT relative_path FROM excluded_files WHERE library_id = ?`, libraryID)
	if err != nil {
		return nil, fmt.Errorf("failed to list excluded paths: %w", err)
	}
	defer rows.Close()

	var paths []string
	for rows.Next() {
		var path string
		if err := rows.Scan(&path); err != nil {
			return nil, fmt.Errorf("failed to scan excluded path: %w", err)
		}
		paths = append(paths, path)
	}
	return paths, rows.Err()
}

// DeleteExcludedFile removes one exclusion, letting the next scan
// re-import the file.
func (s *ExcludedFileStorage) DeleteExcludedFile(ctx context.Context, id int64) error {
	result, err := s.db.db.ExecContext(ctx, `DELETE FROM excluded_files WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete excluded file: %w", err)
	}
	return requireRowAffected(result, "excluded file")
}
