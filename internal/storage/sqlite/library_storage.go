package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/imago/internal/interfaces"
	"github.com/ternarybob/imago/internal/models"
)

// LibraryStorage implements catalog persistence for libraries and their
// ignored-path prefixes.
type LibraryStorage struct {
	db     *SQLiteDB
	logger arbor.ILogger
}

// NewLibraryStorage creates a new library storage instance
func NewLibraryStorage(db *SQLiteDB, logger arbor.ILogger) *LibraryStorage {
	return &LibraryStorage{db: db, logger: logger}
}

// CreateLibrary inserts a new library and fills in its assigned id.
func (s *LibraryStorage) CreateLibrary(ctx context.Context, library *models.Library) error {
	now := time.Now().UTC()
	library.CreatedAt = now
	library.UpdatedAt = now

	result, err := s.db.db.ExecContext(ctx,
		`INSERT INTO libraries (name, root_path, scan_interval_hours, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?)`,
		library.Name, library.RootPath, library.ScanIntervalHours, now.Unix(), now.Unix())
	if err != nil {
		return fmt.Errorf("failed to create library: %w", mapConstraintErr(err))
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to read library id: %w", err)
	}
	library.ID = id
	return nil
}

// GetLibrary loads one library by id.
func (s *LibraryStorage) GetLibrary(ctx context.Context, id int64) (*models.Library, error) {
	row := s.db.db.QueryRowContext(ctx,
		`SELECT id, name, root_path, scan_interval_hours, created_at, updated_at
		 FROM libraries WHERE id = ?`, id)
	return scanLibrary(row)
}

// ListLibraries returns all libraries ordered by name.
func (s *LibraryStorage) ListLibraries(ctx context.Context) ([]*models.Library, error) {
	rows, err := s.db.db.QueryContext(ctx,
		`SELECT id, name, root_path, scan_interval_hours, created_at, updated_at
		 FROM libraries ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("failed to list libraries: %w", err)
	}
	defer rows.Close()

	var libraries []*models.Library
	for rows.Next() {
		library, err := scanLibrary(rows)
		if err != nil {
			return nil, err
		}
		libraries = append(libraries, library)
	}
	return libraries, rows.Err()
}

// UpdateLibrary saves name, root path and scan interval.
func (s *LibraryStorage) UpdateLibrary(ctx context.Context, library *models.Library) error {
	library.UpdatedAt = time.Now().UTC()
	result, err := s.db.db.ExecContext(ctx,
		`UPDATE libraries SET name = ?, root_path = ?, scan_interval_hours = ?, updated_at = ?
		 WHERE id = ?`,
		library.Name, library.RootPath, library.ScanIntervalHours, library.UpdatedAt.Unix(), library.ID)
	if err != nil {
		return fmt.Errorf("failed to update library: %w", mapConstraintErr(err))
	}
	return requireRowAffected(result, "library")
}

// DeleteLibrary removes the library; posts, links, sources, group entries
// and ignored paths cascade at the schema level. Duplicate groups emptied
// by the cascade are swept afterwards.
func (s *LibraryStorage) DeleteLibrary(ctx context.Context, id int64) error {
	return s.db.withTx(ctx, func(tx *sql.Tx) error {
		result, err := tx.ExecContext(ctx, `DELETE FROM libraries WHERE id = ?`, id)
		if err != nil {
			return fmt.Errorf("failed to delete library: %w", err)
		}
		if err := requireRowAffected(result, "library"); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM duplicate_groups WHERE id NOT IN (SELECT DISTINCT group_id FROM duplicate_group_entries)`); err != nil {
			return fmt.Errorf("failed to sweep empty duplicate groups: %w", err)
		}
		return nil
	})
}

// GetLibraryStats computes the derived aggregates for one library.
func (s *LibraryStorage) GetLibraryStats(ctx context.Context, id int64) (*models.LibraryStats, error) {
	row := s.db.db.QueryRowContext(ctx,
		`SELECT COUNT(*), COALESCE(SUM(size_bytes), 0), MAX(import_date)
		 FROM posts WHERE library_id = ?`, id)

	stats := &models.LibraryStats{}
	var maxImport sql.NullInt64
	if err := row.Scan(&stats.PostCount, &stats.TotalSizeBytes, &maxImport); err != nil {
		return nil, fmt.Errorf("failed to load library stats: %w", err)
	}
	stats.LastImportDate = nullableTime(maxImport)
	return stats, nil
}

// AddIgnoredPath inserts a normalized prefix for the library.
func (s *LibraryStorage) AddIgnoredPath(ctx context.Context, libraryID int64, prefix string) (*models.LibraryIgnoredPath, error) {
	now := time.Now().UTC()
	result, err := s.db.db.ExecContext(ctx,
		`INSERT INTO library_ignored_paths (library_id, relative_path_prefix, created_date)
		 VALUES (?, ?, ?)`,
		libraryID, prefix, now.Unix())
	if err != nil {
		return nil, fmt.Errorf("failed to add ignored path: %w", mapConstraintErr(err))
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("failed to read ignored path id: %w", err)
	}
	return &models.LibraryIgnoredPath{
		ID:          id,
		LibraryID:   libraryID,
		Prefix:      prefix,
		CreatedDate: now,
	}, nil
}

// DeleteIgnoredPath removes one prefix by id.
func (s *LibraryStorage) DeleteIgnoredPath(ctx context.Context, id int64) error {
	result, err := s.db.db.ExecContext(ctx, `DELETE FROM library_ignored_paths WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete ignored path: %w", err)
	}
	return requireRowAffected(result, "ignored path")
}

// ListIgnoredPaths returns the prefixes declared for one library.
func (s *LibraryStorage) ListIgnoredPaths(ctx context.Context, libraryID int64) ([]*models.LibraryIgnoredPath, error) {
	rows, err := s.db.db.QueryContext(ctx,
		`SELECT id, library_id, relative_path_prefix, created_date
		 FROM library_ignored_paths WHERE library_id = ? ORDER BY relative_path_prefix`, libraryID)
	if err != nil {
		return nil, fmt.Errorf("failed to list ignored paths: %w", err)
	}
	defer rows.Close()

	var paths []*models.LibraryIgnoredPath
	for rows.Next() {
		p := &models.LibraryIgnoredPath{}
		var created int64
		if err := rows.Scan(&p.ID, &p.LibraryID, &p.Prefix, &created); err != nil {
			return nil, fmt.Errorf("failed to scan ignored path: %w", err)
		}
		p.CreatedDate = unixToTime(created)
		paths = append(paths, p)
	}
	return paths, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanLibrary(row rowScanner) (*models.Library, error) {
	library := &models.Library{}
	var createdAt, updatedAt int64
	err := row.Scan(&library.ID, &library.Name, &library.RootPath,
		&library.ScanIntervalHours, &createdAt, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("library: %w", interfaces.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan library: %w", err)
	}
	library.CreatedAt = unixToTime(createdAt)
	library.UpdatedAt = unixToTime(updatedAt)
	return library, nil
}

func requireRowAffected(result sql.Result, entity string) error {
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%s: %w", entity, interfaces.ErrNotFound)
	}
	return nil
}
