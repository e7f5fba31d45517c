package library

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/imago/internal/interfaces"
	"github.com/ternarybob/imago/internal/models"
	"github.com/ternarybob/imago/internal/scanner"
)

var validate = validator.New()

// Service implements LibraryService: CRUD, ignored paths, folder browse,
// and scan orchestration via the sync processor.
type Service struct {
	storage   interfaces.StorageManager
	processor *SyncProcessor
	logger    arbor.ILogger
}

// NewService creates a new library service
func NewService(storage interfaces.StorageManager, processor *SyncProcessor, logger arbor.ILogger) interfaces.LibraryService {
	return &Service{
		storage:   storage,
		processor: processor,
		logger:    logger,
	}
}

// Create validates and stores a new library. The root path must be an
// absolute path to an existing directory.
func (s *Service) Create(ctx context.Context, library *models.Library) error {
	if err := validate.Struct(library); err != nil {
		return fmt.Errorf("invalid library: %v: %w", err, interfaces.ErrInvalidInput)
	}
	if err := checkRootPath(library.RootPath); err != nil {
		return err
	}

	if err := s.storage.Libraries().CreateLibrary(ctx, library); err != nil {
		return err
	}
	s.logger.Info().Int64("library_id", library.ID).Str("root", library.RootPath).Msg("Library created")
	return nil
}

func checkRootPath(root string) error {
	if !filepath.IsAbs(root) {
		return fmt.Errorf("library root must be absolute: %w", interfaces.ErrInvalidInput)
	}
	info, err := os.Stat(root)
	if err != nil {
		return fmt.Errorf("library root %s is not accessible: %w", root, interfaces.ErrInvalidInput)
	}
	if !info.IsDir() {
		return fmt.Errorf("library root %s is not a directory: %w", root, interfaces.ErrInvalidInput)
	}
	return nil
}

func (s *Service) Get(ctx context.Context, id int64) (*models.Library, error) {
	return s.storage.Libraries().GetLibrary(ctx, id)
}

func (s *Service) List(ctx context.Context) ([]*models.Library, error) {
	return s.storage.Libraries().ListLibraries(ctx)
}

func (s *Service) Update(ctx context.Context, library *models.Library) error {
	if err := validate.Struct(library); err != nil {
		return fmt.Errorf("invalid library: %v: %w", err, interfaces.ErrInvalidInput)
	}
	if err := checkRootPath(library.RootPath); err != nil {
		return err
	}
	return s.storage.Libraries().UpdateLibrary(ctx, library)
}

func (s *Service) Delete(ctx context.Context, id int64) error {
	if err := s.storage.Libraries().DeleteLibrary(ctx, id); err != nil {
		return err
	}
	s.logger.Info().Int64("library_id", id).Msg("Library deleted")
	return nil
}

func (s *Service) Stats(ctx context.Context, id int64) (*models.LibraryStats, error) {
	if _, err := s.storage.Libraries().GetLibrary(ctx, id); err != nil {
		return nil, err
	}
	return s.storage.Libraries().GetLibraryStats(ctx, id)
}

// AddIgnoredPath stores the normalized prefix and removes every post the
// prefix now covers. Returns the stored row and the number of posts removed.
func (s *Service) AddIgnoredPath(ctx context.Context, libraryID int64, prefix string) (*models.LibraryIgnoredPath, int, error) {
	normalized := scanner.NormalizeRelativePath(prefix)
	if normalized == "" {
		return nil, 0, fmt.Errorf("ignored prefix cannot be empty: %w", interfaces.ErrInvalidInput)
	}
	if strings.HasPrefix(normalized, "..") {
		return nil, 0, fmt.Errorf("ignored prefix escapes the library root: %w", interfaces.ErrInvalidInput)
	}

	row, err := s.storage.Libraries().AddIgnoredPath(ctx, libraryID, normalized)
	if err != nil {
		return nil, 0, err
	}

	// Existing posts inside the prefix are removed immediately rather than
	// waiting for the next scan.
	infos, err := s.storage.Posts().ListScanInfo(ctx, libraryID)
	if err != nil {
		return nil, 0, err
	}
	var doomed []int64
	for _, info := range infos {
		if scanner.PathWithinPrefix(info.RelativePath, normalized) {
			doomed = append(doomed, info.ID)
		}
	}
	if len(doomed) > 0 {
		if err := s.storage.Posts().DeletePosts(ctx, doomed); err != nil {
			return nil, 0, err
		}
	}

	s.logger.Info().
		Int64("library_id", libraryID).
		Str("prefix", normalized).
		Int("posts_removed", len(doomed)).
		Msg("Ignored path added")
	return row, len(doomed), nil
}

func (s *Service) DeleteIgnoredPath(ctx context.Context, id int64) error {
	return s.storage.Libraries().DeleteIgnoredPath(ctx, id)
}

func (s *Service) ListIgnoredPaths(ctx context.Context, libraryID int64) ([]*models.LibraryIgnoredPath, error) {
	return s.storage.Libraries().ListIgnoredPaths(ctx, libraryID)
}

// Scan runs one reconciliation pass over the library root.
func (s *Service) Scan(ctx context.Context, libraryID int64, progress interfaces.ScanProgressFunc) (*models.ScanResult, error) {
	library, err := s.storage.Libraries().GetLibrary(ctx, libraryID)
	if err != nil {
		return nil, err
	}
	if err := checkRootPath(library.RootPath); err != nil {
		return nil, err
	}
	return s.processor.ProcessDirectory(ctx, library, library.RootPath, progress)
}

// BrowseFolders lists the immediate subdirectories of an absolute path,
// hidden directories excluded, sorted by name.
func (s *Service) BrowseFolders(ctx context.Context, path string) ([]string, error) {
	if !filepath.IsAbs(path) {
		return nil, fmt.Errorf("browse path must be absolute: %w", interfaces.ErrInvalidInput)
	}
	entries, err := os.ReadDir(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read directory %s: %w", path, interfaces.ErrNotFound)
	}

	var folders []string
	for _, entry := range entries {
		if !entry.IsDir() || strings.HasPrefix(entry.Name(), ".") {
			continue
		}
		folders = append(folders, entry.Name())
	}
	sort.Strings(folders)
	return folders, nil
}
