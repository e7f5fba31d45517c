package duplicates

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"sort"

	"github.com/dustin/go-humanize"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/imago/internal/interfaces"
	"github.com/ternarybob/imago/internal/models"
)

// Service implements DuplicateService on top of the detector and the atomic
// storage resolutions.
type Service struct {
	storage  interfaces.StorageManager
	detector *Detector
	logger   arbor.ILogger
}

// NewService creates a new duplicate service.
func NewService(storage interfaces.StorageManager, detector *Detector, logger arbor.ILogger) interfaces.DuplicateService {
	return &Service{
		storage:  storage,
		detector: detector,
		logger:   logger,
	}
}

func (s *Service) Detect(ctx context.Context) (*interfaces.DetectionSummary, error) {
	return s.detector.Run(ctx)
}

func (s *Service) ListGroups(ctx context.Context, resolved *bool) ([]*interfaces.GroupWithEntries, error) {
	return s.storage.Duplicates().ListGroups(ctx, resolved)
}

func (s *Service) GetGroup(ctx context.Context, id int64) (*interfaces.GroupWithEntries, error) {
	return s.storage.Duplicates().GetGroup(ctx, id)
}

// ListSameFolderGroups partitions every unresolved group's posts by parent
// folder and returns the partitions that still hold two or more posts, with
// the recommended survivor marked.
func (s *Service) ListSameFolderGroups(ctx context.Context) ([]*interfaces.SameFolderGroup, error) {
	unresolved := false
	groups, err := s.storage.Duplicates().ListGroups(ctx, &unresolved)
	if err != nil {
		return nil, err
	}

	var out []*interfaces.SameFolderGroup
	for _, g := range groups {
		type folderKey struct {
			libraryID int64
			folder    string
		}
		partitions := make(map[folderKey][]*models.Post)
		for _, p := range g.Posts {
			key := folderKey{p.LibraryID, path.Dir(p.RelativePath)}
			partitions[key] = append(partitions[key], p)
		}

		keys := make([]folderKey, 0, len(partitions))
		for key, posts := range partitions {
			if len(posts) >= 2 {
				keys = append(keys, key)
			}
		}
		sort.Slice(keys, func(i, j int) bool {
			if keys[i].libraryID != keys[j].libraryID {
				return keys[i].libraryID < keys[j].libraryID
			}
			return keys[i].folder < keys[j].folder
		})

		for _, key := range keys {
			posts := partitions[key]
			sortKeepBest(posts)
			out = append(out, &interfaces.SameFolderGroup{
				GroupID:    g.Group.ID,
				LibraryID:  key.libraryID,
				Folder:     key.folder,
				Posts:      posts,
				KeepPostID: posts[0].ID,
			})
		}
	}
	return out, nil
}

// sortKeepBest orders posts best-first: pixel area, then size, then newest
// file date, then highest id.
func sortKeepBest(posts []*models.Post) {
	sort.Slice(posts, func(i, j int) bool {
		a, b := posts[i], posts[j]
		areaA, areaB := a.Width*a.Height, b.Width*b.Height
		if areaA != areaB {
			return areaA > areaB
		}
		if a.SizeBytes != b.SizeBytes {
			return a.SizeBytes > b.SizeBytes
		}
		if !a.FileModifiedDate.Equal(b.FileModifiedDate) {
			return a.FileModifiedDate.After(b.FileModifiedDate)
		}
		return a.ID > b.ID
	})
}

// Dismiss marks the group resolved without removing any post.
func (s *Service) Dismiss(ctx context.Context, groupID int64) error {
	if err := s.storage.Duplicates().SetResolved(ctx, groupID, true); err != nil {
		return err
	}
	s.logger.Info().Int64("group_id", groupID).Msg("Duplicate group dismissed")
	return nil
}

// AutoResolve keeps the best post of the group and folds every other entry
// into it.
func (s *Service) AutoResolve(ctx context.Context, groupID int64) error {
	group, err := s.storage.Duplicates().GetGroup(ctx, groupID)
	if err != nil {
		return err
	}
	if group.Group.IsResolved {
		return fmt.Errorf("group %d is already resolved: %w", groupID, interfaces.ErrConflict)
	}
	if len(group.Posts) < 2 {
		return fmt.Errorf("group %d has fewer than two entries: %w", groupID, interfaces.ErrInvalidInput)
	}

	posts := make([]*models.Post, len(group.Posts))
	copy(posts, group.Posts)
	sortKeepBest(posts)

	survivor := posts[0]
	loserIDs := make([]int64, 0, len(posts)-1)
	var reclaimed int64
	for _, p := range posts[1:] {
		loserIDs = append(loserIDs, p.ID)
		reclaimed += p.SizeBytes
	}

	if err := s.storage.Duplicates().ResolveKeep(ctx, groupID, survivor.ID, loserIDs, models.ExcludeReasonDuplicateResolution); err != nil {
		return err
	}
	s.logger.Info().
		Int64("group_id", groupID).
		Int64("kept", survivor.ID).
		Int("removed", len(loserIDs)).
		Str("reclaimed", humanize.Bytes(uint64(reclaimed))).
		Msg("Duplicate group auto-resolved")
	return nil
}

// ExcludePost removes one post from the group and the catalog. The file on
// disk is untouched; the exclusion record keeps the scanner from re-importing
// it.
func (s *Service) ExcludePost(ctx context.Context, groupID, postID int64) error {
	remaining, err := s.storage.Duplicates().ExcludeEntry(ctx, groupID, postID, models.ExcludeReasonUserRequest)
	if err != nil {
		return err
	}
	s.logger.Info().
		Int64("group_id", groupID).
		Int64("post_id", postID).
		Int("remaining", remaining).
		Msg("Post excluded from duplicate group")
	return nil
}

// DeletePostOnDisk is ExcludePost plus removal of the underlying file. Only
// posts sitting in a same-folder partition qualify; deleting spread-out
// copies is deliberately not offered.
func (s *Service) DeletePostOnDisk(ctx context.Context, groupID, postID int64) error {
	group, err := s.storage.Duplicates().GetGroup(ctx, groupID)
	if err != nil {
		return err
	}

	var target *models.Post
	siblings := 0
	for _, p := range group.Posts {
		if p.ID == postID {
			target = p
		}
	}
	if target == nil {
		return fmt.Errorf("post %d is not in group %d: %w", postID, groupID, interfaces.ErrNotFound)
	}
	for _, p := range group.Posts {
		if p.LibraryID == target.LibraryID && path.Dir(p.RelativePath) == path.Dir(target.RelativePath) {
			siblings++
		}
	}
	if siblings < 2 {
		return fmt.Errorf("post %d has no same-folder sibling in group %d: %w", postID, groupID, interfaces.ErrInvalidInput)
	}

	library, err := s.storage.Libraries().GetLibrary(ctx, target.LibraryID)
	if err != nil {
		return err
	}
	absPath := filepath.Join(library.RootPath, filepath.FromSlash(target.RelativePath))

	remaining, err := s.storage.Duplicates().ExcludeEntry(ctx, groupID, postID, models.ExcludeReasonDuplicateResolution)
	if err != nil {
		return err
	}

	// Catalog removal is committed first; a failed unlink leaves the file for
	// manual cleanup rather than leaving a dangling catalog row.
	if err := os.Remove(absPath); err != nil && !os.IsNotExist(err) {
		s.logger.Warn().Err(err).Str("path", absPath).Msg("Failed to delete duplicate file on disk")
		return fmt.Errorf("post removed from catalog but file deletion failed: %w", err)
	}

	s.logger.Info().
		Int64("group_id", groupID).
		Int64("post_id", postID).
		Str("path", absPath).
		Str("size", humanize.Bytes(uint64(target.SizeBytes))).
		Int("remaining", remaining).
		Msg("Duplicate file deleted on disk")
	return nil
}

func (s *Service) ListExcludedFiles(ctx context.Context, libraryID int64) ([]*models.ExcludedFile, error) {
	return s.storage.ExcludedFiles().ListExcludedFiles(ctx, libraryID)
}

// RemoveExcludedFile drops the exclusion record; the file comes back on the
// next scan if it still exists on disk.
func (s *Service) RemoveExcludedFile(ctx context.Context, id int64) error {
	if err := s.storage.ExcludedFiles().DeleteExcludedFile(ctx, id); err != nil {
		return err
	}
	s.logger.Info().Int64("excluded_file_id", id).Msg("Excluded file record removed")
	return nil
}

// Unresolve reopens a dismissed group. Groups resolved by removal stay
// resolved once fewer than two entries remain.
func (s *Service) Unresolve(ctx context.Context, groupID int64) error {
	group, err := s.storage.Duplicates().GetGroup(ctx, groupID)
	if err != nil {
		return err
	}
	if len(group.Posts) < 2 {
		return fmt.Errorf("group %d no longer has two entries: %w", groupID, interfaces.ErrInvalidInput)
	}
	return s.storage.Duplicates().SetResolved(ctx, groupID, false)
}
