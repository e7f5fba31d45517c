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

// DuplicateStorage implements catalog persistence for duplicate groups and
// the atomic resolution operations.
type DuplicateStorage struct {
	db     *SQLiteDB
	logger arbor.ILogger
}

// NewDuplicateStorage creates a new duplicate storage instance
func NewDuplicateStorage(db *SQLiteDB, logger arbor.ILogger) *DuplicateStorage {
	return &DuplicateStorage{db: db, logger: logger}
}

// ListCandidates returns every post eligible for detection. Posts whose
// (library, path) matches an excluded file never participate again.
func (s *DuplicateStorage) ListCandidates(ctx context.Context) ([]*interfaces.DuplicateCandidate, error) {
	rows, err := s.db.db.QueryContext(ctx,
		`SELECT p.id, p.library_id, p.relative_path, p.content_hash,
			COALESCE(p.perceptual_hash, ''), p.width, p.height, p.size_bytes, p.file_modified_date
		 FROM posts p
		 WHERE NOT EXISTS (
			SELECT 1 FROM excluded_files ef
			WHERE ef.library_id = p.library_id AND ef.relative_path = p.relative_path)`)
	if err != nil {
		return nil, fmt.Errorf("failed to list duplicate candidates: %w", err)
	}
	defer rows.Close()

	var candidates []*interfaces.DuplicateCandidate
	for rows.Next() {
		c := &interfaces.DuplicateCandidate{}
		var fileModified int64
		if err := rows.Scan(&c.PostID, &c.LibraryID, &c.RelativePath, &c.ContentHash,
			&c.PerceptualHash, &c.Width, &c.Height, &c.SizeBytes, &fileModified); err != nil {
			return nil, fmt.Errorf("failed to scan duplicate candidate: %w", err)
		}
		c.FileModifiedDate = unixToTime(fileModified)
		candidates = append(candidates, c)
	}
	return candidates, rows.Err()
}

func scanGroup(row rowScanner) (*models.DuplicateGroup, error) {
	group := &models.DuplicateGroup{}
	var groupType string
	var detected int64
	err := row.Scan(&group.ID, &groupType, &group.SimilarityPercent, &detected, &group.IsResolved)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("duplicate group: %w", interfaces.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan duplicate group: %w", err)
	}
	group.Type = models.DuplicateGroupType(groupType)
	group.DetectedDate = unixToTime(detected)
	return group, nil
}

func (s *DuplicateStorage) groupPosts(ctx context.Context, groupID int64) ([]*models.Post, error) {
	rows, err := s.db.db.QueryContext(ctx,
		`SELECT `+postColumns+` FROM posts
		 WHERE id IN (SELECT post_id FROM duplicate_group_entries WHERE group_id = ?)
		 ORDER BY relative_path`, groupID)
	if err != nil {
		return nil, fmt.Errorf("failed to load group posts: %w", err)
	}
	defer rows.Close()
	return collectPosts(rows)
}

// ListGroups returns groups newest first, each with its member posts.
// resolved filters by resolution state when non-nil.
func (s *DuplicateStorage) ListGroups(ctx context.Context, resolved *bool) ([]*interfaces.GroupWithEntries, error) {
	query := `SELECT id, group_type, similarity_percent, detected_date, is_resolved
		FROM duplicate_groups`
	var args []interface{}
	if resolved != nil {
		query += ` WHERE is_resolved = ?`
		args = append(args, *resolved)
	}
	query += ` ORDER BY detected_date DESC, id DESC`

	rows, err := s.db.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list duplicate groups: %w", err)
	}
	defer rows.Close()

	var groups []*interfaces.GroupWithEntries
	for rows.Next() {
		group, err := scanGroup(rows)
		if err != nil {
			return nil, err
		}
		groups = append(groups, &interfaces.GroupWithEntries{Group: *group})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for _, g := range groups {
		posts, err := s.groupPosts(ctx, g.Group.ID)
		if err != nil {
			return nil, err
		}
		g.Posts = posts
	}
	return groups, nil
}

// GetGroup loads one group with its member posts.
func (s *DuplicateStorage) GetGroup(ctx context.Context, id int64) (*interfaces.GroupWithEntries, error) {
	row := s.db.db.QueryRowContext(ctx,
		`SELECT id, group_type, similarity_percent, detected_date, is_resolved
		 FROM duplicate_groups WHERE id = ?`, id)
	group, err := scanGroup(row)
	if err != nil {
		return nil, err
	}
	posts, err := s.groupPosts(ctx, id)
	if err != nil {
		return nil, err
	}
	return &interfaces.GroupWithEntries{Group: *group, Posts: posts}, nil
}

// CreateGroup inserts a group and its entries in one transaction.
func (s *DuplicateStorage) CreateGroup(ctx context.Context, groupType models.DuplicateGroupType, similarity int, postIDs []int64) (int64, error) {
	if len(postIDs) < 2 {
		return 0, fmt.Errorf("duplicate group needs at least two posts: %w", interfaces.ErrInvalidInput)
	}

	var groupID int64
	err := s.db.withTx(ctx, func(tx *sql.Tx) error {
		result, err := tx.ExecContext(ctx,
			`INSERT INTO duplicate_groups (group_type, similarity_percent, detected_date, is_resolved)
			 VALUES (?, ?, ?, 0)`,
			string(groupType), similarity, time.Now().UTC().Unix())
		if err != nil {
			return fmt.Errorf("failed to create duplicate group: %w", err)
		}
		groupID, err = result.LastInsertId()
		if err != nil {
			return fmt.Errorf("failed to read group id: %w", err)
		}

		for _, postID := range postIDs {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO duplicate_group_entries (group_id, post_id) VALUES (?, ?)`,
				groupID, postID); err != nil {
				return fmt.Errorf("failed to add group entry: %w", mapConstraintErr(err))
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return groupID, nil
}

// SetResolved flips a group's resolution flag without touching its posts.
func (s *DuplicateStorage) SetResolved(ctx context.Context, groupID int64, resolved bool) error {
	result, err := s.db.db.ExecContext(ctx,
		`UPDATE duplicate_groups SET is_resolved = ? WHERE id = ?`, resolved, groupID)
	if err != nil {
		return fmt.Errorf("failed to set group resolution: %w", err)
	}
	return requireRowAffected(result, "duplicate group")
}

// ResolveKeep keeps the survivor and deletes the losers in one transaction:
// the losers' tag links and sources merge into the survivor, each loser
// leaves an excluded-file record so the scanner never re-imports it, and
// the group is marked resolved.
func (s *DuplicateStorage) ResolveKeep(ctx context.Context, groupID, survivorID int64, loserIDs []int64, reason string) error {
	if len(loserIDs) == 0 {
		return fmt.Errorf("no losers to resolve: %w", interfaces.ErrInvalidInput)
	}

	return s.db.withTx(ctx, func(tx *sql.Tx) error {
		var inGroup int
		if err := tx.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM duplicate_group_entries WHERE group_id = ? AND post_id = ?`,
			groupID, survivorID).Scan(&inGroup); err != nil {
			return fmt.Errorf("failed to check survivor membership: %w", err)
		}
		if inGroup == 0 {
			return fmt.Errorf("survivor is not a group member: %w", interfaces.ErrInvalidInput)
		}

		now := time.Now().UTC().Unix()
		for _, loserID := range loserIDs {
			if loserID == survivorID {
				return fmt.Errorf("survivor cannot also be a loser: %w", interfaces.ErrInvalidInput)
			}

			// Merge tag links and sources before the loser row disappears.
			if _, err := tx.ExecContext(ctx,
				`INSERT OR IGNORE INTO post_tags (post_id, tag_id, source)
				 SELECT ?, tag_id, source FROM post_tags WHERE post_id = ?`,
				survivorID, loserID); err != nil {
				return fmt.Errorf("failed to merge tag links: %w", err)
			}
			if _, err := tx.ExecContext(ctx,
				`INSERT OR IGNORE INTO post_sources (post_id, url, sort_order)
				 SELECT ?, url, 1000 + sort_order FROM post_sources WHERE post_id = ?`,
				survivorID, loserID); err != nil {
				return fmt.Errorf("failed to merge post sources: %w", err)
			}

			if _, err := tx.ExecContext(ctx,
				`INSERT OR IGNORE INTO excluded_files (library_id, relative_path, content_hash, excluded_date, reason)
				 SELECT library_id, relative_path, content_hash, ?, ? FROM posts WHERE id = ?`,
				now, reason, loserID); err != nil {
				return fmt.Errorf("failed to record excluded file: %w", err)
			}

			if _, err := tx.ExecContext(ctx, `DELETE FROM posts WHERE id = ?`, loserID); err != nil {
				return fmt.Errorf("failed to delete loser post: %w", err)
			}
		}

		if _, err := tx.ExecContext(ctx,
			`UPDATE duplicate_groups SET is_resolved = 1 WHERE id = ?`, groupID); err != nil {
			return fmt.Errorf("failed to mark group resolved: %w", err)
		}
		return nil
	})
}

// ExcludeEntry removes one post from the group, recording it as excluded
// and deleting it. When fewer than two entries remain the group resolves
// itself. Returns the number of entries remaining.
func (s *DuplicateStorage) ExcludeEntry(ctx context.Context, groupID, postID int64, reason string) (int, error) {
	remaining := 0
	err := s.db.withTx(ctx, func(tx *sql.Tx) error {
		var inGroup int
		if err := tx.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM duplicate_group_entries WHERE group_id = ? AND post_id = ?`,
			groupID, postID).Scan(&inGroup); err != nil {
			return fmt.Errorf("failed to check group membership: %w", err)
		}
		if inGroup == 0 {
			return fmt.Errorf("post is not a group member: %w", interfaces.ErrNotFound)
		}

		if _, err := tx.ExecContext(ctx,
			`INSERT OR IGNORE INTO excluded_files (library_id, relative_path, content_hash, excluded_date, reason)
			 SELECT library_id, relative_path, content_hash, ?, ? FROM posts WHERE id = ?`,
			time.Now().UTC().Unix(), reason, postID); err != nil {
			return fmt.Errorf("failed to record excluded file: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM posts WHERE id = ?`, postID); err != nil {
			return fmt.Errorf("failed to delete excluded post: %w", err)
		}

		if err := tx.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM duplicate_group_entries WHERE group_id = ?`, groupID).Scan(&remaining); err != nil {
			return fmt.Errorf("failed to count remaining entries: %w", err)
		}
		if remaining < 2 {
			if _, err := tx.ExecContext(ctx,
				`UPDATE duplicate_groups SET is_resolved = 1 WHERE id = ?`, groupID); err != nil {
				return fmt.Errorf("failed to auto-resolve group: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return remaining, nil
}
