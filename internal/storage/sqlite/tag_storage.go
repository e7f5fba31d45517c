package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/imago/internal/interfaces"
	"github.com/ternarybob/imago/internal/models"
)

// TagStorage implements catalog persistence for tags, categories and
// post-tag links.
type TagStorage struct {
	db     *SQLiteDB
	logger arbor.ILogger
}

// NewTagStorage creates a new tag storage instance
func NewTagStorage(db *SQLiteDB, logger arbor.ILogger) *TagStorage {
	return &TagStorage{db: db, logger: logger}
}

// PostCount is derived: the number of distinct posts holding at least one
// link to the tag, regardless of source.
const tagColumns = `t.id, t.name, t.tag_category_id,
	(SELECT COUNT(DISTINCT post_id) FROM post_tags WHERE tag_id = t.id)`

func scanTag(row rowScanner) (*models.Tag, error) {
	tag := &models.Tag{}
	var categoryID sql.NullInt64
	err := row.Scan(&tag.ID, &tag.Name, &categoryID, &tag.PostCount)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("tag: %w", interfaces.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan tag: %w", err)
	}
	if categoryID.Valid {
		tag.TagCategoryID = &categoryID.Int64
	}
	return tag, nil
}

// CreateTag inserts a new tag and fills in its assigned id. Names are
// unique; a collision returns ErrConflict.
func (s *TagStorage) CreateTag(ctx context.Context, tag *models.Tag) error {
	result, err := s.db.db.ExecContext(ctx,
		`INSERT INTO tags (name, tag_category_id) VALUES (?, ?)`,
		tag.Name, nullableID(tag.TagCategoryID))
	if err != nil {
		return fmt.Errorf("failed to create tag: %w", mapConstraintErr(err))
	}
	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to read tag id: %w", err)
	}
	tag.ID = id
	return nil
}

// GetTag loads one tag by id.
func (s *TagStorage) GetTag(ctx context.Context, id int64) (*models.Tag, error) {
	row := s.db.db.QueryRowContext(ctx,
		`SELECT `+tagColumns+` FROM tags t WHERE t.id = ?`, id)
	return scanTag(row)
}

// GetTagByName loads one tag by its unique name.
func (s *TagStorage) GetTagByName(ctx context.Context, name string) (*models.Tag, error) {
	row := s.db.db.QueryRowContext(ctx,
		`SELECT `+tagColumns+` FROM tags t WHERE t.name = ?`, name)
	return scanTag(row)
}

// ListTags returns every tag ordered by name, with derived post counts.
func (s *TagStorage) ListTags(ctx context.Context) ([]*models.Tag, error) {
	rows, err := s.db.db.QueryContext(ctx,
		`SELECT `+tagColumns+` FROM tags t ORDER BY t.name`)
	if err != nil {
		return nil, fmt.Errorf("failed to list tags: %w", err)
	}
	defer rows.Close()

	var tags []*models.Tag
	for rows.Next() {
		tag, err := scanTag(rows)
		if err != nil {
			return nil, err
		}
		tags = append(tags, tag)
	}
	return tags, rows.Err()
}

// UpdateTag saves name and category assignment.
func (s *TagStorage) UpdateTag(ctx context.Context, tag *models.Tag) error {
	result, err := s.db.db.ExecContext(ctx,
		`UPDATE tags SET name = ?, tag_category_id = ? WHERE id = ?`,
		tag.Name, nullableID(tag.TagCategoryID), tag.ID)
	if err != nil {
		return fmt.Errorf("failed to update tag: %w", mapConstraintErr(err))
	}
	return requireRowAffected(result, "tag")
}

// DeleteTag removes the tag; links cascade at the schema level.
func (s *TagStorage) DeleteTag(ctx context.Context, id int64) error {
	result, err := s.db.db.ExecContext(ctx, `DELETE FROM tags WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete tag: %w", err)
	}
	return requireRowAffected(result, "tag")
}

// CreateCategory inserts a new tag category and fills in its assigned id.
func (s *TagStorage) CreateCategory(ctx context.Context, category *models.TagCategory) error {
	result, err := s.db.db.ExecContext(ctx,
		`INSERT INTO tag_categories (name, color, sort_order) VALUES (?, ?, ?)`,
		category.Name, category.Color, category.Order)
	if err != nil {
		return fmt.Errorf("failed to create tag category: %w", mapConstraintErr(err))
	}
	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to read tag category id: %w", err)
	}
	category.ID = id
	return nil
}

// ListCategories returns categories in sidebar order.
func (s *TagStorage) ListCategories(ctx context.Context) ([]*models.TagCategory, error) {
	rows, err := s.db.db.QueryContext(ctx,
		`SELECT id, name, color, sort_order FROM tag_categories ORDER BY sort_order, name`)
	if err != nil {
		return nil, fmt.Errorf("failed to list tag categories: %w", err)
	}
	defer rows.Close()

	var categories []*models.TagCategory
	for rows.Next() {
		category := &models.TagCategory{}
		if err := rows.Scan(&category.ID, &category.Name, &category.Color, &category.Order); err != nil {
			return nil, fmt.Errorf("failed to scan tag category: %w", err)
		}
		categories = append(categories, category)
	}
	return categories, rows.Err()
}

// UpdateCategory saves name, color and ordering.
func (s *TagStorage) UpdateCategory(ctx context.Context, category *models.TagCategory) error {
	result, err := s.db.db.ExecContext(ctx,
		`UPDATE tag_categories SET name = ?, color = ?, sort_order = ? WHERE id = ?`,
		category.Name, category.Color, category.Order, category.ID)
	if err != nil {
		return fmt.Errorf("failed to update tag category: %w", mapConstraintErr(err))
	}
	return requireRowAffected(result, "tag category")
}

// DeleteCategory removes the category; tags keep existing with no category.
func (s *TagStorage) DeleteCategory(ctx context.Context, id int64) error {
	result, err := s.db.db.ExecContext(ctx, `DELETE FROM tag_categories WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete tag category: %w", err)
	}
	return requireRowAffected(result, "tag category")
}

// AddPostTag inserts one link. Re-adding an existing link is an idempotent
// success for automated sources; a manual duplicate returns ErrConflict so
// the caller can surface it.
func (s *TagStorage) AddPostTag(ctx context.Context, link *models.PostTag) error {
	_, err := s.db.db.ExecContext(ctx,
		`INSERT INTO post_tags (post_id, tag_id, source) VALUES (?, ?, ?)`,
		link.PostID, link.TagID, string(link.Source))
	if err != nil {
		mapped := mapConstraintErr(err)
		if mapped == interfaces.ErrConflict && link.Source != models.TagSourceManual {
			return nil
		}
		return fmt.Errorf("failed to add post tag: %w", mapped)
	}
	return nil
}

// RemovePostTag deletes one link by its full key.
func (s *TagStorage) RemovePostTag(ctx context.Context, postID, tagID int64, source models.TagSource) error {
	result, err := s.db.db.ExecContext(ctx,
		`DELETE FROM post_tags WHERE post_id = ? AND tag_id = ? AND source = ?`,
		postID, tagID, string(source))
	if err != nil {
		return fmt.Errorf("failed to remove post tag: %w", err)
	}
	return requireRowAffected(result, "post tag")
}

// ListPostTags returns a post's links ordered by tag name.
func (s *TagStorage) ListPostTags(ctx context.Context, postID int64) ([]*models.PostTag, error) {
	rows, err := s.db.db.QueryContext(ctx,
		`SELECT pt.post_id, pt.tag_id, pt.source
		 FROM post_tags pt JOIN tags t ON t.id = pt.tag_id
		 WHERE pt.post_id = ? ORDER BY t.name, pt.source`, postID)
	if err != nil {
		return nil, fmt.Errorf("failed to list post tags: %w", err)
	}
	defer rows.Close()

	var links []*models.PostTag
	for rows.Next() {
		link := &models.PostTag{}
		var source string
		if err := rows.Scan(&link.PostID, &link.TagID, &source); err != nil {
			return nil, fmt.Errorf("failed to scan post tag: %w", err)
		}
		link.Source = models.TagSource(source)
		links = append(links, link)
	}
	return links, rows.Err()
}

// MergeTags moves every link from source onto target, deletes the source
// tag, and inherits the source's category when the target has none. Links
// the target already holds are dropped rather than duplicated.
func (s *TagStorage) MergeTags(ctx context.Context, sourceID, targetID int64) error {
	if sourceID == targetID {
		return fmt.Errorf("cannot merge tag into itself: %w", interfaces.ErrInvalidInput)
	}

	return s.db.withTx(ctx, func(tx *sql.Tx) error {
		var sourceCat, targetCat sql.NullInt64
		if err := tx.QueryRowContext(ctx,
			`SELECT tag_category_id FROM tags WHERE id = ?`, sourceID).Scan(&sourceCat); err != nil {
			if err == sql.ErrNoRows {
				return fmt.Errorf("source tag: %w", interfaces.ErrNotFound)
			}
			return fmt.Errorf("failed to load source tag: %w", err)
		}
		if err := tx.QueryRowContext(ctx,
			`SELECT tag_category_id FROM tags WHERE id = ?`, targetID).Scan(&targetCat); err != nil {
			if err == sql.ErrNoRows {
				return fmt.Errorf("target tag: %w", interfaces.ErrNotFound)
			}
			return fmt.Errorf("failed to load target tag: %w", err)
		}

		if _, err := tx.ExecContext(ctx,
			`INSERT OR IGNORE INTO post_tags (post_id, tag_id, source)
			 SELECT post_id, ?, source FROM post_tags WHERE tag_id = ?`,
			targetID, sourceID); err != nil {
			return fmt.Errorf("failed to move tag links: %w", err)
		}

		if !targetCat.Valid && sourceCat.Valid {
			if _, err := tx.ExecContext(ctx,
				`UPDATE tags SET tag_category_id = ? WHERE id = ?`, sourceCat.Int64, targetID); err != nil {
				return fmt.Errorf("failed to inherit tag category: %w", err)
			}
		}

		if _, err := tx.ExecContext(ctx, `DELETE FROM tags WHERE id = ?`, sourceID); err != nil {
			return fmt.Errorf("failed to delete merged tag: %w", err)
		}
		return nil
	})
}

// InheritTagLinks copies non-folder links between same-hash posts of one
// library onto the freshly added posts named by relative path. Folder tags
// are skipped because they derive from the new location, not the old one.
func (s *TagStorage) InheritTagLinks(ctx context.Context, libraryID int64, relativePaths []string) (int, error) {
	if len(relativePaths) == 0 {
		return 0, nil
	}

	copied := 0
	err := s.db.withTx(ctx, func(tx *sql.Tx) error {
		for _, chunk := range chunkStrings(relativePaths, deleteBatchSize) {
			query := `INSERT OR IGNORE INTO post_tags (post_id, tag_id, source)
				SELECT new.id, pt.tag_id, pt.source
				FROM posts new
				JOIN posts old ON old.library_id = new.library_id
					AND old.content_hash = new.content_hash
					AND old.id != new.id
				JOIN post_tags pt ON pt.post_id = old.id
				WHERE new.library_id = ?
					AND pt.source != ?
					AND new.relative_path IN (` + placeholders(len(chunk)) + `)`
			args := make([]interface{}, 0, len(chunk)+2)
			args = append(args, libraryID, string(models.TagSourceFolder))
			for _, p := range chunk {
				args = append(args, p)
			}
			result, err := tx.ExecContext(ctx, query, args...)
			if err != nil {
				return fmt.Errorf("failed to inherit tag links: %w", err)
			}
			n, err := result.RowsAffected()
			if err != nil {
				return fmt.Errorf("failed to read inherited link count: %w", err)
			}
			copied += int(n)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return copied, nil
}

// nullableID converts an optional foreign key into a sql.NullInt64.
func nullableID(id *int64) sql.NullInt64 {
	if id == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Valid: true, Int64: *id}
}

// chunkStrings splits values into batches of at most size.
func chunkStrings(values []string, size int) [][]string {
	if size <= 0 {
		size = len(values)
	}
	var chunks [][]string
	for len(values) > 0 {
		n := size
		if n > len(values) {
			n = len(values)
		}
		chunks = append(chunks, values[:n])
		values = values[n:]
	}
	return chunks
}
