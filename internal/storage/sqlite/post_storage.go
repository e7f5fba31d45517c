package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/imago/internal/interfaces"
	"github.com/ternarybob/imago/internal/models"
)

// deleteBatchSize bounds one DELETE ... IN (...) statement.
const deleteBatchSize = 100

// PostStorage implements catalog persistence for posts and post sources.
type PostStorage struct {
	db     *SQLiteDB
	logger arbor.ILogger
}

// NewPostStorage creates a new post storage instance
func NewPostStorage(db *SQLiteDB, logger arbor.ILogger) *PostStorage {
	return &PostStorage{db: db, logger: logger}
}

const postColumns = `id, library_id, relative_path, content_hash, size_bytes,
	file_modified_date, import_date, width, height, content_type,
	COALESCE(perceptual_hash, ''), is_favorite,
	COALESCE(file_identity_device, ''), COALESCE(file_identity_value, '')`

func scanPost(row rowScanner) (*models.Post, error) {
	post := &models.Post{}
	var fileModified, importDate int64
	err := row.Scan(&post.ID, &post.LibraryID, &post.RelativePath, &post.ContentHash,
		&post.SizeBytes, &fileModified, &importDate, &post.Width, &post.Height,
		&post.ContentType, &post.PerceptualHash, &post.IsFavorite,
		&post.IdentityDevice, &post.IdentityValue)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("post: %w", interfaces.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan post: %w", err)
	}
	post.FileModifiedDate = unixToTime(fileModified)
	post.ImportDate = unixToTime(importDate)
	return post, nil
}

// InsertPosts saves a batch of new posts in one transaction and fills in
// the assigned ids.
func (s *PostStorage) InsertPosts(ctx context.Context, posts []*models.Post) error {
	if len(posts) == 0 {
		return nil
	}

	return s.db.withTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx,
			`INSERT INTO posts (library_id, relative_path, content_hash, size_bytes,
				file_modified_date, import_date, width, height, content_type,
				perceptual_hash, is_favorite, file_identity_device, file_identity_value)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
		if err != nil {
			return fmt.Errorf("failed to prepare post insert: %w", err)
		}
		defer stmt.Close()

		for _, post := range posts {
			result, err := stmt.ExecContext(ctx,
				post.LibraryID, post.RelativePath, post.ContentHash, post.SizeBytes,
				post.FileModifiedDate.Unix(), post.ImportDate.Unix(),
				post.Width, post.Height, post.ContentType,
				nullableString(post.PerceptualHash), post.IsFavorite,
				nullableString(post.IdentityDevice), nullableString(post.IdentityValue))
			if err != nil {
				return fmt.Errorf("failed to insert post %s: %w", post.RelativePath, mapConstraintErr(err))
			}
			id, err := result.LastInsertId()
			if err != nil {
				return fmt.Errorf("failed to read post id: %w", err)
			}
			post.ID = id
		}
		return nil
	})
}

// GetPost loads one post by id.
func (s *PostStorage) GetPost(ctx context.Context, id int64) (*models.Post, error) {
	row := s.db.db.QueryRowContext(ctx,
		`SELECT `+postColumns+` FROM posts WHERE id = ?`, id)
	return scanPost(row)
}

// GetPostByPath loads one post by its unique (library, relative path) key.
func (s *PostStorage) GetPostByPath(ctx context.Context, libraryID int64, relativePath string) (*models.Post, error) {
	row := s.db.db.QueryRowContext(ctx,
		`SELECT `+postColumns+` FROM posts WHERE library_id = ? AND relative_path = ?`,
		libraryID, relativePath)
	return scanPost(row)
}

// GetPostsByHash returns every post in one library sharing a content hash.
func (s *PostStorage) GetPostsByHash(ctx context.Context, libraryID int64, contentHash string) ([]*models.Post, error) {
	rows, err := s.db.db.QueryContext(ctx,
		`SELECT `+postColumns+` FROM posts WHERE library_id = ? AND content_hash = ?`,
		libraryID, contentHash)
	if err != nil {
		return nil, fmt.Errorf("failed to query posts by hash: %w", err)
	}
	defer rows.Close()
	return collectPosts(rows)
}

func collectPosts(rows *sql.Rows) ([]*models.Post, error) {
	var posts []*models.Post
	for rows.Next() {
		post, err := scanPost(rows)
		if err != nil {
			return nil, err
		}
		posts = append(posts, post)
	}
	return posts, rows.Err()
}

// ListScanInfo returns the slim preload projection for one library.
func (s *PostStorage) ListScanInfo(ctx context.Context, libraryID int64) ([]*interfaces.PostScanInfo, error) {
	rows, err := s.db.db.QueryContext(ctx,
		`SELECT id, relative_path, content_hash, size_bytes, file_modified_date,
			COALESCE(file_identity_device, ''), COALESCE(file_identity_value, '')
		 FROM posts WHERE library_id = ?`, libraryID)
	if err != nil {
		return nil, fmt.Errorf("failed to load scan info: %w", err)
	}
	defer rows.Close()

	var infos []*interfaces.PostScanInfo
	for rows.Next() {
		info := &interfaces.PostScanInfo{}
		var fileModified int64
		if err := rows.Scan(&info.ID, &info.RelativePath, &info.ContentHash,
			&info.SizeBytes, &fileModified, &info.IdentityDevice, &info.IdentityValue); err != nil {
			return nil, fmt.Errorf("failed to scan post info: %w", err)
		}
		info.FileModifiedDate = unixToTime(fileModified)
		infos = append(infos, info)
	}
	return infos, rows.Err()
}

// ApplyScanChanges applies update and move tickets in one transaction.
// Updates with HashChanged reset width, height and perceptual hash so the
// enrichment jobs reprocess the post; moves recompute the content type from
// the new extension.
func (s *PostStorage) ApplyScanChanges(ctx context.Context, updates []interfaces.ScanUpdate, moves []interfaces.ScanMove) error {
	if len(updates) == 0 && len(moves) == 0 {
		return nil
	}

	return s.db.withTx(ctx, func(tx *sql.Tx) error {
		for _, u := range updates {
			var err error
			switch {
			case u.IdentityOnly:
				_, err = tx.ExecContext(ctx,
					`UPDATE posts SET file_identity_device = ?, file_identity_value = ? WHERE id = ?`,
					nullableString(u.IdentityDevice), nullableString(u.IdentityValue), u.PostID)
			case u.HashChanged:
				_, err = tx.ExecContext(ctx,
					`UPDATE posts SET content_hash = ?, size_bytes = ?, file_modified_date = ?,
						file_identity_device = ?, file_identity_value = ?,
						width = 0, height = 0, perceptual_hash = NULL
					 WHERE id = ?`,
					u.ContentHash, u.SizeBytes, u.FileModifiedDate.Unix(),
					nullableString(u.IdentityDevice), nullableString(u.IdentityValue), u.PostID)
			default:
				_, err = tx.ExecContext(ctx,
					`UPDATE posts SET content_hash = ?, size_bytes = ?, file_modified_date = ?,
						file_identity_device = ?, file_identity_value = ?
					 WHERE id = ?`,
					u.ContentHash, u.SizeBytes, u.FileModifiedDate.Unix(),
					nullableString(u.IdentityDevice), nullableString(u.IdentityValue), u.PostID)
			}
			if err != nil {
				return fmt.Errorf("failed to apply post update %d: %w", u.PostID, mapConstraintErr(err))
			}
		}

		for _, m := range moves {
			_, err := tx.ExecContext(ctx,
				`UPDATE posts SET relative_path = ?, content_hash = ?, size_bytes = ?,
					file_modified_date = ?, content_type = ?,
					file_identity_device = ?, file_identity_value = ?
				 WHERE id = ?`,
				m.NewRelativePath, m.ContentHash, m.SizeBytes,
				m.FileModifiedDate.Unix(), models.ContentTypeForPath(m.NewRelativePath),
				nullableString(m.IdentityDevice), nullableString(m.IdentityValue), m.PostID)
			if err != nil {
				return fmt.Errorf("failed to apply post move %d: %w", m.PostID, mapConstraintErr(err))
			}
		}
		return nil
	})
}

// DeletePosts removes posts by id, chunked, in one transaction. Duplicate
// groups left without entries are swept afterwards.
func (s *PostStorage) DeletePosts(ctx context.Context, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}

	return s.db.withTx(ctx, func(tx *sql.Tx) error {
		for _, chunk := range chunkInt64(ids, deleteBatchSize) {
			query := `DELETE FROM posts WHERE id IN (` + placeholders(len(chunk)) + `)`
			if _, err := tx.ExecContext(ctx, query, int64Args(chunk)...); err != nil {
				return fmt.Errorf("failed to delete posts: %w", err)
			}
		}
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM duplicate_groups WHERE id NOT IN (SELECT DISTINCT group_id FROM duplicate_group_entries)`); err != nil {
			return fmt.Errorf("failed to sweep empty duplicate groups: %w", err)
		}
		return nil
	})
}

// SetFavorite toggles the favorite flag.
func (s *PostStorage) SetFavorite(ctx context.Context, postID int64, favorite bool) error {
	result, err := s.db.db.ExecContext(ctx,
		`UPDATE posts SET is_favorite = ? WHERE id = ?`, favorite, postID)
	if err != nil {
		return fmt.Errorf("failed to set favorite: %w", err)
	}
	return requireRowAffected(result, "post")
}

// UpdateDimensions stores decoded width and height.
func (s *PostStorage) UpdateDimensions(ctx context.Context, postID int64, width, height int) error {
	result, err := s.db.db.ExecContext(ctx,
		`UPDATE posts SET width = ?, height = ? WHERE id = ?`, width, height, postID)
	if err != nil {
		return fmt.Errorf("failed to update dimensions: %w", err)
	}
	return requireRowAffected(result, "post")
}

// UpdatePerceptualHash stores a computed perceptual hash.
func (s *PostStorage) UpdatePerceptualHash(ctx context.Context, postID int64, hash string) error {
	result, err := s.db.db.ExecContext(ctx,
		`UPDATE posts SET perceptual_hash = ? WHERE id = ?`, nullableString(hash), postID)
	if err != nil {
		return fmt.Errorf("failed to update perceptual hash: %w", err)
	}
	return requireRowAffected(result, "post")
}

// buildSearchSQL translates a parsed query into WHERE and ORDER BY clauses.
func buildSearchSQL(query *models.PostQuery) (where string, orderBy string, args []interface{}) {
	var conds []string

	if query.LibraryID != 0 {
		conds = append(conds, `p.library_id = ?`)
		args = append(args, query.LibraryID)
	}

	for _, name := range query.IncludedTags {
		conds = append(conds, `EXISTS (SELECT 1 FROM post_tags pt JOIN tags t ON t.id = pt.tag_id
			WHERE pt.post_id = p.id AND t.name = ?)`)
		args = append(args, name)
	}
	for _, name := range query.ExcludedTags {
		conds = append(conds, `NOT EXISTS (SELECT 1 FROM post_tags pt JOIN tags t ON t.id = pt.tag_id
			WHERE pt.post_id = p.id AND t.name = ?)`)
		args = append(args, name)
	}

	if len(query.IncludedTypes) > 0 {
		var typeConds []string
		for _, kind := range query.IncludedTypes {
			cond, kindArgs := kindCondition(kind)
			typeConds = append(typeConds, cond)
			args = append(args, kindArgs...)
		}
		conds = append(conds, `(`+strings.Join(typeConds, " OR ")+`)`)
	}
	for _, kind := range query.ExcludedTypes {
		cond, kindArgs := kindCondition(kind)
		conds = append(conds, `NOT `+cond)
		args = append(args, kindArgs...)
	}

	if query.TagCount != nil {
		conds = append(conds, fmt.Sprintf(
			`(SELECT COUNT(DISTINCT tag_id) FROM post_tags WHERE post_id = p.id) %s ?`, query.TagCount.Op))
		args = append(args, query.TagCount.Value)
	}

	if query.Favorite != nil {
		conds = append(conds, `p.is_favorite = ?`)
		args = append(args, *query.Favorite)
	}

	// Filename globs match the basename: either the whole path (root-level
	// files) or everything after the last slash. SQLite GLOB supports the
	// * and ? metacharacters the query syntax allows.
	for _, glob := range query.FilenameIncludes {
		conds = append(conds, `(p.relative_path GLOB ? OR p.relative_path GLOB ?)`)
		args = append(args, glob, "*/"+glob)
	}
	for _, glob := range query.FilenameExcludes {
		conds = append(conds, `NOT (p.relative_path GLOB ? OR p.relative_path GLOB ?)`)
		args = append(args, glob, "*/"+glob)
	}

	where = ""
	if len(conds) > 0 {
		where = ` WHERE ` + strings.Join(conds, " AND ")
	}

	column := map[models.SortField]string{
		models.SortFileModifiedDate: "p.file_modified_date",
		models.SortImportDate:       "p.import_date",
		models.SortTagCount:         "(SELECT COUNT(DISTINCT tag_id) FROM post_tags WHERE post_id = p.id)",
		models.SortWidth:            "p.width",
		models.SortHeight:           "p.height",
		models.SortSizeBytes:        "p.size_bytes",
		models.SortID:               "p.id",
	}[query.SortField]
	if column == "" {
		column = "p.file_modified_date"
	}
	direction := "DESC"
	if query.SortDirection == models.SortAsc {
		direction = "ASC"
	}
	// Secondary id ordering keeps paging stable.
	orderBy = fmt.Sprintf(` ORDER BY %s %s, p.id %s`, column, direction, direction)
	return where, orderBy, args
}

func kindCondition(kind models.MediaKind) (string, []interface{}) {
	switch kind {
	case models.MediaKindGif:
		return `p.content_type = ?`, []interface{}{"image/gif"}
	case models.MediaKindVideo:
		return `p.content_type LIKE 'video/%'`, nil
	default:
		return `(p.content_type LIKE 'image/%' AND p.content_type != ?)`, []interface{}{"image/gif"}
	}
}

// SearchPosts runs a parsed post-list query with paging and returns the
// page plus the total match count.
func (s *PostStorage) SearchPosts(ctx context.Context, query *models.PostQuery, limit, offset int) ([]*models.Post, int64, error) {
	where, orderBy, args := buildSearchSQL(query)

	var total int64
	countQuery := `SELECT COUNT(*) FROM posts p` + where
	if err := s.db.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count posts: %w", err)
	}

	if limit <= 0 {
		limit = 50
	}
	pageQuery := `SELECT ` + postColumns + ` FROM posts p` + where + orderBy + ` LIMIT ? OFFSET ?`
	pageArgs := append(append([]interface{}{}, args...), limit, offset)

	rows, err := s.db.db.QueryContext(ctx, pageQuery, pageArgs...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to search posts: %w", err)
	}
	defer rows.Close()

	posts, err := collectPosts(rows)
	if err != nil {
		return nil, 0, err
	}
	return posts, total, nil
}

// ListPostIDs returns every matching post id in query order.
func (s *PostStorage) ListPostIDs(ctx context.Context, query *models.PostQuery) ([]int64, error) {
	where, orderBy, args := buildSearchSQL(query)

	rows, err := s.db.db.QueryContext(ctx, `SELECT p.id FROM posts p`+where+orderBy, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list post ids: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan post id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// ListPostsNeedingMetadata returns posts the metadata job should process.
func (s *PostStorage) ListPostsNeedingMetadata(ctx context.Context, all bool) ([]*models.Post, error) {
	query := `SELECT ` + postColumns + ` FROM posts WHERE width = 0 ORDER BY id`
	if all {
		query = `SELECT ` + postColumns + ` FROM posts ORDER BY id`
	}
	rows, err := s.db.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list posts needing metadata: %w", err)
	}
	defer rows.Close()
	return collectPosts(rows)
}

// ListImagePostsNeedingPhash returns image posts the perceptual-hash job
// should process. Videos never qualify.
func (s *PostStorage) ListImagePostsNeedingPhash(ctx context.Context, all bool) ([]*models.Post, error) {
	query := `SELECT ` + postColumns + ` FROM posts
		WHERE content_type LIKE 'image/%' AND perceptual_hash IS NULL ORDER BY id`
	if all {
		query = `SELECT ` + postColumns + ` FROM posts WHERE content_type LIKE 'image/%' ORDER BY id`
	}
	rows, err := s.db.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list posts needing perceptual hash: %w", err)
	}
	defer rows.Close()
	return collectPosts(rows)
}

// ListThumbRefs returns the distinct (library, content hash) pairs a
// thumbnail may exist for.
func (s *PostStorage) ListThumbRefs(ctx context.Context) ([]interfaces.ThumbRef, error) {
	rows, err := s.db.db.QueryContext(ctx,
		`SELECT DISTINCT library_id, content_hash FROM posts`)
	if err != nil {
		return nil, fmt.Errorf("failed to list thumbnail refs: %w", err)
	}
	defer rows.Close()

	var refs []interfaces.ThumbRef
	for rows.Next() {
		var ref interfaces.ThumbRef
		if err := rows.Scan(&ref.LibraryID, &ref.ContentHash); err != nil {
			return nil, fmt.Errorf("failed to scan thumbnail ref: %w", err)
		}
		refs = append(refs, ref)
	}
	return refs, rows.Err()
}

// ListPostSources returns a post's sources in declared order.
func (s *PostStorage) ListPostSources(ctx context.Context, postID int64) ([]*models.PostSource, error) {
	rows, err := s.db.db.QueryContext(ctx,
		`SELECT post_id, url, sort_order FROM post_sources WHERE post_id = ? ORDER BY sort_order`, postID)
	if err != nil {
		return nil, fmt.Errorf("failed to list post sources: %w", err)
	}
	defer rows.Close()

	var sources []*models.PostSource
	for rows.Next() {
		src := &models.PostSource{}
		if err := rows.Scan(&src.PostID, &src.URL, &src.Order); err != nil {
			return nil, fmt.Errorf("failed to scan post source: %w", err)
		}
		sources = append(sources, src)
	}
	return sources, rows.Err()
}

// SetPostSources replaces a post's source list, preserving the given order
// and dropping duplicate URLs.
func (s *PostStorage) SetPostSources(ctx context.Context, postID int64, urls []string) error {
	return s.db.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM post_sources WHERE post_id = ?`, postID); err != nil {
			return fmt.Errorf("failed to clear post sources: %w", err)
		}

		seen := make(map[string]bool, len(urls))
		order := 0
		for _, url := range urls {
			if url == "" || seen[url] {
				continue
			}
			seen[url] = true
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO post_sources (post_id, url, sort_order) VALUES (?, ?, ?)`,
				postID, url, order); err != nil {
				return fmt.Errorf("failed to insert post source: %w", mapConstraintErr(err))
			}
			order++
		}
		return nil
	})
}
