package posts

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/imago/internal/interfaces"
	"github.com/ternarybob/imago/internal/models"
)

// Service implements PostService: search, navigation, favorites, sources,
// and path resolution for content and thumbnails.
type Service struct {
	storage   interfaces.StorageManager
	thumbRoot string
	logger    arbor.ILogger
}

// NewService creates a new post service. thumbRoot is the resolved thumbnail
// storage root.
func NewService(storage interfaces.StorageManager, thumbRoot string, logger arbor.ILogger) interfaces.PostService {
	return &Service{
		storage:   storage,
		thumbRoot: thumbRoot,
		logger:    logger,
	}
}

// Search parses the query string and runs it with paging.
func (s *Service) Search(ctx context.Context, queryString string, libraryID int64, limit, offset int) ([]*models.Post, int64, error) {
	query, err := ParseQuery(queryString)
	if err != nil {
		return nil, 0, err
	}
	query.LibraryID = libraryID
	return s.storage.Posts().SearchPosts(ctx, query, limit, offset)
}

func (s *Service) Get(ctx context.Context, id int64) (*models.Post, error) {
	return s.storage.Posts().GetPost(ctx, id)
}

// Neighbors locates postID inside the query's full ordering and returns its
// previous and next ids; 0 means no neighbor on that side.
func (s *Service) Neighbors(ctx context.Context, postID int64, queryString string, libraryID int64) (int64, int64, error) {
	query, err := ParseQuery(queryString)
	if err != nil {
		return 0, 0, err
	}
	query.LibraryID = libraryID

	ids, err := s.storage.Posts().ListPostIDs(ctx, query)
	if err != nil {
		return 0, 0, err
	}

	for i, id := range ids {
		if id != postID {
			continue
		}
		var prev, next int64
		if i > 0 {
			prev = ids[i-1]
		}
		if i < len(ids)-1 {
			next = ids[i+1]
		}
		return prev, next, nil
	}
	return 0, 0, fmt.Errorf("post %d does not match the query: %w", postID, interfaces.ErrNotFound)
}

func (s *Service) SetFavorite(ctx context.Context, postID int64, favorite bool) error {
	return s.storage.Posts().SetFavorite(ctx, postID, favorite)
}

func (s *Service) Sources(ctx context.Context, postID int64) ([]*models.PostSource, error) {
	if _, err := s.storage.Posts().GetPost(ctx, postID); err != nil {
		return nil, err
	}
	return s.storage.Posts().ListPostSources(ctx, postID)
}

func (s *Service) SetSources(ctx context.Context, postID int64, urls []string) error {
	if _, err := s.storage.Posts().GetPost(ctx, postID); err != nil {
		return err
	}
	return s.storage.Posts().SetPostSources(ctx, postID, urls)
}

// ContentPath resolves a post to its absolute on-disk path.
func (s *Service) ContentPath(ctx context.Context, postID int64) (string, error) {
	post, err := s.storage.Posts().GetPost(ctx, postID)
	if err != nil {
		return "", err
	}
	library, err := s.storage.Libraries().GetLibrary(ctx, post.LibraryID)
	if err != nil {
		return "", err
	}
	return filepath.Join(library.RootPath, filepath.FromSlash(post.RelativePath)), nil
}

// ThumbnailPath returns the sharded thumbnail location for a post, whether
// or not the file exists yet.
func (s *Service) ThumbnailPath(ctx context.Context, postID int64) (string, error) {
	post, err := s.storage.Posts().GetPost(ctx, postID)
	if err != nil {
		return "", err
	}
	return ThumbnailFilePath(s.thumbRoot, post.LibraryID, post.ContentHash), nil
}

// ThumbnailFilePath builds the two-level sharded thumbnail path
// <root>/<libraryID>/<hash[0:2]>/<hash[2:4]>/<hash>.jpg.
func ThumbnailFilePath(thumbRoot string, libraryID int64, contentHash string) string {
	shard1, shard2 := "00", "00"
	if len(contentHash) >= 4 {
		shard1, shard2 = contentHash[0:2], contentHash[2:4]
	}
	return filepath.Join(thumbRoot, fmt.Sprintf("%d", libraryID), shard1, shard2, contentHash+".jpg")
}
