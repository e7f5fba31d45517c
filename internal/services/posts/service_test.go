package posts

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/imago/internal/common"
	"github.com/ternarybob/imago/internal/interfaces"
	"github.com/ternarybob/imago/internal/models"
	"github.com/ternarybob/imago/internal/storage/sqlite"
)

type postFixture struct {
	storage   interfaces.StorageManager
	service   interfaces.PostService
	library   *models.Library
	thumbRoot string
}

func newPostFixture(t *testing.T) *postFixture {
	t.Helper()
	logger := arbor.NewLogger()

	storage, err := sqlite.NewManager(logger, &common.SQLiteConfig{
		Path:          t.TempDir() + "/catalog.db",
		CacheSizeMB:   10,
		BusyTimeoutMS: 5000,
	})
	require.NoError(t, err)
	t.Cleanup(func() { storage.Close() })

	thumbRoot := t.TempDir()
	library := &models.Library{Name: "main", RootPath: t.TempDir()}
	require.NoError(t, storage.Libraries().CreateLibrary(context.Background(), library))

	return &postFixture{
		storage:   storage,
		service:   NewService(storage, thumbRoot, logger),
		library:   library,
		thumbRoot: thumbRoot,
	}
}

func (f *postFixture) insertPost(t *testing.T, relativePath, contentHash string, modified time.Time) *models.Post {
	t.Helper()
	post := &models.Post{
		LibraryID:        f.library.ID,
		RelativePath:     relativePath,
		ContentHash:      contentHash,
		SizeBytes:        1024,
		FileModifiedDate: modified,
		ContentType:      models.ContentTypeForPath(relativePath),
	}
	require.NoError(t, f.storage.Posts().InsertPosts(context.Background(), []*models.Post{post}))
	return post
}

func TestService_SearchAndNeighbors(t *testing.T) {
	f := newPostFixture(t)
	ctx := context.Background()

	base := time.Now().UTC().Truncate(time.Second)
	oldest := f.insertPost(t, "a.jpg", "hash-a", base.Add(-2*time.Hour))
	middle := f.insertPost(t, "b.jpg", "hash-b", base.Add(-time.Hour))
	newest := f.insertPost(t, "c.jpg", "hash-c", base)

	// Default ordering is file-modified-date descending.
	results, total, err := f.service.Search(ctx, "", f.library.ID, 10, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(3), total)
	require.Len(t, results, 3)
	assert.Equal(t, newest.ID, results[0].ID)
	assert.Equal(t, oldest.ID, results[2].ID)

	prev, next, err := f.service.Neighbors(ctx, middle.ID, "", f.library.ID)
	require.NoError(t, err)
	assert.Equal(t, newest.ID, prev)
	assert.Equal(t, oldest.ID, next)

	prev, next, err = f.service.Neighbors(ctx, newest.ID, "", f.library.ID)
	require.NoError(t, err)
	assert.Zero(t, prev)
	assert.Equal(t, middle.ID, next)

	prev, next, err = f.service.Neighbors(ctx, oldest.ID, "", f.library.ID)
	require.NoError(t, err)
	assert.Equal(t, middle.ID, prev)
	assert.Zero(t, next)

	// A post outside the query has no neighbors.
	require.NoError(t, f.service.SetFavorite(ctx, newest.ID, true))
	_, _, err = f.service.Neighbors(ctx, middle.ID, "favorite:true", f.library.ID)
	assert.True(t, errors.Is(err, interfaces.ErrNotFound))
}

func TestService_SearchRejectsBadQuery(t *testing.T) {
	f := newPostFixture(t)

	_, _, err := f.service.Search(context.Background(), "sort:rating", f.library.ID, 10, 0)
	assert.True(t, errors.Is(err, interfaces.ErrInvalidInput))
}

func TestService_ContentPath(t *testing.T) {
	f := newPostFixture(t)
	ctx := context.Background()

	post := f.insertPost(t, "sub/photo.jpg", "hash-a", time.Now())

	path, err := f.service.ContentPath(ctx, post.ID)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(f.library.RootPath, "sub", "photo.jpg"), path)

	_, err = f.service.ContentPath(ctx, 9999)
	assert.True(t, errors.Is(err, interfaces.ErrNotFound))
}

func TestService_ThumbnailPath(t *testing.T) {
	f := newPostFixture(t)
	ctx := context.Background()

	post := f.insertPost(t, "photo.jpg", "abcdef0123456789", time.Now())

	path, err := f.service.ThumbnailPath(ctx, post.ID)
	require.NoError(t, err)
	want := filepath.Join(f.thumbRoot, "1", "ab", "cd", "abcdef0123456789.jpg")
	assert.Equal(t, want, path)
}

func TestService_Sources(t *testing.T) {
	f := newPostFixture(t)
	ctx := context.Background()

	post := f.insertPost(t, "photo.jpg", "hash-a", time.Now())

	require.NoError(t, f.service.SetSources(ctx, post.ID, []string{
		"https://example.com/a",
		"https://example.com/b",
	}))

	sources, err := f.service.Sources(ctx, post.ID)
	require.NoError(t, err)
	require.Len(t, sources, 2)
	assert.Equal(t, "https://example.com/a", sources[0].URL)
	assert.Equal(t, 0, sources[0].Order)

	err = f.service.SetSources(ctx, 9999, []string{"https://example.com"})
	assert.True(t, errors.Is(err, interfaces.ErrNotFound))
}
