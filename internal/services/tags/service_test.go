package tags

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/imago/internal/common"
	"github.com/ternarybob/imago/internal/interfaces"
	"github.com/ternarybob/imago/internal/models"
	"github.com/ternarybob/imago/internal/storage/sqlite"
)

type tagFixture struct {
	storage interfaces.StorageManager
	service interfaces.TagService
	post    *models.Post
}

func newTagFixture(t *testing.T) *tagFixture {
	t.Helper()
	logger := arbor.NewLogger()
	ctx := context.Background()

	storage, err := sqlite.NewManager(logger, &common.SQLiteConfig{
		Path:          t.TempDir() + "/catalog.db",
		CacheSizeMB:   10,
		BusyTimeoutMS: 5000,
	})
	require.NoError(t, err)
	t.Cleanup(func() { storage.Close() })

	library := &models.Library{Name: "main", RootPath: t.TempDir()}
	require.NoError(t, storage.Libraries().CreateLibrary(ctx, library))

	post := &models.Post{
		LibraryID:    library.ID,
		RelativePath: "photo.jpg",
		ContentHash:  "hash-a",
		SizeBytes:    1024,
		ContentType:  models.ContentTypeForPath("photo.jpg"),
	}
	require.NoError(t, storage.Posts().InsertPosts(ctx, []*models.Post{post}))

	return &tagFixture{
		storage: storage,
		service: NewService(storage, logger),
		post:    post,
	}
}

func TestService_CreateTagNormalizesName(t *testing.T) {
	f := newTagFixture(t)
	ctx := context.Background()

	tag, err := f.service.CreateTag(ctx, "  LandScape ", nil)
	require.NoError(t, err)
	assert.Equal(t, "landscape", tag.Name)

	_, err = f.service.CreateTag(ctx, "Landscape", nil)
	assert.True(t, errors.Is(err, interfaces.ErrConflict))

	_, err = f.service.CreateTag(ctx, "   ", nil)
	assert.True(t, errors.Is(err, interfaces.ErrInvalidInput))
}

func TestService_AddPostTagCreatesMissingTag(t *testing.T) {
	f := newTagFixture(t)
	ctx := context.Background()

	tag, err := f.service.AddPostTag(ctx, f.post.ID, "Sunset", models.TagSourceManual)
	require.NoError(t, err)
	assert.Equal(t, "sunset", tag.Name)
	assert.NotZero(t, tag.ID)

	links, err := f.service.ListPostTags(ctx, f.post.ID)
	require.NoError(t, err)
	require.Len(t, links, 1)
	assert.Equal(t, tag.ID, links[0].TagID)
	assert.Equal(t, models.TagSourceManual, links[0].Source)

	// Second manual add of the same tag is a conflict.
	_, err = f.service.AddPostTag(ctx, f.post.ID, "sunset", models.TagSourceManual)
	assert.True(t, errors.Is(err, interfaces.ErrConflict))

	// Automated sources are idempotent and reuse the existing tag.
	again, err := f.service.AddPostTag(ctx, f.post.ID, "sunset", models.TagSourceFolder)
	require.NoError(t, err)
	assert.Equal(t, tag.ID, again.ID)

	_, err = f.service.AddPostTag(ctx, 9999, "sunset", models.TagSourceManual)
	assert.True(t, errors.Is(err, interfaces.ErrNotFound))
}

func TestService_RemovePostTag(t *testing.T) {
	f := newTagFixture(t)
	ctx := context.Background()

	tag, err := f.service.AddPostTag(ctx, f.post.ID, "sunset", models.TagSourceManual)
	require.NoError(t, err)

	require.NoError(t, f.service.RemovePostTag(ctx, f.post.ID, tag.ID, models.TagSourceManual))

	links, err := f.service.ListPostTags(ctx, f.post.ID)
	require.NoError(t, err)
	assert.Empty(t, links)

	err = f.service.RemovePostTag(ctx, f.post.ID, tag.ID, models.TagSourceManual)
	assert.True(t, errors.Is(err, interfaces.ErrNotFound))
}

func TestService_Categories(t *testing.T) {
	f := newTagFixture(t)
	ctx := context.Background()

	category := &models.TagCategory{Name: "subject", Color: "#ff0000", Order: 1}
	require.NoError(t, f.service.CreateCategory(ctx, category))
	assert.NotZero(t, category.ID)

	err := f.service.CreateCategory(ctx, &models.TagCategory{Name: ""})
	assert.True(t, errors.Is(err, interfaces.ErrInvalidInput))

	tag, err := f.service.CreateTag(ctx, "sunset", &category.ID)
	require.NoError(t, err)

	got, err := f.service.GetTag(ctx, tag.ID)
	require.NoError(t, err)
	require.NotNil(t, got.TagCategoryID)
	assert.Equal(t, category.ID, *got.TagCategoryID)
}

func TestService_Merge(t *testing.T) {
	f := newTagFixture(t)
	ctx := context.Background()

	source, err := f.service.AddPostTag(ctx, f.post.ID, "sun-set", models.TagSourceManual)
	require.NoError(t, err)
	target, err := f.service.CreateTag(ctx, "sunset", nil)
	require.NoError(t, err)

	require.NoError(t, f.service.Merge(ctx, source.ID, target.ID))

	_, err = f.service.GetTag(ctx, source.ID)
	assert.True(t, errors.Is(err, interfaces.ErrNotFound))

	links, err := f.service.ListPostTags(ctx, f.post.ID)
	require.NoError(t, err)
	require.Len(t, links, 1)
	assert.Equal(t, target.ID, links[0].TagID)
}
