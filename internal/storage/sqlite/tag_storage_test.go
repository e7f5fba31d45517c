package sqlite

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/imago/internal/interfaces"
	"github.com/ternarybob/imago/internal/models"
)

func TestTagStorage_CreateAndGet(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	storage := NewTagStorage(db, arbor.NewLogger())
	ctx := context.Background()

	tag := &models.Tag{Name: "landscape"}
	require.NoError(t, storage.CreateTag(ctx, tag))
	assert.NotZero(t, tag.ID)

	loaded, err := storage.GetTagByName(ctx, "landscape")
	require.NoError(t, err)
	assert.Equal(t, tag.ID, loaded.ID)
	assert.Zero(t, loaded.PostCount)

	// Names are unique.
	err = storage.CreateTag(ctx, &models.Tag{Name: "landscape"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, interfaces.ErrConflict))
}

func TestTagStorage_Categories(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	storage := NewTagStorage(db, arbor.NewLogger())
	ctx := context.Background()

	category := &models.TagCategory{Name: "subject", Color: "#ff8800", Order: 2}
	require.NoError(t, storage.CreateCategory(ctx, category))

	tag := &models.Tag{Name: "portrait", TagCategoryID: &category.ID}
	require.NoError(t, storage.CreateTag(ctx, tag))

	loaded, err := storage.GetTag(ctx, tag.ID)
	require.NoError(t, err)
	require.NotNil(t, loaded.TagCategoryID)
	assert.Equal(t, category.ID, *loaded.TagCategoryID)

	// Deleting the category detaches its tags instead of deleting them.
	require.NoError(t, storage.DeleteCategory(ctx, category.ID))
	loaded, err = storage.GetTag(ctx, tag.ID)
	require.NoError(t, err)
	assert.Nil(t, loaded.TagCategoryID)
}

func TestTagStorage_PostTagLinks(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	storage := NewTagStorage(db, arbor.NewLogger())
	ctx := context.Background()
	library := mustCreateLibrary(t, db, "links")
	post := mustInsertPost(t, db, library.ID, "p.jpg", "h1")

	tag := &models.Tag{Name: "cat"}
	require.NoError(t, storage.CreateTag(ctx, tag))

	link := &models.PostTag{PostID: post.ID, TagID: tag.ID, Source: models.TagSourceManual}
	require.NoError(t, storage.AddPostTag(ctx, link))

	// Manual over manual conflicts.
	err := storage.AddPostTag(ctx, link)
	require.Error(t, err)
	assert.True(t, errors.Is(err, interfaces.ErrConflict))

	// The same pair from an automated source is a distinct link, and
	// re-adding it is an idempotent success.
	folderLink := &models.PostTag{PostID: post.ID, TagID: tag.ID, Source: models.TagSourceFolder}
	require.NoError(t, storage.AddPostTag(ctx, folderLink))
	require.NoError(t, storage.AddPostTag(ctx, folderLink))

	links, err := storage.ListPostTags(ctx, post.ID)
	require.NoError(t, err)
	assert.Len(t, links, 2)

	// PostCount counts distinct posts, not links.
	loaded, err := storage.GetTag(ctx, tag.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), loaded.PostCount)

	require.NoError(t, storage.RemovePostTag(ctx, post.ID, tag.ID, models.TagSourceFolder))
	links, err = storage.ListPostTags(ctx, post.ID)
	require.NoError(t, err)
	assert.Len(t, links, 1)

	err = storage.RemovePostTag(ctx, post.ID, tag.ID, models.TagSourceFolder)
	assert.True(t, errors.Is(err, interfaces.ErrNotFound))
}

func TestTagStorage_MergeTags(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	storage := NewTagStorage(db, arbor.NewLogger())
	ctx := context.Background()
	library := mustCreateLibrary(t, db, "merge")
	a := mustInsertPost(t, db, library.ID, "a.jpg", "h1")
	b := mustInsertPost(t, db, library.ID, "b.jpg", "h2")

	category := &models.TagCategory{Name: "animals"}
	require.NoError(t, storage.CreateCategory(ctx, category))

	source := &models.Tag{Name: "kitty", TagCategoryID: &category.ID}
	target := &models.Tag{Name: "cat"}
	require.NoError(t, storage.CreateTag(ctx, source))
	require.NoError(t, storage.CreateTag(ctx, target))

	// a holds both tags; b holds only the source tag.
	require.NoError(t, storage.AddPostTag(ctx, &models.PostTag{PostID: a.ID, TagID: source.ID, Source: models.TagSourceManual}))
	require.NoError(t, storage.AddPostTag(ctx, &models.PostTag{PostID: a.ID, TagID: target.ID, Source: models.TagSourceManual}))
	require.NoError(t, storage.AddPostTag(ctx, &models.PostTag{PostID: b.ID, TagID: source.ID, Source: models.TagSourceAutoTagger}))

	require.NoError(t, storage.MergeTags(ctx, source.ID, target.ID))

	// The source tag is gone.
	_, err := storage.GetTag(ctx, source.ID)
	assert.True(t, errors.Is(err, interfaces.ErrNotFound))

	// Both posts now carry the target; a was not double-linked.
	merged, err := storage.GetTag(ctx, target.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), merged.PostCount)

	// The target inherited the source's category.
	require.NotNil(t, merged.TagCategoryID)
	assert.Equal(t, category.ID, *merged.TagCategoryID)

	// Self-merge is rejected.
	err = storage.MergeTags(ctx, target.ID, target.ID)
	assert.True(t, errors.Is(err, interfaces.ErrInvalidInput))
}

func TestTagStorage_InheritTagLinks(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	storage := NewTagStorage(db, arbor.NewLogger())
	ctx := context.Background()
	library := mustCreateLibrary(t, db, "inherit")

	// Existing post with manual and folder tags; the new post shares its hash.
	existing := mustInsertPost(t, db, library.ID, "old/pic.jpg", "shared")
	added := mustInsertPost(t, db, library.ID, "new/pic.jpg", "shared")
	unrelated := mustInsertPost(t, db, library.ID, "other.jpg", "different")

	manual := &models.Tag{Name: "favorite-subject"}
	folder := &models.Tag{Name: "old"}
	require.NoError(t, storage.CreateTag(ctx, manual))
	require.NoError(t, storage.CreateTag(ctx, folder))
	require.NoError(t, storage.AddPostTag(ctx, &models.PostTag{PostID: existing.ID, TagID: manual.ID, Source: models.TagSourceManual}))
	require.NoError(t, storage.AddPostTag(ctx, &models.PostTag{PostID: existing.ID, TagID: folder.ID, Source: models.TagSourceFolder}))

	copied, err := storage.InheritTagLinks(ctx, library.ID, []string{"new/pic.jpg", "other.jpg"})
	require.NoError(t, err)
	assert.Equal(t, 1, copied)

	// Only the manual link was inherited; folder tags derive from location.
	links, err := storage.ListPostTags(ctx, added.ID)
	require.NoError(t, err)
	require.Len(t, links, 1)
	assert.Equal(t, manual.ID, links[0].TagID)
	assert.Equal(t, models.TagSourceManual, links[0].Source)

	links, err = storage.ListPostTags(ctx, unrelated.ID)
	require.NoError(t, err)
	assert.Empty(t, links)
}
