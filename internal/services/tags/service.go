package tags

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/imago/internal/interfaces"
	"github.com/ternarybob/imago/internal/models"
)

var validate = validator.New()

// Service implements TagService. Tag names are normalized to lowercase on
// every write path.
type Service struct {
	storage interfaces.StorageManager
	logger  arbor.ILogger
}

// NewService creates a new tag service
func NewService(storage interfaces.StorageManager, logger arbor.ILogger) interfaces.TagService {
	return &Service{storage: storage, logger: logger}
}

func normalizeTagName(name string) (string, error) {
	normalized := strings.ToLower(strings.TrimSpace(name))
	if normalized == "" {
		return "", fmt.Errorf("tag name cannot be empty: %w", interfaces.ErrInvalidInput)
	}
	return normalized, nil
}

func (s *Service) CreateTag(ctx context.Context, name string, categoryID *int64) (*models.Tag, error) {
	normalized, err := normalizeTagName(name)
	if err != nil {
		return nil, err
	}
	tag := &models.Tag{Name: normalized, TagCategoryID: categoryID}
	if err := s.storage.Tags().CreateTag(ctx, tag); err != nil {
		return nil, err
	}
	return tag, nil
}

func (s *Service) GetTag(ctx context.Context, id int64) (*models.Tag, error) {
	return s.storage.Tags().GetTag(ctx, id)
}

func (s *Service) ListTags(ctx context.Context) ([]*models.Tag, error) {
	return s.storage.Tags().ListTags(ctx)
}

func (s *Service) UpdateTag(ctx context.Context, tag *models.Tag) error {
	normalized, err := normalizeTagName(tag.Name)
	if err != nil {
		return err
	}
	tag.Name = normalized
	return s.storage.Tags().UpdateTag(ctx, tag)
}

func (s *Service) DeleteTag(ctx context.Context, id int64) error {
	return s.storage.Tags().DeleteTag(ctx, id)
}

func (s *Service) CreateCategory(ctx context.Context, category *models.TagCategory) error {
	if err := validate.Struct(category); err != nil {
		return fmt.Errorf("invalid category: %v: %w", err, interfaces.ErrInvalidInput)
	}
	return s.storage.Tags().CreateCategory(ctx, category)
}

func (s *Service) ListCategories(ctx context.Context) ([]*models.TagCategory, error) {
	return s.storage.Tags().ListCategories(ctx)
}

func (s *Service) UpdateCategory(ctx context.Context, category *models.TagCategory) error {
	if err := validate.Struct(category); err != nil {
		return fmt.Errorf("invalid category: %v: %w", err, interfaces.ErrInvalidInput)
	}
	return s.storage.Tags().UpdateCategory(ctx, category)
}

func (s *Service) DeleteCategory(ctx context.Context, id int64) error {
	return s.storage.Tags().DeleteCategory(ctx, id)
}

// AddPostTag links a tag to a post by name, creating the tag when it does
// not exist yet.
func (s *Service) AddPostTag(ctx context.Context, postID int64, tagName string, source models.TagSource) (*models.Tag, error) {
	normalized, err := normalizeTagName(tagName)
	if err != nil {
		return nil, err
	}
	if _, err := s.storage.Posts().GetPost(ctx, postID); err != nil {
		return nil, err
	}

	tag, err := s.storage.Tags().GetTagByName(ctx, normalized)
	if errors.Is(err, interfaces.ErrNotFound) {
		tag = &models.Tag{Name: normalized}
		if createErr := s.storage.Tags().CreateTag(ctx, tag); createErr != nil {
			// Lost a race with a concurrent creator; read the winner.
			if !errors.Is(createErr, interfaces.ErrConflict) {
				return nil, createErr
			}
			tag, err = s.storage.Tags().GetTagByName(ctx, normalized)
			if err != nil {
				return nil, err
			}
		}
	} else if err != nil {
		return nil, err
	}

	link := &models.PostTag{PostID: postID, TagID: tag.ID, Source: source}
	if err := s.storage.Tags().AddPostTag(ctx, link); err != nil {
		return nil, err
	}
	return tag, nil
}

func (s *Service) RemovePostTag(ctx context.Context, postID, tagID int64, source models.TagSource) error {
	return s.storage.Tags().RemovePostTag(ctx, postID, tagID, source)
}

func (s *Service) ListPostTags(ctx context.Context, postID int64) ([]*models.PostTag, error) {
	if _, err := s.storage.Posts().GetPost(ctx, postID); err != nil {
		return nil, err
	}
	return s.storage.Tags().ListPostTags(ctx, postID)
}

// Merge folds every link of sourceID into targetID and deletes the source.
func (s *Service) Merge(ctx context.Context, sourceID, targetID int64) error {
	if err := s.storage.Tags().MergeTags(ctx, sourceID, targetID); err != nil {
		return err
	}
	s.logger.Info().Int64("source_id", sourceID).Int64("target_id", targetID).Msg("Tags merged")
	return nil
}
