package posts

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/ternarybob/imago/internal/interfaces"
	"github.com/ternarybob/imago/internal/models"
)

// ParseQuery parses a post-list query string. Tokens are space-separated; a
// leading '-' negates; key:value tokens are directives (type, tag-count,
// favorite, filename, sort); everything else is a tag name. Backslash
// escapes a literal colon inside a tag name.
func ParseQuery(input string) (*models.PostQuery, error) {
	query := models.DefaultPostQuery()

	for _, token := range strings.Fields(input) {
		negated := false
		if strings.HasPrefix(token, "-") && len(token) > 1 {
			negated = true
			token = token[1:]
		}

		key, value, isDirective := splitDirective(token)
		if !isDirective {
			name := strings.ToLower(unescape(token))
			if negated {
				query.ExcludedTags = append(query.ExcludedTags, name)
			} else {
				query.IncludedTags = append(query.IncludedTags, name)
			}
			continue
		}

		switch key {
		case "type":
			kinds, err := parseKinds(value)
			if err != nil {
				return nil, err
			}
			if negated {
				query.ExcludedTypes = append(query.ExcludedTypes, kinds...)
			} else {
				query.IncludedTypes = append(query.IncludedTypes, kinds...)
			}
		case "tag-count":
			filter, err := parseTagCount(value)
			if err != nil {
				return nil, err
			}
			query.TagCount = filter
		case "favorite":
			favorite, err := strconv.ParseBool(value)
			if err != nil {
				return nil, fmt.Errorf("invalid favorite value %q: %w", value, interfaces.ErrInvalidInput)
			}
			if negated {
				favorite = !favorite
			}
			query.Favorite = &favorite
		case "filename":
			glob := unescape(value)
			if glob == "" {
				return nil, fmt.Errorf("empty filename glob: %w", interfaces.ErrInvalidInput)
			}
			if negated {
				query.FilenameExcludes = append(query.FilenameExcludes, glob)
			} else {
				query.FilenameIncludes = append(query.FilenameIncludes, glob)
			}
		case "sort":
			field, direction, err := parseSort(value)
			if err != nil {
				return nil, err
			}
			query.SortField = field
			query.SortDirection = direction
		default:
			// Unknown directive keys read as tag names containing a colon.
			name := strings.ToLower(unescape(token))
			if negated {
				query.ExcludedTags = append(query.ExcludedTags, name)
			} else {
				query.IncludedTags = append(query.IncludedTags, name)
			}
		}
	}

	return query, nil
}

// splitDirective finds the first unescaped colon. A token with no such colon
// is a plain tag.
func splitDirective(token string) (key, value string, ok bool) {
	for i := 0; i < len(token); i++ {
		switch token[i] {
		case '\\':
			i++
		case ':':
			return token[:i], token[i+1:], true
		}
	}
	return "", "", false
}

// unescape drops backslashes used to escape colons.
func unescape(s string) string {
	if !strings.Contains(s, "\\") {
		return s
	}
	var sb strings.Builder
	for i := 0; i < len(s); i++ {
		if s[i] == '\\' && i+1 < len(s) {
			i++
		}
		sb.WriteByte(s[i])
	}
	return sb.String()
}

func parseKinds(value string) ([]models.MediaKind, error) {
	var kinds []models.MediaKind
	for _, part := range strings.Split(value, ",") {
		switch models.MediaKind(strings.ToLower(strings.TrimSpace(part))) {
		case models.MediaKindImage:
			kinds = append(kinds, models.MediaKindImage)
		case models.MediaKindGif:
			kinds = append(kinds, models.MediaKindGif)
		case models.MediaKindVideo:
			kinds = append(kinds, models.MediaKindVideo)
		default:
			return nil, fmt.Errorf("unknown media type %q: %w", part, interfaces.ErrInvalidInput)
		}
	}
	return kinds, nil
}

func parseTagCount(value string) (*models.TagCountFilter, error) {
	ops := []models.TagCountOp{
		models.TagCountGe,
		models.TagCountLe,
		models.TagCountGt,
		models.TagCountLt,
		models.TagCountEq,
	}
	for _, op := range ops {
		if strings.HasPrefix(value, string(op)) {
			n, err := strconv.Atoi(value[len(op):])
			if err != nil || n < 0 {
				return nil, fmt.Errorf("invalid tag-count value %q: %w", value, interfaces.ErrInvalidInput)
			}
			return &models.TagCountFilter{Op: op, Value: n}, nil
		}
	}
	return nil, fmt.Errorf("invalid tag-count operator in %q: %w", value, interfaces.ErrInvalidInput)
}

func parseSort(value string) (models.SortField, models.SortDirection, error) {
	fieldPart := value
	directionPart := ""
	if idx := strings.IndexByte(value, ':'); idx >= 0 {
		fieldPart = value[:idx]
		directionPart = value[idx+1:]
	}

	var field models.SortField
	direction := models.SortDesc

	switch strings.ToLower(fieldPart) {
	case "new", "newest":
		field = models.SortFileModifiedDate
		direction = models.SortDesc
	case "old", "oldest":
		field = models.SortFileModifiedDate
		direction = models.SortAsc
	case string(models.SortFileModifiedDate):
		field = models.SortFileModifiedDate
	case string(models.SortImportDate):
		field = models.SortImportDate
	case string(models.SortTagCount):
		field = models.SortTagCount
	case string(models.SortWidth):
		field = models.SortWidth
	case string(models.SortHeight):
		field = models.SortHeight
	case string(models.SortSizeBytes):
		field = models.SortSizeBytes
	case string(models.SortID):
		field = models.SortID
	default:
		return "", "", fmt.Errorf("unknown sort field %q: %w", fieldPart, interfaces.ErrInvalidInput)
	}

	switch strings.ToLower(directionPart) {
	case "":
		// keep the field default
	case string(models.SortAsc):
		direction = models.SortAsc
	case string(models.SortDesc):
		direction = models.SortDesc
	default:
		return "", "", fmt.Errorf("unknown sort direction %q: %w", directionPart, interfaces.ErrInvalidInput)
	}

	return field, direction, nil
}
