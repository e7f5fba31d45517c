package sqlite

import (
	"database/sql"
	"strings"
	"time"

	"github.com/ternarybob/imago/internal/interfaces"
)

// mapConstraintErr converts sqlite unique/foreign-key violations into the
// shared error kinds so services can test with errors.Is.
func mapConstraintErr(err error) error {
	if err == nil {
		return nil
	}
	msg := err.Error()
	if strings.Contains(msg, "UNIQUE constraint failed") {
		return interfaces.ErrConflict
	}
	if strings.Contains(msg, "FOREIGN KEY constraint failed") {
		return interfaces.ErrNotFound
	}
	return err
}

// unixToTime converts a Unix timestamp to time.Time in UTC.
func unixToTime(unix int64) time.Time {
	return time.Unix(unix, 0).UTC()
}

// nullableUnix converts an optional time into a sql.NullInt64.
func nullableUnix(t *time.Time) sql.NullInt64 {
	if t == nil || t.IsZero() {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Valid: true, Int64: t.Unix()}
}

// nullableTime converts a sql.NullInt64 back into an optional time.
func nullableTime(v sql.NullInt64) *time.Time {
	if !v.Valid {
		return nil
	}
	t := unixToTime(v.Int64)
	return &t
}

// nullableString converts an empty string to NULL, so partial indexes and
// identity lookups treat missing values consistently.
func nullableString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{Valid: true, String: s}
}

// placeholders builds "?, ?, ?" for n parameters.
func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.Repeat("?, ", n-1) + "?"
}

// int64Args widens an id list for variadic query parameters.
func int64Args(ids []int64) []interface{} {
	args := make([]interface{}, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	return args
}

// chunkInt64 splits ids into batches of at most size.
func chunkInt64(ids []int64, size int) [][]int64 {
	if size <= 0 {
		size = len(ids)
	}
	var chunks [][]int64
	for len(ids) > 0 {
		n := size
		if n > len(ids) {
			n = len(ids)
		}
		chunks = append(chunks, ids[:n])
		ids = ids[n:]
	}
	return chunks
}
