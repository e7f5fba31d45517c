package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/imago/internal/models"
)

// LogStorage persists application log entries. Write-mostly; the engine
// never reads these back.
type LogStorage struct {
	db     *SQLiteDB
	logger arbor.ILogger
}

// NewLogStorage creates a new log storage instance
func NewLogStorage(db *SQLiteDB, logger arbor.ILogger) *LogStorage {
	return &LogStorage{db: db, logger: logger}
}

// InsertLogEntries writes a batch of log rows in one transaction.
func (s *LogStorage) InsertLogEntries(ctx context.Context, entries []*models.AppLogEntry) error {
	if len(entries) == 0 {
		return nil
	}

	return s.db.withTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx,
			`INSERT INTO app_logs (timestamp_utc, level, category, message, exception, properties_json)
			 VALUES (?, ?, ?, ?, ?, ?)`)
		if err != nil {
			return fmt.Errorf("failed to prepare log insert: %w", err)
		}
		defer stmt.Close()

		for _, entry := range entries {
			if _, err := stmt.ExecContext(ctx,
				entry.TimestampUTC.Unix(), entry.Level, entry.Category,
				entry.Message, entry.Exception, entry.PropertiesJSON); err != nil {
				return fmt.Errorf("failed to insert log entry: %w", err)
			}
		}
		return nil
	})
}

// ListLogEntries returns the newest entries first.
func (s *LogStorage) ListLogEntries(ctx context.Context, limit int) ([]*models.AppLogEntry, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.db.QueryContext(ctx,
		`SELECT id, timestamp_utc, level, category, message, exception, properties_json
		 FROM app_logs ORDER BY timestamp_utc DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list log entries: %w", err)
	}
	defer rows.Close()

	var entries []*models.AppLogEntry
	for rows.Next() {
		entry := &models.AppLogEntry{}
		var ts int64
		if err := rows.Scan(&entry.ID, &ts, &entry.Level, &entry.Category,
			&entry.Message, &entry.Exception, &entry.PropertiesJSON); err != nil {
			return nil, fmt.Errorf("failed to scan log entry: %w", err)
		}
		entry.TimestampUTC = unixToTime(ts)
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}
