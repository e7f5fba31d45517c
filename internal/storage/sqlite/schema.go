package sqlite

const schemaSQL = `
-- Libraries: user-declared media roots
CREATE TABLE IF NOT EXISTS libraries (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	name TEXT NOT NULL,
	root_path TEXT NOT NULL,
	scan_interval_hours INTEGER NOT NULL DEFAULT 0,
	created_at INTEGER NOT NULL,
	updated_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS library_ignored_paths (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	library_id INTEGER NOT NULL REFERENCES libraries(id) ON DELETE CASCADE,
	relative_path_prefix TEXT NOT NULL,
	created_date INTEGER NOT NULL
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_ignored_paths_library_prefix
	ON library_ignored_paths(library_id, relative_path_prefix);

-- Posts: one row per indexed media file
CREATE TABLE IF NOT EXISTS posts (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	library_id INTEGER NOT NULL REFERENCES libraries(id) ON DELETE CASCADE,
	relative_path TEXT NOT NULL,
	content_hash TEXT NOT NULL,
	size_bytes INTEGER NOT NULL DEFAULT 0,
	file_modified_date INTEGER NOT NULL,
	import_date INTEGER NOT NULL,
	width INTEGER NOT NULL DEFAULT 0,
	height INTEGER NOT NULL DEFAULT 0,
	content_type TEXT NOT NULL DEFAULT '',
	perceptual_hash TEXT,
	is_favorite INTEGER NOT NULL DEFAULT 0,
	file_identity_device TEXT,
	file_identity_value TEXT
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_posts_library_path ON posts(library_id, relative_path);
CREATE INDEX IF NOT EXISTS idx_posts_content_hash ON posts(content_hash);
CREATE INDEX IF NOT EXISTS idx_posts_identity ON posts(file_identity_device, file_identity_value);

-- Post sources: ordered external URLs
CREATE TABLE IF NOT EXISTS post_sources (
	post_id INTEGER NOT NULL REFERENCES posts(id) ON DELETE CASCADE,
	url TEXT NOT NULL,
	sort_order INTEGER NOT NULL DEFAULT 0,
	PRIMARY KEY (post_id, url)
);

-- Tags and categories
CREATE TABLE IF NOT EXISTS tag_categories (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	name TEXT NOT NULL UNIQUE,
	color TEXT NOT NULL DEFAULT '',
	sort_order INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS tags (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	name TEXT NOT NULL UNIQUE,
	tag_category_id INTEGER REFERENCES tag_categories(id) ON DELETE SET NULL
);

CREATE TABLE IF NOT EXISTS post_tags (
	post_id INTEGER NOT NULL REFERENCES posts(id) ON DELETE CASCADE,
	tag_id INTEGER NOT NULL REFERENCES tags(id) ON DELETE CASCADE,
	source TEXT NOT NULL,
	PRIMARY KEY (post_id, tag_id, source)
);

CREATE INDEX IF NOT EXISTS idx_post_tags_tag ON post_tags(tag_id);

-- Duplicate groups
CREATE TABLE IF NOT EXISTS duplicate_groups (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	group_type TEXT NOT NULL,
	similarity_percent INTEGER NOT NULL DEFAULT 0,
	detected_date INTEGER NOT NULL,
	is_resolved INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS duplicate_group_entries (
	group_id INTEGER NOT NULL REFERENCES duplicate_groups(id) ON DELETE CASCADE,
	post_id INTEGER NOT NULL REFERENCES posts(id) ON DELETE CASCADE,
	PRIMARY KEY (group_id, post_id)
);

CREATE INDEX IF NOT EXISTS idx_group_entries_post ON duplicate_group_entries(post_id);

-- Excluded files: paths the scanner skips unconditionally
CREATE TABLE IF NOT EXISTS excluded_files (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	library_id INTEGER NOT NULL REFERENCES libraries(id) ON DELETE CASCADE,
	relative_path TEXT NOT NULL,
	content_hash TEXT NOT NULL DEFAULT '',
	excluded_date INTEGER NOT NULL,
	reason TEXT NOT NULL DEFAULT ''
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_excluded_library_path ON excluded_files(library_id, relative_path);

-- Job execution history (append-only)
CREATE TABLE IF NOT EXISTS job_executions (
	id TEXT PRIMARY KEY,
	job_key TEXT NOT NULL,
	job_name TEXT NOT NULL,
	status TEXT NOT NULL,
	start_time INTEGER NOT NULL,
	end_time INTEGER,
	error_message TEXT NOT NULL DEFAULT '',
	activity_text TEXT NOT NULL DEFAULT '',
	final_text TEXT NOT NULL DEFAULT '',
	progress_current INTEGER NOT NULL DEFAULT 0,
	progress_total INTEGER NOT NULL DEFAULT 0,
	result_schema_version INTEGER NOT NULL DEFAULT 0,
	result_json TEXT NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_job_executions_start ON job_executions(start_time DESC);
CREATE INDEX IF NOT EXISTS idx_job_executions_key ON job_executions(job_key, start_time DESC);

-- Cron table
CREATE TABLE IF NOT EXISTS scheduled_jobs (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	job_name TEXT NOT NULL UNIQUE,
	cron_expression TEXT NOT NULL,
	is_enabled INTEGER NOT NULL DEFAULT 0,
	last_run INTEGER,
	next_run INTEGER
);

-- Application log entries (observability only)
CREATE TABLE IF NOT EXISTS app_logs (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	timestamp_utc INTEGER NOT NULL,
	level TEXT NOT NULL,
	category TEXT NOT NULL DEFAULT '',
	message TEXT NOT NULL,
	exception TEXT NOT NULL DEFAULT '',
	properties_json TEXT NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_app_logs_timestamp ON app_logs(timestamp_utc DESC);
`

// InitSchema initializes the database schema
func (s *SQLiteDB) InitSchema() error {
	_, err := s.db.Exec(schemaSQL)
	if err != nil {
		return err
	}
	s.logger.Info().Msg("Database schema initialized")

	// Run migrations for schema evolution
	if err := s.runMigrations(); err != nil {
		return err
	}

	return nil
}

// runMigrations checks for and applies schema migrations for existing databases
func (s *SQLiteDB) runMigrations() error {
	columnsQuery := `PRAGMA table_info(job_executions)`
	rows, err := s.db.Query(columnsQuery)
	if err != nil {
		return err
	}
	defer rows.Close()

	hasResultSchemaVersion := false
	hasResultJSON := false

	for rows.Next() {
		var cid int
		var name, typ string
		var notnull, dfltValue, pk interface{}
		if err := rows.Scan(&cid, &name, &typ, &notnull, &dfltValue, &pk); err != nil {
			return err
		}
		switch name {
		case "result_schema_version":
			hasResultSchemaVersion = true
		case "result_json":
			hasResultJSON = true
		}
	}
	if err := rows.Err(); err != nil {
		return err
	}

	// Databases created before structured job results need the two columns added
	if !hasResultSchemaVersion {
		s.logger.Info().Msg("Running migration: Adding result_schema_version column to job_executions")
		if _, err := s.db.Exec(`ALTER TABLE job_executions ADD COLUMN result_schema_version INTEGER NOT NULL DEFAULT 0`); err != nil {
			return err
		}
	}
	if !hasResultJSON {
		s.logger.Info().Msg("Running migration: Adding result_json column to job_executions")
		if _, err := s.db.Exec(`ALTER TABLE job_executions ADD COLUMN result_json TEXT NOT NULL DEFAULT ''`); err != nil {
			return err
		}
	}

	return nil
}
