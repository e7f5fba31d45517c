package sqlite

import (
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/imago/internal/common"
	"github.com/ternarybob/imago/internal/interfaces"
)

// Manager aggregates the per-entity storages over one catalog database.
type Manager struct {
	db            *SQLiteDB
	logger        arbor.ILogger
	libraries     *LibraryStorage
	posts         *PostStorage
	tags          *TagStorage
	duplicates    *DuplicateStorage
	excludedFiles *ExcludedFileStorage
	jobs          *JobStorage
	schedules     *ScheduleStorage
	logs          *LogStorage
}

// NewManager opens the catalog database and wires up the storages.
func NewManager(logger arbor.ILogger, config *common.SQLiteConfig) (interfaces.StorageManager, error) {
	db, err := NewSQLiteDB(logger, config)
	if err != nil {
		return nil, err
	}

	m := &Manager{
		db:     db,
		logger: logger,
	}
	m.libraries = NewLibraryStorage(db, logger)
	m.posts = NewPostStorage(db, logger)
	m.tags = NewTagStorage(db, logger)
	m.duplicates = NewDuplicateStorage(db, logger)
	m.excludedFiles = NewExcludedFileStorage(db, logger)
	m.jobs = NewJobStorage(db, logger)
	m.schedules = NewScheduleStorage(db, logger)
	m.logs = NewLogStorage(db, logger)
	return m, nil
}

func (m *Manager) Libraries() interfaces.LibraryStorage          { return m.libraries }
func (m *Manager) Posts() interfaces.PostStorage                 { return m.posts }
func (m *Manager) Tags() interfaces.TagStorage                   { return m.tags }
func (m *Manager) Duplicates() interfaces.DuplicateStorage       { return m.duplicates }
func (m *Manager) ExcludedFiles() interfaces.ExcludedFileStorage { return m.excludedFiles }
func (m *Manager) Jobs() interfaces.JobStorage                   { return m.jobs }
func (m *Manager) Schedules() interfaces.ScheduleStorage         { return m.schedules }
func (m *Manager) Logs() interfaces.LogStorage                   { return m.logs }

// Close releases the underlying database connection.
func (m *Manager) Close() error {
	return m.db.Close()
}
