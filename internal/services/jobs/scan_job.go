package jobs

import (
	"context"
	"fmt"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/imago/internal/interfaces"
	"github.com/ternarybob/imago/internal/models"
)

// ScanAllLibrariesJob runs a sync scan over every library in turn.
type ScanAllLibrariesJob struct {
	libraries interfaces.LibraryService
	logger    arbor.ILogger
}

func NewScanAllLibrariesJob(libraries interfaces.LibraryService, logger arbor.ILogger) *ScanAllLibrariesJob {
	return &ScanAllLibrariesJob{libraries: libraries, logger: logger}
}

func (j *ScanAllLibrariesJob) Key() string           { return "scan-all-libraries" }
func (j *ScanAllLibrariesJob) Name() string          { return "Scan All Libraries" }
func (j *ScanAllLibrariesJob) Description() string   { return "Reconcile every library with its folder on disk" }
func (j *ScanAllLibrariesJob) DisplayOrder() int     { return 10 }
func (j *ScanAllLibrariesJob) SupportsAllMode() bool { return false }

func (j *ScanAllLibrariesJob) Execute(ctx context.Context, reporter interfaces.JobReporter, _ models.JobMode) error {
	libraries, err := j.libraries.List(ctx)
	if err != nil {
		return err
	}
	if len(libraries) == 0 {
		reporter.SetFinalText("No libraries configured.")
		return nil
	}

	var added, updated, moved, orphaned int
	for i, library := range libraries {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		reporter.SetActivity(fmt.Sprintf("Scanning %s (%d of %d)", library.Name, i+1, len(libraries)))

		result, err := j.libraries.Scan(ctx, library.ID, func(current, total int) {
			reporter.SetProgress(int64(current), int64(total))
		})
		if err != nil {
			// One broken library must not block the rest.
			if ctx.Err() != nil {
				return ctx.Err()
			}
			j.logger.Warn().Err(err).Int64("library_id", library.ID).Msg("Library scan failed")
			continue
		}
		added += result.Added
		updated += result.Updated
		moved += result.Moved
		orphaned += result.Orphaned
	}

	reporter.ClearProgress()
	reporter.SetFinalText(fmt.Sprintf("Scanned %d libraries: %d added, %d updated, %d moved, %d orphaned.",
		len(libraries), added, updated, moved, orphaned))
	return nil
}
