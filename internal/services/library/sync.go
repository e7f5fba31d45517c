package library

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/imago/internal/interfaces"
	"github.com/ternarybob/imago/internal/models"
	"github.com/ternarybob/imago/internal/scanner"
	"golang.org/x/sync/errgroup"
)

// mtimeTolerance absorbs filesystems that round modification times.
const mtimeTolerance = time.Second

// PipelineFactory builds a fresh ingestion pipeline for one scan.
type PipelineFactory func() interfaces.IngestPipeline

// SyncProcessor reconciles one library's on-disk state into the catalog:
// preload, streaming classification, move resolution, update application,
// tag inheritance, orphan removal.
type SyncProcessor struct {
	logger      arbor.ILogger
	storage     interfaces.StorageManager
	source      interfaces.MediaSource
	identity    interfaces.IdentityResolver
	hasher      interfaces.ContentHasher
	newPipeline PipelineFactory
	parallelism int
}

// NewSyncProcessor creates a sync processor.
func NewSyncProcessor(
	logger arbor.ILogger,
	storage interfaces.StorageManager,
	source interfaces.MediaSource,
	identity interfaces.IdentityResolver,
	hasher interfaces.ContentHasher,
	newPipeline PipelineFactory,
	parallelism int,
) *SyncProcessor {
	if parallelism < 1 {
		parallelism = 1
	}
	return &SyncProcessor{
		logger:      logger,
		storage:     storage,
		source:      source,
		identity:    identity,
		hasher:      hasher,
		newPipeline: newPipeline,
		parallelism: parallelism,
	}
}

// moveCandidate is a new on-disk path whose file identity matched at least
// one existing record. Resolved greedily after classification.
type moveCandidate struct {
	identityKey      string
	relativePath     string
	fullPath         string
	contentHash      string
	sizeBytes        int64
	fileModifiedDate time.Time
	device, value    string
}

// scanState is the shared mutable state of one scan's classification phase.
// The maps and slices are insert-only within the phase.
type scanState struct {
	seen sync.Map // relativePath → struct{}

	mu         sync.Mutex
	updates    []interfaces.ScanUpdate
	candidates []moveCandidate
	addedPaths []string

	scanned   atomic.Int64
	updated   atomic.Int64
	processed atomic.Int64
}

func (st *scanState) markSeen(relativePath string) {
	st.seen.Store(relativePath, struct{}{})
}

func (st *scanState) wasSeen(relativePath string) bool {
	_, ok := st.seen.Load(relativePath)
	return ok
}

func (st *scanState) addUpdate(u interfaces.ScanUpdate) {
	st.mu.Lock()
	st.updates = append(st.updates, u)
	st.mu.Unlock()
}

func (st *scanState) addCandidate(c moveCandidate) {
	st.mu.Lock()
	st.candidates = append(st.candidates, c)
	st.mu.Unlock()
}

func (st *scanState) addAdded(relativePath string) {
	st.mu.Lock()
	st.addedPaths = append(st.addedPaths, relativePath)
	st.mu.Unlock()
}

// ProcessDirectory runs one reconciliation pass over dir for the given
// library. Per-file errors are logged and skipped; catalog errors abort.
func (s *SyncProcessor) ProcessDirectory(ctx context.Context, library *models.Library, dir string, progress interfaces.ScanProgressFunc) (*models.ScanResult, error) {
	started := time.Now()

	// Phase 0: preload catalog state. Snapshot reads; valid for this scan only.
	infos, err := s.storage.Posts().ListScanInfo(ctx, library.ID)
	if err != nil {
		return nil, err
	}
	existingByPath := make(map[string]*interfaces.PostScanInfo, len(infos))
	existingByIdentity := make(map[string][]*interfaces.PostScanInfo)
	for _, info := range infos {
		existingByPath[info.RelativePath] = info
		if info.HasIdentity() {
			key := info.IdentityKey()
			existingByIdentity[key] = append(existingByIdentity[key], info)
		}
	}

	excludedList, err := s.storage.ExcludedFiles().ListExcludedPaths(ctx, library.ID)
	if err != nil {
		return nil, err
	}
	excludedPaths := make(map[string]struct{}, len(excludedList))
	for _, p := range excludedList {
		excludedPaths[p] = struct{}{}
	}

	ignoredRows, err := s.storage.Libraries().ListIgnoredPaths(ctx, library.ID)
	if err != nil {
		return nil, err
	}
	ignoredPrefixes := make([]string, 0, len(ignoredRows))
	for _, row := range ignoredRows {
		ignoredPrefixes = append(ignoredPrefixes, scanner.NormalizeRelativePath(row.Prefix))
	}

	// Advisory count for progress; the final 20% of the bar is reserved for
	// the post-classification phases.
	total, err := s.source.Count(ctx, dir)
	if err != nil {
		s.logger.Warn().Str("dir", dir).Err(err).Msg("Pre-count failed, progress will be coarse")
		total = 0
	}
	reserve := total / 4
	if reserve < 4 {
		reserve = 4
	}
	totalUnits := total + reserve
	report := func(units int) {
		if progress != nil {
			progress(units, totalUnits)
		}
	}

	pipeline := s.newPipeline()
	defer pipeline.Close()

	// Phase 1: streaming classification, bounded parallel.
	state := &scanState{}
	entries, err := s.source.Enumerate(ctx, dir)
	if err != nil {
		return nil, err
	}

	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(s.parallelism)
	for entry := range entries {
		entry := entry
		group.Go(func() error {
			err := s.classify(groupCtx, library, entry, state, existingByPath, existingByIdentity, excludedPaths, ignoredPrefixes, pipeline)
			if n := state.processed.Add(1); n%10 == 0 {
				report(int(n))
			}
			return err
		})
	}
	if err := group.Wait(); err != nil {
		return nil, err
	}

	// Phase 2: greedy move resolution. Unmatched candidates are true adds.
	state.mu.Lock()
	candidates := state.candidates
	state.mu.Unlock()

	matched := make(map[int64]struct{})
	var moves []interfaces.ScanMove
	for _, cand := range candidates {
		var target *interfaces.PostScanInfo
		for _, info := range existingByIdentity[cand.identityKey] {
			if state.wasSeen(info.RelativePath) {
				continue
			}
			if _, taken := matched[info.ID]; taken {
				continue
			}
			target = info
			break
		}

		if target == nil {
			if err := s.enqueueNew(ctx, library, cand, state, pipeline); err != nil {
				return nil, err
			}
			continue
		}

		matched[target.ID] = struct{}{}
		// The old path is accounted for; it must not be orphaned.
		state.markSeen(target.RelativePath)
		moves = append(moves, interfaces.ScanMove{
			PostID:           target.ID,
			NewRelativePath:  cand.relativePath,
			ContentHash:      cand.contentHash,
			SizeBytes:        cand.sizeBytes,
			FileModifiedDate: cand.fileModifiedDate,
			IdentityDevice:   cand.device,
			IdentityValue:    cand.value,
		})
	}
	report(total + reserve/4)

	// Phase 3: flush pending adds, then apply updates and moves atomically.
	if err := pipeline.Flush(ctx); err != nil {
		return nil, err
	}
	state.mu.Lock()
	updates := state.updates
	addedPaths := state.addedPaths
	state.mu.Unlock()

	if err := s.storage.Posts().ApplyScanChanges(ctx, updates, moves); err != nil {
		return nil, err
	}
	report(total + reserve/2)

	// Phase 4: reintroduced duplicates inherit the non-folder tag links of
	// their same-hash siblings.
	if len(addedPaths) > 0 {
		copied, err := s.storage.Tags().InheritTagLinks(ctx, library.ID, addedPaths)
		if err != nil {
			return nil, err
		}
		if copied > 0 {
			s.logger.Info().Int64("library_id", library.ID).Int("links", copied).Msg("Inherited tag links onto re-added posts")
		}
	}
	report(total + 3*reserve/4)

	// Phase 5: every preloaded path not seen on disk is an orphan.
	var orphanIDs []int64
	for path, info := range existingByPath {
		if !state.wasSeen(path) {
			orphanIDs = append(orphanIDs, info.ID)
		}
	}
	if len(orphanIDs) > 0 {
		if err := s.storage.Posts().DeletePosts(ctx, orphanIDs); err != nil {
			return nil, err
		}
	}
	report(totalUnits)

	result := &models.ScanResult{
		Scanned:  int(state.scanned.Load()),
		Added:    len(addedPaths),
		Updated:  int(state.updated.Load()),
		Moved:    len(moves),
		Orphaned: len(orphanIDs),
	}
	s.logger.Info().
		Int64("library_id", library.ID).
		Int("scanned", result.Scanned).
		Int("added", result.Added).
		Int("updated", result.Updated).
		Int("moved", result.Moved).
		Int("orphaned", result.Orphaned).
		Str("elapsed", time.Since(started).Round(time.Millisecond).String()).
		Msg("Library scan complete")
	return result, nil
}

// classify handles one enumerated file. Returns an error only for catalog
// or cancellation failures; per-file problems are logged and skipped.
func (s *SyncProcessor) classify(
	ctx context.Context,
	library *models.Library,
	entry interfaces.FileEntry,
	state *scanState,
	existingByPath map[string]*interfaces.PostScanInfo,
	existingByIdentity map[string][]*interfaces.PostScanInfo,
	excludedPaths map[string]struct{},
	ignoredPrefixes []string,
	pipeline interfaces.IngestPipeline,
) error {
	rel := scanner.NormalizeRelativePath(entry.RelativePath)

	// Ignored subtrees are treated as nonexistent: not seen, so their
	// catalog entries fall out as orphans.
	for _, prefix := range ignoredPrefixes {
		if scanner.PathWithinPrefix(rel, prefix) {
			return nil
		}
	}

	state.markSeen(rel)
	state.scanned.Add(1)

	if _, excluded := excludedPaths[rel]; excluded {
		return nil
	}

	if existing, ok := existingByPath[rel]; ok {
		sameSize := existing.SizeBytes == entry.SizeBytes
		sameMtime := absDuration(existing.FileModifiedDate.Sub(entry.LastModifiedUTC)) <= mtimeTolerance

		if sameSize && sameMtime {
			if existing.HasIdentity() {
				return nil
			}
			// Backfill the identity pair without touching content state.
			device, value, ok := s.identity.TryResolve(entry.FullPath)
			if ok && (device != existing.IdentityDevice || value != existing.IdentityValue) {
				state.addUpdate(interfaces.ScanUpdate{
					PostID:         existing.ID,
					IdentityDevice: device,
					IdentityValue:  value,
					IdentityOnly:   true,
				})
			}
			return nil
		}

		hash, err := s.hasher.ComputeContentHash(ctx, entry.FullPath)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			s.logger.Warn().Str("path", entry.FullPath).Err(err).Msg("Hashing failed, skipping file")
			return nil
		}
		device, value, _ := s.identity.TryResolve(entry.FullPath)
		state.addUpdate(interfaces.ScanUpdate{
			PostID:           existing.ID,
			ContentHash:      hash,
			SizeBytes:        entry.SizeBytes,
			FileModifiedDate: entry.LastModifiedUTC,
			IdentityDevice:   device,
			IdentityValue:    value,
			HashChanged:      hash != existing.ContentHash,
		})
		state.updated.Add(1)
		return nil
	}

	// New on-disk path.
	hash, err := s.hasher.ComputeContentHash(ctx, entry.FullPath)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		s.logger.Warn().Str("path", entry.FullPath).Err(err).Msg("Hashing failed, skipping file")
		return nil
	}
	device, value, ok := s.identity.TryResolve(entry.FullPath)

	cand := moveCandidate{
		identityKey:      device + "|" + value,
		relativePath:     rel,
		fullPath:         entry.FullPath,
		contentHash:      hash,
		sizeBytes:        entry.SizeBytes,
		fileModifiedDate: entry.LastModifiedUTC,
		device:           device,
		value:            value,
	}
	if ok && len(existingByIdentity[cand.identityKey]) > 0 {
		state.addCandidate(cand)
		return nil
	}
	return s.enqueueNew(ctx, library, cand, state, pipeline)
}

// enqueueNew submits a brand-new post to the ingestion pipeline.
func (s *SyncProcessor) enqueueNew(ctx context.Context, library *models.Library, cand moveCandidate, state *scanState, pipeline interfaces.IngestPipeline) error {
	post := &models.Post{
		LibraryID:        library.ID,
		RelativePath:     cand.relativePath,
		ContentHash:      cand.contentHash,
		SizeBytes:        cand.sizeBytes,
		FileModifiedDate: cand.fileModifiedDate,
		ImportDate:       time.Now().UTC(),
		ContentType:      models.ContentTypeForPath(cand.relativePath),
		IdentityDevice:   cand.device,
		IdentityValue:    cand.value,
	}
	if err := pipeline.Enqueue(ctx, post); err != nil {
		return err
	}
	state.addAdded(cand.relativePath)
	return nil
}

func absDuration(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}
