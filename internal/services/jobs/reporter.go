package jobs

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// reporterState is the full progress snapshot a job has published so far.
type reporterState struct {
	Activity      string
	FinalText     string
	Current       int64
	Total         int64
	HasProgress   bool
	ResultVersion int
	ResultJSON    string
}

// Reporter coalesces rapid progress updates behind a minimum publication
// interval. Every setter records the latest state; publication happens at
// most once per interval, and Flush always publishes.
type Reporter struct {
	mu      sync.Mutex
	limiter *rate.Limiter
	state   reporterState
	sink    func(reporterState)
}

// NewReporter creates a reporter publishing into sink at most once per
// interval (Flush excepted).
func NewReporter(interval time.Duration, sink func(reporterState)) *Reporter {
	if interval <= 0 {
		interval = 250 * time.Millisecond
	}
	return &Reporter{
		limiter: rate.NewLimiter(rate.Every(interval), 1),
		sink:    sink,
	}
}

func (r *Reporter) SetActivity(text string) {
	r.mu.Lock()
	r.state.Activity = text
	r.maybePublishLocked()
	r.mu.Unlock()
}

func (r *Reporter) SetProgress(current, total int64) {
	r.mu.Lock()
	r.state.Current = current
	r.state.Total = total
	r.state.HasProgress = true
	r.maybePublishLocked()
	r.mu.Unlock()
}

func (r *Reporter) ClearProgress() {
	r.mu.Lock()
	r.state.Current = 0
	r.state.Total = 0
	r.state.HasProgress = false
	r.maybePublishLocked()
	r.mu.Unlock()
}

func (r *Reporter) SetFinalText(text string) {
	r.mu.Lock()
	r.state.FinalText = text
	r.maybePublishLocked()
	r.mu.Unlock()
}

func (r *Reporter) SetResult(schemaVersion int, resultJSON string) {
	r.mu.Lock()
	r.state.ResultVersion = schemaVersion
	r.state.ResultJSON = resultJSON
	r.maybePublishLocked()
	r.mu.Unlock()
}

// Flush publishes the latest state unconditionally.
func (r *Reporter) Flush() {
	r.mu.Lock()
	r.sink(r.state)
	r.mu.Unlock()
}

func (r *Reporter) maybePublishLocked() {
	if r.limiter.Allow() {
		r.sink(r.state)
	}
}
