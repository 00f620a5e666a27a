package orchestrator

import (
	"sync"
	"time"

	"github.com/JakeFAU/listingwatch/internal/scraper"
)

// Status is a point-in-time view of a batch.
type Status struct {
	ID         string     `json:"batch_id"`
	Running    bool       `json:"running"`
	Force      bool       `json:"force"`
	Progress   int        `json:"progress"`
	Total      int        `json:"total"`
	Current    string     `json:"current,omitempty"`
	Changed    int        `json:"changed"`
	Unchanged  int        `json:"unchanged"`
	Failed     int        `json:"failed"`
	NewRecords int        `json:"new_records"`
	Canceled   bool       `json:"canceled"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

// Summary is the final status of a completed batch.
type Summary = Status

// RunState tracks one batch. The batch goroutine is the only writer; any
// number of readers may call Snapshot.
type RunState struct {
	mu       sync.Mutex
	status   Status
	stop     chan struct{}
	stopOnce sync.Once
}

// NewRunState returns an idle state for the batch identified by id.
func NewRunState(id string, force bool) *RunState {
	return &RunState{
		status: Status{ID: id, Force: force},
		stop:   make(chan struct{}),
	}
}

// Snapshot returns a copy of the current status.
func (s *RunState) Snapshot() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := s.status
	if s.status.FinishedAt != nil {
		finished := *s.status.FinishedAt
		out.FinishedAt = &finished
	}
	return out
}

// Cancel requests a graceful stop before the next source. It is safe to call
// more than once.
func (s *RunState) Cancel() {
	s.stopOnce.Do(func() {
		close(s.stop)
		s.mu.Lock()
		s.status.Canceled = true
		s.mu.Unlock()
	})
}

// Canceled reports whether Cancel was called.
func (s *RunState) Canceled() bool {
	select {
	case <-s.stop:
		return true
	default:
		return false
	}
}

func (s *RunState) done() <-chan struct{} {
	return s.stop
}

func (s *RunState) begin(total int, now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status.Running = true
	s.status.Total = total
	s.status.StartedAt = now
}

func (s *RunState) setCurrent(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status.Current = name
}

func (s *RunState) record(out Outcome) {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch out.Status {
	case scraper.AuditSuccess:
		s.status.Changed++
	case scraper.AuditUnchanged:
		s.status.Unchanged++
	case scraper.AuditFailed:
		s.status.Failed++
	}
	s.status.NewRecords += out.RecordsFound
	s.status.Progress++
}

func (s *RunState) finish(now time.Time) Status {
	s.mu.Lock()
	s.status.Running = false
	s.status.Current = ""
	s.status.FinishedAt = &now
	s.mu.Unlock()
	return s.Snapshot()
}
