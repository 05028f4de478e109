package bulk

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

// Scheduler owns the process-wide coordination state for jobs: the
// single-flight guards that keep each job (and each job's retry) on one
// goroutine, and the armed timers for scheduled jobs. One instance is
// constructed per process and injected into the JobStore.
type Scheduler struct {
	log   *zap.SugaredLogger
	limit int

	mu       sync.Mutex
	running  map[string]struct{}
	retrying map[string]struct{}
	timers   map[string]*time.Timer
	stopped  bool
}

// NewScheduler returns an empty scheduler. limit caps the number of
// armed timers; zero means unlimited.
func NewScheduler(limit int, log *zap.SugaredLogger) *Scheduler {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Scheduler{
		log:      log,
		limit:    limit,
		running:  make(map[string]struct{}),
		retrying: make(map[string]struct{}),
		timers:   make(map[string]*time.Timer),
	}
}

// AtCapacity reports whether the timer table is full. Checked before
// accepting a new scheduled job.
func (s *Scheduler) AtCapacity() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.limit > 0 && len(s.timers) >= s.limit
}

// TryAcquireRun claims the run slot for a job. Returns false when the job
// is already being driven by another goroutine.
func (s *Scheduler) TryAcquireRun(jobID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, busy := s.running[jobID]; busy {
		return false
	}
	s.running[jobID] = struct{}{}
	return true
}

// ReleaseRun frees the run slot.
func (s *Scheduler) ReleaseRun(jobID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.running, jobID)
}

// TryAcquireRetry claims the retry slot for a job, independent of the run
// slot so app-sync retries never race a resumed run of another job.
func (s *Scheduler) TryAcquireRetry(jobID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, busy := s.retrying[jobID]; busy {
		return false
	}
	s.retrying[jobID] = struct{}{}
	return true
}

// ReleaseRetry frees the retry slot.
func (s *Scheduler) ReleaseRetry(jobID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.retrying, jobID)
}

// Arm schedules fire to run when at arrives. A past time fires almost
// immediately. Re-arming an armed job replaces the previous timer.
func (s *Scheduler) Arm(jobID string, at time.Time, fire func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return
	}
	if t, ok := s.timers[jobID]; ok {
		t.Stop()
	}
	delay := time.Until(at)
	if delay < 0 {
		delay = 0
	}
	s.log.Debugw("arming scheduled job", "job", jobID, "delay", delay)
	s.timers[jobID] = time.AfterFunc(delay, func() {
		s.mu.Lock()
		delete(s.timers, jobID)
		stopped := s.stopped
		s.mu.Unlock()
		if !stopped {
			fire()
		}
	})
}

// Disarm cancels the timer for a job. Returns false when nothing was
// armed (the timer already fired or never existed).
func (s *Scheduler) Disarm(jobID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.timers[jobID]
	if !ok {
		return false
	}
	t.Stop()
	delete(s.timers, jobID)
	return true
}

// PendingCount reports the number of armed timers.
func (s *Scheduler) PendingCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.timers)
}

// Stop disarms every timer and refuses further arming. Running jobs are
// unaffected; they stop via their context.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopped = true
	for id, t := range s.timers {
		t.Stop()
		delete(s.timers, id)
	}
}
