package scheduler

import "sync"

// SingleFlight allows at most one in-progress run per task within the
// process.
type SingleFlight struct {
	mu      sync.Mutex
	running map[TaskType]bool
}

// NewSingleFlight creates an empty guard.
func NewSingleFlight() *SingleFlight {
	return &SingleFlight{running: make(map[TaskType]bool)}
}

// TryAcquire marks task as running. It returns false if a run is already in
// progress; otherwise the returned release func must be called when the run
// ends.
func (s *SingleFlight) TryAcquire(task TaskType) (release func(), ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running[task] {
		return nil, false
	}
	s.running[task] = true

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.running, task)
			s.mu.Unlock()
		})
	}, true
}

// Running reports whether task is currently in progress.
func (s *SingleFlight) Running(task TaskType) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running[task]
}
