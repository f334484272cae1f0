package worker

import (
	"sync"
)

// JobState is the lifecycle position of a thumbnail job.
type JobState string

const (
	StateEnqueued   JobState = "enqueued"
	StateProcessing JobState = "processing"
	StateCompleted  JobState = "completed"
	StateFailed     JobState = "failed"
)

func (s JobState) terminal() bool {
	return s == StateCompleted || s == StateFailed
}

const maxTrackedJobs = 1024

// jobStates remembers the latest state of recent jobs, oldest evicted first.
type jobStates struct {
	mu     sync.RWMutex
	states map[string]JobState
	order  []string
	limit  int
	counts map[JobState]int64
}

func newJobStates(limit int) *jobStates {
	if limit <= 0 {
		limit = maxTrackedJobs
	}
	return &jobStates{
		states: make(map[string]JobState),
		limit:  limit,
		counts: make(map[JobState]int64),
	}
}

func (s *jobStates) set(jobID string, state JobState) {
	if jobID == "" {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.states[jobID]; !ok {
		s.order = append(s.order, jobID)
		if len(s.order) > s.limit {
			evicted := s.order[0]
			s.order = s.order[1:]
			delete(s.states, evicted)
		}
	}
	s.states[jobID] = state
	if state.terminal() {
		s.counts[state]++
	}
}

func (s *jobStates) get(jobID string) (JobState, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	state, ok := s.states[jobID]
	return state, ok
}

// totals returns how many jobs reached each terminal state since start.
func (s *jobStates) totals() map[JobState]int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[JobState]int64, len(s.counts))
	for k, v := range s.counts {
		out[k] = v
	}
	return out
}
