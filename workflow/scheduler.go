package workflow

import (
	"math"
	"sync"

	"github.com/BaSui01/crewflow/types"
)

// Progress summarises step statuses of a graph.
type Progress struct {
	Total      int `json:"total"`
	Completed  int `json:"completed"`
	InProgress int `json:"inProgress"`
	Pending    int `json:"pending"`
	Failed     int `json:"failed"`
	Percentage int `json:"percentage"`
}

// Scheduler owns the status of every step in a graph and decides which
// steps may run. It is safe for concurrent use.
type Scheduler struct {
	graph  *Graph
	status map[string]StepStatus
	mu     sync.RWMutex
}

// NewScheduler creates a scheduler with every step pending.
func NewScheduler(g *Graph) *Scheduler {
	s := &Scheduler{
		graph:  g,
		status: make(map[string]StepStatus, len(g.Steps)),
	}
	for _, step := range g.Steps {
		s.status[step.ID] = StatusPending
	}
	return s
}

// RestoreScheduler creates a scheduler from previously recorded
// statuses. Steps without a recorded status, or with an unknown one,
// start pending. A step recorded as in-progress was interrupted and is
// reset to pending.
func RestoreScheduler(g *Graph, statuses map[string]StepStatus) *Scheduler {
	s := NewScheduler(g)
	for id, st := range statuses {
		if _, ok := s.status[id]; !ok || !st.Valid() {
			continue
		}
		if st == StatusInProgress {
			st = StatusPending
		}
		s.status[id] = st
	}
	return s
}

// Graph returns the scheduled graph.
func (s *Scheduler) Graph() *Graph {
	return s.graph
}

// Eligible returns the pending steps whose dependencies have all
// completed, in insertion order.
func (s *Scheduler) Eligible() []Step {
	s.mu.RLock()
	defer s.mu.RUnlock()

	eligible := make([]Step, 0)
	for _, step := range s.graph.Steps {
		if s.eligibleLocked(step.ID) {
			eligible = append(eligible, step)
		}
	}
	return eligible
}

func (s *Scheduler) eligibleLocked(id string) bool {
	if s.status[id] != StatusPending {
		return false
	}
	for _, dep := range s.graph.Dependencies[id] {
		if s.status[dep] != StatusCompleted {
			return false
		}
	}
	return true
}

// Start moves an eligible step to in-progress. The eligibility check and
// the transition happen under one lock, so a step can be started once.
func (s *Scheduler) Start(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, ok := s.status[id]
	if !ok {
		return types.Errorf(types.ErrStepNotFound, "step not found: %s", id)
	}
	if !s.eligibleLocked(id) {
		return types.Errorf(types.ErrStepNotEligible, "step %s is not eligible (status %s)", id, st)
	}
	s.status[id] = StatusInProgress
	return nil
}

// MarkCompleted marks a step completed. Unknown ids and terminal steps
// are left untouched.
func (s *Scheduler) MarkCompleted(id string) {
	s.transition(id, StatusCompleted)
}

// MarkFailed marks a step failed. Unknown ids and terminal steps are
// left untouched.
func (s *Scheduler) MarkFailed(id string) {
	s.transition(id, StatusFailed)
}

func (s *Scheduler) transition(id string, to StepStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, ok := s.status[id]
	if !ok || st.IsTerminal() {
		return
	}
	s.status[id] = to
}

// Status returns the status of a step.
func (s *Scheduler) Status(id string) (StepStatus, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.status[id]
	return st, ok
}

// Statuses returns a copy of the id to status map.
func (s *Scheduler) Statuses() map[string]StepStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]StepStatus, len(s.status))
	for id, st := range s.status {
		out[id] = st
	}
	return out
}

// Progress counts steps by status.
func (s *Scheduler) Progress() Progress {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.progressLocked()
}

func (s *Scheduler) progressLocked() Progress {
	p := Progress{Total: len(s.graph.Steps)}
	for _, step := range s.graph.Steps {
		switch s.status[step.ID] {
		case StatusCompleted:
			p.Completed++
		case StatusInProgress:
			p.InProgress++
		case StatusPending:
			p.Pending++
		case StatusFailed:
			p.Failed++
		}
	}
	p.Percentage = Percent(p.Completed, p.Total)
	return p
}

// Percent returns completed/total as a rounded percentage, 0 when total is 0.
func Percent(completed, total int) int {
	if total <= 0 {
		return 0
	}
	return int(math.Round(float64(completed) / float64(total) * 100))
}

// Done reports whether every step has completed.
func (s *Scheduler) Done() bool {
	p := s.Progress()
	return p.Completed == p.Total
}

// Stalled reports whether the graph can make no further progress: no
// step is eligible, none is running, and not every step completed.
// Cycles, unknown dependencies and failed ancestors all end here.
func (s *Scheduler) Stalled() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p := s.progressLocked()
	if p.Completed == p.Total || p.InProgress > 0 {
		return false
	}
	for _, step := range s.graph.Steps {
		if s.eligibleLocked(step.ID) {
			return false
		}
	}
	return true
}

// Blocked returns the pending steps that can never become eligible
// because a dependency failed or does not exist.
func (s *Scheduler) Blocked() []Step {
	s.mu.RLock()
	defer s.mu.RUnlock()

	blocked := make([]Step, 0)
	memo := make(map[string]bool)
	for _, step := range s.graph.Steps {
		if s.status[step.ID] == StatusPending && s.unreachableLocked(step.ID, memo, map[string]bool{}) {
			blocked = append(blocked, step)
		}
	}
	return blocked
}

func (s *Scheduler) unreachableLocked(id string, memo, visiting map[string]bool) bool {
	if v, ok := memo[id]; ok {
		return v
	}
	if visiting[id] {
		// cycle
		return true
	}
	visiting[id] = true
	result := false
	for _, dep := range s.graph.Dependencies[id] {
		st, ok := s.status[dep]
		if !ok || st == StatusFailed || (st == StatusPending && s.unreachableLocked(dep, memo, visiting)) {
			result = true
			break
		}
	}
	delete(visiting, id)
	memo[id] = result
	return result
}

// Snapshot returns the persisted form of the graph with current statuses.
func (s *Scheduler) Snapshot() *Definition {
	return NewDefinition(s.graph, s.Statuses())
}
