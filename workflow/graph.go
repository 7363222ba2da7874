package workflow

import (
	"slices"

	"github.com/BaSui01/crewflow/types"
)

// PatternType identifies how a graph was constructed.
type PatternType string

const (
	PatternSequential PatternType = "sequential"
	PatternParallel   PatternType = "parallel"
	PatternIterative  PatternType = "iterative"
)

// ParsePattern converts a string into a PatternType.
func ParsePattern(s string) (PatternType, error) {
	switch p := PatternType(s); p {
	case PatternSequential, PatternParallel, PatternIterative:
		return p, nil
	default:
		return "", types.Errorf(types.ErrUnknownPattern, "unknown workflow pattern: %q", s)
	}
}

// StepStatus represents the execution status of a step.
type StepStatus string

const (
	StatusPending    StepStatus = "pending"
	StatusInProgress StepStatus = "in-progress"
	StatusCompleted  StepStatus = "completed"
	StatusFailed     StepStatus = "failed"
)

// IsTerminal reports whether no transition may leave the status.
func (s StepStatus) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Valid reports whether s is one of the known statuses.
func (s StepStatus) Valid() bool {
	switch s {
	case StatusPending, StatusInProgress, StatusCompleted, StatusFailed:
		return true
	}
	return false
}

// Step is a unit of work performed by one agent. Steps are values and
// carry no status; the Scheduler owns status.
type Step struct {
	ID      string   `json:"id" yaml:"id"`
	AgentID string   `json:"agentId" yaml:"agent_id"`
	Action  string   `json:"action" yaml:"action"`
	Inputs  []string `json:"inputs" yaml:"inputs"`
	Outputs []string `json:"outputs" yaml:"outputs"`
}

// Clone returns a deep copy of the step.
func (s Step) Clone() Step {
	s.Inputs = slices.Clone(s.Inputs)
	s.Outputs = slices.Clone(s.Outputs)
	return s
}

// Graph is an ordered set of steps plus the dependencies between them.
// Insertion order is the tie-break for iteration and never an implicit
// dependency.
type Graph struct {
	Type         PatternType
	Steps        []Step
	Dependencies map[string][]string
}

// NewGraph creates an empty graph for the given pattern.
func NewGraph(pattern PatternType) *Graph {
	return &Graph{
		Type:         pattern,
		Steps:        make([]Step, 0),
		Dependencies: make(map[string][]string),
	}
}

// Step returns the step with the given id.
func (g *Graph) Step(id string) (Step, bool) {
	for _, s := range g.Steps {
		if s.ID == id {
			return s, true
		}
	}
	return Step{}, false
}

// DependenciesOf returns the prerequisites of a step.
func (g *Graph) DependenciesOf(id string) []string {
	return g.Dependencies[id]
}

// Len returns the number of steps.
func (g *Graph) Len() int {
	return len(g.Steps)
}

// EdgeCount returns the number of dependency edges.
func (g *Graph) EdgeCount() int {
	n := 0
	for _, deps := range g.Dependencies {
		n += len(deps)
	}
	return n
}

// Clone returns a deep copy of the graph.
func (g *Graph) Clone() *Graph {
	c := &Graph{
		Type:         g.Type,
		Steps:        make([]Step, len(g.Steps)),
		Dependencies: make(map[string][]string, len(g.Dependencies)),
	}
	for i, s := range g.Steps {
		c.Steps[i] = s.Clone()
	}
	for id, deps := range g.Dependencies {
		c.Dependencies[id] = slices.Clone(deps)
	}
	return c
}

// Validate checks that step ids are unique, every dependency refers to
// a known step, and the dependency relation is acyclic.
func (g *Graph) Validate() error {
	index := make(map[string]struct{}, len(g.Steps))
	for _, s := range g.Steps {
		if s.ID == "" {
			return types.NewError(types.ErrInvalidGraph, "step with empty id")
		}
		if _, dup := index[s.ID]; dup {
			return types.Errorf(types.ErrInvalidGraph, "duplicate step id: %s", s.ID)
		}
		index[s.ID] = struct{}{}
	}

	for id, deps := range g.Dependencies {
		if _, ok := index[id]; !ok {
			return types.Errorf(types.ErrInvalidGraph, "dependencies declared for unknown step: %s", id)
		}
		for _, dep := range deps {
			if _, ok := index[dep]; !ok {
				return types.Errorf(types.ErrInvalidGraph, "step %s depends on unknown step: %s", id, dep)
			}
		}
	}

	if _, err := g.TopologicalOrder(); err != nil {
		return err
	}
	return nil
}

// TopologicalOrder returns step ids ordered so that every step follows
// its dependencies. Ties keep insertion order. Unknown dependency ids
// are ignored here; Validate reports them.
func (g *Graph) TopologicalOrder() ([]string, error) {
	known := make(map[string]struct{}, len(g.Steps))
	for _, s := range g.Steps {
		known[s.ID] = struct{}{}
	}

	inDegree := make(map[string]int, len(g.Steps))
	dependents := make(map[string][]string, len(g.Steps))
	for _, s := range g.Steps {
		for _, dep := range g.Dependencies[s.ID] {
			if _, ok := known[dep]; !ok {
				continue
			}
			inDegree[s.ID]++
			dependents[dep] = append(dependents[dep], s.ID)
		}
	}

	order := make([]string, 0, len(g.Steps))
	done := make(map[string]bool, len(g.Steps))
	for len(order) < len(g.Steps) {
		progressed := false
		for _, s := range g.Steps {
			if done[s.ID] || inDegree[s.ID] > 0 {
				continue
			}
			done[s.ID] = true
			order = append(order, s.ID)
			for _, next := range dependents[s.ID] {
				inDegree[next]--
			}
			progressed = true
		}
		if !progressed {
			return nil, types.Errorf(types.ErrCycleDetected, "cycle detected in graph involving step: %s", g.cycleMember(done, known))
		}
	}
	return order, nil
}

// cycleMember walks unresolved dependencies until a step repeats; the
// repeated step lies on a cycle.
func (g *Graph) cycleMember(done map[string]bool, known map[string]struct{}) string {
	var current string
	for _, s := range g.Steps {
		if !done[s.ID] {
			current = s.ID
			break
		}
	}
	seen := make(map[string]bool)
	for !seen[current] {
		seen[current] = true
		for _, dep := range g.Dependencies[current] {
			if _, ok := known[dep]; ok && !done[dep] {
				current = dep
				break
			}
		}
	}
	return current
}
