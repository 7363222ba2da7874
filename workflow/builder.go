package workflow

import (
	"fmt"
	"slices"

	"go.uber.org/zap"

	"github.com/BaSui01/crewflow/types"
)

// PhaseAll assigns an agent to every phase.
const PhaseAll = "all"

// Synthetic agents used by the iterative pattern.
const (
	ReviewAgentID     = "review-agent"
	RefinementAgentID = "refinement-agent"
)

// Agent is a team member that the builder turns into steps.
type Agent struct {
	ID           string   `json:"id" yaml:"id"`
	Name         string   `json:"name" yaml:"name"`
	Phase        string   `json:"phase" yaml:"phase"`
	Capabilities []string `json:"capabilities,omitempty" yaml:"capabilities,omitempty"`
}

func (a Agent) displayName() string {
	if a.Name != "" {
		return a.Name
	}
	return a.ID
}

// GraphBuilder provides a fluent API for constructing workflow graphs
type GraphBuilder struct {
	graph  *Graph
	index  map[string]struct{}
	errs   []error
	logger *zap.Logger
}

// NewGraphBuilder creates a new graph builder for the given pattern
func NewGraphBuilder(pattern PatternType) *GraphBuilder {
	return &GraphBuilder{
		graph:  NewGraph(pattern),
		index:  make(map[string]struct{}),
		logger: zap.NewNop(),
	}
}

// WithLogger sets a custom logger
func (b *GraphBuilder) WithLogger(logger *zap.Logger) *GraphBuilder {
	if logger != nil {
		b.logger = logger.With(zap.String("component", "graph_builder"))
	}
	return b
}

// AddStep appends a step to the graph
func (b *GraphBuilder) AddStep(step Step) *GraphBuilder {
	if _, dup := b.index[step.ID]; dup {
		b.errs = append(b.errs, types.Errorf(types.ErrInvalidGraph, "duplicate step id: %s", step.ID))
		return b
	}
	b.index[step.ID] = struct{}{}
	b.graph.Steps = append(b.graph.Steps, step.Clone())
	return b
}

// DependsOn declares that stepID may only run once every id in deps has completed
func (b *GraphBuilder) DependsOn(stepID string, deps ...string) *GraphBuilder {
	if len(deps) == 0 {
		return b
	}
	existing := b.graph.Dependencies[stepID]
	for _, dep := range deps {
		if !slices.Contains(existing, dep) {
			existing = append(existing, dep)
		}
	}
	b.graph.Dependencies[stepID] = existing
	return b
}

// Build validates and returns the graph
func (b *GraphBuilder) Build() (*Graph, error) {
	if len(b.errs) > 0 {
		return nil, fmt.Errorf("workflow validation failed: %w", b.errs[0])
	}
	if err := b.graph.Validate(); err != nil {
		b.logger.Error("workflow validation failed", zap.Error(err))
		return nil, fmt.Errorf("workflow validation failed: %w", err)
	}

	b.logger.Debug("workflow graph built",
		zap.String("pattern", string(b.graph.Type)),
		zap.Int("steps", b.graph.Len()),
		zap.Int("edges", b.graph.EdgeCount()),
	)
	return b.graph, nil
}

// WithTeam generates the steps for a team roster and an ordered phase
// list according to the builder's pattern.
func (b *GraphBuilder) WithTeam(agents []Agent, phases []string) *GraphBuilder {
	phases = uniquePhases(phases)
	if len(agents) == 0 {
		phases = nil
	}
	buckets := groupByPhase(agents, phases)
	ids := newStepNamer(buckets, phases)

	switch b.graph.Type {
	case PatternSequential:
		buildSequential(b, buckets, phases, ids)
	case PatternParallel:
		buildParallel(b, buckets, phases, ids)
	case PatternIterative:
		buildIterative(b, buckets, phases, ids)
	default:
		b.errs = append(b.errs, types.Errorf(types.ErrUnknownPattern, "unknown workflow pattern: %q", b.graph.Type))
	}
	return b
}

// Build turns a team roster and an ordered phase list into a graph using
// the given pattern. Empty agents or phases yield an empty graph.
func Build(agents []Agent, phases []string, pattern PatternType) (*Graph, error) {
	return NewGraphBuilder(pattern).WithTeam(agents, phases).Build()
}

func uniquePhases(phases []string) []string {
	out := make([]string, 0, len(phases))
	for _, p := range phases {
		if p == "" || p == PhaseAll || slices.Contains(out, p) {
			continue
		}
		out = append(out, p)
	}
	return out
}

// groupByPhase buckets agents per phase in roster order. Agents whose
// phase is not listed are dropped.
func groupByPhase(agents []Agent, phases []string) map[string][]Agent {
	buckets := make(map[string][]Agent, len(phases))
	for _, phase := range phases {
		buckets[phase] = nil
	}
	for _, agent := range agents {
		if agent.Phase == PhaseAll {
			for _, phase := range phases {
				buckets[phase] = append(buckets[phase], agent)
			}
			continue
		}
		if _, ok := buckets[agent.Phase]; ok {
			buckets[agent.Phase] = append(buckets[agent.Phase], agent)
		}
	}
	return buckets
}

// stepNamer derives step ids. Agents placed in a single phase keep the
// short form; agents placed in several phases get the phase appended.
type stepNamer struct {
	multiPhase map[string]bool
}

func newStepNamer(buckets map[string][]Agent, phases []string) stepNamer {
	seen := make(map[string]int)
	for _, phase := range phases {
		for _, agent := range buckets[phase] {
			seen[agent.ID]++
		}
	}
	multi := make(map[string]bool)
	for id, n := range seen {
		if n > 1 {
			multi[id] = true
		}
	}
	return stepNamer{multiPhase: multi}
}

func (n stepNamer) id(prefix, agentID, phase string) string {
	if n.multiPhase[agentID] {
		return fmt.Sprintf("%s-%s-%s", prefix, agentID, phase)
	}
	return fmt.Sprintf("%s-%s", prefix, agentID)
}

func executeAction(agent Agent, phase string) string {
	return fmt.Sprintf("Execute %s for %s phase", agent.displayName(), phase)
}

func buildSequential(b *GraphBuilder, buckets map[string][]Agent, phases []string, ids stepNamer) {
	var prev string
	for _, phase := range phases {
		for _, agent := range buckets[phase] {
			stepID := ids.id("step", agent.ID, phase)
			step := Step{
				ID:      stepID,
				AgentID: agent.ID,
				Action:  executeAction(agent, phase),
				Inputs:  []string{},
				Outputs: []string{agent.ID + "-output"},
			}
			if prev != "" {
				step.Inputs = []string{prev}
			}
			b.AddStep(step)
			if prev != "" {
				b.DependsOn(stepID, prev)
			}
			prev = stepID
		}
	}
}

func buildParallel(b *GraphBuilder, buckets map[string][]Agent, phases []string, ids stepNamer) {
	var previous []string
	for _, phase := range phases {
		current := make([]string, 0, len(buckets[phase]))
		for _, agent := range buckets[phase] {
			stepID := ids.id("step", agent.ID, phase)
			b.AddStep(Step{
				ID:      stepID,
				AgentID: agent.ID,
				Action:  executeAction(agent, phase),
				Inputs:  slices.Clone(previous),
				Outputs: []string{agent.ID + "-output"},
			})
			b.DependsOn(stepID, previous...)
			current = append(current, stepID)
		}
		previous = current
	}
}

func buildIterative(b *GraphBuilder, buckets map[string][]Agent, phases []string, ids stepNamer) {
	for _, phase := range phases {
		agents := buckets[phase]
		work := make([]string, 0, len(agents))
		drafts := make([]string, 0, len(agents))
		for _, agent := range agents {
			stepID := ids.id("work", agent.ID, phase)
			draft := agent.ID + "-draft"
			b.AddStep(Step{
				ID:      stepID,
				AgentID: agent.ID,
				Action:  executeAction(agent, phase),
				Inputs:  []string{},
				Outputs: []string{draft},
			})
			work = append(work, stepID)
			drafts = append(drafts, draft)
		}

		reviewID := "review-" + phase
		feedback := phase + "-review-feedback"
		b.AddStep(Step{
			ID:      reviewID,
			AgentID: ReviewAgentID,
			Action:  fmt.Sprintf("Review %s phase outputs", phase),
			Inputs:  slices.Clone(drafts),
			Outputs: []string{feedback},
		}).DependsOn(reviewID, work...)

		refineID := "refine-" + phase
		b.AddStep(Step{
			ID:      refineID,
			AgentID: RefinementAgentID,
			Action:  fmt.Sprintf("Refine %s phase based on feedback", phase),
			Inputs:  append(slices.Clone(drafts), feedback),
			Outputs: []string{phase + "-final"},
		}).DependsOn(refineID, reviewID)
	}
}
