package workflow

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/BaSui01/crewflow/types"
)

func team() []Agent {
	return []Agent{
		{ID: "agent-01", Name: "Business Analyst", Phase: "conception"},
		{ID: "agent-02", Name: "Architect", Phase: "design"},
		{ID: "agent-03", Name: "Frontend Dev", Phase: "build"},
		{ID: "agent-04", Name: "Backend Dev", Phase: "build"},
	}
}

var phases = []string{"conception", "design", "build"}

func TestBuild_Sequential(t *testing.T) {
	g, err := Build(team(), phases, PatternSequential)
	require.NoError(t, err)

	require.Equal(t, 4, g.Len())
	assert.Equal(t, 3, g.EdgeCount())

	ids := []string{"step-agent-01", "step-agent-02", "step-agent-03", "step-agent-04"}
	for i, step := range g.Steps {
		assert.Equal(t, ids[i], step.ID)
		assert.Equal(t, []string{step.AgentID + "-output"}, step.Outputs)
		if i == 0 {
			assert.Empty(t, g.DependenciesOf(step.ID))
			assert.Empty(t, step.Inputs)
			continue
		}
		assert.Equal(t, []string{ids[i-1]}, g.DependenciesOf(step.ID))
		assert.Equal(t, []string{ids[i-1]}, step.Inputs)
	}
	assert.Equal(t, "Execute Business Analyst for conception phase", g.Steps[0].Action)
}

func TestBuild_Parallel(t *testing.T) {
	g, err := Build(team(), phases, PatternParallel)
	require.NoError(t, err)

	require.Equal(t, 4, g.Len())
	assert.Empty(t, g.DependenciesOf("step-agent-01"))
	assert.Equal(t, []string{"step-agent-01"}, g.DependenciesOf("step-agent-02"))
	assert.Equal(t, []string{"step-agent-02"}, g.DependenciesOf("step-agent-03"))
	assert.Equal(t, []string{"step-agent-02"}, g.DependenciesOf("step-agent-04"))
}

func TestBuild_ParallelEmptyPhaseResetsDependencies(t *testing.T) {
	agents := []Agent{
		{ID: "a", Phase: "one"},
		{ID: "b", Phase: "three"},
	}
	g, err := Build(agents, []string{"one", "two", "three"}, PatternParallel)
	require.NoError(t, err)

	b, ok := g.Step("step-b")
	require.True(t, ok)
	assert.Empty(t, g.DependenciesOf("step-b"))
	assert.Empty(t, b.Inputs)
}

func TestBuild_IterativeEmptyPhaseStillReviews(t *testing.T) {
	g, err := Build([]Agent{{ID: "a1", Phase: "design"}}, []string{"conception", "design"}, PatternIterative)
	require.NoError(t, err)

	ids := make([]string, 0, g.Len())
	for _, s := range g.Steps {
		ids = append(ids, s.ID)
	}
	assert.Equal(t, []string{"review-conception", "refine-conception", "work-a1", "review-design", "refine-design"}, ids)
	assert.Empty(t, g.DependenciesOf("review-conception"))
	assert.Equal(t, []string{"review-conception"}, g.DependenciesOf("refine-conception"))
}

func TestBuild_Iterative(t *testing.T) {
	g, err := Build(team(), phases, PatternIterative)
	require.NoError(t, err)

	// 3 phases: (1+2) + (1+2) + (2+2)
	require.Equal(t, 10, g.Len())

	review, ok := g.Step("review-build")
	require.True(t, ok)
	assert.Equal(t, ReviewAgentID, review.AgentID)
	assert.ElementsMatch(t, []string{"work-agent-03", "work-agent-04"}, g.DependenciesOf("review-build"))
	assert.Equal(t, []string{"agent-03-draft", "agent-04-draft"}, review.Inputs)

	refine, ok := g.Step("refine-build")
	require.True(t, ok)
	assert.Equal(t, RefinementAgentID, refine.AgentID)
	assert.Equal(t, []string{"review-build"}, g.DependenciesOf("refine-build"))
	assert.Equal(t, []string{"build-final"}, refine.Outputs)
	assert.Contains(t, refine.Inputs, "build-review-feedback")

	assert.Empty(t, g.DependenciesOf("work-agent-01"))
}

func TestBuild_AllPhaseAgentGetsPhaseSuffixedIDs(t *testing.T) {
	agents := []Agent{
		{ID: "qa", Phase: PhaseAll},
		{ID: "dev", Phase: "build"},
	}
	g, err := Build(agents, []string{"design", "build", "all", "design"}, PatternSequential)
	require.NoError(t, err)

	var ids []string
	for _, s := range g.Steps {
		ids = append(ids, s.ID)
	}
	assert.Equal(t, []string{"step-qa-design", "step-qa-build", "step-dev"}, ids)
}

func TestBuild_UnlistedPhaseDropped(t *testing.T) {
	agents := []Agent{{ID: "x", Phase: "marketing"}, {ID: "y", Phase: "build"}}
	g, err := Build(agents, []string{"build"}, PatternSequential)
	require.NoError(t, err)
	require.Equal(t, 1, g.Len())
	assert.Equal(t, "step-y", g.Steps[0].ID)
}

func TestBuild_Empty(t *testing.T) {
	for _, p := range []PatternType{PatternSequential, PatternParallel, PatternIterative} {
		g, err := Build(nil, phases, p)
		require.NoError(t, err)
		assert.Zero(t, g.Len())

		g, err = Build(team(), nil, p)
		require.NoError(t, err)
		assert.Zero(t, g.Len())
	}
}

func TestBuild_UnknownPattern(t *testing.T) {
	_, err := Build(team(), phases, PatternType("fan-out"))
	require.Error(t, err)
	assert.True(t, types.IsErrorCode(err, types.ErrUnknownPattern))
}

func TestGraphBuilder_Validation(t *testing.T) {
	t.Run("duplicate id", func(t *testing.T) {
		_, err := NewGraphBuilder(PatternSequential).
			AddStep(Step{ID: "a"}).
			AddStep(Step{ID: "a"}).
			Build()
		require.Error(t, err)
		assert.True(t, types.IsErrorCode(err, types.ErrInvalidGraph))
	})

	t.Run("unknown dependency", func(t *testing.T) {
		_, err := NewGraphBuilder(PatternSequential).
			AddStep(Step{ID: "a"}).
			DependsOn("a", "ghost").
			Build()
		require.Error(t, err)
		assert.True(t, types.IsErrorCode(err, types.ErrInvalidGraph))
	})

	t.Run("cycle", func(t *testing.T) {
		_, err := NewGraphBuilder(PatternSequential).
			WithLogger(zap.NewNop()).
			AddStep(Step{ID: "a"}).
			AddStep(Step{ID: "b"}).
			AddStep(Step{ID: "c"}).
			DependsOn("b", "a", "c").
			DependsOn("c", "b").
			Build()
		require.Error(t, err)
		assert.True(t, types.IsErrorCode(err, types.ErrCycleDetected))
		assert.Contains(t, err.Error(), "cycle detected")
	})

	t.Run("duplicate dependency collapsed", func(t *testing.T) {
		g, err := NewGraphBuilder(PatternParallel).
			AddStep(Step{ID: "a"}).
			AddStep(Step{ID: "b"}).
			DependsOn("b", "a", "a").
			DependsOn("b", "a").
			Build()
		require.NoError(t, err)
		assert.Equal(t, []string{"a"}, g.DependenciesOf("b"))
	})
}

func TestGraph_TopologicalOrder(t *testing.T) {
	g, err := NewGraphBuilder(PatternParallel).
		AddStep(Step{ID: "d"}).
		AddStep(Step{ID: "c"}).
		AddStep(Step{ID: "b"}).
		AddStep(Step{ID: "a"}).
		DependsOn("d", "c").
		DependsOn("c", "a", "b").
		Build()
	require.NoError(t, err)

	order, err := g.TopologicalOrder()
	require.NoError(t, err)
	assert.Equal(t, []string{"b", "a", "c", "d"}, order)
}

func TestParsePattern(t *testing.T) {
	p, err := ParsePattern("iterative")
	require.NoError(t, err)
	assert.Equal(t, PatternIterative, p)

	_, err = ParsePattern("waterfall")
	assert.True(t, types.IsErrorCode(err, types.ErrUnknownPattern))
}
