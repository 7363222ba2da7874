package workflow

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BaSui01/crewflow/types"
)

func diamond(t *testing.T) *Graph {
	t.Helper()
	g, err := NewGraphBuilder(PatternParallel).
		AddStep(Step{ID: "a", AgentID: "agent-01"}).
		AddStep(Step{ID: "b", AgentID: "agent-02"}).
		AddStep(Step{ID: "c", AgentID: "agent-03"}).
		AddStep(Step{ID: "d", AgentID: "agent-04"}).
		DependsOn("b", "a").
		DependsOn("c", "a").
		DependsOn("d", "b", "c").
		Build()
	require.NoError(t, err)
	return g
}

func eligibleIDs(s *Scheduler) []string {
	ids := make([]string, 0)
	for _, step := range s.Eligible() {
		ids = append(ids, step.ID)
	}
	return ids
}

func TestScheduler_EligibleFollowsDependencies(t *testing.T) {
	s := NewScheduler(diamond(t))
	assert.Equal(t, []string{"a"}, eligibleIDs(s))

	require.NoError(t, s.Start("a"))
	assert.Empty(t, eligibleIDs(s), "in-progress steps are not eligible")

	s.MarkCompleted("a")
	assert.Equal(t, []string{"b", "c"}, eligibleIDs(s))

	require.NoError(t, s.Start("b"))
	s.MarkCompleted("b")
	assert.Equal(t, []string{"c"}, eligibleIDs(s))

	require.NoError(t, s.Start("c"))
	s.MarkCompleted("c")
	assert.Equal(t, []string{"d"}, eligibleIDs(s))

	require.NoError(t, s.Start("d"))
	s.MarkCompleted("d")
	assert.True(t, s.Done())
	assert.False(t, s.Stalled())
	assert.Equal(t, 100, s.Progress().Percentage)
}

func TestScheduler_Start(t *testing.T) {
	s := NewScheduler(diamond(t))

	err := s.Start("ghost")
	assert.True(t, types.IsErrorCode(err, types.ErrStepNotFound))

	err = s.Start("d")
	assert.True(t, types.IsErrorCode(err, types.ErrStepNotEligible))
	st, _ := s.Status("d")
	assert.Equal(t, StatusPending, st, "a rejected start leaves status unchanged")

	require.NoError(t, s.Start("a"))
	err = s.Start("a")
	assert.True(t, types.IsErrorCode(err, types.ErrStepNotEligible))
}

func TestScheduler_StartIsExclusive(t *testing.T) {
	s := NewScheduler(diamond(t))

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		started int
	)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if s.Start("a") == nil {
				mu.Lock()
				started++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, started)
}

func TestScheduler_TerminalStatusesAreFinal(t *testing.T) {
	s := NewScheduler(diamond(t))

	s.MarkCompleted("a")
	s.MarkCompleted("a")
	s.MarkFailed("a")
	st, _ := s.Status("a")
	assert.Equal(t, StatusCompleted, st)

	s.MarkFailed("b")
	s.MarkCompleted("b")
	st, _ = s.Status("b")
	assert.Equal(t, StatusFailed, st)

	s.MarkCompleted("ghost")
	_, ok := s.Status("ghost")
	assert.False(t, ok)
}

func TestScheduler_Progress(t *testing.T) {
	g := NewGraph(PatternParallel)
	for _, id := range []string{"s1", "s2", "s3", "s4"} {
		g.Steps = append(g.Steps, Step{ID: id})
	}
	s := NewScheduler(g)
	s.MarkCompleted("s1")
	require.NoError(t, s.Start("s2"))

	p := s.Progress()
	assert.Equal(t, Progress{Total: 4, Completed: 1, InProgress: 1, Pending: 2, Percentage: 25}, p)

	s.MarkFailed("s3")
	p = s.Progress()
	assert.Equal(t, 1, p.Failed)
	assert.Equal(t, 1, p.Pending)

	empty := NewScheduler(NewGraph(PatternSequential))
	assert.Equal(t, Progress{}, empty.Progress())
	assert.True(t, empty.Done())
}

func TestScheduler_StalledAfterFailure(t *testing.T) {
	s := NewScheduler(diamond(t))
	require.NoError(t, s.Start("a"))
	assert.False(t, s.Stalled(), "running steps may still unblock others")

	s.MarkFailed("a")
	assert.True(t, s.Stalled())
	assert.False(t, s.Done())

	var blocked []string
	for _, step := range s.Blocked() {
		blocked = append(blocked, step.ID)
	}
	assert.Equal(t, []string{"b", "c", "d"}, blocked)
}

func TestScheduler_StalledOnMissingDependency(t *testing.T) {
	// 绕过 Builder 校验，模拟手工编辑的图
	g := NewGraph(PatternSequential)
	g.Steps = append(g.Steps, Step{ID: "a"}, Step{ID: "b"})
	g.Dependencies["a"] = []string{"missing"}

	s := NewScheduler(g)
	assert.Equal(t, []string{"b"}, eligibleIDs(s))
	require.NoError(t, s.Start("b"))
	s.MarkCompleted("b")

	assert.Empty(t, eligibleIDs(s))
	assert.True(t, s.Stalled())
	require.Len(t, s.Blocked(), 1)
	assert.Equal(t, "a", s.Blocked()[0].ID)
}

func TestRestoreScheduler(t *testing.T) {
	s := RestoreScheduler(diamond(t), map[string]StepStatus{
		"a":     StatusCompleted,
		"b":     StatusInProgress,
		"c":     StepStatus("exploded"),
		"ghost": StatusCompleted,
	})

	st, _ := s.Status("a")
	assert.Equal(t, StatusCompleted, st)
	st, _ = s.Status("b")
	assert.Equal(t, StatusPending, st, "interrupted steps restart")
	st, _ = s.Status("c")
	assert.Equal(t, StatusPending, st)
	_, ok := s.Status("ghost")
	assert.False(t, ok)
	assert.Equal(t, []string{"b", "c"}, eligibleIDs(s))
}

func TestScheduler_StatusesIsACopy(t *testing.T) {
	s := NewScheduler(diamond(t))
	m := s.Statuses()
	m["a"] = StatusCompleted
	st, _ := s.Status("a")
	assert.Equal(t, StatusPending, st)
}
