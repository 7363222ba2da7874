package workflow

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

// drawTeam 生成随机团队：每个 Agent 只属于一个已列出的阶段。
func drawTeam(rt *rapid.T) ([]Agent, []string) {
	numPhases := rapid.IntRange(1, 5).Draw(rt, "numPhases")
	phaseList := make([]string, numPhases)
	for i := range phaseList {
		phaseList[i] = fmt.Sprintf("phase-%d", i)
	}

	numAgents := rapid.IntRange(0, 12).Draw(rt, "numAgents")
	agents := make([]Agent, numAgents)
	for i := range agents {
		p := rapid.IntRange(0, numPhases-1).Draw(rt, fmt.Sprintf("phase_of_%d", i))
		agents[i] = Agent{ID: fmt.Sprintf("agent-%02d", i+1), Phase: phaseList[p]}
	}
	return agents, phaseList
}

func phaseIndex(phaseList []string) map[string]int {
	idx := make(map[string]int, len(phaseList))
	for i, p := range phaseList {
		idx[p] = i
	}
	return idx
}

// TestProperty_Sequential_Chain: N 个 Agent 产生 N 个步骤、N-1 条边，每步依赖前一步。
func TestProperty_Sequential_Chain(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		agents, phaseList := drawTeam(rt)

		g, err := Build(agents, phaseList, PatternSequential)
		require.NoError(rt, err)

		require.Equal(rt, len(agents), g.Len())
		if len(agents) > 0 {
			assert.Equal(rt, len(agents)-1, g.EdgeCount())
		}
		idx := phaseIndex(phaseList)
		for i, step := range g.Steps {
			if i == 0 {
				assert.Empty(rt, g.DependenciesOf(step.ID))
				continue
			}
			assert.Equal(rt, []string{g.Steps[i-1].ID}, g.DependenciesOf(step.ID))
		}
		// 步骤按阶段顺序排列
		agentPhase := make(map[string]string, len(agents))
		for _, a := range agents {
			agentPhase[a.ID] = a.Phase
		}
		for i := 1; i < len(g.Steps); i++ {
			prev := idx[agentPhase[g.Steps[i-1].AgentID]]
			cur := idx[agentPhase[g.Steps[i].AgentID]]
			assert.LessOrEqual(rt, prev, cur)
		}
	})
}

// TestProperty_Parallel_PhaseDependencies: 第 k 个阶段的每个步骤恰好依赖第 k-1 个阶段的全部步骤，
// 上一阶段为空时没有依赖。
func TestProperty_Parallel_PhaseDependencies(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		agents, phaseList := drawTeam(rt)

		g, err := Build(agents, phaseList, PatternParallel)
		require.NoError(rt, err)
		require.Equal(rt, len(agents), g.Len())

		byPhase := make(map[string][]string)
		for _, a := range agents {
			byPhase[a.Phase] = append(byPhase[a.Phase], "step-"+a.ID)
		}

		var previous []string
		for _, phase := range phaseList {
			current := byPhase[phase]
			for _, id := range current {
				assert.ElementsMatch(rt, previous, g.DependenciesOf(id), "deps of %s", id)
			}
			previous = current
		}
	})
}

// TestProperty_Iterative_ReviewRefine: 每个阶段有 A_p + 2 个步骤（A_p 可以为 0），
// review 依赖该阶段全部 work 步骤，refine 只依赖 review。
func TestProperty_Iterative_ReviewRefine(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		agents, phaseList := drawTeam(rt)

		g, err := Build(agents, phaseList, PatternIterative)
		require.NoError(rt, err)

		byPhase := make(map[string][]string)
		for _, a := range agents {
			byPhase[a.Phase] = append(byPhase[a.Phase], "work-"+a.ID)
		}

		if len(agents) == 0 {
			assert.Equal(rt, 0, g.Len())
			return
		}

		expected := 0
		for _, phase := range phaseList {
			work := byPhase[phase]
			expected += len(work) + 2
			_, ok := g.Step("refine-" + phase)
			assert.True(rt, ok, "refine-%s", phase)
			assert.ElementsMatch(rt, work, g.DependenciesOf("review-"+phase))
			assert.Equal(rt, []string{"review-" + phase}, g.DependenciesOf("refine-"+phase))
			for _, id := range work {
				assert.Empty(rt, g.DependenciesOf(id))
			}
		}
		assert.Equal(rt, expected, g.Len())
	})
}

// TestProperty_BuiltGraphsAreAcyclic: 任何模式生成的图都能拓扑排序。
func TestProperty_BuiltGraphsAreAcyclic(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		agents, phaseList := drawTeam(rt)
		pattern := rapid.SampledFrom([]PatternType{PatternSequential, PatternParallel, PatternIterative}).Draw(rt, "pattern")

		g, err := Build(agents, phaseList, pattern)
		require.NoError(rt, err)

		order, err := g.TopologicalOrder()
		require.NoError(rt, err)
		pos := make(map[string]int, len(order))
		for i, id := range order {
			pos[id] = i
		}
		for id, deps := range g.Dependencies {
			for _, dep := range deps {
				assert.Less(rt, pos[dep], pos[id])
			}
		}
	})
}
