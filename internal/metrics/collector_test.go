package metrics

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/BaSui01/crewflow/llm"
	"github.com/BaSui01/crewflow/types"
	"github.com/BaSui01/crewflow/workflow"
)

var collectorNamespaceSeq uint64

func nextTestNamespace() string {
	seq := atomic.AddUint64(&collectorNamespaceSeq, 1)
	return fmt.Sprintf("test_%d", seq)
}

// =============================================================================
// 🧪 Collector 测试
// =============================================================================

func TestNewCollector(t *testing.T) {
	collector := NewCollector(nextTestNamespace(), zap.NewNop())

	assert.NotNil(t, collector)
	assert.NotNil(t, collector.stepExecutionsTotal)
	assert.NotNil(t, collector.stepDuration)
	assert.NotNil(t, collector.runsTotal)
	assert.NotNil(t, collector.llmRequestsTotal)

	assert.NotNil(t, NewCollector(nextTestNamespace(), nil))
}

func TestCollector_StepLifecycle(t *testing.T) {
	collector := NewCollector(nextTestNamespace(), zap.NewNop())
	step := workflow.Step{ID: "step-agent-01", AgentID: "agent-01"}

	collector.StepStarted(step)
	assert.Equal(t, 1.0, testutil.ToFloat64(collector.stepsInProgress))

	collector.StepFinished(workflow.ExecutionResult{
		StepID:        step.ID,
		AgentID:       step.AgentID,
		Success:       true,
		ExecutionTime: 2 * time.Second,
		Usage:         types.TokenUsage{PromptTokens: 100, CompletionTokens: 40},
		ArtifactID:    "output-x-1",
	})
	collector.StepStarted(step)
	collector.StepFinished(workflow.ExecutionResult{StepID: step.ID, AgentID: step.AgentID, Error: "boom"})

	assert.Equal(t, 0.0, testutil.ToFloat64(collector.stepsInProgress))
	assert.Equal(t, 1.0, testutil.ToFloat64(collector.stepExecutionsTotal.WithLabelValues("agent-01", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(collector.stepExecutionsTotal.WithLabelValues("agent-01", "failure")))
	assert.Equal(t, 100.0, testutil.ToFloat64(collector.stepTokensUsed.WithLabelValues("agent-01", "prompt")))
	assert.Equal(t, 40.0, testutil.ToFloat64(collector.stepTokensUsed.WithLabelValues("agent-01", "completion")))
	assert.Equal(t, 1.0, testutil.ToFloat64(collector.artifactsStored.WithLabelValues("agent-01")))
	assert.Equal(t, 1, testutil.CollectAndCount(collector.stepDuration))
}

func TestCollector_RunFinished(t *testing.T) {
	collector := NewCollector(nextTestNamespace(), zap.NewNop())
	start := time.Now()

	collector.RunFinished(&workflow.Report{RunID: "r1", Outcome: workflow.OutcomeCompleted, StartedAt: start, FinishedAt: start.Add(time.Minute)})
	collector.RunFinished(&workflow.Report{RunID: "r2", Outcome: workflow.OutcomeStalled, StartedAt: start, FinishedAt: start})
	collector.RunFinished(&workflow.Report{RunID: "r3", Outcome: workflow.OutcomeCompleted, StartedAt: start, FinishedAt: start})

	assert.Equal(t, 2.0, testutil.ToFloat64(collector.runsTotal.WithLabelValues("completed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(collector.runsTotal.WithLabelValues("stalled")))
	assert.Equal(t, 2, testutil.CollectAndCount(collector.runsTotal))
}

func TestCollector_AsRunnerObserver(t *testing.T) {
	collector := NewCollector(nextTestNamespace(), zap.NewNop())

	g, err := workflow.NewGraphBuilder(workflow.PatternParallel).
		AddStep(workflow.Step{ID: "a", AgentID: "agent-01"}).
		AddStep(workflow.Step{ID: "b", AgentID: "agent-02"}).
		Build()
	require.NoError(t, err)

	store := &memoryStore{}
	runner := workflow.NewRunner(workflow.NewScheduler(g), workflow.EchoClient{}, store,
		workflow.WithObserver(collector))
	report := runner.RunToCompletion(context.Background(), workflow.RunOptions{})
	require.Equal(t, workflow.OutcomeCompleted, report.Outcome)

	assert.Equal(t, 1.0, testutil.ToFloat64(collector.stepExecutionsTotal.WithLabelValues("agent-01", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(collector.stepExecutionsTotal.WithLabelValues("agent-02", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(collector.runsTotal.WithLabelValues("completed")))
}

// =============================================================================
// 🧪 InstrumentProvider 测试
// =============================================================================

type stubProvider struct {
	resp   *llm.ChatResponse
	err    error
	chunks []llm.StreamChunk
}

func (p *stubProvider) Completion(context.Context, *llm.ChatRequest) (*llm.ChatResponse, error) {
	return p.resp, p.err
}

func (p *stubProvider) Stream(context.Context, *llm.ChatRequest) (<-chan llm.StreamChunk, error) {
	if p.err != nil {
		return nil, p.err
	}
	ch := make(chan llm.StreamChunk, len(p.chunks))
	for _, c := range p.chunks {
		ch <- c
	}
	close(ch)
	return ch, nil
}

func (p *stubProvider) HealthCheck(context.Context) (*llm.HealthStatus, error) {
	return &llm.HealthStatus{Healthy: true}, nil
}

func (p *stubProvider) Name() string { return "stub" }

func TestInstrumentProvider_Completion(t *testing.T) {
	collector := NewCollector(nextTestNamespace(), zap.NewNop())
	p := InstrumentProvider(&stubProvider{resp: &llm.ChatResponse{
		Model: "gpt-4o-2024",
		Usage: llm.ChatUsage{PromptTokens: 12, CompletionTokens: 8},
	}}, collector)

	_, err := p.Completion(context.Background(), &llm.ChatRequest{Model: "gpt-4o"})
	require.NoError(t, err)
	assert.Equal(t, "stub", p.Name())
	assert.Equal(t, 1.0, testutil.ToFloat64(collector.llmRequestsTotal.WithLabelValues("stub", "gpt-4o-2024", "success")))
	assert.Equal(t, 12.0, testutil.ToFloat64(collector.llmTokensUsed.WithLabelValues("stub", "gpt-4o-2024", "prompt")))

	failing := InstrumentProvider(&stubProvider{err: errors.New("down")}, collector)
	_, err = failing.Completion(context.Background(), &llm.ChatRequest{Model: "gpt-4o"})
	require.Error(t, err)
	assert.Equal(t, 1.0, testutil.ToFloat64(collector.llmRequestsTotal.WithLabelValues("stub", "gpt-4o", "error")))
}

func TestInstrumentProvider_Stream(t *testing.T) {
	collector := NewCollector(nextTestNamespace(), zap.NewNop())
	p := InstrumentProvider(&stubProvider{chunks: []llm.StreamChunk{
		{Delta: llm.Message{Content: "hi"}},
		{Usage: &llm.ChatUsage{PromptTokens: 5, CompletionTokens: 1}},
	}}, collector)

	ch, err := p.Stream(context.Background(), &llm.ChatRequest{Model: "m"})
	require.NoError(t, err)
	var got []llm.StreamChunk
	for c := range ch {
		got = append(got, c)
	}
	require.Len(t, got, 2)

	assert.Eventually(t, func() bool {
		return testutil.ToFloat64(collector.llmRequestsTotal.WithLabelValues("stub", "m", "success")) == 1
	}, time.Second, 10*time.Millisecond)
	assert.Equal(t, 5.0, testutil.ToFloat64(collector.llmTokensUsed.WithLabelValues("stub", "m", "prompt")))
}

func TestInstrumentProvider_NilCollector(t *testing.T) {
	inner := &stubProvider{}
	assert.Same(t, llm.Provider(inner), InstrumentProvider(inner, nil))
}

func TestNewCollectorWith_Registry(t *testing.T) {
	reg := prometheus.NewRegistry()
	collector := NewCollectorWith(reg, "crewflow", zap.NewNop())
	collector.RunFinished(&workflow.Report{Outcome: workflow.OutcomeFailed})

	// 同一 namespace 可在独立 Registry 中重复创建
	assert.NotPanics(t, func() { NewCollectorWith(prometheus.NewRegistry(), "crewflow", zap.NewNop()) })

	n, err := testutil.GatherAndCount(reg, "crewflow_workflow_runs_total")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}
