// Package metrics provides internal metrics collection.
// This package is internal and should not be imported by external projects.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"

	"github.com/BaSui01/crewflow/workflow"
)

// =============================================================================
// 📊 指标收集器
// =============================================================================

// Collector 指标收集器，实现 workflow.Observer
type Collector struct {
	// 步骤指标
	stepExecutionsTotal *prometheus.CounterVec
	stepDuration        *prometheus.HistogramVec
	stepTokensUsed      *prometheus.CounterVec
	stepsInProgress     prometheus.Gauge

	// 运行指标
	runsTotal   *prometheus.CounterVec
	runDuration prometheus.Histogram

	// 产物指标
	artifactsStored *prometheus.CounterVec

	// LLM 指标
	llmRequestsTotal   *prometheus.CounterVec
	llmRequestDuration *prometheus.HistogramVec
	llmTokensUsed      *prometheus.CounterVec

	logger *zap.Logger
}

var _ workflow.Observer = (*Collector)(nil)

// NewCollector 创建指标收集器，注册到默认 Registry
func NewCollector(namespace string, logger *zap.Logger) *Collector {
	return NewCollectorWith(prometheus.DefaultRegisterer, namespace, logger)
}

// NewCollectorWith 创建指标收集器，注册到 reg
func NewCollectorWith(reg prometheus.Registerer, namespace string, logger *zap.Logger) *Collector {
	f := promauto.With(reg)
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Collector{
		logger: logger.With(zap.String("component", "metrics")),
	}

	// 步骤指标
	c.stepExecutionsTotal = f.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "step_executions_total",
			Help:      "Total number of workflow step executions",
		},
		[]string{"agent_id", "status"},
	)

	c.stepDuration = f.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "step_duration_seconds",
			Help:      "Workflow step duration in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120, 300},
		},
		[]string{"agent_id"},
	)

	c.stepTokensUsed = f.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "step_tokens_used_total",
			Help:      "Total number of tokens used by workflow steps",
		},
		[]string{"agent_id", "type"}, // type: prompt, completion
	)

	c.stepsInProgress = f.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "steps_in_progress",
			Help:      "Number of workflow steps currently executing",
		},
	)

	// 运行指标
	c.runsTotal = f.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "workflow_runs_total",
			Help:      "Total number of workflow runs by outcome",
		},
		[]string{"outcome"},
	)

	c.runDuration = f.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "workflow_run_duration_seconds",
			Help:      "Workflow run duration in seconds",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 12),
		},
	)

	// 产物指标
	c.artifactsStored = f.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "artifacts_stored_total",
			Help:      "Total number of artifacts stored",
		},
		[]string{"agent_id"},
	)

	// LLM 指标
	c.llmRequestsTotal = f.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "llm_requests_total",
			Help:      "Total number of LLM requests",
		},
		[]string{"provider", "model", "status"},
	)

	c.llmRequestDuration = f.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "llm_request_duration_seconds",
			Help:      "LLM request duration in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
		},
		[]string{"provider", "model"},
	)

	c.llmTokensUsed = f.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "llm_tokens_used_total",
			Help:      "Total number of tokens reported by LLM providers",
		},
		[]string{"provider", "model", "type"},
	)

	logger.Info("metrics collector initialized", zap.String("namespace", namespace))

	return c
}

// =============================================================================
// 🎯 workflow.Observer
// =============================================================================

// StepStarted 记录步骤开始
func (c *Collector) StepStarted(step workflow.Step) {
	c.stepsInProgress.Inc()
}

// StepFinished 记录步骤结果
func (c *Collector) StepFinished(r workflow.ExecutionResult) {
	c.stepsInProgress.Dec()
	c.stepExecutionsTotal.WithLabelValues(r.AgentID, stepStatus(r.Success)).Inc()
	c.stepDuration.WithLabelValues(r.AgentID).Observe(r.ExecutionTime.Seconds())
	c.stepTokensUsed.WithLabelValues(r.AgentID, "prompt").Add(float64(r.Usage.PromptTokens))
	c.stepTokensUsed.WithLabelValues(r.AgentID, "completion").Add(float64(r.Usage.CompletionTokens))
	if r.ArtifactID != "" {
		c.artifactsStored.WithLabelValues(r.AgentID).Inc()
	}
}

// RunFinished 记录一次运行
func (c *Collector) RunFinished(report *workflow.Report) {
	c.runsTotal.WithLabelValues(string(report.Outcome)).Inc()
	c.runDuration.Observe(report.FinishedAt.Sub(report.StartedAt).Seconds())
	c.logger.Debug("workflow run recorded",
		zap.String("run_id", report.RunID),
		zap.String("outcome", string(report.Outcome)))
}

// =============================================================================
// 🤖 LLM 指标记录
// =============================================================================

// RecordLLMRequest 记录 LLM 请求
func (c *Collector) RecordLLMRequest(provider, model, status string, duration time.Duration, promptTokens, completionTokens int) {
	c.llmRequestsTotal.WithLabelValues(provider, model, status).Inc()
	c.llmRequestDuration.WithLabelValues(provider, model).Observe(duration.Seconds())
	c.llmTokensUsed.WithLabelValues(provider, model, "prompt").Add(float64(promptTokens))
	c.llmTokensUsed.WithLabelValues(provider, model, "completion").Add(float64(completionTokens))
}

// =============================================================================
// 🔧 辅助函数
// =============================================================================

func stepStatus(success bool) string {
	if success {
		return "success"
	}
	return "failure"
}
