package workflow

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/BaSui01/crewflow/artifacts"
	"github.com/BaSui01/crewflow/types"
)

const instrumentationName = "github.com/BaSui01/crewflow/workflow"

// ArtifactStore is the part of the artifact manager the runner needs.
// *artifacts.Manager satisfies it.
type ArtifactStore interface {
	Store(ctx context.Context, artifactType, name string, content any, opts ...artifacts.CreateOption) (*artifacts.Artifact, error)
	Get(ctx context.Context, id string) (*artifacts.Artifact, error)
	Latest(ctx context.Context, tag string) (*artifacts.Artifact, bool)
}

// Observer is notified as steps and runs finish. Implementations must
// be safe for concurrent use.
type Observer interface {
	StepStarted(step Step)
	StepFinished(result ExecutionResult)
	RunFinished(report *Report)
}

// Checkpointer persists scheduler snapshots.
type Checkpointer interface {
	SaveWorkflow(ctx context.Context, id string, def *Definition) error
}

// ExecutionResult is the outcome of a single step.
type ExecutionResult struct {
	StepID        string           `json:"stepId"`
	AgentID       string           `json:"agentId"`
	Success       bool             `json:"success"`
	Output        string           `json:"output,omitempty"`
	Error         string           `json:"error,omitempty"`
	ExecutionTime time.Duration    `json:"executionTime"`
	Usage         types.TokenUsage `json:"usage"`
	ArtifactID    string           `json:"artifactId,omitempty"`
}

// RunOptions controls a run.
type RunOptions struct {
	Execution ExecutionOptions
	// ContinueOnFailure keeps running other eligible steps after a failure.
	ContinueOnFailure bool
	// MaxParallel > 1 runs eligible steps concurrently.
	MaxParallel int
	// MaxSteps caps the number of steps RunToCompletion executes. 0 means no limit.
	MaxSteps int
	// RunID is recorded on stored artifacts. RunToCompletion generates one when empty.
	RunID string
}

// Outcome is how a run ended.
type Outcome string

const (
	OutcomeCompleted Outcome = "completed"
	OutcomeFailed    Outcome = "failed"
	OutcomeStalled   Outcome = "stalled"
	OutcomeCancelled Outcome = "cancelled"
	OutcomeLimited   Outcome = "limited"
)

// Report summarises a RunToCompletion call.
type Report struct {
	RunID      string            `json:"runId"`
	Outcome    Outcome           `json:"outcome"`
	Results    []ExecutionResult `json:"results"`
	Progress   Progress          `json:"progress"`
	Stats      ExecutionStats    `json:"stats"`
	Blocked    []string          `json:"blocked,omitempty"`
	StartedAt  time.Time         `json:"startedAt"`
	FinishedAt time.Time         `json:"finishedAt"`
}

// Runner drives a scheduler: it claims eligible steps, calls the model
// client and stores each output as an artifact.
type Runner struct {
	scheduler    *Scheduler
	client       ModelClient
	store        ArtifactStore
	prompts      PromptSource
	project      ProjectInfo
	observer     Observer
	checkpointer Checkpointer
	workflowID   string
	tracer       trace.Tracer
	logger       *zap.Logger

	// checkpointMu 串行化快照与写入，保证最后写入的是最新快照
	checkpointMu sync.Mutex
}

// RunnerOption configures a Runner.
type RunnerOption func(*Runner)

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) RunnerOption {
	return func(r *Runner) {
		if logger != nil {
			r.logger = logger.With(zap.String("component", "step_runner"))
		}
	}
}

// WithPromptSource sets where agent prompts are loaded from. Without
// one, steps run with no agent instructions.
func WithPromptSource(src PromptSource) RunnerOption {
	return func(r *Runner) { r.prompts = src }
}

// WithProject sets the project described in prompts.
func WithProject(p ProjectInfo) RunnerOption {
	return func(r *Runner) { r.project = p }
}

// WithObserver sets the observer.
func WithObserver(o Observer) RunnerOption {
	return func(r *Runner) { r.observer = o }
}

// WithCheckpointer saves a snapshot after every step under workflowID.
func WithCheckpointer(c Checkpointer) RunnerOption {
	return func(r *Runner) { r.checkpointer = c }
}

// WithWorkflowID sets the id used for checkpoints.
func WithWorkflowID(id string) RunnerOption {
	return func(r *Runner) {
		if id != "" {
			r.workflowID = id
		}
	}
}

// WithTracer overrides the OpenTelemetry tracer.
func WithTracer(t trace.Tracer) RunnerOption {
	return func(r *Runner) {
		if t != nil {
			r.tracer = t
		}
	}
}

// NewRunner creates a runner.
func NewRunner(s *Scheduler, client ModelClient, store ArtifactStore, opts ...RunnerOption) *Runner {
	r := &Runner{
		scheduler:  s,
		client:     client,
		store:      store,
		workflowID: "workflow",
		tracer:     otel.Tracer(instrumentationName),
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Scheduler returns the driven scheduler.
func (r *Runner) Scheduler() *Scheduler {
	return r.scheduler
}

// =============================================================================
// 🎯 单步执行
// =============================================================================

// RunStep claims and executes one step. Failures are reported in the
// result, never as an error. A step that is not eligible is not touched.
func (r *Runner) RunStep(ctx context.Context, step Step, opts RunOptions) ExecutionResult {
	if err := r.scheduler.Start(step.ID); err != nil {
		return ExecutionResult{StepID: step.ID, AgentID: step.AgentID, Error: err.Error()}
	}
	return r.execute(ctx, step, opts)
}

// execute runs a step already moved to in-progress.
func (r *Runner) execute(ctx context.Context, step Step, opts RunOptions) ExecutionResult {
	start := time.Now()
	ctx, span := r.tracer.Start(ctx, "workflow.step", trace.WithAttributes(
		attribute.String("workflow.step_id", step.ID),
		attribute.String("workflow.agent_id", step.AgentID),
		attribute.String("workflow.run_id", opts.RunID),
	))
	defer span.End()

	if r.observer != nil {
		r.observer.StepStarted(step)
	}
	r.logger.Info("step started",
		zap.String("step_id", step.ID),
		zap.String("agent_id", step.AgentID),
		zap.String("action", step.Action))

	result, err := r.invoke(ctx, step, opts)
	result.StepID = step.ID
	result.AgentID = step.AgentID
	result.ExecutionTime = time.Since(start)

	if err != nil {
		result.Success = false
		result.Output = ""
		result.Error = err.Error()
		r.scheduler.MarkFailed(step.ID)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		r.logger.Error("step failed",
			zap.String("step_id", step.ID),
			zap.Duration("duration", result.ExecutionTime),
			zap.Error(err))
	} else {
		result.Success = true
		r.scheduler.MarkCompleted(step.ID)
		span.SetAttributes(
			attribute.String("workflow.artifact_id", result.ArtifactID),
			attribute.Int("workflow.tokens", result.Usage.Total()))
		r.logger.Info("step completed",
			zap.String("step_id", step.ID),
			zap.String("artifact_id", result.ArtifactID),
			zap.Int("tokens", result.Usage.Total()),
			zap.Duration("duration", result.ExecutionTime))
	}

	r.checkpoint(ctx)
	if r.observer != nil {
		r.observer.StepFinished(result)
	}
	return result
}

func (r *Runner) invoke(ctx context.Context, step Step, opts RunOptions) (ExecutionResult, error) {
	var result ExecutionResult

	var agentPrompt string
	if r.prompts != nil {
		p, err := r.prompts.Load(step.AgentID)
		if err != nil {
			return result, err
		}
		agentPrompt = p
	}

	inputs := r.resolveInputs(ctx, step)
	pc := PromptContext{
		Step:        step,
		Project:     r.project,
		AgentPrompt: agentPrompt,
		Inputs:      inputs,
		Prompt:      BuildPrompt(step, r.project, agentPrompt, inputs),
	}
	if missing := pc.MissingInputs(); len(missing) > 0 {
		r.logger.Debug("inputs not available",
			zap.String("step_id", step.ID),
			zap.Strings("inputs", missing))
	}

	res, err := r.client.Execute(ctx, pc, opts.Execution)
	if err != nil {
		if _, ok := types.AsError(err); ok {
			return result, err
		}
		return result, types.NewError(types.ErrModelExecution, "model execution failed").WithCause(err)
	}
	if res == nil {
		return result, types.NewError(types.ErrModelExecution, "model client returned no result")
	}
	result.Output = res.Output
	result.Usage = res.Usage

	a, err := r.storeOutput(ctx, step, res, opts)
	if err != nil {
		return result, types.NewError(types.ErrStorage, "failed to store step output").WithCause(err)
	}
	result.ArtifactID = a.ID
	return result, nil
}

// resolveInputs tries each input as an artifact id first, then as a tag.
func (r *Runner) resolveInputs(ctx context.Context, step Step) []ResolvedInput {
	out := make([]ResolvedInput, 0, len(step.Inputs))
	for _, name := range step.Inputs {
		in := ResolvedInput{Name: name}
		if a, err := r.store.Get(ctx, name); err == nil {
			in.Artifact = a
		} else if a, ok := r.store.Latest(ctx, name); ok {
			in.Artifact = a
		}
		out = append(out, in)
	}
	return out
}

func (r *Runner) storeOutput(ctx context.Context, step Step, res *ModelResult, opts RunOptions) (*artifacts.Artifact, error) {
	name := step.ID + "-output"
	if len(step.Outputs) > 0 {
		name = step.Outputs[0]
	}
	tags := append([]string{artifacts.TagAgentOutput, step.AgentID, step.ID}, step.Outputs...)

	return r.store.Store(ctx, artifacts.TypeOutput, name, res.Output,
		artifacts.WithCreatedBy(step.AgentID),
		artifacts.WithTags(tags...),
		artifacts.WithMetadata(map[string]any{
			"stepId":     step.ID,
			"action":     step.Action,
			"tokensUsed": res.Usage.Total(),
			"timestamp":  time.Now().UTC().Format(time.RFC3339Nano),
			"runId":      opts.RunID,
		}),
	)
}

func (r *Runner) checkpoint(ctx context.Context) {
	if r.checkpointer == nil {
		return
	}
	// 步骤已结束，取消的 ctx 不应阻止状态落盘
	ctx = context.WithoutCancel(ctx)

	r.checkpointMu.Lock()
	defer r.checkpointMu.Unlock()
	if err := r.checkpointer.SaveWorkflow(ctx, r.workflowID, r.scheduler.Snapshot()); err != nil {
		r.logger.Warn("failed to checkpoint workflow",
			zap.String("workflow_id", r.workflowID),
			zap.Error(err))
	}
}

// =============================================================================
// 🔄 批量执行
// =============================================================================

// RunEligible executes the currently eligible steps in scheduler order.
// It stops at the first failure unless ContinueOnFailure is set.
func (r *Runner) RunEligible(ctx context.Context, opts RunOptions) []ExecutionResult {
	return r.runBatch(ctx, r.scheduler.Eligible(), opts)
}

func (r *Runner) runBatch(ctx context.Context, steps []Step, opts RunOptions) []ExecutionResult {
	if opts.MaxParallel > 1 && len(steps) > 1 {
		return r.runConcurrent(ctx, steps, opts)
	}

	results := make([]ExecutionResult, 0, len(steps))
	for _, step := range steps {
		if ctx.Err() != nil {
			break
		}
		res := r.RunStep(ctx, step, opts)
		results = append(results, res)
		if !res.Success && !opts.ContinueOnFailure {
			break
		}
	}
	return results
}

// runConcurrent claims steps in order and runs at most MaxParallel at a
// time. Results are returned in claim order.
func (r *Runner) runConcurrent(ctx context.Context, steps []Step, opts RunOptions) []ExecutionResult {
	var (
		g       errgroup.Group
		failed  atomic.Bool
		results = make([]ExecutionResult, len(steps))
		claimed = make([]bool, len(steps))
	)
	g.SetLimit(opts.MaxParallel)

	for i, step := range steps {
		if ctx.Err() != nil || (failed.Load() && !opts.ContinueOnFailure) {
			break
		}
		if err := r.scheduler.Start(step.ID); err != nil {
			results[i] = ExecutionResult{StepID: step.ID, AgentID: step.AgentID, Error: err.Error()}
			claimed[i] = true
			continue
		}
		claimed[i] = true
		g.Go(func() error {
			results[i] = r.execute(ctx, step, opts)
			if !results[i].Success {
				failed.Store(true)
			}
			return nil
		})
	}
	_ = g.Wait()

	out := make([]ExecutionResult, 0, len(steps))
	for i := range steps {
		if claimed[i] {
			out = append(out, results[i])
		}
	}
	return out
}

// RunToCompletion runs eligible steps until the graph is done, stalls,
// fails, hits MaxSteps, or ctx is cancelled.
func (r *Runner) RunToCompletion(ctx context.Context, opts RunOptions) *Report {
	if opts.RunID == "" {
		opts.RunID = uuid.NewString()
	}
	report := &Report{
		RunID:     opts.RunID,
		Results:   make([]ExecutionResult, 0),
		StartedAt: time.Now().UTC(),
	}
	r.logger.Info("workflow run started",
		zap.String("run_id", report.RunID),
		zap.String("workflow_id", r.workflowID),
		zap.Int("steps", r.scheduler.Graph().Len()))

	report.Outcome = r.loop(ctx, opts, report)

	report.Progress = r.scheduler.Progress()
	report.Stats = Stats(report.Results)
	report.FinishedAt = time.Now().UTC()
	if report.Outcome == OutcomeStalled || report.Outcome == OutcomeFailed {
		for _, step := range r.scheduler.Blocked() {
			report.Blocked = append(report.Blocked, step.ID)
		}
	}

	fields := []zap.Field{
		zap.String("run_id", report.RunID),
		zap.String("outcome", string(report.Outcome)),
		zap.Int("completed", report.Progress.Completed),
		zap.Int("total", report.Progress.Total),
		zap.Duration("duration", report.FinishedAt.Sub(report.StartedAt)),
	}
	if report.Outcome == OutcomeCompleted {
		r.logger.Info("workflow run finished", fields...)
	} else {
		r.logger.Warn("workflow run finished", append(fields, zap.Strings("blocked", report.Blocked))...)
	}

	if r.observer != nil {
		r.observer.RunFinished(report)
	}
	return report
}

func (r *Runner) loop(ctx context.Context, opts RunOptions, report *Report) Outcome {
	for {
		if r.scheduler.Done() {
			return OutcomeCompleted
		}
		if ctx.Err() != nil {
			return OutcomeCancelled
		}

		eligible := r.scheduler.Eligible()
		if len(eligible) == 0 {
			if r.scheduler.Progress().Failed > 0 {
				return OutcomeFailed
			}
			return OutcomeStalled
		}

		if opts.MaxSteps > 0 {
			remaining := opts.MaxSteps - len(report.Results)
			if remaining <= 0 {
				return OutcomeLimited
			}
			if len(eligible) > remaining {
				eligible = eligible[:remaining]
			}
		}

		results := r.runBatch(ctx, eligible, opts)
		report.Results = append(report.Results, results...)
		if ctx.Err() != nil {
			return OutcomeCancelled
		}
		if len(results) == 0 {
			return OutcomeStalled
		}
		for _, res := range results {
			if !res.Success && !opts.ContinueOnFailure {
				return OutcomeFailed
			}
		}
	}
}

// Err returns a types.Error describing an unsuccessful report, or nil.
func (rep *Report) Err() error {
	switch rep.Outcome {
	case OutcomeCompleted, OutcomeLimited:
		return nil
	case OutcomeStalled:
		return types.Errorf(types.ErrWorkflowStalled,
			"workflow stalled: %d of %d steps completed", rep.Progress.Completed, rep.Progress.Total)
	case OutcomeCancelled:
		return fmt.Errorf("workflow run cancelled after %d steps", len(rep.Results))
	default:
		return types.Errorf(types.ErrModelExecution,
			"workflow failed: %d step(s) failed", rep.Stats.Failed)
	}
}
