package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/BaSui01/crewflow/internal/telemetry"
	"github.com/BaSui01/crewflow/persistence"
	"github.com/BaSui01/crewflow/workflow"
)

type runOptions struct {
	dryRun            bool
	fresh             bool
	pattern           string
	maxSteps          int
	maxParallel       int
	continueOnFailure bool
	runID             string
	jsonOutput        bool
}

func newRunCmd(c *cli) *cobra.Command {
	opts := &runOptions{}
	cmd := &cobra.Command{
		Use:   "run <project>",
		Short: "Build or resume a project's workflow and run it to completion",
		Long: `Run executes every eligible step of the project's workflow until all
steps are complete, a step fails, the workflow stalls or --max-steps is
reached.

The workflow is resumed from the project's state file (workflow.json by
default), then from the state store, and built from the project's team
otherwise. Progress is checkpointed after every step.

Examples:
  crewflow run shop --dry-run
  crewflow run ./projects/active/shop --max-steps 2
  crewflow run shop --pattern parallel --max-parallel 4 --fresh`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return c.run(ctx, cmd.OutOrStdout(), args[0], opts)
		},
	}

	f := cmd.Flags()
	f.BoolVar(&opts.dryRun, "dry-run", false, "use the echo client instead of the configured model")
	f.BoolVar(&opts.fresh, "fresh", false, "ignore saved state and rebuild the workflow")
	f.StringVar(&opts.pattern, "pattern", "", "workflow pattern when building (sequential, parallel, iterative)")
	f.IntVar(&opts.maxSteps, "max-steps", -1, "maximum steps to execute in this run (0 = unlimited)")
	f.IntVar(&opts.maxParallel, "max-parallel", 0, "maximum concurrently running steps")
	f.BoolVar(&opts.continueOnFailure, "continue-on-failure", false, "keep running independent steps after a failure")
	f.StringVar(&opts.runID, "run-id", "", "run id recorded on artifacts (generated when empty)")
	f.BoolVar(&opts.jsonOutput, "json", false, "print the run report as JSON")
	return cmd
}

func (c *cli) run(ctx context.Context, out io.Writer, arg string, opts *runOptions) error {
	s, err := c.openSession(ctx, arg)
	if err != nil {
		return err
	}
	defer func() {
		if err := s.Close(); err != nil {
			c.logger.Warn("failed to close project resources", zap.Error(err))
		}
	}()
	p := s.project
	statePath := p.Path(c.cfg.Workflow.StateFile)

	sched, err := c.loadOrBuild(ctx, s, statePath, opts)
	if err != nil {
		return err
	}

	collector, stopMetrics, err := c.startMetrics()
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = stopMetrics(shutdownCtx)
	}()

	providers, err := telemetry.Init(ctx, c.cfg.Telemetry, c.logger, telemetry.WithVersion(Version))
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := providers.Shutdown(shutdownCtx); err != nil {
			c.logger.Warn("telemetry shutdown failed", zap.Error(err))
		}
	}()

	var obs observers
	if !opts.jsonOutput {
		obs = append(obs, &progressPrinter{out: out})
	}
	if collector != nil {
		obs = append(obs, collector)
	}
	cp := checkpoints{stateFile(statePath), s.state}

	runner := workflow.NewRunner(sched, c.modelClient(opts.dryRun, collector), s.artifacts,
		workflow.WithLogger(c.logger),
		workflow.WithPromptSource(workflow.DirPromptSource{Dir: p.Path(c.cfg.Project.PromptsDir)}),
		workflow.WithProject(p.Info()),
		workflow.WithObserver(obs),
		workflow.WithCheckpointer(cp),
		workflow.WithWorkflowID(p.ID()),
		workflow.WithTracer(providers.Tracer("github.com/BaSui01/crewflow")),
	)

	runOpts := workflow.RunOptions{
		Execution:         c.executionOptions(),
		ContinueOnFailure: c.cfg.Workflow.ContinueOnFailure || opts.continueOnFailure,
		MaxParallel:       c.cfg.Workflow.MaxParallel,
		MaxSteps:          c.cfg.Workflow.MaxSteps,
		RunID:             opts.runID,
	}
	if opts.maxParallel > 0 {
		runOpts.MaxParallel = opts.maxParallel
	}
	if opts.maxSteps >= 0 {
		runOpts.MaxSteps = opts.maxSteps
	}

	report := runner.RunToCompletion(ctx, runOpts)

	// 最终快照，覆盖运行前就已完成或停滞、没有执行任何步骤的情况
	if err := cp.SaveWorkflow(ctx, p.ID(), sched.Snapshot()); err != nil {
		c.logger.Warn("failed to save workflow state", zap.Error(err))
	}

	if opts.jsonOutput {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		if err := enc.Encode(report); err != nil {
			return err
		}
	} else {
		printReport(out, report)
	}
	return report.Err()
}

// loadOrBuild 依次尝试状态文件、状态存储，最后从团队构建
func (c *cli) loadOrBuild(ctx context.Context, s *session, statePath string, opts *runOptions) (*workflow.Scheduler, error) {
	p := s.project
	if !opts.fresh {
		def, err := workflow.LoadDefinition(statePath)
		switch {
		case err == nil:
			c.logger.Info("resuming workflow from state file", zap.String("path", statePath))
			return def.Scheduler()
		case !errors.Is(err, os.ErrNotExist):
			return nil, err
		}

		def, err = s.state.LoadWorkflow(ctx, p.ID())
		switch {
		case err == nil:
			c.logger.Info("resuming workflow from state store", zap.String("workflow_id", p.ID()))
			return def.Scheduler()
		case !errors.Is(err, persistence.ErrNotFound):
			return nil, err
		}
	}

	sched, err := c.buildScheduler(p, opts.pattern)
	if err != nil {
		return nil, err
	}
	c.logger.Info("workflow built",
		zap.String("project", p.Name),
		zap.String("pattern", string(sched.Graph().Type)),
		zap.Int("steps", sched.Graph().Len()))
	return sched, nil
}

func printReport(out io.Writer, report *workflow.Report) {
	st := report.Stats
	fmt.Fprintf(out, "\nRun %s: %s\n", report.RunID, report.Outcome)
	fmt.Fprintf(out, "  Progress:   %d/%d steps (%d%%)\n",
		report.Progress.Completed, report.Progress.Total, report.Progress.Percentage)
	fmt.Fprintf(out, "  Executed:   %d (%d ok, %d failed)\n", st.TotalSteps, st.Successful, st.Failed)
	fmt.Fprintf(out, "  Tokens:     %d (avg %.1f/step)\n", st.TotalTokens, st.AverageTokensPerStep)
	fmt.Fprintf(out, "  Time:       %s (avg %s/step)\n", st.TotalTime.Round(time.Millisecond), st.AverageTimePerStep.Round(time.Millisecond))
	if len(report.Blocked) > 0 {
		fmt.Fprintf(out, "  Blocked:    %v\n", report.Blocked)
	}
}
