package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/BaSui01/crewflow/workflow"
)

// observers 把运行事件分发给多个观察者
type observers []workflow.Observer

func (o observers) StepStarted(step workflow.Step) {
	for _, obs := range o {
		obs.StepStarted(step)
	}
}

func (o observers) StepFinished(r workflow.ExecutionResult) {
	for _, obs := range o {
		obs.StepFinished(r)
	}
}

func (o observers) RunFinished(report *workflow.Report) {
	for _, obs := range o {
		obs.RunFinished(report)
	}
}

// progressPrinter 在终端逐步打印执行结果
type progressPrinter struct {
	mu  sync.Mutex
	out io.Writer
}

func (p *progressPrinter) StepStarted(step workflow.Step) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintf(p.out, "▶ %s (%s)\n", step.ID, step.AgentID)
}

func (p *progressPrinter) StepFinished(r workflow.ExecutionResult) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if r.Success {
		fmt.Fprintf(p.out, "✓ %s -> %s (%d tokens, %s)\n", r.StepID, r.ArtifactID, r.Usage.Total(), r.ExecutionTime.Round(1e6))
		return
	}
	fmt.Fprintf(p.out, "✗ %s: %s\n", r.StepID, r.Error)
}

func (p *progressPrinter) RunFinished(*workflow.Report) {}

// checkpoints 把快照同时写入多个 Checkpointer
type checkpoints []workflow.Checkpointer

func (c checkpoints) SaveWorkflow(ctx context.Context, id string, def *workflow.Definition) error {
	var errs []error
	for _, cp := range c {
		if err := cp.SaveWorkflow(ctx, id, def); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// stateFile 把快照写回项目目录下的工作流文件
type stateFile string

func (f stateFile) SaveWorkflow(_ context.Context, _ string, def *workflow.Definition) error {
	return workflow.SaveDefinition(string(f), def)
}
