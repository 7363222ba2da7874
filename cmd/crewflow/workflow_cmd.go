package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/BaSui01/crewflow/persistence"
	"github.com/BaSui01/crewflow/workflow"
)

func newWorkflowCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "workflow",
		Short: "Build and inspect project workflows",
	}
	cmd.AddCommand(newWorkflowBuildCmd(c), newWorkflowShowCmd(c), newWorkflowStatusCmd(c))
	return cmd
}

// =============================================================================
// 🏗️ workflow build
// =============================================================================

func newWorkflowBuildCmd(c *cli) *cobra.Command {
	var (
		pattern string
		output  string
		force   bool
	)
	cmd := &cobra.Command{
		Use:   "build <project>",
		Short: "Compose the team and write the workflow state file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := c.loadProject(args[0])
			if err != nil {
				return err
			}
			path := output
			if path == "" {
				path = p.Path(c.cfg.Workflow.StateFile)
			}
			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("%s already exists (use --force to overwrite)", path)
			}

			sched, err := c.buildScheduler(p, pattern)
			if err != nil {
				return err
			}
			if err := workflow.SaveDefinition(path, sched.Snapshot()); err != nil {
				return err
			}

			g := sched.Graph()
			fmt.Fprintf(cmd.OutOrStdout(), "Built %s workflow for %s: %d steps, %d dependencies\n",
				g.Type, p.Name, g.Len(), g.EdgeCount())
			fmt.Fprintf(cmd.OutOrStdout(), "Saved to %s\n", path)
			return nil
		},
	}
	cmd.Flags().StringVar(&pattern, "pattern", "", "workflow pattern (sequential, parallel, iterative)")
	cmd.Flags().StringVarP(&output, "output", "o", "", "output file (.json, .yaml); defaults to the project state file")
	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing state file")
	return cmd
}

// =============================================================================
// 📄 workflow show
// =============================================================================

func newWorkflowShowCmd(c *cli) *cobra.Command {
	var format string
	cmd := &cobra.Command{
		Use:   "show <project>",
		Short: "Print the saved workflow definition",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := c.loadProject(args[0])
			if err != nil {
				return err
			}
			def, err := workflow.LoadDefinition(p.Path(c.cfg.Workflow.StateFile))
			if err != nil {
				if errors.Is(err, os.ErrNotExist) {
					return fmt.Errorf("no workflow for %s yet: run 'crewflow workflow build' first", p.Name)
				}
				return err
			}

			var text string
			switch format {
			case "yaml":
				text, err = def.ToYAML()
			case "json":
				text, err = def.ToJSON()
			default:
				return fmt.Errorf("unknown format %q (json, yaml)", format)
			}
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), text)
			return nil
		},
	}
	cmd.Flags().StringVarP(&format, "format", "f", "json", "output format (json, yaml)")
	return cmd
}

// =============================================================================
// 📊 workflow status
// =============================================================================

func newWorkflowStatusCmd(c *cli) *cobra.Command {
	var all bool
	cmd := &cobra.Command{
		Use:   "status <project>",
		Short: "Show step statuses and progress",
		Long: `Status prints the progress of the project's workflow and the status
of every step. With --all it lists every workflow in the state store.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			s, err := c.openSession(ctx, args[0])
			if err != nil {
				return err
			}
			defer s.Close()

			if all {
				return printStoredWorkflows(ctx, cmd.OutOrStdout(), s.state)
			}

			def, err := workflow.LoadDefinition(s.project.Path(c.cfg.Workflow.StateFile))
			if errors.Is(err, os.ErrNotExist) {
				def, err = s.state.LoadWorkflow(ctx, s.project.ID())
				if errors.Is(err, persistence.ErrNotFound) {
					return fmt.Errorf("no workflow for %s yet: run 'crewflow workflow build' first", s.project.Name)
				}
			}
			if err != nil {
				return err
			}
			sched, err := def.Scheduler()
			if err != nil {
				return err
			}
			printStatus(cmd.OutOrStdout(), s.project.Name, sched, s.artifacts.Count())
			return nil
		},
	}
	cmd.Flags().BoolVarP(&all, "all", "a", false, "list all workflows in the state store")
	return cmd
}

func printStatus(out io.Writer, name string, sched *workflow.Scheduler, artifactCount int) {
	p := sched.Progress()
	fmt.Fprintf(out, "Workflow: %s (%s)\n", name, sched.Graph().Type)
	fmt.Fprintf(out, "Progress: %d%% (%d completed, %d in progress, %d pending, %d failed of %d)\n",
		p.Percentage, p.Completed, p.InProgress, p.Pending, p.Failed, p.Total)
	fmt.Fprintf(out, "Artifacts: %d\n\n", artifactCount)

	eligible := make(map[string]bool)
	for _, step := range sched.Eligible() {
		eligible[step.ID] = true
	}

	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "STEP\tAGENT\tSTATUS\tDEPENDS ON")
	for _, step := range sched.Graph().Steps {
		st, _ := sched.Status(step.ID)
		label := string(st)
		if eligible[step.ID] {
			label += " (ready)"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%v\n", step.ID, step.AgentID, label, sched.Graph().DependenciesOf(step.ID))
	}
	_ = tw.Flush()

	switch {
	case sched.Done():
		fmt.Fprintln(out, "\nAll steps completed.")
	case sched.Stalled():
		fmt.Fprintln(out, "\nWorkflow is stalled:")
		for _, step := range sched.Blocked() {
			fmt.Fprintf(out, "  - %s\n", step.ID)
		}
	}
}

func printStoredWorkflows(ctx context.Context, out io.Writer, store persistence.StateStore) error {
	summaries, err := store.ListWorkflows(ctx)
	if err != nil {
		return err
	}
	if len(summaries) == 0 {
		fmt.Fprintln(out, "No stored workflows.")
		return nil
	}
	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tPATTERN\tPROGRESS\tUPDATED")
	for _, s := range summaries {
		fmt.Fprintf(tw, "%s\t%s\t%d/%d (%d%%)\t%s\n", s.ID, s.Type,
			s.Progress.Completed, s.Progress.Total, s.Progress.Percentage,
			s.UpdatedAt.Local().Format(time.DateTime))
	}
	return tw.Flush()
}
