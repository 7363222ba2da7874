package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/BaSui01/crewflow/project"
)

func newProjectsCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "projects",
		Aliases: []string{"project"},
		Short:   "Work with project directories",
	}
	cmd.AddCommand(newProjectsListCmd(c), newProjectsTeamCmd(c))
	return cmd
}

func newProjectsListCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List projects under project.root",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			entries, err := project.List(c.cfg.Project.Root)
			if err != nil {
				return err
			}
			if len(entries) == 0 {
				fmt.Fprintf(out, "No projects found in %s.\n", c.cfg.Project.Root)
				return nil
			}

			fmt.Fprintf(out, "Projects in %s:\n\n", c.cfg.Project.Root)
			for i, e := range entries {
				if e.Err != nil {
					fmt.Fprintf(out, "%d. %s (invalid: %v)\n\n", i+1, e.Dir, e.Err)
					continue
				}
				p := e.Project
				fmt.Fprintf(out, "%d. %s\n", i+1, p.Name)
				fmt.Fprintf(out, "   Type: %s\n", p.Type)
				fmt.Fprintf(out, "   Domains: %s\n", strings.Join(p.Domains, ", "))
				fmt.Fprintf(out, "   Phases: %s\n\n", strings.Join(p.Phases, " → "))
			}
			return nil
		},
	}
}

func newProjectsTeamCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "team <project>",
		Short: "Show the agent team composed for a project",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := c.loadProject(args[0])
			if err != nil {
				return err
			}
			composer, err := c.composer()
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			agents, comp := p.Team(composer)
			fmt.Fprintf(out, "Agent team for %s (%d agents):\n\n", p.Name, len(agents))
			if comp == nil {
				for i, a := range agents {
					fmt.Fprintf(out, "%d. %s %s\n   Phase: %s\n\n", i+1, a.ID, a.Name, a.Phase)
				}
				return nil
			}
			for i, as := range comp.Assignments {
				fmt.Fprintf(out, "%d. %s (%s)\n", i+1, as.Agent.ID, as.Role)
				fmt.Fprintf(out, "   Capabilities: %s\n", strings.Join(as.Agent.Capabilities, ", "))
				fmt.Fprintf(out, "   Phase: %s\n", as.Agent.Phase)
				fmt.Fprintf(out, "   Context: %s\n\n", as.Context)
			}
			for _, gap := range comp.Gaps {
				fmt.Fprintf(out, "⚠️  %s\n", gap)
			}
			for _, rec := range comp.Recommendations {
				fmt.Fprintf(out, "💡 %s\n", rec)
			}
			return nil
		},
	}
}
