package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/BaSui01/crewflow/artifacts"
)

func newArtifactsCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "artifacts",
		Aliases: []string{"artifact"},
		Short:   "Inspect the artifacts shared between steps",
	}
	cmd.AddCommand(
		newArtifactsListCmd(c),
		newArtifactsSearchCmd(c),
		newArtifactsShowCmd(c),
		newArtifactsSummaryCmd(c),
		newArtifactsClearCmd(c),
	)
	return cmd
}

func newArtifactsListCmd(c *cli) *cobra.Command {
	var artifactType, tag, agent string
	cmd := &cobra.Command{
		Use:   "list <project>",
		Short: "List artifacts, optionally filtered by type, tag or agent",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			s, err := c.openSession(ctx, args[0])
			if err != nil {
				return err
			}
			defer s.Close()

			var list []*artifacts.Artifact
			switch {
			case artifactType != "":
				list = s.artifacts.ByType(ctx, artifactType)
			case tag != "":
				list = s.artifacts.ByTag(ctx, tag)
			case agent != "":
				list = s.artifacts.ByAgent(ctx, agent)
			default:
				list = s.artifacts.List(ctx)
			}
			printArtifacts(cmd.OutOrStdout(), list)
			return nil
		},
	}
	cmd.Flags().StringVar(&artifactType, "type", "", "only artifacts of this type")
	cmd.Flags().StringVar(&tag, "tag", "", "only artifacts carrying this tag")
	cmd.Flags().StringVar(&agent, "agent", "", "only artifacts created by this agent")
	cmd.MarkFlagsMutuallyExclusive("type", "tag", "agent")
	return cmd
}

func newArtifactsSearchCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "search <project> <query>",
		Short: "Search artifact names, tags and content",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			s, err := c.openSession(ctx, args[0])
			if err != nil {
				return err
			}
			defer s.Close()

			printArtifacts(cmd.OutOrStdout(), s.artifacts.Search(ctx, strings.Join(args[1:], " ")))
			return nil
		},
	}
}

func newArtifactsShowCmd(c *cli) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "show <project> <artifact-id>",
		Short: "Print one artifact",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			s, err := c.openSession(ctx, args[0])
			if err != nil {
				return err
			}
			defer s.Close()

			a, err := s.artifacts.Get(ctx, args[1])
			if err != nil {
				return fmt.Errorf("%s: %w", args[1], err)
			}
			out := cmd.OutOrStdout()
			if asJSON {
				return writeJSON(out, a)
			}
			fmt.Fprintf(out, "ID:       %s\n", a.ID)
			fmt.Fprintf(out, "Type:     %s\n", a.Type)
			fmt.Fprintf(out, "Name:     %s\n", a.Name)
			fmt.Fprintf(out, "Created:  %s by %s\n", a.CreatedAt.Local().Format(time.DateTime), a.CreatedBy)
			fmt.Fprintf(out, "Tags:     %s\n\n", strings.Join(a.Tags, ", "))
			fmt.Fprintln(out, a.ContentString())
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the artifact as JSON")
	return cmd
}

func newArtifactsSummaryCmd(c *cli) *cobra.Command {
	var recent int
	cmd := &cobra.Command{
		Use:   "summary <project>",
		Short: "Print artifact totals by type and agent as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := c.openSession(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			defer s.Close()

			return writeJSON(cmd.OutOrStdout(), s.artifacts.Summary(recent))
		},
	}
	cmd.Flags().IntVar(&recent, "recent", 10, "number of recently updated artifacts to include")
	return cmd
}

func newArtifactsClearCmd(c *cli) *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "clear <project>",
		Short: "Delete every artifact of a project",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !yes {
				return fmt.Errorf("refusing to delete artifacts without --yes")
			}
			ctx := cmd.Context()
			s, err := c.openSession(ctx, args[0])
			if err != nil {
				return err
			}
			defer s.Close()

			n := s.artifacts.Count()
			if err := s.artifacts.Clear(ctx); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted %d artifact(s) from %s\n", n, s.project.Name)
			return nil
		},
	}
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "confirm deletion")
	return cmd
}

func printArtifacts(out io.Writer, list []*artifacts.Artifact) {
	if len(list) == 0 {
		fmt.Fprintln(out, "No artifacts found.")
		return
	}
	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tTYPE\tCREATED BY\tCREATED\tTAGS")
	for _, a := range list {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", a.ID, a.Type, a.CreatedBy,
			a.CreatedAt.Local().Format(time.DateTime), strings.Join(a.Tags, ","))
	}
	_ = tw.Flush()
}

func writeJSON(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
