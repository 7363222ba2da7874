package workflow

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BaSui01/crewflow/artifacts"
	"github.com/BaSui01/crewflow/types"
)

// PromptSource loads the instructions for an agent.
type PromptSource interface {
	Load(agentID string) (string, error)
}

// DirPromptSource reads <Dir>/<agentID>.md.
type DirPromptSource struct {
	Dir string
}

// Load returns the agent prompt file content. A missing file yields an
// ErrAgentPromptNotFound error.
func (d DirPromptSource) Load(agentID string) (string, error) {
	if agentID == "" || strings.ContainsAny(agentID, `/\`) || agentID == "." || agentID == ".." {
		return "", types.Errorf(types.ErrAgentPromptNotFound, "agent prompt file not found for agent: %s", agentID)
	}
	data, err := os.ReadFile(filepath.Join(d.Dir, agentID+".md"))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", types.Errorf(types.ErrAgentPromptNotFound, "agent prompt file not found for agent: %s", agentID)
		}
		return "", fmt.Errorf("read agent prompt %s: %w", agentID, err)
	}
	return string(data), nil
}

// StaticPromptSource serves prompts from memory.
type StaticPromptSource map[string]string

// Load implements PromptSource.
func (s StaticPromptSource) Load(agentID string) (string, error) {
	p, ok := s[agentID]
	if !ok {
		return "", types.Errorf(types.ErrAgentPromptNotFound, "agent prompt file not found for agent: %s", agentID)
	}
	return p, nil
}

// ProjectInfo describes the project a workflow runs for.
type ProjectInfo struct {
	Name    string   `json:"name" yaml:"name"`
	Type    string   `json:"type" yaml:"type"`
	Domains []string `json:"domains,omitempty" yaml:"domains,omitempty"`
	Path    string   `json:"path,omitempty" yaml:"path,omitempty"`
}

// ResolvedInput pairs a declared input with the artifact it resolved to.
// Artifact is nil when nothing matched.
type ResolvedInput struct {
	Name     string
	Artifact *artifacts.Artifact
}

func joinOr(items []string, empty string) string {
	if len(items) == 0 {
		return empty
	}
	return strings.Join(items, ", ")
}

// buildContext renders the resolved input artifacts.
func buildContext(inputs []ResolvedInput) string {
	var sb strings.Builder
	sb.WriteString("# Available Context\n\n")

	found := 0
	for _, in := range inputs {
		a := in.Artifact
		if a == nil {
			continue
		}
		found++
		fmt.Fprintf(&sb, "## %s: %s\n", a.Type, a.Name)
		fmt.Fprintf(&sb, "Agent: %s\n", a.CreatedBy)
		fmt.Fprintf(&sb, "Created: %s\n", a.CreatedAt.Format(time.RFC3339))
		fmt.Fprintf(&sb, "```\n%s\n```\n\n", a.ContentString())
	}
	if found == 0 {
		sb.WriteString("No previous context available.\n")
	}

	var missing []string
	for _, in := range inputs {
		if in.Artifact == nil {
			missing = append(missing, in.Name)
		}
	}
	if len(missing) > 0 {
		fmt.Fprintf(&sb, "\nInputs not yet available: %s\n", strings.Join(missing, ", "))
	}
	return sb.String()
}

// BuildPrompt assembles the full prompt sent to the model for a step.
func BuildPrompt(step Step, project ProjectInfo, agentPrompt string, inputs []ResolvedInput) string {
	name := project.Name
	if name == "" {
		name = "unnamed"
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "# Agent Task: %s\n\n", step.Action)
	fmt.Fprintf(&sb, "You are an AI agent executing a workflow step for the %q project.\n\n", name)

	sb.WriteString("## Project Information\n")
	fmt.Fprintf(&sb, "- **Name**: %s\n", name)
	fmt.Fprintf(&sb, "- **Type**: %s\n", project.Type)
	fmt.Fprintf(&sb, "- **Domains**: %s\n", joinOr(project.Domains, "None"))
	if project.Path != "" {
		fmt.Fprintf(&sb, "- **Path**: %s\n", project.Path)
	}
	sb.WriteString("\n")

	sb.WriteString("## Current Step\n")
	fmt.Fprintf(&sb, "- **Step ID**: %s\n", step.ID)
	fmt.Fprintf(&sb, "- **Agent ID**: %s\n", step.AgentID)
	fmt.Fprintf(&sb, "- **Action**: %s\n", step.Action)
	fmt.Fprintf(&sb, "- **Inputs**: %s\n", joinOr(step.Inputs, "None"))
	fmt.Fprintf(&sb, "- **Expected Outputs**: %s\n\n", joinOr(step.Outputs, "None"))

	if agentPrompt != "" {
		sb.WriteString("## Agent Instructions\n")
		sb.WriteString(strings.TrimSpace(agentPrompt))
		sb.WriteString("\n\n")
	}

	sb.WriteString(buildContext(inputs))
	sb.WriteString("\n")

	sb.WriteString(`## Your Task
Execute the step described above. Your output will be stored as an artifact for use by subsequent agents.

**IMPORTANT Guidelines:**
1. Focus on the specific task described in the action
2. Use the provided context from previous steps
3. Be thorough but concise in your output
4. If you encounter errors, explain them clearly
5. Structure your output so it can be used by other agents

**Output Format:**
Provide your results in a clear, structured format. Start with a brief summary, then provide details.
`)
	return sb.String()
}
