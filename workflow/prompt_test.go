package workflow

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BaSui01/crewflow/artifacts"
	"github.com/BaSui01/crewflow/types"
)

func TestDirPromptSource(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "agent-01.md"), []byte("You analyse markets."), 0o644))
	src := DirPromptSource{Dir: dir}

	p, err := src.Load("agent-01")
	require.NoError(t, err)
	assert.Equal(t, "You analyse markets.", p)

	for _, id := range []string{"agent-02", "", "..", "../agent-01", `a\b`} {
		_, err := src.Load(id)
		require.Error(t, err, id)
		assert.True(t, types.IsErrorCode(err, types.ErrAgentPromptNotFound), id)
	}

	_, err = src.Load("agent-02")
	assert.EqualError(t, err, "[AGENT_PROMPT_NOT_FOUND] agent prompt file not found for agent: agent-02")
}

func TestStaticPromptSource(t *testing.T) {
	src := StaticPromptSource{"agent-01": "hi"}
	p, err := src.Load("agent-01")
	require.NoError(t, err)
	assert.Equal(t, "hi", p)

	_, err = src.Load("agent-09")
	assert.True(t, types.IsErrorCode(err, types.ErrAgentPromptNotFound))
}

func TestBuildPrompt(t *testing.T) {
	created := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	step := Step{
		ID:      "step-agent-02",
		AgentID: "agent-02",
		Action:  "Designer - design",
		Inputs:  []string{"step-agent-01", "wireframes"},
		Outputs: []string{"design-doc"},
	}
	inputs := []ResolvedInput{
		{Name: "step-agent-01", Artifact: &artifacts.Artifact{
			Type: "output", Name: "business-plan", Content: "plan body",
			CreatedBy: "agent-01", CreatedAt: created,
		}},
		{Name: "wireframes"},
	}
	project := ProjectInfo{Name: "shop", Type: "ecommerce", Domains: []string{"retail", "payments"}, Path: "/srv/shop"}

	prompt := BuildPrompt(step, project, "  Design carefully.\n", inputs)

	for _, want := range []string{
		"# Agent Task: Designer - design\n",
		`executing a workflow step for the "shop" project.`,
		"- **Name**: shop\n",
		"- **Type**: ecommerce\n",
		"- **Domains**: retail, payments\n",
		"- **Path**: /srv/shop\n",
		"- **Step ID**: step-agent-02\n",
		"- **Inputs**: step-agent-01, wireframes\n",
		"- **Expected Outputs**: design-doc\n",
		"## Agent Instructions\nDesign carefully.\n\n",
		"# Available Context\n",
		"## output: business-plan\n",
		"Agent: agent-01\n",
		"Created: 2024-05-01T10:00:00Z\n",
		"```\nplan body\n```\n",
		"Inputs not yet available: wireframes\n",
		"## Your Task\n",
	} {
		assert.Contains(t, prompt, want)
	}
	assert.NotContains(t, prompt, "No previous context available.")
	assert.Less(t, strings.Index(prompt, "## Current Step"), strings.Index(prompt, "# Available Context"))
}

func TestBuildPrompt_Defaults(t *testing.T) {
	prompt := BuildPrompt(Step{ID: "s", AgentID: "a", Action: "x"}, ProjectInfo{}, "", nil)

	assert.Contains(t, prompt, `for the "unnamed" project.`)
	assert.Contains(t, prompt, "- **Domains**: None\n")
	assert.Contains(t, prompt, "- **Inputs**: None\n")
	assert.Contains(t, prompt, "No previous context available.\n")
	assert.NotContains(t, prompt, "## Agent Instructions")
	assert.NotContains(t, prompt, "- **Path**")
	assert.NotContains(t, prompt, "Inputs not yet available")
}
