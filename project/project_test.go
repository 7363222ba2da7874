package project

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BaSui01/crewflow/team"
	"github.com/BaSui01/crewflow/workflow"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

const configJSON = `{
  "projectName": "Heating Platform",
  "projectType": "saas",
  "domains": ["maintenance", "scheduling"],
  "requiredCapabilities": ["backend-development", "ux-design"],
  "phases": ["conception", "technical-design", "development"],
  "constraints": {"technicalComplexity": "medium", "regulatoryRequirements": ["gdpr"]}
}`

const projectYAML = `name: shop
type: e-commerce
domains: [retail]
phases: [conception, design, build]
pattern: iterative
agents:
  - id: a1
    name: Analyst
    phase: conception
  - id: a2
    phase: build
`

func TestLoad_JSON(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "project-config.json"), configJSON)

	p, err := Load(dir)
	require.NoError(t, err)

	assert.Equal(t, "Heating Platform", p.Name)
	assert.Equal(t, "saas", p.Type)
	assert.Equal(t, []string{"conception", "technical-design", "development"}, p.Phases)
	assert.Equal(t, "medium", p.Constraints.TechnicalComplexity)
	assert.Equal(t, dir, p.Dir)
	assert.Equal(t, "heating-platform", p.ID())

	req := p.Requirements()
	assert.Equal(t, "medium", req.Complexity)
	assert.Equal(t, p.Capabilities, req.Capabilities)
}

func TestLoad_YAMLPreferred(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "project.yaml"), projectYAML)
	writeFile(t, filepath.Join(dir, "project-config.json"), configJSON)

	p, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, "shop", p.Name)
	require.Len(t, p.Agents, 2)
	assert.Equal(t, workflow.Agent{ID: "a1", Name: "Analyst", Phase: "conception"}, p.Agents[0])

	pattern, err := p.PatternOr("sequential")
	require.NoError(t, err)
	assert.Equal(t, workflow.PatternIterative, pattern)
}

func TestLoad_Errors(t *testing.T) {
	t.Run("missing file", func(t *testing.T) {
		_, err := Load(t.TempDir())
		assert.ErrorIs(t, err, ErrNoProjectFile)
	})

	t.Run("malformed", func(t *testing.T) {
		dir := t.TempDir()
		writeFile(t, filepath.Join(dir, "project-config.json"), "{")
		_, err := Load(dir)
		assert.Error(t, err)
		assert.NotErrorIs(t, err, ErrNoProjectFile)
	})

	t.Run("invalid", func(t *testing.T) {
		dir := t.TempDir()
		writeFile(t, filepath.Join(dir, "project.yaml"), "name: x\npattern: waterfall\nagents:\n  - id: a\n  - id: a\n")
		_, err := Load(dir)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "at least one phase")
		assert.Contains(t, err.Error(), "duplicate id")
		assert.Contains(t, err.Error(), "waterfall")
	})
}

func TestLoad_NameDefaultsToDirectory(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "My Project")
	writeFile(t, filepath.Join(dir, "project.yml"), "phases: [build]\n")

	p, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, "My Project", p.Name)
	assert.Equal(t, "my-project", p.ID())
}

func TestProject_Team(t *testing.T) {
	composer := team.NewComposer(team.DefaultLibrary())

	explicit := &Project{Phases: []string{"build"}, Agents: []workflow.Agent{{ID: "x", Phase: "build"}}}
	agents, comp := explicit.Team(composer)
	assert.Nil(t, comp)
	assert.Equal(t, explicit.Agents, agents)

	composed := &Project{
		Type:         "saas",
		Capabilities: []string{"backend-development"},
		Phases:       []string{"conception", "development"},
	}
	agents, comp = composed.Team(composer)
	require.NotNil(t, comp)
	assert.NotEmpty(t, agents)
	assert.Equal(t, comp.Agents(), agents)
}

func TestProject_Path(t *testing.T) {
	p := &Project{Dir: "/work/shop"}
	assert.Equal(t, filepath.Join("/work/shop", "context"), p.Path("context"))
	assert.Equal(t, "/abs/state", p.Path("/abs/state"))
	assert.Equal(t, "", p.Path(""))
}

func TestList(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "b-shop", "project.yaml"), projectYAML)
	writeFile(t, filepath.Join(root, "a-heating", "project-config.json"), configJSON)
	writeFile(t, filepath.Join(root, "c-broken", "project.yaml"), "phases: [")
	require.NoError(t, os.MkdirAll(filepath.Join(root, "d-empty"), 0o755))
	writeFile(t, filepath.Join(root, "README.md"), "not a project")

	entries, err := List(root)
	require.NoError(t, err)
	require.Len(t, entries, 3)

	assert.Equal(t, "Heating Platform", entries[0].Project.Name)
	assert.Equal(t, "shop", entries[1].Project.Name)
	assert.Error(t, entries[2].Err)
	assert.Nil(t, entries[2].Project)

	missing, err := List(filepath.Join(root, "nope"))
	require.NoError(t, err)
	assert.Empty(t, missing)
}
