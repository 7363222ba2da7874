package workflow

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// StepDefinition is the persisted form of a step including its status.
type StepDefinition struct {
	ID      string     `json:"id" yaml:"id"`
	AgentID string     `json:"agentId" yaml:"agent_id"`
	Action  string     `json:"action" yaml:"action"`
	Inputs  []string   `json:"inputs" yaml:"inputs"`
	Outputs []string   `json:"outputs" yaml:"outputs"`
	Status  StepStatus `json:"status" yaml:"status"`
}

// Definition is the persisted workflow state document.
type Definition struct {
	Type         PatternType         `json:"type" yaml:"type"`
	Steps        []StepDefinition    `json:"steps" yaml:"steps"`
	Dependencies map[string][]string `json:"dependencies" yaml:"dependencies"`
}

// NewDefinition builds the persisted form of a graph. Steps missing from
// statuses are recorded as pending.
func NewDefinition(g *Graph, statuses map[string]StepStatus) *Definition {
	def := &Definition{
		Type:         g.Type,
		Steps:        make([]StepDefinition, 0, len(g.Steps)),
		Dependencies: make(map[string][]string, len(g.Dependencies)),
	}
	for _, s := range g.Steps {
		st, ok := statuses[s.ID]
		if !ok {
			st = StatusPending
		}
		c := s.Clone()
		def.Steps = append(def.Steps, StepDefinition{
			ID:      c.ID,
			AgentID: c.AgentID,
			Action:  c.Action,
			Inputs:  nonNil(c.Inputs),
			Outputs: nonNil(c.Outputs),
			Status:  st,
		})
	}
	for id, deps := range g.Dependencies {
		if len(deps) == 0 {
			continue
		}
		def.Dependencies[id] = append([]string(nil), deps...)
	}
	return def
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

// Graph converts the definition back into a graph.
func (d *Definition) Graph() *Graph {
	g := NewGraph(d.Type)
	for _, s := range d.Steps {
		g.Steps = append(g.Steps, Step{
			ID:      s.ID,
			AgentID: s.AgentID,
			Action:  s.Action,
			Inputs:  nonNil(append([]string(nil), s.Inputs...)),
			Outputs: nonNil(append([]string(nil), s.Outputs...)),
		})
	}
	for id, deps := range d.Dependencies {
		g.Dependencies[id] = append([]string(nil), deps...)
	}
	return g
}

// Statuses returns the recorded step statuses.
func (d *Definition) Statuses() map[string]StepStatus {
	out := make(map[string]StepStatus, len(d.Steps))
	for _, s := range d.Steps {
		out[s.ID] = s.Status
	}
	return out
}

// Scheduler validates the definition and restores a scheduler from it.
func (d *Definition) Scheduler() (*Scheduler, error) {
	g := d.Graph()
	if err := g.Validate(); err != nil {
		return nil, fmt.Errorf("invalid workflow definition: %w", err)
	}
	return RestoreScheduler(g, d.Statuses()), nil
}

// Validate checks the graph structure and every recorded status.
func (d *Definition) Validate() error {
	if _, err := ParsePattern(string(d.Type)); err != nil {
		return err
	}
	for _, s := range d.Steps {
		if s.Status != "" && !s.Status.Valid() {
			return fmt.Errorf("step %s has unknown status %q", s.ID, s.Status)
		}
	}
	return d.Graph().Validate()
}

// ToJSON converts a Definition to an indented JSON string
func (d *Definition) ToJSON() (string, error) {
	data, err := json.MarshalIndent(d, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal to JSON: %w", err)
	}
	return string(data), nil
}

// ToYAML converts a Definition to a YAML string
func (d *Definition) ToYAML() (string, error) {
	data, err := yaml.Marshal(d)
	if err != nil {
		return "", fmt.Errorf("failed to marshal to YAML: %w", err)
	}
	return string(data), nil
}

// DefinitionFromJSON parses a Definition from JSON
func DefinitionFromJSON(data []byte) (*Definition, error) {
	var def Definition
	if err := json.Unmarshal(data, &def); err != nil {
		return nil, fmt.Errorf("failed to unmarshal workflow definition: %w", err)
	}
	def.normalize()
	return &def, nil
}

// DefinitionFromYAML parses a Definition from YAML
func DefinitionFromYAML(data []byte) (*Definition, error) {
	var def Definition
	if err := yaml.Unmarshal(data, &def); err != nil {
		return nil, fmt.Errorf("failed to unmarshal workflow definition: %w", err)
	}
	def.normalize()
	return &def, nil
}

func (d *Definition) normalize() {
	if d.Dependencies == nil {
		d.Dependencies = make(map[string][]string)
	}
	if d.Steps == nil {
		d.Steps = []StepDefinition{}
	}
	for i := range d.Steps {
		d.Steps[i].Inputs = nonNil(d.Steps[i].Inputs)
		d.Steps[i].Outputs = nonNil(d.Steps[i].Outputs)
		if d.Steps[i].Status == "" {
			d.Steps[i].Status = StatusPending
		}
	}
}

// LoadDefinition reads a workflow file; .yaml and .yml are parsed as
// YAML, everything else as JSON. The result is validated.
func LoadDefinition(path string) (*Definition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read workflow file: %w", err)
	}

	var def *Definition
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		def, err = DefinitionFromYAML(data)
	default:
		def, err = DefinitionFromJSON(data)
	}
	if err != nil {
		return nil, err
	}
	if err := def.Validate(); err != nil {
		return nil, fmt.Errorf("invalid workflow file %s: %w", path, err)
	}
	return def, nil
}

// SaveDefinition writes a workflow file atomically, choosing the format
// from the extension as LoadDefinition does.
func SaveDefinition(path string, def *Definition) error {
	var (
		content string
		err     error
	)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		content, err = def.ToYAML()
	default:
		content, err = def.ToJSON()
	}
	if err != nil {
		return err
	}

	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create workflow directory: %w", err)
		}
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp workflow file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.WriteString(content); err != nil {
		tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("failed to write workflow file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("failed to write workflow file: %w", err)
	}
	// CreateTemp 创建的文件权限为 0600
	if err := os.Chmod(tmpName, 0o644); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("failed to write workflow file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("failed to write workflow file: %w", err)
	}
	return nil
}
