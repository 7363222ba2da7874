package project

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/BaSui01/crewflow/team"
	"github.com/BaSui01/crewflow/workflow"
)

// FileNames are the recognised project files, in lookup order.
var FileNames = []string{"project.yaml", "project.yml", "project-config.json"}

// ErrNoProjectFile is returned when a directory has none of FileNames.
var ErrNoProjectFile = errors.New("no project file found")

// Constraints are free-form project limits passed to agents.
type Constraints struct {
	Budget                 string   `json:"budget,omitempty" yaml:"budget,omitempty"`
	Timeline               string   `json:"timeline,omitempty" yaml:"timeline,omitempty"`
	TechnicalComplexity    string   `json:"technicalComplexity,omitempty" yaml:"technical_complexity,omitempty"`
	RegulatoryRequirements []string `json:"regulatoryRequirements,omitempty" yaml:"regulatory_requirements,omitempty"`
}

// Project is a parsed project file.
type Project struct {
	Name         string           `json:"projectName" yaml:"name"`
	Type         string           `json:"projectType" yaml:"type"`
	Domains      []string         `json:"domains" yaml:"domains"`
	Capabilities []string         `json:"requiredCapabilities" yaml:"capabilities"`
	Phases       []string         `json:"phases" yaml:"phases"`
	Pattern      string           `json:"pattern,omitempty" yaml:"pattern,omitempty"`
	Constraints  Constraints      `json:"constraints,omitempty" yaml:"constraints,omitempty"`
	Agents       []workflow.Agent `json:"agents,omitempty" yaml:"agents,omitempty"`

	// Dir is the directory the project was loaded from.
	Dir string `json:"-" yaml:"-"`
}

// Load reads the project file in dir.
func Load(dir string) (*Project, error) {
	for _, name := range FileNames {
		path := filepath.Join(dir, name)
		data, err := os.ReadFile(path)
		if errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("read project file: %w", err)
		}

		p := &Project{}
		if strings.HasSuffix(name, ".json") {
			err = json.Unmarshal(data, p)
		} else {
			err = yaml.Unmarshal(data, p)
		}
		if err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
		p.Dir = dir
		if p.Name == "" {
			p.Name = filepath.Base(dir)
		}
		if err := p.Validate(); err != nil {
			return nil, fmt.Errorf("invalid project %s: %w", path, err)
		}
		return p, nil
	}
	return nil, fmt.Errorf("%w in %s (expected one of %s)", ErrNoProjectFile, dir, strings.Join(FileNames, ", "))
}

// Validate checks phases, pattern and explicit agents.
func (p *Project) Validate() error {
	var errs []error
	if len(p.Phases) == 0 {
		errs = append(errs, errors.New("at least one phase is required"))
	}
	if p.Pattern != "" {
		if _, err := workflow.ParsePattern(p.Pattern); err != nil {
			errs = append(errs, err)
		}
	}
	seen := make(map[string]bool, len(p.Agents))
	for i, a := range p.Agents {
		switch {
		case a.ID == "":
			errs = append(errs, fmt.Errorf("agents[%d]: id is required", i))
		case seen[a.ID]:
			errs = append(errs, fmt.Errorf("agents[%d]: duplicate id %q", i, a.ID))
		}
		seen[a.ID] = true
	}
	return errors.Join(errs...)
}

// PatternOr returns the project's pattern, or fallback when unset.
func (p *Project) PatternOr(fallback string) (workflow.PatternType, error) {
	if p.Pattern != "" {
		return workflow.ParsePattern(p.Pattern)
	}
	return workflow.ParsePattern(fallback)
}

// Info is the project context handed to prompts.
func (p *Project) Info() workflow.ProjectInfo {
	return workflow.ProjectInfo{
		Name:    p.Name,
		Type:    p.Type,
		Domains: p.Domains,
		Path:    p.Dir,
	}
}

// Requirements converts the project into team requirements.
func (p *Project) Requirements() team.Requirements {
	return team.Requirements{
		ProjectType:  p.Type,
		Domains:      p.Domains,
		Complexity:   p.Constraints.TechnicalComplexity,
		Capabilities: p.Capabilities,
		Phases:       p.Phases,
	}
}

// Team returns the explicit agents, or composes them with c. The
// composition is nil when agents were listed in the project file.
func (p *Project) Team(c *team.Composer) ([]workflow.Agent, *team.Composition) {
	if len(p.Agents) > 0 {
		return p.Agents, nil
	}
	comp := c.Compose(p.Requirements())
	return comp.Agents(), comp
}

// Path joins rel onto the project directory unless rel is absolute.
func (p *Project) Path(rel string) string {
	if rel == "" || filepath.IsAbs(rel) {
		return rel
	}
	return filepath.Join(p.Dir, rel)
}

var nonSlug = regexp.MustCompile(`[^a-z0-9]+`)

// ID is a stable identifier derived from the project name, used as the
// workflow id for checkpoints.
func (p *Project) ID() string {
	id := strings.Trim(nonSlug.ReplaceAllString(strings.ToLower(p.Name), "-"), "-")
	if id == "" {
		return "project"
	}
	return id
}

// Entry is one row of List.
type Entry struct {
	Dir     string
	Project *Project
	Err     error
}

// List loads every project directory directly under root, sorted by
// directory name. Directories without a project file are skipped; ones
// whose file fails to load are reported with Err set.
func List(root string) ([]Entry, error) {
	entries, err := os.ReadDir(root)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read projects directory: %w", err)
	}

	var out []Entry
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		dir := filepath.Join(root, e.Name())
		p, err := Load(dir)
		if errors.Is(err, ErrNoProjectFile) {
			continue
		}
		out = append(out, Entry{Dir: dir, Project: p, Err: err})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Dir < out[j].Dir })
	return out, nil
}
