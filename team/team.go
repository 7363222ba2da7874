package team

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"sort"
	"strings"

	"github.com/BaSui01/crewflow/workflow"
)

// Categories are the sub-directories scanned by LoadLibrary.
var Categories = []string{"technical", "business", "creative", "legal", "research"}

// Requirements describe what a project needs from its team.
type Requirements struct {
	ProjectType  string   `json:"projectType" yaml:"type"`
	Domains      []string `json:"domains" yaml:"domains"`
	Complexity   string   `json:"complexity,omitempty" yaml:"complexity,omitempty"`
	Capabilities []string `json:"requiredCapabilities" yaml:"capabilities"`
	Phases       []string `json:"phases" yaml:"phases"`
}

// Assignment is one composed agent plus the context line handed to it.
type Assignment struct {
	Agent   workflow.Agent `json:"agent"`
	Role    string         `json:"role"`
	Context string         `json:"context"`
}

// Composition is the result of Compose.
type Composition struct {
	Assignments     []Assignment `json:"assignments"`
	Gaps            []string     `json:"gaps,omitempty"`
	Recommendations []string     `json:"recommendations,omitempty"`
}

// Agents returns the composed agents in id order.
func (c *Composition) Agents() []workflow.Agent {
	out := make([]workflow.Agent, 0, len(c.Assignments))
	for _, a := range c.Assignments {
		out = append(out, a.Agent)
	}
	return out
}

// =============================================================================
// 📋 分组规则
// =============================================================================

// group is one row of the role table. phase picks the phase for the role
// given the project's phases.
type group struct {
	role         string
	capabilities []string
	phase        func(phases []string) string
}

func fixed(p string) func([]string) string {
	return func([]string) string { return p }
}

func preferring(want, fallback string) func([]string) string {
	return func(phases []string) string {
		if slices.Contains(phases, want) {
			return want
		}
		return fallback
	}
}

var groups = []group{
	{"Business Strategist", []string{"business-modeling", "mvp-planning", "pricing-strategy", "market-analysis"}, fixed("conception")},
	{"Technical Architect", []string{"system-architecture", "database-design", "api-design"}, preferring("technical-design", "conception")},
	{"UX Designer", []string{"ux-design", "responsive-design", "mobile-optimization"}, preferring("technical-design", "conception")},
	{"Developer", []string{"frontend-development", "backend-development"}, preferring("development", workflow.PhaseAll)},
	{"Compliance Officer", []string{"gdpr-compliance", "legal-review", "data-protection"}, fixed(workflow.PhaseAll)},
}

const generalistRole = "Generalist"

// DefaultLibrary lists the capabilities known without a capability
// directory: every capability named by the role table plus devops.
func DefaultLibrary() []string {
	var lib []string
	for _, g := range groups {
		lib = append(lib, g.capabilities...)
	}
	lib = append(lib, "devops")
	sort.Strings(lib)
	return lib
}

// LoadLibrary reads capability names from <dir>/<category>/<name>.md.
// Missing category directories are skipped.
func LoadLibrary(dir string) ([]string, error) {
	var lib []string
	for _, category := range Categories {
		entries, err := os.ReadDir(filepath.Join(dir, category))
		if errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("read capability category %s: %w", category, err)
		}
		for _, e := range entries {
			if e.IsDir() || !strings.HasSuffix(e.Name(), ".md") {
				continue
			}
			lib = append(lib, strings.TrimSuffix(e.Name(), ".md"))
		}
	}
	sort.Strings(lib)
	return slices.Compact(lib), nil
}

// =============================================================================
// 🤝 Composer
// =============================================================================

// Composer maps required capabilities to agents.
type Composer struct {
	library map[string]struct{}
}

// NewComposer creates a composer over the given capability library. An
// empty library means DefaultLibrary.
func NewComposer(library []string) *Composer {
	if len(library) == 0 {
		library = DefaultLibrary()
	}
	c := &Composer{library: make(map[string]struct{}, len(library))}
	for _, name := range library {
		c.library[name] = struct{}{}
	}
	return c
}

// Compose builds the team. Required capabilities missing from the
// library are reported as gaps and get no agent.
func (c *Composer) Compose(req Requirements) *Composition {
	comp := &Composition{}

	var available, missing []string
	seen := make(map[string]bool)
	for _, name := range req.Capabilities {
		if seen[name] {
			continue
		}
		seen[name] = true
		if _, ok := c.library[name]; ok {
			available = append(available, name)
		} else {
			missing = append(missing, name)
			comp.Gaps = append(comp.Gaps, "Missing capability: "+name)
		}
	}

	assigned := make(map[string]bool)
	add := func(role string, caps []string, phase string) {
		id := fmt.Sprintf("agent-%02d", len(comp.Assignments)+1)
		comp.Assignments = append(comp.Assignments, Assignment{
			Agent: workflow.Agent{
				ID:           id,
				Name:         role,
				Phase:        phase,
				Capabilities: caps,
			},
			Role:    role,
			Context: agentContext(caps, req),
		})
	}

	for _, g := range groups {
		var caps []string
		for _, name := range available {
			if slices.Contains(g.capabilities, name) {
				caps = append(caps, name)
				assigned[name] = true
			}
		}
		if len(caps) > 0 {
			add(g.role, caps, g.phase(req.Phases))
		}
	}

	var rest []string
	for _, name := range available {
		if !assigned[name] {
			rest = append(rest, name)
		}
	}
	if len(rest) > 0 {
		add(generalistRole, rest, workflow.PhaseAll)
	}

	if len(missing) > 0 {
		comp.Recommendations = append(comp.Recommendations,
			"Consider adding these capabilities to the library: "+strings.Join(missing, ", "))
	}
	comp.Recommendations = append(comp.Recommendations, suggest(req, available)...)
	return comp
}

func agentContext(caps []string, req Requirements) string {
	var parts []string
	if req.ProjectType != "" {
		parts = append(parts, req.ProjectType)
	}
	if len(req.Domains) > 0 {
		parts = append(parts, strings.Join(req.Domains, "/"))
	}
	if req.Complexity != "" {
		parts = append(parts, req.Complexity+" complexity")
	}
	if slices.ContainsFunc(caps, func(c string) bool { return strings.Contains(c, "business") }) {
		parts = append(parts, "MVP focus, bootstrap budget")
	}
	if slices.Contains(caps, "gdpr-compliance") {
		parts = append(parts, "customer data protection")
	}
	if slices.Contains(caps, "ux-design") {
		parts = append(parts, "Simple UI for non-technical users")
	}
	return strings.Join(parts, ", ")
}

func suggest(req Requirements, available []string) []string {
	var out []string
	if strings.Contains(req.ProjectType, "saas") {
		if !slices.Contains(available, "pricing-strategy") {
			out = append(out, "Consider adding pricing-strategy capability for SaaS monetization")
		}
		if !slices.Contains(available, "market-analysis") {
			out = append(out, "Consider adding market-analysis capability for SaaS positioning")
		}
	}
	if req.Complexity == "high" && !slices.Contains(available, "devops") {
		out = append(out, "Consider adding devops capability for deployment and scaling")
	}
	if slices.Contains(req.Domains, "legal-compliance") && !slices.Contains(available, "gdpr-compliance") {
		out = append(out, "GDPR compliance capability is critical for this project")
	}
	return out
}
