package artifacts

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"regexp"
	"slices"
	"strings"
	"time"
)

// Common errors
var (
	ErrNotFound = errors.New("artifact not found")
	ErrClosed   = errors.New("artifact store is closed")
)

// Well-known artifact types and tags.
const (
	TypeOutput     = "output"
	TypeStepOutput = "step-output"

	TagAgentOutput    = "agent-output"
	TagWorkflowOutput = "workflow-output"

	MetaUpdatedBy = "updatedBy"
)

// Artifact is a stored blob exchanged between steps.
type Artifact struct {
	ID        string         `json:"id"`
	Type      string         `json:"type"`
	Name      string         `json:"name"`
	Content   any            `json:"content"`
	CreatedBy string         `json:"createdBy"`
	CreatedAt time.Time      `json:"createdAt"`
	UpdatedAt time.Time      `json:"updatedAt"`
	Tags      []string       `json:"tags"`
	Metadata  map[string]any `json:"metadata"`
}

// Clone returns a copy whose tags and metadata can be modified freely.
// Content is shared.
func (a *Artifact) Clone() *Artifact {
	c := *a
	c.Tags = slices.Clone(a.Tags)
	c.Metadata = maps.Clone(a.Metadata)
	return &c
}

// HasTag reports whether the artifact carries tag.
func (a *Artifact) HasTag(tag string) bool {
	return slices.Contains(a.Tags, tag)
}

// ContentString renders content as text. Strings are returned as is,
// anything else as indented JSON.
func (a *Artifact) ContentString() string {
	switch v := a.Content.(type) {
	case nil:
		return ""
	case string:
		return v
	case []byte:
		return string(v)
	default:
		return marshalIndent(v)
	}
}

// Matches reports whether query occurs, ignoring case, in the name,
// type, a tag, or string content.
func (a *Artifact) Matches(query string) bool {
	q := strings.ToLower(query)
	if strings.Contains(strings.ToLower(a.Name), q) || strings.Contains(strings.ToLower(a.Type), q) {
		return true
	}
	for _, tag := range a.Tags {
		if strings.Contains(strings.ToLower(tag), q) {
			return true
		}
	}
	if s, ok := a.Content.(string); ok {
		return strings.Contains(strings.ToLower(s), q)
	}
	return false
}

// Backend persists artifacts. Save must be durable before it returns.
// LoadAll returns artifacts in insertion order.
type Backend interface {
	Save(ctx context.Context, a *Artifact) error
	LoadAll(ctx context.Context) ([]*Artifact, error)
	Clear(ctx context.Context) error
	Close() error
}

// CreateOption configures artifact creation.
type CreateOption func(*createOptions)

type createOptions struct {
	createdBy string
	tags      []string
	metadata  map[string]any
}

// WithCreatedBy records the producing agent or step.
func WithCreatedBy(createdBy string) CreateOption {
	return func(o *createOptions) { o.createdBy = createdBy }
}

// WithTags adds retrieval tags.
func WithTags(tags ...string) CreateOption {
	return func(o *createOptions) { o.tags = append(o.tags, tags...) }
}

// WithMetadata merges metadata into the artifact.
func WithMetadata(metadata map[string]any) CreateOption {
	return func(o *createOptions) {
		if o.metadata == nil {
			o.metadata = make(map[string]any, len(metadata))
		}
		maps.Copy(o.metadata, metadata)
	}
}

var nonSlug = regexp.MustCompile(`[^a-z0-9]+`)

// maxSlugLen keeps ids, and the file names derived from them, under
// common 255-byte name limits.
const maxSlugLen = 100

func slug(s string) string {
	out := nonSlug.ReplaceAllString(strings.ToLower(s), "-")
	if len(out) > maxSlugLen {
		out = out[:maxSlugLen]
	}
	return out
}

// generateArtifactID derives an id from type, name and creation time.
func generateArtifactID(artifactType, name string, at time.Time) string {
	return fmt.Sprintf("%s-%s-%d", slug(artifactType), slug(name), at.UnixMilli())
}
