package artifacts

import (
	"cmp"
	"context"
	"encoding/json"
	"fmt"
	"maps"
	"slices"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Manager keeps an insertion-ordered index of artifacts over a Backend.
// Writes are serialised and persisted before they return.
type Manager struct {
	backend Backend
	logger  *zap.Logger
	now     func() time.Time

	mu        sync.RWMutex
	order     []string
	artifacts map[string]*Artifact
	closed    bool
}

// Option configures a Manager.
type Option func(*Manager)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// Open creates a manager and rebuilds its index from the backend.
func Open(ctx context.Context, backend Backend, logger *zap.Logger, opts ...Option) (*Manager, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	m := &Manager{
		backend:   backend,
		logger:    logger.With(zap.String("component", "artifact_manager")),
		now:       time.Now,
		artifacts: make(map[string]*Artifact),
	}
	for _, opt := range opts {
		opt(m)
	}

	loaded, err := backend.LoadAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load artifacts: %w", err)
	}
	for _, a := range loaded {
		if _, dup := m.artifacts[a.ID]; dup {
			continue
		}
		m.order = append(m.order, a.ID)
		m.artifacts[a.ID] = a
	}

	m.logger.Debug("artifact index rebuilt", zap.Int("artifacts", len(m.order)))
	return m, nil
}

// Store creates a new artifact. It never overwrites an existing one.
func (m *Manager) Store(ctx context.Context, artifactType, name string, content any, opts ...CreateOption) (*Artifact, error) {
	options := &createOptions{}
	for _, opt := range opts {
		opt(options)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, ErrClosed
	}

	now := m.now().UTC()
	a := &Artifact{
		ID:        m.uniqueIDLocked(generateArtifactID(artifactType, name, now)),
		Type:      artifactType,
		Name:      name,
		Content:   content,
		CreatedBy: options.createdBy,
		CreatedAt: now,
		UpdatedAt: now,
		Tags:      dedupe(options.tags),
		Metadata:  options.metadata,
	}
	if a.Metadata == nil {
		a.Metadata = make(map[string]any)
	}

	if err := m.backend.Save(ctx, a); err != nil {
		return nil, fmt.Errorf("failed to persist artifact %s: %w", a.ID, err)
	}
	m.order = append(m.order, a.ID)
	m.artifacts[a.ID] = a

	m.logger.Debug("artifact stored",
		zap.String("artifact_id", a.ID),
		zap.String("type", a.Type),
		zap.String("created_by", a.CreatedBy),
	)
	return a.Clone(), nil
}

func (m *Manager) uniqueIDLocked(base string) string {
	id := base
	for n := 2; ; n++ {
		if _, taken := m.artifacts[id]; !taken {
			return id
		}
		id = fmt.Sprintf("%s-%d", base, n)
	}
}

// Update replaces the content of an artifact, merges patch into its
// metadata and records updatedBy. Id, type, name, tags, creator and
// creation time are preserved.
func (m *Manager) Update(ctx context.Context, id string, content any, updatedBy string, patch map[string]any) (*Artifact, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, ErrClosed
	}

	current, ok := m.artifacts[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	next := current.Clone()
	next.Content = content
	next.UpdatedAt = m.now().UTC()
	if next.Metadata == nil {
		next.Metadata = make(map[string]any, len(patch)+1)
	}
	maps.Copy(next.Metadata, patch)
	next.Metadata[MetaUpdatedBy] = updatedBy

	if err := m.backend.Save(ctx, next); err != nil {
		return nil, fmt.Errorf("failed to persist artifact %s: %w", id, err)
	}
	m.artifacts[id] = next
	return next.Clone(), nil
}

// Get returns the artifact with the given id.
func (m *Manager) Get(_ context.Context, id string) (*Artifact, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	a, ok := m.artifacts[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return a.Clone(), nil
}

// List returns every artifact in insertion order.
func (m *Manager) List(_ context.Context) []*Artifact {
	return m.filter(func(*Artifact) bool { return true })
}

// ByType returns artifacts of the given type.
func (m *Manager) ByType(_ context.Context, artifactType string) []*Artifact {
	return m.filter(func(a *Artifact) bool { return a.Type == artifactType })
}

// ByTag returns artifacts carrying tag.
func (m *Manager) ByTag(_ context.Context, tag string) []*Artifact {
	return m.filter(func(a *Artifact) bool { return a.HasTag(tag) })
}

// ByAgent returns artifacts created by agentID.
func (m *Manager) ByAgent(_ context.Context, agentID string) []*Artifact {
	return m.filter(func(a *Artifact) bool { return a.CreatedBy == agentID })
}

// Search matches query case-insensitively against name, type, tags and
// string content.
func (m *Manager) Search(_ context.Context, query string) []*Artifact {
	return m.filter(func(a *Artifact) bool { return a.Matches(query) })
}

// Latest returns the most recently created artifact carrying tag.
func (m *Manager) Latest(_ context.Context, tag string) (*Artifact, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for i := len(m.order) - 1; i >= 0; i-- {
		if a := m.artifacts[m.order[i]]; a.HasTag(tag) {
			return a.Clone(), true
		}
	}
	return nil, false
}

// Count returns the number of stored artifacts.
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.order)
}

func (m *Manager) filter(keep func(*Artifact) bool) []*Artifact {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*Artifact, 0)
	for _, id := range m.order {
		if a := m.artifacts[id]; keep(a) {
			out = append(out, a.Clone())
		}
	}
	return out
}

// Clear removes every artifact and its backing records. It cannot be
// undone.
func (m *Manager) Clear(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}

	if err := m.backend.Clear(ctx); err != nil {
		return fmt.Errorf("failed to clear artifacts: %w", err)
	}
	n := len(m.order)
	m.order = nil
	m.artifacts = make(map[string]*Artifact)
	m.logger.Info("artifacts cleared", zap.Int("removed", n))
	return nil
}

// Close releases the backend.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil
	}
	m.closed = true
	return m.backend.Close()
}

// Summary aggregates artifacts by type and creator.
type Summary struct {
	TotalArtifacts   int            `json:"totalArtifacts"`
	ArtifactsByType  map[string]int `json:"artifactsByType"`
	ArtifactsByAgent map[string]int `json:"artifactsByAgent"`
	RecentArtifacts  []*Artifact    `json:"recentArtifacts"`
}

// Summary returns totals by type and agent plus up to recent artifacts,
// most recently updated first.
func (m *Manager) Summary(recent int) Summary {
	all := m.List(context.Background())
	s := Summary{
		TotalArtifacts:   len(all),
		ArtifactsByType:  make(map[string]int),
		ArtifactsByAgent: make(map[string]int),
	}
	for _, a := range all {
		s.ArtifactsByType[a.Type]++
		s.ArtifactsByAgent[a.CreatedBy]++
	}

	slices.SortStableFunc(all, func(a, b *Artifact) int {
		return b.UpdatedAt.Compare(a.UpdatedAt)
	})
	if recent >= 0 && len(all) > recent {
		all = all[:recent]
	}
	s.RecentArtifacts = all
	return s
}

func dedupe(tags []string) []string {
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		if t != "" && !slices.Contains(out, t) {
			out = append(out, t)
		}
	}
	return out
}

// sortByCreation orders artifacts by creation time then id.
func sortByCreation(list []*Artifact) {
	slices.SortStableFunc(list, func(a, b *Artifact) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
}

func marshalIndent(v any) string {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(data)
}
