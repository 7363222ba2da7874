package artifacts

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// =============================================================================
// 🧪 Manager 测试
// =============================================================================

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func openFileManager(t *testing.T, dir string, clock *fakeClock) *Manager {
	t.Helper()
	backend, err := NewFileBackend(dir, zap.NewNop())
	require.NoError(t, err)
	mgr, err := Open(context.Background(), backend, zap.NewNop(), WithClock(clock.Now))
	require.NoError(t, err)
	return mgr
}

func TestManager_StoreAndGet(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	mgr := openFileManager(t, t.TempDir(), clock)

	a, err := mgr.Store(ctx, TypeOutput, "agent-01-output", "hello",
		WithCreatedBy("agent-01"),
		WithTags(TagAgentOutput, "agent-01", TagAgentOutput),
		WithMetadata(map[string]any{"stepId": "step-agent-01"}),
	)
	require.NoError(t, err)

	assert.Equal(t, "output-agent-01-output-"+itoa(clock.Now().UnixMilli()), a.ID)
	assert.Equal(t, []string{TagAgentOutput, "agent-01"}, a.Tags)
	assert.Equal(t, "agent-01", a.CreatedBy)
	assert.True(t, a.CreatedAt.Equal(a.UpdatedAt))

	got, err := mgr.Get(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, "hello", got.Content)
	assert.Equal(t, "step-agent-01", got.Metadata["stepId"])
}

func TestManager_StoreNeverOverwrites(t *testing.T) {
	ctx := context.Background()
	mgr := openFileManager(t, t.TempDir(), newFakeClock())

	first, err := mgr.Store(ctx, TypeOutput, "same", "one")
	require.NoError(t, err)
	second, err := mgr.Store(ctx, TypeOutput, "same", "two")
	require.NoError(t, err)
	third, err := mgr.Store(ctx, TypeOutput, "same", "three")
	require.NoError(t, err)

	assert.NotEqual(t, first.ID, second.ID)
	assert.Equal(t, first.ID+"-2", second.ID)
	assert.Equal(t, first.ID+"-3", third.ID)
	assert.Equal(t, 3, mgr.Count())

	got, err := mgr.Get(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, "one", got.Content)
}

func TestManager_Update(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	mgr := openFileManager(t, t.TempDir(), clock)

	a, err := mgr.Store(ctx, TypeOutput, "draft", "v1",
		WithCreatedBy("agent-01"),
		WithTags("draft"),
		WithMetadata(map[string]any{"stepId": "s1", "round": 1}),
	)
	require.NoError(t, err)

	clock.Advance(time.Second)
	updated, err := mgr.Update(ctx, a.ID, "v2", "agent-02", map[string]any{"round": 2})
	require.NoError(t, err)

	assert.Equal(t, a.ID, updated.ID)
	assert.Equal(t, a.Type, updated.Type)
	assert.Equal(t, a.Name, updated.Name)
	assert.Equal(t, a.Tags, updated.Tags)
	assert.Equal(t, "agent-01", updated.CreatedBy)
	assert.True(t, a.CreatedAt.Equal(updated.CreatedAt))
	assert.True(t, updated.UpdatedAt.After(a.UpdatedAt))
	assert.Equal(t, "v2", updated.Content)
	assert.Equal(t, "s1", updated.Metadata["stepId"])
	assert.Equal(t, 2, updated.Metadata["round"])
	assert.Equal(t, "agent-02", updated.Metadata[MetaUpdatedBy])

	_, err = mgr.Update(ctx, "missing", "x", "agent-02", nil)
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestManager_Queries(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	mgr := openFileManager(t, t.TempDir(), clock)

	store := func(typ, name, content, agent string, tags ...string) *Artifact {
		clock.Advance(time.Millisecond)
		a, err := mgr.Store(ctx, typ, name, content, WithCreatedBy(agent), WithTags(tags...))
		require.NoError(t, err)
		return a
	}
	a1 := store(TypeOutput, "business-plan", "pricing tiers", "agent-01", TagAgentOutput, "agent-01")
	a2 := store(TypeStepOutput, "step-a-result", "schema", "agent-02", TagWorkflowOutput, "step-a")
	a3 := store(TypeOutput, "api-spec", "REST endpoints", "agent-02", TagAgentOutput, "agent-02")

	ids := func(list []*Artifact) []string {
		out := make([]string, 0, len(list))
		for _, a := range list {
			out = append(out, a.ID)
		}
		return out
	}

	assert.Equal(t, []string{a1.ID, a3.ID}, ids(mgr.ByType(ctx, TypeOutput)))
	assert.Equal(t, []string{a1.ID, a3.ID}, ids(mgr.ByTag(ctx, TagAgentOutput)))
	assert.Equal(t, []string{a2.ID, a3.ID}, ids(mgr.ByAgent(ctx, "agent-02")))
	assert.Equal(t, []string{a3.ID}, ids(mgr.Search(ctx, "rest")))
	assert.Equal(t, []string{a2.ID}, ids(mgr.Search(ctx, "STEP-OUTPUT")))
	assert.Equal(t, []string{a1.ID, a2.ID, a3.ID}, ids(mgr.List(ctx)))
	assert.Empty(t, mgr.ByTag(ctx, "nope"))

	latest, ok := mgr.Latest(ctx, TagAgentOutput)
	require.True(t, ok)
	assert.Equal(t, a3.ID, latest.ID)
}

func TestManager_ReturnsCopies(t *testing.T) {
	ctx := context.Background()
	mgr := openFileManager(t, t.TempDir(), newFakeClock())

	a, err := mgr.Store(ctx, TypeOutput, "x", "c", WithTags("t1"))
	require.NoError(t, err)
	a.Tags[0] = "mutated"

	got, err := mgr.Get(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"t1"}, got.Tags)
}

func TestManager_ReopenRebuildsIndex(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	clock := newFakeClock()

	mgr := openFileManager(t, dir, clock)
	var stored []*Artifact
	for _, name := range []string{"zeta", "alpha", "mid"} {
		clock.Advance(time.Millisecond)
		a, err := mgr.Store(ctx, TypeOutput, name, name+" content", WithCreatedBy("agent-01"))
		require.NoError(t, err)
		stored = append(stored, a)
	}
	clock.Advance(time.Millisecond)
	_, err := mgr.Update(ctx, stored[0].ID, "changed", "agent-09", nil)
	require.NoError(t, err)
	require.NoError(t, mgr.Close())

	reopened := openFileManager(t, dir, clock)
	list := reopened.List(ctx)
	require.Len(t, list, 3)
	for i, a := range list {
		assert.Equal(t, stored[i].ID, a.ID, "insertion order preserved")
		assert.True(t, stored[i].CreatedAt.Equal(a.CreatedAt))
	}
	assert.Equal(t, "changed", list[0].Content)
	assert.Equal(t, "agent-09", list[0].Metadata[MetaUpdatedBy])
}

func TestManager_Clear(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	mgr := openFileManager(t, dir, newFakeClock())

	_, err := mgr.Store(ctx, TypeOutput, "a", "1")
	require.NoError(t, err)
	_, err = mgr.Store(ctx, TypeOutput, "b", "2")
	require.NoError(t, err)

	require.NoError(t, mgr.Clear(ctx))
	assert.Equal(t, 0, mgr.Count())

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)

	reopened := openFileManager(t, dir, newFakeClock())
	assert.Equal(t, 0, reopened.Count())
}

func TestManager_Summary(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	mgr := openFileManager(t, t.TempDir(), clock)

	for i, agent := range []string{"agent-01", "agent-02", "agent-01"} {
		clock.Advance(time.Second)
		typ := TypeOutput
		if i == 1 {
			typ = TypeStepOutput
		}
		_, err := mgr.Store(ctx, typ, agent, "x", WithCreatedBy(agent))
		require.NoError(t, err)
	}

	s := mgr.Summary(2)
	assert.Equal(t, 3, s.TotalArtifacts)
	assert.Equal(t, map[string]int{TypeOutput: 2, TypeStepOutput: 1}, s.ArtifactsByType)
	assert.Equal(t, map[string]int{"agent-01": 2, "agent-02": 1}, s.ArtifactsByAgent)
	require.Len(t, s.RecentArtifacts, 2)
	assert.Equal(t, "agent-01", s.RecentArtifacts[0].CreatedBy)
	assert.Equal(t, TypeStepOutput, s.RecentArtifacts[1].Type)
}

func TestManager_StoreFailsWhenBackendCannotWrite(t *testing.T) {
	ctx := context.Background()
	dir := filepath.Join(t.TempDir(), "context")
	mgr := openFileManager(t, dir, newFakeClock())

	require.NoError(t, os.RemoveAll(dir))
	require.NoError(t, os.WriteFile(dir, []byte("not a directory"), 0o644))

	_, err := mgr.Store(ctx, TypeOutput, "x", "y")
	require.Error(t, err)
	assert.Equal(t, 0, mgr.Count(), "failed writes leave the index unchanged")
}

func TestManager_ClosedRejectsWrites(t *testing.T) {
	ctx := context.Background()
	mgr := openFileManager(t, t.TempDir(), newFakeClock())
	require.NoError(t, mgr.Close())

	_, err := mgr.Store(ctx, TypeOutput, "x", "y")
	assert.ErrorIs(t, err, ErrClosed)
	assert.ErrorIs(t, mgr.Clear(ctx), ErrClosed)
}

func itoa(n int64) string {
	return fmt.Sprintf("%d", n)
}
