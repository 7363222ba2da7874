package artifacts

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/glebarez/sqlite"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/BaSui01/crewflow/internal/database"
)

// =============================================================================
// 🧪 Backend 通用测试
// =============================================================================

func sampleArtifact(id string, at time.Time) *Artifact {
	return &Artifact{
		ID:        id,
		Type:      TypeOutput,
		Name:      id + "-name",
		Content:   "content of " + id,
		CreatedBy: "agent-01",
		CreatedAt: at,
		UpdatedAt: at,
		Tags:      []string{TagAgentOutput, "agent-01"},
		Metadata:  map[string]any{"stepId": "step-agent-01"},
	}
}

// runBackendContract exercises the behaviour every backend must share.
func runBackendContract(t *testing.T, newBackend func(t *testing.T) Backend) {
	ctx := context.Background()
	base := time.Date(2025, 3, 1, 12, 0, 0, 123456789, time.UTC)

	t.Run("save and load preserves order", func(t *testing.T) {
		b := newBackend(t)
		ids := []string{"c-1", "a-1", "b-1"}
		for i, id := range ids {
			require.NoError(t, b.Save(ctx, sampleArtifact(id, base.Add(time.Duration(i)*time.Millisecond))))
		}

		loaded, err := b.LoadAll(ctx)
		require.NoError(t, err)
		require.Len(t, loaded, 3)
		for i, a := range loaded {
			assert.Equal(t, ids[i], a.ID)
			assert.True(t, a.CreatedAt.Equal(base.Add(time.Duration(i)*time.Millisecond)))
			assert.Equal(t, "content of "+ids[i], a.Content)
			assert.Equal(t, []string{TagAgentOutput, "agent-01"}, a.Tags)
			assert.Equal(t, "step-agent-01", a.Metadata["stepId"])
		}
	})

	t.Run("resave keeps position", func(t *testing.T) {
		b := newBackend(t)
		first := sampleArtifact("first", base)
		require.NoError(t, b.Save(ctx, first))
		require.NoError(t, b.Save(ctx, sampleArtifact("second", base.Add(time.Millisecond))))

		first.Content = "rewritten"
		first.UpdatedAt = base.Add(time.Hour)
		require.NoError(t, b.Save(ctx, first))

		loaded, err := b.LoadAll(ctx)
		require.NoError(t, err)
		require.Len(t, loaded, 2)
		assert.Equal(t, "first", loaded[0].ID)
		assert.Equal(t, "rewritten", loaded[0].Content)
		assert.True(t, loaded[0].UpdatedAt.Equal(base.Add(time.Hour)))
		assert.True(t, loaded[0].CreatedAt.Equal(base))
	})

	t.Run("clear removes everything", func(t *testing.T) {
		b := newBackend(t)
		require.NoError(t, b.Save(ctx, sampleArtifact("x", base)))
		require.NoError(t, b.Clear(ctx))

		loaded, err := b.LoadAll(ctx)
		require.NoError(t, err)
		assert.Empty(t, loaded)
	})

	t.Run("manager over backend", func(t *testing.T) {
		b := newBackend(t)
		mgr, err := Open(ctx, b, zap.NewNop())
		require.NoError(t, err)

		a, err := mgr.Store(ctx, TypeOutput, "plan", "v1", WithTags("plan"))
		require.NoError(t, err)
		_, err = mgr.Update(ctx, a.ID, "v2", "agent-02", nil)
		require.NoError(t, err)

		reopened, err := Open(ctx, b, zap.NewNop())
		require.NoError(t, err)
		got, err := reopened.Get(ctx, a.ID)
		require.NoError(t, err)
		assert.Equal(t, "v2", got.Content)
		assert.Equal(t, "agent-02", got.Metadata[MetaUpdatedBy])
	})
}

func TestFileBackend(t *testing.T) {
	runBackendContract(t, func(t *testing.T) Backend {
		b, err := NewFileBackend(filepath.Join(t.TempDir(), "context"), zap.NewNop())
		require.NoError(t, err)
		return b
	})
}

func TestFileBackend_SkipsCorruptAndForeignFiles(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	b, err := NewFileBackend(dir, zap.NewNop())
	require.NoError(t, err)

	require.NoError(t, b.Save(ctx, sampleArtifact("good", time.Now().UTC())))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "broken.json"), []byte("{not json"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("ignored"), 0o644))
	require.NoError(t, os.Mkdir(filepath.Join(dir, "nested.json"), 0o755))

	loaded, err := b.LoadAll(ctx)
	require.NoError(t, err)
	require.Len(t, loaded, 1)
	assert.Equal(t, "good", loaded[0].ID)

	require.NoError(t, b.Clear(ctx))
	_, err = os.Stat(filepath.Join(dir, "notes.txt"))
	assert.NoError(t, err, "clear only touches artifact files")
}

func TestFileBackend_WritesOneFilePerArtifact(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	b, err := NewFileBackend(dir, zap.NewNop())
	require.NoError(t, err)

	require.NoError(t, b.Save(ctx, sampleArtifact("output-plan-1", time.Now().UTC())))
	_, err = os.Stat(filepath.Join(dir, "output-plan-1.json"))
	assert.NoError(t, err)
	assert.Equal(t, dir, b.Dir())
}

func TestFileBackend_LongArtifactName(t *testing.T) {
	ctx := context.Background()
	b, err := NewFileBackend(t.TempDir(), zap.NewNop())
	require.NoError(t, err)
	mgr, err := Open(ctx, b, zap.NewNop())
	require.NoError(t, err)

	a, err := mgr.Store(ctx, TypeOutput, strings.Repeat("very long section title ", 50), "body")
	require.NoError(t, err)

	reopened, err := Open(ctx, b, zap.NewNop())
	require.NoError(t, err)
	got, err := reopened.Get(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, "body", got.Content)
}

func setupTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return mr, client
}

func TestRedisBackend(t *testing.T) {
	runBackendContract(t, func(t *testing.T) Backend {
		_, client := setupTestRedis(t)
		return NewRedisBackend(client, "test:", zap.NewNop())
	})
}

func TestRedisBackend_KeyLayout(t *testing.T) {
	ctx := context.Background()
	mr, client := setupTestRedis(t)
	b := NewRedisBackend(client, "crewflow:demo:", zap.NewNop())
	require.NoError(t, b.Ping(ctx))

	require.NoError(t, b.Save(ctx, sampleArtifact("a-1", time.Now().UTC())))
	assert.True(t, mr.Exists("crewflow:demo:artifact:data:a-1"))
	assert.True(t, mr.Exists("crewflow:demo:artifact:order"))

	mr.Set("crewflow:demo:artifact:data:a-1", "{corrupt")
	loaded, err := b.LoadAll(ctx)
	require.NoError(t, err)
	assert.Empty(t, loaded)

	require.NoError(t, b.Clear(ctx))
	assert.False(t, mr.Exists("crewflow:demo:artifact:order"))
	assert.False(t, mr.Exists("crewflow:demo:artifact:seq"))
}

func setupTestPool(t *testing.T) *database.PoolManager {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "artifacts.db")), &gorm.Config{})
	require.NoError(t, err)
	pool, err := database.NewPoolManager(db, database.DefaultPoolConfig(), zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = pool.Close() })
	return pool
}

func TestSQLBackend(t *testing.T) {
	runBackendContract(t, func(t *testing.T) Backend {
		b, err := NewSQLBackend(setupTestPool(t), "demo", zap.NewNop())
		require.NoError(t, err)
		return b
	})
}

func TestSQLBackend_NilPool(t *testing.T) {
	_, err := NewSQLBackend(nil, "demo", zap.NewNop())
	assert.Error(t, err)
}

func TestSQLBackend_ProjectsShareTableButNotRows(t *testing.T) {
	ctx := context.Background()
	pool := setupTestPool(t)
	base := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	shop, err := NewSQLBackend(pool, "shop", zap.NewNop())
	require.NoError(t, err)
	blog, err := NewSQLBackend(pool, "blog", zap.NewNop())
	require.NoError(t, err)

	shopMgr, err := Open(ctx, shop, zap.NewNop())
	require.NoError(t, err)
	_, err = shopMgr.Store(ctx, TypeOutput, "agent-01-output", "shop catalogue",
		WithCreatedBy("agent-01"), WithTags("step-agent-01"))
	require.NoError(t, err)

	// same artifact id in both projects must not collide
	require.NoError(t, shop.Save(ctx, sampleArtifact("shared-1", base)))
	require.NoError(t, blog.Save(ctx, sampleArtifact("shared-1", base)))

	blogMgr, err := Open(ctx, blog, zap.NewNop())
	require.NoError(t, err)
	_, ok := blogMgr.Latest(ctx, "step-agent-01")
	assert.False(t, ok)
	assert.Equal(t, 1, blogMgr.Count())

	require.NoError(t, blogMgr.Clear(ctx))

	reopened, err := Open(ctx, shop, zap.NewNop())
	require.NoError(t, err)
	assert.Equal(t, 2, reopened.Count())
	got, ok := reopened.Latest(ctx, "step-agent-01")
	require.True(t, ok)
	assert.Equal(t, "shop catalogue", got.Content)
}

func TestNewBackend(t *testing.T) {
	_, client := setupTestRedis(t)

	tests := []struct {
		name    string
		cfg     BackendConfig
		conns   Connections
		wantErr bool
	}{
		{"file", BackendConfig{Type: BackendFile, Dir: t.TempDir()}, Connections{}, false},
		{"default is file", BackendConfig{Dir: t.TempDir()}, Connections{}, false},
		{"redis", BackendConfig{Type: BackendRedis}, Connections{Redis: client}, false},
		{"redis without client", BackendConfig{Type: BackendRedis}, Connections{}, true},
		{"sql", BackendConfig{Type: BackendSQL, ProjectID: "demo"}, Connections{Pool: setupTestPool(t)}, false},
		{"sql without pool", BackendConfig{Type: BackendSQL}, Connections{}, true},
		{"unknown", BackendConfig{Type: "etcd"}, Connections{}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, err := NewBackend(tt.cfg, tt.conns, zap.NewNop())
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.NotNil(t, b)
		})
	}
}
