package artifacts

import (
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/BaSui01/crewflow/internal/database"
)

// BackendType selects the storage backend.
type BackendType string

const (
	BackendFile  BackendType = "file"
	BackendRedis BackendType = "redis"
	BackendSQL   BackendType = "sql"
)

// BackendConfig configures NewBackend.
type BackendConfig struct {
	// Type is the storage backend type
	Type BackendType `json:"type" yaml:"type"`

	// Dir is the artifact directory for the file backend
	Dir string `json:"dir" yaml:"dir"`

	// KeyPrefix namespaces redis keys
	KeyPrefix string `json:"key_prefix" yaml:"key_prefix"`

	// ProjectID scopes rows of the sql backend
	ProjectID string `json:"project_id" yaml:"project_id"`
}

// Connections carries the shared clients a backend may need.
type Connections struct {
	Redis redis.UniversalClient
	Pool  *database.PoolManager
}

// NewBackend creates a Backend based on the configuration
func NewBackend(cfg BackendConfig, conns Connections, logger *zap.Logger) (Backend, error) {
	switch cfg.Type {
	case BackendFile, "":
		if cfg.Dir == "" {
			return nil, fmt.Errorf("file artifact backend requires a directory")
		}
		return NewFileBackend(cfg.Dir, logger)
	case BackendRedis:
		if conns.Redis == nil {
			return nil, fmt.Errorf("redis artifact backend requires a redis client")
		}
		return NewRedisBackend(conns.Redis, cfg.KeyPrefix, logger), nil
	case BackendSQL:
		if conns.Pool == nil {
			return nil, fmt.Errorf("sql artifact backend requires a database pool")
		}
		return NewSQLBackend(conns.Pool, cfg.ProjectID, logger)
	default:
		return nil, fmt.Errorf("unsupported artifact backend type: %s", cfg.Type)
	}
}
