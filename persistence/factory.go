package persistence

import (
	"fmt"
)

// NewStateStore creates a new StateStore based on the configuration
func NewStateStore(config StoreConfig) (StateStore, error) {
	switch config.Type {
	case StoreTypeMemory:
		return NewMemoryStateStore(), nil
	case StoreTypeFile, "":
		return NewFileStateStore(config)
	case StoreTypeRedis:
		return NewRedisStateStore(config)
	default:
		return nil, fmt.Errorf("unsupported state store type: %s", config.Type)
	}
}
