package persistence

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/BaSui01/crewflow/workflow"
)

// Common errors
var (
	ErrNotFound     = errors.New("not found")
	ErrStoreClosed  = errors.New("store is closed")
	ErrInvalidInput = errors.New("invalid input")
)

// StoreType represents the type of storage backend
type StoreType string

const (
	StoreTypeMemory StoreType = "memory"
	StoreTypeFile   StoreType = "file"
	StoreTypeRedis  StoreType = "redis"
)

// StoreConfig is the base configuration for all store implementations
type StoreConfig struct {
	// Type is the storage backend type
	Type StoreType `json:"type" yaml:"type"`

	// BaseDir is the base directory for file-based storage
	BaseDir string `json:"base_dir" yaml:"base_dir"`

	// Redis configuration (only used when Type is "redis")
	Redis RedisStoreConfig `json:"redis" yaml:"redis"`
}

// RedisStoreConfig contains Redis-specific configuration
type RedisStoreConfig struct {
	Host     string `json:"host" yaml:"host"`
	Port     int    `json:"port" yaml:"port"`
	Password string `json:"password" yaml:"password"`
	DB       int    `json:"db" yaml:"db"`
	PoolSize int    `json:"pool_size" yaml:"pool_size"`

	// KeyPrefix is the prefix for all Redis keys
	KeyPrefix string `json:"key_prefix" yaml:"key_prefix"`
}

// DefaultStoreConfig returns the default store configuration
func DefaultStoreConfig() StoreConfig {
	return StoreConfig{
		Type:    StoreTypeFile,
		BaseDir: "./.crewflow/state",
		Redis: RedisStoreConfig{
			Host:      "localhost",
			Port:      6379,
			PoolSize:  10,
			KeyPrefix: "crewflow:",
		},
	}
}

// Store is the base interface for all persistent stores
type Store interface {
	// Close closes the store and releases resources
	Close() error

	// Ping checks if the store is healthy
	Ping(ctx context.Context) error
}

// WorkflowSummary describes a stored workflow without its steps.
type WorkflowSummary struct {
	ID        string               `json:"id"`
	Type      workflow.PatternType `json:"type"`
	Progress  workflow.Progress    `json:"progress"`
	UpdatedAt time.Time            `json:"updatedAt"`
}

// StateStore persists workflow snapshots keyed by workflow id.
type StateStore interface {
	Store

	// SaveWorkflow creates or replaces the snapshot for id.
	SaveWorkflow(ctx context.Context, id string, def *workflow.Definition) error

	// LoadWorkflow returns the snapshot for id, or ErrNotFound.
	LoadWorkflow(ctx context.Context, id string) (*workflow.Definition, error)

	// ListWorkflows returns all stored workflows ordered by id.
	ListWorkflows(ctx context.Context) ([]WorkflowSummary, error)

	// DeleteWorkflow removes the snapshot for id, or returns ErrNotFound.
	DeleteWorkflow(ctx context.Context, id string) error
}

var _ workflow.Checkpointer = StateStore(nil)

// record is the stored form of a snapshot.
type record struct {
	ID         string               `json:"id"`
	Definition *workflow.Definition `json:"definition"`
	UpdatedAt  time.Time            `json:"updatedAt"`
}

func (r *record) summary() WorkflowSummary {
	return WorkflowSummary{
		ID:        r.ID,
		Type:      r.Definition.Type,
		Progress:  progressOf(r.Definition),
		UpdatedAt: r.UpdatedAt,
	}
}

func progressOf(def *workflow.Definition) workflow.Progress {
	p := workflow.Progress{Total: len(def.Steps)}
	for _, s := range def.Steps {
		switch s.Status {
		case workflow.StatusCompleted:
			p.Completed++
		case workflow.StatusInProgress:
			p.InProgress++
		case workflow.StatusFailed:
			p.Failed++
		default:
			p.Pending++
		}
	}
	p.Percentage = workflow.Percent(p.Completed, p.Total)
	return p
}

// validateID rejects ids that cannot be used as a file name or key.
func validateID(id string) error {
	if id == "" || id == "." || id == ".." || strings.ContainsAny(id, `/\`) {
		return fmt.Errorf("%w: workflow id %q", ErrInvalidInput, id)
	}
	return nil
}

func validateSave(id string, def *workflow.Definition) error {
	if err := validateID(id); err != nil {
		return err
	}
	if def == nil {
		return fmt.Errorf("%w: nil definition", ErrInvalidInput)
	}
	return nil
}
