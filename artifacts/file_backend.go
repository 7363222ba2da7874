package artifacts

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
)

// FileBackend stores one JSON document per artifact in a directory.
// 适合单节点部署，文件名为 <id>.json。
type FileBackend struct {
	dir    string
	logger *zap.Logger
}

// NewFileBackend creates the directory if needed.
func NewFileBackend(dir string, logger *zap.Logger) (*FileBackend, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create artifact directory: %w", err)
	}
	return &FileBackend{
		dir:    dir,
		logger: logger.With(zap.String("component", "artifact_file_backend")),
	}, nil
}

// Dir returns the backing directory.
func (b *FileBackend) Dir() string {
	return b.dir
}

func (b *FileBackend) path(id string) string {
	return filepath.Join(b.dir, id+".json")
}

// Save writes the artifact atomically: temp file, fsync, rename.
func (b *FileBackend) Save(_ context.Context, a *Artifact) error {
	data, err := json.MarshalIndent(a, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal artifact: %w", err)
	}

	target := b.path(a.ID)
	tmp, err := os.CreateTemp(b.dir, "."+a.ID+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()
	cleanup := func() { _ = os.Remove(tmpName) }

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		cleanup()
		return fmt.Errorf("failed to write artifact: %w", err)
	}
	// 确保数据落盘
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		cleanup()
		return fmt.Errorf("failed to sync artifact: %w", err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return fmt.Errorf("failed to close artifact file: %w", err)
	}
	if err := os.Rename(tmpName, target); err != nil {
		cleanup()
		return fmt.Errorf("failed to rename artifact file: %w", err)
	}
	return nil
}

// LoadAll scans the directory. Unreadable or corrupt files are logged
// and skipped.
func (b *FileBackend) LoadAll(_ context.Context) ([]*Artifact, error) {
	entries, err := os.ReadDir(b.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read artifact directory: %w", err)
	}

	out := make([]*Artifact, 0, len(entries))
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || strings.HasPrefix(name, ".") || filepath.Ext(name) != ".json" {
			continue
		}

		path := filepath.Join(b.dir, name)
		data, err := os.ReadFile(path)
		if err != nil {
			b.logger.Warn("skipping unreadable artifact file", zap.String("path", path), zap.Error(err))
			continue
		}
		var a Artifact
		if err := json.Unmarshal(data, &a); err != nil || a.ID == "" {
			b.logger.Warn("skipping corrupt artifact file", zap.String("path", path), zap.Error(err))
			continue
		}
		out = append(out, &a)
	}

	sortByCreation(out)
	return out, nil
}

// Clear deletes every artifact file.
func (b *FileBackend) Clear(_ context.Context) error {
	entries, err := os.ReadDir(b.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to read artifact directory: %w", err)
	}
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".json" && !strings.HasSuffix(entry.Name(), ".tmp") {
			continue
		}
		if err := os.Remove(filepath.Join(b.dir, entry.Name())); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("failed to remove artifact file: %w", err)
		}
	}
	return nil
}

// Close is a no-op.
func (b *FileBackend) Close() error {
	return nil
}
