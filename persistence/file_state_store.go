package persistence

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/BaSui01/crewflow/workflow"
)

// FileStateStore 是基于文件的 StateStore 实现，每个工作流一个 JSON 文件。
// 适合单节点部署.
type FileStateStore struct {
	baseDir string
	mu      sync.RWMutex
	closed  bool
}

// NewFileStateStore 新建文件状态存储
func NewFileStateStore(config StoreConfig) (*FileStateStore, error) {
	baseDir := filepath.Join(config.BaseDir, "workflows")
	if err := os.MkdirAll(baseDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create state store directory: %w", err)
	}
	return &FileStateStore{baseDir: baseDir}, nil
}

func (s *FileStateStore) path(id string) string {
	return filepath.Join(s.baseDir, id+".json")
}

// Close 关闭存储
func (s *FileStateStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// Ping 检查目录可用
func (s *FileStateStore) Ping(ctx context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrStoreClosed
	}
	_, err := os.Stat(s.baseDir)
	return err
}

// SaveWorkflow 保存快照
func (s *FileStateStore) SaveWorkflow(ctx context.Context, id string, def *workflow.Definition) error {
	if err := validateSave(id, def); err != nil {
		return err
	}
	data, err := json.MarshalIndent(&record{ID: id, Definition: def, UpdatedAt: time.Now().UTC()}, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal workflow %s: %w", id, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrStoreClosed
	}

	// 原子写: 写入临时文件后重命名
	path := s.path(id)
	tempPath := path + ".tmp"
	if err := os.WriteFile(tempPath, data, 0644); err != nil {
		return err
	}
	return os.Rename(tempPath, path)
}

func (s *FileStateStore) read(id string) (*record, error) {
	data, err := os.ReadFile(s.path(id))
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	var rec record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("failed to decode workflow %s: %w", id, err)
	}
	if rec.Definition == nil {
		return nil, fmt.Errorf("workflow %s has no definition", id)
	}
	return &rec, nil
}

// LoadWorkflow 通过 ID 获取快照
func (s *FileStateStore) LoadWorkflow(ctx context.Context, id string) (*workflow.Definition, error) {
	if err := validateID(id); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrStoreClosed
	}
	rec, err := s.read(id)
	if err != nil {
		return nil, err
	}
	return rec.Definition, nil
}

// ListWorkflows 列出全部工作流，按 ID 排序。无法解析的文件被跳过。
func (s *FileStateStore) ListWorkflows(ctx context.Context) ([]WorkflowSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrStoreClosed
	}

	entries, err := os.ReadDir(s.baseDir)
	if err != nil {
		return nil, err
	}
	var ids []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ".json") {
			continue
		}
		ids = append(ids, strings.TrimSuffix(name, ".json"))
	}
	sort.Strings(ids)

	out := make([]WorkflowSummary, 0, len(ids))
	for _, id := range ids {
		rec, err := s.read(id)
		if err != nil {
			continue
		}
		out = append(out, rec.summary())
	}
	return out, nil
}

// DeleteWorkflow 删除快照
func (s *FileStateStore) DeleteWorkflow(ctx context.Context, id string) error {
	if err := validateID(id); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrStoreClosed
	}
	err := os.Remove(s.path(id))
	if errors.Is(err, os.ErrNotExist) {
		return ErrNotFound
	}
	return err
}
