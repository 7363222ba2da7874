package artifacts

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/BaSui01/crewflow/internal/database"
)

// saveRetries bounds retries of a save transaction on transient lock errors.
const saveRetries = 3

// artifactRecord is the table row for an artifact. Seq gives insertion
// order; content, tags and metadata are JSON text. Rows are scoped by
// project; artifact ids are unique within a project.
type artifactRecord struct {
	Seq        uint64    `gorm:"primaryKey;autoIncrement"`
	ProjectID  string    `gorm:"column:project_id;size:128;uniqueIndex:idx_artifacts_project_artifact,priority:1"`
	ArtifactID string    `gorm:"column:artifact_id;size:255;uniqueIndex:idx_artifacts_project_artifact,priority:2"`
	Type       string    `gorm:"size:128;index"`
	Name       string    `gorm:"size:255"`
	Content    string    `gorm:"type:text"`
	CreatedBy  string    `gorm:"size:128;index"`
	Tags       string    `gorm:"type:text"`
	Metadata   string    `gorm:"type:text"`
	CreatedAt  time.Time `gorm:"autoCreateTime:false"`
	UpdatedAt  time.Time `gorm:"autoUpdateTime:false"`
}

func (artifactRecord) TableName() string {
	return "artifacts"
}

// SQLBackend stores one project's artifacts in a relational database
// through GORM. Several projects may share the same table.
type SQLBackend struct {
	pool      *database.PoolManager
	projectID string
	logger    *zap.Logger
}

// NewSQLBackend migrates the artifacts table and returns a backend scoped
// to projectID. The backend owns the pool and closes it on Close.
func NewSQLBackend(pool *database.PoolManager, projectID string, logger *zap.Logger) (*SQLBackend, error) {
	if pool == nil {
		return nil, fmt.Errorf("database pool cannot be nil")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := pool.DB().AutoMigrate(&artifactRecord{}); err != nil {
		return nil, fmt.Errorf("failed to migrate artifacts table: %w", err)
	}
	return &SQLBackend{
		pool:      pool,
		projectID: projectID,
		logger: logger.With(zap.String("component", "artifact_sql_backend"),
			zap.String("project_id", projectID)),
	}, nil
}

func (b *SQLBackend) scoped(ctx context.Context, db *gorm.DB) *gorm.DB {
	return db.WithContext(ctx).Where("project_id = ?", b.projectID)
}

func toRecord(projectID string, a *Artifact) (*artifactRecord, error) {
	content, err := json.Marshal(a.Content)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal content: %w", err)
	}
	tags, err := json.Marshal(a.Tags)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal tags: %w", err)
	}
	meta, err := json.Marshal(a.Metadata)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal metadata: %w", err)
	}
	return &artifactRecord{
		ProjectID:  projectID,
		ArtifactID: a.ID,
		Type:       a.Type,
		Name:       a.Name,
		Content:    string(content),
		CreatedBy:  a.CreatedBy,
		Tags:       string(tags),
		Metadata:   string(meta),
		CreatedAt:  a.CreatedAt,
		UpdatedAt:  a.UpdatedAt,
	}, nil
}

func (r *artifactRecord) toArtifact() (*Artifact, error) {
	a := &Artifact{
		ID:        r.ArtifactID,
		Type:      r.Type,
		Name:      r.Name,
		CreatedBy: r.CreatedBy,
		CreatedAt: r.CreatedAt.UTC(),
		UpdatedAt: r.UpdatedAt.UTC(),
	}
	if err := json.Unmarshal([]byte(r.Content), &a.Content); err != nil {
		return nil, fmt.Errorf("content: %w", err)
	}
	if err := json.Unmarshal([]byte(r.Tags), &a.Tags); err != nil {
		return nil, fmt.Errorf("tags: %w", err)
	}
	if err := json.Unmarshal([]byte(r.Metadata), &a.Metadata); err != nil {
		return nil, fmt.Errorf("metadata: %w", err)
	}
	return a, nil
}

// Save inserts a new row or updates the existing one. Transient lock
// errors (sqlite "database is locked", deadlocks) are retried.
func (b *SQLBackend) Save(ctx context.Context, a *Artifact) error {
	rec, err := toRecord(b.projectID, a)
	if err != nil {
		return err
	}

	return b.pool.WithTransactionRetry(ctx, saveRetries, func(tx *gorm.DB) error {
		var existing artifactRecord
		err := tx.Where("project_id = ? AND artifact_id = ?", b.projectID, a.ID).Take(&existing).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			if err := tx.Create(rec).Error; err != nil {
				return fmt.Errorf("failed to insert artifact: %w", err)
			}
			return nil
		case err != nil:
			return fmt.Errorf("failed to read artifact: %w", err)
		}

		return tx.Model(&existing).Updates(map[string]any{
			"content":    rec.Content,
			"metadata":   rec.Metadata,
			"updated_at": rec.UpdatedAt,
		}).Error
	})
}

// LoadAll returns artifacts ordered by insertion sequence. Rows that do
// not decode are logged and skipped.
func (b *SQLBackend) LoadAll(ctx context.Context) ([]*Artifact, error) {
	var records []artifactRecord
	if err := b.scoped(ctx, b.pool.DB()).Order("seq asc").Find(&records).Error; err != nil {
		return nil, fmt.Errorf("failed to load artifacts: %w", err)
	}

	out := make([]*Artifact, 0, len(records))
	for i := range records {
		a, err := records[i].toArtifact()
		if err != nil {
			b.logger.Warn("skipping corrupt artifact row",
				zap.String("artifact_id", records[i].ArtifactID), zap.Error(err))
			continue
		}
		out = append(out, a)
	}
	return out, nil
}

// Clear deletes every row of this project.
func (b *SQLBackend) Clear(ctx context.Context) error {
	if err := b.scoped(ctx, b.pool.DB()).Delete(&artifactRecord{}).Error; err != nil {
		return fmt.Errorf("failed to clear artifacts: %w", err)
	}
	return nil
}

// Close closes the underlying connection pool.
func (b *SQLBackend) Close() error {
	return b.pool.Close()
}
