package repository

import (
	"context"
	"errors"
	"time"

	"github.com/arlen/newscalm/internal/domain"
	"gorm.io/gorm"
)

// MemeTaskRepository handles meme sub-task persistence.
type MemeTaskRepository struct {
	db *gorm.DB
}

// NewMemeTaskRepository creates a new MemeTaskRepository.
func NewMemeTaskRepository(db *gorm.DB) *MemeTaskRepository {
	return &MemeTaskRepository{db: db}
}

// Create inserts a new meme task record.
func (r *MemeTaskRepository) Create(ctx context.Context, task *domain.MemeTask) error {
	return r.db.WithContext(ctx).Create(task).Error
}

// GetByID retrieves a meme task by its ID.
// Returns domain.ErrNotFound if no record exists.
func (r *MemeTaskRepository) GetByID(ctx context.Context, id string) (*domain.MemeTask, error) {
	var task domain.MemeTask
	if err := r.db.WithContext(ctx).First(&task, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return &task, nil
}

// MarkProcessing transitions a meme task from pending to processing.
func (r *MemeTaskRepository) MarkProcessing(ctx context.Context, id string) error {
	res := r.db.WithContext(ctx).Model(&domain.MemeTask{}).
		Where("id = ? AND status = ?", id, domain.TaskStatusPending).
		Update("status", domain.TaskStatusProcessing)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// Complete persists the generated artifact fields and the completed status in
// a single update.
func (r *MemeTaskRepository) Complete(ctx context.Context, id string, result *domain.MemeResult) error {
	now := time.Now()
	res := r.db.WithContext(ctx).Model(&domain.MemeTask{}).
		Where("id = ? AND status = ?", id, domain.TaskStatusProcessing).
		Updates(map[string]interface{}{
			"status":         domain.TaskStatusCompleted,
			"generated_text": result.GeneratedText,
			"keywords":       result.Keywords,
			"gif_url":        result.GifURL,
			"public_url":     result.PublicURL,
			"completed_at":   now,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// Fail sets a meme task to the error state. The parent detox task is never
// touched here; the two lifecycles are independent.
func (r *MemeTaskRepository) Fail(ctx context.Context, id string, detail string) error {
	now := time.Now()
	return r.db.WithContext(ctx).Model(&domain.MemeTask{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":       domain.TaskStatusError,
			"error_detail": detail,
			"completed_at": now,
		}).Error
}

// ListUnfinished retrieves meme task ids still pending or processing for
// startup recovery.
func (r *MemeTaskRepository) ListUnfinished(ctx context.Context) ([]string, error) {
	var ids []string
	if err := r.db.WithContext(ctx).Model(&domain.MemeTask{}).
		Where("status IN ?", []domain.TaskStatus{domain.TaskStatusPending, domain.TaskStatusProcessing}).
		Order("created_at ASC").
		Pluck("id", &ids).Error; err != nil {
		return nil, err
	}
	return ids, nil
}

// RequeueProcessing moves a crashed-mid-run meme task back to pending.
func (r *MemeTaskRepository) RequeueProcessing(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).Model(&domain.MemeTask{}).
		Where("id = ? AND status = ?", id, domain.TaskStatusProcessing).
		Update("status", domain.TaskStatusPending).Error
}
