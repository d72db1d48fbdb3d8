package repository

import (
	"context"
	"errors"
	"time"

	"github.com/arlen/newscalm/internal/domain"
	"gorm.io/gorm"
)

// DetoxTaskRepository handles detox task persistence.
type DetoxTaskRepository struct {
	db *gorm.DB
}

// NewDetoxTaskRepository creates a new DetoxTaskRepository.
func NewDetoxTaskRepository(db *gorm.DB) *DetoxTaskRepository {
	return &DetoxTaskRepository{db: db}
}

// Create inserts a new detox task record.
func (r *DetoxTaskRepository) Create(ctx context.Context, task *domain.DetoxTask) error {
	return r.db.WithContext(ctx).Create(task).Error
}

// Delete removes a detox task record. Used to discard the provisional row
// of a submission that lost the fingerprint claim.
func (r *DetoxTaskRepository) Delete(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).Delete(&domain.DetoxTask{}, "id = ?", id).Error
}

// GetByID retrieves a detox task by its ID.
// Returns domain.ErrNotFound if no record exists.
func (r *DetoxTaskRepository) GetByID(ctx context.Context, id string) (*domain.DetoxTask, error) {
	var task domain.DetoxTask
	if err := r.db.WithContext(ctx).First(&task, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return &task, nil
}

// MarkProcessing transitions a task from pending to processing. The status
// predicate keeps the transition monotonic under concurrent workers.
func (r *DetoxTaskRepository) MarkProcessing(ctx context.Context, id string) error {
	res := r.db.WithContext(ctx).Model(&domain.DetoxTask{}).
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

// Complete persists all verdict fields and the completed status in a single
// update, so readers never observe a partially completed task.
func (r *DetoxTaskRepository) Complete(ctx context.Context, id string, result *domain.DetoxResult) error {
	now := time.Now()
	updates := map[string]interface{}{
		"status":         domain.TaskStatusCompleted,
		"masked_text":    result.MaskedText,
		"entities":       result.Entities,
		"similar_items":  result.SimilarItems,
		"is_sensational": result.IsSensational,
		"confidence":     result.Confidence,
		"analysis_text":  result.AnalysisText,
		"backend":        result.Backend,
		"completed_at":   now,
	}
	if result.MemeTaskID != "" {
		updates["meme_task_id"] = result.MemeTaskID
	}
	res := r.db.WithContext(ctx).Model(&domain.DetoxTask{}).
		Where("id = ? AND status = ?", id, domain.TaskStatusProcessing).
		Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// Fail sets a task to the error state with a human-readable detail.
func (r *DetoxTaskRepository) Fail(ctx context.Context, id string, detail string) error {
	now := time.Now()
	return r.db.WithContext(ctx).Model(&domain.DetoxTask{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":       domain.TaskStatusError,
			"error_detail": detail,
			"completed_at": now,
		}).Error
}

// ResetForRetry clears the result fields of a terminal task and moves it back
// to pending, preserving id and fingerprint for the new processing attempt.
func (r *DetoxTaskRepository) ResetForRetry(ctx context.Context, id string) error {
	res := r.db.WithContext(ctx).Model(&domain.DetoxTask{}).
		Where("id = ? AND status IN ?", id, []domain.TaskStatus{domain.TaskStatusCompleted, domain.TaskStatusError}).
		Updates(map[string]interface{}{
			"status":         domain.TaskStatusPending,
			"masked_text":    nil,
			"entities":       nil,
			"similar_items":  nil,
			"is_sensational": nil,
			"confidence":     nil,
			"analysis_text":  nil,
			"backend":        "",
			"meme_task_id":   nil,
			"error_detail":   nil,
			"completed_at":   nil,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return domain.ErrNotTerminal
	}
	return nil
}

// ListRecent retrieves tasks ordered newest first, optionally scoped to a user.
func (r *DetoxTaskRepository) ListRecent(ctx context.Context, userID string, limit, offset int) ([]domain.DetoxTask, error) {
	var tasks []domain.DetoxTask
	query := r.db.WithContext(ctx)
	if userID != "" {
		query = query.Where("user_id = ?", userID)
	}
	if err := query.
		Order("created_at DESC").
		Limit(limit).
		Offset(offset).
		Find(&tasks).Error; err != nil {
		return nil, err
	}
	return tasks, nil
}

// ListUnfinished retrieves task ids still pending or processing, used by the
// worker pool to recover the queue after a restart.
func (r *DetoxTaskRepository) ListUnfinished(ctx context.Context) ([]string, error) {
	var ids []string
	if err := r.db.WithContext(ctx).Model(&domain.DetoxTask{}).
		Where("status IN ?", []domain.TaskStatus{domain.TaskStatusPending, domain.TaskStatusProcessing}).
		Order("created_at ASC").
		Pluck("id", &ids).Error; err != nil {
		return nil, err
	}
	return ids, nil
}

// RequeueProcessing moves a crashed-mid-run task back to pending so a worker
// can pick it up again.
func (r *DetoxTaskRepository) RequeueProcessing(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).Model(&domain.DetoxTask{}).
		Where("id = ? AND status = ?", id, domain.TaskStatusProcessing).
		Update("status", domain.TaskStatusPending).Error
}
