package domain

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"time"
)

// TaskStatus represents the processing status of an asynchronous task.
// Values include TaskStatusPending, TaskStatusProcessing, TaskStatusCompleted, and TaskStatusError.
type TaskStatus string

const (
	TaskStatusPending    TaskStatus = "pending"
	TaskStatusProcessing TaskStatus = "processing"
	TaskStatusCompleted  TaskStatus = "completed"
	TaskStatusError      TaskStatus = "error"
)

// IsTerminal reports whether the status is a terminal state.
func (s TaskStatus) IsTerminal() bool {
	return s == TaskStatusCompleted || s == TaskStatusError
}

// Entity represents a named entity detected in the input text.
type Entity struct {
	Text  string `json:"text"`
	Label string `json:"label"`
	Mask  string `json:"mask"`
	Start int    `json:"start"`
	End   int    `json:"end"`
}

// EntityList is a custom type for storing entity slices as JSON in the database.
type EntityList []Entity

// Value implements the driver.Valuer interface for database serialization.
func (e EntityList) Value() (driver.Value, error) {
	if e == nil {
		return "[]", nil
	}
	b, err := json.Marshal(e)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan implements the sql.Scanner interface for database deserialization.
func (e *EntityList) Scan(value interface{}) error {
	if value == nil {
		*e = EntityList{}
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		str, ok := value.(string)
		if !ok {
			return errors.New("failed to scan EntityList")
		}
		bytes = []byte(str)
	}
	return json.Unmarshal(bytes, e)
}

// SimilarItem represents a historical analogue surfaced by similarity search.
type SimilarItem struct {
	ID       string  `json:"id"`
	Headline string  `json:"headline"`
	Source   string  `json:"source,omitempty"`
	Date     string  `json:"date,omitempty"`
	Score    float32 `json:"score"`
}

// SimilarItemList is a custom type for storing similar items as JSON in the database.
// Items are ordered most-similar first.
type SimilarItemList []SimilarItem

// Value implements the driver.Valuer interface for database serialization.
func (s SimilarItemList) Value() (driver.Value, error) {
	if s == nil {
		return "[]", nil
	}
	b, err := json.Marshal(s)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan implements the sql.Scanner interface for database deserialization.
func (s *SimilarItemList) Scan(value interface{}) error {
	if value == nil {
		*s = SimilarItemList{}
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		str, ok := value.(string)
		if !ok {
			return errors.New("failed to scan SimilarItemList")
		}
		bytes = []byte(str)
	}
	return json.Unmarshal(bytes, s)
}

// DetoxTask represents one pass of a text item through the detoxification
// pipeline. Result fields (MaskedText, Entities, SimilarItems, IsSensational,
// Confidence, AnalysisText) are written together when the task completes;
// while the task is pending or processing they are all unset.
type DetoxTask struct {
	ID            string          `gorm:"type:text;primaryKey" json:"id"`
	Fingerprint   string          `gorm:"type:text;not null;index:idx_detox_fingerprint" json:"fingerprint"`
	Status        TaskStatus      `gorm:"type:text;index:idx_detox_status;default:pending" json:"status"`
	OriginalText  string          `gorm:"type:text;not null" json:"original_text"`
	ContentType   string          `gorm:"type:text;default:text" json:"content_type"`
	GenerateMeme  bool            `json:"generate_meme"`
	UserID        string          `gorm:"type:text;index:idx_detox_user" json:"user_id,omitempty"`
	MaskedText    *string         `gorm:"type:text" json:"masked_text,omitempty"`
	Entities      EntityList      `gorm:"type:text" json:"entities,omitempty"`
	SimilarItems  SimilarItemList `gorm:"type:text" json:"similar_items,omitempty"`
	IsSensational *bool           `json:"is_sensational,omitempty"`
	Confidence    *float64        `json:"confidence,omitempty"`
	AnalysisText  *string         `gorm:"type:text" json:"analysis_text,omitempty"`
	Backend       string          `gorm:"type:text" json:"backend,omitempty"`
	MemeTaskID    *string         `gorm:"type:text" json:"meme_task_id,omitempty"`
	ErrorDetail   *string         `gorm:"type:text" json:"error_detail,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
	CompletedAt   *time.Time      `json:"completed_at,omitempty"`
}

// TableName returns the database table name for DetoxTask.
func (DetoxTask) TableName() string {
	return "detox_tasks"
}

// DetoxResult holds the verdict fields persisted when a task completes.
type DetoxResult struct {
	MaskedText    string
	Entities      EntityList
	SimilarItems  SimilarItemList
	IsSensational bool
	Confidence    float64
	AnalysisText  string
	Backend       string
	MemeTaskID    string
}
