package domain

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"time"
)

// StringArray is a custom type for storing string arrays as JSON in the database.
type StringArray []string

// Value implements the driver.Valuer interface for database serialization.
func (a StringArray) Value() (driver.Value, error) {
	if a == nil {
		return "[]", nil
	}
	b, err := json.Marshal(a)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan implements the sql.Scanner interface for database deserialization.
func (a *StringArray) Scan(value interface{}) error {
	if value == nil {
		*a = StringArray{}
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		str, ok := value.(string)
		if !ok {
			return errors.New("failed to scan StringArray")
		}
		bytes = []byte(str)
	}
	return json.Unmarshal(bytes, a)
}

// MemeTask represents an independently tracked meme generation sub-task.
// It is spawned by a sensational DetoxTask verdict (or submitted directly)
// and linked from the parent by id only; its lifecycle never mutates the
// parent. GeneratedText, GifURL, and PublicURL are set together on completion.
type MemeTask struct {
	ID             string      `gorm:"type:text;primaryKey" json:"id"`
	Status         TaskStatus  `gorm:"type:text;index:idx_meme_status;default:pending" json:"status"`
	SourceHeadline string      `gorm:"type:text;not null" json:"source_headline"`
	SourceAnalysis string      `gorm:"type:text" json:"source_analysis"`
	Style          string      `gorm:"type:text" json:"style"`
	GeneratedText  *string     `gorm:"type:text" json:"generated_text,omitempty"`
	Keywords       StringArray `gorm:"type:text" json:"keywords,omitempty"`
	GifURL         *string     `gorm:"type:text" json:"gif_url,omitempty"`
	PublicURL      *string     `gorm:"type:text" json:"public_url,omitempty"`
	ErrorDetail    *string     `gorm:"type:text" json:"error_detail,omitempty"`
	CreatedAt      time.Time   `json:"created_at"`
	UpdatedAt      time.Time   `json:"updated_at"`
	CompletedAt    *time.Time  `json:"completed_at,omitempty"`
}

// TableName returns the database table name for MemeTask.
func (MemeTask) TableName() string {
	return "meme_tasks"
}

// MemeResult holds the artifact fields persisted when a meme task completes.
type MemeResult struct {
	GeneratedText string
	Keywords      StringArray
	GifURL        string
	PublicURL     string
}
