package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"
)

// PostStatus tracks a post through its publish lifecycle.
type PostStatus string

const (
	StatusDraft      PostStatus = "draft"
	StatusPending    PostStatus = "pending"
	StatusGenerating PostStatus = "generating"
	StatusGenerated  PostStatus = "generated"
	StatusScheduled  PostStatus = "scheduled"
	StatusPublishing PostStatus = "publishing"
	StatusPublished  PostStatus = "published"
	StatusFailed     PostStatus = "failed"
)

// Visibility values accepted on publish input.
const (
	VisibilityPublic = "public"
	VisibilityDraft  = "draft"
)

// StringArray represents a PostgreSQL text[] column. On SQLite (tests) the
// same brace-delimited encoding is stored as plain text.
type StringArray []string

// Scan implements the sql.Scanner interface.
func (s *StringArray) Scan(value interface{}) error {
	if value == nil {
		*s = StringArray{}
		return nil
	}

	switch v := value.(type) {
	case string:
		trimmed := strings.Trim(v, "{}")
		if trimmed == "" {
			*s = StringArray{}
			return nil
		}
		parts := strings.Split(trimmed, ",")
		result := make([]string, len(parts))
		for i, part := range parts {
			result[i] = strings.Trim(strings.TrimSpace(part), "\"")
		}
		*s = result
		return nil
	case []byte:
		var arr []string
		if err := json.Unmarshal(v, &arr); err == nil {
			*s = arr
			return nil
		}
		return s.Scan(string(v))
	default:
		return fmt.Errorf("cannot scan %T into StringArray", value)
	}
}

// Value implements the driver.Valuer interface.
func (s StringArray) Value() (driver.Value, error) {
	if len(s) == 0 {
		return "{}", nil
	}

	quoted := make([]string, len(s))
	for i, v := range s {
		escaped := strings.ReplaceAll(v, "\"", "\\\"")
		quoted[i] = fmt.Sprintf("\"%s\"", escaped)
	}

	return fmt.Sprintf("{%s}", strings.Join(quoted, ",")), nil
}

// Post is the persisted unit of content moving through the publish
// lifecycle. It is mutated only by the publish orchestrator; failure never
// deletes a post.
type Post struct {
	ID        string `gorm:"primaryKey;size:36" json:"id"`
	UserID    string `gorm:"not null;index;size:36" json:"user_id"`
	BlogID    string `gorm:"not null;index;size:36" json:"blog_id"`
	KeywordID string `gorm:"size:36" json:"keyword_id,omitempty"`

	Title      string      `gorm:"not null;size:500" json:"title"`
	Content    string      `gorm:"type:text;not null" json:"content"`
	Category   string      `gorm:"size:100" json:"category,omitempty"`
	Tags       StringArray `gorm:"type:text[]" json:"tags"`
	Visibility string      `gorm:"size:20;default:'public'" json:"visibility"`

	Status       PostStatus `gorm:"size:20;not null;index" json:"status"`
	ScheduledAt  *time.Time `gorm:"index" json:"scheduled_at,omitempty"`
	PublishedAt  *time.Time `json:"published_at,omitempty"`
	PublishedURL string     `gorm:"size:1000" json:"published_url,omitempty"`
	RetryCount   int        `gorm:"not null;default:0" json:"retry_count"`
	ErrorMessage string     `gorm:"type:text" json:"error_message,omitempty"`

	CreatedAt time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}
