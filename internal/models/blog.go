package models

import (
	"time"

	"gorm.io/gorm"
)

// Blog is a user's connection to one target blog platform. It owns the
// credential fields the platform's auth scheme needs; values arrive already
// decrypted and are snapshotted per publish call, never logged.
type Blog struct {
	ID       string `gorm:"primaryKey;size:36" json:"id"`
	UserID   string `gorm:"not null;index;size:36" json:"user_id"`
	Platform string `gorm:"not null;size:50" json:"platform"`
	Name     string `gorm:"size:200" json:"name"`

	AccessToken string `gorm:"size:2000" json:"-"`
	BlogName    string `gorm:"size:200" json:"blog_name,omitempty"`
	BlogRefID   string `gorm:"size:200" json:"blog_ref_id,omitempty"`
	BaseURL     string `gorm:"size:1000" json:"base_url,omitempty"`
	Username    string `gorm:"size:200" json:"username,omitempty"`

	Enabled   bool           `gorm:"default:true" json:"enabled"`
	CreatedAt time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}
