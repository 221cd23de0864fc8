package domain

import (
	"time"

	"gorm.io/gorm"
)

type PasswordReset struct {
	ID        uint       `gorm:"primaryKey" json:"id"`
	UserID    uint       `gorm:"index;not null" json:"user_id"`
	TokenHash string     `gorm:"size:128;uniqueIndex;not null" json:"-"`
	ExpiresAt time.Time  `gorm:"index;not null" json:"expires_at"`
	UsedAt    *time.Time `gorm:"index" json:"used_at,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
}

func (p *PasswordReset) BeforeCreate(*gorm.DB) error {
	p.ExpiresAt = p.ExpiresAt.UTC()
	return nil
}

func (p *PasswordReset) IsValid(now time.Time) bool {
	return p.UsedAt == nil && p.ExpiresAt.After(now)
}
