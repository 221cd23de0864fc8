package domain

import (
	"errors"
	"strings"
	"time"

	"gorm.io/gorm"
)

type Role string

var ErrInvalidRole = errors.New("invalid role")

const (
	RoleUser          Role = "user"
	RoleAdministrator Role = "administrator"
	RoleGod           Role = "god"
)

func (r Role) Valid() bool {
	switch r {
	case RoleUser, RoleAdministrator, RoleGod:
		return true
	default:
		return false
	}
}

type User struct {
	ID            uint           `gorm:"primaryKey" json:"id"`
	Email         string         `gorm:"size:320;uniqueIndex;not null" json:"email"`
	Name          string         `gorm:"size:120" json:"name"`
	PasswordHash  string         `gorm:"size:255;not null" json:"-"`
	Role          Role           `gorm:"size:32;not null;default:user" json:"role"`
	Preferences   map[string]any `gorm:"serializer:json" json:"preferences,omitempty"`
	InactivatedAt *time.Time     `gorm:"index" json:"inactivated_at,omitempty"`
	CreatedAt     time.Time      `json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
	DeletedAt     gorm.DeletedAt `gorm:"index" json:"-"`
}

// BeforeCreate defaults an empty role to user and rejects unknown roles.
func (u *User) BeforeCreate(*gorm.DB) error {
	if u.Role == "" {
		u.Role = RoleUser
	}
	if !u.Role.Valid() {
		return ErrInvalidRole
	}
	return nil
}

// IsActive is false once the account was inactivated; soft-deleted rows are
// never loaded by the repositories.
func (u *User) IsActive() bool {
	return u.InactivatedAt == nil && !u.DeletedAt.Valid
}

// NormalizeEmail is applied before every lookup or write keyed by email.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
