package domain

import (
	"time"

	"gorm.io/gorm"
)

type Session struct {
	ID            uint       `gorm:"primaryKey" json:"id"`
	UserID        uint       `gorm:"index;not null" json:"user_id"`
	TokenHash     string     `gorm:"size:128;uniqueIndex;not null" json:"-"`
	TokenID       string     `gorm:"size:64;uniqueIndex;not null" json:"-"`
	FamilyID      string     `gorm:"size:64;index;not null" json:"-"`
	ParentTokenID *string    `gorm:"size:64;index" json:"-"`
	UserAgent     string     `gorm:"size:512" json:"user_agent"`
	IP            string     `gorm:"size:64" json:"ip"`
	ExpiresAt     time.Time  `gorm:"index;not null" json:"expires_at"`
	Revoked       bool       `gorm:"index;not null;default:false" json:"revoked"`
	RevokedAt     *time.Time `json:"revoked_at,omitempty"`
	RevokedReason *string    `gorm:"size:64" json:"revoked_reason,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// BeforeCreate stores expiry in UTC; the repositories compare it against
// UTC clocks and sqlite keeps the zone offset in the stored text.
func (s *Session) BeforeCreate(*gorm.DB) error {
	s.ExpiresAt = s.ExpiresAt.UTC()
	return nil
}

// IsActive reports whether the session can still be renewed at now.
func (s *Session) IsActive(now time.Time) bool {
	return !s.Revoked && s.ExpiresAt.After(now)
}

// Revocation reasons recorded on sessions.
const (
	RevokeReasonRotated        = "rotated"
	RevokeReasonLogout         = "logout"
	RevokeReasonLogoutAll      = "logout_all"
	RevokeReasonUserRevoked    = "user_session_revoked"
	RevokeReasonPasswordReset  = "password_reset"
	RevokeReasonPasswordChange = "password_change"
	RevokeReasonAdminReset     = "admin_password_reset"
	RevokeReasonInactivated    = "account_inactivated"
)
