package domain

import "time"

// SignStatus is the lifecycle state of a signing session. Transitions are
// monotonic: unscanned -> scanned -> signed; expired is reachable from
// unscanned or scanned only.
type SignStatus string

const (
	StatusUnscanned SignStatus = "unscanned"
	StatusScanned   SignStatus = "scanned"
	StatusSigned    SignStatus = "signed"
	StatusExpired   SignStatus = "expired"
)

func (s SignStatus) Terminal() bool {
	return s == StatusSigned || s == StatusExpired
}

// CanTransitionTo reports whether next is a legal forward transition from s.
func (s SignStatus) CanTransitionTo(next SignStatus) bool {
	switch s {
	case StatusUnscanned:
		return next == StatusScanned || next == StatusSigned || next == StatusExpired
	case StatusScanned:
		return next == StatusSigned || next == StatusExpired
	default:
		return false
	}
}

type SignSession struct {
	ID               string     `gorm:"primaryKey;size:36" json:"session_ref"`
	ProjectID        string     `gorm:"size:100;index:idx_sign_sessions_scope" json:"project_id"`
	UserID           string     `gorm:"size:100;index:idx_sign_sessions_scope;index" json:"user_id"`
	FileID           string     `gorm:"size:100;index:idx_sign_sessions_scope" json:"file_id"`
	MetaCode         string     `gorm:"size:256" json:"meta_code"`
	Status           SignStatus `gorm:"size:16;not null;index" json:"status"`
	SignatureBase64  string     `gorm:"type:text" json:"signature_base64,omitempty"`
	Sequence         int        `gorm:"not null" json:"sequence"`
	ArchiveObjectKey string     `gorm:"size:512" json:"-"`
	ExpiresAt        time.Time  `gorm:"index;not null" json:"expires_at"`
	SignedAt         *time.Time `json:"signed_at,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

// ExpiredAt reports whether the session should be treated as expired at the
// given instant. A signed session never expires.
func (s *SignSession) ExpiredAt(now time.Time) bool {
	if s.Status == StatusExpired {
		return true
	}
	if s.Status.Terminal() {
		return false
	}
	return now.After(s.ExpiresAt)
}
