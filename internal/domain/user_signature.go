package domain

import "time"

// UserSignature is a reusable signature image saved for a user across
// sessions. At most one row may exist per user; replacing it requires an
// explicit override from the signer.
type UserSignature struct {
	ID              string    `gorm:"primaryKey;size:36" json:"id"`
	UserID          string    `gorm:"size:100;uniqueIndex;not null" json:"user_id"`
	SignatureBase64 string    `gorm:"type:text;not null" json:"signature_base64"`
	IsDefault       bool      `gorm:"not null;default:false" json:"is_default"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}
