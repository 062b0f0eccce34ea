package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// RefreshToken is one link in a rotation chain. Only the sha256 digest of
// the bearer secret is stored; the raw secret leaves the server exactly
// once, in the login or refresh response.
//
// IsRevoked goes false -> true exactly once. ReplacedBy points at the
// record minted by the rotation that revoked this one, and stays empty
// when the record was revoked by logout, expiry cleanup or a cascade.
type RefreshToken struct {
	ID         string `gorm:"type:varchar(36);primarykey"`
	UserID     string `gorm:"type:varchar(36);index"` // index, cascade revoke touches all rows of a user
	TokenHash  string `gorm:"type:varchar(64);uniqueIndex"`
	ExpiresAt  time.Time
	IsRevoked  bool   `gorm:"default:false"`
	ReplacedBy string `gorm:"type:varchar(36)"`
	CreatedAt  time.Time
}

func (t *RefreshToken) BeforeCreate(tx *gorm.DB) error {
	if t.ID == "" {
		t.ID = uuid.New().String()
	}
	return nil
}
