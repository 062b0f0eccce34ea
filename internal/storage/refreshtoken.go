package storage

import (
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/rs/zerolog/log"

	"github.com/charleshuang3/runfuel/internal/gormw"
	"github.com/charleshuang3/runfuel/internal/models"
)

var (
	logger = log.With().Str("component", "storage").Logger()
)

func AddRefreshToken(db *gormw.DB, refreshToken *models.RefreshToken) error {
	return db.Create(refreshToken).Error
}

func GetRefreshTokenByHash(db *gormw.DB, tokenHash string) (*models.RefreshToken, error) {
	o := &models.RefreshToken{}
	err := db.Where("token_hash = ?", tokenHash).First(&o).Error
	return o, err
}

// GetRefreshTokenByHashForUser scopes the lookup to the owner, logout must
// not act on another user's token.
func GetRefreshTokenByHashForUser(db *gormw.DB, tokenHash, userID string) (*models.RefreshToken, error) {
	o := &models.RefreshToken{}
	err := db.Where("token_hash = ? AND user_id = ?", tokenHash, userID).First(&o).Error
	return o, err
}

// RevokeRefreshToken flips is_revoked with a conditional update. The bool
// reports whether this caller performed the transition; false means some
// concurrent caller already revoked the record.
func RevokeRefreshToken(db *gormw.DB, id string) (bool, error) {
	res := db.Model(&models.RefreshToken{}).
		Where("id = ? AND is_revoked = ?", id, false).
		Update("is_revoked", true)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// LinkReplacement records which token a rotation produced.
func LinkReplacement(db *gormw.DB, oldID, newID string) error {
	return db.Model(&models.RefreshToken{}).
		Where("id = ?", oldID).
		Update("replaced_by", newID).Error
}

// RevokeAllRefreshTokensForUser closes every session of the user,
// including tokens from other devices and already-rotated ancestors.
func RevokeAllRefreshTokensForUser(db *gormw.DB, userID string) error {
	return db.Model(&models.RefreshToken{}).
		Where("user_id = ?", userID).
		Update("is_revoked", true).Error
}

// Refresh tokens stay in the database for audit and reuse detection, so
// they pile up forever unless a cleaner is registered.
func RegisterRefreshTokensCleaner(scheduler gocron.Scheduler, db *gormw.DB) {
	_, _ = scheduler.NewJob(
		gocron.CronJob(
			// 4am Daily
			"0 4 * * *",
			false,
		),
		gocron.NewTask(
			func() {
				logger.Info().Msg("Cleaning up expired refresh tokens")
				yesterday := time.Now().AddDate(0, 0, -1)
				db.Where("expires_at < ?", yesterday).Delete(&models.RefreshToken{})
			},
		),
	)
}
