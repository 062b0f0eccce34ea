// Package auth owns the session credential lifecycle: issuing the
// access/refresh pair on login, rotating refresh tokens, and detecting
// reuse of an already-rotated token, which is treated as theft and burns
// every session of the account.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"github.com/charleshuang3/runfuel/internal/gormw"
	"github.com/charleshuang3/runfuel/internal/models"
	"github.com/charleshuang3/runfuel/internal/storage"
	"github.com/charleshuang3/runfuel/internal/tokens"
)

var (
	logger = log.With().Str("component", "auth").Logger()

	// sentinel inside the rotation transaction: the conditional revoke
	// found the record already revoked.
	errRotationLost = errors.New("rotation lost")
)

type Service struct {
	db    *gormw.DB
	codec *tokens.Codec
}

func NewService(db *gormw.DB, codec *tokens.Codec) *Service {
	return &Service{
		db:    db,
		codec: codec,
	}
}

// Register creates a user. Duplicate emails get ErrConflict; unlike the
// 401 paths this one is safe to surface distinctly.
func (s *Service) Register(email, password string) (*models.User, error) {
	_, err := storage.GetUserByEmail(s.db, email)
	if err == nil {
		return nil, fmt.Errorf("%w: email already registered", ErrConflict)
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		logger.Error().Err(err).Msg("Database error checking email existence")
		return nil, fmt.Errorf("%w: %v", ErrInternal, err)
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInternal, err)
	}

	user := &models.User{
		Email:        email,
		PasswordHash: string(hashed),
	}
	if err := storage.CreateUser(s.db, user); err != nil {
		logger.Error().Err(err).Msg("Failed to create user")
		return nil, fmt.Errorf("%w: %v", ErrInternal, err)
	}

	return user, nil
}

// Login verifies credentials and opens a new refresh chain. Returns the
// user, a signed access token and the raw refresh secret; the secret is
// never stored and never reproducible.
func (s *Service) Login(email, password string) (*models.User, string, string, error) {
	user, err := storage.GetUserByEmail(s.db, email)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			// Generic message for security reasons
			return nil, "", "", fmt.Errorf("%w: invalid email or password", ErrUnauthorized)
		}
		logger.Error().Err(err).Msg("Database error during login")
		return nil, "", "", fmt.Errorf("%w: %v", ErrInternal, err)
	}

	if !user.CheckPassword(password) {
		return nil, "", "", fmt.Errorf("%w: invalid email or password", ErrUnauthorized)
	}

	if !user.IsActive {
		return nil, "", "", fmt.Errorf("%w: account is deactivated", ErrUnauthorized)
	}

	accessToken, err := s.codec.IssueAccessToken(user.ID)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to sign access token")
		return nil, "", "", fmt.Errorf("%w: %v", ErrInternal, err)
	}

	rawRefresh, digest := tokens.MintRefreshSecret()
	record := &models.RefreshToken{
		UserID:    user.ID,
		TokenHash: digest,
		ExpiresAt: time.Now().Add(s.codec.RefreshTokenTTL()),
	}
	if err := storage.AddRefreshToken(s.db, record); err != nil {
		logger.Error().Err(err).Msg("Failed to store refresh token")
		return nil, "", "", fmt.Errorf("%w: %v", ErrInternal, err)
	}

	return user, accessToken, rawRefresh, nil
}

// Rotate exchanges a refresh secret for a fresh access/refresh pair and
// invalidates the old secret.
//
// Presenting a secret whose record is already revoked is the compromise
// signal: every refresh token of the owning user is revoked before the
// call fails, no matter how many generations back the presented record
// sits. Losing the conditional revoke to a concurrent rotation of the
// same record is handled the same way, so a true double-spend also burns
// the account.
func (s *Service) Rotate(rawRefresh string) (string, string, error) {
	digest := tokens.HashRefreshSecret(rawRefresh)

	record, err := s.findRefreshToken(digest)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", "", fmt.Errorf("%w: invalid refresh token", ErrUnauthorized)
		}
		logger.Error().Err(err).Msg("Database error during rotation lookup")
		return "", "", fmt.Errorf("%w: %v", ErrInternal, err)
	}

	if record.IsRevoked {
		return "", "", s.cascadeOnReuse(record.UserID)
	}

	if time.Now().After(record.ExpiresAt) {
		// Normal expiry is not a compromise signal, no cascade.
		return "", "", fmt.Errorf("%w: refresh token expired", ErrUnauthorized)
	}

	// Sign before the transaction; pure computation, and a signing
	// failure then costs nothing.
	accessToken, err := s.codec.IssueAccessToken(record.UserID)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to sign access token")
		return "", "", fmt.Errorf("%w: %v", ErrInternal, err)
	}

	newRaw, newDigest := tokens.MintRefreshSecret()

	// Revoke, insert the child and link it in one transaction: either the
	// chain advances by exactly one record or the caller gets an error.
	err = s.db.Transaction(func(tx *gorm.DB) error {
		txdb := &gormw.DB{DB: tx}

		won, err := storage.RevokeRefreshToken(txdb, record.ID)
		if err != nil {
			return err
		}
		if !won {
			return errRotationLost
		}

		child := &models.RefreshToken{
			UserID:    record.UserID,
			TokenHash: newDigest,
			ExpiresAt: time.Now().Add(s.codec.RefreshTokenTTL()),
		}
		if err := storage.AddRefreshToken(txdb, child); err != nil {
			return err
		}

		return storage.LinkReplacement(txdb, record.ID, child.ID)
	})

	if errors.Is(err, errRotationLost) {
		return "", "", s.cascadeOnReuse(record.UserID)
	}
	if err != nil {
		// Never retried: the revoke may have committed, and a second
		// attempt with the same secret would read as reuse. Fails closed.
		logger.Error().Err(err).Msg("Rotation transaction failed")
		return "", "", fmt.Errorf("%w: %v", ErrInternal, err)
	}

	return accessToken, newRaw, nil
}

// Logout revokes the presented refresh token if it belongs to the user.
// Unknown or foreign tokens are a no-op, a 200 must not reveal whether a
// token exists.
func (s *Service) Logout(userID, rawRefresh string) error {
	digest := tokens.HashRefreshSecret(rawRefresh)

	record, err := storage.GetRefreshTokenByHashForUser(s.db, digest, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil
		}
		logger.Error().Err(err).Msg("Database error during logout")
		return fmt.Errorf("%w: %v", ErrInternal, err)
	}

	// Already-revoked is fine here; logout is idempotent.
	if _, err := storage.RevokeRefreshToken(s.db, record.ID); err != nil {
		logger.Error().Err(err).Msg("Failed to revoke refresh token on logout")
		return fmt.Errorf("%w: %v", ErrInternal, err)
	}

	return nil
}

// RevokeAllSessions is the incident-response primitive: every refresh
// token of the user dies, active access tokens run out on their own.
func (s *Service) RevokeAllSessions(userID string) error {
	if err := storage.RevokeAllRefreshTokensForUser(s.db, userID); err != nil {
		logger.Error().Err(err).Msg("Failed to revoke all sessions")
		return fmt.Errorf("%w: %v", ErrInternal, err)
	}
	return nil
}

func (s *Service) cascadeOnReuse(userID string) error {
	logger.Error().Str("user_id", userID).Msg("Refresh token reuse detected, revoking all sessions")
	if err := storage.RevokeAllRefreshTokensForUser(s.db, userID); err != nil {
		// The cascade must not be skipped silently; surface the store
		// failure instead of the reuse error.
		logger.Error().Err(err).Msg("Cascade revoke failed")
		return fmt.Errorf("%w: %v", ErrInternal, err)
	}
	return fmt.Errorf("%w: token reuse detected, all sessions revoked", ErrUnauthorized)
}

// findRefreshToken retries the lookup once on a transient store error.
// Only this read path retries; the rotation write never does.
func (s *Service) findRefreshToken(digest string) (*models.RefreshToken, error) {
	record, err := storage.GetRefreshTokenByHash(s.db, digest)
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		record, err = storage.GetRefreshTokenByHash(s.db, digest)
	}
	return record, err
}
