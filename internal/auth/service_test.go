package auth

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	gormlog "gorm.io/gorm/logger"

	"github.com/charleshuang3/runfuel/internal/gormw"
	"github.com/charleshuang3/runfuel/internal/models"
	"github.com/charleshuang3/runfuel/internal/storage"
	"github.com/charleshuang3/runfuel/internal/tokens"
	"github.com/charleshuang3/runfuel/testdata"
)

func setupTestService(t *testing.T) (*Service, *gormw.DB, *tokens.Codec) {
	t.Helper()

	database, err := gormw.Open(&gormw.Config{
		LogLevel: gormlog.Silent,
		// A single connection serializes the in-memory sqlite under the
		// concurrency tests.
		MaxOpenConns: 1,
	})
	require.NoError(t, err)

	err = database.Migrate()
	require.NoError(t, err)

	codec := tokens.NewCodec(&tokens.Config{
		PrivateKeyPEM:         testdata.PrivateKeyPEM,
		Issuer:                "http://localhost:8080",
		AccessTokenTTLMinutes: 15,
		RefreshTokenTTLDays:   7,
	})

	return NewService(database, codec), database, codec
}

func registerAndLogin(t *testing.T, s *Service, email string) (*models.User, string, string) {
	t.Helper()

	_, err := s.Register(email, "Password1!")
	require.NoError(t, err, "Expected registration to succeed")

	user, access, refresh, err := s.Login(email, "Password1!")
	require.NoError(t, err, "Expected login to succeed")
	require.NotEmpty(t, access)
	require.NotEmpty(t, refresh)

	return user, access, refresh
}

func countActiveTokens(t *testing.T, db *gormw.DB, userID string) int {
	t.Helper()

	var n int64
	err := db.Model(&models.RefreshToken{}).
		Where("user_id = ? AND is_revoked = ? AND expires_at > ?", userID, false, time.Now()).
		Count(&n).Error
	require.NoError(t, err)
	return int(n)
}

func TestRegisterDuplicateEmail(t *testing.T) {
	s, _, _ := setupTestService(t)

	_, err := s.Register("runner@example.com", "Password1!")
	require.NoError(t, err)

	_, err = s.Register("runner@example.com", "OtherPassword1!")
	assert.ErrorIs(t, err, ErrConflict, "Expected duplicate registration to conflict")
}

func TestLoginBadCredentials(t *testing.T) {
	s, _, _ := setupTestService(t)

	_, err := s.Register("runner@example.com", "Password1!")
	require.NoError(t, err)

	_, _, _, err = s.Login("runner@example.com", "wrongpassword")
	assert.ErrorIs(t, err, ErrUnauthorized)

	_, _, _, err = s.Login("nobody@example.com", "Password1!")
	assert.ErrorIs(t, err, ErrUnauthorized, "Unknown email must fail the same way as a bad password")
}

func TestLoginDeactivatedAccount(t *testing.T) {
	s, db, _ := setupTestService(t)

	user, _, _ := registerAndLogin(t, s, "runner@example.com")

	require.NoError(t, storage.DeactivateUser(db, user.ID))

	_, _, _, err := s.Login("runner@example.com", "Password1!")
	assert.ErrorIs(t, err, ErrUnauthorized)
}

// Sequential rotations, each secret used exactly once: after every call
// the chain has exactly one live record and the consumed records are
// linked to their replacements.
func TestSequentialRotationKeepsSingleActiveTail(t *testing.T) {
	s, db, _ := setupTestService(t)

	user, _, refresh := registerAndLogin(t, s, "runner@example.com")
	assert.Equal(t, 1, countActiveTokens(t, db, user.ID))

	for i := 0; i < 5; i++ {
		access, next, err := s.Rotate(refresh)
		require.NoError(t, err, "Expected rotation %d to succeed", i)
		require.NotEmpty(t, access)
		require.NotEqual(t, refresh, next, "Rotation must mint a new secret")

		assert.Equal(t, 1, countActiveTokens(t, db, user.ID),
			"Expected exactly one active record after rotation %d", i)

		// The consumed record is terminal and points at its child.
		old, err := storage.GetRefreshTokenByHash(db, tokens.HashRefreshSecret(refresh))
		require.NoError(t, err)
		assert.True(t, old.IsRevoked)
		assert.NotEmpty(t, old.ReplacedBy)

		child, err := storage.GetRefreshTokenByHash(db, tokens.HashRefreshSecret(next))
		require.NoError(t, err)
		assert.Equal(t, child.ID, old.ReplacedBy)

		refresh = next
	}
}

// Chain A -> B -> C, then A is presented again: the rotation fails and C
// dies with it, late discovery of theft closes the whole family.
func TestReuseCascadeRevokesDescendants(t *testing.T) {
	s, db, _ := setupTestService(t)

	user, _, secretA := registerAndLogin(t, s, "runner@example.com")

	_, secretB, err := s.Rotate(secretA)
	require.NoError(t, err)
	_, secretC, err := s.Rotate(secretB)
	require.NoError(t, err)

	_, _, err = s.Rotate(secretA)
	assert.ErrorIs(t, err, ErrUnauthorized, "Reused secret must be rejected")

	assert.Equal(t, 0, countActiveTokens(t, db, user.ID), "Cascade must leave no live record")

	_, _, err = s.Rotate(secretC)
	assert.ErrorIs(t, err, ErrUnauthorized, "The active tail must be dead after the cascade")
}

// Expiry is not a compromise signal: no cascade, and other sessions of
// the same user keep working.
func TestExpiredTokenDoesNotCascade(t *testing.T) {
	s, db, _ := setupTestService(t)

	user, _, expiredSecret := registerAndLogin(t, s, "runner@example.com")

	// Second device.
	_, _, otherSecret, err := s.Login("runner@example.com", "Password1!")
	require.NoError(t, err)

	err = db.Model(&models.RefreshToken{}).
		Where("token_hash = ?", tokens.HashRefreshSecret(expiredSecret)).
		Update("expires_at", time.Now().Add(-time.Hour)).Error
	require.NoError(t, err)

	_, _, err = s.Rotate(expiredSecret)
	assert.ErrorIs(t, err, ErrUnauthorized)

	assert.Equal(t, 1, countActiveTokens(t, db, user.ID), "The sibling session must survive")

	_, _, err = s.Rotate(otherSecret)
	assert.NoError(t, err, "The sibling session must still rotate")

	// A fresh login for the same user still succeeds.
	_, _, _, err = s.Login("runner@example.com", "Password1!")
	assert.NoError(t, err)
}

// Concurrent double-spend of one secret: exactly one rotation wins, every
// other caller sees the reuse failure, and the store never holds two live
// descendants of the contested record.
func TestConcurrentRotationSingleWinner(t *testing.T) {
	s, db, _ := setupTestService(t)

	user, _, refresh := registerAndLogin(t, s, "runner@example.com")

	const n = 8
	var wg sync.WaitGroup
	wg.Add(n)

	results := make(chan error, n)
	for i := 0; i < n; i++ {
		go func() {
			defer wg.Done()
			_, _, err := s.Rotate(refresh)
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	success := 0
	fail := 0
	for err := range results {
		if err == nil {
			success++
			continue
		}
		if errors.Is(err, ErrUnauthorized) {
			fail++
			continue
		}
		t.Fatalf("unexpected rotation error: %v", err)
	}

	assert.Equal(t, 1, success, "Expected exactly one rotation to win")
	assert.Equal(t, n-1, fail, "Expected every other caller to be rejected")

	// The losers cascade, so the winner's child may be dead too; what can
	// never happen is two live descendants.
	assert.LessOrEqual(t, countActiveTokens(t, db, user.ID), 1)
}

// Revoking every refresh token must not invalidate an access token that
// is already out; access-token verification is pure crypto plus time.
func TestAccessTokenSurvivesSessionRevocation(t *testing.T) {
	s, _, codec := setupTestService(t)

	user, access, _ := registerAndLogin(t, s, "runner@example.com")

	require.NoError(t, s.RevokeAllSessions(user.ID))

	claims, err := codec.VerifyAccessToken(access)
	require.NoError(t, err, "Access token must verify without any store state")
	assert.Equal(t, user.ID, claims.UserID)
}

func TestLogoutRevokesToken(t *testing.T) {
	s, db, _ := setupTestService(t)

	user, _, refresh := registerAndLogin(t, s, "runner@example.com")

	require.NoError(t, s.Logout(user.ID, refresh))
	assert.Equal(t, 0, countActiveTokens(t, db, user.ID))

	record, err := storage.GetRefreshTokenByHash(db, tokens.HashRefreshSecret(refresh))
	require.NoError(t, err)
	assert.True(t, record.IsRevoked)
	assert.Empty(t, record.ReplacedBy, "Logout terminates the chain without a replacement")
}

func TestLogoutUnknownOrForeignTokenIsNoop(t *testing.T) {
	s, db, _ := setupTestService(t)

	alice, _, aliceSecret := registerAndLogin(t, s, "alice@example.com")
	bob, _, _ := registerAndLogin(t, s, "bob@example.com")

	assert.NoError(t, s.Logout(alice.ID, "not-a-real-secret"))

	// Bob presenting Alice's secret must not touch her session.
	assert.NoError(t, s.Logout(bob.ID, aliceSecret))
	assert.Equal(t, 1, countActiveTokens(t, db, alice.ID))
}

func TestRevokeAllSessions(t *testing.T) {
	s, db, _ := setupTestService(t)

	user, _, _ := registerAndLogin(t, s, "runner@example.com")
	_, _, _, err := s.Login("runner@example.com", "Password1!")
	require.NoError(t, err)
	require.Equal(t, 2, countActiveTokens(t, db, user.ID))

	require.NoError(t, s.RevokeAllSessions(user.ID))
	assert.Equal(t, 0, countActiveTokens(t, db, user.ID))
}

func TestRotateUnknownSecret(t *testing.T) {
	s, _, _ := setupTestService(t)

	_, _, err := s.Rotate("never-issued")
	assert.ErrorIs(t, err, ErrUnauthorized)
}
