package authapi

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	gormlog "gorm.io/gorm/logger"

	"github.com/charleshuang3/runfuel/internal/auth"
	"github.com/charleshuang3/runfuel/internal/gormw"
	"github.com/charleshuang3/runfuel/internal/handlers/ratelimit"
	"github.com/charleshuang3/runfuel/internal/tokens"
	"github.com/charleshuang3/runfuel/testdata"
)

func setupTestHandlers(t *testing.T) (*Handlers, *gormw.DB, *gin.Engine) {
	t.Helper()

	database, err := gormw.Open(&gormw.Config{
		LogLevel:     gormlog.Silent,
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
	service := auth.NewService(database, codec)
	limiter := ratelimit.NewLimiter(&ratelimit.Config{Disabled: true})

	h := New(service, codec, limiter)

	gin.SetMode(gin.TestMode)
	router := gin.New()
	h.RegisterHandlers(router.Group("/"))

	return h, database, router
}

func postJSON(t *testing.T, router *gin.Engine, path, bearer string, body any) *httptest.ResponseRecorder {
	t.Helper()

	data, err := json.Marshal(body)
	require.NoError(t, err)

	req, err := http.NewRequest(http.MethodPost, path, bytes.NewReader(data))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func decodeTokens(t *testing.T, rec *httptest.ResponseRecorder) (string, string) {
	t.Helper()

	var resp struct {
		AccessToken  string `json:"access_token"`
		RefreshToken string `json:"refresh_token"`
		TokenType    string `json:"token_type"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, "bearer", resp.TokenType)
	require.NotEmpty(t, resp.AccessToken)
	require.NotEmpty(t, resp.RefreshToken)
	return resp.AccessToken, resp.RefreshToken
}

func registerTestUser(t *testing.T, router *gin.Engine, email string) (string, string) {
	t.Helper()

	rec := postJSON(t, router, "/auth/register", "", gin.H{
		"email":    email,
		"password": "Password1!",
	})
	require.Equal(t, http.StatusOK, rec.Code, "Registration failed: %s", rec.Body.String())
	return decodeTokens(t, rec)
}

func TestHandleRegister(t *testing.T) {
	_, _, router := setupTestHandlers(t)

	access, refresh := registerTestUser(t, router, "runner@example.com")
	assert.NotEmpty(t, access)
	assert.NotEmpty(t, refresh)
}

func TestHandleRegister_DuplicateEmail(t *testing.T) {
	_, _, router := setupTestHandlers(t)

	registerTestUser(t, router, "runner@example.com")

	rec := postJSON(t, router, "/auth/register", "", gin.H{
		"email":    "runner@example.com",
		"password": "Password1!",
	})
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestHandleRegister_Validation(t *testing.T) {
	_, _, router := setupTestHandlers(t)

	rec := postJSON(t, router, "/auth/register", "", gin.H{
		"email":    "not-an-email",
		"password": "Password1!",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = postJSON(t, router, "/auth/register", "", gin.H{
		"email":    "runner@example.com",
		"password": "weak",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleLogin(t *testing.T) {
	_, _, router := setupTestHandlers(t)

	registerTestUser(t, router, "runner@example.com")

	rec := postJSON(t, router, "/auth/login", "", gin.H{
		"email":    "runner@example.com",
		"password": "Password1!",
	})
	require.Equal(t, http.StatusOK, rec.Code)
	decodeTokens(t, rec)
}

func TestHandleLogin_BadCredentials(t *testing.T) {
	_, _, router := setupTestHandlers(t)

	registerTestUser(t, router, "runner@example.com")

	rec := postJSON(t, router, "/auth/login", "", gin.H{
		"email":    "runner@example.com",
		"password": "wrongpassword",
	})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	// Generic body; no hint which check failed.
	assert.JSONEq(t, `{"error": "Unauthorized"}`, rec.Body.String())

	rec = postJSON(t, router, "/auth/login", "", gin.H{
		"email":    "nobody@example.com",
		"password": "Password1!",
	})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.JSONEq(t, `{"error": "Unauthorized"}`, rec.Body.String())
}

// login -> refresh -> refresh again with the first secret: the reuse is
// rejected and the pair from the first rotation dies with it.
func TestHandleRefresh_ReuseBurnsSessions(t *testing.T) {
	_, _, router := setupTestHandlers(t)

	_, firstRefresh := registerTestUser(t, router, "runner@example.com")

	rec := postJSON(t, router, "/auth/refresh", "", gin.H{"refresh_token": firstRefresh})
	require.Equal(t, http.StatusOK, rec.Code)
	_, secondRefresh := decodeTokens(t, rec)
	assert.NotEqual(t, firstRefresh, secondRefresh)

	rec = postJSON(t, router, "/auth/refresh", "", gin.H{"refresh_token": firstRefresh})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = postJSON(t, router, "/auth/refresh", "", gin.H{"refresh_token": secondRefresh})
	assert.Equal(t, http.StatusUnauthorized, rec.Code,
		"The second refresh token must be rejected after the reuse cascade")
}

func TestHandleLogout(t *testing.T) {
	_, _, router := setupTestHandlers(t)

	access, refresh := registerTestUser(t, router, "runner@example.com")

	rec := postJSON(t, router, "/auth/logout", access, gin.H{"refresh_token": refresh})
	assert.Equal(t, http.StatusOK, rec.Code)

	// The revoked secret is now dead for rotation.
	rec = postJSON(t, router, "/auth/refresh", "", gin.H{"refresh_token": refresh})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestHandleLogout_UnknownTokenIsOK(t *testing.T) {
	_, _, router := setupTestHandlers(t)

	access, _ := registerTestUser(t, router, "runner@example.com")

	rec := postJSON(t, router, "/auth/logout", access, gin.H{"refresh_token": "no-such-secret"})
	assert.Equal(t, http.StatusOK, rec.Code, "Logout must not reveal whether a token exists")
}

func TestHandleLogout_RequiresAccessToken(t *testing.T) {
	_, _, router := setupTestHandlers(t)

	_, refresh := registerTestUser(t, router, "runner@example.com")

	rec := postJSON(t, router, "/auth/logout", "", gin.H{"refresh_token": refresh})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}
