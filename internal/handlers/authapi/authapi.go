// Package authapi exposes the session endpoints: register, login,
// refresh and logout.
package authapi

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/badoux/checkmail"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/charleshuang3/runfuel/internal/auth"
	"github.com/charleshuang3/runfuel/internal/handlers/ratelimit"
	"github.com/charleshuang3/runfuel/internal/tokens"
)

var (
	logger = log.With().Str("component", "authapi").Logger()
)

type Handlers struct {
	service *auth.Service
	codec   *tokens.Codec
	limiter *ratelimit.Limiter
}

func New(service *auth.Service, codec *tokens.Codec, limiter *ratelimit.Limiter) *Handlers {
	return &Handlers{
		service: service,
		codec:   codec,
		limiter: limiter,
	}
}

func (h *Handlers) RegisterHandlers(rg *gin.RouterGroup) {
	authRoutes := rg.Group("/auth")
	{
		authRoutes.POST("/register", h.limiter.Middleware("auth-register", 5, time.Minute), h.handleRegister)
		authRoutes.POST("/login", h.limiter.Middleware("auth-login", 10, time.Minute), h.handleLogin)
		authRoutes.POST("/refresh", h.limiter.Middleware("auth-refresh", 30, time.Minute), h.handleRefresh)
		authRoutes.POST("/logout", h.RequireAccessToken(), h.handleLogout)
	}
}

type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
}

// responseAuthFailure maps a service error to a response. Every
// unauthorized cause gets the same body; which check failed is for the
// logs, not the client.
func responseAuthFailure(c *gin.Context, err error) {
	switch {
	case errors.Is(err, auth.ErrConflict):
		c.JSON(http.StatusConflict, gin.H{"error": "email already registered"})
	case errors.Is(err, auth.ErrUnauthorized):
		c.JSON(http.StatusUnauthorized, gin.H{"error": http.StatusText(http.StatusUnauthorized)})
	default:
		logger.Error().Err(err).Msg("Auth request failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": http.StatusText(http.StatusInternalServerError)})
	}
}

type handleRegisterParams struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

func (h *Handlers) handleRegister(c *gin.Context) {
	params := &handleRegisterParams{}

	if err := c.ShouldBindJSON(params); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing required parameters"})
		return
	}

	if err := checkmail.ValidateFormat(params.Email); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid email format."})
		return
	}

	if err := validatePassword(params.Password); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if _, err := h.service.Register(params.Email, params.Password); err != nil {
		responseAuthFailure(c, err)
		return
	}

	// Registration logs the user straight in.
	_, accessToken, rawRefresh, err := h.service.Login(params.Email, params.Password)
	if err != nil {
		responseAuthFailure(c, err)
		return
	}

	c.JSON(http.StatusOK, &tokenResponse{
		AccessToken:  accessToken,
		RefreshToken: rawRefresh,
		TokenType:    "bearer",
	})
}

type handleLoginParams struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

func (h *Handlers) handleLogin(c *gin.Context) {
	params := &handleLoginParams{}

	if err := c.ShouldBindJSON(params); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing required parameters"})
		return
	}

	_, accessToken, rawRefresh, err := h.service.Login(params.Email, params.Password)
	if err != nil {
		responseAuthFailure(c, err)
		return
	}

	c.JSON(http.StatusOK, &tokenResponse{
		AccessToken:  accessToken,
		RefreshToken: rawRefresh,
		TokenType:    "bearer",
	})
}

type handleRefreshParams struct {
	RefreshToken string `json:"refresh_token" binding:"required"`
}

func (h *Handlers) handleRefresh(c *gin.Context) {
	params := &handleRefreshParams{}

	if err := c.ShouldBindJSON(params); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing required parameters"})
		return
	}

	accessToken, rawRefresh, err := h.service.Rotate(params.RefreshToken)
	if err != nil {
		responseAuthFailure(c, err)
		return
	}

	c.JSON(http.StatusOK, &tokenResponse{
		AccessToken:  accessToken,
		RefreshToken: rawRefresh,
		TokenType:    "bearer",
	})
}

type handleLogoutParams struct {
	RefreshToken string `json:"refresh_token" binding:"required"`
}

func (h *Handlers) handleLogout(c *gin.Context) {
	params := &handleLogoutParams{}

	if err := c.ShouldBindJSON(params); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing required parameters"})
		return
	}

	if err := h.service.Logout(UserID(c), params.RefreshToken); err != nil {
		responseAuthFailure(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Logged out successfully"})
}

const (
	allowedSpecialChars = `!@#$%^&*()_+\-=[]{};':"\|,.<>/?`
)

func validatePassword(password string) error {
	if len(password) < 8 {
		return errors.New("Password must be at least 8 characters long.")
	}

	hasNumber := false
	hasLower := false
	hasUpper := false

	for _, char := range password {
		if char >= '0' && char <= '9' {
			hasNumber = true
		} else if char >= 'a' && char <= 'z' {
			hasLower = true
		} else if char >= 'A' && char <= 'Z' {
			hasUpper = true
		} else if !strings.ContainsRune(allowedSpecialChars, char) {
			// Character is not in any of the allowed groups
			return errors.New("Password contains disallowed characters.")
		}
	}

	if !hasNumber {
		return errors.New("Password must contain at least one number.")
	}
	if !hasLower {
		return errors.New("Password must contain at least one lowercase letter.")
	}
	if !hasUpper {
		return errors.New("Password must contain at least one uppercase letter.")
	}

	return nil
}
