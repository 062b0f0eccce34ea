// Package userapi serves the account and profile endpoints.
package userapi

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/charleshuang3/runfuel/internal/auth"
	"github.com/charleshuang3/runfuel/internal/calories"
	"github.com/charleshuang3/runfuel/internal/gormw"
	"github.com/charleshuang3/runfuel/internal/handlers/authapi"
	"github.com/charleshuang3/runfuel/internal/models"
	"github.com/charleshuang3/runfuel/internal/storage"
)

var (
	logger = log.With().Str("component", "userapi").Logger()
)

type Handlers struct {
	db      *gormw.DB
	service *auth.Service
}

func New(db *gormw.DB, service *auth.Service) *Handlers {
	return &Handlers{
		db:      db,
		service: service,
	}
}

// RegisterHandlers mounts the routes; every one of them requires a valid
// access token.
func (h *Handlers) RegisterHandlers(rg *gin.RouterGroup, requireAuth gin.HandlerFunc) {
	userRoutes := rg.Group("/users", requireAuth)
	{
		userRoutes.GET("/me", h.handleGetMe)
		userRoutes.PUT("/me/profile", h.handlePutProfile)
		userRoutes.PUT("/me/goal", h.handlePutGoal)
		userRoutes.DELETE("/me", h.handleDeactivate)
	}
}

type profileResponse struct {
	Age               int     `json:"age"`
	Gender            string  `json:"gender"`
	HeightCM          float64 `json:"height_cm"`
	WeightKG          float64 `json:"weight_kg"`
	RunningFrequency  string  `json:"running_frequency"`
	TrainingIntensity string  `json:"training_intensity"`
	Goal              string  `json:"goal"`
	BMR               float64 `json:"bmr"`
	TDEE              float64 `json:"tdee"`
	DailyTargetKcal   float64 `json:"daily_target_kcal"`
}

type userResponse struct {
	ID         string           `json:"id"`
	Email      string           `json:"email"`
	IsActive   bool             `json:"is_active"`
	IsVerified bool             `json:"is_verified"`
	CreatedAt  time.Time        `json:"created_at"`
	Profile    *profileResponse `json:"profile"`
}

func profileToResponse(p *models.UserProfile) *profileResponse {
	return &profileResponse{
		Age:               p.Age,
		Gender:            p.Gender,
		HeightCM:          p.HeightCM,
		WeightKG:          p.WeightKG,
		RunningFrequency:  p.RunningFrequency,
		TrainingIntensity: p.TrainingIntensity,
		Goal:              p.Goal,
		BMR:               p.BMR,
		TDEE:              p.TDEE,
		DailyTargetKcal:   p.DailyTargetKcal,
	}
}

func (h *Handlers) handleGetMe(c *gin.Context) {
	user, err := storage.GetUserByID(h.db, authapi.UserID(c))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "User not found"})
			return
		}
		logger.Error().Err(err).Msg("Database error fetching user")
		c.JSON(http.StatusInternalServerError, gin.H{"error": http.StatusText(http.StatusInternalServerError)})
		return
	}

	resp := &userResponse{
		ID:         user.ID,
		Email:      user.Email,
		IsActive:   user.IsActive,
		IsVerified: user.IsVerified,
		CreatedAt:  user.CreatedAt,
	}

	profile, err := storage.GetProfileByUserID(h.db, user.ID)
	if err == nil {
		resp.Profile = profileToResponse(profile)
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		logger.Error().Err(err).Msg("Database error fetching profile")
		c.JSON(http.StatusInternalServerError, gin.H{"error": http.StatusText(http.StatusInternalServerError)})
		return
	}

	c.JSON(http.StatusOK, resp)
}

type handlePutProfileParams struct {
	Age               int     `json:"age" binding:"required,gte=13,lte=120"`
	Gender            string  `json:"gender" binding:"required"`
	HeightCM          float64 `json:"height_cm" binding:"required,gt=0"`
	WeightKG          float64 `json:"weight_kg" binding:"required,gt=0"`
	RunningFrequency  string  `json:"running_frequency" binding:"required"`
	TrainingIntensity string  `json:"training_intensity" binding:"required"`
	Goal              string  `json:"goal" binding:"required"`
}

func (p *handlePutProfileParams) validateEnums() bool {
	return calories.Genders.Contains(p.Gender) &&
		calories.Frequencies.Contains(p.RunningFrequency) &&
		calories.Intensities.Contains(p.TrainingIntensity) &&
		calories.Goals.Contains(p.Goal)
}

// handlePutProfile creates or replaces the profile and recomputes the
// calorie targets.
func (h *Handlers) handlePutProfile(c *gin.Context) {
	params := &handlePutProfileParams{}

	if err := c.ShouldBindJSON(params); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing or invalid parameters"})
		return
	}

	if !params.validateEnums() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid profile value"})
		return
	}

	userID := authapi.UserID(c)

	bmr := calories.BMR(params.Gender, params.WeightKG, params.HeightCM, params.Age)
	tdee := calories.TDEE(bmr, params.RunningFrequency, params.TrainingIntensity)
	target := calories.DailyTarget(tdee, params.Goal, params.Gender, false, 0)

	profile, err := storage.GetProfileByUserID(h.db, userID)
	if err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			logger.Error().Err(err).Msg("Database error fetching profile")
			c.JSON(http.StatusInternalServerError, gin.H{"error": http.StatusText(http.StatusInternalServerError)})
			return
		}
		profile = &models.UserProfile{UserID: userID}
	}

	profile.Age = params.Age
	profile.Gender = params.Gender
	profile.HeightCM = params.HeightCM
	profile.WeightKG = params.WeightKG
	profile.RunningFrequency = params.RunningFrequency
	profile.TrainingIntensity = params.TrainingIntensity
	profile.Goal = params.Goal
	profile.BMR = bmr.InexactFloat64()
	profile.TDEE = tdee.InexactFloat64()
	profile.DailyTargetKcal = target.InexactFloat64()

	if profile.ID == "" {
		err = storage.CreateProfile(h.db, profile)
	} else {
		err = storage.UpdateProfile(h.db, profile)
	}
	if err != nil {
		logger.Error().Err(err).Msg("Failed to save profile")
		c.JSON(http.StatusInternalServerError, gin.H{"error": http.StatusText(http.StatusInternalServerError)})
		return
	}

	c.JSON(http.StatusOK, profileToResponse(profile))
}

type handlePutGoalParams struct {
	Goal string `json:"goal" binding:"required"`
}

func (h *Handlers) handlePutGoal(c *gin.Context) {
	params := &handlePutGoalParams{}

	if err := c.ShouldBindJSON(params); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing required parameters"})
		return
	}

	if !calories.Goals.Contains(params.Goal) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid goal"})
		return
	}

	profile, err := storage.GetProfileByUserID(h.db, authapi.UserID(c))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Profile not found. Complete onboarding first."})
			return
		}
		logger.Error().Err(err).Msg("Database error fetching profile")
		c.JSON(http.StatusInternalServerError, gin.H{"error": http.StatusText(http.StatusInternalServerError)})
		return
	}

	profile.Goal = params.Goal
	tdee := decimal.NewFromFloat(profile.TDEE)
	profile.DailyTargetKcal = calories.DailyTarget(tdee, params.Goal, profile.Gender, false, 0).InexactFloat64()

	if err := storage.UpdateProfile(h.db, profile); err != nil {
		logger.Error().Err(err).Msg("Failed to update goal")
		c.JSON(http.StatusInternalServerError, gin.H{"error": http.StatusText(http.StatusInternalServerError)})
		return
	}

	c.JSON(http.StatusOK, profileToResponse(profile))
}

// handleDeactivate flags the account inactive and kills every session;
// outstanding access tokens simply age out.
func (h *Handlers) handleDeactivate(c *gin.Context) {
	userID := authapi.UserID(c)

	if err := storage.DeactivateUser(h.db, userID); err != nil {
		logger.Error().Err(err).Msg("Failed to deactivate user")
		c.JSON(http.StatusInternalServerError, gin.H{"error": http.StatusText(http.StatusInternalServerError)})
		return
	}

	if err := h.service.RevokeAllSessions(userID); err != nil {
		logger.Error().Err(err).Msg("Failed to revoke sessions on deactivation")
		c.JSON(http.StatusInternalServerError, gin.H{"error": http.StatusText(http.StatusInternalServerError)})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Account deactivated"})
}
