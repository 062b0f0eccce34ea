// Package foodapi serves the manual food log. Photo-based AI analysis is
// a separate service and not part of this backend.
package foodapi

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/charleshuang3/runfuel/internal/gormw"
	"github.com/charleshuang3/runfuel/internal/handlers/authapi"
	"github.com/charleshuang3/runfuel/internal/models"
	"github.com/charleshuang3/runfuel/internal/storage"
)

var (
	logger = log.With().Str("component", "foodapi").Logger()
)

type Handlers struct {
	db *gormw.DB
}

func New(db *gormw.DB) *Handlers {
	return &Handlers{db: db}
}

func (h *Handlers) RegisterHandlers(rg *gin.RouterGroup, requireAuth gin.HandlerFunc) {
	foodRoutes := rg.Group("/food", requireAuth)
	{
		foodRoutes.POST("/entries", h.handleAddEntry)
		foodRoutes.GET("/entries", h.handleListEntries)
		foodRoutes.DELETE("/entries/:id", h.handleDeleteEntry)
		foodRoutes.GET("/summary", h.handleDailySummary)
	}
}

type entryResponse struct {
	ID        string  `json:"id"`
	Name      string  `json:"name"`
	EntryDate string  `json:"entry_date"`
	Kcal      float64 `json:"kcal"`
	ProteinG  float64 `json:"protein_g"`
	CarbsG    float64 `json:"carbs_g"`
	FatG      float64 `json:"fat_g"`
}

func entryToResponse(e *models.FoodEntry) *entryResponse {
	return &entryResponse{
		ID:        e.ID,
		Name:      e.Name,
		EntryDate: e.EntryDate,
		Kcal:      e.Kcal,
		ProteinG:  e.ProteinG,
		CarbsG:    e.CarbsG,
		FatG:      e.FatG,
	}
}

type handleAddEntryParams struct {
	Name      string  `json:"name" binding:"required"`
	EntryDate string  `json:"entry_date" binding:"required"`
	Kcal      float64 `json:"kcal" binding:"required,gte=0"`
	ProteinG  float64 `json:"protein_g" binding:"gte=0"`
	CarbsG    float64 `json:"carbs_g" binding:"gte=0"`
	FatG      float64 `json:"fat_g" binding:"gte=0"`
}

func (h *Handlers) handleAddEntry(c *gin.Context) {
	params := &handleAddEntryParams{}

	if err := c.ShouldBindJSON(params); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing or invalid parameters"})
		return
	}

	if _, err := time.Parse("2006-01-02", params.EntryDate); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "entry_date must be YYYY-MM-DD"})
		return
	}

	entry := &models.FoodEntry{
		UserID:    authapi.UserID(c),
		Name:      params.Name,
		EntryDate: params.EntryDate,
		Kcal:      params.Kcal,
		ProteinG:  params.ProteinG,
		CarbsG:    params.CarbsG,
		FatG:      params.FatG,
	}

	if err := storage.AddFoodEntry(h.db, entry); err != nil {
		logger.Error().Err(err).Msg("Failed to add food entry")
		c.JSON(http.StatusInternalServerError, gin.H{"error": http.StatusText(http.StatusInternalServerError)})
		return
	}

	c.JSON(http.StatusOK, entryToResponse(entry))
}

func (h *Handlers) handleListEntries(c *gin.Context) {
	date := c.Query("date")
	if _, err := time.Parse("2006-01-02", date); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "date must be YYYY-MM-DD"})
		return
	}

	entries, err := storage.ListFoodEntriesForDay(h.db, authapi.UserID(c), date)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to list food entries")
		c.JSON(http.StatusInternalServerError, gin.H{"error": http.StatusText(http.StatusInternalServerError)})
		return
	}

	resp := make([]*entryResponse, 0, len(entries))
	for i := range entries {
		resp = append(resp, entryToResponse(&entries[i]))
	}

	c.JSON(http.StatusOK, gin.H{"entries": resp})
}

func (h *Handlers) handleDeleteEntry(c *gin.Context) {
	entry, err := storage.GetFoodEntryByID(h.db, c.Param("id"))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Entry not found"})
			return
		}
		logger.Error().Err(err).Msg("Failed to fetch food entry")
		c.JSON(http.StatusInternalServerError, gin.H{"error": http.StatusText(http.StatusInternalServerError)})
		return
	}

	// Foreign entries look the same as missing ones.
	if entry.UserID != authapi.UserID(c) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Entry not found"})
		return
	}

	if err := storage.DeleteFoodEntry(h.db, entry.ID); err != nil {
		logger.Error().Err(err).Msg("Failed to delete food entry")
		c.JSON(http.StatusInternalServerError, gin.H{"error": http.StatusText(http.StatusInternalServerError)})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Entry deleted"})
}

type dailySummaryResponse struct {
	Date            string  `json:"date"`
	TotalKcal       float64 `json:"total_kcal"`
	TotalProteinG   float64 `json:"total_protein_g"`
	TotalCarbsG     float64 `json:"total_carbs_g"`
	TotalFatG       float64 `json:"total_fat_g"`
	DailyTargetKcal float64 `json:"daily_target_kcal"`
	RemainingKcal   float64 `json:"remaining_kcal"`
	EntryCount      int     `json:"entry_count"`
}

func (h *Handlers) handleDailySummary(c *gin.Context) {
	date := c.Query("date")
	if _, err := time.Parse("2006-01-02", date); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "date must be YYYY-MM-DD"})
		return
	}

	userID := authapi.UserID(c)

	entries, err := storage.ListFoodEntriesForDay(h.db, userID, date)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to list food entries")
		c.JSON(http.StatusInternalServerError, gin.H{"error": http.StatusText(http.StatusInternalServerError)})
		return
	}

	resp := &dailySummaryResponse{
		Date:       date,
		EntryCount: len(entries),
	}
	for _, e := range entries {
		resp.TotalKcal += e.Kcal
		resp.TotalProteinG += e.ProteinG
		resp.TotalCarbsG += e.CarbsG
		resp.TotalFatG += e.FatG
	}

	// Target comes from the profile when onboarding is done; zero
	// otherwise, the client treats that as "no target set".
	profile, err := storage.GetProfileByUserID(h.db, userID)
	if err == nil {
		resp.DailyTargetKcal = profile.DailyTargetKcal
		resp.RemainingKcal = profile.DailyTargetKcal - resp.TotalKcal
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		logger.Error().Err(err).Msg("Failed to fetch profile for summary")
		c.JSON(http.StatusInternalServerError, gin.H{"error": http.StatusText(http.StatusInternalServerError)})
		return
	}

	c.JSON(http.StatusOK, resp)
}
