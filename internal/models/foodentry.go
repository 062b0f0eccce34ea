package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type FoodEntry struct {
	ID        string `gorm:"type:varchar(36);primarykey"`
	UserID    string `gorm:"type:varchar(36);index"`
	Name      string
	// EntryDate is the day the meal belongs to, "2006-01-02".
	EntryDate string `gorm:"type:varchar(10);index"`
	Kcal      float64
	ProteinG  float64
	CarbsG    float64
	FatG      float64
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (e *FoodEntry) BeforeCreate(tx *gorm.DB) error {
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	return nil
}
