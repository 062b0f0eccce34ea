package storage

import (
	"github.com/charleshuang3/runfuel/internal/gormw"
	"github.com/charleshuang3/runfuel/internal/models"
)

func AddFoodEntry(db *gormw.DB, entry *models.FoodEntry) error {
	return db.Create(entry).Error
}

func GetFoodEntryByID(db *gormw.DB, id string) (*models.FoodEntry, error) {
	entry := &models.FoodEntry{}
	if err := db.Where("id = ?", id).First(&entry).Error; err != nil {
		return nil, err
	}
	return entry, nil
}

func ListFoodEntriesForDay(db *gormw.DB, userID, date string) ([]models.FoodEntry, error) {
	var entries []models.FoodEntry
	err := db.Where("user_id = ? AND entry_date = ?", userID, date).
		Order("created_at").
		Find(&entries).Error
	return entries, err
}

func DeleteFoodEntry(db *gormw.DB, id string) error {
	return db.Delete(&models.FoodEntry{}, "id = ?", id).Error
}
