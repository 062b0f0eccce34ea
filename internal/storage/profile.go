package storage

import (
	"github.com/charleshuang3/runfuel/internal/gormw"
	"github.com/charleshuang3/runfuel/internal/models"
)

func GetProfileByUserID(db *gormw.DB, userID string) (*models.UserProfile, error) {
	profile := &models.UserProfile{}
	if err := db.Where("user_id = ?", userID).First(&profile).Error; err != nil {
		return nil, err
	}
	return profile, nil
}

func CreateProfile(db *gormw.DB, profile *models.UserProfile) error {
	return db.Create(profile).Error
}

func UpdateProfile(db *gormw.DB, profile *models.UserProfile) error {
	return db.Save(profile).Error
}
