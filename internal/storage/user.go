package storage

import (
	"github.com/charleshuang3/runfuel/internal/gormw"
	"github.com/charleshuang3/runfuel/internal/models"
)

func GetUserByEmail(db *gormw.DB, email string) (*models.User, error) {
	user := &models.User{}
	if err := db.Where("email = ?", email).First(&user).Error; err != nil {
		return nil, err
	}
	return user, nil
}

func GetUserByID(db *gormw.DB, id string) (*models.User, error) {
	user := &models.User{}
	if err := db.Where("id = ?", id).First(&user).Error; err != nil {
		return nil, err
	}
	return user, nil
}

func CreateUser(db *gormw.DB, user *models.User) error {
	return db.Create(user).Error
}

func DeactivateUser(db *gormw.DB, id string) error {
	return db.Model(&models.User{}).Where("id = ?", id).Update("is_active", false).Error
}
