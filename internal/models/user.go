package models

import (
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

type User struct {
	ID           string `gorm:"type:varchar(36);primarykey"`
	Email        string `gorm:"uniqueIndex"`
	PasswordHash string
	IsActive     bool `gorm:"default:true"`
	IsVerified   bool `gorm:"default:false"`
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

func (u *User) BeforeCreate(tx *gorm.DB) error {
	if u.ID == "" {
		u.ID = uuid.New().String()
	}
	return nil
}

func (u *User) CheckPassword(password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)) == nil
}

// UserProfile holds body metrics and the calorie targets derived from them.
// BMR, TDEE and DailyTargetKcal are recomputed on every profile update.
type UserProfile struct {
	ID                string `gorm:"type:varchar(36);primarykey"`
	UserID            string `gorm:"type:varchar(36);uniqueIndex"`
	Age               int
	Gender            string
	HeightCM          float64
	WeightKG          float64
	RunningFrequency  string
	TrainingIntensity string
	Goal              string
	BMR               float64
	TDEE              float64
	DailyTargetKcal   float64
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

func (p *UserProfile) BeforeCreate(tx *gorm.DB) error {
	if p.ID == "" {
		p.ID = uuid.New().String()
	}
	return nil
}
