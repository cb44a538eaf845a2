package users

import (
	"time"
)

const (
	ProviderLocal  = "local"
	ProviderGoogle = "google"
)

type User struct {
	ID            uint      `json:"id" gorm:"primaryKey"`
	Username      string    `json:"username" gorm:"size:100;uniqueIndex;not null"`
	Email         string    `json:"email" gorm:"size:120;uniqueIndex;not null"`
	PasswordHash  string    `json:"-" gorm:"size:256"`
	AvatarURL     string    `json:"avatar_url"`
	Provider      string    `json:"provider" gorm:"not null;default:local"`
	CurrentStreak int       `json:"current_streak" gorm:"not null;default:0"`
	LongestStreak int       `json:"longest_streak" gorm:"not null;default:0"`
	LastStoryDate string    `json:"last_story_date" gorm:"size:10;index"` // YYYY-MM-DD, empty until the first story
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}
