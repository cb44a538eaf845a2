package users

import (
	"time"
)

// GoogleAccount links a Google identity to a local user.
type GoogleAccount struct {
	ID        uint   `gorm:"primaryKey"`
	UserID    uint   `gorm:"index;not null"`
	User      User   `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE;"`
	GoogleID  string `gorm:"uniqueIndex;not null"`
	Email     string `gorm:"not null"`
	FirstName string
	LastName  string
	CreatedAt time.Time
	UpdatedAt time.Time
}
