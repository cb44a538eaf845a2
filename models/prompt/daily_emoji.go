package prompt

import (
	"strings"
	"time"
)

// DateLayout is the calendar-date format used for prompt dates and streaks.
const DateLayout = "2006-01-02"

// DailyEmoji is the shared emoji prompt for one calendar date.
type DailyEmoji struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	Date      string    `json:"date" gorm:"size:10;uniqueIndex;not null"`
	Emojis    string    `json:"emojis" gorm:"not null"` // space separated
	CreatedAt time.Time `json:"created_at"`
}

func (DailyEmoji) TableName() string {
	return "daily_emojis"
}

func (d DailyEmoji) List() []string {
	return strings.Fields(d.Emojis)
}
