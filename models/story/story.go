package story

import (
	"time"

	"emoji-stories/models/prompt"
	"emoji-stories/models/users"
)

// Story is a user's entry for one daily prompt. A user has at most one story
// per prompt; the services layer enforces it.
type Story struct {
	ID           uint              `json:"id" gorm:"primaryKey"`
	UserID       uint              `json:"user_id" gorm:"index;not null"`
	User         users.User        `json:"user" gorm:"constraint:OnDelete:CASCADE"`
	DailyEmojiID uint              `json:"daily_emoji_id" gorm:"index;not null"`
	DailyEmoji   prompt.DailyEmoji `json:"daily_emoji" gorm:"constraint:OnDelete:CASCADE"`
	Body         string            `json:"body" gorm:"type:text;not null"`
	Likes        int               `json:"likes" gorm:"not null;default:0"`
	Comments     []Comment         `json:"comments,omitempty" gorm:"foreignKey:StoryID;constraint:OnDelete:CASCADE"`
	CreatedAt    time.Time         `json:"created_at"`
	UpdatedAt    time.Time         `json:"updated_at"`
}

type Comment struct {
	ID        uint       `json:"id" gorm:"primaryKey"`
	StoryID   uint       `json:"story_id" gorm:"index;not null"`
	UserID    uint       `json:"user_id" gorm:"index;not null"`
	User      users.User `json:"user" gorm:"constraint:OnDelete:CASCADE"`
	Body      string     `json:"body" gorm:"type:text;not null"`
	Likes     int        `json:"likes" gorm:"not null;default:0"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}
