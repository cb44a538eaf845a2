package services

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"emoji-stories/models/users"
)

// ApplyPost updates u's streak counters for a story posted on today.
func ApplyPost(u *users.User, today string) {
	switch u.LastStoryDate {
	case today:
		if u.CurrentStreak == 0 {
			u.CurrentStreak = 1
		}
	case PreviousDay(today):
		u.CurrentStreak++
	default:
		u.CurrentStreak = 1
	}
	if u.CurrentStreak > u.LongestStreak {
		u.LongestStreak = u.CurrentStreak
	}
	u.LastStoryDate = today
}

// Effective is the streak to display on today: a streak stays alive until a
// whole day passes without a story.
func Effective(u users.User, today string) int {
	if u.LastStoryDate == today || u.LastStoryDate == PreviousDay(today) {
		return u.CurrentStreak
	}
	return 0
}

// ResetLapsed zeroes the current streak of every user who posted nothing
// yesterday or today.
func ResetLapsed(ctx context.Context, db *gorm.DB, today string) (int64, error) {
	yesterday := PreviousDay(today)
	if yesterday == "" {
		return 0, fmt.Errorf("invalid date %q", today)
	}
	result := db.WithContext(ctx).
		Model(&users.User{}).
		Where("current_streak > 0 AND last_story_date < ?", yesterday).
		UpdateColumn("current_streak", 0)
	if result.Error != nil {
		return 0, fmt.Errorf("failed to reset lapsed streaks: %w", result.Error)
	}
	return result.RowsAffected, nil
}
