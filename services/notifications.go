package services

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"emoji-stories/models/story"
)

func sendNotification(db *gorm.DB, userID, storyID uint, message string) error {
	notification := story.Notification{
		UserID:  userID,
		StoryID: storyID,
		Message: message,
	}
	if err := db.Create(&notification).Error; err != nil {
		return fmt.Errorf("failed to create notification: %w", err)
	}
	return nil
}

// Notifications returns userID's notifications, newest first.
func (s *StoryService) Notifications(ctx context.Context, userID uint, unreadOnly bool) ([]story.Notification, error) {
	query := s.db.WithContext(ctx).Where("user_id = ?", userID)
	if unreadOnly {
		query = query.Where("is_read = ?", false)
	}
	var notifications []story.Notification
	if err := query.Order("created_at DESC, id DESC").Find(&notifications).Error; err != nil {
		return nil, fmt.Errorf("failed to load notifications: %w", err)
	}
	return notifications, nil
}

func (s *StoryService) MarkNotificationsRead(ctx context.Context, userID uint) error {
	err := s.db.WithContext(ctx).
		Model(&story.Notification{}).
		Where("user_id = ? AND is_read = ?", userID, false).
		Update("is_read", true).Error
	if err != nil {
		return fmt.Errorf("failed to mark notifications read: %w", err)
	}
	return nil
}
