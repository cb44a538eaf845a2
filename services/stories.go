package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"emoji-stories/metrics"
	"emoji-stories/models/story"
	"emoji-stories/models/users"
)

const (
	MinStoryLength   = 20
	MaxStoryLength   = 2000
	MinCommentLength = 2
	MaxCommentLength = 500
)

var (
	ErrStoryTooShort   = fmt.Errorf("story must be at least %d characters", MinStoryLength)
	ErrStoryTooLong    = fmt.Errorf("story must be at most %d characters", MaxStoryLength)
	ErrCommentTooShort = fmt.Errorf("comment must be at least %d characters", MinCommentLength)
	ErrCommentTooLong  = fmt.Errorf("comment must be at most %d characters", MaxCommentLength)
	ErrAlreadyPosted   = errors.New("you have already posted a story for today's prompt")
	ErrForbidden       = errors.New("you can only edit your own posts")
	ErrNotFound        = errors.New("not found")
	ErrFlagged         = errors.New("your text was flagged by moderation")
)

// Submission is the result of storing moderated text. ModerationUnavailable
// is set when the moderation call failed and the text was accepted unchecked.
type Submission struct {
	Story                 *story.Story
	ModerationUnavailable bool
}

type StoryService struct {
	db        *gorm.DB
	prompts   *PromptService
	moderator Moderator
	log       *zap.Logger
}

func NewStoryService(db *gorm.DB, prompts *PromptService, moderator Moderator, log *zap.Logger) *StoryService {
	if moderator == nil {
		moderator = NoopModerator{}
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &StoryService{db: db, prompts: prompts, moderator: moderator, log: log}
}

func (s *StoryService) Prompts() *PromptService {
	return s.prompts
}

func checkLength(text string, min, max int, tooShort, tooLong error) error {
	n := utf8.RuneCountInString(text)
	if n < min {
		return tooShort
	}
	if n > max {
		return tooLong
	}
	return nil
}

// moderate returns ErrFlagged for flagged text and reports whether the check
// could not be performed.
func (s *StoryService) moderate(ctx context.Context, text string) (unavailable bool, err error) {
	verdict, err := s.moderator.Check(ctx, text)
	if err != nil {
		s.log.Warn("moderation unavailable, accepting text", zap.Error(err))
		metrics.ModerationResults.WithLabelValues("unavailable").Inc()
		return true, nil
	}
	if verdict.Flagged {
		metrics.ModerationResults.WithLabelValues("flagged").Inc()
		if len(verdict.Categories) == 0 {
			return false, ErrFlagged
		}
		return false, fmt.Errorf("%w (%s)", ErrFlagged, strings.Join(verdict.Categories, ", "))
	}
	metrics.ModerationResults.WithLabelValues("passed").Inc()
	return false, nil
}

// Submit stores userID's story for today's prompt and advances their streak
// in one transaction.
func (s *StoryService) Submit(ctx context.Context, userID uint, body string) (*Submission, error) {
	body = strings.TrimSpace(body)
	if err := checkLength(body, MinStoryLength, MaxStoryLength, ErrStoryTooShort, ErrStoryTooLong); err != nil {
		return nil, err
	}

	daily, err := s.prompts.Today(ctx)
	if err != nil {
		return nil, err
	}

	posted, err := s.hasStory(s.db.WithContext(ctx), userID, daily.ID)
	if err != nil {
		return nil, err
	}
	if posted {
		return nil, ErrAlreadyPosted
	}

	unavailable, err := s.moderate(ctx, body)
	if err != nil {
		return nil, err
	}

	newStory := story.Story{
		UserID:       userID,
		DailyEmojiID: daily.ID,
		Body:         body,
	}
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		posted, err := s.hasStory(tx, userID, daily.ID)
		if err != nil {
			return err
		}
		if posted {
			return ErrAlreadyPosted
		}

		var author users.User
		if err := tx.First(&author, userID).Error; err != nil {
			return fmt.Errorf("failed to load user %d: %w", userID, err)
		}

		if err := tx.Omit(clause.Associations).Create(&newStory).Error; err != nil {
			return fmt.Errorf("failed to save story: %w", err)
		}

		ApplyPost(&author, daily.Date)
		err = tx.Model(&users.User{}).Where("id = ?", author.ID).Updates(map[string]interface{}{
			"current_streak":  author.CurrentStreak,
			"longest_streak":  author.LongestStreak,
			"last_story_date": author.LastStoryDate,
		}).Error
		if err != nil {
			return fmt.Errorf("failed to update streak: %w", err)
		}
		newStory.User = author
		return nil
	})
	if err != nil {
		return nil, err
	}

	newStory.DailyEmoji = *daily
	metrics.StoriesSubmitted.Inc()
	s.log.Info("story submitted",
		zap.Uint("user_id", userID),
		zap.Uint("story_id", newStory.ID),
		zap.String("date", daily.Date),
		zap.Int("streak", newStory.User.CurrentStreak),
	)
	return &Submission{Story: &newStory, ModerationUnavailable: unavailable}, nil
}

func (s *StoryService) hasStory(db *gorm.DB, userID, dailyEmojiID uint) (bool, error) {
	var n int64
	err := db.Model(&story.Story{}).
		Where("user_id = ? AND daily_emoji_id = ?", userID, dailyEmojiID).
		Count(&n).Error
	if err != nil {
		return false, fmt.Errorf("failed to check existing story: %w", err)
	}
	return n > 0, nil
}

// HasPostedToday is the gate in front of other users' stories.
func (s *StoryService) HasPostedToday(ctx context.Context, userID uint) (bool, error) {
	daily, err := s.prompts.Today(ctx)
	if err != nil {
		return false, err
	}
	return s.hasStory(s.db.WithContext(ctx), userID, daily.ID)
}

// ListForPrompt returns a prompt's stories, newest first, with authors and
// comments.
func (s *StoryService) ListForPrompt(ctx context.Context, dailyEmojiID uint) ([]story.Story, error) {
	var stories []story.Story
	err := s.db.WithContext(ctx).
		Preload("User").
		Preload("Comments", func(db *gorm.DB) *gorm.DB {
			return db.Order("comments.created_at ASC, comments.id ASC")
		}).
		Preload("Comments.User").
		Where("daily_emoji_id = ?", dailyEmojiID).
		Order("created_at DESC, id DESC").
		Find(&stories).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list stories: %w", err)
	}
	return stories, nil
}

// UserStories returns userID's stories with their prompts, newest first.
func (s *StoryService) UserStories(ctx context.Context, userID uint) ([]story.Story, error) {
	var stories []story.Story
	err := s.db.WithContext(ctx).
		Preload("DailyEmoji").
		Where("user_id = ?", userID).
		Order("created_at DESC, id DESC").
		Find(&stories).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list user stories: %w", err)
	}
	return stories, nil
}

// Edit replaces the body of a story owned by userID.
func (s *StoryService) Edit(ctx context.Context, userID, storyID uint, body string) (*Submission, error) {
	var existing story.Story
	if err := s.db.WithContext(ctx).First(&existing, storyID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to load story: %w", err)
	}
	if existing.UserID != userID {
		return nil, ErrForbidden
	}

	body = strings.TrimSpace(body)
	if err := checkLength(body, MinStoryLength, MaxStoryLength, ErrStoryTooShort, ErrStoryTooLong); err != nil {
		return nil, err
	}
	unavailable, err := s.moderate(ctx, body)
	if err != nil {
		return nil, err
	}

	existing.Body = body
	if err := s.db.WithContext(ctx).Model(&existing).Update("body", body).Error; err != nil {
		return nil, fmt.Errorf("failed to update story: %w", err)
	}
	return &Submission{Story: &existing, ModerationUnavailable: unavailable}, nil
}

// AdjustStoryLikes adds delta to a story's like counter, never going below
// zero, and returns the new count.
func (s *StoryService) AdjustStoryLikes(ctx context.Context, storyID uint, delta int) (int, error) {
	return adjustLikes(s.db.WithContext(ctx), &story.Story{}, storyID, delta)
}

func (s *StoryService) AdjustCommentLikes(ctx context.Context, commentID uint, delta int) (int, error) {
	return adjustLikes(s.db.WithContext(ctx), &story.Comment{}, commentID, delta)
}

func adjustLikes(db *gorm.DB, model interface{}, id uint, delta int) (int, error) {
	result := db.Model(model).
		Where("id = ?", id).
		UpdateColumn("likes", gorm.Expr("CASE WHEN likes + ? < 0 THEN 0 ELSE likes + ? END", delta, delta))
	if result.Error != nil {
		return 0, fmt.Errorf("failed to update likes: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return 0, ErrNotFound
	}

	var likes []int
	if err := db.Model(model).Where("id = ?", id).Pluck("likes", &likes).Error; err != nil {
		return 0, fmt.Errorf("failed to read likes: %w", err)
	}
	if len(likes) == 0 {
		return 0, ErrNotFound
	}
	return likes[0], nil
}

// AddComment stores a comment and notifies the story's author.
func (s *StoryService) AddComment(ctx context.Context, userID, storyID uint, body string) (*story.Comment, error) {
	body = strings.TrimSpace(body)
	if err := checkLength(body, MinCommentLength, MaxCommentLength, ErrCommentTooShort, ErrCommentTooLong); err != nil {
		return nil, err
	}

	var parent story.Story
	if err := s.db.WithContext(ctx).First(&parent, storyID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to load story: %w", err)
	}

	comment := story.Comment{StoryID: storyID, UserID: userID, Body: body}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Omit(clause.Associations).Create(&comment).Error; err != nil {
			return fmt.Errorf("failed to save comment: %w", err)
		}
		if parent.UserID == userID {
			return nil
		}
		var author users.User
		if err := tx.Select("username").First(&author, userID).Error; err != nil {
			return fmt.Errorf("failed to load commenter: %w", err)
		}
		return sendNotification(tx, parent.UserID, parent.ID, fmt.Sprintf("%s commented on your story", author.Username))
	})
	if err != nil {
		return nil, err
	}

	metrics.CommentsAdded.Inc()
	return &comment, nil
}

// EditComment replaces the body of a comment owned by userID.
func (s *StoryService) EditComment(ctx context.Context, userID, commentID uint, body string) (*story.Comment, error) {
	var existing story.Comment
	if err := s.db.WithContext(ctx).First(&existing, commentID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to load comment: %w", err)
	}
	if existing.UserID != userID {
		return nil, ErrForbidden
	}

	body = strings.TrimSpace(body)
	if err := checkLength(body, MinCommentLength, MaxCommentLength, ErrCommentTooShort, ErrCommentTooLong); err != nil {
		return nil, err
	}

	existing.Body = body
	if err := s.db.WithContext(ctx).Model(&existing).Update("body", body).Error; err != nil {
		return nil, fmt.Errorf("failed to update comment: %w", err)
	}
	return &existing, nil
}
