package stories

import (
	"time"

	"emoji-stories/models/story"
	"emoji-stories/models/users"
)

// authorView is what other users may see of an account.
type authorView struct {
	ID        uint   `json:"id"`
	Username  string `json:"username"`
	AvatarURL string `json:"avatar_url,omitempty"`
}

type commentView struct {
	ID        uint        `json:"id"`
	StoryID   uint        `json:"story_id"`
	Author    *authorView `json:"author,omitempty"`
	Body      string      `json:"body"`
	Likes     int         `json:"likes"`
	CreatedAt time.Time   `json:"created_at"`
	UpdatedAt time.Time   `json:"updated_at"`
}

type storyView struct {
	ID           uint          `json:"id"`
	DailyEmojiID uint          `json:"daily_emoji_id"`
	Author       *authorView   `json:"author,omitempty"`
	Body         string        `json:"body"`
	Likes        int           `json:"likes"`
	Comments     []commentView `json:"comments,omitempty"`
	CreatedAt    time.Time     `json:"created_at"`
	UpdatedAt    time.Time     `json:"updated_at"`
}

// newAuthorView returns nil when the association was not loaded.
func newAuthorView(u users.User) *authorView {
	if u.ID == 0 {
		return nil
	}
	return &authorView{ID: u.ID, Username: u.Username, AvatarURL: u.AvatarURL}
}

func newCommentView(c *story.Comment) commentView {
	return commentView{
		ID:        c.ID,
		StoryID:   c.StoryID,
		Author:    newAuthorView(c.User),
		Body:      c.Body,
		Likes:     c.Likes,
		CreatedAt: c.CreatedAt,
		UpdatedAt: c.UpdatedAt,
	}
}

func newStoryView(s *story.Story) storyView {
	view := storyView{
		ID:           s.ID,
		DailyEmojiID: s.DailyEmojiID,
		Author:       newAuthorView(s.User),
		Body:         s.Body,
		Likes:        s.Likes,
		CreatedAt:    s.CreatedAt,
		UpdatedAt:    s.UpdatedAt,
	}
	for i := range s.Comments {
		view.Comments = append(view.Comments, newCommentView(&s.Comments[i]))
	}
	return view
}

func newStoryViews(list []story.Story) []storyView {
	views := make([]storyView, 0, len(list))
	for i := range list {
		views = append(views, newStoryView(&list[i]))
	}
	return views
}
