// Package dashboard serves the daily prompt and streak views.
package dashboard

import (
	"net/http"

	"go.uber.org/zap"

	"emoji-stories/controllers/authentication"
	"emoji-stories/controllers/respond"
	"emoji-stories/services"
	"emoji-stories/templates"
)

type Handler struct {
	Stories *services.StoryService
	Pages   *templates.Pages
	Log     *zap.Logger
}

type dashboardPage struct {
	Emojis    []string
	Posted    bool
	Streak    int
	Longest   int
	Unread    int
	MinLength int
	MaxLength int
}

// Dashboard shows today's emoji and either the story form or a link to the
// other stories.
func (h *Handler) Dashboard(w http.ResponseWriter, r *http.Request) {
	user := authentication.CurrentUser(r)
	ctx := r.Context()

	daily, err := h.Stories.Prompts().Today(ctx)
	if err != nil {
		h.Log.Error("failed to load today's prompt", zap.Error(err))
		http.Error(w, "Failed to load today's prompt", http.StatusInternalServerError)
		return
	}
	posted, err := h.Stories.HasPostedToday(ctx, user.ID)
	if err != nil {
		h.Log.Error("failed to check today's story", zap.Uint("user_id", user.ID), zap.Error(err))
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	unread, err := h.Stories.Notifications(ctx, user.ID, true)
	if err != nil {
		// Not worth failing the page over.
		h.Log.Warn("failed to count notifications", zap.Uint("user_id", user.ID), zap.Error(err))
	}

	h.Pages.Show(w, r, http.StatusOK, "dashboard", "Dashboard", user, dashboardPage{
		Emojis:    daily.List(),
		Posted:    posted,
		Streak:    services.Effective(*user, daily.Date),
		Longest:   user.LongestStreak,
		Unread:    len(unread),
		MinLength: services.MinStoryLength,
		MaxLength: services.MaxStoryLength,
	})
}

type streakView struct {
	Current       int    `json:"current"`
	Longest       int    `json:"longest"`
	LastStoryDate string `json:"last_story_date"`
	PostedToday   bool   `json:"posted_today"`
}

func (h *Handler) streak(r *http.Request) streakView {
	user := authentication.CurrentUser(r)
	today := h.Stories.Prompts().Calendar().Today()
	return streakView{
		Current:       services.Effective(*user, today),
		Longest:       user.LongestStreak,
		LastStoryDate: user.LastStoryDate,
		PostedToday:   user.LastStoryDate == today,
	}
}

func (h *Handler) Streak(w http.ResponseWriter, r *http.Request) {
	h.Pages.Show(w, r, http.StatusOK, "streak", "Streak", authentication.CurrentUser(r), h.streak(r))
}

func (h *Handler) APIStreak(w http.ResponseWriter, r *http.Request) {
	respond.JSON(w, http.StatusOK, h.streak(r))
}

type promptView struct {
	Date   string   `json:"date"`
	Emojis []string `json:"emojis"`
}

// APIPromptToday returns today's emoji without requiring a login.
func (h *Handler) APIPromptToday(w http.ResponseWriter, r *http.Request) {
	daily, err := h.Stories.Prompts().Today(r.Context())
	if err != nil {
		h.Log.Error("failed to load today's prompt", zap.Error(err))
		respond.Error(w, http.StatusInternalServerError, "Failed to load today's prompt")
		return
	}
	respond.JSON(w, http.StatusOK, promptView{Date: daily.Date, Emojis: daily.List()})
}
