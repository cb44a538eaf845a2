package stories

import (
	"net/http"

	"go.uber.org/zap"

	"emoji-stories/controllers/authentication"
	"emoji-stories/controllers/respond"
	"emoji-stories/models/story"
)

type notificationsPage struct {
	Notifications []story.Notification
}

// GetNotifications lists the user's notifications and marks them read.
// ?unread=1 limits the list to unread ones.
func (h *Handler) GetNotifications(w http.ResponseWriter, r *http.Request) {
	user := authentication.CurrentUser(r)
	unreadOnly := r.URL.Query().Get("unread") == "1"

	notifications, err := h.Stories.Notifications(r.Context(), user.ID, unreadOnly)
	if err != nil {
		h.Log.Error("failed to load notifications", zap.Uint("user_id", user.ID), zap.Error(err))
		http.Error(w, "Failed to load notifications", http.StatusInternalServerError)
		return
	}
	if err := h.Stories.MarkNotificationsRead(r.Context(), user.ID); err != nil {
		h.Log.Warn("failed to mark notifications read", zap.Uint("user_id", user.ID), zap.Error(err))
	}

	if respond.WantsJSON(r) {
		respond.JSON(w, http.StatusOK, notifications)
		return
	}
	h.Pages.Show(w, r, http.StatusOK, "notifications", "Notifications", user, notificationsPage{
		Notifications: notifications,
	})
}
