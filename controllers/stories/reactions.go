package stories

import (
	"context"
	"net/http"

	"go.uber.org/zap"

	"emoji-stories/controllers/respond"
	"emoji-stories/controllers/websession"
	"emoji-stories/metrics"
)

type likeResponse struct {
	Likes int  `json:"likes"`
	Liked bool `json:"liked"`
}

type adjustFunc func(ctx context.Context, id uint, delta int) (int, error)

// LikeStory toggles this session's like on a story.
func (h *Handler) LikeStory(w http.ResponseWriter, r *http.Request) {
	h.toggleLike(w, r, websession.TargetStory, h.Stories.AdjustStoryLikes)
}

// LikeComment toggles this session's like on a comment.
func (h *Handler) LikeComment(w http.ResponseWriter, r *http.Request) {
	h.toggleLike(w, r, websession.TargetComment, h.Stories.AdjustCommentLikes)
}

// toggleLike changes the stored counter first and records the new state in
// the session only when that succeeded. A session that cannot be saved undoes
// the counter change.
func (h *Handler) toggleLike(w http.ResponseWriter, r *http.Request, target string, adjust adjustFunc) {
	if r.Method != http.MethodPost {
		respond.Error(w, http.StatusMethodNotAllowed, "Invalid request method")
		return
	}
	id, err := pathID(r)
	if err != nil {
		respond.Error(w, http.StatusBadRequest, "Invalid ID")
		return
	}

	delta, direction := 1, "like"
	if h.Sessions.Liked(r, target)[id] {
		delta, direction = -1, "unlike"
	}

	likes, err := adjust(r.Context(), id, delta)
	if err != nil {
		status := statusFor(err)
		if status == http.StatusInternalServerError {
			h.Log.Error("failed to update likes", zap.String("target", target), zap.Uint("id", id), zap.Error(err))
		}
		respond.Error(w, status, publicMessage(err))
		return
	}

	liked, err := h.Sessions.ToggleLike(w, r, target, id)
	if err != nil {
		h.Log.Error("failed to save like state", zap.String("target", target), zap.Uint("id", id), zap.Error(err))
		if _, undoErr := adjust(r.Context(), id, -delta); undoErr != nil {
			h.Log.Error("failed to undo like", zap.String("target", target), zap.Uint("id", id), zap.Error(undoErr))
		}
		respond.Error(w, http.StatusInternalServerError, "Something went wrong. Please try again.")
		return
	}
	metrics.LikesToggled.WithLabelValues(target, direction).Inc()
	respond.JSON(w, http.StatusOK, likeResponse{Likes: likes, Liked: liked})
}
