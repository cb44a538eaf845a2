package stories

import (
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"emoji-stories/controllers/authentication"
	"emoji-stories/controllers/respond"
	"emoji-stories/controllers/websession"
)

// CreateComment adds a comment to a story.
func (h *Handler) CreateComment(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Invalid request method", http.StatusMethodNotAllowed)
		return
	}
	user := authentication.CurrentUser(r)
	api := respond.WantsJSON(r)

	storyID, err := pathID(r)
	if err != nil {
		respond.Error(w, http.StatusBadRequest, "Invalid story ID")
		return
	}
	body, err := readBody(r)
	if err != nil {
		respond.Error(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	comment, err := h.Stories.AddComment(r.Context(), user.ID, storyID, body)
	if err != nil {
		status := statusFor(err)
		if status == http.StatusInternalServerError {
			h.Log.Error("failed to add comment", zap.Uint("story_id", storyID), zap.Error(err))
		}
		if api {
			respond.Error(w, status, publicMessage(err))
			return
		}
		category := websession.CategoryWarning
		if status == http.StatusInternalServerError {
			category = websession.CategoryDanger
		}
		h.flash(w, r, category, publicMessage(err))
		http.Redirect(w, r, "/stories", http.StatusSeeOther)
		return
	}

	comment.User = *user
	if api {
		respond.JSON(w, http.StatusCreated, newCommentView(comment))
		return
	}
	h.flash(w, r, websession.CategorySuccess, "Comment added.")
	http.Redirect(w, r, fmt.Sprintf("/stories#story-%d", storyID), http.StatusSeeOther)
}

// EditComment replaces the body of the caller's own comment.
func (h *Handler) EditComment(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost && r.Method != http.MethodPut {
		respond.Error(w, http.StatusMethodNotAllowed, "Invalid request method")
		return
	}
	user := authentication.CurrentUser(r)
	commentID, err := pathID(r)
	if err != nil {
		respond.Error(w, http.StatusBadRequest, "Invalid comment ID")
		return
	}
	var req bodyRequest
	if err := respond.DecodeJSON(r, &req); err != nil {
		respond.Error(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	comment, err := h.Stories.EditComment(r.Context(), user.ID, commentID, req.Body)
	if err != nil {
		status := statusFor(err)
		if status == http.StatusInternalServerError {
			h.Log.Error("failed to edit comment", zap.Uint("comment_id", commentID), zap.Error(err))
		}
		respond.Error(w, status, publicMessage(err))
		return
	}
	comment.User = *user
	respond.JSON(w, http.StatusOK, newCommentView(comment))
}
