package stories

import (
	"errors"
	"net/http"
	"strconv"
	"unicode"
	"unicode/utf8"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"emoji-stories/controllers/authentication"
	"emoji-stories/controllers/respond"
	"emoji-stories/controllers/websession"
	"emoji-stories/models/story"
	"emoji-stories/services"
	"emoji-stories/templates"
)

const moderationUnavailable = "Moderation is unavailable right now, so your text was posted without review."

type Handler struct {
	Stories  *services.StoryService
	Sessions *websession.Manager
	Pages    *templates.Pages
	Log      *zap.Logger
}

type bodyRequest struct {
	Body string `json:"body"`
}

func pathID(r *http.Request) (uint, error) {
	id, err := strconv.ParseUint(mux.Vars(r)["id"], 10, 0)
	if err != nil || id == 0 {
		return 0, errors.New("invalid id")
	}
	return uint(id), nil
}

// readBody takes "body" from a JSON request or a form.
func readBody(r *http.Request) (string, error) {
	if respond.WantsJSON(r) {
		var req bodyRequest
		if err := respond.DecodeJSON(r, &req); err != nil {
			return "", err
		}
		return req.Body, nil
	}
	if err := r.ParseForm(); err != nil {
		return "", err
	}
	return r.PostFormValue("body"), nil
}

// statusFor maps service errors onto HTTP statuses.
func statusFor(err error) int {
	switch {
	case errors.Is(err, services.ErrStoryTooShort),
		errors.Is(err, services.ErrStoryTooLong),
		errors.Is(err, services.ErrCommentTooShort),
		errors.Is(err, services.ErrCommentTooLong):
		return http.StatusBadRequest
	case errors.Is(err, services.ErrAlreadyPosted):
		return http.StatusConflict
	case errors.Is(err, services.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, services.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, services.ErrFlagged):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

// publicMessage hides storage errors from users.
func publicMessage(err error) string {
	if statusFor(err) == http.StatusInternalServerError {
		return "Something went wrong. Please try again."
	}
	msg := err.Error()
	first, size := utf8.DecodeRuneInString(msg)
	return string(unicode.ToUpper(first)) + msg[size:] + "."
}

func (h *Handler) flash(w http.ResponseWriter, r *http.Request, category, msg string) {
	if err := h.Sessions.AddFlash(w, r, category, msg); err != nil {
		h.Log.Warn("failed to save flash", zap.Error(err))
	}
}

// RequirePosted lets only users who posted today's story through.
func (h *Handler) RequirePosted(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user := authentication.CurrentUser(r)
		posted, err := h.Stories.HasPostedToday(r.Context(), user.ID)
		if err != nil {
			h.Log.Error("failed to check today's story", zap.Uint("user_id", user.ID), zap.Error(err))
			http.Error(w, "Internal server error", http.StatusInternalServerError)
			return
		}
		if !posted {
			if respond.WantsJSON(r) {
				respond.Error(w, http.StatusForbidden, "Post your story for today's prompt first")
				return
			}
			h.flash(w, r, websession.CategoryWarning, "Write your story for today's prompt to see everyone else's.")
			http.Redirect(w, r, "/dashboard", http.StatusSeeOther)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// CreateStory posts the user's story for today's prompt.
func (h *Handler) CreateStory(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Invalid request method", http.StatusMethodNotAllowed)
		return
	}
	user := authentication.CurrentUser(r)
	api := respond.WantsJSON(r)

	body, err := readBody(r)
	if err != nil {
		if api {
			respond.Error(w, http.StatusBadRequest, "Invalid request body")
			return
		}
		h.flash(w, r, websession.CategoryWarning, "Invalid request body.")
		http.Redirect(w, r, "/dashboard", http.StatusSeeOther)
		return
	}

	submission, err := h.Stories.Submit(r.Context(), user.ID, body)
	if err != nil {
		status := statusFor(err)
		if status == http.StatusInternalServerError {
			h.Log.Error("failed to submit story", zap.Uint("user_id", user.ID), zap.Error(err))
		}
		if api {
			respond.Error(w, status, publicMessage(err))
			return
		}
		switch status {
		case http.StatusConflict:
			h.flash(w, r, websession.CategoryInfo, publicMessage(err))
			http.Redirect(w, r, "/stories", http.StatusSeeOther)
		case http.StatusBadRequest:
			h.flash(w, r, websession.CategoryWarning, publicMessage(err))
			http.Redirect(w, r, "/dashboard", http.StatusSeeOther)
		default:
			h.flash(w, r, websession.CategoryDanger, publicMessage(err))
			http.Redirect(w, r, "/dashboard", http.StatusSeeOther)
		}
		return
	}

	if api {
		respond.JSON(w, http.StatusCreated, storyResponse{
			Story:                 newStoryView(submission.Story),
			ModerationUnavailable: submission.ModerationUnavailable,
		})
		return
	}
	if submission.ModerationUnavailable {
		h.flash(w, r, websession.CategoryWarning, moderationUnavailable)
	}
	h.flash(w, r, websession.CategorySuccess, "Your story has been posted!")
	http.Redirect(w, r, "/stories", http.StatusSeeOther)
}

type storyResponse struct {
	Story                 storyView `json:"story"`
	ModerationUnavailable bool      `json:"moderation_unavailable,omitempty"`
}

type storiesPage struct {
	Emojis        []string
	Stories       []story.Story
	LikedStories  map[uint]bool
	LikedComments map[uint]bool
}

// ListStories shows everyone's stories for today's prompt.
func (h *Handler) ListStories(w http.ResponseWriter, r *http.Request) {
	user := authentication.CurrentUser(r)
	daily, err := h.Stories.Prompts().Today(r.Context())
	if err != nil {
		h.Log.Error("failed to load today's prompt", zap.Error(err))
		http.Error(w, "Failed to load prompt", http.StatusInternalServerError)
		return
	}
	list, err := h.Stories.ListForPrompt(r.Context(), daily.ID)
	if err != nil {
		h.Log.Error("failed to list stories", zap.Error(err))
		http.Error(w, "Failed to load stories", http.StatusInternalServerError)
		return
	}

	if respond.WantsJSON(r) {
		respond.JSON(w, http.StatusOK, map[string]interface{}{
			"date":    daily.Date,
			"emojis":  daily.List(),
			"stories": newStoryViews(list),
		})
		return
	}
	h.Pages.Show(w, r, http.StatusOK, "stories", "Stories", user, storiesPage{
		Emojis:        daily.List(),
		Stories:       list,
		LikedStories:  h.Sessions.Liked(r, websession.TargetStory),
		LikedComments: h.Sessions.Liked(r, websession.TargetComment),
	})
}

// EditStory replaces the body of the caller's own story.
func (h *Handler) EditStory(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost && r.Method != http.MethodPut {
		respond.Error(w, http.StatusMethodNotAllowed, "Invalid request method")
		return
	}
	user := authentication.CurrentUser(r)
	storyID, err := pathID(r)
	if err != nil {
		respond.Error(w, http.StatusBadRequest, "Invalid story ID")
		return
	}
	var req bodyRequest
	if err := respond.DecodeJSON(r, &req); err != nil {
		respond.Error(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	submission, err := h.Stories.Edit(r.Context(), user.ID, storyID, req.Body)
	if err != nil {
		status := statusFor(err)
		if status == http.StatusInternalServerError {
			h.Log.Error("failed to edit story", zap.Uint("story_id", storyID), zap.Error(err))
		}
		respond.Error(w, status, publicMessage(err))
		return
	}
	submission.Story.User = *user
	respond.JSON(w, http.StatusOK, storyResponse{
		Story:                 newStoryView(submission.Story),
		ModerationUnavailable: submission.ModerationUnavailable,
	})
}
