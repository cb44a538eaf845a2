package authentication

import (
	"errors"
	"net/http"

	"go.uber.org/zap"

	"emoji-stories/controllers/respond"
	"emoji-stories/controllers/websession"
	"emoji-stories/models/story"
	"emoji-stories/models/users"
	"emoji-stories/services"
	"emoji-stories/storage"
)

type profilePage struct {
	Streak  int
	Stories []story.Story
}

// Profile shows the signed-in user's avatar, streaks and stories.
func (h *Handler) Profile(w http.ResponseWriter, r *http.Request) {
	user := CurrentUser(r)
	stories, err := h.Stories.UserStories(r.Context(), user.ID)
	if err != nil {
		h.Log.Error("failed to load profile stories", zap.Uint("user_id", user.ID), zap.Error(err))
		http.Error(w, "Failed to load stories", http.StatusInternalServerError)
		return
	}
	today := h.Stories.Prompts().Calendar().Today()
	h.Pages.Show(w, r, http.StatusOK, "profile", user.Username, user, profilePage{
		Streak:  services.Effective(*user, today),
		Stories: stories,
	})
}

// multipart framing on top of the image itself
const uploadOverhead = 64 << 10

// UploadImage stores a new avatar from the multipart field "image".
func (h *Handler) UploadImage(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Invalid request method", http.StatusMethodNotAllowed)
		return
	}
	user := CurrentUser(r)
	api := respond.WantsJSON(r)
	fail := func(status int, msg string) {
		if api {
			respond.Error(w, status, msg)
			return
		}
		_ = h.Sessions.AddFlash(w, r, websession.CategoryWarning, msg)
		http.Redirect(w, r, "/profile", http.StatusSeeOther)
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.MaxImageBytes+uploadOverhead)
	if err := r.ParseMultipartForm(h.MaxImageBytes + uploadOverhead); err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			fail(http.StatusRequestEntityTooLarge, storage.ErrTooLarge.Error())
			return
		}
		fail(http.StatusBadRequest, "Please choose an image to upload.")
		return
	}
	file, _, err := r.FormFile("image")
	if err != nil {
		fail(http.StatusBadRequest, "Please choose an image to upload.")
		return
	}
	defer file.Close()

	data, contentType, name, err := storage.ReadImage(file, h.MaxImageBytes)
	switch {
	case errors.Is(err, storage.ErrTooLarge):
		fail(http.StatusRequestEntityTooLarge, err.Error())
		return
	case errors.Is(err, storage.ErrUnsupportedType):
		fail(http.StatusUnsupportedMediaType, err.Error())
		return
	case err != nil:
		fail(http.StatusBadRequest, "Failed to read image.")
		return
	}

	url, err := h.Images.Save(r.Context(), name, contentType, data)
	if err != nil {
		h.Log.Error("failed to store image", zap.Uint("user_id", user.ID), zap.Error(err))
		fail(http.StatusInternalServerError, "Failed to store image.")
		return
	}
	err = h.DB.WithContext(r.Context()).
		Model(&users.User{}).
		Where("id = ?", user.ID).
		Update("avatar_url", url).Error
	if err != nil {
		h.Log.Error("failed to save avatar", zap.Uint("user_id", user.ID), zap.Error(err))
		fail(http.StatusInternalServerError, "Failed to save profile image.")
		return
	}

	h.Log.Info("avatar updated", zap.Uint("user_id", user.ID), zap.String("url", url))
	if api {
		respond.JSON(w, http.StatusOK, map[string]string{"avatar_url": url})
		return
	}
	_ = h.Sessions.AddFlash(w, r, websession.CategorySuccess, "Profile image updated.")
	http.Redirect(w, r, "/profile", http.StatusSeeOther)
}
