package authentication

import (
	"net/http"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"emoji-stories/controllers/respond"
	"emoji-stories/controllers/websession"
	"emoji-stories/models/users"
)

type passwordChangeRequest struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
	NewPassword2    string `json:"new_password2"`
}

// ChangePassword replaces the signed-in user's password after checking the
// current one. Accepts a form or a JSON body.
func (h *Handler) ChangePassword(w http.ResponseWriter, r *http.Request) {
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

	var req passwordChangeRequest
	if api {
		if err := respond.DecodeJSON(r, &req); err != nil {
			respond.Error(w, http.StatusBadRequest, "Invalid request body")
			return
		}
		if req.NewPassword2 == "" {
			req.NewPassword2 = req.NewPassword
		}
	} else {
		req = passwordChangeRequest{
			CurrentPassword: r.PostFormValue("current_password"),
			NewPassword:     r.PostFormValue("new_password"),
			NewPassword2:    r.PostFormValue("new_password2"),
		}
	}

	if user.Provider != users.ProviderLocal || user.PasswordHash == "" {
		fail(http.StatusBadRequest, "This account signs in with Google and has no password.")
		return
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.CurrentPassword)); err != nil {
		fail(http.StatusUnauthorized, "Current password is incorrect.")
		return
	}
	if !StrongPassword(req.NewPassword) {
		fail(http.StatusBadRequest, "Password must be at least 8 characters and contain a digit, a special character, a lowercase and an uppercase letter.")
		return
	}
	if req.NewPassword != req.NewPassword2 {
		fail(http.StatusBadRequest, "Passwords must match.")
		return
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(req.NewPassword), bcrypt.DefaultCost)
	if err != nil {
		fail(http.StatusInternalServerError, "Error hashing new password.")
		return
	}
	err = h.DB.WithContext(r.Context()).
		Model(&users.User{}).
		Where("id = ?", user.ID).
		Update("password_hash", string(hashed)).Error
	if err != nil {
		h.Log.Error("failed to update password", zap.Uint("user_id", user.ID), zap.Error(err))
		fail(http.StatusInternalServerError, "Error updating password.")
		return
	}

	h.Log.Info("password changed", zap.Uint("user_id", user.ID))
	if api {
		respond.JSON(w, http.StatusOK, map[string]string{"message": "Password changed successfully"})
		return
	}
	_ = h.Sessions.AddFlash(w, r, websession.CategorySuccess, "Password changed successfully.")
	http.Redirect(w, r, "/profile", http.StatusSeeOther)
}
