package authentication

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	oauth2v2 "google.golang.org/api/oauth2/v2"
	"google.golang.org/api/option"
	"gorm.io/gorm"

	"emoji-stories/config"
	"emoji-stories/controllers/websession"
	"emoji-stories/models/users"
)

// UserinfoFunc fetches the Google profile for an authorized token source.
type UserinfoFunc func(ctx context.Context, ts oauth2.TokenSource) (*oauth2v2.Userinfo, error)

// NewGoogleConfig returns nil when Google sign-in is not configured.
func NewGoogleConfig(cfg config.GoogleConfig) *oauth2.Config {
	if !cfg.Enabled() {
		return nil
	}
	return &oauth2.Config{
		RedirectURL:  cfg.RedirectURL,
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		Scopes:       []string{oauth2v2.UserinfoEmailScope, oauth2v2.UserinfoProfileScope},
		Endpoint:     google.Endpoint,
	}
}

func fetchGoogleUserinfo(ctx context.Context, ts oauth2.TokenSource) (*oauth2v2.Userinfo, error) {
	service, err := oauth2v2.NewService(ctx, option.WithTokenSource(ts))
	if err != nil {
		return nil, fmt.Errorf("failed to create userinfo client: %w", err)
	}
	return service.Userinfo.Get().Context(ctx).Do()
}

// HandleGoogleLogin starts the OAuth flow with a one-time state kept in the
// session.
func (h *Handler) HandleGoogleLogin(w http.ResponseWriter, r *http.Request) {
	if h.Google == nil {
		http.NotFound(w, r)
		return
	}
	state := uuid.NewString()
	if err := h.Sessions.SetOAuthState(w, r, state); err != nil {
		h.Log.Error("failed to save oauth state", zap.Error(err))
		http.Error(w, "Failed to save session", http.StatusInternalServerError)
		return
	}
	http.Redirect(w, r, h.Google.AuthCodeURL(state), http.StatusTemporaryRedirect)
}

// HandleGoogleCallback finishes the OAuth flow and signs the user in,
// creating an account on first use.
func (h *Handler) HandleGoogleCallback(w http.ResponseWriter, r *http.Request) {
	if h.Google == nil {
		http.NotFound(w, r)
		return
	}
	fail := func(msg string, err error) {
		h.Log.Warn(msg, zap.Error(err))
		_ = h.Sessions.AddFlash(w, r, websession.CategoryDanger, "Google sign-in failed. Please try again.")
		http.Redirect(w, r, "/login", http.StatusSeeOther)
	}

	expected := h.Sessions.TakeOAuthState(w, r)
	if expected == "" || r.FormValue("state") != expected {
		fail("invalid oauth state", nil)
		return
	}

	ctx := r.Context()
	token, err := h.Google.Exchange(ctx, r.FormValue("code"))
	if err != nil {
		fail("failed to exchange oauth code", err)
		return
	}

	fetch := h.GoogleUserinfoFn
	if fetch == nil {
		fetch = fetchGoogleUserinfo
	}
	info, err := fetch(ctx, h.Google.TokenSource(ctx, token))
	if err != nil {
		fail("failed to fetch google userinfo", err)
		return
	}
	if info.Id == "" || info.Email == "" {
		fail("google userinfo without id or email", nil)
		return
	}

	// Accounts are matched by email, so only an address Google has verified
	// may sign in.
	if info.VerifiedEmail == nil || !*info.VerifiedEmail {
		h.Log.Warn("google email not verified", zap.String("email", info.Email))
		_ = h.Sessions.AddFlash(w, r, websession.CategoryDanger, "Your Google email address is not verified.")
		http.Redirect(w, r, "/login", http.StatusSeeOther)
		return
	}

	user, err := h.findOrCreateGoogleUser(ctx, info)
	if err != nil {
		h.Log.Error("failed to store google user", zap.String("email", info.Email), zap.Error(err))
		http.Error(w, "Failed to create user", http.StatusInternalServerError)
		return
	}

	if err := h.Sessions.Login(w, r, user.ID); err != nil {
		h.Log.Error("failed to save session", zap.Error(err))
		http.Error(w, "Failed to save session", http.StatusInternalServerError)
		return
	}
	_ = h.Sessions.AddFlash(w, r, websession.CategorySuccess, "Welcome, "+user.Username+"!")
	http.Redirect(w, r, "/dashboard", http.StatusSeeOther)
}

// findOrCreateGoogleUser links the Google account to the user with the same
// email, creating the user if there is none.
func (h *Handler) findOrCreateGoogleUser(ctx context.Context, info *oauth2v2.Userinfo) (*users.User, error) {
	var user users.User
	err := h.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var account users.GoogleAccount
		err := tx.Where("google_id = ?", info.Id).First(&account).Error
		switch {
		case err == nil:
			account.Email = info.Email
			account.FirstName = info.GivenName
			account.LastName = info.FamilyName
			if err := tx.Save(&account).Error; err != nil {
				return fmt.Errorf("failed to update google account: %w", err)
			}
			return tx.First(&user, account.UserID).Error
		case !errors.Is(err, gorm.ErrRecordNotFound):
			return fmt.Errorf("failed to look up google account: %w", err)
		}

		err = tx.Where("email = ?", info.Email).First(&user).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			username, err := uniqueUsername(tx, info)
			if err != nil {
				return err
			}
			user = users.User{
				Username:  username,
				Email:     info.Email,
				AvatarURL: info.Picture,
				Provider:  users.ProviderGoogle,
			}
			if err := tx.Create(&user).Error; err != nil {
				return fmt.Errorf("failed to create user: %w", err)
			}
		} else if err != nil {
			return fmt.Errorf("failed to look up user by email: %w", err)
		}

		account = users.GoogleAccount{
			UserID:    user.ID,
			GoogleID:  info.Id,
			Email:     info.Email,
			FirstName: info.GivenName,
			LastName:  info.FamilyName,
		}
		if err := tx.Create(&account).Error; err != nil {
			return fmt.Errorf("failed to create google account: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// uniqueUsername derives a username from the email's local part, adding a
// number when it is taken.
func uniqueUsername(tx *gorm.DB, info *oauth2v2.Userinfo) (string, error) {
	base := info.Email
	if i := strings.IndexByte(base, '@'); i > 0 {
		base = base[:i]
	}
	if len(base) < 2 {
		base = "user"
	}
	candidate := base
	for i := 2; i < 1000; i++ {
		var n int64
		if err := tx.Model(&users.User{}).Where("username = ?", candidate).Count(&n).Error; err != nil {
			return "", fmt.Errorf("failed to check username: %w", err)
		}
		if n == 0 {
			return candidate, nil
		}
		candidate = fmt.Sprintf("%s%d", base, i)
	}
	return base + "-" + uuid.NewString()[:8], nil
}
