package authentication

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/mail"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/dgrijalva/jwt-go"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/oauth2"
	"gorm.io/gorm"

	"emoji-stories/controllers/middleware"
	"emoji-stories/controllers/respond"
	"emoji-stories/controllers/websession"
	"emoji-stories/models/users"
	"emoji-stories/services"
	"emoji-stories/storage"
	"emoji-stories/templates"
)

const invalidLogin = "Invalid username or password. Please try again."

// Handler serves login, registration, tokens and the profile pages.
type Handler struct {
	DB       *gorm.DB
	Sessions *websession.Manager
	Pages    *templates.Pages
	Stories  *services.StoryService
	Log      *zap.Logger

	JWTKey   []byte
	TokenTTL time.Duration

	// Google is nil when Google sign-in is not configured.
	Google           *oauth2.Config
	GoogleUserinfoFn UserinfoFunc

	Images        storage.ImageStore
	MaxImageBytes int64

	// Limiter throttles login and registration attempts per client.
	Limiter *middleware.RateLimiter
}

type Claims struct {
	UserID   uint   `json:"user_id"`
	Username string `json:"username"`
	jwt.StandardClaims
}

type ctxKey struct{}

func withUser(ctx context.Context, u *users.User) context.Context {
	return context.WithValue(ctx, ctxKey{}, u)
}

// CurrentUser returns the user resolved by RequireUser, or nil.
func CurrentUser(r *http.Request) *users.User {
	u, _ := r.Context().Value(ctxKey{}).(*users.User)
	return u
}

// IssueToken signs a bearer token for u and returns it with its expiry.
func (h *Handler) IssueToken(u *users.User) (string, time.Time, error) {
	ttl := h.TokenTTL
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	now := time.Now()
	expires := now.Add(ttl)
	claims := &Claims{
		UserID:   u.ID,
		Username: u.Username,
		StandardClaims: jwt.StandardClaims{
			IssuedAt:  now.Unix(),
			ExpiresAt: expires.Unix(),
			Subject:   u.Username,
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(h.JWTKey)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, expires, nil
}

// ParseToken validates a bearer token and returns its claims.
func (h *Handler) ParseToken(tokenString string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", token.Header["alg"])
		}
		return h.JWTKey, nil
	})
	if err != nil {
		return nil, err
	}
	if !token.Valid || claims.UserID == 0 {
		return nil, errors.New("invalid token")
	}
	return claims, nil
}

// resolveUserID prefers a bearer token and falls back to the session.
func (h *Handler) resolveUserID(r *http.Request) (uint, error) {
	if authHeader := r.Header.Get("Authorization"); authHeader != "" {
		tokenString := strings.TrimPrefix(authHeader, "Bearer ")
		if tokenString == authHeader {
			return 0, errors.New("authorization header must be a bearer token")
		}
		claims, err := h.ParseToken(tokenString)
		if err != nil {
			return 0, err
		}
		return claims.UserID, nil
	}
	id, ok := h.Sessions.UserID(r)
	if !ok {
		return 0, errors.New("not logged in")
	}
	return id, nil
}

// RequireUser loads the signed-in user into the request context. Browsers
// without a session are sent to the login page, API callers get 401.
func (h *Handler) RequireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID, err := h.resolveUserID(r)
		if err != nil {
			h.unauthorized(w, r, "Please log in to access this page.")
			return
		}

		var user users.User
		if err := h.DB.WithContext(r.Context()).First(&user, userID).Error; err != nil {
			if !errors.Is(err, gorm.ErrRecordNotFound) {
				h.Log.Error("failed to load session user", zap.Uint("user_id", userID), zap.Error(err))
				http.Error(w, "Internal server error", http.StatusInternalServerError)
				return
			}
			// Session points at a user that no longer exists.
			_ = h.Sessions.Logout(w, r)
			h.unauthorized(w, r, "Please log in to access this page.")
			return
		}

		next.ServeHTTP(w, r.WithContext(withUser(r.Context(), &user)))
	})
}

func (h *Handler) unauthorized(w http.ResponseWriter, r *http.Request, message string) {
	if respond.WantsJSON(r) {
		respond.Error(w, http.StatusUnauthorized, "Unauthorized")
		return
	}
	_ = h.Sessions.AddFlash(w, r, websession.CategoryInfo, message)
	http.Redirect(w, r, "/login", http.StatusSeeOther)
}

// Index sends visitors to the dashboard or the login page.
func (h *Handler) Index(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.Sessions.UserID(r); ok {
		http.Redirect(w, r, "/dashboard", http.StatusSeeOther)
		return
	}
	http.Redirect(w, r, "/login", http.StatusSeeOther)
}

type loginPage struct {
	Username      string
	RegUsername   string
	RegEmail      string
	Errors        []string
	GoogleEnabled bool
}

func (h *Handler) showLogin(w http.ResponseWriter, r *http.Request, status int, data loginPage) {
	data.GoogleEnabled = h.Google != nil
	h.Pages.Show(w, r, status, "login", "Login / Register", nil, data)
}

// Login serves the combined login and registration page. A POST carries
// action=login or action=register.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.Sessions.UserID(r); ok {
		http.Redirect(w, r, "/dashboard", http.StatusSeeOther)
		return
	}

	switch r.Method {
	case http.MethodGet:
		h.showLogin(w, r, http.StatusOK, loginPage{})
		return
	case http.MethodPost:
	default:
		http.Error(w, "Invalid request method", http.StatusMethodNotAllowed)
		return
	}

	if err := r.ParseForm(); err != nil {
		http.Error(w, "Bad request", http.StatusBadRequest)
		return
	}
	if h.Limiter != nil && !h.Limiter.Allow(r) {
		_ = h.Sessions.AddFlash(w, r, websession.CategoryDanger, "Too many attempts. Please wait a moment and try again.")
		h.showLogin(w, r, http.StatusTooManyRequests, loginPage{})
		return
	}

	if r.PostFormValue("action") == "register" {
		h.register(w, r)
		return
	}

	username := strings.TrimSpace(r.PostFormValue("username"))
	user, err := h.authenticate(r.Context(), username, r.PostFormValue("password"))
	if err != nil {
		h.Log.Info("failed login", zap.String("username", username), zap.Error(err))
		_ = h.Sessions.AddFlash(w, r, websession.CategoryDanger, invalidLogin)
		h.showLogin(w, r, http.StatusUnauthorized, loginPage{Username: username})
		return
	}

	if err := h.Sessions.Login(w, r, user.ID); err != nil {
		h.Log.Error("failed to save session", zap.Error(err))
		http.Error(w, "Failed to save session", http.StatusInternalServerError)
		return
	}
	_ = h.Sessions.AddFlash(w, r, websession.CategorySuccess, "Welcome back, "+user.Username+"!")
	http.Redirect(w, r, "/dashboard", http.StatusSeeOther)
}

var errInvalidCredentials = errors.New("invalid credentials")

func (h *Handler) authenticate(ctx context.Context, username, password string) (*users.User, error) {
	var user users.User
	err := h.DB.WithContext(ctx).Where("username = ?", username).First(&user).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errInvalidCredentials
		}
		return nil, err
	}
	if user.PasswordHash == "" {
		// Google-only account.
		return nil, errInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, errInvalidCredentials
	}
	return &user, nil
}

type registration struct {
	Username  string
	Email     string
	Password  string
	Password2 string
}

// validate checks the form and uniqueness and returns every problem found.
func (reg registration) validate(ctx context.Context, db *gorm.DB) ([]string, error) {
	var problems []string

	if n := utf8.RuneCountInString(reg.Username); n == 0 || n > 64 {
		problems = append(problems, "Username is required and may have at most 64 characters.")
	}
	if addr, err := mail.ParseAddress(reg.Email); err != nil || addr.Address != reg.Email {
		problems = append(problems, "Please enter a valid email address.")
	}
	if !StrongPassword(reg.Password) {
		problems = append(problems, "Password must be at least 8 characters and contain a digit, a special character, a lowercase and an uppercase letter.")
	}
	if reg.Password != reg.Password2 {
		problems = append(problems, "Passwords must match.")
	}

	var n int64
	if err := db.WithContext(ctx).Model(&users.User{}).Where("username = ?", reg.Username).Count(&n).Error; err != nil {
		return nil, err
	}
	if n > 0 {
		problems = append(problems, "Please use a different username.")
	}
	if err := db.WithContext(ctx).Model(&users.User{}).Where("email = ?", reg.Email).Count(&n).Error; err != nil {
		return nil, err
	}
	if n > 0 {
		problems = append(problems, "Please use a different email address.")
	}
	return problems, nil
}

// StrongPassword requires at least 8 characters with a digit, a character
// outside A-Z, a-z and 0-9, an ASCII lowercase and an ASCII uppercase letter.
func StrongPassword(p string) bool {
	if utf8.RuneCountInString(p) < 8 {
		return false
	}
	var digit, special, lower, upper bool
	for _, c := range p {
		if unicode.IsDigit(c) {
			digit = true
		}
		switch {
		case c >= 'a' && c <= 'z':
			lower = true
		case c >= 'A' && c <= 'Z':
			upper = true
		case c < '0' || c > '9':
			special = true
		}
	}
	return digit && special && lower && upper
}

func (h *Handler) register(w http.ResponseWriter, r *http.Request) {
	reg := registration{
		Username:  strings.TrimSpace(r.PostFormValue("username")),
		Email:     strings.TrimSpace(r.PostFormValue("email")),
		Password:  r.PostFormValue("password"),
		Password2: r.PostFormValue("password2"),
	}

	problems, err := reg.validate(r.Context(), h.DB)
	if err != nil {
		h.Log.Error("failed to validate registration", zap.Error(err))
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	if len(problems) > 0 {
		h.showLogin(w, r, http.StatusBadRequest, loginPage{
			RegUsername: reg.Username,
			RegEmail:    reg.Email,
			Errors:      problems,
		})
		return
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(reg.Password), bcrypt.DefaultCost)
	if err != nil {
		http.Error(w, "Error hashing password", http.StatusInternalServerError)
		return
	}
	user := users.User{
		Username:     reg.Username,
		Email:        reg.Email,
		PasswordHash: string(hashedPassword),
		Provider:     users.ProviderLocal,
	}
	if err := h.DB.WithContext(r.Context()).Create(&user).Error; err != nil {
		h.Log.Error("failed to create user", zap.String("username", user.Username), zap.Error(err))
		_ = h.Sessions.AddFlash(w, r, websession.CategoryDanger, "Registration failed. Please try again.")
		h.showLogin(w, r, http.StatusInternalServerError, loginPage{RegUsername: reg.Username, RegEmail: reg.Email})
		return
	}

	if err := h.Sessions.Login(w, r, user.ID); err != nil {
		h.Log.Error("failed to save session", zap.Error(err))
		http.Error(w, "Failed to save session", http.StatusInternalServerError)
		return
	}
	h.Log.Info("user registered", zap.Uint("user_id", user.ID), zap.String("username", user.Username))
	_ = h.Sessions.AddFlash(w, r, websession.CategorySuccess, "Congratulations, your account has been created!")
	http.Redirect(w, r, "/dashboard", http.StatusSeeOther)
}

func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	if err := h.Sessions.Logout(w, r); err != nil {
		h.Log.Warn("failed to clear session", zap.Error(err))
	}
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

type tokenRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type tokenResponse struct {
	Token     string `json:"token"`
	ExpiresAt int64  `json:"expires_at"`
}

// Token exchanges a username and password for a bearer token.
func (h *Handler) Token(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		respond.Error(w, http.StatusMethodNotAllowed, "Invalid request method")
		return
	}
	var req tokenRequest
	if err := respond.DecodeJSON(r, &req); err != nil {
		respond.Error(w, http.StatusBadRequest, "Invalid input")
		return
	}

	user, err := h.authenticate(r.Context(), strings.TrimSpace(req.Username), req.Password)
	if err != nil {
		if errors.Is(err, errInvalidCredentials) {
			respond.Error(w, http.StatusUnauthorized, invalidLogin)
			return
		}
		h.Log.Error("failed to authenticate", zap.Error(err))
		respond.Error(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	tokenString, expires, err := h.IssueToken(user)
	if err != nil {
		respond.Error(w, http.StatusInternalServerError, "Error generating token")
		return
	}
	respond.JSON(w, http.StatusOK, tokenResponse{Token: tokenString, ExpiresAt: expires.Unix()})
}
