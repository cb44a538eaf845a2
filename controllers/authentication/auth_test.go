package authentication

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/dgrijalva/jwt-go"
	"github.com/gorilla/sessions"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"google.golang.org/api/googleapi"
	oauth2v2 "google.golang.org/api/oauth2/v2"

	"emoji-stories/controllers/websession"
	"emoji-stories/internal/testutil"
	"emoji-stories/models/users"
	"emoji-stories/templates"
)

func newHandler(t *testing.T) *Handler {
	t.Helper()
	renderer, err := templates.New()
	require.NoError(t, err)
	mgr := websession.NewManager(sessions.NewCookieStore([]byte("0123456789abcdef0123456789abcdef")))
	return &Handler{
		DB:       testutil.NewDB(t),
		Sessions: mgr,
		Pages:    &templates.Pages{Renderer: renderer, Sessions: mgr},
		Log:      zap.NewNop(),
		JWTKey:   []byte("test-key"),
		TokenTTL: time.Hour,
	}
}

func TestStrongPassword(t *testing.T) {
	cases := map[string]bool{
		"Sup3r$ecret": true,
		"Aa1!aaaa":    true,
		"Aa1!aaa":     false, // too short
		"aa1!aaaa":    false, // no uppercase
		"AA1!AAAA":    false, // no lowercase
		"Aaa!aaaa":    false, // no digit
		"Aa1aaaaa":    false, // no special character
		"Ab1 ääää":    true,
		"Ää1!ääää":    false, // letters must be ASCII
	}
	for password, want := range cases {
		assert.Equal(t, want, StrongPassword(password), password)
	}
}

func TestTokenRoundTrip(t *testing.T) {
	h := newHandler(t)
	u := &users.User{ID: 7, Username: "zoe"}

	token, expires, err := h.IssueToken(u)
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(time.Hour), expires, time.Minute)

	claims, err := h.ParseToken(token)
	require.NoError(t, err)
	assert.Equal(t, uint(7), claims.UserID)
	assert.Equal(t, "zoe", claims.Username)

	other := &Handler{JWTKey: []byte("another-key")}
	_, err = other.ParseToken(token)
	assert.Error(t, err, "signature must match")
}

func TestParseTokenRejectsExpiredAndNone(t *testing.T) {
	h := newHandler(t)

	expired := jwt.NewWithClaims(jwt.SigningMethodHS256, &Claims{
		UserID:         1,
		StandardClaims: jwt.StandardClaims{ExpiresAt: time.Now().Add(-time.Minute).Unix()},
	})
	s, err := expired.SignedString(h.JWTKey)
	require.NoError(t, err)
	_, err = h.ParseToken(s)
	assert.Error(t, err)

	none := jwt.NewWithClaims(jwt.SigningMethodNone, &Claims{UserID: 1})
	s, err = none.SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)
	_, err = h.ParseToken(s)
	assert.Error(t, err)
}

func TestRequireUser(t *testing.T) {
	h := newHandler(t)
	u := users.User{Username: "yara", Email: "yara@example.com"}
	require.NoError(t, h.DB.Create(&u).Error)

	protected := h.RequireUser(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, CurrentUser(r).Username)
	}))

	r := httptest.NewRequest(http.MethodGet, "/dashboard", nil)
	w := httptest.NewRecorder()
	protected.ServeHTTP(w, r)
	assert.Equal(t, http.StatusSeeOther, w.Code)
	assert.Equal(t, "/login", w.Header().Get("Location"))

	r = httptest.NewRequest(http.MethodGet, "/api/streak", nil)
	w = httptest.NewRecorder()
	protected.ServeHTTP(w, r)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	token, _, err := h.IssueToken(&u)
	require.NoError(t, err)
	r = httptest.NewRequest(http.MethodGet, "/api/streak", nil)
	r.Header.Set("Authorization", "Bearer "+token)
	w = httptest.NewRecorder()
	protected.ServeHTTP(w, r)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "yara", w.Body.String())

	// A token for a user that was deleted afterwards.
	ghost, _, err := h.IssueToken(&users.User{ID: 999, Username: "ghost"})
	require.NoError(t, err)
	r = httptest.NewRequest(http.MethodGet, "/api/streak", nil)
	r.Header.Set("Authorization", "Bearer "+ghost)
	w = httptest.NewRecorder()
	protected.ServeHTTP(w, r)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

// googleFixture runs the Google handlers behind a test server with a fake
// token endpoint.
type googleFixture struct {
	h      *Handler
	server *httptest.Server
	client *http.Client
	info   *oauth2v2.Userinfo
}

func newGoogleFixture(t *testing.T) *googleFixture {
	t.Helper()
	tokenServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"access_token":"at","token_type":"Bearer","expires_in":3600}`)
	}))
	t.Cleanup(tokenServer.Close)

	f := &googleFixture{h: newHandler(t)}
	f.h.Google = &oauth2.Config{
		ClientID:     "client",
		ClientSecret: "secret",
		RedirectURL:  "http://localhost/callback/google",
		Endpoint: oauth2.Endpoint{
			AuthURL:  "https://accounts.example.com/auth",
			TokenURL: tokenServer.URL,
		},
	}
	f.h.GoogleUserinfoFn = func(ctx context.Context, ts oauth2.TokenSource) (*oauth2v2.Userinfo, error) {
		tok, err := ts.Token()
		if err != nil {
			return nil, err
		}
		if tok.AccessToken != "at" {
			return nil, fmt.Errorf("unexpected token %q", tok.AccessToken)
		}
		return f.info, nil
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/login/google", f.h.HandleGoogleLogin)
	mux.HandleFunc("/callback/google", f.h.HandleGoogleCallback)
	mux.Handle("/whoami", f.h.RequireUser(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, CurrentUser(r).Username)
	})))
	f.server = httptest.NewServer(mux)
	t.Cleanup(f.server.Close)

	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	f.client = &http.Client{
		Jar: jar,
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
	return f
}

func (f *googleFixture) signIn(t *testing.T) *http.Response {
	t.Helper()
	resp, err := f.client.Get(f.server.URL + "/login/google")
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusTemporaryRedirect, resp.StatusCode)

	loc, err := url.Parse(resp.Header.Get("Location"))
	require.NoError(t, err)
	state := loc.Query().Get("state")
	require.NotEmpty(t, state)

	resp, err = f.client.Get(f.server.URL + "/callback/google?code=abc&state=" + url.QueryEscape(state))
	require.NoError(t, err)
	resp.Body.Close()
	return resp
}

func (f *googleFixture) whoami(t *testing.T) string {
	t.Helper()
	resp, err := f.client.Get(f.server.URL + "/whoami")
	require.NoError(t, err)
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return string(b)
}

func TestGoogleSignInCreatesUser(t *testing.T) {
	f := newGoogleFixture(t)
	f.info = &oauth2v2.Userinfo{Id: "g-1", Email: "olga@example.com", VerifiedEmail: googleapi.Bool(true), GivenName: "Olga", FamilyName: "K", Picture: "https://example.com/o.png"}

	resp := f.signIn(t)
	require.Equal(t, http.StatusSeeOther, resp.StatusCode)
	assert.Equal(t, "/dashboard", resp.Header.Get("Location"))
	assert.Equal(t, "olga", f.whoami(t))

	var u users.User
	require.NoError(t, f.h.DB.Where("email = ?", "olga@example.com").First(&u).Error)
	assert.Equal(t, users.ProviderGoogle, u.Provider)
	assert.Equal(t, "https://example.com/o.png", u.AvatarURL)

	// Signing in again reuses the linked account.
	f.info.GivenName = "Olga-Maria"
	resp = f.signIn(t)
	require.Equal(t, http.StatusSeeOther, resp.StatusCode)

	var n int64
	require.NoError(t, f.h.DB.Model(&users.User{}).Count(&n).Error)
	assert.Equal(t, int64(1), n)
	var account users.GoogleAccount
	require.NoError(t, f.h.DB.Where("google_id = ?", "g-1").First(&account).Error)
	assert.Equal(t, "Olga-Maria", account.FirstName)
}

func TestGoogleSignInLinksExistingEmail(t *testing.T) {
	f := newGoogleFixture(t)
	local := users.User{Username: "olga", Email: "olga@example.com", PasswordHash: "x"}
	require.NoError(t, f.h.DB.Create(&local).Error)
	other := users.User{Username: "pete", Email: "pete@elsewhere.com"}
	require.NoError(t, f.h.DB.Create(&other).Error)

	f.info = &oauth2v2.Userinfo{Id: "g-2", Email: "olga@example.com", VerifiedEmail: googleapi.Bool(true)}
	resp := f.signIn(t)
	require.Equal(t, http.StatusSeeOther, resp.StatusCode)
	assert.Equal(t, "olga", f.whoami(t))

	// A new email whose local part is taken gets a numbered username.
	f2 := newGoogleFixture(t)
	f2.h.DB = f.h.DB
	f2.info = &oauth2v2.Userinfo{Id: "g-3", Email: "pete@example.com", VerifiedEmail: googleapi.Bool(true)}
	resp = f2.signIn(t)
	require.Equal(t, http.StatusSeeOther, resp.StatusCode)
	assert.Equal(t, "pete2", f2.whoami(t))
}

func TestGoogleSignInRejectsUnverifiedEmail(t *testing.T) {
	f := newGoogleFixture(t)
	local := users.User{Username: "olga", Email: "olga@example.com", PasswordHash: "x"}
	require.NoError(t, f.h.DB.Create(&local).Error)

	for _, verified := range []*bool{nil, googleapi.Bool(false)} {
		f.info = &oauth2v2.Userinfo{Id: "g-evil", Email: "olga@example.com", VerifiedEmail: verified}
		resp := f.signIn(t)
		require.Equal(t, http.StatusSeeOther, resp.StatusCode)
		assert.Equal(t, "/login", resp.Header.Get("Location"))
	}

	resp, err := f.client.Get(f.server.URL + "/whoami")
	require.NoError(t, err)
	resp.Body.Close()
	assert.NotEqual(t, http.StatusOK, resp.StatusCode, "no session was created")

	var n int64
	require.NoError(t, f.h.DB.Model(&users.GoogleAccount{}).Count(&n).Error)
	assert.Zero(t, n, "the local account stays unlinked")
}

func TestGoogleCallbackRejectsBadState(t *testing.T) {
	f := newGoogleFixture(t)
	resp, err := f.client.Get(f.server.URL + "/callback/google?code=abc&state=forged")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusSeeOther, resp.StatusCode)
	assert.Equal(t, "/login", resp.Header.Get("Location"))
}
