package websession

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gorilla/sessions"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// roundTrip runs fn against a request carrying cookies and returns the
// cookies to send next time.
func roundTrip(t *testing.T, cookies []*http.Cookie, fn func(w http.ResponseWriter, r *http.Request)) []*http.Cookie {
	t.Helper()
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	for _, c := range cookies {
		r.AddCookie(c)
	}
	w := httptest.NewRecorder()
	fn(w, r)
	// every Save writes a Set-Cookie; the last one per name wins
	var fresh []*http.Cookie
	seen := map[string]int{}
	for _, c := range w.Result().Cookies() {
		if i, ok := seen[c.Name]; ok {
			fresh[i] = c
			continue
		}
		seen[c.Name] = len(fresh)
		fresh = append(fresh, c)
	}
	if len(fresh) > 0 {
		return fresh
	}
	return cookies
}

func newManager() *Manager {
	return NewManager(sessions.NewCookieStore([]byte("0123456789abcdef0123456789abcdef")))
}

func TestLoginLogout(t *testing.T) {
	m := newManager()

	cookies := roundTrip(t, nil, func(w http.ResponseWriter, r *http.Request) {
		_, ok := m.UserID(r)
		assert.False(t, ok)
		require.NoError(t, m.Login(w, r, 42))
	})
	cookies = roundTrip(t, cookies, func(w http.ResponseWriter, r *http.Request) {
		id, ok := m.UserID(r)
		assert.True(t, ok)
		assert.Equal(t, uint(42), id)
		require.NoError(t, m.Logout(w, r))
	})
	roundTrip(t, cookies, func(w http.ResponseWriter, r *http.Request) {
		// the expired cookie is still sent by this test client, but it is empty
		_, ok := m.UserID(r)
		assert.False(t, ok)
	})
}

func TestFlashesArePoppedOnce(t *testing.T) {
	m := newManager()

	cookies := roundTrip(t, nil, func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, m.AddFlash(w, r, CategoryWarning, "post first"))
	})
	cookies = roundTrip(t, cookies, func(w http.ResponseWriter, r *http.Request) {
		flashes := m.Flashes(w, r)
		require.Len(t, flashes, 1)
		assert.Equal(t, Flash{Category: CategoryWarning, Message: "post first"}, flashes[0])
	})
	roundTrip(t, cookies, func(w http.ResponseWriter, r *http.Request) {
		assert.Empty(t, m.Flashes(w, r))
	})
}

func TestToggleLike(t *testing.T) {
	m := newManager()

	var liked bool
	cookies := roundTrip(t, nil, func(w http.ResponseWriter, r *http.Request) {
		var err error
		liked, err = m.ToggleLike(w, r, TargetStory, 7)
		require.NoError(t, err)
	})
	assert.True(t, liked)

	cookies = roundTrip(t, cookies, func(w http.ResponseWriter, r *http.Request) {
		assert.True(t, m.Liked(r, TargetStory)[7])
		assert.False(t, m.Liked(r, TargetComment)[7], "story and comment likes are separate")
		var err error
		liked, err = m.ToggleLike(w, r, TargetStory, 7)
		require.NoError(t, err)
	})
	assert.False(t, liked)

	roundTrip(t, cookies, func(w http.ResponseWriter, r *http.Request) {
		assert.Empty(t, m.Liked(r, TargetStory))
	})
}

func TestOAuthState(t *testing.T) {
	m := newManager()
	cookies := roundTrip(t, nil, func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, m.SetOAuthState(w, r, "abc"))
	})
	cookies = roundTrip(t, cookies, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "abc", m.TakeOAuthState(w, r))
	})
	roundTrip(t, cookies, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "", m.TakeOAuthState(w, r))
	})
}

func TestToggleLikeKeepsNewestIDs(t *testing.T) {
	m := NewManager(sessions.NewCookieStore(
		[]byte("0123456789abcdef0123456789abcdef"),
		[]byte("abcdef0123456789abcdef0123456789"),
	))
	total := MaxLiked + 400

	cookies := roundTrip(t, nil, func(w http.ResponseWriter, r *http.Request) {
		for id := uint(1); id <= uint(total); id++ {
			liked, err := m.ToggleLike(w, r, TargetStory, id*1000)
			require.NoError(t, err, "like %d", id)
			require.True(t, liked)
		}
	})
	roundTrip(t, cookies, func(w http.ResponseWriter, r *http.Request) {
		liked := m.Liked(r, TargetStory)
		assert.Len(t, liked, MaxLiked)
		assert.True(t, liked[uint(total)*1000], "newest id is kept")
		assert.False(t, liked[1000], "oldest id is dropped")
	})
}

// brokenStore hands out sessions normally but never manages to save them.
type brokenStore struct{}

func (s brokenStore) Get(r *http.Request, name string) (*sessions.Session, error) {
	return sessions.GetRegistry(r).Get(s, name)
}

func (s brokenStore) New(_ *http.Request, name string) (*sessions.Session, error) {
	session := sessions.NewSession(s, name)
	session.IsNew = true
	return session, nil
}

func (brokenStore) Save(*http.Request, http.ResponseWriter, *sessions.Session) error {
	return errors.New("securecookie: the value is too long")
}

func TestToggleLikeRestoresSetWhenSaveFails(t *testing.T) {
	m := NewManager(brokenStore{})
	r := httptest.NewRequest(http.MethodPost, "/", nil)
	w := httptest.NewRecorder()

	liked, err := m.ToggleLike(w, r, TargetComment, 9)
	require.Error(t, err)
	assert.False(t, liked)
	assert.Empty(t, m.Liked(r, TargetComment))
}
