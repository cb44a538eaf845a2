package stories

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gorilla/mux"
	"github.com/gorilla/sessions"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"gorm.io/gorm"

	"emoji-stories/controllers/websession"
	"emoji-stories/internal/testutil"
	"emoji-stories/models/prompt"
	"emoji-stories/models/story"
	"emoji-stories/models/users"
	"emoji-stories/services"
)

// unsavableStore loses every session write, like a cookie that grew too big.
type unsavableStore struct{}

func (s unsavableStore) Get(r *http.Request, name string) (*sessions.Session, error) {
	return sessions.GetRegistry(r).Get(s, name)
}

func (s unsavableStore) New(_ *http.Request, name string) (*sessions.Session, error) {
	session := sessions.NewSession(s, name)
	session.IsNew = true
	return session, nil
}

func (unsavableStore) Save(*http.Request, http.ResponseWriter, *sessions.Session) error {
	return errors.New("securecookie: the value is too long")
}

func seedStory(t *testing.T, db *gorm.DB) story.Story {
	t.Helper()
	daily := prompt.DailyEmoji{Date: "2024-06-01", Emojis: "🦊 🚀 🍕"}
	require.NoError(t, db.Create(&daily).Error)
	author := users.User{Username: "olga", Email: "olga@example.com", PasswordHash: "x"}
	require.NoError(t, db.Create(&author).Error)
	st := story.Story{UserID: author.ID, DailyEmojiID: daily.ID, Body: "A fox flew a rocket to buy pizza."}
	require.NoError(t, db.Create(&st).Error)
	return st
}

func likeRequest(h *Handler, storyID uint) *httptest.ResponseRecorder {
	r := httptest.NewRequest(http.MethodPost, fmt.Sprintf("/stories/%d/like", storyID), nil)
	r = mux.SetURLVars(r, map[string]string{"id": fmt.Sprint(storyID)})
	w := httptest.NewRecorder()
	h.LikeStory(w, r)
	return w
}

func TestLikeStory(t *testing.T) {
	db := testutil.NewDB(t)
	st := seedStory(t, db)
	h := &Handler{
		Stories:  services.NewStoryService(db, nil, nil, nil),
		Sessions: websession.NewManager(sessions.NewCookieStore([]byte("0123456789abcdef0123456789abcdef"))),
		Log:      zaptest.NewLogger(t),
	}

	w := likeRequest(h, st.ID)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"likes":1,"liked":true}`, w.Body.String())
}

func TestLikeUndoneWhenSessionCannotBeSaved(t *testing.T) {
	db := testutil.NewDB(t)
	st := seedStory(t, db)
	h := &Handler{
		Stories:  services.NewStoryService(db, nil, nil, nil),
		Sessions: websession.NewManager(unsavableStore{}),
		Log:      zaptest.NewLogger(t),
	}

	for i := 0; i < 3; i++ {
		w := likeRequest(h, st.ID)
		assert.Equal(t, http.StatusInternalServerError, w.Code)
		assert.NotContains(t, w.Body.String(), "securecookie")
	}

	var stored story.Story
	require.NoError(t, db.First(&stored, st.ID).Error)
	assert.Equal(t, 0, stored.Likes, "counter is rolled back")
}
