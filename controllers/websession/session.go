// Package websession wraps the cookie session: the signed-in user, flash
// messages and the per-session like sets.
package websession

import (
	"net/http"

	"github.com/gorilla/sessions"
)

const Name = "emoji-stories"

const (
	keyUserID        = "user_id"
	keyLikedStories  = "liked_stories"
	keyLikedComments = "liked_comments"
	keyOAuthState    = "oauth_state"
	flashKeyPrefix   = "flash_"
)

const (
	CategorySuccess = "success"
	CategoryInfo    = "info"
	CategoryWarning = "warning"
	CategoryDanger  = "danger"
)

const (
	TargetStory   = "story"
	TargetComment = "comment"
)

var categories = []string{CategorySuccess, CategoryInfo, CategoryWarning, CategoryDanger}

// Flash is one message shown once on the next rendered page.
type Flash struct {
	Category string
	Message  string
}

type Manager struct {
	store sessions.Store
}

func NewManager(store sessions.Store) *Manager {
	return &Manager{store: store}
}

// get never fails: a cookie that no longer decodes yields a fresh session.
func (m *Manager) get(r *http.Request) *sessions.Session {
	session, _ := m.store.Get(r, Name)
	return session
}

func (m *Manager) UserID(r *http.Request) (uint, bool) {
	id, ok := m.get(r).Values[keyUserID].(uint)
	return id, ok && id != 0
}

func (m *Manager) Login(w http.ResponseWriter, r *http.Request, userID uint) error {
	session := m.get(r)
	session.Values[keyUserID] = userID
	return session.Save(r, w)
}

// Logout drops the whole session, liked sets included.
func (m *Manager) Logout(w http.ResponseWriter, r *http.Request) error {
	session := m.get(r)
	for k := range session.Values {
		delete(session.Values, k)
	}
	session.Options.MaxAge = -1
	return session.Save(r, w)
}

func (m *Manager) AddFlash(w http.ResponseWriter, r *http.Request, category, message string) error {
	session := m.get(r)
	session.AddFlash(message, flashKeyPrefix+category)
	return session.Save(r, w)
}

// Flashes pops every pending flash message.
func (m *Manager) Flashes(w http.ResponseWriter, r *http.Request) []Flash {
	session := m.get(r)
	var out []Flash
	for _, category := range categories {
		for _, f := range session.Flashes(flashKeyPrefix + category) {
			if msg, ok := f.(string); ok {
				out = append(out, Flash{Category: category, Message: msg})
			}
		}
	}
	if len(out) > 0 {
		_ = session.Save(r, w)
	}
	return out
}

func likedKey(target string) string {
	if target == TargetComment {
		return keyLikedComments
	}
	return keyLikedStories
}

func likedIDs(session *sessions.Session, target string) []uint {
	ids, _ := session.Values[likedKey(target)].([]uint)
	return ids
}

// Liked returns the ids of target items liked in this session.
func (m *Manager) Liked(r *http.Request, target string) map[uint]bool {
	out := map[uint]bool{}
	for _, id := range likedIDs(m.get(r), target) {
		out[id] = true
	}
	return out
}

// MaxLiked bounds each liked set so the cookie stays under the 4 KB limit.
// Past it the oldest ids are forgotten.
const MaxLiked = 200

// ToggleLike flips the like state of one item for this session and reports
// whether it is now liked. The caller adjusts the stored counter. When the
// session cannot be saved the previous set is restored and the error returned.
func (m *Manager) ToggleLike(w http.ResponseWriter, r *http.Request, target string, id uint) (bool, error) {
	session := m.get(r)
	key := likedKey(target)
	ids := likedIDs(session, target)

	liked := true
	kept := make([]uint, 0, len(ids)+1)
	for _, existing := range ids {
		if existing == id {
			liked = false
			continue
		}
		kept = append(kept, existing)
	}
	if liked {
		kept = append(kept, id)
		if len(kept) > MaxLiked {
			kept = kept[len(kept)-MaxLiked:]
		}
	}
	session.Values[key] = kept
	if err := session.Save(r, w); err != nil {
		if ids == nil {
			delete(session.Values, key)
		} else {
			session.Values[key] = ids
		}
		return !liked, err
	}
	return liked, nil
}

func (m *Manager) SetOAuthState(w http.ResponseWriter, r *http.Request, state string) error {
	session := m.get(r)
	session.Values[keyOAuthState] = state
	return session.Save(r, w)
}

// TakeOAuthState returns and clears the pending OAuth state.
func (m *Manager) TakeOAuthState(w http.ResponseWriter, r *http.Request) string {
	session := m.get(r)
	state, _ := session.Values[keyOAuthState].(string)
	delete(session.Values, keyOAuthState)
	_ = session.Save(r, w)
	return state
}
