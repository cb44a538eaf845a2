package config

import (
	"crypto/sha256"
	"net/http"

	"github.com/gorilla/sessions"
)

// NewSessionStore builds the cookie store. The secret is stretched into a
// 32-byte signing key and a 32-byte AES key.
func NewSessionStore(cfg SessionConfig) *sessions.CookieStore {
	authKey := sha256.Sum256([]byte("auth:" + cfg.Secret))
	encKey := sha256.Sum256([]byte("enc:" + cfg.Secret))

	store := sessions.NewCookieStore(authKey[:], encKey[:])
	store.Options = &sessions.Options{
		Path:     "/",
		MaxAge:   cfg.MaxAge,
		HttpOnly: true,
		Secure:   cfg.Secure,
		SameSite: http.SameSiteLaxMode,
	}
	return store
}
