package auth

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"strings"
	"time"

	"tkremote/internal/database"
	"tkremote/internal/model"
)

const (
	cookieName    = "tkremote_session"
	sessionMaxAge = 24 * time.Hour
)

// SessionManager issues and checks browser sessions. The cookie carries
// the token together with an HMAC over it, so a forged or tampered cookie
// is rejected without touching the database; only tokens that pass the
// signature check are looked up.
type SessionManager struct {
	secret []byte
	db     *database.DB
}

func NewSessionManager(db *database.DB) (*SessionManager, error) {
	secret, err := db.EnsureSessionSecret()
	if err != nil {
		return nil, fmt.Errorf("failed to load session secret: %w", err)
	}
	return &SessionManager{secret: []byte(secret), db: db}, nil
}

// CreateSession persists a new session and sets its cookie. The returned
// CSRF token is handed to the client once and must accompany every
// mutating request.
func (sm *SessionManager) CreateSession(w http.ResponseWriter, username string) string {
	s := model.Session{
		Token:     randomToken(),
		CSRFToken: randomToken(),
		Username:  username,
		ExpiresAt: time.Now().Add(sessionMaxAge),
	}
	_ = sm.db.CreateSession(s)

	http.SetCookie(w, &http.Cookie{
		Name:     cookieName,
		Value:    encodeSessionCookie(sm.secret, s.Token),
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteStrictMode,
		MaxAge:   int(sessionMaxAge.Seconds()),
	})
	return s.CSRFToken
}

func (sm *SessionManager) DestroySession(w http.ResponseWriter, r *http.Request) {
	if cookie, err := r.Cookie(cookieName); err == nil {
		if token, ok := decodeSessionCookie(sm.secret, cookie.Value); ok {
			_ = sm.db.DeleteSession(token)
		}
	}
	http.SetCookie(w, &http.Cookie{
		Name:   cookieName,
		Value:  "",
		Path:   "/",
		MaxAge: -1,
	})
}

func (sm *SessionManager) session(r *http.Request) *model.Session {
	cookie, err := r.Cookie(cookieName)
	if err != nil {
		return nil
	}
	token, ok := decodeSessionCookie(sm.secret, cookie.Value)
	if !ok {
		return nil
	}
	s, err := sm.db.SessionByToken(token)
	if err != nil {
		return nil
	}
	return s
}

func (sm *SessionManager) GetUsername(r *http.Request) (string, bool) {
	s := sm.session(r)
	if s == nil {
		return "", false
	}
	return s.Username, true
}

func (sm *SessionManager) ValidateCSRF(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodPatch:
			s := sm.session(r)
			if s == nil {
				http.Error(w, "Forbidden: no session", http.StatusForbidden)
				return
			}
			submitted := r.Header.Get("X-CSRF-Token")
			if submitted == "" {
				submitted = r.FormValue("csrf_token")
			}
			if submitted == "" || submitted != s.CSRFToken {
				http.Error(w, "Forbidden: invalid CSRF token", http.StatusForbidden)
				return
			}
		}
		next(w, r)
	}
}

func (sm *SessionManager) RequireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if sm.session(r) == nil {
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next(w, r)
	}
}

func (sm *SessionManager) RequireAdmin(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s := sm.session(r)
		if s == nil {
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		user, _ := sm.db.GetUserByUsername(s.Username)
		if user == nil || user.Role != "admin" {
			http.Error(w, "Forbidden", http.StatusForbidden)
			return
		}
		next(w, r)
	}
}

func signToken(secret []byte, token string) string {
	mac := hmac.New(sha256.New, secret)
	mac.Write([]byte(token))
	return hex.EncodeToString(mac.Sum(nil))
}

// encodeSessionCookie packs a token as "token.signature".
func encodeSessionCookie(secret []byte, token string) string {
	return token + "." + signToken(secret, token)
}

// decodeSessionCookie extracts the token from a cookie value, rejecting
// anything whose signature does not verify under the given secret.
func decodeSessionCookie(secret []byte, value string) (string, bool) {
	token, sig, found := strings.Cut(value, ".")
	if !found || token == "" {
		return "", false
	}
	if !hmac.Equal([]byte(sig), []byte(signToken(secret, token))) {
		return "", false
	}
	return token, true
}

func randomToken() string {
	b := make([]byte, 32)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}
