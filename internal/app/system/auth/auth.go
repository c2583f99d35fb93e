package auth

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/sessions"
	"go.uber.org/zap"
	"golang.org/x/crypto/hkdf"
)

/*─────────────────────────────────────────────────────────────────────────────*
| Session constants                                                            |
*─────────────────────────────────────────────────────────────────────────────*/

const (
	DefaultSessionName = "promptshelf-session"

	isAuthKey = "is_authenticated"
	userIDKey = "user_id"
	userName  = "user_name"
	userEmail = "user_email"
)

// LoginPath is where RequireSignedIn sends anonymous browsers.
const LoginPath = "/auth/google"

// MinKeyLength is the shortest session key accepted.
const MinKeyLength = 32

// ErrShortKey is returned when the session key is shorter than MinKeyLength.
var ErrShortKey = fmt.Errorf("session key must be at least %d characters", MinKeyLength)

/*─────────────────────────────────────────────────────────────────────────────*
| Key derivation                                                               |
*─────────────────────────────────────────────────────────────────────────────*/

// Key purposes for DeriveKey. Each cookie gets its own keys so that one
// cookie's value can never be replayed as another's.
const (
	PurposeSessionHash  = "promptshelf/session/hash"
	PurposeSessionBlock = "promptshelf/session/block"
	PurposeGuestHash    = "promptshelf/guest/hash"
	PurposeGuestBlock   = "promptshelf/guest/block"
	PurposeTabHash      = "promptshelf/tab/hash"
)

// DeriveKey expands the configured secret into a 32-byte key for purpose.
func DeriveKey(secret, purpose string) []byte {
	r := hkdf.New(sha256.New, []byte(secret), nil, []byte(purpose))
	key := make([]byte, 32)
	if _, err := io.ReadFull(r, key); err != nil {
		// hkdf only fails after 255*32 bytes.
		panic(err)
	}
	return key
}

/*─────────────────────────────────────────────────────────────────────────────*
| Current user                                                                 |
*─────────────────────────────────────────────────────────────────────────────*/

// SessionUser is what we cache in the session and inject into r.Context().
type SessionUser struct {
	ID    string
	Name  string
	Email string
}

type ctxKey string

const currentUserKey ctxKey = "currentUser"

// CurrentUser returns the signed-in user and a found flag.
func CurrentUser(r *http.Request) (*SessionUser, bool) {
	u, ok := r.Context().Value(currentUserKey).(*SessionUser)
	return u, ok && u != nil
}

// WithTestUser injects u into the request context the way LoadSessionUser
// does. For handler tests.
func WithTestUser(r *http.Request, u *SessionUser) *http.Request {
	return withUser(r, u)
}

func withUser(r *http.Request, u *SessionUser) *http.Request {
	return r.WithContext(context.WithValue(r.Context(), currentUserKey, u))
}

/*─────────────────────────────────────────────────────────────────────────────*
| Session manager                                                              |
*─────────────────────────────────────────────────────────────────────────────*/

// SessionManager owns the signed-in user's session cookie.
type SessionManager struct {
	store *sessions.CookieStore
	name  string
	log   *zap.Logger

	onAnonymous []func(*http.Request)
}

// NewSessionManager creates the session manager. The cookie is signed and
// encrypted with keys derived from sessionKey.
//
// In production (secure=true) cookies are Secure. In local dev over
// http://localhost, use secure=false so cookies are accepted.
func NewSessionManager(sessionKey, name, domain string, maxAge time.Duration, secure bool, logger *zap.Logger) (*SessionManager, error) {
	if sessionKey == "" {
		return nil, errors.New("session key is empty; provide ≥32 random chars")
	}
	if len(sessionKey) < MinKeyLength {
		return nil, ErrShortKey
	}
	if name == "" {
		name = DefaultSessionName
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	store := sessions.NewCookieStore(
		DeriveKey(sessionKey, PurposeSessionHash),
		DeriveKey(sessionKey, PurposeSessionBlock),
	)
	store.MaxAge(int(maxAge.Seconds()))
	store.Options.Domain = domain
	store.Options.Path = "/"
	store.Options.Secure = secure
	store.Options.HttpOnly = true
	store.Options.SameSite = http.SameSiteLaxMode

	logger.Info("session manager initialized",
		zap.String("name", name),
		zap.Bool("secure", secure),
		zap.String("domain", domain))

	return &SessionManager{store: store, name: name, log: logger}, nil
}

// OnAnonymous registers fn to run on every request that has no signed-in
// user. Hooks run in registration order, before the next handler.
func (m *SessionManager) OnAnonymous(fn func(*http.Request)) {
	m.onAnonymous = append(m.onAnonymous, fn)
}

// LoadSessionUser injects the user into context if they are signed in, and
// fires the anonymous hooks otherwise.
func (m *SessionManager) LoadSessionUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sess, _ := m.store.Get(r, m.name)

		if isAuth, _ := sess.Values[isAuthKey].(bool); isAuth {
			u := &SessionUser{
				ID:    getString(sess, userIDKey),
				Name:  getString(sess, userName),
				Email: getString(sess, userEmail),
			}
			if u.ID != "" {
				next.ServeHTTP(w, withUser(r, u))
				return
			}
		}
		for _, fn := range m.onAnonymous {
			fn(r)
		}
		next.ServeHTTP(w, r)
	})
}

// SignIn stores u in the session cookie.
func (m *SessionManager) SignIn(w http.ResponseWriter, r *http.Request, u SessionUser) error {
	if u.ID == "" {
		return errors.New("sign in: user id is required")
	}
	sess, _ := m.store.Get(r, m.name)
	sess.Values[isAuthKey] = true
	sess.Values[userIDKey] = u.ID
	sess.Values[userName] = u.Name
	sess.Values[userEmail] = u.Email
	if err := sess.Save(r, w); err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	m.log.Info("user signed in", zap.String("user_id", u.ID))
	return nil
}

// SignOut clears the session cookie.
func (m *SessionManager) SignOut(w http.ResponseWriter, r *http.Request) error {
	sess, _ := m.store.Get(r, m.name)
	sess.Values = map[interface{}]interface{}{}
	sess.Options.MaxAge = -1
	if err := sess.Save(r, w); err != nil {
		return fmt.Errorf("clear session: %w", err)
	}
	return nil
}

// RequireSignedIn ensures there is a user in context (set by LoadSessionUser).
// If not signed in:
//   - HTMX: sends HX-Redirect to LoginPath?return=...
//   - HTML: 303 redirect to LoginPath?return=...
//   - API:  401 Unauthorized with a plain error body.
func (m *SessionManager) RequireSignedIn(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := CurrentUser(r); ok {
			next.ServeHTTP(w, r)
			return
		}

		ret := url.QueryEscape(currentURI(r))

		// HTMX: full-page client redirect (no partial swap)
		if r.Header.Get("HX-Request") == "true" {
			w.Header().Set("HX-Redirect", LoginPath+"?return="+ret)
			w.WriteHeader(http.StatusUnauthorized)
			return
		}

		// Browser/HTML: go to login and preserve return
		if wantsHTML(r) {
			http.Redirect(w, r, LoginPath+"?return="+ret, http.StatusSeeOther)
			return
		}

		http.Error(w, "unauthorized", http.StatusUnauthorized)
	})
}

// helpers

// getString safely extracts a string from a session value.
func getString(s *sessions.Session, key string) string {
	if v, ok := s.Values[key].(string); ok {
		return v
	}
	return ""
}

func wantsHTML(r *http.Request) bool {
	// Very light heuristic: treat it as HTML if it's HTMX or Accepts text/html.
	if r.Header.Get("HX-Request") == "true" {
		return true
	}
	return strings.Contains(r.Header.Get("Accept"), "text/html")
}

func currentURI(r *http.Request) string {
	u := *r.URL
	return u.RequestURI()
}
