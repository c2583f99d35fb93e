package tabstore

import (
	"net/http"

	"github.com/gorilla/sessions"
)

// CookieFactory builds per-request cookie storage over one gorilla CookieStore.
type CookieFactory struct {
	store *sessions.CookieStore
	name  string
}

// NewCookieFactory creates a factory for the named guest cookie. hashKey
// authenticates and blockKey encrypts the cookie. The cookie carries no
// Max-Age, so the browser drops it when the browser session ends.
func NewCookieFactory(hashKey, blockKey []byte, name, domain string, secure bool) *CookieFactory {
	cs := sessions.NewCookieStore(hashKey, blockKey)
	cs.MaxAge(0)
	cs.Options.Path = "/"
	cs.Options.Domain = domain
	cs.Options.HttpOnly = true
	cs.Options.Secure = secure
	cs.Options.SameSite = http.SameSiteLaxMode
	return &CookieFactory{store: cs, name: name}
}

// For returns the storage bound to this request/response pair.
func (f *CookieFactory) For(w http.ResponseWriter, r *http.Request) *CookieStorage {
	return &CookieStorage{store: f.store, name: f.name, w: w, r: r}
}

// CookieStorage keeps key/value pairs in one encrypted session cookie. Set and
// Remove change the cached session only; Flush issues the cookie once for all
// pending changes. Reads in the same request see earlier writes because
// gorilla caches the session per request.
type CookieStorage struct {
	store sessions.Store
	name  string
	w     http.ResponseWriter
	r     *http.Request
	dirty bool
}

func (c *CookieStorage) session() (*sessions.Session, error) {
	sess, err := c.store.Get(c.r, c.name)
	if sess == nil {
		return nil, err
	}
	// A cookie that fails to decode (rotated keys, tampering) yields a fresh
	// empty session, which is what we want.
	return sess, nil
}

func (c *CookieStorage) Get(key string) (string, bool, error) {
	sess, err := c.session()
	if err != nil {
		return "", false, err
	}
	v, ok := sess.Values[key].(string)
	return v, ok, nil
}

func (c *CookieStorage) Set(key, value string) error {
	sess, err := c.session()
	if err != nil {
		return err
	}
	sess.Values[key] = value
	c.dirty = true
	return nil
}

func (c *CookieStorage) Remove(key string) error {
	sess, err := c.session()
	if err != nil {
		return err
	}
	if _, ok := sess.Values[key]; !ok {
		return nil
	}
	delete(sess.Values, key)
	c.dirty = true
	return nil
}

// Flush writes one Set-Cookie carrying every change since the last flush. It
// is a no-op when nothing changed.
func (c *CookieStorage) Flush() error {
	if !c.dirty {
		return nil
	}
	sess, err := c.session()
	if err != nil {
		return err
	}
	if err := sess.Save(c.r, c.w); err != nil {
		return err
	}
	c.dirty = false
	return nil
}
