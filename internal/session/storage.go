package session

import (
	"net/http"
	"sync"

	"github.com/gorilla/sessions"
)

// Storage is the per-tab key-value store that holds session and
// challenge state between requests.
type Storage interface {
	Get(key string) (string, bool)
	Set(key, value string)
	Remove(key string)
	Clear()
}

// MemoryStorage is an in-memory Storage.
type MemoryStorage struct {
	mu     sync.RWMutex
	values map[string]string
}

// NewMemoryStorage creates an empty storage.
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{values: map[string]string{}}
}

func (m *MemoryStorage) Get(key string) (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.values[key]
	return v, ok
}

func (m *MemoryStorage) Set(key, value string) {
	m.mu.Lock()
	m.values[key] = value
	m.mu.Unlock()
}

func (m *MemoryStorage) Remove(key string) {
	m.mu.Lock()
	delete(m.values, key)
	m.mu.Unlock()
}

func (m *MemoryStorage) Clear() {
	m.mu.Lock()
	m.values = map[string]string{}
	m.mu.Unlock()
}

// Len returns the number of stored keys.
func (m *MemoryStorage) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.values)
}

// CookieStorage keeps values in an encrypted gorilla session cookie.
// Changes are buffered until Save.
type CookieStorage struct {
	mu    sync.Mutex
	sess  *sessions.Session
	dirty bool
}

// NewCookieStorage wraps a session loaded from the request.
func NewCookieStorage(sess *sessions.Session) *CookieStorage {
	return &CookieStorage{sess: sess}
}

func (c *CookieStorage) Get(key string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.sess.Values[key].(string)
	return v, ok
}

func (c *CookieStorage) Set(key, value string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if cur, ok := c.sess.Values[key].(string); ok && cur == value {
		return
	}
	c.sess.Values[key] = value
	c.dirty = true
}

func (c *CookieStorage) Remove(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.sess.Values[key]; ok {
		delete(c.sess.Values, key)
		c.dirty = true
	}
}

func (c *CookieStorage) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.sess.Values) > 0 {
		for k := range c.sess.Values {
			delete(c.sess.Values, k)
		}
		c.dirty = true
	}
}

// Dirty reports whether the cookie needs to be written.
func (c *CookieStorage) Dirty() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.dirty
}

// Save writes the cookie if anything changed. An emptied session
// expires the cookie.
func (c *CookieStorage) Save(r *http.Request, w http.ResponseWriter) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.dirty {
		return nil
	}
	if len(c.sess.Values) == 0 {
		opts := sessions.Options{Path: "/"}
		if c.sess.Options != nil {
			opts = *c.sess.Options
		}
		opts.MaxAge = -1
		c.sess.Options = &opts
	}
	c.dirty = false
	return c.sess.Save(r, w)
}
