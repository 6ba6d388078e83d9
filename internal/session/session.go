// Package session keeps the short-lived browser sessions behind the
// login flow. Sessions live in memory, expire on their own, and reach
// the rest of the system only through the read-only core.SessionReader
// view.
package session

import (
	"crypto/rand"
	"encoding/base64"
	"net/http"
	"sync"
	"time"

	"github.com/solid/oidc-auth-manager/internal/core"
	"github.com/solid/oidc-auth-manager/internal/metrics"
)

const (
	// CookieName carries the session id between browser and provider.
	CookieName = "oam_sid"

	// DefaultTTL is how long a session lives without being renewed.
	DefaultTTL = 24 * time.Hour

	sweepInterval = time.Minute
)

type state struct {
	userID    string
	expiresAt time.Time
}

// Store is an in-memory session store with background expiry.
type Store struct {
	mu       sync.RWMutex
	sessions map[string]state

	ttl    time.Duration
	secure bool

	done      chan struct{}
	closeOnce sync.Once
}

var _ core.SessionReader = (*Store)(nil)

// NewStore creates a store whose sessions last ttl (DefaultTTL when
// zero). secure marks issued cookies https-only.
func NewStore(ttl time.Duration, secure bool) *Store {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	s := &Store{
		sessions: make(map[string]state),
		ttl:      ttl,
		secure:   secure,
		done:     make(chan struct{}),
	}
	go s.sweep()
	return s
}

// Close stops the expiry sweeper.
func (s *Store) Close() {
	s.closeOnce.Do(func() {
		close(s.done)
	})
}

// Create starts a session for userID and returns its id.
func (s *Store) Create(userID string) string {
	sid := newSessionID()

	s.mu.Lock()
	s.sessions[sid] = state{
		userID:    userID,
		expiresAt: time.Now().Add(s.ttl),
	}
	n := len(s.sessions)
	s.mu.Unlock()

	metrics.SetActiveSessions(n)
	return sid
}

// Destroy forgets the session with the given id.
func (s *Store) Destroy(sid string) {
	s.mu.Lock()
	delete(s.sessions, sid)
	n := len(s.sessions)
	s.mu.Unlock()

	metrics.SetActiveSessions(n)
}

// Read resolves the request's session cookie. Absent, unknown and
// expired sessions all read as the zero session.
func (s *Store) Read(r *http.Request) core.Session {
	cookie, err := r.Cookie(CookieName)
	if err != nil || cookie.Value == "" {
		return core.Session{}
	}

	s.mu.RLock()
	st, ok := s.sessions[cookie.Value]
	s.mu.RUnlock()

	if !ok || time.Now().After(st.expiresAt) {
		return core.Session{}
	}
	return core.Session{Identified: true, UserID: st.userID}
}

// Issue starts a session for userID and sets its cookie on the response.
func (s *Store) Issue(w http.ResponseWriter, userID string) string {
	sid := s.Create(userID)
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    sid,
		Path:     "/",
		MaxAge:   int(s.ttl.Seconds()),
		HttpOnly: true,
		Secure:   s.secure,
		SameSite: http.SameSiteLaxMode,
	})
	return sid
}

// Clear destroys the request's session and expires its cookie.
func (s *Store) Clear(w http.ResponseWriter, r *http.Request) {
	if cookie, err := r.Cookie(CookieName); err == nil {
		s.Destroy(cookie.Value)
	}
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   s.secure,
	})
}

// Len returns the number of live sessions.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

func (s *Store) sweep() {
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-s.done:
			return
		case now := <-ticker.C:
			s.deleteExpired(now)
		}
	}
}

func (s *Store) deleteExpired(now time.Time) {
	s.mu.Lock()
	for sid, st := range s.sessions {
		if now.After(st.expiresAt) {
			delete(s.sessions, sid)
		}
	}
	n := len(s.sessions)
	s.mu.Unlock()

	metrics.SetActiveSessions(n)
}

// Session ids come from the system RNG; a predictable id would let
// anyone impersonate a logged-in user.
func newSessionID() string {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		panic("session: system rng unavailable: " + err.Error())
	}
	return base64.RawURLEncoding.EncodeToString(buf)
}
