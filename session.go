package passportproxy

import (
	"crypto/sha1"
	"encoding/base64"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/net/publicsuffix"
)

// DefaultSessionTTL is how long an unused Session is kept.
const DefaultSessionTTL = 15 * time.Minute

// All Passport cookies are stored under this fictional origin, whatever host
// set them, because they must be sent to other hosts later on.
var cookieURL = &url.URL{Scheme: "https", Host: "localpassportcookiesstore-pl8q2i8k0j69autiip51.com", Path: "/"}

// Session is the Passport state of one user: password hash and cookies.
type Session struct {
	mu           sync.Mutex
	passwordHash string
	jar          *cookiejar.Jar
	lastAccessed time.Time
}

func newJar() *cookiejar.Jar {
	jar, _ := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	return jar
}

// NewSession returns a Session without cookies.
func NewSession() *Session {
	return &Session{jar: newJar(), lastAccessed: time.Now()}
}

// SetCookies stores the cookies of Set-Cookie header values. Domain
// attributes are rewritten to the cookie store host.
func (s *Session) SetCookies(setCookies []string) {
	var cookies []*http.Cookie
	for _, line := range setCookies {
		cookie, err := http.ParseSetCookie(line)
		if err != nil {
			continue
		}
		if cookie.Domain != "" {
			cookie.Domain = cookieURL.Hostname()
		}
		cookies = append(cookies, cookie)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.jar.SetCookies(cookieURL, cookies)
}

// CookieHeader returns the stored cookies as a Cookie header value.
func (s *Session) CookieHeader() string {
	s.mu.Lock()
	cookies := s.jar.Cookies(cookieURL)
	s.mu.Unlock()

	pairs := make([]string, 0, len(cookies))
	for _, cookie := range cookies {
		pairs = append(pairs, cookie.Name+"="+cookie.Value)
	}
	return strings.Join(pairs, "; ")
}

// RemoveAllCookies drops every stored cookie.
func (s *Session) RemoveAllCookies() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jar = newJar()
}

// SessionStore maps usernames to Sessions. Usernames are e-mail names and
// compared case-insensitively.
type SessionStore struct {
	mu       sync.Mutex
	ttl      time.Duration
	sessions map[string]*Session

	now func() time.Time
}

// NewSessionStore returns an empty store evicting sessions unused for ttl.
func NewSessionStore(ttl time.Duration) *SessionStore {
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	return &SessionStore{ttl: ttl, sessions: make(map[string]*Session), now: time.Now}
}

func normalizeUsername(username string) string { return strings.ToLower(username) }

func hashPassword(password string) string {
	sum := sha1.Sum([]byte(password))
	return base64.StdEncoding.EncodeToString(sum[:])
}

// Store saves session for username, replacing any previous one.
func (s *SessionStore) Store(session *Session, username, password string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	session.mu.Lock()
	session.passwordHash = hashPassword(password)
	session.lastAccessed = s.now()
	session.mu.Unlock()

	s.sessions[normalizeUsername(username)] = session
}

// Get returns the session of username if it exists, has not expired and
// password matches. Otherwise it returns nil.
func (s *SessionStore) Get(username, password string) *Session {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := normalizeUsername(username)
	session, ok := s.sessions[key]
	if !ok {
		return nil
	}

	session.mu.Lock()
	defer session.mu.Unlock()

	now := s.now()
	if session.lastAccessed.Before(now.Add(-s.ttl)) {
		delete(s.sessions, key)
		return nil
	}
	if session.passwordHash != hashPassword(password) {
		return nil
	}
	session.lastAccessed = now
	return session
}

// Delete removes the session of username.
func (s *SessionStore) Delete(username string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, normalizeUsername(username))
}

// Purge removes all expired sessions and returns how many were removed.
func (s *SessionStore) Purge() (n int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	deadline := s.now().Add(-s.ttl)
	for key, session := range s.sessions {
		session.mu.Lock()
		expired := session.lastAccessed.Before(deadline)
		session.mu.Unlock()
		if expired {
			delete(s.sessions, key)
			n++
		}
	}
	return
}

// Len returns the number of stored sessions.
func (s *SessionStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}
