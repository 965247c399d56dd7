package passportproxy

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSessionCookies(t *testing.T) {
	s := NewSession()
	assert.Empty(t, s.CookieHeader())

	s.SetCookies([]string{
		"auth=/a/",
		"MSPProf=abc; Domain=.login.example.com; Path=/; HttpOnly",
		"invalid",
	})
	assert.Equal(t, "auth=/a/; MSPProf=abc", s.CookieHeader())

	s.SetCookies([]string{"auth=/b/"})
	assert.Equal(t, "auth=/b/; MSPProf=abc", s.CookieHeader())

	s.RemoveAllCookies()
	assert.Empty(t, s.CookieHeader())
}

func TestSessionStore(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	store := NewSessionStore(time.Minute)
	store.now = func() time.Time { return now }

	session := NewSession()
	store.Store(session, "User.A@localhost", "secret")
	assert.Equal(t, 1, store.Len())

	assert.Same(t, session, store.Get("user.a@LOCALHOST", "secret"))
	assert.Nil(t, store.Get("user.a@localhost", "wrong"))
	assert.Nil(t, store.Get("user.b@localhost", "secret"))
	// A wrong password does not remove the session.
	assert.Equal(t, 1, store.Len())

	// Every successful lookup refreshes the session.
	now = now.Add(50 * time.Second)
	require.NotNil(t, store.Get("user.a@localhost", "secret"))
	now = now.Add(50 * time.Second)
	require.NotNil(t, store.Get("user.a@localhost", "secret"))

	now = now.Add(61 * time.Second)
	assert.Nil(t, store.Get("user.a@localhost", "secret"))
	assert.Zero(t, store.Len())
}

func TestSessionStoreReplace(t *testing.T) {
	store := NewSessionStore(0)
	first, second := NewSession(), NewSession()
	store.Store(first, "user", "one")
	store.Store(second, "USER", "two")

	assert.Equal(t, 1, store.Len())
	assert.Nil(t, store.Get("user", "one"))
	assert.Same(t, second, store.Get("user", "two"))

	store.Delete("User")
	assert.Zero(t, store.Len())
}

func TestSessionStorePurge(t *testing.T) {
	now := time.Now()
	store := NewSessionStore(time.Minute)
	store.now = func() time.Time { return now }

	store.Store(NewSession(), "old", "pwd")
	now = now.Add(30 * time.Second)
	store.Store(NewSession(), "new", "pwd")
	now = now.Add(45 * time.Second)

	assert.Equal(t, 1, store.Purge())
	assert.Equal(t, 1, store.Len())
	assert.NotNil(t, store.Get("new", "pwd"))
}
