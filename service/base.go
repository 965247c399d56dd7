package main

import (
	"net/http"
	"strings"

	"github.com/sunshineplan/limiter"
	"github.com/sunshineplan/passportproxy/auth"
	"github.com/sunshineplan/utils/container"
	"github.com/sunshineplan/utils/httpsvr"
)

var base *Base

type Base struct {
	*httpsvr.Server
	limits    *container.Map[string, *limit]
	whitelist *container.Map[allow, *limit]
}

func NewBase(host, port string) *Base {
	base := &Base{
		Server:    httpsvr.New(),
		limits:    container.NewMap[string, *limit](),
		whitelist: container.NewMap[allow, *limit](),
	}
	base.Host = host
	base.Port = port
	return base
}

func (base *Base) hasWhitelist() (found bool) {
	base.whitelist.Range(func(allow, *limit) bool {
		found = true
		return false
	})
	return
}

func (base *Base) match(remoteAddr string) (res allow, lim *limit, ok bool) {
	base.whitelist.Range(func(a allow, l *limit) bool {
		if a.isAllow(remoteAddr) {
			res, lim, ok = a, l, true
			return false
		}
		return true
	})
	return
}

// check identifies the client of r and returns its speed limiter.
// A client is its Passport username when it sends Basic credentials, and its
// whitelist record otherwise. The username's limit takes precedence.
func (base *Base) check(w http.ResponseWriter, r *http.Request) (user, *limiter.Limiter, bool) {
	var u user
	var lim *limit
	if base.hasWhitelist() {
		a, l, ok := base.match(r.RemoteAddr)
		if !ok {
			notAllow.Do(func() { accessLogger.Printf("%s not allow", r.RemoteAddr) })
			http.Error(w, "access not allow", http.StatusForbidden)
			return user{}, nil, false
		}
		u, lim = user{string(a), true}, l
	}

	if h := auth.ParseHeader(r.Header.Get("Authorization")); h.IsBasic && h.Credentials.Username != "" {
		name := strings.ToLower(h.Credentials.Username)
		u = user{name, false}
		if l, ok := base.limits.Load(name); ok {
			lim = l
		}
	}

	if lim == nil {
		return u, limiter.New(limiter.Inf), true
	}
	if v, ok := recordMap.Load(u); ok && lim.isExceeded(v) {
		lim.st.Do(func() { accessLogger.Printf("%s[%s] Exceeded traffic limit", r.RemoteAddr, u) })
		http.Error(w, "exceeded traffic limit", http.StatusForbidden)
		return u, nil, false
	}
	return u, lim.speed, true
}
