package auth

import (
	"strings"
)

const (
	schemeBasic    = "basic"
	schemePassport = "passport1.4"
)

// Header is a parsed WWW-Authenticate, Authorization or Authentication-Info
// header value. Malformed input never fails, it just yields a header that is
// neither Basic nor Passport.
type Header struct {
	Scheme      string
	LowerScheme string
	Param       string

	IsBasic    bool
	IsPassport bool

	// Credentials is set for Basic headers.
	Credentials Basic
	// Parameters is set for Passport1.4 headers.
	Parameters Parameters
}

// ParseHeader parses value. The scheme is everything before the first space.
func ParseHeader(value string) (h Header) {
	scheme, param, found := strings.Cut(value, " ")
	if scheme == "" {
		scheme = value
	}
	h.Scheme = scheme
	if found {
		h.Param = strings.TrimSpace(param)
	}
	h.LowerScheme = strings.ToLower(h.Scheme)

	switch h.LowerScheme {
	case schemeBasic:
		h.IsBasic = true
		h.Credentials = DecodeBasic(h.Param)
	case schemePassport:
		h.IsPassport = true
		h.Parameters = ParseParameters(h.Param)
	}
	return
}
