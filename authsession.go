package passportproxy

import "github.com/sunshineplan/passportproxy/auth"

// AuthSession holds the Passport state of one client request/response cycle.
// It is owned by a single flow and never shared.
type AuthSession struct {
	// Config is the configuration server data (DALogin, DARealm, ConfigVersion, ...).
	Config *auth.Parameters

	OriginalMethod string
	OriginalURL    string

	// LastSignInMessage is the last message sent to the authentication server,
	// resent verbatim on an authentication server redirect.
	LastSignInMessage auth.Passport

	SignInAttempts int
	FirstAuthSent  bool
}

// NewAuthSession returns an empty AuthSession.
func NewAuthSession() *AuthSession { return new(AuthSession) }
