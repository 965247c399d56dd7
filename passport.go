package passportproxy

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"slices"
	"strconv"
	"strings"

	"github.com/sunshineplan/passportproxy/auth"
	"github.com/sunshineplan/utils/log"
)

// maxHops bounds the number of authentication server messages per exchange.
const maxHops = 10

var challengeRegexp = regexp.MustCompile(`(?i)^(.*?)(,\s*Negotiate2SupportedIf=.*)?$`)

// Authentication Server Challenge Message parameters that are not a customtoken.
var challengeKeys = []string{"da-status", "srealm", "prompt", "cburl", "cbtxt"}

// IsChallenge reports whether a partner server response with statusCode and
// the parsed WWW-Authenticate header is a Partner Server Challenge Message.
func IsChallenge(statusCode int, h auth.Header) bool {
	if statusCode != http.StatusFound && statusCode != http.StatusUnauthorized {
		return false
	}
	return h.IsPassport
}

// extractChallenge strips an optional trailing Negotiate2SupportedIf
// parameter from the Partner Server Challenge Message param.
func extractChallenge(param string) string {
	if m := challengeRegexp.FindStringSubmatch(param); m != nil {
		return m[1]
	}
	return ""
}

// encodeComponent percent-encodes everything but RFC 3986 unreserved characters.
func encodeComponent(s string) string {
	return strings.ReplaceAll(url.QueryEscape(s), "+", "%20")
}

func customToken(p auth.Parameters) string {
	for _, key := range p.Keys() {
		if !slices.Contains(challengeKeys, key) {
			return p.Token(key)
		}
	}
	return ""
}

// Authenticator runs the Passport1.4 exchange for one challenged request:
// Token Request, optional Sign-in Request, redirects, and finally the First
// Authenticated Request that yields the partner server cookies.
type Authenticator struct {
	client   *Client
	as       *AuthSession
	session  *Session
	username string
	password string

	id     string
	logger *log.Logger
	trace  bool

	challenge string
	hops      int
}

// NewAuthenticator returns an Authenticator storing its progress in as and
// the resulting cookies in session.
func NewAuthenticator(client *Client, as *AuthSession, session *Session, username, password string) *Authenticator {
	if session == nil {
		session = NewSession()
	}
	return &Authenticator{
		client:   client,
		as:       as,
		session:  session,
		username: username,
		password: password,
		logger:   log.Default(),
	}
}

// SetLogger sets the logger and the request id prefixed to every line.
func (a *Authenticator) SetLogger(id string, logger *log.Logger) *Authenticator {
	a.id = id
	if logger != nil {
		a.logger = logger
	}
	return a
}

// SetTrace enables debug dumps of the exchanged message headers.
func (a *Authenticator) SetTrace(trace bool) *Authenticator {
	a.trace = trace
	return a
}

func (a *Authenticator) debug(msg string) {
	a.logger.Debug(fmt.Sprintf("[%s] Authenticator: %s", a.id, msg))
}

// HandleChallenge handles a Partner Server Challenge Message for the original
// request method and url. A nil error means the session now holds the cookies
// needed to repeat the request; otherwise the error is an *Error.
func (a *Authenticator) HandleChallenge(ctx context.Context, challenge auth.Header, method, orgURL string) error {
	if a.as.FirstAuthSent {
		return newError("Received Partner Server Challenge Message after a First Authenticated Request was sent.")
	}

	a.challenge = extractChallenge(challenge.Param)
	a.as.OriginalMethod = method
	a.as.OriginalURL = orgURL

	return a.sendTokenRequest(ctx)
}

func (a *Authenticator) orgParams() string {
	return ",OrgVerb=" + a.as.OriginalMethod + ",OrgUrl=" + strings.ReplaceAll(a.as.OriginalURL, ",", "%2C")
}

func (a *Authenticator) sendTokenRequest(ctx context.Context) error {
	a.debug("Sending Token Request Message")

	var b strings.Builder
	b.WriteString("Passport1.4 tname=")
	b.WriteString(a.orgParams())
	if a.challenge != "" {
		b.WriteString("," + a.challenge)
	}
	return a.authorize(ctx, auth.Passport(b.String()), "", true)
}

func (a *Authenticator) sendSignInRequest(ctx context.Context, customtoken string) error {
	if a.username == "" || a.password == "" {
		return newStatusError("Username and/or password missing.", http.StatusUnauthorized, nil)
	}

	a.debug("Sending Sign-in Request Message")
	a.as.SignInAttempts++

	var b strings.Builder
	b.WriteString("Passport1.4 sign-in=" + encodeComponent(a.username))
	b.WriteString(",pwd=" + encodeComponent(a.password))
	b.WriteString(",elapsed-time=0")
	b.WriteString(a.orgParams())
	if customtoken != "" {
		b.WriteString("," + customtoken)
	}
	if a.challenge != "" {
		b.WriteString("," + a.challenge)
	}
	return a.authorize(ctx, auth.Passport(b.String()), "", false)
}

func (a *Authenticator) get(ctx context.Context, url string, msg auth.Authorization, cookie string) (*Response, error) {
	if a.trace {
		req := &http.Request{Header: make(http.Header)}
		if msg != nil {
			msg.Authorization(req)
		}
		if cookie != "" {
			req.Header.Set("Cookie", cookie)
		}
		a.debug("Request headers for " + url + ":" + dumpHeader(req.Header))
	}
	resp, err := a.client.Get(ctx, url, msg, cookie)
	if err != nil {
		return nil, newError(err.Error())
	}
	if a.trace {
		a.debug(fmt.Sprintf("Response %d headers:%s", resp.StatusCode, dumpHeader(resp.Header)))
	}
	return resp, nil
}

// authorize sends msg to target, or to the authentication server from the
// configuration if target is empty, and handles the response.
func (a *Authenticator) authorize(ctx context.Context, msg auth.Passport, target string, addCookies bool) error {
	if a.hops++; a.hops > maxHops {
		return newError("Too many messages exchanged with authentication server.")
	}

	if target == "" {
		var err error
		if target, err = a.authenticationServerURL(ctx); err != nil {
			return err
		}
	}
	a.debug("Authentication Server URL: " + target)

	a.as.LastSignInMessage = msg

	var cookie string
	if addCookies {
		cookie = a.session.CookieHeader()
	}
	resp, err := a.get(ctx, target, msg, cookie)
	if err != nil {
		return err
	}
	return a.handleResponse(ctx, resp)
}

func (a *Authenticator) authenticationServerURL(ctx context.Context) (string, error) {
	if a.as.Config == nil {
		if err := a.updateConfiguration(ctx, ""); err != nil {
			return "", err
		}
	}

	login := a.as.Config.Get("DALogin")
	if u, err := url.Parse(login); err == nil && u.Scheme != "" && u.Host != "" {
		return u.String(), nil
	}
	u, err := url.Parse("https://" + login)
	if err != nil {
		return "", newError("Invalid DALogin in passport configuration: " + login)
	}
	return u.String(), nil
}

// updateConfiguration fetches the configuration unless the cached one is at
// least serverVersion. Versions that cannot be compared force a fetch.
func (a *Authenticator) updateConfiguration(ctx context.Context, serverVersion string) error {
	if a.as.Config != nil {
		local, err1 := strconv.Atoi(a.as.Config.Get("ConfigVersion"))
		server, err2 := strconv.Atoi(serverVersion)
		if err1 == nil && err2 == nil && local >= server {
			a.debug("Local Passport Configuration is up-to-date, skipping update")
			return nil
		}
	}

	a.debug("Requesting Passport Configuration Update from " + a.client.configurationServer())

	resp, err := a.get(ctx, a.client.configurationServer(), nil, "")
	if err != nil {
		return err
	}
	urls := resp.Header.Get("PassportURLs")
	if urls == "" {
		return newError("Could not get passport configuration from configuration server.")
	}
	config := auth.ParseParameters(urls)
	a.as.Config = &config
	return nil
}

func (a *Authenticator) realmMatches(challenge auth.Header) bool {
	if a.as.Config == nil {
		return false
	}
	srealm := challenge.Parameters.Get("srealm")
	return srealm != "" && strings.EqualFold(srealm, a.as.Config.Get("DARealm"))
}

func (a *Authenticator) handleResponse(ctx context.Context, resp *Response) error {
	a.debug("Handling Authentication Server Response")

	if config := resp.Header.Get("PassportConfig"); config != "" {
		if version := auth.ParseParameters(config).Get("ConfigVersion"); version != "" {
			a.debug("Got Authentication Server-Instructed Update Message")
			if err := a.updateConfiguration(ctx, version); err != nil {
				return err
			}
		}
	}

	if info := auth.ParseHeader(resp.Header.Get("Authentication-Info")); info.IsPassport {
		switch info.Parameters.Get("da-status") {
		case "success":
			a.debug("Got Token Response Message")
			return a.sendFirstAuthenticatedRequest(ctx, info.Parameters.Get("from-PP"), info.Parameters.Get("ru"))
		case "redir":
			if location := resp.Header.Get("Location"); resp.StatusCode == http.StatusFound && location != "" {
				a.debug("Got Authentication Server Redirect Message")
				return a.authorize(ctx, a.as.LastSignInMessage, location, false)
			}
		case "logout":
			a.debug("Got Authentication Server Logout Message")
			a.session.RemoveAllCookies()
		}
	}

	if challenge := auth.ParseHeader(resp.Header.Get("WWW-Authenticate")); resp.StatusCode == http.StatusUnauthorized && challenge.IsPassport {
		a.debug("Got Authentication Server Challenge Message")

		var message string
		status := challenge.Parameters.Get("da-status")
		if status == "failed-noretry" {
			message = "Authentication server response contained da-status=failed-noretry"
		}
		if !a.realmMatches(challenge) {
			message = "Authentication server realm does not equal realm in passport configuration data"
		}
		// No credentials can change either condition, so 403 rather than 401.
		if message != "" {
			return newStatusError(message, http.StatusForbidden, resp.Body)
		}

		if status == "failed" {
			if a.as.SignInAttempts > 0 {
				return newStatusError("Authentication server rejected the credentials.", http.StatusUnauthorized, resp.Body)
			}
			return a.sendSignInRequest(ctx, customToken(challenge.Parameters))
		}
	}

	return newError("Received an unexpected response from authentication server")
}

func (a *Authenticator) sendFirstAuthenticatedRequest(ctx context.Context, fromPP, ru string) error {
	a.debug("Sending First Authenticated Request Message")

	resp, err := a.get(ctx, ru, auth.Passport("Passport1.4 from-PP="+fromPP), "")
	if err != nil {
		return err
	}
	if cookies := resp.Header.Values("Set-Cookie"); len(cookies) > 0 {
		a.session.SetCookies(cookies)
		a.as.FirstAuthSent = true
		return nil
	}
	return newError("Did not receive Set Token Message after First Authenticated Request Message")
}
