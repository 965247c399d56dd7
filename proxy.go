// Package passportproxy is a reverse proxy for partner servers protected by
// Passport1.4 authentication. Clients use HTTP Basic authentication with their
// Passport credentials and the proxy runs the Passport exchange for them.
package passportproxy

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httputil"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sunshineplan/passportproxy/auth"
	"github.com/sunshineplan/utils/log"
	"golang.org/x/net/proxy"
)

var cookieDomainRegexp = regexp.MustCompile(`(?i);\s*domain=[^;]*`)

type flowKey struct{}

// flow is the state of one client request, created once in ServeHTTP and
// carried in the request context through forwarding, authentication and
// replay.
type flow struct {
	id     string
	host   string
	cookie string

	credentials auth.Header
	session     *Session
	auth        *AuthSession
	body        *BodyCache
}

func flowFrom(ctx context.Context) *flow {
	f, _ := ctx.Value(flowKey{}).(*flow)
	return f
}

// cookieHeader merges the session cookies with the client's own cookies.
func (f *flow) cookieHeader() string {
	var cookie string
	if f.session != nil {
		cookie = f.session.CookieHeader()
	}
	switch {
	case cookie == "":
		return f.cookie
	case f.cookie == "":
		return cookie
	default:
		return cookie + "; " + f.cookie
	}
}

// Proxy is a reverse proxy to a Passport1.4 protected partner server.
// Clients authenticate with Basic credentials, which the proxy uses to run
// the Passport exchange on their behalf.
type Proxy struct {
	target        *url.URL
	client        *Client
	sessions      *SessionStore
	bodyCacheSize int64
	trace         bool
	logger        *log.Logger
	errorLogger   *log.Logger

	transport http.RoundTripper
	reverse   *httputil.ReverseProxy
}

type roundTripper func(*http.Request) (*http.Response, error)

func (fn roundTripper) RoundTrip(req *http.Request) (*http.Response, error) { return fn(req) }

// New returns a Proxy forwarding to target.
func New(target *url.URL) *Proxy {
	p := &Proxy{
		target:        target,
		client:        NewClient(""),
		sessions:      NewSessionStore(DefaultSessionTTL),
		bodyCacheSize: DefaultBodyCacheSize,
		logger:        log.Default(),
		errorLogger:   log.Default(),
		transport:     http.DefaultTransport,
	}
	p.reverse = &httputil.ReverseProxy{
		Rewrite:        p.rewrite,
		Transport:      roundTripper(p.roundTrip),
		ModifyResponse: p.modifyResponse,
		ErrorHandler:   p.errorHandler,
	}
	return p
}

// SetConfigurationServer sets the Passport configuration server URL.
func (p *Proxy) SetConfigurationServer(u string) *Proxy {
	if u != "" {
		p.client.ConfigurationServer = u
	}
	return p
}

// SetDialer routes all outgoing connections through d.
func (p *Proxy) SetDialer(d proxy.Dialer) *Proxy {
	p.client.Dialer = d
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.Proxy = nil
	if cd, ok := d.(proxy.ContextDialer); ok {
		transport.DialContext = cd.DialContext
	} else {
		transport.DialContext = func(ctx context.Context, network, address string) (net.Conn, error) {
			return dialContext(ctx, d, network, address)
		}
	}
	p.transport = transport
	return p
}

// SetSessionTTL sets how long unused user sessions are kept.
func (p *Proxy) SetSessionTTL(ttl time.Duration) *Proxy {
	p.sessions = NewSessionStore(ttl)
	return p
}

// SetBodyCacheSize sets the maximum request body size that can be repeated.
func (p *Proxy) SetBodyCacheSize(n int64) *Proxy {
	if n > 0 {
		p.bodyCacheSize = n
	}
	return p
}

// SetTrace enables debug dumps of the headers of every message exchanged
// with partner and authentication servers.
func (p *Proxy) SetTrace(trace bool) *Proxy {
	p.trace = trace
	return p
}

// SetLogger sets the logger for the request flow.
func (p *Proxy) SetLogger(logger *log.Logger) *Proxy {
	if logger != nil {
		p.logger = logger
	}
	return p
}

// SetErrorLogger sets the logger for authentication and forwarding failures.
func (p *Proxy) SetErrorLogger(logger *log.Logger) *Proxy {
	if logger != nil {
		p.errorLogger = logger
	}
	return p
}

// Sessions returns the user session store.
func (p *Proxy) Sessions() *SessionStore { return p.sessions }

func (p *Proxy) debugf(f *flow, format string, v ...any) {
	p.logger.Debug(fmt.Sprintf("[%s] ", f.id) + fmt.Sprintf(format, v...))
}

func (p *Proxy) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f := &flow{
		id:          uuid.NewString(),
		host:        r.Host,
		cookie:      strings.Join(r.Header.Values("Cookie"), "; "),
		credentials: auth.ParseHeader(r.Header.Get("Authorization")),
		auth:        NewAuthSession(),
		body:        NewBodyCache(p.bodyCacheSize),
	}
	p.debugf(f, "Client request: %s %s", r.Method, r.URL)

	if f.credentials.IsBasic {
		p.debugf(f, "Found Authorization header with Basic auth in client request")
		if f.session = p.sessions.Get(f.credentials.Credentials.Username, f.credentials.Credentials.Password); f.session != nil {
			p.debugf(f, "Found session data for Basic auth credentials")
		}
	}

	body, err := f.body.Capture(r.Body)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	r = r.WithContext(context.WithValue(r.Context(), flowKey{}, f))
	r.Body = body

	p.reverse.ServeHTTP(w, r)
}

func (p *Proxy) rewrite(pr *httputil.ProxyRequest) {
	pr.SetURL(p.target)

	// The client's Authorization header is never passed on.
	pr.Out.Header.Del("Authorization")

	if f := flowFrom(pr.In.Context()); f != nil {
		if cookie := f.cookieHeader(); cookie != "" {
			pr.Out.Header.Set("Cookie", cookie)
		}
		p.debugf(f, "Proxy request: %s %s", pr.Out.Method, pr.Out.URL)
	}
}

func (p *Proxy) roundTrip(req *http.Request) (*http.Response, error) {
	f := flowFrom(req.Context())
	if f != nil && p.trace {
		p.debugf(f, "Proxy request headers:%s", dumpHeader(req.Header))
	}
	resp, err := p.transport.RoundTrip(req)
	if err != nil {
		return nil, err
	}
	if f == nil {
		return resp, nil
	}
	p.debugf(f, "Server response: %s", resp.Status)
	if p.trace {
		p.debugf(f, "Server response headers:%s", dumpHeader(resp.Header))
	}

	challenge := auth.ParseHeader(resp.Header.Get("WWW-Authenticate"))
	if !IsChallenge(resp.StatusCode, challenge) {
		return resp, nil
	}
	resp.Body.Close()
	p.debugf(f, "Received Partner Server Challenge Message")

	username, password := f.credentials.Credentials.Username, f.credentials.Credentials.Password
	if !f.credentials.IsBasic || username == "" || password == "" {
		return p.errorResponse(req, f, http.StatusUnauthorized, "Username and/or password missing.", nil), nil
	}

	// Use the session of the authenticated user or start a fresh one.
	session := f.session
	if session == nil {
		session = NewSession()
	}
	if err := NewAuthenticator(p.client, f.auth, session, username, password).
		SetLogger(f.id, p.logger).
		SetTrace(p.trace).
		HandleChallenge(req.Context(), challenge, req.Method, req.URL.String()); err != nil {
		var body []byte
		if e := new(Error); errors.As(err, &e) {
			body = e.Body
		}
		return p.errorResponse(req, f, StatusCode(err), err.Error(), body), nil
	}
	p.debugf(f, "Successfully completed Passport authentication process, repeating request with authorization information")

	f.session = session
	p.sessions.Store(session, username, password)

	body, size, err := f.body.Body()
	if errors.Is(err, ErrOverflow) {
		return p.errorResponse(req, f, http.StatusServiceUnavailable, fmt.Sprintf(
			"Passport authentication was successful, but the proxy server cannot repeat the original client request"+
				" with authorization because the client request body length exceeds the request body cache size of %d bytes."+
				" Please repeat the request.", f.body.MaxSize()), nil), nil
	} else if err != nil {
		return p.errorResponse(req, f, http.StatusInternalServerError, err.Error(), nil), nil
	}

	replay := req.Clone(req.Context())
	replay.Body = body
	replay.ContentLength = size
	replay.TransferEncoding = nil
	replay.GetBody = nil
	replay.Header.Del("Cookie")
	if cookie := f.cookieHeader(); cookie != "" {
		replay.Header.Set("Cookie", cookie)
	}
	return p.roundTrip(replay)
}

func (p *Proxy) errorResponse(req *http.Request, f *flow, statusCode int, message string, body []byte) *http.Response {
	if statusCode == http.StatusUnauthorized {
		p.debugf(f, "Sending error response: %d %s", statusCode, message)
	} else {
		p.errorLogger.Printf("[%s] Sending error response: %d %s", f.id, statusCode, message)
	}

	header := make(http.Header)
	if message != "" {
		header.Set("X-Proxy-Error", message)
	}
	switch statusCode {
	case http.StatusUnauthorized:
		header.Set("WWW-Authenticate", fmt.Sprintf(`Basic realm="%s"`, req.URL.Host))
	case http.StatusServiceUnavailable:
		header.Set("Retry-After", "0")
	}
	if len(body) == 0 {
		body = []byte(message)
	}
	if len(body) > 0 {
		header.Set("Content-Type", "text/plain")
	}

	return &http.Response{
		Status:        fmt.Sprintf("%d %s", statusCode, http.StatusText(statusCode)),
		StatusCode:    statusCode,
		Proto:         "HTTP/1.1",
		ProtoMajor:    1,
		ProtoMinor:    1,
		Header:        header,
		Body:          io.NopCloser(bytes.NewReader(body)),
		ContentLength: int64(len(body)),
		Request:       req,
	}
}

func (p *Proxy) modifyResponse(resp *http.Response) error {
	switch resp.StatusCode {
	case http.StatusCreated, http.StatusMovedPermanently, http.StatusFound,
		http.StatusTemporaryRedirect, http.StatusPermanentRedirect:
		if f := flowFrom(resp.Request.Context()); f != nil {
			rewriteLocation(resp.Header, p.target.Host, f.host)
		}
	}

	if cookies := resp.Header.Values("Set-Cookie"); len(cookies) > 0 {
		resp.Header.Del("Set-Cookie")
		for _, cookie := range cookies {
			resp.Header.Add("Set-Cookie", cookieDomainRegexp.ReplaceAllString(cookie, ""))
		}
	}
	return nil
}

// rewriteLocation points redirects to the target back at the proxy.
func rewriteLocation(header http.Header, targetHost, host string) {
	location := header.Get("Location")
	if location == "" {
		return
	}
	u, err := url.Parse(location)
	if err != nil || u.Host != targetHost {
		return
	}
	u.Host = host
	u.Scheme = "http"
	header.Set("Location", u.String())
}

func (p *Proxy) errorHandler(w http.ResponseWriter, r *http.Request, err error) {
	if f := flowFrom(r.Context()); f != nil {
		p.errorLogger.Printf("[%s] Proxy error: %v", f.id, err)
	} else {
		p.errorLogger.Print(err)
	}
	w.Header().Set("X-Proxy-Error", err.Error())
	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(http.StatusInternalServerError)
	io.WriteString(w, err.Error())
}
