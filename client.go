package passportproxy

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/sunshineplan/passportproxy/auth"
	"golang.org/x/net/proxy"
)

// DefaultConfigurationServer is the well-known Passport configuration server.
const DefaultConfigurationServer = "https://nexus.passport.com/rdr/pprdr.asp"

const maxResponseBody = 1 << 20

// Client sends the Passport messages to configuration, authentication and
// partner servers. Redirects are never followed and every status below 500
// is a regular response. The zero value uses DefaultConfigurationServer.
type Client struct {
	// ConfigurationServer is the Passport configuration server URL.
	ConfigurationServer string

	// Dialer is the optional dialer for outgoing connections,
	// e.g. an upstream proxy.
	Dialer proxy.Dialer

	// Timeout limits each round trip. Zero means one minute.
	Timeout time.Duration

	once   sync.Once
	client *http.Client
}

// NewClient returns a Client that fetches the Passport configuration from
// configurationServer.
func NewClient(configurationServer string) *Client {
	if configurationServer == "" {
		configurationServer = DefaultConfigurationServer
	}
	return &Client{ConfigurationServer: configurationServer}
}

func (c *Client) configurationServer() string {
	if c.ConfigurationServer == "" {
		return DefaultConfigurationServer
	}
	return c.ConfigurationServer
}

// httpClient builds the http.Client on first use. Dialer and Timeout must
// not change afterwards.
func (c *Client) httpClient() *http.Client {
	c.once.Do(func() { c.client = c.newHTTPClient() })
	return c.client
}

func (c *Client) newHTTPClient() *http.Client {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	if c.Dialer != nil {
		if d, ok := c.Dialer.(proxy.ContextDialer); ok {
			transport.DialContext = d.DialContext
		} else {
			transport.DialContext = func(ctx context.Context, network, address string) (net.Conn, error) {
				return dialContext(ctx, c.Dialer, network, address)
			}
		}
		transport.Proxy = nil
	}
	timeout := c.Timeout
	if timeout == 0 {
		timeout = time.Minute
	}
	return &http.Client{
		Transport: transport,
		Timeout:   timeout,
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
}

// Response is a fully read response.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// Get sends a GET request to url. Authorization and cookie are optional.
func (c *Client) Get(ctx context.Context, url string, a auth.Authorization, cookie string) (*Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	if a != nil {
		a.Authorization(req)
	}
	if cookie != "" {
		req.Header.Set("Cookie", cookie)
	}

	resp, err := c.httpClient().Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 500 {
		return nil, fmt.Errorf("%s: %s", url, resp.Status)
	}
	return &Response{StatusCode: resp.StatusCode, Header: resp.Header, Body: body}, nil
}
