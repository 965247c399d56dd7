package passportproxy

import (
	"bufio"
	"context"
	"crypto/tls"
	"errors"
	"io"
	"net"
	"net/http"
	"net/url"

	"github.com/sunshineplan/passportproxy/auth"
	"golang.org/x/net/proxy"
)

func init() {
	proxy.RegisterDialerType("http", FromURL)
	proxy.RegisterDialerType("https", FromURL)
}

// Dialer tunnels outgoing connections through an upstream HTTP proxy
// with CONNECT.
type Dialer struct {
	proxyAddress string

	// TLSConfig is the optional TLS configuration for HTTPS proxies.
	TLSConfig *tls.Config

	// ProxyDial specifies the optional dial function for
	// establishing the transport connection.
	ProxyDial func(context.Context, string, string) (net.Conn, error)

	// Auth contains authentication information for the proxy.
	Auth auth.Authorization
}

// NewDialer returns a Dialer that makes connections through the proxy at
// address with optional credentials. With tlsConfig, the proxy is spoken
// to over TLS.
func NewDialer(address string, tlsConfig *tls.Config, pa *proxy.Auth, forward proxy.Dialer) *Dialer {
	d := &Dialer{proxyAddress: address, TLSConfig: tlsConfig}
	if forward != nil {
		if f, ok := forward.(proxy.ContextDialer); ok {
			d.ProxyDial = f.DialContext
		} else {
			d.ProxyDial = func(ctx context.Context, network string, address string) (net.Conn, error) {
				return dialContext(ctx, forward, network, address)
			}
		}
	}
	if pa != nil {
		d.Auth = auth.Basic{Username: pa.User, Password: pa.Password}
	}
	return d
}

// FromURL returns a [proxy.Dialer] for an http or https proxy URL.
// Any other scheme should go through [proxy.FromURL].
func FromURL(u *url.URL, forward proxy.Dialer) (proxy.Dialer, error) {
	var config *tls.Config
	switch u.Scheme {
	case "http":
	case "https":
		config = &tls.Config{ServerName: u.Hostname()}
	default:
		return nil, errors.New("passportproxy: unsupported proxy scheme: " + u.Scheme)
	}
	port := u.Port()
	if port == "" {
		if config != nil {
			port = "443"
		} else {
			port = "80"
		}
	}
	var pa *proxy.Auth
	if u.User != nil {
		pa = new(proxy.Auth)
		pa.User = u.User.Username()
		if p, ok := u.User.Password(); ok {
			pa.Password = p
		}
	}
	return NewDialer(net.JoinHostPort(u.Hostname(), port), config, pa, forward), nil
}

func (d *Dialer) connect(c net.Conn, host string) error {
	req := &http.Request{
		Method: http.MethodConnect,
		URL:    &url.URL{Opaque: host},
		Host:   host,
		Header: make(http.Header),
	}
	if d.Auth != nil {
		d.Auth.Authorization(req)
	}
	if err := req.Write(c); err != nil {
		return err
	}
	resp, err := http.ReadResponse(bufio.NewReader(c), req)
	if err != nil {
		return err
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		status := resp.Status
		if b, _ := io.ReadAll(io.LimitReader(resp.Body, 1024)); len(b) > 0 {
			status += " : " + string(b)
		}
		return errors.New(status)
	}
	return nil
}

// Dial connects to address through the proxy.
func (d *Dialer) Dial(network, address string) (net.Conn, error) {
	return d.DialContext(context.Background(), network, address)
}

// DialContext connects to address through the proxy with the provided context.
func (d *Dialer) DialContext(ctx context.Context, network, address string) (conn net.Conn, err error) {
	switch network {
	case "tcp", "tcp6", "tcp4":
	default:
		return nil, errors.New("network not implemented")
	}
	if d.ProxyDial != nil {
		conn, err = d.ProxyDial(ctx, "tcp", d.proxyAddress)
	} else {
		var dd net.Dialer
		conn, err = dd.DialContext(ctx, "tcp", d.proxyAddress)
	}
	if err != nil {
		return
	}
	if d.TLSConfig != nil {
		conn = tls.Client(conn, d.TLSConfig)
	}
	if err = d.connect(conn, address); err != nil {
		conn.Close()
		return nil, err
	}
	return
}

func dialContext(ctx context.Context, d proxy.Dialer, network, address string) (net.Conn, error) {
	type result struct {
		conn net.Conn
		err  error
	}
	done := make(chan result, 1)
	go func() {
		conn, err := d.Dial(network, address)
		done <- result{conn, err}
	}()
	select {
	case <-ctx.Done():
		go func() {
			if r := <-done; r.conn != nil {
				r.conn.Close()
			}
		}()
		return nil, ctx.Err()
	case r := <-done:
		return r.conn, r.err
	}
}
