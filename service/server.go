package main

import (
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/sunshineplan/passportproxy"
)

type Server struct {
	*Base
	target  *url.URL
	proxy   *passportproxy.Proxy
	tls     bool
	cert    string
	privkey string
}

func NewServer(base *Base, target *url.URL) *Server {
	s := &Server{Base: base, target: target, proxy: passportproxy.New(target)}
	s.Base.Handler = http.HandlerFunc(s.Handler)
	s.ReadTimeout = time.Minute * 10
	s.ReadHeaderTimeout = time.Second * 4
	s.WriteTimeout = time.Minute * 10
	return s
}

func (s *Server) SetTLS(cert, privkey string) *Server {
	s.tls = true
	s.cert = cert
	s.privkey = privkey
	return s
}

func (s *Server) Run() error {
	if s.tls {
		return s.RunTLS(s.cert, s.privkey)
	}
	return s.Base.Run()
}

// responseWriter counts and throttles the response body.
type responseWriter struct {
	http.ResponseWriter
	w io.Writer
}

func (rw *responseWriter) Write(b []byte) (int, error) { return rw.w.Write(b) }

func (rw *responseWriter) Unwrap() http.ResponseWriter { return rw.ResponseWriter }

func (s *Server) Handler(w http.ResponseWriter, r *http.Request) {
	user, lim, ok := s.check(w, r)
	if !ok {
		return
	}

	accessLogger.Printf("%s[%s] %s %s", r.RemoteAddr, user, r.Method, r.URL)
	s.proxy.ServeHTTP(&responseWriter{w, count(user, lim.Writer(w))}, r)
}
