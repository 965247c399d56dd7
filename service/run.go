package main

import (
	"errors"
	"net"
	"net/url"
	"strconv"

	"github.com/sunshineplan/utils/scheduler"
	"github.com/sunshineplan/utils/unit"
)

const defaultPort = "3000"

func parseTarget(s string) (*url.URL, error) {
	if s == "" {
		return nil, errors.New("proxy target is required, use --target or PROXY_TARGET")
	}
	u, err := url.Parse(s)
	if err != nil {
		return nil, err
	}
	if u.Scheme != "http" && u.Scheme != "https" || u.Host == "" {
		return nil, errors.New("bad proxy target: " + s)
	}
	return u, nil
}

func newServer() (*Server, error) {
	u, err := parseTarget(*target)
	if err != nil {
		return nil, err
	}
	size, err := unit.ParseByteSize(*bodyCache)
	if err != nil {
		return nil, err
	}

	s := NewServer(base, u)
	s.proxy.
		SetConfigurationServer(*configServer).
		SetSessionTTL(*sessionTTL).
		SetBodyCacheSize(int64(size)).
		SetTrace(*trace).
		SetLogger(accessLogger).
		SetErrorLogger(errorLogger)
	if *upstream != "" {
		d, err := parseUpstream(*upstream)
		if err != nil {
			return nil, err
		}
		s.proxy.SetDialer(d)
	}
	if *https {
		s.SetTLS(*cert, *privkey)
	}
	return s, nil
}

func run() error {
	s, err := newServer()
	if err != nil {
		return err
	}
	base.limits = initLimits(*limits)
	base.whitelist = initWhitelist(*whitelist)
	initRecord()
	initStatus(s)
	defer func() {
		saveRecord()
		saveStatus(s)
	}()

	if err := scheduler.NewScheduler().At(scheduler.AtSecond(0)).Run(func(scheduler.Event) {
		if n := s.proxy.Sessions().Purge(); n > 0 {
			accessLogger.Debug("purged expired sessions", "count", n)
		}
	}).Start(); err != nil {
		errorLogger.Print(err)
	}

	accessLogger.Printf("Proxy server listening: %s -> %s", net.JoinHostPort(s.Host, s.Port), s.target)
	return s.Run()
}

func test() error {
	if _, err := newServer(); err != nil {
		return err
	}

	port, err := strconv.Atoi(base.Port)
	if err != nil {
		return err
	}
	l, err := net.ListenTCP("tcp", &net.TCPAddr{Port: port})
	if err != nil {
		return err
	}
	return l.Close()
}
