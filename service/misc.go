package main

import (
	"net/url"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"golang.org/x/net/proxy"
	"golang.org/x/time/rate"
)

var notAllow = newSometimes(time.Minute)

func newSometimes(interval time.Duration) *rate.Sometimes { return &rate.Sometimes{Interval: interval} }

func watchFile(file string, fnChange, fnRemove func()) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err = w.Add(filepath.Dir(file)); err != nil {
		w.Close()
		return err
	}

	go func() {
		for {
			select {
			case err, ok := <-w.Errors:
				if !ok {
					accessLogger.Println(file, "watcher closed")
					return
				}
				errorLogger.Print(err)
			case event, ok := <-w.Events:
				if !ok {
					accessLogger.Println(file, "watcher closed")
					return
				}
				if event.Name == file {
					accessLogger.Println(file, "operation:", event.Op)
					switch {
					case event.Has(fsnotify.Create), event.Has(fsnotify.Write):
						fnChange()
					case event.Has(fsnotify.Remove), event.Has(fsnotify.Rename):
						fnRemove()
					}
				}
			}
		}
	}()

	return nil
}

// parseUpstream returns the dialer for an upstream proxy URL. The http and
// https schemes are registered by the passportproxy package.
func parseUpstream(s string) (proxy.Dialer, error) {
	accessLogger.Debug("Parse upstream proxy: " + s)
	u, err := url.Parse(s)
	if err != nil {
		return nil, err
	}
	return proxy.FromURL(u, proxy.Direct)
}
