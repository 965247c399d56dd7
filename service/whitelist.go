package main

import (
	"net/netip"
	"strings"

	"github.com/sunshineplan/utils/container"
	"github.com/sunshineplan/utils/txt"
)

// allow is an IP address or prefix.
type allow string

func (s allow) isValid() bool {
	if _, err := netip.ParseAddr(string(s)); err == nil {
		return true
	} else if _, err := netip.ParsePrefix(string(s)); err == nil {
		return true
	}
	return false
}

func (s allow) isAllow(remoteAddr string) bool {
	ap, err := netip.ParseAddrPort(remoteAddr)
	if err != nil {
		return false
	}
	addr := ap.Addr().Unmap()
	if a, err := netip.ParseAddr(string(s)); err == nil {
		return a.Unmap() == addr
	} else if prefix, err := netip.ParsePrefix(string(s)); err == nil {
		return prefix.Contains(addr)
	}
	return false
}

func initWhitelist(file string) *container.Map[allow, *limit] {
	accessLogger.Debug("whitelist: " + file)
	whitelist := container.NewMap[allow, *limit]()
	if rows, err := txt.ReadFile(file); err != nil {
		errorLogger.Println("failed to load whitelist file:", err)
	} else {
		parseWhitelist(whitelist, rows)
	}

	if err := watchFile(
		file,
		func() {
			rows, err := txt.ReadFile(file)
			if err != nil {
				errorLogger.Print(err)
			} else {
				whitelist.Clear()
				parseWhitelist(whitelist, rows)
			}
		},
		whitelist.Clear,
	); err != nil {
		errorLogger.Print(err)
	}
	return whitelist
}

// parseWhitelist reads rows of "address [limit]".
func parseWhitelist(m *container.Map[allow, *limit], s []string) int {
	list := make(map[allow]struct{})
	for _, row := range s {
		if i := strings.IndexRune(row, '#'); i != -1 {
			row = row[:i]
		}
		fields := strings.Fields(row)
		if len(fields) == 0 {
			continue
		} else if len(fields) > 2 {
			errorLogger.Println("invalid whitelist record:", row)
			continue
		}
		allow := allow(fields[0])
		if !allow.isValid() {
			errorLogger.Println("invalid whitelist record:", allow)
			continue
		}
		if _, ok := list[allow]; ok {
			errorLogger.Println("duplicate whitelist record:", allow)
			continue
		}
		limit := unlimited()
		if len(fields) == 2 {
			var err error
			if limit, err = parseLimit(fields[1]); err != nil {
				errorLogger.Println("invalid limit:", fields[1])
				continue
			}
		}
		m.Store(allow, limit)
		list[allow] = struct{}{}
	}
	accessLogger.Printf("loaded %d whitelist records", len(list))
	return len(list)
}
