package passportproxy

import (
	"net/http"
	"regexp"
	"slices"
	"strings"
)

var (
	passwordRegexp = regexp.MustCompile(`(?i)(\bpwd=)[^,]*`)
	basicRegexp    = regexp.MustCompile(`(?i)^(basic\s+).*$`)
)

// dumpHeader formats h one field per line in key order. Passwords in
// Authorization headers are masked.
func dumpHeader(h http.Header) string {
	keys := make([]string, 0, len(h))
	for k := range h {
		keys = append(keys, k)
	}
	slices.Sort(keys)

	var b strings.Builder
	for _, k := range keys {
		for _, v := range h[k] {
			if strings.EqualFold(k, "Authorization") {
				v = basicRegexp.ReplaceAllString(passwordRegexp.ReplaceAllString(v, "${1}***"), "${1}***")
			}
			b.WriteString("\n\t" + k + ": " + v)
		}
	}
	return b.String()
}
