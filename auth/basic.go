package auth

import (
	"encoding/base64"
	"net/http"
	"strings"
)

// Basic represents base64-encoded credentials for HTTP Basic Authentication.
type Basic struct {
	Username string
	Password string
}

// Authorization sets the Proxy-Authorization header with Base64 encoded credentials.
func (a Basic) Authorization(req *http.Request) {
	req.Header.Set("Proxy-Authorization", "Basic "+a.encode())
}

// Header returns the value of an Authorization header carrying the credentials.
func (a Basic) Header() string {
	return "Basic " + a.encode()
}

func (a Basic) encode() string {
	return base64.StdEncoding.EncodeToString([]byte(a.Username + ":" + a.Password))
}

// DecodeBasic decodes the param of a Basic header. A missing colon yields the
// whole decoded value as username and an empty password.
func DecodeBasic(param string) (basic Basic) {
	c, _ := base64.StdEncoding.DecodeString(param)
	username, password, _ := strings.Cut(string(c), ":")
	if username == "" {
		username = string(c)
	}
	basic.Username = username
	basic.Password = password
	return
}
