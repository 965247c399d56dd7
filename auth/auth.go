package auth

import "net/http"

// Authorization sets authorization information on an outgoing request.
type Authorization interface {
	Authorization(*http.Request)
}

// Passport is a complete Passport1.4 Authorization header value,
// e.g. "Passport1.4 from-PP=...".
type Passport string

// Authorization sets the Authorization header to the message.
func (p Passport) Authorization(req *http.Request) {
	req.Header.Set("Authorization", string(p))
}
