package passportproxy

import (
	"errors"
	"net/http"
)

// Error is a failure of the Passport exchange. StatusCode is zero when the
// failure is not something the client can fix (configuration errors and
// protocol violations); Body is the authentication server response body,
// if any.
type Error struct {
	Message    string
	StatusCode int
	Body       []byte
}

func (e *Error) Error() string { return e.Message }

func newError(message string) *Error { return &Error{Message: message} }

func newStatusError(message string, statusCode int, body []byte) *Error {
	return &Error{Message: message, StatusCode: statusCode, Body: body}
}

// StatusCode returns the HTTP status a client should see for err.
func StatusCode(err error) int {
	if e := new(Error); errors.As(err, &e) {
		switch e.StatusCode {
		case http.StatusUnauthorized, http.StatusForbidden, http.StatusServiceUnavailable:
			return e.StatusCode
		}
	}
	return http.StatusInternalServerError
}
