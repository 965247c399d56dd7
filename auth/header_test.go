package auth

import (
	"encoding/base64"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseHeader(t *testing.T) {
	for i, tc := range []struct {
		value      string
		scheme     string
		param      string
		isBasic    bool
		isPassport bool
	}{
		{"", "", "", false, false},
		{"Negotiate", "Negotiate", "", false, false},
		{"Passport1.4 da-status=success,from-PP=t", "Passport1.4", "da-status=success,from-PP=t", false, true},
		{"PASSPORT1.4   srealm=x ", "PASSPORT1.4", "srealm=x", false, true},
		{"basic dXNlcjpwYXNz", "basic", "dXNlcjpwYXNz", true, false},
		{" Basic x", " Basic x", "Basic x", false, false},
	} {
		h := ParseHeader(tc.value)
		assert.Equal(t, tc.scheme, h.Scheme, "#%d", i)
		assert.Equal(t, tc.param, h.Param, "#%d", i)
		assert.Equal(t, tc.isBasic, h.IsBasic, "#%d", i)
		assert.Equal(t, tc.isPassport, h.IsPassport, "#%d", i)
	}

	h := ParseHeader("Passport1.4 da-status=success,from-PP=t")
	assert.Equal(t, "passport1.4", h.LowerScheme)
	assert.Equal(t, "t", h.Parameters.Get("from-PP"))
}

func TestDecodeBasic(t *testing.T) {
	for i, tc := range []struct {
		raw      string
		username string
		password string
	}{
		{"user.a@localhost:secret_a", "user.a@localhost", "secret_a"},
		{"user:pa:ss", "user", "pa:ss"},
		{"user:", "user", ""},
		{"nocolon", "nocolon", ""},
		{":only", ":only", "only"},
	} {
		b := DecodeBasic(base64.StdEncoding.EncodeToString([]byte(tc.raw)))
		assert.Equal(t, tc.username, b.Username, "#%d", i)
		assert.Equal(t, tc.password, b.Password, "#%d", i)
	}
}

func TestBasicRoundTrip(t *testing.T) {
	b := Basic{Username: "user.b@localhost", Password: "p,w d"}
	h := ParseHeader(b.Header())
	assert.True(t, h.IsBasic)
	assert.Equal(t, b, h.Credentials)

	req, _ := http.NewRequest("GET", "http://localhost", nil)
	b.Authorization(req)
	assert.Equal(t, b.Header(), req.Header.Get("Proxy-Authorization"))

	Passport("Passport1.4 from-PP=abc").Authorization(req)
	assert.Equal(t, "Passport1.4 from-PP=abc", req.Header.Get("Authorization"))
}
