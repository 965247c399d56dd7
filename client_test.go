package passportproxy

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/sunshineplan/passportproxy/auth"
)

func TestClientZeroValue(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Location", "/elsewhere")
		w.WriteHeader(http.StatusFound)
		io.WriteString(w, r.Header.Get("Authorization")+";"+r.Header.Get("Cookie"))
	}))
	defer ts.Close()

	var c Client
	assert.Equal(t, DefaultConfigurationServer, c.configurationServer())

	resp, err := c.Get(context.Background(), ts.URL, auth.Passport("Passport1.4 from-PP=abc"), "a=1")
	require.NoError(t, err)
	assert.Equal(t, http.StatusFound, resp.StatusCode)
	assert.Equal(t, "/elsewhere", resp.Header.Get("Location"))
	assert.Equal(t, "Passport1.4 from-PP=abc;a=1", string(resp.Body))
}

func TestClientServerError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer ts.Close()

	_, err := NewClient(ts.URL).Get(context.Background(), ts.URL, nil, "")
	assert.Error(t, err)
	assert.Equal(t, ts.URL, NewClient(ts.URL).configurationServer())
}
