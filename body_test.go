package passportproxy

import (
	"bytes"
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBodyCacheReplay(t *testing.T) {
	c := NewBodyCache(16)
	r, err := c.Capture(io.NopCloser(strings.NewReader("hello world")))
	require.NoError(t, err)

	b, err := io.ReadAll(r)
	require.NoError(t, err)
	assert.Equal(t, "hello world", string(b))
	assert.EqualValues(t, 11, c.Size())
	assert.False(t, c.Overflow())

	var buf bytes.Buffer
	require.NoError(t, c.Replay(&buf))
	assert.Equal(t, "hello world", buf.String())

	// Replay can be repeated.
	buf.Reset()
	require.NoError(t, c.Replay(&buf))
	assert.Equal(t, "hello world", buf.String())
}

func TestBodyCacheCaptureOnce(t *testing.T) {
	c := NewBodyCache(0)
	assert.EqualValues(t, DefaultBodyCacheSize, c.MaxSize())

	_, err := c.Capture(io.NopCloser(strings.NewReader("a")))
	require.NoError(t, err)
	_, err = c.Capture(io.NopCloser(strings.NewReader("b")))
	assert.ErrorIs(t, err, ErrCaptureStarted)
}

func TestBodyCacheIncomplete(t *testing.T) {
	c := NewBodyCache(16)
	r, err := c.Capture(io.NopCloser(strings.NewReader("hello world")))
	require.NoError(t, err)

	p := make([]byte, 5)
	_, err = io.ReadFull(r, p)
	require.NoError(t, err)
	assert.ErrorIs(t, c.Replay(io.Discard), ErrCaptureIncomplete)

	// Finish reads the rest.
	body, size, err := c.Body()
	require.NoError(t, err)
	assert.EqualValues(t, 11, size)
	b, _ := io.ReadAll(body)
	assert.Equal(t, "hello world", string(b))
}

func TestBodyCacheOverflow(t *testing.T) {
	c := NewBodyCache(8)
	r, err := c.Capture(io.NopCloser(strings.NewReader("0123456789")))
	require.NoError(t, err)

	// The forwarded stream is never truncated.
	b, err := io.ReadAll(r)
	require.NoError(t, err)
	assert.Equal(t, "0123456789", string(b))

	assert.True(t, c.Overflow())
	assert.ErrorIs(t, c.Replay(io.Discard), ErrOverflow)
	_, _, err = c.Body()
	assert.ErrorIs(t, err, ErrOverflow)
}

func TestBodyCacheOverflowUnread(t *testing.T) {
	c := NewBodyCache(4)
	_, err := c.Capture(io.NopCloser(strings.NewReader(strings.Repeat("x", 100))))
	require.NoError(t, err)

	require.NoError(t, c.Finish())
	assert.True(t, c.Overflow())
}

func TestBodyCacheEmpty(t *testing.T) {
	for _, src := range []io.ReadCloser{nil, http.NoBody} {
		c := NewBodyCache(8)
		r, err := c.Capture(src)
		require.NoError(t, err)
		assert.Equal(t, src, r)

		body, size, err := c.Body()
		require.NoError(t, err)
		assert.Zero(t, size)
		assert.Equal(t, http.NoBody, body)
	}
}

type closeRecorder struct {
	bytes.Buffer
	closed bool
}

func (c *closeRecorder) Close() error {
	c.closed = true
	return nil
}

func TestBodyCacheReplayCloses(t *testing.T) {
	c := NewBodyCache(8)
	r, _ := c.Capture(io.NopCloser(strings.NewReader("abc")))
	io.ReadAll(r)

	var sink closeRecorder
	require.NoError(t, c.Replay(&sink))
	assert.True(t, sink.closed)
	assert.Equal(t, "abc", sink.String())
}
