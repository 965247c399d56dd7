package passportproxy

import (
	"bytes"
	"errors"
	"io"
	"net/http"
	"sync"
)

// DefaultBodyCacheSize is the default maximum size of a cached request body.
const DefaultBodyCacheSize = 2 << 10

var (
	ErrOverflow          = errors.New("body cache overflowed while reading source, cannot replay from cache")
	ErrCaptureStarted    = errors.New("body capture can only be started once")
	ErrCaptureIncomplete = errors.New("body capture is not complete")
)

type captureState int

const (
	notStarted captureState = iota
	capturing
	complete
)

// BodyCache records a request body while it is forwarded so that the request
// can be repeated once authorization succeeds. Once the body grows beyond the
// maximum size, everything cached so far is dropped and the cache stays in
// overflow for good.
type BodyCache struct {
	mu       sync.Mutex
	max      int64
	state    captureState
	src      io.Reader
	chunks   [][]byte
	size     int64
	overflow bool
}

// NewBodyCache returns an empty cache holding at most max bytes.
func NewBodyCache(max int64) *BodyCache {
	if max <= 0 {
		max = DefaultBodyCacheSize
	}
	return &BodyCache{max: max}
}

// MaxSize returns the maximum number of bytes the cache holds.
func (c *BodyCache) MaxSize() int64 { return c.max }

// Capture starts recording src. The returned reader must be used in place of
// src; its Close does not close src.
func (c *BodyCache) Capture(src io.ReadCloser) (io.ReadCloser, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != notStarted {
		return nil, ErrCaptureStarted
	}
	if src == nil || src == http.NoBody {
		c.state = complete
		return src, nil
	}
	c.state = capturing
	c.src = src
	return &captureReader{c}, nil
}

func (c *BodyCache) consume(chunk []byte) {
	if c.overflow {
		return
	}
	c.size += int64(len(chunk))
	if c.size > c.max {
		c.overflow = true
		c.chunks = nil
		return
	}
	c.chunks = append(c.chunks, append([]byte(nil), chunk...))
}

// read must be called with c.mu held.
func (c *BodyCache) read(p []byte) (int, error) {
	if c.state == complete {
		return 0, io.EOF
	}
	n, err := c.src.Read(p)
	if n > 0 {
		c.consume(p[:n])
	}
	if err == io.EOF {
		c.state = complete
	}
	return n, err
}

// Finish reads whatever the forwarding pass left unread, so the cache is
// complete. It stops early once the cache overflows.
func (c *BodyCache) Finish() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	buf := make([]byte, 512)
	for c.state == capturing && !c.overflow {
		if _, err := c.read(buf); err != nil && err != io.EOF {
			return err
		}
	}
	return nil
}

// Overflow reports whether the body exceeded the maximum size.
func (c *BodyCache) Overflow() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.overflow
}

// Size returns the number of bytes seen so far.
func (c *BodyCache) Size() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.size
}

// Replay writes the cached body to sink and closes it if it is an io.Closer.
// Nothing is written when the cache overflowed.
func (c *BodyCache) Replay(sink io.Writer) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.overflow {
		return ErrOverflow
	}
	if c.state != complete {
		return ErrCaptureIncomplete
	}
	for _, chunk := range c.chunks {
		if _, err := sink.Write(chunk); err != nil {
			return err
		}
	}
	if closer, ok := sink.(io.Closer); ok {
		return closer.Close()
	}
	return nil
}

// Body returns a fresh reader over the cached body and its length.
func (c *BodyCache) Body() (io.ReadCloser, int64, error) {
	if err := c.Finish(); err != nil {
		return nil, 0, err
	}
	var buf bytes.Buffer
	if err := c.Replay(&buf); err != nil {
		return nil, 0, err
	}
	if buf.Len() == 0 {
		return http.NoBody, 0, nil
	}
	return io.NopCloser(&buf), int64(buf.Len()), nil
}

type captureReader struct{ c *BodyCache }

func (r *captureReader) Read(p []byte) (int, error) {
	r.c.mu.Lock()
	defer r.c.mu.Unlock()
	return r.c.read(p)
}

func (r *captureReader) Close() error { return nil }
