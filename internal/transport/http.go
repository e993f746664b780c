// Package transport adapts concrete connections to streamwriter.Transport.
package transport

import (
	"errors"
	"net/http"
	"sync"
)

// ErrClosed is returned by writes on a closed transport.
var ErrClosed = errors.New("transport: closed")

// HTTP streams a response body over an http.ResponseWriter. On HTTP/1.1 the
// body goes out with chunked transfer encoding; on HTTP/2 as DATA frames.
//
// The handler goroutine that owns the ResponseWriter must stay inside
// ServeHTTP until Done is closed, since net/http finalises the response as
// soon as the handler returns.
type HTTP struct {
	rw  http.ResponseWriter
	rc  *http.ResponseController
	req *http.Request

	mu        sync.Mutex
	status    int
	committed bool
	closed    bool
	written   int64
	done      chan struct{}
}

// NewHTTP wraps rw. req is used to detect a client that went away.
func NewHTTP(rw http.ResponseWriter, req *http.Request) *HTTP {
	return &HTTP{
		rw:     rw,
		rc:     http.NewResponseController(rw),
		req:    req,
		status: http.StatusOK,
		done:   make(chan struct{}),
	}
}

// SetChunked drops any Content-Length so net/http streams the body.
func (t *HTTP) SetChunked(chunked bool) {
	if !chunked {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.committed {
		t.rw.Header().Del("Content-Length")
	}
}

// SetStatus records the status sent with the first Write.
func (t *HTTP) SetStatus(code int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.committed {
		t.status = code
	}
}

// PutHeader sets a header. Calls after the response is committed are ignored.
func (t *HTTP) PutHeader(name, value string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.committed {
		t.rw.Header().Set(name, value)
	}
}

// Write sends p and flushes it to the client.
func (t *HTTP) Write(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return 0, ErrClosed
	}
	if t.req != nil {
		if err := t.req.Context().Err(); err != nil {
			return 0, err
		}
	}
	t.commitLocked()
	n, err := t.rw.Write(p)
	t.written += int64(n)
	if err != nil {
		return n, err
	}
	if err := t.rc.Flush(); err != nil && !errors.Is(err, http.ErrNotSupported) {
		return n, err
	}
	return n, nil
}

// Flush commits the status line and headers without a body.
func (t *HTTP) Flush() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return ErrClosed
	}
	t.commitLocked()
	if err := t.rc.Flush(); err != nil && !errors.Is(err, http.ErrNotSupported) {
		return err
	}
	return nil
}

func (t *HTTP) commitLocked() {
	if !t.committed {
		t.committed = true
		t.rw.WriteHeader(t.status)
	}
}

// Close ends the response by releasing Done. It is safe to call repeatedly.
func (t *HTTP) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil
	}
	t.closed = true
	close(t.done)
	return nil
}

// Done is closed when the transport is closed.
func (t *HTTP) Done() <-chan struct{} {
	return t.done
}

// Status returns the status sent (or to be sent) on the wire.
func (t *HTTP) Status() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.status
}

// BytesWritten returns the number of body bytes handed to the ResponseWriter.
func (t *HTTP) BytesWritten() int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.written
}
