// Package testutil provides fakes shared by package tests.
package testutil

import (
	"bytes"
	"sync"
	"sync/atomic"
)

// Operation kinds recorded by RecordingTransport.
const (
	OpSetChunked = "set_chunked"
	OpSetStatus  = "set_status"
	OpPutHeader  = "put_header"
	OpWrite      = "write"
	OpClose      = "close"
)

// Op is one call made on a RecordingTransport.
type Op struct {
	Kind    string
	Name    string
	Value   string
	Chunked bool
	Status  int
	Data    []byte
}

// RecordingTransport records every call in order. It satisfies
// streamwriter.Transport and streamwriter.StatusSetter. Calls made after
// Close are still recorded so tests can assert that none happen.
type RecordingTransport struct {
	mu  sync.Mutex
	ops []Op

	// WriteErr and CloseErr, when set, are returned by Write and Close.
	WriteErr error
	CloseErr error
}

func (t *RecordingTransport) record(op Op) {
	t.mu.Lock()
	t.ops = append(t.ops, op)
	t.mu.Unlock()
}

func (t *RecordingTransport) SetChunked(chunked bool) {
	t.record(Op{Kind: OpSetChunked, Chunked: chunked})
}

func (t *RecordingTransport) SetStatus(code int) {
	t.record(Op{Kind: OpSetStatus, Status: code})
}

func (t *RecordingTransport) PutHeader(name, value string) {
	t.record(Op{Kind: OpPutHeader, Name: name, Value: value})
}

func (t *RecordingTransport) Write(p []byte) (int, error) {
	if t.WriteErr != nil {
		return 0, t.WriteErr
	}
	t.record(Op{Kind: OpWrite, Data: append([]byte(nil), p...)})
	return len(p), nil
}

func (t *RecordingTransport) Close() error {
	t.record(Op{Kind: OpClose})
	return t.CloseErr
}

// Ops returns a copy of the recorded calls.
func (t *RecordingTransport) Ops() []Op {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]Op(nil), t.ops...)
}

// Count returns how many calls of the given kind were recorded.
func (t *RecordingTransport) Count(kind string) int {
	n := 0
	for _, op := range t.Ops() {
		if op.Kind == kind {
			n++
		}
	}
	return n
}

// Body concatenates every written payload.
func (t *RecordingTransport) Body() []byte {
	var buf bytes.Buffer
	for _, op := range t.Ops() {
		if op.Kind == OpWrite {
			buf.Write(op.Data)
		}
	}
	return buf.Bytes()
}

// Header returns the last value put for name, and whether any was put.
func (t *RecordingTransport) Header(name string) (string, bool) {
	value, found := "", false
	for _, op := range t.Ops() {
		if op.Kind == OpPutHeader && op.Name == name {
			value, found = op.Value, true
		}
	}
	return value, found
}

// WritesAfterClose counts writes recorded after the first Close.
func (t *RecordingTransport) WritesAfterClose() int {
	closed, n := false, 0
	for _, op := range t.Ops() {
		switch {
		case op.Kind == OpClose:
			closed = true
		case op.Kind == OpWrite && closed:
			n++
		}
	}
	return n
}

// FlushCounter is a raw stream that counts flushes.
type FlushCounter struct {
	n   atomic.Int32
	Err error
}

func (f *FlushCounter) Flush() error {
	f.n.Add(1)
	return f.Err
}

// Flushes returns the number of Flush calls.
func (f *FlushCounter) Flushes() int {
	return int(f.n.Load())
}

// HookCounter records completion-hook invocations.
type HookCounter struct {
	mu    sync.Mutex
	calls []string
}

// Hook has the shape of a completion hook taking the request ID.
func (h *HookCounter) Hook(id string) {
	h.mu.Lock()
	h.calls = append(h.calls, id)
	h.mu.Unlock()
}

// Calls returns the request IDs seen so far.
func (h *HookCounter) Calls() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.calls...)
}
