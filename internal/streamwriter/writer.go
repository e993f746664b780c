// Package streamwriter implements a chunked response writer that runs
// payloads through an optional interceptor chain, emits headers once on the
// first write and closes idempotently while notifying a completion hook.
//
// A Writer drives exactly one response. Its write and close sequences are
// not safe for concurrent use; callers serialise them per response. The
// state flags are atomics so that monitors on other goroutines (the idle
// reaper, metrics, diagnostics) read consistent values without blocking.
package streamwriter

import (
	"io"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/text/encoding/unicode"

	"example.com/chunkcast/internal/logger"
	"example.com/chunkcast/internal/metrics"
)

// Transport is the downstream consumer of response bytes.
type Transport interface {
	io.Writer
	SetChunked(chunked bool)
	PutHeader(name, value string)
	Close() error
}

// StatusSetter is implemented by transports that carry a status line.
type StatusSetter interface {
	SetStatus(code int)
}

// CompletionHook is invoked once when a writer closes.
type CompletionHook func(req *Request)

// Close reasons reported to metrics.
const (
	CloseExplicit  = "explicit"
	CloseBroadcast = "broadcast"
	CloseIdle      = "idle"
	CloseShutdown  = "shutdown"
)

// Writer is a streaming response writer bound to one transport.
type Writer struct {
	transport Transport
	chain     Chain
	log       *logger.Logger
	metrics   *metrics.Metrics
	now       func() time.Time

	hookMu sync.Mutex
	hook   CompletionHook

	lastRequest atomic.Pointer[Request]

	headersWritten      atomic.Bool
	anyByteWritten      atomic.Bool
	closed              atomic.Bool
	asyncCloseRequested atomic.Bool
	resumeOnBroadcast   atomic.Bool
	pendingWrites       atomic.Int64
	lastWrite           atomic.Int64 // unix nanos; 0 until the first write
}

// Option configures a Writer.
type Option func(*Writer)

// WithInterceptors sets the transform chain, applied in the given order.
func WithInterceptors(interceptors ...Interceptor) Option {
	return func(w *Writer) { w.chain = append(Chain(nil), interceptors...) }
}

// WithCompletionHook registers the hook invoked on close.
func WithCompletionHook(hook CompletionHook) Option {
	return func(w *Writer) { w.hook = hook }
}

// WithLogger sets the logger; the default discards everything.
func WithLogger(l *logger.Logger) Option {
	return func(w *Writer) { w.log = l }
}

// WithMetrics sets the metrics sink. A nil sink records nothing.
func WithMetrics(m *metrics.Metrics) Option {
	return func(w *Writer) { w.metrics = m }
}

// WithClock overrides time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(w *Writer) { w.now = now }
}

// WithResumeOnBroadcast is ResumeOnBroadcast at construction time.
func WithResumeOnBroadcast(enabled bool) Option {
	return func(w *Writer) { w.resumeOnBroadcast.Store(enabled) }
}

// WithRequest records the request the writer answers, so Close(nil) can
// still hand it to the completion hook.
func WithRequest(req *Request) Option {
	return func(w *Writer) { w.lastRequest.Store(req) }
}

// New returns a Writer forwarding to t.
func New(t Transport, opts ...Option) *Writer {
	w := &Writer{
		transport: t,
		log:       logger.NewNop(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(w)
	}
	w.metrics.WriterOpened()
	return w
}

// Write sends payload[offset:offset+length].
//
// Non-error responses go through the transform chain first. The first call
// marks the transport chunked and flushes status and headers; later calls
// only append bytes. With resume-on-broadcast enabled the writer closes
// itself before returning. Range and charset errors leave the writer
// untouched; a transport failure leaves the flags reflecting whatever
// progress was made (headers may already be out).
func (w *Writer) Write(rc *ResponseContext, payload []byte, offset, length int) error {
	if rc == nil {
		rc = NewResponseContext(w.lastRequest.Load())
	}
	if rc.Request != nil {
		w.lastRequest.Store(rc.Request)
	}
	if w.closed.Load() {
		return w.fail("write", ErrWriteAfterClose, rc, nil)
	}
	if offset < 0 || length < 0 || offset > len(payload) || length > len(payload)-offset {
		return w.fail("write", ErrInvalidRange, rc, nil)
	}
	// Checked up front so a bad charset leaves no partial progress.
	if _, _, err := resolveCharset(rc.Charset); err != nil {
		return w.fail("write", ErrEncodingFailed, rc, err)
	}
	w.log.Trace("Writing payload", logger.LogFields{
		"resource":  rc.resourceID(),
		"transport": rc.transportName(),
		"bytes":     length,
	})

	data := payload[offset : offset+length]
	transformed := false
	if len(w.chain) > 0 && ShouldTransform(rc.Status) {
		start := time.Now()
		out, err := w.chain.Apply(rc, data)
		w.metrics.ObserveTransform(time.Since(start).Seconds())
		if err != nil {
			return w.fail("write", ErrTransformFailed, rc, err)
		}
		data = out
		transformed = true
	}

	w.pendingWrites.Add(1)
	if !w.headersWritten.Load() {
		w.writeHeaders(rc)
		w.headersWritten.Store(true)
	}

	if _, err := w.transport.Write(data); err != nil {
		return w.fail("write", ErrTransportWriteFailed, rc, err)
	}
	w.anyByteWritten.Store(true)
	w.lastWrite.Store(w.now().UnixNano())
	w.metrics.WriteAccepted(transformed, len(data))

	if w.resumeOnBroadcast.Load() {
		return w.close(rc, CloseBroadcast)
	}
	return nil
}

// WriteBytes sends the whole payload.
func (w *Writer) WriteBytes(rc *ResponseContext, p []byte) error {
	return w.Write(rc, p, 0, len(p))
}

// WriteString encodes s in the context charset and sends it. Runes the
// charset cannot represent fail with ErrEncodingFailed.
func (w *Writer) WriteString(rc *ResponseContext, s string) error {
	var charset string
	if rc != nil {
		charset = rc.Charset
	}
	enc, name, err := resolveCharset(charset)
	if err != nil {
		return w.fail("write", ErrEncodingFailed, rc, err)
	}
	p := []byte(s)
	if name != "utf-8" {
		if p, err = enc.NewEncoder().Bytes(p); err != nil {
			return w.fail("write", ErrEncodingFailed, rc, err)
		}
	}
	return w.WriteBytes(rc, p)
}

// WriteError logs the error and writes message straight to the transport,
// bypassing the chain and header bookkeeping.
//
// No status line is set here; a caller that needs one must set it on the
// context before the first Write.
func (w *Writer) WriteError(rc *ResponseContext, code int, message string) error {
	w.log.Error("Writing error response", logger.LogFields{
		"code":     code,
		"message":  message,
		"resource": rc.resourceID(),
	})
	if w.closed.Load() {
		return w.fail("write_error", ErrWriteAfterClose, rc, nil)
	}
	if _, err := w.transport.Write([]byte(message)); err != nil {
		return w.fail("write_error", ErrTransportWriteFailed, rc, err)
	}
	return nil
}

// Close flushes rc's raw stream if nothing was ever written, closes the
// transport and invokes the completion hook. Only the first call acts;
// later calls return nil.
func (w *Writer) Close(rc *ResponseContext) error {
	return w.close(rc, CloseExplicit)
}

// CloseWithReason is Close with a metrics label for why the writer closed.
func (w *Writer) CloseWithReason(rc *ResponseContext, reason string) error {
	return w.close(rc, reason)
}

func (w *Writer) close(rc *ResponseContext, reason string) error {
	if !w.closed.CompareAndSwap(false, true) {
		return nil
	}

	var flushErr error
	if !w.anyByteWritten.Load() && rc != nil && rc.Raw != nil {
		flushErr = rc.Raw.Flush()
	}
	w.asyncCloseRequested.Store(true)
	closeErr := w.transport.Close()
	w.metrics.WriterClosed(reason)
	w.notifyCompletion(rc)

	switch {
	case closeErr != nil:
		return w.fail("close", ErrTransportWriteFailed, rc, closeErr)
	case flushErr != nil:
		return w.fail("close", ErrTransportWriteFailed, rc, flushErr)
	}
	w.log.Debug("Writer closed", logger.LogFields{"resource": rc.resourceID(), "reason": reason})
	return nil
}

func (w *Writer) notifyCompletion(rc *ResponseContext) {
	req := w.lastRequest.Load()
	if rc != nil && rc.Request != nil {
		req = rc.Request
	}

	w.hookMu.Lock()
	hook := w.hook
	w.hookMu.Unlock()

	if hook == nil {
		w.metrics.HookMissing()
		id := ""
		if req != nil {
			id = req.ID
		}
		w.log.Error("Unable to close properly", logger.LogFields{
			"resource": id,
			"error":    ErrHookMissing.Error(),
		})
		return
	}
	hook(req)
}

// OnClose registers (or replaces) the completion hook.
func (w *Writer) OnClose(hook CompletionHook) {
	w.hookMu.Lock()
	w.hook = hook
	w.hookMu.Unlock()
}

// ResumeOnBroadcast makes the next successful Write close the writer.
func (w *Writer) ResumeOnBroadcast(enabled bool) {
	w.resumeOnBroadcast.Store(enabled)
}

// LastTick returns the time of the last successful write, or now if there
// has been none, so a writer that never wrote is never reported as stale.
func (w *Writer) LastTick() time.Time {
	ns := w.lastWrite.Load()
	if ns == 0 {
		return w.now()
	}
	return time.Unix(0, ns)
}

// IsClosed reports whether Close has run.
func (w *Writer) IsClosed() bool { return w.closed.Load() }

// ByteWritten reports whether any payload reached the transport.
func (w *Writer) ByteWritten() bool { return w.anyByteWritten.Load() }

// HeadersWritten reports whether status and headers have been flushed.
func (w *Writer) HeadersWritten() bool { return w.headersWritten.Load() }

// AsyncCloseRequested reports whether a close of the transport was requested.
func (w *Writer) AsyncCloseRequested() bool { return w.asyncCloseRequested.Load() }

// PendingWrites counts writes that got past the transform chain. It only grows.
func (w *Writer) PendingWrites() int64 { return w.pendingWrites.Load() }

func (w *Writer) writeHeaders(rc *ResponseContext) {
	w.transport.SetChunked(true)
	if ss, ok := w.transport.(StatusSetter); ok && rc.Status != 0 {
		ss.SetStatus(rc.Status)
	}
	contentType := rc.ContentType
	if contentType == "" {
		contentType = rc.Header("Content-Type")
	}
	if contentType == "" {
		contentType = DefaultContentType
	}
	w.transport.PutHeader("Content-Type", contentType)
	for _, name := range rc.sortedHeaderNames() {
		if name == "Content-Type" {
			continue
		}
		w.transport.PutHeader(name, rc.Headers[name])
	}
}

func (w *Writer) fail(op string, kind error, rc *ResponseContext, cause error) error {
	err := &Error{Op: op, Kind: kind, ResourceID: rc.resourceID(), Err: cause}
	w.metrics.WriteFailed(kindLabel(kind))
	w.log.Debug("Writer operation failed", logger.LogFields{"error": err.Error()})
	return err
}

// resolveCharset maps a charset label to an encoding and its canonical
// name. The empty label means UTF-8.
func resolveCharset(label string) (encoding.Encoding, string, error) {
	if label == "" {
		return unicode.UTF8, "utf-8", nil
	}
	enc, err := htmlindex.Get(label)
	if err != nil {
		return nil, "", err
	}
	name, err := htmlindex.Name(enc)
	if err != nil {
		return nil, "", err
	}
	return enc, name, nil
}
