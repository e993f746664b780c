package streamwriter

import (
	"net/http"
	"sort"

	"github.com/google/uuid"
)

// DefaultContentType is sent when a response context declares none.
const DefaultContentType = "text/plain"

// RawStream is a lower-level output stream that may hold buffered bytes the
// writer never saw. It is flushed on close when nothing was written.
type RawStream interface {
	Flush() error
}

// Request identifies the logical request a response answers.
type Request struct {
	ID        string
	Transport string
	Topic     string
}

// NewRequest returns a Request with a fresh random ID.
func NewRequest(transport, topic string) *Request {
	return &Request{ID: uuid.NewString(), Transport: transport, Topic: topic}
}

// ResponseContext is one in-flight response. It is owned by the caller;
// a Writer only reads it (and lets interceptors adjust it) during a call.
type ResponseContext struct {
	Status      int
	ContentType string
	Headers     map[string]string
	Charset     string
	Raw         RawStream
	Request     *Request
}

// NewResponseContext returns a 200 context for req with an empty header map.
func NewResponseContext(req *Request) *ResponseContext {
	return &ResponseContext{
		Status:  http.StatusOK,
		Headers: make(map[string]string),
		Request: req,
	}
}

// SetHeader sets a response header. It only reaches the wire if called
// before the first write flushes headers.
func (rc *ResponseContext) SetHeader(name, value string) {
	if rc.Headers == nil {
		rc.Headers = make(map[string]string)
	}
	rc.Headers[http.CanonicalHeaderKey(name)] = value
}

// Header returns the value of a response header, or "".
func (rc *ResponseContext) Header(name string) string {
	if rc.Headers == nil {
		return ""
	}
	if v, ok := rc.Headers[name]; ok {
		return v
	}
	return rc.Headers[http.CanonicalHeaderKey(name)]
}

func (rc *ResponseContext) sortedHeaderNames() []string {
	names := make([]string, 0, len(rc.Headers))
	for name := range rc.Headers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (rc *ResponseContext) resourceID() string {
	if rc == nil || rc.Request == nil {
		return ""
	}
	return rc.Request.ID
}

func (rc *ResponseContext) transportName() string {
	if rc == nil || rc.Request == nil {
		return ""
	}
	return rc.Request.Transport
}
