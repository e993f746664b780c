package streamwriter

import (
	"fmt"
	"io"
	"net/http"

	"github.com/valyala/bytebufferpool"
)

// Interceptor transforms the full payload of one write. It reads in and
// writes its output to out; it never sees the real transport. It may adjust
// rc (for example to add a Content-Encoding header before the first flush).
type Interceptor interface {
	Intercept(rc *ResponseContext, in []byte, out io.Writer) error
}

// InterceptorFunc adapts a function to the Interceptor interface.
type InterceptorFunc func(rc *ResponseContext, in []byte, out io.Writer) error

func (f InterceptorFunc) Intercept(rc *ResponseContext, in []byte, out io.Writer) error {
	return f(rc, in, out)
}

// ShouldTransform reports whether a response with the given status goes
// through the transform chain. Error responses are sent untouched.
func ShouldTransform(status int) bool {
	return status < http.StatusBadRequest
}

// Chain is an ordered list of interceptors; index 0 runs first.
type Chain []Interceptor

// Apply runs in through every interceptor in order and returns the final
// output. Intermediate results live in pooled scratch buffers that are
// returned to the pool on every exit path.
func (c Chain) Apply(rc *ResponseContext, in []byte) ([]byte, error) {
	if len(c) == 0 {
		return in, nil
	}
	bufs := [2]*bytebufferpool.ByteBuffer{bytebufferpool.Get(), bytebufferpool.Get()}
	defer func() {
		bytebufferpool.Put(bufs[0])
		bytebufferpool.Put(bufs[1])
	}()

	cur := in
	for i, ic := range c {
		dst := bufs[i%2]
		dst.Reset()
		if err := ic.Intercept(rc, cur, dst); err != nil {
			return nil, fmt.Errorf("interceptor %d (%T): %w", i, ic, err)
		}
		cur = dst.B
	}
	return append([]byte(nil), cur...), nil
}
