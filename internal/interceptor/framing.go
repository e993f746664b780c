package interceptor

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"unicode/utf8"

	"example.com/chunkcast/internal/streamwriter"
)

const (
	DefaultPaddingSize    = 2048
	DefaultTrackDelimiter = "|"
)

// Padding prefixes the first payload of a response with whitespace so
// buffering proxies and browsers start rendering immediately.
type Padding struct {
	size int
	done bool
}

func NewPadding(size int) (*Padding, error) {
	if size <= 0 {
		return nil, fmt.Errorf("padding size must be positive, got %d", size)
	}
	return &Padding{size: size}, nil
}

func (p *Padding) Intercept(_ *streamwriter.ResponseContext, in []byte, out io.Writer) error {
	if !p.done {
		p.done = true
		if _, err := out.Write(bytes.Repeat([]byte{' '}, p.size)); err != nil {
			return err
		}
		if _, err := out.Write([]byte{'\n'}); err != nil {
			return err
		}
	}
	_, err := out.Write(in)
	return err
}

// SSE frames each payload as one server-sent event.
type SSE struct{}

func NewSSE() *SSE { return &SSE{} }

func (SSE) Intercept(rc *streamwriter.ResponseContext, in []byte, out io.Writer) error {
	rc.ContentType = "text/event-stream"
	rc.SetHeader("Cache-Control", "no-cache")
	in = bytes.TrimSuffix(in, []byte("\n"))
	for _, line := range bytes.Split(in, []byte("\n")) {
		line = bytes.TrimSuffix(line, []byte("\r"))
		if _, err := fmt.Fprintf(out, "data: %s\n", line); err != nil {
			return err
		}
	}
	_, err := out.Write([]byte("\n"))
	return err
}

// JSONP wraps each payload as a call to a JavaScript callback with the
// payload as a string argument.
type JSONP struct {
	callback string
}

func NewJSONP(callback string) (*JSONP, error) {
	if !ValidCallback(callback) {
		return nil, fmt.Errorf("invalid jsonp callback %q", callback)
	}
	return &JSONP{callback: callback}, nil
}

func (j *JSONP) Intercept(rc *streamwriter.ResponseContext, in []byte, out io.Writer) error {
	rc.ContentType = "application/javascript"
	arg, err := json.Marshal(string(in))
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(out, "%s(%s);\n", j.callback, arg)
	return err
}

// TrackSize prefixes each payload with its length in characters and a
// delimiter, letting clients split a stream back into messages.
type TrackSize struct {
	delimiter string
}

func NewTrackSize(delimiter string) *TrackSize {
	if delimiter == "" {
		delimiter = DefaultTrackDelimiter
	}
	return &TrackSize{delimiter: delimiter}
}

func (t *TrackSize) Intercept(_ *streamwriter.ResponseContext, in []byte, out io.Writer) error {
	if _, err := io.WriteString(out, strconv.Itoa(utf8.RuneCount(in))+t.delimiter); err != nil {
		return err
	}
	_, err := out.Write(in)
	return err
}
