// Package interceptor provides the payload transforms a streaming writer can
// run before bytes reach the transport.
package interceptor

import (
	"fmt"
	"regexp"

	"example.com/chunkcast/internal/config"
	"example.com/chunkcast/internal/streamwriter"
)

// Build returns a fresh chain for one response. Interceptors may keep
// per-response state, so callers build a new chain for every writer.
func Build(cfgs []config.TransformConfig) ([]streamwriter.Interceptor, error) {
	chain := make([]streamwriter.Interceptor, 0, len(cfgs))
	for i, c := range cfgs {
		ic, err := build(c)
		if err != nil {
			return nil, fmt.Errorf("transform %d (%s): %w", i, c.Type, err)
		}
		chain = append(chain, ic)
	}
	return chain, nil
}

func build(c config.TransformConfig) (streamwriter.Interceptor, error) {
	switch c.Type {
	case config.TransformGzip:
		level := DefaultGzipLevel
		if c.Level != nil {
			level = *c.Level
		}
		return NewGzip(level)
	case config.TransformBrotli:
		level := DefaultBrotliLevel
		if c.Level != nil {
			level = *c.Level
		}
		return NewBrotli(level)
	case config.TransformPadding:
		size := DefaultPaddingSize
		if c.Size != nil {
			size = *c.Size
		}
		return NewPadding(size)
	case config.TransformSSE:
		return NewSSE(), nil
	case config.TransformJSONP:
		return NewJSONP(c.Callback)
	case config.TransformTrackSize:
		return NewTrackSize(c.Delimiter), nil
	default:
		return nil, fmt.Errorf("unknown transform type %q", c.Type)
	}
}

var jsIdentifier = regexp.MustCompile(`^[A-Za-z_$][A-Za-z0-9_$]*(\.[A-Za-z_$][A-Za-z0-9_$]*)*$`)

// ValidCallback reports whether name is usable as a JSONP callback.
func ValidCallback(name string) bool {
	return jsIdentifier.MatchString(name)
}
