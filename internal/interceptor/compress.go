package interceptor

import (
	"fmt"
	"io"

	"github.com/andybalholm/brotli"
	"github.com/klauspost/compress/gzip"

	"example.com/chunkcast/internal/streamwriter"
)

const (
	DefaultGzipLevel   = gzip.DefaultCompression
	DefaultBrotliLevel = brotli.DefaultCompression
)

// Gzip compresses every payload into its own gzip member. Concatenated
// members form a valid gzip stream, so a client decoding the whole body
// sees the payloads joined in order.
type Gzip struct {
	level int
}

func NewGzip(level int) (*Gzip, error) {
	if level < gzip.HuffmanOnly || level > gzip.BestCompression {
		return nil, fmt.Errorf("gzip level %d out of range [%d, %d]", level, gzip.HuffmanOnly, gzip.BestCompression)
	}
	return &Gzip{level: level}, nil
}

func (g *Gzip) Intercept(rc *streamwriter.ResponseContext, in []byte, out io.Writer) error {
	rc.SetHeader("Content-Encoding", "gzip")
	rc.SetHeader("Vary", "Accept-Encoding")
	zw, err := gzip.NewWriterLevel(out, g.level)
	if err != nil {
		return err
	}
	if _, err := zw.Write(in); err != nil {
		return err
	}
	return zw.Close()
}

// Brotli compresses the response as one brotli stream, flushing after every
// payload so each write is decodable as soon as it arrives. The stream is
// never finished; the decoder sees end of input when the response ends.
type Brotli struct {
	level int
	bw    *brotli.Writer
	sink  *redirectWriter
}

func NewBrotli(level int) (*Brotli, error) {
	if level < brotli.BestSpeed || level > brotli.BestCompression {
		return nil, fmt.Errorf("brotli level %d out of range [%d, %d]", level, brotli.BestSpeed, brotli.BestCompression)
	}
	return &Brotli{level: level}, nil
}

func (b *Brotli) Intercept(rc *streamwriter.ResponseContext, in []byte, out io.Writer) error {
	rc.SetHeader("Content-Encoding", "br")
	rc.SetHeader("Vary", "Accept-Encoding")
	if b.bw == nil {
		b.sink = &redirectWriter{}
		b.bw = brotli.NewWriterLevel(b.sink, b.level)
	}
	// The chain hands us a different scratch buffer per call.
	b.sink.w = out
	defer func() { b.sink.w = nil }()
	if _, err := b.bw.Write(in); err != nil {
		return err
	}
	return b.bw.Flush()
}

type redirectWriter struct {
	w io.Writer
}

func (r *redirectWriter) Write(p []byte) (int, error) {
	if r.w == nil {
		return 0, io.ErrClosedPipe
	}
	return r.w.Write(p)
}
