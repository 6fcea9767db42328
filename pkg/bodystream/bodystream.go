// Package bodystream defines the pull-based byte stream used as the body of
// blob uploads and downloads, plus the in-memory, file and reader backed
// implementations of it.
package bodystream

import (
	"context"
	"errors"
	"io"
)

// BodyStream is a forward-only byte stream of known length that can be reset
// to its first byte.
//
// Read follows io.Reader conventions: it returns 0, io.EOF once the stream is
// exhausted and 0, nil for an empty buffer. The context is checked by
// implementations that may block and is passed through by wrappers.
type BodyStream interface {
	Length() int64
	Read(ctx context.Context, p []byte) (int, error)
	Rewind() error
}

// Errors
var (
	ErrNotRewindable = errors.New("body stream cannot be rewound")
	ErrClosed        = errors.New("body stream is closed")
)

// ReadToCount reads from s until p is full or the stream ends and returns the
// number of bytes read. io.EOF is not reported as an error.
func ReadToCount(ctx context.Context, s BodyStream, p []byte) (int, error) {
	total := 0
	for total < len(p) {
		n, err := s.Read(ctx, p[total:])
		total += n
		if err == io.EOF {
			return total, nil
		}
		if err != nil {
			return total, err
		}
		if n == 0 {
			return total, io.ErrNoProgress
		}
	}
	return total, nil
}

// ReadToEnd reads all remaining bytes of s.
func ReadToEnd(ctx context.Context, s BodyStream) ([]byte, error) {
	size := s.Length()
	if size < 0 || size > 64<<20 {
		size = 64 << 10
	}
	buf := make([]byte, 0, size)
	chunk := make([]byte, 64<<10)
	for {
		n, err := s.Read(ctx, chunk)
		buf = append(buf, chunk[:n]...)
		if err == io.EOF {
			return buf, nil
		}
		if err != nil {
			return buf, err
		}
	}
}

// NewReader adapts s to an io.Reader bound to ctx.
func NewReader(ctx context.Context, s BodyStream) io.Reader {
	return &reader{ctx: ctx, stream: s}
}

type reader struct {
	ctx    context.Context
	stream BodyStream
}

func (r *reader) Read(p []byte) (int, error) {
	return r.stream.Read(r.ctx, p)
}
