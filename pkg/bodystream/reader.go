package bodystream

import (
	"context"
	"io"
)

// ReaderStream exposes an io.Reader of known length, such as an HTTP request
// or response body, as a BodyStream. It cannot be rewound. Close closes the
// reader when it is an io.Closer.
type ReaderStream struct {
	r      io.Reader
	length int64
	offset int64
}

// NewReaderStream wraps r, which must yield exactly length bytes.
func NewReaderStream(r io.Reader, length int64) *ReaderStream {
	return &ReaderStream{r: r, length: length}
}

// Length returns the declared length.
func (s *ReaderStream) Length() int64 {
	return s.length
}

func (s *ReaderStream) Read(ctx context.Context, p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if s.offset >= s.length {
		return 0, io.EOF
	}
	if remaining := s.length - s.offset; int64(len(p)) > remaining {
		p = p[:remaining]
	}

	n, err := s.r.Read(p)
	s.offset += int64(n)
	if err == io.EOF {
		if s.offset < s.length {
			if n > 0 {
				return n, nil
			}
			return 0, io.ErrUnexpectedEOF
		}
		if n > 0 {
			return n, nil
		}
	}
	return n, err
}

// Rewind always fails unless nothing has been read yet.
func (s *ReaderStream) Rewind() error {
	if s.offset == 0 {
		return nil
	}
	return ErrNotRewindable
}

// Close closes the wrapped reader if it supports it.
func (s *ReaderStream) Close() error {
	if c, ok := s.r.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
