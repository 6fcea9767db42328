// Package reliable wraps a download body so that transport failures in the
// middle of a read are recovered by reconnecting at the current offset.
package reliable

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/rs/zerolog"

	"github.com/ssargent/structmsg/pkg/bodystream"
)

// Reconnector opens a fresh stream that starts offset bytes into the content
type Reconnector func(ctx context.Context, offset int64) (bodystream.BodyStream, error)

// Options controls retry behavior
type Options struct {
	MaxRetryRequests  int // Attempts per Read, including the first one
	InitialBackoff    time.Duration
	MaxBackoff        time.Duration
	BackoffMultiplier float64
	Logger            zerolog.Logger
}

// DefaultOptions returns the retry settings used for blob downloads
func DefaultOptions() Options {
	return Options{
		MaxRetryRequests:  5,
		InitialBackoff:    100 * time.Millisecond,
		MaxBackoff:        5 * time.Second,
		BackoffMultiplier: 2.0,
		Logger:            zerolog.Nop(),
	}
}

// Stream is a BodyStream that reconnects on read failures
type Stream struct {
	inner       bodystream.BodyStream
	options     Options
	reconnect   Reconnector
	length      int64
	offset      int64 // Bytes delivered to the caller
	reconnected bool
	retries     int
}

var _ bodystream.BodyStream = (*Stream)(nil)

// New wraps inner. The reconnector is only called after inner fails.
func New(inner bodystream.BodyStream, options Options, reconnect Reconnector) *Stream {
	if options.MaxRetryRequests < 1 {
		options.MaxRetryRequests = 1
	}
	if options.BackoffMultiplier < 1 {
		options.BackoffMultiplier = 1
	}
	return &Stream{
		inner:     inner,
		options:   options,
		reconnect: reconnect,
		length:    inner.Length(),
	}
}

// Length returns the length of the original stream
func (s *Stream) Length() int64 {
	return s.length
}

// Offset returns the number of bytes delivered so far
func (s *Stream) Offset() int64 {
	return s.offset
}

// Retries returns the number of reconnects performed
func (s *Stream) Retries() int {
	return s.retries
}

// Read reads from the current inner stream. On failure it reconnects at the
// current offset and retries, giving up after MaxRetryRequests attempts with
// the last error. A failed reconnect counts as an attempt.
func (s *Stream) Read(ctx context.Context, p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}

	var lastErr error
	for attempt := 1; attempt <= s.options.MaxRetryRequests; attempt++ {
		if attempt > 1 {
			backoff := s.calculateBackoff(attempt - 2)
			s.options.Logger.Warn().
				Err(lastErr).
				Int("attempt", attempt).
				Int("max_attempts", s.options.MaxRetryRequests).
				Int64("offset", s.offset).
				Dur("backoff", backoff).
				Msg("body read failed, reconnecting")

			select {
			case <-ctx.Done():
				return 0, ctx.Err()
			case <-time.After(backoff):
			}

			if err := s.replace(ctx); err != nil {
				if isContextError(ctx, err) {
					return 0, err
				}
				lastErr = fmt.Errorf("reconnect at offset %d: %w", s.offset, err)
				continue
			}
		}

		n, err := s.inner.Read(ctx, p)
		s.offset += int64(n)
		if err == nil || err == io.EOF {
			return n, err
		}
		if n > 0 {
			// Deliver what arrived, the failure surfaces again on the next read
			return n, nil
		}
		if isContextError(ctx, err) {
			return 0, err
		}
		lastErr = err
	}

	return 0, fmt.Errorf("read failed after %d attempts at offset %d: %w", s.options.MaxRetryRequests, s.offset, lastErr)
}

func (s *Stream) replace(ctx context.Context) error {
	next, err := s.reconnect(ctx, s.offset)
	if err != nil {
		return err
	}
	if c, ok := s.inner.(io.Closer); ok {
		_ = c.Close()
	}
	s.inner = next
	s.reconnected = true
	s.retries++
	return nil
}

// Backoff returns the delay before retry number attempt, counting from 0
func (o Options) Backoff(attempt int) time.Duration {
	backoff := float64(o.InitialBackoff)
	for i := 0; i < attempt; i++ {
		backoff *= o.BackoffMultiplier
	}
	if o.MaxBackoff > 0 && backoff > float64(o.MaxBackoff) {
		backoff = float64(o.MaxBackoff)
	}
	return time.Duration(backoff)
}

func (s *Stream) calculateBackoff(attempt int) time.Duration {
	return s.options.Backoff(attempt)
}

// Rewind rewinds the inner stream. Once a reconnect has replaced the original
// stream the content can no longer be rewound.
func (s *Stream) Rewind() error {
	if s.reconnected {
		return bodystream.ErrNotRewindable
	}
	if err := s.inner.Rewind(); err != nil {
		return err
	}
	s.offset = 0
	return nil
}

// Close closes the current inner stream if it holds resources
func (s *Stream) Close() error {
	if c, ok := s.inner.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

func isContextError(ctx context.Context, err error) bool {
	if ctx.Err() != nil {
		return true
	}
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
