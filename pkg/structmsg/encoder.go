package structmsg

import (
	"context"
	"fmt"
	"io"

	"github.com/ssargent/structmsg/pkg/bodystream"
	"github.com/ssargent/structmsg/pkg/crc64"
)

// EncodingStream produces the structured message for a source stream. It is a
// bodystream.BodyStream itself, so it can be handed to a transport as a
// request body.
type EncodingStream struct {
	source       bodystream.BodyStream // borrowed, never closed here
	options      EncodingOptions
	sourceLength int64
	length       int64
	segmentCount uint16
	footerLength int

	region        region
	sourceOffset  int64  // Source bytes consumed
	segmentNumber uint16 // Number of the current segment, 0 before the first
	segmentLength int64
	segmentOffset int64

	// Serialized bytes of the current header or footer region. cached is set
	// once the region has been built, pending holds what is still to be
	// emitted.
	cached      bool
	pending     []byte
	headerBuf   [StreamHeaderLength]byte
	segmentBuf  [SegmentHeaderLength]byte
	footerBuf   [Crc64Length]byte
	segmentHash crc64.Hash
	streamHash  crc64.Hash
}

var _ bodystream.BodyStream = (*EncodingStream)(nil)

// NewEncodingStream creates an encoder over source. The segment layout is
// fixed from source.Length() at construction.
func NewEncodingStream(source bodystream.BodyStream, options EncodingOptions) (*EncodingStream, error) {
	options = options.withDefaults()
	if err := options.validate(); err != nil {
		return nil, err
	}

	sourceLength := source.Length()
	segments := SegmentCount(sourceLength, options.MaxSegmentLength)
	if segments > MaxSegmentCount {
		return nil, fmt.Errorf("%w: %d bytes in segments of %d need %d segments",
			ErrTooManySegments, sourceLength, options.MaxSegmentLength, segments)
	}

	return &EncodingStream{
		source:       source,
		options:      options,
		sourceLength: sourceLength,
		length:       EncodedLength(sourceLength, options.MaxSegmentLength, options.Flags),
		segmentCount: uint16(segments),
		footerLength: options.Flags.FooterLength(),
	}, nil
}

// Length returns the total size of the encoded message
func (e *EncodingStream) Length() int64 {
	return e.length
}

// SegmentCount returns the number of segments the message carries
func (e *EncodingStream) SegmentCount() int {
	return int(e.segmentCount)
}

// Flags returns the flags written into the stream header
func (e *EncodingStream) Flags() Flags {
	return e.options.Flags
}

// Read writes the next encoded bytes into p, crossing as many regions as fit.
// It returns 0, io.EOF once the stream footer has been emitted.
func (e *EncodingStream) Read(ctx context.Context, p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}

	total := 0
	for total < len(p) && e.region != regionCompleted {
		switch e.region {
		case regionStreamHeader:
			if !e.cached {
				WriteStreamHeader(e.headerBuf[:], uint64(e.length), e.options.Flags, e.segmentCount)
				e.cache(e.headerBuf[:])
			}
			total += e.drain(p[total:])
			if e.drained() {
				if e.segmentCount == 0 {
					e.region = regionStreamFooter
				} else {
					e.region = regionSegmentHeader
				}
			}

		case regionSegmentHeader:
			if !e.cached {
				e.segmentNumber++
				e.segmentLength = min(e.options.MaxSegmentLength, e.sourceLength-e.sourceOffset)
				e.segmentOffset = 0
				WriteSegmentHeader(e.segmentBuf[:], e.segmentNumber, uint64(e.segmentLength))
				e.cache(e.segmentBuf[:])
			}
			total += e.drain(p[total:])
			if e.drained() {
				e.region = regionSegmentContent
			}

		case regionSegmentContent:
			want := min(int64(len(p)-total), e.segmentLength-e.segmentOffset)
			chunk := p[total : total+int(want)]
			n, err := e.source.Read(ctx, chunk)
			if e.options.Flags.Has(FlagCrc64) {
				e.segmentHash.Append(chunk[:n])
			}
			total += n
			e.segmentOffset += int64(n)
			e.sourceOffset += int64(n)
			if e.segmentOffset == e.segmentLength {
				e.region = regionSegmentFooter
			}

			if err == io.EOF && e.segmentOffset < e.segmentLength {
				return total, fmt.Errorf("source ended %d bytes into segment %d of %d bytes: %w",
					e.segmentOffset, e.segmentNumber, e.segmentLength, io.ErrUnexpectedEOF)
			} else if err != nil && err != io.EOF {
				return total, err
			}
			if n == 0 && e.region == regionSegmentContent {
				return total, nil
			}

		case regionSegmentFooter:
			if e.footerLength > 0 {
				if !e.cached {
					WriteCrc64(e.footerBuf[:], e.segmentHash.Final())
					e.streamHash.Concatenate(&e.segmentHash)
					e.segmentHash.Reset()
					e.cache(e.footerBuf[:])
				}
				total += e.drain(p[total:])
				if !e.drained() {
					continue
				}
			}
			if e.segmentNumber == e.segmentCount {
				e.region = regionStreamFooter
			} else {
				e.region = regionSegmentHeader
			}

		case regionStreamFooter:
			if e.footerLength > 0 {
				if !e.cached {
					WriteCrc64(e.footerBuf[:], e.streamHash.Final())
					e.cache(e.footerBuf[:])
				}
				total += e.drain(p[total:])
				if !e.drained() {
					continue
				}
			}
			e.region = regionCompleted
		}
	}

	if total == 0 && e.region == regionCompleted {
		return 0, io.EOF
	}
	return total, nil
}

// Rewind rewinds the source and restarts the message from its stream header
func (e *EncodingStream) Rewind() error {
	if err := e.source.Rewind(); err != nil {
		return err
	}
	e.region = regionStreamHeader
	e.sourceOffset = 0
	e.segmentNumber = 0
	e.segmentLength = 0
	e.segmentOffset = 0
	e.cached = false
	e.pending = nil
	e.segmentHash.Reset()
	e.streamHash.Reset()
	return nil
}

func (e *EncodingStream) cache(b []byte) {
	e.cached = true
	e.pending = b
}

func (e *EncodingStream) drain(p []byte) int {
	n := copy(p, e.pending)
	e.pending = e.pending[n:]
	return n
}

// drained reports whether the cached region has been fully emitted and
// clears the cache if so
func (e *EncodingStream) drained() bool {
	if len(e.pending) > 0 {
		return false
	}
	e.cached = false
	e.pending = nil
	return true
}
