package structmsg

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"github.com/ssargent/structmsg/pkg/bodystream"
	"github.com/ssargent/structmsg/pkg/crc64"
)

// DecodingStream returns the content carried by a structured message and
// verifies its checksums while reading. It owns the inner stream; Close
// closes it.
type DecodingStream struct {
	inner   bodystream.BodyStream
	options DecodingOptions

	region        region
	header        StreamHeader
	headerRead    bool
	footerLength  int
	offset        int64 // Framed bytes consumed from inner
	segmentNumber uint16
	segmentLength uint64
	segmentOffset uint64
	err           error // Sticky until Rewind
	onSegment     func(SegmentHeader, int64)

	buf         [StreamHeaderLength]byte
	segmentHash crc64.Hash
	streamHash  crc64.Hash
}

var _ bodystream.BodyStream = (*DecodingStream)(nil)

// NewDecodingStream takes ownership of inner, a stream of framed bytes
func NewDecodingStream(inner bodystream.BodyStream, options DecodingOptions) *DecodingStream {
	return &DecodingStream{
		inner:   inner,
		options: options,
	}
}

// Length returns the caller-supplied content length. The message length in
// the wire header is never consulted.
func (d *DecodingStream) Length() int64 {
	return d.options.ContentLength
}

// Header returns the stream header once it has been read
func (d *DecodingStream) Header() (StreamHeader, bool) {
	return d.header, d.headerRead
}

// Read copies decoded content into p. A single call returns the content of at
// most one segment, and any footer that directly follows the returned content
// is verified before Read returns. Read returns 0, io.EOF once the stream
// footer has been verified.
func (d *DecodingStream) Read(ctx context.Context, p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	if d.err != nil {
		return 0, d.err
	}
	if d.region == regionCompleted {
		return 0, io.EOF
	}

	n, err := d.read(ctx, p)
	if err != nil {
		d.err = err
		return 0, err
	}
	if n == 0 && d.region == regionCompleted {
		return 0, io.EOF
	}
	return n, nil
}

func (d *DecodingStream) read(ctx context.Context, p []byte) (int, error) {
	total := 0

	// Keep going until some content has been produced, then finish any
	// footers so a segment's content is never returned unverified.
	for (total == 0 && d.region != regionCompleted) || d.region.isFooter() {
		switch d.region {
		case regionStreamHeader:
			if err := d.readFull(ctx, d.buf[:StreamHeaderLength]); err != nil {
				return 0, err
			}
			h := ReadStreamHeader(d.buf[:])
			if h.Version != MessageVersion {
				return 0, fmt.Errorf("%w: %d", ErrUnsupportedVersion, h.Version)
			}
			if h.Flags&^knownFlags != 0 {
				return 0, fmt.Errorf("%w: 0x%04x", ErrUnsupportedFlags, uint16(h.Flags))
			}
			d.header = h
			d.headerRead = true
			d.footerLength = h.Flags.FooterLength()

			if h.SegmentCount == 0 {
				d.region = regionStreamFooter
			} else {
				d.region = regionSegmentHeader
			}

		case regionSegmentHeader:
			if err := d.readFull(ctx, d.buf[:SegmentHeaderLength]); err != nil {
				return 0, err
			}
			sh := ReadSegmentHeader(d.buf[:])
			if sh.Number != d.segmentNumber+1 || sh.Number > d.header.SegmentCount {
				return 0, malformed("segment %d follows segment %d of %d", sh.Number, d.segmentNumber, d.header.SegmentCount)
			}
			d.segmentNumber = sh.Number
			d.segmentLength = sh.ContentLength
			d.segmentOffset = 0
			d.region = regionSegmentContent
			if d.onSegment != nil {
				d.onSegment(sh, d.offset-SegmentHeaderLength)
			}

		case regionSegmentContent:
			remaining := d.segmentLength - d.segmentOffset
			if remaining == 0 {
				d.region = regionSegmentFooter
				continue
			}
			want := min(uint64(len(p)-total), remaining)
			chunk := p[total : total+int(want)]
			n, err := d.inner.Read(ctx, chunk)
			if d.footerLength > 0 {
				d.segmentHash.Append(chunk[:n])
			}
			total += n
			d.offset += int64(n)
			d.segmentOffset += uint64(n)
			if d.segmentOffset == d.segmentLength {
				d.region = regionSegmentFooter
			}

			if err == io.EOF && d.region == regionSegmentContent {
				return 0, fmt.Errorf("unexpected end of stream while reading structured message segment %d content: %w",
					d.segmentNumber, io.ErrUnexpectedEOF)
			} else if err != nil && err != io.EOF {
				return 0, err
			}
			if n == 0 && d.region == regionSegmentContent {
				return total, nil
			}

		case regionSegmentFooter:
			if d.footerLength > 0 {
				if err := d.readFull(ctx, d.buf[:Crc64Length]); err != nil {
					return 0, err
				}
				calculated := d.segmentHash.Final()
				reported := ReadCrc64(d.buf[:])
				if !bytes.Equal(calculated, reported) {
					return 0, &IntegrityError{
						Scope:      ScopeSegment,
						Segment:    d.segmentNumber,
						Calculated: calculated,
						Reported:   reported,
					}
				}
				d.streamHash.Concatenate(&d.segmentHash)
				d.segmentHash.Reset()
			}

			if d.segmentNumber == d.header.SegmentCount {
				d.region = regionStreamFooter
			} else {
				d.region = regionSegmentHeader
			}

		case regionStreamFooter:
			if d.footerLength > 0 {
				if err := d.readFull(ctx, d.buf[:Crc64Length]); err != nil {
					return 0, err
				}
				calculated := d.streamHash.Final()
				reported := ReadCrc64(d.buf[:])
				if !bytes.Equal(calculated, reported) {
					return 0, &IntegrityError{
						Scope:      ScopeStream,
						Calculated: calculated,
						Reported:   reported,
					}
				}
			}
			d.region = regionCompleted
		}
	}

	if d.region == regionCompleted {
		if d.segmentNumber != d.header.SegmentCount {
			return 0, malformed("stream ended after %d of %d segments", d.segmentNumber, d.header.SegmentCount)
		}
		if uint64(d.offset) != d.header.MessageLength {
			return 0, malformed("read %d bytes but the stream header declared %d", d.offset, d.header.MessageLength)
		}
	}
	return total, nil
}

// readFull fills buf from the inner stream, failing on a short read
func (d *DecodingStream) readFull(ctx context.Context, buf []byte) error {
	n, err := bodystream.ReadToCount(ctx, d.inner, buf)
	d.offset += int64(n)
	if err != nil {
		return err
	}
	if n != len(buf) {
		return fmt.Errorf("unexpected end of stream while reading structured message %s: %w", d.region, io.ErrUnexpectedEOF)
	}
	return nil
}

// Rewind rewinds the inner stream and restarts parsing at the stream header
func (d *DecodingStream) Rewind() error {
	if err := d.inner.Rewind(); err != nil {
		return err
	}
	d.region = regionStreamHeader
	d.header = StreamHeader{}
	d.headerRead = false
	d.footerLength = 0
	d.offset = 0
	d.segmentNumber = 0
	d.segmentLength = 0
	d.segmentOffset = 0
	d.err = nil
	d.segmentHash.Reset()
	d.streamHash.Reset()
	return nil
}

// Close releases the inner stream if it holds resources
func (d *DecodingStream) Close() error {
	if c, ok := d.inner.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
