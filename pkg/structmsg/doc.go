// Package structmsg implements the structured message format used to carry blob
// content between a client and the storage service with end-to-end integrity
// checking.
//
// A structured message wraps arbitrary content in a self-describing envelope.
// The content is cut into segments, each framed by its own header and an
// optional CRC64 footer, and the whole message ends with an optional CRC64 of
// the complete content.
//
// # Message Format
//
//	[StreamHeader(13)] ([SegmentHeader(10)][Content][SegmentFooter(0|8)])* [StreamFooter(0|8)]
//
// Stream header fields:
//   - Version: 8-bit message version, always 1
//   - MessageLength: 64-bit total encoded length in bytes (little-endian)
//   - Flags: 16-bit flags, bit 0 enables CRC64 footers (little-endian)
//   - SegmentCount: 16-bit number of segments (little-endian)
//
// Segment header fields:
//   - SegmentNumber: 16-bit 1-based segment number, increasing by one (little-endian)
//   - SegmentContentLength: 64-bit content length of the segment (little-endian)
//
// When FlagCrc64 is set, every segment is followed by the 8-byte CRC64 of its
// content and the message ends with the 8-byte CRC64 of all content. The stream
// checksum is assembled from the segment checksums with crc64.Hash.Concatenate,
// so the content is hashed exactly once. Without the flag both footers are
// absent.
//
// An empty payload still produces a message: a stream header with zero
// segments followed by the stream footer.
//
// # Streams
//
// EncodingStream produces the framed bytes for a source bodystream.BodyStream
// lazily, one Read at a time. It borrows the source: the caller keeps ownership
// and the source must outlive the encoder. Rewind resets the source and the
// encoder so a retried upload sends byte-identical output.
//
// DecodingStream consumes framed bytes from an inner stream it owns and
// returns the original content, verifying each footer as soon as its segment
// has been read. A single Read returns the content of at most one segment;
// callers wanting the whole payload keep calling Read until io.EOF. The
// caller-supplied DecodingOptions.ContentLength, not the wire header, is the
// decoding stream's Length.
//
// # Error Handling
//
// A checksum mismatch fails the Read that detected it with an *IntegrityError
// (errors.Is(err, ErrChecksumMismatch)). Truncated framing fails with a wrapped
// io.ErrUnexpectedEOF and inconsistent framing with ErrMalformedMessage. Errors
// are never retried here: an outer layer rewinds and resends.
//
// # Thread Safety
//
// Streams are not safe for concurrent use. Each transfer attempt owns its own
// stream instance; nothing is shared between instances.
package structmsg
