package structmsg

import (
	"encoding/binary"
	"math"
	"strings"
)

const (
	// MessageVersion is the only structured message version understood here
	MessageVersion = 1

	StreamHeaderLength  = 13
	SegmentHeaderLength = 10
	Crc64Length         = 8

	// DefaultMaxSegmentLength is used when EncodingOptions.MaxSegmentLength is zero
	DefaultMaxSegmentLength int64 = 4 * 1024 * 1024

	// MaxSegmentCount is bounded by the 16-bit segment count field
	MaxSegmentCount = math.MaxUint16
)

// Flags controls which optional fields a message carries
type Flags uint16

const (
	FlagNone  Flags = 0
	FlagCrc64 Flags = 1 << 0

	knownFlags = FlagCrc64
)

// Has reports whether all bits of flag are set
func (f Flags) Has(flag Flags) bool {
	return f&flag == flag
}

// FooterLength returns the size of each segment footer and of the stream
// footer for these flags
func (f Flags) FooterLength() int {
	if f.Has(FlagCrc64) {
		return Crc64Length
	}
	return 0
}

func (f Flags) String() string {
	if f == FlagNone {
		return "none"
	}
	var parts []string
	if f.Has(FlagCrc64) {
		parts = append(parts, "crc64")
	}
	if rest := f &^ knownFlags; rest != 0 {
		parts = append(parts, "unknown")
	}
	return strings.Join(parts, "|")
}

// StreamHeader is the decoded form of the 13-byte message header
type StreamHeader struct {
	Version       uint8
	MessageLength uint64
	Flags         Flags
	SegmentCount  uint16
}

// ContentLength derives the payload size from the header fields
func (h StreamHeader) ContentLength() int64 {
	footer := int64(h.Flags.FooterLength())
	overhead := StreamHeaderLength + footer + int64(h.SegmentCount)*(SegmentHeaderLength+footer)
	return int64(h.MessageLength) - overhead
}

// SegmentHeader is the decoded form of the 10-byte segment header
type SegmentHeader struct {
	Number        uint16
	ContentLength uint64
}

// WriteStreamHeader serializes a stream header into buf.
// buf must hold at least StreamHeaderLength bytes; shorter buffers panic.
func WriteStreamHeader(buf []byte, messageLength uint64, flags Flags, segmentCount uint16) {
	buf[0] = MessageVersion
	binary.LittleEndian.PutUint64(buf[1:9], messageLength)
	binary.LittleEndian.PutUint16(buf[9:11], uint16(flags))
	binary.LittleEndian.PutUint16(buf[11:13], segmentCount)
}

// ReadStreamHeader parses a stream header from buf without validating it.
// buf must hold at least StreamHeaderLength bytes; shorter buffers panic.
func ReadStreamHeader(buf []byte) StreamHeader {
	return StreamHeader{
		Version:       buf[0],
		MessageLength: binary.LittleEndian.Uint64(buf[1:9]),
		Flags:         Flags(binary.LittleEndian.Uint16(buf[9:11])),
		SegmentCount:  binary.LittleEndian.Uint16(buf[11:13]),
	}
}

// WriteSegmentHeader serializes a segment header into buf.
// buf must hold at least SegmentHeaderLength bytes; shorter buffers panic.
func WriteSegmentHeader(buf []byte, segmentNumber uint16, segmentContentLength uint64) {
	binary.LittleEndian.PutUint16(buf[0:2], segmentNumber)
	binary.LittleEndian.PutUint64(buf[2:10], segmentContentLength)
}

// ReadSegmentHeader parses a segment header from buf without validating it.
// buf must hold at least SegmentHeaderLength bytes; shorter buffers panic.
func ReadSegmentHeader(buf []byte) SegmentHeader {
	return SegmentHeader{
		Number:        binary.LittleEndian.Uint16(buf[0:2]),
		ContentLength: binary.LittleEndian.Uint64(buf[2:10]),
	}
}

// WriteCrc64 copies an encoded CRC64 into buf.
// Both buf and crc must hold Crc64Length bytes; shorter buffers panic.
func WriteCrc64(buf []byte, crc []byte) {
	copy(buf[:Crc64Length], crc[:Crc64Length])
}

// ReadCrc64 returns a copy of the encoded CRC64 at the start of buf.
// buf must hold at least Crc64Length bytes; shorter buffers panic.
func ReadCrc64(buf []byte) []byte {
	crc := make([]byte, Crc64Length)
	copy(crc, buf[:Crc64Length])
	return crc
}

// SegmentCount returns ceil(contentLength / maxSegmentLength)
func SegmentCount(contentLength, maxSegmentLength int64) int64 {
	if contentLength <= 0 {
		return 0
	}
	return (contentLength + maxSegmentLength - 1) / maxSegmentLength
}

// EncodedLength returns the size of the structured message for contentLength
// bytes of content
func EncodedLength(contentLength, maxSegmentLength int64, flags Flags) int64 {
	footer := int64(flags.FooterLength())
	segments := SegmentCount(contentLength, maxSegmentLength)
	return StreamHeaderLength + footer + segments*(SegmentHeaderLength+footer) + contentLength
}
