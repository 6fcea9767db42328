package structmsg

import (
	"context"
	"io"

	"github.com/ssargent/structmsg/pkg/bodystream"
)

// SegmentInfo describes one segment of a parsed message
type SegmentInfo struct {
	Number        uint16
	Offset        int64 // Offset of the segment header within the message
	ContentLength uint64
}

// MessageInfo is the layout of a structured message
type MessageInfo struct {
	Header         StreamHeader
	Segments       []SegmentInfo
	ContentLength  int64
	StreamChecksum []byte // CRC64 of the content, nil without FlagCrc64
}

// Inspect reads a whole structured message from s, verifying every checksum,
// and reports its layout. The content itself is discarded.
func Inspect(ctx context.Context, s bodystream.BodyStream) (*MessageInfo, error) {
	info := &MessageInfo{}
	dec := NewDecodingStream(s, DecodingOptions{})
	dec.onSegment = func(sh SegmentHeader, offset int64) {
		info.Segments = append(info.Segments, SegmentInfo{
			Number:        sh.Number,
			Offset:        offset,
			ContentLength: sh.ContentLength,
		})
	}

	buf := make([]byte, 64*1024)
	for {
		n, err := dec.Read(ctx, buf)
		info.ContentLength += int64(n)
		if err == io.EOF {
			break
		}
		if err != nil {
			info.Header, _ = dec.Header()
			return info, err
		}
	}

	info.Header, _ = dec.Header()
	if info.Header.Flags.Has(FlagCrc64) {
		info.StreamChecksum = dec.streamHash.Final()
	}
	return info, nil
}
