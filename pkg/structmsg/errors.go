package structmsg

import (
	"encoding/hex"
	"errors"
	"fmt"
)

// Errors
var (
	ErrChecksumMismatch     = errors.New("structured message checksum mismatch")
	ErrMalformedMessage     = errors.New("malformed structured message")
	ErrUnsupportedVersion   = errors.New("unsupported structured message version")
	ErrUnsupportedFlags     = errors.New("unsupported structured message flags")
	ErrInvalidSegmentLength = errors.New("max segment length must be positive")
	ErrTooManySegments      = errors.New("structured message exceeds the maximum segment count")
)

// Scope names the granularity at which a checksum was verified
type Scope string

const (
	ScopeSegment Scope = "segment"
	ScopeStream  Scope = "stream"
)

// IntegrityError reports a CRC64 footer that does not match the content
type IntegrityError struct {
	Scope      Scope
	Segment    uint16 // Segment number for ScopeSegment
	Calculated []byte
	Reported   []byte
}

func (e *IntegrityError) Error() string {
	where := "stream"
	if e.Scope == ScopeSegment {
		where = fmt.Sprintf("segment %d", e.Segment)
	}
	return fmt.Sprintf("%s compared checksums did not match, invalid data may have been written to the destination: calculated checksum %s, reported checksum %s",
		where, hex.EncodeToString(e.Calculated), hex.EncodeToString(e.Reported))
}

// Is makes errors.Is(err, ErrChecksumMismatch) hold for integrity errors
func (e *IntegrityError) Is(target error) bool {
	return target == ErrChecksumMismatch
}

func malformed(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrMalformedMessage, fmt.Sprintf(format, args...))
}
