package structmsg

// EncodingOptions configures an EncodingStream
type EncodingOptions struct {
	MaxSegmentLength int64 // Largest segment content length (0 = DefaultMaxSegmentLength)
	Flags            Flags // Optional fields to emit
}

// DefaultEncodingOptions returns 4 MiB segments with CRC64 footers
func DefaultEncodingOptions() EncodingOptions {
	return EncodingOptions{
		MaxSegmentLength: DefaultMaxSegmentLength,
		Flags:            FlagCrc64,
	}
}

func (o EncodingOptions) withDefaults() EncodingOptions {
	if o.MaxSegmentLength == 0 {
		o.MaxSegmentLength = DefaultMaxSegmentLength
	}
	return o
}

func (o EncodingOptions) validate() error {
	if o.MaxSegmentLength < 1 {
		return ErrInvalidSegmentLength
	}
	if o.Flags&^knownFlags != 0 {
		return ErrUnsupportedFlags
	}
	return nil
}

// DecodingOptions configures a DecodingStream
type DecodingOptions struct {
	ContentLength int64 // Expected decoded size, reported as the stream Length
}
