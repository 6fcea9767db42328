package structmsg

// region is the part of the message a stream is currently producing or
// consuming
type region int

const (
	regionStreamHeader region = iota
	regionSegmentHeader
	regionSegmentContent
	regionSegmentFooter
	regionStreamFooter
	regionCompleted
)

func (r region) String() string {
	switch r {
	case regionStreamHeader:
		return "stream header"
	case regionSegmentHeader:
		return "segment header"
	case regionSegmentContent:
		return "segment content"
	case regionSegmentFooter:
		return "segment footer"
	case regionStreamFooter:
		return "stream footer"
	case regionCompleted:
		return "completed"
	default:
		return "unknown"
	}
}

func (r region) isFooter() bool {
	return r == regionSegmentFooter || r == regionStreamFooter
}
