package structmsg

import (
	"fmt"
	"strings"
)

// HTTP headers that announce a structured message body
const (
	HeaderStructuredBody          = "x-ms-structured-body"
	HeaderStructuredContentLength = "x-ms-structured-content-length"
)

const bodyTypeV1 = "XSM/1.0"

// HeaderValue returns the x-ms-structured-body value describing flags
func HeaderValue(flags Flags) string {
	if flags.Has(FlagCrc64) {
		return bodyTypeV1 + "; properties=crc64"
	}
	return bodyTypeV1
}

// ParseHeaderValue parses an x-ms-structured-body value such as
// "XSM/1.0; properties=crc64"
func ParseHeaderValue(value string) (Flags, error) {
	parts := strings.Split(value, ";")
	if !strings.EqualFold(strings.TrimSpace(parts[0]), bodyTypeV1) {
		return FlagNone, fmt.Errorf("%w: body type %q", ErrUnsupportedVersion, strings.TrimSpace(parts[0]))
	}

	flags := FlagNone
	for _, part := range parts[1:] {
		key, val, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok || !strings.EqualFold(strings.TrimSpace(key), "properties") {
			return FlagNone, fmt.Errorf("%w: %q", ErrUnsupportedFlags, part)
		}
		for _, prop := range strings.Split(val, ",") {
			switch strings.ToLower(strings.TrimSpace(prop)) {
			case "crc64":
				flags |= FlagCrc64
			case "":
			default:
				return FlagNone, fmt.Errorf("%w: property %q", ErrUnsupportedFlags, prop)
			}
		}
	}
	return flags, nil
}
