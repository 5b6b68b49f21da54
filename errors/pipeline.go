package errors

import (
	"errors"
	"fmt"
	"strings"
)

// Pipeline error taxonomy. Only connection setup aborts a session; every other
// kind is isolated to the message that produced it.
var (
	// ErrBindFailed means the inbound UDP listener could not be created.
	ErrBindFailed = errors.New("bind failed")
	// ErrHandshakeTimeout means no heartbeat arrived within the handshake window.
	ErrHandshakeTimeout = errors.New("handshake timeout")
	// ErrReceiveTimeout is the expected result of a bounded receive with no traffic.
	ErrReceiveTimeout = errors.New("receive timeout")
	// ErrEncoding marks a CoT encoding failure on already-validated input.
	ErrEncoding = errors.New("cot encoding failed")
	// ErrTransmission marks a failed datagram send.
	ErrTransmission = errors.New("transmission failed")
)

// ValidationKind distinguishes the two validation failure shapes
type ValidationKind int

const (
	// MissingFields means one or more required fields were absent
	MissingFields ValidationKind = iota
	// OutOfRange means a converted value fell outside its bounds
	OutOfRange
)

// String returns the string representation of ValidationKind
func (k ValidationKind) String() string {
	switch k {
	case MissingFields:
		return "missing_fields"
	case OutOfRange:
		return "out_of_range"
	default:
		return "unknown"
	}
}

// ValidationError carries the literal cause of a rejected position report.
type ValidationError struct {
	Kind ValidationKind

	// Missing lists absent wire field names, in required-field order.
	Missing []string

	// Converted values, populated for OutOfRange.
	Lat     float64
	Lon     float64
	Alt     float64
	Heading float64
}

// NewMissingFields returns a MissingFields validation error
func NewMissingFields(fields []string) *ValidationError {
	return &ValidationError{Kind: MissingFields, Missing: fields}
}

// NewOutOfRange returns an OutOfRange validation error carrying the offending values
func NewOutOfRange(lat, lon, alt, heading float64) *ValidationError {
	return &ValidationError{Kind: OutOfRange, Lat: lat, Lon: lon, Alt: alt, Heading: heading}
}

// Error renders the diagnostic text published for the dropped message.
func (e *ValidationError) Error() string {
	switch e.Kind {
	case MissingFields:
		return fmt.Sprintf("Missing required fields: [%s]", strings.Join(e.Missing, " "))
	case OutOfRange:
		return fmt.Sprintf("Invalid data received: Lat=%v, Lon=%v, Alt=%v, Heading=%v",
			e.Lat, e.Lon, e.Alt, e.Heading)
	default:
		return "validation failed"
	}
}

// Is makes every ValidationError match ErrInvalidData.
func (e *ValidationError) Is(target error) bool {
	return target == ErrInvalidData
}

// AsValidation extracts a ValidationError from err
func AsValidation(err error) (*ValidationError, bool) {
	var ve *ValidationError
	if errors.As(err, &ve) {
		return ve, true
	}
	return nil, false
}
