package inmarsat

import "errors"

// Wire constants for LES download files.
const (
	SOH      byte = 0x01
	LeadText      = "T&T"
	EOH      byte = 0x02

	// UnknownError is the zero filler used when a lost header byte is
	// reinserted in the reference number or stored time slots.
	UnknownError byte = 0x00
	// MemberNoAbsent marks a header without a member number.
	MemberNoAbsent byte = 0xFF
)

// Fixed positions shared by every header type.
const (
	PosSOH          = 0
	PosLeadText     = 1
	PosType         = 4
	PosHeaderLength = 5
	PosRefNoStart   = 6
	PosRefNoEnd     = 9
)

// PatternLength is the length of the start-of-message pattern.
const PatternLength = 1 + len(LeadText)

var headerPattern = []byte{SOH, LeadText[0], LeadText[1], LeadText[2]}

var (
	ErrMalformedHeaderType = errors.New("inmarsat: malformed header type")
	ErrNoStartOfMessage    = errors.New("inmarsat: start of message pattern not found")
	ErrHeaderLength        = errors.New("inmarsat: declared header length does not match header type")
	ErrMissingEOH          = errors.New("inmarsat: end of header not found at declared position")
	ErrTruncated           = errors.New("inmarsat: message truncated")
	ErrInvalidMessage      = errors.New("inmarsat: message failed validation")
)

// HeaderPattern returns a copy of the start-of-message pattern.
func HeaderPattern() []byte {
	out := make([]byte, len(headerPattern))
	copy(out, headerPattern)
	return out
}

// IsStartOfMessage reports whether the start-of-message pattern begins at
// b[i].
func IsStartOfMessage(b []byte, i int) bool {
	if i < 0 || i+PatternLength > len(b) {
		return false
	}
	for k, want := range headerPattern {
		if b[i+k] != want {
			return false
		}
	}
	return true
}
