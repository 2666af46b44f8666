package repair

import "example.com/readinmarsat/internal/inmarsat"

// PatternLength is the length of the start-of-message pattern.
const PatternLength = inmarsat.PatternLength

var pattern = inmarsat.HeaderPattern()

// IsStartOfMessage reports whether the start-of-message pattern begins at
// buf[i].
func IsStartOfMessage(buf []byte, i int) bool {
	if i < 0 || len(buf)-i < PatternLength {
		return false
	}
	for k := 0; k < PatternLength; k++ {
		if buf[i+k] != pattern[k] {
			return false
		}
	}
	return true
}

// Markers returns every offset in buf where the pattern begins.
func Markers(buf []byte) []int {
	var out []int
	for i := 0; i+PatternLength <= len(buf); i++ {
		if IsStartOfMessage(buf, i) {
			out = append(out, i)
		}
	}
	return out
}
