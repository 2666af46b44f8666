package repair

import (
	"encoding/hex"
	"strings"

	"github.com/sirupsen/logrus"

	"example.com/readinmarsat/internal/common"
)

// headerPreview is how many bytes after a marker are logged with a repair.
const headerPreview = 20

// Corrector detects one signature of lost header bytes. Plan never mutates
// buf; the returned offsets refer to it.
type Corrector interface {
	Name() string
	Plan(buf []byte) []Insertion
}

func preview(buf []byte, marker int) []byte {
	end := marker + headerPreview
	if end > len(buf) {
		end = len(buf)
	}
	return buf[marker:end]
}

func previewHex(buf []byte, marker int) string {
	return strings.ToUpper(hex.EncodeToString(preview(buf, marker)))
}

func schedule(edits []Insertion, name string, buf []byte, marker, offset int, filler []byte, reason string) []Insertion {
	if offset < marker || offset >= len(buf) {
		return edits
	}
	common.Log().WithFields(logrus.Fields{
		"corrector": name,
		"marker":    marker,
		"offset":    offset,
		"fill":      strings.ToUpper(hex.EncodeToString(filler)),
		"header":    previewHex(buf, marker),
	}).Info(reason)
	return append(edits, Insertion{Corrector: name, Marker: marker, Offset: offset, Fill: filler, Reason: reason})
}
