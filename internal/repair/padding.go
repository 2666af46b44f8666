package repair

import (
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"example.com/readinmarsat/internal/common"
	"example.com/readinmarsat/internal/inmarsat"
)

// PaddingStrategy selects how bytes lost before the end of a header are
// detected. Both strategies reinsert zeros at the stored time offset.
type PaddingStrategy string

const (
	// PaddingTerminator looks for EOH one or two bytes before the position
	// the header type declares for it.
	PaddingTerminator PaddingStrategy = "terminator"
	// PaddingStoredTime treats a stored time in the future as a lost byte.
	PaddingStoredTime PaddingStrategy = "stored-time"
)

// ParsePaddingStrategy accepts the strategy names used in flags and config.
// An empty name selects PaddingTerminator.
func ParsePaddingStrategy(s string) (PaddingStrategy, error) {
	switch PaddingStrategy(strings.ToLower(strings.TrimSpace(s))) {
	case "", PaddingTerminator:
		return PaddingTerminator, nil
	case PaddingStoredTime:
		return PaddingStoredTime, nil
	}
	return "", fmt.Errorf("unknown padding strategy %q (want %s or %s)", s, PaddingTerminator, PaddingStoredTime)
}

// TerminatorCorrector pads headers whose EOH arrives one or two bytes early.
type TerminatorCorrector struct {
	codec Codec
}

func NewTerminatorCorrector(codec Codec) *TerminatorCorrector {
	return &TerminatorCorrector{codec: codec}
}

func (c *TerminatorCorrector) Name() string { return "padding-terminator" }

func (c *TerminatorCorrector) Plan(buf []byte) []Insertion {
	var edits []Insertion
	for _, marker := range Markers(buf) {
		hdr := buf[marker:]
		d, err := c.codec.Classify(hdr)
		if err != nil {
			common.Log().WithFields(logrus.Fields{"corrector": c.Name(), "marker": marker}).Debugf("skip header: %v", err)
			continue
		}
		hl := d.HeaderLength
		if d.StoredTimeOffset < 0 || hl < 3 || hl-1 >= len(hdr) {
			continue
		}
		if hdr[hl-1] == inmarsat.EOH {
			continue
		}
		var missing int
		switch {
		case hdr[hl-2] == inmarsat.EOH:
			missing = 1
		case hdr[hl-3] == inmarsat.EOH:
			missing = 2
		default:
			continue
		}
		edits = schedule(edits, c.Name(), buf, marker, marker+d.StoredTimeOffset, fill(ZeroFill, missing),
			fmt.Sprintf("header is %d short, adding 00 to stored time", missing))
	}
	return edits
}

// StoredTimeCorrector pads headers whose stored time decodes to a moment
// after now.
type StoredTimeCorrector struct {
	codec Codec
	now   func() time.Time
}

func NewStoredTimeCorrector(codec Codec, now func() time.Time) *StoredTimeCorrector {
	if now == nil {
		now = time.Now
	}
	return &StoredTimeCorrector{codec: codec, now: now}
}

func (c *StoredTimeCorrector) Name() string { return "padding-stored-time" }

func (c *StoredTimeCorrector) Plan(buf []byte) []Insertion {
	var edits []Insertion
	now := c.now()
	for _, marker := range Markers(buf) {
		hdr := buf[marker:]
		d, err := c.codec.Classify(hdr)
		if err != nil {
			common.Log().WithFields(logrus.Fields{"corrector": c.Name(), "marker": marker}).Debugf("skip header: %v", err)
			continue
		}
		if d.StoredTimeOffset < 0 {
			continue
		}
		stored, err := c.codec.DecodeStoredTime(hdr)
		if err != nil || !stored.After(now) {
			continue
		}
		edits = schedule(edits, c.Name(), buf, marker, marker+d.StoredTimeOffset, fill(ZeroFill, 1),
			fmt.Sprintf("stored time %s is in the future, adding 00 to stored time", stored.Format(time.RFC3339)))
	}
	return edits
}
