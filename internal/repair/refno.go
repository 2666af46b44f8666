package repair

import (
	"github.com/sirupsen/logrus"

	"example.com/readinmarsat/internal/common"
)

const refNoLength = 4

// RefNoCorrector restores a reference number byte lost in front of the
// presentation field. A lost byte pulls the following field into the
// presentation slot, so the presentation no longer decodes; a zero is put
// back at the start of the reference number. Running it twice covers two
// lost bytes.
type RefNoCorrector struct {
	codec Codec
}

func NewRefNoCorrector(codec Codec) *RefNoCorrector {
	return &RefNoCorrector{codec: codec}
}

func (c *RefNoCorrector) Name() string { return "refno" }

func (c *RefNoCorrector) Plan(buf []byte) []Insertion {
	var edits []Insertion
	for _, marker := range Markers(buf) {
		hdr := buf[marker:]
		d, err := c.codec.Classify(hdr)
		if err != nil {
			common.Log().WithFields(logrus.Fields{"corrector": c.Name(), "marker": marker}).Debugf("skip header: %v", err)
			continue
		}
		if !d.Presentation {
			continue
		}
		// the presentation byte sits right after the reference number
		if d.RefNoStart+refNoLength >= len(hdr) {
			continue
		}
		if _, ok := c.codec.DecodePresentation(hdr); ok {
			continue
		}
		edits = schedule(edits, c.Name(), buf, marker, marker+d.RefNoStart, fill(ZeroFill, 1),
			"presentation is not correct, adding 00 to msg ref no")
	}
	return edits
}
