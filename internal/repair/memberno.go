package repair

import "example.com/readinmarsat/internal/inmarsat"

// MemberNoCorrector restores a member number lost in front of EOH. It reads
// the length byte the header declares for itself rather than classifying
// the header type.
type MemberNoCorrector struct{}

func NewMemberNoCorrector() *MemberNoCorrector {
	return &MemberNoCorrector{}
}

func (c *MemberNoCorrector) Name() string { return "memberno" }

func (c *MemberNoCorrector) Plan(buf []byte) []Insertion {
	var edits []Insertion
	for _, marker := range Markers(buf) {
		if marker+inmarsat.PosHeaderLength >= len(buf) {
			continue
		}
		declared := int(buf[marker+inmarsat.PosHeaderLength])
		if declared <= inmarsat.PosRefNoStart {
			continue
		}
		expectedEOH := marker + declared - 1
		if expectedEOH < len(buf) {
			early := buf[expectedEOH-1] == inmarsat.EOH && buf[expectedEOH] != inmarsat.EOH
			if !early {
				continue
			}
		}
		// the filler goes in front of the EOH actually present
		at := expectedEOH - 1
		if at >= len(buf) || buf[at] != inmarsat.EOH {
			continue
		}
		edits = schedule(edits, c.Name(), buf, marker, at, fill(MemberFill, 1),
			"message is missing member no, inserting FF")
	}
	return edits
}
