package repair

import (
	"bytes"
	"sort"
)

// Filler bytes reinserted where a header byte was lost.
const (
	ZeroFill   byte = 0x00
	MemberFill byte = 0xFF
)

// Insertion places Fill directly before the byte at Offset of the buffer the
// insertion was computed against.
type Insertion struct {
	Corrector string
	Marker    int
	Offset    int
	Fill      []byte
	// Reason is the corruption signature that triggered the insertion.
	Reason string
}

// Materialize returns a new buffer holding buf with every insertion applied.
// Offsets refer to buf; insertions at the same offset keep their order.
// Insertions outside [0, len(buf)) are dropped since no byte follows them.
func Materialize(buf []byte, edits []Insertion) []byte {
	ordered := make([]Insertion, 0, len(edits))
	extra := 0
	for _, e := range edits {
		if len(e.Fill) == 0 || e.Offset < 0 || e.Offset >= len(buf) {
			continue
		}
		ordered = append(ordered, e)
		extra += len(e.Fill)
	}
	out := bytes.NewBuffer(make([]byte, 0, len(buf)+extra))
	if len(ordered) == 0 {
		out.Write(buf)
		return out.Bytes()
	}
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Offset < ordered[j].Offset
	})
	cursor := 0
	for _, e := range ordered {
		out.Write(buf[cursor:e.Offset])
		out.Write(e.Fill)
		cursor = e.Offset
	}
	out.Write(buf[cursor:])
	return out.Bytes()
}

func fill(b byte, n int) []byte {
	return bytes.Repeat([]byte{b}, n)
}
