package repair

import (
	"time"

	"example.com/readinmarsat/internal/inmarsat"
)

// Descriptor is the read-only view of a header the correctors need. Offsets
// are relative to the marker.
type Descriptor struct {
	Type               uint8
	HeaderLength       int
	Presentation       bool
	RefNoStart         int
	StoredTimeOffset   int // -1 when the header has no stored time
	HeaderLengthOffset int
}

// Codec is the subset of the message codec the repair passes depend on.
// Every method receives bytes starting at a marker.
type Codec interface {
	Classify(b []byte) (Descriptor, error)
	DecodePresentation(b []byte) (uint8, bool)
	DecodeStoredTime(b []byte) (time.Time, error)
}

type inmarsatCodec struct{}

// InmarsatCodec adapts the inmarsat package to Codec.
func InmarsatCodec() Codec {
	return inmarsatCodec{}
}

func (inmarsatCodec) Classify(b []byte) (Descriptor, error) {
	t, err := inmarsat.GetType(b)
	if err != nil {
		return Descriptor{}, err
	}
	layout, _ := t.Struct()
	return Descriptor{
		Type:               uint8(t),
		HeaderLength:       layout.Length(),
		Presentation:       layout.IsPresentation(),
		RefNoStart:         inmarsat.PosRefNoStart,
		StoredTimeOffset:   layout.PositionStoredTime(),
		HeaderLengthOffset: inmarsat.PosHeaderLength,
	}, nil
}

func (inmarsatCodec) DecodePresentation(b []byte) (uint8, bool) {
	p, ok := inmarsat.DataPresentation(b)
	return uint8(p), ok
}

func (inmarsatCodec) DecodeStoredTime(b []byte) (time.Time, error) {
	return inmarsat.StoredTime(b)
}
