package inmarsat

import (
	"encoding/binary"
	"fmt"
	"time"
)

// Message is a header plus its body.
type Message struct {
	Header Header
	Body   *Body
}

// NewMessage builds a message from b, which must start at a header. Bytes
// after the declared body are ignored.
func NewMessage(b []byte) (*Message, error) {
	hdr, err := ParseHeader(b)
	if err != nil {
		return nil, err
	}
	m := &Message{Header: hdr}
	if !hdr.layout.Has(FieldDataLength) {
		return m, nil
	}
	start := hdr.Length()
	end := start + hdr.DataLength()
	if end > len(b) {
		return nil, fmt.Errorf("%w: body needs %d bytes, have %d", ErrTruncated, hdr.DataLength(), len(b)-start)
	}
	raw := make([]byte, end-start)
	copy(raw, b[start:end])
	pres, _ := hdr.Presentation()
	body := &Body{Presentation: pres, raw: raw}
	if pres == PresentationData && (hdr.Type == TypeDNID || hdr.Type == TypeDNIDMsg) {
		pos, err := DecodePositionReport(raw)
		if err != nil {
			return nil, err
		}
		body.Position = &pos
	}
	m.Body = body
	return m, nil
}

// Len is the number of bytes the message occupies in its source buffer.
func (m *Message) Len() int {
	n := m.Header.Length()
	if m.Body != nil {
		n += len(m.Body.raw)
	}
	return n
}

// Bytes returns the header and body bytes.
func (m *Message) Bytes() []byte {
	out := m.Header.Bytes()
	if m.Body != nil {
		out = append(out, m.Body.raw...)
	}
	return out
}

// Validate applies the semantic checks of the message format.
func (m *Message) Validate() error {
	if m == nil {
		return fmt.Errorf("%w: nil message", ErrInvalidMessage)
	}
	if pres, ok := m.Header.Presentation(); ok && pres != PresentationIA5 && pres != PresentationData {
		return fmt.Errorf("%w: presentation %d", ErrInvalidMessage, uint8(pres))
	}
	if m.Body != nil && m.Body.Position != nil {
		if err := m.Body.Position.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// PositionTime returns the time of the position fix, when the message
// carries one.
func (m *Message) PositionTime() (time.Time, bool) {
	if m.Body == nil || m.Body.Position == nil {
		return time.Time{}, false
	}
	return m.Body.Position.Time(m.Header.StoredTime()), true
}

// HeaderFields holds the values used to encode a header.
type HeaderFields struct {
	Type             HeaderType
	RefNo            uint32
	Presentation     Presentation
	FailureReason    uint8
	DeliveryAttempts uint8
	SatIDAndLesID    uint8
	DataLength       uint16
	StoredTime       time.Time
	DNID             uint16
	MesMobNo         uint32
	MemberNo         uint8
}

// EncodeHeader serialises f into a header of the length its type declares.
func EncodeHeader(f HeaderFields) ([]byte, error) {
	layout, ok := f.Type.Struct()
	if !ok {
		return nil, fmt.Errorf("%w: type %d", ErrMalformedHeaderType, uint8(f.Type))
	}
	b := make([]byte, layout.length)
	copy(b, headerPattern)
	b[PosType] = byte(f.Type)
	b[PosHeaderLength] = byte(layout.length)
	for _, fld := range layout.fields {
		pos := layout.pos[fld]
		switch fld {
		case FieldRefNo:
			binary.LittleEndian.PutUint32(b[pos:], f.RefNo)
		case FieldPresentation:
			b[pos] = byte(f.Presentation)
		case FieldFailureReason:
			b[pos] = f.FailureReason
		case FieldDeliveryAttempts:
			b[pos] = f.DeliveryAttempts
		case FieldSatIDAndLesID:
			b[pos] = f.SatIDAndLesID
		case FieldDataLength:
			binary.LittleEndian.PutUint16(b[pos:], f.DataLength)
		case FieldStoredTime:
			binary.LittleEndian.PutUint32(b[pos:], uint32(f.StoredTime.Unix()))
		case FieldDNID:
			binary.LittleEndian.PutUint16(b[pos:], f.DNID)
		case FieldMesMobNo:
			binary.LittleEndian.PutUint32(b[pos:], f.MesMobNo)
		case FieldMemberNo:
			b[pos] = f.MemberNo
		case FieldEOH:
			b[pos] = EOH
		}
	}
	return b, nil
}

// EncodeMessage serialises a header followed by body. DataLength is taken
// from the body when the header type carries one.
func EncodeMessage(f HeaderFields, body []byte) ([]byte, error) {
	layout, ok := f.Type.Struct()
	if !ok {
		return nil, fmt.Errorf("%w: type %d", ErrMalformedHeaderType, uint8(f.Type))
	}
	if layout.Has(FieldDataLength) {
		f.DataLength = uint16(len(body))
	} else if len(body) > 0 {
		return nil, fmt.Errorf("header type %s carries no body", f.Type)
	}
	hdr, err := EncodeHeader(f)
	if err != nil {
		return nil, err
	}
	return append(hdr, body...), nil
}
