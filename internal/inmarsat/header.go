package inmarsat

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"strings"
	"time"
)

// Field identifies a header sub-field following the message reference
// number.
type Field int

const (
	FieldRefNo Field = iota
	FieldPresentation
	FieldFailureReason
	FieldDeliveryAttempts
	FieldSatIDAndLesID
	FieldDataLength
	FieldStoredTime
	FieldDNID
	FieldMesMobNo
	FieldMemberNo
	FieldEOH
)

var fieldSizes = map[Field]int{
	FieldRefNo:            4,
	FieldPresentation:     1,
	FieldFailureReason:    1,
	FieldDeliveryAttempts: 1,
	FieldSatIDAndLesID:    1,
	FieldDataLength:       2,
	FieldStoredTime:       4,
	FieldDNID:             2,
	FieldMesMobNo:         4,
	FieldMemberNo:         1,
	FieldEOH:              1,
}

var fieldNames = map[Field]string{
	FieldRefNo:            "msgRefNo",
	FieldPresentation:     "presentation",
	FieldFailureReason:    "failureReason",
	FieldDeliveryAttempts: "deliveryAttempts",
	FieldSatIDAndLesID:    "satIdAndLesId",
	FieldDataLength:       "dataLength",
	FieldStoredTime:       "storedTime",
	FieldDNID:             "dnid",
	FieldMesMobNo:         "mesMobNo",
	FieldMemberNo:         "memberNo",
	FieldEOH:              "eoh",
}

func (f Field) String() string {
	if name, ok := fieldNames[f]; ok {
		return name
	}
	return fmt.Sprintf("field(%d)", int(f))
}

// Size returns the width of the field in bytes.
func (f Field) Size() int {
	return fieldSizes[f]
}

// HeaderStruct is the byte layout of one header type.
type HeaderStruct struct {
	fields []Field
	pos    map[Field]int
	length int
}

func newHeaderStruct(fields ...Field) HeaderStruct {
	s := HeaderStruct{fields: fields, pos: make(map[Field]int, len(fields))}
	offset := PosRefNoStart
	for _, f := range fields {
		s.pos[f] = offset
		offset += f.Size()
	}
	s.length = offset
	return s
}

// Length is the total header length including SOH and EOH.
func (s HeaderStruct) Length() int {
	return s.length
}

// Has reports whether the layout carries field f.
func (s HeaderStruct) Has(f Field) bool {
	_, ok := s.pos[f]
	return ok
}

// Position returns the offset of field f from the start of the header.
func (s HeaderStruct) Position(f Field) (int, bool) {
	p, ok := s.pos[f]
	return p, ok
}

// IsPresentation reports whether the header carries a data presentation
// byte.
func (s HeaderStruct) IsPresentation() bool {
	return s.Has(FieldPresentation)
}

// PositionStoredTime returns the stored time offset, or -1.
func (s HeaderStruct) PositionStoredTime() int {
	if p, ok := s.pos[FieldStoredTime]; ok {
		return p
	}
	return -1
}

// Fields returns the ordered field list after the fixed prefix.
func (s HeaderStruct) Fields() []Field {
	out := make([]Field, len(s.fields))
	copy(out, s.fields)
	return out
}

// HeaderType is the value of the type byte at PosType.
type HeaderType uint8

const (
	TypeDNID    HeaderType = 1
	TypeDNIDMsg HeaderType = 2
	TypePDN     HeaderType = 3
	TypeNDN     HeaderType = 4
	TypeMSG     HeaderType = 5
)

var headerStructs = map[HeaderType]HeaderStruct{
	TypeDNID: newHeaderStruct(FieldRefNo, FieldPresentation, FieldSatIDAndLesID,
		FieldDataLength, FieldStoredTime, FieldDNID, FieldMemberNo, FieldEOH),
	TypeDNIDMsg: newHeaderStruct(FieldRefNo, FieldPresentation, FieldFailureReason,
		FieldDeliveryAttempts, FieldSatIDAndLesID, FieldDataLength, FieldStoredTime,
		FieldMesMobNo, FieldMemberNo, FieldEOH),
	TypePDN: newHeaderStruct(FieldRefNo, FieldSatIDAndLesID, FieldStoredTime,
		FieldMesMobNo, FieldMemberNo, FieldEOH),
	TypeNDN: newHeaderStruct(FieldRefNo, FieldFailureReason, FieldDeliveryAttempts,
		FieldSatIDAndLesID, FieldStoredTime, FieldMesMobNo, FieldMemberNo, FieldEOH),
	TypeMSG: newHeaderStruct(FieldRefNo, FieldPresentation, FieldSatIDAndLesID,
		FieldDataLength, FieldStoredTime, FieldMesMobNo, FieldMemberNo, FieldEOH),
}

func (t HeaderType) String() string {
	switch t {
	case TypeDNID:
		return "DNID"
	case TypeDNIDMsg:
		return "DNID_MSG"
	case TypePDN:
		return "PDN"
	case TypeNDN:
		return "NDN"
	case TypeMSG:
		return "MSG"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", uint8(t))
	}
}

// Struct returns the layout for t.
func (t HeaderType) Struct() (HeaderStruct, bool) {
	s, ok := headerStructs[t]
	return s, ok
}

// HeaderLength returns the total header length for t, or 0 when unknown.
func (t HeaderType) HeaderLength() int {
	return headerStructs[t].length
}

// Presentation is the data presentation indicator.
type Presentation uint8

const (
	PresentationIA5  Presentation = 1
	PresentationData Presentation = 2
)

func (p Presentation) String() string {
	switch p {
	case PresentationIA5:
		return "IA5"
	case PresentationData:
		return "DATA"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", uint8(p))
	}
}

// GetType classifies the header starting at b[0].
func GetType(b []byte) (HeaderType, error) {
	if !IsStartOfMessage(b, 0) {
		return 0, ErrNoStartOfMessage
	}
	if len(b) <= PosType {
		return 0, fmt.Errorf("%w: header too short", ErrMalformedHeaderType)
	}
	t := HeaderType(b[PosType])
	if _, ok := headerStructs[t]; !ok {
		return 0, fmt.Errorf("%w: type byte 0x%02X", ErrMalformedHeaderType, b[PosType])
	}
	return t, nil
}

// DataPresentation decodes the presentation byte of the header at b[0].
// ok is false when the header type has no presentation, the byte is out of
// range or holds an unknown value.
func DataPresentation(b []byte) (Presentation, bool) {
	t, err := GetType(b)
	if err != nil {
		return 0, false
	}
	pos, ok := headerStructs[t].Position(FieldPresentation)
	if !ok || pos >= len(b) {
		return 0, false
	}
	p := Presentation(b[pos])
	switch p {
	case PresentationIA5, PresentationData:
		return p, true
	}
	return 0, false
}

// StoredTime decodes the stored time field of the header at b[0].
func StoredTime(b []byte) (time.Time, error) {
	t, err := GetType(b)
	if err != nil {
		return time.Time{}, err
	}
	pos := headerStructs[t].PositionStoredTime()
	if pos < 0 {
		return time.Time{}, fmt.Errorf("header type %s has no stored time", t)
	}
	if pos+4 > len(b) {
		return time.Time{}, ErrTruncated
	}
	return decodeTime(b[pos : pos+4]), nil
}

func decodeTime(b []byte) time.Time {
	return time.Unix(int64(binary.LittleEndian.Uint32(b)), 0).UTC()
}

// Header is a parsed, structurally checked message header.
type Header struct {
	Type   HeaderType
	layout HeaderStruct
	raw    []byte
}

// ParseHeader parses the header starting at b[0]. Trailing bytes after the
// header are ignored.
func ParseHeader(b []byte) (Header, error) {
	t, err := GetType(b)
	if err != nil {
		return Header{}, err
	}
	layout := headerStructs[t]
	if len(b) <= PosHeaderLength {
		return Header{}, fmt.Errorf("%w: %d bytes", ErrTruncated, len(b))
	}
	if declared := int(b[PosHeaderLength]); declared != layout.length {
		return Header{}, fmt.Errorf("%w: type %s declares %d, want %d", ErrHeaderLength, t, declared, layout.length)
	}
	if len(b) < layout.length {
		return Header{}, fmt.Errorf("%w: header needs %d bytes, have %d", ErrTruncated, layout.length, len(b))
	}
	if b[layout.length-1] != EOH {
		return Header{}, fmt.Errorf("%w: offset %d holds 0x%02X", ErrMissingEOH, layout.length-1, b[layout.length-1])
	}
	raw := make([]byte, layout.length)
	copy(raw, b)
	return Header{Type: t, layout: layout, raw: raw}, nil
}

// Length returns the header length in bytes.
func (h Header) Length() int {
	return h.layout.length
}

// Bytes returns a copy of the raw header.
func (h Header) Bytes() []byte {
	out := make([]byte, len(h.raw))
	copy(out, h.raw)
	return out
}

// Struct returns the header layout.
func (h Header) Struct() HeaderStruct {
	return h.layout
}

func (h Header) field(f Field) ([]byte, bool) {
	pos, ok := h.layout.Position(f)
	if !ok {
		return nil, false
	}
	return h.raw[pos : pos+f.Size()], true
}

func (h Header) RefNo() uint32 {
	b, _ := h.field(FieldRefNo)
	return binary.LittleEndian.Uint32(b)
}

func (h Header) Presentation() (Presentation, bool) {
	b, ok := h.field(FieldPresentation)
	if !ok {
		return 0, false
	}
	return Presentation(b[0]), true
}

func (h Header) FailureReason() (uint8, bool) {
	b, ok := h.field(FieldFailureReason)
	if !ok {
		return 0, false
	}
	return b[0], true
}

func (h Header) DeliveryAttempts() (uint8, bool) {
	b, ok := h.field(FieldDeliveryAttempts)
	if !ok {
		return 0, false
	}
	return b[0], true
}

// SatID is the ocean region, the top two bits of satIdAndLesId.
func (h Header) SatID() uint8 {
	b, _ := h.field(FieldSatIDAndLesID)
	return b[0] >> 6
}

// LesID is the land earth station id, the low six bits of satIdAndLesId.
func (h Header) LesID() uint8 {
	b, _ := h.field(FieldSatIDAndLesID)
	return b[0] & 0x3F
}

// DataLength is the declared body length; zero for types without a body.
func (h Header) DataLength() int {
	b, ok := h.field(FieldDataLength)
	if !ok {
		return 0
	}
	return int(binary.LittleEndian.Uint16(b))
}

func (h Header) StoredTime() time.Time {
	b, _ := h.field(FieldStoredTime)
	return decodeTime(b)
}

func (h Header) DNID() (uint16, bool) {
	b, ok := h.field(FieldDNID)
	if !ok {
		return 0, false
	}
	return binary.LittleEndian.Uint16(b), true
}

func (h Header) MesMobNo() (uint32, bool) {
	b, ok := h.field(FieldMesMobNo)
	if !ok {
		return 0, false
	}
	return binary.LittleEndian.Uint32(b), true
}

// MemberNo returns the member number; ok is false when the header type has
// none or the terminal did not send one.
func (h Header) MemberNo() (uint8, bool) {
	b, ok := h.field(FieldMemberNo)
	if !ok || b[0] == MemberNoAbsent {
		return 0, false
	}
	return b[0], true
}

// String renders the header as name=value pairs separated by ';'.
func (h Header) String() string {
	parts := []string{
		"headerType=" + h.Type.String(),
		fmt.Sprintf("headerLength=%d", h.Length()),
	}
	for _, f := range h.layout.fields {
		var val string
		switch f {
		case FieldRefNo:
			val = fmt.Sprintf("%d", h.RefNo())
		case FieldPresentation:
			p, _ := h.Presentation()
			val = p.String()
		case FieldFailureReason:
			v, _ := h.FailureReason()
			val = fmt.Sprintf("%d", v)
		case FieldDeliveryAttempts:
			v, _ := h.DeliveryAttempts()
			val = fmt.Sprintf("%d", v)
		case FieldSatIDAndLesID:
			val = fmt.Sprintf("sat=%d les=%d", h.SatID(), h.LesID())
		case FieldDataLength:
			val = fmt.Sprintf("%d", h.DataLength())
		case FieldStoredTime:
			val = h.StoredTime().Format(time.RFC3339)
		case FieldDNID:
			v, _ := h.DNID()
			val = fmt.Sprintf("%d", v)
		case FieldMesMobNo:
			v, _ := h.MesMobNo()
			val = fmt.Sprintf("%d", v)
		case FieldMemberNo:
			if v, ok := h.MemberNo(); ok {
				val = fmt.Sprintf("%d", v)
			} else {
				val = "absent"
			}
		case FieldEOH:
			continue
		}
		parts = append(parts, f.String()+"="+val)
	}
	parts = append(parts, "raw="+strings.ToUpper(hex.EncodeToString(h.raw)))
	return strings.Join(parts, ";")
}
