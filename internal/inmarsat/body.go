package inmarsat

import (
	"encoding/hex"
	"fmt"
	"strings"
	"time"
)

// PositionReportLength is the number of bytes holding position report bits.
const PositionReportLength = 10

// PositionReport is the bit-packed position carried by DNID data reports.
type PositionReport struct {
	Format        uint8
	LatHemisphere uint8 // 0 north, 1 south
	LatDeg        uint8
	LatMin        uint8
	LatMinFrac    uint8
	LonHemisphere uint8 // 0 east, 1 west
	LonDeg        uint8
	LonMin        uint8
	LonMinFrac    uint8
	MemCode       uint8
	Day           uint8
	Hour          uint8
	Minute        uint8
	Speed         uint8 // 0.2 knot units
	Course        uint16
}

var positionLayout = []struct {
	name string
	bits uint
}{
	{"format", 2},
	{"latHemisphere", 1}, {"latDeg", 7}, {"latMin", 6}, {"latMinFrac", 5},
	{"lonHemisphere", 1}, {"lonDeg", 8}, {"lonMin", 6}, {"lonMinFrac", 5},
	{"memCode", 7},
	{"day", 5}, {"hour", 5}, {"minute", 5},
	{"speed", 8},
	{"course", 9},
}

// DecodePositionReport unpacks a position report, MSB first.
func DecodePositionReport(b []byte) (PositionReport, error) {
	var p PositionReport
	if len(b) < PositionReportLength {
		return p, fmt.Errorf("%w: position report needs %d bytes, have %d", ErrTruncated, PositionReportLength, len(b))
	}
	r := bitReader{buf: b}
	vals := make([]uint32, len(positionLayout))
	for i, f := range positionLayout {
		vals[i] = r.read(f.bits)
	}
	p.Format = uint8(vals[0])
	p.LatHemisphere = uint8(vals[1])
	p.LatDeg = uint8(vals[2])
	p.LatMin = uint8(vals[3])
	p.LatMinFrac = uint8(vals[4])
	p.LonHemisphere = uint8(vals[5])
	p.LonDeg = uint8(vals[6])
	p.LonMin = uint8(vals[7])
	p.LonMinFrac = uint8(vals[8])
	p.MemCode = uint8(vals[9])
	p.Day = uint8(vals[10])
	p.Hour = uint8(vals[11])
	p.Minute = uint8(vals[12])
	p.Speed = uint8(vals[13])
	p.Course = uint16(vals[14])
	return p, nil
}

// Encode packs the report into PositionReportLength bytes.
func (p PositionReport) Encode() []byte {
	vals := []uint32{
		uint32(p.Format),
		uint32(p.LatHemisphere), uint32(p.LatDeg), uint32(p.LatMin), uint32(p.LatMinFrac),
		uint32(p.LonHemisphere), uint32(p.LonDeg), uint32(p.LonMin), uint32(p.LonMinFrac),
		uint32(p.MemCode),
		uint32(p.Day), uint32(p.Hour), uint32(p.Minute),
		uint32(p.Speed),
		uint32(p.Course),
	}
	w := bitWriter{buf: make([]byte, PositionReportLength)}
	for i, f := range positionLayout {
		w.write(vals[i], f.bits)
	}
	return w.buf
}

// Latitude in decimal degrees, negative south.
func (p PositionReport) Latitude() float64 {
	v := float64(p.LatDeg) + (float64(p.LatMin)+float64(p.LatMinFrac)/32)/60
	if p.LatHemisphere == 1 {
		return -v
	}
	return v
}

// Longitude in decimal degrees, negative west.
func (p PositionReport) Longitude() float64 {
	v := float64(p.LonDeg) + (float64(p.LonMin)+float64(p.LonMinFrac)/32)/60
	if p.LonHemisphere == 1 {
		return -v
	}
	return v
}

// SpeedKnots converts the speed field to knots.
func (p PositionReport) SpeedKnots() float64 {
	return float64(p.Speed) * 0.2
}

// Time resolves the day/hour/minute of the report against the month of
// ref, stepping back one month when the day lies after ref.
func (p PositionReport) Time(ref time.Time) time.Time {
	ref = ref.UTC()
	t := time.Date(ref.Year(), ref.Month(), int(p.Day), int(p.Hour), int(p.Minute), 0, 0, time.UTC)
	if t.After(ref.Add(24 * time.Hour)) {
		t = time.Date(ref.Year(), ref.Month()-1, int(p.Day), int(p.Hour), int(p.Minute), 0, 0, time.UTC)
	}
	return t
}

// Validate checks that every field lies in its legal range.
func (p PositionReport) Validate() error {
	switch {
	case p.LatDeg > 90 || (p.LatDeg == 90 && (p.LatMin > 0 || p.LatMinFrac > 0)):
		return fmt.Errorf("%w: latitude %d", ErrInvalidMessage, p.LatDeg)
	case p.LonDeg > 180 || (p.LonDeg == 180 && (p.LonMin > 0 || p.LonMinFrac > 0)):
		return fmt.Errorf("%w: longitude %d", ErrInvalidMessage, p.LonDeg)
	case p.LatMin >= 60:
		return fmt.Errorf("%w: latitude minutes %d", ErrInvalidMessage, p.LatMin)
	case p.LonMin >= 60:
		return fmt.Errorf("%w: longitude minutes %d", ErrInvalidMessage, p.LonMin)
	case p.Day < 1 || p.Day > 31:
		return fmt.Errorf("%w: day %d", ErrInvalidMessage, p.Day)
	case p.Hour >= 24:
		return fmt.Errorf("%w: hour %d", ErrInvalidMessage, p.Hour)
	case p.Minute >= 60:
		return fmt.Errorf("%w: minute %d", ErrInvalidMessage, p.Minute)
	case p.Course >= 360:
		return fmt.Errorf("%w: course %d", ErrInvalidMessage, p.Course)
	}
	return nil
}

// Body is the payload following a header.
type Body struct {
	Presentation Presentation
	Position     *PositionReport
	raw          []byte
}

// Bytes returns a copy of the raw body.
func (b *Body) Bytes() []byte {
	out := make([]byte, len(b.raw))
	copy(out, b.raw)
	return out
}

// String renders the body as name=value pairs separated by ';'.
func (b *Body) String() string {
	if b == nil {
		return ""
	}
	if p := b.Position; p != nil {
		parts := []string{
			fmt.Sprintf("format=%d", p.Format),
			fmt.Sprintf("latitude=%.5f", p.Latitude()),
			fmt.Sprintf("longitude=%.5f", p.Longitude()),
			fmt.Sprintf("memCode=%d", p.MemCode),
			fmt.Sprintf("day=%d", p.Day),
			fmt.Sprintf("hour=%d", p.Hour),
			fmt.Sprintf("minute=%d", p.Minute),
			fmt.Sprintf("speed=%.1f", p.SpeedKnots()),
			fmt.Sprintf("course=%d", p.Course),
		}
		return strings.Join(parts, ";")
	}
	if b.Presentation == PresentationIA5 {
		text := strings.ReplaceAll(string(b.raw), ";", ",")
		return "presentation=IA5;text=" + text
	}
	return "presentation=" + b.Presentation.String() + ";data=" + strings.ToUpper(hex.EncodeToString(b.raw))
}

type bitReader struct {
	buf []byte
	pos uint
}

func (r *bitReader) read(n uint) uint32 {
	var v uint32
	for i := uint(0); i < n; i++ {
		byteIdx := r.pos / 8
		bit := (r.buf[byteIdx] >> (7 - r.pos%8)) & 1
		v = v<<1 | uint32(bit)
		r.pos++
	}
	return v
}

type bitWriter struct {
	buf []byte
	pos uint
}

func (w *bitWriter) write(v uint32, n uint) {
	for i := n; i > 0; i-- {
		bit := byte(v>>(i-1)) & 1
		w.buf[w.pos/8] |= bit << (7 - w.pos%8)
		w.pos++
	}
}
