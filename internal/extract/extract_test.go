package extract

import (
	"bytes"
	"errors"
	"testing"
	"time"

	"example.com/readinmarsat/internal/common"
	"example.com/readinmarsat/internal/inmarsat"
	"example.com/readinmarsat/internal/repair"
)

var storedAt = time.Date(2023, time.March, 14, 9, 26, 53, 0, time.UTC)

func position(latDeg uint8) inmarsat.PositionReport {
	return inmarsat.PositionReport{
		Format:     1,
		LatDeg:     latDeg,
		LatMin:     42,
		LatMinFrac: 11,
		LonDeg:     11,
		LonMin:     58,
		LonMinFrac: 3,
		MemCode:    11,
		Day:        14,
		Hour:       9,
		Minute:     12,
		Speed:      55,
		Course:     271,
	}
}

func dnid(t *testing.T, refNo uint32, pos inmarsat.PositionReport) []byte {
	t.Helper()
	body := make([]byte, 20)
	copy(body, pos.Encode())
	msg, err := inmarsat.EncodeMessage(inmarsat.HeaderFields{
		Type:          inmarsat.TypeDNID,
		RefNo:         refNo,
		Presentation:  inmarsat.PresentationData,
		SatIDAndLesID: 0x5A,
		StoredTime:    storedAt,
		DNID:          10745,
		MemberNo:      inmarsat.MemberNoAbsent,
	}, body)
	if err != nil {
		t.Fatalf("EncodeMessage: %v", err)
	}
	return msg
}

func TestDecodeNoMarkers(t *testing.T) {
	res, err := New().Decode([]byte("hello world, nothing to see"))
	if !errors.Is(err, ErrNoMarkers) {
		t.Fatalf("err = %v, want ErrNoMarkers", err)
	}
	if len(res.Messages) != 0 || res.Markers != 0 {
		t.Fatalf("unexpected result %+v", res)
	}
}

func TestDecodeBackToBack(t *testing.T) {
	first := dnid(t, 0x11111111, position(57))
	second := dnid(t, 0x22222222, position(12))
	buf := append(append([]byte{0x00, 0x00, 0x00}, first...), second...)

	res, err := New().Decode(buf)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if len(res.Messages) != 2 {
		t.Fatalf("messages = %d, want 2", len(res.Messages))
	}
	if res.Messages[0].Header.RefNo() != 0x11111111 || res.Messages[1].Header.RefNo() != 0x22222222 {
		t.Fatalf("messages out of order")
	}
	if res.Offsets[0] != 3 || res.Offsets[1] != 3+len(first) {
		t.Fatalf("offsets = %v", res.Offsets)
	}
	if !bytes.Equal(res.Messages[1].Bytes(), second) {
		t.Fatalf("second message bytes differ")
	}
}

func TestDecodeTruncatedTrailingMessage(t *testing.T) {
	whole := dnid(t, 1, position(57))
	buf := append(append([]byte(nil), whole...), whole[:30]...)
	res, err := New().Decode(buf)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if len(res.Messages) != 1 {
		t.Fatalf("messages = %d, want 1", len(res.Messages))
	}
	if len(res.Rejected) != 1 || res.Rejected[0].Stage != StageConstruct || res.Rejected[0].Offset != len(whole) {
		t.Fatalf("rejected = %v", res.Rejected)
	}
	if !errors.Is(res.Rejected[0].Err, inmarsat.ErrTruncated) {
		t.Fatalf("rejection err = %v", res.Rejected[0].Err)
	}
}

func TestDecodeDiscardsInvalid(t *testing.T) {
	buf := append(dnid(t, 1, position(95)), dnid(t, 2, position(57))...)
	m := common.NewMetrics()
	res, err := New(WithMetrics(m)).Decode(buf)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if len(res.Messages) != 1 || res.Messages[0].Header.RefNo() != 2 {
		t.Fatalf("messages = %d", len(res.Messages))
	}
	if len(res.Rejected) != 1 || res.Rejected[0].Stage != StageValidate {
		t.Fatalf("rejected = %v", res.Rejected)
	}
	snap := m.Snapshot()
	if snap.Markers != 2 || snap.Messages != 1 || snap.ValidateFailures != 1 || snap.Bytes != int64(len(buf)) {
		t.Fatalf("metrics = %+v", snap)
	}
}

func TestDecodeRepairsBeforeFraming(t *testing.T) {
	msg := dnid(t, 0x44332211, position(57))
	corrupted := append(append([]byte(nil), msg[:inmarsat.PosRefNoStart]...), msg[inmarsat.PosRefNoStart+1:]...)

	if got := New().Messages(corrupted); len(got) != 0 {
		t.Fatalf("corrupted input framed without repair: %d messages", len(got))
	}
	res, err := New().Decode(corrupted)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if len(res.Messages) != 1 {
		t.Fatalf("messages = %d, rejected = %v", len(res.Messages), res.Rejected)
	}
	if got := res.Messages[0].Header.RefNo(); got != 0x44332200 {
		t.Fatalf("RefNo = %#x, want 0x44332200", got)
	}
	if len(res.Insertions) != 1 {
		t.Fatalf("insertions = %+v", res.Insertions)
	}
	if entries := res.PatchEntries("test"); len(entries) != 1 || entries[0].Corrector != "refno" {
		t.Fatalf("patch entries = %+v", entries)
	}
}

func TestMarkerInLastBytesIgnored(t *testing.T) {
	buf := append(dnid(t, 1, position(57)), inmarsat.HeaderPattern()...)
	res, err := New().Decode(buf)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if res.Markers != 1 || len(res.Messages) != 1 {
		t.Fatalf("markers = %d messages = %d", res.Markers, len(res.Messages))
	}
}

func TestDecodeWithoutMetrics(t *testing.T) {
	pdn, err := inmarsat.EncodeMessage(inmarsat.HeaderFields{
		Type:          inmarsat.TypePDN,
		RefNo:         7,
		SatIDAndLesID: 0x5A,
		StoredTime:    storedAt,
		MesMobNo:      423456789,
		MemberNo:      inmarsat.MemberNoAbsent,
	}, nil)
	if err != nil {
		t.Fatalf("EncodeMessage: %v", err)
	}
	truncated := dnid(t, 0x44332211, position(57))[:30]
	buf := append(append(append([]byte(nil), pdn...), 0x20), truncated...)

	ex := New()
	if ex.metrics != nil {
		t.Fatalf("default extractor should carry no metrics")
	}
	res, err := ex.Decode(buf)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if len(res.Messages) != 1 || len(res.Rejected) != 1 {
		t.Fatalf("messages = %d rejected = %v", len(res.Messages), res.Rejected)
	}
}

func TestFramingMatchesCoreScanner(t *testing.T) {
	buf := append(dnid(t, 0x44332211, position(57)), dnid(t, 0x55443322, position(12))...)
	res, err := New().Decode(buf)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	markers := repair.Markers(res.Repaired)
	if res.Markers != len(markers) {
		t.Fatalf("framed %d markers, scanner found %v", res.Markers, markers)
	}
	for i, off := range res.Offsets {
		if off != markers[i] {
			t.Fatalf("message %d at %d, scanner marker at %d", i, off, markers[i])
		}
	}
}
