package report

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"example.com/readinmarsat/internal/extract"
	"example.com/readinmarsat/internal/inmarsat"
	"example.com/readinmarsat/internal/repair"
)

func sampleResult(t *testing.T) *extract.Result {
	t.Helper()
	pos := inmarsat.PositionReport{
		Format:  1,
		LatDeg:  57,
		LatMin:  42,
		LonDeg:  11,
		LonMin:  58,
		MemCode: 11,
		Day:     14,
		Hour:    9,
		Minute:  12,
		Speed:   55,
		Course:  271,
	}
	body := make([]byte, 20)
	copy(body, pos.Encode())
	msg, err := inmarsat.EncodeMessage(inmarsat.HeaderFields{
		Type:          inmarsat.TypeDNID,
		RefNo:         0x44332211,
		Presentation:  inmarsat.PresentationData,
		SatIDAndLesID: 0x5A,
		StoredTime:    time.Date(2023, time.March, 14, 9, 26, 53, 0, time.UTC),
		DNID:          10745,
		MemberNo:      inmarsat.MemberNoAbsent,
	}, body)
	if err != nil {
		t.Fatalf("EncodeMessage: %v", err)
	}
	corrupted := append(append([]byte(nil), msg[:6]...), msg[7:]...)
	corrupted = append(corrupted, msg[:30]...)
	res, err := extract.New().Decode(corrupted)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	return res
}

func TestBuild(t *testing.T) {
	rep := Build("sample.bin", string(repair.PaddingTerminator), sampleResult(t))
	if rep.Summary.Messages != 1 || rep.Summary.Rejected != 1 || rep.Summary.Inserted != 1 || !rep.Summary.Repaired {
		t.Fatalf("summary = %+v", rep.Summary)
	}
	if len(rep.Insertions) != 1 || rep.Insertions[0].Corrector != "refno" || rep.Insertions[0].Fill != "00" || rep.Insertions[0].Offset != 6 {
		t.Fatalf("insertions = %+v", rep.Insertions)
	}
	if rep.Messages[0].Type != "DNID" || len(rep.Messages[0].Header) == 0 || len(rep.Messages[0].Body) == 0 {
		t.Fatalf("message row = %+v", rep.Messages[0])
	}
	if len(rep.InputSHA256) != 64 {
		t.Fatalf("hash = %q", rep.InputSHA256)
	}
}

func TestSaveAndLoadJSON(t *testing.T) {
	rep := Build("sample.bin", "terminator", sampleResult(t))
	path := filepath.Join(t.TempDir(), "report.json")
	if err := SaveJSON(rep, path); err != nil {
		t.Fatalf("SaveJSON: %v", err)
	}
	got, err := LoadJSON(path)
	if err != nil {
		t.Fatalf("LoadJSON: %v", err)
	}
	if got.InputSHA256 != rep.InputSHA256 || got.Summary != rep.Summary || len(got.Messages) != 1 {
		t.Fatalf("loaded report differs: %+v", got)
	}
}

func TestSavePDF(t *testing.T) {
	rep := Build("sample.bin", "terminator", sampleResult(t))
	path := filepath.Join(t.TempDir(), "report.pdf")
	if err := SavePDF(rep, path, PDFOptions{}); err != nil {
		t.Fatalf("SavePDF: %v", err)
	}
	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read pdf: %v", err)
	}
	if !bytes.HasPrefix(b, []byte("%PDF")) {
		t.Fatalf("output is not a PDF")
	}

	var buf bytes.Buffer
	if err := WritePDF(rep, &buf, PDFOptions{QRSize: -1}); err != nil {
		t.Fatalf("WritePDF: %v", err)
	}
	if !bytes.HasPrefix(buf.Bytes(), []byte("%PDF")) {
		t.Fatalf("writer output is not a PDF")
	}
}

func TestHashToQR(t *testing.T) {
	png, err := HashToQR("AB:cd ef-01", 64)
	if err != nil {
		t.Fatalf("HashToQR: %v", err)
	}
	if !bytes.HasPrefix(png, []byte("\x89PNG")) {
		t.Fatalf("not a PNG")
	}
	if _, err := HashToQR("zz", 64); err == nil {
		t.Fatalf("empty hash accepted")
	}
	if got := sanitizeHash(" AB:cd "); got != "abcd" {
		t.Fatalf("sanitizeHash = %q", got)
	}
}
