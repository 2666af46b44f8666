package server

import (
	"bufio"
	"bytes"
	"encoding/base64"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"example.com/readinmarsat/internal/common"
	"example.com/readinmarsat/internal/inmarsat"
	"example.com/readinmarsat/internal/report"
)

func dnidMessage(t *testing.T) []byte {
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
	return msg
}

func lostRefNoByte(msg []byte) []byte {
	out := append([]byte(nil), msg[:inmarsat.PosRefNoStart]...)
	return append(out, msg[inmarsat.PosRefNoStart+1:]...)
}

func newTestServer(t *testing.T, opts Options) (*Server, *httptest.Server) {
	t.Helper()
	if opts.StorageDir == "" {
		opts.StorageDir = t.TempDir()
	}
	srv, err := NewServer(opts)
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}
	ts := httptest.NewServer(NewRouter(srv))
	t.Cleanup(func() {
		ts.Close()
		srv.Close()
	})
	return srv, ts
}

func postJSON(t *testing.T, url string, payload any) *http.Response {
	t.Helper()
	b, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal request: %v", err)
	}
	resp, err := http.Post(url, "application/json", bytes.NewReader(b))
	if err != nil {
		t.Fatalf("POST %s: %v", url, err)
	}
	return resp
}

func TestDecodeRawBody(t *testing.T) {
	_, ts := newTestServer(t, Options{})
	resp, err := http.Post(ts.URL+"/decode", "application/octet-stream", bytes.NewReader(dnidMessage(t)))
	if err != nil {
		t.Fatalf("POST /decode: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		t.Fatalf("status = %d body=%s", resp.StatusCode, body)
	}
	var rep report.DecodeReport
	if err := json.NewDecoder(resp.Body).Decode(&rep); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if rep.Summary.Messages != 1 || rep.Summary.Repaired {
		t.Fatalf("summary = %+v", rep.Summary)
	}
	if rep.Messages[0].Type != "DNID" || rep.Messages[0].RefNo != 0x44332211 {
		t.Fatalf("message = %+v", rep.Messages[0])
	}
	if rep.Padding != "terminator" {
		t.Fatalf("padding = %q", rep.Padding)
	}
}

func TestDecodeBase64RepairsAndAudits(t *testing.T) {
	audit := filepath.Join(t.TempDir(), "audit", "repairs.jsonl")
	srv, ts := newTestServer(t, Options{AuditLog: audit})
	payload := map[string]string{
		"base64": base64.StdEncoding.EncodeToString(lostRefNoByte(dnidMessage(t))),
		"source": "les-1",
	}
	resp := postJSON(t, ts.URL+"/decode?padding=stored-time", payload)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	var rep report.DecodeReport
	if err := json.NewDecoder(resp.Body).Decode(&rep); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if rep.Summary.Inserted != 1 || rep.Summary.Messages != 1 || rep.Padding != "stored-time" {
		t.Fatalf("report = %+v", rep.Summary)
	}
	entries, err := common.ReadPatchLog(audit)
	if err != nil {
		t.Fatalf("ReadPatchLog: %v", err)
	}
	if len(entries) != 1 || entries[0].Source != "les-1" || entries[0].Corrector != "refno" {
		t.Fatalf("audit entries = %+v", entries)
	}
	if snap := srv.Metrics().Snapshot(); snap.Messages != 1 || snap.Insertions != 1 {
		t.Fatalf("metrics = %+v", snap)
	}
}

func TestDecodeStream(t *testing.T) {
	_, ts := newTestServer(t, Options{})
	msg := dnidMessage(t)
	input := append(append([]byte(nil), msg...), msg[:30]...)
	resp, err := http.Post(ts.URL+"/decode?stream=true", "text/plain", strings.NewReader(base64.StdEncoding.EncodeToString(input)))
	if err != nil {
		t.Fatalf("POST /decode: %v", err)
	}
	defer resp.Body.Close()
	if ct := resp.Header.Get("Content-Type"); ct != "application/x-ndjson" {
		t.Fatalf("content type = %q", ct)
	}
	var kinds []string
	sc := bufio.NewScanner(resp.Body)
	for sc.Scan() {
		var rec StreamRecord
		if err := json.Unmarshal(sc.Bytes(), &rec); err != nil {
			t.Fatalf("bad record %q: %v", sc.Text(), err)
		}
		kinds = append(kinds, rec.Kind)
		if rec.Kind == RecordRejected && rec.Rejected.Offset != len(msg) {
			t.Fatalf("rejected offset = %d", rec.Rejected.Offset)
		}
	}
	want := []string{RecordMessage, RecordRejected, RecordSummary}
	if strings.Join(kinds, ",") != strings.Join(want, ",") {
		t.Fatalf("kinds = %v, want %v", kinds, want)
	}
}

func TestDecodeNotInmarsat(t *testing.T) {
	_, ts := newTestServer(t, Options{})
	resp, err := http.Post(ts.URL+"/decode", "application/octet-stream", strings.NewReader("plain text"))
	if err != nil {
		t.Fatalf("POST /decode: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	var body notValidResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if body.Text != "plain text" {
		t.Fatalf("text = %q", body.Text)
	}
}

func TestRepairRaw(t *testing.T) {
	_, ts := newTestServer(t, Options{})
	msg := dnidMessage(t)
	resp, err := http.Post(ts.URL+"/repair?format=raw", "application/octet-stream", bytes.NewReader(lostRefNoByte(msg)))
	if err != nil {
		t.Fatalf("POST /repair: %v", err)
	}
	defer resp.Body.Close()
	got, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	want := append([]byte(nil), msg...)
	want[inmarsat.PosRefNoStart] = 0x00
	if !bytes.Equal(got, want) {
		t.Fatalf("repaired = % X, want % X", got, want)
	}
}

func TestRepairJSON(t *testing.T) {
	_, ts := newTestServer(t, Options{})
	resp := postJSON(t, ts.URL+"/repair", map[string]string{
		"base64": base64.StdEncoding.EncodeToString(lostRefNoByte(dnidMessage(t))),
	})
	defer resp.Body.Close()
	var out repairResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if out.Inserted != 1 || len(out.Insertions) != 1 || out.Insertions[0].Offset != inmarsat.PosRefNoStart {
		t.Fatalf("response = %+v", out)
	}
}

func TestUploadReportAndDownload(t *testing.T) {
	_, ts := newTestServer(t, Options{})

	var form bytes.Buffer
	mw := multipart.NewWriter(&form)
	fw, err := mw.CreateFormFile("file", "download.bin")
	if err != nil {
		t.Fatalf("CreateFormFile: %v", err)
	}
	fw.Write(lostRefNoByte(dnidMessage(t)))
	mw.Close()
	resp, err := http.Post(ts.URL+"/upload", mw.FormDataContentType(), &form)
	if err != nil {
		t.Fatalf("POST /upload: %v", err)
	}
	var uploaded struct {
		Files []ArtifactRef `json:"files"`
	}
	err = json.NewDecoder(resp.Body).Decode(&uploaded)
	resp.Body.Close()
	if err != nil || len(uploaded.Files) != 1 {
		t.Fatalf("upload response = %+v, %v", uploaded, err)
	}
	if uploaded.Files[0].SHA256 == "" || uploaded.Files[0].Kind != "upload" {
		t.Fatalf("upload ref = %+v", uploaded.Files[0])
	}

	resp = postJSON(t, ts.URL+"/report", map[string]string{"artifact": uploaded.Files[0].ID})
	var rr reportResponse
	err = json.NewDecoder(resp.Body).Decode(&rr)
	resp.Body.Close()
	if err != nil {
		t.Fatalf("decode report response: %v", err)
	}
	if rr.Summary.Messages != 1 || len(rr.Artifacts) != 2 {
		t.Fatalf("report response = %+v", rr)
	}

	var pdfID string
	for _, a := range rr.Artifacts {
		if a.ContentType == "application/pdf" {
			pdfID = a.ID
		}
	}
	resp, err = http.Get(ts.URL + "/artifacts/" + pdfID)
	if err != nil {
		t.Fatalf("GET artifact: %v", err)
	}
	defer resp.Body.Close()
	pdf, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK || !bytes.HasPrefix(pdf, []byte("%PDF")) {
		t.Fatalf("artifact status=%d prefix=%q", resp.StatusCode, pdf[:min(len(pdf), 8)])
	}

	resp, err = http.Get(ts.URL + "/artifacts/unknown")
	if err != nil {
		t.Fatalf("GET unknown artifact: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("unknown artifact status = %d", resp.StatusCode)
	}
}

func TestMethodNotAllowed(t *testing.T) {
	_, ts := newTestServer(t, Options{})
	for _, path := range []string{"/decode", "/repair", "/report", "/upload"} {
		resp, err := http.Get(ts.URL + path)
		if err != nil {
			t.Fatalf("GET %s: %v", path, err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusMethodNotAllowed {
			t.Fatalf("GET %s status = %d", path, resp.StatusCode)
		}
	}
}
