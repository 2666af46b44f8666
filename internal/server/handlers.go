package server

import (
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"

	"example.com/readinmarsat/internal/common"
	"example.com/readinmarsat/internal/extract"
	"example.com/readinmarsat/internal/ingest"
	"example.com/readinmarsat/internal/report"
)

// inputRequest is the JSON form of a request body. Exactly one of Base64
// and Artifact is expected.
type inputRequest struct {
	Base64   string `json:"base64"`
	Artifact string `json:"artifact"`
	Source   string `json:"source"`
}

type notValidResponse struct {
	Error string `json:"error"`
	Text  string `json:"text"`
}

type repairResponse struct {
	Source      string                `json:"source"`
	InputSHA256 string                `json:"inputSha256"`
	Padding     string                `json:"padding"`
	Inserted    int                   `json:"inserted"`
	Insertions  []report.InsertionRow `json:"insertions"`
	Repaired    string                `json:"repaired"`
	RepairedHex string                `json:"repairedHex"`
}

type reportResponse struct {
	Summary   report.Summary `json:"summary"`
	Artifacts []ArtifactRef  `json:"artifacts"`
}

// readInput loads the bytes a request carries: a JSON document naming a
// base64 payload or an uploaded artifact, a text/plain base64 body, or the
// raw download bytes.
func (s *Server) readInput(w http.ResponseWriter, r *http.Request) ([]byte, string, error) {
	body := http.MaxBytesReader(w, r.Body, s.maxBodyBytes)
	ct, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	switch ct {
	case "application/json":
		var req inputRequest
		if err := json.NewDecoder(body).Decode(&req); err != nil {
			return nil, "", fmt.Errorf("invalid json: %w", err)
		}
		source := strings.TrimSpace(req.Source)
		if id := strings.TrimSpace(req.Artifact); id != "" {
			art, ok := s.getArtifact(id)
			if !ok {
				return nil, "", fmt.Errorf("artifact %s not found", id)
			}
			if source == "" {
				source = art.Name
			}
			var data []byte
			var err error
			switch strings.ToLower(filepath.Ext(art.Name)) {
			case ".b64":
				var b []byte
				if b, err = os.ReadFile(art.Path); err == nil {
					data, err = ingest.FromBase64(string(b))
				}
			case ".pcap", ".pcapng":
				data, err = ingest.ReadPCAPFile(art.Path, ingest.PcapFilter{})
			default:
				data, err = ingest.ReadFile(art.Path)
			}
			return data, source, err
		}
		if source == "" {
			source = "request"
		}
		data, err := ingest.FromBase64(req.Base64)
		return data, source, err
	case "text/plain":
		b, err := io.ReadAll(body)
		if err != nil {
			return nil, "", err
		}
		data, err := ingest.FromBase64(string(b))
		return data, "request", err
	default:
		b, err := io.ReadAll(body)
		if err != nil {
			return nil, "", err
		}
		if len(b) == 0 {
			return nil, "", ingest.ErrEmptyInput
		}
		return b, "request", nil
	}
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request) (*extract.Result, string, string, bool) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return nil, "", "", false
	}
	data, source, err := s.readInput(w, r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return nil, "", "", false
	}
	pipeline, strategy, err := s.pipelineFor(r.URL.Query().Get("padding"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return nil, "", "", false
	}
	if !s.acquire(r) {
		http.Error(w, "request cancelled", http.StatusServiceUnavailable)
		return nil, "", "", false
	}
	defer s.release()
	res, err := extract.New(extract.WithPipeline(pipeline), extract.WithMetrics(s.metrics)).Decode(data)
	s.audit(source, res)
	if errors.Is(err, extract.ErrNoMarkers) {
		common.Log().WithField("source", source).Warnf("not an inmarsat message (%d bytes)", len(data))
		writeJSON(w, http.StatusUnprocessableEntity, notValidResponse{Error: err.Error(), Text: string(data)})
		return nil, "", "", false
	}
	return res, source, string(strategy), true
}

func (s *Server) audit(source string, res *extract.Result) {
	if s.auditLog == nil || res == nil {
		return
	}
	entries := res.PatchEntries(source)
	if len(entries) == 0 {
		return
	}
	if err := s.auditLog.Append(entries...); err != nil {
		common.Log().WithFields(logrus.Fields{"source": source, "audit": s.auditLog.Path()}).Errorf("append audit log: %v", err)
	}
}

func (s *Server) handleDecode(w http.ResponseWriter, r *http.Request) {
	stream := r.URL.Query().Get("stream") == "true"
	res, source, strategy, ok := s.decode(w, r)
	if !ok {
		return
	}
	rep := report.Build(source, strategy, res)
	if !stream {
		writeJSON(w, http.StatusOK, rep)
		return
	}
	w.Header().Set("Content-Type", "application/x-ndjson")
	w.WriteHeader(http.StatusOK)
	nd := NewNDJSONWriter(w)
	for _, m := range rep.Messages {
		if err := nd.WriteMessage(m); err != nil {
			return
		}
	}
	for _, rej := range rep.Rejected {
		if err := nd.WriteRejected(rej); err != nil {
			return
		}
	}
	nd.WriteSummary(rep.Summary)
}

func (s *Server) handleRepair(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	data, source, err := s.readInput(w, r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	pipeline, strategy, err := s.pipelineFor(r.URL.Query().Get("padding"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	rr := pipeline.Run(data)
	s.metrics.AddBytes(int64(len(data)))
	s.metrics.AddInsertions(rr.Inserted())
	if s.auditLog != nil && rr.Inserted() > 0 {
		if err := s.auditLog.Append(rr.PatchEntries(source)...); err != nil {
			common.Log().WithField("source", source).Errorf("append audit log: %v", err)
		}
	}
	if r.URL.Query().Get("format") == "raw" {
		w.Header().Set("Content-Type", "application/octet-stream")
		w.Header().Set("Content-Length", fmt.Sprintf("%d", len(rr.Output)))
		w.WriteHeader(http.StatusOK)
		w.Write(rr.Output)
		return
	}
	writeJSON(w, http.StatusOK, repairResponse{
		Source:      source,
		InputSHA256: common.Sha256Hex(data),
		Padding:     string(strategy),
		Inserted:    rr.Inserted(),
		Insertions:  report.InsertionRows(rr.Insertions()),
		Repaired:    base64.StdEncoding.EncodeToString(rr.Output),
		RepairedHex: strings.ToUpper(hex.EncodeToString(rr.Output)),
	})
}

func (s *Server) handleReport(w http.ResponseWriter, r *http.Request) {
	res, source, strategy, ok := s.decode(w, r)
	if !ok {
		return
	}
	rep := report.Build(source, strategy, res)

	jsonPath, err := s.tempPath("report-*.json")
	if err != nil {
		http.Error(w, fmt.Sprintf("report path: %v", err), http.StatusInternalServerError)
		return
	}
	if err := report.SaveJSON(rep, jsonPath); err != nil {
		http.Error(w, fmt.Sprintf("save report: %v", err), http.StatusInternalServerError)
		return
	}
	pdfPath, err := s.tempPath("report-*.pdf")
	if err != nil {
		http.Error(w, fmt.Sprintf("report path: %v", err), http.StatusInternalServerError)
		return
	}
	if err := report.SavePDF(rep, pdfPath, report.PDFOptions{}); err != nil {
		http.Error(w, fmt.Sprintf("render pdf: %v", err), http.StatusInternalServerError)
		return
	}
	jsonArt, err := s.addArtifact(jsonPath, "repair_report.json", "application/json", "report")
	if err != nil {
		http.Error(w, fmt.Sprintf("register report: %v", err), http.StatusInternalServerError)
		return
	}
	pdfArt, err := s.addArtifact(pdfPath, "repair_report.pdf", "application/pdf", "report")
	if err != nil {
		http.Error(w, fmt.Sprintf("register pdf: %v", err), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, reportResponse{
		Summary:   rep.Summary,
		Artifacts: []ArtifactRef{toRef(jsonArt), toRef(pdfArt)},
	})
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, s.metrics.Snapshot())
}
