package server

import (
	"encoding/json"
	"io"
	"net/http"
	"sync"

	"example.com/readinmarsat/internal/report"
)

// Record kinds written to a decode stream.
const (
	RecordMessage  = "message"
	RecordRejected = "rejected"
	RecordSummary  = "summary"
)

// NDJSONWriter streams newline-delimited JSON objects to the underlying writer.
type NDJSONWriter struct {
	mu      sync.Mutex
	writer  io.Writer
	flusher http.Flusher
}

// NewNDJSONWriter wraps w; when w is an http.Flusher every record is flushed
// as soon as it is written.
func NewNDJSONWriter(w io.Writer) *NDJSONWriter {
	var flusher http.Flusher
	if f, ok := w.(http.Flusher); ok {
		flusher = f
	}
	return &NDJSONWriter{writer: w, flusher: flusher}
}

// StreamRecord is one line of a decode stream. Only the field matching Kind
// is set.
type StreamRecord struct {
	Kind     string              `json:"kind"`
	Message  *report.MessageRow  `json:"message,omitempty"`
	Rejected *report.RejectedRow `json:"rejected,omitempty"`
	Summary  *report.Summary     `json:"summary,omitempty"`
}

func (w *NDJSONWriter) WriteMessage(m report.MessageRow) error {
	return w.WriteObject(StreamRecord{Kind: RecordMessage, Message: &m})
}

func (w *NDJSONWriter) WriteRejected(r report.RejectedRow) error {
	return w.WriteObject(StreamRecord{Kind: RecordRejected, Rejected: &r})
}

func (w *NDJSONWriter) WriteSummary(s report.Summary) error {
	return w.WriteObject(StreamRecord{Kind: RecordSummary, Summary: &s})
}

// WriteObject marshals v, writes it followed by a newline and flushes.
func (w *NDJSONWriter) WriteObject(v any) error {
	if w == nil {
		return nil
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	data = append(data, '\n')
	if _, err := w.writer.Write(data); err != nil {
		return err
	}
	if w.flusher != nil {
		w.flusher.Flush()
	}
	return nil
}
