package report

import (
	"encoding/hex"
	"encoding/json"
	"os"
	"strings"
	"time"

	"example.com/readinmarsat/internal/common"
	"example.com/readinmarsat/internal/extract"
	"example.com/readinmarsat/internal/repair"
)

// InsertionRow is one filler insertion made by the repair pipeline.
type InsertionRow struct {
	Corrector string `json:"corrector"`
	Marker    int    `json:"marker"`
	Offset    int    `json:"offset"`
	Fill      string `json:"fill"`
	Reason    string `json:"reason,omitempty"`
}

// MessageRow is one framed message.
type MessageRow struct {
	Offset int      `json:"offset"`
	Type   string   `json:"type"`
	RefNo  uint32   `json:"refNo"`
	Header []string `json:"header"`
	Body   []string `json:"body,omitempty"`
}

// RejectedRow is a marker that did not produce a message.
type RejectedRow struct {
	Offset int    `json:"offset"`
	Stage  string `json:"stage"`
	Error  string `json:"error"`
}

// Summary counts what a decode produced.
type Summary struct {
	InputBytes    int  `json:"inputBytes"`
	RepairedBytes int  `json:"repairedBytes"`
	Markers       int  `json:"markers"`
	Messages      int  `json:"messages"`
	Rejected      int  `json:"rejected"`
	Inserted      int  `json:"inserted"`
	Repaired      bool `json:"repaired"`
}

// DecodeReport describes one decode of one input.
type DecodeReport struct {
	Source      string         `json:"source"`
	InputSHA256 string         `json:"inputSha256"`
	Padding     string         `json:"padding"`
	GeneratedAt time.Time      `json:"generatedAt"`
	Summary     Summary        `json:"summary"`
	Insertions  []InsertionRow `json:"insertions"`
	Messages    []MessageRow   `json:"messages"`
	Rejected    []RejectedRow  `json:"rejected"`
}

// Build turns an extraction result into a report.
func Build(source, padding string, res *extract.Result) DecodeReport {
	rep := DecodeReport{
		Source:      source,
		InputSHA256: common.Sha256Hex(res.Input),
		Padding:     padding,
		GeneratedAt: time.Now().UTC(),
		Messages:    []MessageRow{},
		Rejected:    []RejectedRow{},
	}
	rep.Insertions = InsertionRows(res.Insertions)
	inserted := 0
	for _, ins := range res.Insertions {
		inserted += len(ins.Fill)
	}
	for i, msg := range res.Messages {
		row := MessageRow{
			Type:   msg.Header.Type.String(),
			RefNo:  msg.Header.RefNo(),
			Header: SplitFields(msg.Header.String()),
		}
		if i < len(res.Offsets) {
			row.Offset = res.Offsets[i]
		}
		if msg.Body != nil {
			row.Body = SplitFields(msg.Body.String())
		}
		rep.Messages = append(rep.Messages, row)
	}
	for _, r := range res.Rejected {
		rep.Rejected = append(rep.Rejected, RejectedRow{Offset: r.Offset, Stage: string(r.Stage), Error: r.Err.Error()})
	}
	rep.Summary = Summary{
		InputBytes:    len(res.Input),
		RepairedBytes: len(res.Repaired),
		Markers:       res.Markers,
		Messages:      len(res.Messages),
		Rejected:      len(res.Rejected),
		Inserted:      inserted,
		Repaired:      inserted > 0,
	}
	return rep
}

// InsertionRows converts pipeline insertions into report rows.
func InsertionRows(edits []repair.Insertion) []InsertionRow {
	rows := make([]InsertionRow, 0, len(edits))
	for _, ins := range edits {
		rows = append(rows, InsertionRow{
			Corrector: ins.Corrector,
			Marker:    ins.Marker,
			Offset:    ins.Offset,
			Fill:      strings.ToUpper(hex.EncodeToString(ins.Fill)),
			Reason:    ins.Reason,
		})
	}
	return rows
}

// SplitFields splits a ';' separated rendering into its name=value parts.
func SplitFields(s string) []string {
	if s == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(s, ";") {
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}

func SaveJSON(rep DecodeReport, out string) error {
	b, err := json.MarshalIndent(rep, "", "  ")
	if err != nil {
		return err
	}
	return common.WriteFileAtomic(out, b, 0644)
}

func LoadJSON(path string) (DecodeReport, error) {
	var rep DecodeReport
	b, err := os.ReadFile(path)
	if err != nil {
		return rep, err
	}
	err = json.Unmarshal(b, &rep)
	return rep, err
}
