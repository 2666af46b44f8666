package repair

import (
	"encoding/hex"
	"time"

	"example.com/readinmarsat/internal/common"
)

// Options configures a Pipeline. The zero value uses the inmarsat codec, the
// terminator padding strategy and the wall clock.
type Options struct {
	Codec   Codec
	Padding PaddingStrategy
	Now     func() time.Time
}

// Pipeline runs the correctors in their fixed order: reference number twice,
// header padding, member number. Each stage reads the previous stage's
// output and never mutates it.
type Pipeline struct {
	stages []Corrector
}

// NewPipeline builds a pipeline for opts.
func NewPipeline(opts Options) (*Pipeline, error) {
	codec := opts.Codec
	if codec == nil {
		codec = InmarsatCodec()
	}
	strategy, err := ParsePaddingStrategy(string(opts.Padding))
	if err != nil {
		return nil, err
	}
	var padding Corrector
	switch strategy {
	case PaddingStoredTime:
		padding = NewStoredTimeCorrector(codec, opts.Now)
	default:
		padding = NewTerminatorCorrector(codec)
	}
	refNo := NewRefNoCorrector(codec)
	return &Pipeline{stages: []Corrector{refNo, refNo, padding, NewMemberNoCorrector()}}, nil
}

var defaultPipeline, _ = NewPipeline(Options{})

// Default returns the pipeline used when no options are given.
func Default() *Pipeline {
	return defaultPipeline
}

// Repair runs the default pipeline over buf.
func Repair(buf []byte) []byte {
	return defaultPipeline.Repair(buf)
}

// Stages lists the corrector names in execution order.
func (p *Pipeline) Stages() []string {
	names := make([]string, len(p.stages))
	for i, s := range p.stages {
		names[i] = s.Name()
	}
	return names
}

// StageResult records what one stage inserted. Insertion offsets refer to
// the stage's input.
type StageResult struct {
	Corrector  string
	Insertions []Insertion
	input      []byte
}

// Result is the outcome of a pipeline run.
type Result struct {
	Output []byte
	Stages []StageResult
}

// Inserted is the total number of filler bytes added.
func (r Result) Inserted() int {
	n := 0
	for _, s := range r.Stages {
		for _, ins := range s.Insertions {
			n += len(ins.Fill)
		}
	}
	return n
}

// Insertions flattens every stage's insertions in execution order.
func (r Result) Insertions() []Insertion {
	var out []Insertion
	for _, s := range r.Stages {
		out = append(out, s.Insertions...)
	}
	return out
}

// PatchEntries converts the insertions into audit log entries.
func (r Result) PatchEntries(source string) []common.PatchEntry {
	var out []common.PatchEntry
	now := time.Now().UTC()
	for _, s := range r.Stages {
		for _, ins := range s.Insertions {
			out = append(out, common.PatchEntry{
				Corrector:   ins.Corrector,
				Source:      source,
				Marker:      ins.Marker,
				Offset:      ins.Offset,
				InsertedHex: hex.EncodeToString(ins.Fill),
				HeaderHex:   hex.EncodeToString(preview(s.input, ins.Marker)),
				Ts:          now,
			})
		}
	}
	return out
}

// Run applies every stage to buf and reports the insertions made.
func (p *Pipeline) Run(buf []byte) Result {
	res := Result{Stages: make([]StageResult, 0, len(p.stages))}
	cur := buf
	for _, stage := range p.stages {
		edits := stage.Plan(cur)
		res.Stages = append(res.Stages, StageResult{Corrector: stage.Name(), Insertions: edits, input: cur})
		if len(edits) > 0 {
			cur = Materialize(cur, edits)
		}
	}
	// the output never aliases the caller's buffer
	if len(cur) == len(buf) {
		cur = append([]byte(nil), buf...)
	}
	res.Output = cur
	return res
}

// Repair returns a repaired copy of buf.
func (p *Pipeline) Repair(buf []byte) []byte {
	return p.Run(buf).Output
}
