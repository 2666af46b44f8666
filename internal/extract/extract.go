package extract

import (
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"example.com/readinmarsat/internal/common"
	"example.com/readinmarsat/internal/inmarsat"
	"example.com/readinmarsat/internal/repair"
)

// ErrNoMarkers is returned by Decode when the input holds no start of
// message pattern at all.
var ErrNoMarkers = errors.New("not a valid inmarsat message")

// Stage names a rejection reason.
type Stage string

const (
	StageConstruct Stage = "construct"
	StageValidate  Stage = "validate"
)

// Rejected records a marker that did not yield a message.
type Rejected struct {
	Offset int
	Stage  Stage
	Err    error
}

func (r Rejected) String() string {
	return fmt.Sprintf("offset %d: %s: %v", r.Offset, r.Stage, r.Err)
}

// Result is the outcome of decoding one input buffer.
type Result struct {
	Input      []byte
	Repaired   []byte
	Messages   []*inmarsat.Message
	Offsets    []int
	Rejected   []Rejected
	Markers    int
	Insertions []repair.Insertion
	repair     repair.Result
}

// PatchEntries returns the audit entries for the repairs made to Input.
func (r *Result) PatchEntries(source string) []common.PatchEntry {
	return r.repair.PatchEntries(source)
}

// Extractor repairs a buffer and frames the messages in it.
type Extractor struct {
	pipeline *repair.Pipeline
	metrics  *common.Metrics
}

// Option configures an Extractor.
type Option func(*Extractor)

// WithPipeline replaces the default repair pipeline.
func WithPipeline(p *repair.Pipeline) Option {
	return func(e *Extractor) {
		if p != nil {
			e.pipeline = p
		}
	}
}

// WithMetrics counts markers, messages and rejections into m.
func WithMetrics(m *common.Metrics) Option {
	return func(e *Extractor) { e.metrics = m }
}

func New(opts ...Option) *Extractor {
	e := &Extractor{pipeline: repair.Default()}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Messages frames every valid message in buf without repairing it first.
func (e *Extractor) Messages(buf []byte) []*inmarsat.Message {
	res := &Result{}
	e.frame(buf, res)
	return res.Messages
}

// Decode repairs raw and frames the messages in the repaired buffer.
// ErrNoMarkers is returned, together with an empty result, when raw holds
// no marker.
func (e *Extractor) Decode(raw []byte) (*Result, error) {
	e.metrics.AddBytes(int64(len(raw)))
	rr := e.pipeline.Run(raw)
	res := &Result{
		Input:      raw,
		Repaired:   rr.Output,
		Insertions: rr.Insertions(),
		repair:     rr,
	}
	e.metrics.AddInsertions(rr.Inserted())
	e.frame(rr.Output, res)
	if res.Markers == 0 {
		return res, ErrNoMarkers
	}
	return res, nil
}

func (e *Extractor) frame(buf []byte, res *Result) {
	for i := 0; i < len(buf)-repair.PatternLength; i++ {
		if !repair.IsStartOfMessage(buf, i) {
			continue
		}
		res.Markers++
		e.metrics.IncMarker()
		log := common.Log().WithFields(logrus.Fields{"offset": i})
		msg, err := inmarsat.NewMessage(buf[i:])
		if err != nil {
			log.Warnf("error constructing message: %v", err)
			e.metrics.IncConstructFailure()
			res.Rejected = append(res.Rejected, Rejected{Offset: i, Stage: StageConstruct, Err: err})
			continue
		}
		if err := msg.Validate(); err != nil {
			log.Warnf("invalid message %s: %v", msg.Header, err)
			e.metrics.IncValidateFailure()
			res.Rejected = append(res.Rejected, Rejected{Offset: i, Stage: StageValidate, Err: err})
			continue
		}
		e.metrics.IncMessage()
		res.Messages = append(res.Messages, msg)
		res.Offsets = append(res.Offsets, i)
	}
}
