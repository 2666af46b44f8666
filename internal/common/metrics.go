package common

import (
	"fmt"
	"sync"
	"time"
)

// Metrics counts what a decode run saw. A nil *Metrics is valid and
// discards every update.
type Metrics struct {
	mu                sync.Mutex
	start             time.Time
	end               time.Time
	bytes             int64
	markers           int64
	messages          int64
	insertions        int64
	constructFailures int64
	validateFailures  int64
}

func NewMetrics() *Metrics {
	return &Metrics{}
}

func (m *Metrics) Start() {
	if m == nil {
		return
	}
	m.mu.Lock()
	if m.start.IsZero() {
		m.start = time.Now()
		m.end = time.Time{}
	}
	m.mu.Unlock()
}

func (m *Metrics) Stop() {
	if m == nil {
		return
	}
	m.mu.Lock()
	if !m.start.IsZero() && m.end.IsZero() {
		m.end = time.Now()
	}
	m.mu.Unlock()
}

func (m *Metrics) AddBytes(n int64) {
	if m == nil || n <= 0 {
		return
	}
	m.mu.Lock()
	m.bytes += n
	m.mu.Unlock()
}

func (m *Metrics) IncMarker() {
	m.add(func(m *Metrics) *int64 { return &m.markers }, 1)
}

func (m *Metrics) IncMessage() {
	m.add(func(m *Metrics) *int64 { return &m.messages }, 1)
}

func (m *Metrics) IncConstructFailure() {
	m.add(func(m *Metrics) *int64 { return &m.constructFailures }, 1)
}

func (m *Metrics) IncValidateFailure() {
	m.add(func(m *Metrics) *int64 { return &m.validateFailures }, 1)
}

func (m *Metrics) AddInsertions(n int) {
	m.add(func(m *Metrics) *int64 { return &m.insertions }, int64(n))
}

// add resolves the counter only after the nil check.
func (m *Metrics) add(counter func(*Metrics) *int64, n int64) {
	if m == nil || n <= 0 {
		return
	}
	m.mu.Lock()
	*counter(m) += n
	m.mu.Unlock()
}

func (m *Metrics) Snapshot() MetricsSnapshot {
	if m == nil {
		return MetricsSnapshot{}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return MetricsSnapshot{
		Duration:          m.elapsedLocked(),
		Bytes:             m.bytes,
		Markers:           m.markers,
		Messages:          m.messages,
		Insertions:        m.insertions,
		ConstructFailures: m.constructFailures,
		ValidateFailures:  m.validateFailures,
	}
}

func (m *Metrics) elapsedLocked() time.Duration {
	if m.start.IsZero() {
		return 0
	}
	if !m.end.IsZero() {
		return m.end.Sub(m.start)
	}
	return time.Since(m.start)
}

type MetricsSnapshot struct {
	Duration          time.Duration `json:"duration"`
	Bytes             int64         `json:"bytes"`
	Markers           int64         `json:"markers"`
	Messages          int64         `json:"messages"`
	Insertions        int64         `json:"insertions"`
	ConstructFailures int64         `json:"constructFailures"`
	ValidateFailures  int64         `json:"validateFailures"`
}

// Rejected is the number of candidates that did not become messages.
func (s MetricsSnapshot) Rejected() int64 {
	return s.ConstructFailures + s.ValidateFailures
}

func FormatBytes(b int64) string {
	const unit = 1024
	if b < unit {
		return fmt.Sprintf("%d B", b)
	}
	div := float64(unit)
	exp := 0
	for n := float64(b) / div; n >= unit && exp < 6; n /= unit {
		div *= unit
		exp++
	}
	prefixes := []string{"KiB", "MiB", "GiB", "TiB", "PiB", "EiB"}
	return fmt.Sprintf("%.2f %s", float64(b)/div, prefixes[exp])
}

// String formats the snapshot as a single summary line.
func (s MetricsSnapshot) String() string {
	return fmt.Sprintf("duration=%s processed=%s markers=%d messages=%d insertions=%d rejected=%d",
		s.Duration.Round(time.Microsecond),
		FormatBytes(s.Bytes),
		s.Markers,
		s.Messages,
		s.Insertions,
		s.Rejected(),
	)
}
