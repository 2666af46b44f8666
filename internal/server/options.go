package server

import (
	"fmt"
	"os"
	"runtime"
	"strings"

	"example.com/readinmarsat/internal/common"
	"example.com/readinmarsat/internal/repair"
)

// DefaultMaxBodyBytes caps request bodies. LES downloads are small; a day of
// position reports from a large fleet stays well below it.
const DefaultMaxBodyBytes = 32 << 20

// Options configures server creation.
type Options struct {
	StorageDir   string
	Padding      repair.PaddingStrategy
	MaxBodyBytes int64
	Concurrency  int
	Metrics      *common.Metrics
	// AuditLog, when set, receives a JSONL entry for every repair.
	AuditLog string
}

func (o Options) normalize() (Options, error) {
	if strings.TrimSpace(o.StorageDir) == "" {
		o.StorageDir = os.TempDir()
	}
	padding, err := repair.ParsePaddingStrategy(string(o.Padding))
	if err != nil {
		return o, fmt.Errorf("server options: %w", err)
	}
	o.Padding = padding
	if o.MaxBodyBytes <= 0 {
		o.MaxBodyBytes = DefaultMaxBodyBytes
	}
	if o.Concurrency <= 0 {
		o.Concurrency = runtime.NumCPU()
	}
	if o.Metrics == nil {
		o.Metrics = common.NewMetrics()
	}
	return o, nil
}

// pipelineFor returns the pipeline for a per-request strategy override.
func (s *Server) pipelineFor(name string) (*repair.Pipeline, repair.PaddingStrategy, error) {
	if strings.TrimSpace(name) == "" {
		return s.pipeline, s.padding, nil
	}
	strategy, err := repair.ParsePaddingStrategy(name)
	if err != nil {
		return nil, "", err
	}
	if strategy == s.padding {
		return s.pipeline, s.padding, nil
	}
	p, err := repair.NewPipeline(repair.Options{Padding: strategy})
	if err != nil {
		return nil, "", err
	}
	return p, strategy, nil
}
