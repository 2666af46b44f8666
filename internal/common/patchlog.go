package common

import (
	"bufio"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// PatchEntry captures a single byte insertion made while repairing a buffer.
type PatchEntry struct {
	Corrector   string    `json:"corrector"`
	Source      string    `json:"source,omitempty"`
	Marker      int       `json:"marker"`
	Offset      int       `json:"offset"`
	InsertedHex string    `json:"insertedHex"`
	HeaderHex   string    `json:"headerHex,omitempty"`
	Ts          time.Time `json:"ts"`
}

// InsertedBytes decodes the hexadecimal representation of the filler bytes.
func (p PatchEntry) InsertedBytes() ([]byte, error) {
	if strings.TrimSpace(p.InsertedHex) == "" {
		return nil, nil
	}
	return hex.DecodeString(p.InsertedHex)
}

// HeaderBytes decodes the header bytes recorded before the insertion.
func (p PatchEntry) HeaderBytes() ([]byte, error) {
	if strings.TrimSpace(p.HeaderHex) == "" {
		return nil, nil
	}
	return hex.DecodeString(p.HeaderHex)
}

// PatchLog provides append-only access to a JSONL audit log.
type PatchLog struct {
	path string
	mu   sync.Mutex
}

// NewPatchLog returns a PatchLog that writes to the provided path.
func NewPatchLog(path string) *PatchLog {
	return &PatchLog{path: path}
}

// Path returns the backing file path for the log.
func (p *PatchLog) Path() string {
	if p == nil {
		return ""
	}
	return p.path
}

// Append writes new entries to the audit log, one JSON object per line.
func (p *PatchLog) Append(entries ...PatchEntry) error {
	if p == nil {
		return errors.New("nil patch log")
	}
	if len(entries) == 0 {
		return nil
	}
	var buf []byte
	for _, entry := range entries {
		if entry.Corrector == "" {
			return errors.New("patch entry missing corrector")
		}
		if entry.Ts.IsZero() {
			entry.Ts = time.Now().UTC()
		}
		data, err := json.Marshal(entry)
		if err != nil {
			return err
		}
		buf = append(buf, data...)
		buf = append(buf, '\n')
	}
	dir := filepath.Dir(p.path)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	f, err := os.OpenFile(p.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()
	if _, err := f.Write(buf); err != nil {
		return err
	}
	return f.Sync()
}

// ReadPatchLog loads every entry from the supplied JSONL file.
func ReadPatchLog(path string) ([]PatchEntry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	scanner := bufio.NewScanner(f)
	var entries []PatchEntry
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var entry PatchEntry
		if err := json.Unmarshal([]byte(line), &entry); err != nil {
			return nil, fmt.Errorf("decode patch entry: %w", err)
		}
		entries = append(entries, entry)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return entries, nil
}
