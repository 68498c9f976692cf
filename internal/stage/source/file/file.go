// Package file implements a replay source: on init it opens a file of
// newline-delimited JSON envelopes and on every Recv decodes the next
// line into an Object, reporting completion at EOF rather than blocking
// (spec §6's "sources are a plugin point"; grounded on the line-at-a-time
// file reader below).
package file

import (
	"bufio"
	"context"
	"fmt"
	"os"

	"github.com/obsidian-labs/marketdata-pipeline/internal/config"
	"github.com/obsidian-labs/marketdata-pipeline/internal/log"
	"github.com/obsidian-labs/marketdata-pipeline/internal/object"
	"github.com/obsidian-labs/marketdata-pipeline/internal/pipeline"
)

// maxLineBytes bounds bufio.Scanner's internal buffer growth so a
// malformed (e.g. binary) input file fails with a clear error instead of
// growing its token buffer without limit.
const maxLineBytes = 16 * 1024 * 1024

// Source is a file-backed replay source: it never produces autonomously
// beyond what's on disk, making it the natural pairing for a processor
// configured in non-realtime (backtest) mode downstream.
type Source struct {
	pipeline.BaseStage

	filename   string
	sequenceNr uint64

	f       *os.File
	scanner *bufio.Scanner
}

// New builds a file Source from its stage config. Settings["filename"] is
// the required path to a newline-delimited-JSON file in the same tagged
// envelope format the file sink writes.
func New(cfg config.StageConfig) (pipeline.Stage, error) {
	filename, _ := cfg.Settings["filename"].(string)
	if filename == "" {
		return nil, fmt.Errorf("file source %q: settings.filename is required", cfg.Name)
	}
	return &Source{
		BaseStage: pipeline.BaseStage{StageName: cfg.Name, StageQueueSize: cfg.QueueSize},
		filename:  filename,
	}, nil
}

// Init opens the configured file. A missing or unreadable file is fatal
// for this stage, matching the reference file source's "cannot open"
// failure mode.
func (s *Source) Init(context.Context) error {
	f, err := os.Open(s.filename)
	if err != nil {
		return fmt.Errorf("file source %q: open %s: %w", s.StageName, s.filename, err)
	}
	s.f = f
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
	s.scanner = scanner
	return nil
}

// Recv decodes the next line as a tagged-union object. Zero bytes read
// (EOF) reports completion, not an error; a malformed line is a terminal
// error for this stage, since a replay file is expected to be
// well-formed and silently skipping a line would desynchronize sequence
// numbers from what produced the file.
func (s *Source) Recv(context.Context) (object.Object, bool, error) {
	if !s.scanner.Scan() {
		if err := s.scanner.Err(); err != nil {
			return nil, false, fmt.Errorf("file source %q: read %s: %w", s.StageName, s.filename, err)
		}
		log.Source.Infof("%s: read %d message(s) from %s", s.StageName, s.sequenceNr, s.filename)
		return nil, true, nil
	}

	obj, err := object.Unmarshal(s.scanner.Bytes())
	if err != nil {
		return nil, false, fmt.Errorf("file source %q: decode line %d: %w", s.StageName, s.sequenceNr+1, err)
	}
	s.sequenceNr++
	return obj, false, nil
}

// SetSleepTime is a no-op: a replay source has no live upstream to
// throttle against, matching the reference file source's no-op setter.
func (s *Source) SetSleepTime(uint64) {}

// Close releases the open file handle. Not part of the Stage contract;
// exposed so process wiring can call it on shutdown, matching the file
// sink's Close.
func (s *Source) Close() error {
	if s.f == nil {
		return nil
	}
	return s.f.Close()
}
