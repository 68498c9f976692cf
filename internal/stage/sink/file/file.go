// Package file implements the reference file sink: on init it opens a
// file named "<base>_<datetime>" and on every Send appends the object as
// a single newline-delimited JSON line (spec §4.8, §6).
package file

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/obsidian-labs/marketdata-pipeline/internal/config"
	"github.com/obsidian-labs/marketdata-pipeline/internal/object"
	"github.com/obsidian-labs/marketdata-pipeline/internal/pipeline"
)

// Sink is the reference newline-delimited-JSON file sink.
type Sink struct {
	pipeline.BaseStage

	basePath string

	mu   sync.Mutex
	f    *os.File
	path string
}

// New builds a file Sink from its stage config. Settings["base_path"] is
// the required "<base>" prefix; the datetime suffix is appended on Init.
func New(cfg config.StageConfig) (pipeline.Stage, error) {
	base, _ := cfg.Settings["base_path"].(string)
	if base == "" {
		return nil, fmt.Errorf("file sink %q: settings.base_path is required", cfg.Name)
	}
	return &Sink{
		BaseStage: pipeline.BaseStage{StageName: cfg.Name, StageQueueSize: cfg.QueueSize},
		basePath:  base,
	}, nil
}

// Init opens "<base>_<datetime>" for appending.
func (s *Sink) Init(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.path = fmt.Sprintf("%s_%s", s.basePath, time.Now().UTC().Format("20060102T150405Z"))
	f, err := os.OpenFile(s.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("file sink %q: open %s: %w", s.StageName, s.path, err)
	}
	s.f = f
	return nil
}

// Send serializes obj as a tagged-union JSON line terminated by 0x0A.
func (s *Sink) Send(_ context.Context, obj object.Object) error {
	line, err := object.Marshal(obj)
	if err != nil {
		return fmt.Errorf("file sink %q: marshal: %w", s.StageName, err)
	}
	line = append(line, 0x0A)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.f == nil {
		return fmt.Errorf("file sink %q: not initialised", s.StageName)
	}
	if _, err := s.f.Write(line); err != nil {
		return fmt.Errorf("file sink %q: write: %w", s.StageName, err)
	}
	return nil
}

// Close releases the open file handle. Not part of the Stage contract
// (spec §5 notes release on exit paths is a SHOULD, not enforced by the
// runtime), but exposed so the process wiring can call it on shutdown.
func (s *Sink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.f == nil {
		return nil
	}
	err := s.f.Close()
	s.f = nil
	return err
}

// Path returns the currently open file's path, for tests.
func (s *Sink) Path() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.path
}
