// Package mock implements the reference mock sink: it records the
// production-to-consumption lag of every object it receives and discards
// the payload (spec §4.8).
package mock

import (
	"context"
	"sync"
	"time"

	"github.com/obsidian-labs/marketdata-pipeline/internal/config"
	"github.com/obsidian-labs/marketdata-pipeline/internal/object"
	"github.com/obsidian-labs/marketdata-pipeline/internal/pipeline"
)

// Sink is the reference mock sink.
type Sink struct {
	pipeline.BaseStage

	mu       sync.Mutex
	count    uint64
	lastLag  time.Duration
	totalLag time.Duration
}

// New builds a mock Sink from its stage config. There are no
// sink-specific settings.
func New(cfg config.StageConfig) (pipeline.Stage, error) {
	return &Sink{BaseStage: pipeline.BaseStage{StageName: cfg.Name, StageQueueSize: cfg.QueueSize}}, nil
}

// Init implements pipeline.Stage; the mock sink has no external resources.
func (s *Sink) Init(context.Context) error { return nil }

// Send implements pipeline.Sink.
func (s *Sink) Send(_ context.Context, obj object.Object) error {
	lag := time.Duration(time.Now().UnixNano()-obj.GetHeader().TimestampNs) * time.Nanosecond
	s.mu.Lock()
	s.count++
	s.lastLag = lag
	s.totalLag += lag
	s.mu.Unlock()
	return nil
}

// Stats returns the number of objects observed and the last/average lag,
// exposed for tests and for a future metrics contribution.
func (s *Sink) Stats() (count uint64, last, avg time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.count == 0 {
		return 0, 0, 0
	}
	return s.count, s.lastLag, s.totalLag / time.Duration(s.count)
}
