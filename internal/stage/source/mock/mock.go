// Package mock implements the reference mock source: it produces nothing
// on its own and exists purely as an HTTP-addressable injection point,
// contributing POST /inject and POST /sleep_time (spec §6).
package mock

import (
	"context"
	"encoding/json"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/gofrs/uuid"
	"github.com/gorilla/mux"

	"github.com/obsidian-labs/marketdata-pipeline/internal/config"
	"github.com/obsidian-labs/marketdata-pipeline/internal/control"
	"github.com/obsidian-labs/marketdata-pipeline/internal/log"
	"github.com/obsidian-labs/marketdata-pipeline/internal/object"
	"github.com/obsidian-labs/marketdata-pipeline/internal/pipeline"
)

// Source is the reference mock source.
type Source struct {
	pipeline.BaseStage

	dispatch   pipeline.Dispatcher
	sleepTime  atomic.Uint64
	sequenceNr atomic.Uint64
}

// New builds a mock Source from its stage config. There are no
// source-specific settings.
func New(cfg config.StageConfig) (pipeline.Stage, error) {
	return &Source{BaseStage: pipeline.BaseStage{StageName: cfg.Name, StageQueueSize: cfg.QueueSize}}, nil
}

// Init implements pipeline.Stage; the mock source has no external
// resources to acquire.
func (s *Source) Init(context.Context) error { return nil }

// SetDispatcher implements pipeline.ControlAware: the mock source injects
// into itself via the same dispatch path any other stage would use to
// inject into it.
func (s *Source) SetDispatcher(d pipeline.Dispatcher) { s.dispatch = d }

// SetSleepTime implements pipeline.Stage.
func (s *Source) SetSleepTime(ms uint64) {
	s.sleepTime.Store(ms)
	log.Source.Infof("%s: sleep_time set to %dms", s.StageName, ms)
}

// SleepTime returns the currently configured throttle, for tests.
func (s *Source) SleepTime() uint64 { return s.sleepTime.Load() }

// Recv never produces autonomously; it blocks until the context is
// cancelled, at which point it reports a clean completion. All production
// happens via Inject, through /inject.
func (s *Source) Recv(ctx context.Context) (object.Object, bool, error) {
	<-ctx.Done()
	return nil, true, nil
}

type injectRequest struct {
	Payload string `json:"payload"`
}

type sleepTimeRequest struct {
	SleepTime uint64 `json:"sleep_time"`
}

// Endpoints implements pipeline.Stage.
func (s *Source) Endpoints(router *mux.Router) {
	router.HandleFunc("/inject", s.handleInject).Methods(http.MethodPost)
	router.HandleFunc("/sleep_time", s.handleSleepTime).Methods(http.MethodPost)
}

func (s *Source) handleInject(w http.ResponseWriter, r *http.Request) {
	var req injectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "malformed request body", http.StatusBadRequest)
		return
	}
	id, _ := uuid.NewV4()
	corr, _ := uuid.NewV4()
	msg := &object.Mock{
		Header: object.Header{
			ID:            id,
			TimestampNs:   time.Now().UnixNano(),
			SequenceNr:    s.sequenceNr.Add(1),
			CorrelationID: corr,
			Source:        s.StageName,
			Exchange:      "mock",
			AssetType:     "mock",
		},
		Payload: req.Payload,
	}
	if s.dispatch == nil {
		http.Error(w, "stage not wired", http.StatusInternalServerError)
		return
	}
	if err := s.dispatch(r.Context(), s.StageName, control.Inject{Object: msg}); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (s *Source) handleSleepTime(w http.ResponseWriter, r *http.Request) {
	var req sleepTimeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "malformed request body", http.StatusBadRequest)
		return
	}
	if s.dispatch == nil {
		http.Error(w, "stage not wired", http.StatusInternalServerError)
		return
	}
	if err := s.dispatch(r.Context(), s.StageName, control.SleepTime{Milliseconds: req.SleepTime}); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusOK)
}
