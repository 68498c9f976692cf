// Package obmaintainer implements the reference orderbook-maintaining
// processor: it owns a Market, reconciles incoming updates and snapshots
// against it per the book state machine, and forwards every input
// unchanged downstream so that sinks can observe the full event stream
// (spec §4.7).
package obmaintainer

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/obsidian-labs/marketdata-pipeline/internal/config"
	"github.com/obsidian-labs/marketdata-pipeline/internal/log"
	"github.com/obsidian-labs/marketdata-pipeline/internal/market"
	"github.com/obsidian-labs/marketdata-pipeline/internal/object"
	"github.com/obsidian-labs/marketdata-pipeline/internal/pipeline"
	"github.com/obsidian-labs/marketdata-pipeline/internal/stage/source/exchangews"
)

const modeRealtime = "realtime"

// Processor is the reference orderbook-maintaining processor.
type Processor struct {
	pipeline.BaseStage

	market         *market.Market
	mode           string
	snapshotSource string

	dispatch pipeline.Dispatcher
}

// New builds an obmaintainer Processor from its stage config.
// Settings: snapshot_source (required) names the exchangews-style stage to
// send a FetchSnapshot directive to when a book is missing; mode (optional,
// default "realtime") selects whether a missing book triggers a fetch at
// all — any other value leaves the update queued with no fetch triggered,
// matching a replay/backtest mode that expects snapshots to arrive
// unprompted.
func New(cfg config.StageConfig) (pipeline.Stage, error) {
	snapSource, _ := cfg.Settings["snapshot_source"].(string)
	if snapSource == "" {
		return nil, fmt.Errorf("obmaintainer processor %q: settings.snapshot_source is required", cfg.Name)
	}
	mode, _ := cfg.Settings["mode"].(string)
	if mode == "" {
		mode = modeRealtime
	}
	return &Processor{
		BaseStage:      pipeline.BaseStage{StageName: cfg.Name, StageQueueSize: cfg.QueueSize},
		market:         market.NewMarket(),
		mode:           mode,
		snapshotSource: snapSource,
	}, nil
}

// Init implements pipeline.Stage; the Market is created empty in New.
func (p *Processor) Init(context.Context) error { return nil }

// SetDispatcher implements pipeline.ControlAware: used to trigger a
// FetchSnapshot directive on the configured snapshot source.
func (p *Processor) SetDispatcher(d pipeline.Dispatcher) { p.dispatch = d }

// Execute implements pipeline.Processor.
func (p *Processor) Execute(ctx context.Context, in object.Object) (object.Object, bool, error) {
	switch v := in.(type) {
	case *object.OrderbookUpdate:
		p.handleUpdate(ctx, v)
	case *object.OrderbookSnapshot:
		p.handleSnapshot(v)
	}
	// Every object kind, including the two handled above, is forwarded
	// unchanged so sinks observe the full event stream (spec §4.7).
	return in, false, nil
}

func (p *Processor) handleUpdate(ctx context.Context, u *object.OrderbookUpdate) {
	book, ok := p.market.Get(u.Symbol)
	if ok {
		if err := book.Apply(u); err != nil {
			log.Processor.Errorf("%s: apply update for %s: %v", p.StageName, u.Symbol, err)
			return
		}
		if book.Status == object.StatusStale {
			log.Orderbook.Warnf("%s: %s went stale, dropping book", p.StageName, u.Symbol)
			p.market.Clear(u.Symbol)
		}
		return
	}

	p.market.QueueUpdate(u.Symbol, u)
	if p.mode != modeRealtime {
		return
	}
	if p.market.IsPending(u.Symbol) {
		return
	}
	p.market.SetPending(u.Symbol)
	if p.dispatch == nil {
		log.Processor.Errorf("%s: not wired to a dispatcher, cannot fetch snapshot for %s", p.StageName, u.Symbol)
		return
	}
	msg := exchangews.FetchSnapshot{Symbol: u.Symbol, Target: p.StageName}
	if err := p.dispatch(ctx, p.snapshotSource, msg); err != nil {
		log.Processor.Errorf("%s: dispatch snapshot fetch for %s: %v", p.StageName, u.Symbol, err)
	}
}

func (p *Processor) handleSnapshot(snap *object.OrderbookSnapshot) {
	book, err := market.NewBookFromSnapshot(snap)
	if err != nil {
		log.Processor.Errorf("%s: build book from snapshot for %s: %v", p.StageName, snap.Symbol, err)
		return
	}
	queued := p.market.TakeReplayQueue(snap.Symbol)
	for _, u := range queued {
		if err := book.Apply(u); err != nil {
			log.Processor.Errorf("%s: replay queued update for %s: %v", p.StageName, snap.Symbol, err)
		}
	}
	p.market.ClearPending(snap.Symbol)
	p.market.Set(book)
	log.Orderbook.Infof("%s: installed snapshot for %s, replayed %d queued updates", p.StageName, snap.Symbol, len(queued))
}

// Endpoints implements pipeline.Stage: GET /orderbook/{symbol} returns the
// current book as a snapshot; DELETE /orderbook/{symbol} clears it (spec
// §6).
func (p *Processor) Endpoints(router *mux.Router) {
	router.HandleFunc("/orderbook/{symbol}", p.handleGet).Methods(http.MethodGet)
	router.HandleFunc("/orderbook/{symbol}", p.handleDelete).Methods(http.MethodDelete)
}

func (p *Processor) handleGet(w http.ResponseWriter, r *http.Request) {
	symbol := mux.Vars(r)["symbol"]
	book, ok := p.market.Get(symbol)
	if !ok {
		http.Error(w, fmt.Sprintf("no book for symbol %q", symbol), http.StatusNotFound)
		return
	}
	snap := book.ToSnapshot(object.NewHeader(p.StageName, "internal", "spot", 0))
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(snap); err != nil {
		log.Processor.Errorf("%s: encode snapshot response for %s: %v", p.StageName, symbol, err)
	}
}

// handleDelete implements DELETE /orderbook/{symbol}. The plain form
// removes the book outright; ?mode=invalidate marks it Error in place so an
// admin can force a resync without losing the registry entry mid-flight.
func (p *Processor) handleDelete(w http.ResponseWriter, r *http.Request) {
	symbol := mux.Vars(r)["symbol"]
	if r.URL.Query().Get("mode") == "invalidate" {
		book, ok := p.market.Get(symbol)
		if !ok {
			http.Error(w, fmt.Sprintf("no book for symbol %q", symbol), http.StatusNotFound)
			return
		}
		book.Invalidate()
		w.WriteHeader(http.StatusOK)
		return
	}
	p.market.Clear(symbol)
	w.WriteHeader(http.StatusOK)
}
