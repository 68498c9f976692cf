// Package exchangews implements the reference websocket source: it
// connects to a configured exchange-style streaming endpoint, normalizes
// depthUpdate/kline/trade events into the object model, and contributes a
// REST snapshot-fetch-then-inject flow used both internally (the orderbook
// maintainer triggers it via a FetchSnapshot control directive when it has
// no book for a symbol) and externally (the GET /orderbook/{symbol} route,
// spec §4.6, §6).
package exchangews

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync/atomic"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"golang.org/x/time/rate"

	"github.com/obsidian-labs/marketdata-pipeline/internal/config"
	"github.com/obsidian-labs/marketdata-pipeline/internal/control"
	"github.com/obsidian-labs/marketdata-pipeline/internal/fixedpoint"
	"github.com/obsidian-labs/marketdata-pipeline/internal/log"
	"github.com/obsidian-labs/marketdata-pipeline/internal/object"
	"github.com/obsidian-labs/marketdata-pipeline/internal/pipeline"
)

// FetchSnapshot is the stage-specific control directive that triggers a
// REST snapshot fetch for Symbol and, once retrieved, delivers it to
// Target via Inject. Both the orderbook maintainer (internally) and the
// /orderbook HTTP route (externally) issue this directive; the source
// itself never decides who the snapshot is for.
type FetchSnapshot struct {
	Symbol string
	Target string
}

const defaultWakeupInterval = 10 * time.Second

// Source is the reference exchange websocket source.
type Source struct {
	pipeline.BaseStage

	wsURL       string
	streams     []string
	snapshotURL string
	wakeup      time.Duration
	exchange    string

	dispatch   pipeline.Dispatcher
	sleepTime  atomic.Uint64
	sequenceNr atomic.Uint64
	limiter    *rate.Limiter

	conn       *websocket.Conn
	httpClient *http.Client
}

// New builds an exchange websocket Source from its stage config.
// Settings: ws_url and snapshot_url are required; streams ([]string, stream
// fragments concatenated into the path) and wakeup_interval_ms (default
// 10000) are optional.
func New(cfg config.StageConfig) (pipeline.Stage, error) {
	wsURL, _ := cfg.Settings["ws_url"].(string)
	if wsURL == "" {
		return nil, fmt.Errorf("exchangews source %q: settings.ws_url is required", cfg.Name)
	}
	snapURL, _ := cfg.Settings["snapshot_url"].(string)
	if snapURL == "" {
		return nil, fmt.Errorf("exchangews source %q: settings.snapshot_url is required", cfg.Name)
	}
	exchange, _ := cfg.Settings["exchange"].(string)
	if exchange == "" {
		exchange = "reference"
	}
	var streams []string
	if raw, ok := cfg.Settings["streams"].([]any); ok {
		for _, v := range raw {
			if str, ok := v.(string); ok {
				streams = append(streams, str)
			}
		}
	}
	wakeup := defaultWakeupInterval
	if ms, ok := cfg.Settings["wakeup_interval_ms"].(float64); ok && ms > 0 {
		wakeup = time.Duration(ms) * time.Millisecond
	}
	return &Source{
		BaseStage:   pipeline.BaseStage{StageName: cfg.Name, StageQueueSize: cfg.QueueSize},
		wsURL:       wsURL,
		streams:     streams,
		snapshotURL: snapURL,
		wakeup:      wakeup,
		exchange:    exchange,
		limiter:     rate.NewLimiter(rate.Limit(5), 5),
		httpClient:  &http.Client{},
	}, nil
}

// Init dials wsURL with every configured stream fragment concatenated into
// the path.
func (s *Source) Init(ctx context.Context) error {
	full := s.wsURL
	if len(s.streams) > 0 {
		full = strings.TrimRight(full, "/") + "/" + strings.Join(s.streams, "/")
	}
	dialer := websocket.Dialer{HandshakeTimeout: 15 * time.Second}
	conn, _, err := dialer.DialContext(ctx, full, nil)
	if err != nil {
		return fmt.Errorf("exchangews source %q: dial %s: %w", s.StageName, full, err)
	}
	s.conn = conn
	return nil
}

// SetDispatcher implements pipeline.ControlAware.
func (s *Source) SetDispatcher(d pipeline.Dispatcher) { s.dispatch = d }

// SetSleepTime implements pipeline.Stage: every Recv sleeps this long after
// reading, before returning the decoded object.
func (s *Source) SetSleepTime(ms uint64) {
	s.sleepTime.Store(ms)
	log.Source.Infof("%s: sleep_time set to %dms", s.StageName, ms)
}

type wireEnvelope struct {
	EventType string `json:"e"`
}

type wireDepthUpdate struct {
	EventTimeMs   int64       `json:"E"`
	Symbol        string      `json:"s"`
	FirstUpdateID uint64      `json:"U"`
	FinalUpdateID uint64      `json:"u"`
	PrevFinalID   *uint64     `json:"pu,omitempty"`
	Bids          [][2]string `json:"b"`
	Asks          [][2]string `json:"a"`
}

type wireKlinePayload struct {
	StartTimeMs         int64  `json:"t"`
	CloseTimeMs         int64  `json:"T"`
	Interval            string `json:"i"`
	FirstTradeID        int64  `json:"f"`
	LastTradeID         int64  `json:"L"`
	Open                string `json:"o"`
	Close               string `json:"c"`
	High                string `json:"h"`
	Low                 string `json:"l"`
	Volume              string `json:"v"`
	NumberOfTrades      int64  `json:"n"`
	IsClosed            bool   `json:"x"`
	QuoteVolume         string `json:"q"`
	TakerBuyBaseVolume  string `json:"V"`
	TakerBuyQuoteVolume string `json:"Q"`
}

type wireKline struct {
	EventTimeMs int64            `json:"E"`
	Symbol      string           `json:"s"`
	Kline       wireKlinePayload `json:"k"`
}

type wireTrade struct {
	EventTimeMs  int64  `json:"E"`
	Symbol       string `json:"s"`
	TradeID      int64  `json:"t"`
	Price        string `json:"p"`
	Quantity     string `json:"q"`
	BuyerOrderID int64  `json:"b"`
	SellOrderID  int64  `json:"a"`
	TradeTimeMs  int64  `json:"T"`
	IsBuyerMaker bool   `json:"m"`
}

type wireSnapshot struct {
	LastUpdateID uint64      `json:"lastUpdateId"`
	Bids         [][2]string `json:"bids"`
	Asks         [][2]string `json:"asks"`
}

func parseLevels(raw [][2]string) ([]object.Level, error) {
	out := make([]object.Level, 0, len(raw))
	for _, pair := range raw {
		price, err := fixedpoint.ParsePrice(pair[0])
		if err != nil {
			return nil, err
		}
		qty, err := fixedpoint.ParseQty(pair[1])
		if err != nil {
			return nil, err
		}
		out = append(out, object.Level{Price: price, Quantity: qty})
	}
	return out, nil
}

func (s *Source) header() object.Header {
	return object.NewHeader(s.StageName, s.exchange, "spot", s.sequenceNr.Add(1))
}

// Recv implements pipeline.Source: it races a single websocket read against
// the configured wakeup_interval via the connection's read deadline.
func (s *Source) Recv(ctx context.Context) (object.Object, bool, error) {
	if err := s.conn.SetReadDeadline(time.Now().Add(s.wakeup)); err != nil {
		return nil, false, fmt.Errorf("exchangews source %q: set read deadline: %w", s.StageName, err)
	}
	_, raw, err := s.conn.ReadMessage()
	if err != nil {
		if ctx.Err() != nil {
			return nil, true, nil
		}
		return nil, false, fmt.Errorf("exchangews source %q: read: %w", s.StageName, err)
	}

	if ms := s.sleepTime.Load(); ms > 0 {
		select {
		case <-time.After(time.Duration(ms) * time.Millisecond):
		case <-ctx.Done():
			return nil, true, nil
		}
	}

	var env wireEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		log.Source.Warnf("%s: malformed event envelope: %v", s.StageName, err)
		return nil, false, nil
	}

	switch env.EventType {
	case "depthUpdate":
		var w wireDepthUpdate
		if err := json.Unmarshal(raw, &w); err != nil {
			log.Source.Warnf("%s: malformed depthUpdate: %v", s.StageName, err)
			return nil, false, nil
		}
		bids, err := parseLevels(w.Bids)
		if err != nil {
			log.Source.Warnf("%s: malformed depthUpdate bids: %v", s.StageName, err)
			return nil, false, nil
		}
		asks, err := parseLevels(w.Asks)
		if err != nil {
			log.Source.Warnf("%s: malformed depthUpdate asks: %v", s.StageName, err)
			return nil, false, nil
		}
		return &object.OrderbookUpdate{
			Header:                s.header(),
			EventTimeMs:           w.EventTimeMs,
			Symbol:                w.Symbol,
			FirstUpdateID:         w.FirstUpdateID,
			FinalUpdateID:         w.FinalUpdateID,
			PreviousFinalUpdateID: w.PrevFinalID,
			Bids:                  bids,
			Asks:                  asks,
		}, false, nil
	case "kline":
		var w wireKline
		if err := json.Unmarshal(raw, &w); err != nil {
			log.Source.Warnf("%s: malformed kline: %v", s.StageName, err)
			return nil, false, nil
		}
		k := w.Kline
		return &object.Kline{
			Header:              s.header(),
			EventTimeMs:         w.EventTimeMs,
			Symbol:              w.Symbol,
			StartTimeMs:         k.StartTimeMs,
			CloseTimeMs:         k.CloseTimeMs,
			Interval:            k.Interval,
			FirstTradeID:        k.FirstTradeID,
			LastTradeID:         k.LastTradeID,
			Open:                k.Open,
			Close:               k.Close,
			High:                k.High,
			Low:                 k.Low,
			Volume:              k.Volume,
			NumberOfTrades:      k.NumberOfTrades,
			IsClosed:            k.IsClosed,
			QuoteVolume:         k.QuoteVolume,
			TakerBuyBaseVolume:  k.TakerBuyBaseVolume,
			TakerBuyQuoteVolume: k.TakerBuyQuoteVolume,
		}, false, nil
	case "trade":
		var w wireTrade
		if err := json.Unmarshal(raw, &w); err != nil {
			log.Source.Warnf("%s: malformed trade: %v", s.StageName, err)
			return nil, false, nil
		}
		return &object.Trade{
			Header:       s.header(),
			EventTimeMs:  w.EventTimeMs,
			Symbol:       w.Symbol,
			TradeID:      w.TradeID,
			Price:        w.Price,
			Quantity:     w.Quantity,
			BuyerOrderID: w.BuyerOrderID,
			SellOrderID:  w.SellOrderID,
			TradeTimeMs:  w.TradeTimeMs,
			IsBuyerMaker: w.IsBuyerMaker,
		}, false, nil
	default:
		log.Source.Debugf("%s: unrecognized event type %q, dropping", s.StageName, env.EventType)
		return nil, false, nil
	}
}

// fetchSnapshot issues the REST GET and parses the result. recv_window is
// deliberately sent under the key "recv_window" rather than the
// "recvWindow" most exchanges expect; this mirrors observed behavior in the
// reference client rather than correcting it (an open question, not a bug
// fixed silently).
func (s *Source) fetchSnapshot(ctx context.Context, symbol string) (*object.OrderbookSnapshot, error) {
	if err := s.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("exchangews source %q: rate limiter: %w", s.StageName, err)
	}
	u, err := url.Parse(s.snapshotURL)
	if err != nil {
		return nil, fmt.Errorf("exchangews source %q: malformed snapshot_url: %w", s.StageName, err)
	}
	q := u.Query()
	q.Set("symbol", symbol)
	q.Set("limit", "1000")
	q.Set("recv_window", "5000")
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("exchangews source %q: build snapshot request: %w", s.StageName, err)
	}
	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, errors.Wrapf(err, "exchangews source %q: snapshot fetch", s.StageName)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("exchangews source %q: snapshot fetch: status %d", s.StageName, resp.StatusCode)
	}
	var w wireSnapshot
	if err := json.NewDecoder(resp.Body).Decode(&w); err != nil {
		return nil, errors.Wrapf(err, "exchangews source %q: decode snapshot", s.StageName)
	}
	bids, err := parseLevels(w.Bids)
	if err != nil {
		return nil, fmt.Errorf("exchangews source %q: malformed snapshot bids: %w", s.StageName, err)
	}
	asks, err := parseLevels(w.Asks)
	if err != nil {
		return nil, fmt.Errorf("exchangews source %q: malformed snapshot asks: %w", s.StageName, err)
	}
	return &object.OrderbookSnapshot{
		Header:       s.header(),
		Symbol:       symbol,
		FirstUpdate:  true,
		LastUpdateID: w.LastUpdateID,
		Status:       object.StatusTicking,
		Bids:         bids,
		Asks:         asks,
	}, nil
}

// HandleControlMessage implements pipeline.ControlMessageHandler. The only
// stage-specific directive this source recognizes is FetchSnapshot.
func (s *Source) HandleControlMessage(ctx context.Context, data any) error {
	fs, ok := data.(FetchSnapshot)
	if !ok {
		return fmt.Errorf("%s: unrecognized control directive %T", s.StageName, data)
	}
	return s.fetchAndDeliver(ctx, fs.Symbol, fs.Target)
}

func (s *Source) fetchAndDeliver(ctx context.Context, symbol, target string) error {
	snap, err := s.fetchSnapshot(ctx, symbol)
	if err != nil {
		return err
	}
	if s.dispatch == nil {
		return fmt.Errorf("%s: not wired to a dispatcher", s.StageName)
	}
	return s.dispatch(ctx, target, control.Inject{Object: snap})
}

// Endpoints implements pipeline.Stage: GET /orderbook/{symbol}?target=<stage>
// triggers the snapshot-fetch-then-inject flow externally (spec §6).
func (s *Source) Endpoints(router *mux.Router) {
	router.HandleFunc("/orderbook/{symbol}", s.handleOrderbook).Methods(http.MethodGet)
}

func (s *Source) handleOrderbook(w http.ResponseWriter, r *http.Request) {
	symbol := mux.Vars(r)["symbol"]
	target := r.URL.Query().Get("target")
	if target == "" {
		http.Error(w, "target query parameter is required", http.StatusBadRequest)
		return
	}
	if err := s.fetchAndDeliver(r.Context(), symbol, target); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusOK)
}
