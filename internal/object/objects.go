package object

// Mock carries an arbitrary string payload. Used by the mock source's
// /inject control route and by tests that need a cheap object to push
// through the pipeline without exercising real market semantics.
type Mock struct {
	Header  Header `json:"header"`
	Payload string `json:"payload"`
}

// Kind implements Object.
func (m *Mock) Kind() Kind { return KindMock }

// GetHeader implements Object.
func (m *Mock) GetHeader() *Header { return &m.Header }

// Kline is a normalized candlestick, field-mapped from the reference
// exchange's kline event {t,T,s,i,f,L,o,c,h,l,v,n,x,q,V,Q,B}.
type Kline struct {
	Header               Header `json:"header"`
	EventTimeMs          int64  `json:"event_time_ms"`
	Symbol               string `json:"symbol"`
	StartTimeMs          int64  `json:"start_time_ms"`
	CloseTimeMs          int64  `json:"close_time_ms"`
	Interval             string `json:"interval"`
	FirstTradeID         int64  `json:"first_trade_id"`
	LastTradeID          int64  `json:"last_trade_id"`
	Open                 string `json:"open"`
	Close                string `json:"close"`
	High                 string `json:"high"`
	Low                  string `json:"low"`
	Volume               string `json:"volume"`
	NumberOfTrades       int64  `json:"number_of_trades"`
	IsClosed             bool   `json:"is_closed"`
	QuoteVolume          string `json:"quote_volume"`
	TakerBuyBaseVolume   string `json:"taker_buy_base_volume"`
	TakerBuyQuoteVolume  string `json:"taker_buy_quote_volume"`
}

// Kind implements Object.
func (k *Kline) Kind() Kind { return KindKline }

// GetHeader implements Object.
func (k *Kline) GetHeader() *Header { return &k.Header }

// Trade is a normalized executed trade, field-mapped from the reference
// exchange's trade event {t,p,q,b,a,T,m,M}.
type Trade struct {
	Header       Header `json:"header"`
	EventTimeMs  int64  `json:"event_time_ms"`
	Symbol       string `json:"symbol"`
	TradeID      int64  `json:"trade_id"`
	Price        string `json:"price"`
	Quantity     string `json:"quantity"`
	BuyerOrderID int64  `json:"buyer_order_id"`
	SellOrderID  int64  `json:"seller_order_id"`
	TradeTimeMs  int64  `json:"trade_time_ms"`
	IsBuyerMaker bool   `json:"is_buyer_maker"`
}

// Kind implements Object.
func (t *Trade) Kind() Kind { return KindTrade }

// GetHeader implements Object.
func (t *Trade) GetHeader() *Header { return &t.Header }

// OrderbookUpdate is an incremental change to a book, identified by an
// inclusive update-id range [FirstUpdateID, FinalUpdateID].
type OrderbookUpdate struct {
	Header                Header  `json:"header"`
	EventTimeMs           int64   `json:"event_time_ms"`
	Symbol                string  `json:"symbol"`
	FirstUpdateID         uint64  `json:"first_update_id"`
	FinalUpdateID         uint64  `json:"final_update_id"`
	PreviousFinalUpdateID *uint64 `json:"previous_final_update_id,omitempty"`
	Bids                  []Level `json:"bids"`
	Asks                  []Level `json:"asks"`
	// Checksum is an optional exchange-supplied integrity checksum over the
	// top-of-book levels after this update is applied (mirrors the checksum
	// field some venues, e.g. OKX, embed in depth messages; the reference
	// Binance-style wire format in spec §6 does not send one, so this is
	// nil in that path).
	Checksum *uint32 `json:"checksum,omitempty"`
}

// Kind implements Object.
func (u *OrderbookUpdate) Kind() Kind { return KindOrderbookUpdate }

// GetHeader implements Object.
func (u *OrderbookUpdate) GetHeader() *Header { return &u.Header }

// OrderbookStatus is the health state of a maintained book.
type OrderbookStatus string

// The closed set of book health states.
const (
	StatusTicking OrderbookStatus = "ticking"
	StatusCrossed OrderbookStatus = "crossed"
	StatusError   OrderbookStatus = "error"
	StatusStale   OrderbookStatus = "stale"
)

// OrderbookSnapshot is the normalized, wire-transmissible form of a full
// book state: a flat, pre-sorted slice per side rather than the unordered
// price->quantity maps the live Orderbook state machine keeps.
// Bids are ordered best (highest) first; Asks are ordered best (lowest)
// first.
type OrderbookSnapshot struct {
	Header       Header          `json:"header"`
	Symbol       string          `json:"symbol"`
	FirstUpdate  bool            `json:"first_update"`
	LastUpdateID uint64          `json:"last_update_id"`
	Status       OrderbookStatus `json:"status"`
	Bids         []Level         `json:"bids"`
	Asks         []Level         `json:"asks"`
}

// Kind implements Object.
func (s *OrderbookSnapshot) Kind() Kind { return KindOrderbookSnapshot }

// GetHeader implements Object.
func (s *OrderbookSnapshot) GetHeader() *Header { return &s.Header }

// OrderSide is the side of a NewOrder.
type OrderSide string

// Order sides.
const (
	SideBuy  OrderSide = "buy"
	SideSell OrderSide = "sell"
)

// NewOrder is a normalized order-placement request. Execution/routing
// semantics are explicitly out of scope (see spec Non-goals); this type
// exists purely as a plugin point in the object model so strategy
// processors have somewhere to emit intents.
type NewOrder struct {
	Header        Header    `json:"header"`
	Symbol        string    `json:"symbol"`
	Side          OrderSide `json:"side"`
	Price         string    `json:"price"`
	Quantity      string    `json:"quantity"`
	ClientOrderID string    `json:"client_order_id"`
}

// Kind implements Object.
func (o *NewOrder) Kind() Kind { return KindNewOrder }

// GetHeader implements Object.
func (o *NewOrder) GetHeader() *Header { return &o.Header }
