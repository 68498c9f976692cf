// Package object defines the normalized tagged-variant message model that
// flows through the pipeline: Mock, Kline, Trade, OrderbookSnapshot,
// OrderbookUpdate and NewOrder, each carrying a common Header.
package object

import (
	"time"

	"github.com/gofrs/uuid"
)

// Kind discriminates the normalized object variants.
type Kind string

// The closed set of normalized object kinds.
const (
	KindMock              Kind = "mock"
	KindKline             Kind = "kline"
	KindTrade             Kind = "trade"
	KindOrderbookSnapshot Kind = "orderbook_snapshot"
	KindOrderbookUpdate   Kind = "orderbook_update"
	KindNewOrder          Kind = "new_order"
)

// Header is present on every normalized message.
type Header struct {
	ID            uuid.UUID `json:"id"`
	TimestampNs   int64     `json:"timestamp_ns"`
	SequenceNr    uint64    `json:"sequence_nr"`
	CorrelationID uuid.UUID `json:"correlation_id"`
	Source        string    `json:"source"`
	Exchange      string    `json:"exchange"`
	AssetType     string    `json:"asset_type"`
}

// NewHeader mints a fresh id and correlation id and stamps the current wall
// clock time in nanoseconds, matching the reference source's behaviour of
// stamping the wire timestamp at read time.
func NewHeader(source, exchange, assetType string, seq uint64) Header {
	return Header{
		ID:            mustUUID(),
		TimestampNs:   time.Now().UnixNano(),
		SequenceNr:    seq,
		CorrelationID: mustUUID(),
		Source:        source,
		Exchange:      exchange,
		AssetType:     assetType,
	}
}

func mustUUID() uuid.UUID {
	id, err := uuid.NewV4()
	if err != nil {
		// uuid.NewV4 only fails if the system CSPRNG is broken, which is
		// unrecoverable; gocryptotrader's own uuid call sites treat this
		// the same way.
		panic(err)
	}
	return id
}

// Object is the tagged-variant interface implemented by every normalized
// message type. Pipeline stages operate on Object values.
type Object interface {
	Kind() Kind
	GetHeader() *Header
}
