// Package market implements the per-symbol order-book state machine
// (Book) and the symbol registry (Market) that owns one Book per actively
// tracked symbol plus the snapshot-pending/replay-queue bookkeeping
// described in spec §4.3.
package market

import (
	"errors"
	"fmt"
	"hash/crc32"
	"sort"
	"sync"

	"github.com/obsidian-labs/marketdata-pipeline/internal/fixedpoint"
	"github.com/obsidian-labs/marketdata-pipeline/internal/log"
	"github.com/obsidian-labs/marketdata-pipeline/internal/object"
)

// GapStaleThreshold is the maximum allowed distance between an update's
// final_update_id and the book's last_update_id, when the update arrives
// behind the book, before the book is declared Stale (spec §4.2 step 1).
const GapStaleThreshold = 20000

// Sentinel errors for Book operations. Per spec §7, ordering violations
// are data conditions recorded in Status, not returned as errors; these
// errors are reserved for programmer-misuse cases.
var (
	ErrNilUpdate   = errors.New("market: nil update")
	ErrNilSnapshot = errors.New("market: nil snapshot")
	ErrSymbolEmpty = errors.New("market: symbol is empty")
)

// Book is per-symbol order-book state. The owning orderbook-maintaining
// processor is its single writer; ToSnapshot is safe to call concurrently
// from HTTP control-plane handlers while the processor is writing, guarded
// by mu as a reader/writer lock (spec §5).
type Book struct {
	mu sync.RWMutex

	Symbol       string
	FirstUpdate  bool
	LastUpdateID uint64
	Status       object.OrderbookStatus

	bids map[fixedpoint.FixedPrice]fixedpoint.FixedQty
	asks map[fixedpoint.FixedPrice]fixedpoint.FixedQty
}

// NewBookFromSnapshot builds a Book from a normalized OrderbookSnapshot.
func NewBookFromSnapshot(snap *object.OrderbookSnapshot) (*Book, error) {
	if snap == nil {
		return nil, ErrNilSnapshot
	}
	if snap.Symbol == "" {
		return nil, ErrSymbolEmpty
	}
	b := &Book{
		Symbol:       snap.Symbol,
		FirstUpdate:  true,
		LastUpdateID: snap.LastUpdateID,
		Status:       object.StatusTicking,
		bids:         make(map[fixedpoint.FixedPrice]fixedpoint.FixedQty, len(snap.Bids)),
		asks:         make(map[fixedpoint.FixedPrice]fixedpoint.FixedQty, len(snap.Asks)),
	}
	for _, l := range snap.Bids {
		if l.Quantity.IsZero() {
			continue
		}
		b.bids[l.Price] = l.Quantity
	}
	for _, l := range snap.Asks {
		if l.Quantity.IsZero() {
			continue
		}
		b.asks[l.Price] = l.Quantity
	}
	return b, nil
}

// Apply runs the incoming update U against the book per the §4.2 state
// machine. It never returns an error for ordering violations; those mutate
// Status instead. A non-nil error here means the update itself was
// malformed (nil, or missing symbol). The caller (the orderbook maintainer
// processor) is responsible for inspecting Status after the call returns
// and dropping the book on StatusStale.
func (b *Book) Apply(u *object.OrderbookUpdate) error {
	if u == nil {
		return ErrNilUpdate
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	// Step 1: gap-to-past guard.
	if u.FinalUpdateID <= b.LastUpdateID {
		gap := b.LastUpdateID - u.FinalUpdateID
		if gap > GapStaleThreshold {
			log.Orderbook.Warnf("%s: gap %d exceeds stale threshold, marking Stale", b.Symbol, gap)
			b.Status = object.StatusStale
		}
		// Either way the update itself is discarded: it is pre-snapshot,
		// or the book is already being torn down.
		return nil
	}

	// Step 2/3: first-update gate or continuity gate.
	if b.FirstUpdate {
		if !(u.FirstUpdateID <= b.LastUpdateID+1 && u.FinalUpdateID > b.LastUpdateID) {
			log.Orderbook.Warnf("%s: first update failed gate U=%d u=%d last=%d", b.Symbol, u.FirstUpdateID, u.FinalUpdateID, b.LastUpdateID)
			b.Status = object.StatusError
			return nil
		}
		b.FirstUpdate = false
	} else if u.FirstUpdateID != b.LastUpdateID+1 {
		log.Orderbook.Warnf("%s: continuity gate failed U=%d expected=%d", b.Symbol, u.FirstUpdateID, b.LastUpdateID+1)
		b.Status = object.StatusError
		return nil
	}

	// Step 4: apply.
	applySide(b.bids, u.Bids)
	applySide(b.asks, u.Asks)

	// Step 5: post-apply check.
	status := object.StatusTicking
	bestBidPrice, _ := bestOf(b.bids, true)
	bestAskPrice, _ := bestOf(b.asks, false)
	if !bestBidPrice.IsZero() && !bestAskPrice.IsZero() && bestBidPrice.GreaterThanOrEqual(bestAskPrice) {
		status = object.StatusCrossed
	}

	// Step 6.
	b.LastUpdateID = u.FinalUpdateID
	b.Status = status

	if u.Checksum != nil {
		if got := b.checksumLocked(3); got != *u.Checksum {
			log.Orderbook.Warnf("%s: checksum mismatch got=%d want=%d, marking Stale", b.Symbol, got, *u.Checksum)
			b.Status = object.StatusStale
		}
	}
	return nil
}

func applySide(side map[fixedpoint.FixedPrice]fixedpoint.FixedQty, levels []object.Level) {
	for _, l := range levels {
		if l.IsRemoval() {
			delete(side, l.Price)
			continue
		}
		side[l.Price] = l.Quantity
	}
}

// bestOf returns the best price/qty in side; wantMax selects the bid side
// (highest price wins), false selects the ask side (lowest price wins).
func bestOf(side map[fixedpoint.FixedPrice]fixedpoint.FixedQty, wantMax bool) (fixedpoint.FixedPrice, fixedpoint.FixedQty) {
	var bestPrice fixedpoint.FixedPrice
	var bestQty fixedpoint.FixedQty
	first := true
	for price, qty := range side {
		if first {
			bestPrice, bestQty, first = price, qty, false
			continue
		}
		if wantMax && price > bestPrice {
			bestPrice, bestQty = price, qty
		} else if !wantMax && price < bestPrice {
			bestPrice, bestQty = price, qty
		}
	}
	return bestPrice, bestQty
}

// Invalidate marks the book Error without removing it from the registry,
// distinct from Market.Clear's outright removal (mirrors the teacher's
// InvalidateOrderbook idiom: an admin can force a resync without losing the
// book's identity mid-flight).
func (b *Book) Invalidate() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.Status = object.StatusError
}

// BestBid returns the highest bid price/quantity, zero values if empty.
func (b *Book) BestBid() (fixedpoint.FixedPrice, fixedpoint.FixedQty) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return bestOf(b.bids, true)
}

// BestAsk returns the lowest ask price/quantity, zero values if empty.
func (b *Book) BestAsk() (fixedpoint.FixedPrice, fixedpoint.FixedQty) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return bestOf(b.asks, false)
}

// Spread returns best_ask - best_bid.
func (b *Book) Spread() fixedpoint.FixedPrice {
	bidP, _ := b.BestBid()
	askP, _ := b.BestAsk()
	return askP.Sub(bidP)
}

// Mid returns (best_ask + best_bid) / 2.
func (b *Book) Mid() fixedpoint.FixedPrice {
	bidP, _ := b.BestBid()
	askP, _ := b.BestAsk()
	return askP.Add(bidP).Half()
}

// Imbalance returns best_bid_qty / (best_bid_qty + best_ask_qty), or zero
// if the denominator is zero.
func (b *Book) Imbalance() fixedpoint.FixedQty {
	_, bidQ := b.BestBid()
	_, askQ := b.BestAsk()
	denom := bidQ.Add(askQ)
	if denom.IsZero() {
		return 0
	}
	v, err := bidQ.Div(denom)
	if err != nil {
		log.Orderbook.Errorf("%s: imbalance division error: %v", b.Symbol, err)
		return 0
	}
	return v
}

// WeightedMid returns imbalance*best_ask + (1-imbalance)*best_bid.
func (b *Book) WeightedMid() fixedpoint.FixedPrice {
	bidP, _ := b.BestBid()
	askP, _ := b.BestAsk()
	imb := b.Imbalance()
	one := fixedpoint.QtyFromInt(1)
	oneMinusImb := one.Sub(imb)
	return imb.MulPrice(askP).Add(oneMinusImb.MulPrice(bidP))
}

// Microprice returns mid + imbalance. The factor of 1 on imbalance is
// intentional per spec §4.2/§9: it matches the teacher's source even
// though it is dimensionally unusual (imbalance is a unitless ratio in
// [0,1] being added directly to a price). Flagged, not silently fixed.
func (b *Book) Microprice() fixedpoint.FixedPrice {
	mid := b.Mid()
	imb := b.Imbalance()
	return mid.Add(fixedpoint.FixedPrice(imb))
}

// WeightedSpread walks levels from the best on each side, consuming
// quantity until v is exhausted, accumulating price*used_qty per side, and
// returns ask-side sum minus bid-side sum. If a side runs out before v is
// consumed, whatever was accumulated on that side is used (spec §4.2; the
// thin-book semantics are an explicit open question, see DESIGN.md).
func (b *Book) WeightedSpread(v fixedpoint.FixedQty) fixedpoint.FixedPrice {
	b.mu.RLock()
	defer b.mu.RUnlock()
	askSum := weightedWalk(b.asks, v, false)
	bidSum := weightedWalk(b.bids, v, true)
	return askSum.Sub(bidSum)
}

func weightedWalk(side map[fixedpoint.FixedPrice]fixedpoint.FixedQty, v fixedpoint.FixedQty, descending bool) fixedpoint.FixedPrice {
	prices := make([]fixedpoint.FixedPrice, 0, len(side))
	for p := range side {
		prices = append(prices, p)
	}
	sort.Slice(prices, func(i, j int) bool {
		if descending {
			return prices[i] > prices[j]
		}
		return prices[i] < prices[j]
	})
	var sum fixedpoint.FixedPrice
	remaining := v
	for _, p := range prices {
		if remaining.IsZero() {
			break
		}
		qty := side[p]
		used := qty
		if used > remaining {
			used = remaining
		}
		sum = sum.Add(used.MulPrice(p))
		remaining = remaining.Sub(used)
	}
	return sum
}

// Checksum computes a CRC32 checksum over the top `depth` levels on each
// side, interleaved bid/ask, formatted as "price:qty" strings. This mirrors
// the checksum scheme used by venues that embed one in depth messages
// (e.g. OKX); it is consulted only when an incoming update carries a
// non-nil Checksum field.
func (b *Book) Checksum(depth int) uint32 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.checksumLocked(depth)
}

func (b *Book) checksumLocked(depth int) uint32 {
	bidPrices := sortedPrices(b.bids, true)
	askPrices := sortedPrices(b.asks, false)
	var sb []byte
	for i := 0; i < depth; i++ {
		if i < len(bidPrices) {
			p := bidPrices[i]
			sb = append(sb, fmt.Sprintf("%s:%s:", p, b.bids[p])...)
		}
		if i < len(askPrices) {
			p := askPrices[i]
			sb = append(sb, fmt.Sprintf("%s:%s:", p, b.asks[p])...)
		}
	}
	return crc32.ChecksumIEEE(sb)
}

func sortedPrices(side map[fixedpoint.FixedPrice]fixedpoint.FixedQty, descending bool) []fixedpoint.FixedPrice {
	prices := make([]fixedpoint.FixedPrice, 0, len(side))
	for p := range side {
		prices = append(prices, p)
	}
	sort.Slice(prices, func(i, j int) bool {
		if descending {
			return prices[i] > prices[j]
		}
		return prices[i] < prices[j]
	})
	return prices
}

// ToSnapshot renders the current state as a normalized OrderbookSnapshot,
// bids descending (best first), asks ascending (best first).
func (b *Book) ToSnapshot(hdr object.Header) *object.OrderbookSnapshot {
	b.mu.RLock()
	defer b.mu.RUnlock()
	bidPrices := sortedPrices(b.bids, true)
	askPrices := sortedPrices(b.asks, false)
	bids := make([]object.Level, 0, len(bidPrices))
	for _, p := range bidPrices {
		bids = append(bids, object.Level{Price: p, Quantity: b.bids[p]})
	}
	asks := make([]object.Level, 0, len(askPrices))
	for _, p := range askPrices {
		asks = append(asks, object.Level{Price: p, Quantity: b.asks[p]})
	}
	return &object.OrderbookSnapshot{
		Header:       hdr,
		Symbol:       b.Symbol,
		FirstUpdate:  b.FirstUpdate,
		LastUpdateID: b.LastUpdateID,
		Status:       b.Status,
		Bids:         bids,
		Asks:         asks,
	}
}
