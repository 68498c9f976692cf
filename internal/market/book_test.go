package market

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/obsidian-labs/marketdata-pipeline/internal/fixedpoint"
	"github.com/obsidian-labs/marketdata-pipeline/internal/object"
)

func mustPrice(t *testing.T, s string) fixedpoint.FixedPrice {
	t.Helper()
	p, err := fixedpoint.ParsePrice(s)
	require.NoError(t, err)
	return p
}

func mustQty(t *testing.T, s string) fixedpoint.FixedQty {
	t.Helper()
	q, err := fixedpoint.ParseQty(s)
	require.NoError(t, err)
	return q
}

func newTestBook(t *testing.T) *Book {
	t.Helper()
	snap := &object.OrderbookSnapshot{
		Symbol:       "BTCUSDT",
		LastUpdateID: 10,
		Bids:         []object.Level{{Price: mustPrice(t, "100"), Quantity: mustQty(t, "1")}},
		Asks:         []object.Level{{Price: mustPrice(t, "101"), Quantity: mustQty(t, "1")}},
	}
	b, err := NewBookFromSnapshot(snap)
	require.NoError(t, err)
	return b
}

func TestApplyContinuousUpdate(t *testing.T) {
	t.Parallel()
	b := newTestBook(t)
	u := &object.OrderbookUpdate{
		Symbol:        "BTCUSDT",
		FirstUpdateID: 11,
		FinalUpdateID: 12,
		Bids:          []object.Level{{Price: mustPrice(t, "100"), Quantity: mustQty(t, "2")}},
	}
	require.NoError(t, b.Apply(u))
	assert.Equal(t, uint64(12), b.LastUpdateID)
	assert.Equal(t, object.StatusTicking, b.Status)
	_, qty := b.BestBid()
	assert.Equal(t, "2", qty.String())
}

func TestApplyPreSnapshotUpdateDropped(t *testing.T) {
	t.Parallel()
	b := newTestBook(t)
	u := &object.OrderbookUpdate{Symbol: "BTCUSDT", FirstUpdateID: 5, FinalUpdateID: 8}
	require.NoError(t, b.Apply(u))
	assert.Equal(t, uint64(10), b.LastUpdateID)
	assert.Equal(t, object.StatusTicking, b.Status)
}

func TestApplyGapBeyondThresholdMarksStale(t *testing.T) {
	t.Parallel()
	b := newTestBook(t)
	b.LastUpdateID = 2 * GapStaleThreshold
	u := &object.OrderbookUpdate{Symbol: "BTCUSDT", FirstUpdateID: 1, FinalUpdateID: b.LastUpdateID - GapStaleThreshold - 1}
	require.NoError(t, b.Apply(u))
	assert.Equal(t, object.StatusStale, b.Status)
}

func TestApplyFirstUpdateGateFailureMarksError(t *testing.T) {
	t.Parallel()
	b := newTestBook(t)
	u := &object.OrderbookUpdate{Symbol: "BTCUSDT", FirstUpdateID: 20, FinalUpdateID: 25}
	require.NoError(t, b.Apply(u))
	assert.Equal(t, object.StatusError, b.Status)
	// first_update is only cleared on a successful gate check, so the next
	// update is still evaluated against the first-update gate, not continuity.
	assert.True(t, b.FirstUpdate)
}

func TestApplyContinuityGateFailureMarksError(t *testing.T) {
	t.Parallel()
	b := newTestBook(t)
	first := &object.OrderbookUpdate{Symbol: "BTCUSDT", FirstUpdateID: 9, FinalUpdateID: 11}
	require.NoError(t, b.Apply(first))
	require.False(t, b.FirstUpdate)
	require.Equal(t, object.StatusTicking, b.Status)

	u := &object.OrderbookUpdate{Symbol: "BTCUSDT", FirstUpdateID: 20, FinalUpdateID: 25}
	require.NoError(t, b.Apply(u))
	assert.Equal(t, object.StatusError, b.Status)
	assert.Equal(t, uint64(11), b.LastUpdateID)
}

func TestApplyCrossedMarket(t *testing.T) {
	t.Parallel()
	b := newTestBook(t)
	u := &object.OrderbookUpdate{
		Symbol:        "BTCUSDT",
		FirstUpdateID: 11,
		FinalUpdateID: 12,
		Bids:          []object.Level{{Price: mustPrice(t, "200"), Quantity: mustQty(t, "1")}},
	}
	require.NoError(t, b.Apply(u))
	assert.Equal(t, object.StatusCrossed, b.Status)
}

func TestApplyRemovalLevel(t *testing.T) {
	t.Parallel()
	b := newTestBook(t)
	u := &object.OrderbookUpdate{
		Symbol:        "BTCUSDT",
		FirstUpdateID: 11,
		FinalUpdateID: 12,
		Bids:          []object.Level{{Price: mustPrice(t, "100"), Quantity: fixedpoint.ZeroQty}},
	}
	require.NoError(t, b.Apply(u))
	bidP, _ := b.BestBid()
	assert.True(t, bidP.IsZero())
}

func TestApplyNilUpdate(t *testing.T) {
	t.Parallel()
	b := newTestBook(t)
	assert.ErrorIs(t, b.Apply(nil), ErrNilUpdate)
}

func TestNewBookFromSnapshotValidation(t *testing.T) {
	t.Parallel()
	_, err := NewBookFromSnapshot(nil)
	assert.ErrorIs(t, err, ErrNilSnapshot)

	_, err = NewBookFromSnapshot(&object.OrderbookSnapshot{})
	assert.ErrorIs(t, err, ErrSymbolEmpty)
}

func TestSpreadMidImbalance(t *testing.T) {
	t.Parallel()
	b := newTestBook(t)
	assert.Equal(t, "1", b.Spread().String())
	assert.Equal(t, "100.5", b.Mid().String())
	assert.Equal(t, "0.5", b.Imbalance().String())
}

func TestWeightedSpreadConsumesAcrossLevels(t *testing.T) {
	t.Parallel()
	snap := &object.OrderbookSnapshot{
		Symbol:       "ETHUSDT",
		LastUpdateID: 1,
		Bids: []object.Level{
			{Price: mustPrice(t, "100"), Quantity: mustQty(t, "1")},
			{Price: mustPrice(t, "99"), Quantity: mustQty(t, "5")},
		},
		Asks: []object.Level{
			{Price: mustPrice(t, "101"), Quantity: mustQty(t, "1")},
			{Price: mustPrice(t, "102"), Quantity: mustQty(t, "5")},
		},
	}
	b, err := NewBookFromSnapshot(snap)
	require.NoError(t, err)
	v := mustQty(t, "2")
	// asks: 1*101 + 1*102 = 203; bids: 1*100 + 1*99 = 199
	assert.Equal(t, "4", b.WeightedSpread(v).String())
}

func TestToSnapshotOrdering(t *testing.T) {
	t.Parallel()
	snap := &object.OrderbookSnapshot{
		Symbol:       "BTCUSDT",
		LastUpdateID: 1,
		Bids: []object.Level{
			{Price: mustPrice(t, "99"), Quantity: mustQty(t, "1")},
			{Price: mustPrice(t, "100"), Quantity: mustQty(t, "1")},
		},
		Asks: []object.Level{
			{Price: mustPrice(t, "102"), Quantity: mustQty(t, "1")},
			{Price: mustPrice(t, "101"), Quantity: mustQty(t, "1")},
		},
	}
	b, err := NewBookFromSnapshot(snap)
	require.NoError(t, err)
	out := b.ToSnapshot(object.Header{})
	require.Len(t, out.Bids, 2)
	require.Len(t, out.Asks, 2)
	assert.Equal(t, "100", out.Bids[0].Price.String())
	assert.Equal(t, "101", out.Asks[0].Price.String())
}

func TestInvalidate(t *testing.T) {
	t.Parallel()
	b := newTestBook(t)
	b.Invalidate()
	assert.Equal(t, object.StatusError, b.Status)
}

func TestChecksumStableForSameState(t *testing.T) {
	t.Parallel()
	b := newTestBook(t)
	assert.Equal(t, b.Checksum(3), b.Checksum(3))
}

func TestApplyChecksumMismatchMarksStale(t *testing.T) {
	t.Parallel()
	b := newTestBook(t)
	bad := uint32(0)
	u := &object.OrderbookUpdate{
		Symbol:        "BTCUSDT",
		FirstUpdateID: 11,
		FinalUpdateID: 12,
		Checksum:      &bad,
	}
	require.NoError(t, b.Apply(u))
	assert.Equal(t, object.StatusStale, b.Status)
}
