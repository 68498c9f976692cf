package market

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/obsidian-labs/marketdata-pipeline/internal/object"
)

func TestMarketGetSetClear(t *testing.T) {
	t.Parallel()
	m := NewMarket()
	_, ok := m.Get("BTCUSDT")
	assert.False(t, ok)

	b := newTestBook(t)
	m.Set(b)
	got, ok := m.Get("BTCUSDT")
	require.True(t, ok)
	assert.Equal(t, b, got)

	m.Clear("BTCUSDT")
	_, ok = m.Get("BTCUSDT")
	assert.False(t, ok)
}

func TestMarketPendingLifecycle(t *testing.T) {
	t.Parallel()
	m := NewMarket()
	assert.False(t, m.IsPending("BTCUSDT"))
	m.SetPending("BTCUSDT")
	assert.True(t, m.IsPending("BTCUSDT"))
	m.ClearPending("BTCUSDT")
	assert.False(t, m.IsPending("BTCUSDT"))
}

func TestMarketPendingExpiresAfterDeadline(t *testing.T) {
	t.Parallel()
	m := NewMarket()
	m.FetchDeadline = time.Millisecond
	m.SetPending("BTCUSDT")
	time.Sleep(5 * time.Millisecond)
	assert.False(t, m.IsPending("BTCUSDT"))
}

func TestMarketReplayQueueCapacityPreserved(t *testing.T) {
	t.Parallel()
	m := NewMarket()
	m.QueueUpdate("BTCUSDT", &object.OrderbookUpdate{Symbol: "BTCUSDT"})
	m.QueueUpdate("BTCUSDT", &object.OrderbookUpdate{Symbol: "BTCUSDT"})

	out := m.TakeReplayQueue("BTCUSDT")
	require.Len(t, out, 2)

	assert.Nil(t, m.TakeReplayQueue("BTCUSDT"))

	m.QueueUpdate("BTCUSDT", &object.OrderbookUpdate{Symbol: "BTCUSDT"})
	out2 := m.TakeReplayQueue("BTCUSDT")
	require.Len(t, out2, 1)
}

func TestMarketSymbols(t *testing.T) {
	t.Parallel()
	m := NewMarket()
	m.Set(newTestBook(t))
	assert.Equal(t, []string{"BTCUSDT"}, m.Symbols())
}
