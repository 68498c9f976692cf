package object

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/obsidian-labs/marketdata-pipeline/internal/fixedpoint"
)

func TestMarshalUnmarshalRoundTrip(t *testing.T) {
	t.Parallel()

	price, err := fixedpoint.ParsePrice("100.5")
	require.NoError(t, err)
	qty, err := fixedpoint.ParseQty("2")
	require.NoError(t, err)

	upd := &OrderbookUpdate{
		Header:        NewHeader("test-source", "test-exchange", "spot", 1),
		Symbol:        "BTCUSDT",
		FirstUpdateID: 1,
		FinalUpdateID: 2,
		Bids:          []Level{{Price: price, Quantity: qty}},
	}

	raw, err := Marshal(upd)
	require.NoError(t, err)

	out, err := Unmarshal(raw)
	require.NoError(t, err)

	got, ok := out.(*OrderbookUpdate)
	require.True(t, ok)
	assert.Equal(t, upd.Symbol, got.Symbol)
	assert.Equal(t, upd.FirstUpdateID, got.FirstUpdateID)
	assert.Equal(t, upd.FinalUpdateID, got.FinalUpdateID)
	require.Len(t, got.Bids, 1)
	assert.Equal(t, "100.5", got.Bids[0].Price.String())
	assert.Equal(t, "2", got.Bids[0].Quantity.String())
}

func TestUnmarshalUnknownKind(t *testing.T) {
	t.Parallel()
	_, err := Unmarshal([]byte(`{"kind":"bogus","data":{}}`))
	assert.Error(t, err)
}

func TestMockRoundTrip(t *testing.T) {
	t.Parallel()
	m := &Mock{Header: NewHeader("src", "mock", "mock", 1), Payload: "hello"}
	raw, err := Marshal(m)
	require.NoError(t, err)
	out, err := Unmarshal(raw)
	require.NoError(t, err)
	got, ok := out.(*Mock)
	require.True(t, ok)
	assert.Equal(t, "hello", got.Payload)
}

func TestLevelIsRemoval(t *testing.T) {
	t.Parallel()
	l := Level{Quantity: fixedpoint.ZeroQty}
	assert.True(t, l.IsRemoval())

	qty, err := fixedpoint.ParseQty("1")
	require.NoError(t, err)
	l2 := Level{Quantity: qty}
	assert.False(t, l2.IsRemoval())
}
