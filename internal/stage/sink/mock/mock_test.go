package mock

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/obsidian-labs/marketdata-pipeline/internal/config"
	"github.com/obsidian-labs/marketdata-pipeline/internal/object"
)

func TestSinkStatsEmpty(t *testing.T) {
	t.Parallel()
	s, err := New(config.StageConfig{Name: "sink", QueueSize: 1})
	require.NoError(t, err)
	sink := s.(*Sink)
	count, last, avg := sink.Stats()
	assert.Zero(t, count)
	assert.Zero(t, last)
	assert.Zero(t, avg)
}

func TestSinkSendRecordsLag(t *testing.T) {
	t.Parallel()
	s, err := New(config.StageConfig{Name: "sink", QueueSize: 1})
	require.NoError(t, err)
	sink := s.(*Sink)
	require.NoError(t, sink.Init(t.Context()))

	hdr := object.NewHeader("src", "ex", "spot", 1)
	hdr.TimestampNs = time.Now().Add(-10 * time.Millisecond).UnixNano()
	msg := &object.Mock{Header: hdr}

	require.NoError(t, sink.Send(t.Context(), msg))
	count, last, avg := sink.Stats()
	assert.Equal(t, uint64(1), count)
	assert.Greater(t, last, time.Duration(0))
	assert.Greater(t, avg, time.Duration(0))
}
