package mock

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/obsidian-labs/marketdata-pipeline/internal/config"
	"github.com/obsidian-labs/marketdata-pipeline/internal/control"
	"github.com/obsidian-labs/marketdata-pipeline/internal/object"
	"github.com/obsidian-labs/marketdata-pipeline/internal/pipeline"
)

func TestRecvBlocksUntilCancelled(t *testing.T) {
	t.Parallel()
	st, err := New(config.StageConfig{Name: "src", QueueSize: 1})
	require.NoError(t, err)
	src := st.(*Source)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		obj, completed, err := src.Recv(ctx)
		assert.Nil(t, obj)
		assert.True(t, completed)
		assert.NoError(t, err)
		close(done)
	}()
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Recv did not return after context cancellation")
	}
}

func TestSetSleepTime(t *testing.T) {
	t.Parallel()
	st, err := New(config.StageConfig{Name: "src", QueueSize: 1})
	require.NoError(t, err)
	src := st.(*Source)
	src.SetSleepTime(250)
	assert.Equal(t, uint64(250), src.SleepTime())
}

func TestHandleInjectDispatches(t *testing.T) {
	t.Parallel()
	st, err := New(config.StageConfig{Name: "src", QueueSize: 1})
	require.NoError(t, err)
	src := st.(*Source)

	var captured any
	src.SetDispatcher(func(_ context.Context, stageName string, data any) error {
		assert.Equal(t, "src", stageName)
		captured = data
		return nil
	})

	router := mux.NewRouter()
	src.Endpoints(router)

	req := httptest.NewRequest(http.MethodPost, "/inject", bytes.NewBufferString(`{"payload":"hello"}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	inj, ok := captured.(control.Inject)
	require.True(t, ok)
	msg, ok := inj.Object.(*object.Mock)
	require.True(t, ok)
	assert.Equal(t, "hello", msg.Payload)
}

func TestHandleSleepTimeDispatches(t *testing.T) {
	t.Parallel()
	st, err := New(config.StageConfig{Name: "src", QueueSize: 1})
	require.NoError(t, err)
	src := st.(*Source)

	var captured any
	src.SetDispatcher(func(_ context.Context, _ string, data any) error {
		captured = data
		return nil
	})

	router := mux.NewRouter()
	src.Endpoints(router)

	req := httptest.NewRequest(http.MethodPost, "/sleep_time", bytes.NewBufferString(`{"sleep_time":500}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	st2, ok := captured.(control.SleepTime)
	require.True(t, ok)
	assert.Equal(t, uint64(500), st2.Milliseconds)
}

func TestHandleInjectWithoutDispatcher(t *testing.T) {
	t.Parallel()
	stg, err := New(config.StageConfig{Name: "src", QueueSize: 1})
	require.NoError(t, err)
	var _ pipeline.Stage = stg

	router := mux.NewRouter()
	stg.Endpoints(router)

	req := httptest.NewRequest(http.MethodPost, "/inject", bytes.NewBufferString(`{"payload":"x"}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}
