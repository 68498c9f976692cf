package pipeline

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/obsidian-labs/marketdata-pipeline/internal/config"
	"github.com/obsidian-labs/marketdata-pipeline/internal/object"
)

// stubSource produces a fixed number of Mock objects then reports
// completion, used to exercise Pipeline wiring end to end without any real
// network or file I/O.
type stubSource struct {
	BaseStage
	remaining int
}

func (s *stubSource) Init(context.Context) error { return nil }

func (s *stubSource) Recv(context.Context) (object.Object, bool, error) {
	if s.remaining <= 0 {
		return nil, true, nil
	}
	s.remaining--
	return &object.Mock{Payload: "x"}, false, nil
}

// stubSink records every object it receives.
type stubSink struct {
	BaseStage
	mu   sync.Mutex
	recv []object.Object
}

func (s *stubSink) Init(context.Context) error { return nil }

func (s *stubSink) Send(_ context.Context, obj object.Object) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.recv = append(s.recv, obj)
	return nil
}

func (s *stubSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.recv)
}

func testConfig() *config.Config {
	return &config.Config{
		Name:     "test",
		CtrlPort: 9999,
		Sources: []config.StageConfig{
			{Type: "stub.source", Name: "src", QueueSize: 4, Downstreams: []string{"sink1", "sink2"}},
		},
		Sinks: []config.StageConfig{
			{Type: "stub.sink", Name: "sink1", QueueSize: 4},
			{Type: "stub.sink", Name: "sink2", QueueSize: 4},
		},
	}
}

func testFactories(src *stubSource, sink1, sink2 *stubSink) map[string]Factory {
	return map[string]Factory{
		"stub.source": func(cfg config.StageConfig) (Stage, error) {
			src.BaseStage = BaseStage{StageName: cfg.Name, StageQueueSize: cfg.QueueSize}
			return src, nil
		},
		"stub.sink": func(cfg config.StageConfig) (Stage, error) {
			var s *stubSink
			switch cfg.Name {
			case "sink1":
				s = sink1
			case "sink2":
				s = sink2
			}
			s.BaseStage = BaseStage{StageName: cfg.Name, StageQueueSize: cfg.QueueSize}
			return s, nil
		},
	}
}

func TestBuildRejectsUnknownFactory(t *testing.T) {
	t.Parallel()
	cfg := testConfig()
	_, err := Build(cfg, map[string]Factory{})
	assert.ErrorIs(t, err, ErrConfigError)
}

func TestBuildRejectsUnknownDownstream(t *testing.T) {
	t.Parallel()
	cfg := testConfig()
	cfg.Sources[0].Downstreams = append(cfg.Sources[0].Downstreams, "ghost")
	_, err := Build(cfg, testFactories(&stubSource{}, &stubSink{}, &stubSink{}))
	require.Error(t, err)
}

func TestPipelineFansOutToEveryDownstream(t *testing.T) {
	t.Parallel()
	src := &stubSource{remaining: 5}
	sink1, sink2 := &stubSink{}, &stubSink{}

	p, err := Build(testConfig(), testFactories(src, sink1, sink2))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, p.Start(ctx))

	require.Eventually(t, func() bool {
		return sink1.count() == 5 && sink2.count() == 5
	}, 2*time.Second, 5*time.Millisecond)

	// The source has already completed on its own; cancelling unblocks the
	// two sinks, whose fanin has no other reason to return since their
	// upstream channels are never closed once the source driver exits.
	cancel()
	p.Wait()

	assert.Equal(t, 5, sink1.count())
	assert.Equal(t, 5, sink2.count())
}

func TestPipelineEndpointsAndStageNames(t *testing.T) {
	t.Parallel()
	src := &stubSource{remaining: 0}
	sink1, sink2 := &stubSink{}, &stubSink{}
	p, err := Build(testConfig(), testFactories(src, sink1, sink2))
	require.NoError(t, err)

	router := mux.NewRouter()
	p.Endpoints(router)
	assert.ElementsMatch(t, []string{"src", "sink1", "sink2"}, p.StageNames())
}

func TestDispatchUnknownStage(t *testing.T) {
	t.Parallel()
	src := &stubSource{}
	sink1, sink2 := &stubSink{}, &stubSink{}
	p, err := Build(testConfig(), testFactories(src, sink1, sink2))
	require.NoError(t, err)

	err = p.dispatch(context.Background(), "ghost", nil)
	assert.ErrorIs(t, err, ErrUnknownStage)
}
