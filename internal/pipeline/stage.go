package pipeline

import (
	"context"

	"github.com/gorilla/mux"

	"github.com/obsidian-labs/marketdata-pipeline/internal/object"
)

// Dispatcher delivers a control message onto the named stage's control
// channel, used by stages (or their HTTP routes) that need to inject an
// object into, or throttle, a stage other than themselves — notably the
// reference websocket source's REST snapshot fetcher, which delivers the
// fetched OrderbookSnapshot to the orderbook-maintaining processor this
// way (spec §4.6, §9).
type Dispatcher func(ctx context.Context, stageName string, data any) error

// ControlAware is implemented by stages that need to dispatch control
// messages to themselves or to other stages. The Pipeline calls
// SetDispatcher once, before Init, on every stage implementing it.
type ControlAware interface {
	SetDispatcher(Dispatcher)
}

// ControlMessageHandler is an optional extension point for stage-specific
// control directives beyond the universal Inject/SleepTime pair (spec
// §4.5 names those two; §4.6's snapshot-fetch trigger is one such
// extension, implemented by the reference websocket source). Drivers
// consult this only for control data they don't otherwise recognize.
type ControlMessageHandler interface {
	HandleControlMessage(ctx context.Context, data any) error
}

// Stage is the capability interface every pipeline node implements,
// regardless of whether it is concretely a Source, Processor or Sink
// (spec §9: the pipeline never needs to know the concrete kind).
type Stage interface {
	// Name returns the stage's configured name, used for wiring and for
	// control-channel addressing.
	Name() string
	// Init acquires external resources (connections, files, ...). Returning
	// an error is fatal for this stage: its driver is never started.
	Init(ctx context.Context) error
	// QueueSize reports the configured inbound/outbound channel capacity.
	QueueSize() int
	// SetSleepTime applies a throttle directive in milliseconds. Sources
	// implement this meaningfully; processors and sinks may no-op.
	SetSleepTime(ms uint64)
	// Endpoints contributes this stage's HTTP routes under its namespace.
	Endpoints(router *mux.Router)
}

// Source produces objects with no upstream input.
type Source interface {
	Stage
	// Recv returns the next produced object. (nil, true, nil) means EOF:
	// the driver logs completion and exits without error. A non-nil error
	// is logged and terminates the driver.
	Recv(ctx context.Context) (obj object.Object, completed bool, err error)
}

// Processor consumes one object and produces zero or one object.
type Processor interface {
	Stage
	// Execute transforms in into an outbound object. (nil, true, nil)
	// means this processor is done: the driver logs completion and exits.
	// An error is logged and the next input is taken; it does not
	// terminate the driver (spec §7: a processor-level execute error does
	// not poison the pipeline).
	Execute(ctx context.Context, in object.Object) (obj object.Object, completed bool, err error)
}

// Sink consumes objects and terminates the chain.
type Sink interface {
	Stage
	// Send hands obj to the sink. An error is logged and the object
	// dropped; it does not terminate the driver.
	Send(ctx context.Context, obj object.Object) error
}

// BaseStage supplies no-op defaults for SetSleepTime and Endpoints so
// concrete stages only need to override what they actually use.
type BaseStage struct {
	StageName      string
	StageQueueSize int
}

// Name implements Stage.
func (b *BaseStage) Name() string { return b.StageName }

// QueueSize implements Stage.
func (b *BaseStage) QueueSize() int { return b.StageQueueSize }

// SetSleepTime is a no-op default; sources override it.
func (b *BaseStage) SetSleepTime(uint64) {}

// Endpoints is a no-op default; stages with HTTP contributions override it.
func (b *BaseStage) Endpoints(*mux.Router) {}
