// Package control implements the out-of-band control channel every stage
// driver selects over alongside its data path (spec §4.5). It mirrors the
// teacher's exchange/stream.Relay: a typed wrapper over a buffered channel
// with a bounded, non-blocking Send and an explicit Close.
package control

import (
	"context"
	"errors"

	"github.com/obsidian-labs/marketdata-pipeline/internal/object"
)

// errChannelBufferFull is returned by Send when the relay's buffer is full;
// control channels are unbounded in spec terms (§5: "control traffic is low
// volume"), so callers size the Relay generously and treat this as a bug
// signal rather than routine backpressure.
var errChannelBufferFull = errors.New("control: relay buffer is full")

// Message is carried over a stage's control channel: either an Inject of a
// normalized object (re-entering the fanout path as if produced locally),
// or a SleepTime directive forwarded to sources as a throttle.
type Message struct {
	Data any
}

// Inject wraps an object to be injected into a stage's fanout.
type Inject struct {
	Object object.Object
}

// SleepTime wraps a throttle directive in milliseconds, forwarded to
// sources via set_sleep_time; ignored by processors and sinks.
type SleepTime struct {
	Milliseconds uint64
}

// Relay is a bounded control channel; it does not restrict how many
// goroutines may call Send.
type Relay struct {
	comm chan Message
	C    <-chan Message
}

// NewRelay constructs a Relay with the given buffer size. Panics if size is
// not positive, matching the teacher's stream.NewRelay contract.
func NewRelay(size int) *Relay {
	if size <= 0 {
		panic("control: relay buffer size must be greater than 0")
	}
	ch := make(chan Message, size)
	return &Relay{comm: ch, C: ch}
}

// Send enqueues data without blocking; returns errChannelBufferFull if the
// relay's buffer is already full, and ctx.Err() if ctx is already done.
func (r *Relay) Send(ctx context.Context, data any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	select {
	case r.comm <- Message{Data: data}:
		return nil
	default:
		return errChannelBufferFull
	}
}

// Close closes the underlying channel. Reading after Close drains any
// buffered messages and then yields a closed, empty channel.
func (r *Relay) Close() {
	close(r.comm)
}
