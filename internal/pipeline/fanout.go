package pipeline

import (
	"context"
	"sync"

	"github.com/obsidian-labs/marketdata-pipeline/internal/log"
	"github.com/obsidian-labs/marketdata-pipeline/internal/object"
)

// namedChannel pairs a downstream stage name with the bounded data channel
// wired to it, so disablement and logging can name the peer.
type namedChannel struct {
	downstream string
	ch         chan object.Object
}

// Fanout sends the same object to every outbound sender concurrently.
// A peer whose send panics (because its consumer closed the channel on
// exit) is marked disabled permanently; the original channel slice is kept
// intact and iterated every time, filtering on the disabled set, so
// indices stay stable under concurrent Inject (spec §9).
type Fanout struct {
	mu       sync.Mutex
	channels []namedChannel
	disabled []bool
}

// NewFanout wraps the given outbound channels.
func NewFanout(channels []namedChannel) *Fanout {
	return &Fanout{
		channels: channels,
		disabled: make([]bool, len(channels)),
	}
}

// Len returns the number of configured downstreams (including disabled
// ones).
func (f *Fanout) Len() int { return len(f.channels) }

// AllDisabled reports whether every downstream has been disabled.
func (f *Fanout) AllDisabled() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.allDisabledLocked()
}

func (f *Fanout) allDisabledLocked() bool {
	if len(f.channels) == 0 {
		return true
	}
	for _, d := range f.disabled {
		if !d {
			return false
		}
	}
	return true
}

// Send delivers obj to every enabled downstream concurrently. It returns
// ErrAllDownstreamsDisabled once every peer has been disabled (including
// when there were never any configured downstreams); otherwise it returns
// nil even if some individual sends failed, since those peers have simply
// been dropped from the fanout and the driver continues.
func (f *Fanout) Send(ctx context.Context, stageName string, obj object.Object) error {
	f.mu.Lock()
	if f.allDisabledLocked() {
		f.mu.Unlock()
		return ErrAllDownstreamsDisabled
	}
	targets := make([]int, 0, len(f.channels))
	for i, d := range f.disabled {
		if !d {
			targets = append(targets, i)
		}
	}
	f.mu.Unlock()

	var wg sync.WaitGroup
	results := make([]error, len(targets))
	for n, idx := range targets {
		wg.Add(1)
		go func(n, idx int) {
			defer wg.Done()
			results[n] = sendOne(ctx, f.channels[idx].ch, obj)
		}(n, idx)
	}
	wg.Wait()

	f.mu.Lock()
	for n, idx := range targets {
		if results[n] != nil {
			log.Pipeline.Warnf("%s: downstream %q disabled: %v", stageName, f.channels[idx].downstream, results[n])
			f.disabled[idx] = true
		}
	}
	allGone := f.allDisabledLocked()
	f.mu.Unlock()

	if allGone {
		return ErrAllDownstreamsDisabled
	}
	return nil
}

// sendOne performs a single send, converting a panic from sending on a
// channel the consumer has closed into ErrDownstreamDisabled, and
// respecting ctx cancellation.
func sendOne(ctx context.Context, ch chan object.Object, obj object.Object) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = ErrDownstreamDisabled
		}
	}()
	select {
	case ch <- obj:
	case <-ctx.Done():
		return ctx.Err()
	}
	return nil
}
