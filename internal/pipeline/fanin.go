package pipeline

import (
	"context"
	"reflect"
	"sync"

	"github.com/obsidian-labs/marketdata-pipeline/internal/object"
)

// Fanin waits on all enabled inbound receivers concurrently and returns
// whichever is ready first (spec §4.5/§5: no global ordering is preserved
// across a fanin). A receiver whose channel is closed by its upstream is
// marked disabled permanently.
type Fanin struct {
	mu       sync.Mutex
	channels []namedChannel
	disabled []bool
}

// NewFanin wraps the given inbound channels.
func NewFanin(channels []namedChannel) *Fanin {
	return &Fanin{
		channels: channels,
		disabled: make([]bool, len(channels)),
	}
}

// Len returns the number of configured upstreams (including disabled ones).
func (f *Fanin) Len() int { return len(f.channels) }

// AllDisabled reports whether every upstream has been disabled.
func (f *Fanin) AllDisabled() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.allDisabledLocked()
}

func (f *Fanin) allDisabledLocked() bool {
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

// Recv blocks until one enabled upstream yields an object, ctx is done, or
// every upstream has been disabled (in which case err is
// ErrAllDownstreamsDisabled, reused here to mean "all upstreams gone").
func (f *Fanin) Recv(ctx context.Context) (object.Object, error) {
	f.mu.Lock()
	if f.allDisabledLocked() {
		f.mu.Unlock()
		return nil, ErrAllDownstreamsDisabled
	}
	type target struct {
		idx int
		ch  chan object.Object
	}
	targets := make([]target, 0, len(f.channels))
	for i, d := range f.disabled {
		if !d {
			targets = append(targets, target{idx: i, ch: f.channels[i].ch})
		}
	}
	f.mu.Unlock()

	cases := make([]reflect.SelectCase, 0, len(targets)+1)
	for _, tgt := range targets {
		cases = append(cases, reflect.SelectCase{Dir: reflect.SelectRecv, Chan: reflect.ValueOf(tgt.ch)})
	}
	cases = append(cases, reflect.SelectCase{Dir: reflect.SelectRecv, Chan: reflect.ValueOf(ctx.Done())})

	chosen, recv, recvOK := reflect.Select(cases)
	if chosen == len(targets) {
		return nil, ctx.Err()
	}
	if !recvOK {
		f.mu.Lock()
		f.disabled[targets[chosen].idx] = true
		allGone := f.allDisabledLocked()
		f.mu.Unlock()
		if allGone {
			return nil, ErrAllDownstreamsDisabled
		}
		return f.Recv(ctx)
	}
	return recv.Interface().(object.Object), nil
}
