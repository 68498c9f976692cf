// Package pipeline is the runtime: a static graph of stages linked by
// bounded data channels, one driver task per stage, and a per-stage
// control channel (spec §2, §3, §4.5). The control channel is a
// control.Relay buffered to 256 messages; a send to a full relay fails
// rather than blocking, so control traffic is not unbounded.
package pipeline

import (
	"context"
	"fmt"
	"sync"

	"github.com/gorilla/mux"
	"github.com/pkg/errors"

	"github.com/obsidian-labs/marketdata-pipeline/internal/config"
	"github.com/obsidian-labs/marketdata-pipeline/internal/control"
	"github.com/obsidian-labs/marketdata-pipeline/internal/log"
	"github.com/obsidian-labs/marketdata-pipeline/internal/object"
)

// Factory builds a concrete Stage from its config entry. Registered per
// stage Type string by the process wiring code (spec §9: the pipeline
// never needs to know the concrete kind, only this uniform constructor).
type Factory func(cfg config.StageConfig) (Stage, error)

type runtimeStage struct {
	cfg     config.StageConfig
	stage   Stage
	control *control.Relay
	fanin   *Fanin  // nil for sources
	fanout  *Fanout // nil for sinks
}

// Pipeline owns every stage instance and every channel for the lifetime of
// the process. It is built once from a Config and a Factory registry and
// then started; it cannot be rewired at runtime (spec §3: "static at
// startup").
type Pipeline struct {
	cfg    *config.Config
	stages map[string]*runtimeStage
	order  []string
	wg     sync.WaitGroup
}

// Build wires a Pipeline from cfg using factories keyed by each stage's
// configured Type. Returns ErrConfigError wrapped with context if any
// stage type is unregistered or any downstream name is unresolvable;
// cfg.Validate has already been run by config.Load, but Build re-derives
// the channel graph from scratch so it re-checks independently of how cfg
// was obtained.
func Build(cfg *config.Config, factories map[string]Factory) (*Pipeline, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConfigError, err)
	}

	p := &Pipeline{cfg: cfg, stages: make(map[string]*runtimeStage)}

	all := cfg.AllStages()
	for _, sc := range all {
		factory, ok := factories[sc.Type]
		if !ok {
			return nil, fmt.Errorf("%w: no factory registered for stage type %q (stage %q)", ErrConfigError, sc.Type, sc.Name)
		}
		st, err := factory(sc)
		if err != nil {
			return nil, fmt.Errorf("%w: building stage %q: %w", ErrConfigError, sc.Name, err)
		}
		p.stages[sc.Name] = &runtimeStage{cfg: sc, stage: st, control: control.NewRelay(256)}
		p.order = append(p.order, sc.Name)
	}

	// Wire one channel per (producer, downstream) edge: the producer holds
	// the sender, the consumer appends the receiver to its fanin.
	inbound := make(map[string][]namedChannel)
	outbound := make(map[string][]namedChannel)
	for _, sc := range all {
		for _, downName := range sc.Downstreams {
			ch := make(chan object.Object, sc.QueueSize)
			outbound[sc.Name] = append(outbound[sc.Name], namedChannel{downstream: downName, ch: ch})
			inbound[downName] = append(inbound[downName], namedChannel{downstream: sc.Name, ch: ch})
		}
	}

	for _, sc := range all {
		rs := p.stages[sc.Name]
		if len(outbound[sc.Name]) > 0 {
			rs.fanout = NewFanout(outbound[sc.Name])
		}
		if len(inbound[sc.Name]) > 0 {
			rs.fanin = NewFanin(inbound[sc.Name])
		}
	}

	for _, rs := range p.stages {
		if aware, ok := rs.stage.(ControlAware); ok {
			aware.SetDispatcher(p.dispatch)
		}
	}

	return p, nil
}

// dispatch delivers data onto the named stage's control channel. It is the
// concrete Dispatcher handed to every ControlAware stage and to the HTTP
// control plane.
func (p *Pipeline) dispatch(ctx context.Context, stageName string, data any) error {
	rs, ok := p.stages[stageName]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownStage, stageName)
	}
	return errors.Wrapf(rs.control.Send(ctx, data), "dispatch to %q", stageName)
}

// Start initializes every stage and spawns its driver task. It returns as
// soon as all stages have been spun up; drivers run until the context is
// cancelled or they self-terminate (completion, all-downstreams-disabled,
// all-upstreams-disabled). Call Wait to block for every driver to exit.
func (p *Pipeline) Start(ctx context.Context) error {
	for _, name := range p.order {
		rs := p.stages[name]
		if err := rs.stage.Init(ctx); err != nil {
			return fmt.Errorf("%w: stage %q: %w", ErrConnectError, name, err)
		}
	}

	for _, name := range p.order {
		rs := p.stages[name]
		p.wg.Add(1)
		go func(rs *runtimeStage) {
			defer p.wg.Done()
			switch st := rs.stage.(type) {
			case Source:
				if rs.fanout == nil {
					log.Pipeline.Warnf("%s: source has no downstreams configured, nothing to drive", rs.cfg.Name)
					return
				}
				RunSource(ctx, st, rs.control, rs.fanout)
			case Processor:
				if rs.fanin == nil {
					log.Pipeline.Warnf("%s: processor has no upstreams wired, nothing to drive", rs.cfg.Name)
					return
				}
				RunProcessor(ctx, st, rs.control, rs.fanin, rs.fanout)
			case Sink:
				if rs.fanin == nil {
					log.Pipeline.Warnf("%s: sink has no upstreams wired, nothing to drive", rs.cfg.Name)
					return
				}
				RunSink(ctx, st, rs.control, rs.fanin)
			}
		}(rs)
	}
	return nil
}

// Wait blocks until every driver task has exited.
func (p *Pipeline) Wait() {
	p.wg.Wait()
}

// ControlChannel returns the control relay for the named stage, used by the
// HTTP control plane to dispatch Inject/SleepTime directives (spec §6).
func (p *Pipeline) ControlChannel(stageName string) (*control.Relay, error) {
	rs, ok := p.stages[stageName]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownStage, stageName)
	}
	return rs.control, nil
}

// Endpoints aggregates every stage's HTTP route contributions under a
// router with the given name prefix (spec §6: "/<stage-name>/...").
func (p *Pipeline) Endpoints(router *mux.Router) {
	for _, name := range p.order {
		rs := p.stages[name]
		sub := router.PathPrefix("/" + name).Subrouter()
		rs.stage.Endpoints(sub)
	}
}

// StageNames returns every configured stage name.
func (p *Pipeline) StageNames() []string {
	out := make([]string, len(p.order))
	copy(out, p.order)
	return out
}
