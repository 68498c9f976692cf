package pipeline

import (
	"context"

	"github.com/obsidian-labs/marketdata-pipeline/internal/control"
	"github.com/obsidian-labs/marketdata-pipeline/internal/log"
	"github.com/obsidian-labs/marketdata-pipeline/internal/object"
)

type recvResult struct {
	obj       object.Object
	completed bool
	err       error
}

// dispatchExtension is consulted by the driver loops for control data that
// isn't one of the universal Inject/SleepTime messages. If stage implements
// ControlMessageHandler, the directive is handed off to it; anything else,
// or a handler error, is a control protocol violation and terminates the
// driver (spec §7).
func dispatchExtension(ctx context.Context, name string, stage Stage, data any) bool {
	h, ok := stage.(ControlMessageHandler)
	if !ok {
		log.Control.Errorf("%s: %v: %T", name, ErrControlProtocol, data)
		return false
	}
	if err := h.HandleControlMessage(ctx, data); err != nil {
		log.Control.Errorf("%s: %v: %v", name, ErrControlProtocol, err)
		return false
	}
	return true
}

// RunSource drives a Source: races its control channel against a recv
// loop, fanning out both normally-produced and injected objects through
// the same Fanout path (spec §4.5, §9).
func RunSource(ctx context.Context, src Source, ctrl *control.Relay, out *Fanout) {
	name := src.Name()
	dataCh := make(chan recvResult)
	go func() {
		defer close(dataCh)
		for {
			obj, completed, err := src.Recv(ctx)
			select {
			case dataCh <- recvResult{obj: obj, completed: completed, err: err}:
			case <-ctx.Done():
				return
			}
			if err != nil || completed {
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			log.Pipeline.Infof("%s: context cancelled, driver exiting", name)
			return
		case msg, ok := <-ctrl.C:
			if !ok {
				log.Pipeline.Infof("%s: control channel closed, driver exiting", name)
				return
			}
			switch m := msg.Data.(type) {
			case control.Inject:
				if err := out.Send(ctx, name, m.Object); err != nil {
					log.Pipeline.Warnf("%s: fanout terminated: %v", name, err)
					return
				}
			case control.SleepTime:
				src.SetSleepTime(m.Milliseconds)
			default:
				if !dispatchExtension(ctx, name, src, msg.Data) {
					return
				}
			}
		case res, ok := <-dataCh:
			if !ok {
				return
			}
			if res.err != nil {
				log.Source.Errorf("%s: recv error: %v", name, res.err)
				return
			}
			if res.obj == nil {
				if res.completed {
					log.Pipeline.Infof("%s: source completed, driver exiting", name)
					return
				}
				continue
			}
			if err := out.Send(ctx, name, res.obj); err != nil {
				log.Pipeline.Warnf("%s: fanout terminated: %v", name, err)
				return
			}
		}
	}
}

// RunProcessor drives a Processor: races its control channel against its
// fanin, passing every object (data-path or injected) through Execute
// before fanning out the result.
func RunProcessor(ctx context.Context, proc Processor, ctrl *control.Relay, in *Fanin, out *Fanout) {
	name := proc.Name()
	dataCh := make(chan recvResult)
	go func() {
		defer close(dataCh)
		for {
			obj, err := in.Recv(ctx)
			select {
			case dataCh <- recvResult{obj: obj, err: err}:
			case <-ctx.Done():
				return
			}
			if err != nil {
				return
			}
		}
	}()

	process := func(input object.Object) bool {
		result, completed, err := proc.Execute(ctx, input)
		if err != nil {
			log.Processor.Errorf("%s: execute error: %v", name, err)
			return true
		}
		if result == nil {
			if completed {
				log.Pipeline.Infof("%s: processor completed, driver exiting", name)
				return false
			}
			return true
		}
		if err := out.Send(ctx, name, result); err != nil {
			log.Pipeline.Warnf("%s: fanout terminated: %v", name, err)
			return false
		}
		return true
	}

	for {
		select {
		case <-ctx.Done():
			log.Pipeline.Infof("%s: context cancelled, driver exiting", name)
			return
		case msg, ok := <-ctrl.C:
			if !ok {
				log.Pipeline.Infof("%s: control channel closed, driver exiting", name)
				return
			}
			switch m := msg.Data.(type) {
			case control.Inject:
				if !process(m.Object) {
					return
				}
			case control.SleepTime:
				proc.SetSleepTime(m.Milliseconds)
			default:
				if !dispatchExtension(ctx, name, proc, msg.Data) {
					return
				}
			}
		case res, ok := <-dataCh:
			if !ok {
				return
			}
			if res.err != nil {
				log.Processor.Errorf("%s: fanin error: %v", name, res.err)
				return
			}
			if !process(res.obj) {
				return
			}
		}
	}
}

// RunSink drives a Sink: races its control channel against its fanin,
// handing every object (data-path or injected) to Send.
func RunSink(ctx context.Context, sink Sink, ctrl *control.Relay, in *Fanin) {
	name := sink.Name()
	dataCh := make(chan recvResult)
	go func() {
		defer close(dataCh)
		for {
			obj, err := in.Recv(ctx)
			select {
			case dataCh <- recvResult{obj: obj, err: err}:
			case <-ctx.Done():
				return
			}
			if err != nil {
				return
			}
		}
	}()

	send := func(o object.Object) {
		if err := sink.Send(ctx, o); err != nil {
			log.Sink.Errorf("%s: send error: %v", name, err)
		}
	}

	for {
		select {
		case <-ctx.Done():
			log.Pipeline.Infof("%s: context cancelled, driver exiting", name)
			return
		case msg, ok := <-ctrl.C:
			if !ok {
				log.Pipeline.Infof("%s: control channel closed, driver exiting", name)
				return
			}
			switch m := msg.Data.(type) {
			case control.Inject:
				send(m.Object)
			case control.SleepTime:
				sink.SetSleepTime(m.Milliseconds)
			default:
				if !dispatchExtension(ctx, name, sink, msg.Data) {
					return
				}
			}
		case res, ok := <-dataCh:
			if !ok {
				return
			}
			if res.err != nil {
				log.Sink.Errorf("%s: fanin error: %v", name, res.err)
				return
			}
			send(res.obj)
		}
	}
}
