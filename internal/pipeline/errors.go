package pipeline

import "errors"

// Sentinel errors surfaced by the pipeline runtime, matching the error
// kinds enumerated in spec §7.
var (
	// ErrConfigError is fatal at startup: an unknown stage kind or an
	// unresolvable downstream name.
	ErrConfigError = errors.New("pipeline: config error")
	// ErrConnectError is fatal for the stage whose Init failed; its driver
	// is never started.
	ErrConnectError = errors.New("pipeline: connect error")
	// ErrDownstreamDisabled marks a single fanout peer as gone; it is not
	// fatal to the driver, which continues with the remaining peers.
	ErrDownstreamDisabled = errors.New("pipeline: downstream disabled")
	// ErrAllDownstreamsDisabled is returned by Fanout.Send once every peer
	// has been disabled; the driver terminates on seeing it.
	ErrAllDownstreamsDisabled = errors.New("pipeline: all downstreams disabled")
	// ErrControlProtocol marks a malformed control message; the driver
	// terminates on seeing it.
	ErrControlProtocol = errors.New("pipeline: control protocol error")
	// ErrUnknownStage is returned when a config references a stage name
	// that was never declared.
	ErrUnknownStage = errors.New("pipeline: unknown stage name")
)
