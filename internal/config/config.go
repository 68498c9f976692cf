// Package config loads the pipeline's static configuration: the top-level
// process settings and the declarative stage graph (spec §6).
package config

import (
	"errors"
	"fmt"
)

// ErrConfigInvalid is returned by Validate for any structural problem;
// wrapped with more specific context via fmt.Errorf/%w.
var ErrConfigInvalid = errors.New("config: invalid configuration")

// Config is the top-level, file-loaded configuration.
type Config struct {
	Name            string            `json:"name" mapstructure:"name"`
	Version         string            `json:"version" mapstructure:"version"`
	LogLevel        string            `json:"log_level" mapstructure:"log_level"`
	Workers         int               `json:"workers" mapstructure:"workers"`
	StackSizeMiB    int               `json:"stack_size_mib" mapstructure:"stack_size_mib"`
	CtrlHost        string            `json:"ctrl_host" mapstructure:"ctrl_host"`
	CtrlPort        int               `json:"ctrl_port" mapstructure:"ctrl_port"`
	DiscoveryService *DiscoveryConfig `json:"discovery_service,omitempty" mapstructure:"discovery_service"`
	Gateway         *GatewayConfig    `json:"gateway,omitempty" mapstructure:"gateway"`
	Sources         []StageConfig     `json:"sources" mapstructure:"sources"`
	PUs             []StageConfig     `json:"pus,omitempty" mapstructure:"pus"`
	Sinks           []StageConfig     `json:"sinks" mapstructure:"sinks"`
}

// DiscoveryConfig is an opaque passthrough for an external service-discovery
// registration collaborator (spec §1: out of scope for this core).
type DiscoveryConfig struct {
	Enabled bool   `json:"enabled" mapstructure:"enabled"`
	URL     string `json:"url" mapstructure:"url"`
}

// GatewayConfig is an opaque passthrough for an external administrative
// HTTP gateway collaborator (spec §1: out of scope for this core).
type GatewayConfig struct {
	Enabled bool `json:"enabled" mapstructure:"enabled"`
}

// StageConfig is the tagged-variant entry for one pipeline node. Type
// selects which registered factory builds it; Settings carries
// stage-specific knobs (e.g. a websocket URL, symbol list, file base path)
// that each factory parses for itself, since the set of stage kinds is a
// plugin point rather than a closed enum known to this package.
type StageConfig struct {
	Type        string         `json:"type" mapstructure:"type"`
	Name        string         `json:"name" mapstructure:"name"`
	QueueSize   int            `json:"queue_size" mapstructure:"queue_size"`
	Downstreams []string       `json:"downstreams" mapstructure:"downstreams"`
	Settings    map[string]any `json:"settings" mapstructure:"settings"`
}

// AllStages returns every declared stage config (sources, PUs, sinks) in a
// single slice, used when building the downstream-name lookup table.
func (c *Config) AllStages() []StageConfig {
	out := make([]StageConfig, 0, len(c.Sources)+len(c.PUs)+len(c.Sinks))
	out = append(out, c.Sources...)
	out = append(out, c.PUs...)
	out = append(out, c.Sinks...)
	return out
}

// Validate checks structural invariants that must hold before the pipeline
// is wired: unique stage names and resolvable downstream references (spec
// §6: "the pipeline rejects startup if a name is unknown").
func (c *Config) Validate() error {
	if c.Name == "" {
		return fmt.Errorf("%w: name is required", ErrConfigInvalid)
	}
	if c.CtrlPort <= 0 {
		return fmt.Errorf("%w: ctrl_port must be positive", ErrConfigInvalid)
	}
	all := c.AllStages()
	names := make(map[string]bool, len(all))
	for _, s := range all {
		if s.Name == "" {
			return fmt.Errorf("%w: stage of type %q has an empty name", ErrConfigInvalid, s.Type)
		}
		if names[s.Name] {
			return fmt.Errorf("%w: duplicate stage name %q", ErrConfigInvalid, s.Name)
		}
		names[s.Name] = true
		if s.QueueSize <= 0 {
			return fmt.Errorf("%w: stage %q must have a positive queue_size", ErrConfigInvalid, s.Name)
		}
	}
	for _, s := range all {
		for _, d := range s.Downstreams {
			if !names[d] {
				return fmt.Errorf("%w: stage %q references unknown downstream %q", ErrConfigInvalid, s.Name, d)
			}
		}
	}
	for _, s := range c.Sinks {
		if len(s.Downstreams) != 0 {
			return fmt.Errorf("%w: sink %q must not declare downstreams", ErrConfigInvalid, s.Name)
		}
	}
	return nil
}
