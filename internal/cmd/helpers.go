package cmd

import (
	"github.com/dotdevdotdev/agentwire-sub003/internal/config"
	"github.com/dotdevdotdev/agentwire-sub003/internal/locator"
	"github.com/dotdevdotdev/agentwire-sub003/internal/machine"
	"github.com/dotdevdotdev/agentwire-sub003/internal/tmux"
)

// buildResolver loads the config and machine registry and wires the
// locator the way every command needs it.
func buildResolver() (*config.Config, *locator.Resolver, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, err
	}
	machines, err := machine.Load(cfg.MachinesFile)
	if err != nil {
		return nil, nil, err
	}
	resolver := &locator.Resolver{
		Local:        tmux.New(&tmux.LocalRunner{}),
		Machines:     machines,
		ProbeTimeout: cfg.Probe.Timeout.Duration,
	}
	return cfg, resolver, nil
}
