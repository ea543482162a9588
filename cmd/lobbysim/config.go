package main

import (
	"fmt"

	"github.com/BurntSushi/toml"

	"twilink-go/lobby"
	"twilink-go/x/mathx"
)

// Config maps lobbysim.toml keys onto simulation settings.
type Config struct {
	Devices       int   `toml:"devices"`
	BusBusyChecks uint8 `toml:"bus_busy_checks"`
	AbortWhenBusy bool  `toml:"abort_when_busy"`
	JoinStaggerMs int   `toml:"join_stagger_ms"`
	TraceQueue    int   `toml:"trace_queue"`
}

func defaultConfig() Config {
	return Config{
		Devices:       4,
		BusBusyChecks: 16,
		JoinStaggerMs: 5,
		TraceQueue:    256,
	}
}

// loadConfig overlays the TOML file (if any) onto the defaults and clamps the
// results into usable ranges.
func loadConfig(path string) (Config, error) {
	cfg := defaultConfig()
	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return Config{}, fmt.Errorf("load lobbysim config: %w", err)
		}
	}
	cfg.Devices = mathx.Clamp(cfg.Devices, 1, lobby.MaxAddresses)
	cfg.JoinStaggerMs = mathx.Clamp(cfg.JoinStaggerMs, 0, 1000)
	cfg.TraceQueue = mathx.OrDefault(cfg.TraceQueue, 256)
	return cfg, nil
}
