package main

import (
	"context"

	"github.com/artpar/masterdata/bootstrap"
	"github.com/artpar/masterdata/config"
	"github.com/artpar/masterdata/core/formatter"
)

const (
	checkMark = "✓"
	crossMark = "✗"
)

// openApp wires the application against the configured database without
// starting a listener. Callers must Shutdown it.
func openApp(ctx context.Context) (*bootstrap.App, error) {
	cfg, err := config.LoadWithFallback(cfgFile)
	if err != nil {
		return nil, err
	}
	if !verbose {
		cfg.Logging.Level = "error"
	}
	cfg.Metrics.Enabled = false
	cfg.Cache.WatchStore = false

	a, err := bootstrap.New(cfg)
	if err != nil {
		return nil, err
	}
	if err := a.Start(ctx, false); err != nil {
		a.Shutdown()
		return nil, err
	}
	return a, nil
}

func output() (formatter.Formatter, error) {
	return formatter.Get(outputFormat)
}
