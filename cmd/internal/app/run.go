package app

import (
	"context"
	"os/signal"
	"syscall"
)

// Run is the server entrypoint used by `petlink serve`. It returns an error
// instead of calling os.Exit so deferred cleanup runs.
func Run(cfg Config) error {
	log := NewLogger(cfg.LogLevel, cfg.LogFormat)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	a, err := New(ctx, cfg, log)
	if err != nil {
		return err
	}
	return a.Run(ctx)
}
