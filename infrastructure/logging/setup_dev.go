//go:build !prod

package logging

import (
	"log/slog"
	"os"
)

// Setup initializes logging for development mode.
// Logs are written as text to os.Stderr only; no file output.
func Setup(cfg *Config) (*slog.Logger, func() error, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level:     cfg.Level,
		AddSource: cfg.AddSource,
	})

	logger := slog.New(handler)
	setGlobal(logger)

	return logger, func() error { return nil }, nil
}
