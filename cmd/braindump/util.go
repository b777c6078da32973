package main

import (
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/loykin/braindump/internal/config"
	"github.com/loykin/braindump/internal/logger"
)

func newLogger(cfg *config.Config) (*slog.Logger, io.Closer, error) {
	l, c, err := logger.New(cfg.Log)
	if err != nil {
		return nil, nil, fmt.Errorf("logger: %w", err)
	}
	return l, c, nil
}

func parseDuration(s string) (time.Duration, error) {
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q: %w", s, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("duration must be positive: %q", s)
	}
	return d, nil
}
