// Package telemetry initializes process-wide logging, tracing, and metrics.
// Everything degrades gracefully: when an OTLP exporter cannot be created
// the global providers stay no-ops, and simulations run exactly the same
// with or without a collector.
package telemetry

import (
	"log/slog"
	"os"
	"strings"
)

// InitLogging configures the global slog logger. JSON if
// SCHEDSIM_JSON_LOG=1/true/json else text; level from SCHEDSIM_LOG_LEVEL.
func InitLogging(service string) *slog.Logger {
	mode := strings.ToLower(os.Getenv("SCHEDSIM_JSON_LOG"))
	json := mode == "1" || mode == "true" || mode == "json"
	var handler slog.Handler
	if json {
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{AddSource: false, Level: levelFromEnv()})
	} else {
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{AddSource: false, Level: levelFromEnv()})
	}
	logger := slog.New(handler).With("service", service)
	slog.SetDefault(logger)
	logger.Debug("logging initialized", "json", json)
	return logger
}

func levelFromEnv() slog.Leveler {
	switch strings.ToLower(os.Getenv("SCHEDSIM_LOG_LEVEL")) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
