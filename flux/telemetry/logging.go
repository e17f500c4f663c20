package telemetry

import (
	"log/slog"
	"os"

	"go.opentelemetry.io/contrib/bridges/otelslog"
)

// NewLogger builds the engine's structured logger from config.logging.level
// (spec.md §6). Grounded on the teacher's main.go
// (slog.New(slog.NewTextHandler(os.Stdout, nil))); generalized to honor the
// configured level and, when bridgeToOtel is set, to fan log records out
// through the otelslog bridge alongside stdout.
func NewLogger(level string, bridgeToOtel bool) *slog.Logger {
	handler := slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: parseLevel(level)})

	if !bridgeToOtel {
		return slog.New(handler)
	}

	otelHandler := otelslog.NewHandler("fluxcore")
	return slog.New(fanoutHandler{handlers: []slog.Handler{handler, otelHandler}})
}

func parseLevel(level string) slog.Level {
	switch level {
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
