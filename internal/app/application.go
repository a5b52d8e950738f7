package app

import (
	"log/slog"
	"os"

	"corridorutils.mtcplanning.org/internal/appconf"
	"corridorutils.mtcplanning.org/internal/clock"
	"corridorutils.mtcplanning.org/internal/metrics"
)

// Application holds the shared dependencies for the command line tools: the
// loaded configuration, a logger, a clock, and the metrics registry.
type Application struct {
	Config  appconf.Config
	Logger  *slog.Logger
	Clock   clock.Clock
	Metrics *metrics.Metrics
}

// BuildApplication wires up an Application from the given configuration.
func BuildApplication(cfg appconf.Config) *Application {
	logger := buildLogger(cfg)
	slog.SetDefault(logger)

	return &Application{
		Config:  cfg,
		Logger:  logger,
		Clock:   clock.RealClock{},
		Metrics: metrics.NewWithLogger(logger),
	}
}

func buildLogger(cfg appconf.Config) *slog.Logger {
	level := slog.LevelInfo
	if cfg.Verbose {
		level = slog.LevelDebug
	}

	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if cfg.Env == appconf.Production {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	return slog.New(handler).With(slog.String("env", cfg.Env.String()))
}
