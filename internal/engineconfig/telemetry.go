package engineconfig

import (
	"log/slog"
	"os"
	"strings"

	"github.com/dogmatiq/ferrite"
	"go.opentelemetry.io/otel"
	noopmetric "go.opentelemetry.io/otel/metric/noop"
	nooptrace "go.opentelemetry.io/otel/trace/noop"
)

var logLevel = ferrite.
	String("TALLY_LOG_LEVEL", "the minimum level of log messages (debug, info, warn or error)").
	WithDefault("info").
	WithConstraint(
		"must be one of debug, info, warn or error",
		func(v string) bool {
			_, ok := parseLogLevel(v)
			return ok
		},
	).
	Required()

// LogLevel returns the minimum log level specified by the environment.
func LogLevel() slog.Level {
	l, _ := parseLogLevel(logLevel.Value())
	return l
}

func parseLogLevel(v string) (slog.Level, bool) {
	switch strings.ToLower(v) {
	case "debug":
		return slog.LevelDebug, true
	case "info":
		return slog.LevelInfo, true
	case "warn":
		return slog.LevelWarn, true
	case "error":
		return slog.LevelError, true
	default:
		return 0, false
	}
}

func (c *Config) finalizeTelemetry() {
	if c.Telemetry.TracerProvider == nil {
		if c.UseEnv {
			c.Telemetry.TracerProvider = otel.GetTracerProvider()
		} else {
			c.Telemetry.TracerProvider = nooptrace.NewTracerProvider()
		}
	}

	if c.Telemetry.MeterProvider == nil {
		if c.UseEnv {
			c.Telemetry.MeterProvider = otel.GetMeterProvider()
		} else {
			c.Telemetry.MeterProvider = noopmetric.NewMeterProvider()
		}
	}

	if c.Telemetry.Logger == nil {
		if c.UseEnv {
			c.Telemetry.Logger = slog.New(
				slog.NewJSONHandler(
					os.Stderr,
					&slog.HandlerOptions{Level: LogLevel()},
				),
			)
		} else {
			c.Telemetry.Logger = slog.Default()
		}
	}
}
