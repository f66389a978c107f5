package tally

import (
	"log/slog"

	"github.com/dogmatiq/tally/internal/engineconfig"
	"github.com/dogmatiq/tally/persistence/account"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// An EngineOption configures the behavior of an [Engine].
type EngineOption func(*engineconfig.Config)

// WithOptionsFromEnvironment is an engine option that configures the engine
// using options specified via environment variables.
//
// Any explicit options passed to [New] take precedence over options from the
// environment.
func WithOptionsFromEnvironment() EngineOption {
	return func(cfg *engineconfig.Config) {
		cfg.UseEnv = true
	}
}

// WithAccountStore is an [EngineOption] that sets the store used to persist
// account balances.
func WithAccountStore(s account.Store) EngineOption {
	if s == nil {
		panic("account store must not be nil")
	}

	return func(cfg *engineconfig.Config) {
		cfg.Persistence.Accounts = s
	}
}

// WithAccountReset is an [EngineOption] that controls whether [Engine.Prepare]
// removes all accounts from the store.
func WithAccountReset(reset bool) EngineOption {
	return func(cfg *engineconfig.Config) {
		cfg.Persistence.ResetAccounts = &reset
	}
}

// WithLogger is an [EngineOption] that sets the logger used by the engine.
func WithLogger(l *slog.Logger) EngineOption {
	if l == nil {
		panic("logger must not be nil")
	}

	return func(cfg *engineconfig.Config) {
		cfg.Telemetry.Logger = l
	}
}

// WithTracerProvider is an [EngineOption] that sets the OpenTelemetry tracer
// provider used by the engine.
func WithTracerProvider(p trace.TracerProvider) EngineOption {
	if p == nil {
		panic("tracer provider must not be nil")
	}

	return func(cfg *engineconfig.Config) {
		cfg.Telemetry.TracerProvider = p
	}
}

// WithMeterProvider is an [EngineOption] that sets the OpenTelemetry meter
// provider used by the engine.
func WithMeterProvider(p metric.MeterProvider) EngineOption {
	if p == nil {
		panic("meter provider must not be nil")
	}

	return func(cfg *engineconfig.Config) {
		cfg.Telemetry.MeterProvider = p
	}
}
