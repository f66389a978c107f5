package engineconfig

import (
	"context"

	"github.com/dogmatiq/tally/internal/telemetry"
	"github.com/dogmatiq/tally/persistence/account"
)

// Config encapsulates the configuration of a [tally.Engine], built by applying
// [tally.EngineOption] functions.
type Config struct {
	UseEnv    bool
	Telemetry *telemetry.Provider

	Persistence struct {
		Accounts account.Store

		// ResetAccounts is true if all accounts are removed from the store
		// before replaying a feed.
		ResetAccounts *bool

		// Setup is a list of functions that prepare the account store for use.
		// They are run once, before the first transaction is applied.
		Setup []func(context.Context) error

		// Closers is a list of functions that release resources that were
		// opened while building the configuration.
		Closers []func() error
	}
}

// New returns a new configuration for a [tally.Engine].
func New[Option ~func(*Config)](options []Option) Config {
	c := Config{
		Telemetry: &telemetry.Provider{},
	}

	for _, opt := range options {
		opt(&c)
	}

	c.finalize()

	return c
}

func (c *Config) finalize() {
	c.finalizeTelemetry()
	c.finalizePersistence()
}
