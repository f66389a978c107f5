// Command tally replays a CSV transaction feed and writes the resulting account
// balances to stdout.
//
// Usage:
//
//	tally <feed.csv>
//
// The account store is selected by the TALLY_ACCOUNT_DSN environment variable.
// If it is not set accounts are kept in memory for the duration of the run.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/dogmatiq/ferrite"
	"github.com/dogmatiq/tally"
	"github.com/dogmatiq/tally/feed"
	"github.com/dogmatiq/tally/internal/engineconfig"
	"github.com/dogmatiq/tally/persistence/driver/memory"
)

func main() {
	ferrite.Init()

	if len(os.Args) != 2 {
		fmt.Fprintln(os.Stderr, "usage: tally <feed.csv>")
		os.Exit(2)
	}

	logger := slog.New(
		slog.NewJSONHandler(
			os.Stderr,
			&slog.HandlerOptions{
				Level: engineconfig.LogLevel(),
			},
		),
	)
	slog.SetDefault(logger)

	ctx, cancel := signal.NotifyContext(
		context.Background(),
		os.Interrupt,
		syscall.SIGTERM,
	)
	defer cancel()

	if err := run(ctx, logger, os.Args[1]); err != nil {
		logger.ErrorContext(ctx, "replay failed", slog.String("error", err.Error()))
		cancel()
		os.Exit(1)
	}
}

func run(ctx context.Context, logger *slog.Logger, path string) (err error) {
	options := []tally.EngineOption{
		tally.WithOptionsFromEnvironment(),
		tally.WithLogger(logger),
	}

	if _, ok := os.LookupEnv("TALLY_ACCOUNT_DSN"); !ok {
		options = append(options, tally.WithAccountStore(&memory.AccountStore{}))
	}

	e := tally.New(options...)
	defer func() {
		if closeErr := e.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
	}()

	if err := e.Prepare(ctx); err != nil {
		return err
	}

	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	s, err := feed.Replay(ctx, e, feed.NewReader(f), logger)
	if err != nil {
		return err
	}

	logger.InfoContext(
		ctx,
		"replay complete",
		slog.Int("applied", s.Applied),
		slog.Int("rejected", s.Rejected),
		slog.Int("malformed", s.Malformed),
	)

	return feed.WriteAccounts(ctx, os.Stdout, e)
}
