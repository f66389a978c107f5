package instrumented

import (
	"context"

	"github.com/dogmatiq/tally/internal/telemetry"
	"github.com/dogmatiq/tally/ledger"
	"github.com/dogmatiq/tally/persistence/account"
	"go.opentelemetry.io/otel/metric"
)

// AccountStore is a decorator that adds instrumentation to an
// [account.Store].
type AccountStore struct {
	Next      account.Store
	Telemetry *telemetry.Recorder

	IO         metric.Int64Counter
	OpenRanges metric.Int64UpDownCounter
	RangeSize  metric.Int64Histogram
}

// NewAccountStore returns an [AccountStore] that records telemetry about
// operations performed on next.
func NewAccountStore(next account.Store, p *telemetry.Provider) *AccountStore {
	r := p.Recorder(
		"github.com/dogmatiq/tally/persistence",
		"account",
		telemetry.Type("store", next),
		telemetry.String("handle", handleID()),
	)

	return &AccountStore{
		Next:      next,
		Telemetry: r,
		IO: r.Int64Counter(
			"io",
			metric.WithDescription("The number of account records that have been read and written."),
			metric.WithUnit("{account}"),
		),
		OpenRanges: r.Int64UpDownCounter(
			"range.open",
			metric.WithDescription("The number of account ranges that are currently in progress."),
			metric.WithUnit("{range}"),
		),
		RangeSize: r.Int64Histogram(
			"range.size",
			metric.WithDescription("The number of accounts visited by each range."),
			metric.WithUnit("{account}"),
		),
	}
}

// Load returns the account of the given client.
func (s *AccountStore) Load(ctx context.Context, id ledger.ClientID) (ledger.Account, error) {
	ctx, span := s.Telemetry.StartSpan(
		ctx,
		"account.load",
		telemetry.Int("client", id),
	)
	defer span.End()

	a, err := s.Next.Load(ctx, id)
	if err != nil {
		span.Error("could not load account", err)
		return ledger.Account{}, err
	}

	s.IO.Add(ctx, 1, telemetry.ReadDirection)

	span.SetAttributes(accountAttrs(a)...)
	span.Debug("loaded account")

	return a, nil
}

// Save stores a, replacing any existing account of the same client.
func (s *AccountStore) Save(ctx context.Context, a ledger.Account) error {
	ctx, span := s.Telemetry.StartSpan(
		ctx,
		"account.save",
		accountAttrs(a)...,
	)
	defer span.End()

	if err := s.Next.Save(ctx, a); err != nil {
		span.Error("could not save account", err)
		return err
	}

	s.IO.Add(ctx, 1, telemetry.WriteDirection)
	span.Debug("saved account")

	return nil
}

// Range invokes fn for each stored account.
func (s *AccountStore) Range(ctx context.Context, fn account.RangeFunc) error {
	ctx, span := s.Telemetry.StartSpan(ctx, "account.range")
	defer span.End()

	var (
		count     int64
		brokeLoop bool
	)

	s.OpenRanges.Add(ctx, 1)
	defer s.OpenRanges.Add(ctx, -1)

	span.Debug("reading accounts")

	err := s.Next.Range(
		ctx,
		func(ctx context.Context, a ledger.Account) (bool, error) {
			count++

			ok, err := fn(ctx, a)
			if !ok || err != nil {
				brokeLoop = true
				return false, err
			}

			return true, nil
		},
	)

	s.IO.Add(ctx, count, telemetry.ReadDirection)
	s.RangeSize.Record(ctx, count)

	span.SetAttributes(
		telemetry.Int("accounts", count),
		telemetry.Bool("reached_end", !brokeLoop && err == nil),
	)

	if err != nil {
		span.Error("could not read accounts", err)
		return err
	}

	span.Debug("finished reading accounts")

	return nil
}

// Reset removes all stored accounts.
func (s *AccountStore) Reset(ctx context.Context) error {
	ctx, span := s.Telemetry.StartSpan(ctx, "account.reset")
	defer span.End()

	if err := s.Next.Reset(ctx); err != nil {
		span.Error("could not reset accounts", err)
		return err
	}

	span.Info("reset accounts")

	return nil
}

func accountAttrs(a ledger.Account) []telemetry.Attr {
	return []telemetry.Attr{
		telemetry.Int("client", a.Client),
		telemetry.Float("available", a.Available),
		telemetry.Float("held", a.Held),
		telemetry.Float("total", a.Total),
		telemetry.Bool("locked", a.Locked),
	}
}
