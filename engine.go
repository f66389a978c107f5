package tally

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/dogmatiq/tally/internal/engineconfig"
	"github.com/dogmatiq/tally/internal/journal"
	"github.com/dogmatiq/tally/internal/telemetry"
	"github.com/dogmatiq/tally/ledger"
	"github.com/dogmatiq/tally/persistence/account"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Engine applies transactions to client accounts.
//
// It is not safe for concurrent use.
type Engine struct {
	accounts account.Store
	journal  journal.Journal
	reset    bool
	setup    []func(context.Context) error
	closers  []func() error

	telemetry *telemetry.Recorder
	accepted  metric.Int64Counter
	rejected  metric.Int64Counter
}

// New returns a new engine.
//
// It panics if no account store is configured, either via [WithAccountStore]
// or the TALLY_ACCOUNT_DSN environment variable.
func New(options ...EngineOption) *Engine {
	cfg := engineconfig.New(options)

	r := cfg.Telemetry.Recorder(
		"github.com/dogmatiq/tally",
		"engine",
	)

	return &Engine{
		accounts:  cfg.Persistence.Accounts,
		reset:     *cfg.Persistence.ResetAccounts,
		setup:     cfg.Persistence.Setup,
		closers:   cfg.Persistence.Closers,
		telemetry: r,
		accepted: r.Int64Counter(
			"transactions.accepted",
			metric.WithDescription("The number of transactions that have been applied."),
			metric.WithUnit("{transaction}"),
		),
		rejected: r.Int64Counter(
			"transactions.rejected",
			metric.WithDescription("The number of transactions that have been rejected."),
			metric.WithUnit("{transaction}"),
		),
	}
}

// Prepare readies the account store for a replay.
//
// It creates any storage the store requires and, if configured, removes all
// existing accounts.
func (e *Engine) Prepare(ctx context.Context) error {
	for _, fn := range e.setup {
		if err := fn(ctx); err != nil {
			return fmt.Errorf("unable to prepare account store: %w", err)
		}
	}
	e.setup = nil

	if e.reset {
		return e.ResetAccounts(ctx)
	}

	return nil
}

// ResetAccounts removes all accounts from the store.
func (e *Engine) ResetAccounts(ctx context.Context) error {
	if err := e.accounts.Reset(ctx); err != nil {
		return fmt.Errorf("unable to reset accounts: %w", err)
	}
	return nil
}

// Apply applies tx according to its kind.
func (e *Engine) Apply(ctx context.Context, tx ledger.Transaction) error {
	switch tx.Kind {
	case ledger.Deposit:
		return e.Deposit(ctx, tx)
	case ledger.Withdrawal:
		return e.Withdrawal(ctx, tx)
	case ledger.Dispute:
		return e.Dispute(ctx, tx)
	case ledger.Resolve:
		return e.Resolve(ctx, tx)
	case ledger.Chargeback:
		return e.Chargeback(ctx, tx)
	default:
		return fmt.Errorf("%w: unrecognized transaction kind %s", ledger.ErrInvalidTransaction, tx.Kind)
	}
}

// Deposit credits the client's available funds by the amount of tx.
func (e *Engine) Deposit(ctx context.Context, tx ledger.Transaction) error {
	return e.apply(
		ctx,
		tx,
		func(a *ledger.Account) error {
			if err := e.validate(tx); err != nil {
				return err
			}

			a.Available += tx.Amount
			return nil
		},
	)
}

// Withdrawal debits the client's available funds by the amount of tx.
func (e *Engine) Withdrawal(ctx context.Context, tx ledger.Transaction) error {
	return e.apply(
		ctx,
		tx,
		func(a *ledger.Account) error {
			if err := e.validate(tx); err != nil {
				return err
			}

			if tx.Amount > a.Available {
				return ledger.ErrInsufficientFunds
			}

			a.Available -= tx.Amount
			return nil
		},
	)
}

// Dispute holds the amount of the transaction that tx refers to.
func (e *Engine) Dispute(ctx context.Context, tx ledger.Transaction) error {
	return e.apply(
		ctx,
		tx,
		func(a *ledger.Account) error {
			origin, err := e.origin(tx)
			if err != nil {
				return err
			}

			a.Available -= origin.Amount
			a.Held += origin.Amount
			return nil
		},
	)
}

// Resolve releases the held amount of the transaction that tx refers to.
func (e *Engine) Resolve(ctx context.Context, tx ledger.Transaction) error {
	return e.apply(
		ctx,
		tx,
		func(a *ledger.Account) error {
			origin, err := e.origin(tx)
			if err != nil {
				return err
			}

			a.Held -= origin.Amount
			a.Available += origin.Amount
			return nil
		},
	)
}

// Chargeback removes the held amount of the transaction that tx refers to and
// locks the account.
func (e *Engine) Chargeback(ctx context.Context, tx ledger.Transaction) error {
	return e.apply(
		ctx,
		tx,
		func(a *ledger.Account) error {
			origin, err := e.origin(tx)
			if err != nil {
				return err
			}

			a.Held -= origin.Amount
			a.Locked = true
			return nil
		},
	)
}

// RangeAccounts invokes fn for each account in the store.
func (e *Engine) RangeAccounts(ctx context.Context, fn account.RangeFunc) error {
	return e.accounts.Range(ctx, fn)
}

// Close releases any resources that the engine opened itself.
func (e *Engine) Close() error {
	var errs []error

	for _, fn := range e.closers {
		if err := fn(); err != nil {
			errs = append(errs, err)
		}
	}
	e.closers = nil

	return errors.Join(errs...)
}

// apply loads the account of the client that tx belongs to, calls mutate to
// change it, and then saves it.
//
// The account is left unchanged if mutate returns an error.
func (e *Engine) apply(
	ctx context.Context,
	tx ledger.Transaction,
	mutate func(*ledger.Account) error,
) error {
	ctx, span := e.telemetry.StartSpan(
		ctx,
		tx.Kind.String(),
		telemetry.Stringer("kind", tx.Kind),
		telemetry.Int("client", tx.Client),
		telemetry.String("transaction_id", tx.ID),
		telemetry.If(tx.HasAmount, telemetry.Float("amount", tx.Amount)),
	)
	defer span.End()

	a, err := e.accounts.Load(ctx, tx.Client)
	if err != nil {
		err = &ledger.StorageError{Op: "load", Client: tx.Client, Err: err}
		span.Error("unable to load account", err)
		return err
	}

	if a.Locked {
		return e.reject(ctx, span, tx, ledger.ErrAccountLocked)
	}

	if err := mutate(&a); err != nil {
		return e.reject(ctx, span, tx, err)
	}

	a.Balance()

	if err := e.accounts.Save(ctx, a); err != nil {
		err = &ledger.StorageError{Op: "save", Client: tx.Client, Err: err}
		span.Error("unable to save account", err)
		return err
	}

	if !tx.Kind.IsReference() {
		e.journal.Append(tx)
	}

	e.accepted.Add(ctx, 1, kindAttr(tx.Kind))

	span.Debug(
		"transaction accepted",
		telemetry.Float("available", a.Available),
		telemetry.Float("held", a.Held),
		telemetry.Float("total", a.Total),
		telemetry.Bool("locked", a.Locked),
	)

	return nil
}

func (e *Engine) reject(
	ctx context.Context,
	span *telemetry.Span,
	tx ledger.Transaction,
	err error,
) error {
	e.rejected.Add(ctx, 1, kindAttr(tx.Kind))

	span.Warn(
		"transaction rejected",
		telemetry.String("reason", err.Error()),
	)

	return fmt.Errorf("%s rejected: %w", tx, err)
}

// validate returns an error if the deposit or withdrawal tx can not be applied
// regardless of the account balance.
func (e *Engine) validate(tx ledger.Transaction) error {
	if !tx.HasAmount {
		return fmt.Errorf("%w: amount is missing", ledger.ErrInvalidTransaction)
	}

	v := float64(tx.Amount)
	if math.IsNaN(v) || math.IsInf(v, 0) || v <= 0 {
		return fmt.Errorf("%w: amount must be a positive number", ledger.ErrInvalidTransaction)
	}

	if _, ok := e.journal.Find(tx.ID); ok {
		return fmt.Errorf("%w: duplicate transaction ID", ledger.ErrInvalidTransaction)
	}

	return nil
}

// origin returns the deposit or withdrawal that tx refers to.
func (e *Engine) origin(tx ledger.Transaction) (ledger.Transaction, error) {
	origin, ok := e.journal.Find(tx.ID)
	if !ok || origin.Client != tx.Client {
		return ledger.Transaction{}, ledger.ErrUnknownReference
	}
	return origin, nil
}

func kindAttr(k ledger.Kind) metric.MeasurementOption {
	return metric.WithAttributes(
		attribute.String("tally.engine.kind", k.String()),
	)
}
