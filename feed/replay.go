package feed

import (
	"context"
	"errors"
	"io"
	"log/slog"

	"github.com/dogmatiq/tally/ledger"
)

// Applier is an interface for applying transactions.
//
// It is implemented by [tally.Engine].
type Applier interface {
	Apply(ctx context.Context, tx ledger.Transaction) error
}

// Summary describes the outcome of a replay.
type Summary struct {
	// Applied is the number of transactions that were applied.
	Applied int

	// Rejected is the number of well-formed transactions that could not be
	// applied, such as withdrawals of more than the available funds.
	Rejected int

	// Malformed is the number of records that could not be decoded.
	Malformed int
}

// Replay reads every transaction from r and applies it using a.
//
// Malformed records and rejected transactions are skipped and logged to logger
// at the debug level. If logger is nil, [slog.Default] is used. Replay stops at
// the first storage or I/O error.
func Replay(
	ctx context.Context,
	a Applier,
	r *Reader,
	logger *slog.Logger,
) (Summary, error) {
	if logger == nil {
		logger = slog.Default()
	}

	var s Summary

	for {
		if err := ctx.Err(); err != nil {
			return s, err
		}

		tx, err := r.Read()
		if err == io.EOF {
			return s, nil
		}
		if err != nil {
			if !errors.Is(err, ledger.ErrInvalidTransaction) {
				return s, err
			}

			s.Malformed++
			logger.DebugContext(
				ctx,
				"skipped malformed record",
				slog.String("error", err.Error()),
			)

			continue
		}

		if err := a.Apply(ctx, tx); err != nil {
			if ledger.IsStorageError(err) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return s, err
			}

			s.Rejected++
			logger.DebugContext(
				ctx,
				"skipped rejected transaction",
				slog.String("error", err.Error()),
			)

			continue
		}

		s.Applied++
	}
}
