package feed

import (
	"context"
	"encoding/csv"
	"io"
	"strconv"

	"github.com/dogmatiq/tally/ledger"
	"github.com/dogmatiq/tally/persistence/account"
	"github.com/shopspring/decimal"
	"golang.org/x/exp/slices"
)

// AccountRanger is an interface for ranging over accounts.
//
// It is implemented by [tally.Engine].
type AccountRanger interface {
	RangeAccounts(ctx context.Context, fn account.RangeFunc) error
}

// WriteAccounts writes a CSV table of every account to w, in order of client
// ID.
func WriteAccounts(ctx context.Context, w io.Writer, src AccountRanger) error {
	var accounts []ledger.Account

	if err := src.RangeAccounts(
		ctx,
		func(_ context.Context, a ledger.Account) (bool, error) {
			accounts = append(accounts, a)
			return true, nil
		},
	); err != nil {
		return err
	}

	slices.SortFunc(
		accounts,
		func(a, b ledger.Account) int {
			return int(a.Client) - int(b.Client)
		},
	)

	out := csv.NewWriter(w)

	if err := out.Write([]string{"client", "available", "held", "total", "locked"}); err != nil {
		return err
	}

	for _, a := range accounts {
		if err := out.Write([]string{
			strconv.FormatUint(uint64(a.Client), 10),
			FormatBalance(a.Available),
			FormatBalance(a.Held),
			FormatBalance(a.Total),
			strconv.FormatBool(a.Locked),
		}); err != nil {
			return err
		}
	}

	out.Flush()
	return out.Error()
}

// FormatBalance formats v with exactly four decimal places, as it appears in
// the account table.
func FormatBalance(v float32) string {
	return decimal.NewFromFloat32(v).StringFixed(4)
}
