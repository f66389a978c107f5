package account

import (
	"context"

	"github.com/dogmatiq/tally/ledger"
)

// A RangeFunc is a function used to range over the accounts in a [Store].
//
// If err is non-nil, ranging stops and err is propagated up the stack.
// Otherwise, if ok is false, ranging stops without any error being propagated.
type RangeFunc func(ctx context.Context, a ledger.Account) (ok bool, err error)

// Store is a durable mapping of client ID to account record.
//
// Implementations assume that they have exclusive access to the underlying
// storage for the duration of a replay.
type Store interface {
	// Load returns the account of the given client.
	//
	// If the client has no stored account, it returns the zero-balance
	// account for that client. A missing account is never an error.
	Load(ctx context.Context, id ledger.ClientID) (ledger.Account, error)

	// Save stores a, replacing any existing account of the same client.
	Save(ctx context.Context, a ledger.Account) error

	// Range invokes fn for each stored account in an undefined order.
	Range(ctx context.Context, fn RangeFunc) error

	// Reset removes all stored accounts.
	Reset(ctx context.Context) error
}
