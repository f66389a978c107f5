package tally_test

import (
	"context"
	"database/sql"
	"errors"
	"math"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	. "github.com/dogmatiq/tally"
	"github.com/dogmatiq/tally/internal/test"
	"github.com/dogmatiq/tally/internal/tlog"
	"github.com/dogmatiq/tally/ledger"
	"github.com/dogmatiq/tally/persistence/account"
	"github.com/dogmatiq/tally/persistence/driver/memory"
	"github.com/dogmatiq/tally/persistence/driver/relational"
	"github.com/dogmatiq/tally/persistence/driver/tabular"
	_ "github.com/mattn/go-sqlite3"
)

func deposit(client ledger.ClientID, id string, amount float32) ledger.Transaction {
	return ledger.Transaction{Kind: ledger.Deposit, Client: client, ID: id}.WithAmount(amount)
}

func withdrawal(client ledger.ClientID, id string, amount float32) ledger.Transaction {
	return ledger.Transaction{Kind: ledger.Withdrawal, Client: client, ID: id}.WithAmount(amount)
}

func dispute(client ledger.ClientID, id string) ledger.Transaction {
	return ledger.Transaction{Kind: ledger.Dispute, Client: client, ID: id}
}

func resolve(client ledger.ClientID, id string) ledger.Transaction {
	return ledger.Transaction{Kind: ledger.Resolve, Client: client, ID: id}
}

func chargeback(client ledger.ClientID, id string) ledger.Transaction {
	return ledger.Transaction{Kind: ledger.Chargeback, Client: client, ID: id}
}

type step struct {
	Transaction ledger.Transaction
	Error       error
}

// accountStores returns constructors for each of the account stores that the
// engine is tested against. Each call returns an empty store.
func accountStores() map[string]func(t *testing.T) account.Store {
	return map[string]func(t *testing.T) account.Store{
		"memory": func(*testing.T) account.Store {
			return &memory.AccountStore{}
		},
		"tabular": func(t *testing.T) account.Store {
			return &tabular.Store{
				Path:   filepath.Join(t.TempDir(), "accounts.csv"),
				Logger: tlog.New(t),
			}
		},
		"relational": func(t *testing.T) account.Store {
			db, err := sql.Open("sqlite3", "file:"+filepath.Join(t.TempDir(), "accounts.db")+"?_sync=OFF")
			if err != nil {
				t.Fatal(err)
			}
			t.Cleanup(func() {
				db.Close()
			})

			if err := relational.CreateSchema(context.Background(), db); err != nil {
				t.Fatal(err)
			}

			return &relational.Store{DB: db}
		},
	}
}

func TestEngine(t *testing.T) {
	stores := accountStores()

	cases := []struct {
		Name  string
		Steps []step
		Want  ledger.Account
	}{
		{
			"deposit",
			[]step{
				{deposit(1, "1", 10), nil},
			},
			ledger.Account{Client: 1, Available: 10, Total: 10},
		},
		{
			"deposit then withdrawal of the full amount",
			[]step{
				{deposit(1, "1", 10), nil},
				{withdrawal(1, "2", 10), nil},
			},
			ledger.Account{Client: 1},
		},
		{
			"withdrawal of more than the available funds",
			[]step{
				{deposit(1, "1", 10), nil},
				{withdrawal(1, "2", 10.5), ledger.ErrInsufficientFunds},
			},
			ledger.Account{Client: 1, Available: 10, Total: 10},
		},
		{
			"withdrawal of an amount finer than four decimal places",
			[]step{
				{deposit(1, "1", 0.00004), nil},
				{withdrawal(1, "2", 0.00004), nil},
			},
			ledger.Account{Client: 1},
		},
		{
			"dispute of an amount finer than four decimal places",
			[]step{
				{deposit(1, "1", 1.00005), nil},
				{deposit(1, "2", 1.00005), nil},
				{dispute(1, "1"), nil},
			},
			ledger.Account{
				Client:    1,
				Available: 1.00005,
				Held:      1.00005,
				Total:     2 * float32(1.00005),
			},
		},
		{
			"withdrawal from an unknown client",
			[]step{
				{withdrawal(1, "1", 1), ledger.ErrInsufficientFunds},
			},
			ledger.Account{Client: 1},
		},
		{
			"dispute",
			[]step{
				{deposit(1, "1", 10), nil},
				{dispute(1, "1"), nil},
			},
			ledger.Account{Client: 1, Held: 10, Total: 10},
		},
		{
			"dispute then resolve",
			[]step{
				{deposit(1, "1", 10), nil},
				{dispute(1, "1"), nil},
				{resolve(1, "1"), nil},
			},
			ledger.Account{Client: 1, Available: 10, Total: 10},
		},
		{
			"dispute then chargeback",
			[]step{
				{deposit(1, "1", 10), nil},
				{dispute(1, "1"), nil},
				{chargeback(1, "1"), nil},
			},
			ledger.Account{Client: 1, Locked: true},
		},
		{
			"deposit to a locked account",
			[]step{
				{deposit(1, "1", 10), nil},
				{dispute(1, "1"), nil},
				{chargeback(1, "1"), nil},
				{deposit(1, "7", 5), ledger.ErrAccountLocked},
			},
			ledger.Account{Client: 1, Locked: true},
		},
		{
			"every operation on a locked account",
			[]step{
				{deposit(1, "1", 10), nil},
				{deposit(1, "2", 4), nil},
				{dispute(1, "1"), nil},
				{chargeback(1, "1"), nil},
				{withdrawal(1, "3", 1), ledger.ErrAccountLocked},
				{dispute(1, "2"), ledger.ErrAccountLocked},
				{resolve(1, "2"), ledger.ErrAccountLocked},
				{chargeback(1, "2"), ledger.ErrAccountLocked},
			},
			ledger.Account{Client: 1, Available: 4, Total: 4, Locked: true},
		},
		{
			"dispute of an unknown transaction",
			[]step{
				{deposit(1, "1", 10), nil},
				{dispute(1, "99"), ledger.ErrUnknownReference},
				{resolve(1, "99"), ledger.ErrUnknownReference},
				{chargeback(1, "99"), ledger.ErrUnknownReference},
			},
			ledger.Account{Client: 1, Available: 10, Total: 10},
		},
		{
			"dispute of another client's transaction",
			[]step{
				{deposit(2, "1", 10), nil},
				{deposit(1, "2", 3), nil},
				{dispute(1, "1"), ledger.ErrUnknownReference},
			},
			ledger.Account{Client: 1, Available: 3, Total: 3},
		},
		{
			"dispute uses the amount of the original transaction",
			[]step{
				{deposit(1, "1", 10), nil},
				{deposit(1, "2", 2.5), nil},
				{dispute(1, "2").WithAmount(100), nil},
			},
			ledger.Account{Client: 1, Available: 10, Held: 2.5, Total: 12.5},
		},
		{
			"dispute of a withdrawal",
			[]step{
				{deposit(1, "1", 10), nil},
				{withdrawal(1, "2", 4), nil},
				{dispute(1, "2"), nil},
			},
			ledger.Account{Client: 1, Available: 2, Held: 4, Total: 6},
		},
		{
			"deposit without an amount",
			[]step{
				{ledger.Transaction{Kind: ledger.Deposit, Client: 1, ID: "1"}, ledger.ErrInvalidTransaction},
			},
			ledger.Account{Client: 1},
		},
		{
			"withdrawal without an amount",
			[]step{
				{deposit(1, "1", 10), nil},
				{ledger.Transaction{Kind: ledger.Withdrawal, Client: 1, ID: "2"}, ledger.ErrInvalidTransaction},
			},
			ledger.Account{Client: 1, Available: 10, Total: 10},
		},
		{
			"deposit of a non-positive amount",
			[]step{
				{deposit(1, "1", 0), ledger.ErrInvalidTransaction},
				{deposit(1, "2", -5), ledger.ErrInvalidTransaction},
				{deposit(1, "3", float32(math.NaN())), ledger.ErrInvalidTransaction},
				{deposit(1, "4", float32(math.Inf(1))), ledger.ErrInvalidTransaction},
			},
			ledger.Account{Client: 1},
		},
		{
			"deposit with a duplicate transaction ID",
			[]step{
				{deposit(1, "1", 10), nil},
				{deposit(1, "1", 5), ledger.ErrInvalidTransaction},
				{withdrawal(1, "1", 5), ledger.ErrInvalidTransaction},
				{dispute(1, "1"), nil},
			},
			ledger.Account{Client: 1, Held: 10, Total: 10},
		},
	}

	for name, newStore := range stores {
		newStore := newStore

		t.Run(name, func(t *testing.T) {
			t.Parallel()

			for _, c := range cases {
				c := c

				t.Run(c.Name, func(t *testing.T) {
					t.Parallel()

					ctx, _ := test.ContextWithTimeout(t, 10*time.Second)
					e := New(
						WithAccountStore(newStore(t)),
						WithLogger(tlog.New(t)),
					)

					for _, s := range c.Steps {
						err := e.Apply(ctx, s.Transaction)

						if s.Error == nil {
							if err != nil {
								t.Fatalf("unexpected error applying %s: %s", s.Transaction, err)
							}
						} else if !errors.Is(err, s.Error) {
							t.Fatalf("unexpected error applying %s: got %v, want %v", s.Transaction, err, s.Error)
						}
					}

					test.Expect(
						t,
						"unexpected account state",
						loadAccount(ctx, t, e, c.Want.Client),
						c.Want,
					)
				})
			}
		})
	}
}

func TestEngine_Apply(t *testing.T) {
	t.Run("it rejects unrecognized transaction kinds", func(t *testing.T) {
		ctx, _ := test.ContextWithTimeout(t, 5*time.Second)
		e := New(
			WithAccountStore(&memory.AccountStore{}),
			WithLogger(tlog.New(t)),
		)

		err := e.Apply(ctx, ledger.Transaction{Client: 1, ID: "1"}.WithAmount(1))
		test.ExpectErrorIs(t, err, ledger.ErrInvalidTransaction)
	})

	t.Run("it does not modify other clients", func(t *testing.T) {
		ctx, _ := test.ContextWithTimeout(t, 5*time.Second)
		e := New(
			WithAccountStore(&memory.AccountStore{}),
			WithLogger(tlog.New(t)),
		)

		for _, tx := range []ledger.Transaction{
			deposit(1, "1", 10),
			deposit(2, "2", 20),
			dispute(1, "1"),
			chargeback(1, "1"),
			withdrawal(2, "3", 5),
		} {
			if err := e.Apply(ctx, tx); err != nil {
				t.Fatal(err)
			}
		}

		test.Expect(
			t,
			"unexpected account state",
			loadAccount(ctx, t, e, 2),
			ledger.Account{Client: 2, Available: 15, Total: 15},
		)
	})
}

func TestEngine_repeatedDeposits(t *testing.T) {
	var want ledger.Account
	want.Client = 1
	for i := 0; i < 10; i++ {
		want.Available += 0.1
	}
	want.Balance()

	for name, newStore := range accountStores() {
		newStore := newStore

		t.Run(name, func(t *testing.T) {
			t.Parallel()

			ctx, _ := test.ContextWithTimeout(t, 5*time.Second)
			e := New(
				WithAccountStore(newStore(t)),
				WithLogger(tlog.New(t)),
			)

			for i := 0; i < 10; i++ {
				if err := e.Deposit(ctx, deposit(1, strconv.Itoa(i), 0.1)); err != nil {
					t.Fatal(err)
				}
			}

			test.Expect(
				t,
				"unexpected account state",
				loadAccount(ctx, t, e, 1),
				want,
			)
		})
	}
}

func TestEngine_storageFailure(t *testing.T) {
	t.Run("it returns a storage error and leaves state unchanged when the save fails", func(t *testing.T) {
		ctx, _ := test.ContextWithTimeout(t, 5*time.Second)
		store := &memory.AccountStore{}
		e := New(
			WithAccountStore(store),
			WithLogger(tlog.New(t)),
		)

		if err := e.Deposit(ctx, deposit(1, "1", 10)); err != nil {
			t.Fatal(err)
		}

		memory.FailBeforeSave(
			store,
			func(ledger.Account) bool {
				return true
			},
		)

		err := e.Deposit(ctx, deposit(1, "2", 5))

		var storageErr *ledger.StorageError
		if !errors.As(err, &storageErr) {
			t.Fatalf("expected a storage error, got %v", err)
		}
		test.ExpectErrorIs(t, storageErr.Unwrap(), memory.ErrInjected)

		test.Expect(
			t,
			"unexpected account state",
			loadAccount(ctx, t, e, 1),
			ledger.Account{Client: 1, Available: 10, Total: 10},
		)

		// The failed deposit must not be journaled, so it can not be disputed.
		err = e.Dispute(ctx, dispute(1, "2"))
		test.ExpectErrorIs(t, err, ledger.ErrUnknownReference)

		// The transaction ID remains available for a later deposit.
		if err := e.Deposit(ctx, deposit(1, "2", 5)); err != nil {
			t.Fatal(err)
		}

		test.Expect(
			t,
			"unexpected account state",
			loadAccount(ctx, t, e, 1),
			ledger.Account{Client: 1, Available: 15, Total: 15},
		)
	})
}

func TestEngine_Prepare(t *testing.T) {
	t.Run("it removes all accounts when reset is enabled", func(t *testing.T) {
		ctx, _ := test.ContextWithTimeout(t, 5*time.Second)
		store := &memory.AccountStore{}

		if err := store.Save(ctx, ledger.Account{Client: 1, Available: 1, Total: 1}); err != nil {
			t.Fatal(err)
		}

		e := New(
			WithAccountStore(store),
			WithAccountReset(true),
			WithLogger(tlog.New(t)),
		)

		if err := e.Prepare(ctx); err != nil {
			t.Fatal(err)
		}

		test.Expect(
			t,
			"unexpected account state",
			loadAccount(ctx, t, e, 1),
			ledger.NewAccount(1),
		)
	})

	t.Run("it keeps existing accounts by default", func(t *testing.T) {
		ctx, _ := test.ContextWithTimeout(t, 5*time.Second)
		store := &memory.AccountStore{}

		want := ledger.Account{Client: 1, Available: 1, Total: 1}
		if err := store.Save(ctx, want); err != nil {
			t.Fatal(err)
		}

		e := New(
			WithAccountStore(store),
			WithLogger(tlog.New(t)),
		)

		if err := e.Prepare(ctx); err != nil {
			t.Fatal(err)
		}

		test.Expect(
			t,
			"unexpected account state",
			loadAccount(ctx, t, e, 1),
			want,
		)
	})
}

func TestNew(t *testing.T) {
	t.Run("it panics if no account store is configured", func(t *testing.T) {
		defer func() {
			if recover() == nil {
				t.Fatal("expected a panic")
			}
		}()

		New()
	})
}

// loadAccount returns the account of the given client as reported by
// [Engine.RangeAccounts], or a zero account if it has never been saved.
func loadAccount(
	ctx context.Context,
	t *testing.T,
	e *Engine,
	id ledger.ClientID,
) ledger.Account {
	t.Helper()

	a := ledger.NewAccount(id)

	if err := e.RangeAccounts(
		ctx,
		func(_ context.Context, x ledger.Account) (bool, error) {
			if x.Client == id {
				a = x
				return false, nil
			}
			return true, nil
		},
	); err != nil {
		t.Fatal(err)
	}

	return a
}
