package account

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/dogmatiq/tally/ledger"
	"github.com/google/go-cmp/cmp"
)

// RunTests runs tests that confirm a store implementation behaves correctly.
//
// newStore must return a store that contains no accounts.
func RunTests(
	t *testing.T,
	newStore func(t *testing.T) Store,
) {
	t.Run("func Load()", func(t *testing.T) {
		t.Run("it returns a zero-balance account if the client is unknown", func(t *testing.T) {
			t.Parallel()

			ctx, store := setup(t, newStore)

			got, err := store.Load(ctx, 42)
			if err != nil {
				t.Fatal(err)
			}

			expect(t, got, ledger.NewAccount(42))
		})

		t.Run("it returns the account if it has been saved", func(t *testing.T) {
			t.Parallel()

			ctx, store := setup(t, newStore)

			want := ledger.Account{
				Client:    7,
				Available: 12.5,
				Held:      1.2345,
				Total:     13.7345,
				Locked:    true,
			}

			if err := store.Save(ctx, want); err != nil {
				t.Fatal(err)
			}

			got, err := store.Load(ctx, 7)
			if err != nil {
				t.Fatal(err)
			}

			expect(t, got, want)
		})

		t.Run("it returns balances exactly as they were saved", func(t *testing.T) {
			t.Parallel()

			ctx, store := setup(t, newStore)

			tenth, fifth := float32(0.1), float32(0.2)

			want := ledger.Account{
				Client:    3,
				Available: tenth + fifth,
				Held:      1e-5,
				Total:     tenth + fifth + 1e-5,
			}

			if err := store.Save(ctx, want); err != nil {
				t.Fatal(err)
			}

			got, err := store.Load(ctx, 3)
			if err != nil {
				t.Fatal(err)
			}

			expect(t, got, want)
		})

		t.Run("it returns the account of the requested client only", func(t *testing.T) {
			t.Parallel()

			ctx, store := setup(t, newStore)

			if err := store.Save(ctx, account(1, 10)); err != nil {
				t.Fatal(err)
			}

			got, err := store.Load(ctx, 2)
			if err != nil {
				t.Fatal(err)
			}

			expect(t, got, ledger.NewAccount(2))
		})

		t.Run("it supports the full range of client IDs", func(t *testing.T) {
			t.Parallel()

			ctx, store := setup(t, newStore)

			for _, id := range []ledger.ClientID{0, 65535} {
				if err := store.Save(ctx, account(id, 3)); err != nil {
					t.Fatal(err)
				}
			}

			for _, id := range []ledger.ClientID{0, 65535} {
				got, err := store.Load(ctx, id)
				if err != nil {
					t.Fatal(err)
				}

				expect(t, got, account(id, 3))
			}
		})
	})

	t.Run("func Save()", func(t *testing.T) {
		t.Run("it replaces the existing account", func(t *testing.T) {
			t.Parallel()

			ctx, store := setup(t, newStore)

			if err := store.Save(ctx, account(1, 10)); err != nil {
				t.Fatal(err)
			}

			want := ledger.Account{
				Client:    1,
				Available: 0.5,
				Held:      9.5,
				Total:     10,
			}

			if err := store.Save(ctx, want); err != nil {
				t.Fatal(err)
			}

			got, err := store.Load(ctx, 1)
			if err != nil {
				t.Fatal(err)
			}

			expect(t, got, want)
		})

		t.Run("it does not modify the accounts of other clients", func(t *testing.T) {
			t.Parallel()

			ctx, store := setup(t, newStore)

			for id := ledger.ClientID(1); id <= 5; id++ {
				if err := store.Save(ctx, account(id, float32(id))); err != nil {
					t.Fatal(err)
				}
			}

			if err := store.Save(ctx, account(3, 300)); err != nil {
				t.Fatal(err)
			}

			for id := ledger.ClientID(1); id <= 5; id++ {
				want := account(id, float32(id))
				if id == 3 {
					want = account(3, 300)
				}

				got, err := store.Load(ctx, id)
				if err != nil {
					t.Fatal(err)
				}

				expect(t, got, want)
			}
		})

		t.Run("it stores each client exactly once", func(t *testing.T) {
			t.Parallel()

			ctx, store := setup(t, newStore)

			for i := 0; i < 3; i++ {
				if err := store.Save(ctx, account(9, float32(i))); err != nil {
					t.Fatal(err)
				}
			}

			got := collect(ctx, t, store)
			expect(t, got, map[ledger.ClientID]ledger.Account{
				9: account(9, 2),
			})
		})
	})

	t.Run("func Range()", func(t *testing.T) {
		t.Run("it calls the function for each account", func(t *testing.T) {
			t.Parallel()

			ctx, store := setup(t, newStore)

			want := map[ledger.ClientID]ledger.Account{}

			for id := ledger.ClientID(1); id <= 25; id++ {
				a := account(id, float32(id)*1.5)
				if err := store.Save(ctx, a); err != nil {
					t.Fatal(err)
				}
				want[id] = a
			}

			expect(t, collect(ctx, t, store), want)
		})

		t.Run("it does not call the function if there are no accounts", func(t *testing.T) {
			t.Parallel()

			ctx, store := setup(t, newStore)

			if err := store.Range(
				ctx,
				func(context.Context, ledger.Account) (bool, error) {
					return false, errors.New("unexpected call")
				},
			); err != nil {
				t.Fatal(err)
			}
		})

		t.Run("it stops iterating if the function returns false", func(t *testing.T) {
			t.Parallel()

			ctx, store := setup(t, newStore)

			for id := ledger.ClientID(1); id <= 2; id++ {
				if err := store.Save(ctx, account(id, 1)); err != nil {
					t.Fatal(err)
				}
			}

			called := false
			if err := store.Range(
				ctx,
				func(context.Context, ledger.Account) (bool, error) {
					if called {
						return false, errors.New("unexpected call")
					}

					called = true
					return false, nil
				},
			); err != nil {
				t.Fatal(err)
			}
		})

		t.Run("it propagates errors returned by the function", func(t *testing.T) {
			t.Parallel()

			ctx, store := setup(t, newStore)

			if err := store.Save(ctx, account(1, 1)); err != nil {
				t.Fatal(err)
			}

			want := errors.New("<error>")
			err := store.Range(
				ctx,
				func(context.Context, ledger.Account) (bool, error) {
					return true, want
				},
			)
			if !errors.Is(err, want) {
				t.Fatalf("unexpected error: got %v, want %v", err, want)
			}
		})
	})

	t.Run("func Reset()", func(t *testing.T) {
		t.Run("it removes all accounts", func(t *testing.T) {
			t.Parallel()

			ctx, store := setup(t, newStore)

			for id := ledger.ClientID(1); id <= 3; id++ {
				if err := store.Save(ctx, account(id, 1)); err != nil {
					t.Fatal(err)
				}
			}

			if err := store.Reset(ctx); err != nil {
				t.Fatal(err)
			}

			expect(t, collect(ctx, t, store), map[ledger.ClientID]ledger.Account{})

			got, err := store.Load(ctx, 2)
			if err != nil {
				t.Fatal(err)
			}

			expect(t, got, ledger.NewAccount(2))
		})

		t.Run("it leaves the store usable", func(t *testing.T) {
			t.Parallel()

			ctx, store := setup(t, newStore)

			if err := store.Reset(ctx); err != nil {
				t.Fatal(err)
			}

			if err := store.Save(ctx, account(1, 4)); err != nil {
				t.Fatal(err)
			}

			got, err := store.Load(ctx, 1)
			if err != nil {
				t.Fatal(err)
			}

			expect(t, got, account(1, 4))
		})
	})
}

func setup(
	t *testing.T,
	newStore func(t *testing.T) Store,
) (context.Context, Store) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	t.Cleanup(cancel)

	return ctx, newStore(t)
}

// account returns a balanced, unlocked account with the given available funds.
func account(id ledger.ClientID, available float32) ledger.Account {
	return ledger.Account{
		Client:    id,
		Available: available,
		Total:     available,
	}
}

func collect(
	ctx context.Context,
	t *testing.T,
	store Store,
) map[ledger.ClientID]ledger.Account {
	t.Helper()

	accounts := map[ledger.ClientID]ledger.Account{}

	if err := store.Range(
		ctx,
		func(_ context.Context, a ledger.Account) (bool, error) {
			if _, ok := accounts[a.Client]; ok {
				t.Errorf("account of client %d was visited more than once", a.Client)
			}
			accounts[a.Client] = a
			return true, nil
		},
	); err != nil {
		t.Fatal(err)
	}

	return accounts
}

func expect[T any](t *testing.T, got, want T) {
	t.Helper()

	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatal(diff)
	}
}
