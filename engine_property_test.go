package tally_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strconv"
	"testing"

	. "github.com/dogmatiq/tally"
	"github.com/dogmatiq/tally/internal/test"
	"github.com/dogmatiq/tally/ledger"
	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"
	"pgregory.net/rapid"
)

func TestEngine_properties(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	for name, newStore := range accountStores() {
		newStore := newStore

		t.Run(name, func(t *testing.T) {
			rapid.Check(t, func(rt *rapid.T) {
				ctx := context.Background()
				store := newStore(t)
				e := New(
					WithAccountStore(store),
					WithLogger(logger),
				)

				checkEngineProperties(ctx, rt, e, store.Load)
			})
		})
	}
}

// checkEngineProperties applies random transactions to e and compares the
// resulting accounts against a model that applies the same float32 arithmetic.
func checkEngineProperties(
	ctx context.Context,
	t *rapid.T,
	e *Engine,
	loadFn func(context.Context, ledger.ClientID) (ledger.Account, error),
) {
	var (
		next = 0

		// journaled maps the IDs of accepted deposits and withdrawals to the
		// transaction itself.
		journaled = map[string]ledger.Transaction{}

		// model is the expected state of each account.
		model = map[ledger.ClientID]ledger.Account{}
	)

	// When exact is true, amounts are multiples of 0.25 so that float32
	// arithmetic on them never rounds. Otherwise they have five decimal
	// places, which is finer than the output table shows.
	exact := rapid.Bool().Draw(t, "exact")

	client := rapid.Custom(func(t *rapid.T) ledger.ClientID {
		return ledger.ClientID(rapid.IntRange(1, 3).Draw(t, "client"))
	})

	amount := rapid.Custom(func(t *rapid.T) float32 {
		if exact {
			return float32(rapid.IntRange(1, 400).Draw(t, "quarters")) / 4
		}
		return float32(float64(rapid.IntRange(1, 10_000_000).Draw(t, "units")) / 100_000)
	})

	load := func(t *rapid.T, id ledger.ClientID) ledger.Account {
		a, err := loadFn(ctx, id)
		if err != nil {
			t.Fatal(err)
		}
		return a
	}

	expected := func(id ledger.ClientID) ledger.Account {
		if a, ok := model[id]; ok {
			return a
		}
		return ledger.NewAccount(id)
	}

	// apply applies tx and checks the properties that hold for every
	// transaction. If tx is accepted, mirror is applied to the model.
	apply := func(
		t *rapid.T,
		tx ledger.Transaction,
		mirror func(*ledger.Account),
	) error {
		before := load(t, tx.Client)
		test.Expect(t, "account differs from the model", before, expected(tx.Client))

		err := e.Apply(ctx, tx)
		after := load(t, tx.Client)

		if ledger.IsStorageError(err) {
			t.Fatalf("unexpected storage error: %s", err)
		}

		if !after.IsBalanced() {
			t.Fatalf("account is not balanced after %s: %+v", tx, after)
		}

		if before.Locked {
			test.ExpectErrorIs(t, err, ledger.ErrAccountLocked)
		}

		if err != nil {
			test.Expect(t, "rejected transaction changed the account", after, before)
			return err
		}

		want := before
		mirror(&want)
		want.Balance()
		model[tx.Client] = want

		test.Expect(t, "accepted transaction produced an unexpected account", after, want)

		if !tx.Kind.IsReference() {
			journaled[tx.ID] = tx
		}

		return nil
	}

	knownID := func(t *rapid.T) string {
		ids := maps.Keys(journaled)
		slices.Sort(ids)
		if len(ids) == 0 {
			t.Skip("no accepted transactions")
		}
		return rapid.SampledFrom(ids).Draw(t, "id")
	}

	anyID := func(t *rapid.T) string {
		return strconv.Itoa(rapid.IntRange(0, next+1).Draw(t, "id"))
	}

	newID := func() string {
		next++
		return strconv.Itoa(next)
	}

	t.Repeat(map[string]func(*rapid.T){
		"deposit": func(t *rapid.T) {
			tx := deposit(client.Draw(t, "client"), newID(), amount.Draw(t, "amount"))
			apply(t, tx, func(a *ledger.Account) {
				a.Available += tx.Amount
			})
		},
		"withdrawal": func(t *rapid.T) {
			tx := withdrawal(client.Draw(t, "client"), newID(), amount.Draw(t, "amount"))
			before := expected(tx.Client)

			err := apply(t, tx, func(a *ledger.Account) {
				a.Available -= tx.Amount
			})

			if !before.Locked && tx.Amount > before.Available {
				test.ExpectErrorIs(t, err, ledger.ErrInsufficientFunds)
			} else if !before.Locked && err != nil {
				t.Fatalf("unexpected error: %s", err)
			}
		},
		"dispute then resolve": func(t *rapid.T) {
			origin := journaled[knownID(t)]
			c := origin.Client
			before := expected(c)

			if err := apply(t, dispute(c, origin.ID), func(a *ledger.Account) {
				a.Available -= origin.Amount
				a.Held += origin.Amount
			}); err != nil {
				return
			}

			if err := apply(t, resolve(c, origin.ID), func(a *ledger.Account) {
				a.Held -= origin.Amount
				a.Available += origin.Amount
			}); err != nil {
				t.Fatalf("unable to resolve dispute: %s", err)
			}

			if exact {
				test.Expect(t, "dispute then resolve did not restore the account", load(t, c), before)
			}
		},
		"reference": func(t *rapid.T) {
			kind := rapid.SampledFrom([]ledger.Kind{
				ledger.Dispute,
				ledger.Resolve,
				ledger.Chargeback,
			}).Draw(t, "kind")

			tx := ledger.Transaction{
				Kind:   kind,
				Client: client.Draw(t, "client"),
				ID:     anyID(t),
			}

			origin, known := journaled[tx.ID]
			known = known && origin.Client == tx.Client
			before := expected(tx.Client)

			err := apply(t, tx, func(a *ledger.Account) {
				switch kind {
				case ledger.Dispute:
					a.Available -= origin.Amount
					a.Held += origin.Amount
				case ledger.Resolve:
					a.Held -= origin.Amount
					a.Available += origin.Amount
				case ledger.Chargeback:
					a.Held -= origin.Amount
					a.Locked = true
				}
			})

			if !before.Locked && !known {
				test.ExpectErrorIs(t, err, ledger.ErrUnknownReference)
			}
		},
		"invalid amount": func(t *rapid.T) {
			tx := ledger.Transaction{
				Kind:   rapid.SampledFrom([]ledger.Kind{ledger.Deposit, ledger.Withdrawal}).Draw(t, "kind"),
				Client: client.Draw(t, "client"),
				ID:     newID(),
			}

			if rapid.Bool().Draw(t, "has amount") {
				tx = tx.WithAmount(-amount.Draw(t, "amount"))
			}

			err := apply(t, tx, func(*ledger.Account) {
				t.Fatal("invalid transaction was accepted")
			})
			if !errors.Is(err, ledger.ErrAccountLocked) {
				test.ExpectErrorIs(t, err, ledger.ErrInvalidTransaction)
			}
		},
	})
}
