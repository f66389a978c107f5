package journal_test

import (
	"testing"

	. "github.com/dogmatiq/tally/internal/journal"
	"github.com/dogmatiq/tally/internal/test"
	"github.com/dogmatiq/tally/ledger"
	"pgregory.net/rapid"
)

func TestJournal(t *testing.T) {
	t.Run("func Find()", func(t *testing.T) {
		t.Run("it returns false when the journal is empty", func(t *testing.T) {
			var j Journal

			if _, ok := j.Find("1"); ok {
				t.Fatal("did not expect to find a transaction")
			}
		})

		t.Run("it returns the first transaction with a matching ID", func(t *testing.T) {
			var j Journal

			first := ledger.Transaction{
				Kind:   ledger.Deposit,
				Client: 1,
				ID:     "1",
			}.WithAmount(10)

			j.Append(first)
			j.Append(ledger.Transaction{
				Kind:   ledger.Withdrawal,
				Client: 2,
				ID:     "1",
			}.WithAmount(5))

			got, ok := j.Find("1")
			if !ok {
				t.Fatal("expected to find a transaction")
			}

			test.Expect(
				t,
				"unexpected transaction",
				got,
				first,
			)
		})

		t.Run("it matches IDs exactly", func(t *testing.T) {
			var j Journal

			j.Append(ledger.Transaction{Kind: ledger.Deposit, Client: 1, ID: "10"}.WithAmount(1))

			for _, id := range []string{"1", "010", "10 ", ""} {
				if _, ok := j.Find(id); ok {
					t.Fatalf("did not expect to find a transaction with ID %q", id)
				}
			}
		})
	})

	t.Run("func Len()", func(t *testing.T) {
		t.Run("it returns the number of appended transactions", func(t *testing.T) {
			var j Journal

			for i := 0; i < 3; i++ {
				j.Append(ledger.Transaction{Kind: ledger.Deposit, ID: "x"}.WithAmount(1))
			}

			test.Expect(
				t,
				"unexpected length",
				j.Len(),
				3,
			)
		})
	})
}

func TestJournal_matchesLinearScan(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		var (
			j     Journal
			model []ledger.Transaction
		)

		ids := rapid.SampledFrom([]string{"1", "2", "3", "10", "a", ""})

		t.Repeat(map[string]func(*rapid.T){
			"append": func(t *rapid.T) {
				tx := ledger.Transaction{
					Kind:   ledger.Deposit,
					Client: ledger.ClientID(rapid.Uint16().Draw(t, "client")),
					ID:     ids.Draw(t, "id"),
				}.WithAmount(rapid.Float32Range(0.0001, 1000).Draw(t, "amount"))

				j.Append(tx)
				model = append(model, tx)
			},
			"find": func(t *rapid.T) {
				id := ids.Draw(t, "id")

				var (
					want   ledger.Transaction
					wantOK bool
				)
				for _, tx := range model {
					if tx.ID == id {
						want, wantOK = tx, true
						break
					}
				}

				got, ok := j.Find(id)
				if ok != wantOK {
					t.Fatalf("unexpected result for %q: got %t, want %t", id, ok, wantOK)
				}

				test.Expect(
					t,
					"unexpected transaction",
					got,
					want,
				)
			},
			"": func(t *rapid.T) {
				if j.Len() != len(model) {
					t.Fatalf("unexpected length: got %d, want %d", j.Len(), len(model))
				}
			},
		})
	})
}
