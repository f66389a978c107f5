// Package journal provides an in-memory, append-only record of accepted
// transactions that can be searched by transaction ID.
package journal

import (
	"github.com/cespare/xxhash/v2"
	"github.com/dogmatiq/tally/ledger"
)

// Journal is an append-only sequence of transactions.
//
// The zero value is an empty journal. It is not safe for concurrent use.
type Journal struct {
	entries []ledger.Transaction

	// index maps the hash of each transaction ID to the positions of the
	// entries with that hash, in insertion order.
	index map[uint64][]int
}

// Append adds tx to the end of the journal.
func (j *Journal) Append(tx ledger.Transaction) {
	if j.index == nil {
		j.index = map[uint64][]int{}
	}

	h := xxhash.Sum64String(tx.ID)
	j.index[h] = append(j.index[h], len(j.entries))
	j.entries = append(j.entries, tx)
}

// Find returns the earliest transaction in the journal with the given ID.
func (j *Journal) Find(id string) (ledger.Transaction, bool) {
	for _, i := range j.index[xxhash.Sum64String(id)] {
		if tx := j.entries[i]; tx.ID == id {
			return tx, true
		}
	}

	return ledger.Transaction{}, false
}

// Len returns the number of transactions in the journal.
func (j *Journal) Len() int {
	return len(j.entries)
}
