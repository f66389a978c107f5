package memory

import (
	"errors"
	"sync"

	"github.com/dogmatiq/tally/ledger"
)

// ErrInjected is the error returned by saves that fail due to
// [FailBeforeSave] or [FailAfterSave].
var ErrInjected = errors.New("<injected error>")

// FailBeforeSave configures the store to return [ErrInjected] on the next call
// to Save() with an account that satisfies the given predicate function.
//
// The error is returned before the save is actually performed.
func FailBeforeSave(
	s *AccountStore,
	pred func(ledger.Account) bool,
) {
	s.m.Lock()
	defer s.m.Unlock()

	s.BeforeSave = failSaveOnce(pred)
}

// FailAfterSave configures the store to return [ErrInjected] on the next call
// to Save() with an account that satisfies the given predicate function.
//
// The error is returned after the save is actually performed.
func FailAfterSave(
	s *AccountStore,
	pred func(ledger.Account) bool,
) {
	s.m.Lock()
	defer s.m.Unlock()

	s.AfterSave = failSaveOnce(pred)
}

func failSaveOnce(pred func(ledger.Account) bool) func(ledger.Account) error {
	var once sync.Once

	return func(a ledger.Account) (err error) {
		if pred(a) {
			once.Do(func() {
				err = ErrInjected
			})
		}

		return err
	}
}
