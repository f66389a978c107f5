package memory

import (
	"context"
	"sync"

	"github.com/dogmatiq/tally/ledger"
	"github.com/dogmatiq/tally/persistence/account"
	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"
)

// AccountStore is an implementation of [account.Store] that stores accounts in
// memory.
type AccountStore struct {
	m        sync.RWMutex
	accounts map[ledger.ClientID]ledger.Account

	// BeforeSave, if non-nil, is called before each call to Save(). If it
	// returns an error the account is not saved.
	BeforeSave func(ledger.Account) error

	// AfterSave, if non-nil, is called after each call to Save(). If it
	// returns an error it is returned from Save() even though the account has
	// been saved.
	AfterSave func(ledger.Account) error
}

var _ account.Store = (*AccountStore)(nil)

// Load returns the account of the given client.
func (s *AccountStore) Load(ctx context.Context, id ledger.ClientID) (ledger.Account, error) {
	s.m.RLock()
	defer s.m.RUnlock()

	if a, ok := s.accounts[id]; ok {
		return a, ctx.Err()
	}

	return ledger.NewAccount(id), ctx.Err()
}

// Save stores a, replacing any existing account of the same client.
func (s *AccountStore) Save(ctx context.Context, a ledger.Account) error {
	s.m.Lock()
	defer s.m.Unlock()

	if s.BeforeSave != nil {
		if err := s.BeforeSave(a); err != nil {
			return err
		}
	}

	if s.accounts == nil {
		s.accounts = map[ledger.ClientID]ledger.Account{}
	}
	s.accounts[a.Client] = a

	if s.AfterSave != nil {
		if err := s.AfterSave(a); err != nil {
			return err
		}
	}

	return ctx.Err()
}

// Range invokes fn for each stored account in order of client ID.
func (s *AccountStore) Range(ctx context.Context, fn account.RangeFunc) error {
	s.m.RLock()
	accounts := maps.Clone(s.accounts)
	s.m.RUnlock()

	ids := maps.Keys(accounts)
	slices.Sort(ids)

	for _, id := range ids {
		ok, err := fn(ctx, accounts[id])
		if !ok || err != nil {
			return err
		}
	}

	return ctx.Err()
}

// Reset removes all stored accounts.
func (s *AccountStore) Reset(ctx context.Context) error {
	s.m.Lock()
	defer s.m.Unlock()

	s.accounts = nil

	return ctx.Err()
}
