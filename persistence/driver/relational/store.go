package relational

import (
	"context"
	"database/sql"
	"errors"

	"github.com/dogmatiq/tally/ledger"
	"github.com/dogmatiq/tally/persistence/account"
)

// Store is an implementation of [account.Store] that stores accounts in an SQL
// database.
//
// The table must be created by [CreateSchema] before the store is used.
type Store struct {
	DB *sql.DB
}

var _ account.Store = (*Store)(nil)

// Load returns the account of the given client.
func (s *Store) Load(ctx context.Context, id ledger.ClientID) (ledger.Account, error) {
	row := s.DB.QueryRowContext(
		ctx,
		`SELECT
			available,
			held,
			total,
			locked
		FROM tally_account
		WHERE client = $1`,
		id,
	)

	a := ledger.NewAccount(id)
	err := row.Scan(
		&a.Available,
		&a.Held,
		&a.Total,
		&a.Locked,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return ledger.NewAccount(id), nil
	}

	return a, err
}

// Save stores a, replacing any existing account of the same client.
//
// It probes for an existing row and then issues either an UPDATE of the
// mutable columns or an INSERT of the whole row.
func (s *Store) Save(ctx context.Context, a ledger.Account) error {
	ok, err := s.exists(ctx, a.Client)
	if err != nil {
		return err
	}

	if ok {
		_, err = s.DB.ExecContext(
			ctx,
			`UPDATE tally_account SET
				available = $1,
				held = $2,
				total = $3,
				locked = $4
			WHERE client = $5`,
			a.Available,
			a.Held,
			a.Total,
			a.Locked,
			a.Client,
		)
		return err
	}

	_, err = s.DB.ExecContext(
		ctx,
		`INSERT INTO tally_account (
			client,
			available,
			held,
			total,
			locked
		) VALUES (
			$1, $2, $3, $4, $5
		)`,
		a.Client,
		a.Available,
		a.Held,
		a.Total,
		a.Locked,
	)
	return err
}

func (s *Store) exists(ctx context.Context, id ledger.ClientID) (bool, error) {
	row := s.DB.QueryRowContext(
		ctx,
		`SELECT
			1
		FROM tally_account
		WHERE client = $1`,
		id,
	)

	var v int
	err := row.Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}

	return err == nil, err
}

// Range invokes fn for each stored account in order of client ID.
func (s *Store) Range(ctx context.Context, fn account.RangeFunc) error {
	rows, err := s.DB.QueryContext(
		ctx,
		`SELECT
			client,
			available,
			held,
			total,
			locked
		FROM tally_account
		ORDER BY client`,
	)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var a ledger.Account
		if err := rows.Scan(
			&a.Client,
			&a.Available,
			&a.Held,
			&a.Total,
			&a.Locked,
		); err != nil {
			return err
		}

		ok, err := fn(ctx, a)
		if !ok || err != nil {
			return err
		}
	}

	return rows.Err()
}

// Reset removes all stored accounts.
func (s *Store) Reset(ctx context.Context) error {
	_, err := s.DB.ExecContext(ctx, `DELETE FROM tally_account`)
	return err
}
