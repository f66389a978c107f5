package relational

import (
	"context"
	"database/sql"
)

// CreateSchema creates the table required by [Store], if it does not already
// exist.
func CreateSchema(
	ctx context.Context,
	db *sql.DB,
) error {
	_, err := db.ExecContext(
		ctx,
		`CREATE TABLE IF NOT EXISTS tally_account (
			client    INTEGER NOT NULL,
			available REAL NOT NULL,
			held      REAL NOT NULL,
			total     REAL NOT NULL,
			locked    BOOLEAN NOT NULL,

			PRIMARY KEY (client)
		)`,
	)
	return err
}

// DropSchema removes the table created by [CreateSchema], if it exists.
func DropSchema(
	ctx context.Context,
	db *sql.DB,
) error {
	_, err := db.ExecContext(ctx, `DROP TABLE IF EXISTS tally_account`)
	return err
}
