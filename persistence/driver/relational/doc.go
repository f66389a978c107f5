// Package relational provides an account store that keeps accounts in a single
// SQL table.
//
// The queries are portable between PostgreSQL and SQLite.
package relational
