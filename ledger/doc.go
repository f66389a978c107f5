// Package ledger defines the records shared by the engine, the transaction feed
// and the account stores.
package ledger
