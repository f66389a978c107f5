// Package tally replays feeds of client transactions against a durable store
// of account balances.
//
// An [Engine] applies deposits, withdrawals, disputes, resolutions and
// chargebacks one at a time. Each transaction either succeeds in full or leaves
// the account exactly as it was.
package tally
