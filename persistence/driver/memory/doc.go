// Package memory provides an account store that keeps accounts in memory.
//
// It is intended to be used as a reference implementation and is also used
// throughout various internal test suites.
package memory
