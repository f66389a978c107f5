// Package tabular provides an account store that keeps accounts in a flat CSV
// file.
//
// Every write rewrites the entire table into a temporary file which is then
// renamed over the original, so readers never observe a partially written
// table.
package tabular
