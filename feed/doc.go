// Package feed reads transaction feeds, replays them through an engine, and
// writes the resulting account table.
//
// A feed is a CSV document with the header "type,client,tx,amount". The amount
// column may be omitted, and values may be surrounded by whitespace.
package feed
