// Package feed produces the normalized tick stream the rest of the
// service consumes. Two implementations exist: a live WebSocket feed and
// a replay feed that re-plays recorded bars as synthetic ticks.
package feed
