// Package matching scores inbound requests against mapping request composites.
//
// Every matcher yields a score in [0,1]: 1 for an exact hit, 0 for a miss,
// and fractional values for looser hits such as case-folded, regex, wildcard
// and structural matches. A Composite combines member scores with an
// Aggregation (arithmetic mean by default) and records a per-matcher
// breakdown that callers use for near-miss reports.
//
// Matchers are compiled once, when a mapping is registered, so scoring a
// request never parses patterns. Compiled matchers are immutable and safe
// for concurrent use.
package matching
