// Package engine selects a mapping for each inbound request and renders
// its response.
//
// Matching is two-phase. Select is a pure function over a store snapshot
// and a copy of the scenario states; Engine.Match then applies the
// scenario transition of the selected mapping. When another request moved
// the scenario between the two phases, selection is repeated against the
// fresh states, so transitions are applied in the order they are accepted.
//
// Handler serves the mock traffic: it reads the body, matches, renders,
// honors the mapping's delay and falls back to a JSON not-found response
// listing the closest mappings. Server binds the handler, and optionally
// the admin API under /__admin, to a single listener.
package engine
