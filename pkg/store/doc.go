// Package store is the process-wide mapping registry.
//
// Readers take a Snapshot, an immutable point-in-time view that is safe to
// iterate without locks while writers keep mutating the store. Writers are
// serialized and publish a fresh snapshot with a single atomic swap, so a
// reader sees either all of a mutation or none of it.
//
// Every mapping is validated and compiled before the swap; a batch that
// fails validation leaves the store untouched.
package store
