// Package admin exposes the mapping store and scenario tracker to
// operators.
//
// Service is the transport-agnostic operation set. API serves it over
// HTTP with chi; the engine mounts it under /__admin on the mock listener.
// Every mutating call is synchronous: once it returns, the next matched
// request observes the change.
package admin
