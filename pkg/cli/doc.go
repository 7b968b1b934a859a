// Package cli implements the stubd command line: serve runs the mock
// server, validate checks mapping documents offline and version prints
// build information.
package cli
