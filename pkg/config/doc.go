// Package config loads the server configuration and reads and writes
// mapping documents.
//
// Server options come from viper: built-in defaults, an optional config
// file, STUBD_-prefixed environment variables and bound command-line flags,
// in increasing precedence.
//
// A mapping document is JSON or YAML holding a single mapping, an array of
// mappings, or an object with a "mappings" array. A static mapping
// directory is every *.json, *.yaml and *.yml file below it, read in
// lexical path order. A document that fails to parse or validate is
// skipped and reported; the rest still load.
package config
