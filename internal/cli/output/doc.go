// Package output renders command results as a key/value table, JSON or
// YAML.
//
// Structs are flattened into dotted keys taken from a struct tag, so
// check-config prints the same keys a configuration file uses.
package output
