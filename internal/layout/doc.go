// Package layout selects where a session keeps the inputs of barcode
// timestamp alignment.
//
// Acquisition software changed its directory layout over time. Each variant
// is a named Layout record, and a Resolver built once from configuration maps
// a session id to exactly one record through an ordered list of rules. The
// built-in rules pin one early pilot session to its own layout and send
// recordings made before 2022 to the legacy layout; everything else uses the
// current layout.
package layout
