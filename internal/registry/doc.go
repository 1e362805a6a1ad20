// Package registry hands out probe, channel and unit identifiers.
//
// Identifiers are drawn through an explicit contract: Acquire opens an
// Allocation, Next appends to one of three sequences in memory, Commit makes
// the new identifiers durable and Release discards anything uncommitted.
// Sequences start at 0 and each new identifier is the previous last plus one.
//
// Backends:
//   - file: the shared JSON document {probe_ids, channel_ids, unit_ids},
//     guarded by an exclusive lock file for the whole allocation and
//     rewritten through a temp file and rename.
//   - sqlite / postgres: a counter table updated with compare-and-set at
//     commit, so concurrent allocations never hand out the same id.
//   - random: session-scoped random identifiers; nothing is persisted and
//     uniqueness holds only within an allocation.
package registry
