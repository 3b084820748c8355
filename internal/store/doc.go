// Package store is the SQLite archive behind save slots and usage
// accounting.
//
// Slots are stored by name with their canonical checksum and a
// zstd-compressed payload; loading verifies the checksum before returning
// the document. Usage records are append-only rows, one per tracked
// extraction call.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON
//
// Listing queries order by name COLLATE BINARY, or by id, so output is
// stable across runs.
package store
