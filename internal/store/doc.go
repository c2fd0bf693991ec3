// Package store provides SQLite-backed durability for a pledge ledger.
//
// The store is the ledger's Committer: every committed transaction arrives
// as a pledge.Changeset and is written in one SQL transaction:
//   - Commits: one row per transaction (seq, tx id, operation)
//   - Admins and Pledges: the latest state of every record, upserted
//   - Events: the append-only journal of transfers and cancellations
//
// It also records vault payments (vault.Recorder).
//
// # Critical Patterns
//
// Idempotent commits
//   - commits.tx_id is UNIQUE; replaying a changeset is a no-op
//   - a different tx id at an existing seq is an error (diverged journal)
//
// Logical ordering
//   - journal order is (seq, idx), never wall time
//   - event ids are content-addressed from (tx id, idx, content)
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
package store
