// Package pledge implements the pledge ownership and delegation-transfer
// engine.
//
// A Ledger owns two append-only arenas: admins (givers, delegates and
// projects) and pledges. Id 0 is a reserved sentinel in both. A pledge is an
// amount held under an immutable configuration
//
//	(owner, delegation chain, intended project, commit time, old pledge, state)
//
// and every configuration is interned exactly once: deriving the same tuple
// again returns the existing id. Only amounts, admin profile fields and the
// project canceled flag ever change after creation.
//
// TRANSACTIONS:
//
// Every exported mutating method runs as one transaction under the ledger
// mutex. Mutations are recorded in an undo journal; any error rolls back
// everything the call did, including nested steps of batch methods. Events
// are buffered and delivered to listeners only after a successful commit.
//
// PLUGINS:
//
// Admins may carry a plugin that is consulted before and after every value
// movement touching a pledge the admin participates in. Plugins are untrusted:
// a before-hook may lower the amount but never raise it, and hooks receive a
// context that makes any reentrant ledger call fail fast. Hooks that need to
// inspect state use the View they are given, never the Ledger itself.
//
// TIME:
//
// Commit deadlines compare against an injected Clock read once at the start
// of each transaction. Committed transactions are stamped with a monotonic
// sequence number and a transaction id.
package pledge
