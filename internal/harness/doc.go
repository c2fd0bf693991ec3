// Package harness runs ledger conformance scenarios.
//
// A scenario drives a fresh ledger through a list of operations and then
// checks the recorded trace and the final state.
//
// # Scenario Format
//
// Scenarios are YAML files (or .cue files checked against an embedded
// schema) with the following structure:
//
//	name: donate_and_withdraw
//	description: "A project withdraws part of a donation"
//	start_time: 1000
//	setup:
//	  - op: add_giver
//	    caller: alice
//	    args: { name: Alice }
//	flow:
//	  - op: withdraw
//	    caller: pat
//	    args: { pledge: 2, amount: 500 }
//	    expect:
//	      result: { payment: 1 }
//	  - op: withdraw
//	    caller: pat
//	    args: { pledge: 2, amount: 99999 }
//	    expect:
//	      error: INSUFFICIENT_BALANCE
//	assertions:
//	  - type: pledge
//	    pledge: 3
//	    expect: { amount: 500, state: Paying }
//	  - type: journal_consistent
//
// # Assertion Types
//
//   - trace_contains: an op appears in the trace with matching args
//   - trace_order: ops appear in the given order
//   - trace_count: an op appears exactly N times
//   - event_count: the ledger emitted N events (optionally of one kind)
//   - pledge, admin, payment: a record's fields match (subset)
//   - total_value: ledger-wide totals match
//   - journal_consistent: replaying the journal reproduces every balance
//   - final_state: a journal table row matches
//
// # Deterministic Testing
//
// Every run uses an in-memory SQLite journal, a manual clock starting at
// start_time and sequential transaction ids, so identical scenarios
// produce identical traces. RunWithGolden compares a trace against
// testdata/golden/{name}.golden.
package harness
