// Package vault is the reference payout vault for a pledge ledger.
//
// The ledger calls AuthorizePayment from Withdraw. The vault records the
// authorization and later settles it by calling back into the ledger with
// Confirm (value becomes Paid) or Cancel (value returns to Pledged).
//
// # Lifecycle
//
//	authorized -> settling -> confirmed
//	                       -> canceled
//	authorized -> voided      (the withdrawing transaction rolled back)
//
// Payments are kept in memory and, when a Recorder is configured, written
// through to it. Load restores them after a restart.
package vault
