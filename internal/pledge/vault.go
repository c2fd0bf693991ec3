package pledge

import "context"

// Vault disburses value for pledges in the Paying state.
//
// AuthorizePayment is called from Withdraw inside the ledger transaction.
// The vault later calls ConfirmPayment or CancelPayment from its Address.
type Vault interface {
	Address() Address
	AuthorizePayment(ctx context.Context, ref PledgeID, dest Address, amount uint64) (uint64, error)
}

// PaymentVoider is implemented by vaults that can retract an authorization
// when the transaction that requested it rolls back.
type PaymentVoider interface {
	VoidPayment(ctx context.Context, paymentID uint64) error
}
