package pledge

import (
	"context"
	"fmt"
)

// PledgeAmount pairs a pledge with an amount for the batch operations.
type PledgeAmount struct {
	Pledge PledgeID
	Amount uint64
}

// TransferMany runs Transfer for every item as one transaction.
func (l *Ledger) TransferMany(ctx context.Context, caller Address, sender AdminID, items []PledgeAmount, receiver AdminID) error {
	return l.update(ctx, "transfer_many", func(tx *txn) error {
		a, err := tx.admin(sender)
		if err != nil {
			return err
		}
		if err := tx.checkAdminOwner(caller, a); err != nil {
			return err
		}
		return forEach(items, func(it PledgeAmount) error {
			return tx.transfer(sender, it.Pledge, it.Amount, receiver)
		})
	})
}

// WithdrawMany runs Withdraw for every item as one transaction.
func (l *Ledger) WithdrawMany(ctx context.Context, caller Address, items []PledgeAmount) ([]Withdrawal, error) {
	out := make([]Withdrawal, 0, len(items))
	err := l.update(ctx, "withdraw_many", func(tx *txn) error {
		return forEach(items, func(it PledgeAmount) error {
			w, err := tx.withdraw(caller, it.Pledge, it.Amount)
			out = append(out, w)
			return err
		})
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// ConfirmPaymentMany runs ConfirmPayment for every item as one transaction.
func (l *Ledger) ConfirmPaymentMany(ctx context.Context, caller Address, items []PledgeAmount) error {
	return l.update(ctx, "confirm_payment_many", func(tx *txn) error {
		return forEach(items, func(it PledgeAmount) error {
			return tx.confirmPayment(caller, it.Pledge, it.Amount)
		})
	})
}

// CancelPaymentMany runs CancelPayment for every item as one transaction.
func (l *Ledger) CancelPaymentMany(ctx context.Context, caller Address, items []PledgeAmount) error {
	return l.update(ctx, "cancel_payment_many", func(tx *txn) error {
		return forEach(items, func(it PledgeAmount) error {
			return tx.cancelPayment(caller, it.Pledge, it.Amount)
		})
	})
}

// NormalizeMany normalizes every pledge as one transaction and returns the
// resolved ids in order.
func (l *Ledger) NormalizeMany(ctx context.Context, ids []PledgeID) ([]PledgeID, error) {
	out := make([]PledgeID, 0, len(ids))
	err := l.update(ctx, "normalize_many", func(tx *txn) error {
		for i, id := range ids {
			resolved, err := tx.normalize(id)
			if err != nil {
				return fmt.Errorf("item %d: %w", i, err)
			}
			out = append(out, resolved)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func forEach(items []PledgeAmount, fn func(PledgeAmount) error) error {
	for i, it := range items {
		if err := fn(it); err != nil {
			return fmt.Errorf("item %d (pledge %d): %w", i, it.Pledge, err)
		}
	}
	return nil
}
