package pledge

import (
	"context"
	"fmt"
)

// Withdrawal describes a payout requested by Withdraw.
type Withdrawal struct {
	Pledge    PledgeID // the Paying pledge that holds the value
	PaymentID uint64   // 0 when no value moved
	Amount    uint64
}

// Withdraw moves amount of a pledge into its Paying sibling and asks the
// vault to pay the owner's address.
func (l *Ledger) Withdraw(ctx context.Context, caller Address, id PledgeID, amount uint64) (Withdrawal, error) {
	var w Withdrawal
	err := l.update(ctx, "withdraw", func(tx *txn) (err error) {
		w, err = tx.withdraw(caller, id, amount)
		return err
	})
	return w, err
}

func (tx *txn) withdraw(caller Address, id PledgeID, amount uint64) (Withdrawal, error) {
	if tx.l.vault == nil {
		return Withdrawal{}, newError(ErrCodeInvalidState, "no vault configured")
	}
	id, err := tx.normalize(id)
	if err != nil {
		return Withdrawal{}, err
	}
	p, err := tx.pledge(id)
	if err != nil {
		return Withdrawal{}, err
	}
	if p.State != Pledged {
		return Withdrawal{}, newError(ErrCodeInvalidState, "pledge %d is %s", id, p.State).with("pledge", id)
	}
	owner, err := tx.admin(p.Owner)
	if err != nil {
		return Withdrawal{}, err
	}
	if err := tx.checkAdminOwner(caller, owner); err != nil {
		return Withdrawal{}, err
	}

	to := tx.sibling(p, Paying)
	moved, err := tx.moveValue(id, to, amount)
	if err != nil {
		return Withdrawal{}, err
	}
	w := Withdrawal{Pledge: to, Amount: moved}
	if moved == 0 {
		return w, nil
	}

	vault := tx.l.vault
	var paymentID uint64
	err = tx.l.callHook(func() error {
		var err error
		paymentID, err = vault.AuthorizePayment(tx.hookContext(), to, owner.Addr, moved)
		return err
	})
	if err != nil {
		return Withdrawal{}, fmt.Errorf("authorize payment for pledge %d: %w", to, err)
	}
	if voider, ok := vault.(PaymentVoider); ok {
		ctx := tx.hookContext()
		tx.onRollback(func() {
			err := tx.l.callHook(func() error { return voider.VoidPayment(ctx, paymentID) })
			if err != nil {
				tx.l.logger.Error("void payment failed", "payment_id", paymentID, "error", err)
			}
		})
	}
	w.PaymentID = paymentID
	return w, nil
}

// ConfirmPayment marks amount of a Paying pledge as Paid. Only the vault
// may call it.
func (l *Ledger) ConfirmPayment(ctx context.Context, caller Address, id PledgeID, amount uint64) error {
	return l.update(ctx, "confirm_payment", func(tx *txn) error {
		return tx.confirmPayment(caller, id, amount)
	})
}

// CancelPayment returns amount of a Paying pledge to its Pledged sibling,
// normalized. Only the vault may call it.
func (l *Ledger) CancelPayment(ctx context.Context, caller Address, id PledgeID, amount uint64) error {
	return l.update(ctx, "cancel_payment", func(tx *txn) error {
		return tx.cancelPayment(caller, id, amount)
	})
}

func (tx *txn) confirmPayment(caller Address, id PledgeID, amount uint64) error {
	p, err := tx.payingPledge(caller, id)
	if err != nil {
		return err
	}
	_, err = tx.moveValue(id, tx.sibling(p, Paid), amount)
	return err
}

func (tx *txn) cancelPayment(caller Address, id PledgeID, amount uint64) error {
	p, err := tx.payingPledge(caller, id)
	if err != nil {
		return err
	}
	to, err := tx.normalize(tx.sibling(p, Pledged))
	if err != nil {
		return err
	}
	_, err = tx.moveValue(id, to, amount)
	return err
}

func (tx *txn) payingPledge(caller Address, id PledgeID) (Pledge, error) {
	if tx.l.vault == nil || caller == "" || caller != tx.l.vault.Address() {
		return Pledge{}, newError(ErrCodeUnauthorized, "%q is not the vault", caller)
	}
	p, err := tx.pledge(id)
	if err != nil {
		return Pledge{}, err
	}
	if p.State != Paying {
		return Pledge{}, newError(ErrCodeInvalidState, "pledge %d is %s, not Paying", id, p.State).with("pledge", id)
	}
	return p, nil
}

// CancelPledge returns amount of a pledge to the oldest pledge in its
// provenance that is not owned by a canceled project.
func (l *Ledger) CancelPledge(ctx context.Context, caller Address, id PledgeID, amount uint64) error {
	return l.update(ctx, "cancel_pledge", func(tx *txn) error {
		return tx.cancelPledge(caller, id, amount)
	})
}

func (tx *txn) cancelPledge(caller Address, id PledgeID, amount uint64) error {
	id, err := tx.normalize(id)
	if err != nil {
		return err
	}
	p, err := tx.pledge(id)
	if err != nil {
		return err
	}
	if p.OldPledge == 0 {
		return newError(ErrCodeInvalidState, "pledge %d has no earlier pledge", id).with("pledge", id)
	}
	if p.State != Pledged {
		return newError(ErrCodeInvalidState, "pledge %d is %s", id, p.State).with("pledge", id)
	}
	owner, err := tx.admin(p.Owner)
	if err != nil {
		return err
	}
	if err := tx.checkAdminOwner(caller, owner); err != nil {
		return err
	}
	to, err := tx.oldestPledgeNotCanceled(p.OldPledge)
	if err != nil {
		return err
	}
	_, err = tx.moveValue(id, to, amount)
	return err
}
