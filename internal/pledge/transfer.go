package pledge

import (
	"context"
	"math"
)

// Transfer moves amount of a pledge on behalf of sender, which caller must
// control. The pledge is normalized first; the resulting configuration
// depends on whether sender is the owner or a delegate and on receiver's
// kind.
func (l *Ledger) Transfer(ctx context.Context, caller Address, sender AdminID, id PledgeID, amount uint64, receiver AdminID) error {
	return l.update(ctx, "transfer", func(tx *txn) error {
		a, err := tx.admin(sender)
		if err != nil {
			return err
		}
		if err := tx.checkAdminOwner(caller, a); err != nil {
			return err
		}
		return tx.transfer(sender, id, amount, receiver)
	})
}

// Donate credits new value to a giver's root pledge and then transfers it
// to receiver. A zero giver registers a new giver controlled by caller.
// It returns the giver the value was credited to, or 0 if the donation
// failed.
func (l *Ledger) Donate(ctx context.Context, caller Address, giver AdminID, receiver AdminID, amount uint64) (AdminID, error) {
	err := l.update(ctx, "donate", func(tx *txn) error {
		if amount == 0 {
			return newError(ErrCodeInvalidState, "donation amount must be positive")
		}
		if giver == 0 {
			id, err := tx.addAdmin(Giver, caller, AdminSpec{CommitTime: tx.l.defaultCommitTime}, nil)
			if err != nil {
				return err
			}
			giver = id
		}
		g, err := tx.admin(giver)
		if err != nil {
			return err
		}
		if g.Kind != Giver {
			return newError(ErrCodeTypeMismatch, "admin %d is a %s, not a Giver", giver, g.Kind)
		}
		if err := tx.checkAdminOwner(caller, g); err != nil {
			return err
		}
		if _, err := tx.admin(receiver); err != nil {
			return err
		}

		id := tx.intern(giver, nil, 0, 0, 0, Pledged)
		p, err := tx.pledge(id)
		if err != nil {
			return err
		}
		if p.Amount+amount < p.Amount {
			return newError(ErrCodeInvariantViolation, "crediting %d overflows pledge %d", amount, id)
		}
		tx.setAmount(id, p.Amount+amount)
		tx.emit(Event{Kind: EventTransfer, To: id, Amount: amount})
		return tx.transfer(giver, id, amount, receiver)
	})
	if err != nil {
		return 0, err
	}
	return giver, nil
}

// transfer dispatches a movement once the sender's authority is
// established.
func (tx *txn) transfer(sender AdminID, id PledgeID, amount uint64, receiver AdminID) error {
	id, err := tx.normalize(id)
	if err != nil {
		return err
	}
	p, err := tx.pledge(id)
	if err != nil {
		return err
	}
	recv, err := tx.admin(receiver)
	if err != nil {
		return err
	}
	if p.State != Pledged {
		return newError(ErrCodeInvalidState, "pledge %d is %s", id, p.State).with("pledge", id)
	}

	if p.Owner == sender {
		return tx.transferAsOwner(p, amount, recv)
	}
	if s := p.delegateIndex(sender); s != notFound {
		return tx.transferAsDelegate(p, s, amount, recv)
	}
	return newError(ErrCodeUnauthorized, "admin %d is neither owner nor delegate of pledge %d", sender, id).
		with("admin", sender).with("pledge", id)
}

func (tx *txn) transferAsOwner(p Pledge, amount uint64, recv Admin) error {
	switch recv.Kind {
	case Giver:
		return tx.transferOwnershipToGiver(p, amount, recv.ID)
	case Project:
		return tx.transferOwnershipToProject(p, amount, recv.ID)
	case Delegate:
		if r := p.delegateIndex(recv.ID); p.IntendedProject != 0 && r != notFound {
			// The owner vetoes the intent but keeps the chain up to the receiver.
			if r == len(p.Chain)-1 {
				_, err := tx.moveValue(p.ID, tx.sibling(p, Pledged), amount)
				return err
			}
			_, _, err := tx.undelegate(p, amount, len(p.Chain)-r-1)
			return err
		}
		return tx.resetAndAppend(p, len(p.Chain), amount, recv.ID)
	}
	return newError(ErrCodeInvariantViolation, "unknown receiver kind %d", recv.Kind)
}

func (tx *txn) transferAsDelegate(p Pledge, s int, amount uint64, recv Admin) error {
	switch recv.Kind {
	case Giver:
		if recv.ID != p.Owner {
			return newError(ErrCodeInvariantViolation, "delegate can only return pledge %d to its owner %d, not %d", p.ID, p.Owner, recv.ID)
		}
		_, _, err := tx.undelegate(p, amount, len(p.Chain))
		return err
	case Delegate:
		r := p.delegateIndex(recv.ID)
		if r == notFound || r > s {
			return tx.resetAndAppend(p, len(p.Chain)-s-1, amount, recv.ID)
		}
		// A receiver earlier in the chain drops everyone after it, the
		// sender included.
		_, _, err := tx.undelegate(p, amount, len(p.Chain)-r-1)
		return err
	case Project:
		id, moved, err := tx.undelegate(p, amount, len(p.Chain)-s-1)
		if err != nil {
			return err
		}
		next, err := tx.pledge(id)
		if err != nil {
			return err
		}
		return tx.proposeAssignProject(next, moved, recv.ID)
	}
	return newError(ErrCodeInvariantViolation, "unknown receiver kind %d", recv.Kind)
}

// resetAndAppend drops the last drop delegates and appends delegate.
func (tx *txn) resetAndAppend(p Pledge, drop int, amount uint64, delegate AdminID) error {
	id, moved, err := tx.undelegate(p, amount, drop)
	if err != nil {
		return err
	}
	next, err := tx.pledge(id)
	if err != nil {
		return err
	}
	_, err = tx.appendDelegate(next, moved, delegate)
	return err
}

func (tx *txn) transferOwnershipToGiver(p Pledge, amount uint64, giver AdminID) error {
	to := tx.intern(giver, nil, 0, 0, 0, Pledged)
	_, err := tx.moveValue(p.ID, to, amount)
	return err
}

func (tx *txn) transferOwnershipToProject(p Pledge, amount uint64, project AdminID) error {
	if err := tx.checkProjectTarget(p, project); err != nil {
		return err
	}
	old := tx.sibling(p, Pledged)
	to := tx.intern(project, nil, 0, 0, old, Pledged)
	_, err := tx.moveValue(p.ID, to, amount)
	return err
}

// proposeAssignProject sets project as the pledge's intent, vetoable until
// the longest commit window of the owner and chain elapses.
func (tx *txn) proposeAssignProject(p Pledge, amount uint64, project AdminID) error {
	if err := tx.checkProjectTarget(p, project); err != nil {
		return err
	}
	window, err := tx.maxCommitTime(p)
	if err != nil {
		return err
	}
	deadline := tx.now + window
	if deadline < tx.now {
		deadline = math.MaxUint64
	}
	to := tx.intern(p.Owner, p.Chain, project, deadline, p.OldPledge, Pledged)
	_, err = tx.moveValue(p.ID, to, amount)
	return err
}

func (tx *txn) checkProjectTarget(p Pledge, project AdminID) error {
	level, err := tx.pledgeLevel(p)
	if err != nil {
		return err
	}
	if level >= MaxInterprojectLevel {
		return newError(ErrCodeLimitExceeded, "pledge %d is %d transfers deep", p.ID, level).
			with("pledge", p.ID).with("limit", MaxInterprojectLevel)
	}
	canceled, err := tx.isProjectCanceled(project)
	if err != nil {
		return err
	}
	if canceled {
		return newError(ErrCodeProjectCanceled, "project %d is canceled", project).with("project", project)
	}
	return nil
}
