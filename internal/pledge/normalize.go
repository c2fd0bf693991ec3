package pledge

import "context"

// Normalize resolves a matured intent and chases canceled projects,
// returning the pledge that now holds the value.
func (l *Ledger) Normalize(ctx context.Context, id PledgeID) (PledgeID, error) {
	var resolved PledgeID
	err := l.update(ctx, "normalize", func(tx *txn) (err error) {
		resolved, err = tx.normalize(id)
		return err
	})
	return resolved, err
}

func (tx *txn) normalize(id PledgeID) (PledgeID, error) {
	p, err := tx.pledge(id)
	if err != nil {
		return 0, err
	}
	if p.State != Pledged {
		return id, nil
	}

	if p.IntendedProject != 0 && tx.now > p.CommitTime {
		old := tx.sibling(p, Pledged)
		to := tx.intern(p.IntendedProject, nil, 0, 0, old, Pledged)
		if _, err := tx.moveValue(id, to, p.Amount); err != nil {
			return 0, err
		}
		id = to
		if p, err = tx.pledge(id); err != nil {
			return 0, err
		}
	}

	to, err := tx.oldestPledgeNotCanceled(id)
	if err != nil {
		return 0, err
	}
	if to != id {
		if _, err := tx.moveValue(id, to, p.Amount); err != nil {
			return 0, err
		}
	}
	return to, nil
}

// oldestPledgeNotCanceled follows oldPledge until it reaches a pledge
// owned by a giver or by a project with no canceled ancestor.
func (tx *txn) oldestPledgeNotCanceled(id PledgeID) (PledgeID, error) {
	for hops := 0; hops <= MaxInterprojectLevel+1; hops++ {
		if id == 0 {
			return 0, newError(ErrCodeInvariantViolation, "provenance ends in a canceled project")
		}
		p, err := tx.pledge(id)
		if err != nil {
			return 0, err
		}
		canceled, err := tx.isProjectCanceled(p.Owner)
		if err != nil {
			return 0, err
		}
		if !canceled {
			return id, nil
		}
		id = p.OldPledge
	}
	return 0, newError(ErrCodeInvariantViolation, "provenance of pledge %d is longer than %d", id, MaxInterprojectLevel+1)
}
