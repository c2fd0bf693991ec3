package pledge

import "slices"

// appendDelegate moves amount from p into the same configuration with
// delegate added at the end of the chain.
func (tx *txn) appendDelegate(p Pledge, amount uint64, delegate AdminID) (uint64, error) {
	if len(p.Chain) >= MaxDelegates {
		return 0, newError(ErrCodeLimitExceeded, "pledge %d already has %d delegates", p.ID, len(p.Chain)).
			with("pledge", p.ID).with("limit", MaxDelegates)
	}
	chain := append(slices.Clone(p.Chain), delegate)
	to := tx.intern(p.Owner, chain, 0, 0, p.OldPledge, Pledged)
	return tx.moveValue(p.ID, to, amount)
}

// undelegate moves amount from p into the configuration whose chain lacks
// the last drop delegates. The intent is cleared either way.
func (tx *txn) undelegate(p Pledge, amount uint64, drop int) (PledgeID, uint64, error) {
	if drop < 0 || drop > len(p.Chain) {
		return 0, 0, newError(ErrCodeInvariantViolation, "cannot drop %d of %d delegates", drop, len(p.Chain))
	}
	chain := p.Chain[:len(p.Chain)-drop]
	to := tx.intern(p.Owner, chain, 0, 0, p.OldPledge, Pledged)
	moved, err := tx.moveValue(p.ID, to, amount)
	return to, moved, err
}

// maxCommitTime is the longest veto window among the owner and the chain.
func (tx *txn) maxCommitTime(p Pledge) (uint64, error) {
	owner, err := tx.admin(p.Owner)
	if err != nil {
		return 0, err
	}
	window := owner.CommitTime
	for _, id := range p.Chain {
		d, err := tx.admin(id)
		if err != nil {
			return 0, err
		}
		window = max(window, d.CommitTime)
	}
	return window, nil
}
