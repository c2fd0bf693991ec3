package pledge

import "slices"

// intern returns the id of the pledge with the given configuration,
// minting a zero-amount record the first time it is seen.
func (tx *txn) intern(owner AdminID, chain []AdminID, intended AdminID, commitTime uint64, old PledgeID, state State) PledgeID {
	l := tx.l
	key := pledgeKey(owner, chain, intended, commitTime, old, state)
	if id, ok := l.index[key]; ok {
		return id
	}

	var owned []AdminID
	if len(chain) > 0 {
		owned = slices.Clone(chain)
	}
	id := PledgeID(len(l.pledges))
	l.pledges = append(l.pledges, Pledge{
		ID:              id,
		Owner:           owner,
		Chain:           owned,
		IntendedProject: intended,
		CommitTime:      commitTime,
		OldPledge:       old,
		State:           state,
	})
	l.keys = append(l.keys, key)
	l.index[key] = id
	tx.dirtyPledges[id] = struct{}{}
	return id
}

// sibling interns p's owner, chain and provenance with the intent cleared.
func (tx *txn) sibling(p Pledge, state State) PledgeID {
	return tx.intern(p.Owner, p.Chain, 0, 0, p.OldPledge, state)
}

// pledgeLevel counts the oldPledge hops behind p.
func (tx *txn) pledgeLevel(p Pledge) (int, error) {
	level := 0
	for p.OldPledge != 0 {
		if level > MaxInterprojectLevel {
			return 0, newError(ErrCodeInvariantViolation, "pledge %d has more than %d ancestors", p.ID, MaxInterprojectLevel)
		}
		var err error
		if p, err = tx.pledge(p.OldPledge); err != nil {
			return 0, err
		}
		level++
	}
	return level, nil
}
