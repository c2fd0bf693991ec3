package pledge

// PledgeCount returns the number of committed pledges, excluding the
// sentinel.
func (l *Ledger) PledgeCount() int {
	return int(l.pledgeCount.Load())
}

// Pledge returns a copy of a pledge.
func (l *Ledger) Pledge(id PledgeID) (Pledge, error) {
	if l.hooking() {
		return Pledge{}, errReentrant("pledge")
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	p, err := l.pledgeAt(id)
	return p.clone(), err
}

// AdminCount returns the number of committed admins, excluding the
// sentinel.
func (l *Ledger) AdminCount() int {
	return int(l.adminCount.Load())
}

// Admin returns a copy of an admin.
func (l *Ledger) Admin(id AdminID) (Admin, error) {
	if l.hooking() {
		return Admin{}, errReentrant("admin")
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	a, err := l.adminAt(id)
	return a.clone(), err
}

// PledgeDelegate returns the delegate at 1-based position idx of a
// pledge's chain.
func (l *Ledger) PledgeDelegate(id PledgeID, idx int) (Admin, error) {
	if l.hooking() {
		return Admin{}, errReentrant("pledge_delegate")
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	p, err := l.pledgeAt(id)
	if err != nil {
		return Admin{}, err
	}
	if idx < 1 || idx > len(p.Chain) {
		return Admin{}, newError(ErrCodeNotFound, "pledge %d has no delegate at position %d", id, idx).
			with("pledge", id).with("position", idx)
	}
	a, err := l.adminAt(p.Chain[idx-1])
	return a.clone(), err
}

// TotalValue sums every committed pledge amount, Paid pledges included.
func (l *Ledger) TotalValue() uint64 {
	return l.total.Load()
}

// Seq returns the sequence number of the last committed transaction.
func (l *Ledger) Seq() int64 {
	return l.seq.current()
}

// Snapshot is the complete state of a ledger, sentinels excluded.
type Snapshot struct {
	Seq     int64
	Admins  []Admin
	Pledges []Pledge
}

// Snapshot copies the ledger's state.
func (l *Ledger) Snapshot() (Snapshot, error) {
	if l.hooking() {
		return Snapshot{}, errReentrant("snapshot")
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	s := Snapshot{
		Seq:     l.seq.current(),
		Admins:  make([]Admin, 0, len(l.admins)-1),
		Pledges: make([]Pledge, 0, len(l.pledges)-1),
	}
	for _, a := range l.admins[1:] {
		s.Admins = append(s.Admins, a.clone())
	}
	for _, p := range l.pledges[1:] {
		s.Pledges = append(s.Pledges, p.clone())
	}
	return s, nil
}

// Restore replaces the ledger's state with s. Ids must be dense and start
// at 1; plugins referenced by admins must already be installed.
func (l *Ledger) Restore(s Snapshot) error {
	if l.hooking() {
		return errReentrant("restore")
	}
	admins := []Admin{{}}
	for i, a := range s.Admins {
		if a.ID != AdminID(i+1) {
			return newError(ErrCodeInvariantViolation, "snapshot admin %d at position %d", a.ID, i+1)
		}
		if (a.Kind == Project) != (a.Project != nil) {
			return newError(ErrCodeInvariantViolation, "snapshot admin %d has inconsistent project data", a.ID)
		}
		admins = append(admins, a.clone())
	}

	pledges := []Pledge{{}}
	keys := []string{""}
	var total uint64
	index := make(map[string]PledgeID, len(s.Pledges))
	for i, p := range s.Pledges {
		if p.ID != PledgeID(i+1) {
			return newError(ErrCodeInvariantViolation, "snapshot pledge %d at position %d", p.ID, i+1)
		}
		key := p.Key()
		if _, dup := index[key]; dup {
			return newError(ErrCodeInvariantViolation, "snapshot pledge %d duplicates an earlier configuration", p.ID)
		}
		pledges = append(pledges, p.clone())
		keys = append(keys, key)
		total += p.Amount
		index[key] = p.ID
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	l.admins = admins
	l.pledges = pledges
	l.keys = keys
	l.index = index
	l.seq.reset(s.Seq)
	l.pledgeCount.Store(int64(len(pledges) - 1))
	l.adminCount.Store(int64(len(admins) - 1))
	l.total.Store(total)
	return nil
}
