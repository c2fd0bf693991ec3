package pledge

import (
	"context"
	"fmt"
	"slices"
)

// txn is one in-flight transaction. It journals enough to restore the
// ledger exactly as it was when the transaction began.
type txn struct {
	l   *Ledger
	ctx context.Context
	op  string
	now uint64

	adminMark  int
	pledgeMark int
	undo       []func()

	events       []Event
	valueDelta   uint64
	dirtyAdmins  map[AdminID]struct{}
	dirtyPledges map[PledgeID]struct{}
}

// update runs fn as one transaction. Listeners are notified after the
// mutex is released so they may query the ledger. A panic inside fn rolls
// the transaction back and is returned as ErrCodeInvariantViolation.
func (l *Ledger) update(ctx context.Context, op string, fn func(tx *txn) error) error {
	if inHook(ctx) || l.hooking() {
		return errReentrant(op)
	}

	l.mu.Lock()
	cs, listeners, err := l.run(ctx, op, fn)
	l.mu.Unlock()
	if err != nil {
		l.metrics.aborted(op, CodeOf(err))
		l.logger.Warn("transaction aborted", "op", op, "code", CodeOf(err), "error", err)
		return err
	}

	for _, ev := range cs.Events {
		for _, fn := range listeners {
			fn(ev)
		}
	}
	return nil
}

// run executes and commits one transaction. Callers hold l.mu.
func (l *Ledger) run(ctx context.Context, op string, fn func(tx *txn) error) (cs Changeset, listeners []Listener, err error) {
	tx := l.begin(ctx, op)
	defer func() {
		if r := recover(); r != nil {
			tx.rollback()
			l.logger.Error("transaction panicked", "op", op, "panic", r)
			cs, listeners = Changeset{}, nil
			err = newError(ErrCodeInvariantViolation, "%s panicked: %v", op, r).with("op", op)
		}
	}()

	if err := fn(tx); err != nil {
		tx.rollback()
		return Changeset{}, nil, err
	}
	cs, err = tx.commit()
	if err != nil {
		return Changeset{}, nil, err
	}
	l.publish(tx)
	return cs, l.listeners, nil
}

func (l *Ledger) begin(ctx context.Context, op string) *txn {
	return &txn{
		l:            l,
		ctx:          ctx,
		op:           op,
		now:          l.clock.Now(),
		adminMark:    len(l.admins),
		pledgeMark:   len(l.pledges),
		dirtyAdmins:  make(map[AdminID]struct{}),
		dirtyPledges: make(map[PledgeID]struct{}),
	}
}

// commit hands the changeset to the committer and, on success, advances
// the sequence. A committer error rolls the transaction back.
func (tx *txn) commit() (Changeset, error) {
	l := tx.l
	cs := Changeset{
		Seq:    l.seq.next(),
		Op:     tx.op,
		Events: tx.events,
	}
	for _, id := range sortedKeys(tx.dirtyAdmins) {
		cs.Admins = append(cs.Admins, l.admins[id].clone())
	}
	for _, id := range sortedKeys(tx.dirtyPledges) {
		cs.Pledges = append(cs.Pledges, l.pledges[id].clone())
	}
	if cs.Empty() {
		return cs, nil
	}
	cs.TxID = l.txIDs.Generate()

	if l.committer != nil {
		if err := l.committer.Commit(tx.ctx, cs); err != nil {
			tx.rollback()
			return Changeset{}, fmt.Errorf("commit %s: %w", tx.op, err)
		}
	}

	l.seq.advance()
	l.metrics.committed(cs, len(l.pledges)-1, len(l.admins)-1)
	l.logger.Debug("transaction committed",
		"op", tx.op,
		"tx_id", cs.TxID,
		"seq", cs.Seq,
		"admins", len(cs.Admins),
		"pledges", len(cs.Pledges),
		"events", len(cs.Events),
	)
	return cs, nil
}

// rollback undoes every journaled mutation in reverse order, then drops
// records appended during the transaction.
func (tx *txn) rollback() {
	l := tx.l
	for i := len(tx.undo) - 1; i >= 0; i-- {
		tx.undo[i]()
	}
	tx.undo = nil
	for _, key := range l.keys[tx.pledgeMark:] {
		delete(l.index, key)
	}
	l.pledges = l.pledges[:tx.pledgeMark]
	l.keys = l.keys[:tx.pledgeMark]
	l.admins = l.admins[:tx.adminMark]
	tx.events = nil
	tx.valueDelta = 0
}

// publish refreshes the committed counters read by PledgeCount, AdminCount
// and TotalValue. Callers hold l.mu.
func (l *Ledger) publish(tx *txn) {
	l.pledgeCount.Store(int64(len(l.pledges) - 1))
	l.adminCount.Store(int64(len(l.admins) - 1))
	l.total.Add(tx.valueDelta)
}

func (tx *txn) pledge(id PledgeID) (Pledge, error) {
	return tx.l.pledgeAt(id)
}

func (tx *txn) admin(id AdminID) (Admin, error) {
	return tx.l.adminAt(id)
}

// setAmount is the only way balances change.
func (tx *txn) setAmount(id PledgeID, amount uint64) {
	l := tx.l
	old := l.pledges[id].Amount
	tx.undo = append(tx.undo, func() { l.pledges[id].Amount = old })
	l.pledges[id].Amount = amount
	tx.valueDelta += amount - old
	tx.dirtyPledges[id] = struct{}{}
}

// putAdmin replaces an existing admin record.
func (tx *txn) putAdmin(a Admin) {
	l := tx.l
	old := l.admins[a.ID].clone()
	tx.undo = append(tx.undo, func() { l.admins[old.ID] = old })
	l.admins[a.ID] = a.clone()
	tx.dirtyAdmins[a.ID] = struct{}{}
}

// appendAdmin allocates the next admin id.
func (tx *txn) appendAdmin(a Admin) AdminID {
	l := tx.l
	a.ID = AdminID(len(l.admins))
	l.admins = append(l.admins, a.clone())
	tx.dirtyAdmins[a.ID] = struct{}{}
	return a.ID
}

func (tx *txn) emit(ev Event) {
	tx.events = append(tx.events, ev)
}

// onRollback registers a compensation for effects outside the ledger.
func (tx *txn) onRollback(fn func()) {
	tx.undo = append(tx.undo, fn)
}

// hookContext is the context handed to plugins and the vault.
func (tx *txn) hookContext() context.Context {
	return withinHook(tx.ctx)
}

// view exposes in-flight state to plugins.
func (tx *txn) view() View {
	return txView{tx: tx}
}

type txView struct {
	tx *txn
}

func (v txView) Pledge(id PledgeID) (Pledge, error) {
	p, err := v.tx.pledge(id)
	return p.clone(), err
}

func (v txView) Admin(id AdminID) (Admin, error) {
	a, err := v.tx.admin(id)
	return a.clone(), err
}

func (v txView) Now() uint64 {
	return v.tx.now
}

func sortedKeys[K ~uint64](m map[K]struct{}) []K {
	keys := make([]K, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
