package pledge_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roach88/pledgeflow/internal/pledge"
	"github.com/roach88/pledgeflow/internal/testutil"
)

const vaultAddr pledge.Address = "vault"

type authorization struct {
	Ref    pledge.PledgeID
	Dest   pledge.Address
	Amount uint64
}

// stubVault records authorizations in memory.
type stubVault struct {
	mu       sync.Mutex
	next     uint64
	payments map[uint64]authorization
	voided   []uint64
	fail     error
}

func newStubVault() *stubVault {
	return &stubVault{payments: make(map[uint64]authorization)}
}

func (v *stubVault) Address() pledge.Address { return vaultAddr }

func (v *stubVault) AuthorizePayment(_ context.Context, ref pledge.PledgeID, dest pledge.Address, amount uint64) (uint64, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.fail != nil {
		return 0, v.fail
	}
	v.next++
	v.payments[v.next] = authorization{Ref: ref, Dest: dest, Amount: amount}
	return v.next, nil
}

func (v *stubVault) VoidPayment(_ context.Context, id uint64) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	delete(v.payments, id)
	v.voided = append(v.voided, id)
	return nil
}

func (v *stubVault) authorized() map[uint64]authorization {
	v.mu.Lock()
	defer v.mu.Unlock()
	out := make(map[uint64]authorization, len(v.payments))
	for k, a := range v.payments {
		out[k] = a
	}
	return out
}

// recordingCommitter keeps every changeset and can be told to fail.
type recordingCommitter struct {
	changesets []pledge.Changeset
	fail       error
}

var errCommit = errors.New("disk full")

func (c *recordingCommitter) Commit(_ context.Context, cs pledge.Changeset) error {
	if c.fail != nil {
		return c.fail
	}
	c.changesets = append(c.changesets, cs)
	return nil
}

type fixture struct {
	t      *testing.T
	ctx    context.Context
	ledger *pledge.Ledger
	clock  *testutil.ManualClock
	vault  *stubVault

	mu     sync.Mutex
	events []pledge.Event
}

func newFixture(t *testing.T, opts ...pledge.Option) *fixture {
	t.Helper()
	f := &fixture{
		t:     t,
		ctx:   context.Background(),
		clock: testutil.NewManualClock(1000),
		vault: newStubVault(),
	}
	base := []pledge.Option{
		pledge.WithClock(f.clock),
		pledge.WithVault(f.vault),
		pledge.WithTxIDGenerator(testutil.NewSequentialTxIDs("")),
		pledge.WithListener(func(ev pledge.Event) {
			f.mu.Lock()
			defer f.mu.Unlock()
			f.events = append(f.events, ev)
		}),
	}
	f.ledger = pledge.New(append(base, opts...)...)
	return f
}

func (f *fixture) giver(addr string, commitTime uint64) pledge.AdminID {
	f.t.Helper()
	id, err := f.ledger.AddGiver(f.ctx, pledge.Address(addr), pledge.AdminSpec{Name: addr, CommitTime: commitTime})
	require.NoError(f.t, err)
	return id
}

func (f *fixture) delegate(addr string, commitTime uint64) pledge.AdminID {
	f.t.Helper()
	id, err := f.ledger.AddDelegate(f.ctx, pledge.Address(addr), pledge.AdminSpec{Name: addr, CommitTime: commitTime})
	require.NoError(f.t, err)
	return id
}

func (f *fixture) project(addr string, parent pledge.AdminID) pledge.AdminID {
	f.t.Helper()
	id, err := f.ledger.AddProject(f.ctx, pledge.Address(addr), pledge.ProjectSpec{
		AdminSpec: pledge.AdminSpec{Name: addr},
		Parent:    parent,
	})
	require.NoError(f.t, err)
	return id
}

// donate credits amount to the giver's root pledge, controlled by addr.
func (f *fixture) donate(addr string, giver pledge.AdminID, amount uint64) {
	f.t.Helper()
	_, err := f.ledger.Donate(f.ctx, pledge.Address(addr), giver, giver, amount)
	require.NoError(f.t, err)
}

func (f *fixture) transfer(addr string, sender pledge.AdminID, id pledge.PledgeID, amount uint64, receiver pledge.AdminID) {
	f.t.Helper()
	require.NoError(f.t, f.ledger.Transfer(f.ctx, pledge.Address(addr), sender, id, amount, receiver))
}

func (f *fixture) pledge(id pledge.PledgeID) pledge.Pledge {
	f.t.Helper()
	p, err := f.ledger.Pledge(id)
	require.NoError(f.t, err)
	return p
}

func (f *fixture) snapshot() pledge.Snapshot {
	f.t.Helper()
	s, err := f.ledger.Snapshot()
	require.NoError(f.t, err)
	return s
}

func (f *fixture) amount(id pledge.PledgeID) uint64 {
	f.t.Helper()
	return f.pledge(id).Amount
}

func (f *fixture) chain(id pledge.PledgeID) []pledge.AdminID {
	f.t.Helper()
	return f.pledge(id).Chain
}

func requireCode(t *testing.T, err error, code pledge.ErrorCode) {
	t.Helper()
	require.Error(t, err)
	require.Equal(t, code, pledge.CodeOf(err), "error: %v", err)
}
