package pledge_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/pledgeflow/internal/pledge"
)

func TestNew_Empty(t *testing.T) {
	l := pledge.New()
	assert.Equal(t, 0, l.PledgeCount())
	assert.Equal(t, 0, l.AdminCount())
	assert.Equal(t, uint64(0), l.TotalValue())
	assert.Equal(t, int64(0), l.Seq())

	_, err := l.Pledge(0)
	requireCode(t, err, pledge.ErrCodeNotFound)
	_, err = l.Admin(0)
	requireCode(t, err, pledge.ErrCodeNotFound)
}

func TestScenario_DonateTransferWithdrawConfirm(t *testing.T) {
	f := newFixture(t)
	g := f.giver("g", 0)
	a := f.project("a", 0)

	f.donate("g", g, 10000)
	require.Equal(t, 1, f.ledger.PledgeCount())
	p1 := f.pledge(1)
	assert.Equal(t, uint64(10000), p1.Amount)
	assert.Equal(t, g, p1.Owner)
	assert.Equal(t, pledge.Pledged, p1.State)
	assert.Empty(t, p1.Chain)

	f.transfer("g", g, 1, 10000, a)
	p2 := f.pledge(2)
	assert.Equal(t, a, p2.Owner)
	assert.Equal(t, uint64(10000), p2.Amount)
	assert.Equal(t, pledge.PledgeID(1), p2.OldPledge)
	assert.Equal(t, uint64(0), f.amount(1))

	_, err := f.ledger.Withdraw(f.ctx, "a", 2, 11000)
	requireCode(t, err, pledge.ErrCodeInsufficientBalance)
	assert.Equal(t, 2, f.ledger.PledgeCount(), "failed withdraw leaves no pledge behind")
	assert.Empty(t, f.vault.authorized())

	w, err := f.ledger.Withdraw(f.ctx, "a", 2, 1000)
	require.NoError(t, err)
	assert.Equal(t, pledge.PledgeID(3), w.Pledge)
	assert.Equal(t, uint64(1000), w.Amount)
	p3 := f.pledge(3)
	assert.Equal(t, pledge.Paying, p3.State)
	assert.Equal(t, a, p3.Owner)
	assert.Equal(t, uint64(1000), p3.Amount)
	assert.Equal(t, uint64(9000), f.amount(2))
	assert.Equal(t, map[uint64]authorization{
		w.PaymentID: {Ref: 3, Dest: "a", Amount: 1000},
	}, f.vault.authorized())

	require.NoError(t, f.ledger.ConfirmPayment(f.ctx, vaultAddr, 3, 1000))
	p4 := f.pledge(4)
	assert.Equal(t, pledge.Paid, p4.State)
	assert.Equal(t, uint64(1000), p4.Amount)
	assert.Equal(t, uint64(0), f.amount(3))
	assert.Equal(t, uint64(10000), f.ledger.TotalValue())
}

func TestScenario_DelegateChain(t *testing.T) {
	f := newFixture(t)
	g := f.giver("g", 0)
	d1 := f.delegate("d1", 0)
	d2 := f.delegate("d2", 0)
	d3 := f.delegate("d3", 0)

	f.donate("g", g, 100)
	f.transfer("g", g, 1, 100, d1)
	assert.Equal(t, []pledge.AdminID{d1}, f.chain(2))

	f.transfer("d1", d1, 2, 50, d2)
	assert.Equal(t, []pledge.AdminID{d1, d2}, f.chain(3))

	// D1 at position 0 sends to D3, which is not in the chain: D2 is dropped.
	f.transfer("d1", d1, 3, 20, d3)
	assert.Equal(t, []pledge.AdminID{d1, d3}, f.chain(4))
	assert.Equal(t, uint64(20), f.amount(4))
	assert.Equal(t, uint64(30), f.amount(3))

	// D2 at position 1 sends to D1 at position 0: everyone after D1 goes,
	// D2 itself included.
	f.transfer("d2", d2, 3, 30, d1)
	assert.Equal(t, uint64(0), f.amount(3))
	assert.Equal(t, []pledge.AdminID{d1}, f.chain(2))
	assert.Equal(t, uint64(80), f.amount(2))
	assert.Equal(t, 4, f.ledger.PledgeCount())
}

func TestInterning_SameConfigurationSameID(t *testing.T) {
	f := newFixture(t)
	g := f.giver("g", 0)
	d := f.delegate("d", 0)

	f.donate("g", g, 100)
	f.transfer("g", g, 1, 10, d)
	f.transfer("g", g, 1, 10, d)
	f.donate("g", g, 5)

	assert.Equal(t, 2, f.ledger.PledgeCount())
	assert.Equal(t, uint64(85), f.amount(1))
	assert.Equal(t, uint64(20), f.amount(2))
	assert.Equal(t, f.pledge(2).Key(), f.pledge(2).Key())
	assert.NotEqual(t, f.pledge(1).Key(), f.pledge(2).Key())
}

func TestConservation_AllowAllPlugins(t *testing.T) {
	f := newFixture(t)
	g1 := f.giver("g1", 0)
	g2 := f.giver("g2", 0)
	d1 := f.delegate("d1", 50)
	d2 := f.delegate("d2", 0)
	a := f.project("a", 0)
	b := f.project("b", a)

	f.donate("g1", g1, 700)
	f.donate("g2", g2, 300)
	f.transfer("g1", g1, 1, 400, d1)
	f.transfer("d1", d1, 3, 150, d2)
	f.transfer("d2", d2, 4, 100, b)
	f.transfer("g2", g2, 2, 300, a)
	f.transfer("g1", g1, 1, 100, g2)
	_, err := f.ledger.Withdraw(f.ctx, "a", 6, 120)
	require.NoError(t, err)

	assert.Equal(t, uint64(1000), f.ledger.TotalValue())
	var sum uint64
	for _, p := range f.snapshot().Pledges {
		sum += p.Amount
	}
	assert.Equal(t, uint64(1000), sum)
}

func TestDelegationChain_Bound(t *testing.T) {
	f := newFixture(t)
	g := f.giver("g", 0)
	f.donate("g", g, 1)

	delegates := make([]pledge.AdminID, pledge.MaxDelegates+1)
	for i := range delegates {
		delegates[i] = f.delegate("d", 0)
	}

	// The owner starts the chain, then each delegate passes to the next.
	f.transfer("g", g, 1, 1, delegates[0])
	current := pledge.PledgeID(2)
	for i := 1; i < pledge.MaxDelegates; i++ {
		f.transfer("d", delegates[i-1], current, 1, delegates[i])
		current++
	}
	require.Len(t, f.chain(current), pledge.MaxDelegates)
	assert.Equal(t, uint64(1), f.amount(current))

	err := f.ledger.Transfer(f.ctx, "d", delegates[pledge.MaxDelegates-1], current, 1, delegates[pledge.MaxDelegates])
	requireCode(t, err, pledge.ErrCodeLimitExceeded)
	assert.Equal(t, uint64(1), f.amount(current))
}

func TestListener_ReceivesCommittedEvents(t *testing.T) {
	f := newFixture(t)
	g := f.giver("g", 0)
	a := f.project("a", 0)

	f.donate("g", g, 100)
	f.transfer("g", g, 1, 60, a)
	require.NoError(t, f.ledger.CancelProject(f.ctx, "a", a))

	assert.Equal(t, []pledge.Event{
		{Kind: pledge.EventTransfer, From: 0, To: 1, Amount: 100},
		{Kind: pledge.EventTransfer, From: 1, To: 2, Amount: 60},
		{Kind: pledge.EventProjectCanceled, Project: a},
	}, f.events)

	_, err := f.ledger.Withdraw(f.ctx, "a", 2, 1000)
	require.Error(t, err)
	assert.Len(t, f.events, 3, "aborted transactions emit nothing")
}
