package pledge_test

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	promtestutil "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/roach88/pledgeflow/internal/pledge"
)

func TestRollback_FailedBatchLeavesStateIdentical(t *testing.T) {
	committer := &recordingCommitter{}
	f := newFixture(t, pledge.WithCommitter(committer))
	g := f.giver("g", 0)
	d := f.delegate("d", 0)
	a := f.project("a", 0)
	f.donate("g", g, 100)
	f.transfer("g", g, 1, 50, d)

	before := f.snapshot()
	seq := f.ledger.Seq()
	commits := len(committer.changesets)
	events := len(f.events)

	err := f.ledger.TransferMany(f.ctx, "g", g, []pledge.PledgeAmount{
		{Pledge: 1, Amount: 30},
		{Pledge: 2, Amount: 10},
		{Pledge: 1, Amount: 30},
	}, a)
	requireCode(t, err, pledge.ErrCodeInsufficientBalance)
	assert.Contains(t, err.Error(), "item 2")

	assert.Equal(t, before, f.snapshot())
	assert.Equal(t, seq, f.ledger.Seq())
	assert.Len(t, committer.changesets, commits)
	assert.Len(t, f.events, events)

	// The ids minted by the aborted batch are minted again.
	f.transfer("g", g, 1, 30, a)
	assert.Equal(t, a, f.pledge(3).Owner)
}

func TestDonate(t *testing.T) {
	f := newFixture(t, pledge.WithDefaultCommitTime(77))
	a := f.project("a", 0)

	giver, err := f.ledger.Donate(f.ctx, "newcomer", 0, a, 500)
	require.NoError(t, err)
	assert.Equal(t, pledge.AdminID(2), giver)

	g, err := f.ledger.Admin(giver)
	require.NoError(t, err)
	assert.Equal(t, pledge.Giver, g.Kind)
	assert.Equal(t, pledge.Address("newcomer"), g.Addr)
	assert.Equal(t, uint64(77), g.CommitTime)

	assert.Equal(t, uint64(0), f.amount(1))
	assert.Equal(t, uint64(500), f.amount(2))
	assert.Equal(t, a, f.pledge(2).Owner)

	_, err = f.ledger.Donate(f.ctx, "newcomer", giver, a, 0)
	requireCode(t, err, pledge.ErrCodeInvalidState)
	_, err = f.ledger.Donate(f.ctx, "mallory", giver, a, 1)
	requireCode(t, err, pledge.ErrCodeUnauthorized)
	_, err = f.ledger.Donate(f.ctx, "a", a, a, 1)
	requireCode(t, err, pledge.ErrCodeTypeMismatch)
	_, err = f.ledger.Donate(f.ctx, "newcomer", giver, 99, 1)
	requireCode(t, err, pledge.ErrCodeNotFound)

	// A failed donation does not hand out the giver it rolled back.
	rolledBack, err := f.ledger.Donate(f.ctx, "newcomer", 0, 99, 1)
	requireCode(t, err, pledge.ErrCodeNotFound)
	assert.Zero(t, rolledBack)

	_, err = f.ledger.Donate(f.ctx, "", 0, a, 1)
	requireCode(t, err, pledge.ErrCodeUnauthorized)
	assert.Equal(t, 2, f.ledger.AdminCount())
}

func TestDonate_OverflowIsRejected(t *testing.T) {
	f := newFixture(t)
	g := f.giver("g", 0)
	f.donate("g", g, ^uint64(0))

	_, err := f.ledger.Donate(f.ctx, "g", g, g, 1)
	requireCode(t, err, pledge.ErrCodeInvariantViolation)
	assert.Equal(t, ^uint64(0), f.ledger.TotalValue())
}

func TestRollback_PanicKeepsLedgerUsable(t *testing.T) {
	committer := &panickingCommitter{}
	f := newFixture(t, pledge.WithCommitter(committer))
	g := f.giver("g", 0)
	d := f.delegate("d", 0)
	f.donate("g", g, 100)
	before := f.snapshot()
	seq := f.ledger.Seq()

	committer.armed = true
	err := f.ledger.Transfer(f.ctx, "g", g, 1, 40, d)
	requireCode(t, err, pledge.ErrCodeInvariantViolation)
	assert.Equal(t, before, f.snapshot())
	assert.Equal(t, seq, f.ledger.Seq())
	assert.Equal(t, uint64(100), f.ledger.TotalValue())

	committer.armed = false
	f.transfer("g", g, 1, 40, d)
	assert.Equal(t, uint64(60), f.amount(1))
	assert.Equal(t, 2, f.ledger.PledgeCount())
}

type panickingCommitter struct {
	armed bool
}

func (c *panickingCommitter) Commit(context.Context, pledge.Changeset) error {
	if c.armed {
		panic("journal corrupted")
	}
	return nil
}

func TestCommitter_ReceivesChangesets(t *testing.T) {
	committer := &recordingCommitter{}
	f := newFixture(t, pledge.WithCommitter(committer))
	g := f.giver("g", 0)
	a := f.project("a", 0)
	f.donate("g", g, 100)
	f.transfer("g", g, 1, 40, a)

	// A no-op normalization commits nothing.
	_, err := f.ledger.Normalize(f.ctx, 1)
	require.NoError(t, err)

	require.Len(t, committer.changesets, 4)
	ops := make([]string, len(committer.changesets))
	for i, cs := range committer.changesets {
		ops[i] = cs.Op
		assert.Equal(t, int64(i+1), cs.Seq)
	}
	assert.Equal(t, []string{"add_giver", "add_project", "donate", "transfer"}, ops)

	last := committer.changesets[3]
	assert.Equal(t, "tx-0004", last.TxID)
	require.Len(t, last.Pledges, 2)
	assert.Equal(t, pledge.PledgeID(1), last.Pledges[0].ID)
	assert.Equal(t, uint64(60), last.Pledges[0].Amount)
	assert.Equal(t, pledge.PledgeID(2), last.Pledges[1].ID)
	assert.Equal(t, []pledge.Event{{Kind: pledge.EventTransfer, From: 1, To: 2, Amount: 40}}, last.Events)
	assert.Equal(t, int64(4), f.ledger.Seq())
}

func TestMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	f := newFixture(t, pledge.WithMetrics(reg))
	g := f.giver("g", 0)
	a := f.project("a", 0)
	f.donate("g", g, 100)
	f.transfer("g", g, 1, 40, a)
	_, err := f.ledger.Withdraw(f.ctx, "a", 2, 1000)
	require.Error(t, err)

	expected := `
# HELP pledgeflow_transfers_total committed value movements between pledges
# TYPE pledgeflow_transfers_total counter
pledgeflow_transfers_total 1
# HELP pledgeflow_value_moved_total sum of committed value movements
# TYPE pledgeflow_value_moved_total counter
pledgeflow_value_moved_total 40
# HELP pledgeflow_pledges number of interned pledges
# TYPE pledgeflow_pledges gauge
pledgeflow_pledges 2
# HELP pledgeflow_transactions_aborted_total rolled back ledger transactions by operation and error code
# TYPE pledgeflow_transactions_aborted_total counter
pledgeflow_transactions_aborted_total{code="INSUFFICIENT_BALANCE",op="withdraw"} 1
`
	require.NoError(t, promtestutil.GatherAndCompare(reg, strings.NewReader(expected),
		"pledgeflow_transfers_total",
		"pledgeflow_value_moved_total",
		"pledgeflow_pledges",
		"pledgeflow_transactions_aborted_total",
	))
	series, err := promtestutil.GatherAndCount(reg, "pledgeflow_transactions_committed_total")
	require.NoError(t, err)
	assert.Equal(t, 4, series)
}

func TestLogger_AbortsAreLogged(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	f := newFixture(t, pledge.WithLogger(logger))
	g := f.giver("g", 0)

	requireCode(t, f.ledger.Transfer(f.ctx, "g", g, 5, 1, g), pledge.ErrCodeNotFound)

	out := buf.String()
	assert.Contains(t, out, "transaction committed")
	assert.Contains(t, out, "transaction aborted")
	assert.Contains(t, out, "code=NOT_FOUND")
}

func TestSnapshotRestore(t *testing.T) {
	f := newFixture(t)
	g := f.giver("g", 0)
	d := f.delegate("d", 0)
	a := f.project("a", 0)
	f.donate("g", g, 100)
	f.transfer("g", g, 1, 30, d)
	f.transfer("d", d, 2, 30, a)

	snap := f.snapshot()
	restored := pledge.New()
	require.NoError(t, restored.Restore(snap))

	got, err := restored.Snapshot()
	require.NoError(t, err)
	assert.Equal(t, snap, got)
	assert.Equal(t, f.ledger.Seq(), restored.Seq())
	assert.Equal(t, f.ledger.TotalValue(), restored.TotalValue())

	// Interning continues from the restored index.
	_, err = restored.Donate(t.Context(), "g", g, g, 5)
	require.NoError(t, err)
	assert.Equal(t, 3, restored.PledgeCount())
	p, err := restored.Pledge(1)
	require.NoError(t, err)
	assert.Equal(t, uint64(75), p.Amount)
}

func TestRestore_RejectsGaps(t *testing.T) {
	l := pledge.New()
	err := l.Restore(pledge.Snapshot{Admins: []pledge.Admin{{ID: 2, Kind: pledge.Giver, Addr: "g"}}})
	requireCode(t, err, pledge.ErrCodeInvariantViolation)

	err = l.Restore(pledge.Snapshot{Pledges: []pledge.Pledge{{ID: 1}, {ID: 2}}})
	requireCode(t, err, pledge.ErrCodeInvariantViolation)
}

func TestConcurrentTransfers(t *testing.T) {
	defer goleak.VerifyNone(t)

	f := newFixture(t)
	g := f.giver("g", 0)
	d := f.delegate("d", 0)
	f.donate("g", g, 1000)
	f.events = nil

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 10; j++ {
				_ = f.ledger.Transfer(f.ctx, "g", g, 1, 10, d)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, uint64(0), f.amount(1))
	assert.Equal(t, uint64(1000), f.amount(2))
	assert.Equal(t, 2, f.ledger.PledgeCount())
}
