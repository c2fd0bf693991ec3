package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/roach88/pledgeflow/internal/pledge"
	"github.com/roach88/pledgeflow/internal/testutil"
)

// createTestStore creates a new store in a temporary directory.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// createTestLedger creates a ledger journaling into s. txPrefix keeps tx ids
// of different ledgers on the same store apart.
func createTestLedger(t *testing.T, s *Store, txPrefix string, opts ...pledge.Option) *pledge.Ledger {
	t.Helper()
	base := []pledge.Option{
		pledge.WithClock(testutil.NewManualClock(1000)),
		pledge.WithTxIDGenerator(testutil.NewSequentialTxIDs(txPrefix)),
		pledge.WithCommitter(s),
	}
	return pledge.New(append(base, opts...)...)
}

// testPopulation is the ids created by populate.
type testPopulation struct {
	Giver    pledge.AdminID
	Delegate pledge.AdminID
	Project  pledge.AdminID
	Root     pledge.PledgeID
}

// populate registers a giver, a delegate and a project, donates 100 and
// delegates 60 of it. Five transactions are committed.
func populate(t *testing.T, l *pledge.Ledger) testPopulation {
	t.Helper()
	ctx := context.Background()

	giver, err := l.AddGiver(ctx, "alice", pledge.AdminSpec{Name: "Alice", CommitTime: 300})
	if err != nil {
		t.Fatalf("AddGiver() failed: %v", err)
	}
	delegate, err := l.AddDelegate(ctx, "dora", pledge.AdminSpec{Name: "Dora", URL: "https://dora.example"})
	if err != nil {
		t.Fatalf("AddDelegate() failed: %v", err)
	}
	project, err := l.AddProject(ctx, "pat", pledge.ProjectSpec{AdminSpec: pledge.AdminSpec{Name: "Wells"}})
	if err != nil {
		t.Fatalf("AddProject() failed: %v", err)
	}
	if _, err := l.Donate(ctx, "alice", giver, giver, 100); err != nil {
		t.Fatalf("Donate() failed: %v", err)
	}
	if err := l.Transfer(ctx, "alice", giver, 1, 60, delegate); err != nil {
		t.Fatalf("Transfer() failed: %v", err)
	}
	return testPopulation{Giver: giver, Delegate: delegate, Project: project, Root: 1}
}

// commitOne journals a changeset that registers one giver.
func commitOne(t *testing.T, s *Store, seq int64, txID string) {
	t.Helper()
	cs := pledge.Changeset{
		TxID: txID,
		Seq:  seq,
		Op:   "add_giver",
		Admins: []pledge.Admin{
			{ID: pledge.AdminID(seq), Kind: pledge.Giver, Addr: "alice", Name: "Alice"},
		},
	}
	if err := s.Commit(context.Background(), cs); err != nil {
		t.Fatalf("Commit(%s) failed: %v", txID, err)
	}
}
