package store

import (
	"context"
	"testing"

	"github.com/roach88/pledgeflow/internal/pledge"
	"github.com/roach88/pledgeflow/internal/vault"
)

func TestVerify_EmptyJournal(t *testing.T) {
	s := createTestStore(t)

	got, err := s.Verify(context.Background())
	if err != nil {
		t.Fatalf("Verify() failed: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("Verify() = %+v, want no discrepancies", got)
	}
}

func TestVerify_ConsistentJournal(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	v := vault.New("vault", vault.WithRecorder(s))
	l := createTestLedger(t, s, "tx", pledge.WithVault(v))
	v.Attach(l)
	pop := populate(t, l)

	if err := l.Transfer(ctx, "dora", pop.Delegate, 2, 25, pop.Project); err != nil {
		t.Fatalf("Transfer() failed: %v", err)
	}
	w, err := l.Withdraw(ctx, "alice", pop.Root, 15)
	if err != nil {
		t.Fatalf("Withdraw() failed: %v", err)
	}
	if err := v.Cancel(ctx, w.PaymentID); err != nil {
		t.Fatalf("Cancel() failed: %v", err)
	}
	if err := l.CancelProject(ctx, "pat", pop.Project); err != nil {
		t.Fatalf("CancelProject() failed: %v", err)
	}

	got, err := s.Verify(ctx)
	if err != nil {
		t.Fatalf("Verify() failed: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("Verify() = %+v, want no discrepancies", got)
	}
}

func TestVerify_DetectsTamperedAmount(t *testing.T) {
	s := createTestStore(t)
	l := createTestLedger(t, s, "tx")
	populate(t, l)

	if _, err := s.db.Exec(`UPDATE pledges SET amount = '999' WHERE id = 1`); err != nil {
		t.Fatalf("tamper: %v", err)
	}

	got, err := s.Verify(context.Background())
	if err != nil {
		t.Fatalf("Verify() failed: %v", err)
	}
	want := Discrepancy{Pledge: 1, Journal: 40, Stored: 999}
	if len(got) != 1 || got[0] != want {
		t.Errorf("Verify() = %+v, want [%+v]", got, want)
	}
}

func TestVerify_DetectsOverdraw(t *testing.T) {
	s := createTestStore(t)
	l := createTestLedger(t, s, "tx")
	populate(t, l)

	if _, err := s.db.Exec(`DELETE FROM events WHERE from_pledge = 0`); err != nil {
		t.Fatalf("tamper: %v", err)
	}

	if _, err := s.Verify(context.Background()); err == nil {
		t.Error("expected overdraw error after deleting the donation event")
	}
}

func TestGetLastSeq(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	seq, err := s.GetLastSeq(ctx)
	if err != nil {
		t.Fatalf("GetLastSeq() failed: %v", err)
	}
	if seq != 0 {
		t.Errorf("GetLastSeq() on empty store = %d, want 0", seq)
	}

	commitOne(t, s, 1, "tx-1")
	commitOne(t, s, 2, "tx-2")

	seq, err = s.GetLastSeq(ctx)
	if err != nil {
		t.Fatalf("GetLastSeq() failed: %v", err)
	}
	if seq != 2 {
		t.Errorf("GetLastSeq() = %d, want 2", seq)
	}
}
