package store

import (
	"context"
	"fmt"

	"github.com/roach88/pledgeflow/internal/pledge"
)

// Discrepancy is a pledge whose stored amount disagrees with the balance
// obtained by replaying the event journal.
type Discrepancy struct {
	Pledge  pledge.PledgeID
	Journal uint64
	Stored  uint64
}

// Verify replays every transfer event in journal order and compares the
// resulting balances with the stored pledge amounts. An empty result means
// the journal and the state tables agree.
func (s *Store) Verify(ctx context.Context) ([]Discrepancy, error) {
	events, err := s.ReadEvents(ctx, 0)
	if err != nil {
		return nil, fmt.Errorf("verify: %w", err)
	}
	pledges, err := s.readPledges(ctx)
	if err != nil {
		return nil, fmt.Errorf("verify: %w", err)
	}

	balances := make(map[pledge.PledgeID]uint64, len(pledges))
	for _, ev := range events {
		if ev.Kind != pledge.EventTransfer {
			continue
		}
		if ev.From != 0 {
			if balances[ev.From] < ev.Amount {
				return nil, fmt.Errorf("verify: event %s overdraws pledge %d", ev.ID, ev.From)
			}
			balances[ev.From] -= ev.Amount
		}
		balances[ev.To] += ev.Amount
	}

	var out []Discrepancy
	for _, p := range pledges {
		if got := balances[p.ID]; got != p.Amount {
			out = append(out, Discrepancy{Pledge: p.ID, Journal: got, Stored: p.Amount})
		}
		delete(balances, p.ID)
	}
	for id, amount := range balances {
		if amount != 0 {
			out = append(out, Discrepancy{Pledge: id, Journal: amount})
		}
	}
	return out, nil
}

// GetLastSeq returns the seq of the last journaled transaction, 0 when
// the journal is empty.
func (s *Store) GetLastSeq(ctx context.Context) (int64, error) {
	var seq int64
	err := s.db.QueryRowContext(ctx, `
		SELECT COALESCE(MAX(seq), 0) FROM commits
	`).Scan(&seq)
	if err != nil {
		return 0, fmt.Errorf("get last seq: %w", err)
	}
	return seq, nil
}
