package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/roach88/pledgeflow/internal/pledge"
	"github.com/roach88/pledgeflow/internal/vault"
)

// Commit journals one committed ledger transaction. It implements
// pledge.Committer.
//
// Uses ON CONFLICT(tx_id) DO NOTHING for idempotency: committing the same
// changeset twice writes nothing the second time. A different transaction
// at an existing seq fails on the commits primary key.
func (s *Store) Commit(ctx context.Context, cs pledge.Changeset) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("commit %s: begin tx: %w", cs.TxID, err)
	}
	defer tx.Rollback() // No-op if committed

	result, err := tx.ExecContext(ctx, `
		INSERT INTO commits (seq, tx_id, op)
		VALUES (?, ?, ?)
		ON CONFLICT(tx_id) DO NOTHING
	`, cs.Seq, cs.TxID, cs.Op)
	if err != nil {
		return fmt.Errorf("commit %s: insert commit: %w", cs.TxID, err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("commit %s: rows affected: %w", cs.TxID, err)
	}
	if rowsAffected == 0 {
		return nil
	}

	for _, a := range cs.Admins {
		if err := writeAdmin(ctx, tx, cs.Seq, a); err != nil {
			return fmt.Errorf("commit %s: %w", cs.TxID, err)
		}
	}
	for _, p := range cs.Pledges {
		if err := writePledge(ctx, tx, cs.Seq, p); err != nil {
			return fmt.Errorf("commit %s: %w", cs.TxID, err)
		}
	}
	for i, ev := range cs.Events {
		if err := writeEvent(ctx, tx, cs.TxID, cs.Seq, i, ev); err != nil {
			return fmt.Errorf("commit %s: %w", cs.TxID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit %s: %w", cs.TxID, err)
	}
	return nil
}

// writeAdmin upserts the mutable fields of an admin. Kind, plugin and
// parent are written once.
func writeAdmin(ctx context.Context, tx *sql.Tx, seq int64, a pledge.Admin) error {
	var parent sql.NullInt64
	var canceled bool
	if a.Project != nil {
		parent = sql.NullInt64{Int64: int64(a.Project.Parent), Valid: true}
		canceled = a.Project.Canceled
	}
	_, err := tx.ExecContext(ctx, `
		INSERT INTO admins
		(id, kind, addr, name, url, commit_time, plugin, parent, canceled, seq)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			addr = excluded.addr,
			name = excluded.name,
			url = excluded.url,
			commit_time = excluded.commit_time,
			canceled = excluded.canceled,
			seq = excluded.seq
	`,
		int64(a.ID),
		a.Kind.String(),
		string(a.Addr),
		a.Name,
		a.URL,
		formatUint(a.CommitTime),
		string(a.Plugin),
		parent,
		canceled,
		seq,
	)
	if err != nil {
		return fmt.Errorf("write admin %d: %w", a.ID, err)
	}
	return nil
}

// writePledge upserts a pledge. Only the amount of an existing pledge can
// change.
func writePledge(ctx context.Context, tx *sql.Tx, seq int64, p pledge.Pledge) error {
	chainJSON, err := marshalChain(p.Chain)
	if err != nil {
		return fmt.Errorf("write pledge %d: %w", p.ID, err)
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO pledges
		(id, pledge_key, amount, owner, delegation_chain, intended_project, commit_time, old_pledge, state, seq)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			amount = excluded.amount,
			seq = excluded.seq
	`,
		int64(p.ID),
		p.Key(),
		formatUint(p.Amount),
		int64(p.Owner),
		chainJSON,
		int64(p.IntendedProject),
		formatUint(p.CommitTime),
		int64(p.OldPledge),
		p.State.String(),
		seq,
	)
	if err != nil {
		return fmt.Errorf("write pledge %d: %w", p.ID, err)
	}
	return nil
}

func writeEvent(ctx context.Context, tx *sql.Tx, txID string, seq int64, idx int, ev pledge.Event) error {
	id, err := eventID(txID, idx, ev)
	if err != nil {
		return fmt.Errorf("write event %d: %w", idx, err)
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO events
		(id, seq, idx, kind, from_pledge, to_pledge, amount, project)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`,
		id,
		seq,
		idx,
		string(ev.Kind),
		int64(ev.From),
		int64(ev.To),
		formatUint(ev.Amount),
		int64(ev.Project),
	)
	if err != nil {
		return fmt.Errorf("write event %d: %w", idx, err)
	}
	return nil
}

// RecordPayment stores a new payment and returns its id. It implements
// vault.Recorder.
func (s *Store) RecordPayment(ctx context.Context, p vault.Payment) (uint64, error) {
	result, err := s.db.ExecContext(ctx, `
		INSERT INTO payments (pledge_id, dest, amount, status)
		VALUES (?, ?, ?, ?)
	`,
		int64(p.Pledge),
		string(p.Dest),
		formatUint(p.Amount),
		string(p.Status),
	)
	if err != nil {
		return 0, fmt.Errorf("record payment: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("record payment: last insert id: %w", err)
	}
	return uint64(id), nil
}

// UpdatePaymentStatus changes a payment's status.
func (s *Store) UpdatePaymentStatus(ctx context.Context, id uint64, status vault.Status) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE payments SET status = ? WHERE id = ?
	`, string(status), int64(id))
	if err != nil {
		return fmt.Errorf("update payment %d: %w", id, err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update payment %d: rows affected: %w", id, err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("update payment %d: %w", id, vault.ErrUnknownPayment)
	}
	return nil
}
