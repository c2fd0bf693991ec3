package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/roach88/pledgeflow/internal/pledge"
	"github.com/roach88/pledgeflow/internal/vault"
)

// CommitRecord is one journaled transaction.
type CommitRecord struct {
	Seq  int64
	TxID string
	Op   string
}

// EventRecord is one journaled event with its position.
type EventRecord struct {
	ID    string
	Seq   int64
	Index int
	pledge.Event
}

// LoadSnapshot reads the latest state of every admin and pledge.
// Results are ordered by id, so the snapshot can be passed to
// pledge.Ledger.Restore directly.
func (s *Store) LoadSnapshot(ctx context.Context) (pledge.Snapshot, error) {
	seq, err := s.GetLastSeq(ctx)
	if err != nil {
		return pledge.Snapshot{}, fmt.Errorf("load snapshot: %w", err)
	}
	admins, err := s.readAdmins(ctx)
	if err != nil {
		return pledge.Snapshot{}, fmt.Errorf("load snapshot: %w", err)
	}
	pledges, err := s.readPledges(ctx)
	if err != nil {
		return pledge.Snapshot{}, fmt.Errorf("load snapshot: %w", err)
	}
	return pledge.Snapshot{Seq: seq, Admins: admins, Pledges: pledges}, nil
}

// Load restores l from the journal.
func (s *Store) Load(ctx context.Context, l *pledge.Ledger) error {
	snap, err := s.LoadSnapshot(ctx)
	if err != nil {
		return err
	}
	if err := l.Restore(snap); err != nil {
		return fmt.Errorf("restore ledger: %w", err)
	}
	return nil
}

func (s *Store) readAdmins(ctx context.Context) ([]pledge.Admin, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, kind, addr, name, url, commit_time, plugin, parent, canceled
		FROM admins
		ORDER BY id ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query admins: %w", err)
	}
	defer rows.Close()

	var admins []pledge.Admin
	for rows.Next() {
		a, err := scanAdmin(rows)
		if err != nil {
			return nil, err
		}
		admins = append(admins, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate admins: %w", err)
	}
	return admins, nil
}

func scanAdmin(rows *sql.Rows) (pledge.Admin, error) {
	var (
		id         int64
		kind       string
		addr       string
		commitTime string
		plugin     string
		parent     sql.NullInt64
		canceled   bool
		a          pledge.Admin
	)
	if err := rows.Scan(&id, &kind, &addr, &a.Name, &a.URL, &commitTime, &plugin, &parent, &canceled); err != nil {
		return pledge.Admin{}, fmt.Errorf("scan admin: %w", err)
	}

	var err error
	if a.Kind, err = pledge.ParseAdminKind(kind); err != nil {
		return pledge.Admin{}, fmt.Errorf("scan admin %d: %w", id, err)
	}
	if a.CommitTime, err = parseUint("commit_time", commitTime); err != nil {
		return pledge.Admin{}, fmt.Errorf("scan admin %d: %w", id, err)
	}
	a.ID = pledge.AdminID(id)
	a.Addr = pledge.Address(addr)
	a.Plugin = pledge.Address(plugin)
	if a.Kind == pledge.Project {
		a.Project = &pledge.ProjectInfo{Parent: pledge.AdminID(parent.Int64), Canceled: canceled}
	}
	return a, nil
}

func (s *Store) readPledges(ctx context.Context) ([]pledge.Pledge, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, amount, owner, delegation_chain, intended_project, commit_time, old_pledge, state
		FROM pledges
		ORDER BY id ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query pledges: %w", err)
	}
	defer rows.Close()

	var pledges []pledge.Pledge
	for rows.Next() {
		p, err := scanPledge(rows)
		if err != nil {
			return nil, err
		}
		pledges = append(pledges, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate pledges: %w", err)
	}
	return pledges, nil
}

func scanPledge(rows *sql.Rows) (pledge.Pledge, error) {
	var (
		id, owner, intended, old int64
		amount, chain, commit    string
		state                    string
	)
	if err := rows.Scan(&id, &amount, &owner, &chain, &intended, &commit, &old, &state); err != nil {
		return pledge.Pledge{}, fmt.Errorf("scan pledge: %w", err)
	}

	p := pledge.Pledge{
		ID:              pledge.PledgeID(id),
		Owner:           pledge.AdminID(owner),
		IntendedProject: pledge.AdminID(intended),
		OldPledge:       pledge.PledgeID(old),
	}
	var err error
	if p.Amount, err = parseUint("amount", amount); err != nil {
		return pledge.Pledge{}, fmt.Errorf("scan pledge %d: %w", id, err)
	}
	if p.CommitTime, err = parseUint("commit_time", commit); err != nil {
		return pledge.Pledge{}, fmt.Errorf("scan pledge %d: %w", id, err)
	}
	if p.Chain, err = unmarshalChain(chain); err != nil {
		return pledge.Pledge{}, fmt.Errorf("scan pledge %d: %w", id, err)
	}
	if p.State, err = pledge.ParseState(state); err != nil {
		return pledge.Pledge{}, fmt.Errorf("scan pledge %d: %w", id, err)
	}
	return p, nil
}

// ReadCommits returns every journaled transaction in seq order.
// Returns an empty slice (not nil) for an empty journal.
func (s *Store) ReadCommits(ctx context.Context) ([]CommitRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT seq, tx_id, op FROM commits ORDER BY seq ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query commits: %w", err)
	}
	defer rows.Close()

	commits := []CommitRecord{}
	for rows.Next() {
		var c CommitRecord
		if err := rows.Scan(&c.Seq, &c.TxID, &c.Op); err != nil {
			return nil, fmt.Errorf("scan commit: %w", err)
		}
		commits = append(commits, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate commits: %w", err)
	}
	return commits, nil
}

// ReadEvents returns journaled events committed after afterSeq, in
// journal order (seq, idx).
func (s *Store) ReadEvents(ctx context.Context, afterSeq int64) ([]EventRecord, error) {
	return s.queryEvents(ctx, `
		SELECT id, seq, idx, kind, from_pledge, to_pledge, amount, project
		FROM events
		WHERE seq > ?
		ORDER BY seq ASC, idx ASC
	`, afterSeq)
}

// History returns the events that moved value into or out of a pledge.
func (s *Store) History(ctx context.Context, id pledge.PledgeID) ([]EventRecord, error) {
	return s.queryEvents(ctx, `
		SELECT id, seq, idx, kind, from_pledge, to_pledge, amount, project
		FROM events
		WHERE from_pledge = ? OR to_pledge = ?
		ORDER BY seq ASC, idx ASC
	`, int64(id), int64(id))
}

func (s *Store) queryEvents(ctx context.Context, query string, args ...any) ([]EventRecord, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	events := []EventRecord{}
	for rows.Next() {
		var (
			r                 EventRecord
			kind, amount      string
			from, to, project int64
		)
		if err := rows.Scan(&r.ID, &r.Seq, &r.Index, &kind, &from, &to, &amount, &project); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		if r.Amount, err = parseUint("amount", amount); err != nil {
			return nil, fmt.Errorf("scan event %s: %w", r.ID, err)
		}
		r.Kind = pledge.EventKind(kind)
		r.From = pledge.PledgeID(from)
		r.To = pledge.PledgeID(to)
		r.Project = pledge.AdminID(project)
		events = append(events, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate events: %w", err)
	}
	return events, nil
}

// Payments returns every recorded payment ordered by id. It implements
// vault.Recorder.
func (s *Store) Payments(ctx context.Context) ([]vault.Payment, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, pledge_id, dest, amount, status FROM payments ORDER BY id ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query payments: %w", err)
	}
	defer rows.Close()

	payments := []vault.Payment{}
	for rows.Next() {
		var (
			id, ref              int64
			dest, amount, status string
		)
		if err := rows.Scan(&id, &ref, &dest, &amount, &status); err != nil {
			return nil, fmt.Errorf("scan payment: %w", err)
		}
		p := vault.Payment{
			ID:     uint64(id),
			Pledge: pledge.PledgeID(ref),
			Dest:   pledge.Address(dest),
			Status: vault.Status(status),
		}
		if p.Amount, err = parseUint("amount", amount); err != nil {
			return nil, fmt.Errorf("scan payment %d: %w", id, err)
		}
		payments = append(payments, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate payments: %w", err)
	}
	return payments, nil
}
