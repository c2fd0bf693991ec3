package pledge

import "context"

// EventKind names an observable ledger event.
type EventKind string

const (
	EventTransfer        EventKind = "transfer"
	EventProjectCanceled EventKind = "project_canceled"
)

// Event is emitted on every non-trivial value movement and on project
// cancellation. From is 0 for value entering through Donate.
type Event struct {
	Kind    EventKind
	From    PledgeID
	To      PledgeID
	Amount  uint64
	Project AdminID
}

// Listener receives events after their transaction commits.
type Listener func(Event)

// Changeset is everything one committed transaction changed.
// Admins and Pledges hold the post-commit state of each touched record,
// ordered by id.
type Changeset struct {
	TxID    string
	Seq     int64
	Op      string
	Admins  []Admin
	Pledges []Pledge
	Events  []Event
}

// Empty reports whether the changeset carries nothing to persist.
func (c Changeset) Empty() bool {
	return len(c.Admins) == 0 && len(c.Pledges) == 0 && len(c.Events) == 0
}

// Committer persists changesets. A Commit error rolls the transaction back.
type Committer interface {
	Commit(ctx context.Context, cs Changeset) error
}
