package cli

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/roach88/pledgeflow/internal/pledge"
	"github.com/roach88/pledgeflow/internal/store"
	"github.com/roach88/pledgeflow/internal/vault"
)

// AdminView is the printed form of an admin.
type AdminView struct {
	ID         uint64 `json:"id"`
	Kind       string `json:"kind"`
	Addr       string `json:"addr"`
	Name       string `json:"name"`
	URL        string `json:"url,omitempty"`
	CommitTime uint64 `json:"commit_time"`
	Plugin     string `json:"plugin,omitempty"`
	Parent     uint64 `json:"parent,omitempty"`
	Canceled   bool   `json:"canceled,omitempty"`
}

func newAdminView(a pledge.Admin) AdminView {
	v := AdminView{
		ID:         uint64(a.ID),
		Kind:       a.Kind.String(),
		Addr:       string(a.Addr),
		Name:       a.Name,
		URL:        a.URL,
		CommitTime: a.CommitTime,
		Plugin:     string(a.Plugin),
	}
	if a.Project != nil {
		v.Parent = uint64(a.Project.Parent)
		v.Canceled = a.Project.Canceled
	}
	return v
}

func (v AdminView) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %d %q addr=%s commit_time=%d", v.Kind, v.ID, v.Name, v.Addr, v.CommitTime)
	if v.URL != "" {
		fmt.Fprintf(&b, " url=%s", v.URL)
	}
	if v.Plugin != "" {
		fmt.Fprintf(&b, " plugin=%s", v.Plugin)
	}
	if v.Parent != 0 {
		fmt.Fprintf(&b, " parent=%d", v.Parent)
	}
	if v.Canceled {
		b.WriteString(" CANCELED")
	}
	return b.String()
}

// PledgeView is the printed form of a pledge.
type PledgeView struct {
	ID              uint64   `json:"id"`
	Amount          uint64   `json:"amount"`
	Owner           uint64   `json:"owner"`
	Chain           []uint64 `json:"delegation_chain"`
	IntendedProject uint64   `json:"intended_project,omitempty"`
	CommitTime      uint64   `json:"commit_time,omitempty"`
	OldPledge       uint64   `json:"old_pledge,omitempty"`
	State           string   `json:"state"`
}

func newPledgeView(p pledge.Pledge) PledgeView {
	chain := make([]uint64, len(p.Chain))
	for i, d := range p.Chain {
		chain[i] = uint64(d)
	}
	return PledgeView{
		ID:              uint64(p.ID),
		Amount:          p.Amount,
		Owner:           uint64(p.Owner),
		Chain:           chain,
		IntendedProject: uint64(p.IntendedProject),
		CommitTime:      p.CommitTime,
		OldPledge:       uint64(p.OldPledge),
		State:           p.State.String(),
	}
}

func (v PledgeView) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "pledge %d: %d %s owner=%d chain=%v", v.ID, v.Amount, v.State, v.Owner, v.Chain)
	if v.IntendedProject != 0 {
		fmt.Fprintf(&b, " intended=%d until=%d", v.IntendedProject, v.CommitTime)
	}
	if v.OldPledge != 0 {
		fmt.Fprintf(&b, " old=%d", v.OldPledge)
	}
	return b.String()
}

// PaymentView is the printed form of a vault payment.
type PaymentView struct {
	ID     uint64 `json:"id"`
	Pledge uint64 `json:"pledge"`
	Dest   string `json:"dest"`
	Amount uint64 `json:"amount"`
	Status string `json:"status"`
}

func newPaymentView(p vault.Payment) PaymentView {
	return PaymentView{
		ID:     p.ID,
		Pledge: uint64(p.Pledge),
		Dest:   string(p.Dest),
		Amount: p.Amount,
		Status: string(p.Status),
	}
}

func (v PaymentView) String() string {
	return fmt.Sprintf("payment %d: %d from pledge %d to %s (%s)", v.ID, v.Amount, v.Pledge, v.Dest, v.Status)
}

// EventView is the printed form of a journaled event.
type EventView struct {
	Seq     int64  `json:"seq"`
	Index   int    `json:"idx"`
	Kind    string `json:"kind"`
	From    uint64 `json:"from,omitempty"`
	To      uint64 `json:"to,omitempty"`
	Amount  uint64 `json:"amount,omitempty"`
	Project uint64 `json:"project,omitempty"`
}

func newEventView(r store.EventRecord) EventView {
	return EventView{
		Seq:     r.Seq,
		Index:   r.Index,
		Kind:    string(r.Kind),
		From:    uint64(r.From),
		To:      uint64(r.To),
		Amount:  r.Amount,
		Project: uint64(r.Project),
	}
}

func (v EventView) String() string {
	if v.Kind == string(pledge.EventProjectCanceled) {
		return fmt.Sprintf("#%d.%d %s project=%d", v.Seq, v.Index, v.Kind, v.Project)
	}
	return fmt.Sprintf("#%d.%d %s %d -> %d amount=%d", v.Seq, v.Index, v.Kind, v.From, v.To, v.Amount)
}

// listView prints one item per line in text mode and a JSON array otherwise.
type listView[T fmt.Stringer] []T

func (l listView[T]) String() string {
	if len(l) == 0 {
		return "(none)"
	}
	lines := make([]string, len(l))
	for i, item := range l {
		lines[i] = item.String()
	}
	return strings.Join(lines, "\n")
}

// parseID parses a positive decimal id.
func parseID(what, s string) (uint64, error) {
	id, err := strconv.ParseUint(s, 10, 64)
	if err != nil || id == 0 {
		return 0, NewExitError(ExitCommandError, fmt.Sprintf("invalid %s id %q", what, s))
	}
	return id, nil
}

// parseItems parses "pledge=amount" arguments.
func parseItems(args []string) ([]pledge.PledgeAmount, error) {
	items := make([]pledge.PledgeAmount, 0, len(args))
	for _, arg := range args {
		idStr, amountStr, ok := strings.Cut(arg, "=")
		if !ok {
			return nil, NewExitError(ExitCommandError, fmt.Sprintf("invalid item %q: want pledge=amount", arg))
		}
		id, err := parseID("pledge", idStr)
		if err != nil {
			return nil, err
		}
		amount, err := strconv.ParseUint(amountStr, 10, 64)
		if err != nil {
			return nil, NewExitError(ExitCommandError, fmt.Sprintf("invalid amount in %q", arg))
		}
		items = append(items, pledge.PledgeAmount{Pledge: pledge.PledgeID(id), Amount: amount})
	}
	return items, nil
}
