package pledge

import (
	"fmt"
	"slices"

	"github.com/roach88/pledgeflow/internal/ident"
)

// Topology bounds, enforced before any mutation.
const (
	// MaxDelegates bounds the length of a delegation chain.
	MaxDelegates = 20

	// MaxSubprojectLevel bounds project nesting; a root project is level 1.
	MaxSubprojectLevel = 20

	// MaxInterprojectLevel bounds how many times value may hop between
	// projects, measured along a pledge's old-pledge back-references.
	MaxInterprojectLevel = 20
)

// AdminID identifies an admin. 0 means "no admin".
type AdminID uint64

// PledgeID identifies a pledge. 0 means "no pledge".
type PledgeID uint64

// Address identifies a caller: a person, a plugin or the vault.
type Address string

// AdminKind discriminates the admin variants.
type AdminKind uint8

const (
	Giver AdminKind = iota + 1
	Delegate
	Project
)

func (k AdminKind) String() string {
	switch k {
	case Giver:
		return "Giver"
	case Delegate:
		return "Delegate"
	case Project:
		return "Project"
	}
	return fmt.Sprintf("AdminKind(%d)", uint8(k))
}

// ParseAdminKind is the inverse of AdminKind.String.
func ParseAdminKind(s string) (AdminKind, error) {
	switch s {
	case "Giver":
		return Giver, nil
	case "Delegate":
		return Delegate, nil
	case "Project":
		return Project, nil
	}
	return 0, fmt.Errorf("unknown admin kind %q", s)
}

// State is the payout lifecycle of a pledge.
type State uint8

const (
	Pledged State = iota
	Paying
	Paid
)

func (s State) String() string {
	switch s {
	case Pledged:
		return "Pledged"
	case Paying:
		return "Paying"
	case Paid:
		return "Paid"
	}
	return fmt.Sprintf("State(%d)", uint8(s))
}

// ParseState is the inverse of State.String.
func ParseState(s string) (State, error) {
	switch s {
	case "Pledged":
		return Pledged, nil
	case "Paying":
		return Paying, nil
	case "Paid":
		return Paid, nil
	}
	return 0, fmt.Errorf("unknown pledge state %q", s)
}

// Admin is a giver, delegate or project.
//
// Project-only data lives in Project, which is non-nil exactly when
// Kind == Project.
type Admin struct {
	ID         AdminID
	Kind       AdminKind
	Addr       Address
	Name       string
	URL        string
	CommitTime uint64  // seconds a veto window lasts
	Plugin     Address // "" when the admin has no plugin
	Project    *ProjectInfo
}

// ProjectInfo holds the fields only projects have.
type ProjectInfo struct {
	Parent   AdminID // 0 for a root project
	Canceled bool    // false -> true, never back
}

func (a Admin) clone() Admin {
	if a.Project != nil {
		info := *a.Project
		a.Project = &info
	}
	return a
}

// Pledge is an amount held under an immutable configuration.
type Pledge struct {
	ID              PledgeID
	Amount          uint64
	Owner           AdminID
	Chain           []AdminID // delegation chain, authority increasing with position
	IntendedProject AdminID
	CommitTime      uint64 // absolute deadline for IntendedProject
	OldPledge       PledgeID
	State           State
}

func (p Pledge) clone() Pledge {
	p.Chain = slices.Clone(p.Chain)
	return p
}

// delegateIndex returns the position of id in the chain, or notFound.
func (p Pledge) delegateIndex(id AdminID) int {
	for i, d := range p.Chain {
		if d == id {
			return i
		}
	}
	return notFound
}

const notFound = -1

// pledgeKey is the interning key of a configuration.
func pledgeKey(owner AdminID, chain []AdminID, intended AdminID, commitTime uint64, old PledgeID, state State) string {
	ids := make([]uint64, len(chain))
	for i, d := range chain {
		ids[i] = uint64(d)
	}
	return ident.MustPledgeKey(ident.PledgeTuple{
		Owner:           uint64(owner),
		Chain:           ids,
		IntendedProject: uint64(intended),
		CommitTime:      commitTime,
		OldPledge:       uint64(old),
		State:           state.String(),
	})
}

// Key returns the interning key of the pledge's configuration.
func (p Pledge) Key() string {
	return pledgeKey(p.Owner, p.Chain, p.IntendedProject, p.CommitTime, p.OldPledge, p.State)
}
