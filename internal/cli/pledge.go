package cli

import (
	"context"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/roach88/pledgeflow/internal/pledge"
)

// NewPledgeCommand creates the pledge command group.
func NewPledgeCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "pledge",
		Short: "Inspect, normalize and cancel pledges",
	}

	cmd.AddCommand(newPledgeShowCommand(rootOpts))
	cmd.AddCommand(newPledgeListCommand(rootOpts))
	cmd.AddCommand(newPledgeDelegateCommand(rootOpts))
	cmd.AddCommand(newPledgeHistoryCommand(rootOpts))
	cmd.AddCommand(newPledgeNormalizeCommand(rootOpts))
	cmd.AddCommand(newPledgeCancelCommand(rootOpts))

	return cmd
}

func newPledgeShowCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "show <pledge-id>",
		Short:         "Show one pledge",
		Args:          requireArg("pledge-id"),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID("pledge", args[0])
			if err != nil {
				return err
			}
			return runWithSession(cmd, rootOpts, func(ctx context.Context, s *session) error {
				p, err := s.ledger.Pledge(pledge.PledgeID(id))
				if err != nil {
					return opError("show", err)
				}
				return s.out.Success(newPledgeView(p))
			})
		},
	}
}

func newPledgeListCommand(rootOpts *RootOptions) *cobra.Command {
	var (
		all   bool
		owner uint64
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List pledges in id order",
		Long: `List pledges in id order. Empty pledges are hidden unless --all is given.

Examples:
  pledgeflow pledge list
  pledgeflow pledge list --owner 3 --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWithSession(cmd, rootOpts, func(ctx context.Context, s *session) error {
				views := listView[PledgeView]{}
				for id := 1; id <= s.ledger.PledgeCount(); id++ {
					p, err := s.ledger.Pledge(pledge.PledgeID(id))
					if err != nil {
						return opError("list", err)
					}
					if p.Amount == 0 && !all {
						continue
					}
					if owner != 0 && uint64(p.Owner) != owner {
						continue
					}
					views = append(views, newPledgeView(p))
				}
				return s.out.Success(views)
			})
		},
	}

	cmd.Flags().BoolVar(&all, "all", false, "include empty pledges")
	cmd.Flags().Uint64Var(&owner, "owner", 0, "only list pledges owned by this admin")

	return cmd
}

func newPledgeDelegateCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "delegate <pledge-id> <position>",
		Short:         "Show the delegate at a 1-based position of a pledge's chain",
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID("pledge", args[0])
			if err != nil {
				return err
			}
			idx, err := strconv.Atoi(args[1])
			if err != nil {
				return NewExitError(ExitCommandError, fmt.Sprintf("invalid position %q", args[1]))
			}
			return runWithSession(cmd, rootOpts, func(ctx context.Context, s *session) error {
				a, err := s.ledger.PledgeDelegate(pledge.PledgeID(id), idx)
				if err != nil {
					return opError("delegate", err)
				}
				return s.out.Success(newAdminView(a))
			})
		},
	}
}

func newPledgeHistoryCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "history <pledge-id>",
		Short:         "List journaled events that moved value into or out of a pledge",
		Args:          requireArg("pledge-id"),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID("pledge", args[0])
			if err != nil {
				return err
			}
			return runWithSession(cmd, rootOpts, func(ctx context.Context, s *session) error {
				if _, err := s.ledger.Pledge(pledge.PledgeID(id)); err != nil {
					return opError("history", err)
				}
				records, err := s.store.History(ctx, pledge.PledgeID(id))
				if err != nil {
					return opError("history", err)
				}
				views := make(listView[EventView], len(records))
				for i, r := range records {
					views[i] = newEventView(r)
				}
				return s.out.Success(views)
			})
		},
	}
}

// NormalizeResult maps each requested pledge to the pledge now holding
// its value.
type NormalizeResult struct {
	From uint64 `json:"from"`
	To   uint64 `json:"to"`
}

func (r NormalizeResult) String() string {
	if r.From == r.To {
		return fmt.Sprintf("pledge %d unchanged", r.From)
	}
	return fmt.Sprintf("pledge %d -> %d", r.From, r.To)
}

func newPledgeNormalizeCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "normalize <pledge-id>...",
		Short: "Resolve matured intents and canceled projects",
		Long: `Normalize pledges: commit intents whose veto window has passed and
return value held for canceled projects upstream. Anyone may normalize.

Examples:
  pledgeflow pledge normalize 4
  pledgeflow pledge normalize 4 7 9`,
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			ids := make([]pledge.PledgeID, len(args))
			for i, arg := range args {
				id, err := parseID("pledge", arg)
				if err != nil {
					return err
				}
				ids[i] = pledge.PledgeID(id)
			}
			return runWithSession(cmd, rootOpts, func(ctx context.Context, s *session) error {
				var resolved []pledge.PledgeID
				if len(ids) == 1 {
					id, err := s.ledger.Normalize(ctx, ids[0])
					if err != nil {
						return opError("normalize", err)
					}
					resolved = []pledge.PledgeID{id}
				} else {
					var err error
					if resolved, err = s.ledger.NormalizeMany(ctx, ids); err != nil {
						return opError("normalize", err)
					}
				}
				views := make(listView[NormalizeResult], len(ids))
				for i := range ids {
					views[i] = NormalizeResult{From: uint64(ids[i]), To: uint64(resolved[i])}
				}
				return s.out.Success(views)
			})
		},
	}
}

func newPledgeCancelCommand(rootOpts *RootOptions) *cobra.Command {
	var (
		as     string
		amount uint64
	)

	cmd := &cobra.Command{
		Use:   "cancel <pledge-id>",
		Short: "Return value of a pledge to its provenance",
		Long: `Return --amount of a pledge to the oldest pledge in its history that
is not owned by a canceled project. Only the owner's address may cancel.`,
		Args:          requireArg("pledge-id"),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			addr, err := caller(as)
			if err != nil {
				return err
			}
			id, err := parseID("pledge", args[0])
			if err != nil {
				return err
			}
			return runWithSession(cmd, rootOpts, func(ctx context.Context, s *session) error {
				if err := s.ledger.CancelPledge(ctx, addr, pledge.PledgeID(id), amount); err != nil {
					return opError("cancel pledge", err)
				}
				return s.out.Success(SeqResult{Op: "cancel pledge", Seq: s.ledger.Seq()})
			})
		},
	}

	cmd.Flags().StringVar(&as, "as", "", "address performing the operation")
	cmd.Flags().Uint64Var(&amount, "amount", 0, "amount to return")

	return cmd
}
