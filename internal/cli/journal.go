package cli

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"
)

// NewEventsCommand creates the events command.
func NewEventsCommand(rootOpts *RootOptions) *cobra.Command {
	var after int64

	cmd := &cobra.Command{
		Use:   "events",
		Short: "List journaled events in commit order",
		Long: `List journaled events in commit order, optionally only those committed
after sequence --after.

Examples:
  pledgeflow events
  pledgeflow events --after 12 --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if after < 0 {
				return NewExitError(ExitCommandError, "--after must not be negative")
			}
			return runWithSession(cmd, rootOpts, func(ctx context.Context, s *session) error {
				records, err := s.store.ReadEvents(ctx, after)
				if err != nil {
					return opError("events", err)
				}
				views := make(listView[EventView], len(records))
				for i, r := range records {
					views[i] = newEventView(r)
				}
				return s.out.Success(views)
			})
		},
	}

	cmd.Flags().Int64Var(&after, "after", 0, "only list events committed after this sequence")

	return cmd
}

// DiscrepancyView is one pledge whose stored amount disagrees with the
// journal.
type DiscrepancyView struct {
	Pledge  uint64 `json:"pledge"`
	Journal uint64 `json:"journal"`
	Stored  uint64 `json:"stored"`
}

// VerifyResult is printed by the verify command.
type VerifyResult struct {
	Seq           int64             `json:"seq"`
	Commits       int               `json:"commits"`
	Consistent    bool              `json:"consistent"`
	Discrepancies []DiscrepancyView `json:"discrepancies,omitempty"`
}

func (r VerifyResult) String() string {
	if r.Consistent {
		return fmt.Sprintf("journal consistent: %d commits, seq %d", r.Commits, r.Seq)
	}
	var b strings.Builder
	fmt.Fprintf(&b, "journal INCONSISTENT at seq %d:", r.Seq)
	for _, d := range r.Discrepancies {
		fmt.Fprintf(&b, "\n  pledge %d: journal %d, stored %d", d.Pledge, d.Journal, d.Stored)
	}
	return b.String()
}

// NewVerifyCommand creates the verify command.
func NewVerifyCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "verify",
		Short: "Replay the event journal against stored balances",
		Long: `Replay every journaled transfer and compare the resulting balances
with the stored pledge amounts.

Exit codes:
  0 - Journal and state agree
  1 - Discrepancies found
  2 - Command error`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			var inconsistent int
			err := runWithSession(cmd, rootOpts, func(ctx context.Context, s *session) error {
				discrepancies, err := s.store.Verify(ctx)
				if err != nil {
					return opError("verify", err)
				}
				commits, err := s.store.ReadCommits(ctx)
				if err != nil {
					return opError("verify", err)
				}

				result := VerifyResult{
					Seq:        s.ledger.Seq(),
					Commits:    len(commits),
					Consistent: len(discrepancies) == 0,
				}
				for _, d := range discrepancies {
					result.Discrepancies = append(result.Discrepancies, DiscrepancyView{
						Pledge:  uint64(d.Pledge),
						Journal: d.Journal,
						Stored:  d.Stored,
					})
				}
				sort.Slice(result.Discrepancies, func(i, j int) bool {
					return result.Discrepancies[i].Pledge < result.Discrepancies[j].Pledge
				})

				inconsistent = len(discrepancies)
				return s.out.Success(result)
			})
			if err != nil {
				return err
			}
			if inconsistent > 0 {
				return NewExitError(ExitFailure, fmt.Sprintf("journal verification found %d discrepancies", inconsistent))
			}
			return nil
		},
	}
}

// StatusResult summarizes the persisted ledger.
type StatusResult struct {
	Database        string             `json:"database"`
	Seq             int64              `json:"seq"`
	Admins          int                `json:"admins"`
	Pledges         int                `json:"pledges"`
	TotalValue      uint64             `json:"total_value"`
	PendingPayments int                `json:"pending_payments"`
	Whitelist       bool               `json:"whitelist"`
	Metrics         map[string]float64 `json:"metrics,omitempty"`
}

func (r StatusResult) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "database:         %s\n", r.Database)
	fmt.Fprintf(&b, "seq:              %d\n", r.Seq)
	fmt.Fprintf(&b, "admins:           %d\n", r.Admins)
	fmt.Fprintf(&b, "pledges:          %d\n", r.Pledges)
	fmt.Fprintf(&b, "total value:      %d\n", r.TotalValue)
	fmt.Fprintf(&b, "pending payments: %d\n", r.PendingPayments)
	fmt.Fprintf(&b, "plugin whitelist: %t", r.Whitelist)
	names := make([]string, 0, len(r.Metrics))
	for name := range r.Metrics {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(&b, "\n%s %g", name, r.Metrics[name])
	}
	return b.String()
}

// NewStatusCommand creates the status command.
func NewStatusCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "status",
		Short:         "Summarize the persisted ledger",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWithSession(cmd, rootOpts, func(ctx context.Context, s *session) error {
				result := StatusResult{
					Database:        s.cfg.DatabasePath,
					Seq:             s.ledger.Seq(),
					Admins:          s.ledger.AdminCount(),
					Pledges:         s.ledger.PledgeCount(),
					TotalValue:      s.ledger.TotalValue(),
					PendingPayments: len(s.vault.Pending()),
					Whitelist:       s.cfg.Whitelist,
				}
				if s.registry != nil {
					families, err := s.registry.Gather()
					if err != nil {
						return opError("status", err)
					}
					result.Metrics = make(map[string]float64)
					for _, mf := range families {
						for _, m := range mf.GetMetric() {
							switch {
							case m.GetGauge() != nil:
								result.Metrics[mf.GetName()] = m.GetGauge().GetValue()
							case m.GetCounter() != nil:
								result.Metrics[mf.GetName()] = m.GetCounter().GetValue()
							}
						}
					}
				}
				return s.out.Success(result)
			})
		},
	}
}
