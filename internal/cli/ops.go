package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/pledgeflow/internal/pledge"
	"github.com/roach88/pledgeflow/internal/vault"
)

// DonateResult is printed by the donate command.
type DonateResult struct {
	Giver  uint64 `json:"giver"`
	To     uint64 `json:"to"`
	Amount uint64 `json:"amount"`
	Seq    int64  `json:"seq"`
}

func (r DonateResult) String() string {
	return fmt.Sprintf("donated %d from giver %d to admin %d (seq %d)", r.Amount, r.Giver, r.To, r.Seq)
}

// NewDonateCommand creates the donate command.
func NewDonateCommand(rootOpts *RootOptions) *cobra.Command {
	var (
		as     string
		giver  uint64
		to     uint64
		amount uint64
	)

	cmd := &cobra.Command{
		Use:   "donate",
		Short: "Credit new value to a giver and send it to an admin",
		Long: `Credit --amount to the giver's root pledge and transfer it to --to.

Without --giver a new giver controlled by --as is registered first.

Examples:
  pledgeflow donate --as alice --giver 1 --to 3 --amount 1000
  pledgeflow donate --as carol --to 3 --amount 50`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			addr, err := caller(as)
			if err != nil {
				return err
			}
			if to == 0 {
				return NewExitError(ExitCommandError, "--to is required")
			}
			return runWithSession(cmd, rootOpts, func(ctx context.Context, s *session) error {
				id, err := s.ledger.Donate(ctx, addr, pledge.AdminID(giver), pledge.AdminID(to), amount)
				if err != nil {
					return opError("donate", err)
				}
				return s.out.Success(DonateResult{
					Giver:  uint64(id),
					To:     to,
					Amount: amount,
					Seq:    s.ledger.Seq(),
				})
			})
		},
	}

	cmd.Flags().StringVar(&as, "as", "", "address performing the operation")
	cmd.Flags().Uint64Var(&giver, "giver", 0, "donating giver (registers a new one when omitted)")
	cmd.Flags().Uint64Var(&to, "to", 0, "receiving admin")
	cmd.Flags().Uint64Var(&amount, "amount", 0, "amount to donate")

	return cmd
}

// NewTransferCommand creates the transfer command.
func NewTransferCommand(rootOpts *RootOptions) *cobra.Command {
	var (
		as     string
		sender uint64
		to     uint64
	)

	cmd := &cobra.Command{
		Use:   "transfer <pledge=amount>...",
		Short: "Move value of pledges on behalf of an admin",
		Long: `Move value on behalf of --sender, which must be the owner, a delegate
in the chain, or the intended project of every pledge. What the move
means depends on the sender's role and the receiver's kind.

Several items run as one transaction: either all move or none do.

Examples:
  pledgeflow transfer --as alice --sender 1 --to 2 1=500
  pledgeflow transfer --as dao --sender 2 --to 5 3=100 4=250`,
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			addr, err := caller(as)
			if err != nil {
				return err
			}
			if sender == 0 || to == 0 {
				return NewExitError(ExitCommandError, "--sender and --to are required")
			}
			items, err := parseItems(args)
			if err != nil {
				return err
			}
			return runWithSession(cmd, rootOpts, func(ctx context.Context, s *session) error {
				if len(items) == 1 {
					err = s.ledger.Transfer(ctx, addr, pledge.AdminID(sender), items[0].Pledge, items[0].Amount, pledge.AdminID(to))
				} else {
					err = s.ledger.TransferMany(ctx, addr, pledge.AdminID(sender), items, pledge.AdminID(to))
				}
				if err != nil {
					return opError("transfer", err)
				}
				return s.out.Success(SeqResult{Op: "transfer", Seq: s.ledger.Seq()})
			})
		},
	}

	cmd.Flags().StringVar(&as, "as", "", "address performing the operation")
	cmd.Flags().Uint64Var(&sender, "sender", 0, "admin on whose behalf value moves")
	cmd.Flags().Uint64Var(&to, "to", 0, "receiving admin")

	return cmd
}

// SeqResult is printed by commands whose only output is the new sequence.
type SeqResult struct {
	Op  string `json:"op"`
	Seq int64  `json:"seq"`
}

func (r SeqResult) String() string {
	return fmt.Sprintf("%s committed (seq %d)", r.Op, r.Seq)
}

// WithdrawalView is the printed form of one withdrawal.
type WithdrawalView struct {
	Pledge    uint64 `json:"pledge"`
	PaymentID uint64 `json:"payment_id,omitempty"`
	Amount    uint64 `json:"amount"`
}

func (v WithdrawalView) String() string {
	if v.PaymentID == 0 {
		return fmt.Sprintf("nothing withdrawn (pledge %d)", v.Pledge)
	}
	return fmt.Sprintf("payment %d authorized: %d held by pledge %d", v.PaymentID, v.Amount, v.Pledge)
}

// NewWithdrawCommand creates the withdraw command.
func NewWithdrawCommand(rootOpts *RootOptions) *cobra.Command {
	var as string

	cmd := &cobra.Command{
		Use:   "withdraw <pledge=amount>...",
		Short: "Request payouts of project-owned value",
		Long: `Move value of pledges owned by a project into Paying and ask the vault
to pay the project's address. Only the project's address may withdraw.

Examples:
  pledgeflow withdraw --as bob 4=1000
  pledgeflow withdraw --as bob 4=100 7=200`,
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			addr, err := caller(as)
			if err != nil {
				return err
			}
			items, err := parseItems(args)
			if err != nil {
				return err
			}
			return runWithSession(cmd, rootOpts, func(ctx context.Context, s *session) error {
				var ws []pledge.Withdrawal
				if len(items) == 1 {
					w, err := s.ledger.Withdraw(ctx, addr, items[0].Pledge, items[0].Amount)
					if err != nil {
						return opError("withdraw", err)
					}
					ws = []pledge.Withdrawal{w}
				} else {
					ws, err = s.ledger.WithdrawMany(ctx, addr, items)
					if err != nil {
						return opError("withdraw", err)
					}
				}
				views := make(listView[WithdrawalView], len(ws))
				for i, w := range ws {
					views[i] = WithdrawalView{Pledge: uint64(w.Pledge), PaymentID: w.PaymentID, Amount: w.Amount}
				}
				return s.out.Success(views)
			})
		},
	}

	cmd.Flags().StringVar(&as, "as", "", "address performing the operation")

	return cmd
}

// NewPaymentCommand creates the payment command group.
func NewPaymentCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "payment",
		Short: "Inspect and settle vault payments",
	}

	var pending bool
	list := &cobra.Command{
		Use:           "list",
		Short:         "List vault payments",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWithSession(cmd, rootOpts, func(ctx context.Context, s *session) error {
				payments := s.vault.Payments()
				if pending {
					payments = s.vault.Pending()
				}
				views := make(listView[PaymentView], len(payments))
				for i, p := range payments {
					views[i] = newPaymentView(p)
				}
				return s.out.Success(views)
			})
		},
	}
	list.Flags().BoolVar(&pending, "pending", false, "only list authorized payments")

	cmd.AddCommand(list)
	cmd.AddCommand(newSettleCommand(rootOpts, "confirm", "Confirm a payment: the held value becomes Paid", (*vault.Vault).Confirm))
	cmd.AddCommand(newSettleCommand(rootOpts, "cancel", "Cancel a payment: the held value returns to Pledged", (*vault.Vault).Cancel))

	return cmd
}

func newSettleCommand(rootOpts *RootOptions, verb, short string, settle func(*vault.Vault, context.Context, uint64) error) *cobra.Command {
	return &cobra.Command{
		Use:           verb + " <payment-id>",
		Short:         short,
		Args:          requireArg("payment-id"),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID("payment", args[0])
			if err != nil {
				return err
			}
			return runWithSession(cmd, rootOpts, func(ctx context.Context, s *session) error {
				if err := settle(s.vault, ctx, id); err != nil {
					return opError(verb+" payment", err)
				}
				p, err := s.vault.Payment(id)
				if err != nil {
					return opError(verb+" payment", err)
				}
				return s.out.Success(newPaymentView(p))
			})
		},
	}
}
