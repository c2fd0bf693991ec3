package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/pledgeflow/internal/pledge"
)

// AdminOptions holds flags shared by the admin subcommands.
type AdminOptions struct {
	*RootOptions
	As         string
	Name       string
	URL        string
	CommitTime uint64
	Parent     uint64
	Admin      string
	Addr       string
}

// NewAdminCommand creates the admin command group.
func NewAdminCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "admin",
		Short: "Manage givers, delegates and projects",
	}

	cmd.AddCommand(newAdminAddCommand(rootOpts))
	cmd.AddCommand(newAdminUpdateCommand(rootOpts))
	cmd.AddCommand(newAdminShowCommand(rootOpts))
	cmd.AddCommand(newAdminListCommand(rootOpts))
	cmd.AddCommand(newAdminCancelCommand(rootOpts))

	return cmd
}

func newAdminAddCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &AdminOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "add <giver|delegate|project>",
		Short: "Register a new admin",
		Long: `Register a giver, delegate or project controlled by the --as address.

Projects may name a different controlling address with --admin and an
enclosing project with --parent.

Examples:
  pledgeflow admin add giver --as alice --name "Alice"
  pledgeflow admin add delegate --as dao --name "DAO" --commit-time 86400
  pledgeflow admin add project --as bob --name "Docs" --parent 3`,
		Args:          cobra.ExactArgs(1),
		ValidArgs:     []string{"giver", "delegate", "project"},
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAdminAdd(cmd, opts, args[0])
		},
	}

	addAdminFieldFlags(cmd, opts)
	cmd.Flags().Uint64Var(&opts.Parent, "parent", 0, "enclosing project (projects only)")
	cmd.Flags().StringVar(&opts.Admin, "admin", "", "controlling address (projects only, defaults to --as)")

	return cmd
}

func addAdminFieldFlags(cmd *cobra.Command, opts *AdminOptions) {
	cmd.Flags().StringVar(&opts.As, "as", "", "address performing the operation")
	cmd.Flags().StringVar(&opts.Name, "name", "", "display name")
	cmd.Flags().StringVar(&opts.URL, "url", "", "informational URL")
	cmd.Flags().Uint64Var(&opts.CommitTime, "commit-time", 0, "veto window in seconds")
}

func runAdminAdd(cmd *cobra.Command, opts *AdminOptions, kind string) error {
	as, err := caller(opts.As)
	if err != nil {
		return err
	}
	switch kind {
	case "giver", "delegate", "project":
	default:
		return NewExitError(ExitCommandError, fmt.Sprintf("unknown admin kind %q: must be giver, delegate or project", kind))
	}
	if kind != "project" && (opts.Parent != 0 || opts.Admin != "") {
		return NewExitError(ExitCommandError, "--parent and --admin apply to projects only")
	}

	spec := pledge.AdminSpec{
		Name:       opts.Name,
		URL:        opts.URL,
		CommitTime: opts.CommitTime,
	}

	return runWithSession(cmd, opts.RootOptions, func(ctx context.Context, s *session) error {
		var id pledge.AdminID
		var err error
		switch kind {
		case "giver":
			id, err = s.ledger.AddGiver(ctx, as, spec)
		case "delegate":
			id, err = s.ledger.AddDelegate(ctx, as, spec)
		case "project":
			id, err = s.ledger.AddProject(ctx, as, pledge.ProjectSpec{
				AdminSpec: spec,
				Admin:     pledge.Address(opts.Admin),
				Parent:    pledge.AdminID(opts.Parent),
			})
		}
		if err != nil {
			return opError("add "+kind, err)
		}

		s.out.VerboseLog("added %s %d at seq %d", kind, id, s.ledger.Seq())
		a, err := s.ledger.Admin(id)
		if err != nil {
			return opError("add "+kind, err)
		}
		return s.out.Success(newAdminView(a))
	})
}

func newAdminUpdateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &AdminOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "update <admin-id>",
		Short: "Update an admin's address, name, URL or commit time",
		Long: `Update the mutable fields of an admin. Only its current address may.
Fields whose flag is not given keep their current value.

Examples:
  pledgeflow admin update 1 --as alice --name "Alice B."
  pledgeflow admin update 4 --as bob --addr carol`,
		Args:          requireArg("admin-id"),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAdminUpdate(cmd, opts, args[0])
		},
	}

	addAdminFieldFlags(cmd, opts)
	cmd.Flags().StringVar(&opts.Addr, "addr", "", "new controlling address")

	return cmd
}

func runAdminUpdate(cmd *cobra.Command, opts *AdminOptions, idArg string) error {
	as, err := caller(opts.As)
	if err != nil {
		return err
	}
	id, err := parseID("admin", idArg)
	if err != nil {
		return err
	}

	return runWithSession(cmd, opts.RootOptions, func(ctx context.Context, s *session) error {
		a, err := s.ledger.Admin(pledge.AdminID(id))
		if err != nil {
			return opError("update", err)
		}

		upd := pledge.AdminUpdate{
			Addr:       a.Addr,
			Name:       a.Name,
			URL:        a.URL,
			CommitTime: a.CommitTime,
		}
		flags := cmd.Flags()
		if flags.Changed("addr") {
			upd.Addr = pledge.Address(opts.Addr)
		}
		if flags.Changed("name") {
			upd.Name = opts.Name
		}
		if flags.Changed("url") {
			upd.URL = opts.URL
		}
		if flags.Changed("commit-time") {
			upd.CommitTime = opts.CommitTime
		}

		switch a.Kind {
		case pledge.Giver:
			err = s.ledger.UpdateGiver(ctx, as, a.ID, upd)
		case pledge.Delegate:
			err = s.ledger.UpdateDelegate(ctx, as, a.ID, upd)
		case pledge.Project:
			err = s.ledger.UpdateProject(ctx, as, a.ID, upd)
		}
		if err != nil {
			return opError("update", err)
		}

		a, err = s.ledger.Admin(a.ID)
		if err != nil {
			return opError("update", err)
		}
		return s.out.Success(newAdminView(a))
	})
}

func newAdminShowCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "show <admin-id>",
		Short:         "Show one admin",
		Args:          requireArg("admin-id"),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID("admin", args[0])
			if err != nil {
				return err
			}
			return runWithSession(cmd, rootOpts, func(ctx context.Context, s *session) error {
				a, err := s.ledger.Admin(pledge.AdminID(id))
				if err != nil {
					return opError("show", err)
				}
				return s.out.Success(newAdminView(a))
			})
		},
	}
}

func newAdminListCommand(rootOpts *RootOptions) *cobra.Command {
	var kind string

	cmd := &cobra.Command{
		Use:           "list",
		Short:         "List admins in id order",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWithSession(cmd, rootOpts, func(ctx context.Context, s *session) error {
				views := listView[AdminView]{}
				for id := 1; id <= s.ledger.AdminCount(); id++ {
					a, err := s.ledger.Admin(pledge.AdminID(id))
					if err != nil {
						return opError("list", err)
					}
					v := newAdminView(a)
					if kind != "" && !strings.EqualFold(v.Kind, kind) {
						continue
					}
					views = append(views, v)
				}
				return s.out.Success(views)
			})
		},
	}

	cmd.Flags().StringVar(&kind, "kind", "", "only list admins of this kind (giver|delegate|project)")

	return cmd
}

func newAdminCancelCommand(rootOpts *RootOptions) *cobra.Command {
	var as string

	cmd := &cobra.Command{
		Use:   "cancel <project-id>",
		Short: "Cancel a project",
		Long: `Permanently cancel a project. Value committed to it or its subprojects
returns upstream the next time the affected pledges are normalized.`,
		Args:          requireArg("project-id"),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			addr, err := caller(as)
			if err != nil {
				return err
			}
			id, err := parseID("project", args[0])
			if err != nil {
				return err
			}
			return runWithSession(cmd, rootOpts, func(ctx context.Context, s *session) error {
				if err := s.ledger.CancelProject(ctx, addr, pledge.AdminID(id)); err != nil {
					return opError("cancel project", err)
				}
				a, err := s.ledger.Admin(pledge.AdminID(id))
				if err != nil {
					return opError("cancel project", err)
				}
				return s.out.Success(newAdminView(a))
			})
		},
	}

	cmd.Flags().StringVar(&as, "as", "", "address performing the operation")

	return cmd
}
