package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/roach88/pledgeflow/internal/config"
	"github.com/roach88/pledgeflow/internal/pledge"
	"github.com/roach88/pledgeflow/internal/store"
	"github.com/roach88/pledgeflow/internal/vault"
)

// session is a persisted ledger opened for one command: the journal, the
// ledger restored from it and the vault with its recorded payments.
type session struct {
	cfg      *config.Config
	store    *store.Store
	ledger   *pledge.Ledger
	vault    *vault.Vault
	registry *prometheus.Registry // nil unless metrics are enabled
	logger   *slog.Logger
	out      *OutputFormatter
}

// openSession loads the configuration, opens the journal and restores the
// ledger and vault from it.
func openSession(cmd *cobra.Command, opts *RootOptions) (*session, error) {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	cfg := config.FromContext(ctx)
	if cfg == nil {
		var err error
		if cfg, err = loadConfig(opts); err != nil {
			return nil, WrapExitError(ExitCommandError, "failed to load config", err)
		}
	}

	logger, err := newLogger(cmd.ErrOrStderr(), cfg, opts.Verbose)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to configure logging", err)
	}

	st, err := store.Open(cfg.DatabasePath)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to open database", err)
	}

	s := &session{
		cfg:    cfg,
		store:  st,
		logger: logger,
		out: &OutputFormatter{
			Format:    opts.Format,
			Writer:    cmd.OutOrStdout(),
			ErrWriter: cmd.ErrOrStderr(),
			Verbose:   opts.Verbose,
		},
	}

	s.vault = vault.New(pledge.Address(cfg.VaultAddress),
		vault.WithRecorder(st),
		vault.WithLogger(logger),
	)

	ledgerOpts := []pledge.Option{
		pledge.WithOwner(pledge.Address(cfg.Owner)),
		pledge.WithVault(s.vault),
		pledge.WithCommitter(st),
		pledge.WithLogger(logger),
		pledge.WithDefaultCommitTime(cfg.DefaultCommitTime),
	}
	if cfg.Whitelist {
		ledgerOpts = append(ledgerOpts, pledge.WithWhitelist(cfg.AllowedPlugins...))
	}
	if cfg.Metrics {
		s.registry = prometheus.NewRegistry()
		ledgerOpts = append(ledgerOpts, pledge.WithMetrics(s.registry))
	}
	s.ledger = pledge.New(ledgerOpts...)

	if err := st.Load(ctx, s.ledger); err != nil {
		st.Close()
		return nil, WrapExitError(ExitCommandError, "failed to restore ledger", err)
	}
	s.vault.Attach(s.ledger)
	if err := s.vault.Load(ctx); err != nil {
		st.Close()
		return nil, WrapExitError(ExitCommandError, "failed to restore payments", err)
	}

	logger.Debug("ledger restored",
		"db", cfg.DatabasePath,
		"seq", s.ledger.Seq(),
		"admins", s.ledger.AdminCount(),
		"pledges", s.ledger.PledgeCount(),
	)
	return s, nil
}

// Close closes the journal.
func (s *session) Close() {
	if err := s.store.Close(); err != nil {
		s.logger.Error("error closing database", "error", err)
	}
}

// newLogger builds the text logger on w. --verbose forces Debug.
func newLogger(w io.Writer, cfg *config.Config, verbose bool) (*slog.Logger, error) {
	level, err := cfg.SlogLevel()
	if err != nil {
		return nil, err
	}
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level})), nil
}

// runWithSession opens a session, runs fn and closes it. Errors returned by
// fn are reported through the session's formatter.
func runWithSession(cmd *cobra.Command, opts *RootOptions, fn func(ctx context.Context, s *session) error) error {
	s, err := openSession(cmd, opts)
	if err != nil {
		return err
	}
	defer s.Close()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	if err := fn(ctx, s); err != nil {
		return s.out.Fail(err)
	}
	return nil
}

// caller returns the --as address, which every mutating command requires.
func caller(as string) (pledge.Address, error) {
	if as == "" {
		return "", NewExitError(ExitCommandError, "--as is required: the address performing the operation")
	}
	return pledge.Address(as), nil
}

// requireArg is a cobra.PositionalArgs that names the missing argument.
func requireArg(name string) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if len(args) != 1 {
			return fmt.Errorf("accepts 1 arg (%s), received %d", name, len(args))
		}
		return nil
	}
}
