package harness

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/roach88/pledgeflow/internal/pledge"
	"github.com/roach88/pledgeflow/internal/store"
	"github.com/roach88/pledgeflow/internal/testutil"
	"github.com/roach88/pledgeflow/internal/vault"
)

// Fixed addresses of the ledger owner and the vault in every scenario.
const (
	OwnerAddress pledge.Address = "owner"
	VaultAddress pledge.Address = "vault"
)

// OutcomeError is the outcome of a step that failed with an error that
// carries no ledger error code.
const OutcomeError = "ERROR"

// Harness executes scenarios against a real ledger.
// Each run gets a fresh in-memory journal, a manual clock and sequential
// transaction ids, so identical scenarios produce identical traces.
type Harness struct {
	store   *store.Store
	ledger  *pledge.Ledger
	vault   *vault.Vault
	clock   *testutil.ManualClock
	plugins map[pledge.Address]pledge.Plugin
	result  *Result
	logger  *slog.Logger
}

// Option configures a run.
type Option func(*Harness)

// WithLogger sets the logger used by the harness and the ledger
// (default discards).
func WithLogger(logger *slog.Logger) Option {
	return func(h *Harness) {
		h.logger = logger
	}
}

// Run executes a scenario and returns the result.
//
// Execution flow:
//  1. Create a fresh in-memory journal, vault and ledger
//  2. Execute setup steps (any failure aborts the run)
//  3. Execute flow steps, checking each expect clause
//  4. Evaluate assertions against the trace and final state
//
// An error is returned only when the scenario could not be executed;
// failed expectations and assertions are reported in Result.
func Run(scenario *Scenario, opts ...Option) (*Result, error) {
	st, err := store.Open(":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory store: %w", err)
	}
	defer st.Close()

	start := scenario.StartTime
	if start == 0 {
		start = DefaultStartTime
	}

	h := &Harness{
		store:   st,
		clock:   testutil.NewManualClock(start),
		plugins: make(map[pledge.Address]pledge.Plugin),
		result:  NewResult(),
		logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(h)
	}

	h.vault = vault.New(VaultAddress, vault.WithLogger(h.logger))
	h.ledger = pledge.New(
		pledge.WithOwner(OwnerAddress),
		pledge.WithVault(h.vault),
		pledge.WithClock(h.clock),
		pledge.WithTxIDGenerator(testutil.NewSequentialTxIDs("tx")),
		pledge.WithCommitter(st),
		pledge.WithLogger(h.logger),
		pledge.WithListener(h.onEvent),
	)
	h.vault.Attach(h.ledger)

	ctx := context.Background()

	for i, step := range scenario.Setup {
		if _, err := h.runStep(ctx, step); err != nil {
			return nil, fmt.Errorf("setup step %d (%s): %w", i, step.Op, err)
		}
	}

	for i, step := range scenario.Flow {
		out, err := h.runStep(ctx, step)
		h.checkExpect(i, step, out, err)
	}

	actx := &AssertionContext{
		Ctx:    ctx,
		Store:  st,
		Ledger: h.ledger,
		Vault:  h.vault,
	}
	for _, errMsg := range EvaluateAssertions(h.result, scenario.Assertions, actx) {
		h.result.AddError(errMsg)
	}

	return h.result, nil
}

// onEvent appends committed ledger events to the trace. Listeners run
// synchronously before the operation returns, so events land between the
// op entry and its result entry.
func (h *Harness) onEvent(ev pledge.Event) {
	h.result.AddEventTrace(string(ev.Kind), uint64(ev.From), uint64(ev.To), ev.Amount, uint64(ev.Project))
}

// runStep executes one step and records it in the trace.
func (h *Harness) runStep(ctx context.Context, step Step) (map[string]any, error) {
	h.result.AddOpTrace(step.Op, step.Caller, step.Args)

	out, err := h.execute(ctx, step)
	outcome := OutcomeOK
	if err != nil {
		out = nil
		outcome = outcomeOf(err)
	}
	h.result.AddResultTrace(outcome, out, h.ledger.Seq())

	h.logger.Debug("step completed",
		"op", step.Op,
		"caller", step.Caller,
		"outcome", outcome,
		"seq", h.ledger.Seq(),
	)
	return out, err
}

// checkExpect compares a flow step's outcome with its expect clause.
func (h *Harness) checkExpect(i int, step Step, out map[string]any, err error) {
	var want string
	if step.Expect != nil {
		want = step.Expect.Error
	}

	switch {
	case want == "" && err != nil:
		h.result.AddError(fmt.Sprintf("flow[%d] %s: unexpected error: %v", i, step.Op, err))
		return
	case want != "" && err == nil:
		h.result.AddError(fmt.Sprintf("flow[%d] %s: expected error %s, got success", i, step.Op, want))
		return
	case want != "" && outcomeOf(err) != want:
		h.result.AddError(fmt.Sprintf("flow[%d] %s: expected error %s, got %s (%v)", i, step.Op, want, outcomeOf(err), err))
		return
	}

	if step.Expect == nil || err != nil {
		return
	}
	for key, expected := range step.Expect.Result {
		actual, ok := out[key]
		if !ok {
			h.result.AddError(fmt.Sprintf("flow[%d] %s: result has no field %q", i, step.Op, key))
			continue
		}
		if !valuesEqual(actual, expected) {
			h.result.AddError(fmt.Sprintf("flow[%d] %s: result %s = %v, want %v", i, step.Op, key, actual, expected))
		}
	}
}

func outcomeOf(err error) string {
	if code := pledge.CodeOf(err); code != "" {
		return string(code)
	}
	return OutcomeError
}
