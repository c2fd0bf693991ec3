package harness

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// giverAndProject is the common setup: giver 1 (gina) and project 2 (pam).
func giverAndProject() []Step {
	return []Step{
		{Op: OpAddGiver, Caller: "gina", Args: map[string]any{"name": "Gina"}},
		{Op: OpAddProject, Caller: "pam", Args: map[string]any{"name": "Pam"}},
	}
}

func TestRun_MinimalScenario(t *testing.T) {
	scenario := &Scenario{
		Name:        "minimal",
		Description: "Minimal test scenario",
		Flow: []Step{
			{Op: OpAddGiver, Caller: "gina", Args: map[string]any{"name": "Gina"}},
		},
		Assertions: []Assertion{
			{Type: AssertTraceContains, Op: OpAddGiver},
		},
	}

	result, err := Run(scenario)
	require.NoError(t, err)
	require.NotNil(t, result)

	assert.True(t, result.Pass)
	assert.Empty(t, result.Errors)

	// op + result, no events for admin registration
	require.Len(t, result.Trace, 2)
	assert.Equal(t, EntryOp, result.Trace[0].Type)
	assert.Equal(t, EntryResult, result.Trace[1].Type)
	assert.Equal(t, OutcomeOK, result.Trace[1].Outcome)
	assert.Equal(t, map[string]any{"id": uint64(1)}, result.Trace[1].Result)
	assert.Equal(t, int64(1), result.Trace[1].Seq)
}

func TestRun_EventsBetweenOpAndResult(t *testing.T) {
	scenario := &Scenario{
		Name:        "events",
		Description: "Events land between op and result",
		Setup:       giverAndProject(),
		Flow: []Step{
			{Op: OpDonate, Caller: "gina", Args: map[string]any{"giver": 1, "receiver": 2, "amount": 300}},
		},
		Assertions: []Assertion{
			{Type: AssertEventCount, Kind: "transfer", Count: 2},
		},
	}

	result, err := Run(scenario)
	require.NoError(t, err)
	require.True(t, result.Pass, result.Errors)

	flow := result.Trace[4:]
	require.Len(t, flow, 4)
	assert.Equal(t, EntryOp, flow[0].Type)
	assert.Equal(t, TraceEvent{Type: EntryEvent, Kind: "transfer", From: 0, To: 1, Amount: 300}, flow[1])
	assert.Equal(t, TraceEvent{Type: EntryEvent, Kind: "transfer", From: 1, To: 2, Amount: 300}, flow[2])
	assert.Equal(t, EntryResult, flow[3].Type)
	assert.Equal(t, int64(3), flow[3].Seq)
}

func TestRun_SetupFailureAborts(t *testing.T) {
	scenario := &Scenario{
		Name:        "bad_setup",
		Description: "Setup donation from an unknown giver",
		Setup: []Step{
			{Op: OpDonate, Caller: "gina", Args: map[string]any{"giver": 7, "receiver": 7, "amount": 1}},
		},
		Flow:       []Step{{Op: OpNormalize, Args: map[string]any{"pledge": 1}}},
		Assertions: []Assertion{{Type: AssertJournal}},
	}

	result, err := Run(scenario)
	require.Error(t, err)
	assert.Nil(t, result)
	assert.Contains(t, err.Error(), "setup step 0 (donate)")
	assert.Contains(t, err.Error(), "NOT_FOUND")
}

func TestRun_ExpectedError(t *testing.T) {
	scenario := &Scenario{
		Name:        "expected_error",
		Description: "Withdrawing more than the pledge holds",
		Setup: append(giverAndProject(),
			Step{Op: OpDonate, Caller: "gina", Args: map[string]any{"giver": 1, "receiver": 2, "amount": 100}},
		),
		Flow: []Step{
			{
				Op:     OpWithdraw,
				Caller: "pam",
				Args:   map[string]any{"pledge": 2, "amount": 101},
				Expect: &ExpectClause{Error: "INSUFFICIENT_BALANCE"},
			},
		},
		Assertions: []Assertion{
			{Type: AssertPledge, Pledge: 2, Expect: map[string]any{"amount": 100}},
			{Type: AssertJournal},
		},
	}

	result, err := Run(scenario)
	require.NoError(t, err)
	assert.True(t, result.Pass, result.Errors)

	last := result.Trace[len(result.Trace)-1]
	assert.Equal(t, "INSUFFICIENT_BALANCE", last.Outcome)
	assert.Nil(t, last.Result)
	assert.Equal(t, int64(3), last.Seq, "a failed op consumes no seq")
}

func TestRun_ExpectationMismatches(t *testing.T) {
	tests := []struct {
		name    string
		step    Step
		wantErr string
	}{
		{
			name:    "unexpected error",
			step:    Step{Op: OpWithdraw, Caller: "gina", Args: map[string]any{"pledge": 2, "amount": 1}},
			wantErr: "unexpected error",
		},
		{
			name: "expected error, got success",
			step: Step{Op: OpWithdraw, Caller: "pam", Args: map[string]any{"pledge": 2, "amount": 1},
				Expect: &ExpectClause{Error: "UNAUTHORIZED"}},
			wantErr: "expected error UNAUTHORIZED, got success",
		},
		{
			name: "different error code",
			step: Step{Op: OpWithdraw, Caller: "gina", Args: map[string]any{"pledge": 2, "amount": 1},
				Expect: &ExpectClause{Error: "NOT_FOUND"}},
			wantErr: "expected error NOT_FOUND, got UNAUTHORIZED",
		},
		{
			name: "result mismatch",
			step: Step{Op: OpWithdraw, Caller: "pam", Args: map[string]any{"pledge": 2, "amount": 1},
				Expect: &ExpectClause{Result: map[string]any{"payment": 2}}},
			wantErr: "result payment = 1, want 2",
		},
		{
			name: "missing result field",
			step: Step{Op: OpWithdraw, Caller: "pam", Args: map[string]any{"pledge": 2, "amount": 1},
				Expect: &ExpectClause{Result: map[string]any{"receipt": 1}}},
			wantErr: `result has no field "receipt"`,
		},
		{
			name:    "missing argument",
			step:    Step{Op: OpWithdraw, Caller: "pam", Args: map[string]any{"pledge": 2}},
			wantErr: `withdraw: missing argument "amount"`,
		},
		{
			name:    "negative argument",
			step:    Step{Op: OpWithdraw, Caller: "pam", Args: map[string]any{"pledge": 2, "amount": -5}},
			wantErr: `argument "amount"`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			scenario := &Scenario{
				Name:        "mismatch",
				Description: tt.name,
				Setup: append(giverAndProject(),
					Step{Op: OpDonate, Caller: "gina", Args: map[string]any{"giver": 1, "receiver": 2, "amount": 10}},
				),
				Flow:       []Step{tt.step},
				Assertions: []Assertion{{Type: AssertJournal}},
			}

			result, err := Run(scenario)
			require.NoError(t, err)
			assert.False(t, result.Pass)
			require.NotEmpty(t, result.Errors)
			assert.Contains(t, result.Errors[0], tt.wantErr)
		})
	}
}

func TestRun_Deterministic(t *testing.T) {
	scenario, err := LoadScenario(filepath.Join("testdata", "scenarios", "delegate_veto_window.yaml"))
	require.NoError(t, err)

	first, err := Run(scenario)
	require.NoError(t, err)
	second, err := Run(scenario)
	require.NoError(t, err)

	a, err := MarshalTrace(scenario.Name, first.Trace)
	require.NoError(t, err)
	b, err := MarshalTrace(scenario.Name, second.Trace)
	require.NoError(t, err)
	assert.Equal(t, string(a), string(b))
}

func TestRun_FreshLedgerPerRun(t *testing.T) {
	scenario := &Scenario{
		Name:        "fresh",
		Description: "Each run starts from an empty ledger",
		Flow: []Step{
			{Op: OpAddGiver, Caller: "gina", Args: map[string]any{"name": "Gina"}, Expect: &ExpectClause{Result: map[string]any{"id": 1}}},
		},
		Assertions: []Assertion{
			{Type: AssertTotalValue, Expect: map[string]any{"admins": 1, "pledges": 0}},
		},
	}

	for i := 0; i < 2; i++ {
		result, err := Run(scenario)
		require.NoError(t, err)
		assert.True(t, result.Pass, result.Errors)
	}
}

func TestRun_ExampleScenarios(t *testing.T) {
	files, err := filepath.Glob(filepath.Join("testdata", "scenarios", "*"))
	require.NoError(t, err)
	require.NotEmpty(t, files)

	for _, file := range files {
		t.Run(filepath.Base(file), func(t *testing.T) {
			scenario, err := LoadScenario(file)
			require.NoError(t, err)

			result, err := Run(scenario)
			require.NoError(t, err)
			assert.True(t, result.Pass, "errors: %v", result.Errors)
		})
	}
}

func TestRun_PluginCapsTransfers(t *testing.T) {
	scenario := &Scenario{
		Name:        "plugin_cap",
		Description: "A project plugin caps what it accepts",
		Setup: []Step{
			{Op: OpInstallPlugin, Args: map[string]any{"addr": "capper", "kind": "cap", "limit": 40}},
			{Op: OpAddGiver, Caller: "gina", Args: map[string]any{"name": "Gina"}},
			{Op: OpAddProject, Caller: "pam", Args: map[string]any{"name": "Pam", "plugin": "capper"}},
			{Op: OpDonate, Caller: "gina", Args: map[string]any{"giver": 1, "receiver": 1, "amount": 100}},
		},
		Flow: []Step{
			{Op: OpTransfer, Caller: "gina", Args: map[string]any{"sender": 1, "pledge": 1, "amount": 100, "receiver": 2}},
		},
		Assertions: []Assertion{
			{Type: AssertPledge, Pledge: 1, Expect: map[string]any{"amount": 60}},
			{Type: AssertPledge, Pledge: 2, Expect: map[string]any{"amount": 40}},
			{Type: AssertJournal},
		},
	}

	result, err := Run(scenario)
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)
}

func TestRun_WhitelistRejectsUnknownPlugin(t *testing.T) {
	scenario := &Scenario{
		Name:        "whitelist",
		Description: "With the whitelist on, only allowed plugin code may be attached",
		Setup: []Step{
			{Op: OpInstallPlugin, Args: map[string]any{"addr": "capper", "kind": "cap", "limit": 1}},
			{Op: OpInstallPlugin, Args: map[string]any{"addr": "opener", "kind": "allow"}},
			{Op: OpUseWhitelist, Caller: string(OwnerAddress), Args: map[string]any{"enabled": true}},
			{Op: OpAllowPlugin, Caller: string(OwnerAddress), Args: map[string]any{"addr": "opener"}},
		},
		Flow: []Step{
			{Op: OpAddGiver, Caller: "gina", Args: map[string]any{"plugin": "capper"}, Expect: &ExpectClause{Error: "PLUGIN_NOT_WHITELISTED"}},
			{Op: OpAddGiver, Caller: "gina", Args: map[string]any{"plugin": "opener"}},
			{Op: OpUseWhitelist, Caller: "gina", Args: map[string]any{"enabled": false}, Expect: &ExpectClause{Error: "UNAUTHORIZED"}},
		},
		Assertions: []Assertion{
			{Type: AssertAdmin, Admin: 1, Expect: map[string]any{"plugin": "opener"}},
		},
	}

	result, err := Run(scenario)
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)
}

func TestResult_AddError(t *testing.T) {
	r := NewResult()
	assert.True(t, r.Pass)

	r.AddError("boom")
	assert.False(t, r.Pass)
	assert.Equal(t, []string{"boom"}, r.Errors)
}

func TestResult_AddTrace(t *testing.T) {
	r := NewResult()
	r.AddOpTrace(OpNormalize, "", map[string]any{"pledge": 1})
	r.AddEventTrace("transfer", 1, 2, 5, 0)
	r.AddResultTrace(OutcomeOK, map[string]any{"pledge": uint64(2)}, 9)

	require.Len(t, r.Trace, 3)
	assert.Equal(t, EntryOp, r.Trace[0].Type)
	assert.Equal(t, OpNormalize, r.Trace[0].Op)
	assert.Equal(t, uint64(5), r.Trace[1].Amount)
	assert.Equal(t, int64(9), r.Trace[2].Seq)
}
