package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Scenario defines a ledger conformance scenario.
// Scenarios execute a sequence of ledger operations against a fresh
// ledger and assert on the resulting trace and final state.
type Scenario struct {
	// Name uniquely identifies this scenario. Golden files are named after it.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// StartTime is the initial clock reading in seconds. Defaults to
	// DefaultStartTime.
	StartTime uint64 `yaml:"start_time,omitempty"`

	// Setup contains operations that establish initial state.
	// A failing setup step aborts the run.
	Setup []Step `yaml:"setup,omitempty"`

	// Flow contains the operations under test, each with an optional
	// expectation. Without one the step is expected to succeed.
	Flow []Step `yaml:"flow"`

	// Assertions validate the final trace and state.
	Assertions []Assertion `yaml:"assertions"`
}

// DefaultStartTime is the clock reading when a scenario sets none.
const DefaultStartTime = 1000

// Step is one ledger operation.
type Step struct {
	// Op names the operation (see the Op* constants).
	Op string `yaml:"op"`

	// Caller is the address performing the operation.
	Caller string `yaml:"caller,omitempty"`

	// Args holds the operation's arguments.
	Args map[string]any `yaml:"args,omitempty"`

	// Expect specifies the expected outcome.
	Expect *ExpectClause `yaml:"expect,omitempty"`
}

// ExpectClause specifies the expected outcome of a step.
type ExpectClause struct {
	// Error is the expected ledger error code (e.g. "INSUFFICIENT_BALANCE").
	// Empty means the step must succeed.
	Error string `yaml:"error,omitempty"`

	// Result contains expected result fields. Subset match.
	Result map[string]any `yaml:"result,omitempty"`
}

// Operation names.
const (
	OpAddGiver       = "add_giver"
	OpAddDelegate    = "add_delegate"
	OpAddProject     = "add_project"
	OpUpdateGiver    = "update_giver"
	OpUpdateDelegate = "update_delegate"
	OpUpdateProject  = "update_project"
	OpDonate         = "donate"
	OpTransfer       = "transfer"
	OpTransferMany   = "transfer_many"
	OpWithdraw       = "withdraw"
	OpConfirmPayment = "confirm_payment"
	OpCancelPayment  = "cancel_payment"
	OpCancelPledge   = "cancel_pledge"
	OpCancelProject  = "cancel_project"
	OpNormalize      = "normalize"
	OpAdvanceTime    = "advance_time"
	OpInstallPlugin  = "install_plugin"
	OpAllowPlugin    = "allow_plugin"
	OpUseWhitelist   = "use_whitelist"
)

var knownOps = map[string]bool{
	OpAddGiver: true, OpAddDelegate: true, OpAddProject: true,
	OpUpdateGiver: true, OpUpdateDelegate: true, OpUpdateProject: true,
	OpDonate: true, OpTransfer: true, OpTransferMany: true,
	OpWithdraw: true, OpConfirmPayment: true, OpCancelPayment: true,
	OpCancelPledge: true, OpCancelProject: true, OpNormalize: true,
	OpAdvanceTime: true, OpInstallPlugin: true, OpAllowPlugin: true,
	OpUseWhitelist: true,
}

// Assertion validates trace or final state.
type Assertion struct {
	// Type specifies the assertion type (see the Assert* constants).
	Type string `yaml:"type"`

	// Op is the operation name (trace_contains, trace_count).
	Op string `yaml:"op,omitempty"`

	// Ops is the expected operation order (trace_order).
	Ops []string `yaml:"ops,omitempty"`

	// Args are the expected operation arguments (trace_contains). Subset match.
	Args map[string]any `yaml:"args,omitempty"`

	// Count is the expected number of occurrences (trace_count, event_count).
	Count int `yaml:"count,omitempty"`

	// Kind filters events by kind (event_count). Empty counts all events.
	Kind string `yaml:"kind,omitempty"`

	// Pledge, Admin and Payment select the record for the state assertions.
	Pledge  uint64 `yaml:"pledge,omitempty"`
	Admin   uint64 `yaml:"admin,omitempty"`
	Payment uint64 `yaml:"payment,omitempty"`

	// Table and Where select a journal row (final_state).
	Table string         `yaml:"table,omitempty"`
	Where map[string]any `yaml:"where,omitempty"`

	// Expect contains expected field values. Subset match.
	Expect map[string]any `yaml:"expect,omitempty"`
}

// Assertion type constants.
const (
	AssertTraceContains = "trace_contains"
	AssertTraceOrder    = "trace_order"
	AssertTraceCount    = "trace_count"
	AssertEventCount    = "event_count"
	AssertPledge        = "pledge"
	AssertAdmin         = "admin"
	AssertPayment       = "payment"
	AssertTotalValue    = "total_value"
	AssertJournal       = "journal_consistent"
	AssertFinalState    = "final_state"
)

// LoadScenario reads and parses a scenario file. Files ending in .cue are
// validated against the embedded scenario schema; anything else is YAML.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	if filepath.Ext(path) == ".cue" {
		data, err = cueToJSON(path, data)
		if err != nil {
			return nil, err
		}
	}

	scenario, err := ParseScenario(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return scenario, nil
}

// ParseScenario parses and validates a YAML (or JSON) scenario.
func ParseScenario(data []byte) (*Scenario, error) {
	// Strict field validation catches typos like "assertion:" vs "assertions:"
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}

	if s.Description == "" {
		return fmt.Errorf("description is required")
	}

	if len(s.Flow) == 0 {
		return fmt.Errorf("flow list is required and must be non-empty")
	}

	if len(s.Assertions) == 0 {
		return fmt.Errorf("assertions list is required and must be non-empty")
	}

	for i, step := range s.Setup {
		if err := validateStep(step); err != nil {
			return fmt.Errorf("setup[%d]: %w", i, err)
		}
		if step.Expect != nil {
			return fmt.Errorf("setup[%d]: expect is not allowed in setup", i)
		}
	}

	for i, step := range s.Flow {
		if err := validateStep(step); err != nil {
			return fmt.Errorf("flow[%d]: %w", i, err)
		}
	}

	for i, assertion := range s.Assertions {
		if err := validateAssertion(i, &assertion); err != nil {
			return err
		}
	}

	return nil
}

func validateStep(step Step) error {
	if step.Op == "" {
		return fmt.Errorf("op is required")
	}
	if !knownOps[step.Op] {
		return fmt.Errorf("unknown op %q", step.Op)
	}
	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}

	switch a.Type {
	case AssertTraceContains:
		if a.Op == "" {
			return fmt.Errorf("assertions[%d]: op is required for trace_contains", index)
		}
	case AssertTraceOrder:
		if len(a.Ops) == 0 {
			return fmt.Errorf("assertions[%d]: ops list is required for trace_order", index)
		}
	case AssertTraceCount:
		if a.Op == "" {
			return fmt.Errorf("assertions[%d]: op is required for trace_count", index)
		}
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for trace_count", index)
		}
	case AssertEventCount:
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for event_count", index)
		}
	case AssertPledge:
		if a.Pledge == 0 {
			return fmt.Errorf("assertions[%d]: pledge is required for pledge", index)
		}
		if len(a.Expect) == 0 {
			return fmt.Errorf("assertions[%d]: expect is required for pledge", index)
		}
	case AssertAdmin:
		if a.Admin == 0 {
			return fmt.Errorf("assertions[%d]: admin is required for admin", index)
		}
		if len(a.Expect) == 0 {
			return fmt.Errorf("assertions[%d]: expect is required for admin", index)
		}
	case AssertPayment:
		if a.Payment == 0 {
			return fmt.Errorf("assertions[%d]: payment is required for payment", index)
		}
		if len(a.Expect) == 0 {
			return fmt.Errorf("assertions[%d]: expect is required for payment", index)
		}
	case AssertTotalValue:
		if len(a.Expect) == 0 {
			return fmt.Errorf("assertions[%d]: expect is required for total_value", index)
		}
	case AssertJournal:
	case AssertFinalState:
		if a.Table == "" {
			return fmt.Errorf("assertions[%d]: table is required for final_state", index)
		}
		if len(a.Expect) == 0 {
			return fmt.Errorf("assertions[%d]: expect is required for final_state", index)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}

	return nil
}
