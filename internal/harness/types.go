package harness

// Trace entry types.
const (
	EntryOp     = "op"     // an operation was requested
	EntryEvent  = "event"  // the ledger emitted an event
	EntryResult = "result" // the operation finished
)

// OutcomeOK is the outcome of a successful step.
const OutcomeOK = "ok"

// TraceEvent is one entry of a scenario trace. Which fields are set
// depends on Type.
type TraceEvent struct {
	Type string `json:"type"`

	// Op entries.
	Op     string         `json:"op,omitempty"`
	Caller string         `json:"caller,omitempty"`
	Args   map[string]any `json:"args,omitempty"`

	// Event entries.
	Kind    string `json:"kind,omitempty"`
	From    uint64 `json:"from,omitempty"`
	To      uint64 `json:"to,omitempty"`
	Amount  uint64 `json:"amount,omitempty"`
	Project uint64 `json:"project,omitempty"`

	// Result entries. Outcome is OutcomeOK or a ledger error code.
	Outcome string         `json:"outcome,omitempty"`
	Result  map[string]any `json:"result,omitempty"`
	Seq     int64          `json:"seq,omitempty"`
}

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass indicates overall success: every expectation and assertion held.
	Pass bool `json:"pass"`

	// Trace contains every operation, event and outcome in order.
	Trace []TraceEvent `json:"trace"`

	// Errors contains validation error messages.
	// Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []TraceEvent{},
		Errors: []string{},
	}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// AddOpTrace records a requested operation.
func (r *Result) AddOpTrace(op, caller string, args map[string]any) {
	r.Trace = append(r.Trace, TraceEvent{
		Type:   EntryOp,
		Op:     op,
		Caller: caller,
		Args:   args,
	})
}

// AddEventTrace records a ledger event.
func (r *Result) AddEventTrace(kind string, from, to, amount, project uint64) {
	r.Trace = append(r.Trace, TraceEvent{
		Type:    EntryEvent,
		Kind:    kind,
		From:    from,
		To:      to,
		Amount:  amount,
		Project: project,
	})
}

// AddResultTrace records how an operation finished and the ledger seq
// afterwards.
func (r *Result) AddResultTrace(outcome string, result map[string]any, seq int64) {
	r.Trace = append(r.Trace, TraceEvent{
		Type:    EntryResult,
		Outcome: outcome,
		Result:  result,
		Seq:     seq,
	})
}
