package harness

import (
	"context"
	"fmt"
	"reflect"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/roach88/pledgeflow/internal/pledge"
	"github.com/roach88/pledgeflow/internal/store"
	"github.com/roach88/pledgeflow/internal/vault"
)

// validIdentifier matches valid SQL identifiers (table/column names).
// Only allows alphanumeric and underscore, must start with letter or underscore.
// This prevents SQL injection via identifier interpolation.
var validIdentifier = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// AssertionError is returned when an assertion fails.
// It includes detailed context to help debug the failure.
type AssertionError struct {
	Type     string       // Assertion type for categorization
	Expected string       // Human-readable expected outcome
	Actual   string       // Human-readable actual outcome
	Trace    []TraceEvent // Full trace for debugging context
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	if len(e.Trace) > 0 {
		fmt.Fprintf(&buf, "\nFull trace:\n")
		n := 0
		for _, event := range e.Trace {
			if event.Type == EntryOp {
				n++
				fmt.Fprintf(&buf, "  [%d] %s %s %v\n", n, event.Op, event.Caller, event.Args)
			}
		}
	}

	return buf.String()
}

// assertTraceContains checks if the trace contains an operation matching
// the specified op and args (subset match).
func assertTraceContains(trace []TraceEvent, assertion Assertion) error {
	for _, event := range trace {
		if event.Type == EntryOp && event.Op == assertion.Op {
			if matchArgs(event.Args, assertion.Args) {
				return nil
			}
		}
	}

	return &AssertionError{
		Type:     AssertTraceContains,
		Expected: fmt.Sprintf("op %s with args %v", assertion.Op, assertion.Args),
		Actual:   "not found in trace",
		Trace:    trace,
	}
}

// assertTraceOrder checks if operations appear in the specified order.
// Operations don't need to be consecutive (intervening operations are allowed).
func assertTraceOrder(trace []TraceEvent, assertion Assertion) error {
	// Find first position of each expected op
	positions := make(map[string]int)

	for i, event := range trace {
		if event.Type == EntryOp {
			for _, expectedOp := range assertion.Ops {
				if event.Op == expectedOp && positions[expectedOp] == 0 {
					positions[expectedOp] = i + 1 // 1-indexed for readability
				}
			}
		}
	}

	for _, op := range assertion.Ops {
		if positions[op] == 0 {
			return &AssertionError{
				Type:     AssertTraceOrder,
				Expected: fmt.Sprintf("all ops present: %v", assertion.Ops),
				Actual:   fmt.Sprintf("missing op: %s", op),
				Trace:    trace,
			}
		}
	}

	for i := 1; i < len(assertion.Ops); i++ {
		prev := assertion.Ops[i-1]
		curr := assertion.Ops[i]

		if positions[prev] >= positions[curr] {
			return &AssertionError{
				Type:     AssertTraceOrder,
				Expected: fmt.Sprintf("ops in order: %v", assertion.Ops),
				Actual: fmt.Sprintf("%s (pos %d) should be before %s (pos %d)",
					prev, positions[prev], curr, positions[curr]),
				Trace: trace,
			}
		}
	}

	return nil
}

// assertTraceCount checks if the op appears exactly the specified number of times.
func assertTraceCount(trace []TraceEvent, assertion Assertion) error {
	count := 0
	for _, event := range trace {
		if event.Type == EntryOp && event.Op == assertion.Op {
			count++
		}
	}

	if count != assertion.Count {
		return &AssertionError{
			Type:     AssertTraceCount,
			Expected: fmt.Sprintf("%d occurrences of %s", assertion.Count, assertion.Op),
			Actual:   fmt.Sprintf("%d occurrences", count),
			Trace:    trace,
		}
	}

	return nil
}

// assertEventCount counts emitted events, optionally of one kind.
func assertEventCount(trace []TraceEvent, assertion Assertion) error {
	count := 0
	for _, event := range trace {
		if event.Type == EntryEvent && (assertion.Kind == "" || event.Kind == assertion.Kind) {
			count++
		}
	}

	if count != assertion.Count {
		kind := assertion.Kind
		if kind == "" {
			kind = "any"
		}
		return &AssertionError{
			Type:     AssertEventCount,
			Expected: fmt.Sprintf("%d events of kind %s", assertion.Count, kind),
			Actual:   fmt.Sprintf("%d events", count),
			Trace:    trace,
		}
	}

	return nil
}

// pledgeFields flattens a pledge for subset matching.
func pledgeFields(p pledge.Pledge) map[string]any {
	chain := make([]any, len(p.Chain))
	for i, d := range p.Chain {
		chain[i] = uint64(d)
	}
	return map[string]any{
		"id":               uint64(p.ID),
		"amount":           p.Amount,
		"owner":            uint64(p.Owner),
		"chain":            chain,
		"intended_project": uint64(p.IntendedProject),
		"commit_time":      p.CommitTime,
		"old_pledge":       uint64(p.OldPledge),
		"state":            p.State.String(),
	}
}

// adminFields flattens an admin for subset matching. Parent and canceled
// are zero for non-projects.
func adminFields(a pledge.Admin) map[string]any {
	fields := map[string]any{
		"id":          uint64(a.ID),
		"kind":        a.Kind.String(),
		"addr":        string(a.Addr),
		"name":        a.Name,
		"url":         a.URL,
		"commit_time": a.CommitTime,
		"plugin":      string(a.Plugin),
		"parent":      uint64(0),
		"canceled":    false,
	}
	if a.Project != nil {
		fields["parent"] = uint64(a.Project.Parent)
		fields["canceled"] = a.Project.Canceled
	}
	return fields
}

func paymentFields(p vault.Payment) map[string]any {
	return map[string]any{
		"id":     p.ID,
		"pledge": uint64(p.Pledge),
		"dest":   string(p.Dest),
		"amount": p.Amount,
		"status": string(p.Status),
	}
}

// matchFields checks expected fields against actual ones (subset semantics).
func matchFields(kind, subject string, actual, expected map[string]any) error {
	keys := make([]string, 0, len(expected))
	for k := range expected {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, key := range keys {
		actualValue, exists := actual[key]
		if !exists {
			return &AssertionError{
				Type:     kind,
				Expected: fmt.Sprintf("%s field %q to exist", subject, key),
				Actual:   fmt.Sprintf("no such field; have %v", sortedKeys(actual)),
			}
		}
		if !valuesEqual(actualValue, expected[key]) {
			return &AssertionError{
				Type:     kind,
				Expected: fmt.Sprintf("%s %s = %v", subject, key, expected[key]),
				Actual:   fmt.Sprintf("%s %s = %v", subject, key, actualValue),
			}
		}
	}
	return nil
}

func assertPledge(l *pledge.Ledger, assertion Assertion) error {
	p, err := l.Pledge(pledge.PledgeID(assertion.Pledge))
	if err != nil {
		return &AssertionError{
			Type:     AssertPledge,
			Expected: fmt.Sprintf("pledge %d to exist", assertion.Pledge),
			Actual:   err.Error(),
		}
	}
	return matchFields(AssertPledge, fmt.Sprintf("pledge %d", assertion.Pledge), pledgeFields(p), assertion.Expect)
}

func assertAdmin(l *pledge.Ledger, assertion Assertion) error {
	a, err := l.Admin(pledge.AdminID(assertion.Admin))
	if err != nil {
		return &AssertionError{
			Type:     AssertAdmin,
			Expected: fmt.Sprintf("admin %d to exist", assertion.Admin),
			Actual:   err.Error(),
		}
	}
	return matchFields(AssertAdmin, fmt.Sprintf("admin %d", assertion.Admin), adminFields(a), assertion.Expect)
}

func assertPayment(v *vault.Vault, assertion Assertion) error {
	p, err := v.Payment(assertion.Payment)
	if err != nil {
		return &AssertionError{
			Type:     AssertPayment,
			Expected: fmt.Sprintf("payment %d to exist", assertion.Payment),
			Actual:   err.Error(),
		}
	}
	return matchFields(AssertPayment, fmt.Sprintf("payment %d", assertion.Payment), paymentFields(p), assertion.Expect)
}

func assertTotalValue(l *pledge.Ledger, assertion Assertion) error {
	actual := map[string]any{
		"amount":  l.TotalValue(),
		"pledges": uint64(l.PledgeCount()),
		"admins":  uint64(l.AdminCount()),
	}
	return matchFields(AssertTotalValue, "ledger", actual, assertion.Expect)
}

// assertJournal checks that the journal replays to the stored balances and
// recorded every committed transaction.
func assertJournal(ctx context.Context, st *store.Store, l *pledge.Ledger) error {
	discrepancies, err := st.Verify(ctx)
	if err != nil {
		return &AssertionError{Type: AssertJournal, Expected: "journal replay", Actual: err.Error()}
	}
	if len(discrepancies) > 0 {
		return &AssertionError{
			Type:     AssertJournal,
			Expected: "no discrepancies",
			Actual:   fmt.Sprintf("%+v", discrepancies),
		}
	}
	seq, err := st.GetLastSeq(ctx)
	if err != nil {
		return &AssertionError{Type: AssertJournal, Expected: "last journal seq", Actual: err.Error()}
	}
	if seq != l.Seq() {
		return &AssertionError{
			Type:     AssertJournal,
			Expected: fmt.Sprintf("journal at seq %d", l.Seq()),
			Actual:   fmt.Sprintf("journal at seq %d", seq),
		}
	}
	return nil
}

// assertFinalState checks if a journal table row contains expected values.
// Queries the table with parameterized SQL and validates expected values
// using subset semantics.
//
// Security: Table and column names are validated against a whitelist pattern
// to prevent SQL injection via identifier interpolation.
func assertFinalState(ctx context.Context, st *store.Store, assertion Assertion) error {
	if assertion.Table == "" {
		return fmt.Errorf("final_state assertion requires table name")
	}

	// Identifiers can't be parameterized
	if !validIdentifier.MatchString(assertion.Table) {
		return fmt.Errorf("invalid table name %q: must match pattern %s", assertion.Table, validIdentifier.String())
	}

	whereSQL, whereArgs, err := buildWhereClause(assertion.Where)
	if err != nil {
		return err
	}

	query := fmt.Sprintf("SELECT * FROM %s", assertion.Table)
	if whereSQL != "" {
		query += " WHERE " + whereSQL
	}

	rows, err := st.DB().QueryContext(ctx, query, whereArgs...)
	if err != nil {
		return &AssertionError{
			Type:     AssertFinalState,
			Expected: fmt.Sprintf("query table %s", assertion.Table),
			Actual:   fmt.Sprintf("query error: %v", err),
		}
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return fmt.Errorf("get columns: %w", err)
	}

	if !rows.Next() {
		whereDesc := formatWhereClause(assertion.Where)
		return &AssertionError{
			Type:     AssertFinalState,
			Expected: fmt.Sprintf("row in %s where %s", assertion.Table, whereDesc),
			Actual:   "row not found",
		}
	}

	values := make([]any, len(columns))
	valuePtrs := make([]any, len(columns))
	for i := range values {
		valuePtrs[i] = &values[i]
	}

	if err := rows.Scan(valuePtrs...); err != nil {
		return fmt.Errorf("scan row: %w", err)
	}

	// Multiple matching rows make the assertion ambiguous
	if rows.Next() {
		whereDesc := formatWhereClause(assertion.Where)
		return &AssertionError{
			Type:     AssertFinalState,
			Expected: fmt.Sprintf("exactly one row in %s where %s", assertion.Table, whereDesc),
			Actual:   "multiple rows matched (assertion is ambiguous)",
		}
	}

	actualRow := make(map[string]any)
	for i, col := range columns {
		actualRow[col] = values[i]
	}

	for key, expectedValue := range assertion.Expect {
		actualValue, exists := actualRow[key]
		if !exists {
			return &AssertionError{
				Type:     AssertFinalState,
				Expected: fmt.Sprintf("field %q to exist", key),
				Actual:   fmt.Sprintf("field %q not present in result columns: %v", key, columns),
			}
		}

		if !stateValuesEqual(expectedValue, actualValue) {
			return &AssertionError{
				Type:     AssertFinalState,
				Expected: fmt.Sprintf("field %q = %v (type %T)", key, expectedValue, expectedValue),
				Actual:   fmt.Sprintf("field %q = %v (type %T)", key, actualValue, actualValue),
			}
		}
	}

	return nil
}

// buildWhereClause constructs parameterized WHERE clause from assertion.Where.
// Returns SQL fragment, arguments slice, and error. Keys are sorted for determinism.
func buildWhereClause(where map[string]any) (string, []any, error) {
	if len(where) == 0 {
		return "", nil, nil
	}

	keys := sortedKeys(where)
	clauses := make([]string, 0, len(keys))
	args := make([]any, 0, len(keys))

	for _, key := range keys {
		if !validIdentifier.MatchString(key) {
			return "", nil, fmt.Errorf("invalid column name %q in where clause: must match pattern %s", key, validIdentifier.String())
		}
		clauses = append(clauses, fmt.Sprintf("%s = ?", key))
		args = append(args, toSQLValue(where[key]))
	}

	return strings.Join(clauses, " AND "), args, nil
}

// toSQLValue converts a decoded scenario value to a SQL-compatible value.
func toSQLValue(v any) any {
	switch val := v.(type) {
	case string, int, int64, bool:
		return val
	case uint64:
		return strconv.FormatUint(val, 10)
	default:
		return fmt.Sprintf("%v", val)
	}
}

// formatWhereClause creates a human-readable description of WHERE conditions.
func formatWhereClause(where map[string]any) string {
	if len(where) == 0 {
		return "(no conditions)"
	}

	keys := sortedKeys(where)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%v", k, where[k]))
	}
	return strings.Join(parts, " AND ")
}

// stateValuesEqual compares expected and actual values from journal tables.
// Amounts and commit times are stored as decimal TEXT, so an expected
// integer also matches its decimal string.
func stateValuesEqual(expected, actual any) bool {
	if expected == nil && actual == nil {
		return true
	}
	if expected == nil || actual == nil {
		return false
	}

	if b, ok := actual.([]byte); ok {
		actual = string(b)
	}

	switch exp := expected.(type) {
	case string:
		if actualStr, ok := actual.(string); ok {
			return exp == actualStr
		}
		return false
	case int, int64, uint64:
		want := fmt.Sprint(exp)
		switch act := actual.(type) {
		case int64:
			return want == strconv.FormatInt(act, 10)
		case string:
			return want == act
		}
		return false
	case bool:
		if actualBool, ok := actual.(bool); ok {
			return exp == actualBool
		}
		// SQLite stores booleans as integers
		if actualInt, ok := actual.(int64); ok {
			return exp == (actualInt != 0)
		}
		return false
	}

	return reflect.DeepEqual(expected, actual)
}

// matchArgs checks if actual args contain all expected args (subset match).
// Extra keys in actual are ignored.
func matchArgs(actual map[string]any, expected map[string]any) bool {
	for key, expectedVal := range expected {
		actualVal, exists := actual[key]
		if !exists {
			return false
		}
		if !valuesEqual(actualVal, expectedVal) {
			return false
		}
	}
	return true
}

// valuesEqual compares two values after normalizing integer types, so a
// decoded YAML int matches a ledger uint64.
func valuesEqual(actual, expected any) bool {
	return reflect.DeepEqual(normalizeValue(actual), normalizeValue(expected))
}

func normalizeValue(v any) any {
	switch n := v.(type) {
	case int:
		if n >= 0 {
			return uint64(n)
		}
		return int64(n)
	case int64:
		if n >= 0 {
			return uint64(n)
		}
		return n
	case uint:
		return uint64(n)
	case []any:
		out := make([]any, len(n))
		for i, elem := range n {
			out[i] = normalizeValue(elem)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(n))
		for k, elem := range n {
			out[k] = normalizeValue(elem)
		}
		return out
	}
	return v
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// AssertionContext provides the state assertions run against.
type AssertionContext struct {
	Ctx    context.Context
	Store  *store.Store
	Ledger *pledge.Ledger
	Vault  *vault.Vault
}

// EvaluateAssertions evaluates all assertions against the result.
// Returns a slice of error messages for failed assertions.
// State assertions need actx; trace assertions do not.
func EvaluateAssertions(result *Result, assertions []Assertion, actx *AssertionContext) []string {
	var errors []string

	for i, assertion := range assertions {
		var err error

		switch assertion.Type {
		case AssertTraceContains:
			err = assertTraceContains(result.Trace, assertion)
		case AssertTraceOrder:
			err = assertTraceOrder(result.Trace, assertion)
		case AssertTraceCount:
			err = assertTraceCount(result.Trace, assertion)
		case AssertEventCount:
			err = assertEventCount(result.Trace, assertion)
		case AssertPledge, AssertAdmin, AssertTotalValue:
			if actx == nil || actx.Ledger == nil {
				err = fmt.Errorf("assertion[%d]: %s requires a ledger", i, assertion.Type)
			} else if assertion.Type == AssertPledge {
				err = assertPledge(actx.Ledger, assertion)
			} else if assertion.Type == AssertAdmin {
				err = assertAdmin(actx.Ledger, assertion)
			} else {
				err = assertTotalValue(actx.Ledger, assertion)
			}
		case AssertPayment:
			if actx == nil || actx.Vault == nil {
				err = fmt.Errorf("assertion[%d]: payment requires a vault", i)
			} else {
				err = assertPayment(actx.Vault, assertion)
			}
		case AssertJournal:
			if actx == nil || actx.Store == nil || actx.Ledger == nil {
				err = fmt.Errorf("assertion[%d]: journal_consistent requires a store and a ledger", i)
			} else {
				err = assertJournal(actx.Ctx, actx.Store, actx.Ledger)
			}
		case AssertFinalState:
			if actx == nil || actx.Store == nil {
				err = fmt.Errorf("assertion[%d]: final_state requires database context", i)
			} else {
				err = assertFinalState(actx.Ctx, actx.Store, assertion)
			}
		default:
			err = fmt.Errorf("assertion[%d]: unknown assertion type %q", i, assertion.Type)
		}

		if err != nil {
			errors = append(errors, err.Error())
		}
	}

	return errors
}
