package harness

import (
	"context"
	"fmt"

	"github.com/roach88/pledgeflow/internal/pledge"
	"github.com/roach88/pledgeflow/internal/testutil"
)

// execute dispatches a step to the ledger, the vault or the clock.
// It returns the step's result fields.
func (h *Harness) execute(ctx context.Context, step Step) (map[string]any, error) {
	r := &argReader{op: step.Op, args: step.Args}
	caller := pledge.Address(step.Caller)
	l := h.ledger

	switch step.Op {
	case OpAddGiver, OpAddDelegate:
		spec := r.adminSpec()
		if r.err != nil {
			return nil, r.err
		}
		add := l.AddGiver
		if step.Op == OpAddDelegate {
			add = l.AddDelegate
		}
		id, err := add(ctx, caller, spec)
		if err != nil {
			return nil, err
		}
		return map[string]any{"id": uint64(id)}, nil

	case OpAddProject:
		spec := pledge.ProjectSpec{
			AdminSpec: r.adminSpec(),
			Admin:     pledge.Address(r.str("admin")),
			Parent:    pledge.AdminID(r.optUint("parent")),
		}
		if r.err != nil {
			return nil, r.err
		}
		id, err := l.AddProject(ctx, caller, spec)
		if err != nil {
			return nil, err
		}
		return map[string]any{"id": uint64(id)}, nil

	case OpUpdateGiver, OpUpdateDelegate, OpUpdateProject:
		id := pledge.AdminID(r.reqUint("id"))
		upd := pledge.AdminUpdate{
			Addr:       pledge.Address(r.str("addr")),
			Name:       r.str("name"),
			URL:        r.str("url"),
			CommitTime: r.optUint("commit_time"),
		}
		if r.err != nil {
			return nil, r.err
		}
		if upd.Addr == "" {
			upd.Addr = caller
		}
		update := l.UpdateGiver
		switch step.Op {
		case OpUpdateDelegate:
			update = l.UpdateDelegate
		case OpUpdateProject:
			update = l.UpdateProject
		}
		return nil, update(ctx, caller, id, upd)

	case OpDonate:
		giver := pledge.AdminID(r.optUint("giver"))
		receiver := pledge.AdminID(r.reqUint("receiver"))
		amount := r.reqUint("amount")
		if r.err != nil {
			return nil, r.err
		}
		id, err := l.Donate(ctx, caller, giver, receiver, amount)
		if err != nil {
			return nil, err
		}
		return map[string]any{"giver": uint64(id)}, nil

	case OpTransfer:
		sender := pledge.AdminID(r.reqUint("sender"))
		id := pledge.PledgeID(r.reqUint("pledge"))
		amount := r.reqUint("amount")
		receiver := pledge.AdminID(r.reqUint("receiver"))
		if r.err != nil {
			return nil, r.err
		}
		return nil, l.Transfer(ctx, caller, sender, id, amount, receiver)

	case OpTransferMany:
		sender := pledge.AdminID(r.reqUint("sender"))
		receiver := pledge.AdminID(r.reqUint("receiver"))
		items := r.items("items")
		if r.err != nil {
			return nil, r.err
		}
		return nil, l.TransferMany(ctx, caller, sender, items, receiver)

	case OpWithdraw:
		id := pledge.PledgeID(r.reqUint("pledge"))
		amount := r.reqUint("amount")
		if r.err != nil {
			return nil, r.err
		}
		w, err := l.Withdraw(ctx, caller, id, amount)
		if err != nil {
			return nil, err
		}
		return map[string]any{
			"pledge":  uint64(w.Pledge),
			"payment": w.PaymentID,
			"amount":  w.Amount,
		}, nil

	case OpConfirmPayment, OpCancelPayment:
		payment := r.reqUint("payment")
		if r.err != nil {
			return nil, r.err
		}
		if step.Op == OpConfirmPayment {
			return nil, h.vault.Confirm(ctx, payment)
		}
		return nil, h.vault.Cancel(ctx, payment)

	case OpCancelPledge:
		id := pledge.PledgeID(r.reqUint("pledge"))
		amount := r.reqUint("amount")
		if r.err != nil {
			return nil, r.err
		}
		return nil, l.CancelPledge(ctx, caller, id, amount)

	case OpCancelProject:
		id := pledge.AdminID(r.reqUint("project"))
		if r.err != nil {
			return nil, r.err
		}
		return nil, l.CancelProject(ctx, caller, id)

	case OpNormalize:
		id := pledge.PledgeID(r.reqUint("pledge"))
		if r.err != nil {
			return nil, r.err
		}
		to, err := l.Normalize(ctx, id)
		if err != nil {
			return nil, err
		}
		return map[string]any{"pledge": uint64(to)}, nil

	case OpAdvanceTime:
		seconds := r.reqUint("seconds")
		if r.err != nil {
			return nil, r.err
		}
		return map[string]any{"now": h.clock.Advance(seconds)}, nil

	case OpInstallPlugin:
		addr := pledge.Address(r.str("addr"))
		p := newPlugin(r.str("kind"), r.optUint("limit"))
		if r.err != nil {
			return nil, r.err
		}
		if p == nil {
			return nil, fmt.Errorf("%s: unknown plugin kind %q", step.Op, r.str("kind"))
		}
		if err := l.InstallPlugin(addr, p); err != nil {
			return nil, err
		}
		h.plugins[addr] = p
		return map[string]any{"code_hash": pledge.PluginCodeHash(p)}, nil

	case OpAllowPlugin:
		addr := pledge.Address(r.str("addr"))
		p, ok := h.plugins[addr]
		if !ok {
			return nil, fmt.Errorf("%s: no plugin installed at %q", step.Op, addr)
		}
		return nil, l.AllowPluginCode(caller, pledge.PluginCodeHash(p))

	case OpUseWhitelist:
		enabled := r.boolean("enabled")
		if r.err != nil {
			return nil, r.err
		}
		return nil, l.UseWhitelist(caller, enabled)
	}

	return nil, fmt.Errorf("unknown op %q", step.Op)
}

// newPlugin builds one of the scripted plugins. Returns nil for an unknown
// kind.
func newPlugin(kind string, limit uint64) pledge.Plugin {
	switch kind {
	case "allow":
		return pledge.AllowAll{}
	case "cap":
		return testutil.CapPlugin{Limit: limit}
	case "raise":
		return testutil.RaisePlugin{}
	case "fail_before":
		return testutil.FailPlugin{Before: true}
	case "fail_after":
		return testutil.FailPlugin{After: true}
	}
	return nil
}

// argReader reads typed step arguments. The first error sticks; callers
// check err once after reading every argument.
type argReader struct {
	op   string
	args map[string]any
	err  error
}

func (r *argReader) fail(format string, a ...any) {
	if r.err == nil {
		r.err = fmt.Errorf("%s: %s", r.op, fmt.Sprintf(format, a...))
	}
}

func (r *argReader) adminSpec() pledge.AdminSpec {
	return pledge.AdminSpec{
		Name:       r.str("name"),
		URL:        r.str("url"),
		CommitTime: r.optUint("commit_time"),
		Plugin:     pledge.Address(r.str("plugin")),
	}
}

// reqUint reads a required non-negative integer.
func (r *argReader) reqUint(key string) uint64 {
	if _, ok := r.args[key]; !ok {
		r.fail("missing argument %q", key)
		return 0
	}
	return r.optUint(key)
}

// optUint reads an optional non-negative integer; absent is 0.
func (r *argReader) optUint(key string) uint64 {
	v, ok := r.args[key]
	if !ok {
		return 0
	}
	n, err := toUint(v)
	if err != nil {
		r.fail("argument %q: %v", key, err)
	}
	return n
}

// str reads an optional string; absent is "".
func (r *argReader) str(key string) string {
	v, ok := r.args[key]
	if !ok {
		return ""
	}
	s, isStr := v.(string)
	if !isStr {
		r.fail("argument %q: want string, got %T", key, v)
	}
	return s
}

func (r *argReader) boolean(key string) bool {
	v, ok := r.args[key]
	if !ok {
		r.fail("missing argument %q", key)
		return false
	}
	b, isBool := v.(bool)
	if !isBool {
		r.fail("argument %q: want bool, got %T", key, v)
	}
	return b
}

// items reads a list of {pledge, amount} maps.
func (r *argReader) items(key string) []pledge.PledgeAmount {
	v, ok := r.args[key]
	if !ok {
		r.fail("missing argument %q", key)
		return nil
	}
	list, isList := v.([]any)
	if !isList {
		r.fail("argument %q: want list, got %T", key, v)
		return nil
	}
	out := make([]pledge.PledgeAmount, 0, len(list))
	for i, elem := range list {
		m, isMap := elem.(map[string]any)
		if !isMap {
			r.fail("argument %q[%d]: want map, got %T", key, i, elem)
			return nil
		}
		item := &argReader{op: fmt.Sprintf("%s %s[%d]", r.op, key, i), args: m}
		pa := pledge.PledgeAmount{
			Pledge: pledge.PledgeID(item.reqUint("pledge")),
			Amount: item.reqUint("amount"),
		}
		if item.err != nil {
			r.fail("%v", item.err)
			return nil
		}
		out = append(out, pa)
	}
	return out
}

// toUint converts a decoded YAML or JSON integer.
func toUint(v any) (uint64, error) {
	switch n := v.(type) {
	case int:
		if n < 0 {
			return 0, fmt.Errorf("negative value %d", n)
		}
		return uint64(n), nil
	case int64:
		if n < 0 {
			return 0, fmt.Errorf("negative value %d", n)
		}
		return uint64(n), nil
	case uint64:
		return n, nil
	case uint:
		return uint64(n), nil
	}
	return 0, fmt.Errorf("want integer, got %T", v)
}
