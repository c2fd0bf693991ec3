package pledge

import (
	"fmt"
)

type hookPhase bool

const (
	beforePhase hookPhase = true
	afterPhase  hookPhase = false
)

// callPlugins runs the hooks of the source pledge's admins, then those of
// the destination pledge's admins. Before hooks thread the allowed amount
// through every call.
func (tx *txn) callPlugins(phase hookPhase, from, to PledgeID, amount uint64) (uint64, error) {
	allowed, err := tx.callPledgePlugins(phase, from, from, to, amount)
	if err != nil {
		return 0, err
	}
	return tx.callPledgePlugins(phase, to, from, to, allowed)
}

func (tx *txn) callPledgePlugins(phase hookPhase, id, from, to PledgeID, amount uint64) (uint64, error) {
	if id == 0 {
		return amount, nil
	}
	var offset HookContext
	if id != from {
		offset = ContextReceiving
	}
	p, err := tx.pledge(id)
	if err != nil {
		return 0, err
	}

	hook := Hook{From: from, To: to}
	call := func(admin AdminID, role HookContext) error {
		hook.Admin = admin
		hook.Context = offset + role
		hook.Amount = amount
		amount, err = tx.callPlugin(phase, hook)
		return err
	}

	if err := call(p.Owner, ContextOwner); err != nil {
		return 0, err
	}
	for i, d := range p.Chain {
		if err := call(d, ChainContext(i)); err != nil {
			return 0, err
		}
	}
	if p.IntendedProject != 0 {
		if err := call(p.IntendedProject, ContextIntendedProject); err != nil {
			return 0, err
		}
	}
	return amount, nil
}

// callPlugin invokes one admin's plugin. Admin 0, admins without a plugin
// and a zero amount pass through untouched.
func (tx *txn) callPlugin(phase hookPhase, h Hook) (uint64, error) {
	if h.Admin == 0 || h.Amount == 0 {
		return h.Amount, nil
	}
	a, err := tx.admin(h.Admin)
	if err != nil {
		return 0, err
	}
	if a.Plugin == "" {
		return h.Amount, nil
	}
	p, err := tx.l.pluginFor(a)
	if err != nil {
		return 0, err
	}

	ctx := tx.hookContext()
	if phase == afterPhase {
		err := tx.l.callHook(func() error {
			return p.AfterTransfer(ctx, tx.view(), h)
		})
		if err != nil {
			return 0, fmt.Errorf("after-transfer hook of admin %d: %w", h.Admin, err)
		}
		return h.Amount, nil
	}

	var allowed uint64
	err = tx.l.callHook(func() error {
		var err error
		allowed, err = p.BeforeTransfer(ctx, tx.view(), h)
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("before-transfer hook of admin %d: %w", h.Admin, err)
	}
	if allowed > h.Amount {
		return 0, newError(ErrCodeInvariantViolation, "plugin of admin %d raised %d to %d", h.Admin, h.Amount, allowed).
			with("admin", h.Admin).with("context", h.Context)
	}
	return allowed, nil
}

// moveValue is the single primitive that changes balances. It returns the
// amount actually moved after before-hooks have clamped it.
func (tx *txn) moveValue(from, to PledgeID, amount uint64) (uint64, error) {
	allowed, err := tx.callPlugins(beforePhase, from, to, amount)
	if err != nil {
		return 0, err
	}
	if from == to || allowed == 0 {
		return allowed, nil
	}

	src, err := tx.pledge(from)
	if err != nil {
		return 0, err
	}
	dst, err := tx.pledge(to)
	if err != nil {
		return 0, err
	}
	if src.Amount < allowed {
		return 0, errInsufficient(from, src.Amount, allowed)
	}
	if dst.Amount+allowed < dst.Amount {
		return 0, newError(ErrCodeInvariantViolation, "crediting %d overflows pledge %d", allowed, to)
	}
	tx.setAmount(from, src.Amount-allowed)
	tx.setAmount(to, dst.Amount+allowed)
	tx.emit(Event{Kind: EventTransfer, From: from, To: to, Amount: allowed})

	if _, err := tx.callPlugins(afterPhase, from, to, allowed); err != nil {
		return 0, err
	}
	return allowed, nil
}
