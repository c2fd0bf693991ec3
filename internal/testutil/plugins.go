package testutil

import (
	"context"
	"errors"
	"sync"

	"github.com/roach88/pledgeflow/internal/pledge"
)

// CapPlugin allows at most Limit per before-hook call.
type CapPlugin struct {
	Limit uint64
}

// BeforeTransfer clamps the amount to Limit.
func (p CapPlugin) BeforeTransfer(_ context.Context, _ pledge.View, h pledge.Hook) (uint64, error) {
	return min(h.Amount, p.Limit), nil
}

// AfterTransfer does nothing.
func (CapPlugin) AfterTransfer(context.Context, pledge.View, pledge.Hook) error {
	return nil
}

// RaisePlugin returns more than it was offered, which the ledger rejects.
type RaisePlugin struct{}

// BeforeTransfer adds one to the amount.
func (RaisePlugin) BeforeTransfer(_ context.Context, _ pledge.View, h pledge.Hook) (uint64, error) {
	return h.Amount + 1, nil
}

// AfterTransfer does nothing.
func (RaisePlugin) AfterTransfer(context.Context, pledge.View, pledge.Hook) error {
	return nil
}

// ErrVetoed is returned by FailPlugin.
var ErrVetoed = errors.New("vetoed by plugin")

// FailPlugin fails the configured phase with ErrVetoed.
type FailPlugin struct {
	Before bool
	After  bool
}

// BeforeTransfer fails when Before is set.
func (p FailPlugin) BeforeTransfer(_ context.Context, _ pledge.View, h pledge.Hook) (uint64, error) {
	if p.Before {
		return 0, ErrVetoed
	}
	return h.Amount, nil
}

// AfterTransfer fails when After is set.
func (p FailPlugin) AfterTransfer(context.Context, pledge.View, pledge.Hook) error {
	if p.After {
		return ErrVetoed
	}
	return nil
}

// PanicPlugin panics in the configured phase.
type PanicPlugin struct {
	Before bool
	After  bool
}

// BeforeTransfer panics when Before is set.
func (p PanicPlugin) BeforeTransfer(_ context.Context, _ pledge.View, h pledge.Hook) (uint64, error) {
	if p.Before {
		panic("before-transfer failure")
	}
	return h.Amount, nil
}

// AfterTransfer panics when After is set.
func (p PanicPlugin) AfterTransfer(context.Context, pledge.View, pledge.Hook) error {
	if p.After {
		panic("after-transfer failure")
	}
	return nil
}

// HookCall is one recorded plugin invocation.
type HookCall struct {
	Before bool
	Hook   pledge.Hook
}

// RecordPlugin records every call and allows the full amount.
//
// Thread-safety: safe for concurrent use via internal mutex.
type RecordPlugin struct {
	mu    sync.Mutex
	calls []HookCall
}

// BeforeTransfer records the call.
func (p *RecordPlugin) BeforeTransfer(_ context.Context, _ pledge.View, h pledge.Hook) (uint64, error) {
	p.record(true, h)
	return h.Amount, nil
}

// AfterTransfer records the call.
func (p *RecordPlugin) AfterTransfer(_ context.Context, _ pledge.View, h pledge.Hook) error {
	p.record(false, h)
	return nil
}

// Calls returns a copy of the recorded calls.
func (p *RecordPlugin) Calls() []HookCall {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]HookCall(nil), p.calls...)
}

// Reset clears the recorded calls.
func (p *RecordPlugin) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = nil
}

func (p *RecordPlugin) record(before bool, h pledge.Hook) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = append(p.calls, HookCall{Before: before, Hook: h})
}

// ReentrantPlugin calls Do from inside its before-hook with the hook's
// context and keeps the error it got back.
type ReentrantPlugin struct {
	Do func(ctx context.Context) error

	mu  sync.Mutex
	err error
}

// BeforeTransfer invokes Do and allows the full amount.
func (p *ReentrantPlugin) BeforeTransfer(ctx context.Context, _ pledge.View, h pledge.Hook) (uint64, error) {
	if p.Do != nil {
		err := p.Do(ctx)
		p.mu.Lock()
		p.err = err
		p.mu.Unlock()
	}
	return h.Amount, nil
}

// AfterTransfer does nothing.
func (p *ReentrantPlugin) AfterTransfer(context.Context, pledge.View, pledge.Hook) error {
	return nil
}

// Err returns the error the reentrant call produced.
func (p *ReentrantPlugin) Err() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.err
}
