package pledge

import (
	"context"
	"fmt"
	"reflect"

	"github.com/roach88/pledgeflow/internal/ident"
)

// HookContext encodes the role of the admin whose plugin is called and
// which side of the movement the pledge is on.
//
//	0       owner
//	i+1     delegate at chain position i
//	255     intended project
//	+256    receiving side (the destination pledge)
type HookContext uint16

const (
	ContextOwner           HookContext = 0
	ContextIntendedProject HookContext = 255
	ContextReceiving       HookContext = 256
)

// ChainContext returns the context of the delegate at chain position i.
func ChainContext(i int) HookContext {
	return HookContext(i + 1)
}

// Receiving reports whether the hook fires for the destination pledge.
func (c HookContext) Receiving() bool {
	return c >= ContextReceiving
}

// Role strips the direction bit.
func (c HookContext) Role() HookContext {
	return c % ContextReceiving
}

// Hook describes one plugin invocation.
type Hook struct {
	Admin   AdminID
	From    PledgeID
	To      PledgeID
	Context HookContext
	Amount  uint64
}

// View is the read-only ledger state a plugin may inspect mid-transaction.
type View interface {
	Pledge(id PledgeID) (Pledge, error)
	Admin(id AdminID) (Admin, error)
	Now() uint64
}

// Plugin is caller-supplied code consulted around value movements.
//
// BeforeTransfer returns the amount it allows, which must not exceed
// h.Amount. AfterTransfer is informational. Either may return an error to
// abort the whole transaction; a panic aborts it the same way. Hooks must
// not call back into the Ledger: while one runs, every Ledger method that
// returns an error fails with ErrCodeInvalidState, and PledgeCount,
// AdminCount and TotalValue report the last committed state. Use the View
// to read in-flight state.
type Plugin interface {
	BeforeTransfer(ctx context.Context, v View, h Hook) (uint64, error)
	AfterTransfer(ctx context.Context, v View, h Hook) error
}

// AllowAll is the plugin used for admins that have none.
type AllowAll struct{}

// BeforeTransfer allows the full amount.
func (AllowAll) BeforeTransfer(_ context.Context, _ View, h Hook) (uint64, error) {
	return h.Amount, nil
}

// AfterTransfer does nothing.
func (AllowAll) AfterTransfer(context.Context, View, Hook) error {
	return nil
}

// CodeHasher lets a plugin declare its own code identity for the allow-list.
type CodeHasher interface {
	CodeHash() string
}

// PluginCodeHash returns the allow-list hash of p: its CodeHash if it
// implements CodeHasher, else the hash of its fully qualified type name.
func PluginCodeHash(p Plugin) string {
	if p == nil {
		return ""
	}
	if h, ok := p.(CodeHasher); ok {
		return h.CodeHash()
	}
	t := reflect.TypeOf(p)
	name := t.String()
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t.PkgPath() != "" {
		name = fmt.Sprintf("%s.%s", t.PkgPath(), t.Name())
	}
	return ident.PluginCodeHash(name)
}

type hookKey struct{}

// withinHook marks ctx as belonging to code called from inside a transaction.
func withinHook(ctx context.Context) context.Context {
	return context.WithValue(ctx, hookKey{}, true)
}

// inHook reports whether ctx was handed to a plugin or the vault.
func inHook(ctx context.Context) bool {
	v, _ := ctx.Value(hookKey{}).(bool)
	return v
}

// hooking reports whether a plugin or vault call is in progress.
func (l *Ledger) hooking() bool {
	return l.hooks.Load() > 0
}

func errReentrant(op string) error {
	return newError(ErrCodeInvalidState, "%s called while a plugin or vault hook is running", op).with("op", op)
}

// callHook runs caller-supplied code inside a transaction. A panic is
// turned into an error that aborts the transaction.
func (l *Ledger) callHook(fn func() error) (err error) {
	l.hooks.Add(1)
	defer func() {
		l.hooks.Add(-1)
		if r := recover(); r != nil {
			err = newError(ErrCodeInvariantViolation, "hook panicked: %v", r)
		}
	}()
	return fn()
}
