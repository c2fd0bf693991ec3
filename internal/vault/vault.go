package vault

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"slices"
	"sync"

	"github.com/roach88/pledgeflow/internal/pledge"
)

// Status is the settlement state of a payment.
type Status string

const (
	StatusAuthorized Status = "authorized"
	StatusSettling   Status = "settling"
	StatusConfirmed  Status = "confirmed"
	StatusCanceled   Status = "canceled"
	StatusVoided     Status = "voided"
)

// Payment is one authorization.
type Payment struct {
	ID     uint64
	Pledge pledge.PledgeID
	Dest   pledge.Address
	Amount uint64
	Status Status
}

// Recorder persists payments. RecordPayment assigns the id.
type Recorder interface {
	RecordPayment(ctx context.Context, p Payment) (uint64, error)
	UpdatePaymentStatus(ctx context.Context, id uint64, status Status) error
	Payments(ctx context.Context) ([]Payment, error)
}

// Ledger is the part of the pledge ledger the vault settles against.
type Ledger interface {
	ConfirmPayment(ctx context.Context, caller pledge.Address, id pledge.PledgeID, amount uint64) error
	CancelPayment(ctx context.Context, caller pledge.Address, id pledge.PledgeID, amount uint64) error
}

var (
	// ErrUnknownPayment is returned for payment ids the vault never issued.
	ErrUnknownPayment = errors.New("unknown payment")

	// ErrNotPending is returned when settling a payment that is not authorized.
	ErrNotPending = errors.New("payment is not pending")

	// ErrDetached is returned when settling before Attach.
	ErrDetached = errors.New("vault is not attached to a ledger")
)

// Vault records payment authorizations and settles them.
//
// Thread-safety: all methods are safe for concurrent use. The mutex is never
// held while calling the ledger, which itself calls AuthorizePayment with
// its own lock held.
type Vault struct {
	mu       sync.Mutex
	addr     pledge.Address
	recorder Recorder
	ledger   Ledger
	payments map[uint64]Payment
	next     uint64
	logger   *slog.Logger
}

// Option configures a Vault.
type Option func(*Vault)

// WithRecorder writes payments through to r.
func WithRecorder(r Recorder) Option {
	return func(v *Vault) {
		v.recorder = r
	}
}

// WithLogger sets the logger (default discards).
func WithLogger(logger *slog.Logger) Option {
	return func(v *Vault) {
		v.logger = logger
	}
}

// New creates a vault that acts as addr.
func New(addr pledge.Address, opts ...Option) *Vault {
	v := &Vault{
		addr:     addr,
		payments: make(map[uint64]Payment),
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Attach sets the ledger payments are settled against.
func (v *Vault) Attach(l Ledger) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.ledger = l
}

// Load replaces the in-memory payments with the recorder's.
func (v *Vault) Load(ctx context.Context) error {
	if v.recorder == nil {
		return nil
	}
	payments, err := v.recorder.Payments(ctx)
	if err != nil {
		return fmt.Errorf("load payments: %w", err)
	}

	v.mu.Lock()
	defer v.mu.Unlock()
	v.payments = make(map[uint64]Payment, len(payments))
	v.next = 0
	for _, p := range payments {
		v.payments[p.ID] = p
		v.next = max(v.next, p.ID)
	}
	return nil
}

// Address is the caller address the vault settles with.
func (v *Vault) Address() pledge.Address {
	return v.addr
}

// AuthorizePayment records a pending payment of amount to dest.
func (v *Vault) AuthorizePayment(ctx context.Context, ref pledge.PledgeID, dest pledge.Address, amount uint64) (uint64, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	p := Payment{Pledge: ref, Dest: dest, Amount: amount, Status: StatusAuthorized}
	if v.recorder != nil {
		id, err := v.recorder.RecordPayment(ctx, p)
		if err != nil {
			return 0, fmt.Errorf("record payment: %w", err)
		}
		p.ID = id
		v.next = max(v.next, id)
	} else {
		v.next++
		p.ID = v.next
	}
	v.payments[p.ID] = p

	v.logger.Debug("payment authorized", "payment_id", p.ID, "pledge", ref, "dest", dest, "amount", amount)
	return p.ID, nil
}

// VoidPayment retracts an authorization whose transaction rolled back.
func (v *Vault) VoidPayment(ctx context.Context, id uint64) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	p, ok := v.payments[id]
	if !ok {
		return fmt.Errorf("void payment %d: %w", id, ErrUnknownPayment)
	}
	if err := v.setStatus(ctx, &p, StatusVoided); err != nil {
		return fmt.Errorf("void payment %d: %w", id, err)
	}
	return nil
}

// Confirm settles a payment: its value becomes Paid in the ledger.
func (v *Vault) Confirm(ctx context.Context, id uint64) error {
	return v.settle(ctx, id, StatusConfirmed)
}

// Cancel abandons a payment: its value returns to Pledged in the ledger.
func (v *Vault) Cancel(ctx context.Context, id uint64) error {
	return v.settle(ctx, id, StatusCanceled)
}

func (v *Vault) settle(ctx context.Context, id uint64, final Status) error {
	v.mu.Lock()
	l := v.ledger
	p, ok := v.payments[id]
	switch {
	case l == nil:
		v.mu.Unlock()
		return ErrDetached
	case !ok:
		v.mu.Unlock()
		return fmt.Errorf("payment %d: %w", id, ErrUnknownPayment)
	case p.Status != StatusAuthorized:
		v.mu.Unlock()
		return fmt.Errorf("payment %d is %s: %w", id, p.Status, ErrNotPending)
	}
	// Settling is in-memory only; a crash leaves the recorded payment authorized.
	p.Status = StatusSettling
	v.payments[id] = p
	v.mu.Unlock()

	var err error
	if final == StatusConfirmed {
		err = l.ConfirmPayment(ctx, v.addr, p.Pledge, p.Amount)
	} else {
		err = l.CancelPayment(ctx, v.addr, p.Pledge, p.Amount)
	}

	v.mu.Lock()
	defer v.mu.Unlock()
	if err != nil {
		p.Status = StatusAuthorized
		v.payments[id] = p
		return fmt.Errorf("settle payment %d: %w", id, err)
	}
	if err := v.setStatus(ctx, &p, final); err != nil {
		return fmt.Errorf("settle payment %d: %w", id, err)
	}
	v.logger.Info("payment settled", "payment_id", id, "status", final, "pledge", p.Pledge, "amount", p.Amount)
	return nil
}

// setStatus records and applies a status change. Callers hold v.mu.
func (v *Vault) setStatus(ctx context.Context, p *Payment, status Status) error {
	if v.recorder != nil {
		if err := v.recorder.UpdatePaymentStatus(ctx, p.ID, status); err != nil {
			return err
		}
	}
	p.Status = status
	v.payments[p.ID] = *p
	return nil
}

// Payment returns one payment.
func (v *Vault) Payment(id uint64) (Payment, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	p, ok := v.payments[id]
	if !ok {
		return Payment{}, fmt.Errorf("payment %d: %w", id, ErrUnknownPayment)
	}
	return p, nil
}

// Payments returns every payment ordered by id.
func (v *Vault) Payments() []Payment {
	v.mu.Lock()
	defer v.mu.Unlock()
	out := make([]Payment, 0, len(v.payments))
	for _, id := range slices.Sorted(maps.Keys(v.payments)) {
		out = append(out, v.payments[id])
	}
	return out
}

// Pending returns the authorized payments ordered by id.
func (v *Vault) Pending() []Payment {
	var out []Payment
	for _, p := range v.Payments() {
		if p.Status == StatusAuthorized {
			out = append(out, p)
		}
	}
	return out
}
