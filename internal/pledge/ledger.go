package pledge

import (
	"io"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
)

// DefaultCommitTime is the veto window of givers registered implicitly by
// Donate: three days.
const DefaultCommitTime = 259200

// Ledger is the pledge engine. All exported methods are safe for concurrent
// use; mutations are serialized.
//
// INVARIANTS:
//   - admins[0] and pledges[0] are sentinels and never handed out
//   - keys[i] is the interning key of pledges[i]; index is its inverse
//   - records are only appended; ids are never reused
type Ledger struct {
	mu sync.Mutex
	// hooks counts plugin and vault calls in progress. They run while mu
	// is held, so entry points fail fast instead of waiting on it.
	hooks atomic.Int32

	// Committed counters, readable without mu.
	pledgeCount atomic.Int64
	adminCount  atomic.Int64
	total       atomic.Uint64

	admins  []Admin
	pledges []Pledge
	keys    []string
	index   map[string]PledgeID

	plugins      map[Address]Plugin
	whitelist    map[string]struct{}
	useWhitelist bool

	owner             Address
	vault             Vault
	clock             Clock
	seq               sequence
	txIDs             TxIDGenerator
	committer         Committer
	listeners         []Listener
	logger            *slog.Logger
	metrics           *ledgerMetrics
	defaultCommitTime uint64
}

// Option configures a Ledger.
type Option func(*Ledger)

// WithOwner sets the address allowed to manage the plugin allow-list.
func WithOwner(addr Address) Option {
	return func(l *Ledger) {
		l.owner = addr
	}
}

// WithVault sets the payout vault used by Withdraw and trusted by
// ConfirmPayment and CancelPayment.
func WithVault(v Vault) Option {
	return func(l *Ledger) {
		l.vault = v
	}
}

// WithClock overrides the time source (default SystemClock).
func WithClock(c Clock) Option {
	return func(l *Ledger) {
		l.clock = c
	}
}

// WithTxIDGenerator overrides transaction id generation (default UUIDv7).
func WithTxIDGenerator(g TxIDGenerator) Option {
	return func(l *Ledger) {
		l.txIDs = g
	}
}

// WithCommitter persists every committed changeset.
func WithCommitter(c Committer) Option {
	return func(l *Ledger) {
		l.committer = c
	}
}

// WithListener registers a listener for committed events.
func WithListener(fn Listener) Option {
	return func(l *Ledger) {
		l.listeners = append(l.listeners, fn)
	}
}

// WithLogger sets the logger (default discards).
func WithLogger(logger *slog.Logger) Option {
	return func(l *Ledger) {
		l.logger = logger
	}
}

// WithMetrics registers ledger metrics with reg.
func WithMetrics(reg prometheus.Registerer) Option {
	return func(l *Ledger) {
		if reg != nil {
			l.metrics = newLedgerMetrics(reg)
		}
	}
}

// WithWhitelist enables the plugin allow-list seeded with the given code hashes.
func WithWhitelist(hashes ...string) Option {
	return func(l *Ledger) {
		l.useWhitelist = true
		for _, h := range hashes {
			l.whitelist[h] = struct{}{}
		}
	}
}

// WithDefaultCommitTime sets the commit time of givers created by Donate.
func WithDefaultCommitTime(seconds uint64) Option {
	return func(l *Ledger) {
		l.defaultCommitTime = seconds
	}
}

// New creates an empty Ledger.
func New(opts ...Option) *Ledger {
	l := &Ledger{
		admins:            []Admin{{}},
		pledges:           []Pledge{{}},
		keys:              []string{""},
		index:             make(map[string]PledgeID),
		plugins:           make(map[Address]Plugin),
		whitelist:         make(map[string]struct{}),
		clock:             SystemClock{},
		txIDs:             UUIDv7Generator{},
		logger:            slog.New(slog.NewTextHandler(io.Discard, nil)),
		defaultCommitTime: DefaultCommitTime,
	}

	for _, opt := range opts {
		opt(l)
	}

	return l
}

// adminAt reads an admin without locking. Callers hold l.mu.
func (l *Ledger) adminAt(id AdminID) (Admin, error) {
	if id == 0 || uint64(id) >= uint64(len(l.admins)) {
		return Admin{}, newError(ErrCodeNotFound, "admin %d does not exist", id).with("admin", id)
	}
	return l.admins[id], nil
}

// pledgeAt reads a pledge without locking. Callers hold l.mu.
func (l *Ledger) pledgeAt(id PledgeID) (Pledge, error) {
	if id == 0 || uint64(id) >= uint64(len(l.pledges)) {
		return Pledge{}, newError(ErrCodeNotFound, "pledge %d does not exist", id).with("pledge", id)
	}
	return l.pledges[id], nil
}

// pluginFor resolves the plugin of an admin; admins without one get AllowAll.
func (l *Ledger) pluginFor(a Admin) (Plugin, error) {
	if a.Plugin == "" {
		return AllowAll{}, nil
	}
	p, ok := l.plugins[a.Plugin]
	if !ok {
		return nil, newError(ErrCodeNotFound, "plugin %q of admin %d is not installed", a.Plugin, a.ID).
			with("admin", a.ID).with("plugin", a.Plugin)
	}
	return p, nil
}
