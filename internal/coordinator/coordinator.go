// Package coordinator runs the compound operations that must change several
// aggregates atomically: booking with its conflict check, and completing a
// treatment together with the medication it consumed.
//
// Every operation validates before opening a transaction, performs all writes
// on one transaction and publishes change events only after commit.
package coordinator

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"

	"github.com/hackgods/dental-clinic-engine/internal/appointment"
	"github.com/hackgods/dental-clinic-engine/internal/db"
	"github.com/hackgods/dental-clinic-engine/internal/inventory"
	"github.com/hackgods/dental-clinic-engine/internal/metrics"
	"github.com/hackgods/dental-clinic-engine/internal/notify"
	redisclient "github.com/hackgods/dental-clinic-engine/internal/redis"
	"github.com/hackgods/dental-clinic-engine/internal/treatment"
)

type Coordinator struct {
	pool         db.Pool
	appointments appointment.Repository
	machine      *treatment.Machine
	ledger       *inventory.Ledger
	notifier     notify.Notifier

	locker    redisclient.Locker
	scopes    []appointment.ScopeKind
	metrics   *metrics.Engine
	logger    zerolog.Logger
	txTimeout time.Duration
}

type Option func(*Coordinator)

// WithLocker adds a cross-instance lock around writes that run the booking
// guard.
func WithLocker(l redisclient.Locker) Option {
	return func(c *Coordinator) { c.locker = l }
}

// WithScopes sets the conflict policy. The default checks the patient only.
func WithScopes(kinds ...appointment.ScopeKind) Option {
	return func(c *Coordinator) { c.scopes = kinds }
}

func WithMetrics(m *metrics.Engine) Option {
	return func(c *Coordinator) { c.metrics = m }
}

func WithLogger(logger zerolog.Logger) Option {
	return func(c *Coordinator) { c.logger = logger }
}

func WithTxTimeout(d time.Duration) Option {
	return func(c *Coordinator) { c.txTimeout = d }
}

func New(
	pool db.Pool,
	appointments appointment.Repository,
	machine *treatment.Machine,
	ledger *inventory.Ledger,
	notifier notify.Notifier,
	opts ...Option,
) *Coordinator {
	c := &Coordinator{
		pool:         pool,
		appointments: appointments,
		machine:      machine,
		ledger:       ledger,
		notifier:     notifier,
		scopes:       []appointment.ScopeKind{appointment.ScopePatient},
		logger:       zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// inTx runs fn on a fresh transaction bounded by the configured timeout.
func (c *Coordinator) inTx(ctx context.Context, op string, fn func(ctx context.Context, tx pgx.Tx) error) error {
	if c.txTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.txTimeout)
		defer cancel()
	}
	start := time.Now()
	err := db.WithTx(ctx, c.pool, func(tx pgx.Tx) error {
		return fn(ctx, tx)
	})
	c.metrics.ObserveTx(op, start)
	return err
}
