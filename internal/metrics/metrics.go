package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Engine exposes counters for the scheduling and ledger flows. A nil *Engine
// is valid and records nothing.
type Engine struct {
	bookings        *prometheus.CounterVec
	ledgerMutations *prometheus.CounterVec
	completions     prometheus.Counter
	notifierDropped prometheus.Counter
	notifierSubs    prometheus.Gauge
	txDuration      *prometheus.HistogramVec
}

func New(reg prometheus.Registerer) *Engine {
	m := &Engine{
		bookings: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "dental",
			Name:      "booking_total",
			Help:      "Appointment booking and edit attempts by result",
		}, []string{"operation", "result"}),
		ledgerMutations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "dental",
			Name:      "ledger_mutations_total",
			Help:      "Inventory ledger mutations by change type and result",
		}, []string{"change_type", "result"}),
		completions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "dental",
			Name:      "treatment_completions_total",
			Help:      "Treatments whose tooth line items all reached done",
		}),
		notifierDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "dental",
			Name:      "notifier_dropped_total",
			Help:      "Events dropped because a subscriber buffer was full",
		}),
		notifierSubs: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "dental",
			Name:      "notifier_subscribers",
			Help:      "Currently connected change observers",
		}),
		txDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "dental",
			Name:      "tx_duration_seconds",
			Help:      "Duration of compound store transactions",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.bookings, m.ledgerMutations, m.completions, m.notifierDropped, m.notifierSubs, m.txDuration)
	return m
}

func (m *Engine) ObserveBooking(operation, result string) {
	if m == nil {
		return
	}
	m.bookings.WithLabelValues(operation, result).Inc()
}

func (m *Engine) ObserveLedger(changeType, result string) {
	if m == nil {
		return
	}
	m.ledgerMutations.WithLabelValues(changeType, result).Inc()
}

func (m *Engine) ObserveCompletion() {
	if m == nil {
		return
	}
	m.completions.Inc()
}

func (m *Engine) ObserveDropped() {
	if m == nil {
		return
	}
	m.notifierDropped.Inc()
}

func (m *Engine) SetSubscribers(n int) {
	if m == nil {
		return
	}
	m.notifierSubs.Set(float64(n))
}

// ObserveTx records how long operation took, measured from start.
func (m *Engine) ObserveTx(operation string, start time.Time) {
	if m == nil {
		return
	}
	m.txDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
}
