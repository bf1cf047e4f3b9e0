package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics records ledger activity. A nil *Metrics is valid and records nothing.
type Metrics struct {
	transfersTotal      *prometheus.CounterVec
	transferDuration    prometheus.Histogram
	transferredMinor    prometheus.Counter
	depositsInitiated   *prometheus.CounterVec
	depositConfirmTotal *prometheus.CounterVec
	creditedMinor       prometheus.Counter
}

func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		transfersTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "wallet_ledger",
				Subsystem: "transfer",
				Name:      "requests_total",
				Help:      "Total transfer attempts partitioned by result.",
			},
			[]string{"result"},
		),
		transferDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: "wallet_ledger",
				Subsystem: "transfer",
				Name:      "duration_seconds",
				Help:      "Time spent inside the locked transfer unit.",
				Buckets:   prometheus.DefBuckets,
			},
		),
		transferredMinor: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: "wallet_ledger",
				Subsystem: "transfer",
				Name:      "amount_minor_total",
				Help:      "Sum of successfully transferred minor units.",
			},
		),
		depositsInitiated: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "wallet_ledger",
				Subsystem: "deposit",
				Name:      "initiated_total",
				Help:      "Deposit initiations partitioned by result.",
			},
			[]string{"result"},
		),
		depositConfirmTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "wallet_ledger",
				Subsystem: "deposit",
				Name:      "confirmations_total",
				Help:      "Gateway confirmation events partitioned by outcome.",
			},
			[]string{"outcome"},
		),
		creditedMinor: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: "wallet_ledger",
				Subsystem: "deposit",
				Name:      "credited_minor_total",
				Help:      "Sum of minor units credited by confirmed deposits.",
			},
		),
	}
}

func (m *Metrics) ObserveTransfer(result string, amount int64, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.transfersTotal.WithLabelValues(result).Inc()
	m.transferDuration.Observe(elapsed.Seconds())
	if result == "success" {
		m.transferredMinor.Add(float64(amount))
	}
}

func (m *Metrics) ObserveDepositInitiated(result string) {
	if m == nil {
		return
	}
	m.depositsInitiated.WithLabelValues(result).Inc()
}

func (m *Metrics) ObserveDepositConfirmation(outcome string, credited int64) {
	if m == nil {
		return
	}
	m.depositConfirmTotal.WithLabelValues(outcome).Inc()
	if credited > 0 {
		m.creditedMinor.Add(float64(credited))
	}
}
