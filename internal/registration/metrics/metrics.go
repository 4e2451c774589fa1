package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics covers admissions, holds, batches and invite claims. A nil *Metrics is a no-op.
type Metrics struct {
	Admissions        *prometheus.CounterVec
	Finalized         *prometheus.CounterVec
	OperationDuration *prometheus.HistogramVec
	HoldsExpired      prometheus.Counter
	BatchRows         *prometheus.CounterVec
	InviteClaims      *prometheus.CounterVec
}

// New registers the collectors on the default registry.
func New() *Metrics {
	return NewWith(prometheus.DefaultRegisterer)
}

// NewWith registers the collectors on reg. Tests pass a fresh registry.
func NewWith(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Admissions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "raceday_admissions_total",
			Help: "Admission attempts by flow (single, batch, finalize) and outcome",
		}, []string{"flow", "outcome"}),
		Finalized: f.NewCounterVec(prometheus.CounterOpts{
			Name: "raceday_registrations_finalized_total",
			Help: "Registrations finalized, by resulting status",
		}, []string{"status"}),
		OperationDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "raceday_operation_duration_seconds",
			Help:    "Latency of registration engine operations",
			Buckets: prometheus.DefBuckets,
		}, []string{"operation"}),
		HoldsExpired: f.NewCounter(prometheus.CounterOpts{
			Name: "raceday_holds_expired_total",
			Help: "Lapsed holds rewritten to cancelled by the sweeper",
		}),
		BatchRows: f.NewCounterVec(prometheus.CounterOpts{
			Name: "raceday_batch_rows_total",
			Help: "Group batch rows by phase outcome (valid, invalid, admitted)",
		}, []string{"outcome"}),
		InviteClaims: f.NewCounterVec(prometheus.CounterOpts{
			Name: "raceday_invite_claims_total",
			Help: "Invite claim attempts by outcome code",
		}, []string{"outcome"}),
	}
}

func (m *Metrics) IncrementAdmission(flow, outcome string) {
	if m == nil {
		return
	}
	m.Admissions.WithLabelValues(flow, outcome).Inc()
}

func (m *Metrics) IncrementFinalized(status string) {
	if m == nil {
		return
	}
	m.Finalized.WithLabelValues(status).Inc()
}

// ObserveOperation records the time elapsed since start.
func (m *Metrics) ObserveOperation(operation string, start time.Time) {
	if m == nil {
		return
	}
	m.OperationDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
}

func (m *Metrics) AddHoldsExpired(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.HoldsExpired.Add(float64(n))
}

func (m *Metrics) AddBatchRows(outcome string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.BatchRows.WithLabelValues(outcome).Add(float64(n))
}

func (m *Metrics) IncrementInviteClaim(outcome string) {
	if m == nil {
		return
	}
	m.InviteClaims.WithLabelValues(outcome).Inc()
}
