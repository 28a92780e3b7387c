// Package metrics exposes Prometheus collectors for commits, history reads and the render cache.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/and161185/sitecfg/internal/diff"
	"github.com/and161185/sitecfg/internal/model"
)

const namespace = "sitecfg"

// Commit outcomes.
const (
	OutcomeWritten   = "written"
	OutcomeUnchanged = "unchanged"
	OutcomeError     = "error"
)

// Cache lookup results.
const (
	CacheHit   = "hit"
	CacheMiss  = "miss"
	CacheError = "error"
)

// Metrics groups the collectors. A nil *Metrics records nothing.
type Metrics struct {
	CommitsTotal    *prometheus.CounterVec
	CommitDuration  *prometheus.HistogramVec
	DiffOpsTotal    *prometheus.CounterVec
	HistoryDegraded *prometheus.CounterVec
	CacheRequests   *prometheus.CounterVec
}

// New registers the collectors with reg. Pass prometheus.NewRegistry() in tests.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		CommitsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "commits_total",
			Help:      "Document commits by persistence mode and outcome",
		}, []string{"mode", "outcome"}),
		CommitDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "commit_duration_seconds",
			Help:      "Commit latency including the store transaction",
			Buckets:   prometheus.DefBuckets,
		}, []string{"mode"}),
		DiffOpsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "diff_ops_total",
			Help:      "Change operations recorded in revisions, by op",
		}, []string{"op"}),
		HistoryDegraded: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "history_degraded_total",
			Help:      "History reads answered empty because the revision store was unavailable",
		}, []string{"operation"}),
		CacheRequests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_requests_total",
			Help:      "Render cache lookups by result",
		}, []string{"result"}),
	}
}

// ObserveCommit records one commit attempt.
func (m *Metrics) ObserveCommit(mode model.CommitMode, outcome string, took time.Duration, ops []diff.ChangeOp) {
	if m == nil {
		return
	}
	m.CommitsTotal.WithLabelValues(string(mode), outcome).Inc()
	m.CommitDuration.WithLabelValues(string(mode)).Observe(took.Seconds())
	st := diff.Summarize(ops)
	m.DiffOpsTotal.WithLabelValues(string(diff.OpAdd)).Add(float64(st.Added))
	m.DiffOpsTotal.WithLabelValues(string(diff.OpRemove)).Add(float64(st.Removed))
	m.DiffOpsTotal.WithLabelValues(string(diff.OpReplace)).Add(float64(st.Replaced))
}

// HistoryDegradedRead records a history read answered empty.
func (m *Metrics) HistoryDegradedRead(operation string) {
	if m == nil {
		return
	}
	m.HistoryDegraded.WithLabelValues(operation).Inc()
}

// CacheLookup records a render cache lookup.
func (m *Metrics) CacheLookup(result string) {
	if m == nil {
		return
	}
	m.CacheRequests.WithLabelValues(result).Inc()
}
