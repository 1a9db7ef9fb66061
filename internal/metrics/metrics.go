// Package metrics exposes searchgate's Prometheus collectors.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/Aman-CERP/searchgate/internal/errors"
	"github.com/Aman-CERP/searchgate/internal/ingest"
)

const namespace = "searchgate"

// Collectors holds every searchgate metric. It implements the observer
// interfaces of the resource, ingest and query packages.
type Collectors struct {
	httpRequestDuration *prometheus.HistogramVec
	httpRequestsTotal   *prometheus.CounterVec

	writeItemsTotal    prometheus.Counter
	indexOutcomesTotal *prometheus.CounterVec
	documentsTotal     *prometheus.CounterVec
	lockRetriesTotal   *prometheus.CounterVec
	staleLocksTotal    *prometheus.CounterVec
	queryDuration      *prometheus.HistogramVec
}

// New creates the collectors and registers them with reg.
// A nil reg leaves them unregistered.
func New(reg prometheus.Registerer) *Collectors {
	c := &Collectors{
		httpRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration in seconds",
				Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
			},
			[]string{"method", "path", "status"},
		),
		httpRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		writeItemsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "write_items_total",
				Help:      "Total number of write batch items applied",
			},
		),
		indexOutcomesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "index_outcomes_total",
				Help:      "Per-index batch outcomes",
			},
			[]string{"status", "stage"},
		),
		documentsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "documents_total",
				Help:      "Documents submitted to index writers",
			},
			[]string{"op"}, // "add" / "delete" / "malformed"
		),
		lockRetriesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "lock_retries_total",
				Help:      "Writer acquisition retries caused by lock contention",
			},
			[]string{"index"},
		),
		staleLocksTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "stale_locks_reclaimed_total",
				Help:      "Stale lock markers removed",
			},
			[]string{"index"},
		),
		queryDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "query_duration_seconds",
				Help:      "Query execution duration in seconds",
				Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
			},
			[]string{"code"},
		),
	}
	if reg != nil {
		reg.MustRegister(
			c.httpRequestDuration,
			c.httpRequestsTotal,
			c.writeItemsTotal,
			c.indexOutcomesTotal,
			c.documentsTotal,
			c.lockRetriesTotal,
			c.staleLocksTotal,
			c.queryDuration,
		)
	}
	return c
}

// LockRetried counts one acquisition retry.
func (c *Collectors) LockRetried(index string) {
	c.lockRetriesTotal.WithLabelValues(index).Inc()
}

// StaleLockReclaimed counts one removed stale marker.
func (c *Collectors) StaleLockReclaimed(index string) {
	c.staleLocksTotal.WithLabelValues(index).Inc()
}

// BatchApplied records a batch report.
func (c *Collectors) BatchApplied(r ingest.Report) {
	c.writeItemsTotal.Add(float64(r.Items))
	for _, o := range r.Indexes {
		c.indexOutcomesTotal.WithLabelValues(string(o.Status), string(o.Stage)).Inc()
		c.documentsTotal.WithLabelValues("add").Add(float64(o.Added))
		c.documentsTotal.WithLabelValues("delete").Add(float64(o.Deleted))
		c.documentsTotal.WithLabelValues("malformed").Add(float64(o.Malformed))
	}
}

// QueryExecuted records one query. The label is the error code, or "ok".
func (c *Collectors) QueryExecuted(_ string, elapsed time.Duration, err error) {
	code := "ok"
	if err != nil {
		code = errors.GetCode(err)
		if code == "" {
			code = "unknown"
		}
	}
	c.queryDuration.WithLabelValues(code).Observe(elapsed.Seconds())
}
