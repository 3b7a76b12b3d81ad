package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Task metrics
	TasksTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "chorus_tasks_total",
			Help: "Total number of tasks by status",
		},
		[]string{"status"},
	)

	TasksSubmitted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chorus_tasks_submitted_total",
			Help: "Total number of submitted tasks by type",
		},
		[]string{"task_type"},
	)

	TasksDistributed = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "chorus_tasks_distributed_total",
			Help: "Total number of tasks claimed by the distributor",
		},
	)

	TasksFailed = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "chorus_tasks_failed_total",
			Help: "Total number of failed tasks",
		},
	)

	TasksRequeued = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "chorus_tasks_requeued_total",
			Help: "Total number of tasks returned to pending by the janitor",
		},
	)

	// Worker metrics
	WorkersTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "chorus_workers_total",
			Help: "Total number of known workers by availability",
		},
		[]string{"available"},
	)

	// Consensus metrics
	ConsensusRecords = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "chorus_consensus_records_total",
			Help: "Number of workers with a published consensus record",
		},
	)

	ConsensusReportsIngested = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "chorus_consensus_reports_ingested_total",
			Help: "Total number of auditor worker-status reports ingested",
		},
	)

	// Distribution metrics
	DistributionDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "chorus_distribution_cycle_seconds",
			Help:    "Time taken by one distribution cycle in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	DistributionCyclesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "chorus_distribution_cycles_total",
			Help: "Total number of distribution cycles",
		},
	)

	// Event metrics
	EventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chorus_events_total",
			Help: "Total number of coordinator events published by type",
		},
		[]string{"type"},
	)

	// API metrics
	APIRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chorus_api_requests_total",
			Help: "Total number of API requests by route and status",
		},
		[]string{"route", "status"},
	)

	APIRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "chorus_api_request_duration_seconds",
			Help:    "API request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"route"},
	)
)

func init() {
	// Register all metrics
	prometheus.MustRegister(TasksTotal)
	prometheus.MustRegister(TasksSubmitted)
	prometheus.MustRegister(TasksDistributed)
	prometheus.MustRegister(TasksFailed)
	prometheus.MustRegister(TasksRequeued)
	prometheus.MustRegister(WorkersTotal)
	prometheus.MustRegister(ConsensusRecords)
	prometheus.MustRegister(ConsensusReportsIngested)
	prometheus.MustRegister(DistributionDuration)
	prometheus.MustRegister(DistributionCyclesTotal)
	prometheus.MustRegister(EventsTotal)
	prometheus.MustRegister(APIRequestsTotal)
	prometheus.MustRegister(APIRequestDuration)
}

// Handler returns the Prometheus HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}

// Timer measures a duration for histogram observation
type Timer struct {
	start time.Time
}

// NewTimer starts a new timer
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// ObserveDuration records the elapsed time into the given histogram
func (t *Timer) ObserveDuration(h prometheus.Histogram) {
	h.Observe(time.Since(t.start).Seconds())
}
