// Package metrics exposes the service's Prometheus collectors. A nil
// *Metrics is valid and records nothing.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/AngelCh415/dealpipe/internal/models"
)

const namespace = "dealpipe"

type Metrics struct {
	Registry *prometheus.Registry

	fetches        *prometheus.CounterVec
	workflowRuns   *prometheus.CounterVec
	syncActions    *prometheus.CounterVec
	httpDuration   *prometheus.HistogramVec
	openAmount     prometheus.Gauge
	wonAmount      prometheus.Gauge
	winRate        prometheus.Gauge
	overdueAmount  prometheus.Gauge
	actionRequired prometheus.Gauge
	snapshotAt     prometheus.Gauge
}

func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		Registry: reg,
		fetches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "deal_fetches_total",
			Help: "Deal searches run against the CRM, by dashboard view and result.",
		}, []string{"view", "result"}),
		workflowRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "workflow_runs_total",
			Help: "Workflow action executions by action and outcome status.",
		}, []string{"action", "status"}),
		syncActions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "sync_actions_total",
			Help: "CRM writes made by the daily sync, by step and result.",
		}, []string{"step", "result"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Name: "http_request_duration_seconds",
			Help:    "HTTP request latency by route pattern.",
			Buckets: prometheus.DefBuckets,
		}, []string{"route", "method", "code"}),
		openAmount: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "pipeline_open_amount",
			Help: "Sum of open deal amounts at the last snapshot.",
		}),
		wonAmount: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "pipeline_won_amount",
			Help: "Sum of won deal amounts at the last snapshot.",
		}),
		winRate: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "win_rate_percent",
			Help: "Won / (won + lost) as a whole percent at the last snapshot.",
		}),
		overdueAmount: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "payments_overdue_amount",
			Help: "Sum of overdue expected payments at the last snapshot.",
		}),
		actionRequired: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "action_required_deals",
			Help: "Open deals flagged for sales follow-up at the last snapshot.",
		}),
		snapshotAt: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "snapshot_timestamp_seconds",
			Help: "Unix time of the last successful pipeline snapshot.",
		}),
	}
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.fetches, m.workflowRuns, m.syncActions, m.httpDuration,
		m.openAmount, m.wonAmount, m.winRate, m.overdueAmount, m.actionRequired, m.snapshotAt,
	)
	return m
}

func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})
}

func (m *Metrics) ObserveFetch(view string, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.fetches.WithLabelValues(view, result).Inc()
}

func (m *Metrics) ObserveWorkflow(action, status string) {
	if m == nil {
		return
	}
	m.workflowRuns.WithLabelValues(action, status).Inc()
}

// ObserveSync counts n actions of a sync step; result is "ok", "error" or "dry_run".
func (m *Metrics) ObserveSync(step, result string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.syncActions.WithLabelValues(step, result).Add(float64(n))
}

func (m *Metrics) ObserveHTTP(route, method string, code int, d time.Duration) {
	if m == nil {
		return
	}
	if route == "" {
		route = "unmatched"
	}
	m.httpDuration.WithLabelValues(route, method, strconv.Itoa(code)).Observe(d.Seconds())
}

// SetSnapshot publishes the headline numbers of a home report.
func (m *Metrics) SetSnapshot(r models.HomeReport, at time.Time) {
	if m == nil {
		return
	}
	m.openAmount.Set(r.Executive.TotalPipeline.InexactFloat64())
	m.wonAmount.Set(r.Executive.TotalWon.InexactFloat64())
	m.winRate.Set(float64(r.Executive.WinRate))
	m.overdueAmount.Set(r.CashFlow.TotalOverdue.InexactFloat64())
	m.actionRequired.Set(float64(r.Sales.NeedsAction))
	m.snapshotAt.Set(float64(at.Unix()))
}
