package monitor

import (
	"github.com/prometheus/client_golang/prometheus"
)

// BusinessMetrics 定义业务监控指标
type BusinessMetrics struct {
	GatedCallsTotal      *prometheus.CounterVec
	SkippedCallsTotal    *prometheus.CounterVec
	VerdictsTotal        *prometheus.CounterVec
	SupersededTotal      prometheus.Counter
	ForcedRejectsTotal   *prometheus.CounterVec
	PopupOpsTotal        *prometheus.CounterVec
	BypassChecksTotal    *prometheus.CounterVec
	SimulationDuration   *prometheus.HistogramVec
	SimulationResults    *prometheus.CounterVec
	ErrorReportsTotal    prometheus.Counter
	JanitorClearedTotal  prometheus.Counter
	ActiveRequestPresent prometheus.Gauge
}

// Business 全局业务指标. 未调用 Init 时指标可用但不会被导出.
var Business = newBusinessMetrics()

func newBusinessMetrics() *BusinessMetrics {
	return &BusinessMetrics{
		GatedCallsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "guard_gated_calls_total",
			Help: "Watched provider calls sent for a verdict",
		}, []string{"method"}),
		SkippedCallsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "guard_skipped_calls_total",
			Help: "Calls passed through by the local skip policy",
		}, []string{"reason"}),
		VerdictsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "guard_verdicts_total",
			Help: "Verdicts delivered to the page",
		}, []string{"verdict"}),
		SupersededTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "guard_superseded_total",
			Help: "Unfinished requests replaced by a newer one",
		}),
		ForcedRejectsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "guard_forced_rejects_total",
			Help: "Requests rejected without a user decision",
		}, []string{"reason"}),
		PopupOpsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "guard_popup_ops_total",
			Help: "Popup window operations",
		}, []string{"op"}),
		BypassChecksTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "guard_bypass_checks_total",
			Help: "Bypass checks by outcome",
		}, []string{"result"}),
		SimulationDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "guard_simulation_duration_seconds",
			Help:    "Simulation service latency",
			Buckets: []float64{0.1, 0.3, 0.5, 1.0, 2.0, 5.0, 10.0},
		}, []string{"payload"}),
		SimulationResults: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "guard_simulation_results_total",
			Help: "Simulation outcomes",
		}, []string{"result"}),
		ErrorReportsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "guard_error_reports_total",
			Help: "Error reports received from pages",
		}),
		JanitorClearedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "guard_janitor_cleared_total",
			Help: "Terminal records removed by the janitor",
		}),
		ActiveRequestPresent: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "guard_active_request",
			Help: "1 while a non-terminal request record exists",
		}),
	}
}

func (m *BusinessMetrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.GatedCallsTotal,
		m.SkippedCallsTotal,
		m.VerdictsTotal,
		m.SupersededTotal,
		m.ForcedRejectsTotal,
		m.PopupOpsTotal,
		m.BypassChecksTotal,
		m.SimulationDuration,
		m.SimulationResults,
		m.ErrorReportsTotal,
		m.JanitorClearedTotal,
		m.ActiveRequestPresent,
	}
}

// InitBusinessMetrics 注册业务指标
func InitBusinessMetrics() {
	prometheus.MustRegister(Business.collectors()...)
}
