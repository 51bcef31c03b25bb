// Package metrics instruments the agent runtime with Prometheus metrics: a
// small interface the core calls unconditionally, backed by either real
// counters/histograms or a no-op when the caller doesn't want
// instrumentation.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder is the metrics collaborator an Agent accepts as an option. The
// core depends only on this interface, never on Prometheus directly,
// keeping the dependency genuinely optional.
type Recorder interface {
	SetModuleCount(agent string, n int)
	IncSignalDispatch(agent, signalType string)
	ObserveDispatch(agent, signalType string, d time.Duration)
	IncModuleInit(agent, moduleType, outcome string)
	IncRunRestart(agent, moduleType, policy string)
	SetActiveModules(agent string, n int)
}

type nopRecorder struct{}

func (nopRecorder) SetModuleCount(string, int)                    {}
func (nopRecorder) IncSignalDispatch(string, string)              {}
func (nopRecorder) ObserveDispatch(string, string, time.Duration) {}
func (nopRecorder) IncModuleInit(string, string, string)          {}
func (nopRecorder) IncRunRestart(string, string, string)          {}
func (nopRecorder) SetActiveModules(string, int)                  {}

// Nop returns a Recorder whose methods do nothing, the default for
// Agents constructed without agent.WithMetricsRecorder.
func Nop() Recorder { return nopRecorder{} }

// PrometheusRecorder is the real Recorder, registering its collectors
// against reg (or the default registry if reg is nil).
type PrometheusRecorder struct {
	moduleCount     *prometheus.GaugeVec
	dispatchTotal   *prometheus.CounterVec
	dispatchLatency *prometheus.HistogramVec
	initTotal       *prometheus.CounterVec
	restartTotal    *prometheus.CounterVec
	activeModules   *prometheus.GaugeVec
}

// NewPrometheusRecorder constructs and registers a PrometheusRecorder. reg
// may be nil to use prometheus.DefaultRegisterer via promauto.
func NewPrometheusRecorder(reg prometheus.Registerer) *PrometheusRecorder {
	factory := promauto.With(reg)
	return &PrometheusRecorder{
		moduleCount: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "agentrt_agent_modules_total",
			Help: "Current number of modules owned by the agent.",
		}, []string{"agent"}),
		dispatchTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "agentrt_agent_signals_dispatched_total",
			Help: "Signals dispatched through an agent's Send family.",
		}, []string{"agent", "signal_type"}),
		dispatchLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "agentrt_signal_dispatch_duration_seconds",
			Help:    "Latency of a full signal chain walk.",
			Buckets: prometheus.DefBuckets,
		}, []string{"agent", "signal_type"}),
		initTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "agentrt_module_init_total",
			Help: "Module Initialize outcomes.",
		}, []string{"agent", "module", "outcome"}),
		restartTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "agentrt_module_run_restarts_total",
			Help: "Run-supervisor policy-driven restarts.",
		}, []string{"agent", "module", "policy"}),
		activeModules: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "agentrt_supervisor_active_modules",
			Help: "Modules currently running under Run.",
		}, []string{"agent"}),
	}
}

func (r *PrometheusRecorder) SetModuleCount(agent string, n int) {
	r.moduleCount.WithLabelValues(agent).Set(float64(n))
}

func (r *PrometheusRecorder) IncSignalDispatch(agent, signalType string) {
	r.dispatchTotal.WithLabelValues(agent, signalType).Inc()
}

func (r *PrometheusRecorder) ObserveDispatch(agent, signalType string, d time.Duration) {
	r.dispatchLatency.WithLabelValues(agent, signalType).Observe(d.Seconds())
}

func (r *PrometheusRecorder) IncModuleInit(agent, moduleType, outcome string) {
	r.initTotal.WithLabelValues(agent, moduleType, outcome).Inc()
}

func (r *PrometheusRecorder) IncRunRestart(agent, moduleType, policy string) {
	r.restartTotal.WithLabelValues(agent, moduleType, policy).Inc()
}

func (r *PrometheusRecorder) SetActiveModules(agent string, n int) {
	r.activeModules.WithLabelValues(agent).Set(float64(n))
}
