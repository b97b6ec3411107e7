package metrics

import (
	"net/http"
	"sync"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
	promcollect "github.com/prometheus/client_golang/prometheus/collectors"
	promhttp "github.com/prometheus/client_golang/prometheus/promhttp"
)

// PrometheusRecorder implements Recorder using Prometheus metrics.
type PrometheusRecorder struct {
	once            sync.Once
	runtimeOnce     sync.Once
	reg             *prom.Registry
	taskDuration    *prom.HistogramVec
	taskResults     *prom.CounterVec
	watchTriggers   *prom.CounterVec
	reloadClients   prom.Gauge
	reloadBroadcast *prom.CounterVec
}

// NewPrometheusRecorder constructs and registers Prometheus metrics (idempotent).
func NewPrometheusRecorder(reg *prom.Registry) *PrometheusRecorder {
	if reg == nil {
		reg = prom.NewRegistry()
	}
	pr := &PrometheusRecorder{reg: reg}
	pr.once.Do(func() {
		pr.taskDuration = prom.NewHistogramVec(prom.HistogramOpts{
			Namespace: "assetpipe",
			Name:      "task_duration_seconds",
			Help:      "Duration of task invocations",
			Buckets:   prom.DefBuckets,
		}, []string{"task"})
		pr.taskResults = prom.NewCounterVec(prom.CounterOpts{
			Namespace: "assetpipe",
			Name:      "task_results_total",
			Help:      "Task invocations by outcome",
		}, []string{"task", "outcome"})
		pr.watchTriggers = prom.NewCounterVec(prom.CounterOpts{
			Namespace: "assetpipe",
			Name:      "watch_triggers_total",
			Help:      "Task runs started by source file changes",
		}, []string{"task"})
		pr.reloadClients = prom.NewGauge(prom.GaugeOpts{
			Namespace: "assetpipe",
			Name:      "livereload_clients",
			Help:      "Connected live-reload browsers",
		})
		pr.reloadBroadcast = prom.NewCounterVec(prom.CounterOpts{
			Namespace: "assetpipe",
			Name:      "livereload_broadcasts_total",
			Help:      "Live-reload messages sent to browsers by kind",
		}, []string{"kind"})
		reg.MustRegister(pr.taskDuration, pr.taskResults, pr.watchTriggers, pr.reloadClients, pr.reloadBroadcast)
	})
	return pr
}

// RegisterRuntimeCollectors adds the Go runtime and process collectors to the
// registry (once).
func (p *PrometheusRecorder) RegisterRuntimeCollectors() {
	p.runtimeOnce.Do(func() {
		p.reg.MustRegister(promcollect.NewGoCollector(), promcollect.NewProcessCollector(promcollect.ProcessCollectorOpts{}))
	})
}

// Handler serves the recorder's registry in the Prometheus exposition format.
func (p *PrometheusRecorder) Handler() http.Handler {
	return promhttp.HandlerFor(p.reg, promhttp.HandlerOpts{EnableOpenMetrics: true})
}

func (p *PrometheusRecorder) ObserveTaskDuration(task string, d time.Duration) {
	if p == nil || p.taskDuration == nil {
		return
	}
	p.taskDuration.WithLabelValues(task).Observe(d.Seconds())
}

func (p *PrometheusRecorder) IncTaskResult(task, outcome string) {
	if p == nil || p.taskResults == nil {
		return
	}
	p.taskResults.WithLabelValues(task, outcome).Inc()
}

func (p *PrometheusRecorder) IncWatchTrigger(task string) {
	if p == nil || p.watchTriggers == nil {
		return
	}
	p.watchTriggers.WithLabelValues(task).Inc()
}

func (p *PrometheusRecorder) SetLiveReloadClients(n int) {
	if p == nil || p.reloadClients == nil {
		return
	}
	p.reloadClients.Set(float64(n))
}

func (p *PrometheusRecorder) IncLiveReloadBroadcast(kind string) {
	if p == nil || p.reloadBroadcast == nil {
		return
	}
	p.reloadBroadcast.WithLabelValues(kind).Inc()
}
