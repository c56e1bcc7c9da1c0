package worker

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type metrics struct {
	registry                *prometheus.Registry
	jobsTotal               *prometheus.CounterVec
	jobDuration             *prometheus.HistogramVec
	activeJobs              prometheus.Gauge
	questionsExtractedTotal prometheus.Counter
	retriesTotal            prometheus.Counter
}

func newMetrics() *metrics {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	m := &metrics{
		registry: registry,
		jobsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "interviewflow_worker_jobs_total",
			Help: "Total processed interview deliveries by outcome.",
		}, []string{"outcome"}),
		jobDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "interviewflow_worker_job_duration_seconds",
			Help:    "Wall-clock duration of each interview delivery.",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1200, 1800},
		}, []string{"outcome"}),
		activeJobs: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "interviewflow_worker_active_jobs",
			Help: "Current number of interviews being processed.",
		}),
		questionsExtractedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "interviewflow_worker_questions_extracted_total",
			Help: "Total question records produced by completed interviews.",
		}),
		retriesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "interviewflow_worker_step_retries_total",
			Help: "Total transient-fault retries across all workflow steps.",
		}),
	}

	registry.MustRegister(
		m.jobsTotal,
		m.jobDuration,
		m.activeJobs,
		m.questionsExtractedTotal,
		m.retriesTotal,
	)
	return m
}

func (m *metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
