package handlers

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"hookrelay/internal/workers"
)

type PoolStatser interface {
	Stats() workers.PoolStats
}

// MetricsHandler exposes worker pool state through a private Prometheus registry.
type MetricsHandler struct {
	registry *prometheus.Registry
	handler  http.Handler
}

func NewMetricsHandler(pool PoolStatser) *MetricsHandler {
	reg := prometheus.NewRegistry()

	gauge := func(name, help string, value func(workers.PoolStats) float64) prometheus.Collector {
		return prometheus.NewGaugeFunc(prometheus.GaugeOpts{Name: name, Help: help}, func() float64 {
			return value(pool.Stats())
		})
	}
	counter := func(name, help string, value func(workers.PoolStats) float64) prometheus.Collector {
		return prometheus.NewCounterFunc(prometheus.CounterOpts{Name: name, Help: help}, func() float64 {
			return value(pool.Stats())
		})
	}

	reg.MustRegister(
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{Name: "hookrelay_up", Help: "Is the server up"}, func() float64 { return 1 }),
		gauge("hookrelay_worker_pool_size", "Number of background workers",
			func(s workers.PoolStats) float64 { return float64(s.Size) }),
		gauge("hookrelay_worker_queue_depth", "Tasks waiting in the background queue",
			func(s workers.PoolStats) float64 { return float64(s.Queued) }),
		gauge("hookrelay_worker_queue_capacity", "Capacity of the background queue",
			func(s workers.PoolStats) float64 { return float64(s.Capacity) }),
		counter("hookrelay_worker_tasks_submitted_total", "Tasks accepted by the background queue",
			func(s workers.PoolStats) float64 { return float64(s.Submitted) }),
		counter("hookrelay_worker_tasks_completed_total", "Tasks finished by workers",
			func(s workers.PoolStats) float64 { return float64(s.Completed) }),
		counter("hookrelay_worker_tasks_dropped_total", "Tasks rejected because the queue was full",
			func(s workers.PoolStats) float64 { return float64(s.Dropped) }),
		counter("hookrelay_worker_tasks_panicked_total", "Tasks that panicked",
			func(s workers.PoolStats) float64 { return float64(s.Panicked) }),
	)

	return &MetricsHandler{
		registry: reg,
		handler:  promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
	}
}

func (h *MetricsHandler) Export(w http.ResponseWriter, r *http.Request) {
	h.handler.ServeHTTP(w, r)
}
