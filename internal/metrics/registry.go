package metrics

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// processRegistry holds the mapx collectors plus Go runtime and process
// metrics. It is separate from prometheus.DefaultRegisterer so importing
// packages cannot add series to /metrics.
var processRegistry = sync.OnceValues(func() (*prometheus.Registry, *Metrics) {
	reg, m := NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg, m
})

// GetDefault returns the process-wide Metrics.
func GetDefault() *Metrics {
	_, m := processRegistry()
	return m
}

// NewRegistry returns an isolated registry with the mapx collectors.
func NewRegistry() (*prometheus.Registry, *Metrics) {
	reg := prometheus.NewRegistry()
	return reg, NewMetrics(reg)
}

// Handler serves the process registry.
func Handler() http.Handler {
	reg, _ := processRegistry()
	return HandlerFor(reg)
}

// HandlerFor serves reg. Collection errors are reported in the response
// instead of failing the scrape.
func HandlerFor(reg prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{ErrorHandling: promhttp.ContinueOnError})
}
