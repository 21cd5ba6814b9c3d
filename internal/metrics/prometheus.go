//go:build !noprom

package metrics

import (
	"fmt"
	"net/http"

	prom "github.com/prometheus/client_golang/prometheus"
	promhttp "github.com/prometheus/client_golang/prometheus/promhttp"
)

type promRecorder struct {
	storeTotal    *prom.CounterVec
	storeSeconds  *prom.HistogramVec
	toolTotal     *prom.CounterVec
	toolSeconds   *prom.HistogramVec
	migratedTotal prom.Counter
	fallbackTotal *prom.CounterVec
}

func (p *promRecorder) IncStoreOpTotal(op string, success bool) {
	p.storeTotal.WithLabelValues(op, fmt.Sprintf("%t", success)).Inc()
}

func (p *promRecorder) ObserveStoreOpSeconds(op string, success bool, seconds float64) {
	p.storeSeconds.WithLabelValues(op, fmt.Sprintf("%t", success)).Observe(seconds)
}

func (p *promRecorder) IncToolTotal(tool string, success bool) {
	p.toolTotal.WithLabelValues(tool, fmt.Sprintf("%t", success)).Inc()
}

func (p *promRecorder) ObserveToolSeconds(tool string, success bool, seconds float64) {
	p.toolSeconds.WithLabelValues(tool, fmt.Sprintf("%t", success)).Observe(seconds)
}

func (p *promRecorder) AddMigratedEntities(count int) {
	p.migratedTotal.Add(float64(count))
}

func (p *promRecorder) IncSearchFallback(reason string) {
	p.fallbackTotal.WithLabelValues(reason).Inc()
}

func enablePrometheus(addr string) error {
	registry := prom.NewRegistry()
	p := &promRecorder{
		storeTotal: prom.NewCounterVec(prom.CounterOpts{
			Name: "store_ops_total",
			Help: "Total number of graph store operations",
		}, []string{"op", "success"}),
		storeSeconds: prom.NewHistogramVec(prom.HistogramOpts{
			Name:    "store_op_seconds",
			Help:    "Graph store operation duration in seconds",
			Buckets: prom.DefBuckets,
		}, []string{"op", "success"}),
		toolTotal: prom.NewCounterVec(prom.CounterOpts{
			Name: "tool_calls_total",
			Help: "Total number of tool handler calls",
		}, []string{"tool", "success"}),
		toolSeconds: prom.NewHistogramVec(prom.HistogramOpts{
			Name:    "tool_call_seconds",
			Help:    "Tool handler duration in seconds",
			Buckets: prom.DefBuckets,
		}, []string{"tool", "success"}),
		migratedTotal: prom.NewCounter(prom.CounterOpts{
			Name: "migrated_entities_total",
			Help: "Entities backfilled with embeddings by the migration worker",
		}),
		fallbackTotal: prom.NewCounterVec(prom.CounterOpts{
			Name: "search_fallbacks_total",
			Help: "Vector searches degraded to fulltext, by reason",
		}, []string{"reason"}),
	}

	registry.MustRegister(p.storeTotal, p.storeSeconds, p.toolTotal, p.toolSeconds, p.migratedTotal, p.fallbackTotal)
	SetRecorder(p)

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	go func() { _ = http.ListenAndServe(addr, mux) }()
	return nil
}
