package metrics

import (
	"fmt"
	"net/http"

	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// promRecorder is a Recorder backed by github.com/prometheus/client_golang,
// the same library and MustRegister/WithLabelValues idiom as
// spences10-mcp-memory-libsql/internal/metrics/prometheus.go.
type promRecorder struct {
	toolTotal     *prom.CounterVec
	toolSeconds   *prom.HistogramVec
	breakerTrans  *prom.CounterVec
	bridgeMsgs    *prom.CounterVec
}

func (p *promRecorder) IncToolTotal(tool, outcome string) {
	p.toolTotal.WithLabelValues(tool, outcome).Inc()
}

func (p *promRecorder) ObserveToolSeconds(tool, outcome string, seconds float64) {
	p.toolSeconds.WithLabelValues(tool, outcome).Observe(seconds)
}

func (p *promRecorder) IncBreakerTransition(from, to string) {
	p.breakerTrans.WithLabelValues(from, to).Inc()
}

func (p *promRecorder) IncBridgeMessage(direction, msgType string) {
	p.bridgeMsgs.WithLabelValues(direction, msgType).Inc()
}

// StartPrometheus installs a Prometheus-backed Recorder and serves
// /metrics and /healthz on addr. A failure to open the listener is returned
// to the caller, since cmd/gitnexus decides whether a failed metrics
// listener should be fatal; errors from serving after that are discarded.
func StartPrometheus(addr string) error {
	registry := prom.NewRegistry()
	p := &promRecorder{
		toolTotal: prom.NewCounterVec(prom.CounterOpts{
			Name: "gitnexus_tool_calls_total",
			Help: "Total number of MCP tool calls, by tool and outcome.",
		}, []string{"tool", "outcome"}),
		toolSeconds: prom.NewHistogramVec(prom.HistogramOpts{
			Name:    "gitnexus_tool_call_seconds",
			Help:    "MCP tool call duration in seconds, by tool and outcome.",
			Buckets: prom.DefBuckets,
		}, []string{"tool", "outcome"}),
		breakerTrans: prom.NewCounterVec(prom.CounterOpts{
			Name: "gitnexus_breaker_transitions_total",
			Help: "Circuit breaker state transitions.",
		}, []string{"from", "to"}),
		bridgeMsgs: prom.NewCounterVec(prom.CounterOpts{
			Name: "gitnexus_bridge_messages_total",
			Help: "Bridge messages processed, by direction and type.",
		}, []string{"direction", "type"}),
	}
	registry.MustRegister(p.toolTotal, p.toolSeconds, p.breakerTrans, p.bridgeMsgs)
	SetRecorder(p)

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	ln, err := newListener(addr)
	if err != nil {
		return fmt.Errorf("starting metrics listener on %s: %w", addr, err)
	}
	go func() { _ = http.Serve(ln, mux) }()
	return nil
}
