// Package metrics exposes Prometheus counters for tool execution and the
// verification gate. Each Metrics value owns its registry so that tests and
// parallel sessions never share state.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Metrics groups the collectors of one process. A nil *Metrics is valid
// and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	toolCalls     *prometheus.CounterVec
	toolDuration  *prometheus.HistogramVec
	verifications *prometheus.CounterVec
	passThrough   *prometheus.CounterVec
	llmTurns      prometheus.Counter
	tokens        *prometheus.CounterVec
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		toolCalls: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "itaccess_tool_calls_total",
				Help: "Tool invocations by tool, kind and outcome.",
			},
			[]string{"tool", "kind", "outcome"},
		),
		toolDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "itaccess_tool_duration_seconds",
				Help:    "Tool execution latency in seconds.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"tool"},
		),
		verifications: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "itaccess_verifications_injected_total",
				Help: "Verification calls injected after a successful write, by write tool.",
			},
			[]string{"tool"},
		),
		passThrough: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "itaccess_gate_pass_through_total",
				Help: "Tool results the verification gate let through, by reason.",
			},
			[]string{"reason"},
		),
		llmTurns: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "itaccess_llm_turns_total",
			Help: "Model turns requested by the agent loop.",
		}),
		tokens: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "itaccess_llm_tokens_total",
				Help: "Tokens consumed, by direction.",
			},
			[]string{"direction"},
		),
	}
	m.registry.MustRegister(m.toolCalls, m.toolDuration, m.verifications, m.passThrough, m.llmTurns, m.tokens)
	return m
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Metrics) ToolCall(tool, kind, outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.toolCalls.WithLabelValues(tool, kind, outcome).Inc()
	m.toolDuration.WithLabelValues(tool).Observe(elapsed.Seconds())
}

func (m *Metrics) VerificationInjected(writeTool string) {
	if m == nil {
		return
	}
	m.verifications.WithLabelValues(writeTool).Inc()
}

func (m *Metrics) PassThrough(reason string) {
	if m == nil {
		return
	}
	m.passThrough.WithLabelValues(reason).Inc()
}

func (m *Metrics) LLMTurn(inputTokens, outputTokens int) {
	if m == nil {
		return
	}
	m.llmTurns.Inc()
	m.tokens.WithLabelValues("input").Add(float64(inputTokens))
	m.tokens.WithLabelValues("output").Add(float64(outputTokens))
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Serve exposes /metrics on addr until ctx is cancelled.
func (m *Metrics) Serve(ctx context.Context, addr string, log *zap.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	log.Info("metrics endpoint listening", zap.String("addr", addr))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
