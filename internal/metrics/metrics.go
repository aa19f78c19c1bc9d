package metrics

import (
	"context"
	"net/http"

	"stratify/internal/logger"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the Prometheus metrics for the execution engine.
type Metrics struct {
	ExecutionsStarted  *prometheus.CounterVec // labels: kind
	ExecutionsFinished *prometheus.CounterVec // labels: kind, outcome
	RunningExecutions  prometheus.Gauge
	StepsTotal         prometheus.Counter
	TradesTotal        *prometheus.CounterVec // labels: side
	StepDuration       prometheus.Histogram
	CandleFetchDur     prometheus.Histogram
	GatewayErrors      prometheus.Counter
	Liquidations       prometheus.Counter
}

// New registers and returns the engine metrics.
func New() *Metrics {
	m := &Metrics{
		ExecutionsStarted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "stratify_executions_started_total",
			Help: "Executions handed off to a worker (by kind)",
		}, []string{"kind"}),
		ExecutionsFinished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "stratify_executions_finished_total",
			Help: "Executions that stopped (by kind and outcome)",
		}, []string{"kind", "outcome"}),
		RunningExecutions: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "stratify_running_executions",
			Help: "Workers currently stepping",
		}),
		StepsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "stratify_steps_total",
			Help: "Total simulation steps across all executions",
		}),
		TradesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "stratify_trades_total",
			Help: "Fills recorded by the ledger (by side)",
		}, []string{"side"}),
		StepDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "stratify_step_duration_seconds",
			Help:    "Per-candle step latency (indicators, rules, ledger)",
			Buckets: []float64{0.00001, 0.00005, 0.0001, 0.0005, 0.001, 0.005, 0.01},
		}),
		CandleFetchDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "stratify_candle_fetch_duration_seconds",
			Help:    "Candle source request latency including back-fill",
			Buckets: prometheus.DefBuckets,
		}),
		GatewayErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "stratify_gateway_errors_total",
			Help: "Exchange gateway calls that failed and halted an execution",
		}),
		Liquidations: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "stratify_liquidations_total",
			Help: "Forced position resets from exhausted margin",
		}),
	}

	prometheus.MustRegister(
		m.ExecutionsStarted,
		m.ExecutionsFinished,
		m.RunningExecutions,
		m.StepsTotal,
		m.TradesTotal,
		m.StepDuration,
		m.CandleFetchDur,
		m.GatewayErrors,
		m.Liquidations,
	)
	return m
}

// Server exposes /metrics and /healthz.
type Server struct {
	srv *http.Server
}

func NewServer(addr string, healthz http.HandlerFunc) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	if healthz != nil {
		mux.HandleFunc("/healthz", healthz)
	}
	return &Server{srv: &http.Server{Addr: addr, Handler: mux}}
}

// Start launches the HTTP server in a goroutine.
func (s *Server) Start() {
	go func() {
		logger.Info(context.Background(), "metrics server listening", "addr", s.srv.Addr)
		if err := s.srv.ListenAndServe(); err != http.ErrServerClosed {
			logger.ErrorWithErr(context.Background(), "metrics server error", err)
		}
	}()
}

// Stop gracefully shuts down the server.
func (s *Server) Stop(ctx context.Context) {
	s.srv.Shutdown(ctx)
}
