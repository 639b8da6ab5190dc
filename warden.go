package warden

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"time"

	cfg "github.com/loykin/warden/internal/config"
	"github.com/loykin/warden/internal/history"
	"github.com/loykin/warden/internal/history/factory"
	"github.com/loykin/warden/internal/logger"
	"github.com/loykin/warden/internal/metrics"
	"github.com/loykin/warden/internal/orchestrator"
	"github.com/loykin/warden/internal/probe"
	iapi "github.com/loykin/warden/internal/server"
	"github.com/prometheus/client_golang/prometheus"
)

// Re-export core types for external consumers.
// These are aliases so conversions are zero-cost.

type Config = cfg.Config

type EndpointConfig = cfg.EndpointConfig

type Options = orchestrator.Options

type State = orchestrator.State

type Health = orchestrator.Health

type Status = orchestrator.Status

type FinalStatus = orchestrator.FinalStatus

type ProbeResult = probe.Result

type HistorySink = history.Sink

// Orchestrator is a thin facade over internal/orchestrator.Orchestrator.
// It provides a stable public API for embedding one supervision session.

type Orchestrator struct{ inner *orchestrator.Orchestrator }

func New(opts Options) *Orchestrator {
	return &Orchestrator{inner: orchestrator.New(opts)}
}

func (o *Orchestrator) Run(ctx context.Context) error { return o.inner.Run(ctx) }
func (o *Orchestrator) Session() string               { return o.inner.Session() }
func (o *Orchestrator) State() State                  { return o.inner.State() }
func (o *Orchestrator) Final() FinalStatus            { return o.inner.Final() }
func (o *Orchestrator) Snapshot() Status              { return o.inner.Snapshot() }

func LoadConfig(path string) (*Config, error) {
	return cfg.Load(path)
}

// NewLogger builds the shared structured logger writing to w.
func NewLogger(w io.Writer, opts logger.Options) *slog.Logger {
	return logger.New(w, opts)
}

// NewHistorySink builds an audit sink from a DSN (sqlite path, postgres://
// or clickhouse:// URL).
func NewHistorySink(dsn string) (HistorySink, error) {
	return factory.NewSinkFromDSN(dsn)
}

// NewHTTPServer starts an HTTP server exposing the status surface for the
// given orchestrator.
func NewHTTPServer(addr, basePath string, o *Orchestrator) (*http.Server, error) {
	return iapi.NewServer(addr, basePath, o.inner)
}

// Metrics helpers (public facade)

func RegisterMetrics(r prometheus.Registerer) error { return metrics.Register(r) }
func RegisterMetricsDefault() error                 { return metrics.Register(prometheus.DefaultRegisterer) }

// ServeMetrics starts an HTTP server on addr exposing /metrics using the default registry.
// It returns any immediate listen error; otherwise it runs the server in the caller goroutine.
func ServeMetrics(addr string) error {
	http.Handle("/metrics", metrics.Handler())
	srv := &http.Server{
		Addr:              addr,
		Handler:           nil,
		ReadTimeout:       10 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return srv.ListenAndServe()
}
