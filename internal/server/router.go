package server

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/loykin/warden/internal/metrics"
	"github.com/loykin/warden/internal/orchestrator"
)

// Router provides embeddable HTTP handlers exposing one supervision session.
// Endpoints:
//   GET {basePath}/health   liveness verdict: 200 when healthy, 503 otherwise
//   GET {basePath}/status   full session snapshot (state, health, processes)
//   GET {basePath}/metrics  prometheus exposition
// basePath may be empty or start with '/'; no trailing slash.

type Router struct {
	orc      *orchestrator.Orchestrator
	basePath string
}

// NewRouter constructs a new Router with configurable basePath.
// Example basePath: "/warden" results in /warden/health, /warden/status.
func NewRouter(orc *orchestrator.Orchestrator, basePath string) *Router {
	bp := sanitizeBase(basePath)
	return &Router{orc: orc, basePath: bp}
}

// Handler returns an http.Handler powered by gin that can be mounted in any server/mux.
func (r *Router) Handler() http.Handler {
	g := gin.New()
	g.Use(gin.Recovery())
	group := g.Group(r.basePath)
	group.GET("/health", r.handleHealth)
	group.GET("/status", r.handleStatus)
	group.GET("/metrics", gin.WrapH(metrics.Handler()))
	return g
}

// NewServer starts a standalone HTTP server on addr using this router.
// Shut it down with http.Server's Close or Shutdown.
func NewServer(addr, basePath string, orc *orchestrator.Orchestrator) (*http.Server, error) {
	r := NewRouter(orc, basePath)
	server := &http.Server{
		Addr:              addr,
		Handler:           r.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	go func() { _ = server.ListenAndServe() }()
	return server, nil
}

// --- Handlers ---

type healthResp struct {
	Session string              `json:"session"`
	State   orchestrator.State  `json:"state"`
	Health  orchestrator.Health `json:"health"`
	Error   string              `json:"error,omitempty"`
}

func (r *Router) handleHealth(c *gin.Context) {
	final := r.orc.Final()
	resp := healthResp{
		Session: r.orc.Session(),
		State:   final.State,
		Health:  final.Health,
	}
	if final.Err != nil {
		resp.Error = final.Err.Error()
	}
	code := http.StatusServiceUnavailable
	if final.Health == orchestrator.HealthHealthy {
		code = http.StatusOK
	}
	writeJSON(c, code, resp)
}

func (r *Router) handleStatus(c *gin.Context) {
	writeJSON(c, http.StatusOK, r.orc.Snapshot())
}
