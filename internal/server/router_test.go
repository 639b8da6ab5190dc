package server

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"runtime"
	"testing"
	"time"

	"github.com/loykin/warden/internal/config"
	"github.com/loykin/warden/internal/orchestrator"
	"github.com/loykin/warden/internal/probe"
)

func TestSanitizeBase(t *testing.T) {
	cases := map[string]string{
		"":         "",
		"/":        "",
		"warden":   "/warden",
		"/warden/": "/warden",
		" /w ":     "/w",
	}
	for in, want := range cases {
		if got := sanitizeBase(in); got != want {
			t.Fatalf("sanitizeBase(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestHealthUnavailableBeforeRun(t *testing.T) {
	orc := orchestrator.New(orchestrator.Options{
		Config: &config.Config{},
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	h := NewRouter(orc, "").Handler()

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("idle session should report 503, got %d", rec.Code)
	}
	var resp healthResp
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Health != orchestrator.HealthUnknown || resp.Session == "" {
		t.Fatalf("unexpected body: %+v", resp)
	}
}

func TestHealthAndStatusDuringRunningSession(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("test requires sleep on Unix-like systems")
	}
	orc := orchestrator.New(orchestrator.Options{
		Config: &config.Config{Processes: []config.ProcConfig{
			{Name: "agent", Command: "sleep 30", GracePeriod: 2 * time.Second},
		}},
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
		Prober: probe.Func(func(context.Context) probe.Result {
			return probe.Result{State: probe.StateHealthy, CheckedAt: time.Now()}
		}),
	})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- orc.Run(ctx) }()
	defer func() { cancel(); <-done }()

	deadline := time.Now().Add(5 * time.Second)
	for orc.State() != orchestrator.StateRunning {
		if time.Now().After(deadline) {
			t.Fatalf("session never reached running, state %s", orc.State())
		}
		time.Sleep(10 * time.Millisecond)
	}

	h := NewRouter(orc, "/warden").Handler()

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/warden/health", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("healthy session should report 200, got %d: %s", rec.Code, rec.Body.String())
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/warden/status", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status: %d", rec.Code)
	}
	var st orchestrator.Status
	if err := json.Unmarshal(rec.Body.Bytes(), &st); err != nil {
		t.Fatalf("decode status: %v", err)
	}
	if st.State != orchestrator.StateRunning || len(st.Processes) != 1 || st.Processes[0].Name != "agent" {
		t.Fatalf("snapshot: %+v", st)
	}
}

func TestMetricsEndpointMounted(t *testing.T) {
	orc := orchestrator.New(orchestrator.Options{
		Config: &config.Config{},
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	h := NewRouter(orc, "").Handler()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("metrics: %d", rec.Code)
	}
}
