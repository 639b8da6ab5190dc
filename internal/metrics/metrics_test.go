package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
)

func TestRegisterIsIdempotent(t *testing.T) {
	reg := prometheus.NewRegistry()
	if err := Register(reg); err != nil {
		t.Fatalf("first Register: %v", err)
	}
	if err := Register(reg); err != nil {
		t.Fatalf("second Register: %v", err)
	}
	// Default registry double-registration must also be tolerated.
	if err := Register(prometheus.DefaultRegisterer); err != nil {
		t.Fatalf("default Register: %v", err)
	}
}

func TestHelpersRecordAfterRegister(t *testing.T) {
	_ = Register(prometheus.DefaultRegisterer)

	ObserveProbe("healthy", 0.05)
	IncProbeCacheHit()
	IncRetrierFailure("timed_out")
	IncProcessStart("bridge")
	IncProcessExit("bridge", "unexpected")
	IncForcedKill("bridge")
	RecordStateTransition("idle", "preflight_checking")
	SetHealthState("degraded", true)

	srv := httptest.NewServer(Handler())
	defer srv.Close()
	resp, err := http.Get(srv.URL)
	if err != nil {
		t.Fatalf("scrape: %v", err)
	}
	defer func() { _ = resp.Body.Close() }()
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	body := string(b)
	for _, want := range []string{
		"warden_probe_results_total",
		"warden_probe_cache_hits_total",
		"warden_process_starts_total",
		"warden_orchestrator_state_transitions_total",
		"warden_orchestrator_health_state",
	} {
		if !strings.Contains(body, want) {
			t.Fatalf("metric %q missing from scrape", want)
		}
	}
}
