package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/loykin/warden/internal/config"
	"github.com/loykin/warden/internal/health"
	"github.com/loykin/warden/internal/history"
	"github.com/loykin/warden/internal/metrics"
	"github.com/loykin/warden/internal/probe"
	"github.com/loykin/warden/internal/process"
	"github.com/loykin/warden/internal/retry"
)

// State names one phase of a supervision session.
type State string

const (
	StateIdle                  State = "idle"
	StatePreflightChecking     State = "preflight_checking"
	StateStartingDependencies  State = "starting_dependencies"
	StateVerifyingConnectivity State = "verifying_connectivity"
	StateRunning               State = "running"
	StateShuttingDown          State = "shutting_down"
	StateTerminated            State = "terminated"
)

// Health is the session-level health verdict.
type Health string

const (
	HealthUnknown  Health = "unknown"
	HealthHealthy  Health = "healthy"
	HealthDegraded Health = "degraded"
	HealthFatal    Health = "fatal"
)

// ProcStatus is the externally visible view of one supervised child.
type ProcStatus struct {
	Name    string `json:"name"`
	PID     int    `json:"pid"`
	Running bool   `json:"running"`
	Code    int    `json:"exit_code,omitempty"`
}

// Status is a point-in-time snapshot served by the status surface.
type Status struct {
	Session   string         `json:"session"`
	State     State          `json:"state"`
	Health    Health         `json:"health"`
	Err       string         `json:"error,omitempty"`
	LastProbe *health.Record `json:"last_probe,omitempty"`
	Processes []ProcStatus   `json:"processes"`
}

// FinalStatus is the terminal verdict of one session.
type FinalStatus struct {
	State  State
	Health Health
	Err    error
}

// Options assembles an Orchestrator. Zero optional fields get defaults.
type Options struct {
	Config  *config.Config
	Logger  *slog.Logger
	Prober  probe.Prober // overrides the HTTP prober built from Config.Endpoint
	History history.Sink // optional audit sink
	Session string       // generated from the start time when empty
	// Sleep is forwarded to the retrier; tests use it to skip real backoff.
	Sleep func(ctx context.Context, d time.Duration) error
}

// Orchestrator drives one supervision session through its state machine:
// Idle → PreflightChecking → StartingDependencies → VerifyingConnectivity →
// Running → ShuttingDown → Terminated. Terminated is final; a new session
// takes a new Orchestrator.
type Orchestrator struct {
	cfg     *config.Config
	logger  *slog.Logger
	sup     *process.Supervisor
	cache   *health.Cache
	retrier retry.Retrier
	sink    history.Sink
	session string

	mu     sync.Mutex
	state  State
	health Health
	err    error
	ran    bool
}

// New builds an Orchestrator for cfg.
func New(opts Options) *Orchestrator {
	cfg := opts.Config
	if cfg == nil {
		cfg = &config.Config{}
	}
	lg := opts.Logger
	if lg == nil {
		lg = slog.Default()
	}
	session := opts.Session
	if session == "" {
		session = fmt.Sprintf("warden-%d", time.Now().UnixNano())
	}

	prober := opts.Prober
	if prober == nil && cfg.Endpoint.Enabled() {
		prober = probe.NewHTTPProber(probe.Target{
			URL:           cfg.Endpoint.URL,
			Authorization: cfg.Endpoint.Credential(),
			Timeout:       cfg.Endpoint.Timeout,
		})
	}
	var cache *health.Cache
	if prober != nil {
		cache = health.NewCache(prober, cfg.Endpoint.Freshness, lg)
	}

	return &Orchestrator{
		cfg:    cfg,
		logger: lg,
		sup:    process.NewSupervisor(lg, len(cfg.Processes)+1),
		cache:  cache,
		retrier: retry.Retrier{
			MaxAttempts: cfg.Endpoint.MaxAttempts,
			Backoff:     retry.Backoff{Base: cfg.Endpoint.BackoffBase, Cap: cfg.Endpoint.BackoffCap},
			Logger:      lg,
			Sleep:       opts.Sleep,
		},
		sink:    opts.History,
		session: session,
		state:   StateIdle,
		health:  HealthUnknown,
	}
}

// Session returns the opaque session id.
func (o *Orchestrator) Session() string { return o.session }

// State returns the current state.
func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// Final returns the structured verdict. Before Terminated it reflects the
// session so far; once Run returns it is the definitive outcome.
func (o *Orchestrator) Final() FinalStatus {
	o.mu.Lock()
	defer o.mu.Unlock()
	return FinalStatus{State: o.state, Health: o.health, Err: o.err}
}

// Snapshot builds the status served over HTTP.
func (o *Orchestrator) Snapshot() Status {
	o.mu.Lock()
	st := Status{Session: o.session, State: o.state, Health: o.health}
	if o.err != nil {
		st.Err = o.err.Error()
	}
	o.mu.Unlock()

	if o.cache != nil {
		if rec, ok := o.cache.Snapshot(); ok {
			st.LastProbe = &rec
		}
	}
	for _, c := range o.sup.Started() {
		ps := ProcStatus{Name: c.Name(), PID: c.PID(), Running: c.Poll() == process.StateRunning}
		if ev, ok := c.Exited(); ok {
			ps.Code = ev.Code
		}
		st.Processes = append(st.Processes, ps)
	}
	return st
}

func (o *Orchestrator) setState(next State) {
	o.mu.Lock()
	prev := o.state
	o.state = next
	o.mu.Unlock()

	metrics.RecordStateTransition(string(prev), string(next))
	o.logger.Info("state transition",
		"component", "orchestrator",
		"event", "transition",
		"outcome", string(next),
		"from", string(prev),
	)
	o.record(history.Event{Type: history.EventTransition, Name: string(next), Outcome: "from:" + string(prev)})
}

func (o *Orchestrator) setHealth(h Health) {
	o.mu.Lock()
	prev := o.health
	o.health = h
	o.mu.Unlock()
	if prev != h {
		metrics.SetHealthState(string(prev), false)
	}
	metrics.SetHealthState(string(h), true)
}

func (o *Orchestrator) setErr(err error) {
	o.mu.Lock()
	o.err = err
	o.mu.Unlock()
}

// record sends an audit event best-effort; sink failures are logged only.
func (o *Orchestrator) record(e history.Event) {
	if o.sink == nil {
		return
	}
	e.Session = o.session
	if e.OccurredAt.IsZero() {
		e.OccurredAt = time.Now()
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := o.sink.Send(ctx, e); err != nil {
		o.logger.Warn("history sink rejected event",
			"component", "orchestrator",
			"event", "history",
			"outcome", "error",
			"error", err.Error(),
		)
	}
}

// Run drives the session to Terminated. It blocks until an interrupt (ctx
// cancellation), a fatal error, or an unexpected child exit. The returned
// error is the fatal cause, nil for a requested clean shutdown.
func (o *Orchestrator) Run(ctx context.Context) error {
	o.mu.Lock()
	if o.ran {
		o.mu.Unlock()
		return errors.New("orchestrator already ran; create a new instance for a new session")
	}
	o.ran = true
	o.mu.Unlock()

	// Preflight: validate required configuration. Fatal, never retried, and
	// nothing is started beforehand.
	o.setState(StatePreflightChecking)
	if err := o.cfg.Validate(); err != nil {
		cerr := &ConfigurationError{Err: err}
		o.setErr(cerr)
		o.setHealth(HealthFatal)
		o.setState(StateTerminated)
		return cerr
	}

	// Start dependents in declared order.
	o.setState(StateStartingDependencies)
	for _, spec := range o.cfg.ProcessSpecs() {
		if err := ctx.Err(); err != nil {
			o.shutdown()
			o.setState(StateTerminated)
			return nil
		}
		if _, err := o.sup.Start(spec); err != nil {
			serr := &StartupError{Name: spec.Name, Err: err}
			o.logger.Error("dependent failed to launch",
				"component", "orchestrator",
				"event", "start",
				"process", spec.Name,
				"outcome", "error",
				"error", err.Error(),
			)
			o.setErr(serr)
			o.setHealth(HealthFatal)
			o.shutdown()
			o.setState(StateTerminated)
			return serr
		}
	}

	// Verify connectivity once every dependent is up.
	if o.cache != nil {
		o.setState(StateVerifyingConnectivity)
		res, err := o.retrier.ConnectWithRetry(ctx, o.cache)
		o.record(history.Event{Type: history.EventProbe, Name: "endpoint", Outcome: string(res.State), Detail: res.Reason})
		switch {
		case err == nil:
			o.setHealth(HealthHealthy)
		case errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded):
			o.shutdown()
			o.setState(StateTerminated)
			return nil
		default:
			cerr := &ConnectivityError{Err: err}
			if o.cfg.Endpoint.Strict {
				o.setErr(cerr)
				o.setHealth(HealthFatal)
				o.shutdown()
				o.setState(StateTerminated)
				return cerr
			}
			// Best-effort mode: the agent still operates without the remote
			// tool-calling surface.
			o.setErr(cerr)
			o.setHealth(HealthDegraded)
			o.logger.Warn("continuing without verified connectivity",
				"component", "orchestrator",
				"event", "connectivity",
				"outcome", "degraded",
				"error", cerr.Error(),
			)
		}
	} else {
		o.setHealth(HealthHealthy)
	}

	o.setState(StateRunning)
	fatal := o.supervise(ctx)

	if fatal != nil {
		o.setErr(fatal)
		o.setHealth(HealthFatal)
	}
	o.shutdown()
	o.setState(StateTerminated)
	return fatal
}

// supervise blocks in Running until an interrupt or a fatal child exit. The
// periodic refresh keeps the health record within its freshness window so the
// status surface stays current.
func (o *Orchestrator) supervise(ctx context.Context) error {
	var refresh <-chan time.Time
	if o.cache != nil {
		period := o.cfg.Endpoint.Freshness
		if period <= 0 {
			period = health.DefaultFreshness
		}
		t := time.NewTicker(period)
		defer t.Stop()
		refresh = t.C
	}
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-refresh:
			go func() {
				res := o.cache.GetOrProbe(ctx)
				o.record(history.Event{Type: history.EventProbe, Name: "endpoint", Outcome: string(res.State), Detail: res.Reason})
				o.updateHealthFromProbe(res)
			}()
		case ev := <-o.sup.Events():
			o.record(history.Event{
				Type:    history.EventProcessExit,
				Name:    ev.Name,
				Outcome: fmt.Sprintf("code=%d", ev.Code),
			})
			if ev.Unexpected() {
				return &UnexpectedExitError{Name: ev.Name, Code: ev.Code, Err: ev.Err}
			}
			o.logger.Warn("dependent exited cleanly outside shutdown",
				"component", "orchestrator",
				"event", "exit",
				"process", ev.Name,
				"outcome", "clean",
			)
		}
	}
}

// updateHealthFromProbe only moves between healthy and degraded; fatal is
// owned by the run loop.
func (o *Orchestrator) updateHealthFromProbe(res probe.Result) {
	o.mu.Lock()
	cur := o.health
	o.mu.Unlock()
	if cur == HealthFatal {
		return
	}
	if res.Healthy() {
		o.setHealth(HealthHealthy)
	} else {
		o.setHealth(HealthDegraded)
	}
}

// shutdown terminates every still-active child in reverse start order. Each
// gets its own grace period; individual failures are logged and recorded,
// never blocking the rest.
func (o *Orchestrator) shutdown() {
	o.setState(StateShuttingDown)
	errs := o.sup.TerminateAll(0)
	for _, err := range errs {
		o.record(history.Event{Type: history.EventTermination, Name: "supervisor", Outcome: "forced", Detail: err.Error()})
	}
	for _, c := range o.sup.Started() {
		o.record(history.Event{Type: history.EventTermination, Name: c.Name(), Outcome: "terminated"})
	}
}
