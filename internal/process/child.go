package process

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"sync"
	"time"

	"github.com/loykin/warden/internal/env"
	"github.com/loykin/warden/internal/metrics"
)

// PollState is the non-blocking view of a child's lifecycle.
type PollState int

const (
	StateRunning PollState = iota
	StateExited
)

func (s PollState) String() string {
	switch s {
	case StateRunning:
		return "running"
	case StateExited:
		return "exited"
	default:
		return "unknown"
	}
}

// ExitEvent is emitted exactly once when a child's process exits.
type ExitEvent struct {
	Name      string
	Code      int
	Err       error
	Requested bool // true when the exit followed a Terminate call
	At        time.Time
}

// Unexpected reports whether this exit should be treated as a failure:
// anything outside a requested shutdown with a nonzero code or a wait error.
func (e ExitEvent) Unexpected() bool {
	return !e.Requested && (e.Code != 0 || e.Err != nil)
}

// ForceKilledError reports that a child ignored its termination signal and
// had to be killed after the grace period.
type ForceKilledError struct {
	Name  string
	Grace time.Duration
}

func (e *ForceKilledError) Error() string {
	return fmt.Sprintf("process %q did not exit within %v and was force-killed", e.Name, e.Grace)
}

// Child supervises one launched process. It owns the OS process resources;
// nothing else signals or waits on the underlying command.
type Child struct {
	spec   Spec
	logger *slog.Logger

	mu        sync.Mutex
	cmd       *exec.Cmd
	pid       int
	startedAt time.Time
	stopping  bool // Terminate requested; suppresses the unexpected-exit classification
	exit      *ExitEvent

	waitDone chan struct{}  // closed by the monitor when cmd.Wait returns
	exitCh   chan ExitEvent // buffered, receives the single exit event
	relayWG  sync.WaitGroup
	closers  []io.Closer
}

// NewChild prepares a supervised child; Start launches it.
func NewChild(spec Spec, lg *slog.Logger) *Child {
	if lg == nil {
		lg = slog.Default()
	}
	return &Child{
		spec:     spec,
		logger:   lg,
		waitDone: make(chan struct{}),
		exitCh:   make(chan ExitEvent, 1),
	}
}

// Name returns the spec name.
func (c *Child) Name() string { return c.spec.Name }

// PID returns the launched pid, or 0 before Start.
func (c *Child) PID() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pid
}

// Start launches the child with captured stdout/stderr. Output lines are
// relayed to the structured log as they arrive (and to rotated files when
// configured); a hung child therefore still produces visible output.
func (c *Child) Start() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cmd != nil {
		return fmt.Errorf("process %q already started", c.spec.Name)
	}

	cmd := c.spec.BuildCommand()
	if c.spec.WorkDir != "" {
		cmd.Dir = c.spec.WorkDir
	}
	if len(c.spec.Env) > 0 {
		cmd.Env = env.Merge(c.spec.Env)
	}
	applySysProcAttr(cmd)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("stdout pipe for %q: %w", c.spec.Name, err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("stderr pipe for %q: %w", c.spec.Name, err)
	}

	var outFile, errFile io.WriteCloser
	if c.spec.Log.Enabled() {
		if c.spec.Log.File.Dir != "" {
			_ = os.MkdirAll(c.spec.Log.File.Dir, 0o750)
		}
		outFile, errFile, _ = c.spec.Log.Writers(c.spec.Name)
		if outFile != nil {
			c.closers = append(c.closers, outFile)
		}
		if errFile != nil {
			c.closers = append(c.closers, errFile)
		}
	}

	if err := cmd.Start(); err != nil {
		c.closeWritersLocked()
		return fmt.Errorf("start %q: %w", c.spec.Name, err)
	}
	c.cmd = cmd
	c.pid = cmd.Process.Pid
	c.startedAt = time.Now()

	c.relayWG.Add(2)
	go c.relay("stdout", stdout, outFile)
	go c.relay("stderr", stderr, errFile)
	go c.monitor()

	metrics.IncProcessStart(c.spec.Name)
	c.logger.Info("process started",
		"component", "supervisor",
		"event", "start",
		"process", c.spec.Name,
		"pid", c.pid,
		"outcome", "ok",
	)
	return nil
}

// relay drains one stream line by line into the structured log and the
// optional file writer. It finishes when the pipe closes at process exit.
func (c *Child) relay(stream string, r io.Reader, file io.Writer) {
	defer c.relayWG.Done()
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		line := sc.Text()
		c.logger.Info(line,
			"component", "process",
			"process", c.spec.Name,
			"stream", stream,
		)
		if file != nil {
			_, _ = fmt.Fprintln(file, line)
		}
	}
}

// monitor owns cmd.Wait. It closes waitDone, classifies the exit and emits
// the single ExitEvent.
func (c *Child) monitor() {
	err := c.cmd.Wait()
	c.relayWG.Wait()

	code := 0
	var ee *exec.ExitError
	if errors.As(err, &ee) {
		code = ee.ExitCode()
		err = nil
	}

	c.mu.Lock()
	ev := ExitEvent{
		Name:      c.spec.Name,
		Code:      code,
		Err:       err,
		Requested: c.stopping,
		At:        time.Now(),
	}
	c.exit = &ev
	c.closeWritersLocked()
	c.mu.Unlock()
	close(c.waitDone)

	kind := "requested"
	if ev.Unexpected() {
		kind = "unexpected"
	}
	metrics.IncProcessExit(c.spec.Name, kind)
	c.logger.Info("process exited",
		"component", "supervisor",
		"event", "exit",
		"process", c.spec.Name,
		"outcome", kind,
		"code", code,
	)
	c.exitCh <- ev
}

func (c *Child) closeWritersLocked() {
	for _, cl := range c.closers {
		_ = cl.Close()
	}
	c.closers = nil
}

// Exited returns the recorded exit event once the child has stopped.
func (c *Child) Exited() (ExitEvent, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.exit == nil {
		return ExitEvent{}, false
	}
	return *c.exit, true
}

// Wait exposes the one-shot exit notification channel.
func (c *Child) Wait() <-chan ExitEvent { return c.exitCh }

// Poll reports the child's state without blocking.
func (c *Child) Poll() PollState {
	select {
	case <-c.waitDone:
		return StateExited
	default:
		return StateRunning
	}
}

// Terminate requests a graceful stop and escalates to a kill after grace.
// It is idempotent: calling it on an already-exited child, or calling it
// repeatedly during one shutdown, is a no-op and never an error beyond the
// first call's own outcome.
func (c *Child) Terminate(grace time.Duration) error {
	if grace <= 0 {
		grace = c.spec.EffectiveGrace()
	}

	c.mu.Lock()
	if c.cmd == nil || c.exit != nil {
		c.mu.Unlock()
		return nil
	}
	alreadyStopping := c.stopping
	c.stopping = true
	pid := c.pid
	c.mu.Unlock()

	if alreadyStopping {
		// Another Terminate owns the escalation; just wait it out.
		select {
		case <-c.waitDone:
		case <-time.After(grace):
		}
		return nil
	}

	c.logger.Info("terminating process",
		"component", "supervisor",
		"event", "terminate",
		"process", c.spec.Name,
		"pid", pid,
	)
	_ = signalTerm(pid)

	select {
	case <-c.waitDone:
		return nil
	case <-time.After(grace):
	}

	_ = signalKill(pid)
	metrics.IncForcedKill(c.spec.Name)
	c.logger.Warn("process force-killed after grace period",
		"component", "supervisor",
		"event", "force_kill",
		"process", c.spec.Name,
		"pid", pid,
		"duration", grace,
	)
	select {
	case <-c.waitDone:
	case <-time.After(500 * time.Millisecond):
		// best-effort; the monitor reaps as soon as the kernel delivers the kill
	}
	return &ForceKilledError{Name: c.spec.Name, Grace: grace}
}
