package process

import (
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Supervisor owns the set of launched children for one session. Children are
// started in declared order and terminated in strictly reverse start order.
type Supervisor struct {
	logger *slog.Logger

	mu      sync.Mutex
	started []*Child
	events  chan ExitEvent
}

// NewSupervisor builds an empty supervisor. capacity bounds the exit event
// fan-in buffer; use the number of declared processes.
func NewSupervisor(lg *slog.Logger, capacity int) *Supervisor {
	if lg == nil {
		lg = slog.Default()
	}
	if capacity < 1 {
		capacity = 1
	}
	return &Supervisor{logger: lg, events: make(chan ExitEvent, capacity)}
}

// Events delivers every child's exit event, in exit order.
func (s *Supervisor) Events() <-chan ExitEvent { return s.events }

// Start launches spec and tracks the handle. The caller decides what to do
// with children already started when a later Start fails.
func (s *Supervisor) Start(spec Spec) (*Child, error) {
	if spec.Name == "" {
		return nil, fmt.Errorf("process spec requires a name")
	}
	c := NewChild(spec, s.logger)
	if err := c.Start(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	s.started = append(s.started, c)
	s.mu.Unlock()
	go func() {
		ev := <-c.Wait()
		s.events <- ev
	}()
	return c, nil
}

// Started returns the children in start order.
func (s *Supervisor) Started() []*Child {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*Child, len(s.started))
	copy(out, s.started)
	return out
}

// Running reports how many children have not exited yet.
func (s *Supervisor) Running() int {
	n := 0
	for _, c := range s.Started() {
		if c.Poll() == StateRunning {
			n++
		}
	}
	return n
}

// TerminateAll stops every still-active child in reverse start order, each
// with its own grace period. Per-child failures are collected and logged,
// never blocking the remaining terminations.
func (s *Supervisor) TerminateAll(grace time.Duration) []error {
	children := s.Started()
	var errs []error
	for i := len(children) - 1; i >= 0; i-- {
		c := children[i]
		if err := c.Terminate(grace); err != nil {
			errs = append(errs, err)
			s.logger.Warn("termination incomplete",
				"component", "supervisor",
				"event", "terminate",
				"process", c.Name(),
				"outcome", "error",
				"error", err.Error(),
			)
		}
	}
	return errs
}
