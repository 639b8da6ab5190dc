package orchestrator

import "fmt"

// ConfigurationError is fatal: a required configuration value is missing or
// malformed. Never retried; nothing is started.
type ConfigurationError struct {
	Err error
}

func (e *ConfigurationError) Error() string { return "configuration error: " + e.Err.Error() }
func (e *ConfigurationError) Unwrap() error { return e.Err }

// StartupError is fatal: a dependent process failed to launch. Anything
// already started is cleaned up before it surfaces.
type StartupError struct {
	Name string
	Err  error
}

func (e *StartupError) Error() string {
	return fmt.Sprintf("startup of %q failed: %v", e.Name, e.Err)
}
func (e *StartupError) Unwrap() error { return e.Err }

// ConnectivityError is recoverable: every connectivity attempt was exhausted.
// In best-effort mode it degrades health instead of halting; in strict mode
// it is treated as fatal.
type ConnectivityError struct {
	Err error
}

func (e *ConnectivityError) Error() string { return "connectivity error: " + e.Err.Error() }
func (e *ConnectivityError) Unwrap() error { return e.Err }

// UnexpectedExitError is fatal: a supervised child exited outside of a
// requested shutdown. It drives full teardown, like an external interrupt.
type UnexpectedExitError struct {
	Name string
	Code int
	Err  error
}

func (e *UnexpectedExitError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("process %q failed: %v", e.Name, e.Err)
	}
	return fmt.Sprintf("process %q exited unexpectedly with code %d", e.Name, e.Code)
}
func (e *UnexpectedExitError) Unwrap() error { return e.Err }
