package process

import (
	"os/exec"
	"strings"
	"time"

	"github.com/loykin/warden/internal/logger"
)

// DefaultGracePeriod is how long a child gets to exit voluntarily after a
// termination request before it is force-killed.
const DefaultGracePeriod = 5 * time.Second

// Spec describes one dependent child process.
type Spec struct {
	Name        string        `json:"name" mapstructure:"name"`
	Command     string        `json:"command" mapstructure:"command"`
	WorkDir     string        `json:"work_dir" mapstructure:"workdir"`
	Env         []string      `json:"env" mapstructure:"env"` // extra KEY=VALUE entries appended to the parent env
	GracePeriod time.Duration `json:"grace_period" mapstructure:"grace_period"`
	Log         logger.Config `json:"log" mapstructure:"log"`
}

// EffectiveGrace returns the configured grace period or the default.
func (s Spec) EffectiveGrace() time.Duration {
	if s.GracePeriod > 0 {
		return s.GracePeriod
	}
	return DefaultGracePeriod
}

// BuildCommand constructs an *exec.Cmd for the spec's command string.
// It avoids invoking a shell when not necessary and respects an explicit
// shell invocation already present in the command (e.g. "sh -c 'echo hi'"),
// avoiding double-wrapping.
func (s Spec) BuildCommand() *exec.Cmd {
	cmdStr := strings.TrimSpace(s.Command)
	if cmdStr == "" {
		// #nosec G204
		return exec.Command("/bin/true")
	}
	if afterC, ok := parseExplicitShell(cmdStr); ok {
		// Absolute shell path avoids PATH dependency when Env is overridden.
		// #nosec G204
		return exec.Command("/bin/sh", "-c", afterC)
	}
	if strings.ContainsAny(cmdStr, "|&;<>*?`$\"'(){}[]~") {
		// #nosec G204
		return exec.Command("/bin/sh", "-c", cmdStr)
	}
	parts := strings.Fields(cmdStr)
	name := parts[0]
	var args []string
	if len(parts) > 1 {
		args = parts[1:]
	}
	// #nosec G204
	return exec.Command(name, args...)
}

// parseExplicitShell detects "sh -c <ARG>" style prefixes and returns the
// argument after -c verbatim (one surrounding quote pair stripped) so quoting
// inside the script survives.
func parseExplicitShell(cmdStr string) (string, bool) {
	trim := strings.TrimLeft(cmdStr, " \t")
	for _, p := range []string{"sh -c ", "/bin/sh -c ", "/usr/bin/sh -c "} {
		if strings.HasPrefix(trim, p) {
			after := trim[len(p):]
			if n := len(after); n >= 2 {
				if (after[0] == '\'' && after[n-1] == '\'') || (after[0] == '"' && after[n-1] == '"') {
					after = after[1 : n-1]
				}
			}
			return after, true
		}
	}
	return "", false
}
