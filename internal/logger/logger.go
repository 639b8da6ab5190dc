package logger

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	lj "gopkg.in/natefinch/lumberjack.v2"
)

// Default rotation parameters for captured child output files.
const (
	DefaultMaxSizeMB  = 10 // MB
	DefaultMaxBackups = 3  // number of backup files
	DefaultMaxAgeDays = 7  // days
)

// FileConfig describes rotated file destinations for a child's stdout/stderr.
// If StdoutPath/StderrPath are empty and Dir is set, files default to
// Dir/<name>.stdout.log and Dir/<name>.stderr.log.
// Rotation parameters follow lumberjack semantics.
type FileConfig struct {
	Dir        string `json:"dir" mapstructure:"dir"`
	StdoutPath string `json:"stdout_path" mapstructure:"stdout_path"`
	StderrPath string `json:"stderr_path" mapstructure:"stderr_path"`
	MaxSizeMB  int    `json:"max_size_mb" mapstructure:"max_size_mb"`
	MaxBackups int    `json:"max_backups" mapstructure:"max_backups"`
	MaxAgeDays int    `json:"max_age_days" mapstructure:"max_age_days"`
	Compress   bool   `json:"compress" mapstructure:"compress"`
}

// Config is the per-process logging configuration: optional rotated files
// for raw stdout/stderr in addition to the structured relay.
type Config struct {
	File FileConfig `json:"file" mapstructure:"file"`
}

// Enabled reports whether any file destination is configured.
func (c Config) Enabled() bool {
	return c.File.Dir != "" || c.File.StdoutPath != "" || c.File.StderrPath != ""
}

// Writers returns io.WriteClosers for stdout and stderr for the given process
// name. Either writer may be nil when no destination resolves for that stream.
func (c Config) Writers(name string) (io.WriteCloser, io.WriteCloser, error) {
	stdout := c.File.StdoutPath
	stderr := c.File.StderrPath
	if stdout == "" && c.File.Dir != "" {
		stdout = filepath.Join(c.File.Dir, fmt.Sprintf("%s.stdout.log", name))
	}
	if stderr == "" && c.File.Dir != "" {
		stderr = filepath.Join(c.File.Dir, fmt.Sprintf("%s.stderr.log", name))
	}
	var outW io.WriteCloser
	var errW io.WriteCloser
	if stdout != "" {
		outW = c.newRotated(stdout)
	}
	if stderr != "" {
		errW = c.newRotated(stderr)
	}
	return outW, errW, nil
}

func (c Config) newRotated(path string) io.WriteCloser {
	return &lj.Logger{
		Filename:   path,
		MaxSize:    valOr(c.File.MaxSizeMB, DefaultMaxSizeMB),
		MaxBackups: valOr(c.File.MaxBackups, DefaultMaxBackups),
		MaxAge:     valOr(c.File.MaxAgeDays, DefaultMaxAgeDays),
		Compress:   c.File.Compress,
	}
}

func valOr(v int, def int) int {
	if v <= 0 {
		return def
	}
	return v
}

// Options configures the shared structured logger.
type Options struct {
	Level string `json:"level" mapstructure:"level"` // debug, info, warn, error
	Color bool   `json:"color" mapstructure:"color"`
}

// New builds a slog.Logger writing to w according to opts.
func New(w io.Writer, opts Options) *slog.Logger {
	ho := &slog.HandlerOptions{Level: ParseLevel(opts.Level)}
	if opts.Color {
		return slog.New(NewColorTextHandler(w, ho, true))
	}
	return slog.New(slog.NewTextHandler(w, ho))
}

// Default returns an info-level text logger on stderr.
func Default() *slog.Logger {
	return New(os.Stderr, Options{Level: "info"})
}

// ParseLevel maps a level name to slog.Level, defaulting to info.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
