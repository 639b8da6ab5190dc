package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/loykin/warden"
	"github.com/loykin/warden/internal/probe"
	"github.com/spf13/cobra"
)

// UpFlags holds flags for the up command.
type UpFlags struct {
	ServerAddr string
	HistoryDSN string
	Session    string
}

// CheckFlags holds flags for the check command.
type CheckFlags struct {
	URL     string
	Token   string
	Timeout time.Duration
}

// createUpCommand creates the up subcommand.
func createUpCommand(globalFlags *GlobalFlags, upFlags *UpFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "up [config.toml]",
		Short: "Start and supervise the configured session",
		Long: `Start every configured dependent process in order, verify endpoint
connectivity, then supervise until an interrupt or a fatal exit.

Examples:
  warden up --config=warden.toml
  warden up warden.toml --server-addr=:8080
  warden up warden.toml --history-dsn=./warden-history.db`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runUp(globalFlags, upFlags, args)
		},
	}
	cmd.Flags().StringVar(&upFlags.ServerAddr, "server-addr", "", "status/metrics listen address (overrides [server].addr)")
	cmd.Flags().StringVar(&upFlags.HistoryDSN, "history-dsn", "", "audit sink DSN (overrides [history].dsn)")
	cmd.Flags().StringVar(&upFlags.Session, "session", "", "session id (generated when empty)")
	return cmd
}

func runUp(globalFlags *GlobalFlags, upFlags *UpFlags, args []string) error {
	configPath := globalFlags.ConfigPath
	if len(args) > 0 {
		configPath = args[0]
	}
	if configPath == "" {
		return fmt.Errorf("config file required. Use --config=warden.toml or provide as argument")
	}

	cfg, err := warden.LoadConfig(configPath)
	if err != nil {
		return fmt.Errorf("error loading config: %w", err)
	}

	lg := warden.NewLogger(os.Stderr, cfg.Log)

	if err := warden.RegisterMetricsDefault(); err != nil {
		lg.Warn("metrics registration failed", "error", err.Error())
	}

	var sink warden.HistorySink
	dsn := upFlags.HistoryDSN
	if dsn == "" {
		dsn = cfg.History.DSN
	}
	if dsn != "" {
		sink, err = warden.NewHistorySink(dsn)
		if err != nil {
			return fmt.Errorf("failed to open history sink: %w", err)
		}
		defer func() { _ = sink.Close() }()
	}

	o := warden.New(warden.Options{
		Config:  cfg,
		Logger:  lg,
		History: sink,
		Session: upFlags.Session,
	})

	addr := upFlags.ServerAddr
	if addr == "" {
		addr = cfg.Server.Addr
	}
	if addr != "" {
		server, err := warden.NewHTTPServer(addr, cfg.Server.BasePath, o)
		if err != nil {
			return fmt.Errorf("failed to start status server: %w", err)
		}
		defer func() { _ = server.Close() }()
		lg.Info("status server listening", "addr", addr, "base_path", cfg.Server.BasePath)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	runErr := o.Run(ctx)
	final := o.Final()
	fmt.Printf("session %s finished: state=%s health=%s\n", o.Session(), final.State, final.Health)
	return runErr
}

// createCheckCommand creates the check subcommand.
func createCheckCommand(checkFlags *CheckFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "check",
		Short: "Run one connectivity probe against an endpoint",
		Long: `Send a single initialize request to the endpoint and report the verdict.
Exits nonzero when the endpoint is not healthy.

Examples:
  warden check --url=https://host/mcp --token=$API_TOKEN
  warden check --url=http://localhost:8000/mcp --timeout=5s`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCheck(checkFlags)
		},
	}
	cmd.Flags().StringVar(&checkFlags.URL, "url", "", "endpoint URL (required)")
	cmd.Flags().StringVar(&checkFlags.Token, "token", "", "authorization credential")
	cmd.Flags().DurationVar(&checkFlags.Timeout, "timeout", 15*time.Second, "request timeout")
	if err := cmd.MarkFlagRequired("url"); err != nil {
		panic(err)
	}
	return cmd
}

func runCheck(flags *CheckFlags) error {
	p := probe.NewHTTPProber(probe.Target{
		URL:           flags.URL,
		Authorization: flags.Token,
		Timeout:       flags.Timeout,
	})
	res := p.Probe(context.Background())
	fmt.Printf("state=%s elapsed=%s", res.State, res.Elapsed.Round(time.Millisecond))
	if res.Reason != "" {
		fmt.Printf(" reason=%q", res.Reason)
	}
	fmt.Println()
	if !res.Healthy() {
		return fmt.Errorf("endpoint %s is %s", flags.URL, res.State)
	}
	return nil
}

// createValidateCommand creates the validate subcommand.
func createValidateCommand(globalFlags *GlobalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "validate [config.toml]",
		Short: "Validate a config file without starting anything",
		RunE: func(cmd *cobra.Command, args []string) error {
			configPath := globalFlags.ConfigPath
			if len(args) > 0 {
				configPath = args[0]
			}
			if configPath == "" {
				return fmt.Errorf("config file required. Use --config=warden.toml or provide as argument")
			}
			cfg, err := warden.LoadConfig(configPath)
			if err != nil {
				return err
			}
			fmt.Printf("%s: ok (%d processes)\n", configPath, len(cfg.Processes))
			return nil
		},
	}
}
