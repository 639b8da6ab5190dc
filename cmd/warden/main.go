package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	root := buildRoot()
	if err := root.Execute(); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// GlobalFlags holds persistent flags shared by all subcommands.
type GlobalFlags struct {
	ConfigPath string
}

// buildRoot creates the root command and wires the subcommands.
func buildRoot() *cobra.Command {
	globalFlags := &GlobalFlags{}
	upFlags := &UpFlags{}
	checkFlags := &CheckFlags{}

	root := createRootCommand(globalFlags)
	root.AddCommand(
		createUpCommand(globalFlags, upFlags),
		createCheckCommand(checkFlags),
		createValidateCommand(globalFlags),
	)
	return root
}

// createRootCommand creates the root command with minimal persistent flags.
func createRootCommand(flags *GlobalFlags) *cobra.Command {
	root := &cobra.Command{
		Use:   "warden",
		Short: "Supervised process and health-probe manager",
		Long: `Warden starts a set of dependent child processes, verifies connectivity
to a remote tool-calling endpoint, and supervises the session until an
interrupt or a fatal child exit.

Examples:
  warden up --config=warden.toml
  warden check --url=https://host/mcp --token=$TOKEN
  warden validate --config=warden.toml`,
	}
	root.PersistentFlags().StringVar(&flags.ConfigPath, "config", "", "path to TOML config file")
	return root
}
