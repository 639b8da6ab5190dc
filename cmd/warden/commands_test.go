package main

import (
	"io"
	"os"
	"path/filepath"
	"testing"
)

func TestBuildRootHasSubcommands(t *testing.T) {
	root := buildRoot()
	want := map[string]bool{"up": false, "check": false, "validate": false}
	for _, c := range root.Commands() {
		if _, ok := want[c.Name()]; ok {
			want[c.Name()] = true
		}
	}
	for name, found := range want {
		if !found {
			t.Fatalf("subcommand %s not registered", name)
		}
	}
}

func TestValidateCommand(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "warden.toml")
	content := `
[[processes]]
name = "agent"
command = "sleep 1"
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	root := buildRoot()
	root.SetArgs([]string{"validate", path})
	if err := root.Execute(); err != nil {
		t.Fatalf("validate: %v", err)
	}
}

func TestValidateCommandRejectsBadConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "warden.toml")
	content := `
[[processes]]
name = "agent"
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	root := buildRoot()
	root.SetArgs([]string{"validate", path})
	if err := root.Execute(); err == nil {
		t.Fatalf("missing command must fail validation")
	}
}

func TestUpRequiresConfig(t *testing.T) {
	root := buildRoot()
	root.SetArgs([]string{"up"})
	root.SetOut(io.Discard)
	root.SetErr(io.Discard)
	if err := root.Execute(); err == nil {
		t.Fatalf("up without config must fail")
	}
}
