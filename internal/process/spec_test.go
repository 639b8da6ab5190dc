package process

import (
	"runtime"
	"testing"
	"time"
)

func TestBuildCommandPlain(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("unix command construction")
	}
	cmd := Spec{Command: "sleep 5"}.BuildCommand()
	if len(cmd.Args) != 2 || cmd.Args[1] != "5" {
		t.Fatalf("args: %#v", cmd.Args)
	}
}

func TestBuildCommandShellMetachars(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("unix command construction")
	}
	cmd := Spec{Command: "echo hi | cat"}.BuildCommand()
	if cmd.Args[0] != "/bin/sh" || cmd.Args[1] != "-c" {
		t.Fatalf("expected shell wrapping: %#v", cmd.Args)
	}
}

func TestBuildCommandExplicitShellNotDoubleWrapped(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("unix command construction")
	}
	cmd := Spec{Command: "sh -c 'echo hi; echo bye'"}.BuildCommand()
	if cmd.Args[0] != "/bin/sh" || cmd.Args[1] != "-c" || cmd.Args[2] != "echo hi; echo bye" {
		t.Fatalf("explicit shell mangled: %#v", cmd.Args)
	}
}

func TestBuildCommandEmpty(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("unix command construction")
	}
	cmd := Spec{}.BuildCommand()
	if cmd.Args[0] != "/bin/true" {
		t.Fatalf("empty command fallback: %#v", cmd.Args)
	}
}

func TestEffectiveGrace(t *testing.T) {
	if g := (Spec{}).EffectiveGrace(); g != DefaultGracePeriod {
		t.Fatalf("default grace: %v", g)
	}
	if g := (Spec{GracePeriod: time.Second}).EffectiveGrace(); g != time.Second {
		t.Fatalf("explicit grace: %v", g)
	}
}
