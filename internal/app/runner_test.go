package app

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	clierr "github.com/gustavo/chainagent/internal/errors"
	"github.com/gustavo/chainagent/internal/version"
)

func runCLI(t *testing.T, args ...string) (int, string, string) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	code := NewRunnerWithWriters(&stdout, &stderr).Run(args)
	return code, stdout.String(), stderr.String()
}

func TestVersionCommand(t *testing.T) {
	code, stdout, _ := runCLI(t, "version")
	if code != 0 {
		t.Fatalf("exit code = %d, want 0", code)
	}
	if !strings.Contains(stdout, version.CLIVersion) {
		t.Fatalf("version output missing %q: %s", version.CLIVersion, stdout)
	}
}

func TestUnknownCommandExitsWithUsage(t *testing.T) {
	code, _, stderr := runCLI(t, "frobnicate")
	if code != clierr.ExitCode(clierr.New(clierr.CodeUsage, "")) {
		t.Fatalf("exit code = %d, want the usage code", code)
	}
	if !strings.Contains(stderr, "error:") {
		t.Fatalf("stderr missing error line: %s", stderr)
	}
}

func TestUnknownFlagExitsWithUsage(t *testing.T) {
	code, _, _ := runCLI(t, "version", "--definitely-not-a-flag")
	if code != clierr.ExitCode(clierr.New(clierr.CodeUsage, "")) {
		t.Fatalf("exit code = %d, want the usage code", code)
	}
}

func TestRunCommandRequiresInstruction(t *testing.T) {
	code, _, _ := runCLI(t, "run")
	if code == 0 {
		t.Fatal("run without an instruction must not succeed")
	}
}

func TestNormalizeRunError(t *testing.T) {
	if normalizeRunError(nil) != nil {
		t.Fatal("nil must stay nil")
	}

	typed := clierr.New(clierr.CodeTimeout, "waited too long")
	if got := normalizeRunError(typed); clierr.CodeOf(got) != clierr.CodeTimeout {
		t.Fatalf("typed error was rewrapped: %v", got)
	}

	plain := errors.New("unknown flag: --bogus")
	if got := normalizeRunError(plain); clierr.CodeOf(got) != clierr.CodeUsage {
		t.Fatalf("plain error not mapped to usage: %v", got)
	}
}
