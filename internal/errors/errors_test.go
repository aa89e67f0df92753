package errors

import (
	stderrors "errors"
	"fmt"
	"testing"
)

func TestCodeOf(t *testing.T) {
	if got := CodeOf(nil); got != CodeSuccess {
		t.Fatalf("CodeOf(nil) = %d, want success", got)
	}
	if got := CodeOf(New(CodeTimeout, "x")); got != CodeTimeout {
		t.Fatalf("CodeOf = %d, want timeout", got)
	}
	if got := CodeOf(stderrors.New("plain")); got != CodeInternal {
		t.Fatalf("CodeOf(plain) = %d, want internal", got)
	}
}

func TestWrapPreservesCodeThroughFmt(t *testing.T) {
	inner := Wrap(CodeValidation, "refused", stderrors.New("balance too low"))
	outer := fmt.Errorf("while running: %w", inner)
	typed, ok := As(outer)
	if !ok || typed.Code != CodeValidation {
		t.Fatalf("As(outer): ok=%v code=%v", ok, typed)
	}
	if ExitCode(outer) != int(CodeValidation) {
		t.Fatalf("ExitCode = %d, want %d", ExitCode(outer), CodeValidation)
	}
}

func TestKindStrings(t *testing.T) {
	cases := map[Code]string{
		CodeParse:      "parse_error",
		CodeValidation: "validation_failure",
		CodeTimeout:    "timed_out",
		CodeRefresh:    "state_refresh_error",
		CodeInternal:   "internal",
	}
	for code, want := range cases {
		if got := Kind(code); got != want {
			t.Fatalf("Kind(%d) = %q, want %q", code, got, want)
		}
	}
}
