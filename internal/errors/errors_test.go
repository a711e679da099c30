package errors

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/agentplus/hbagent/internal/testutil"
)

func TestCLIError_Error(t *testing.T) {
	tests := []struct {
		name string
		err  *CLIError
		want string
	}{
		{
			name: "message only",
			err:  &CLIError{Message: "test error"},
			want: "test error",
		},
		{
			name: "message with cause",
			err:  &CLIError{Message: "test error", Cause: New(1, "underlying")},
			want: "test error: underlying",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.want {
				t.Errorf("Error() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestCLIError_Unwrap(t *testing.T) {
	cause := New(1, "cause")
	err := &CLIError{Message: "wrapper", Cause: cause}

	if got := err.Unwrap(); got != cause { //nolint:errorlint // testing identity
		t.Errorf("Unwrap() = %v, want %v", got, cause)
	}
}

func TestWithHint(t *testing.T) {
	err := New(1, "test").WithHint("do this")

	if err.Hint != "do this" {
		t.Errorf("WithHint() hint = %q, want %q", err.Hint, "do this")
	}
}

func TestWrap(t *testing.T) {
	cause := New(1, "cause")
	err := Wrap(ExitNetwork, "wrapped", cause)

	if err.Code != ExitNetwork {
		t.Errorf("Wrap() code = %d, want %d", err.Code, ExitNetwork)
	}

	if err.Cause != cause { //nolint:errorlint // testing struct field identity
		t.Errorf("Wrap() cause = %v, want %v", err.Cause, cause)
	}
}

func TestAllCLIErrorsHaveHints(t *testing.T) {
	tests := []struct {
		name string
		err  *CLIError
	}{
		{"TokenEmpty", TokenEmpty()},
		{"NoStoredToken", NoStoredToken()},
		{"TokenStoreFailed", TokenStoreFailed(nil)},
		{"CannotPrompt", CannotPrompt("CLI_TOKEN")},
		{"ConfigFailed", ConfigFailed("load config", nil)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.err.Hint == "" {
				t.Errorf("%s() should have a hint, got empty string", tt.name)
			}

			if tt.err.Message == "" {
				t.Errorf("%s() should have a message, got empty string", tt.name)
			}
		})
	}
}

func TestControlError(t *testing.T) {
	cause := errors.New("boom")

	tests := []struct {
		name string
		err  *ControlError
		kind Kind
	}{
		{"NotConfigured", NotConfigured(), KindNotConfigured},
		{"TransportError", TransportError(cause), KindTransport},
		{"BadResponse", BadResponse(cause), KindBadResponse},
		{"UnknownShell", UnknownShell("42"), KindUnknownShell},
		{"SpawnError", SpawnError(cause), KindSpawn},
		{"WriteError", WriteError("42", cause), KindWrite},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.err.Kind != tt.kind {
				t.Errorf("Kind = %q, want %q", tt.err.Kind, tt.kind)
			}

			if !IsKind(tt.err, tt.kind) {
				t.Errorf("IsKind(%v, %q) = false, want true", tt.err, tt.kind)
			}

			if IsKind(tt.err, "bogus") {
				t.Errorf("IsKind(%v, bogus) = true, want false", tt.err)
			}

			if tt.err.Error() == "" {
				t.Error("Error() returned empty string")
			}
		})
	}
}

func TestControlError_Unwrap(t *testing.T) {
	cause := errors.New("boom")
	err := TransportError(cause)

	if !errors.Is(err, cause) {
		t.Error("expected errors.Is to find the wrapped cause")
	}
}

// formatCLIError produces a deterministic string representation of a CLIError for golden file comparison.
func formatCLIError(err *CLIError) string {
	return fmt.Sprintf("Message: %s\nHint: %s\nCode: %d\n", err.Message, err.Hint, err.Code)
}

func TestErrorMessages_Golden(t *testing.T) {
	tests := []struct {
		name string
		err  *CLIError
	}{
		{"TokenEmpty", TokenEmpty()},
		{"NoStoredToken", NoStoredToken()},
		{"TokenStoreFailed", TokenStoreFailed(nil)},
		{"CannotPrompt", CannotPrompt("CLI_TOKEN")},
		{"ConfigFailed", ConfigFailed("store token", nil)},
	}

	var sb strings.Builder
	for _, tt := range tests {
		fmt.Fprintf(&sb, "--- %s ---\n", tt.name)
		sb.WriteString(formatCLIError(tt.err))
		sb.WriteString("\n")
	}

	testutil.AssertGolden(t, sb.String(), "error_messages.golden")
}
