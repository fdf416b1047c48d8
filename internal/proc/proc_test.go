package proc

import (
	"context"
	"errors"
	"strings"
	"testing"
)

func fakeRunner(exitCode int, stdout, stderr string) Runner {
	return func(ctx context.Context, argv []string) Result {
		return Result{Argv: argv, ExitCode: exitCode, Stdout: stdout, Stderr: stderr}
	}
}

func TestRunSuccess(t *testing.T) {
	result, err := Run(context.Background(), fakeRunner(0, "ok", ""), []string{"helm", "version"}, "helm failed")
	if err != nil {
		t.Fatalf("Run() error = %v, want nil", err)
	}
	if result.Stdout != "ok" {
		t.Errorf("Stdout = %q, want %q", result.Stdout, "ok")
	}
}

func TestRunFailureCarriesResult(t *testing.T) {
	_, err := Run(context.Background(), fakeRunner(1, "", "boom"), []string{"kubectl", "get", "ns"}, "kubectl failed")
	var cmdErr *CommandError
	if !errors.As(err, &cmdErr) {
		t.Fatalf("Run() error = %v, want *CommandError", err)
	}
	if cmdErr.Result.ExitCode != 1 {
		t.Errorf("ExitCode = %d, want 1", cmdErr.Result.ExitCode)
	}
	if cmdErr.Category != Fatal {
		t.Errorf("Category = %q, want fatal", cmdErr.Category)
	}
	if !strings.Contains(cmdErr.Error(), "kubectl failed") {
		t.Errorf("Error() = %q, want message prefix", cmdErr.Error())
	}
}

func TestClassifyRetryablePatterns(t *testing.T) {
	cases := []struct {
		name   string
		exit   int
		stderr string
		stdout string
		want   Category
	}{
		{"signalled", -9, "", "", Retryable},
		{"timeout stderr", 1, "Error: request Timed Out", "", Retryable},
		{"connection refused", 1, "dial tcp: connection refused", "", Retryable},
		{"rate limit stdout", 1, "", "429 rate limit exceeded", Retryable},
		{"context deadline", 1, "context deadline exceeded", "", Retryable},
		{"tls handshake", 1, "net/http: TLS handshake timeout", "", Retryable},
		{"chart missing", 1, "Error: chart not found", "", Fatal},
		{"plain failure", 2, "invalid values", "", Fatal},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Classify(tc.exit, tc.stderr, tc.stdout); got != tc.want {
				t.Errorf("Classify(%d, %q, %q) = %q, want %q", tc.exit, tc.stderr, tc.stdout, got, tc.want)
			}
		})
	}
}

func TestErrorDetailTruncated(t *testing.T) {
	long := strings.Repeat("x", 500)
	_, err := Run(context.Background(), fakeRunner(1, "", long), []string{"helm"}, "failed")
	var cmdErr *CommandError
	if !errors.As(err, &cmdErr) {
		t.Fatalf("Run() error = %v, want *CommandError", err)
	}
	if !strings.Contains(cmdErr.Error(), "...") {
		t.Errorf("Error() should truncate long detail: %q", cmdErr.Error())
	}
}
