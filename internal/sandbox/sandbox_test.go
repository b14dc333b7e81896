package sandbox

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/d-o-hub/memcore/internal/config"
	"github.com/d-o-hub/memcore/internal/memcore"
)

func testConfig() config.SandboxConfig {
	return config.SandboxConfig{
		MaxCodeBytes:      4096,
		MaxExecutionTime:  2 * time.Second,
		MaxMemoryBytes:    256 * 1024 * 1024,
		MaxCPUPercent:     100,
		Interpreter:       "/bin/sh",
		BlockNetwork:      false,
		DenyDangerousAPIs: true,
		MaxOutputBytes:    4096,
	}
}

func TestExecuteSuccessReturnsStdoutAndOKStatus(t *testing.T) {
	sb := New(testConfig(), nil)
	result, err := sb.Execute(context.Background(), "echo hello")
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if result.Status != StatusOK {
		t.Errorf("expected StatusOK, got %s", result.Status)
	}
	if !strings.Contains(result.Stdout, "hello") {
		t.Errorf("expected stdout to contain 'hello', got %q", result.Stdout)
	}
	if result.ExitStatus != 0 {
		t.Errorf("expected exit status 0, got %d", result.ExitStatus)
	}
}

func TestExecuteNonZeroExitReturnsErrorStatus(t *testing.T) {
	sb := New(testConfig(), nil)
	result, err := sb.Execute(context.Background(), "exit 7")
	if err == nil {
		t.Fatal("expected a non-zero exit to surface an error")
	}
	if result.Status != StatusError {
		t.Errorf("expected StatusError, got %s", result.Status)
	}
	if result.ExitStatus != 7 {
		t.Errorf("expected exit status 7, got %d", result.ExitStatus)
	}
}

func TestExecuteRejectsOversizedCodePreSpawn(t *testing.T) {
	cfg := testConfig()
	cfg.MaxCodeBytes = 4
	sb := New(cfg, nil)
	result, err := sb.Execute(context.Background(), "echo this is way too long")
	if err == nil {
		t.Fatal("expected oversized code to be rejected")
	}
	if result.Status != StatusSecurityViolation || result.DeniedPattern != "code_too_large" {
		t.Errorf("expected a code_too_large security violation, got %+v", result)
	}
	if !memcore.IsKind(err, memcore.KindSecurityViolation) {
		t.Errorf("expected a SecurityViolation error kind, got %v", err)
	}
}

func TestExecuteRejectsDeniedAPIPatternPreSpawn(t *testing.T) {
	sb := New(testConfig(), nil)
	result, err := sb.Execute(context.Background(), "subprocess.run(['ls'])")
	if err == nil {
		t.Fatal("expected a denied API pattern to be rejected")
	}
	if result.Status != StatusSecurityViolation || result.DeniedPattern != "process_spawn" {
		t.Errorf("expected a process_spawn security violation, got %+v", result)
	}
}

func TestExecuteAllowsDeniedPatternWhenScreeningDisabled(t *testing.T) {
	cfg := testConfig()
	cfg.DenyDangerousAPIs = false
	sb := New(cfg, nil)
	// sh doesn't understand this as Python, but with screening disabled
	// the pattern itself must not cause a pre-spawn rejection.
	result, _ := sb.Execute(context.Background(), "echo 'subprocess.run(x)'")
	if result.Status == StatusSecurityViolation {
		t.Error("expected screening to be skipped when DenyDangerousAPIs is false")
	}
}

func TestExecuteTimesOutOnSlowScript(t *testing.T) {
	cfg := testConfig()
	cfg.MaxExecutionTime = 100 * time.Millisecond
	sb := New(cfg, nil)

	result, err := sb.Execute(context.Background(), "sleep 5")
	if err == nil {
		t.Fatal("expected the slow script to time out")
	}
	if result.Status != StatusTimeout {
		t.Errorf("expected StatusTimeout, got %s", result.Status)
	}
	if !errors.Is(err, memcore.NewTimeout("")) {
		t.Errorf("expected a Timeout error kind, got %v", err)
	}
}

func TestExecuteTruncatesOutputAtConfiguredLimit(t *testing.T) {
	cfg := testConfig()
	cfg.MaxOutputBytes = 8
	sb := New(cfg, nil)

	result, err := sb.Execute(context.Background(), "echo 0123456789abcdef")
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if len(result.Stdout) > 8 {
		t.Errorf("expected stdout bounded to 8 bytes, got %d bytes", len(result.Stdout))
	}
	if !result.Truncated {
		t.Error("expected Truncated to be reported true")
	}
}

func TestExecuteRunsUnderParentContextCancellation(t *testing.T) {
	sb := New(testConfig(), nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result, err := sb.Execute(ctx, "echo hi")
	if err == nil {
		t.Fatal("expected execution to fail when the parent context is already canceled")
	}
	if result == nil {
		t.Fatal("expected a non-nil result even on a pre-canceled context")
	}
}
