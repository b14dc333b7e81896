// Package sandbox executes agent-authored scripts in an isolated child
// process under resource and surface limits. It reuses the teacher's
// aider.Spawner/aider.Bridge idea of a separate exec.Cmd with captured
// stdio, turned from "bridge a trusted CLI's I/O over NATS" into "run
// untrusted code under a deadline and report a structured result." The
// child is killed outright (SIGKILL) at the deadline or on a memory
// breach; there is no graceful SIGTERM phase and no PID-liveness probing.
package sandbox

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"syscall"
	"time"

	"github.com/d-o-hub/memcore/internal/config"
	"github.com/d-o-hub/memcore/internal/logging"
	"github.com/d-o-hub/memcore/internal/memcore"
)

const opExecute = "sandbox.Execute"

// Sandbox runs scripts under the configured resource and surface limits.
// A single Sandbox is safe for concurrent Execute calls; each call spawns
// its own child process.
type Sandbox struct {
	cfg config.SandboxConfig
	log logging.Logger
}

// New builds a Sandbox from cfg. log defaults to a no-op logger if nil.
func New(cfg config.SandboxConfig, log logging.Logger) *Sandbox {
	if log == nil {
		log = logging.Noop()
	}
	return &Sandbox{cfg: cfg, log: log}
}

// Execute runs code under the sandbox's interpreter, enforcing the
// pre-spawn static denial screen, a wall-clock timeout, and a
// best-effort memory limit. It never returns a nil Result: even a
// rejected or crashed execution gets a Result describing what happened.
func (s *Sandbox) Execute(ctx context.Context, code string) (*Result, error) {
	if len(code) > s.cfg.MaxCodeBytes {
		return &Result{Status: StatusSecurityViolation, DeniedPattern: "code_too_large"},
			memcore.NewSecurityViolation(opExecute, memcore.SecurityViolationTooLarge)
	}

	if s.cfg.DenyDangerousAPIs {
		if pattern := screenResult(code); pattern != "" {
			s.log.Warnw("sandbox rejected script pre-spawn", "pattern", pattern)
			return &Result{Status: StatusSecurityViolation, DeniedPattern: pattern},
				memcore.NewSecurityViolation(opExecute, memcore.SecurityViolationDeniedAPI)
		}
	}

	timeout := s.cfg.MaxExecutionTime
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	spawnCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(spawnCtx, s.cfg.Interpreter, "-c", code)
	cmd.Env = restrictedEnv(s.cfg.AllowedPaths)
	applyIsolation(cmd, s.cfg.BlockNetwork)

	maxOutput := s.cfg.MaxOutputBytes
	if maxOutput <= 0 {
		maxOutput = 1 * 1024 * 1024
	}
	stdout := &boundedBuffer{limit: maxOutput}
	stderr := &boundedBuffer{limit: maxOutput}
	cmd.Stdout = stdout
	cmd.Stderr = stderr

	start := time.Now()
	if err := cmd.Start(); err != nil {
		return &Result{Status: StatusError, Duration: time.Since(start)},
			fmt.Errorf("%s: spawn child: %w", opExecute, err)
	}

	var memExceeded bool
	stopWatch := watchMemory(cmd.Process.Pid, s.cfg.MaxMemoryBytes, func() {
		memExceeded = true
		_ = cmd.Process.Signal(syscall.SIGKILL)
	})

	waitErr := cmd.Wait()
	stopWatch()
	duration := time.Since(start)

	result := &Result{
		Stdout:    stdout.String(),
		Stderr:    stderr.String(),
		Duration:  duration,
		Truncated: stdout.Truncated() || stderr.Truncated(),
	}
	if cmd.ProcessState != nil {
		result.ExitStatus = cmd.ProcessState.ExitCode()
	}

	switch {
	case spawnCtx.Err() == context.DeadlineExceeded:
		result.Status = StatusTimeout
		return result, memcore.NewTimeout(opExecute)
	case memExceeded:
		result.Status = StatusError
		return result, memcore.NewResourceLimitExceeded(opExecute, "max_memory_bytes")
	case waitErr != nil:
		var exitErr *exec.ExitError
		if errors.As(waitErr, &exitErr) {
			result.ExitStatus = exitErr.ExitCode()
		}
		result.Status = StatusError
		return result, fmt.Errorf("%s: %w", opExecute, waitErr)
	}

	result.Status = StatusOK
	return result, nil
}

// restrictedEnv builds the child's environment: no inherited credentials
// or ambient configuration from the parent process, just the minimum a
// script interpreter needs plus the whitelist of allowed paths surfaced
// as an advisory env var the interpreter's own sandboxing (if any) can
// read.
func restrictedEnv(allowedPaths []string) []string {
	env := []string{"PATH=/usr/bin:/bin", "HOME=/nonexistent", "LANG=C"}
	if len(allowedPaths) > 0 {
		env = append(env, "SANDBOX_ALLOWED_PATHS="+joinPaths(allowedPaths))
	}
	return env
}

func joinPaths(paths []string) string {
	var buf bytes.Buffer
	for i, p := range paths {
		if i > 0 {
			buf.WriteByte(':')
		}
		buf.WriteString(p)
	}
	return buf.String()
}
