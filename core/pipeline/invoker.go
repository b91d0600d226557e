package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"sync"
	"time"

	"github.com/vikramgaru01/back/core/infra/logging"
)

const (
	defaultToolTimeout = 5 * time.Minute
	defaultOutputCap   = 10 << 20
	diagnosticTailLen  = 4096
)

// Invocation describes one external tool run.
type Invocation struct {
	Name           string // stage label for logs and errors
	Command        string
	Args           []string
	Dir            string
	Timeout        time.Duration
	MaxOutputBytes int64
}

// capWriter enforces a byte budget shared across stdout and stderr and keeps
// a bounded tail for diagnostics. On overflow it cancels the tool's context.
type capWriter struct {
	mu       sync.Mutex
	remain   int64
	tail     []byte
	overflow bool
	cancel   context.CancelFunc
}

func newCapWriter(budget int64, cancel context.CancelFunc) *capWriter {
	return &capWriter{remain: budget, cancel: cancel}
}

func (w *capWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.remain -= int64(len(p))
	if w.remain < 0 && !w.overflow {
		w.overflow = true
		w.cancel()
	}
	w.tail = append(w.tail, p...)
	if len(w.tail) > diagnosticTailLen {
		w.tail = w.tail[len(w.tail)-diagnosticTailLen:]
	}
	// Report success even past the cap so the process dies from the
	// cancelled context rather than a broken pipe.
	return len(p), nil
}

func (w *capWriter) overflowed() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.overflow
}

func (w *capWriter) tailString() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return string(w.tail)
}

// RunTool executes one external tool with timeout and output-cap enforcement,
// returning a classified StageError on failure.
func RunTool(ctx context.Context, inv Invocation) error {
	timeout := inv.Timeout
	if timeout <= 0 {
		timeout = defaultToolTimeout
	}
	budget := inv.MaxOutputBytes
	if budget <= 0 {
		budget = defaultOutputCap
	}

	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	out := newCapWriter(budget, cancel)
	cmd := exec.CommandContext(runCtx, inv.Command, inv.Args...)
	cmd.Dir = inv.Dir
	cmd.Stdout = out
	cmd.Stderr = out

	stage := Stage(inv.Name)
	start := time.Now()
	err := cmd.Run()
	elapsed := time.Since(start)
	if err == nil {
		logging.Info("invoker", "tool completed", "stage", inv.Name, "command", inv.Command, "elapsed", elapsed.Round(time.Millisecond))
		return nil
	}

	logging.Warn("invoker", "tool failed", "stage", inv.Name, "command", inv.Command, "elapsed", elapsed.Round(time.Millisecond), "error", err)
	switch {
	case out.overflowed():
		return &StageError{Stage: stage, Kind: ErrOutputOverflow,
			Detail: fmt.Sprintf("%s produced more than %d bytes of output", inv.Command, budget), Err: err}
	case errors.Is(runCtx.Err(), context.DeadlineExceeded):
		return &StageError{Stage: stage, Kind: ErrToolTimeout,
			Detail: fmt.Sprintf("%s exceeded %s", inv.Command, timeout), Err: err}
	case errors.Is(err, exec.ErrNotFound):
		return &StageError{Stage: stage, Kind: ErrToolUnavailable,
			Detail: fmt.Sprintf("%s not found in PATH", inv.Command), Err: err}
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return &StageError{Stage: stage, Kind: ErrToolFailed,
			Detail: fmt.Sprintf("%s exited %d: %s", inv.Command, exitErr.ExitCode(), out.tailString()), Err: err}
	}
	return &StageError{Stage: stage, Kind: ErrToolFailed, Detail: err.Error(), Err: err}
}
