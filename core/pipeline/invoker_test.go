package pipeline

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

func TestRunToolSuccess(t *testing.T) {
	err := RunTool(context.Background(), Invocation{
		Name:    "unpack",
		Command: "sh",
		Args:    []string{"-c", "exit 0"},
	})
	if err != nil {
		t.Fatalf("expected success, got %v", err)
	}
}

func TestRunToolExitFailure(t *testing.T) {
	err := RunTool(context.Background(), Invocation{
		Name:    "repack",
		Command: "sh",
		Args:    []string{"-c", "echo resource mangling failed >&2; exit 3"},
	})
	if !errors.Is(err, ErrToolFailed) {
		t.Fatalf("expected tool_failed, got %v", err)
	}
	var se *StageError
	if !errors.As(err, &se) {
		t.Fatalf("expected StageError, got %T", err)
	}
	if se.Stage != "repack" {
		t.Fatalf("unexpected stage: %s", se.Stage)
	}
	if !strings.Contains(se.Detail, "resource mangling failed") {
		t.Fatalf("expected stderr tail in detail, got %q", se.Detail)
	}
}

func TestRunToolUnavailable(t *testing.T) {
	err := RunTool(context.Background(), Invocation{
		Name:    "sign",
		Command: "definitely-not-a-real-binary-42",
	})
	if !errors.Is(err, ErrToolUnavailable) {
		t.Fatalf("expected tool_unavailable, got %v", err)
	}
}

func TestRunToolTimeout(t *testing.T) {
	start := time.Now()
	err := RunTool(context.Background(), Invocation{
		Name:    "unpack",
		Command: "sh",
		Args:    []string{"-c", "sleep 10"},
		Timeout: 100 * time.Millisecond,
	})
	if !errors.Is(err, ErrToolTimeout) {
		t.Fatalf("expected tool_timeout, got %v", err)
	}
	if elapsed := time.Since(start); elapsed > 5*time.Second {
		t.Fatalf("timeout not enforced, took %s", elapsed)
	}
}

func TestRunToolOutputOverflow(t *testing.T) {
	err := RunTool(context.Background(), Invocation{
		Name:           "repack",
		Command:        "sh",
		Args:           []string{"-c", "while :; do echo xxxxxxxxxxxxxxxx; done"},
		Timeout:        10 * time.Second,
		MaxOutputBytes: 2048,
	})
	if !errors.Is(err, ErrOutputOverflow) {
		t.Fatalf("expected output_overflow, got %v", err)
	}
}

func TestCapWriterTail(t *testing.T) {
	w := newCapWriter(1<<20, func() {})
	for i := 0; i < 100; i++ {
		if _, err := w.Write([]byte(strings.Repeat("a", 100))); err != nil {
			t.Fatalf("write: %v", err)
		}
	}
	if _, err := w.Write([]byte("the end")); err != nil {
		t.Fatalf("write: %v", err)
	}
	tail := w.tailString()
	if len(tail) > diagnosticTailLen {
		t.Fatalf("tail exceeds bound: %d", len(tail))
	}
	if !strings.HasSuffix(tail, "the end") {
		t.Fatalf("tail should keep the newest bytes")
	}
	if w.overflowed() {
		t.Fatalf("no overflow expected under budget")
	}
}
