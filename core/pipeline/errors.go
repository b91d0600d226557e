package pipeline

import (
	"errors"
	"fmt"
)

var (
	// ErrSourceMissing indicates the original APK is absent.
	ErrSourceMissing = errors.New("source_artifact_missing")
	// ErrToolUnavailable indicates a required external tool was not found.
	ErrToolUnavailable = errors.New("tool_unavailable")
	// ErrToolTimeout indicates an external tool exceeded its stage timeout.
	ErrToolTimeout = errors.New("tool_timeout")
	// ErrToolFailed indicates an external tool exited non-zero.
	ErrToolFailed = errors.New("tool_failed")
	// ErrOutputOverflow indicates a tool exceeded the combined output cap.
	ErrOutputOverflow = errors.New("output_overflow")
	// ErrConfigNotFound indicates the unpacked tree lacks the config file.
	ErrConfigNotFound = errors.New("config_not_found")
	// ErrConfigInvalid indicates the config file or payload is not valid JSON.
	ErrConfigInvalid = errors.New("config_invalid")
	// ErrSignedArtifactMissing indicates the signer reported success but the
	// expected output file is absent (tool-contract mismatch).
	ErrSignedArtifactMissing = errors.New("signed_artifact_missing")
	// ErrStorageFailed indicates both persistence tiers failed.
	ErrStorageFailed = errors.New("storage_failed")
)

// kinds lists every classification sentinel for detection.
var kinds = []error{
	ErrSourceMissing,
	ErrToolUnavailable,
	ErrToolTimeout,
	ErrToolFailed,
	ErrOutputOverflow,
	ErrConfigNotFound,
	ErrConfigInvalid,
	ErrSignedArtifactMissing,
	ErrStorageFailed,
}

// StageError is a classified pipeline failure: which stage failed, which
// taxonomy kind it maps to, and a human-readable detail.
type StageError struct {
	Stage  Stage
	Kind   error
	Detail string
	Err    error
}

func (e *StageError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%s: %s: %s", e.Stage, e.Kind, e.Detail)
	}
	return fmt.Sprintf("%s: %s", e.Stage, e.Kind)
}

func (e *StageError) Unwrap() []error {
	out := []error{e.Kind}
	if e.Err != nil {
		out = append(out, e.Err)
	}
	return out
}

// KindToken returns the machine-readable kind (e.g. "tool_timeout").
func (e *StageError) KindToken() string {
	return e.Kind.Error()
}

// ClientFault reports whether the failure is a fix-your-input error rather
// than an infrastructure problem.
func (e *StageError) ClientFault() bool {
	switch e.Kind {
	case ErrSourceMissing, ErrConfigNotFound, ErrConfigInvalid:
		return true
	}
	return false
}

// classify wraps err into a StageError, detecting an embedded kind or
// falling back to the given default.
func classify(stage Stage, err error, fallback error) *StageError {
	var se *StageError
	if errors.As(err, &se) {
		return se
	}
	kind := fallback
	for _, k := range kinds {
		if errors.Is(err, k) {
			kind = k
			break
		}
	}
	return &StageError{Stage: stage, Kind: kind, Detail: err.Error(), Err: err}
}
