package pipeline

import (
	"errors"
	"fmt"
	"testing"
)

func TestStageErrorUnwrap(t *testing.T) {
	inner := fmt.Errorf("exit status 1")
	se := &StageError{Stage: StageRepack, Kind: ErrToolFailed, Detail: "boom", Err: inner}

	if !errors.Is(se, ErrToolFailed) {
		t.Fatalf("expected ErrToolFailed in chain")
	}
	if !errors.Is(se, inner) {
		t.Fatalf("expected inner error in chain")
	}
	if errors.Is(se, ErrToolTimeout) {
		t.Fatalf("unexpected kind match")
	}
	if se.KindToken() != "tool_failed" {
		t.Fatalf("unexpected kind token: %s", se.KindToken())
	}
}

func TestClassifyDetectsEmbeddedKind(t *testing.T) {
	wrapped := fmt.Errorf("stage: %w", ErrConfigNotFound)
	se := classify(StagePatch, wrapped, ErrToolFailed)
	if se.Kind != ErrConfigNotFound {
		t.Fatalf("expected config_not_found, got %v", se.Kind)
	}

	se = classify(StagePatch, fmt.Errorf("mystery"), ErrConfigInvalid)
	if se.Kind != ErrConfigInvalid {
		t.Fatalf("expected fallback kind, got %v", se.Kind)
	}
}

func TestClassifyPassesThroughStageError(t *testing.T) {
	orig := &StageError{Stage: StageSign, Kind: ErrSignedArtifactMissing}
	se := classify(StageStore, fmt.Errorf("wrap: %w", orig), ErrStorageFailed)
	if se != orig {
		t.Fatalf("expected original StageError to survive classification")
	}
}

func TestClientFault(t *testing.T) {
	cases := []struct {
		kind error
		want bool
	}{
		{ErrSourceMissing, true},
		{ErrConfigNotFound, true},
		{ErrConfigInvalid, true},
		{ErrToolFailed, false},
		{ErrStorageFailed, false},
	}
	for _, tc := range cases {
		se := &StageError{Stage: StagePatch, Kind: tc.kind}
		if se.ClientFault() != tc.want {
			t.Errorf("%v: expected client fault %v", tc.kind, tc.want)
		}
	}
}
