package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/vikramgaru01/back/core/infra/config"
	"github.com/vikramgaru01/back/core/infra/metrics"
	"github.com/vikramgaru01/back/core/registry"
)

// fakeStore records Persist calls and checks the signed artifact exists at
// persist time.
type fakeStore struct {
	mu         sync.Mutex
	t          *testing.T
	persisted  []string
	failAlways bool
}

func (f *fakeStore) Persist(ctx context.Context, ownerID, artifactID, signedPath string) (registry.Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failAlways {
		return registry.Record{}, ErrStorageFailed
	}
	if _, err := os.Stat(signedPath); err != nil {
		f.t.Errorf("signed artifact missing at persist time: %v", err)
	}
	f.persisted = append(f.persisted, artifactID)
	return registry.Record{
		ArtifactID: artifactID,
		OwnerID:    ownerID,
		FileName:   ownerID + "_" + artifactID + ".apk",
	}, nil
}

// stubTools wires shell one-liners in place of apktool and the signer.
func stubTools() *config.ToolsConfig {
	return &config.ToolsConfig{
		Unpack: config.ToolSpec{
			Command: "sh",
			Args: []string{"-c",
				"mkdir -p {dest}/assets/flutter_assets/assets && printf '{\"appName\":\"stock\"}' > {dest}/assets/flutter_assets/assets/config.json"},
		},
		Repack: config.ToolSpec{
			Command: "sh",
			Args:    []string{"-c", "echo rebuilt > {dest}"},
		},
		Sign: config.ToolSpec{
			Command: "sh",
			Args:    []string{"-c", "cp {apk} {outdir}/repacked-aligned-debugSigned.apk"},
		},
		MaxOutputBytes: 10 << 20,
	}
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	src := filepath.Join(t.TempDir(), "release.apk")
	if err := os.WriteFile(src, []byte("apk bytes"), 0o644); err != nil {
		t.Fatalf("write source: %v", err)
	}
	return &config.Config{
		SourceAPKPath: src,
		WorkDir:       t.TempDir(),
		ToolsDir:      "tools",
	}
}

func TestOrchestratorHappyPath(t *testing.T) {
	cfg := testConfig(t)
	store := &fakeStore{t: t}
	o := NewOrchestrator(cfg, stubTools(), store, nil, metrics.Noop{}, nil)

	rec, err := o.Run(context.Background(), "alice", json.RawMessage(`{"appName":"custom"}`))
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if rec.OwnerID != "alice" || rec.ArtifactID == "" {
		t.Fatalf("unexpected record: %+v", rec)
	}
	if len(store.persisted) != 1 {
		t.Fatalf("expected one persisted artifact, got %d", len(store.persisted))
	}

	// Workspace is gone once Run returns (no janitor means inline destroy).
	entries, err := os.ReadDir(cfg.WorkDir)
	if err != nil {
		t.Fatalf("read work dir: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("workspace leaked: %v", entries)
	}
}

func TestOrchestratorSourceMissing(t *testing.T) {
	cfg := testConfig(t)
	cfg.SourceAPKPath = filepath.Join(cfg.WorkDir, "nope.apk")
	o := NewOrchestrator(cfg, stubTools(), &fakeStore{t: t}, nil, metrics.Noop{}, nil)

	_, err := o.Run(context.Background(), "alice", json.RawMessage(`{}`))
	if !errors.Is(err, ErrSourceMissing) {
		t.Fatalf("expected source_artifact_missing, got %v", err)
	}
}

func TestOrchestratorConfigNotFound(t *testing.T) {
	cfg := testConfig(t)
	tools := stubTools()
	// Unpack that produces a tree without the embedded config.
	tools.Unpack.Args = []string{"-c", "mkdir -p {dest}/assets"}
	o := NewOrchestrator(cfg, tools, &fakeStore{t: t}, nil, metrics.Noop{}, nil)

	_, err := o.Run(context.Background(), "alice", json.RawMessage(`{}`))
	if !errors.Is(err, ErrConfigNotFound) {
		t.Fatalf("expected config_not_found, got %v", err)
	}
	var se *StageError
	if !errors.As(err, &se) || se.Stage != StagePatch {
		t.Fatalf("expected patch stage failure, got %v", err)
	}
}

func TestOrchestratorSignedArtifactMissing(t *testing.T) {
	cfg := testConfig(t)
	tools := stubTools()
	// Signer that exits 0 without producing the expected file name.
	tools.Sign.Args = []string{"-c", "exit 0"}
	o := NewOrchestrator(cfg, tools, &fakeStore{t: t}, nil, metrics.Noop{}, nil)

	_, err := o.Run(context.Background(), "alice", json.RawMessage(`{}`))
	if !errors.Is(err, ErrSignedArtifactMissing) {
		t.Fatalf("expected signed_artifact_missing, got %v", err)
	}
}

func TestOrchestratorToolFailureStopsPipeline(t *testing.T) {
	cfg := testConfig(t)
	tools := stubTools()
	tools.Repack.Args = []string{"-c", "echo broken resources >&2; exit 1"}
	store := &fakeStore{t: t}
	o := NewOrchestrator(cfg, tools, store, nil, metrics.Noop{}, nil)

	_, err := o.Run(context.Background(), "alice", json.RawMessage(`{}`))
	if !errors.Is(err, ErrToolFailed) {
		t.Fatalf("expected tool_failed, got %v", err)
	}
	if len(store.persisted) != 0 {
		t.Fatalf("nothing should be persisted after repack failure")
	}
}

func TestOrchestratorStoreFailure(t *testing.T) {
	cfg := testConfig(t)
	o := NewOrchestrator(cfg, stubTools(), &fakeStore{t: t, failAlways: true}, nil, metrics.Noop{}, nil)

	_, err := o.Run(context.Background(), "alice", json.RawMessage(`{}`))
	if !errors.Is(err, ErrStorageFailed) {
		t.Fatalf("expected storage_failed, got %v", err)
	}
	var se *StageError
	if !errors.As(err, &se) || se.Stage != StageStore {
		t.Fatalf("expected store stage failure, got %v", err)
	}
}

func TestSignedOutputPath(t *testing.T) {
	got := signedOutputPath("/tmp/out", "/tmp/ws/repacked.apk")
	want := filepath.Join("/tmp/out", "repacked-aligned-debugSigned.apk")
	if got != want {
		t.Fatalf("got %s want %s", got, want)
	}
}
