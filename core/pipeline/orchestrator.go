package pipeline

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/vikramgaru01/back/core/infra/bus"
	"github.com/vikramgaru01/back/core/infra/config"
	"github.com/vikramgaru01/back/core/infra/logging"
	"github.com/vikramgaru01/back/core/infra/metrics"
	"github.com/vikramgaru01/back/core/registry"
)

const (
	// cleanupDelaySuccess and cleanupDelayFailure stagger workspace removal so
	// tool child processes release their handles first.
	cleanupDelaySuccess = 2 * time.Second
	cleanupDelayFailure = 1 * time.Second
)

// ArtifactStore persists a signed artifact and registers its metadata.
type ArtifactStore interface {
	Persist(ctx context.Context, ownerID, artifactID, signedPath string) (registry.Record, error)
}

// Orchestrator drives one artifact transformation end to end:
// unpack, patch, repack, sign, store.
type Orchestrator struct {
	sourcePath string
	workDir    string
	toolsDir   string
	tools      *config.ToolsConfig
	store      ArtifactStore
	janitor    *Janitor
	metrics    metrics.Metrics
	events     *bus.Publisher
}

// NewOrchestrator constructs the pipeline orchestrator. toolsDir is resolved
// to an absolute path so tool templates stay valid regardless of each
// invocation's working directory.
func NewOrchestrator(cfg *config.Config, tools *config.ToolsConfig, store ArtifactStore, janitor *Janitor, m metrics.Metrics, events *bus.Publisher) *Orchestrator {
	if m == nil {
		m = metrics.Noop{}
	}
	toolsDir := cfg.ToolsDir
	if abs, err := filepath.Abs(toolsDir); err == nil {
		toolsDir = abs
	}
	return &Orchestrator{
		sourcePath: cfg.SourceAPKPath,
		workDir:    cfg.WorkDir,
		toolsDir:   toolsDir,
		tools:      tools,
		store:      store,
		janitor:    janitor,
		metrics:    m,
		events:     events,
	}
}

// Run executes the full pipeline for one submission and returns the stored
// artifact's record. The returned error, when non-nil, is always a
// *StageError.
func (o *Orchestrator) Run(ctx context.Context, ownerID string, payload json.RawMessage) (registry.Record, error) {
	job := &Job{
		ID:         uuid.NewString(),
		OwnerID:    ownerID,
		ArtifactID: uuid.NewString(),
		State:      StateCreated,
		StartedAt:  time.Now(),
	}
	o.metrics.IncJobsStarted()
	logging.Info("pipeline", "job started", "job_id", job.ID, "owner_id", ownerID)

	rec, err := o.run(ctx, job, payload)
	job.FinishedAt = time.Now()
	if err != nil {
		job.State = StateFailed
		job.Err = classify(StageStore, err, ErrStorageFailed)
		o.metrics.IncJobsCompleted("failed")
		logging.Error("pipeline", "job failed", "job_id", job.ID, "stage", string(job.Err.Stage), "kind", job.Err.KindToken(), "error", err)
		o.publish(job, string(job.Err.Stage), "failed", job.Err)
		return registry.Record{}, job.Err
	}
	job.State = StateReady
	o.metrics.IncJobsCompleted("ready")
	logging.Info("pipeline", "job ready", "job_id", job.ID, "artifact_id", job.ArtifactID, "elapsed", job.FinishedAt.Sub(job.StartedAt).Round(time.Millisecond))
	o.publish(job, "", "ready", nil)
	return rec, nil
}

func (o *Orchestrator) run(ctx context.Context, job *Job, payload json.RawMessage) (registry.Record, error) {
	if _, err := os.Stat(o.sourcePath); err != nil {
		return registry.Record{}, &StageError{Stage: StageUnpack, Kind: ErrSourceMissing,
			Detail: "source artifact not found at " + o.sourcePath, Err: err}
	}

	ws, err := NewWorkspace(o.workDir)
	if err != nil {
		return registry.Record{}, &StageError{Stage: StageUnpack, Kind: ErrToolFailed, Detail: err.Error(), Err: err}
	}
	succeeded := false
	defer func() {
		delay := cleanupDelayFailure
		if succeeded {
			delay = cleanupDelaySuccess
		}
		if o.janitor != nil {
			o.janitor.Schedule(ws.Root, delay)
		} else {
			_ = ws.Destroy()
		}
	}()

	vars := map[string]string{
		"tools":  o.toolsDir,
		"source": o.sourcePath,
		"dest":   ws.Decoded,
		"dir":    ws.Decoded,
		"apk":    ws.RepackedPath(),
		"outdir": ws.SignedDir(),
	}

	if err := o.stage(ctx, job, StageUnpack, StateUnpacked, func() error {
		return RunTool(ctx, Invocation{
			Name:           string(StageUnpack),
			Command:        o.tools.Unpack.Command,
			Args:           config.ExpandArgs(o.tools.Unpack.Args, vars),
			Timeout:        o.tools.Unpack.Timeout(),
			MaxOutputBytes: o.tools.MaxOutputBytes,
		})
	}); err != nil {
		return registry.Record{}, err
	}

	if err := o.stage(ctx, job, StagePatch, StatePatched, func() error {
		return PatchConfig(ws.Decoded, payload)
	}); err != nil {
		return registry.Record{}, err
	}

	// Repack targets a fresh output path; apktool refuses to overwrite its
	// own input tree.
	vars["dest"] = ws.RepackedPath()
	if err := o.stage(ctx, job, StageRepack, StateRepacked, func() error {
		return RunTool(ctx, Invocation{
			Name:           string(StageRepack),
			Command:        o.tools.Repack.Command,
			Args:           config.ExpandArgs(o.tools.Repack.Args, vars),
			Timeout:        o.tools.Repack.Timeout(),
			MaxOutputBytes: o.tools.MaxOutputBytes,
		})
	}); err != nil {
		return registry.Record{}, err
	}

	signedPath := signedOutputPath(ws.SignedDir(), ws.RepackedPath())
	if err := o.stage(ctx, job, StageSign, StateSigned, func() error {
		if err := os.MkdirAll(ws.SignedDir(), 0o755); err != nil {
			return err
		}
		if err := RunTool(ctx, Invocation{
			Name:           string(StageSign),
			Command:        o.tools.Sign.Command,
			Args:           config.ExpandArgs(o.tools.Sign.Args, vars),
			Timeout:        o.tools.Sign.Timeout(),
			MaxOutputBytes: o.tools.MaxOutputBytes,
		}); err != nil {
			return err
		}
		if _, err := os.Stat(signedPath); err != nil {
			return &StageError{Stage: StageSign, Kind: ErrSignedArtifactMissing,
				Detail: "signer reported success but " + filepath.Base(signedPath) + " is absent", Err: err}
		}
		return nil
	}); err != nil {
		return registry.Record{}, err
	}

	var rec registry.Record
	if err := o.stage(ctx, job, StageStore, StateStored, func() error {
		var err error
		rec, err = o.store.Persist(ctx, job.OwnerID, job.ArtifactID, signedPath)
		return err
	}); err != nil {
		return registry.Record{}, err
	}

	succeeded = true
	return rec, nil
}

// stage runs one step with duration metrics and failure classification.
func (o *Orchestrator) stage(ctx context.Context, job *Job, stage Stage, next State, fn func() error) error {
	if err := ctx.Err(); err != nil {
		return classify(stage, err, ErrToolTimeout)
	}
	start := time.Now()
	err := fn()
	o.metrics.ObserveStageDuration(string(stage), time.Since(start).Seconds())
	if err != nil {
		se := classify(stage, err, kindFallback(stage))
		o.metrics.IncStageFailed(string(stage), se.KindToken())
		return se
	}
	job.State = next
	o.publish(job, string(stage), string(next), nil)
	return nil
}

func kindFallback(stage Stage) error {
	switch stage {
	case StagePatch:
		return ErrConfigInvalid
	case StageStore:
		return ErrStorageFailed
	}
	return ErrToolFailed
}

func (o *Orchestrator) publish(job *Job, stage, status string, se *StageError) {
	ev := bus.Event{
		JobID:      job.ID,
		OwnerID:    job.OwnerID,
		ArtifactID: job.ArtifactID,
		Stage:      stage,
		Status:     status,
	}
	if se != nil {
		ev.Kind = se.KindToken()
		ev.Detail = se.Detail
	}
	o.events.PublishJob(ev)
}

// signedOutputPath mirrors the signer's naming contract: for input x.apk the
// signed artifact lands at <outdir>/x-aligned-debugSigned.apk.
func signedOutputPath(outDir, inputAPK string) string {
	stem := strings.TrimSuffix(filepath.Base(inputAPK), filepath.Ext(inputAPK))
	return filepath.Join(outDir, stem+"-aligned-debugSigned.apk")
}
