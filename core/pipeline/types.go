package pipeline

import "time"

// Stage identifies a pipeline step for logging, metrics, and errors.
type Stage string

const (
	StageUnpack  Stage = "unpack"
	StagePatch   Stage = "patch"
	StageRepack  Stage = "repack"
	StageSign    Stage = "sign"
	StageStore   Stage = "store"
	StageCleanup Stage = "cleanup"
)

// State is the lifecycle position of a job.
type State string

const (
	StateCreated  State = "created"
	StateUnpacked State = "unpacked"
	StatePatched  State = "patched"
	StateRepacked State = "repacked"
	StateSigned   State = "signed"
	StateStored   State = "stored"
	StateReady    State = "ready"
	StateFailed   State = "failed"
)

// Job tracks one transformation run from submission to terminal state.
type Job struct {
	ID         string
	OwnerID    string
	ArtifactID string
	State      State
	StartedAt  time.Time
	FinishedAt time.Time
	Err        *StageError
}

// Succeeded reports whether the job reached the ready state.
func (j *Job) Succeeded() bool { return j.State == StateReady }
