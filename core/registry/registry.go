// Package registry persists artifact metadata: one record per customized
// APK, keyed by owner and artifact id, with a fixed expiry set at creation.
package registry

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned for missing or expired records.
var ErrNotFound = errors.New("record_not_found")

// Record is the persisted metadata for one stored artifact.
type Record struct {
	ArtifactID  string    `json:"artifact_id"`
	OwnerID     string    `json:"owner_id"`
	FileName    string    `json:"file_name"`
	MirrorURL   string    `json:"mirror_url,omitempty"`
	DownloadURL string    `json:"download_url"`
	CreatedAt   time.Time `json:"created_at"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// Expired reports whether the record's TTL has passed at the given instant.
func (r Record) Expired(now time.Time) bool {
	return !r.ExpiresAt.IsZero() && now.After(r.ExpiresAt)
}

// Registry is the durable metadata store contract.
type Registry interface {
	Put(ctx context.Context, rec Record) error
	// Get returns a live record; expired-but-unswept records behave as absent.
	Get(ctx context.Context, ownerID, artifactID string) (Record, error)
	// Find resolves a record by artifact id alone. This scans the expiry
	// index across owners and is intended for the low-frequency
	// download-by-id and administrative delete paths.
	Find(ctx context.Context, artifactID string) (Record, error)
	ListByOwner(ctx context.Context, ownerID string) ([]Record, error)
	Delete(ctx context.Context, ownerID, artifactID string) error
	// ListExpired returns records whose expiry has passed. Records whose
	// metadata is already gone are returned with only owner and artifact id
	// populated so the caller can clear the index entry.
	ListExpired(ctx context.Context, now time.Time, limit int64) ([]Record, error)
	Close() error
}
