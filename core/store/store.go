// Package store persists signed artifacts across two tiers: the local
// artifact directory (authoritative) and an optional remote HTTP mirror
// (best-effort). Metadata lives in the registry.
package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/vikramgaru01/back/core/infra/logging"
	"github.com/vikramgaru01/back/core/infra/metrics"
	"github.com/vikramgaru01/back/core/registry"
)

// Recorder is the slice of the registry the store needs.
type Recorder interface {
	Put(ctx context.Context, rec registry.Record) error
	Delete(ctx context.Context, ownerID, artifactID string) error
}

// Store is the two-tier artifact store.
type Store struct {
	dir     string
	mirror  *Mirror
	reg     Recorder
	ttl     time.Duration
	metrics metrics.Metrics
}

// New constructs a store rooted at dir. mirror may be nil.
func New(dir string, mirror *Mirror, reg Recorder, ttl time.Duration, m metrics.Metrics) *Store {
	if ttl <= 0 {
		ttl = time.Hour
	}
	if m == nil {
		m = metrics.Noop{}
	}
	return &Store{dir: dir, mirror: mirror, reg: reg, ttl: ttl, metrics: m}
}

// Persist copies the signed artifact into the local tier, mirrors it
// best-effort, and registers the metadata record. The local copy and the
// registry write must both succeed; a mirror failure only loses the
// redirect optimization.
func (s *Store) Persist(ctx context.Context, ownerID, artifactID, signedPath string) (registry.Record, error) {
	name := fileName(ownerID, artifactID)
	localPath, err := copyFile(signedPath, s.dir, name)
	if err != nil {
		return registry.Record{}, fmt.Errorf("local tier: %w", err)
	}

	mirrorURL := ""
	if s.mirror.Enabled() {
		mirrorURL, err = s.upload(ctx, localPath, name)
		if err != nil {
			logging.Warn("store", "mirror upload failed, serving locally", "file", name, "error", err)
			s.metrics.IncMirrorUploads("failed")
			mirrorURL = ""
		} else {
			s.metrics.IncMirrorUploads("ok")
		}
	}

	now := time.Now().UTC()
	rec := registry.Record{
		ArtifactID:  artifactID,
		OwnerID:     ownerID,
		FileName:    name,
		MirrorURL:   mirrorURL,
		DownloadURL: "/api/apks/" + artifactID + "/download",
		CreatedAt:   now,
		ExpiresAt:   now.Add(s.ttl),
	}
	if err := s.reg.Put(ctx, rec); err != nil {
		// A record nobody can look up is dead weight; drop the bytes too.
		_ = os.Remove(localPath)
		if mirrorURL != "" {
			_ = s.mirror.Delete(ctx, name)
		}
		return registry.Record{}, fmt.Errorf("register artifact: %w", err)
	}
	logging.Info("store", "artifact persisted", "file", name, "mirrored", mirrorURL != "", "expires_at", rec.ExpiresAt.Format(time.RFC3339))
	return rec, nil
}

func (s *Store) upload(ctx context.Context, localPath, name string) (string, error) {
	f, err := os.Open(localPath)
	if err != nil {
		return "", err
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		return "", err
	}
	return s.mirror.Upload(ctx, name, f, info.Size())
}

// Open returns the local artifact file for streaming. The caller closes it.
func (s *Store) Open(rec registry.Record) (*os.File, error) {
	if rec.FileName == "" {
		return nil, os.ErrNotExist
	}
	return os.Open(filepath.Join(s.dir, rec.FileName))
}

// Remove reclaims the artifact bytes from both tiers, leaving the record
// alone. Missing files are fine; the sweeper may race a manual delete.
func (s *Store) Remove(ctx context.Context, rec registry.Record) error {
	if rec.FileName == "" {
		return nil
	}
	if err := os.Remove(filepath.Join(s.dir, rec.FileName)); err != nil && !os.IsNotExist(err) {
		return err
	}
	if s.mirror.Enabled() {
		if err := s.mirror.Delete(ctx, rec.FileName); err != nil {
			logging.Warn("store", "mirror delete failed", "file", rec.FileName, "error", err)
		}
	}
	return nil
}

// Delete removes the record and then the bytes.
func (s *Store) Delete(ctx context.Context, rec registry.Record) error {
	if err := s.reg.Delete(ctx, rec.OwnerID, rec.ArtifactID); err != nil {
		return err
	}
	return s.Remove(ctx, rec)
}
