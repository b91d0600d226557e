package registry

import (
	"context"
	"errors"
	"time"

	"github.com/vikramgaru01/back/core/infra/bus"
	"github.com/vikramgaru01/back/core/infra/logging"
	"github.com/vikramgaru01/back/core/infra/metrics"
)

const (
	sweepLockKey  = "apk:sweep:lock"
	sweepLockTTL  = 5 * time.Minute
	sweepBatchLen = 200
)

// ByteReclaimer removes the stored bytes backing a record.
type ByteReclaimer interface {
	Remove(ctx context.Context, rec Record) error
}

// Sweeper periodically removes expired records and reclaims their bytes,
// independent of request handling.
type Sweeper struct {
	reg      *RedisRegistry
	store    ByteReclaimer
	interval time.Duration
	metrics  metrics.Metrics
	events   *bus.Publisher
}

// NewSweeper constructs a sweeper. store may be nil when only metadata
// should be reclaimed.
func NewSweeper(reg *RedisRegistry, store ByteReclaimer, interval time.Duration, m metrics.Metrics, events *bus.Publisher) *Sweeper {
	if interval <= 0 {
		interval = 10 * time.Minute
	}
	if m == nil {
		m = metrics.Noop{}
	}
	return &Sweeper{reg: reg, store: store, interval: interval, metrics: m, events: events}
}

// Start runs the sweep loop until the context is cancelled.
func (s *Sweeper) Start(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

func (s *Sweeper) tick(ctx context.Context) {
	// Single-flight across replicas; a missed tick is retried next interval.
	acquired, err := s.reg.TryAcquireLock(ctx, sweepLockKey, sweepLockTTL)
	if err != nil {
		logging.Error("sweeper", "acquire lock", "error", err)
		return
	}
	if !acquired {
		return
	}
	defer func() {
		if err := s.reg.ReleaseLock(ctx, sweepLockKey); err != nil {
			logging.Warn("sweeper", "release lock", "error", err)
		}
	}()

	removed, err := s.Sweep(ctx)
	if err != nil {
		logging.Error("sweeper", "sweep failed", "error", err)
		return
	}
	if removed > 0 {
		logging.Info("sweeper", "expired artifacts reclaimed", "count", removed)
		s.events.PublishSweep(bus.SweepEvent{Removed: removed})
	}
}

// Sweep removes every expired record once. Safe to call concurrently with
// Put/Get; running it twice in a row removes nothing the second time.
func (s *Sweeper) Sweep(ctx context.Context) (int, error) {
	removed := 0
	for {
		records, err := s.reg.ListExpired(ctx, time.Now(), sweepBatchLen)
		if err != nil {
			return removed, err
		}
		if len(records) == 0 {
			break
		}
		progressed := 0
		for _, rec := range records {
			if s.store != nil && rec.FileName != "" {
				if err := s.store.Remove(ctx, rec); err != nil {
					logging.Warn("sweeper", "reclaim bytes", "artifact_id", rec.ArtifactID, "error", err)
				}
			}
			if err := s.reg.Delete(ctx, rec.OwnerID, rec.ArtifactID); err != nil && !errors.Is(err, ErrNotFound) {
				logging.Error("sweeper", "delete record", "artifact_id", rec.ArtifactID, "error", err)
				continue
			}
			removed++
			progressed++
		}
		if progressed == 0 || len(records) < sweepBatchLen {
			break
		}
	}
	if removed > 0 {
		s.metrics.IncRecordsSwept(removed)
	}
	return removed, nil
}
