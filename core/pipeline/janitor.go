package pipeline

import (
	"os"
	"sync"
	"time"

	"github.com/vikramgaru01/back/core/infra/logging"
	"github.com/vikramgaru01/back/core/infra/metrics"
)

const retryDelay = 5 * time.Second

// Janitor removes job workspaces off the request path. Removal is delayed so
// tool child processes can fully release their handles, and retried once when
// the tree is still busy.
type Janitor struct {
	metrics    metrics.Metrics
	retryAfter time.Duration

	wg   sync.WaitGroup
	done chan struct{}
}

// NewJanitor constructs a janitor.
func NewJanitor(m metrics.Metrics) *Janitor {
	if m == nil {
		m = metrics.Noop{}
	}
	return &Janitor{metrics: m, retryAfter: retryDelay, done: make(chan struct{})}
}

// Schedule queues path for removal after delay. Non-blocking.
func (j *Janitor) Schedule(path string, delay time.Duration) {
	if path == "" {
		return
	}
	j.wg.Add(1)
	go func() {
		defer j.wg.Done()
		j.reclaim(path, delay)
	}()
}

func (j *Janitor) reclaim(path string, delay time.Duration) {
	if !j.sleep(delay) {
		// Shutting down; remove immediately rather than leak the tree.
		_ = os.RemoveAll(path)
		return
	}
	if err := os.RemoveAll(path); err == nil {
		j.metrics.IncWorkspacesReclaimed("ok")
		return
	}
	if !j.sleep(j.retryAfter) {
		_ = os.RemoveAll(path)
		return
	}
	if err := os.RemoveAll(path); err != nil {
		logging.Warn("janitor", "workspace removal failed", "path", path, "error", err)
		j.metrics.IncWorkspacesReclaimed("failed")
		return
	}
	j.metrics.IncWorkspacesReclaimed("retried")
}

// sleep waits for d or shutdown; reports false when shutting down.
func (j *Janitor) sleep(d time.Duration) bool {
	if d <= 0 {
		return true
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-j.done:
		return false
	}
}

// Close stops waiting on pending delays and drains in-flight removals.
func (j *Janitor) Close() {
	close(j.done)
	j.wg.Wait()
}
