// Package bus publishes job lifecycle events over NATS for external
// observers (dashboards, audit pipelines). Publishing is best-effort and
// never blocks or fails a pipeline run; a nil Publisher is a no-op.
package bus

import (
	"encoding/json"
	"log"
	"time"

	"github.com/nats-io/nats.go"
)

const (
	// SubjectJobs is the subject prefix for job lifecycle events.
	SubjectJobs = "apk.jobs"
	// SubjectSweep is the subject for sweep summaries.
	SubjectSweep = "apk.sweep"
)

// Event describes one job lifecycle transition.
type Event struct {
	JobID      string    `json:"job_id"`
	OwnerID    string    `json:"owner_id,omitempty"`
	Stage      string    `json:"stage,omitempty"`
	Status     string    `json:"status"`
	Kind       string    `json:"kind,omitempty"`
	Detail     string    `json:"detail,omitempty"`
	ArtifactID string    `json:"artifact_id,omitempty"`
	At         time.Time `json:"at"`
}

// SweepEvent summarizes one sweeper pass.
type SweepEvent struct {
	Removed int       `json:"removed"`
	At      time.Time `json:"at"`
}

// Publisher is a thin wrapper over a NATS connection that speaks JSON events.
type Publisher struct {
	nc *nats.Conn
}

// Connect dials NATS at the provided URL. An empty URL disables events and
// returns a nil publisher.
func Connect(url string) (*Publisher, error) {
	if url == "" {
		return nil, nil
	}
	opts := []nats.Option{
		nats.Name("back-events"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2 * time.Second),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			log.Printf("[BUS] disconnected from NATS: %v", err)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Printf("[BUS] reconnected to NATS at %s", nc.ConnectedUrl())
		}),
		nats.ClosedHandler(func(nc *nats.Conn) {
			log.Printf("[BUS] connection closed")
		}),
	}
	nc, err := nats.Connect(url, opts...)
	if err != nil {
		return nil, err
	}
	return &Publisher{nc: nc}, nil
}

// Close shuts down the underlying NATS connection.
func (p *Publisher) Close() {
	if p != nil && p.nc != nil {
		p.nc.Close()
	}
}

// IsConnected reports the connection state.
func (p *Publisher) IsConnected() bool {
	return p != nil && p.nc != nil && p.nc.IsConnected()
}

// PublishJob emits a job lifecycle event on apk.jobs.<status>.
func (p *Publisher) PublishJob(ev Event) {
	if p == nil || p.nc == nil {
		return
	}
	if ev.At.IsZero() {
		ev.At = time.Now().UTC()
	}
	p.publish(SubjectJobs+"."+ev.Status, ev)
}

// PublishSweep emits a sweep summary event.
func (p *Publisher) PublishSweep(ev SweepEvent) {
	if p == nil || p.nc == nil {
		return
	}
	if ev.At.IsZero() {
		ev.At = time.Now().UTC()
	}
	p.publish(SubjectSweep, ev)
}

func (p *Publisher) publish(subject string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		log.Printf("[BUS] marshal event: %v", err)
		return
	}
	if err := p.nc.Publish(subject, data); err != nil {
		log.Printf("[BUS] publish %s: %v", subject, err)
	}
}
