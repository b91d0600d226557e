package bus

import "testing"

func TestNilPublisherIsNoop(t *testing.T) {
	var p *Publisher
	p.PublishJob(Event{JobID: "job-1", Status: "ready"})
	p.PublishSweep(SweepEvent{Removed: 2})
	p.Close()
	if p.IsConnected() {
		t.Fatalf("nil publisher should not report connected")
	}
}

func TestConnectEmptyURLDisabled(t *testing.T) {
	p, err := Connect("")
	if err != nil {
		t.Fatalf("empty url should not error: %v", err)
	}
	if p != nil {
		t.Fatalf("expected nil publisher for empty url")
	}
}

func TestConnectUnreachable(t *testing.T) {
	if _, err := Connect("nats://127.0.0.1:1"); err == nil {
		t.Fatalf("expected connection error")
	}
}
