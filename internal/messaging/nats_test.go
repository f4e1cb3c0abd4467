package messaging

import (
	"errors"
	"sync"
	"testing"
	"time"
)

// newTestClient connects to a local NATS server. Tests are skipped if
// unavailable.
func newTestClient(t *testing.T) *NATSClient {
	t.Helper()
	cfg := DefaultNATSConfig()
	cfg.Name = "roommates-test"
	cfg.MaxReconnects = 0

	c, err := NewNATSClient(cfg)
	if err != nil {
		t.Skipf("skipping: NATS not available: %v", err)
	}
	t.Cleanup(c.Close)
	return c
}

func TestRequestReply(t *testing.T) {
	c := newTestClient(t)

	subject := "roommates.test.echo"
	if err := c.Respond(subject, func(data []byte) []byte {
		return append([]byte("echo:"), data...)
	}); err != nil {
		t.Fatalf("Respond() error: %v", err)
	}

	reply, err := c.Request(subject, []byte("hi"), time.Second)
	if err != nil {
		t.Fatalf("Request() error: %v", err)
	}
	if string(reply) != "echo:hi" {
		t.Errorf("expected %q, got %q", "echo:hi", reply)
	}
}

func TestRequest_NoResponders(t *testing.T) {
	c := newTestClient(t)

	_, err := c.Request("roommates.test.nobody", []byte("x"), 500*time.Millisecond)
	if !errors.Is(err, ErrNoResponders) {
		t.Errorf("expected ErrNoResponders, got %v", err)
	}
}

func TestSubscribePublish(t *testing.T) {
	c := newTestClient(t)

	var wg sync.WaitGroup
	wg.Add(1)
	var got []byte
	subject := "roommates.test.event"
	if err := c.Subscribe(subject, func(data []byte) {
		got = data
		wg.Done()
	}); err != nil {
		t.Fatalf("Subscribe() error: %v", err)
	}

	if err := c.Publish(subject, []byte("ping")); err != nil {
		t.Fatalf("Publish() error: %v", err)
	}

	done := make(chan struct{})
	go func() { wg.Wait(); close(done) }()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
	}
	if string(got) != "ping" {
		t.Errorf("expected %q, got %q", "ping", got)
	}

	if err := c.Unsubscribe(subject); err != nil {
		t.Errorf("Unsubscribe() error: %v", err)
	}
	if err := c.Unsubscribe(subject); err == nil {
		t.Error("expected error unsubscribing twice")
	}
}
