package client

import (
	"testing"
	"time"
)

func TestClientCloseWithoutStart(t *testing.T) {
	c := New(Config{URL: "ws://127.0.0.1:1/v1/ws"})
	done := make(chan struct{})
	go func() {
		c.Close()
		c.Close()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("Close blocked on a client that never started")
	}
	// Start after Close must not launch a run loop.
	c.Start()
}
