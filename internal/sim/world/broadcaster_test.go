package world

import (
	"sync/atomic"
	"testing"
	"time"

	"grovecraft.io/internal/logging"
	"grovecraft.io/internal/protocol"
)

func TestBroadcaster_ExceptAndSendTo(t *testing.T) {
	b := NewBroadcaster(logging.Discard())
	outA, outB := make(chan []byte, 4), make(chan []byte, 4)
	b.Register("a", outA, nil)
	b.Register("b", outB, nil)

	b.Broadcast(protocol.LeaveMsg{Envelope: protocol.NewEnvelope(protocol.TypeLeave, "x")}, "a")
	if len(outA) != 0 || len(outB) != 1 {
		t.Fatalf("except ignored: a=%d b=%d", len(outA), len(outB))
	}
	if !b.SendTo("a", protocol.LeaveMsg{}) {
		t.Fatalf("SendTo a failed")
	}
	if b.SendTo("nobody", protocol.LeaveMsg{}) {
		t.Fatalf("SendTo unknown succeeded")
	}
	b.Unregister("a")
	if b.Count() != 1 {
		t.Fatalf("count: %d", b.Count())
	}
}

func TestBroadcaster_SlowConsumerFlaggedOnce(t *testing.T) {
	b := NewBroadcaster(logging.Discard())
	var slow atomic.Int32
	done := make(chan struct{}, 4)
	out := make(chan []byte, 1)
	b.Register("s", out, func() {
		slow.Add(1)
		done <- struct{}{}
	})
	fast := make(chan []byte, 8)
	b.Register("f", fast, nil)

	for i := 0; i < 5; i++ {
		b.BroadcastRaw([]byte(`{}`), "")
	}
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("onSlow not called")
	}
	time.Sleep(10 * time.Millisecond)
	if slow.Load() != 1 {
		t.Fatalf("onSlow called %d times", slow.Load())
	}
	if len(fast) != 5 {
		t.Fatalf("fast consumer got %d", len(fast))
	}
	st := b.Stats()
	if st.Sent != 6 || st.Dropped != 4 {
		t.Fatalf("stats: %+v", st)
	}
}
