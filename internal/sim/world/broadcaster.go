package world

import (
	"encoding/json"
	"sync/atomic"

	"github.com/sasha-s/go-deadlock"
	"github.com/sirupsen/logrus"
)

type subscriber struct {
	id     string
	out    chan []byte
	onSlow func()
	slow   atomic.Bool
}

// Broadcaster fans messages out to registered session outboxes. Sends never
// block: a session whose outbox is full is flagged as a slow consumer,
// handed to its onSlow callback once, and skipped.
type Broadcaster struct {
	log logrus.FieldLogger

	mu   deadlock.RWMutex
	subs map[string]*subscriber

	sent    atomic.Uint64
	dropped atomic.Uint64
}

func NewBroadcaster(log logrus.FieldLogger) *Broadcaster {
	return &Broadcaster{log: log, subs: map[string]*subscriber{}}
}

// Register adds an outbox under id, replacing any previous one.
func (b *Broadcaster) Register(id string, out chan []byte, onSlow func()) {
	b.mu.Lock()
	b.subs[id] = &subscriber{id: id, out: out, onSlow: onSlow}
	b.mu.Unlock()
}

func (b *Broadcaster) Unregister(id string) {
	b.mu.Lock()
	delete(b.subs, id)
	b.mu.Unlock()
}

func (b *Broadcaster) Count() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

func (b *Broadcaster) snapshot() []*subscriber {
	b.mu.RLock()
	out := make([]*subscriber, 0, len(b.subs))
	for _, s := range b.subs {
		out = append(out, s)
	}
	b.mu.RUnlock()
	return out
}

// Broadcast marshals msg once and offers it to every outbox except the one
// registered under except ("" excludes nobody).
func (b *Broadcaster) Broadcast(msg any, except string) {
	raw, err := json.Marshal(msg)
	if err != nil {
		b.log.WithError(err).Error("broadcast marshal")
		return
	}
	b.BroadcastRaw(raw, except)
}

func (b *Broadcaster) BroadcastRaw(raw []byte, except string) {
	for _, s := range b.snapshot() {
		if s.id == except {
			continue
		}
		b.offer(s, raw)
	}
}

// SendTo delivers msg to a single outbox. It reports false when id is not
// registered or its outbox is full.
func (b *Broadcaster) SendTo(id string, msg any) bool {
	b.mu.RLock()
	s := b.subs[id]
	b.mu.RUnlock()
	if s == nil {
		return false
	}
	raw, err := json.Marshal(msg)
	if err != nil {
		b.log.WithError(err).Error("send marshal")
		return false
	}
	return b.offer(s, raw)
}

func (b *Broadcaster) offer(s *subscriber, raw []byte) bool {
	if s.slow.Load() {
		b.dropped.Add(1)
		return false
	}
	select {
	case s.out <- raw:
		b.sent.Add(1)
		return true
	default:
	}
	b.dropped.Add(1)
	if s.slow.CompareAndSwap(false, true) {
		b.log.WithField("session", s.id).Warn("outbox full; dropping slow consumer")
		if s.onSlow != nil {
			go s.onSlow()
		}
	}
	return false
}

type BroadcastStats struct {
	Sent    uint64 `json:"sent"`
	Dropped uint64 `json:"dropped"`
}

func (b *Broadcaster) Stats() BroadcastStats {
	return BroadcastStats{Sent: b.sent.Load(), Dropped: b.dropped.Load()}
}
