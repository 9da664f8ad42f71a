package worldtest

import (
	"math/rand"
	"sync"
	"testing"
	"time"

	"grovecraft.io/internal/client"
	"grovecraft.io/internal/protocol"
	"grovecraft.io/internal/sim/world"
)

// Clock is a manually advanced time source shared by the world and tests.
type Clock struct {
	mu  sync.Mutex
	now time.Time
}

func NewClock() *Clock { return &Clock{now: time.Unix(1_700_000_000, 0)} }

func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// Harness drives a world through its exported session operations. Each Peer
// stands in for one connected session: its outbox feeds a client Replica and
// the replica's outbound messages are decoded with protocol.Decode and
// dispatched back into the world.
type Harness struct {
	T     *testing.T
	W     *world.World
	Clock *Clock

	peers []*Peer
}

type Peer struct {
	h       *Harness
	ID      string
	Out     chan []byte
	Replica *client.Replica

	mu     sync.Mutex
	kicks  []string
	raw    []string // types seen by Sync, in order
	errors []error
}

// NewHarness builds a world with a deterministic drop source.
func NewHarness(t *testing.T, cfg world.Config) *Harness {
	t.Helper()
	clock := NewClock()
	w := world.New(cfg, world.Options{
		Rand: rand.New(rand.NewSource(cfg.Seed)),
		Now:  clock.Now,
	})
	return &Harness{T: t, W: w, Clock: clock}
}

// Config returns the default world configuration for tests.
func Config(seed int64) world.Config {
	cfg := world.DefaultConfig()
	cfg.Seed = seed
	return cfg
}

func (h *Harness) Join(name string) *Peer {
	h.T.Helper()
	p, err := h.TryJoin(name)
	if err != nil {
		h.T.Fatalf("join %s: %v", name, err)
	}
	return p
}

func (h *Harness) TryJoin(name string) (*Peer, error) {
	h.T.Helper()
	p := &Peer{h: h, Out: make(chan []byte, 1<<14)}
	accept, err := h.W.Join(world.JoinRequest{
		SessionID: "s-" + name,
		Name:      name,
		Out:       p.Out,
		Kick: func(code, reason string) {
			p.mu.Lock()
			p.kicks = append(p.kicks, code)
			p.mu.Unlock()
		},
	})
	if err != nil {
		return nil, err
	}
	p.ID = accept.PlayerID
	p.Replica = client.NewReplica(client.ReplicaConfig{}, nil, p.dispatch, nil)
	raw, err := protocol.Encode(accept)
	if err != nil {
		h.T.Fatalf("encode accept: %v", err)
	}
	if err := p.Replica.Apply(raw); err != nil {
		h.T.Fatalf("apply accept: %v", err)
	}
	h.peers = append(h.peers, p)
	return p, nil
}

// Step advances the world n frames and syncs every peer afterwards.
func (h *Harness) Step(n int) {
	for i := 0; i < n; i++ {
		h.W.StepOnce()
	}
	h.Sync()
}

// Sync drains every peer outbox into its replica, repeating until quiet so
// replies (PONG) and their consequences settle.
func (h *Harness) Sync() {
	for {
		moved := 0
		for _, p := range h.peers {
			moved += p.Sync()
		}
		if moved == 0 {
			return
		}
	}
}

// Sync applies everything queued in the outbox and reports how many messages
// it consumed.
func (p *Peer) Sync() int {
	n := 0
	for {
		select {
		case raw := <-p.Out:
			n++
			base, err := protocol.DecodeBase(raw)
			p.mu.Lock()
			if err == nil {
				p.raw = append(p.raw, base.Type)
			}
			p.mu.Unlock()
			if err := p.Replica.Apply(raw); err != nil {
				p.mu.Lock()
				p.errors = append(p.errors, err)
				p.mu.Unlock()
			}
		default:
			return n
		}
	}
}

// Seen returns the message types applied so far, in arrival order.
func (p *Peer) Seen() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.raw...)
}

func (p *Peer) Kicks() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.kicks...)
}

func (p *Peer) Errors() []error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]error(nil), p.errors...)
}

// dispatch sends one replica message through the wire codec into the world,
// as a session goroutine would.
func (p *Peer) dispatch(msg any) {
	t := p.h.T
	raw, err := protocol.Encode(msg)
	if err != nil {
		t.Errorf("encode: %v", err)
		return
	}
	m, err := protocol.Decode(raw)
	if err != nil {
		t.Errorf("decode %s: %v", raw, err)
		return
	}
	w := p.h.W
	w.Touch(p.ID)
	switch m := m.(type) {
	case *protocol.PlayerMoveMsg:
		_ = w.Move(p.ID, m)
	case *protocol.AttackMsg:
		_ = w.Attack(p.ID, m)
	case *protocol.PickupMsg:
		_ = w.Pickup(p.ID, m)
	case *protocol.PlantMsg:
		_ = w.Plant(p.ID, m)
	case *protocol.ConsumeMsg:
		_ = w.Consume(p.ID, m)
	case *protocol.HeartbeatMsg:
		w.Heartbeat(p.ID, m)
	case *protocol.PongMsg:
		w.Pong(p.ID, m)
	case *protocol.RegionRequestMsg:
		w.Region(p.ID, m)
	case *protocol.LeaveMsg:
		w.Leave(p.ID, "leave")
	default:
		t.Errorf("unexpected client message %T", m)
	}
}
