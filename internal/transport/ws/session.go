package ws

import (
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"grovecraft.io/internal/protocol"
)

// State is the lifecycle of one connection:
// CONNECTING -> ACCEPTED -> ACTIVE <-> RATE_LIMITED -> DISCONNECTING -> CLOSED.
type State int32

const (
	StateConnecting State = iota
	StateAccepted
	StateActive
	StateRateLimited
	StateDisconnecting
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "CONNECTING"
	case StateAccepted:
		return "ACCEPTED"
	case StateActive:
		return "ACTIVE"
	case StateRateLimited:
		return "RATE_LIMITED"
	case StateDisconnecting:
		return "DISCONNECTING"
	case StateClosed:
		return "CLOSED"
	}
	return "UNKNOWN"
}

type session struct {
	id     string
	conn   *websocket.Conn
	remote string
	opened time.Time
	out    chan []byte
	log    logrus.FieldLogger
	cancel func()

	state   atomic.Int32
	writeMu sync.Mutex

	limiter      *rate.Limiter
	grace        time.Duration
	limitedSince time.Time

	kickOnce sync.Once

	// mu guards the fields below, which the admin endpoint reads.
	mu       sync.Mutex
	playerID string
	name     string
	reason   string
}

func newSession(id string, conn *websocket.Conn, remote string, cfg Config, log logrus.FieldLogger) *session {
	return &session{
		id:      id,
		conn:    conn,
		remote:  remote,
		opened:  time.Now(),
		out:     make(chan []byte, cfg.OutboxSize),
		log:     log.WithField("session", id),
		limiter: rate.NewLimiter(rate.Limit(cfg.RateLimitPerSec), cfg.RateLimitBurst),
		grace:   cfg.RateViolationGrace,
	}
}

func (s *session) State() State { return State(s.state.Load()) }

func (s *session) setState(st State) {
	prev := State(s.state.Swap(int32(st)))
	if prev != st {
		s.log.WithField("from", prev).WithField("to", st).Debug("session state")
	}
}

func (s *session) setIdentity(playerID, name string) {
	s.mu.Lock()
	s.playerID, s.name = playerID, name
	s.mu.Unlock()
}

func (s *session) info() SessionInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	return SessionInfo{
		SessionID: s.id,
		PlayerID:  s.playerID,
		Name:      s.name,
		State:     s.State().String(),
		Remote:    s.remote,
		Opened:    s.opened,
	}
}

// admit applies the inbound rate limit. Excess frames are dropped; a session
// that stays over the limit for longer than the grace period is kicked.
func (s *session) admit(now time.Time) bool {
	if s.limiter.AllowN(now, 1) {
		if s.State() == StateRateLimited {
			s.setState(StateActive)
		}
		return true
	}
	if s.State() != StateRateLimited {
		s.limitedSince = now
		s.setState(StateRateLimited)
		s.log.Warn("rate limited")
	}
	if now.Sub(s.limitedSince) > s.grace {
		s.kick(protocol.ErrRateLimit, "sustained rate limit violation")
		s.setState(StateDisconnecting)
	}
	return false
}

func (s *session) write(typ int, b []byte) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	_ = s.conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	return s.conn.WriteMessage(typ, b)
}

// reject sends REJECT and closes. Used before the session is accepted.
func (s *session) reject(code, reason string) {
	s.writeRejectAndClose(code, reason)
}

// kick ends an accepted session with code. It never blocks the caller.
func (s *session) kick(code, reason string) {
	s.kickOnce.Do(func() {
		s.mu.Lock()
		s.reason = code
		s.mu.Unlock()
		s.setState(StateDisconnecting)
		go s.writeRejectAndClose(code, reason)
	})
}

func (s *session) writeRejectAndClose(code, reason string) {
	raw, _ := json.Marshal(protocol.RejectMsg{
		Envelope: protocol.NewEnvelope(protocol.TypeReject, protocol.ServerSenderID),
		Code:     code,
		Reason:   reason,
	})
	_ = s.write(websocket.TextMessage, raw)
	closeCode := websocket.ClosePolicyViolation
	if code == protocol.ErrInternal || code == protocol.ErrServerFull {
		closeCode = websocket.CloseTryAgainLater
	}
	_ = s.conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(closeCode, code), time.Now().Add(time.Second))
	if s.cancel != nil {
		s.cancel()
	}
	_ = s.conn.Close()
}

// closeReason prefers the kick code over the generic fallback.
func (s *session) closeReason(fallback string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.reason != "" {
		return s.reason
	}
	return fallback
}
