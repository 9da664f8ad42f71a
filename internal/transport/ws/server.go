package ws

import (
	"context"
	"errors"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/sasha-s/go-deadlock"
	"github.com/sirupsen/logrus"

	"grovecraft.io/internal/logging"
	"grovecraft.io/internal/protocol"
	"grovecraft.io/internal/sim/tuning"
	"grovecraft.io/internal/sim/world"
)

type Config struct {
	JoinTimeout        time.Duration
	ClientTimeout      time.Duration
	OutboxSize         int
	RateLimitPerSec    float64
	RateLimitBurst     int
	RateViolationGrace time.Duration
}

func ConfigFromTuning(t tuning.Tuning) Config {
	return Config{
		JoinTimeout:        t.JoinTimeout,
		ClientTimeout:      t.ClientTimeout,
		OutboxSize:         t.OutboxSize,
		RateLimitPerSec:    t.RateLimitPerSec,
		RateLimitBurst:     t.RateLimitBurst,
		RateViolationGrace: t.RateViolationGrace,
	}
}

// SessionRecord describes one finished session.
type SessionRecord struct {
	SessionID string
	PlayerID  string
	Name      string
	Remote    string
	Opened    time.Time
	Closed    time.Time
	Reason    string
}

// SessionSink is told about every session that reached ACCEPTED once it
// closes. Implementations must not block.
type SessionSink interface {
	RecordSession(SessionRecord)
}

type Server struct {
	world *world.World
	cfg   Config
	log   logrus.FieldLogger
	sink  SessionSink

	upgrader websocket.Upgrader

	mu       deadlock.Mutex
	sessions map[string]*session
	closing  bool
	handlers sync.WaitGroup
}

func NewServer(w *world.World, cfg Config, logger logrus.FieldLogger, sink SessionSink) *Server {
	d := ConfigFromTuning(tuning.Defaults())
	if cfg.JoinTimeout <= 0 {
		cfg.JoinTimeout = d.JoinTimeout
	}
	if cfg.ClientTimeout <= 0 {
		cfg.ClientTimeout = d.ClientTimeout
	}
	if cfg.OutboxSize <= 0 {
		cfg.OutboxSize = d.OutboxSize
	}
	if cfg.RateLimitPerSec <= 0 {
		cfg.RateLimitPerSec = d.RateLimitPerSec
	}
	if cfg.RateLimitBurst <= 0 {
		cfg.RateLimitBurst = d.RateLimitBurst
	}
	return &Server{
		world:    w,
		cfg:      cfg,
		log:      logging.OrDiscard(logger).WithField("component", "ws"),
		sink:     sink,
		sessions: map[string]*session{},
		upgrader: websocket.Upgrader{
			ReadBufferSize:  64 * 1024,
			WriteBufferSize: 64 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true }, // dev default
		},
	}
}

// SessionInfo is the admin view of a live session.
type SessionInfo struct {
	SessionID string    `json:"session_id"`
	PlayerID  string    `json:"player_id,omitempty"`
	Name      string    `json:"name,omitempty"`
	State     string    `json:"state"`
	Remote    string    `json:"remote"`
	Opened    time.Time `json:"opened"`
}

func (s *Server) Sessions() []SessionInfo {
	s.mu.Lock()
	out := make([]SessionInfo, 0, len(s.sessions))
	for _, sess := range s.sessions {
		out = append(out, sess.info())
	}
	s.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].SessionID < out[j].SessionID })
	return out
}

func (s *Server) track(sess *session) {
	s.mu.Lock()
	s.sessions[sess.id] = sess
	s.mu.Unlock()
}

func (s *Server) untrack(sess *session) {
	s.mu.Lock()
	delete(s.sessions, sess.id)
	s.mu.Unlock()
}

// CloseAll refuses new connections and kicks every live session. Used on
// shutdown; Wait blocks until the kicked handlers have finished.
func (s *Server) CloseAll(reason string) {
	s.mu.Lock()
	s.closing = true
	all := make([]*session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		all = append(all, sess)
	}
	s.mu.Unlock()
	for _, sess := range all {
		sess.kick(protocol.ErrInternal, reason)
	}
}

// Wait blocks until every handler has run its cleanup (world leave and
// session record) or ctx ends.
func (s *Server) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.handlers.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Server) enter() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closing {
		return false
	}
	s.handlers.Add(1)
	return true
}

func (s *Server) Handler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		if !s.enter() {
			http.Error(rw, "server shutting down", http.StatusServiceUnavailable)
			return
		}
		defer s.handlers.Done()

		conn, err := s.upgrader.Upgrade(rw, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		conn.SetReadLimit(protocol.MaxMessageBytes)

		sess := newSession(uuid.NewString(), conn, r.RemoteAddr, s.cfg, s.log)
		s.track(sess)
		defer s.untrack(sess)
		defer sess.setState(StateClosed)

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		sess.cancel = cancel

		if !s.handshake(sess) {
			return
		}

		// Writer goroutine. ACCEPT has already been written, so everything
		// queued in the outbox since the snapshot follows it.
		go func() {
			for {
				select {
				case <-ctx.Done():
					return
				case b, ok := <-sess.out:
					if !ok {
						return
					}
					if err := sess.write(websocket.TextMessage, b); err != nil {
						cancel()
						_ = conn.Close()
						return
					}
				}
			}
		}()

		sess.setState(StateActive)
		reason := s.readLoop(ctx, sess)

		// Cleanup.
		sess.setState(StateDisconnecting)
		s.world.Leave(sess.playerID, reason)
		if s.sink != nil {
			s.sink.RecordSession(SessionRecord{
				SessionID: sess.id,
				PlayerID:  sess.playerID,
				Name:      sess.name,
				Remote:    sess.remote,
				Opened:    sess.opened,
				Closed:    time.Now(),
				Reason:    reason,
			})
		}
		sess.log.WithField("player", sess.playerID).WithField("reason", reason).Info("session closed")
	}
}

func (s *Server) handshake(sess *session) bool {
	_ = sess.conn.SetReadDeadline(time.Now().Add(s.cfg.JoinTimeout))
	_, raw, err := sess.conn.ReadMessage()
	if err != nil {
		sess.log.WithError(err).Debug("no JOIN")
		return false
	}
	m, err := protocol.Decode(raw)
	if err != nil {
		code := protocol.ErrProtoBadRequest
		if errors.Is(err, protocol.ErrVersion) {
			code = protocol.ErrProtoVersion
		}
		sess.log.WithError(err).Info("bad JOIN")
		sess.reject(code, err.Error())
		return false
	}
	join, ok := m.(*protocol.JoinMsg)
	if !ok {
		sess.reject(protocol.ErrProtoBadRequest, "expected JOIN")
		return false
	}

	sess.setIdentity("", join.Name)
	accept, err := s.world.Join(world.JoinRequest{
		SessionID: sess.id,
		Name:      join.Name,
		Out:       sess.out,
		Kick:      sess.kick,
	})
	if err != nil {
		code := protocol.ErrInternal
		var rej *world.Rejection
		if errors.As(err, &rej) {
			code = rej.Code
		}
		sess.log.WithError(err).Info("join refused")
		sess.reject(code, err.Error())
		return false
	}
	sess.setIdentity(accept.PlayerID, join.Name)

	raw, err = protocol.Encode(accept)
	if err != nil {
		s.world.Leave(accept.PlayerID, "internal")
		return false
	}
	if err := sess.write(websocket.TextMessage, raw); err != nil {
		s.world.Leave(accept.PlayerID, "write failed")
		return false
	}
	sess.setState(StateAccepted)
	return true
}

// readLoop handles inbound frames until the connection ends and returns the
// leave reason.
func (s *Server) readLoop(ctx context.Context, sess *session) string {
	for {
		select {
		case <-ctx.Done():
			return sess.closeReason("closed")
		default:
		}
		_ = sess.conn.SetReadDeadline(time.Now().Add(s.cfg.ClientTimeout))
		_, raw, err := sess.conn.ReadMessage()
		if err != nil {
			return sess.closeReason("disconnect")
		}
		s.world.Touch(sess.playerID)

		if !sess.admit(time.Now()) {
			if sess.State() == StateDisconnecting {
				return sess.closeReason("rate limit")
			}
			continue
		}

		m, err := protocol.Decode(raw)
		if err != nil {
			sess.log.WithError(err).Warn("protocol error")
			code := protocol.ErrProtoBadRequest
			if errors.Is(err, protocol.ErrVersion) {
				code = protocol.ErrProtoVersion
			}
			sess.kick(code, err.Error())
			return sess.closeReason("protocol error")
		}
		if leave := s.dispatch(sess, m); leave {
			return "leave"
		}
	}
}

// dispatch routes one decoded message. A panic in the handler is contained to
// this session.
func (s *Server) dispatch(sess *session, m protocol.Message) (leave bool) {
	defer func() {
		if r := recover(); r != nil {
			sess.log.WithField("panic", r).WithField("type", m.Header().Type).Error("handler panic")
			sess.kick(protocol.ErrInternal, "internal error")
		}
	}()
	id := sess.playerID
	switch m := m.(type) {
	case *protocol.LeaveMsg:
		return true
	case *protocol.HeartbeatMsg:
		s.world.Heartbeat(id, m)
	case *protocol.PongMsg:
		s.world.Pong(id, m)
	case *protocol.PlayerMoveMsg:
		_ = s.world.Move(id, m)
	case *protocol.AttackMsg:
		_ = s.world.Attack(id, m)
	case *protocol.PickupMsg:
		_ = s.world.Pickup(id, m)
	case *protocol.PlantMsg:
		_ = s.world.Plant(id, m)
	case *protocol.ConsumeMsg:
		_ = s.world.Consume(id, m)
	case *protocol.RegionRequestMsg:
		s.world.Region(id, m)
	case *protocol.JoinMsg:
		sess.log.Warn("duplicate JOIN")
		sess.kick(protocol.ErrProtoBadRequest, "already joined")
	default:
		sess.log.WithField("type", m.Header().Type).Warn("unhandled message")
	}
	return false
}
