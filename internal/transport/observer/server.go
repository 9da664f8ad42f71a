package observer

import (
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"grovecraft.io/internal/logging"
	"grovecraft.io/internal/observerproto"
	"grovecraft.io/internal/sim/world"
)

// Server streams every world broadcast to loopback spectators. Spectators
// never act and do not count against participant capacity.
type Server struct {
	world *world.World
	log   logrus.FieldLogger

	upgrader   websocket.Upgrader
	nextID     atomic.Uint64
	outboxSize int
}

func NewServer(w *world.World, logger logrus.FieldLogger) *Server {
	return &Server{
		world:      w,
		log:        logging.OrDiscard(logger).WithField("component", "observer"),
		outboxSize: 1024,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  16 * 1024,
			WriteBufferSize: 64 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

func (s *Server) BootstrapHandler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			rw.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		if !isLoopbackRemote(r.RemoteAddr) {
			http.Error(rw, "forbidden", http.StatusForbidden)
			return
		}
		m := s.world.Metrics()
		resp := observerproto.BootstrapResponse{
			ProtocolVersion: observerproto.Version,
			WorldID:         s.world.ID(),
			Tick:            s.world.Tick(),
			Params:          s.world.Params(),
			Participants:    m.Participants,
			Observers:       s.world.ObserverCount(),
		}
		rw.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(rw).Encode(resp)
	}
}

func (s *Server) WSHandler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		if !isLoopbackRemote(r.RemoteAddr) {
			http.Error(rw, "forbidden", http.StatusForbidden)
			return
		}

		conn, err := s.upgrader.Upgrade(rw, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var sub observerproto.SubscribeMsg
		if err := json.Unmarshal(msg, &sub); err != nil {
			closeWith(conn, websocket.ClosePolicyViolation, "bad subscribe")
			return
		}
		if sub.Type != observerproto.TypeSubscribe || sub.ProtocolVersion != observerproto.Version {
			closeWith(conn, websocket.ClosePolicyViolation, "expected SUBSCRIBE")
			return
		}

		id := fmt.Sprintf("o%d", s.nextID.Add(1))
		log := s.log.WithField("observer", id)
		out := make(chan []byte, s.outboxSize)
		slow := make(chan struct{})
		var slowOnce atomic.Bool
		snap := s.world.Observe(id, out, sub.X, sub.Y, sub.Radius, func() {
			if slowOnce.CompareAndSwap(false, true) {
				close(slow)
			}
		})
		defer s.world.Unobserve(id)

		if err := writeJSON(conn, snap); err != nil {
			return
		}

		// The reader only watches for close; spectators send nothing else.
		readDone := make(chan struct{})
		go func() {
			defer close(readDone)
			_ = conn.SetReadDeadline(time.Time{})
			for {
				if _, _, err := conn.ReadMessage(); err != nil {
					return
				}
			}
		}()

		for {
			select {
			case <-readDone:
				return
			case <-slow:
				log.Warn("spectator too slow")
				closeWith(conn, websocket.CloseTryAgainLater, "slow consumer")
				return
			case b := <-out:
				_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
				if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
					return
				}
			}
		}
	}
}

func writeJSON(conn *websocket.Conn, v any) error {
	_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	return conn.WriteJSON(v)
}

func closeWith(conn *websocket.Conn, code int, text string) {
	_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, text), time.Now().Add(time.Second))
}

func isLoopbackRemote(remoteAddr string) bool {
	host := remoteAddr
	if h, _, err := net.SplitHostPort(remoteAddr); err == nil {
		host = h
	}
	host = strings.TrimPrefix(host, "[")
	host = strings.TrimSuffix(host, "]")
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
