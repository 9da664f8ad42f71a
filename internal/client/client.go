package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"grovecraft.io/internal/logging"
	"grovecraft.io/internal/protocol"
)

var ErrClosed = errors.New("client: closed")

type Config struct {
	URL     string
	Name    string
	Replica ReplicaConfig
	// Presenter receives entity lifecycle callbacks from Frame.
	Presenter Presenter
	Log       logrus.FieldLogger
}

// Client keeps one websocket session to the server alive and feeds a Replica.
// A dropped connection is redialed with exponential backoff; every successful
// JOIN rebuilds the replica from ACCEPT.
type Client struct {
	cfg     Config
	log     logrus.FieldLogger
	replica *Replica

	startOnce sync.Once
	closeOnce sync.Once
	stop      chan struct{}
	done      chan struct{}
	joined    chan struct{}
	joinOnce  sync.Once

	mu        sync.RWMutex
	conn      *websocket.Conn
	connected bool
	lastErr   error

	writeMu sync.Mutex
}

func New(cfg Config) *Client {
	if cfg.Name == "" {
		cfg.Name = "player"
	}
	log := logging.OrDiscard(cfg.Log).WithField("component", "client")
	c := &Client{
		cfg:    cfg,
		log:    log,
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
		joined: make(chan struct{}),
	}
	c.replica = NewReplica(cfg.Replica, cfg.Presenter, c.send, log)
	return c
}

func (c *Client) Replica() *Replica { return c.replica }

func (c *Client) Start() {
	c.startOnce.Do(func() {
		go c.run()
	})
}

// WaitJoined blocks until the first ACCEPT has been applied.
func (c *Client) WaitJoined(ctx context.Context) error {
	select {
	case <-c.joined:
		return nil
	case <-c.done:
		c.mu.RLock()
		defer c.mu.RUnlock()
		if c.lastErr != nil {
			return c.lastErr
		}
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Client) Connected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.connected
}

func (c *Client) Close() {
	c.closeOnce.Do(func() {
		// A client that never started has no run loop to close done.
		c.startOnce.Do(func() { close(c.done) })
		close(c.stop)
		c.replica.Leave()
		c.disconnect()
		<-c.done
	})
}

func (c *Client) disconnect() {
	c.mu.Lock()
	conn := c.conn
	c.conn = nil
	c.connected = false
	c.mu.Unlock()
	if conn != nil {
		_ = conn.Close()
	}
}

func (c *Client) send(msg any) {
	c.mu.RLock()
	conn := c.conn
	c.mu.RUnlock()
	if conn == nil {
		return
	}
	if err := c.write(conn, msg); err != nil {
		c.log.WithError(err).Debug("write failed")
		_ = conn.Close()
	}
}

func (c *Client) write(conn *websocket.Conn, msg any) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	return conn.WriteJSON(msg)
}

// fatalError ends the reconnect loop.
type fatalError struct{ err error }

func (e fatalError) Error() string { return e.err.Error() }
func (e fatalError) Unwrap() error { return e.err }

func (c *Client) run() {
	defer close(c.done)

	backoff := 200 * time.Millisecond
	for {
		select {
		case <-c.stop:
			c.disconnect()
			return
		default:
		}

		err := c.connectAndReadLoop()
		if err == nil {
			return
		}
		c.mu.Lock()
		c.connected = false
		c.lastErr = err
		c.mu.Unlock()
		var fatal fatalError
		if errors.As(err, &fatal) {
			c.log.WithError(err).Error("giving up")
			return
		}
		c.log.WithError(err).WithField("backoff", backoff).Warn("connection lost")
		select {
		case <-c.stop:
			c.disconnect()
			return
		case <-time.After(backoff):
		}
		if backoff < 5*time.Second {
			backoff *= 2
			if backoff > 5*time.Second {
				backoff = 5 * time.Second
			}
		}
	}
}

func (c *Client) connectAndReadLoop() error {
	d := websocket.Dialer{HandshakeTimeout: 5 * time.Second}
	conn, resp, err := d.Dial(c.cfg.URL, http.Header{})
	if err != nil {
		return err
	}
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}

	join := protocol.JoinMsg{
		Envelope: protocol.NewEnvelope(protocol.TypeJoin, ""),
		Name:     c.cfg.Name,
	}
	if err := c.write(conn, join); err != nil {
		_ = conn.Close()
		return err
	}

	// The first reply is ACCEPT or REJECT.
	_ = conn.SetReadDeadline(time.Now().Add(10 * time.Second))
	_, raw, err := conn.ReadMessage()
	if err != nil {
		_ = conn.Close()
		return err
	}
	base, err := protocol.DecodeBase(raw)
	if err != nil {
		_ = conn.Close()
		return err
	}
	switch base.Type {
	case protocol.TypeAccept:
		if err := c.replica.Apply(raw); err != nil {
			_ = conn.Close()
			return fatalError{err}
		}
	case protocol.TypeReject:
		_ = conn.Close()
		var rej protocol.RejectMsg
		_ = json.Unmarshal(raw, &rej)
		err := fmt.Errorf("join rejected: %s: %s", rej.Code, rej.Reason)
		if rej.Code == protocol.ErrProtoVersion {
			return fatalError{err}
		}
		return err
	default:
		_ = conn.Close()
		return fmt.Errorf("unexpected %s before ACCEPT", base.Type)
	}

	c.mu.Lock()
	c.conn = conn
	c.connected = true
	c.lastErr = nil
	c.mu.Unlock()
	c.joinOnce.Do(func() { close(c.joined) })
	c.log.WithField("player_id", c.replica.LocalID()).Info("joined")

	hbStop := make(chan struct{})
	defer close(hbStop)
	go c.heartbeat(hbStop)

	timeout := time.Duration(c.replica.Params().ClientTimeout) * time.Millisecond
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	for {
		select {
		case <-c.stop:
			_ = conn.Close()
			return nil
		default:
		}
		_ = conn.SetReadDeadline(time.Now().Add(timeout))
		_, raw, err := conn.ReadMessage()
		if err != nil {
			c.disconnect()
			select {
			case <-c.stop:
				return nil
			default:
			}
			return err
		}
		if err := c.replica.Apply(raw); err != nil {
			c.log.WithError(err).Warn("apply failed")
		}
	}
}

func (c *Client) heartbeat(stop <-chan struct{}) {
	every := time.Duration(c.replica.Params().HeartbeatMS) * time.Millisecond
	if every <= 0 {
		every = 5 * time.Second
	}
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-stop:
			return
		case <-c.stop:
			return
		case <-t.C:
			c.replica.Heartbeat()
		}
	}
}
