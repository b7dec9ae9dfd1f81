// Package conn maintains the station's WebSocket link to the relay server:
// dialing, heartbeats, and bounded exponential reconnect.
package conn

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/gorilla/websocket"

	"github.com/peanut-b/QueuMaster-Pro-Enterprise/internal/protocol"
)

// Connection lifecycle states, surfaced through the status callback.
const (
	StatusConnecting   = "connecting"
	StatusConnected    = "connected"
	StatusDisconnected = "disconnected"
	StatusFailed       = "failed"
)

const (
	defaultHeartbeat     = 30 * time.Second
	defaultMaxAttempts   = 10
	defaultRetryInterval = time.Second
	writeWait            = 10 * time.Second
)

// ErrNotConnected is returned by Send while the link is down.
var ErrNotConnected = errors.New("conn: not connected")

// Handler receives every decoded message from the relay.
type Handler func(protocol.Message)

// Config carries the supervisor knobs. Zero values pick the defaults above.
type Config struct {
	URL           string
	Heartbeat     time.Duration
	MaxAttempts   int
	RetryInterval time.Duration
	OnStatus      func(status string)
}

// Supervisor owns one relay connection. Reconnects are automatic with
// exponential backoff until MaxAttempts is exhausted, after which the
// supervisor goes terminal FAILED and waits for an explicit Retry.
type Supervisor struct {
	cfg     Config
	handler Handler

	retryCh chan struct{}

	mu       sync.Mutex
	writeMu  sync.Mutex
	ws       *websocket.Conn
	status   string
	attempts int
}

func New(cfg Config, handler Handler) *Supervisor {
	if cfg.Heartbeat <= 0 {
		cfg.Heartbeat = defaultHeartbeat
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = defaultMaxAttempts
	}
	if cfg.RetryInterval <= 0 {
		cfg.RetryInterval = defaultRetryInterval
	}
	return &Supervisor{
		cfg:     cfg,
		handler: handler,
		retryCh: make(chan struct{}, 1),
		status:  StatusDisconnected,
	}
}

// Start runs the connect loop until ctx is cancelled.
func (s *Supervisor) Start(ctx context.Context) {
	go s.run(ctx)
}

func (s *Supervisor) run(ctx context.Context) {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = s.cfg.RetryInterval
	bo.Multiplier = 1.5
	bo.RandomizationFactor = 0
	bo.MaxInterval = 30 * time.Second

	for {
		if ctx.Err() != nil {
			return
		}
		s.setStatus(StatusConnecting)

		ws, _, err := websocket.DefaultDialer.DialContext(ctx, s.cfg.URL, nil)
		if err != nil {
			s.mu.Lock()
			s.attempts++
			attempts := s.attempts
			s.mu.Unlock()

			if attempts >= s.cfg.MaxAttempts {
				log.Printf("conn: giving up after %d attempts: %v", attempts, err)
				s.setStatus(StatusFailed)
				select {
				case <-s.retryCh:
					bo.Reset()
					continue
				case <-ctx.Done():
					return
				}
			}

			wait := bo.NextBackOff()
			log.Printf("conn: dial %s failed (attempt %d/%d), retrying in %s: %v",
				s.cfg.URL, attempts, s.cfg.MaxAttempts, wait, err)
			s.setStatus(StatusDisconnected)
			select {
			case <-time.After(wait):
			case <-s.retryCh:
				bo.Reset()
			case <-ctx.Done():
				return
			}
			continue
		}

		s.mu.Lock()
		s.ws = ws
		s.attempts = 0
		s.mu.Unlock()
		bo.Reset()
		s.setStatus(StatusConnected)

		s.serve(ctx, ws)

		s.mu.Lock()
		s.ws = nil
		s.mu.Unlock()
		ws.Close()
		s.setStatus(StatusDisconnected)
	}
}

// serve pumps inbound frames and heartbeats until the connection drops or
// ctx is cancelled.
func (s *Supervisor) serve(ctx context.Context, ws *websocket.Conn) {
	done := make(chan struct{})
	defer close(done)

	go func() {
		ticker := time.NewTicker(s.cfg.Heartbeat)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if err := s.write(ws, protocol.Message{Type: protocol.TypePing, Timestamp: time.Now().UnixMilli()}); err != nil {
					ws.Close()
					return
				}
			case <-done:
				return
			case <-ctx.Done():
				ws.Close()
				return
			}
		}
	}()

	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			if ctx.Err() == nil {
				log.Printf("conn: read: %v", err)
			}
			return
		}
		msg, err := protocol.Decode(data)
		if err != nil {
			log.Printf("conn: drop frame: %v", err)
			continue
		}
		// pong answers our heartbeat, nothing above cares
		if msg.Type == protocol.TypePong {
			continue
		}
		if s.handler != nil {
			s.handler(msg)
		}
	}
}

// Send ships one message to the relay. It fails fast while disconnected so
// callers can queue instead.
func (s *Supervisor) Send(msg protocol.Message) error {
	s.mu.Lock()
	ws := s.ws
	s.mu.Unlock()
	if ws == nil {
		return ErrNotConnected
	}
	return s.write(ws, msg)
}

func (s *Supervisor) write(ws *websocket.Conn, msg protocol.Message) error {
	data, err := msg.Encode()
	if err != nil {
		return err
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	ws.SetWriteDeadline(time.Now().Add(writeWait))
	return ws.WriteMessage(websocket.TextMessage, data)
}

// IsConnected reports whether the link is currently up.
func (s *Supervisor) IsConnected() bool {
	return s.Status() == StatusConnected
}

func (s *Supervisor) Status() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// Retry clears the attempt counter and wakes the connect loop. This is the
// only way out of the FAILED state.
func (s *Supervisor) Retry() {
	s.mu.Lock()
	s.attempts = 0
	s.mu.Unlock()
	select {
	case s.retryCh <- struct{}{}:
	default:
	}
}

// Close tears the connection down. The run loop exits through its context.
func (s *Supervisor) Close() {
	s.mu.Lock()
	ws := s.ws
	s.mu.Unlock()
	if ws != nil {
		ws.Close()
	}
}

func (s *Supervisor) setStatus(status string) {
	s.mu.Lock()
	changed := s.status != status
	s.status = status
	s.mu.Unlock()
	if changed && s.cfg.OnStatus != nil {
		s.cfg.OnStatus(status)
	}
}
