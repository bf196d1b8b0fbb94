package server

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	writeTimeout = 10 * time.Second
	readTimeout  = 60 * time.Second
	pingInterval = readTimeout * 9 / 10

	// The stream is one-way; peers only send control frames.
	maxFrameSize = 4 << 10

	queueSize = 64
)

// Subscriber is one websocket connection receiving endpoint events.
type Subscriber struct {
	ID string

	conn  *websocket.Conn
	hub   *Hub
	queue chan []byte

	ctx    context.Context
	cancel context.CancelFunc

	lastSeen atomic.Int64
	closed   atomic.Bool
}

func newSubscriber(conn *websocket.Conn, hub *Hub) *Subscriber {
	ctx, cancel := context.WithCancel(hub.ctx)
	s := &Subscriber{
		ID:     uuid.NewString(),
		conn:   conn,
		hub:    hub,
		queue:  make(chan []byte, queueSize),
		ctx:    ctx,
		cancel: cancel,
	}
	s.touch()
	return s
}

// LastSeen returns when the peer last sent a frame.
func (s *Subscriber) LastSeen() time.Time {
	return time.Unix(0, s.lastSeen.Load())
}

func (s *Subscriber) touch() {
	s.lastSeen.Store(time.Now().UnixNano())
}

// enqueue never blocks. It reports false when the subscriber is closed or
// lagging.
func (s *Subscriber) enqueue(data []byte) bool {
	if s.closed.Load() {
		return false
	}
	select {
	case s.queue <- data:
		return true
	default:
		return false
	}
}

// receive reads until the peer goes away, then asks the hub to drop s.
func (s *Subscriber) receive() {
	defer func() {
		s.cancel()
		select {
		case s.hub.leave <- s:
		case <-s.hub.ctx.Done():
		}
		s.conn.Close()
	}()

	s.conn.SetReadLimit(maxFrameSize)
	_ = s.conn.SetReadDeadline(time.Now().Add(readTimeout))
	s.conn.SetPongHandler(func(string) error {
		s.touch()
		return s.conn.SetReadDeadline(time.Now().Add(readTimeout))
	})

	for {
		if _, _, err := s.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.hub.logger.Debug("subscriber connection lost", zap.String("subscriber", s.ID), zap.Error(err))
			}
			return
		}
		s.touch()
	}
}

// deliver writes queued messages and pings the peer until the queue is
// closed or s is canceled.
func (s *Subscriber) deliver() {
	ping := time.NewTicker(pingInterval)
	defer func() {
		ping.Stop()
		s.conn.Close()
	}()

	for {
		select {
		case data, ok := <-s.queue:
			if !ok {
				_ = s.write(websocket.CloseMessage, nil)
				return
			}
			if err := s.write(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ping.C:
			if err := s.write(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-s.ctx.Done():
			_ = s.write(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, ""))
			return
		}
	}
}

func (s *Subscriber) write(messageType int, data []byte) error {
	if err := s.conn.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
		return err
	}
	return s.conn.WriteMessage(messageType, data)
}
