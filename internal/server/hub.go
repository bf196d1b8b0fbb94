package server

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/conduit-lang/wsmodel/internal/metamodel/domain"
)

// Message types sent to websocket subscribers.
const (
	MessageSnapshot  = "snapshot"
	MessageEndpoints = "endpoints"
)

// Message is the envelope of everything sent on the event stream. Seq grows
// by one per broadcast; a snapshot carries the last broadcast Seq, so a
// subscriber seeing a gap knows it missed a batch and must resubscribe.
type Message struct {
	Type      string `json:"type"`
	Metamodel string `json:"metamodel,omitempty"`
	Seq       uint64 `json:"seq"`
	Data      any    `json:"data"`
}

// Hub fans committed endpoint events out to websocket subscribers. It is a
// domain.EndpointListener.
type Hub struct {
	mu          sync.RWMutex
	subscribers map[*Subscriber]struct{}
	seq         atomic.Uint64

	join     chan *Subscriber
	leave    chan *Subscriber
	outbound chan []byte

	idleTimeout time.Duration
	logger      *zap.Logger

	ctx     context.Context
	cancel  context.CancelFunc
	running atomic.Bool
	done    chan struct{}
}

var _ domain.EndpointListener = (*Hub)(nil)

// NewHub creates a hub bound to ctx. Run must be called for it to deliver
// anything.
func NewHub(ctx context.Context, logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	hubCtx, cancel := context.WithCancel(ctx)
	return &Hub{
		subscribers: make(map[*Subscriber]struct{}),
		join:        make(chan *Subscriber),
		leave:       make(chan *Subscriber, 16),
		outbound:    make(chan []byte, 256),
		idleTimeout: 90 * time.Second,
		logger:      logger.Named("hub"),
		ctx:         hubCtx,
		cancel:      cancel,
		done:        make(chan struct{}),
	}
}

// Run is the hub loop. It returns when the hub is shut down or its context
// is canceled.
func (h *Hub) Run() {
	if !h.running.CompareAndSwap(false, true) {
		return
	}
	defer close(h.done)

	sweep := time.NewTicker(h.idleTimeout / 3)
	defer sweep.Stop()

	for {
		select {
		case <-h.ctx.Done():
			h.disconnectAll()
			return

		case sub := <-h.join:
			h.mu.Lock()
			h.subscribers[sub] = struct{}{}
			h.mu.Unlock()
			h.logger.Debug("subscriber joined", zap.String("subscriber", sub.ID), zap.Int("subscribers", h.Subscribers()))

		case sub := <-h.leave:
			h.drop(sub)

		case data := <-h.outbound:
			h.deliver(data)

		case now := <-sweep.C:
			h.dropIdle(now)
		}
	}
}

// Accept starts streaming to conn. snapshot is sent first, tagged with the
// current sequence number.
func (h *Hub) Accept(conn *websocket.Conn, metamodel string, snapshot any) (*Subscriber, error) {
	sub := newSubscriber(conn, h)
	msg := &Message{Type: MessageSnapshot, Metamodel: metamodel, Seq: h.seq.Load(), Data: snapshot}
	data, err := json.Marshal(msg)
	if err != nil {
		return nil, err
	}
	sub.enqueue(data)

	select {
	case h.join <- sub:
	case <-h.ctx.Done():
		sub.cancel()
		conn.Close()
		return nil, h.ctx.Err()
	}
	go sub.deliver()
	go sub.receive()
	return sub, nil
}

// Broadcast queues a message for every subscriber and assigns its Seq.
// Messages are dropped when the hub is saturated or shut down.
func (h *Hub) Broadcast(message *Message) {
	message.Seq = h.seq.Add(1)
	data, err := json.Marshal(message)
	if err != nil {
		h.logger.Error("failed to marshal message", zap.String("type", message.Type), zap.Error(err))
		return
	}
	select {
	case h.outbound <- data:
	case <-h.ctx.Done():
	default:
		h.logger.Warn("outbound queue full, message dropped", zap.String("type", message.Type), zap.Uint64("seq", message.Seq))
	}
}

// EndpointsChanged implements domain.EndpointListener.
func (h *Hub) EndpointsChanged(_ context.Context, events []domain.EndpointEvent) {
	h.Broadcast(&Message{Type: MessageEndpoints, Data: events})
}

// Subscribers returns the number of connected subscribers.
func (h *Hub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subscribers)
}

// Shutdown disconnects every subscriber and waits for Run to return.
func (h *Hub) Shutdown() {
	h.cancel()
	if h.running.Load() {
		<-h.done
	}
}

func (h *Hub) deliver(data []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for sub := range h.subscribers {
		if !sub.enqueue(data) {
			h.logger.Warn("subscriber queue full, message skipped", zap.String("subscriber", sub.ID))
		}
	}
}

// drop must only be called from Run.
func (h *Hub) drop(sub *Subscriber) {
	h.mu.Lock()
	_, ok := h.subscribers[sub]
	if ok {
		delete(h.subscribers, sub)
		sub.closed.Store(true)
		close(sub.queue)
	}
	h.mu.Unlock()
	if ok {
		h.logger.Debug("subscriber left", zap.String("subscriber", sub.ID), zap.Int("subscribers", h.Subscribers()))
	}
}

func (h *Hub) dropIdle(now time.Time) {
	var idle []*Subscriber
	h.mu.RLock()
	for sub := range h.subscribers {
		if now.Sub(sub.LastSeen()) > h.idleTimeout {
			idle = append(idle, sub)
		}
	}
	h.mu.RUnlock()

	for _, sub := range idle {
		h.logger.Info("dropping idle subscriber", zap.String("subscriber", sub.ID))
		sub.cancel()
		h.drop(sub)
	}
}

func (h *Hub) disconnectAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.logger.Debug("hub shutting down", zap.Int("subscribers", len(h.subscribers)))
	for sub := range h.subscribers {
		sub.closed.Store(true)
		// subscriber contexts derive from the hub's, deliver exits on its own
		sub.conn.Close()
	}
	h.subscribers = make(map[*Subscriber]struct{})
}
