// Package server coordinates client registration, message broadcast, and
// connection cleanup for the gateway via the Hub type.
package server

import (
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"

	"github.com/Jacksonmlol/Atlas-pullrequest/internal/protocol"
)

// Hub owns the set of live WebSocket sessions and performs broadcast
// fan-out. Instances are constructed explicitly and handed to every
// connection worker, so tests can run isolated registries side by side.
//
// Broadcast serializes the envelope once, snapshots the membership under a
// brief read lock, and then delivers to per-client bounded send queues
// outside the lock. A slow or dead client therefore never stalls delivery
// to the others; it is marked for removal and cleaned up independently.
type Hub struct {
	mu      sync.RWMutex
	clients map[*Client]bool
	closed  bool

	wg  sync.WaitGroup
	log *zap.Logger
}

// NewHub creates an empty Hub ready to track sessions.
func NewHub(log *zap.Logger) *Hub {
	if log == nil {
		log = zap.NewNop()
	}
	return &Hub{
		clients: make(map[*Client]bool),
		log:     log,
	}
}

// Register adds a session to the registry and launches its read and write
// pumps. Registering on a hub that is shutting down closes the connection
// immediately.
func (h *Hub) Register(client *Client) {
	if client == nil {
		h.log.Warn("received nil client registration; skipping")
		return
	}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		client.closeConnection()
		return
	}
	client.closed = false
	h.clients[client] = true
	count := len(h.clients)
	h.mu.Unlock()

	metricSessions.Inc()
	h.log.Info("client registered", zap.String("addr", client.addr), zap.Int("total", count))

	h.wg.Add(2)
	go func() {
		defer h.wg.Done()
		client.writePump()
	}()
	go func() {
		defer h.wg.Done()
		client.readPump()
	}()
}

// Unregister removes a session. Removing a session that is not registered
// is a no-op, so workers and broadcast cleanup can both call it safely.
func (h *Hub) Unregister(client *Client) {
	h.mu.Lock()
	if _, ok := h.clients[client]; !ok {
		h.mu.Unlock()
		return
	}
	delete(h.clients, client)
	client.closed = true
	count := len(h.clients)
	h.mu.Unlock()

	// Close the channel after releasing the lock.
	close(client.send)
	metricSessions.Dec()
	h.log.Info("client unregistered", zap.String("addr", client.addr), zap.Int("total", count))
}

// Count returns the number of registered sessions.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Broadcast serializes the envelope once and attempts delivery to every
// session registered at the moment the snapshot is taken. The sender is
// included; clients rely on the echo for optimistic UI reconciliation. It
// returns the number of delivery attempts made.
func (h *Hub) Broadcast(env protocol.Envelope) (int, error) {
	payload, err := protocol.Encode(env)
	if err != nil {
		return 0, errors.Wrap(err, "hub: encode broadcast")
	}

	metricBroadcasts.Inc()
	return h.deliver(payload), nil
}

// deliver fans a pre-serialized payload out to the current membership
// snapshot. A failed attempt on one session never aborts delivery to the
// rest; failed sessions are removed afterwards.
func (h *Hub) deliver(payload []byte) int {
	clients := h.snapshot()

	var failed []*Client
	for _, client := range clients {
		if !h.trySend(client, payload) {
			failed = append(failed, client)
		}
	}

	h.removeFailed(failed)
	return len(clients)
}

// snapshot returns the current membership under a brief read lock.
func (h *Hub) snapshot() []*Client {
	h.mu.RLock()
	defer h.mu.RUnlock()

	clients := make([]*Client, 0, len(h.clients))
	for client := range h.clients {
		clients = append(clients, client)
	}
	return clients
}

// trySend queues payload on one client without blocking. It reports false
// when the client is gone or its queue is full.
func (h *Hub) trySend(client *Client, payload []byte) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if _, ok := h.clients[client]; !ok || client.closed {
		return false
	}

	select {
	case client.send <- payload:
		return true
	default:
		return false
	}
}

func (h *Hub) removeFailed(failed []*Client) {
	if len(failed) == 0 {
		return
	}

	h.mu.Lock()
	var channels []chan []byte
	for _, client := range failed {
		if _, ok := h.clients[client]; ok {
			delete(h.clients, client)
			client.closed = true
			channels = append(channels, client.send)
			metricSessions.Dec()
			metricDeliveryFailures.Inc()
			h.log.Warn("client removed due to full send buffer", zap.String("addr", client.addr))
		}
	}
	h.mu.Unlock()

	for _, ch := range channels {
		close(ch)
	}
}

// Shutdown closes every client connection and waits for the pump goroutines
// to finish, or until the timeout elapses.
func (h *Hub) Shutdown(timeout time.Duration) error {
	h.mu.Lock()
	h.closed = true
	clients := make([]*Client, 0, len(h.clients))
	for client := range h.clients {
		clients = append(clients, client)
	}
	h.mu.Unlock()

	h.log.Info("shutting down all client connections", zap.Int("count", len(clients)))
	for _, client := range clients {
		client.closeConnection()
	}

	done := make(chan struct{})
	go func() {
		h.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		h.log.Info("hub shutdown completed")
		return nil
	case <-time.After(timeout):
		h.log.Warn("hub shutdown timeout reached, some goroutines may still be running")
		return errors.New("hub: shutdown timed out")
	}
}
