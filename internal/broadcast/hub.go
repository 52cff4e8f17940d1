// Package broadcast fans ingestion events out to live-feed subscribers.
package broadcast

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/uptix/hub/internal/metrics"
	"github.com/uptix/hub/internal/models"
)

// DefaultBufferSize is the number of messages a subscriber may fall behind
// before it is disconnected.
const DefaultBufferSize = 256

// Subscriber receives encoded events until it is unsubscribed or dropped
// for falling behind, at which point its channel is closed.
type Subscriber struct {
	send chan []byte
	once sync.Once
}

// C returns the stream of encoded {"event", "data"} messages.
func (s *Subscriber) C() <-chan []byte {
	return s.send
}

func (s *Subscriber) close() {
	s.once.Do(func() { close(s.send) })
}

// Hub delivers every published event to every subscriber. Publish never
// blocks: a subscriber whose buffer is full is dropped. Events published
// by one goroutine reach each subscriber in publish order.
type Hub struct {
	mu          sync.RWMutex
	subscribers map[*Subscriber]struct{}
	bufferSize  int
	closed      bool
	logger      *slog.Logger
}

func NewHub(bufferSize int, logger *slog.Logger) *Hub {
	if bufferSize <= 0 {
		bufferSize = DefaultBufferSize
	}
	return &Hub{
		subscribers: make(map[*Subscriber]struct{}),
		bufferSize:  bufferSize,
		logger:      logger,
	}
}

func (h *Hub) Subscribe() *Subscriber {
	s := &Subscriber{send: make(chan []byte, h.bufferSize)}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		s.close()
		return s
	}
	h.subscribers[s] = struct{}{}
	metrics.Subscribers.Set(float64(len(h.subscribers)))
	return s
}

func (h *Hub) Unsubscribe(s *Subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.subscribers[s]; !ok {
		return
	}
	delete(h.subscribers, s)
	s.close()
	metrics.Subscribers.Set(float64(len(h.subscribers)))
}

// Len returns the number of connected subscribers.
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subscribers)
}

// Publish encodes data once as the payload of event and hands it to every
// subscriber. Only an encoding failure is returned; delivery problems are
// the subscribers' own.
func (h *Hub) Publish(event string, data any) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("encode %s payload: %w", event, err)
	}
	msg, err := json.Marshal(models.Event{Event: event, Data: payload})
	if err != nil {
		return fmt.Errorf("encode %s event: %w", event, err)
	}

	var slow []*Subscriber
	h.mu.RLock()
	for s := range h.subscribers {
		select {
		case s.send <- msg:
		default:
			slow = append(slow, s)
		}
	}
	h.mu.RUnlock()

	for _, s := range slow {
		metrics.BroadcastDropped.WithLabelValues("slow_subscriber").Inc()
		h.logger.Warn("live subscriber too slow, disconnecting", "event", event)
		h.Unsubscribe(s)
	}
	return nil
}

// Close disconnects every subscriber and rejects new ones.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for s := range h.subscribers {
		delete(h.subscribers, s)
		s.close()
	}
	metrics.Subscribers.Set(0)
}
