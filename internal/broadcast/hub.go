// Package broadcast fans measurement events out to live observers.
//
// The MQTT callback goroutine hands events to the hub through Publish, a
// bounded channel; the hub's Run loop is the only place observer delivery
// happens. Delivery is fire-and-forget: no acknowledgement, no retry, and an
// observer that fails is logged and skipped. Observers are removed only by
// their own connection lifecycle, never by a failed delivery. A dropped or
// failed event is simply absent for that observer.
package broadcast

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog/log"

	"github.com/ANIKETSHETTY47/sensor-telemetry-hub/internal/domain"
)

type Observer interface {
	ID() string
	Send(ev domain.Event) error
}

type Hub struct {
	mu        sync.RWMutex
	observers map[string]Observer

	events  chan domain.Event
	dropped atomic.Uint64
}

func NewHub(buffer int) *Hub {
	if buffer <= 0 {
		buffer = 1
	}
	return &Hub{
		observers: make(map[string]Observer),
		events:    make(chan domain.Event, buffer),
	}
}

func (h *Hub) Register(o Observer) {
	h.mu.Lock()
	h.observers[o.ID()] = o
	n := len(h.observers)
	h.mu.Unlock()
	log.Info().Str("observer", o.ID()).Int("observers", n).Msg("observer registered")
}

func (h *Hub) Unregister(o Observer) {
	h.mu.Lock()
	delete(h.observers, o.ID())
	n := len(h.observers)
	h.mu.Unlock()
	log.Info().Str("observer", o.ID()).Int("observers", n).Msg("observer unregistered")
}

func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.observers)
}

// Dropped reports how many events Publish discarded because the handoff buffer was full.
func (h *Hub) Dropped() uint64 { return h.dropped.Load() }

// Publish queues ev for delivery without blocking the caller.
// It returns false when the buffer is full and the event was dropped.
func (h *Hub) Publish(ev domain.Event) bool {
	select {
	case h.events <- ev:
		return true
	default:
		n := h.dropped.Add(1)
		log.Warn().Int64("sensor_id", ev.SensorID).Uint64("dropped_total", n).Msg("broadcast buffer full, event dropped")
		return false
	}
}

// Run delivers queued events until ctx is cancelled.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-h.events:
			h.Broadcast(ev)
		}
	}
}

// Broadcast delivers ev to every registered observer and returns how many accepted it.
func (h *Hub) Broadcast(ev domain.Event) int {
	h.mu.RLock()
	targets := make([]Observer, 0, len(h.observers))
	for _, o := range h.observers {
		targets = append(targets, o)
	}
	h.mu.RUnlock()

	delivered := 0
	for _, o := range targets {
		if err := deliver(o, ev); err != nil {
			log.Warn().Err(err).Str("observer", o.ID()).Msg("observer delivery failed")
			continue
		}
		delivered++
	}
	return delivered
}

func deliver(o Observer, ev domain.Event) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("observer panicked: %v", p)
		}
	}()
	return o.Send(ev)
}
