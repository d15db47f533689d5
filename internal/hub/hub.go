package hub

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"supportdesk/internal/dispatcher"
	"supportdesk/internal/router"
	"supportdesk/pkg/types"
)

const (
	// DefaultBufferSize is the event channel capacity
	DefaultBufferSize = 1000
	cleanupInterval   = time.Minute
)

// Hub serializes every dispatcher event through one goroutine.
// Read pumps submit in order, so per-connection ordering is preserved.
type Hub struct {
	events   chan dispatcher.Event
	shutdown chan struct{}
	done     chan struct{}

	dispatcher *dispatcher.Dispatcher
	router     *router.Router

	running bool
	mu      sync.RWMutex
}

// NewHub creates a hub that feeds d and decodes frames with r
func NewHub(d *dispatcher.Dispatcher, r *router.Router, bufferSize int) *Hub {
	if bufferSize <= 0 {
		bufferSize = DefaultBufferSize
	}
	return &Hub{
		events:     make(chan dispatcher.Event, bufferSize),
		shutdown:   make(chan struct{}),
		done:       make(chan struct{}),
		dispatcher: d,
		router:     r,
	}
}

// Start begins event processing
func (h *Hub) Start(ctx context.Context) error {
	h.mu.Lock()
	if h.running {
		h.mu.Unlock()
		return ErrHubAlreadyRunning
	}
	h.running = true
	h.mu.Unlock()

	log.Println("Starting dispatcher hub...")
	go h.run(ctx)
	return nil
}

// Stop ends event processing and waits for the loop to exit
func (h *Hub) Stop() error {
	h.mu.Lock()
	if !h.running {
		h.mu.Unlock()
		return ErrHubNotRunning
	}
	h.running = false

	select {
	case <-h.shutdown:
	default:
		close(h.shutdown)
	}
	h.mu.Unlock()

	log.Println("Stopping dispatcher hub...")
	<-h.done
	return nil
}

// IsRunning reports whether the event loop is active
func (h *Hub) IsRunning() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.running
}

// Submit queues an event, blocking until it is accepted, ctx ends, or the hub stops
func (h *Hub) Submit(ctx context.Context, ev dispatcher.Event) error {
	if !h.IsRunning() {
		return ErrHubNotRunning
	}

	select {
	case h.events <- ev:
		return nil
	case <-h.shutdown:
		return ErrHubNotRunning
	case <-ctx.Done():
		return ctx.Err()
	}
}

// HandleFrame decodes one inbound frame from connID and submits it.
// Decode failures and rate-limit rejections are reported to the sender as error events.
func (h *Hub) HandleFrame(ctx context.Context, connID string, data []byte) error {
	ev, err := h.router.Decode(connID, data)
	if err != nil {
		code := types.ErrCodeInvalidPayload
		if errors.Is(err, router.ErrUnknownEvent) {
			code = types.ErrCodeUnknownEvent
		}
		h.dispatcher.Unicast(connID, types.EventError, types.ErrorPayload{Message: err.Error(), Code: code})
		return err
	}

	if !h.router.Allow(ev) {
		h.dispatcher.Unicast(connID, types.EventError, types.ErrorPayload{
			Message: router.ErrRateLimitExceeded.Error(),
			Code:    types.ErrCodeRateLimited,
		})
		return ErrRateLimited
	}

	return h.Submit(ctx, ev)
}

// Disconnect submits the cleanup event for a closed connection
func (h *Hub) Disconnect(ctx context.Context, connID string) error {
	h.router.Forget(connID)
	return h.Submit(ctx, dispatcher.Disconnect{ConnID: connID})
}

// Status asks the event loop for a snapshot of dispatcher state
func (h *Hub) Status(ctx context.Context) (types.QueueStatus, error) {
	reply := make(chan types.QueueStatus, 1)
	if err := h.Submit(ctx, dispatcher.StatusQuery{Reply: reply}); err != nil {
		return types.QueueStatus{}, err
	}

	select {
	case status := <-reply:
		return status, nil
	case <-h.shutdown:
		return types.QueueStatus{}, ErrHubNotRunning
	case <-ctx.Done():
		return types.QueueStatus{}, ctx.Err()
	}
}

func (h *Hub) run(ctx context.Context) {
	defer close(h.done)
	defer log.Println("Hub processing stopped")

	ticker := time.NewTicker(cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case ev := <-h.events:
			h.dispatch(ev)

		case <-ticker.C:
			h.router.Cleanup()

		case <-h.shutdown:
			log.Println("Hub shutdown requested")
			return

		case <-ctx.Done():
			log.Println("Hub context cancelled")
			h.mu.Lock()
			h.running = false
			select {
			case <-h.shutdown:
			default:
				close(h.shutdown)
			}
			h.mu.Unlock()
			return
		}
	}
}

// dispatch runs one event; a panic in a handler is logged and the loop continues
func (h *Hub) dispatch(ev dispatcher.Event) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("Hub: dispatcher panic on %T from %s: %v", ev, ev.Origin(), r)
		}
	}()
	h.dispatcher.Dispatch(ev)
}
