package hub

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"supportdesk/internal/dispatcher"
	"supportdesk/internal/router"
	"supportdesk/pkg/types"
)

type recordingSender struct {
	mu     sync.Mutex
	frames map[string][]*types.Envelope
}

func (s *recordingSender) Send(connID string, frame *types.Envelope) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.frames == nil {
		s.frames = make(map[string][]*types.Envelope)
	}
	s.frames[connID] = append(s.frames[connID], frame)
	return nil
}

func (s *recordingSender) count(connID, event string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, frame := range s.frames[connID] {
		if frame.Event == event {
			n++
		}
	}
	return n
}

func (s *recordingSender) lastError(connID string) (types.ErrorPayload, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	frames := s.frames[connID]
	for i := len(frames) - 1; i >= 0; i-- {
		if frames[i].Event == types.EventError {
			var payload types.ErrorPayload
			_ = json.Unmarshal(frames[i].Payload, &payload)
			return payload, true
		}
	}
	return types.ErrorPayload{}, false
}

func newTestHub(t *testing.T) (*Hub, *recordingSender) {
	t.Helper()
	sender := &recordingSender{}
	h := NewHub(dispatcher.New(dispatcher.DefaultConfig(), sender), router.NewRouter(), 0)
	return h, sender
}

func startHub(t *testing.T, h *Hub) {
	t.Helper()
	if err := h.Start(context.Background()); err != nil {
		t.Fatalf("Failed to start hub: %v", err)
	}
	t.Cleanup(func() {
		if h.IsRunning() {
			_ = h.Stop()
		}
	})
}

func TestHub_StartStop(t *testing.T) {
	h, _ := newTestHub(t)
	ctx := context.Background()

	if err := h.Start(ctx); err != nil {
		t.Errorf("Expected no error starting hub, got %v", err)
	}
	if err := h.Start(ctx); err != ErrHubAlreadyRunning {
		t.Errorf("Expected ErrHubAlreadyRunning, got %v", err)
	}
	if err := h.Stop(); err != nil {
		t.Errorf("Expected no error stopping hub, got %v", err)
	}
	if err := h.Stop(); err != ErrHubNotRunning {
		t.Errorf("Expected ErrHubNotRunning, got %v", err)
	}
}

func TestHub_SubmitWhenStopped(t *testing.T) {
	h, _ := newTestHub(t)

	err := h.Submit(context.Background(), dispatcher.SetRole{ConnID: "c1", Role: "customer"})
	if err != ErrHubNotRunning {
		t.Errorf("Expected ErrHubNotRunning, got %v", err)
	}
	if _, err := h.Status(context.Background()); err != ErrHubNotRunning {
		t.Errorf("Expected ErrHubNotRunning from Status, got %v", err)
	}
}

func TestHub_ContextCancelStopsLoop(t *testing.T) {
	h, _ := newTestHub(t)
	ctx, cancel := context.WithCancel(context.Background())

	if err := h.Start(ctx); err != nil {
		t.Fatalf("Failed to start hub: %v", err)
	}
	cancel()

	select {
	case <-h.done:
	case <-time.After(time.Second):
		t.Fatal("hub loop did not exit after context cancellation")
	}
	if h.IsRunning() {
		t.Error("hub still reports running after context cancellation")
	}
}

func TestHub_FramesReachDispatcherInOrder(t *testing.T) {
	h, sender := newTestHub(t)
	startHub(t, h)
	ctx := context.Background()

	frames := []string{
		`{"event":"set-role","payload":{"role":"technician"}}`,
	}
	for _, frame := range frames {
		if err := h.HandleFrame(ctx, "tech", []byte(frame)); err != nil {
			t.Fatalf("HandleFrame() error = %v", err)
		}
	}
	for _, customer := range []string{"u1", "u2", "u3"} {
		frame := `{"event":"join-queue","payload":{"userId":"` + customer + `","category":"tech","name":"N","issue":"i"}}`
		if err := h.HandleFrame(ctx, "conn-"+customer, []byte(frame)); err != nil {
			t.Fatalf("HandleFrame() error = %v", err)
		}
	}

	status, err := h.Status(ctx)
	if err != nil {
		t.Fatalf("Status() error = %v", err)
	}
	if status.Counts["tech"] != 3 || status.Counts["total"] != 3 {
		t.Errorf("unexpected counts: %v", status.Counts)
	}
	if status.Technicians != 1 {
		t.Errorf("Technicians = %d, want 1", status.Technicians)
	}
	for i, want := range []string{"u1", "u2", "u3"} {
		if got := status.QueueState["tech"][i].CustomerID; got != want {
			t.Errorf("position %d = %s, want %s", i+1, got, want)
		}
	}
	// one snapshot on set-role plus one per join
	if got := sender.count("tech", types.EventQueueUpdate); got != 4 {
		t.Errorf("technician received %d queue updates, want 4", got)
	}
}

func TestHub_HandleFrameReportsDecodeErrors(t *testing.T) {
	h, sender := newTestHub(t)
	startHub(t, h)

	err := h.HandleFrame(context.Background(), "c1", []byte(`{"event":"teleport"}`))
	if !errors.Is(err, router.ErrUnknownEvent) {
		t.Fatalf("HandleFrame() error = %v, want ErrUnknownEvent", err)
	}
	payload, ok := sender.lastError("c1")
	if !ok || payload.Code != types.ErrCodeUnknownEvent {
		t.Errorf("expected unknown_event error frame, got %+v", payload)
	}

	_ = h.HandleFrame(context.Background(), "c1", []byte(`garbage`))
	payload, _ = sender.lastError("c1")
	if payload.Code != types.ErrCodeInvalidPayload {
		t.Errorf("expected invalid_payload error frame, got %+v", payload)
	}
}

func TestHub_HandleFrameRateLimit(t *testing.T) {
	h, sender := newTestHub(t)
	startHub(t, h)
	ctx := context.Background()

	frame := []byte(`{"event":"message","payload":{"roomId":"room-1","message":{"text":"hi"}}}`)
	var lastErr error
	for i := 0; i < 101; i++ {
		lastErr = h.HandleFrame(ctx, "c1", frame)
	}
	if lastErr != ErrRateLimited {
		t.Fatalf("expected ErrRateLimited on message 101, got %v", lastErr)
	}
	payload, ok := sender.lastError("c1")
	if !ok || payload.Code != types.ErrCodeRateLimited {
		t.Errorf("expected rate_limited error frame, got %+v", payload)
	}

	if err := h.Disconnect(ctx, "c1"); err != nil {
		t.Fatalf("Disconnect() error = %v", err)
	}
	if err := h.HandleFrame(ctx, "c1", frame); err != nil {
		t.Errorf("expected fresh window after disconnect, got %v", err)
	}
}

func TestHub_DisconnectCleansQueue(t *testing.T) {
	h, _ := newTestHub(t)
	startHub(t, h)
	ctx := context.Background()

	if err := h.HandleFrame(ctx, "c1", []byte(`{"event":"join-queue","payload":{"userId":"u1","category":"billing"}}`)); err != nil {
		t.Fatalf("HandleFrame() error = %v", err)
	}
	if err := h.Disconnect(ctx, "c1"); err != nil {
		t.Fatalf("Disconnect() error = %v", err)
	}

	status, err := h.Status(ctx)
	if err != nil {
		t.Fatalf("Status() error = %v", err)
	}
	if status.Counts["total"] != 0 {
		t.Errorf("queue not cleaned after disconnect: %v", status.Counts)
	}
}

func TestHub_SubmitHonoursContext(t *testing.T) {
	sender := &recordingSender{}
	h := NewHub(dispatcher.New(dispatcher.DefaultConfig(), sender), router.NewRouter(), 1)

	// Mark running without starting the loop so the channel fills up
	h.running = true
	if err := h.Submit(context.Background(), dispatcher.Disconnect{ConnID: "a"}); err != nil {
		t.Fatalf("first submit should fit in the buffer: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := h.Submit(ctx, dispatcher.Disconnect{ConnID: "b"}); err != context.DeadlineExceeded {
		t.Errorf("Expected context.DeadlineExceeded, got %v", err)
	}
}
