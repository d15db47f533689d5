package mirror

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"supportdesk/pkg/interfaces"
	"supportdesk/pkg/types"
)

var _ interfaces.StateObserver = (*Mirror)(nil)
var _ Store = (*RedisStore)(nil)

type memoryStore struct {
	mu       sync.Mutex
	queue    types.QueueSnapshot
	sessions map[string]types.Session
	ops      []string
	fail     error
}

func newMemoryStore() *memoryStore {
	return &memoryStore{sessions: make(map[string]types.Session)}
}

func (s *memoryStore) Reset(ctx context.Context) error { return nil }

func (s *memoryStore) WriteQueue(ctx context.Context, snapshot types.QueueSnapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail != nil {
		return s.fail
	}
	s.queue = snapshot
	s.ops = append(s.ops, "queue")
	return nil
}

func (s *memoryStore) PutSession(ctx context.Context, session types.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail != nil {
		return s.fail
	}
	s.sessions[session.RoomID] = session
	s.ops = append(s.ops, "open:"+session.RoomID)
	return nil
}

func (s *memoryStore) DeleteSession(ctx context.Context, roomID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail != nil {
		return s.fail
	}
	delete(s.sessions, roomID)
	s.ops = append(s.ops, "close:"+roomID)
	return nil
}

func (s *memoryStore) Ping(ctx context.Context) error { return nil }
func (s *memoryStore) Close() error                   { return nil }

func TestMirror_AppliesWritesInOrder(t *testing.T) {
	store := newMemoryStore()
	m := New(store, Config{QueueSize: 16})

	m.QueueChanged(types.QueueSnapshot{"tech": {{CustomerID: "u1"}}})
	m.SessionOpened(&types.Session{RoomID: "chat-u1-t1", CustomerID: "u1"})
	m.QueueChanged(types.QueueSnapshot{"tech": {}})
	m.SessionClosed("chat-u1-t1")
	m.SessionOpened(nil)
	m.Shutdown()

	want := []string{"queue", "open:chat-u1-t1", "queue", "close:chat-u1-t1"}
	if len(store.ops) != len(want) {
		t.Fatalf("ops = %v, want %v", store.ops, want)
	}
	for i := range want {
		if store.ops[i] != want[i] {
			t.Errorf("op %d = %s, want %s", i, store.ops[i], want[i])
		}
	}
	if len(store.sessions) != 0 {
		t.Errorf("closed session still mirrored: %v", store.sessions)
	}

	enqueued, dropped, written, errs := m.Stats()
	if enqueued != 4 || dropped != 0 || written != 4 || errs != 0 {
		t.Errorf("Stats() = %d/%d/%d/%d, want 4/0/4/0", enqueued, dropped, written, errs)
	}
}

func TestMirror_CountsErrors(t *testing.T) {
	store := newMemoryStore()
	store.fail = errors.New("redis down")
	m := New(store, Config{QueueSize: 4})

	m.SessionClosed("r1")
	m.Shutdown()

	if _, _, written, errs := m.Stats(); written != 0 || errs != 1 {
		t.Errorf("written=%d errors=%d, want 0/1", written, errs)
	}
}

// blockingStore holds the worker so the queue can be filled
type blockingStore struct {
	memoryStore
	release chan struct{}
}

func (s *blockingStore) WriteQueue(ctx context.Context, snapshot types.QueueSnapshot) error {
	<-s.release
	return nil
}

func TestMirror_DropsWhenFull(t *testing.T) {
	store := &blockingStore{release: make(chan struct{})}
	m := New(store, Config{QueueSize: 1})

	done := make(chan struct{})
	go func() {
		for i := 0; i < 10; i++ {
			m.QueueChanged(types.QueueSnapshot{})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("QueueChanged blocked on a full queue")
	}

	close(store.release)
	m.Shutdown()

	if _, dropped, _, _ := m.Stats(); dropped == 0 {
		t.Error("expected dropped writes when the queue is full")
	}
}

func TestRedisStore_KeyLayout(t *testing.T) {
	rdb := goredis.NewClient(&goredis.Options{Addr: "127.0.0.1:0"})
	defer rdb.Close()

	s := newRedisStore(rdb, "desk", time.Second)
	if s.queueKey != "desk:queue" || s.countsKey != "desk:queue:counts" || s.sessKey != "desk:sessions" {
		t.Errorf("unexpected keys: %s %s %s", s.queueKey, s.countsKey, s.sessKey)
	}

	def := NewRedisStore(RedisConfig{Addr: "127.0.0.1:0"})
	defer def.Close()
	if def.queueKey != "supportdesk:queue" {
		t.Errorf("default prefix not applied: %s", def.queueKey)
	}
}

func TestRedisStore_TimeoutApplied(t *testing.T) {
	s := &RedisStore{opTimeout: 50 * time.Millisecond}
	ctx, cancel := s.withTimeout(context.Background())
	defer cancel()
	if _, ok := ctx.Deadline(); !ok {
		t.Error("expected a deadline on contexts without one")
	}
}
