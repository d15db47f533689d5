package mirror

import (
	"context"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"supportdesk/pkg/types"
)

type jobKind int

const (
	jobQueue jobKind = iota
	jobOpen
	jobClose
)

type job struct {
	kind     jobKind
	snapshot types.QueueSnapshot
	session  types.Session
	roomID   string
}

// Config sizes the write-behind queue
type Config struct {
	QueueSize int
	Timeout   time.Duration
}

// Mirror copies dispatcher state into a Store without blocking the dispatcher.
// One worker applies writes in the order they were observed.
type Mirror struct {
	store   Store
	queue   chan job
	timeout time.Duration
	stopCh  chan struct{}
	wg      sync.WaitGroup
	once    sync.Once

	enqueued atomic.Uint64
	dropped  atomic.Uint64
	written  atomic.Uint64
	errors   atomic.Uint64
}

// New starts the mirror worker over store
func New(store Store, cfg Config) *Mirror {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 256
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 3 * time.Second
	}

	m := &Mirror{
		store:   store,
		queue:   make(chan job, cfg.QueueSize),
		timeout: cfg.Timeout,
		stopCh:  make(chan struct{}),
	}

	m.wg.Add(1)
	go m.workerLoop()

	return m
}

// QueueChanged mirrors a new queue snapshot
func (m *Mirror) QueueChanged(snapshot types.QueueSnapshot) {
	m.enqueue(job{kind: jobQueue, snapshot: snapshot})
}

// SessionOpened mirrors a newly bound session
func (m *Mirror) SessionOpened(session *types.Session) {
	if session == nil {
		return
	}
	m.enqueue(job{kind: jobOpen, session: *session})
}

// SessionClosed removes a session from the mirror
func (m *Mirror) SessionClosed(roomID string) {
	m.enqueue(job{kind: jobClose, roomID: roomID})
}

func (m *Mirror) enqueue(j job) {
	select {
	case m.queue <- j:
		m.enqueued.Add(1)
	default:
		m.dropped.Add(1)
	}
}

func (m *Mirror) workerLoop() {
	defer m.wg.Done()
	for {
		select {
		case j := <-m.queue:
			m.apply(j)
		case <-m.stopCh:
			for {
				select {
				case j := <-m.queue:
					m.apply(j)
				default:
					return
				}
			}
		}
	}
}

func (m *Mirror) apply(j job) {
	ctx, cancel := context.WithTimeout(context.Background(), m.timeout)
	defer cancel()

	var err error
	switch j.kind {
	case jobQueue:
		err = m.store.WriteQueue(ctx, j.snapshot)
	case jobOpen:
		err = m.store.PutSession(ctx, j.session)
	case jobClose:
		err = m.store.DeleteSession(ctx, j.roomID)
	}

	if err != nil {
		m.errors.Add(1)
		log.Printf("[mirror] write error: %v", err)
		return
	}
	m.written.Add(1)
}

// Shutdown drains pending writes and stops the worker
func (m *Mirror) Shutdown() {
	m.once.Do(func() {
		close(m.stopCh)
	})
	m.wg.Wait()
}

// Stats returns write-behind counters
func (m *Mirror) Stats() (enqueued, dropped, written, errors uint64) {
	return m.enqueued.Load(), m.dropped.Load(), m.written.Load(), m.errors.Load()
}
