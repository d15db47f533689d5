package dispatcher

import (
	"context"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cespare/xxhash/v2"

	"supportdesk/pkg/interfaces"
	"supportdesk/pkg/types"
)

// ArchiverConfig sizes the archive worker pool
type ArchiverConfig struct {
	QueueSize int
	Workers   int
	Timeout   time.Duration
}

// UnicastFunc delivers one event to one connection
type UnicastFunc func(connID, event string, payload any) bool

type archiveJob struct {
	name   string
	roomID string
	run    func(ctx context.Context) error
}

// Archiver performs store I/O off the dispatcher goroutine.
// Enqueue never blocks; a full queue drops the job and counts it.
// Jobs for one room always land on the same worker, so a history replay
// sees every write enqueued for that room before it.
type Archiver struct {
	store   interfaces.MessageStore
	unicast UnicastFunc
	timeout time.Duration

	queues []chan archiveJob
	stopCh chan struct{}
	wg     sync.WaitGroup
	once   sync.Once

	enqueued atomic.Uint64
	dropped  atomic.Uint64
	written  atomic.Uint64
	errors   atomic.Uint64
}

// NewArchiver starts cfg.Workers goroutines writing to store, each with its
// own queue of cfg.QueueSize jobs.
// unicast is used for history replay and must be safe to call from any goroutine.
func NewArchiver(store interfaces.MessageStore, unicast UnicastFunc, cfg ArchiverConfig) *Archiver {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 256
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}

	a := &Archiver{
		store:   store,
		unicast: unicast,
		timeout: cfg.Timeout,
		queues:  make([]chan archiveJob, cfg.Workers),
		stopCh:  make(chan struct{}),
	}

	for i := range a.queues {
		a.queues[i] = make(chan archiveJob, cfg.QueueSize)
		a.wg.Add(1)
		go a.workerLoop(i, a.queues[i])
	}
	return a
}

// ArchiveMessage persists a relayed chat message
func (a *Archiver) ArchiveMessage(roomID string, msg types.ChatMessage) {
	stored := &types.StoredMessage{
		ID:        msg.ID,
		RoomID:    roomID,
		Sender:    msg.Sender,
		Text:      msg.Text,
		Timestamp: parseTimestamp(msg.Timestamp),
	}
	a.enqueue(archiveJob{
		name:   "message " + msg.ID,
		roomID: roomID,
		run: func(ctx context.Context) error {
			return a.store.AppendMessage(ctx, stored)
		},
	})
}

// ArchiveFile persists a file announced inline over the socket
func (a *Archiver) ArchiveFile(roomID string, file types.FileData) {
	stored := &types.StoredFile{
		ID:            file.ID,
		Filename:      file.Name,
		MimeType:      file.Type,
		InlineContent: file.Content,
		RoomID:        roomID,
		Sender:        file.Sender,
		Size:          int64(len(file.Content)),
	}
	a.enqueue(archiveJob{
		name:   "file " + file.ID,
		roomID: roomID,
		run: func(ctx context.Context) error {
			return a.store.CreateFile(ctx, stored)
		},
	})
}

// ReplayHistory sends roomID's archive to connID as a chat-history event
func (a *Archiver) ReplayHistory(roomID, connID string) {
	a.enqueue(archiveJob{
		name:   "history " + roomID,
		roomID: roomID,
		run: func(ctx context.Context) error {
			history, err := a.store.RoomHistory(ctx, roomID)
			if err != nil {
				return err
			}
			a.unicast(connID, types.EventChatHistory, types.ChatHistoryPayload{
				RoomID:   roomID,
				Messages: history.Messages,
				Files:    history.Files,
			})
			return nil
		},
	})
}

func (a *Archiver) enqueue(job archiveJob) {
	select {
	case <-a.stopCh:
		a.dropped.Add(1)
		return
	default:
	}

	select {
	case a.queues[a.shard(job.roomID)] <- job:
		a.enqueued.Add(1)
	default:
		a.dropped.Add(1)
		log.Printf("Archive queue full, dropping %s", job.name)
	}
}

// shard maps a room to its worker
func (a *Archiver) shard(roomID string) int {
	return int(xxhash.Sum64String(roomID) % uint64(len(a.queues)))
}

func (a *Archiver) workerLoop(workerID int, queue <-chan archiveJob) {
	defer a.wg.Done()
	for {
		select {
		case job := <-queue:
			a.runJob(workerID, job)
		case <-a.stopCh:
			// drain what is already queued
			for {
				select {
				case job := <-queue:
					a.runJob(workerID, job)
				default:
					return
				}
			}
		}
	}
}

func (a *Archiver) runJob(workerID int, job archiveJob) {
	ctx, cancel := context.WithTimeout(context.Background(), a.timeout)
	defer cancel()

	if err := job.run(ctx); err != nil {
		a.errors.Add(1)
		log.Printf("[archive-worker-%d] %s failed: %v", workerID, job.name, err)
		return
	}
	a.written.Add(1)
}

// Shutdown stops accepting jobs, finishes queued ones and waits for the workers
func (a *Archiver) Shutdown() {
	a.once.Do(func() {
		close(a.stopCh)
	})
	a.wg.Wait()
}

// Stats returns job counters
func (a *Archiver) Stats() (enqueued, dropped, written, errors uint64) {
	return a.enqueued.Load(), a.dropped.Load(), a.written.Load(), a.errors.Load()
}

func parseTimestamp(value string) time.Time {
	if value == "" {
		return time.Now()
	}
	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return t
	}
	return time.Now()
}
