package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	dbconfig "supportdesk/pkg/database"
	"supportdesk/pkg/interfaces"
	"supportdesk/pkg/types"
)

// Manager implements interfaces.MessageStore on SQLite.
// Writes go through a single writer goroutine; reads use the pool directly.
type Manager struct {
	db           *sql.DB
	config       *dbconfig.Config
	writeChannel chan writeOperation
	shutdown     chan struct{}
	wg           sync.WaitGroup
	closed       bool
	mu           sync.RWMutex
	retryDelay   time.Duration
}

type writeOperation struct {
	operation func(*sql.DB) error
	result    chan error
}

// NewManager opens the database and starts the writer goroutine
func NewManager(config *dbconfig.Config) (*Manager, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid database config: %w", err)
	}
	if dir := filepath.Dir(config.DatabasePath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", config.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(config.MaxConnections)
	db.SetConnMaxLifetime(config.ConnMaxLifetime)
	db.SetConnMaxIdleTime(config.ConnMaxIdleTime)

	if err := dbconfig.ApplySQLiteOptimizations(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to apply SQLite optimizations: %w", err)
	}

	manager := &Manager{
		db:           db,
		config:       config,
		writeChannel: make(chan writeOperation, 100),
		shutdown:     make(chan struct{}),
		retryDelay:   5 * time.Second,
	}

	manager.wg.Add(1)
	go manager.writeLoop()

	return manager, nil
}

// writeLoop processes all write operations in a single goroutine.
// A failed write is retried exactly once after retryDelay.
func (m *Manager) writeLoop() {
	defer m.wg.Done()

	for {
		select {
		case op := <-m.writeChannel:
			err := op.operation(m.db)
			if err != nil {
				log.Printf("Database write failed, retrying in %v: %v", m.retryDelay, err)
				time.Sleep(m.retryDelay)
				err = op.operation(m.db)
				if err != nil {
					log.Printf("Database write failed after retry: %v", err)
				}
			}
			op.result <- err

		case <-m.shutdown:
			log.Println("Database write loop shutting down")
			return
		}
	}
}

func (m *Manager) executeWrite(ctx context.Context, operation func(*sql.DB) error) error {
	m.mu.RLock()
	if m.closed {
		m.mu.RUnlock()
		return ErrManagerClosed
	}
	m.mu.RUnlock()

	result := make(chan error, 1)

	select {
	case m.writeChannel <- writeOperation{operation: operation, result: result}:
	case <-time.After(30 * time.Second):
		return ErrWriteTimeout
	case <-m.shutdown:
		return ErrManagerClosed
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case err := <-result:
		return err
	case <-m.shutdown:
		return ErrManagerClosed
	}
}

// AppendMessage stores a chat message
func (m *Manager) AppendMessage(ctx context.Context, message *types.StoredMessage) error {
	if message == nil || message.ID == "" {
		return ErrInvalidRecord
	}
	if message.Timestamp.IsZero() {
		message.Timestamp = time.Now()
	}

	return m.executeWrite(ctx, func(db *sql.DB) error {
		query := `
			INSERT INTO messages (id, room_id, sender, text, timestamp)
			VALUES (?, ?, ?, ?, ?)
		`
		_, err := db.ExecContext(ctx, query,
			message.ID,
			message.RoomID,
			message.Sender,
			message.Text,
			message.Timestamp,
		)
		if err != nil {
			return fmt.Errorf("failed to insert message: %w", err)
		}
		return nil
	})
}

// ListMessages returns messages in chronological order.
// An empty roomID returns messages from every room.
func (m *Manager) ListMessages(ctx context.Context, roomID string) ([]*types.StoredMessage, error) {
	query := `
		SELECT id, room_id, sender, text, timestamp
		FROM messages
		WHERE (? = '' OR room_id = ?)
		ORDER BY timestamp ASC
	`

	rows, err := m.db.QueryContext(ctx, query, roomID, roomID)
	if err != nil {
		return nil, fmt.Errorf("failed to query messages: %w", err)
	}
	defer func() { _ = rows.Close() }()

	messages := make([]*types.StoredMessage, 0)
	for rows.Next() {
		var message types.StoredMessage
		if err := rows.Scan(
			&message.ID,
			&message.RoomID,
			&message.Sender,
			&message.Text,
			&message.Timestamp,
		); err != nil {
			return nil, fmt.Errorf("failed to scan message row: %w", err)
		}
		messages = append(messages, &message)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating message rows: %w", err)
	}
	return messages, nil
}

// CreateFile stores a file record
func (m *Manager) CreateFile(ctx context.Context, file *types.StoredFile) error {
	if file == nil || file.ID == "" || file.Filename == "" {
		return ErrInvalidRecord
	}
	if file.Timestamp.IsZero() {
		file.Timestamp = time.Now()
	}
	if file.MimeType == "" {
		file.MimeType = "application/octet-stream"
	}

	return m.executeWrite(ctx, func(db *sql.DB) error {
		query := `
			INSERT INTO files (id, filename, mime_type, path, inline_content, room_id, sender, size, timestamp)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		`
		_, err := db.ExecContext(ctx, query,
			file.ID,
			file.Filename,
			file.MimeType,
			file.Path,
			file.InlineContent,
			file.RoomID,
			file.Sender,
			file.Size,
			file.Timestamp,
		)
		if err != nil {
			return fmt.Errorf("failed to insert file: %w", err)
		}
		return nil
	})
}

const fileColumns = `id, filename, mime_type, path, inline_content, room_id, sender, size, timestamp`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanFile(row rowScanner) (*types.StoredFile, error) {
	var file types.StoredFile
	err := row.Scan(
		&file.ID,
		&file.Filename,
		&file.MimeType,
		&file.Path,
		&file.InlineContent,
		&file.RoomID,
		&file.Sender,
		&file.Size,
		&file.Timestamp,
	)
	if err != nil {
		return nil, err
	}
	return &file, nil
}

// GetFile retrieves a file record by ID
func (m *Manager) GetFile(ctx context.Context, fileID string) (*types.StoredFile, error) {
	row := m.db.QueryRowContext(ctx, `SELECT `+fileColumns+` FROM files WHERE id = ?`, fileID)

	file, err := scanFile(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, interfaces.ErrRecordNotFound
		}
		return nil, fmt.Errorf("failed to query file: %w", err)
	}
	return file, nil
}

// FilesForRoom returns a room's files in chronological order
func (m *Manager) FilesForRoom(ctx context.Context, roomID string) ([]*types.StoredFile, error) {
	rows, err := m.db.QueryContext(ctx,
		`SELECT `+fileColumns+` FROM files WHERE room_id = ? ORDER BY timestamp ASC`, roomID)
	if err != nil {
		return nil, fmt.Errorf("failed to query room files: %w", err)
	}
	defer func() { _ = rows.Close() }()

	files := make([]*types.StoredFile, 0)
	for rows.Next() {
		file, err := scanFile(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan file row: %w", err)
		}
		files = append(files, file)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating file rows: %w", err)
	}
	return files, nil
}

// RoomHistory returns the messages and files of a room
func (m *Manager) RoomHistory(ctx context.Context, roomID string) (*types.RoomHistory, error) {
	if roomID == "" {
		return nil, types.ErrInvalidRoomID
	}

	messages, err := m.ListMessages(ctx, roomID)
	if err != nil {
		return nil, err
	}
	files, err := m.FilesForRoom(ctx, roomID)
	if err != nil {
		return nil, err
	}

	return &types.RoomHistory{
		RoomID:   roomID,
		Messages: messages,
		Files:    files,
	}, nil
}

// HealthCheck validates database connectivity
func (m *Manager) HealthCheck(ctx context.Context) error {
	if err := m.db.PingContext(ctx); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}

	var count int
	if err := m.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM messages").Scan(&count); err != nil {
		return fmt.Errorf("database read test failed: %w", err)
	}
	return nil
}

// GetDB returns the underlying database connection for migrations
func (m *Manager) GetDB() *sql.DB {
	return m.db
}

// Close stops the writer goroutine and closes the pool
func (m *Manager) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	m.mu.Unlock()

	close(m.shutdown)
	m.wg.Wait()

	if err := m.db.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}
	return nil
}
