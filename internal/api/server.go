package api

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"supportdesk/pkg/interfaces"
	"supportdesk/pkg/types"
)

// StatusProvider returns the dispatcher's queue view; the hub implements it
type StatusProvider interface {
	Status(ctx context.Context) (types.QueueStatus, error)
}

// Registry reports connection statistics
type Registry interface {
	GetStats() map[string]int
}

// Config holds HTTP API settings
type Config struct {
	UploadDir      string
	MaxUploadBytes int64
}

// Server serves message/file history, uploads and diagnostics.
// It never mutates dispatcher state.
type Server struct {
	store    interfaces.MessageStore
	status   StatusProvider
	registry Registry
	config   Config
	router   *http.ServeMux
	handler  http.Handler
	started  time.Time
}

// NewServer creates the API server and registers its routes
func NewServer(store interfaces.MessageStore, status StatusProvider, registry Registry, config Config) *Server {
	if config.UploadDir == "" {
		config.UploadDir = "uploads"
	}
	if config.MaxUploadBytes <= 0 {
		config.MaxUploadBytes = 25 << 20
	}

	s := &Server{
		store:    store,
		status:   status,
		registry: registry,
		config:   config,
		router:   http.NewServeMux(),
		started:  time.Now(),
	}

	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.HandleFunc("GET /api/chat/messages", s.listMessages)
	s.router.HandleFunc("POST /api/chat/messages", s.createMessage)
	s.router.HandleFunc("GET /api/chat/history/{roomId}", s.roomHistory)
	s.router.HandleFunc("POST /api/file/upload", s.uploadFile)
	s.router.HandleFunc("GET /api/file/download/{id}", s.downloadFile)
	s.router.HandleFunc("GET /api/file/room/{roomId}", s.roomFiles)
	s.router.HandleFunc("GET /api/admin/queue-status", s.queueStatus)
	s.router.HandleFunc("GET /health", s.healthCheck)

	s.handler = s.corsMiddleware(s.jsonMiddleware(s.router))
}

// ServeHTTP applies CORS and JSON headers to every route
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

// CreateMessageRequest is the POST /api/chat/messages body
type CreateMessageRequest struct {
	User    string `json:"user"`
	Message string `json:"message"`
	RoomID  string `json:"roomId"`
}

// CreatedResponse is returned for newly stored records
type CreatedResponse struct {
	ID       string `json:"id"`
	Filename string `json:"filename,omitempty"`
}

type HealthResponse struct {
	Status      string                 `json:"status"`
	Timestamp   time.Time              `json:"timestamp"`
	Database    string                 `json:"database"`
	Dispatcher  string                 `json:"dispatcher"`
	Connections map[string]int         `json:"connections"`
	System      map[string]interface{} `json:"system"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// GET /api/chat/messages
func (s *Server) listMessages(w http.ResponseWriter, r *http.Request) {
	messages, err := s.store.ListMessages(r.Context(), r.URL.Query().Get("roomId"))
	if err != nil {
		log.Printf("Failed to list messages: %v", err)
		s.sendError(w, "Failed to list messages", http.StatusInternalServerError)
		return
	}
	if messages == nil {
		messages = []*types.StoredMessage{}
	}
	s.writeJSON(w, http.StatusOK, messages)
}

// POST /api/chat/messages
func (s *Server) createMessage(w http.ResponseWriter, r *http.Request) {
	var req CreateMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendError(w, "Invalid JSON", http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(req.User) == "" || strings.TrimSpace(req.Message) == "" {
		s.sendError(w, "user and message are required", http.StatusBadRequest)
		return
	}

	message := &types.StoredMessage{
		ID:        uuid.New().String(),
		RoomID:    req.RoomID,
		Sender:    req.User,
		Text:      req.Message,
		Timestamp: time.Now(),
	}
	if err := s.store.AppendMessage(r.Context(), message); err != nil {
		log.Printf("Failed to store message: %v", err)
		s.sendError(w, "Failed to store message", http.StatusInternalServerError)
		return
	}

	s.writeJSON(w, http.StatusCreated, CreatedResponse{ID: message.ID})
}

// GET /api/chat/history/{roomId}
func (s *Server) roomHistory(w http.ResponseWriter, r *http.Request) {
	roomID := r.PathValue("roomId")
	if !types.IsValidRoomID(roomID) {
		s.sendError(w, types.ErrInvalidRoomID.Error(), http.StatusBadRequest)
		return
	}

	history, err := s.store.RoomHistory(r.Context(), roomID)
	if err != nil {
		log.Printf("Failed to load history for %s: %v", roomID, err)
		s.sendError(w, "Failed to load history", http.StatusInternalServerError)
		return
	}
	s.writeJSON(w, http.StatusOK, history)
}

// POST /api/file/upload (multipart field "file", optional roomId and sender)
func (s *Server) uploadFile(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.config.MaxUploadBytes)
	if err := r.ParseMultipartForm(s.config.MaxUploadBytes); err != nil {
		s.sendError(w, "Invalid multipart upload", http.StatusBadRequest)
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		s.sendError(w, "file field is required", http.StatusBadRequest)
		return
	}
	defer file.Close()

	if err := os.MkdirAll(s.config.UploadDir, 0o755); err != nil {
		log.Printf("Failed to create upload dir: %v", err)
		s.sendError(w, "Failed to store file", http.StatusInternalServerError)
		return
	}

	id := uuid.New().String()
	path := filepath.Join(s.config.UploadDir, id)
	size, err := saveUpload(path, file)
	if err != nil {
		log.Printf("Failed to save upload %s: %v", header.Filename, err)
		s.sendError(w, "Failed to store file", http.StatusInternalServerError)
		return
	}

	mimeType := header.Header.Get("Content-Type")
	if mimeType == "" {
		mimeType = mime.TypeByExtension(filepath.Ext(header.Filename))
	}

	record := &types.StoredFile{
		ID:        id,
		Filename:  filepath.Base(header.Filename),
		MimeType:  mimeType,
		Path:      path,
		RoomID:    r.FormValue("roomId"),
		Sender:    r.FormValue("sender"),
		Size:      size,
		Timestamp: time.Now(),
	}
	if err := s.store.CreateFile(r.Context(), record); err != nil {
		_ = os.Remove(path)
		log.Printf("Failed to record upload %s: %v", record.Filename, err)
		s.sendError(w, "Failed to store file", http.StatusInternalServerError)
		return
	}

	s.writeJSON(w, http.StatusCreated, CreatedResponse{ID: id, Filename: record.Filename})
}

func saveUpload(path string, src io.Reader) (int64, error) {
	dst, err := os.Create(path)
	if err != nil {
		return 0, err
	}
	size, copyErr := io.Copy(dst, src)
	closeErr := dst.Close()
	if copyErr != nil {
		_ = os.Remove(path)
		return 0, copyErr
	}
	if closeErr != nil {
		_ = os.Remove(path)
		return 0, closeErr
	}
	return size, nil
}

// GET /api/file/download/{id}
func (s *Server) downloadFile(w http.ResponseWriter, r *http.Request) {
	record, err := s.store.GetFile(r.Context(), r.PathValue("id"))
	if err != nil {
		if errors.Is(err, interfaces.ErrRecordNotFound) {
			s.sendError(w, "File not found", http.StatusNotFound)
			return
		}
		log.Printf("Failed to load file record: %v", err)
		s.sendError(w, "Failed to load file", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": record.Filename}))
	mimeType := record.MimeType
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}
	w.Header().Set("Content-Type", mimeType)

	if record.Path != "" {
		http.ServeFile(w, r, record.Path)
		return
	}

	data, err := decodeInline(record.InlineContent)
	if err != nil {
		s.sendError(w, "File content unavailable", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Length", fmt.Sprint(len(data)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

// decodeInline turns a socket-announced file body into bytes.
// Data URLs are base64-decoded; anything else is returned verbatim.
func decodeInline(content string) ([]byte, error) {
	if content == "" {
		return nil, errors.New("no inline content")
	}
	if !strings.HasPrefix(content, "data:") {
		return []byte(content), nil
	}
	meta, body, ok := strings.Cut(content, ",")
	if !ok {
		return nil, errors.New("malformed data URL")
	}
	if strings.HasSuffix(meta, ";base64") {
		return base64.StdEncoding.DecodeString(body)
	}
	return []byte(body), nil
}

// GET /api/file/room/{roomId}
func (s *Server) roomFiles(w http.ResponseWriter, r *http.Request) {
	roomID := r.PathValue("roomId")
	if !types.IsValidRoomID(roomID) {
		s.sendError(w, types.ErrInvalidRoomID.Error(), http.StatusBadRequest)
		return
	}

	files, err := s.store.FilesForRoom(r.Context(), roomID)
	if err != nil {
		log.Printf("Failed to list files for %s: %v", roomID, err)
		s.sendError(w, "Failed to list files", http.StatusInternalServerError)
		return
	}
	if files == nil {
		files = []*types.StoredFile{}
	}
	s.writeJSON(w, http.StatusOK, files)
}

// GET /api/admin/queue-status
func (s *Server) queueStatus(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status, err := s.status.Status(ctx)
	if err != nil {
		log.Printf("Queue status unavailable: %v", err)
		s.sendError(w, "Dispatcher unavailable", http.StatusServiceUnavailable)
		return
	}
	s.writeJSON(w, http.StatusOK, status)
}

// GET /health
func (s *Server) healthCheck(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := "healthy"
	dbStatus := "healthy"
	dispatcherStatus := "healthy"

	if err := s.store.HealthCheck(ctx); err != nil {
		status = "unhealthy"
		dbStatus = fmt.Sprintf("error: %v", err)
	}

	queue, err := s.status.Status(ctx)
	if err != nil {
		status = "unhealthy"
		dispatcherStatus = fmt.Sprintf("error: %v", err)
	}

	response := HealthResponse{
		Status:      status,
		Timestamp:   time.Now(),
		Database:    dbStatus,
		Dispatcher:  dispatcherStatus,
		Connections: s.registry.GetStats(),
		System: map[string]interface{}{
			"uptime":   time.Since(s.started).Round(time.Second).String(),
			"waiting":  queue.Counts["total"],
			"sessions": queue.Sessions,
		},
	}

	code := http.StatusOK
	if status == "unhealthy" {
		code = http.StatusServiceUnavailable
	}
	s.writeJSON(w, code, response)
}

func (s *Server) writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("Failed to encode response: %v", err)
	}
}

func (s *Server) sendError(w http.ResponseWriter, message string, code int) {
	s.writeJSON(w, code, ErrorResponse{
		Error:   http.StatusText(code),
		Code:    code,
		Message: message,
	})
}

func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		w.Header().Set("Access-Control-Max-Age", "86400")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (s *Server) jsonMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		next.ServeHTTP(w, r)
	})
}
