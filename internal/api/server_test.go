package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"supportdesk/internal/database"
	pkgdatabase "supportdesk/pkg/database"
	"supportdesk/pkg/types"
)

type fakeStatus struct {
	status types.QueueStatus
	err    error
}

func (f *fakeStatus) Status(ctx context.Context) (types.QueueStatus, error) {
	return f.status, f.err
}

type fakeRegistry struct{}

func (fakeRegistry) GetStats() map[string]int {
	return map[string]int{"total_connections": 2}
}

func setupTestServer(t *testing.T) (*Server, *database.Manager, *fakeStatus) {
	t.Helper()

	config := pkgdatabase.DefaultConfig()
	config.DatabasePath = filepath.Join(t.TempDir(), "api.db")
	store, err := database.NewManager(config)
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	if err := pkgdatabase.NewMigrationManager(store.GetDB(), "").ApplyMigrations(); err != nil {
		t.Fatalf("Failed to apply migrations: %v", err)
	}

	status := &fakeStatus{status: types.QueueStatus{
		QueueState:  types.QueueSnapshot{"tech": {{CustomerID: "u1", Category: "tech"}}, "billing": {}},
		Counts:      map[string]int{"tech": 1, "billing": 0, "total": 1},
		Technicians: 2,
		Sessions:    1,
	}}

	server := NewServer(store, status, fakeRegistry{}, Config{UploadDir: t.TempDir()})
	return server, store, status
}

func do(t *testing.T, server *Server, method, target string, body io.Reader, contentType string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, body)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	w := httptest.NewRecorder()
	server.ServeHTTP(w, req)
	return w
}

func TestServer_CreateAndListMessages(t *testing.T) {
	server, _, _ := setupTestServer(t)

	w := do(t, server, http.MethodPost, "/api/chat/messages",
		strings.NewReader(`{"user":"customer","message":"hello","roomId":"chat-u1-t1"}`), "application/json")
	if w.Code != http.StatusCreated {
		t.Fatalf("POST status = %d, body %s", w.Code, w.Body)
	}
	var created CreatedResponse
	if err := json.NewDecoder(w.Body).Decode(&created); err != nil || created.ID == "" {
		t.Fatalf("expected created id, got %+v (%v)", created, err)
	}

	w = do(t, server, http.MethodGet, "/api/chat/messages", nil, "")
	if w.Code != http.StatusOK {
		t.Fatalf("GET status = %d", w.Code)
	}
	var messages []types.StoredMessage
	if err := json.NewDecoder(w.Body).Decode(&messages); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(messages) != 1 || messages[0].Text != "hello" || messages[0].Sender != "customer" {
		t.Errorf("unexpected messages: %+v", messages)
	}
}

func TestServer_CreateMessageValidation(t *testing.T) {
	server, _, _ := setupTestServer(t)

	tests := []struct {
		name string
		body string
	}{
		{"invalid json", `{`},
		{"missing user", `{"message":"hi"}`},
		{"blank message", `{"user":"u","message":"  "}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(t, server, http.MethodPost, "/api/chat/messages", strings.NewReader(tt.body), "application/json")
			if w.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", w.Code)
			}
			var resp ErrorResponse
			if err := json.NewDecoder(w.Body).Decode(&resp); err != nil || resp.Code != http.StatusBadRequest {
				t.Errorf("expected ErrorResponse, got %+v (%v)", resp, err)
			}
		})
	}
}

func TestServer_RoomHistory(t *testing.T) {
	server, store, _ := setupTestServer(t)
	ctx := context.Background()

	base := time.Now().Add(-time.Minute)
	_ = store.AppendMessage(ctx, &types.StoredMessage{ID: "m2", RoomID: "room-1", Sender: "technician", Text: "second", Timestamp: base.Add(time.Second)})
	_ = store.AppendMessage(ctx, &types.StoredMessage{ID: "m1", RoomID: "room-1", Sender: "customer", Text: "first", Timestamp: base})
	_ = store.AppendMessage(ctx, &types.StoredMessage{ID: "m3", RoomID: "room-2", Sender: "customer", Text: "other", Timestamp: base})
	_ = store.CreateFile(ctx, &types.StoredFile{ID: "f1", Filename: "a.txt", RoomID: "room-1", InlineContent: "x", Timestamp: base})

	w := do(t, server, http.MethodGet, "/api/chat/history/room-1", nil, "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", w.Code, w.Body)
	}
	var history types.RoomHistory
	if err := json.NewDecoder(w.Body).Decode(&history); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(history.Messages) != 2 || history.Messages[0].ID != "m1" || history.Messages[1].ID != "m2" {
		t.Errorf("expected m1, m2 in order, got %+v", history.Messages)
	}
	if len(history.Files) != 1 || history.Files[0].ID != "f1" {
		t.Errorf("unexpected files: %+v", history.Files)
	}
}

func uploadBody(t *testing.T, filename, content string, fields map[string]string) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		_ = mw.WriteField(k, v)
	}
	part, err := mw.CreateFormFile("file", filename)
	if err != nil {
		t.Fatalf("CreateFormFile: %v", err)
	}
	_, _ = part.Write([]byte(content))
	_ = mw.Close()
	return &buf, mw.FormDataContentType()
}

func TestServer_UploadDownloadAndRoomFiles(t *testing.T) {
	server, _, _ := setupTestServer(t)

	body, contentType := uploadBody(t, "notes.txt", "printer logs", map[string]string{"roomId": "room-1", "sender": "customer"})
	w := do(t, server, http.MethodPost, "/api/file/upload", body, contentType)
	if w.Code != http.StatusCreated {
		t.Fatalf("upload status = %d, body %s", w.Code, w.Body)
	}
	var created CreatedResponse
	_ = json.NewDecoder(w.Body).Decode(&created)
	if created.ID == "" || created.Filename != "notes.txt" {
		t.Fatalf("unexpected upload response: %+v", created)
	}

	w = do(t, server, http.MethodGet, "/api/file/download/"+created.ID, nil, "")
	if w.Code != http.StatusOK {
		t.Fatalf("download status = %d", w.Code)
	}
	if w.Body.String() != "printer logs" {
		t.Errorf("downloaded %q", w.Body.String())
	}
	if !strings.Contains(w.Header().Get("Content-Disposition"), "notes.txt") {
		t.Errorf("missing attachment filename: %q", w.Header().Get("Content-Disposition"))
	}

	w = do(t, server, http.MethodGet, "/api/file/room/room-1", nil, "")
	var files []types.StoredFile
	_ = json.NewDecoder(w.Body).Decode(&files)
	if len(files) != 1 || files[0].Sender != "customer" || files[0].Size != int64(len("printer logs")) {
		t.Errorf("unexpected room files: %+v", files)
	}
}

func TestServer_UploadRequiresFile(t *testing.T) {
	server, _, _ := setupTestServer(t)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	_ = mw.WriteField("roomId", "room-1")
	_ = mw.Close()

	w := do(t, server, http.MethodPost, "/api/file/upload", &buf, mw.FormDataContentType())
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
}

func TestServer_DownloadInlineAndMissing(t *testing.T) {
	server, store, _ := setupTestServer(t)

	_ = store.CreateFile(context.Background(), &types.StoredFile{
		ID: "inline", Filename: "hi.txt", MimeType: "text/plain",
		InlineContent: "data:text/plain;base64,aGVsbG8=", RoomID: "room-1",
	})

	w := do(t, server, http.MethodGet, "/api/file/download/inline", nil, "")
	if w.Code != http.StatusOK || w.Body.String() != "hello" {
		t.Errorf("inline download = %d %q", w.Code, w.Body.String())
	}

	w = do(t, server, http.MethodGet, "/api/file/download/nope", nil, "")
	if w.Code != http.StatusNotFound {
		t.Errorf("missing file status = %d, want 404", w.Code)
	}
}

func TestDecodeInline(t *testing.T) {
	tests := []struct {
		content string
		want    string
		wantErr bool
	}{
		{"plain text", "plain text", false},
		{"data:text/plain;base64,aGk=", "hi", false},
		{"data:text/plain,hi", "hi", false},
		{"data:broken", "", true},
		{"", "", true},
	}
	for _, tt := range tests {
		got, err := decodeInline(tt.content)
		if (err != nil) != tt.wantErr {
			t.Errorf("decodeInline(%q) error = %v", tt.content, err)
			continue
		}
		if string(got) != tt.want {
			t.Errorf("decodeInline(%q) = %q, want %q", tt.content, got, tt.want)
		}
	}
}

func TestServer_QueueStatus(t *testing.T) {
	server, _, status := setupTestServer(t)

	w := do(t, server, http.MethodGet, "/api/admin/queue-status", nil, "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var got types.QueueStatus
	if err := json.NewDecoder(w.Body).Decode(&got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Counts["total"] != 1 || got.Technicians != 2 || len(got.QueueState["tech"]) != 1 {
		t.Errorf("unexpected status: %+v", got)
	}
	if strings.Contains(w.Body.String(), "connectionId") {
		t.Error("connection IDs must not be exposed")
	}

	status.err = errors.New("hub is not running")
	w = do(t, server, http.MethodGet, "/api/admin/queue-status", nil, "")
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", w.Code)
	}
}

func TestServer_HealthCheck(t *testing.T) {
	server, store, status := setupTestServer(t)

	w := do(t, server, http.MethodGet, "/health", nil, "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", w.Code, w.Body)
	}
	var health HealthResponse
	_ = json.NewDecoder(w.Body).Decode(&health)
	if health.Status != "healthy" || health.Connections["total_connections"] != 2 {
		t.Errorf("unexpected health: %+v", health)
	}

	status.err = errors.New("stopped")
	w = do(t, server, http.MethodGet, "/health", nil, "")
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d with stopped dispatcher, want 503", w.Code)
	}

	status.err = nil
	_ = store.Close()
	w = do(t, server, http.MethodGet, "/health", nil, "")
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d with closed database, want 503", w.Code)
	}
}

func TestServer_CORSMiddleware(t *testing.T) {
	server, _, _ := setupTestServer(t)

	w := do(t, server, http.MethodOptions, "/api/chat/messages", nil, "")
	if w.Code != http.StatusOK {
		t.Errorf("preflight status = %d", w.Code)
	}
	if w.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Error("missing CORS header")
	}

	w = do(t, server, http.MethodGet, "/health", nil, "")
	if w.Header().Get("Content-Type") != "application/json" {
		t.Errorf("Content-Type = %q", w.Header().Get("Content-Type"))
	}
}

func TestServer_MethodNotAllowed(t *testing.T) {
	server, _, _ := setupTestServer(t)

	w := do(t, server, http.MethodDelete, "/api/chat/messages", nil, "")
	if w.Code != http.StatusMethodNotAllowed {
		t.Errorf("status = %d, want 405", w.Code)
	}
}
