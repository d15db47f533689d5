package integration

import (
	"context"
	"encoding/json"
	"net"
	"path/filepath"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"supportdesk/internal/app"
	"supportdesk/internal/config"
	"supportdesk/pkg/types"
)

const readTimeout = 3 * time.Second

// startApplication runs a full application on a loopback port with a
// throwaway database and upload directory
func startApplication(t *testing.T) *app.Application {
	t.Helper()

	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Failed to find a free port: %v", err)
	}
	port := l.Addr().(*net.TCPAddr).Port
	l.Close()

	dir := t.TempDir()
	cfg := config.DefaultConfig()
	cfg.Database.Path = filepath.Join(dir, "supportdesk.db")
	cfg.Storage.UploadDir = filepath.Join(dir, "uploads")
	cfg.HTTP.Host = "127.0.0.1"
	cfg.HTTP.Port = port

	application, err := app.NewApplication(cfg)
	if err != nil {
		t.Fatalf("NewApplication failed: %v", err)
	}
	if err := application.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = application.Stop(ctx)
	})
	return application
}

// client is a browser stand-in speaking the frame protocol
type client struct {
	t    *testing.T
	conn *websocket.Conn
}

func dial(t *testing.T, application *app.Application) *client {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial("ws://"+application.GetAddr()+"/ws", nil)
	if err != nil {
		t.Fatalf("Failed to dial websocket: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return &client{t: t, conn: conn}
}

func (c *client) send(event string, payload any) {
	c.t.Helper()
	data, err := json.Marshal(payload)
	if err != nil {
		c.t.Fatalf("Failed to marshal %s payload: %v", event, err)
	}
	if err := c.conn.WriteJSON(types.Envelope{Event: event, Payload: data}); err != nil {
		c.t.Fatalf("Failed to send %s: %v", event, err)
	}
}

// expect reads frames until one named event arrives, skipping others
func (c *client) expect(event string, out any) {
	c.t.Helper()
	deadline := time.Now().Add(readTimeout)
	for {
		c.conn.SetReadDeadline(deadline)
		var frame types.Envelope
		if err := c.conn.ReadJSON(&frame); err != nil {
			c.t.Fatalf("Waiting for %s: %v", event, err)
		}
		if frame.Event != event {
			continue
		}
		if out != nil {
			if err := json.Unmarshal(frame.Payload, out); err != nil {
				c.t.Fatalf("Failed to decode %s payload: %v", event, err)
			}
		}
		return
	}
}
