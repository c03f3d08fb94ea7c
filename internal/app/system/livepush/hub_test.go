package livepush

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/dalemusser/stratacomm/internal/domain/models"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

func dialHub(t *testing.T, h *Hub, userID string) *websocket.Conn {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h.Serve(w, r, userID)
	}))
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { ws.Close() })

	deadline := time.Now().Add(2 * time.Second)
	for h.Connections(userID) == 0 {
		if time.Now().After(deadline) {
			t.Fatal("connection was not registered")
		}
		time.Sleep(5 * time.Millisecond)
	}
	return ws
}

func TestHub_NotifyDeliversToEverySession(t *testing.T) {
	h := NewHub(zap.NewNop(), nil)
	a := dialHub(t, h, "alice")
	b := dialHub(t, h, "alice")

	if n := h.Connections("alice"); n != 2 {
		t.Fatalf("Connections = %d, want 2", n)
	}

	msg := models.Message{ID: "m1", From: "bob", Content: "hi", Type: models.MessageTypeText}
	if err := h.Notify(context.Background(), "alice", MessageEvent(msg)); err != nil {
		t.Fatalf("Notify: %v", err)
	}

	for i, ws := range []*websocket.Conn{a, b} {
		_ = ws.SetReadDeadline(time.Now().Add(2 * time.Second))
		_, data, err := ws.ReadMessage()
		if err != nil {
			t.Fatalf("session %d read: %v", i, err)
		}
		var ev Event
		if err := json.Unmarshal(data, &ev); err != nil {
			t.Fatalf("session %d decode: %v", i, err)
		}
		if ev.Kind != KindMessage || ev.Message == nil || ev.Message.ID != "m1" {
			t.Errorf("session %d got %+v", i, ev)
		}
	}
}

func TestHub_NotifyOfflineUser(t *testing.T) {
	h := NewHub(zap.NewNop(), nil)
	err := h.Notify(context.Background(), "nobody", Event{Kind: KindMessage})
	if !errors.Is(err, ErrNotConnected) {
		t.Errorf("err = %v, want ErrNotConnected", err)
	}
}

func TestHub_DisconnectUnregisters(t *testing.T) {
	h := NewHub(zap.NewNop(), nil)
	ws := dialHub(t, h, "carol")
	ws.Close()

	deadline := time.Now().Add(2 * time.Second)
	for h.Connections("carol") != 0 {
		if time.Now().After(deadline) {
			t.Fatal("connection was not removed after close")
		}
		time.Sleep(5 * time.Millisecond)
	}
}
