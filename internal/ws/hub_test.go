package ws_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/aqwatch/aqms-pipeline/internal/livemap"
	wsHub "github.com/aqwatch/aqms-pipeline/internal/ws"
)

// --- helpers ----------------------------------------------------------------

func startHub(t *testing.T) (string, *wsHub.Hub, context.CancelFunc) {
	t.Helper()
	hub := wsHub.New()
	ctx, cancel := context.WithCancel(context.Background())
	srv := httptest.NewServer(http.HandlerFunc(hub.ServeHTTP))
	go hub.Run(ctx)
	t.Cleanup(func() {
		cancel()
		srv.Close()
	})
	return "ws" + strings.TrimPrefix(srv.URL, "http"), hub, cancel
}

func dial(t *testing.T, wsURL string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial %s: %v", wsURL, err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readMessage(t *testing.T, conn *websocket.Conn) wsHub.Message {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, raw, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("ReadMessage: %v", err)
	}
	var m wsHub.Message
	if err := json.Unmarshal(raw, &m); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	return m
}

func waitClients(t *testing.T, hub *wsHub.Hub, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for hub.Count() != n {
		if time.Now().After(deadline) {
			t.Fatalf("client count: got %d, want %d", hub.Count(), n)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func view(markers ...int) livemap.View {
	v := livemap.View{SessionID: "s1", Zoom: livemap.DefaultZoom}
	for i, id := range markers {
		v.Markers = append(v.Markers, livemap.Marker{Seq: i + 1, SiteID: id})
	}
	return v
}

// --- tests ------------------------------------------------------------------

func TestHub_RenderBroadcastsFullView(t *testing.T) {
	wsURL, hub, _ := startHub(t)
	a := dial(t, wsURL)
	b := dial(t, wsURL)
	waitClients(t, hub, 2)

	if err := hub.Render(view(39, 107)); err != nil {
		t.Fatalf("Render: %v", err)
	}
	for _, conn := range []*websocket.Conn{a, b} {
		m := readMessage(t, conn)
		if m.Event != "markers" || len(m.Data.Markers) != 2 || m.Data.Markers[1].SiteID != 107 {
			t.Errorf("unexpected message: %+v", m)
		}
	}
}

func TestHub_NewClientGetsLastView(t *testing.T) {
	wsURL, hub, _ := startHub(t)
	if err := hub.Render(view(39)); err != nil {
		t.Fatalf("Render: %v", err)
	}

	conn := dial(t, wsURL)
	m := readMessage(t, conn)
	if len(m.Data.Markers) != 1 || m.Data.SessionID != "s1" {
		t.Errorf("connect snapshot: %+v", m)
	}
}

func TestHub_ClientDisconnectUnregisters(t *testing.T) {
	wsURL, hub, _ := startHub(t)
	conn := dial(t, wsURL)
	waitClients(t, hub, 1)

	conn.Close()
	waitClients(t, hub, 0)
}

func TestHub_RenderAfterShutdown(t *testing.T) {
	_, hub, cancel := startHub(t)
	cancel()

	deadline := time.Now().Add(2 * time.Second)
	for {
		err := hub.Render(view(39))
		if errors.Is(err, wsHub.ErrClosed) {
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("expected ErrClosed, got %v", err)
		}
		time.Sleep(5 * time.Millisecond)
	}
}
