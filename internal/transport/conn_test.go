package transport

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/profai/voice-gateway/internal/protocol"
)

func connLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// newConnPair returns the server-side Conn and the raw client socket
// driving it.
func newConnPair(t *testing.T) (*Conn, *websocket.Conn) {
	t.Helper()
	upgrader := websocket.Upgrader{}
	connCh := make(chan *Conn, 1)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		connCh <- NewConn(ws, "client-test", connLogger())
	}))
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/"
	client, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = client.Close() })

	select {
	case conn := <-connCh:
		t.Cleanup(func() { _ = conn.Close() })
		return conn, client
	case <-time.After(2 * time.Second):
		t.Fatalf("server connection not established")
		return nil, nil
	}
}

func TestSendStampsEnvelope(t *testing.T) {
	conn, client := newConnPair(t)

	if err := conn.Send(protocol.NewEvent("pong").With("message", "connection alive")); err != nil {
		t.Fatalf("Send: %v", err)
	}

	_, data, err := client.ReadMessage()
	if err != nil {
		t.Fatalf("client read: %v", err)
	}
	var decoded map[string]any
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if decoded["type"] != "pong" {
		t.Fatalf("type = %v", decoded["type"])
	}
	if decoded["client_id"] != "client-test" {
		t.Fatalf("client_id = %v", decoded["client_id"])
	}
	if _, ok := decoded["timestamp"].(float64); !ok {
		t.Fatalf("timestamp missing or not numeric: %v", decoded["timestamp"])
	}
}

func TestReadReturnsClientPayload(t *testing.T) {
	conn, client := newConnPair(t)

	if err := client.WriteMessage(websocket.TextMessage, []byte(`{"type":"ping"}`)); err != nil {
		t.Fatalf("client write: %v", err)
	}
	data, err := conn.Read()
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if string(data) != `{"type":"ping"}` {
		t.Fatalf("payload = %s", data)
	}
}

func TestNormalClosureMarksDisconnected(t *testing.T) {
	conn, client := newConnPair(t)

	deadline := time.Now().Add(time.Second)
	if err := client.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye"), deadline); err != nil {
		t.Fatalf("client close: %v", err)
	}

	if _, err := conn.Read(); err == nil {
		t.Fatalf("expected read error after close")
	}
	if conn.Connected() {
		t.Fatalf("connection still marked connected after close")
	}
	if conn.LastClosure() != ClosureNormal {
		t.Fatalf("closure = %v, want normal", conn.LastClosure())
	}
	if err := conn.Send(protocol.NewEvent("pong")); err == nil {
		t.Fatalf("Send should fail once disconnected")
	}
}
