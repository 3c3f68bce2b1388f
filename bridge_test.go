package assistant

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/creastat/assistant/core"
	"github.com/creastat/assistant/protocol"
)

func newBridgeServer(t *testing.T) (*websocket.Conn, chan protocol.OutputMessage, func()) {
	t.Helper()

	received := make(chan protocol.OutputMessage, 16)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		upgrader := websocket.Upgrader{}
		c, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer c.Close()
		for {
			mt, data, err := c.ReadMessage()
			if err != nil {
				return
			}
			if mt != websocket.TextMessage {
				continue
			}
			var msg protocol.OutputMessage
			if err := json.Unmarshal(data, &msg); err != nil {
				t.Errorf("Failed to decode frame: %v", err)
				continue
			}
			received <- msg
		}
	}))

	u := "ws" + strings.TrimPrefix(server.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(u, nil)
	if err != nil {
		server.Close()
		t.Fatalf("Failed to dial: %v", err)
	}

	return conn, received, func() {
		conn.Close()
		server.Close()
	}
}

func readMessage(t *testing.T, ch <-chan protocol.OutputMessage) protocol.OutputMessage {
	t.Helper()
	select {
	case msg := <-ch:
		return msg
	case <-time.After(2 * time.Second):
		t.Fatal("Timed out waiting for message")
		return protocol.OutputMessage{}
	}
}

func TestBridgeForwardsEvents(t *testing.T) {
	conn, received, cleanup := newBridgeServer(t)
	defer cleanup()

	bridge := NewBridge(BridgeConfig{
		Conn:      conn,
		SessionID: "test-session",
		Logger:    testLogger(),
	})
	defer bridge.Close()

	bridge.Handle(core.StateEvent{State: core.StateWakeListening})
	bridge.Handle(core.WakeEvent{Phrase: "hey buddy", Transcript: "hey buddy there"})
	bridge.Handle(core.MessageEvent{Message: core.Message{
		ID:      "msg-1",
		Role:    core.RoleAssistant,
		Content: "Yes? I'm listening!",
		Emotion: "excited",
	}})

	msg := readMessage(t, received)
	if msg.Type != protocol.OutputStateChanged {
		t.Fatalf("Expected state.changed, got %s", msg.Type)
	}
	if msg.SessionID != "test-session" {
		t.Errorf("Unexpected session id %q", msg.SessionID)
	}

	msg = readMessage(t, received)
	if msg.Type != protocol.OutputWakeDetected {
		t.Fatalf("Expected wake.detected, got %s", msg.Type)
	}
	payload, ok := msg.Payload.(map[string]any)
	if !ok {
		t.Fatalf("Payload is not a map: %T", msg.Payload)
	}
	if payload["phrase"] != "hey buddy" {
		t.Errorf("Unexpected phrase %v", payload["phrase"])
	}

	msg = readMessage(t, received)
	if msg.Type != protocol.OutputMessageAppended {
		t.Fatalf("Expected message.appended, got %s", msg.Type)
	}
}

func TestBridgeDropsAfterClose(t *testing.T) {
	conn, received, cleanup := newBridgeServer(t)
	defer cleanup()

	bridge := NewBridge(BridgeConfig{
		Conn:      conn,
		SessionID: "test-session",
		Logger:    testLogger(),
	})

	bridge.Close()
	select {
	case <-bridge.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("Bridge did not shut down")
	}

	// Events after close are dropped, not sent
	bridge.Handle(core.StateEvent{State: core.StateIdle})
	select {
	case msg := <-received:
		t.Fatalf("Unexpected message after close: %s", msg.Type)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestBridgeDetachesOnDeadConnection(t *testing.T) {
	conn, _, cleanup := newBridgeServer(t)
	defer cleanup()

	bridge := NewBridge(BridgeConfig{
		Conn:      conn,
		SessionID: "test-session",
		Logger:    testLogger(),
	})

	conn.Close()

	// Writes against the dead connection shut the bridge down; further
	// events must not block the caller.
	deadline := time.After(2 * time.Second)
	for {
		bridge.Handle(core.StateEvent{State: core.StateIdle})
		select {
		case <-bridge.Done():
			return
		case <-deadline:
			t.Fatal("Bridge did not detach from dead connection")
		case <-time.After(10 * time.Millisecond):
		}
	}
}
