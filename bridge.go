package assistant

import (
	"encoding/json"
	"sync"

	"github.com/creastat/infra/telemetry"
	"github.com/gorilla/websocket"

	"github.com/creastat/assistant/core"
	"github.com/creastat/assistant/protocol"
)

// BridgeConfig holds WebSocket bridge configuration
type BridgeConfig struct {
	Conn      *websocket.Conn
	SessionID string

	// Buffer bounds the event queue between the session and the
	// writer goroutine (default 64). Events beyond it are dropped.
	Buffer int

	Logger telemetry.Logger
}

// Bridge forwards session events to a WebSocket connection as JSON
// text frames. Session callbacks never block on the network: events
// flow through a bounded queue drained by a single writer goroutine,
// and a dead connection detaches the bridge without disturbing the
// session.
type Bridge struct {
	config BridgeConfig
	logger telemetry.Logger

	events chan core.Event
	done   chan struct{}
	once   sync.Once

	mu     sync.Mutex
	closed bool
}

// NewBridge creates the bridge and starts its writer goroutine.
// Attach it with session.Subscribe(bridge.Handle).
func NewBridge(config BridgeConfig) *Bridge {
	if config.Buffer <= 0 {
		config.Buffer = 64
	}
	b := &Bridge{
		config: config,
		logger: config.Logger.WithModule("bridge"),
		events: make(chan core.Event, config.Buffer),
		done:   make(chan struct{}),
	}
	go b.run()
	return b
}

// Handle enqueues a session event for delivery. Safe to pass to
// VoiceSession.Subscribe; drops the event when the queue is full or
// the bridge is closed.
func (b *Bridge) Handle(event core.Event) {
	b.mu.Lock()
	closed := b.closed
	b.mu.Unlock()
	if closed {
		return
	}

	select {
	case b.events <- event:
	default:
		b.logger.Warn("Event queue full, dropping event",
			telemetry.String("type", string(event.EventType())),
			telemetry.String("session_id", b.config.SessionID))
	}
}

// Close detaches the bridge and stops the writer goroutine. It does
// not close the underlying connection; the HTTP layer owns it.
func (b *Bridge) Close() {
	b.mu.Lock()
	b.closed = true
	b.mu.Unlock()
	b.once.Do(func() { close(b.done) })
}

// Done is closed when the writer goroutine exits, either via Close or
// because the connection failed.
func (b *Bridge) Done() <-chan struct{} {
	return b.done
}

func (b *Bridge) run() {
	b.logger.Info("Starting WebSocket bridge", telemetry.String("session_id", b.config.SessionID))

	for {
		select {
		case <-b.done:
			b.logger.Info("WebSocket bridge closed", telemetry.String("session_id", b.config.SessionID))
			return

		case event := <-b.events:
			if !b.write(event) {
				// Connection is gone; detach so session callbacks keep
				// draining into the closed-bridge fast path.
				b.Close()
				return
			}
		}
	}
}

// write sends one event; false means the connection failed
func (b *Bridge) write(event core.Event) bool {
	msg := protocol.EventToMessage(event, b.config.SessionID)
	if msg == nil {
		b.logger.Debug("Skipping unknown event type", telemetry.String("session_id", b.config.SessionID))
		return true
	}

	data, err := json.Marshal(msg)
	if err != nil {
		b.logger.Error("Failed to marshal message", telemetry.Err(err),
			telemetry.String("session_id", b.config.SessionID),
			telemetry.String("type", string(msg.Type)))
		return true
	}

	if err := b.config.Conn.WriteMessage(websocket.TextMessage, data); err != nil {
		b.logger.Error("Failed to send message to WebSocket", telemetry.Err(err),
			telemetry.String("session_id", b.config.SessionID),
			telemetry.String("type", string(msg.Type)))
		return false
	}

	b.logger.Debug("Sent event to WebSocket",
		telemetry.String("type", string(msg.Type)),
		telemetry.String("session_id", b.config.SessionID))
	return true
}
