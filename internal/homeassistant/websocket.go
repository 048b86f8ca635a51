package homeassistant

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/munin-ai/munin/internal/backoff"
)

const (
	supervisorWSURL = "ws://supervisor/core/websocket"
	defaultWSURL    = "ws://homeassistant:8123/api/websocket"

	// commandTimeout bounds SendCommand waits.
	commandTimeout = 30 * time.Second
)

// EventHandler receives dispatched events. Handlers registered under "*"
// see every event. A panicking handler is isolated; delivery to peers
// continues.
type EventHandler func(event Event)

// wsFrame is one inbound frame of the Home Assistant WebSocket protocol.
type wsFrame struct {
	Type    string          `json:"type"`
	ID      int64           `json:"id,omitempty"`
	Success *bool           `json:"success,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Event   json.RawMessage `json:"event,omitempty"`
	Message string          `json:"message,omitempty"`
}

// BridgeConfig configures the event bridge.
type BridgeConfig struct {
	URL             string
	Token           string
	SupervisorToken string

	// Backoff overrides the reconnect schedule; zero value uses the
	// standard 1 s doubling to 60 s.
	Backoff backoff.Policy

	// Dialer overrides the websocket dialer for tests.
	Dialer *websocket.Dialer
}

// Bridge maintains the long-lived authenticated WebSocket connection,
// multiplexes subscriptions and commands, and delivers events to
// registered handlers. Connection loss triggers reconnection with
// exponential backoff; a successful authentication resets the schedule.
type Bridge struct {
	url    string
	token  string
	dialer *websocket.Dialer
	policy backoff.Policy
	log    *slog.Logger

	mu            sync.Mutex
	conn          *websocket.Conn
	nextID        int64
	handlers      map[string][]EventHandler
	subscriptions []string
	pending       map[int64]chan *wsFrame
	closed        bool
	stopCh        chan struct{}
	stopOnce      sync.Once
}

// NewBridge creates a bridge from config.
func NewBridge(cfg BridgeConfig) *Bridge {
	dialer := cfg.Dialer
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}
	policy := cfg.Backoff
	if policy.InitialMs == 0 {
		policy = backoff.ReconnectPolicy()
	}

	url, token := resolveWebSocketURL(cfg)
	return &Bridge{
		url:      url,
		token:    token,
		dialer:   dialer,
		policy:   policy,
		log:      slog.With("component", "bridge"),
		handlers: map[string][]EventHandler{},
		pending:  map[int64]chan *wsFrame{},
		stopCh:   make(chan struct{}),
	}
}

// resolveWebSocketURL picks the socket endpoint: supervisor proxy when a
// supervisor token is present and no URL is configured, the stock add-on
// hostname when nothing is configured, or the explicit URL with its scheme
// rewritten to ws(s) and /api/websocket appended only when absent.
func resolveWebSocketURL(cfg BridgeConfig) (string, string) {
	if cfg.SupervisorToken != "" && cfg.URL == "" {
		return supervisorWSURL, cfg.SupervisorToken
	}
	if cfg.URL == "" {
		return defaultWSURL, cfg.Token
	}

	url := strings.TrimRight(cfg.URL, "/")
	switch {
	case strings.HasPrefix(url, "https://"):
		url = "wss://" + strings.TrimPrefix(url, "https://")
	case strings.HasPrefix(url, "http://"):
		url = "ws://" + strings.TrimPrefix(url, "http://")
	}
	if !strings.HasSuffix(url, "/api/websocket") {
		url += "/api/websocket"
	}
	return url, cfg.Token
}

// RegisterHandler attaches a handler for one event type; "*" matches all.
// Registration happens at startup, before Run.
func (b *Bridge) RegisterHandler(eventType string, handler EventHandler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[eventType] = append(b.handlers[eventType], handler)
}

// Subscribe records an event type to subscribe to on every (re)connection.
func (b *Bridge) Subscribe(eventType string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscriptions = append(b.subscriptions, eventType)
}

// Run connects and dispatches until ctx is cancelled or Stop is called.
// Every connection loss sleeps the current backoff, doubling up to the
// ceiling; a successful authentication resets the schedule.
func (b *Bridge) Run(ctx context.Context) {
	attempt := 0
	for {
		select {
		case <-ctx.Done():
			return
		case <-b.stopCh:
			return
		default:
		}

		if attempt > 0 {
			delay := backoff.Compute(b.policy, attempt)
			b.log.Warn("reconnecting", "attempt", attempt, "delay", delay)
			select {
			case <-ctx.Done():
				return
			case <-b.stopCh:
				return
			case <-time.After(delay):
			}
		}

		err := b.connectAndListen(ctx, func() { attempt = 0 })
		if err != nil {
			b.log.Error("connection lost", "error", err)
		}
		attempt++
	}
}

// connectAndListen performs one connection attempt: dial, authenticate,
// re-establish subscriptions, then read frames until failure or shutdown.
// onAuth runs after a successful handshake.
func (b *Bridge) connectAndListen(ctx context.Context, onAuth func()) error {
	conn, _, err := b.dialer.DialContext(ctx, b.url, nil)
	if err != nil {
		return fmt.Errorf("dial %s: %w", b.url, err)
	}

	if err := authenticate(conn, b.token); err != nil {
		conn.Close()
		return err
	}
	b.log.Info("connected", "url", b.url)
	onAuth()

	b.mu.Lock()
	b.conn = conn
	b.nextID = 0
	subscriptions := append([]string(nil), b.subscriptions...)
	b.mu.Unlock()

	defer func() {
		b.mu.Lock()
		if b.conn == conn {
			b.conn = nil
		}
		// Outstanding waiters observe nil on disconnect.
		for id, ch := range b.pending {
			close(ch)
			delete(b.pending, id)
		}
		b.mu.Unlock()
		conn.Close()
	}()

	for _, eventType := range subscriptions {
		if err := b.subscribeEvents(conn, eventType); err != nil {
			return fmt.Errorf("subscribe %s: %w", eventType, err)
		}
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-b.stopCh:
			return nil
		default:
		}

		var frame wsFrame
		if err := conn.ReadJSON(&frame); err != nil {
			select {
			case <-b.stopCh:
				return nil
			default:
			}
			return fmt.Errorf("read frame: %w", err)
		}

		switch frame.Type {
		case "event":
			b.dispatchEvent(frame.Event)
		case "result", "pong":
			b.mu.Lock()
			if ch, ok := b.pending[frame.ID]; ok {
				delete(b.pending, frame.ID)
				ch <- &frame
				close(ch)
			}
			b.mu.Unlock()
		}
	}
}

// authenticate runs the protocol handshake: the first inbound frame must be
// auth_required, then auth with the access token, then auth_ok. Any other
// sequence aborts the attempt.
func authenticate(conn *websocket.Conn, token string) error {
	var frame wsFrame
	if err := conn.ReadJSON(&frame); err != nil {
		return fmt.Errorf("read auth_required: %w", err)
	}
	if frame.Type != "auth_required" {
		return fmt.Errorf("unexpected handshake frame %q", frame.Type)
	}

	auth := map[string]any{"type": "auth", "access_token": token}
	if err := conn.WriteJSON(auth); err != nil {
		return fmt.Errorf("send auth: %w", err)
	}

	if err := conn.ReadJSON(&frame); err != nil {
		return fmt.Errorf("read auth result: %w", err)
	}
	if frame.Type != "auth_ok" {
		return fmt.Errorf("authentication failed: %s", frame.Type)
	}
	return nil
}

// subscribeEvents sends one subscribe_events command and waits for its
// confirmation inline; the read loop has not started yet when this runs.
func (b *Bridge) subscribeEvents(conn *websocket.Conn, eventType string) error {
	id := b.allocateID()
	cmd := map[string]any{
		"id":   id,
		"type": "subscribe_events",
	}
	if eventType != "" && eventType != "*" {
		cmd["event_type"] = eventType
	}
	if err := conn.WriteJSON(cmd); err != nil {
		return err
	}

	var frame wsFrame
	if err := conn.ReadJSON(&frame); err != nil {
		return err
	}
	if frame.Type != "result" || frame.ID != id || frame.Success == nil || !*frame.Success {
		return fmt.Errorf("subscription not confirmed: %s", frame.Message)
	}
	b.log.Info("subscribed", "event_type", eventType)
	return nil
}

// dispatchEvent fans an event out to the handlers for its concrete type
// plus the "*" handlers. A panicking handler must not stop delivery.
func (b *Bridge) dispatchEvent(raw json.RawMessage) {
	var event Event
	if err := json.Unmarshal(raw, &event); err != nil {
		b.log.Warn("malformed event frame", "error", err)
		return
	}

	b.mu.Lock()
	handlers := append([]EventHandler(nil), b.handlers[event.EventType]...)
	handlers = append(handlers, b.handlers["*"]...)
	b.mu.Unlock()

	for _, handler := range handlers {
		b.callHandler(handler, event)
	}
}

func (b *Bridge) callHandler(handler EventHandler, event Event) {
	defer func() {
		if r := recover(); r != nil {
			b.log.Error("event handler panicked", "event_type", event.EventType, "panic", r)
		}
	}()
	handler(event)
}

// SendCommand sends one command frame and waits up to 30 seconds for the
// frame with the same id. Returns nil on timeout, negative result, or when
// the connection drops while waiting.
func (b *Bridge) SendCommand(commandType string, payload map[string]any) json.RawMessage {
	b.mu.Lock()
	conn := b.conn
	if conn == nil {
		b.mu.Unlock()
		b.log.Warn("send command while disconnected", "type", commandType)
		return nil
	}
	id := b.allocateIDLocked()
	ch := make(chan *wsFrame, 1)
	b.pending[id] = ch

	cmd := map[string]any{"id": id, "type": commandType}
	for k, v := range payload {
		cmd[k] = v
	}
	err := conn.WriteJSON(cmd)
	b.mu.Unlock()

	if err != nil {
		b.mu.Lock()
		delete(b.pending, id)
		b.mu.Unlock()
		b.log.Error("send command failed", "type", commandType, "error", err)
		return nil
	}

	select {
	case frame, ok := <-ch:
		if !ok || frame == nil {
			return nil
		}
		if frame.Success != nil && !*frame.Success {
			b.log.Warn("command rejected", "type", commandType, "message", frame.Message)
			return nil
		}
		return frame.Result
	case <-time.After(commandTimeout):
		b.mu.Lock()
		delete(b.pending, id)
		b.mu.Unlock()
		b.log.Warn("command timed out", "type", commandType)
		return nil
	}
}

// CallService invokes a service over the socket.
func (b *Bridge) CallService(domain, service string, serviceData, target map[string]any) json.RawMessage {
	payload := map[string]any{
		"domain":  domain,
		"service": service,
	}
	if len(serviceData) > 0 {
		payload["service_data"] = serviceData
	}
	if len(target) > 0 {
		payload["target"] = target
	}
	return b.SendCommand("call_service", payload)
}

// Stop shuts the bridge down idempotently: the dispatch loop exits and the
// socket closes.
func (b *Bridge) Stop() {
	b.stopOnce.Do(func() {
		close(b.stopCh)
		b.mu.Lock()
		b.closed = true
		if b.conn != nil {
			b.conn.Close()
		}
		b.mu.Unlock()
		b.log.Info("bridge stopped")
	})
}

func (b *Bridge) allocateID() int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.allocateIDLocked()
}

func (b *Bridge) allocateIDLocked() int64 {
	b.nextID++
	return b.nextID
}
