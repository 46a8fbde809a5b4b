package chat

import (
	"context"
	"log/slog"
	"net/http"
	"sync"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
)

// wsInbound is the frame a WebSocket client sends.
type wsInbound struct {
	Text         string `json:"text,omitempty"`
	CallbackData string `json:"callback_data,omitempty"`
	Name         string `json:"name,omitempty"`
}

// wsOutbound is the frame the server pushes to a WebSocket client.
type wsOutbound struct {
	Text     string     `json:"text"`
	Keyboard [][]Button `json:"keyboard,omitempty"`
	Edited   bool       `json:"edited,omitempty"`
}

// WebSocketChannel implements the Channel interface over a WebSocket
// endpoint, used by the web widget. Clients identify themselves with the
// user query parameter. Messages are not editable in place; an edit is
// delivered to the client as a replacement frame.
type WebSocketChannel struct {
	mu      sync.RWMutex
	conns   map[string]*websocket.Conn
	handler func(InboundMessage)
}

// NewWebSocketChannel creates a WebSocket channel adapter.
func NewWebSocketChannel() *WebSocketChannel {
	return &WebSocketChannel{
		conns: make(map[string]*websocket.Conn),
	}
}

// ServeHTTP upgrades the request and pumps inbound frames to the handler.
func (w *WebSocketChannel) ServeHTTP(rw http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("user")
	if userID == "" {
		http.Error(rw, "missing user parameter", http.StatusBadRequest)
		return
	}

	conn, err := websocket.Accept(rw, r, nil)
	if err != nil {
		slog.Warn("websocket accept failed", "error", err)
		return
	}

	w.mu.Lock()
	if prev, ok := w.conns[userID]; ok {
		_ = prev.Close(websocket.StatusPolicyViolation, "replaced by a new connection")
	}
	w.conns[userID] = conn
	w.mu.Unlock()

	slog.Info("websocket client connected", "user_id", userID)
	defer func() {
		w.mu.Lock()
		if w.conns[userID] == conn {
			delete(w.conns, userID)
		}
		w.mu.Unlock()
		_ = conn.CloseNow()
	}()

	ctx := r.Context()
	for {
		var in wsInbound
		if err := wsjson.Read(ctx, conn, &in); err != nil {
			slog.Info("websocket client disconnected", "user_id", userID)
			return
		}

		w.mu.RLock()
		handler := w.handler
		w.mu.RUnlock()
		if handler == nil {
			continue
		}

		msg := InboundMessage{
			Channel:   "websocket",
			UserID:    userID,
			FirstName: in.Name,
		}
		if in.CallbackData != "" {
			msg.CallbackID = "ws"
			msg.CallbackData = in.CallbackData
		} else {
			msg.Text = in.Text
		}
		go handler(msg)
	}
}

func (w *WebSocketChannel) SendMessage(ctx context.Context, userID string, msg OutboundMessage) (int, error) {
	return 0, w.write(ctx, userID, wsOutbound{Text: msg.Text, Keyboard: msg.Keyboard})
}

func (w *WebSocketChannel) EditMessage(ctx context.Context, userID string, _ int, msg OutboundMessage) error {
	return w.write(ctx, userID, wsOutbound{Text: msg.Text, Keyboard: msg.Keyboard, Edited: true})
}

func (w *WebSocketChannel) AnswerCallback(_ context.Context, _ string, _ string) error {
	return nil
}

func (w *WebSocketChannel) write(ctx context.Context, userID string, frame wsOutbound) error {
	w.mu.RLock()
	conn, ok := w.conns[userID]
	w.mu.RUnlock()
	if !ok {
		// The client went away; there is nothing to deliver to.
		return nil
	}
	return wsjson.Write(ctx, conn, frame)
}

func (w *WebSocketChannel) Start(_ context.Context, handler func(InboundMessage)) error {
	w.mu.Lock()
	w.handler = handler
	w.mu.Unlock()
	return nil
}

func (w *WebSocketChannel) Stop() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	for userID, conn := range w.conns {
		_ = conn.Close(websocket.StatusNormalClosure, "server shutting down")
		delete(w.conns, userID)
	}
	return nil
}
