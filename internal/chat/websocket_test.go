package chat

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
)

func TestWebSocketChannel_RejectsMissingUser(t *testing.T) {
	ws := NewWebSocketChannel()

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/ws", nil)
	ws.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusBadRequest)
	}
}

func TestWebSocketChannel_InboundAndOutbound(t *testing.T) {
	ws := NewWebSocketChannel()

	inbound := make(chan InboundMessage, 1)
	if err := ws.Start(context.Background(), func(m InboundMessage) { inbound <- m }); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	server := httptest.NewServer(ws)
	defer server.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http") + "?user=u42"
	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	defer func() { _ = conn.CloseNow() }()

	if err := wsjson.Write(ctx, conn, wsInbound{Text: "hello"}); err != nil {
		t.Fatalf("Write() error = %v", err)
	}

	select {
	case m := <-inbound:
		if m.Channel != "websocket" || m.UserID != "u42" || m.Text != "hello" {
			t.Errorf("inbound = %+v, want websocket/u42/hello", m)
		}
	case <-ctx.Done():
		t.Fatal("timed out waiting for inbound message")
	}

	if _, err := ws.SendMessage(ctx, "u42", OutboundMessage{Text: "pick one"}); err != nil {
		t.Fatalf("SendMessage() error = %v", err)
	}

	var frame wsOutbound
	if err := wsjson.Read(ctx, conn, &frame); err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	if frame.Text != "pick one" {
		t.Errorf("frame text = %q, want pick one", frame.Text)
	}
}

func TestWebSocketChannel_CallbackFrame(t *testing.T) {
	ws := NewWebSocketChannel()

	inbound := make(chan InboundMessage, 1)
	if err := ws.Start(context.Background(), func(m InboundMessage) { inbound <- m }); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	server := httptest.NewServer(ws)
	defer server.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http") + "?user=u7"
	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	defer func() { _ = conn.CloseNow() }()

	if err := wsjson.Write(ctx, conn, wsInbound{CallbackData: "nav:root"}); err != nil {
		t.Fatalf("Write() error = %v", err)
	}

	select {
	case m := <-inbound:
		if !m.IsCallback() {
			t.Error("callback frame should map to a callback message")
		}
		if m.CallbackData != "nav:root" {
			t.Errorf("CallbackData = %q, want nav:root", m.CallbackData)
		}
	case <-ctx.Done():
		t.Fatal("timed out waiting for callback message")
	}
}

func TestWebSocketChannel_SendToAbsentUser(t *testing.T) {
	ws := NewWebSocketChannel()

	if _, err := ws.SendMessage(context.Background(), "nobody", OutboundMessage{Text: "hi"}); err != nil {
		t.Errorf("SendMessage() to absent user error = %v, want nil", err)
	}
}
