// Package chat provides a unified interface for messaging channels (Telegram, WebSocket).
package chat

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
)

// InboundMessage is a message or button press received from any channel.
type InboundMessage struct {
	Channel      string
	UserID       string
	ExternalID   string
	Text         string
	CallbackID   string // non-empty for button presses
	CallbackData string // payload of the pressed button
	MessageID    int    // message the pressed button is attached to
	Username     string
	FirstName    string
	LastName     string
	Language     string
}

// IsCallback reports whether the message is a button press rather than text.
func (m InboundMessage) IsCallback() bool {
	return m.CallbackID != ""
}

// Button is one inline-keyboard button. Exactly one of CallbackData and
// URL should be set.
type Button struct {
	Text         string
	CallbackData string
	URL          string
}

// OutboundMessage is a message to send via any channel.
type OutboundMessage struct {
	Channel   string
	UserID    string
	Text      string
	ParseMode string     // "Markdown", "HTML", or ""
	Keyboard  [][]Button // inline keyboard rows, nil for none
}

// Channel is the interface each messaging platform must implement.
// SendMessage returns the platform message id so the caller can edit the
// message in place later; channels without editable messages return 0.
type Channel interface {
	SendMessage(ctx context.Context, userID string, msg OutboundMessage) (int, error)
	EditMessage(ctx context.Context, userID string, messageID int, msg OutboundMessage) error
	AnswerCallback(ctx context.Context, callbackID string, text string) error
	Start(ctx context.Context, handler func(InboundMessage)) error
	Stop() error
}

// Gateway routes messages to/from registered channels.
type Gateway struct {
	channels map[string]Channel
	mu       sync.RWMutex
}

// NewGateway creates a new chat gateway.
func NewGateway() *Gateway {
	return &Gateway{
		channels: make(map[string]Channel),
	}
}

// Register adds a channel to the gateway.
func (g *Gateway) Register(name string, ch Channel) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.channels[name] = ch
	slog.Info("chat channel registered", "channel", name)
}

// HasChannel returns true if the named channel is registered.
func (g *Gateway) HasChannel(name string) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	_, ok := g.channels[name]
	return ok
}

// Send dispatches a message to the appropriate channel and returns the
// platform message id.
func (g *Gateway) Send(ctx context.Context, msg OutboundMessage) (int, error) {
	ch, err := g.channel(msg.Channel)
	if err != nil {
		return 0, err
	}
	return ch.SendMessage(ctx, msg.UserID, msg)
}

// Edit replaces the text and keyboard of a previously sent message.
func (g *Gateway) Edit(ctx context.Context, messageID int, msg OutboundMessage) error {
	ch, err := g.channel(msg.Channel)
	if err != nil {
		return err
	}
	return ch.EditMessage(ctx, msg.UserID, messageID, msg)
}

// AnswerCallback acknowledges a button press on the given channel.
func (g *Gateway) AnswerCallback(ctx context.Context, channel, callbackID, text string) error {
	ch, err := g.channel(channel)
	if err != nil {
		return err
	}
	return ch.AnswerCallback(ctx, callbackID, text)
}

func (g *Gateway) channel(name string) (Channel, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	ch, ok := g.channels[name]
	if !ok {
		return nil, fmt.Errorf("unknown channel: %s", name)
	}
	return ch, nil
}

// StartAll starts all registered channels with the given message handler.
func (g *Gateway) StartAll(ctx context.Context, handler func(InboundMessage)) error {
	g.mu.RLock()
	defer g.mu.RUnlock()

	for name, ch := range g.channels {
		slog.Info("starting channel", "channel", name)
		if err := ch.Start(ctx, handler); err != nil {
			return fmt.Errorf("starting channel %s: %w", name, err)
		}
	}
	return nil
}

// MockChannel is a test double for Channel. Message ids count up from 1.
type MockChannel struct {
	mu                sync.Mutex
	SentMessages      []OutboundMessage
	EditedMessages    []OutboundMessage
	EditedMessageIDs  []int
	AnsweredCallbacks []string
	nextID            int
}

func (m *MockChannel) SendMessage(_ context.Context, _ string, msg OutboundMessage) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.SentMessages = append(m.SentMessages, msg)
	m.nextID++
	return m.nextID, nil
}

func (m *MockChannel) EditMessage(_ context.Context, _ string, messageID int, msg OutboundMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.EditedMessages = append(m.EditedMessages, msg)
	m.EditedMessageIDs = append(m.EditedMessageIDs, messageID)
	return nil
}

func (m *MockChannel) AnswerCallback(_ context.Context, callbackID string, _ string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.AnsweredCallbacks = append(m.AnsweredCallbacks, callbackID)
	return nil
}

func (m *MockChannel) Start(_ context.Context, _ func(InboundMessage)) error {
	return nil
}

func (m *MockChannel) Stop() error {
	return nil
}

// LastSent returns the most recently sent message, or false when none.
func (m *MockChannel) LastSent() (OutboundMessage, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.SentMessages) == 0 {
		return OutboundMessage{}, false
	}
	return m.SentMessages[len(m.SentMessages)-1], true
}

// LastEdited returns the most recently edited message, or false when none.
func (m *MockChannel) LastEdited() (OutboundMessage, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.EditedMessages) == 0 {
		return OutboundMessage{}, false
	}
	return m.EditedMessages[len(m.EditedMessages)-1], true
}
