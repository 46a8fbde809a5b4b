package bot

import (
	"context"
	"log/slog"
	"sync"

	"github.com/pavlensk/telegram-alfaCRM/internal/chat"
)

// menuTracker remembers the one menu message shown to each user so the bot
// edits it in place instead of piling up new messages.
type menuTracker struct {
	mu    sync.Mutex
	byKey map[string]int
}

func newMenuTracker() *menuTracker {
	return &menuTracker{byKey: make(map[string]int)}
}

func menuKey(channel, userID string) string {
	return channel + ":" + userID
}

func (t *menuTracker) get(channel, userID string) (int, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	id, ok := t.byKey[menuKey(channel, userID)]
	return id, ok
}

func (t *menuTracker) set(channel, userID string, messageID int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.byKey[menuKey(channel, userID)] = messageID
}

func (t *menuTracker) forget(channel, userID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.byKey, menuKey(channel, userID))
}

// showMenu delivers the menu message: edits the tracked message when one
// exists, otherwise sends a new one and starts tracking it. An edit
// failure (deleted message, stale id) falls back to sending.
func (b *Bot) showMenu(ctx context.Context, channel, userID string, msg chat.OutboundMessage) error {
	msg.Channel = channel
	msg.UserID = userID

	if id, ok := b.menus.get(channel, userID); ok {
		err := b.gw.Edit(ctx, id, msg)
		if err == nil {
			return nil
		}
		slog.Warn("menu edit failed, sending a new message", "user_id", userID, "error", err)
		b.menus.forget(channel, userID)
	}

	id, err := b.gw.Send(ctx, msg)
	if err != nil {
		return err
	}
	if id != 0 {
		b.menus.set(channel, userID, id)
	}
	return nil
}

// sendPlain sends a standalone message that is not part of the tracked menu.
func (b *Bot) sendPlain(ctx context.Context, channel, userID, text string) error {
	_, err := b.gw.Send(ctx, chat.OutboundMessage{Channel: channel, UserID: userID, Text: text})
	return err
}
