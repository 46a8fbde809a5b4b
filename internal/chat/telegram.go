package chat

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const telegramMaxMessageLen = 4096

// TelegramChannel implements the Channel interface for Telegram Bot API.
type TelegramChannel struct {
	token   string
	baseURL string
	client  *http.Client
	offset  int
	stop    chan struct{}
}

// NewTelegramChannel creates a Telegram channel adapter.
func NewTelegramChannel(token string) (*TelegramChannel, error) {
	if token == "" {
		return nil, fmt.Errorf("telegram bot token is required (SPORT_TELEGRAM_BOT_TOKEN)")
	}
	return &TelegramChannel{
		token:   token,
		baseURL: "https://api.telegram.org/bot" + token,
		client: &http.Client{
			Timeout: 60 * time.Second,
		},
		stop: make(chan struct{}),
	}, nil
}

func (t *TelegramChannel) SendMessage(ctx context.Context, userID string, msg OutboundMessage) (int, error) {
	parts := SplitMessage(msg.Text, telegramMaxMessageLen)

	var lastID int
	for i, part := range parts {
		params := url.Values{
			"chat_id": {userID},
			"text":    {part},
		}
		if msg.ParseMode != "" {
			params.Set("parse_mode", msg.ParseMode)
		}
		// The keyboard goes on the final part so it stays under the text.
		if i == len(parts)-1 && len(msg.Keyboard) > 0 {
			params.Set("reply_markup", encodeInlineKeyboard(msg.Keyboard))
		}

		id, err := t.callSendMessage(ctx, params)
		if err != nil {
			// If Markdown parsing fails, retry without parse mode.
			if msg.ParseMode != "" && strings.Contains(err.Error(), "400") {
				slog.Warn("Telegram markdown parse failed, retrying plain")
				params.Del("parse_mode")
				id, err = t.callSendMessage(ctx, params)
			}
			if err != nil {
				return 0, err
			}
		}
		lastID = id
	}

	return lastID, nil
}

func (t *TelegramChannel) callSendMessage(ctx context.Context, params url.Values) (int, error) {
	body, err := t.postForm(ctx, "/sendMessage", params)
	if err != nil {
		return 0, fmt.Errorf("sending Telegram message: %w", err)
	}

	var result struct {
		OK     bool `json:"ok"`
		Result struct {
			MessageID int `json:"message_id"`
		} `json:"result"`
	}
	if err := json.Unmarshal(body, &result); err != nil {
		return 0, fmt.Errorf("parse sendMessage response: %w", err)
	}
	if !result.OK {
		return 0, fmt.Errorf("telegram sendMessage returned ok=false")
	}
	return result.Result.MessageID, nil
}

func (t *TelegramChannel) EditMessage(ctx context.Context, userID string, messageID int, msg OutboundMessage) error {
	params := url.Values{
		"chat_id":    {userID},
		"message_id": {strconv.Itoa(messageID)},
		"text":       {msg.Text},
	}
	if msg.ParseMode != "" {
		params.Set("parse_mode", msg.ParseMode)
	}
	if len(msg.Keyboard) > 0 {
		params.Set("reply_markup", encodeInlineKeyboard(msg.Keyboard))
	}

	body, err := t.postForm(ctx, "/editMessageText", params)
	if err != nil {
		return fmt.Errorf("editing Telegram message: %w", err)
	}

	var result struct {
		OK bool `json:"ok"`
	}
	if err := json.Unmarshal(body, &result); err != nil {
		return fmt.Errorf("parse editMessageText response: %w", err)
	}
	if !result.OK {
		return fmt.Errorf("telegram editMessageText returned ok=false")
	}
	return nil
}

func (t *TelegramChannel) AnswerCallback(ctx context.Context, callbackID string, text string) error {
	params := url.Values{
		"callback_query_id": {callbackID},
	}
	if text != "" {
		params.Set("text", text)
	}
	if _, err := t.postForm(ctx, "/answerCallbackQuery", params); err != nil {
		return fmt.Errorf("answering callback query: %w", err)
	}
	return nil
}

func (t *TelegramChannel) postForm(ctx context.Context, method string, params url.Values) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.baseURL+method,
		strings.NewReader(params.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := t.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("telegram API error %d: %s", resp.StatusCode, string(body))
	}
	return body, nil
}

func encodeInlineKeyboard(rows [][]Button) string {
	type tgButton struct {
		Text         string `json:"text"`
		CallbackData string `json:"callback_data,omitempty"`
		URL          string `json:"url,omitempty"`
	}
	markup := struct {
		InlineKeyboard [][]tgButton `json:"inline_keyboard"`
	}{}
	for _, row := range rows {
		var out []tgButton
		for _, b := range row {
			out = append(out, tgButton{Text: b.Text, CallbackData: b.CallbackData, URL: b.URL})
		}
		markup.InlineKeyboard = append(markup.InlineKeyboard, out)
	}
	encoded, _ := json.Marshal(markup)
	return string(encoded)
}

func (t *TelegramChannel) Start(ctx context.Context, handler func(InboundMessage)) error {
	go t.pollLoop(ctx, handler)
	return nil
}

func (t *TelegramChannel) Stop() error {
	close(t.stop)
	return nil
}

func (t *TelegramChannel) pollLoop(ctx context.Context, handler func(InboundMessage)) {
	slog.Info("Telegram long-polling started")
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.stop:
			return
		default:
			updates, err := t.getUpdates(ctx)
			if err != nil {
				slog.Error("Telegram getUpdates error", "error", err)
				time.Sleep(5 * time.Second)
				continue
			}

			for _, u := range updates {
				t.offset = u.UpdateID + 1
				msg, ok := mapTelegramInbound(u)
				if !ok {
					continue
				}
				go handler(msg)
			}
		}
	}
}

func (t *TelegramChannel) getUpdates(ctx context.Context) ([]tgUpdate, error) {
	params := url.Values{
		"offset":          {strconv.Itoa(t.offset)},
		"timeout":         {"30"},
		"allowed_updates": {`["message","callback_query"]`},
	}

	req, err := http.NewRequestWithContext(ctx, "GET", t.baseURL+"/getUpdates?"+params.Encode(), nil)
	if err != nil {
		return nil, err
	}

	resp, err := t.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	var result struct {
		OK     bool       `json:"ok"`
		Result []tgUpdate `json:"result"`
	}
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, err
	}

	if !result.OK {
		return nil, fmt.Errorf("telegram API returned ok=false")
	}

	return result.Result, nil
}

// Telegram API types (minimal)
type tgUpdate struct {
	UpdateID      int              `json:"update_id"`
	Message       *tgMessage       `json:"message"`
	CallbackQuery *tgCallbackQuery `json:"callback_query"`
}

type tgMessage struct {
	MessageID int    `json:"message_id"`
	Text      string `json:"text"`
	Chat      tgChat `json:"chat"`
	From      tgUser `json:"from"`
}

type tgCallbackQuery struct {
	ID      string     `json:"id"`
	From    tgUser     `json:"from"`
	Message *tgMessage `json:"message"`
	Data    string     `json:"data"`
}

type tgChat struct {
	ID int64 `json:"id"`
}

type tgUser struct {
	ID           int64  `json:"id"`
	Username     string `json:"username"`
	FirstName    string `json:"first_name"`
	LastName     string `json:"last_name"`
	LanguageCode string `json:"language_code"`
}

// SplitMessage splits text into chunks that fit Telegram's max message length.
func SplitMessage(text string, maxLen int) []string {
	if text == "" {
		return nil
	}
	if len(text) <= maxLen {
		return []string{text}
	}

	var parts []string
	for len(text) > 0 {
		if len(text) <= maxLen {
			parts = append(parts, text)
			break
		}
		// Find last newline or space within limit
		cutAt := maxLen
		if idx := strings.LastIndex(text[:maxLen], "\n"); idx > 0 {
			cutAt = idx + 1
		} else if idx := strings.LastIndex(text[:maxLen], " "); idx > 0 {
			cutAt = idx + 1
		}
		parts = append(parts, text[:cutAt])
		text = text[cutAt:]
	}
	return parts
}

func mapTelegramInbound(u tgUpdate) (InboundMessage, bool) {
	if u.CallbackQuery != nil {
		cq := u.CallbackQuery
		if cq.Data == "" || cq.Message == nil {
			return InboundMessage{}, false
		}
		return InboundMessage{
			Channel:      "telegram",
			UserID:       strconv.FormatInt(cq.Message.Chat.ID, 10),
			ExternalID:   strconv.FormatInt(cq.From.ID, 10),
			CallbackID:   cq.ID,
			CallbackData: cq.Data,
			MessageID:    cq.Message.MessageID,
			Username:     cq.From.Username,
			FirstName:    cq.From.FirstName,
			LastName:     cq.From.LastName,
			Language:     cq.From.LanguageCode,
		}, true
	}

	if u.Message == nil {
		return InboundMessage{}, false
	}

	text := strings.TrimSpace(u.Message.Text)
	if text == "" {
		return InboundMessage{}, false
	}

	return InboundMessage{
		Channel:    "telegram",
		UserID:     strconv.FormatInt(u.Message.Chat.ID, 10),
		ExternalID: strconv.FormatInt(u.Message.From.ID, 10),
		Text:       text,
		Username:   u.Message.From.Username,
		FirstName:  u.Message.From.FirstName,
		LastName:   u.Message.From.LastName,
		Language:   u.Message.From.LanguageCode,
	}, true
}
