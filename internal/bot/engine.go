// Package bot routes inbound chat messages to the club's menu tree, the
// swimming-level quiz, and the CRM lesson-balance lookup.
package bot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/pavlensk/telegram-alfaCRM/internal/chat"
	"github.com/pavlensk/telegram-alfaCRM/internal/crm"
	"github.com/pavlensk/telegram-alfaCRM/internal/quiz"
	"github.com/pavlensk/telegram-alfaCRM/internal/resources"
)

// CustomerLookup is the CRM surface the bot needs.
type CustomerLookup interface {
	CustomerByPhone(ctx context.Context, phone string) (*crm.Customer, error)
}

// Config holds dependencies for the bot.
type Config struct {
	Gateway             *chat.Gateway
	Resources           *resources.Bundle
	Quiz                *quiz.Engine
	CRM                 CustomerLookup
	Events              EventLogger
	CoordinatorUsername string
	SwimmingBaseURL     string
}

// Bot is the top-level message handler.
type Bot struct {
	gw           *chat.Gateway
	res          *resources.Bundle
	quiz         *quiz.Engine
	crm          CustomerLookup
	events       EventLogger
	coordinator  string
	swimmingBase string

	menus *menuTracker

	mu            sync.Mutex
	awaitingPhone map[string]bool
}

// New creates a bot.
func New(cfg Config) *Bot {
	events := cfg.Events
	if events == nil {
		events = NopEventLogger{}
	}
	return &Bot{
		gw:            cfg.Gateway,
		res:           cfg.Resources,
		quiz:          cfg.Quiz,
		crm:           cfg.CRM,
		events:        events,
		coordinator:   cfg.CoordinatorUsername,
		swimmingBase:  cfg.SwimmingBaseURL,
		menus:         newMenuTracker(),
		awaitingPhone: make(map[string]bool),
	}
}

// HandleMessage processes one inbound message or button press. Errors are
// logged, not returned: the poll loop has nobody to hand them to.
func (b *Bot) HandleMessage(ctx context.Context, msg chat.InboundMessage) {
	var err error
	if msg.IsCallback() {
		err = b.handleCallback(ctx, msg)
	} else {
		err = b.handleText(ctx, msg)
	}
	if err != nil {
		slog.Error("message handling failed",
			"channel", msg.Channel,
			"user_id", msg.UserID,
			"error", err,
		)
	}
}

func (b *Bot) handleText(ctx context.Context, msg chat.InboundMessage) error {
	if strings.HasPrefix(msg.Text, "/") {
		return b.handleCommand(ctx, msg)
	}
	if b.isAwaitingPhone(msg.Channel, msg.UserID) {
		return b.handlePhone(ctx, msg)
	}
	// Anything else brings up the root menu.
	return b.showRoot(ctx, msg.Channel, msg.UserID)
}

func (b *Bot) handleCommand(ctx context.Context, msg chat.InboundMessage) error {
	cmd := strings.Split(msg.Text, " ")[0]

	switch cmd {
	case "/start":
		b.setAwaitingPhone(msg.Channel, msg.UserID, false)
		// A fresh /start always gets a fresh menu message.
		b.menus.forget(msg.Channel, msg.UserID)
		b.logEvent(msg, "bot_started", nil)
		return b.showRoot(ctx, msg.Channel, msg.UserID)
	default:
		return b.showRoot(ctx, msg.Channel, msg.UserID)
	}
}

func (b *Bot) handleCallback(ctx context.Context, msg chat.InboundMessage) error {
	if err := b.gw.AnswerCallback(ctx, msg.Channel, msg.CallbackID, ""); err != nil {
		slog.Warn("answer callback failed", "user_id", msg.UserID, "error", err)
	}
	// The pressed button tells us which message the menu lives in.
	if msg.MessageID != 0 {
		b.menus.set(msg.Channel, msg.UserID, msg.MessageID)
	}

	data := msg.CallbackData
	switch {
	case data == "nav:root":
		return b.showRoot(ctx, msg.Channel, msg.UserID)

	case strings.HasPrefix(data, "nav:section:"):
		return b.showSection(ctx, msg.Channel, msg.UserID, strings.TrimPrefix(data, "nav:section:"))

	case strings.HasPrefix(data, "act:lesson_remainder:"):
		b.setAwaitingPhone(msg.Channel, msg.UserID, true)
		return b.sendPlain(ctx, msg.Channel, msg.UserID, b.res.Text("ask_phone"))

	case data == "sw:level":
		return b.startQuiz(ctx, msg)

	case data == "sw:cert":
		return b.showInfo(ctx, msg.Channel, msg.UserID, b.res.Text("sw_cert"))

	case data == "sw:prep":
		return b.showInfo(ctx, msg.Channel, msg.UserID, b.res.Text("sw_prep"))

	case data == "sw:take":
		return b.showInfo(ctx, msg.Channel, msg.UserID, b.res.Text("sw_take"))

	case strings.HasPrefix(data, "quiz:answer:"):
		return b.answerQuiz(ctx, msg, strings.TrimPrefix(data, "quiz:answer:"))

	default:
		slog.Warn("unknown callback data", "user_id", msg.UserID, "data", data)
		return b.showRoot(ctx, msg.Channel, msg.UserID)
	}
}

func (b *Bot) showRoot(ctx context.Context, channel, userID string) error {
	return b.showMenu(ctx, channel, userID, chat.OutboundMessage{
		Text:     b.res.Text("title_root"),
		Keyboard: b.rootKeyboard(),
	})
}

func (b *Bot) showSection(ctx context.Context, channel, userID, section string) error {
	sec, ok := b.res.Sections[section]
	if !ok {
		slog.Warn("unknown section requested", "user_id", userID, "section", section)
		return b.showRoot(ctx, channel, userID)
	}
	// The hello greeting is reserved for the coordinator deep link; the
	// menu itself is headed by the section title.
	return b.showMenu(ctx, channel, userID, chat.OutboundMessage{
		Text:     sec.Title + "\n\n" + b.res.Text("section_prompt"),
		Keyboard: b.sectionKeyboard(section),
	})
}

func (b *Bot) showInfo(ctx context.Context, channel, userID, text string) error {
	return b.showMenu(ctx, channel, userID, chat.OutboundMessage{
		Text:      text,
		ParseMode: "HTML",
		Keyboard:  b.backKeyboard("swimming"),
	})
}

func (b *Bot) startQuiz(ctx context.Context, msg chat.InboundMessage) error {
	q, err := b.quiz.Start(quizUserKey(msg.Channel, msg.UserID))
	if err != nil {
		return fmt.Errorf("start quiz: %w", err)
	}
	b.logEvent(msg, "quiz_started", nil)
	return b.showQuestion(ctx, msg.Channel, msg.UserID, q, b.quiz.Bank().StartIndex(), 0)
}

func (b *Bot) answerQuiz(ctx context.Context, msg chat.InboundMessage, key string) error {
	outcome, err := b.quiz.Answer(quizUserKey(msg.Channel, msg.UserID), key)
	if errors.Is(err, quiz.ErrSessionNotFound) {
		if err := b.sendPlain(ctx, msg.Channel, msg.UserID, b.res.Text("quiz_expired")); err != nil {
			return err
		}
		return b.showSection(ctx, msg.Channel, msg.UserID, "swimming")
	}
	if err != nil {
		return fmt.Errorf("answer quiz: %w", err)
	}

	switch outcome.Kind {
	case quiz.OutcomeContinue:
		return b.showQuestion(ctx, msg.Channel, msg.UserID, outcome.Question, outcome.QuestionIndex, outcome.Score)

	case quiz.OutcomePersonal:
		b.logEvent(msg, "quiz_completed", map[string]any{"result": "personal"})
		return b.showResult(ctx, msg.Channel, msg.UserID, outcome, false)

	case quiz.OutcomeInvalid:
		if err := b.sendPlain(ctx, msg.Channel, msg.UserID, b.res.Text("quiz_expired")); err != nil {
			return err
		}
		return b.showSection(ctx, msg.Channel, msg.UserID, "swimming")

	default: // quiz.OutcomeFinished
		b.logEvent(msg, "quiz_completed", map[string]any{
			"result": "scored",
			"score":  outcome.Score,
			"level":  outcome.Level.Title,
		})
		return b.showResult(ctx, msg.Channel, msg.UserID, outcome, true)
	}
}

func (b *Bot) showQuestion(ctx context.Context, channel, userID string, q quiz.Question, index, score int) error {
	role, _ := b.quiz.Bank().RoleAt(index)
	return b.showMenu(ctx, channel, userID, chat.OutboundMessage{
		Text:     q.Text,
		Keyboard: b.questionKeyboard(q, role, score),
	})
}

func (b *Bot) showResult(ctx context.Context, channel, userID string, outcome quiz.Outcome, scored bool) error {
	var sb strings.Builder
	sb.WriteString(b.res.Text("quiz_result_header"))
	sb.WriteString("\n\n")
	sb.WriteString("<b>" + outcome.Level.Title + "</b>\n")
	sb.WriteString(outcome.Level.Desc)
	if scored {
		sb.WriteString(fmt.Sprintf("\n\nВаш балл: %d/%d", outcome.Score, b.quiz.MaxScore()))
	}
	sb.WriteString("\n\n")
	sb.WriteString(b.res.Text("quiz_result_footer"))

	return b.showMenu(ctx, channel, userID, chat.OutboundMessage{
		Text:      sb.String(),
		ParseMode: "HTML",
		Keyboard:  b.resultKeyboard(outcome.Level, outcome.Leveled),
	})
}

func (b *Bot) handlePhone(ctx context.Context, msg chat.InboundMessage) error {
	phone, ok := crm.NormalizePhone(msg.Text)
	if !ok {
		return b.sendPlain(ctx, msg.Channel, msg.UserID, b.res.Text("invalid_phone"))
	}
	b.setAwaitingPhone(msg.Channel, msg.UserID, false)

	if err := b.sendPlain(ctx, msg.Channel, msg.UserID, fmt.Sprintf(b.res.Text("searching_client"), phone)); err != nil {
		return err
	}

	customer, err := b.crm.CustomerByPhone(ctx, phone)
	if errors.Is(err, crm.ErrCustomerNotFound) {
		b.logEvent(msg, "customer_lookup", map[string]any{"found": false})
		return b.sendPlain(ctx, msg.Channel, msg.UserID, b.res.Text("client_not_found"))
	}
	if err != nil {
		slog.Error("CRM lookup failed", "user_id", msg.UserID, "error", err)
		return b.sendPlain(ctx, msg.Channel, msg.UserID, b.res.Text("service_unavailable"))
	}

	b.logEvent(msg, "customer_lookup", map[string]any{"found": true})
	_, err = b.gw.Send(ctx, chat.OutboundMessage{
		Channel:   msg.Channel,
		UserID:    msg.UserID,
		Text:      renderCustomer(customer),
		ParseMode: "HTML",
	})
	return err
}

// renderCustomer formats the CRM lookup reply. Missing balance or lesson
// count fields are simply omitted.
func renderCustomer(c *crm.Customer) string {
	var sb strings.Builder
	sb.WriteString("<b>" + c.LegalName + "</b>\n")
	if c.Balance != nil {
		sb.WriteString(fmt.Sprintf("Баланс: %.2f ₽\n", *c.Balance))
	}
	if c.PaidLessonCount != nil {
		sb.WriteString(fmt.Sprintf("Оплаченных занятий: %d\n", *c.PaidLessonCount))
	}
	return strings.TrimRight(sb.String(), "\n")
}

func (b *Bot) isAwaitingPhone(channel, userID string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.awaitingPhone[menuKey(channel, userID)]
}

func (b *Bot) setAwaitingPhone(channel, userID string, v bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if v {
		b.awaitingPhone[menuKey(channel, userID)] = true
	} else {
		delete(b.awaitingPhone, menuKey(channel, userID))
	}
}

// quizUserKey scopes quiz sessions per channel so the same person on two
// channels does not share one session.
func quizUserKey(channel, userID string) string {
	return channel + ":" + userID
}

func (b *Bot) logEvent(msg chat.InboundMessage, eventType string, data map[string]any) {
	err := b.events.LogEvent(Event{
		UserID:    msg.UserID,
		Channel:   msg.Channel,
		EventType: eventType,
		Data:      data,
	})
	if err != nil {
		slog.Warn("event logging failed", "type", eventType, "error", err)
	}
}
