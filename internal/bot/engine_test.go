package bot_test

import (
	"context"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/pavlensk/telegram-alfaCRM/internal/bot"
	"github.com/pavlensk/telegram-alfaCRM/internal/chat"
	"github.com/pavlensk/telegram-alfaCRM/internal/crm"
	"github.com/pavlensk/telegram-alfaCRM/internal/quiz"
	"github.com/pavlensk/telegram-alfaCRM/internal/resources"
)

func testBundle() *resources.Bundle {
	return &resources.Bundle{
		Labels: map[string]string{
			"btn_swimming":          "Плавание",
			"btn_running":           "Бег",
			"btn_triathlon":         "Триатлон",
			"btn_write_coordinator": "Написать координатору",
			"btn_lesson_remainder":  "Остаток занятий",
			"btn_sw_level":          "Определить уровень",
			"btn_sw_cert":           "Сертификация",
			"btn_sw_prep":           "Что взять",
			"btn_sw_take":           "Как проходят",
			"btn_back":              "Назад",
			"btn_level_details":     "Подробнее об уровне",
		},
		Sections: map[string]resources.Section{
			"swimming":  {Title: "Плавание", Hello: "Здравствуйте! Хочу записаться на плавание."},
			"running":   {Title: "Бег", Hello: "Здравствуйте! Хочу записаться на бег."},
			"triathlon": {Title: "Триатлон", Hello: "Здравствуйте! Хочу записаться на триатлон."},
		},
		Texts: map[string]string{
			"title_root":          "Выберите направление:",
			"section_prompt":      "Выберите действие:",
			"ask_phone":           "Отправьте номер телефона:",
			"invalid_phone":       "Не получилось распознать номер.",
			"searching_client":    "Ищу клиента: +%s",
			"client_not_found":    "Клиент не найден.",
			"service_unavailable": "Сервис недоступен.",
			"quiz_expired":        "Тест устарел.",
			"quiz_result_header":  "Результат:",
			"quiz_result_footer":  "Напишите координатору!",
			"sw_cert":             "Про сертификацию.",
			"sw_prep":             "Что взять с собой.",
			"sw_take":             "Как проходят тренировки.",
		},
	}
}

func testQuizEngine(t *testing.T, ttl time.Duration) *quiz.Engine {
	t.Helper()

	questions := []quiz.Question{
		{Text: "q-format", Answers: []quiz.AnswerOption{
			{Key: "a", Label: "в группе", Score: 0},
			{Key: "b", Label: "индивидуально", Score: 0},
		}},
		{Text: "q-experience", Answers: []quiz.AnswerOption{
			{Key: "a", Label: "не плавал", Score: 0},
			{Key: "b", Label: "регулярно", Score: 2},
			{Key: "c", Label: "давно", Score: 1},
		}},
		{Text: "q-distance", Answers: []quiz.AnswerOption{
			{Key: "a", Label: "25 м", Score: 0},
			{Key: "b", Label: "200 м", Score: 1},
			{Key: "c", Label: "больше", Score: 2},
		}},
		{Text: "q-freestyle", Answers: []quiz.AnswerOption{
			{Key: "a", Label: "нет", Score: 0},
			{Key: "b", Label: "немного", Score: 1},
			{Key: "c", Label: "уверенно", Score: 2},
		}},
		{Text: "q-goal", Answers: []quiz.AnswerOption{
			{Key: "a", Label: "научиться", Score: 0},
			{Key: "b", Label: "техника", Score: 1},
			{Key: "c", Label: "старты", Score: 2},
		}},
	}
	roles := map[quiz.Role]int{
		quiz.RoleFormat:     0,
		quiz.RoleExperience: 1,
		quiz.RoleDistance:   2,
		quiz.RoleFreestyle:  3,
		quiz.RoleGoal:       4,
	}
	bank, err := quiz.NewBank(questions, roles)
	if err != nil {
		t.Fatalf("NewBank() error = %v", err)
	}

	levels := []quiz.LevelRange{
		{Min: 0, Max: 2, Title: "Уровень 1", Desc: "новичок", Path: "/level-1"},
		{Min: 3, Max: 5, Title: "Уровень 2", Desc: "базовый", Path: "/level-2"},
		{Min: 6, Max: 8, Title: "Уровень 3", Desc: "уверенный", Path: "/level-3"},
	}
	personal := quiz.LevelRange{Title: "Индивидуальные тренировки", Desc: "тренер подберёт план"}
	class, err := quiz.NewClassifier(levels, personal)
	if err != nil {
		t.Fatalf("NewClassifier() error = %v", err)
	}

	return quiz.NewEngine(bank, class, quiz.NewMemoryStore(ttl))
}

type fakeCRM struct {
	customer crm.Customer
	err      error
	gotPhone string
}

func (f *fakeCRM) CustomerByPhone(_ context.Context, phone string) (*crm.Customer, error) {
	f.gotPhone = phone
	if f.err != nil {
		return nil, f.err
	}
	return &f.customer, nil
}

type fixture struct {
	bot    *bot.Bot
	mock   *chat.MockChannel
	events *bot.MemoryEventLogger
	crm    *fakeCRM
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	gw := chat.NewGateway()
	mock := &chat.MockChannel{}
	gw.Register("telegram", mock)

	events := bot.NewMemoryEventLogger()
	fc := &fakeCRM{}

	b := bot.New(bot.Config{
		Gateway:             gw,
		Resources:           testBundle(),
		Quiz:                testQuizEngine(t, 10*time.Minute),
		CRM:                 fc,
		Events:              events,
		CoordinatorUsername: "club_coordinator",
		SwimmingBaseURL:     "https://club.example/swimming",
	})
	return &fixture{bot: b, mock: mock, events: events, crm: fc}
}

func text(userID, text string) chat.InboundMessage {
	return chat.InboundMessage{Channel: "telegram", UserID: userID, Text: text}
}

func press(userID, data string) chat.InboundMessage {
	return chat.InboundMessage{Channel: "telegram", UserID: userID, CallbackID: "cb", CallbackData: data, MessageID: 1}
}

func TestStart_ShowsRootMenu(t *testing.T) {
	f := newFixture(t)

	f.bot.HandleMessage(context.Background(), text("u1", "/start"))

	sent, ok := f.mock.LastSent()
	if !ok {
		t.Fatal("no message sent")
	}
	if sent.Text != "Выберите направление:" {
		t.Errorf("text = %q, want root title", sent.Text)
	}
	if len(sent.Keyboard) != 3 {
		t.Errorf("keyboard rows = %d, want 3", len(sent.Keyboard))
	}
}

func TestSectionNavigation_EditsMenuInPlace(t *testing.T) {
	f := newFixture(t)

	f.bot.HandleMessage(context.Background(), press("u1", "nav:section:swimming"))

	// The button press carries the menu message id, so the bot edits.
	edited, ok := f.mock.LastEdited()
	if !ok {
		t.Fatal("expected menu to be edited, not re-sent")
	}
	if edited.Text != "Плавание\n\nВыберите действие:" {
		t.Errorf("text = %q, want section title with action prompt", edited.Text)
	}
	if len(f.mock.SentMessages) != 0 {
		t.Errorf("SentMessages = %d, want 0", len(f.mock.SentMessages))
	}
}

func TestSectionMenu_CoordinatorLinkCarriesGreeting(t *testing.T) {
	f := newFixture(t)

	f.bot.HandleMessage(context.Background(), press("u1", "nav:section:swimming"))

	edited, _ := f.mock.LastEdited()
	wantText := url.QueryEscape("Здравствуйте! Хочу записаться на плавание.")
	var coordURL string
	for _, row := range edited.Keyboard {
		for _, btn := range row {
			if btn.URL != "" && strings.HasPrefix(btn.URL, "https://t.me/club_coordinator") {
				coordURL = btn.URL
			}
		}
	}
	if coordURL == "" {
		t.Fatal("section keyboard has no coordinator link")
	}
	if !strings.Contains(coordURL, wantText) {
		t.Errorf("coordinator URL = %q, want the hello greeting pre-filled", coordURL)
	}
	if strings.Contains(coordURL, url.QueryEscape("Плавание")) {
		t.Errorf("coordinator URL = %q, must not carry the section title", coordURL)
	}
}

func TestSectionMenu_SwimmingHasQuizButton(t *testing.T) {
	f := newFixture(t)

	f.bot.HandleMessage(context.Background(), press("u1", "nav:section:swimming"))

	edited, _ := f.mock.LastEdited()
	found := false
	for _, row := range edited.Keyboard {
		for _, btn := range row {
			if btn.CallbackData == "sw:level" {
				found = true
			}
		}
	}
	if !found {
		t.Error("swimming section keyboard missing the level-quiz button")
	}
}

func TestSectionMenu_RunningHasNoSwimmingExtras(t *testing.T) {
	f := newFixture(t)

	f.bot.HandleMessage(context.Background(), press("u1", "nav:section:running"))

	edited, _ := f.mock.LastEdited()
	for _, row := range edited.Keyboard {
		for _, btn := range row {
			if strings.HasPrefix(btn.CallbackData, "sw:") {
				t.Errorf("running section leaks swimming button %q", btn.CallbackData)
			}
		}
	}
}

func TestQuiz_FullRunToResult(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.bot.HandleMessage(ctx, press("u1", "sw:level"))
	edited, _ := f.mock.LastEdited()
	if edited.Text != "q-format" {
		t.Fatalf("first question = %q, want q-format", edited.Text)
	}

	// Group format, regular experience, long distance, confident freestyle,
	// race goal: 0+2+2+2+2 = 8.
	for _, key := range []string{"a", "b", "c", "c", "c"} {
		f.bot.HandleMessage(ctx, press("u1", "quiz:answer:"+key))
	}

	edited, _ = f.mock.LastEdited()
	if !strings.Contains(edited.Text, "Уровень 3") {
		t.Errorf("result = %q, want Уровень 3", edited.Text)
	}
	if !strings.Contains(edited.Text, "8/8") {
		t.Errorf("result = %q, want score 8/8", edited.Text)
	}

	var quizEvents []string
	for _, e := range f.events.Events() {
		quizEvents = append(quizEvents, e.EventType)
	}
	want := []string{"quiz_started", "quiz_completed"}
	if len(quizEvents) != len(want) {
		t.Fatalf("events = %v, want %v", quizEvents, want)
	}
	for i := range want {
		if quizEvents[i] != want[i] {
			t.Errorf("event[%d] = %q, want %q", i, quizEvents[i], want[i])
		}
	}
}

func TestQuiz_PersonalFormatExitsEarly(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.bot.HandleMessage(ctx, press("u1", "sw:level"))
	f.bot.HandleMessage(ctx, press("u1", "quiz:answer:b"))

	edited, _ := f.mock.LastEdited()
	if !strings.Contains(edited.Text, "Индивидуальные тренировки") {
		t.Errorf("result = %q, want personal-training result", edited.Text)
	}
	if strings.Contains(edited.Text, "/8") {
		t.Errorf("personal result should not show a score, got %q", edited.Text)
	}
}

func TestQuiz_LowEffortSkipsDistance(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.bot.HandleMessage(ctx, press("u1", "sw:level"))
	f.bot.HandleMessage(ctx, press("u1", "quiz:answer:a")) // format: group
	f.bot.HandleMessage(ctx, press("u1", "quiz:answer:a")) // experience: never swam

	edited, _ := f.mock.LastEdited()
	if edited.Text != "q-freestyle" {
		t.Errorf("next question = %q, want q-freestyle (distance skipped)", edited.Text)
	}
}

func TestQuiz_GoalKeyboardHidesBeginnerOption(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// Score 6 by the time the goal question comes up.
	f.bot.HandleMessage(ctx, press("u1", "sw:level"))
	for _, key := range []string{"a", "b", "c", "c"} {
		f.bot.HandleMessage(ctx, press("u1", "quiz:answer:"+key))
	}

	edited, _ := f.mock.LastEdited()
	if edited.Text != "q-goal" {
		t.Fatalf("question = %q, want q-goal", edited.Text)
	}
	for _, row := range edited.Keyboard {
		for _, btn := range row {
			if btn.CallbackData == "quiz:answer:a" {
				t.Error("beginner goal option should be hidden for high scores")
			}
		}
	}
}

func TestQuiz_ExpiredSessionReportsAndReturnsToSection(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// No quiz started: the answer button is stale.
	f.bot.HandleMessage(ctx, press("u1", "quiz:answer:a"))

	if len(f.mock.SentMessages) == 0 {
		t.Fatal("expected an expiry notice to be sent")
	}
	if f.mock.SentMessages[0].Text != "Тест устарел." {
		t.Errorf("notice = %q, want expiry text", f.mock.SentMessages[0].Text)
	}
	edited, ok := f.mock.LastEdited()
	if !ok || !strings.HasPrefix(edited.Text, "Плавание") {
		t.Error("expected return to the swimming section menu")
	}
}

func TestPhoneFlow_Success(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	balance := 3500.0
	lessons := 7
	f.crm.customer = crm.Customer{LegalName: "Иван Петров", Balance: &balance, PaidLessonCount: &lessons}

	f.bot.HandleMessage(ctx, press("u1", "act:lesson_remainder:swimming"))
	if f.mock.SentMessages[0].Text != "Отправьте номер телефона:" {
		t.Fatalf("prompt = %q, want phone prompt", f.mock.SentMessages[0].Text)
	}

	f.bot.HandleMessage(ctx, text("u1", "+7 912 345-67-89"))

	if f.crm.gotPhone != "79123456789" {
		t.Errorf("CRM phone = %q, want 79123456789", f.crm.gotPhone)
	}
	last, _ := f.mock.LastSent()
	if !strings.Contains(last.Text, "Иван Петров") {
		t.Errorf("reply = %q, want customer name", last.Text)
	}
	if !strings.Contains(last.Text, "3500.00") {
		t.Errorf("reply = %q, want balance", last.Text)
	}
	if !strings.Contains(last.Text, "7") {
		t.Errorf("reply = %q, want paid lesson count", last.Text)
	}
}

func TestPhoneFlow_InvalidPhoneKeepsWaiting(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.bot.HandleMessage(ctx, press("u1", "act:lesson_remainder:swimming"))
	f.bot.HandleMessage(ctx, text("u1", "not a phone"))

	last, _ := f.mock.LastSent()
	if last.Text != "Не получилось распознать номер." {
		t.Fatalf("reply = %q, want invalid-phone text", last.Text)
	}

	// A correct phone afterwards still goes through.
	f.crm.customer = crm.Customer{LegalName: "Анна"}
	f.bot.HandleMessage(ctx, text("u1", "89123456789"))
	if f.crm.gotPhone != "79123456789" {
		t.Errorf("CRM phone = %q, want 79123456789", f.crm.gotPhone)
	}
}

func TestPhoneFlow_NotFound(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.crm.err = crm.ErrCustomerNotFound

	f.bot.HandleMessage(ctx, press("u1", "act:lesson_remainder:swimming"))
	f.bot.HandleMessage(ctx, text("u1", "89123456789"))

	last, _ := f.mock.LastSent()
	if last.Text != "Клиент не найден." {
		t.Errorf("reply = %q, want not-found text", last.Text)
	}
}

func TestPhoneFlow_ServiceUnavailable(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.crm.err = context.DeadlineExceeded

	f.bot.HandleMessage(ctx, press("u1", "act:lesson_remainder:swimming"))
	f.bot.HandleMessage(ctx, text("u1", "89123456789"))

	last, _ := f.mock.LastSent()
	if last.Text != "Сервис недоступен." {
		t.Errorf("reply = %q, want unavailable text", last.Text)
	}
}

func TestFreeText_ShowsRootMenu(t *testing.T) {
	f := newFixture(t)

	f.bot.HandleMessage(context.Background(), text("u1", "привет"))

	sent, ok := f.mock.LastSent()
	if !ok {
		t.Fatal("no message sent")
	}
	if sent.Text != "Выберите направление:" {
		t.Errorf("text = %q, want root title", sent.Text)
	}
}

func TestResultKeyboard_HasLevelDetailsLink(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.bot.HandleMessage(ctx, press("u1", "sw:level"))
	for _, key := range []string{"a", "b", "c", "c", "c"} {
		f.bot.HandleMessage(ctx, press("u1", "quiz:answer:"+key))
	}

	edited, _ := f.mock.LastEdited()
	var detailsURL string
	for _, row := range edited.Keyboard {
		for _, btn := range row {
			if btn.URL != "" && strings.Contains(btn.URL, "/level-") {
				detailsURL = btn.URL
			}
		}
	}
	if detailsURL != "https://club.example/swimming/level-3" {
		t.Errorf("details URL = %q, want level 3 page", detailsURL)
	}
}

func TestResultKeyboard_CoordinatorLinkNamesLevel(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.bot.HandleMessage(ctx, press("u1", "sw:level"))
	for _, key := range []string{"a", "b", "c", "c", "c"} {
		f.bot.HandleMessage(ctx, press("u1", "quiz:answer:"+key))
	}

	edited, _ := f.mock.LastEdited()
	var coordURL string
	for _, row := range edited.Keyboard {
		for _, btn := range row {
			if strings.HasPrefix(btn.URL, "https://t.me/club_coordinator") {
				coordURL = btn.URL
			}
		}
	}
	if coordURL == "" {
		t.Fatal("result keyboard has no coordinator link")
	}
	want := url.QueryEscape("Здравствуйте! Хочу записаться на плавание. Интересует Уровень 3")
	if !strings.Contains(coordURL, want) {
		t.Errorf("coordinator URL = %q, want greeting plus determined level", coordURL)
	}
}
