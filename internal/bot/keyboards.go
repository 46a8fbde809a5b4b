package bot

import (
	"net/url"
	"strings"

	"github.com/pavlensk/telegram-alfaCRM/internal/chat"
	"github.com/pavlensk/telegram-alfaCRM/internal/quiz"
)

// answerLetters maps answer keys to the Cyrillic letters shown on quiz
// buttons.
var answerLetters = map[string]string{
	"a": "А",
	"b": "Б",
	"c": "В",
	"d": "Г",
}

// goalScoreThreshold hides the beginner goal option once the accumulated
// score shows the user is past it. Presentation only, scoring is not
// affected.
const goalScoreThreshold = 2

func (b *Bot) coordinatorURL(text string) string {
	u := "https://t.me/" + b.coordinator
	if text != "" {
		u += "?text=" + url.QueryEscape(text)
	}
	return u
}

func (b *Bot) rootKeyboard() [][]chat.Button {
	return [][]chat.Button{
		{{Text: b.res.Label("btn_swimming"), CallbackData: "nav:section:swimming"}},
		{{Text: b.res.Label("btn_running"), CallbackData: "nav:section:running"}},
		{{Text: b.res.Label("btn_triathlon"), CallbackData: "nav:section:triathlon"}},
	}
}

func (b *Bot) sectionKeyboard(section string) [][]chat.Button {
	var rows [][]chat.Button
	if section == "swimming" {
		rows = append(rows,
			[]chat.Button{{Text: b.res.Label("btn_sw_level"), CallbackData: "sw:level"}},
			[]chat.Button{{Text: b.res.Label("btn_sw_cert"), CallbackData: "sw:cert"}},
			[]chat.Button{{Text: b.res.Label("btn_sw_prep"), CallbackData: "sw:prep"}},
			[]chat.Button{{Text: b.res.Label("btn_sw_take"), CallbackData: "sw:take"}},
		)
	}
	rows = append(rows,
		[]chat.Button{{Text: b.res.Label("btn_lesson_remainder"), CallbackData: "act:lesson_remainder:" + section}},
		[]chat.Button{{Text: b.res.Label("btn_write_coordinator"), URL: b.coordinatorURL(b.res.Sections[section].Hello)}},
		[]chat.Button{{Text: b.res.Label("btn_back"), CallbackData: "nav:root"}},
	)
	return rows
}

// questionKeyboard renders one answer button per row. On the goal question
// the first option is hidden for users whose score already rules it out.
func (b *Bot) questionKeyboard(q quiz.Question, role quiz.Role, score int) [][]chat.Button {
	var rows [][]chat.Button
	for _, a := range q.Answers {
		if role == quiz.RoleGoal && score > goalScoreThreshold && a.Key == "a" {
			continue
		}
		label := a.Label
		if letter, ok := answerLetters[a.Key]; ok {
			label = letter + ") " + a.Label
		}
		rows = append(rows, []chat.Button{{Text: label, CallbackData: "quiz:answer:" + a.Key}})
	}
	return rows
}

func (b *Bot) resultKeyboard(level quiz.LevelRange, leveled bool) [][]chat.Button {
	var rows [][]chat.Button
	if leveled && level.Path != "" {
		detailsURL := strings.TrimRight(b.swimmingBase, "/") + level.Path
		rows = append(rows, []chat.Button{{Text: b.res.Label("btn_level_details"), URL: detailsURL}})
	}
	// The pre-filled message carries the greeting plus the determined level
	// so the coordinator sees both at once.
	prefill := b.res.Sections["swimming"].Hello + " Интересует " + level.Title
	rows = append(rows,
		[]chat.Button{{Text: b.res.Label("btn_write_coordinator"), URL: b.coordinatorURL(prefill)}},
		[]chat.Button{{Text: b.res.Label("btn_back"), CallbackData: "nav:section:swimming"}},
	)
	return rows
}

func (b *Bot) backKeyboard(section string) [][]chat.Button {
	return [][]chat.Button{
		{{Text: b.res.Label("btn_back"), CallbackData: "nav:section:" + section}},
	}
}
