// Package resources loads the bot's static data files: UI labels, sport
// section definitions, user-facing texts, and the swimming-level quiz
// bank with its level table. A load failure is fatal at startup.
package resources

import (
	"fmt"
	"time"

	"github.com/pavlensk/telegram-alfaCRM/internal/quiz"
)

// Section describes one sport direction shown in the root menu.
type Section struct {
	Title string `json:"title"`
	Hello string `json:"hello"`
}

// QuizConfig is the quiz resource file: the bank, its named positions,
// the level table, and the session TTL.
type QuizConfig struct {
	TTLSeconds int               `yaml:"ttl_seconds"`
	Roles      map[string]int    `yaml:"roles"`
	Questions  []quiz.Question   `yaml:"questions"`
	Levels     []quiz.LevelRange `yaml:"levels"`
	Personal   quiz.LevelRange   `yaml:"personal"`
}

// Bundle holds all loaded resources.
type Bundle struct {
	Labels   map[string]string
	Sections map[string]Section
	Texts    map[string]string
	Quiz     QuizConfig
}

// Label returns the UI label for key. Presence of the keys the bot uses
// is checked at load time.
func (b *Bundle) Label(key string) string {
	return b.Labels[key]
}

// Text returns the user-facing text for key.
func (b *Bundle) Text(key string) string {
	return b.Texts[key]
}

// TTL returns the quiz session time-to-live.
func (b *Bundle) TTL() time.Duration {
	return time.Duration(b.Quiz.TTLSeconds) * time.Second
}

// BuildBank assembles and validates the question bank from the loaded
// quiz resource.
func (b *Bundle) BuildBank() (*quiz.Bank, error) {
	roles := make(map[quiz.Role]int, len(b.Quiz.Roles))
	for name, idx := range b.Quiz.Roles {
		roles[quiz.Role(name)] = idx
	}
	bank, err := quiz.NewBank(b.Quiz.Questions, roles)
	if err != nil {
		return nil, fmt.Errorf("question bank: %w", err)
	}
	return bank, nil
}

// BuildClassifier assembles and validates the level classifier from the
// loaded quiz resource.
func (b *Bundle) BuildClassifier() (*quiz.Classifier, error) {
	class, err := quiz.NewClassifier(b.Quiz.Levels, b.Quiz.Personal)
	if err != nil {
		return nil, fmt.Errorf("level table: %w", err)
	}
	return class, nil
}
