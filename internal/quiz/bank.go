// Package quiz implements the adaptive swimming-level quiz: a question bank
// with named positions, per-user sessions with a time-to-live, an
// answer-dependent transition function, and range-based level classification.
package quiz

import "fmt"

// Role names a semantically significant position in the question bank.
// Transition rules reference roles, never raw indices, so reordering the
// bank only requires updating the loaded role map.
type Role string

const (
	RoleFormat     Role = "format"
	RoleExperience Role = "experience"
	RoleDistance   Role = "distance"
	RoleFreestyle  Role = "freestyle"
	RoleGoal       Role = "goal"
)

// AnswerOption is one selectable answer with its score contribution.
type AnswerOption struct {
	Key   string `yaml:"key"`
	Label string `yaml:"label"`
	Score int    `yaml:"score"`
}

// Question is a single quiz question with its ordered answer options.
type Question struct {
	Text    string         `yaml:"text"`
	Answers []AnswerOption `yaml:"answers"`
}

// Answer returns the option for the given key.
func (q Question) Answer(key string) (AnswerOption, bool) {
	for _, a := range q.Answers {
		if a.Key == key {
			return a, true
		}
	}
	return AnswerOption{}, false
}

// Bank is the immutable ordered question sequence with its role map.
type Bank struct {
	questions []Question
	roles     map[Role]int
	byIndex   map[int]Role
}

// NewBank validates the loaded questions and role map and builds a bank.
// Every role must point at a valid index, every question needs at least one
// answer, and answer keys must be unique within a question.
func NewBank(questions []Question, roles map[Role]int) (*Bank, error) {
	if len(questions) == 0 {
		return nil, fmt.Errorf("question bank is empty")
	}
	for i, q := range questions {
		if len(q.Answers) == 0 {
			return nil, fmt.Errorf("question %d has no answers", i)
		}
		seen := make(map[string]bool, len(q.Answers))
		for _, a := range q.Answers {
			if a.Key == "" {
				return nil, fmt.Errorf("question %d has an answer with empty key", i)
			}
			if seen[a.Key] {
				return nil, fmt.Errorf("question %d has duplicate answer key %q", i, a.Key)
			}
			seen[a.Key] = true
		}
	}

	required := []Role{RoleFormat, RoleExperience, RoleDistance, RoleFreestyle, RoleGoal}
	byIndex := make(map[int]Role, len(roles))
	for _, r := range required {
		idx, ok := roles[r]
		if !ok {
			return nil, fmt.Errorf("role %q is not mapped to a question index", r)
		}
		if idx < 0 || idx >= len(questions) {
			return nil, fmt.Errorf("role %q index %d out of range [0,%d)", r, idx, len(questions))
		}
		if prev, dup := byIndex[idx]; dup {
			return nil, fmt.Errorf("roles %q and %q both map to index %d", prev, r, idx)
		}
		byIndex[idx] = r
	}

	rolesCopy := make(map[Role]int, len(roles))
	for r, idx := range roles {
		rolesCopy[r] = idx
	}

	return &Bank{questions: questions, roles: rolesCopy, byIndex: byIndex}, nil
}

// Len returns the number of questions. An index equal to Len is the
// terminal sentinel meaning the quiz is finished.
func (b *Bank) Len() int {
	return len(b.questions)
}

// Question returns the question at index i.
func (b *Bank) Question(i int) (Question, bool) {
	if i < 0 || i >= len(b.questions) {
		return Question{}, false
	}
	return b.questions[i], true
}

// Index returns the bank index for a named role.
func (b *Bank) Index(role Role) int {
	return b.roles[role]
}

// RoleAt returns the role of the question at index i, if it has one.
func (b *Bank) RoleAt(i int) (Role, bool) {
	r, ok := b.byIndex[i]
	return r, ok
}

// StartIndex is where a fresh session begins: the "format" question.
func (b *Bank) StartIndex() int {
	return b.roles[RoleFormat]
}
