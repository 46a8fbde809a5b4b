package quiz

import "log/slog"

// Branch answer keys. These match the keys in the shipped question bank:
// on the format question "b" means one-on-one training, on the experience
// question "a" and "c" are the low-effort answers, on the distance
// question "a" is the shortest distance.
const (
	personalFormatKey    = "b"
	shortestDistanceKey  = "a"
	lowEffortExperienceA = "a"
	lowEffortExperienceB = "c"
)

// OutcomeKind enumerates the expected results of answering a question.
type OutcomeKind int

const (
	// OutcomeContinue means the quiz advances to the next question.
	OutcomeContinue OutcomeKind = iota
	// OutcomeFinished means all relevant questions were answered and the
	// final score was classified.
	OutcomeFinished
	// OutcomePersonal means the user chose one-on-one training on the
	// format question and exited without a scored result.
	OutcomePersonal
	// OutcomeInvalid means the answer key did not belong to the current
	// question (stale button); the session was terminated and whatever
	// score had accumulated was classified.
	OutcomeInvalid
)

// Outcome is the typed result of Answer.
type Outcome struct {
	Kind          OutcomeKind
	Question      Question   // next question, set when Kind is OutcomeContinue
	QuestionIndex int        // bank index of Question
	Score         int        // accumulated score so far
	Level         LevelRange // classification, set on Finished/Personal/Invalid
	Leveled       bool       // false when no declared range matched the score
}

// Engine wires the question bank, session store, and classifier together.
type Engine struct {
	bank  *Bank
	class *Classifier
	store SessionStore
}

// NewEngine creates a quiz engine.
func NewEngine(bank *Bank, class *Classifier, store SessionStore) *Engine {
	return &Engine{bank: bank, class: class, store: store}
}

// Bank returns the engine's question bank.
func (e *Engine) Bank() *Bank {
	return e.bank
}

// MaxScore is the highest score reachable by answering every question with
// its top-scoring option. Used by renderers for the "X/NN" display.
func (e *Engine) MaxScore() int {
	total := 0
	for _, q := range e.bank.questions {
		best := 0
		for _, a := range q.Answers {
			if a.Score > best {
				best = a.Score
			}
		}
		total += best
	}
	return total
}

// Start creates a fresh session for the user, replacing any prior one, and
// returns the first question.
func (e *Engine) Start(userID string) (Question, error) {
	sess, err := e.store.Start(userID, e.bank.StartIndex())
	if err != nil {
		return Question{}, err
	}
	q, _ := e.bank.Question(sess.QuestionIdx)
	return q, nil
}

// Answer applies the user's answer to their session and returns the typed
// outcome. Returns ErrSessionNotFound when the session is absent or
// expired; the session is always gone from the store once the outcome is
// anything other than OutcomeContinue.
func (e *Engine) Answer(userID, key string) (Outcome, error) {
	sess, ok := e.store.Get(userID)
	if !ok {
		return Outcome{}, ErrSessionNotFound
	}

	q, ok := e.bank.Question(sess.QuestionIdx)
	if !ok {
		// Pointer beyond the bank should be unreachable: finished
		// sessions are cleared. Recover by terminating.
		slog.Warn("session points past question bank", "user_id", userID, "index", sess.QuestionIdx)
		e.store.Clear(userID)
		return e.classified(OutcomeInvalid, sess.Score), nil
	}

	ans, ok := q.Answer(key)
	if !ok {
		slog.Warn("unknown answer key, terminating quiz",
			"user_id", userID,
			"question_index", sess.QuestionIdx,
			"answer_key", key,
		)
		e.store.Clear(userID)
		return e.classified(OutcomeInvalid, sess.Score), nil
	}

	// The delta counts even on branches that terminate early.
	next, personal := Next(e.bank, sess.QuestionIdx, key)
	sess, err := e.store.Update(userID, func(s *Session) {
		s.Score += ans.Score
		s.QuestionIdx = next
	})
	if err != nil {
		return Outcome{}, err
	}

	if personal {
		e.store.Clear(userID)
		return Outcome{Kind: OutcomePersonal, Score: sess.Score, Level: e.class.Personal(), Leveled: true}, nil
	}
	if next >= e.bank.Len() {
		e.store.Clear(userID)
		return e.classified(OutcomeFinished, sess.Score), nil
	}

	nq, _ := e.bank.Question(next)
	return Outcome{Kind: OutcomeContinue, Question: nq, QuestionIndex: next, Score: sess.Score}, nil
}

func (e *Engine) classified(kind OutcomeKind, score int) Outcome {
	level, ok := e.class.Classify(score)
	return Outcome{Kind: kind, Score: score, Level: level, Leveled: ok}
}

// Next computes the bank index that follows answering the question at
// current with the given key, or the terminal sentinel (bank length) when
// the quiz is over. personal reports the one-on-one early exit on the
// format question. Branch rules are keyed by the current question's role;
// at most one rule fires per call, and skip targets may be any forward
// index.
func Next(bank *Bank, current int, key string) (next int, personal bool) {
	role, _ := bank.RoleAt(current)
	switch role {
	case RoleFormat:
		if key == personalFormatKey {
			return bank.Len(), true
		}
	case RoleExperience:
		// Low-effort swimmers skip the distance question.
		if key == lowEffortExperienceA || key == lowEffortExperienceB {
			return bank.Index(RoleFreestyle), false
		}
	case RoleDistance:
		// Shortest distance skips the freestyle technique question.
		if key == shortestDistanceKey {
			return bank.Index(RoleGoal), false
		}
	}
	return current + 1, false
}
