package quiz

import "fmt"

// LevelRange maps a closed score interval to a presentable skill level.
// Path is the level's detail page under the swimming site, may be empty.
type LevelRange struct {
	Min   int    `yaml:"min"`
	Max   int    `yaml:"max"`
	Title string `yaml:"title"`
	Desc  string `yaml:"desc"`
	Path  string `yaml:"path"`
}

// Contains reports whether score falls inside the range.
func (r LevelRange) Contains(score int) bool {
	return r.Min <= score && score <= r.Max
}

// Classifier maps final scores to level results. Ranges are evaluated in
// declared order and the first match wins; classification is pure.
// The personal-training outcome is a separate result, never reached
// through score matching.
type Classifier struct {
	levels   []LevelRange
	personal LevelRange
}

// NewClassifier validates the declared ranges (each well-formed, pairwise
// disjoint) and builds a classifier. They need not cover all scores: an
// uncovered score classifies as unknown.
func NewClassifier(levels []LevelRange, personal LevelRange) (*Classifier, error) {
	if len(levels) == 0 {
		return nil, fmt.Errorf("level table is empty")
	}
	for i, r := range levels {
		if r.Min > r.Max {
			return nil, fmt.Errorf("level %d: min %d greater than max %d", i, r.Min, r.Max)
		}
		if r.Title == "" {
			return nil, fmt.Errorf("level %d: title is empty", i)
		}
		for j := i + 1; j < len(levels); j++ {
			o := levels[j]
			if r.Min <= o.Max && o.Min <= r.Max {
				return nil, fmt.Errorf("levels %d and %d overlap", i, j)
			}
		}
	}
	if personal.Title == "" {
		return nil, fmt.Errorf("personal-training result title is empty")
	}
	return &Classifier{levels: levels, personal: personal}, nil
}

// Classify returns the first declared range containing score, or false
// when no range matches.
func (c *Classifier) Classify(score int) (LevelRange, bool) {
	for _, r := range c.levels {
		if r.Contains(score) {
			return r, true
		}
	}
	return LevelRange{}, false
}

// Personal returns the fixed result for the personal-training exit.
func (c *Classifier) Personal() LevelRange {
	return c.personal
}
