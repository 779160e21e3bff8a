// Package policy maps issue difficulty to contest rules: how long a team may
// hold an issue, the penalty for letting it expire, and the award for a merge.
package policy

import (
	"time"

	"github.com/issuearena/issuearena/internal/domain/model"
)

// Default policy tables keyed by difficulty.
const (
	defaultEasyTimeLimit   = 20 * time.Minute
	defaultMediumTimeLimit = 40 * time.Minute
	defaultHardTimeLimit   = 60 * time.Minute

	defaultEasyPenalty   = 5
	defaultMediumPenalty = 10
	defaultHardPenalty   = 15

	defaultEasyAward   = 10
	defaultMediumAward = 20
	defaultHardAward   = 30
)

// Option applies a configuration option to the Table.
type Option func(*Table)

// WithTimeLimits overrides time limits from a configuration map. Entries with
// non-positive durations are ignored.
func WithTimeLimits(limits map[model.Difficulty]time.Duration) Option {
	return func(t *Table) {
		for d, limit := range limits {
			if limit > 0 {
				t.timeLimits[d] = limit
			}
		}
	}
}

// WithPenalties overrides expiry penalties from a configuration map. Negative
// entries are ignored.
func WithPenalties(penalties map[model.Difficulty]int) Option {
	return func(t *Table) {
		for d, p := range penalties {
			if p >= 0 {
				t.penalties[d] = p
			}
		}
	}
}

// WithAwards overrides merge awards from a configuration map. Negative
// entries are ignored.
func WithAwards(awards map[model.Difficulty]int) Option {
	return func(t *Table) {
		for d, a := range awards {
			if a >= 0 {
				t.awards[d] = a
			}
		}
	}
}

// Table holds the difficulty-keyed contest rules.
type Table struct {
	timeLimits map[model.Difficulty]time.Duration
	penalties  map[model.Difficulty]int
	awards     map[model.Difficulty]int
}

// NewTable creates a policy table with defaults overridable via options.
func NewTable(opts ...Option) *Table {
	t := &Table{
		timeLimits: map[model.Difficulty]time.Duration{
			model.DifficultyEasy:   defaultEasyTimeLimit,
			model.DifficultyMedium: defaultMediumTimeLimit,
			model.DifficultyHard:   defaultHardTimeLimit,
		},
		penalties: map[model.Difficulty]int{
			model.DifficultyEasy:   defaultEasyPenalty,
			model.DifficultyMedium: defaultMediumPenalty,
			model.DifficultyHard:   defaultHardPenalty,
		},
		awards: map[model.Difficulty]int{
			model.DifficultyEasy:   defaultEasyAward,
			model.DifficultyMedium: defaultMediumAward,
			model.DifficultyHard:   defaultHardAward,
		},
	}

	for _, opt := range opts {
		opt(t)
	}

	return t
}

// TimeLimit returns how long a team may occupy an issue of the given
// difficulty. Unrecognized difficulties fall back to the medium limit.
func (t *Table) TimeLimit(d model.Difficulty) time.Duration {
	if limit, ok := t.timeLimits[d]; ok {
		return limit
	}
	return t.timeLimits[model.DifficultyMedium]
}

// Penalty returns the points deducted when an issue of the given difficulty
// expires. Unrecognized difficulties carry no penalty.
func (t *Table) Penalty(d model.Difficulty) int {
	if p, ok := t.penalties[d]; ok {
		return p
	}
	return 0
}

// Award returns the points granted when the pull request for an issue of the
// given difficulty is merged. Unrecognized difficulties fall back to the
// medium award.
func (t *Table) Award(d model.Difficulty) int {
	if a, ok := t.awards[d]; ok {
		return a
	}
	return t.awards[model.DifficultyMedium]
}

// Expired reports whether an issue occupied at occupiedAt has exceeded its
// time limit as of now.
func (t *Table) Expired(d model.Difficulty, occupiedAt, now time.Time) bool {
	return now.Sub(occupiedAt) >= t.TimeLimit(d)
}
