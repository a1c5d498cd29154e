// Package adaptive tracks per-student skill and moves students between
// difficulty tiers based on a rolling window of recent scores.
package adaptive

import (
	"hash/fnv"
	"sync"
)

// Tier is a challenge difficulty level.
type Tier string

const (
	TierEasy   Tier = "easy"
	TierMedium Tier = "medium"
	TierHard   Tier = "hard"
)

var tierOrder = []Tier{TierEasy, TierMedium, TierHard}

func tierIndex(t Tier) int {
	for i, tier := range tierOrder {
		if tier == t {
			return i
		}
	}
	return 0
}

// Promote returns the next tier up, capped at hard.
func (t Tier) Promote() Tier {
	idx := tierIndex(t)
	if idx < len(tierOrder)-1 {
		return tierOrder[idx+1]
	}
	return t
}

// Demote returns the next tier down, floored at easy.
func (t Tier) Demote() Tier {
	idx := tierIndex(t)
	if idx > 0 {
		return tierOrder[idx-1]
	}
	return t
}

// Valid reports whether the value is a known tier.
func (t Tier) Valid() bool {
	for _, tier := range tierOrder {
		if tier == t {
			return true
		}
	}
	return false
}

// Config tunes the transition rule.
type Config struct {
	// WindowSize is the number of graded attempts considered.
	WindowSize int
	// PromoteThreshold and DemoteThreshold bound the window average.
	PromoteThreshold float64
	DemoteThreshold  float64
}

// DefaultConfig evaluates the last five graded attempts, promoting at an
// average of 0.8 and demoting at 0.3.
func DefaultConfig() Config {
	return Config{WindowSize: 5, PromoteThreshold: 0.8, DemoteThreshold: 0.3}
}

// Transition reports the outcome of recording a graded score.
type Transition struct {
	From    Tier
	To      Tier
	Average float64
	// Evaluated is true when the window was full and the rule ran.
	Evaluated bool
}

// Changed reports whether the student moved tiers.
func (t Transition) Changed() bool { return t.From != t.To }

const stateShards = 32

type studentState struct {
	mu     sync.Mutex
	tier   Tier
	scores []float64
}

type stateShard struct {
	mu       sync.Mutex
	students map[string]*studentState
}

// Controller owns per-student skill state. Each student's state has its own
// lock inside a sharded map, so updates for one student never serialize
// against another's.
type Controller struct {
	cfg    Config
	shards [stateShards]*stateShard
}

// NewController builds a controller; zero-value config fields fall back to
// defaults.
func NewController(cfg Config) *Controller {
	def := DefaultConfig()
	if cfg.WindowSize <= 0 {
		cfg.WindowSize = def.WindowSize
	}
	if cfg.PromoteThreshold <= 0 {
		cfg.PromoteThreshold = def.PromoteThreshold
	}
	if cfg.DemoteThreshold <= 0 {
		cfg.DemoteThreshold = def.DemoteThreshold
	}

	c := &Controller{cfg: cfg}
	for i := range c.shards {
		c.shards[i] = &stateShard{students: make(map[string]*studentState)}
	}
	return c
}

// Tier returns the student's current tier, easy for unseen students.
func (c *Controller) Tier(studentID string) Tier {
	state := c.state(studentID)
	state.mu.Lock()
	defer state.mu.Unlock()
	return state.tier
}

// SetTier hydrates a student's tier from persisted state, e.g. at boot.
// The score window starts empty.
func (c *Controller) SetTier(studentID string, tier Tier) {
	if !tier.Valid() {
		tier = TierEasy
	}
	state := c.state(studentID)
	state.mu.Lock()
	defer state.mu.Unlock()
	state.tier = tier
	state.scores = state.scores[:0]
}

// SeedWindow preloads a student's score window from persisted attempts,
// oldest first, without running the transition rule. Call it after SetTier at
// boot so a restart does not reset progress toward the next transition.
func (c *Controller) SeedWindow(studentID string, scores []float64) {
	state := c.state(studentID)
	state.mu.Lock()
	defer state.mu.Unlock()

	if len(scores) > c.cfg.WindowSize {
		scores = scores[len(scores)-c.cfg.WindowSize:]
	}
	state.scores = append(state.scores[:0], scores...)
}

// RecordScore feeds one graded, non-rejected attempt into the window and
// applies the transition rule once the window is full. A promotion or
// demotion clears the window so a hot streak climbs one tier at a time.
func (c *Controller) RecordScore(studentID string, score float64) Transition {
	state := c.state(studentID)
	state.mu.Lock()
	defer state.mu.Unlock()

	state.scores = append(state.scores, score)
	if len(state.scores) > c.cfg.WindowSize {
		state.scores = state.scores[len(state.scores)-c.cfg.WindowSize:]
	}

	transition := Transition{From: state.tier, To: state.tier}
	if len(state.scores) < c.cfg.WindowSize {
		return transition
	}

	sum := 0.0
	for _, s := range state.scores {
		sum += s
	}
	avg := sum / float64(len(state.scores))
	transition.Average = avg
	transition.Evaluated = true

	switch {
	case avg >= c.cfg.PromoteThreshold:
		state.tier = state.tier.Promote()
	case avg <= c.cfg.DemoteThreshold:
		state.tier = state.tier.Demote()
	}

	if state.tier != transition.From {
		state.scores = state.scores[:0]
	}
	transition.To = state.tier
	return transition
}

func (c *Controller) state(studentID string) *studentState {
	h := fnv.New32a()
	_, _ = h.Write([]byte(studentID))
	shard := c.shards[h.Sum32()%stateShards]

	shard.mu.Lock()
	defer shard.mu.Unlock()
	state, ok := shard.students[studentID]
	if !ok {
		state = &studentState{tier: TierEasy}
		shard.students[studentID] = state
	}
	return state
}
