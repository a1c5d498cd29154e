// Package ratelimit gates query generation and execution per user with
// sliding-window quotas, and watches the attempt stream for abuse patterns.
package ratelimit

import (
	"hash/fnv"
	"sort"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var admitDenials = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "sqlquest",
	Subsystem: "ratelimit",
	Name:      "denials_total",
	Help:      "Number of denied admission checks",
}, []string{"role", "window"})

// Role determines which quota tier applies.
type Role string

const (
	RoleStudent    Role = "student"
	RoleInstructor Role = "instructor"
)

const shardCount = 64

// Config holds the per-role sliding window quotas.
type Config struct {
	BurstLimit  int
	BurstWindow time.Duration

	ShortLimitStudent    int
	ShortLimitInstructor int
	ShortWindow          time.Duration

	DailyLimitStudent    int
	DailyLimitInstructor int
	DailyWindow          time.Duration
}

// DefaultConfig mirrors the game's production quotas: 3/30s burst, 10/5min
// (20 for instructors), 100/day (200 for instructors).
func DefaultConfig() Config {
	return Config{
		BurstLimit:           3,
		BurstWindow:          30 * time.Second,
		ShortLimitStudent:    10,
		ShortLimitInstructor: 20,
		ShortWindow:          5 * time.Minute,
		DailyLimitStudent:    100,
		DailyLimitInstructor: 200,
		DailyWindow:          24 * time.Hour,
	}
}

// Decision is the outcome of an admission check. RetryAfter is only set on
// denial and reports when the earliest-expiring blocked window frees a slot.
type Decision struct {
	Allowed    bool
	RetryAfter time.Duration
	// Window names the quota that denied the request.
	Window string
}

type userWindow struct {
	mu     sync.Mutex
	stamps []time.Time
}

type shard struct {
	mu    sync.Mutex
	users map[string]*userWindow
}

// Limiter applies sliding-window quotas with per-user exclusive access. State
// is sharded by user so one user's check never contends with another's.
type Limiter struct {
	cfg    Config
	shards [shardCount]*shard
}

// NewLimiter builds a limiter with the given quotas.
func NewLimiter(cfg Config) *Limiter {
	l := &Limiter{cfg: cfg}
	for i := range l.shards {
		l.shards[i] = &shard{users: make(map[string]*userWindow)}
	}
	return l
}

// Admit checks all three windows for the user at the given instant and, when
// every quota has room, records the request atomically. Two concurrent calls
// for the same user serialize on the user's lock, so a single remaining slot
// is never handed out twice.
func (l *Limiter) Admit(userID string, role Role, now time.Time) Decision {
	w := l.window(userID)

	w.mu.Lock()
	defer w.mu.Unlock()

	// timestamps older than the widest window can never matter again
	w.prune(now.Add(-l.cfg.DailyWindow))

	checks := []struct {
		name   string
		limit  int
		window time.Duration
	}{
		{"burst", l.cfg.BurstLimit, l.cfg.BurstWindow},
		{"short", l.shortLimit(role), l.cfg.ShortWindow},
		{"daily", l.dailyLimit(role), l.cfg.DailyWindow},
	}

	denied := false
	var retryAfter time.Duration
	var deniedWindow string
	for _, check := range checks {
		counted := w.inWindow(now.Add(-check.window))
		if len(counted) < check.limit {
			continue
		}
		// capacity frees when enough old stamps leave the window to drop the
		// count below the limit
		limiting := counted[len(counted)-check.limit]
		wait := limiting.Add(check.window).Sub(now)
		if wait < 0 {
			wait = 0
		}
		if !denied || wait < retryAfter {
			retryAfter = wait
			deniedWindow = check.name
		}
		denied = true
	}

	if denied {
		admitDenials.WithLabelValues(string(role), deniedWindow).Inc()
		return Decision{Allowed: false, RetryAfter: retryAfter, Window: deniedWindow}
	}

	w.stamps = append(w.stamps, now)
	return Decision{Allowed: true}
}

func (l *Limiter) shortLimit(role Role) int {
	if role == RoleInstructor {
		return l.cfg.ShortLimitInstructor
	}
	return l.cfg.ShortLimitStudent
}

func (l *Limiter) dailyLimit(role Role) int {
	if role == RoleInstructor {
		return l.cfg.DailyLimitInstructor
	}
	return l.cfg.DailyLimitStudent
}

func (l *Limiter) window(userID string) *userWindow {
	h := fnv.New32a()
	_, _ = h.Write([]byte(userID))
	s := l.shards[h.Sum32()%shardCount]

	s.mu.Lock()
	defer s.mu.Unlock()
	w, ok := s.users[userID]
	if !ok {
		w = &userWindow{}
		s.users[userID] = w
	}
	return w
}

// prune drops timestamps at or before the cutoff. Caller holds the lock.
func (w *userWindow) prune(cutoff time.Time) {
	idx := sort.Search(len(w.stamps), func(i int) bool {
		return w.stamps[i].After(cutoff)
	})
	if idx > 0 {
		w.stamps = append(w.stamps[:0], w.stamps[idx:]...)
	}
}

// inWindow returns the stamps strictly after the cutoff. Caller holds the lock.
func (w *userWindow) inWindow(cutoff time.Time) []time.Time {
	idx := sort.Search(len(w.stamps), func(i int) bool {
		return w.stamps[i].After(cutoff)
	})
	return w.stamps[idx:]
}
