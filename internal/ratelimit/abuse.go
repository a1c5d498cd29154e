package ratelimit

import (
	"strings"
	"sync"
	"time"
)

// Signal flags suspicious behavior on an attempt. Signals are surfaced to
// instructors only and never block admission.
type Signal string

const (
	SignalDuplicateSubmission Signal = "duplicate_submission"
	SignalAnswerSharing       Signal = "answer_sharing_pattern"
	SignalRapidRetry          Signal = "rapid_retry"
)

// Observation is one submission as seen by the abuse detector.
type Observation struct {
	StudentID   string
	Fingerprint string
	Canonical   string
	At          time.Time
}

// DetectorConfig tunes the pattern windows.
type DetectorConfig struct {
	// DedupeWindow flags identical SQL resubmitted by the same student.
	DedupeWindow time.Duration
	// SharingWindow flags identical SQL arriving from different students.
	SharingWindow time.Duration
	// RapidRetryWindow and RapidRetryCount flag bursts of near-identical
	// resubmissions; SimilarityCutoff is the minimum similarity ratio (0..1)
	// for two statements to count as "barely changed".
	RapidRetryWindow time.Duration
	RapidRetryCount  int
	SimilarityCutoff float64
}

// DefaultDetectorConfig returns the tuning used in production.
func DefaultDetectorConfig() DetectorConfig {
	return DetectorConfig{
		DedupeWindow:     2 * time.Minute,
		SharingWindow:    10 * time.Minute,
		RapidRetryWindow: time.Minute,
		RapidRetryCount:  3,
		SimilarityCutoff: 0.9,
	}
}

type observationEntry struct {
	studentID string
	canonical string
	at        time.Time
}

// Detector inspects the attempt stream for cheating patterns. It holds a
// short rolling history keyed by query fingerprint and by student; detection
// is independent of admission.
type Detector struct {
	cfg           DetectorConfig
	mu            sync.Mutex
	byFingerprint map[string][]observationEntry
	byStudent     map[string][]observationEntry
}

// NewDetector builds a detector with the provided configuration.
func NewDetector(cfg DetectorConfig) *Detector {
	return &Detector{
		cfg:           cfg,
		byFingerprint: make(map[string][]observationEntry),
		byStudent:     make(map[string][]observationEntry),
	}
}

// Inspect records the observation and returns any signals it triggers.
func (d *Detector) Inspect(obs Observation) []Signal {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.pruneLocked(obs.At)

	var signals []Signal

	for _, prev := range d.byFingerprint[obs.Fingerprint] {
		if prev.studentID == obs.StudentID {
			if obs.At.Sub(prev.at) <= d.cfg.DedupeWindow && !hasSignal(signals, SignalDuplicateSubmission) {
				signals = append(signals, SignalDuplicateSubmission)
			}
		} else if obs.At.Sub(prev.at) <= d.cfg.SharingWindow && !hasSignal(signals, SignalAnswerSharing) {
			signals = append(signals, SignalAnswerSharing)
		}
	}

	similar := 0
	for _, prev := range d.byStudent[obs.StudentID] {
		if obs.At.Sub(prev.at) > d.cfg.RapidRetryWindow {
			continue
		}
		if similarity(prev.canonical, obs.Canonical) >= d.cfg.SimilarityCutoff {
			similar++
		}
	}
	if similar+1 >= d.cfg.RapidRetryCount && d.cfg.RapidRetryCount > 0 {
		signals = append(signals, SignalRapidRetry)
	}

	entry := observationEntry{studentID: obs.StudentID, canonical: obs.Canonical, at: obs.At}
	d.byFingerprint[obs.Fingerprint] = append(d.byFingerprint[obs.Fingerprint], entry)
	d.byStudent[obs.StudentID] = append(d.byStudent[obs.StudentID], entry)

	return signals
}

// pruneLocked drops history older than the widest pattern window.
func (d *Detector) pruneLocked(now time.Time) {
	keep := d.cfg.SharingWindow
	if d.cfg.DedupeWindow > keep {
		keep = d.cfg.DedupeWindow
	}
	if d.cfg.RapidRetryWindow > keep {
		keep = d.cfg.RapidRetryWindow
	}
	cutoff := now.Add(-keep)

	for key, entries := range d.byFingerprint {
		d.byFingerprint[key] = dropBefore(entries, cutoff)
		if len(d.byFingerprint[key]) == 0 {
			delete(d.byFingerprint, key)
		}
	}
	for key, entries := range d.byStudent {
		d.byStudent[key] = dropBefore(entries, cutoff)
		if len(d.byStudent[key]) == 0 {
			delete(d.byStudent, key)
		}
	}
}

func dropBefore(entries []observationEntry, cutoff time.Time) []observationEntry {
	idx := 0
	for idx < len(entries) && !entries[idx].at.After(cutoff) {
		idx++
	}
	if idx == 0 {
		return entries
	}
	return append(entries[:0], entries[idx:]...)
}

func hasSignal(signals []Signal, s Signal) bool {
	for _, existing := range signals {
		if existing == s {
			return true
		}
	}
	return false
}

// similarity returns a 0..1 ratio of how alike two normalized statements are,
// based on edit distance over the longer length.
func similarity(a, b string) float64 {
	a, b = strings.ToLower(a), strings.ToLower(b)
	if a == b {
		return 1.0
	}
	longest := len(a)
	if len(b) > longest {
		longest = len(b)
	}
	if longest == 0 {
		return 1.0
	}
	return 1.0 - float64(editDistance(a, b))/float64(longest)
}

func editDistance(a, b string) int {
	if len(a) == 0 {
		return len(b)
	}
	if len(b) == 0 {
		return len(a)
	}

	prev := make([]int, len(b)+1)
	cur := make([]int, len(b)+1)
	for j := range prev {
		prev[j] = j
	}
	for i := 1; i <= len(a); i++ {
		cur[0] = i
		for j := 1; j <= len(b); j++ {
			cost := 1
			if a[i-1] == b[j-1] {
				cost = 0
			}
			cur[j] = minInt(prev[j]+1, cur[j-1]+1, prev[j-1]+cost)
		}
		prev, cur = cur, prev
	}
	return prev[len(b)]
}

func minInt(values ...int) int {
	m := values[0]
	for _, v := range values[1:] {
		if v < m {
			m = v
		}
	}
	return m
}
