// Package grading scores an executed query result against a challenge's
// expected answer. Grading is a pure function of its inputs so attempts can be
// re-graded for audits and always produce the same score.
package grading

import "errors"

// Feedback tags attached to a grade.
const (
	TagExactMatch   = "exact_match"
	TagPartialMatch = "partial_match"
	TagIncorrect    = "incorrect"
	TagNoResults    = "no_results"
)

// ErrMalformedExpected indicates the stored reference answer is unusable.
// This is an internal fault, never a student error.
var ErrMalformedExpected = errors.New("malformed expected result set")

// Config tunes the partial-credit rule.
type Config struct {
	// PenaltyFloor is the lowest multiplier applied when the student returns
	// more rows than expected. 0 disables the floor.
	PenaltyFloor float64
}

// Result is a normalized score plus a feedback tag.
type Result struct {
	Score float64 `json:"score"`
	Tag   string  `json:"tag"`
}

// Grade compares the returned rowset against the expected answer.
//
// Scoring rule:
//   - exact match (same columns, same rows, respecting the challenge's
//     order-sensitivity) scores 1.0;
//   - otherwise score = |multiset intersection on shared columns| / |expected
//     rows|, capped at 1.0 and multiplied by expected/got when the student
//     returned extra rows (floored at Config.PenaltyFloor);
//   - an empty result against a non-empty answer scores 0 with tag no_results.
func Grade(got RowSet, expected Expected, cfg Config) (Result, error) {
	if len(expected.Columns) == 0 {
		return Result{}, ErrMalformedExpected
	}
	for _, row := range expected.Rows {
		if len(row) != len(expected.Columns) {
			return Result{}, ErrMalformedExpected
		}
	}

	if len(got.Rows) == 0 {
		if len(expected.Rows) == 0 {
			return Result{Score: 1.0, Tag: TagExactMatch}, nil
		}
		return Result{Score: 0.0, Tag: TagNoResults}, nil
	}

	if exactMatch(got, expected) {
		return Result{Score: 1.0, Tag: TagExactMatch}, nil
	}

	common := commonColumns(expected.Columns, got.Columns)
	if len(common) == 0 {
		return Result{Score: 0.0, Tag: TagIncorrect}, nil
	}

	overlap := overlapCount(got, expected, common)
	if overlap == 0 {
		return Result{Score: 0.0, Tag: TagIncorrect}, nil
	}

	score := float64(overlap) / float64(len(expected.Rows))
	if score > 1.0 {
		score = 1.0
	}

	if len(got.Rows) > len(expected.Rows) {
		penalty := float64(len(expected.Rows)) / float64(len(got.Rows))
		if penalty < cfg.PenaltyFloor {
			penalty = cfg.PenaltyFloor
		}
		score *= penalty
	}

	tag := TagPartialMatch
	if score == 0 {
		tag = TagIncorrect
	}
	return Result{Score: score, Tag: tag}, nil
}

func exactMatch(got RowSet, expected Expected) bool {
	if !sameColumns(got.Columns, expected.Columns) {
		return false
	}
	if len(got.Rows) != len(expected.Rows) {
		return false
	}

	gotIdx := projection(got.Columns, expected.Columns)
	expIdx := identity(len(expected.Columns))

	if expected.OrderMatters {
		for i := range expected.Rows {
			if canonRow(got.Rows[i], gotIdx) != canonRow(expected.Rows[i], expIdx) {
				return false
			}
		}
		return true
	}

	counts := make(map[string]int, len(expected.Rows))
	for _, row := range expected.Rows {
		counts[canonRow(row, expIdx)]++
	}
	for _, row := range got.Rows {
		key := canonRow(row, gotIdx)
		counts[key]--
		if counts[key] < 0 {
			return false
		}
	}
	return true
}

// overlapCount counts rows appearing in both sets when projected onto the
// shared columns. Order-sensitive challenges only credit rows in the right
// position; otherwise multiset intersection is used.
func overlapCount(got RowSet, expected Expected, common []string) int {
	gotIdx := indexesFor(got.Columns, common)
	expIdx := indexesFor(expected.Columns, common)

	if expected.OrderMatters {
		overlap := 0
		for i, row := range expected.Rows {
			if i >= len(got.Rows) {
				break
			}
			if canonRow(got.Rows[i], gotIdx) == canonRow(row, expIdx) {
				overlap++
			}
		}
		return overlap
	}

	counts := make(map[string]int, len(expected.Rows))
	for _, row := range expected.Rows {
		counts[canonRow(row, expIdx)]++
	}

	overlap := 0
	for _, row := range got.Rows {
		key := canonRow(row, gotIdx)
		if counts[key] > 0 {
			counts[key]--
			overlap++
		}
	}
	return overlap
}

// projection maps each target column to its index in source columns.
func projection(source, target []string) []int {
	idx := columnIndex(source)
	out := make([]int, len(target))
	for i, c := range target {
		pos, ok := idx[normalizeName(c)]
		if !ok {
			pos = -1
		}
		out[i] = pos
	}
	return out
}

func indexesFor(columns []string, names []string) []int {
	idx := columnIndex(columns)
	out := make([]int, len(names))
	for i, name := range names {
		pos, ok := idx[name]
		if !ok {
			pos = -1
		}
		out[i] = pos
	}
	return out
}

func identity(n int) []int {
	out := make([]int, n)
	for i := range out {
		out[i] = i
	}
	return out
}
