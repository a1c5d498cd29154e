package grading

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
)

// RowSet is the tabular output of an executed query.
type RowSet struct {
	Columns []string `json:"columns"`
	Rows    [][]any  `json:"rows"`
}

// Expected is a challenge's reference answer.
type Expected struct {
	Columns      []string `json:"columns"`
	Rows         [][]any  `json:"rows"`
	OrderMatters bool     `json:"order_matters"`
}

// canonCell collapses a cell into a comparable key. Strings are trimmed and
// numeric-looking strings coerced, floats rounded to six places, so "12",
// 12 and 12.000000049 all compare equal. This mirrors how spreadsheets of
// inventory data get typed inconsistently across drivers.
func canonCell(v any) string {
	switch val := v.(type) {
	case nil:
		return "null"
	case bool:
		if val {
			return "n:1"
		}
		return "n:0"
	case int:
		return numKey(float64(val))
	case int32:
		return numKey(float64(val))
	case int64:
		return numKey(float64(val))
	case float32:
		return numKey(float64(val))
	case float64:
		return numKey(val)
	case []byte:
		return canonString(string(val))
	case string:
		return canonString(val)
	default:
		return canonString(fmt.Sprintf("%v", val))
	}
}

func canonString(s string) string {
	s = strings.TrimSpace(s)
	if s == "" || strings.EqualFold(s, "none") || strings.EqualFold(s, "nan") {
		return "null"
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return numKey(f)
	}
	return "s:" + s
}

func numKey(f float64) string {
	rounded := math.Round(f*1e6) / 1e6
	return "n:" + strconv.FormatFloat(rounded, 'g', -1, 64)
}

// canonRow renders a row projected onto the given column indexes.
func canonRow(row []any, indexes []int) string {
	parts := make([]string, len(indexes))
	for i, idx := range indexes {
		if idx < 0 || idx >= len(row) {
			parts[i] = "null"
			continue
		}
		parts[i] = canonCell(row[idx])
	}
	return strings.Join(parts, "\x1f")
}

// columnIndex maps lower-cased trimmed column names to positions.
func columnIndex(columns []string) map[string]int {
	idx := make(map[string]int, len(columns))
	for i, c := range columns {
		idx[normalizeName(c)] = i
	}
	return idx
}

func normalizeName(c string) string {
	return strings.ToLower(strings.TrimSpace(c))
}

// sameColumns reports whether two column sets are equal ignoring case and
// ordering.
func sameColumns(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	normalize := func(cols []string) []string {
		out := make([]string, len(cols))
		for i, c := range cols {
			out[i] = strings.ToLower(strings.TrimSpace(c))
		}
		sort.Strings(out)
		return out
	}
	na, nb := normalize(a), normalize(b)
	for i := range na {
		if na[i] != nb[i] {
			return false
		}
	}
	return true
}

// commonColumns returns the expected-order list of columns present in both
// sets, lower-cased.
func commonColumns(expected, got []string) []string {
	gotSet := make(map[string]struct{}, len(got))
	for _, c := range got {
		gotSet[strings.ToLower(strings.TrimSpace(c))] = struct{}{}
	}
	var common []string
	for _, c := range expected {
		key := strings.ToLower(strings.TrimSpace(c))
		if _, ok := gotSet[key]; ok {
			common = append(common, key)
		}
	}
	return common
}
