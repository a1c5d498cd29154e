package ai

import (
	"regexp"
	"strings"
)

var (
	selectOnly = regexp.MustCompile(`(?is)^\s*SELECT\b`)

	// Rejected outright even when the statement starts with SELECT; the
	// validator downstream would catch these too, but the model's output
	// never deserves the benefit of the doubt. Matched on word boundaries
	// so column names like last_updated stay legal.
	suspiciousKeyword = regexp.MustCompile(`(?i)\b(attach|pragma|insert|update|delete|drop|alter|create)\b`)
)

// StripCodeFences removes markdown fencing and a leading "sql" label from
// model output.
func StripCodeFences(text string) string {
	text = strings.TrimSpace(text)
	if strings.HasPrefix(text, "```") {
		var kept []string
		for _, line := range strings.Split(text, "\n") {
			if strings.HasPrefix(strings.TrimSpace(line), "```") {
				continue
			}
			kept = append(kept, line)
		}
		text = strings.TrimSpace(strings.Join(kept, "\n"))
	}
	if strings.HasPrefix(strings.ToLower(text), "sql\n") {
		text = strings.TrimSpace(text[4:])
	}
	return text
}

// EnforceSelectOnly reduces model output to a single SELECT statement,
// falling back to the insufficient-info sentinel for anything else.
func EnforceSelectOnly(sql string) string {
	clean := strings.TrimRight(strings.TrimSpace(sql), ";")
	if clean == "" || !selectOnly.MatchString(clean) {
		return SentinelInsufficient
	}

	if strings.Contains(clean, ";") ||
		strings.Contains(clean, "--") ||
		strings.Contains(clean, "/*") ||
		suspiciousKeyword.MatchString(clean) {
		return SentinelInsufficient
	}

	return clean + ";"
}

// IsInsufficient reports whether the statement is the sentinel.
func IsInsufficient(sql string) bool {
	return strings.EqualFold(strings.TrimSpace(sql), SentinelInsufficient)
}
