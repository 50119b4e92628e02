package agent

import (
	"regexp"
	"strconv"
	"strings"
)

// Keys the reconciler consumes from a parsed report. Everything else is
// kept opaquely for display.
const (
	KeyTimeSpentDay = "TIME_SPENT_DAY"
	KeyTimeLeftDay  = "TIME_LEFT_DAY"
)

var reportLine = regexp.MustCompile(`([A-Z_]+):\s*(.*)`)

// ParseReport turns the free-text output of the agent's status command into
// a typed key/value map. The parser is total: lines that do not look like
// "UPPER_SNAKE_KEY: value" are skipped, malformed values degrade to strings
// and no input ever produces an error.
//
// Value coercion, in order: pure digits become int; values containing ';'
// become []int when every element is pure digits, otherwise []string;
// "true"/"false" (any case) become bool; anything else stays a trimmed
// string.
func ParseReport(raw string) map[string]any {
	report := make(map[string]any)
	for _, line := range strings.Split(raw, "\n") {
		m := reportLine.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		report[m[1]] = coerce(strings.TrimSpace(m[2]))
	}
	return report
}

func coerce(value string) any {
	if isDigits(value) {
		n, _ := strconv.Atoi(value)
		return n
	}
	if strings.Contains(value, ";") {
		parts := strings.Split(value, ";")
		allDigits := true
		for _, p := range parts {
			if !isDigits(p) {
				allDigits = false
				break
			}
		}
		if allDigits {
			nums := make([]int, len(parts))
			for i, p := range parts {
				nums[i], _ = strconv.Atoi(p)
			}
			return nums
		}
		return parts
	}
	switch strings.ToLower(value) {
	case "true":
		return true
	case "false":
		return false
	}
	return value
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// IntValue reads an int key from a parsed report, with a default for
// missing or differently-typed values.
func IntValue(report map[string]any, key string, def int) int {
	if v, ok := report[key].(int); ok {
		return v
	}
	return def
}
