package wizard

import (
	"regexp"
	"strings"
)

// Separators used by the persistence wire format. Multi-valued fields are only ever
// delimited strings at the service boundary.
const (
	commaSep     = ","
	semicolonSep = ";"
	capNameSep   = ", "
)

var featureSplit = regexp.MustCompile(`[;\n]`)

func splitOn(s, sep string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	parts := strings.Split(s, sep)
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// SplitComma splits a comma-delimited field, trimming entries and dropping blanks.
func SplitComma(s string) []string { return splitOn(s, commaSep) }

// SplitSemicolon splits a semicolon-delimited field.
func SplitSemicolon(s string) []string { return splitOn(s, semicolonSep) }

// SplitFeatures splits key features on semicolons or newlines.
func SplitFeatures(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	var out []string
	for _, p := range featureSplit.Split(s, -1) {
		if p = strings.TrimSpace(strings.TrimSuffix(p, "\r")); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func joinNonEmpty(items []string, sep string) string {
	kept := make([]string, 0, len(items))
	for _, it := range items {
		if it = strings.TrimSpace(it); it != "" {
			kept = append(kept, it)
		}
	}
	return strings.Join(kept, sep)
}
