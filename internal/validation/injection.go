package validation

import "regexp"

// Patterns matched against free-text request fields. A hit anywhere rejects
// the request before it reaches the ledger.
var injectionPatterns = []*regexp.Regexp{
	// SQL keywords in suspicious positions
	regexp.MustCompile(`(?i)\b(select|insert|update|delete|drop|alter|create|truncate|union|exec|execute)\b.*\b(from|into|table|where|database)\b`),
	regexp.MustCompile(`(?i)(--|;)\s*(drop|delete|update|insert)\b`),
	regexp.MustCompile(`(?i)'\s*(or|and)\s+'?\d`),
	// script and HTML tag injection
	regexp.MustCompile(`(?i)<\s*script\b`),
	regexp.MustCompile(`(?i)<\s*/?\s*(iframe|object|embed|img|svg)\b`),
	regexp.MustCompile(`(?i)javascript\s*:`),
	// inline event handlers
	regexp.MustCompile(`(?i)\bon(load|error|click|mouseover|focus|submit)\s*=`),
}

// containsInjection reports whether the value matches any known injection
// pattern.
func containsInjection(value string) bool {
	if value == "" {
		return false
	}
	for _, p := range injectionPatterns {
		if p.MatchString(value) {
			return true
		}
	}
	return false
}
