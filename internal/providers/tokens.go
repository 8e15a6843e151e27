package providers

import (
	"strings"
	"unicode/utf8"
)

// EstimateTokens approximates a token count for providers without a counting endpoint.
func EstimateTokens(text string) int {
	n := utf8.RuneCountInString(text)
	return (n + 3) / 4
}

// pickModel returns requested when it belongs to the provider's model family
// (names starting with family), else the provider's own fallback.
func pickModel(requested, family, fallback string) string {
	if requested != "" && strings.HasPrefix(strings.ToLower(requested), family) {
		return requested
	}
	return fallback
}
