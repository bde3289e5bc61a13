package utils

// Truncate returns s truncated to maxLen characters, with "..." appended if
// truncated. If maxLen is 0 or negative, returns s unchanged. The cutoff is a
// hard one, not sentence-aware; truncated output feeds a prompt budget.
// Counting runes rather than bytes keeps the cut off the middle of a
// multi-byte sequence.
func Truncate(s string, maxLen int) string {
	if maxLen <= 0 || len(s) <= maxLen {
		return s
	}
	runes := []rune(s)
	if len(runes) <= maxLen {
		return s
	}
	return string(runes[:maxLen]) + "..."
}
