package common

// Truncate shortens s to at most max runes.
// Rune-safe so multi-byte content is never split mid-character.
func Truncate(s string, max int) string {
	if max <= 0 {
		return ""
	}
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max])
}
