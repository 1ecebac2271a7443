package utils

import "strings"

// MaskSecret keeps a short prefix so two secrets can be told apart in logs
func MaskSecret(s string) string {
	if s == "" {
		return ""
	}
	if len(s) <= 8 {
		return strings.Repeat("*", len(s))
	}
	return s[:4] + strings.Repeat("*", 8)
}
