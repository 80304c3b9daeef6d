package util

import "strings"

// SanitizeText makes extracted text safe for Postgres text columns and for
// prompts: invalid UTF-8 is dropped, as are NUL, DEL and C0 controls other
// than newline, carriage return and tab.
func SanitizeText(s string) string {
	if s == "" {
		return s
	}
	s = strings.ToValidUTF8(s, "")
	return strings.TrimSpace(strings.Map(func(r rune) rune {
		switch {
		case r == '\n' || r == '\r' || r == '\t':
			return r
		case r < 0x20 || r == 0x7f:
			return -1
		default:
			return r
		}
	}, s))
}
