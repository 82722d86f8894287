package helpers

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

var (
	markdownEscaped = regexp.MustCompile(`\\(\*|_|` + "`" + `|~|\\)`)
	markdownTokens  = regexp.MustCompile(`(\*|_|` + "`" + `|~|\\)`)
)

// Sanitize escapes discord markdown in $text, text that was already escaped is not escaped twice
func Sanitize(text string) string {
	unescaped := markdownEscaped.ReplaceAllString(text, "$1")
	return markdownTokens.ReplaceAllString(unescaped, `\$1`)
}

// Capitalize upper-cases the first rune of $text
func Capitalize(text string) string {
	r, size := utf8.DecodeRuneInString(text)
	if r == utf8.RuneError {
		return text
	}
	return string(unicode.ToUpper(r)) + text[size:]
}

// Plural returns "s" unless $n is exactly one
func Plural(n int) string {
	if n == 1 {
		return ""
	}
	return "s"
}

// ContainsFold is a case-insensitive slice lookup
func ContainsFold(list []string, needle string) bool {
	for _, item := range list {
		if strings.EqualFold(item, needle) {
			return true
		}
	}
	return false
}
