package box

import (
	"html"
	"regexp"
	"strings"
	"unicode/utf8"
)

// LintInput contains parameters for linting box content.
type LintInput struct {
	Content  string
	MaxChars int
}

// LintResult contains the results of linting box content.
type LintResult struct {
	Valid       bool
	TooLarge    bool
	ActualChars int
	MaxChars    int
}

// Lint checks content against the size limit. MaxChars <= 0 disables the check.
func Lint(input LintInput) *LintResult {
	result := &LintResult{
		Valid:       true,
		ActualChars: CountChars(input.Content),
		MaxChars:    input.MaxChars,
	}

	if input.MaxChars > 0 && result.ActualChars > input.MaxChars {
		result.TooLarge = true
		result.Valid = false
	}

	return result
}

// CountChars returns the character count as runes (not bytes).
func CountChars(text string) int {
	return utf8.RuneCountInString(text)
}

var (
	tagRegex        = regexp.MustCompile(`<[^>]*>`)
	whitespaceRegex = regexp.MustCompile(`\s+`)
)

// PlainText strips markup from rich content and collapses whitespace.
func PlainText(content string) string {
	s := tagRegex.ReplaceAllString(content, " ")
	s = html.UnescapeString(s)
	return strings.TrimSpace(whitespaceRegex.ReplaceAllString(s, " "))
}

// Preview returns at most maxChars runes of content's plain text,
// ending in "…" when it was cut.
func Preview(content string, maxChars int) string {
	s := PlainText(content)
	if maxChars <= 0 || utf8.RuneCountInString(s) <= maxChars {
		return s
	}
	r := []rune(s)
	return strings.TrimSpace(string(r[:maxChars])) + "…"
}
