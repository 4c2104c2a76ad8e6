package box

import (
	"regexp"
	"strings"
)

var schemeRegex = regexp.MustCompile(`^https?://`)

// NormalizeLink prepares a user-entered link target.
// An empty target means the link should be removed; remove is then true.
// Targets without an http or https scheme get "https://".
func NormalizeLink(target string) (href string, remove bool) {
	target = strings.TrimSpace(target)
	if target == "" {
		return "", true
	}
	if !schemeRegex.MatchString(target) {
		target = "https://" + target
	}
	return target, false
}
