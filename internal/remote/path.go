package remote

import (
	"strings"

	"github.com/hpungsan/pied/internal/errors"
)

// MaxPathLength bounds the length of a store path in bytes.
const MaxPathLength = 768

// ValidatePath checks that path is a '/'-separated list of non-empty segments
// free of the characters '.', '#', '$', '[' and ']'.
func ValidatePath(path string) error {
	if path == "" {
		return errors.NewInvalidRequest("path is required")
	}
	if len(path) > MaxPathLength {
		return errors.NewInvalidRequest("path is too long")
	}
	for _, seg := range strings.Split(path, "/") {
		if seg == "" {
			return errors.NewInvalidRequest("path has an empty segment: " + path)
		}
		if strings.ContainsAny(seg, ".#$[]") {
			return errors.NewInvalidRequest("path contains a reserved character: " + path)
		}
	}
	return nil
}
