// Package box holds the rules for the numbered boxes on the page.
package box

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/hpungsan/pied/internal/errors"
)

// DefaultCount is the number of boxes on the page when not configured.
const DefaultCount = 999

// Validate checks that id is in 0..count-1.
func Validate(id, count int) error {
	if count <= 0 {
		count = DefaultCount
	}
	if id < 0 || id >= count {
		return errors.NewInvalidRequest(fmt.Sprintf("box must be between 0 and %d", count-1))
	}
	return nil
}

// Parse reads a box id from s and validates it against count.
func Parse(s string, count int) (int, error) {
	id, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0, errors.NewInvalidRequest("box must be an integer")
	}
	if err := Validate(id, count); err != nil {
		return 0, err
	}
	return id, nil
}

// Label returns the display label for id. Box 0 is "Pied 1".
func Label(id int) string {
	return fmt.Sprintf("Pied %d", id+1)
}

// Name returns the field name used for id's remote paths and cache key.
func Name(id int) string {
	return strconv.Itoa(id)
}
