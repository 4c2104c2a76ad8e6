//go:build windows

package ops

import (
	"os"

	"github.com/hpungsan/pied/internal/errors"
)

// openFileNoFollowRead opens a file for reading.
// O_NOFOLLOW is not available on Windows; ValidateImportPath has already refused symlinks.
func openFileNoFollowRead(path string) (*os.File, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.NewNotFound(path)
		}
		return nil, err
	}
	return f, nil
}
