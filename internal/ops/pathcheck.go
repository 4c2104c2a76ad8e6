package ops

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/hpungsan/pied/internal/errors"
)

// ImportExt is the extension a browser storage dump must carry.
const ImportExt = ".json"

// ValidateImportPath checks a cache import path before it is opened:
// no ".." components, a .json extension, the file exists, and it is not a symlink.
// The final component is opened with O_NOFOLLOW as well; checking here gives a clearer error.
func ValidateImportPath(path string) error {
	if strings.TrimSpace(path) == "" {
		return errors.NewInvalidRequest("path is required")
	}
	if containsTraversal(path) {
		return errors.NewInvalidRequest("path must not contain '..'")
	}
	if !strings.EqualFold(filepath.Ext(path), ImportExt) {
		return errors.NewInvalidRequest("path must end in " + ImportExt)
	}

	info, err := os.Lstat(path)
	if os.IsNotExist(err) {
		return errors.NewNotFound(path)
	}
	if err != nil {
		return errors.NewInternal(err)
	}
	if info.Mode()&os.ModeSymlink != 0 {
		return errors.NewInvalidRequest("path must not be a symlink")
	}
	if info.IsDir() {
		return errors.NewInvalidRequest("path is a directory")
	}
	return nil
}

// containsTraversal checks if path contains ".." directory traversal.
func containsTraversal(path string) bool {
	for _, part := range strings.Split(path, string(filepath.Separator)) {
		if part == ".." {
			return true
		}
	}
	// Forward slashes count on every platform (user input).
	if filepath.Separator != '/' {
		for _, part := range strings.Split(path, "/") {
			if part == ".." {
				return true
			}
		}
	}
	return false
}
