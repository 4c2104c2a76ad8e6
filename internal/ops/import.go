package ops

import (
	"context"
	"database/sql"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"slices"
	"strings"

	"github.com/golang/glog"

	"github.com/hpungsan/pied/internal/box"
	"github.com/hpungsan/pied/internal/cache"
	"github.com/hpungsan/pied/internal/config"
	"github.com/hpungsan/pied/internal/errors"
	"github.com/hpungsan/pied/internal/field"
	"github.com/hpungsan/pied/internal/profile"
)

// ImportMode controls what happens when a box already has a cache entry.
type ImportMode string

const (
	ImportModeReplace ImportMode = "replace" // overwrite existing entries
	ImportModeSkip    ImportMode = "skip"    // keep existing entries
)

// earlyCacheKeyPrefix is the draft key prefix older page builds used
// instead of boxText_. A boxText_ key for the same box wins.
const earlyCacheKeyPrefix = "texts_"

// maxImportBytes bounds the size of a storage dump. Browsers cap local storage near 5MB.
const maxImportBytes = 16 << 20

// ImportInput contains parameters for the ImportCache operation.
type ImportInput struct {
	Path string     // required; a JSON object of storage key to string value
	Mode ImportMode // default: replace
}

// ImportOutput contains the result of the ImportCache operation.
type ImportOutput struct {
	Imported int           `json:"imported"`
	Skipped  int           `json:"skipped"`
	Profile  *string       `json:"profile,omitempty"`
	Errors   []ImportError `json:"errors"`
}

// ImportError describes one storage key that could not be imported.
type ImportError struct {
	Key     string `json:"key"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ImportCache loads a browser local storage dump into the local cache.
// boxText_{id} (or older texts_{id}) values become cache entries (legacy envelopes keep their attribution)
// and "username" becomes the stored profile name. Other keys are skipped.
func ImportCache(ctx context.Context, database *sql.DB, cfg *config.Config, input ImportInput) (*ImportOutput, error) {
	if input.Mode == "" {
		input.Mode = ImportModeReplace
	}
	if input.Mode != ImportModeReplace && input.Mode != ImportModeSkip {
		return nil, errors.NewInvalidRequest("mode must be one of: replace, skip")
	}
	if err := ValidateImportPath(input.Path); err != nil {
		return nil, err
	}

	file, err := openFileNoFollowRead(input.Path)
	if err != nil {
		var pErr *errors.PiedError
		if stderrors.As(err, &pErr) {
			return nil, err
		}
		return nil, errors.NewInternal(err)
	}
	defer file.Close()

	entries, err := parseStorageDump(file)
	if err != nil {
		return nil, err
	}

	c := cache.New(database)
	out := &ImportOutput{Errors: []ImportError{}}

	keys := make([]string, 0, len(entries))
	for k := range entries {
		keys = append(keys, k)
	}
	slices.Sort(keys)

	for _, key := range keys {
		raw := entries[key]

		switch {
		case key == profile.SettingKey:
			value, ok := storageString(raw)
			if !ok {
				out.Errors = append(out.Errors, importError(key, errors.ErrInvalidRequest, "value must be a string"))
				continue
			}
			name, err := profile.Set(ctx, database, value)
			if err != nil {
				out.Errors = append(out.Errors, importErrorFrom(key, err))
				continue
			}
			out.Profile = &name
			out.Imported++

		case strings.HasPrefix(key, field.CacheKey("")):
			if err := importBox(ctx, c, cfg, input.Mode, key, field.CacheKey(""), raw, out); err != nil {
				return nil, err
			}

		case strings.HasPrefix(key, earlyCacheKeyPrefix):
			if id, err := box.Parse(strings.TrimPrefix(key, earlyCacheKeyPrefix), cfg.BoxCount); err == nil {
				if _, ok := entries[field.CacheKey(box.Name(id))]; ok {
					glog.V(1).Infof("import: %s shadowed by %s", key, field.CacheKey(box.Name(id)))
					out.Skipped++
					continue
				}
			}
			if err := importBox(ctx, c, cfg, input.Mode, key, earlyCacheKeyPrefix, raw, out); err != nil {
				return nil, err
			}

		default:
			glog.V(1).Infof("import: skipping unrelated key %q", key)
			out.Skipped++
		}
	}

	return out, nil
}

// importBox stores one box draft found under key. Per-key problems are
// recorded in out; only storage failures are returned.
func importBox(ctx context.Context, c *cache.Cache, cfg *config.Config, mode ImportMode, key, prefix string, raw json.RawMessage, out *ImportOutput) error {
	id, err := box.Parse(strings.TrimPrefix(key, prefix), cfg.BoxCount)
	if err != nil {
		out.Errors = append(out.Errors, importErrorFrom(key, err))
		return nil
	}
	value, ok := storageString(raw)
	if !ok {
		out.Errors = append(out.Errors, importError(key, errors.ErrInvalidRequest, "value must be a string"))
		return nil
	}

	cacheKey := field.CacheKey(box.Name(id))
	if mode == ImportModeSkip {
		existing, err := c.Get(ctx, cacheKey)
		if err != nil {
			return errors.NewInternal(err)
		}
		if existing != nil {
			out.Skipped++
			return nil
		}
	}
	if err := c.Put(ctx, cacheKey, cache.ParseLegacy(value)); err != nil {
		return errors.NewInternal(err)
	}
	out.Imported++
	return nil
}

// parseStorageDump reads the whole dump as a JSON object.
func parseStorageDump(r io.Reader) (map[string]json.RawMessage, error) {
	data, err := io.ReadAll(io.LimitReader(r, maxImportBytes+1))
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	if len(data) > maxImportBytes {
		return nil, errors.NewInvalidRequest(fmt.Sprintf("import file exceeds %d bytes", maxImportBytes))
	}

	var entries map[string]json.RawMessage
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, errors.NewInvalidRequest(fmt.Sprintf("import file must be a JSON object: %v", err))
	}
	return entries, nil
}

// storageString unwraps a JSON string value. Local storage only holds strings.
func storageString(raw json.RawMessage) (string, bool) {
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", false
	}
	return s, true
}

func importError(key string, code errors.ErrorCode, msg string) ImportError {
	return ImportError{Key: key, Code: string(code), Message: msg}
}

func importErrorFrom(key string, err error) ImportError {
	var pErr *errors.PiedError
	if stderrors.As(err, &pErr) {
		return importError(key, pErr.Code, pErr.Message)
	}
	return importError(key, errors.ErrInternal, err.Error())
}
