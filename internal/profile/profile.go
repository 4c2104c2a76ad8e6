// Package profile stores the local user's display name.
package profile

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/hpungsan/pied/internal/attribution"
	"github.com/hpungsan/pied/internal/db"
	"github.com/hpungsan/pied/internal/errors"
)

// SettingKey is the settings row holding the display name.
const SettingKey = "username"

// MaxNameChars is the longest accepted display name, in characters.
const MaxNameChars = 20

// Get returns the stored display name, or attribution.Anonymous when none is set.
func Get(ctx context.Context, database *sql.DB) (string, error) {
	name, err := db.GetSetting(ctx, database, SettingKey)
	if errors.Is(err, errors.ErrNotFound) {
		return attribution.Anonymous, nil
	}
	if err != nil {
		return "", err
	}
	return attribution.EditorOrAnonymous(name), nil
}

// Set trims and stores name. A blank name stores attribution.Anonymous.
// Returns the name as stored.
func Set(ctx context.Context, database *sql.DB, name string) (string, error) {
	name = attribution.EditorOrAnonymous(name)
	if n := utf8.RuneCountInString(name); n > MaxNameChars {
		return "", errors.NewInvalidRequest(fmt.Sprintf("name is %d characters (max %d)", n, MaxNameChars))
	}
	if strings.ContainsAny(name, "\n\r") {
		return "", errors.NewInvalidRequest("name must be a single line")
	}
	if err := db.PutSetting(ctx, database, SettingKey, name); err != nil {
		return "", err
	}
	return name, nil
}
