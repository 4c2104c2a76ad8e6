// Package cache keeps a durable client-local shadow of each field, used to
// paint a value before the remote store answers.
package cache

import (
	"context"
	"database/sql"
	"encoding/json"
	"strings"
	"time"

	"github.com/hpungsan/pied/internal/attribution"
	"github.com/hpungsan/pied/internal/db"
	"github.com/hpungsan/pied/internal/errors"
)

// Kind tags which variant an Entry holds.
type Kind string

const (
	KindRaw      Kind = "raw"      // token only
	KindEnvelope Kind = "envelope" // token plus attribution
)

// Entry is a cached field value. Token is always the encoded content.
// EditorName and EditedAt are meaningful only for KindEnvelope.
type Entry struct {
	Kind       Kind
	Token      string
	EditorName string
	EditedAt   *time.Time
}

// Raw returns a KindRaw entry.
func Raw(token string) Entry {
	return Entry{Kind: KindRaw, Token: token}
}

// Envelope returns a KindEnvelope entry carrying a's editor and timestamp.
func Envelope(token string, a attribution.Attribution) Entry {
	return Entry{
		Kind:       KindEnvelope,
		Token:      token,
		EditorName: attribution.EditorOrAnonymous(a.EditorName),
		EditedAt:   a.EditedAt,
	}
}

// Attribution returns the entry's attribution, or attribution.Missing for raw entries.
func (e Entry) Attribution() attribution.Attribution {
	if e.Kind != KindEnvelope {
		return attribution.Missing()
	}
	return attribution.Attribution{
		EditorName: attribution.EditorOrAnonymous(e.EditorName),
		EditedAt:   e.EditedAt,
	}
}

// Cache stores entries in the local SQLite database.
type Cache struct {
	db *sql.DB
}

// New returns a Cache backed by database.
func New(database *sql.DB) *Cache {
	return &Cache{db: database}
}

// Get returns the entry stored under key, or nil if there is none.
func (c *Cache) Get(ctx context.Context, key string) (*Entry, error) {
	row, err := db.GetCacheEntry(ctx, c.db, key)
	if errors.Is(err, errors.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	e := &Entry{Kind: Kind(row.Kind), Token: row.Token}
	if e.Kind == KindEnvelope {
		if row.EditorName != nil {
			e.EditorName = *row.EditorName
		}
		if row.EditedAt != nil {
			if t, ok := attribution.ParseTime(*row.EditedAt); ok {
				e.EditedAt = &t
			}
		}
	}
	return e, nil
}

// Put stores e under key, replacing any previous entry.
func (c *Cache) Put(ctx context.Context, key string, e Entry) error {
	row := &db.CacheRow{
		Key:   key,
		Kind:  string(e.Kind),
		Token: e.Token,
	}
	switch e.Kind {
	case KindRaw:
	case KindEnvelope:
		name := attribution.EditorOrAnonymous(e.EditorName)
		row.EditorName = &name
		if e.EditedAt != nil {
			ts := attribution.FormatTime(*e.EditedAt)
			row.EditedAt = &ts
		}
	default:
		return errors.NewInvalidRequest("unknown cache entry kind: " + string(e.Kind))
	}
	return db.PutCacheEntry(ctx, c.db, row)
}

// legacyEnvelope is the JSON shape browsers stored under boxText_{id}.
type legacyEnvelope struct {
	Content      *string `json:"content"`
	LastEditor   string  `json:"lastEditor"`
	LastEditTime string  `json:"lastEditTime"`
}

// ParseLegacy converts a browser-era local storage value into an Entry.
// A JSON object with a string "content" member is an envelope; anything else
// is taken as a bare token.
func ParseLegacy(raw string) Entry {
	trimmed := strings.TrimSpace(raw)
	if strings.HasPrefix(trimmed, "{") {
		var env legacyEnvelope
		if err := json.Unmarshal([]byte(trimmed), &env); err == nil && env.Content != nil {
			e := Entry{
				Kind:       KindEnvelope,
				Token:      *env.Content,
				EditorName: attribution.EditorOrAnonymous(env.LastEditor),
			}
			if t, ok := attribution.ParseTime(env.LastEditTime); ok {
				e.EditedAt = &t
			}
			return e
		}
	}
	return Raw(raw)
}
