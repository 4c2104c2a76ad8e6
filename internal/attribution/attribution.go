// Package attribution records who last wrote a box and when.
package attribution

import (
	"encoding/json"
	"strings"
	"time"
)

// Anonymous is the editor name used when none is configured.
const Anonymous = "Anonymous"

// TimeLayout is the ISO-8601 form used for EditedAt on the wire.
const TimeLayout = "2006-01-02T15:04:05.000Z07:00"

// Attribution is the metadata attached to a field's latest write.
// One Attribution exists per field and is replaced wholesale on every save.
type Attribution struct {
	EditorName string
	EditedAt   *time.Time // nil when the field has never been attributed
}

// New returns the attribution for a save made by editorName at now.
func New(editorName string, now time.Time) Attribution {
	at := now.UTC().Truncate(time.Millisecond)
	return Attribution{
		EditorName: EditorOrAnonymous(editorName),
		EditedAt:   &at,
	}
}

// Missing returns the attribution used when no metadata exists.
func Missing() Attribution {
	return Attribution{EditorName: Anonymous}
}

// EditorOrAnonymous trims name and substitutes Anonymous when it is blank.
func EditorOrAnonymous(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return Anonymous
	}
	return name
}

// IsZero reports whether a has no timestamp.
func (a Attribution) IsZero() bool {
	return a.EditedAt == nil
}

// wireAttribution is the JSON shape stored at boxMeta/{id}.
// lastEditor/lastEditTime are read for entries written by older clients.
type wireAttribution struct {
	EditorName   string `json:"editorName,omitempty"`
	EditedAt     string `json:"editedAt,omitempty"`
	LastEditor   string `json:"lastEditor,omitempty"`
	LastEditTime string `json:"lastEditTime,omitempty"`
}

// MarshalJSON writes {editorName, editedAt}.
func (a Attribution) MarshalJSON() ([]byte, error) {
	w := wireAttribution{EditorName: EditorOrAnonymous(a.EditorName)}
	if a.EditedAt != nil {
		w.EditedAt = a.EditedAt.UTC().Format(TimeLayout)
	}
	return json.Marshal(w)
}

// UnmarshalJSON reads both the current and the legacy key names.
// An unparseable timestamp leaves EditedAt nil rather than failing.
func (a *Attribution) UnmarshalJSON(data []byte) error {
	var w wireAttribution
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}

	name := w.EditorName
	if name == "" {
		name = w.LastEditor
	}
	ts := w.EditedAt
	if ts == "" {
		ts = w.LastEditTime
	}

	*a = Attribution{EditorName: EditorOrAnonymous(name)}
	if t, ok := ParseTime(ts); ok {
		a.EditedAt = &t
	}
	return nil
}

// ParseTime parses an ISO-8601 timestamp as written by this package or by a browser.
func ParseTime(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, false
	}
	return t.UTC(), true
}

// FormatTime formats t the way EditedAt is stored.
func FormatTime(t time.Time) string {
	return t.UTC().Format(TimeLayout)
}
