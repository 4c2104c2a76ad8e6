package ops

import (
	"context"
	"database/sql"
	"time"

	"github.com/hpungsan/pied/internal/attribution"
	"github.com/hpungsan/pied/internal/box"
	"github.com/hpungsan/pied/internal/cache"
	"github.com/hpungsan/pied/internal/config"
	"github.com/hpungsan/pied/internal/field"
)

// PreviewChars is the length of the plain-text preview in a BoxView.
const PreviewChars = 80

// now is swapped in tests.
var now = time.Now

// BoxView is a box as returned by Fetch and streamed by Watch.
type BoxView struct {
	Box       int     `json:"box"`
	Label     string  `json:"label"`
	Content   string  `json:"content"`
	Preview   string  `json:"preview"`
	Editor    string  `json:"editor"`
	EditedAt  *string `json:"edited_at,omitempty"`
	TimeAgo   string  `json:"time_ago,omitempty"`
	Byline    string  `json:"byline"`
	FromCache bool    `json:"from_cache"`
	Synced    bool    `json:"synced"`
}

// newBoxView builds a BoxView from a field view at time t.
func newBoxView(id int, v field.View, t time.Time) BoxView {
	out := BoxView{
		Box:       id,
		Label:     box.Label(id),
		Content:   v.Value,
		Preview:   box.Preview(v.Value, PreviewChars),
		Editor:    attribution.EditorOrAnonymous(v.Attribution.EditorName),
		Byline:    attribution.Describe(v.Attribution, t),
		FromCache: v.FromCache,
		Synced:    v.Synced,
	}
	if v.Attribution.EditedAt != nil {
		ts := attribution.FormatTime(*v.Attribution.EditedAt)
		out.EditedAt = &ts
		out.TimeAgo = attribution.TimeAgo(*v.Attribution.EditedAt, t)
	}
	return out
}

// openBox validates id and opens its field. database may be nil, which
// disables the local cache.
func openBox(ctx context.Context, store field.Store, database *sql.DB, cfg *config.Config, id int, onChange func(field.View)) (*field.Field, error) {
	if err := box.Validate(id, cfg.BoxCount); err != nil {
		return nil, err
	}
	var c field.Cache
	if database != nil {
		c = cache.New(database)
	}
	return field.Open(ctx, store, c, box.Name(id), field.Options{
		Now:      now,
		OnChange: onChange,
	})
}
