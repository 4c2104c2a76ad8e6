package ops

import (
	"context"
	"database/sql"

	"github.com/hpungsan/pied/internal/config"
	"github.com/hpungsan/pied/internal/field"
)

// WatchInput contains parameters for the Watch operation.
type WatchInput struct {
	Box int
}

// Watch calls fn with the box's view after every remote change until ctx is
// done. If a cached copy exists, fn first receives it with FromCache set.
// Calls to fn never overlap.
func Watch(ctx context.Context, store field.Store, database *sql.DB, cfg *config.Config, input WatchInput, fn func(BoxView)) error {
	views := make(chan field.View, 16)
	f, err := openBox(ctx, store, database, cfg, input.Box, func(v field.View) {
		select {
		case views <- v:
		case <-ctx.Done():
		}
	})
	if err != nil {
		return err
	}
	defer f.Close()

	if v := f.View(); v.FromCache {
		fn(newBoxView(input.Box, v, now()))
	}

	for {
		select {
		case v := <-views:
			fn(newBoxView(input.Box, v, now()))
		case <-ctx.Done():
			return nil
		}
	}
}
