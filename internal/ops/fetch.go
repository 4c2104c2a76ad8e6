package ops

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/hpungsan/pied/internal/box"
	"github.com/hpungsan/pied/internal/cache"
	"github.com/hpungsan/pied/internal/config"
	"github.com/hpungsan/pied/internal/errors"
	"github.com/hpungsan/pied/internal/field"
)

// FetchInput contains parameters for the Fetch operation.
type FetchInput struct {
	Box int
}

// Fetch reads a box. It waits up to cfg.FetchTimeout for the remote content
// and attribution; if they do not both arrive, it returns whatever is known
// (remote content, or the cached copy) and fails with TIMEOUT only when there
// is nothing at all.
func Fetch(ctx context.Context, store field.Store, database *sql.DB, cfg *config.Config, input FetchInput) (*BoxView, error) {
	ready := make(chan struct{})
	var once sync.Once

	f, err := openBox(ctx, store, database, cfg, input.Box, func(v field.View) {
		if v.Synced && v.MetaSynced {
			once.Do(func() { close(ready) })
		}
	})
	if err != nil {
		return nil, err
	}
	defer f.Close()

	timeout := cfg.FetchTimeout()
	if timeout <= 0 {
		timeout = config.DefaultConfig().FetchTimeout()
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-ready:
	case <-timer.C:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	v := f.View()
	if !v.Synced && !v.FromCache {
		return nil, errors.NewTimeout(fmt.Sprintf("box %d", input.Box))
	}
	out := newBoxView(input.Box, v, now())
	return &out, nil
}

// FetchCached reads a box from the local cache only, for when the remote store
// cannot be reached. It fails with NOT_FOUND when the box has no cached copy.
func FetchCached(ctx context.Context, database *sql.DB, cfg *config.Config, input FetchInput) (*BoxView, error) {
	if err := box.Validate(input.Box, cfg.BoxCount); err != nil {
		return nil, err
	}
	v, ok, err := field.Cached(ctx, cache.New(database), box.Name(input.Box))
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	if !ok {
		return nil, errors.NewNotFound(fmt.Sprintf("cached copy of box %d", input.Box))
	}
	out := newBoxView(input.Box, v, now())
	return &out, nil
}
