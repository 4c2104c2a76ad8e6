// Package field binds a named slot of rich content to a value in the remote
// store, with a local cache shadow and last-editor attribution.
package field

import (
	"bytes"
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/golang/glog"

	"github.com/hpungsan/pied/internal/attribution"
	"github.com/hpungsan/pied/internal/cache"
	"github.com/hpungsan/pied/internal/codec"
	"github.com/hpungsan/pied/internal/errors"
	"github.com/hpungsan/pied/internal/remote"
)

// Store is the part of the remote store a Field uses.
type Store interface {
	Set(ctx context.Context, path string, value json.RawMessage) error
	Subscribe(ctx context.Context, path string, fn func(remote.Snapshot)) (remote.Unsubscribe, error)
}

// Cache is the local shadow a Field seeds from and mirrors saves into.
type Cache interface {
	Get(ctx context.Context, key string) (*cache.Entry, error)
	Put(ctx context.Context, key string, e cache.Entry) error
}

// ContentPath returns the remote path holding the field's encoded content.
func ContentPath(name string) string { return "boxes/" + name }

// MetaPath returns the remote path holding the field's attribution.
func MetaPath(name string) string { return "boxMeta/" + name }

// CacheKey returns the local cache key for the field.
func CacheKey(name string) string { return "boxText_" + name }

// View is what the presentation layer renders for a field.
type View struct {
	Value       string
	Attribution attribution.Attribution

	// FromCache is true while Value is the cache seed and no remote content has arrived.
	FromCache bool

	// Synced is true once the remote content callback has fired.
	Synced bool

	// MetaSynced is true once the remote attribution callback has fired.
	MetaSynced bool
}

// Options configures Open.
type Options struct {
	// Now returns the current time. Defaults to time.Now.
	Now func() time.Time

	// OnChange is called with the new View after every applied remote change.
	// Calls for one field never overlap and arrive in the order applied.
	OnChange func(View)
}

// Field is an open binding. Create with Open; release with Close.
type Field struct {
	name     string
	store    Store
	cache    Cache
	now      func() time.Time
	onChange func(View)

	deliverMu sync.Mutex // serializes apply+OnChange across both subscriptions

	mu         sync.Mutex // protects the fields below
	view       View
	closed     bool
	delivering bool // an OnChange call has passed the closed check and not returned
	unsubs     []remote.Unsubscribe
}

// Open seeds a Field from the cache, then subscribes to its content and
// attribution paths. The seed is visible through View before Open returns.
func Open(ctx context.Context, store Store, c Cache, name string, opts Options) (*Field, error) {
	if name == "" {
		return nil, errors.NewInvalidRequest("field name is required")
	}
	if store == nil {
		return nil, errors.NewInvalidRequest("store is required")
	}

	f := &Field{
		name:     name,
		store:    store,
		cache:    c,
		now:      opts.Now,
		onChange: opts.OnChange,
		view:     View{Attribution: attribution.Missing()},
	}
	if f.now == nil {
		f.now = time.Now
	}

	f.seed(ctx)

	for _, sub := range []struct {
		path  string
		apply func(remote.Snapshot)
	}{
		{ContentPath(name), f.applyContent},
		{MetaPath(name), f.applyMeta},
	} {
		apply := sub.apply
		unsub, err := store.Subscribe(ctx, sub.path, func(s remote.Snapshot) { f.deliver(s, apply) })
		if err != nil {
			f.Close()
			return nil, errors.NewRemoteSubscribeFailed(sub.path, err)
		}
		f.mu.Lock()
		f.unsubs = append(f.unsubs, unsub)
		f.mu.Unlock()
	}

	glog.V(1).Infof("field %s: open", name)
	return f, nil
}

// Name returns the field name.
func (f *Field) Name() string {
	return f.name
}

// View returns the current view.
func (f *Field) View() View {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.view
}

// Close stops both subscriptions. It is idempotent and may be called from
// inside OnChange. No OnChange call starts after Close returns; a call that
// was already running when Close was called may still be finishing.
func (f *Field) Close() {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return
	}
	f.closed = true
	inCallback := f.delivering
	unsubs := f.unsubs
	f.unsubs = nil
	f.mu.Unlock()

	for _, unsub := range unsubs {
		unsub()
	}

	// Outside a callback, wait out any delivery that holds deliverMu but has
	// not reached the closed check yet. It will see closed and drop its value.
	if !inCallback {
		f.deliverMu.Lock()
		f.deliverMu.Unlock()
	}
	glog.V(1).Infof("field %s: closed", f.name)
}

// Cached returns the view the field named name would be seeded with from c,
// without touching the remote store. ok is false when nothing is cached.
func Cached(ctx context.Context, c Cache, name string) (v View, ok bool, err error) {
	e, err := c.Get(ctx, CacheKey(name))
	if err != nil || e == nil {
		return View{Attribution: attribution.Missing()}, false, err
	}
	return View{
		Value:       decodeToken(name, e.Token),
		Attribution: e.Attribution(),
		FromCache:   true,
	}, true, nil
}

func (f *Field) seed(ctx context.Context) {
	if f.cache == nil {
		return
	}
	v, ok, err := Cached(ctx, f.cache, f.name)
	if err != nil {
		glog.Warningf("field %s: read cache: %v", f.name, err)
		return
	}
	if ok {
		f.view = v
	}
}

// deliver applies s and notifies OnChange, unless the field is closed.
func (f *Field) deliver(s remote.Snapshot, apply func(remote.Snapshot)) {
	f.deliverMu.Lock()
	defer f.deliverMu.Unlock()

	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return
	}
	apply(s)
	v := f.view
	if f.onChange == nil {
		f.mu.Unlock()
		return
	}
	f.delivering = true
	f.mu.Unlock()

	defer func() {
		f.mu.Lock()
		f.delivering = false
		f.mu.Unlock()
	}()
	f.onChange(v)
}

// applyContent must be called with f.mu held.
func (f *Field) applyContent(s remote.Snapshot) {
	f.view.Value = ""
	if s.Exists() {
		f.view.Value = decodeToken(f.name, parseContent(f.name, s.Value))
	}
	f.view.FromCache = false
	f.view.Synced = true
}

// applyMeta must be called with f.mu held.
func (f *Field) applyMeta(s remote.Snapshot) {
	f.view.Attribution = attribution.Missing()
	if s.Exists() {
		f.view.Attribution = parseMeta(f.name, s.Value)
	}
	f.view.MetaSynced = true
}

// parseContent extracts the token from a non-null remote content value: a
// JSON string or a legacy {"content": ...} envelope.
func parseContent(name string, raw json.RawMessage) string {
	raw = bytes.TrimSpace(raw)
	switch raw[0] {
	case '"':
		var token string
		if err := json.Unmarshal(raw, &token); err == nil {
			return token
		}
	case '{':
		var env struct {
			Content string `json:"content"`
		}
		if err := json.Unmarshal(raw, &env); err == nil {
			return env.Content
		}
	}

	glog.Warningf("field %s: unexpected content shape, using raw value", name)
	return string(raw)
}

func parseMeta(name string, raw json.RawMessage) attribution.Attribution {
	var a attribution.Attribution
	if err := json.Unmarshal(raw, &a); err != nil {
		glog.Warningf("field %s: unreadable attribution: %v", name, err)
		return attribution.Missing()
	}
	return a
}

func decodeToken(name, token string) string {
	text, err := codec.DecodeStrict(token)
	if err != nil {
		glog.Warningf("field %s: decode failed, showing stored value as-is: %v", name, err)
		return token
	}
	return text
}
