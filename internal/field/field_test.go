package field

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hpungsan/pied/internal/attribution"
	"github.com/hpungsan/pied/internal/cache"
	"github.com/hpungsan/pied/internal/codec"
	"github.com/hpungsan/pied/internal/db"
	"github.com/hpungsan/pied/internal/errors"
	"github.com/hpungsan/pied/internal/remote"
)

var fixedNow = time.Date(2026, 10, 17, 12, 0, 0, 0, time.UTC)

// manualStore records subscriptions and lets tests fire snapshots by hand.
type manualStore struct {
	mu           sync.Mutex
	subs         map[string]func(remote.Snapshot)
	sets         map[string]json.RawMessage
	setErr       map[string]error
	subscribeErr map[string]error
	unsubscribed map[string]int
}

func newManualStore() *manualStore {
	return &manualStore{
		subs:         make(map[string]func(remote.Snapshot)),
		sets:         make(map[string]json.RawMessage),
		setErr:       make(map[string]error),
		subscribeErr: make(map[string]error),
		unsubscribed: make(map[string]int),
	}
}

func (s *manualStore) Set(ctx context.Context, path string, value json.RawMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.setErr[path]; err != nil {
		return err
	}
	s.sets[path] = value
	return nil
}

func (s *manualStore) Subscribe(ctx context.Context, path string, fn func(remote.Snapshot)) (remote.Unsubscribe, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.subscribeErr[path]; err != nil {
		return nil, err
	}
	s.subs[path] = fn
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.unsubscribed[path]++
	}, nil
}

func (s *manualStore) fire(path, value string) {
	s.mu.Lock()
	fn := s.subs[path]
	s.mu.Unlock()
	var raw json.RawMessage
	if value != "" {
		raw = json.RawMessage(value)
	}
	fn(remote.Snapshot{Path: path, Value: raw})
}

func setupCache(t *testing.T) *cache.Cache {
	t.Helper()
	database, err := db.Init(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })
	return cache.New(database)
}

func jsonString(s string) string {
	b, _ := json.Marshal(s)
	return string(b)
}

func TestPaths(t *testing.T) {
	assert.Equal(t, "boxes/7", ContentPath("7"))
	assert.Equal(t, "boxMeta/7", MetaPath("7"))
	assert.Equal(t, "boxText_7", CacheKey("7"))
}

func TestOpen_SeedThenOverride(t *testing.T) {
	ctx := context.Background()
	c := setupCache(t)
	cachedAt := fixedNow.Add(-time.Hour)
	require.NoError(t, c.Put(ctx, CacheKey("1"), cache.Envelope(codec.Encode("<p>cached</p>"),
		attribution.Attribution{EditorName: "bo", EditedAt: &cachedAt})))

	store := newManualStore()
	f, err := Open(ctx, store, c, "1", Options{})
	require.NoError(t, err)
	defer f.Close()

	v := f.View()
	assert.Equal(t, "<p>cached</p>", v.Value)
	assert.True(t, v.FromCache)
	assert.False(t, v.Synced)
	assert.Equal(t, "bo", v.Attribution.EditorName)

	store.fire(ContentPath("1"), jsonString(codec.Encode("<p>remote</p>")))

	v = f.View()
	assert.Equal(t, "<p>remote</p>", v.Value)
	assert.False(t, v.FromCache)
	assert.True(t, v.Synced)
}

func TestOpen_NullRemoteOverridesSeed(t *testing.T) {
	ctx := context.Background()
	c := setupCache(t)
	require.NoError(t, c.Put(ctx, CacheKey("2"), cache.Raw(codec.Encode("stale"))))

	store := newManualStore()
	f, err := Open(ctx, store, c, "2", Options{})
	require.NoError(t, err)
	defer f.Close()
	require.Equal(t, "stale", f.View().Value)

	store.fire(ContentPath("2"), "")

	v := f.View()
	assert.Equal(t, "", v.Value)
	assert.True(t, v.Synced)
	assert.False(t, v.FromCache)
}

func TestOpen_NoCache(t *testing.T) {
	f, err := Open(context.Background(), newManualStore(), nil, "3", Options{})
	require.NoError(t, err)
	defer f.Close()

	v := f.View()
	assert.Equal(t, "", v.Value)
	assert.False(t, v.FromCache)
	assert.Equal(t, attribution.Missing(), v.Attribution)
}

func TestOpen_Validation(t *testing.T) {
	_, err := Open(context.Background(), newManualStore(), nil, "", Options{})
	assert.True(t, errors.Is(err, errors.ErrInvalidRequest))

	_, err = Open(context.Background(), nil, nil, "1", Options{})
	assert.True(t, errors.Is(err, errors.ErrInvalidRequest))
}

func TestOpen_SubscribeFailure(t *testing.T) {
	store := newManualStore()
	store.subscribeErr[MetaPath("4")] = stderrors.New("permission denied")

	_, err := Open(context.Background(), store, nil, "4", Options{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrRemoteSubscribeFailed))
	assert.Equal(t, 1, store.unsubscribed[ContentPath("4")])
}

func TestRemoteContent_Shapes(t *testing.T) {
	tests := []struct {
		name  string
		value string
		want  string
	}{
		{"token", jsonString(codec.Encode("<b>hé</b>")), "<b>hé</b>"},
		{"legacy plain text", jsonString("not a valid token"), "not a valid token"},
		{"legacy envelope", `{"content":"` + codec.Encode("<i>old</i>") + `","lastEditor":"cy"}`, "<i>old</i>"},
		{"null", "null", ""},
		{"padded null", " null\n", ""},
		{"absent", "", ""},
		{"number", "42", "42"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newManualStore()
			f, err := Open(context.Background(), store, nil, "5", Options{})
			require.NoError(t, err)
			defer f.Close()

			store.fire(ContentPath("5"), tt.value)
			if got := f.View().Value; got != tt.want {
				t.Errorf("Value = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestRemoteMeta(t *testing.T) {
	store := newManualStore()
	f, err := Open(context.Background(), store, nil, "6", Options{})
	require.NoError(t, err)
	defer f.Close()

	store.fire(MetaPath("6"), `{"editorName":"ada","editedAt":"2026-10-17T11:55:00.000Z"}`)
	a := f.View().Attribution
	assert.Equal(t, "ada", a.EditorName)
	require.NotNil(t, a.EditedAt)
	assert.True(t, a.EditedAt.Equal(fixedNow.Add(-5*time.Minute)))
	assert.True(t, f.View().MetaSynced)

	store.fire(MetaPath("6"), `{"lastEditor":"bo","lastEditTime":"2026-10-17T09:00:00.000Z"}`)
	assert.Equal(t, "bo", f.View().Attribution.EditorName)

	store.fire(MetaPath("6"), "null")
	assert.Equal(t, attribution.Missing(), f.View().Attribution)

	store.fire(MetaPath("6"), `{"editorName":"cy"}`)
	store.fire(MetaPath("6"), "")
	assert.Equal(t, attribution.Missing(), f.View().Attribution)

	store.fire(MetaPath("6"), `[1,2]`)
	assert.Equal(t, attribution.Missing(), f.View().Attribution)
}

func TestOnChange_CalledPerChange(t *testing.T) {
	store := newManualStore()
	var views []View
	f, err := Open(context.Background(), store, nil, "7", Options{
		OnChange: func(v View) { views = append(views, v) },
	})
	require.NoError(t, err)
	defer f.Close()

	store.fire(ContentPath("7"), jsonString(codec.Encode("a")))
	store.fire(MetaPath("7"), `{"editorName":"ada"}`)
	store.fire(ContentPath("7"), jsonString(codec.Encode("b")))

	require.Len(t, views, 3)
	assert.Equal(t, "a", views[0].Value)
	assert.Equal(t, "ada", views[1].Attribution.EditorName)
	assert.Equal(t, "b", views[2].Value)
}

func TestClose_Idempotent(t *testing.T) {
	store := newManualStore()
	calls := 0
	f, err := Open(context.Background(), store, nil, "8", Options{
		OnChange: func(View) { calls++ },
	})
	require.NoError(t, err)

	f.Close()
	f.Close()

	assert.Equal(t, 1, store.unsubscribed[ContentPath("8")])
	assert.Equal(t, 1, store.unsubscribed[MetaPath("8")])

	store.fire(ContentPath("8"), jsonString(codec.Encode("late")))
	assert.Equal(t, 0, calls)
	assert.Equal(t, "", f.View().Value)
}

func TestClose_FromOnChange(t *testing.T) {
	store := newManualStore()
	var f *Field
	calls := 0
	f, err := Open(context.Background(), store, nil, "9", Options{
		OnChange: func(View) {
			calls++
			f.Close()
		},
	})
	require.NoError(t, err)

	store.fire(ContentPath("9"), jsonString(codec.Encode("x")))
	store.fire(ContentPath("9"), jsonString(codec.Encode("y")))
	assert.Equal(t, 1, calls)
	assert.Equal(t, "x", f.View().Value)
}

func TestClose_DropsPendingDelivery(t *testing.T) {
	store := newManualStore()
	calls := make(chan View, 4)
	f, err := Open(context.Background(), store, nil, "10", Options{
		OnChange: func(v View) { calls <- v },
	})
	require.NoError(t, err)

	// Hold the delivery lock the way a delivery does before its closed check.
	f.deliverMu.Lock()

	fired := make(chan struct{})
	go func() {
		store.fire(ContentPath("10"), jsonString(codec.Encode("late")))
		close(fired)
	}()

	closed := make(chan struct{})
	go func() {
		f.Close()
		close(closed)
	}()

	select {
	case <-closed:
		t.Fatal("Close returned while a delivery was still pending")
	case <-time.After(50 * time.Millisecond):
	}

	f.deliverMu.Unlock()

	select {
	case <-closed:
	case <-time.After(2 * time.Second):
		t.Fatal("Close did not return")
	}
	<-fired

	select {
	case v := <-calls:
		t.Fatalf("OnChange started after Close returned: %+v", v)
	default:
	}
	assert.Equal(t, "", f.View().Value)
}

func TestClose_DuringCallbackOnAnotherGoroutine(t *testing.T) {
	store := newManualStore()
	entered := make(chan struct{})
	release := make(chan struct{})
	var calls int
	var mu sync.Mutex
	f, err := Open(context.Background(), store, nil, "11", Options{
		OnChange: func(View) {
			mu.Lock()
			calls++
			mu.Unlock()
			close(entered)
			<-release
		},
	})
	require.NoError(t, err)

	go store.fire(ContentPath("11"), jsonString(codec.Encode("a")))
	<-entered

	done := make(chan struct{})
	go func() {
		f.Close()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Close blocked on a running callback")
	}
	close(release)

	store.fire(ContentPath("11"), jsonString(codec.Encode("b")))
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 1, calls)
}

func TestSave_OK(t *testing.T) {
	ctx := context.Background()
	store := newManualStore()
	c := setupCache(t)
	f, err := Open(ctx, store, c, "10", Options{Now: func() time.Time { return fixedNow }})
	require.NoError(t, err)
	defer f.Close()

	res, err := f.Save(ctx, "<p>Hi</p>", "  ada ")
	require.NoError(t, err)
	assert.Equal(t, StatusOK, res.Status)
	assert.Equal(t, "PHA+SGk8L3A+", res.Token)
	assert.True(t, res.Encoded)
	assert.Equal(t, "ada", res.Attribution.EditorName)
	assert.True(t, res.Attribution.EditedAt.Equal(fixedNow))
	assert.NoError(t, res.CacheErr)

	assert.JSONEq(t, `"PHA+SGk8L3A+"`, string(store.sets[ContentPath("10")]))
	assert.JSONEq(t, `{"editorName":"ada","editedAt":"2026-10-17T12:00:00.000Z"}`, string(store.sets[MetaPath("10")]))

	e, err := c.Get(ctx, CacheKey("10"))
	require.NoError(t, err)
	require.NotNil(t, e)
	assert.Equal(t, cache.KindEnvelope, e.Kind)
	assert.Equal(t, "PHA+SGk8L3A+", e.Token)
	assert.Equal(t, "ada", e.EditorName)
}

func TestSave_AnonymousEditor(t *testing.T) {
	f, err := Open(context.Background(), newManualStore(), nil, "11", Options{})
	require.NoError(t, err)
	defer f.Close()

	res, err := f.Save(context.Background(), "x", "   ")
	require.NoError(t, err)
	assert.Equal(t, attribution.Anonymous, res.Attribution.EditorName)
}

func TestSave_InvalidUTF8StoredRaw(t *testing.T) {
	store := newManualStore()
	f, err := Open(context.Background(), store, nil, "12", Options{})
	require.NoError(t, err)
	defer f.Close()

	res, err := f.Save(context.Background(), "bad \xff", "ada")
	require.NoError(t, err)
	assert.False(t, res.Encoded)
	assert.Equal(t, "bad \xff", res.Token)
}

func TestSave_ContentWriteFails(t *testing.T) {
	ctx := context.Background()
	store := newManualStore()
	store.setErr[ContentPath("13")] = stderrors.New("offline")
	c := setupCache(t)
	f, err := Open(ctx, store, c, "13", Options{})
	require.NoError(t, err)
	defer f.Close()

	res, err := f.Save(ctx, "draft", "ada")
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrRemoteWriteFailed))
	require.NotNil(t, res)
	assert.Equal(t, StatusFailed, res.Status)

	store.mu.Lock()
	_, metaWritten := store.sets[MetaPath("13")]
	store.mu.Unlock()
	assert.False(t, metaWritten, "attribution must not be written without its content")

	// the local draft survives
	e, err := c.Get(ctx, CacheKey("13"))
	require.NoError(t, err)
	require.NotNil(t, e)
	assert.Equal(t, codec.Encode("draft"), e.Token)
}

func TestSave_MetaWriteFails(t *testing.T) {
	store := newManualStore()
	store.setErr[MetaPath("14")] = stderrors.New("quota")
	f, err := Open(context.Background(), store, nil, "14", Options{})
	require.NoError(t, err)
	defer f.Close()

	res, err := f.Save(context.Background(), "x", "ada")
	assert.True(t, errors.Is(err, errors.ErrRemoteWriteFailed))
	assert.Equal(t, StatusContentOnly, res.Status)
	assert.Contains(t, store.sets, ContentPath("14"))
}

func TestSave_Closed(t *testing.T) {
	f, err := Open(context.Background(), newManualStore(), nil, "15", Options{})
	require.NoError(t, err)
	f.Close()

	res, err := f.Save(context.Background(), "x", "ada")
	assert.Nil(t, res)
	assert.True(t, errors.Is(err, errors.ErrFieldClosed))
}

func TestSaveAsync(t *testing.T) {
	f, err := Open(context.Background(), newManualStore(), nil, "16", Options{})
	require.NoError(t, err)
	defer f.Close()

	out := f.SaveAsync(context.Background(), "x", "ada")
	select {
	case o := <-out:
		require.NoError(t, o.Err)
		assert.Equal(t, StatusOK, o.Result.Status)
	case <-time.After(2 * time.Second):
		t.Fatal("no outcome")
	}
	_, ok := <-out
	assert.False(t, ok)
}

// waitFor polls f until cond holds.
func waitFor(t *testing.T, f *Field, cond func(View) bool) View {
	t.Helper()
	var v View
	require.Eventually(t, func() bool {
		v = f.View()
		return cond(v)
	}, 2*time.Second, 5*time.Millisecond)
	return v
}

func TestTree_EchoAndLastWriteWins(t *testing.T) {
	ctx := context.Background()
	tree := remote.NewMemoryTree()

	a, err := Open(ctx, tree, nil, "20", Options{})
	require.NoError(t, err)
	defer a.Close()

	_, err = a.Save(ctx, "A", "ada")
	require.NoError(t, err)
	_, err = a.Save(ctx, "B", "bo")
	require.NoError(t, err)

	// own writes come back like any other change
	waitFor(t, a, func(v View) bool { return v.Value == "B" && v.Attribution.EditorName == "bo" })

	late, err := Open(ctx, tree, nil, "20", Options{})
	require.NoError(t, err)
	defer late.Close()
	v := waitFor(t, late, func(v View) bool { return v.Synced && v.MetaSynced })
	assert.Equal(t, "B", v.Value)
	assert.Equal(t, "bo", v.Attribution.EditorName)
}

func TestTree_FieldsDoNotCrossTalk(t *testing.T) {
	ctx := context.Background()
	tree := remote.NewMemoryTree()

	one, err := Open(ctx, tree, nil, "1", Options{})
	require.NoError(t, err)
	defer one.Close()
	two, err := Open(ctx, tree, nil, "2", Options{})
	require.NoError(t, err)
	defer two.Close()

	_, err = one.Save(ctx, "first", "ada")
	require.NoError(t, err)
	_, err = two.Save(ctx, "second", "bo")
	require.NoError(t, err)

	waitFor(t, one, func(v View) bool { return v.Value == "first" })
	waitFor(t, two, func(v View) bool { return v.Value == "second" })
	assert.Equal(t, "ada", waitFor(t, one, func(v View) bool { return v.MetaSynced }).Attribution.EditorName)
}

func TestTree_SaveFromOnChange(t *testing.T) {
	ctx := context.Background()
	tree := remote.NewMemoryTree()

	done := make(chan struct{})
	var once sync.Once
	var f *Field
	f, err := Open(ctx, tree, nil, "30", Options{
		OnChange: func(v View) {
			if v.Value == "ping" {
				go once.Do(func() {
					_, err := f.Save(ctx, "pong", "bot")
					assert.NoError(t, err)
					close(done)
				})
			}
		},
	})
	require.NoError(t, err)
	defer f.Close()

	require.NoError(t, tree.Set(ctx, ContentPath("30"), json.RawMessage(jsonString(codec.Encode("ping")))))
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("save from callback did not finish")
	}
	waitFor(t, f, func(v View) bool { return v.Value == "pong" })
}
