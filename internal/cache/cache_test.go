package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hpungsan/pied/internal/attribution"
	"github.com/hpungsan/pied/internal/db"
)

func setupCache(t *testing.T) *Cache {
	t.Helper()
	database, err := db.Init(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })
	return New(database)
}

func TestGet_Missing(t *testing.T) {
	c := setupCache(t)

	e, err := c.Get(context.Background(), "boxText_1")
	require.NoError(t, err)
	assert.Nil(t, e)
}

func TestPutGet_Raw(t *testing.T) {
	ctx := context.Background()
	c := setupCache(t)

	require.NoError(t, c.Put(ctx, "boxText_1", Raw("PHA+")))

	e, err := c.Get(ctx, "boxText_1")
	require.NoError(t, err)
	require.NotNil(t, e)
	assert.Equal(t, KindRaw, e.Kind)
	assert.Equal(t, "PHA+", e.Token)
	assert.Equal(t, attribution.Missing(), e.Attribution())
}

func TestPutGet_Envelope(t *testing.T) {
	ctx := context.Background()
	c := setupCache(t)
	now := time.Date(2026, 10, 17, 8, 30, 0, 0, time.UTC)

	require.NoError(t, c.Put(ctx, "boxText_2", Envelope("SGk=", attribution.New("ada", now))))

	e, err := c.Get(ctx, "boxText_2")
	require.NoError(t, err)
	require.NotNil(t, e)
	assert.Equal(t, KindEnvelope, e.Kind)
	assert.Equal(t, "SGk=", e.Token)

	a := e.Attribution()
	assert.Equal(t, "ada", a.EditorName)
	require.NotNil(t, a.EditedAt)
	assert.True(t, now.Equal(*a.EditedAt))
}

func TestPut_UnknownKind(t *testing.T) {
	c := setupCache(t)

	err := c.Put(context.Background(), "boxText_1", Entry{Kind: "mystery", Token: "x"})
	require.Error(t, err)
}

func TestParseLegacy(t *testing.T) {
	t.Run("envelope", func(t *testing.T) {
		e := ParseLegacy(`{"content":"PHA+","lastEditor":"bob","lastEditTime":"2024-03-01T10:00:00.000Z"}`)
		assert.Equal(t, KindEnvelope, e.Kind)
		assert.Equal(t, "PHA+", e.Token)
		assert.Equal(t, "bob", e.EditorName)
		require.NotNil(t, e.EditedAt)
		assert.Equal(t, "2024-03-01T10:00:00.000Z", attribution.FormatTime(*e.EditedAt))
	})

	t.Run("envelope without editor", func(t *testing.T) {
		e := ParseLegacy(`{"content":""}`)
		assert.Equal(t, KindEnvelope, e.Kind)
		assert.Equal(t, "", e.Token)
		assert.Equal(t, attribution.Anonymous, e.EditorName)
		assert.Nil(t, e.EditedAt)
	})

	t.Run("bare token", func(t *testing.T) {
		e := ParseLegacy("PHA+SGk8L3A+")
		assert.Equal(t, Raw("PHA+SGk8L3A+"), e)
	})

	t.Run("json without content is raw", func(t *testing.T) {
		raw := `{"text":"hi"}`
		assert.Equal(t, Raw(raw), ParseLegacy(raw))
	})

	t.Run("broken json is raw", func(t *testing.T) {
		raw := `{"content":`
		assert.Equal(t, Raw(raw), ParseLegacy(raw))
	})
}
