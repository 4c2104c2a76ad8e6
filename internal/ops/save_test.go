package ops

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hpungsan/pied/internal/codec"
	"github.com/hpungsan/pied/internal/errors"
	"github.com/hpungsan/pied/internal/field"
	"github.com/hpungsan/pied/internal/profile"
	"github.com/hpungsan/pied/internal/remote"
)

func TestSave_WritesTokenAndMeta(t *testing.T) {
	ctx := context.Background()
	tree, database, cfg := setup(t)

	out, err := Save(ctx, tree, database, cfg, SaveInput{Box: 41, Content: "<p>Hi</p>", Editor: stringPtr("ada")})
	require.NoError(t, err)
	assert.Equal(t, "Pied 42", out.Label)
	assert.Equal(t, field.StatusOK, out.Status)
	assert.Equal(t, "ada", out.Editor)
	assert.Equal(t, "2026-10-17T12:00:00.000Z", out.EditedAt)
	assert.Equal(t, 9, out.Chars)
	assert.True(t, out.Encoded)

	snap, err := tree.Get(ctx, "boxes/41")
	require.NoError(t, err)
	assert.JSONEq(t, `"PHA+SGk8L3A+"`, string(snap.Value))

	snap, err = tree.Get(ctx, "boxMeta/41")
	require.NoError(t, err)
	assert.JSONEq(t, `{"editorName":"ada","editedAt":"2026-10-17T12:00:00.000Z"}`, string(snap.Value))
}

func TestSave_EditorDefaultsToProfile(t *testing.T) {
	ctx := context.Background()
	tree, database, cfg := setup(t)

	out, err := Save(ctx, tree, database, cfg, SaveInput{Box: 1, Content: "x"})
	require.NoError(t, err)
	assert.Equal(t, "Anonymous", out.Editor)

	_, err = profile.Set(ctx, database, "Bo")
	require.NoError(t, err)
	out, err = Save(ctx, tree, database, cfg, SaveInput{Box: 1, Content: "y", Editor: stringPtr("  ")})
	require.NoError(t, err)
	assert.Equal(t, "Bo", out.Editor)
}

func TestSave_Markdown(t *testing.T) {
	ctx := context.Background()
	tree, database, cfg := setup(t)

	_, err := Save(ctx, tree, database, cfg, SaveInput{
		Box:     2,
		Content: "# Title\n\nSome *emphasis* and a [link](example.com).",
		Format:  "markdown",
	})
	require.NoError(t, err)

	snap, err := tree.Get(ctx, "boxes/2")
	require.NoError(t, err)
	var token string
	require.NoError(t, json.Unmarshal(snap.Value, &token))
	html := codec.Decode(token)

	assert.Contains(t, html, "<h1>Title</h1>")
	assert.Contains(t, html, "<em>emphasis</em>")
	assert.Contains(t, html, `<a href="https://example.com">link</a>`)
}

func TestSave_Validation(t *testing.T) {
	ctx := context.Background()
	tree, database, cfg := setup(t)
	cfg.ContentMaxChars = 10

	_, err := Save(ctx, tree, database, cfg, SaveInput{Box: -1, Content: "x"})
	assert.True(t, errors.Is(err, errors.ErrInvalidRequest))

	_, err = Save(ctx, tree, database, cfg, SaveInput{Box: 1, Content: "x", Format: "rtf"})
	assert.True(t, errors.Is(err, errors.ErrInvalidRequest))

	_, err = Save(ctx, tree, database, cfg, SaveInput{Box: 1, Content: strings.Repeat("é", 11)})
	assert.True(t, errors.Is(err, errors.ErrContentTooLarge))
}

// failingStore rejects writes to one path.
type failingStore struct {
	*remote.Tree
	failPath string
}

func (s failingStore) Set(ctx context.Context, path string, value json.RawMessage) error {
	if path == s.failPath {
		return stderrors.New("store unavailable")
	}
	return s.Tree.Set(ctx, path, value)
}

func TestSave_RemoteFailureReturnsOutput(t *testing.T) {
	ctx := context.Background()
	tree, database, cfg := setup(t)
	store := failingStore{Tree: tree, failPath: "boxMeta/7"}

	out, err := Save(ctx, store, database, cfg, SaveInput{Box: 7, Content: "x", Editor: stringPtr("ada")})
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrRemoteWriteFailed))
	require.NotNil(t, out)
	assert.Equal(t, field.StatusContentOnly, out.Status)
}
