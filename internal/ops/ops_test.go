package ops

import (
	"context"
	"database/sql"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/hpungsan/pied/internal/config"
	"github.com/hpungsan/pied/internal/db"
	"github.com/hpungsan/pied/internal/remote"
)

var fixedNow = time.Date(2026, 10, 17, 12, 0, 0, 0, time.UTC)

func stringPtr(s string) *string {
	return &s
}

// setup returns a fresh relay tree, local database and config, with the clock fixed.
func setup(t *testing.T) (*remote.Tree, *sql.DB, *config.Config) {
	t.Helper()
	database, err := db.Init(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })

	prev := now
	now = func() time.Time { return fixedNow }
	t.Cleanup(func() { now = prev })

	cfg := config.DefaultConfig()
	cfg.FetchTimeoutMS = 2000
	return remote.NewMemoryTree(), database, cfg
}

// silentStore accepts subscriptions but never delivers anything.
type silentStore struct{}

func (silentStore) Set(ctx context.Context, path string, value json.RawMessage) error {
	return nil
}

func (silentStore) Subscribe(ctx context.Context, path string, fn func(remote.Snapshot)) (remote.Unsubscribe, error) {
	return func() {}, nil
}

func mustJSON(t *testing.T, v any) string {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)
	return string(data)
}
