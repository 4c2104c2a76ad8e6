package remote

import (
	"bytes"
	"context"
	"encoding/json"
)

// Snapshot is the value observed at a path. Value is nil or the JSON literal
// null when nothing is stored.
type Snapshot struct {
	Path  string
	Value json.RawMessage
}

// Exists reports whether a value is stored at the path.
func (s Snapshot) Exists() bool {
	return !isNull(s.Value)
}

// Unsubscribe cancels a subscription. It is safe to call more than once.
type Unsubscribe func()

// Store is a hierarchical key-value store with change notification.
// Subscribe delivers the current value first, then every later change, in
// order, on a goroutine owned by the subscription.
type Store interface {
	Get(ctx context.Context, path string) (Snapshot, error)
	Set(ctx context.Context, path string, value json.RawMessage) error
	Subscribe(ctx context.Context, path string, fn func(Snapshot)) (Unsubscribe, error)
}

// isNull reports whether v is empty or the JSON literal null.
func isNull(v json.RawMessage) bool {
	t := bytes.TrimSpace(v)
	return len(t) == 0 || bytes.Equal(t, []byte("null"))
}

// cloneValue copies v so callers cannot alias stored bytes.
func cloneValue(v json.RawMessage) json.RawMessage {
	if v == nil {
		return nil
	}
	return append(json.RawMessage(nil), v...)
}
