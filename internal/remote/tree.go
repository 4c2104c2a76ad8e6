package remote

import (
	"context"
	"database/sql"
	"encoding/json"
	"sync"

	"github.com/golang/glog"

	"github.com/hpungsan/pied/internal/db"
	"github.com/hpungsan/pied/internal/errors"
)

// Tree is the authoritative store behind the relay.
// Writes are applied one at a time; the last accepted write wins.
type Tree struct {
	db *sql.DB // nil keeps values in memory only

	mu     sync.Mutex // protects the fields below
	values map[string]json.RawMessage
	subs   map[string]map[uint64]*mailbox
	nextID uint64
}

// NewTree loads every stored node from database and returns a Tree that
// persists later writes back to it.
func NewTree(ctx context.Context, database *sql.DB) (*Tree, error) {
	t := NewMemoryTree()
	t.db = database

	nodes, err := db.ListNodes(ctx, database, "")
	if err != nil {
		return nil, err
	}
	for _, n := range nodes {
		if !json.Valid([]byte(n.ValueJSON)) {
			glog.Warningf("remote: skipping stored node %q with invalid JSON", n.Path)
			continue
		}
		t.values[n.Path] = json.RawMessage(n.ValueJSON)
	}
	glog.V(1).Infof("remote: loaded %d nodes", len(t.values))
	return t, nil
}

// NewMemoryTree returns a Tree that keeps nothing on disk.
func NewMemoryTree() *Tree {
	return &Tree{
		values: make(map[string]json.RawMessage),
		subs:   make(map[string]map[uint64]*mailbox),
	}
}

// Get returns the value currently stored at path.
func (t *Tree) Get(ctx context.Context, path string) (Snapshot, error) {
	if err := ValidatePath(path); err != nil {
		return Snapshot{}, err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return Snapshot{Path: path, Value: cloneValue(t.values[path])}, nil
}

// Set stores value at path and notifies subscribers. A null or empty value
// removes the path.
func (t *Tree) Set(ctx context.Context, path string, value json.RawMessage) error {
	if err := ValidatePath(path); err != nil {
		return err
	}
	remove := isNull(value)
	if !remove && !json.Valid(value) {
		return errors.NewInvalidRequest("value is not valid JSON")
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.db != nil {
		var err error
		if remove {
			err = db.DeleteNode(ctx, t.db, path)
		} else {
			err = db.PutNode(ctx, t.db, path, string(value))
		}
		if err != nil {
			return err
		}
	}

	snap := Snapshot{Path: path}
	if remove {
		delete(t.values, path)
	} else {
		t.values[path] = cloneValue(value)
		snap.Value = t.values[path]
	}

	for _, m := range t.subs[path] {
		m.push(Snapshot{Path: path, Value: cloneValue(snap.Value)})
	}
	glog.V(2).Infof("remote: set %s (%d subscribers)", path, len(t.subs[path]))
	return nil
}

// Subscribe registers fn for path. fn first receives the current value, then
// each later change.
func (t *Tree) Subscribe(ctx context.Context, path string, fn func(Snapshot)) (Unsubscribe, error) {
	if err := ValidatePath(path); err != nil {
		return nil, err
	}
	if fn == nil {
		return nil, errors.NewInvalidRequest("subscriber callback is required")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	t.mu.Lock()
	id := t.nextID
	t.nextID++
	m := newMailbox(fn)
	if t.subs[path] == nil {
		t.subs[path] = make(map[uint64]*mailbox)
	}
	t.subs[path][id] = m
	m.push(Snapshot{Path: path, Value: cloneValue(t.values[path])})
	t.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			t.mu.Lock()
			delete(t.subs[path], id)
			if len(t.subs[path]) == 0 {
				delete(t.subs, path)
			}
			t.mu.Unlock()
			m.close()
		})
	}, nil
}

// subscriberCount returns the number of live subscriptions on path.
func (t *Tree) subscriberCount(path string) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.subs[path])
}
