package field

import (
	"context"
	"encoding/json"

	"github.com/golang/glog"

	"github.com/hpungsan/pied/internal/attribution"
	"github.com/hpungsan/pied/internal/cache"
	"github.com/hpungsan/pied/internal/codec"
	"github.com/hpungsan/pied/internal/errors"
)

// SaveStatus describes which remote writes of a save landed.
type SaveStatus string

const (
	StatusOK          SaveStatus = "ok"           // content and attribution written
	StatusContentOnly SaveStatus = "content_only" // attribution write failed
	StatusFailed      SaveStatus = "failed"       // content write failed, attribution not attempted
)

// SaveResult reports the outcome of Save.
type SaveResult struct {
	Status      SaveStatus
	Token       string
	Encoded     bool // false when content could not be encoded and was stored raw
	Attribution attribution.Attribution

	// CacheErr is set when mirroring into the local cache failed. It never fails the save.
	CacheErr error
}

// SaveOutcome is delivered by SaveAsync.
type SaveOutcome struct {
	Result *SaveResult
	Err    error
}

// Save encodes content and writes it, then the attribution for editorName,
// to the remote store. The attribution is only written once the content
// write lands. The saved envelope is mirrored into the local cache whatever
// the remote outcome.
//
// The returned error is REMOTE_WRITE_FAILED when either remote write failed;
// the result is still returned to show what landed.
func (f *Field) Save(ctx context.Context, content, editorName string) (*SaveResult, error) {
	f.mu.Lock()
	closed := f.closed
	f.mu.Unlock()
	if closed {
		return nil, errors.NewFieldClosed(f.name)
	}

	res := &SaveResult{Encoded: true}
	token, err := codec.EncodeStrict(content)
	if err != nil {
		glog.Warningf("field %s: encode failed, storing content as-is: %v", f.name, err)
		token = content
		res.Encoded = false
	}
	res.Token = token
	res.Attribution = attribution.New(editorName, f.now())

	var metaErr error
	contentErr := f.setJSON(ctx, ContentPath(f.name), token)
	if contentErr == nil {
		metaErr = f.setJSON(ctx, MetaPath(f.name), res.Attribution)
	}

	if f.cache != nil {
		if err := f.cache.Put(ctx, CacheKey(f.name), cache.Envelope(token, res.Attribution)); err != nil {
			glog.Warningf("field %s: write cache: %v", f.name, err)
			res.CacheErr = err
		}
	}

	switch {
	case contentErr != nil:
		res.Status = StatusFailed
		glog.Warningf("field %s: content write failed: %v", f.name, contentErr)
		return res, errors.NewRemoteWriteFailed(ContentPath(f.name), contentErr)
	case metaErr != nil:
		res.Status = StatusContentOnly
		glog.Warningf("field %s: attribution write failed: %v", f.name, metaErr)
		return res, errors.NewRemoteWriteFailed(MetaPath(f.name), metaErr)
	}

	res.Status = StatusOK
	glog.V(2).Infof("field %s: saved %d bytes as %s", f.name, len(token), res.Attribution.EditorName)
	return res, nil
}

// SaveAsync runs Save on its own goroutine. The channel yields exactly one outcome.
func (f *Field) SaveAsync(ctx context.Context, content, editorName string) <-chan SaveOutcome {
	out := make(chan SaveOutcome, 1)
	go func() {
		res, err := f.Save(ctx, content, editorName)
		out <- SaveOutcome{Result: res, Err: err}
		close(out)
	}()
	return out
}

func (f *Field) setJSON(ctx context.Context, path string, v any) error {
	value, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return f.store.Set(ctx, path, value)
}
