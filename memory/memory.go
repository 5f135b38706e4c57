// Package memory provides in-memory metadata and blob backends for cellar.
// Nothing survives the process; it is meant for tests and throwaway stores.
package memory

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"sort"
	"sync"
	"time"

	"github.com/sagarc03/cellar"
)

type row struct {
	seq         int64
	entry       cellar.Entry
	deletedAt   *time.Time
	cleanedUpAt *time.Time
}

// Repo is an in-memory cellar.MetaDataRepo.
type Repo struct {
	mu   sync.RWMutex
	seq  int64
	rows map[string]*row
	now  func() time.Time
}

func NewRepo() *Repo {
	return &Repo{
		rows: make(map[string]*row),
		now:  func() time.Time { return time.Now().UTC() },
	}
}

func rowKey(namespace, id string) string {
	return namespace + "\x00" + id
}

func (r *Repo) Get(ctx context.Context, namespace, id string) (cellar.Entry, error) {
	if err := ctx.Err(); err != nil {
		return cellar.Entry{}, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	rw, ok := r.rows[rowKey(namespace, id)]
	if !ok || rw.deletedAt != nil {
		return cellar.Entry{}, cellar.ErrNotFound
	}
	return copyEntry(rw.entry), nil
}

func (r *Repo) Exists(ctx context.Context, namespace, id string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	_, ok := r.rows[rowKey(namespace, id)]
	return ok, nil
}

func (r *Repo) Insert(ctx context.Context, e cellar.Entry) (cellar.Entry, error) {
	if err := ctx.Err(); err != nil {
		return cellar.Entry{}, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	k := rowKey(e.Namespace, e.ID)
	if _, ok := r.rows[k]; ok {
		return cellar.Entry{}, fmt.Errorf("insert %s: %w", e.ID, cellar.ErrConflict)
	}

	now := r.now()
	e = copyEntry(e)
	e.CreatedAt = now
	e.UpdatedAt = now

	r.seq++
	r.rows[k] = &row{seq: r.seq, entry: e}
	return copyEntry(e), nil
}

func (r *Repo) Update(ctx context.Context, namespace, id string, u cellar.EntryUpdate) (cellar.Entry, error) {
	if err := ctx.Err(); err != nil {
		return cellar.Entry{}, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	rw, ok := r.rows[rowKey(namespace, id)]
	if !ok || rw.deletedAt != nil {
		return cellar.Entry{}, cellar.ErrNotFound
	}

	rw.entry.Meta = u.Meta.Clone()
	if u.SetContent {
		rw.entry.Key = u.Key
		rw.entry.HasContent = u.HasContent
		rw.entry.Size = u.Size
		rw.entry.ETag = u.ETag
	}
	rw.entry.UpdatedAt = r.now()
	return copyEntry(rw.entry), nil
}

func (r *Repo) Delete(ctx context.Context, namespace, id string) (cellar.Entry, error) {
	if err := ctx.Err(); err != nil {
		return cellar.Entry{}, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	rw, ok := r.rows[rowKey(namespace, id)]
	if !ok || rw.deletedAt != nil {
		return cellar.Entry{}, cellar.ErrNotFound
	}

	now := r.now()
	rw.deletedAt = &now
	return copyEntry(rw.entry), nil
}

func (r *Repo) List(ctx context.Context, namespace string, q cellar.ListQuery) ([]cellar.Entry, int, error) {
	if err := ctx.Err(); err != nil {
		return nil, 0, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	live := make([]*row, 0)
	for _, rw := range r.rows {
		if rw.entry.Namespace == namespace && rw.deletedAt == nil {
			live = append(live, rw)
		}
	}
	sort.Slice(live, func(i, j int) bool { return live[i].seq < live[j].seq })

	total := len(live)
	if q.Skip >= total {
		return []cellar.Entry{}, total, nil
	}
	end := total
	if q.Limit > 0 && q.Skip+q.Limit < end {
		end = q.Skip + q.Limit
	}

	out := make([]cellar.Entry, 0, end-q.Skip)
	for _, rw := range live[q.Skip:end] {
		out = append(out, copyEntry(rw.entry))
	}
	return out, total, nil
}

func (r *Repo) ListPendingCleanup(ctx context.Context, limit int) ([]cellar.Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	pending := make([]*row, 0)
	for _, rw := range r.rows {
		if rw.deletedAt != nil && rw.cleanedUpAt == nil {
			pending = append(pending, rw)
		}
	}
	sort.Slice(pending, func(i, j int) bool { return pending[i].seq < pending[j].seq })
	if limit > 0 && len(pending) > limit {
		pending = pending[:limit]
	}

	out := make([]cellar.Entry, 0, len(pending))
	for _, rw := range pending {
		out = append(out, copyEntry(rw.entry))
	}
	return out, nil
}

func (r *Repo) MarkCleanedUp(ctx context.Context, namespace, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	rw, ok := r.rows[rowKey(namespace, id)]
	if !ok || rw.deletedAt == nil || rw.cleanedUpAt != nil {
		return cellar.ErrNotFound
	}
	now := r.now()
	rw.cleanedUpAt = &now
	return nil
}

func copyEntry(e cellar.Entry) cellar.Entry {
	e.Meta = e.Meta.Clone()
	return e
}

// Blobs is an in-memory cellar.BlobStore.
type Blobs struct {
	mu      sync.RWMutex
	objects map[string][]byte
}

func NewBlobs() *Blobs {
	return &Blobs{objects: make(map[string][]byte)}
}

func (b *Blobs) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	data, ok := b.objects[key]
	if !ok {
		return nil, cellar.ErrNotFound
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (b *Blobs) Write(ctx context.Context, key string, content io.Reader) (cellar.SaveResult, error) {
	if err := ctx.Err(); err != nil {
		return cellar.SaveResult{}, err
	}

	data, err := io.ReadAll(content)
	if err != nil {
		return cellar.SaveResult{}, fmt.Errorf("could not read content: %w", err)
	}
	sum := sha256.Sum256(data)

	b.mu.Lock()
	defer b.mu.Unlock()

	b.objects[key] = data
	return cellar.SaveResult{BytesWritten: int64(len(data)), Etag: hex.EncodeToString(sum[:])}, nil
}

func (b *Blobs) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.objects[key]; !ok {
		return cellar.ErrNotFound
	}
	delete(b.objects, key)
	return nil
}

// Len returns the number of stored blobs.
func (b *Blobs) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.objects)
}
