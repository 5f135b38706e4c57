package cellar

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"
)

// MetaDataRepo defines the interface for managing record metadata persistence.
// Implementations must handle concurrent access safely and ensure data consistency.
//
// All methods accept a context for cancellation and timeout control.
// Implementations should respect context cancellation and return appropriate errors.
type MetaDataRepo interface {
	// Get retrieves the live (not removed) entry for a record.
	//
	// Returns:
	//   - Entry: The stored entry if found
	//   - error: ErrNotFound if the record doesn't exist or was removed, or other database errors
	Get(ctx context.Context, namespace, id string) (Entry, error)

	// Exists reports whether the id was ever used in the namespace, including
	// removed records. Removed ids are never handed out again.
	Exists(ctx context.Context, namespace, id string) (bool, error)

	// Insert stores a new entry. CreatedAt and UpdatedAt are set by the repository.
	//
	// Returns:
	//   - Entry: The stored entry with timestamps
	//   - error: ErrConflict if the id already exists, or other database errors
	Insert(ctx context.Context, e Entry) (Entry, error)

	// Update replaces the metadata of a live entry and, when u.SetContent is
	// true, its content bookkeeping (blob key, size, etag). UpdatedAt is refreshed.
	//
	// Returns:
	//   - Entry: The updated entry
	//   - error: ErrNotFound if the record doesn't exist or was removed, or other database errors
	Update(ctx context.Context, namespace, id string, u EntryUpdate) (Entry, error)

	// Delete soft-deletes a live entry and returns it as it was before removal.
	// The entry is invisible to Get and List afterwards.
	//
	// Returns:
	//   - Entry: The entry as it was before removal
	//   - error: ErrNotFound if the record doesn't exist or was already removed
	Delete(ctx context.Context, namespace, id string) (Entry, error)

	// List returns a page of live entries in creation order together with the
	// total number of live entries in the namespace.
	List(ctx context.Context, namespace string, q ListQuery) ([]Entry, int, error)

	// ListPendingCleanup returns up to limit removed entries whose content has
	// not been cleaned up yet (deleted_at IS NOT NULL AND cleaned_up_at IS NULL).
	ListPendingCleanup(ctx context.Context, limit int) ([]Entry, error)

	// MarkCleanedUp marks a removed entry as cleaned up by setting cleaned_up_at.
	// This should be called after the blob has been deleted.
	//
	// Returns:
	//   - error: ErrNotFound if entry doesn't exist or isn't pending cleanup, or other database errors
	MarkCleanedUp(ctx context.Context, namespace, id string) error
}

// BlobStore defines the interface for payload storage operations.
// Implementations can use local filesystem, S3, or any other storage backend.
//
// Keys are opaque slash separated strings produced by a Placer.
type BlobStore interface {
	// Get opens a blob for reading. The caller is responsible for closing the
	// returned reader.
	//
	// Returns:
	//   - io.ReadCloser: Reader for blob content
	//   - error: ErrNotFound if blob doesn't exist, or other storage errors
	Get(ctx context.Context, key string) (io.ReadCloser, error)

	// Write stores content under key, replacing any existing blob.
	//
	// Implementations should:
	//   - Write atomically when possible (e.g., write to temp file then rename)
	//   - Compute an ETag during write for integrity verification
	//   - Return accurate byte count of data written
	//   - Handle context cancellation gracefully and clean up partial writes
	Write(ctx context.Context, key string, content io.Reader) (SaveResult, error)

	// Delete removes a blob.
	//
	// Returns:
	//   - error: ErrNotFound if blob doesn't exist, or other storage errors
	Delete(ctx context.Context, key string) error
}

const (
	DefaultListLimit    = 10
	DefaultMaxListLimit = 100
)

// StoreConfig holds configuration options for Store.
type StoreConfig struct {
	// Secret keys blob placement. Required; it is never persisted.
	Secret         string
	DefaultLimit   int           // Page size when a query sets none (default: 10)
	MaxLimit       int           // Largest page size a query may ask for (default: 100)
	CleanupTimeout time.Duration // Timeout for cleanup operations (default: 30s)
	// Registry is shared by every Model bound to the store. NewRegistry() when nil.
	Registry *Registry
	// Generations names each content write so that it lands under a key of
	// its own. UUIDGenerator when nil.
	Generations IDGenerator
}

// Store persists records: metadata in a MetaDataRepo, payloads in a
// BlobStore under secret-derived keys.
type Store struct {
	repo           MetaDataRepo
	blobs          BlobStore
	placer         *Placer
	registry       *Registry
	generations    IDGenerator
	defaultLimit   int
	maxLimit       int
	cleanupTimeout time.Duration
}

func NewStore(repo MetaDataRepo, blobs BlobStore, cfg StoreConfig) (*Store, error) {
	placer, err := NewPlacer(cfg.Secret)
	if err != nil {
		return nil, fmt.Errorf("new store: %w", err)
	}

	s := &Store{
		repo:           repo,
		blobs:          blobs,
		placer:         placer,
		registry:       cfg.Registry,
		generations:    cfg.Generations,
		defaultLimit:   cfg.DefaultLimit,
		maxLimit:       cfg.MaxLimit,
		cleanupTimeout: cfg.CleanupTimeout,
	}
	if s.registry == nil {
		s.registry = NewRegistry()
	}
	if s.generations == nil {
		s.generations = UUIDGenerator{}
	}
	if s.maxLimit <= 0 {
		s.maxLimit = DefaultMaxListLimit
	}
	if s.defaultLimit <= 0 {
		s.defaultLimit = DefaultListLimit
	}
	if s.defaultLimit > s.maxLimit {
		s.defaultLimit = s.maxLimit
	}
	if s.cleanupTimeout <= 0 {
		s.cleanupTimeout = 30 * time.Second
	}
	return s, nil
}

// Registry returns the type registry shared by models bound to the store.
func (s *Store) Registry() *Registry {
	return s.registry
}

// Create stores a new record. When data is nil the record has no content.
// Content is written under a key no other write shares, so a create that
// loses an id race only ever removes its own blob. If storing the metadata
// fails, the written blob is removed again using a background context so
// cleanup completes even if ctx was cancelled.
func (s *Store) Create(ctx context.Context, namespace, id string, meta Metadata, data io.Reader) (*Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("create record: %w", err)
	}
	if err := checkIdentity(namespace, id); err != nil {
		return nil, fmt.Errorf("create record: %w", err)
	}

	exists, err := s.repo.Exists(ctx, namespace, id)
	if err != nil {
		return nil, &StorageError{Op: "create", ID: id, Err: err}
	}
	if exists {
		return nil, fmt.Errorf("create record %s: %w", id, ErrConflict)
	}

	entry := Entry{
		ID:        id,
		Namespace: namespace,
		Key:       s.placer.Place(namespace, id, s.generations.NewID()),
		Meta:      meta.Clone(),
	}

	if data != nil {
		res, writeErr := s.blobs.Write(ctx, entry.Key, data)
		if writeErr != nil {
			return nil, &StorageError{Op: "create", ID: id, Err: fmt.Errorf("write content: %w", writeErr)}
		}
		entry.HasContent = true
		entry.Size = res.BytesWritten
		entry.ETag = res.Etag
	}

	saved, insertErr := s.repo.Insert(ctx, entry)
	if insertErr != nil {
		if entry.HasContent {
			s.discard(namespace, id, entry.Key)
		}
		if errors.Is(insertErr, ErrConflict) {
			return nil, fmt.Errorf("create record %s: %w", id, insertErr)
		}
		return nil, &StorageError{Op: "create", ID: id, Err: fmt.Errorf("insert metadata: %w", insertErr)}
	}

	slog.Debug("record created", "namespace", namespace, "id", id, "size", saved.Size)
	return s.record(saved), nil
}

// Get returns the record, or nil when it does not exist.
func (s *Store) Get(ctx context.Context, namespace, id string) (*Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("get record: %w", err)
	}

	e, err := s.repo.Get(ctx, namespace, id)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, &StorageError{Op: "get", ID: id, Err: err}
	}

	return s.record(e), nil
}

// PatchRequest describes a change to a stored record.
type PatchRequest struct {
	// Meta is merged into the stored metadata; keys present here overwrite.
	Meta Metadata
	// Data replaces the content when non-nil.
	Data io.Reader
	// DropData removes existing content. Ignored when Data is set.
	DropData bool
}

// Patch merges p into the stored record and returns the result, or nil
// when the record does not exist.
func (s *Store) Patch(ctx context.Context, namespace, id string, p PatchRequest) (*Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("patch record: %w", err)
	}

	current, err := s.repo.Get(ctx, namespace, id)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, &StorageError{Op: "patch", ID: id, Err: err}
	}

	u := EntryUpdate{Meta: current.Meta.Clone()}
	for k, v := range p.Meta {
		u.Meta[k] = v
	}

	var newKey string
	switch {
	case p.Data != nil:
		newKey = s.placer.Place(namespace, id, s.generations.NewID())
		res, writeErr := s.blobs.Write(ctx, newKey, p.Data)
		if writeErr != nil {
			return nil, &StorageError{Op: "patch", ID: id, Err: fmt.Errorf("write content: %w", writeErr)}
		}
		u.SetContent = true
		u.Key = newKey
		u.HasContent = true
		u.Size = res.BytesWritten
		u.ETag = res.Etag
	case p.DropData && current.HasContent:
		u.SetContent = true
		u.Key = current.Key
	}

	updated, err := s.repo.Update(ctx, namespace, id, u)
	if err != nil {
		// The stored entry still points at the previous content.
		if newKey != "" {
			s.discard(namespace, id, newKey)
		}
		if errors.Is(err, ErrNotFound) {
			return nil, nil
		}
		return nil, &StorageError{Op: "patch", ID: id, Err: fmt.Errorf("update metadata: %w", err)}
	}

	if u.SetContent && current.HasContent {
		s.discard(namespace, id, current.Key)
	}

	return s.record(updated), nil
}

// Remove deletes the record and its content and returns the record as it was
// before removal, or nil when it does not exist. The snapshot carries no Data.
//
// The metadata removal commits first, so the record is gone for every
// subsequent Get and List. If deleting the content fails it is logged and
// left for Purge.
func (s *Store) Remove(ctx context.Context, namespace, id string) (*Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("remove record: %w", err)
	}

	snapshot, err := s.repo.Delete(ctx, namespace, id)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, &StorageError{Op: "remove", ID: id, Err: err}
	}

	cleanupCtx, cancel := context.WithTimeout(context.Background(), s.cleanupTimeout)
	defer cancel()

	if err := s.cleanup(cleanupCtx, snapshot); err != nil {
		slog.Warn("content cleanup deferred", "namespace", namespace, "id", id, "err", err)
	}

	slog.Debug("record removed", "namespace", namespace, "id", id)

	r := s.record(snapshot)
	r.Data = nil
	return r, nil
}

// List returns a page of records in creation order.
func (s *Store) List(ctx context.Context, namespace string, q ListQuery) (ListResult, error) {
	if err := ctx.Err(); err != nil {
		return ListResult{}, fmt.Errorf("list records: %w", err)
	}

	q = s.normalize(q)
	entries, total, err := s.repo.List(ctx, namespace, q)
	if err != nil {
		return ListResult{}, &StorageError{Op: "list", Err: err}
	}

	if len(entries) > q.Limit {
		entries = entries[:q.Limit]
	}

	data := make([]*Record, 0, len(entries))
	for _, e := range entries {
		data = append(data, s.record(e))
	}

	return ListResult{Total: total, Limit: q.Limit, Skip: q.Skip, Data: data}, nil
}

// Purge deletes the content of removed records whose cleanup did not
// complete, batch records at a time, until none remain.
//
// If content has already been deleted (ErrNotFound), the record is marked as
// cleaned up anyway: a previous attempt deleted the blob but failed to mark
// the metadata.
//
// Returns the number of records cleaned up.
func (s *Store) Purge(ctx context.Context, batch int) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, fmt.Errorf("purge: %w", err)
	}
	if batch <= 0 {
		batch = s.maxLimit
	}

	total := 0
	for {
		if err := ctx.Err(); err != nil {
			return total, fmt.Errorf("purge: %w", err)
		}

		pending, err := s.repo.ListPendingCleanup(ctx, batch)
		if err != nil {
			return total, &StorageError{Op: "purge", Err: err}
		}
		if len(pending) == 0 {
			return total, nil
		}

		for _, e := range pending {
			if err := s.cleanup(ctx, e); err != nil {
				return total, &StorageError{Op: "purge", ID: e.ID, Err: err}
			}
			total++
		}
	}
}

func (s *Store) cleanup(ctx context.Context, e Entry) error {
	if e.HasContent {
		if err := s.blobs.Delete(ctx, e.Key); err != nil && !errors.Is(err, ErrNotFound) {
			return fmt.Errorf("delete content: %w", err)
		}
	}
	// ErrNotFound means a concurrent Remove or Purge already marked it.
	if err := s.repo.MarkCleanedUp(ctx, e.Namespace, e.ID); err != nil && !errors.Is(err, ErrNotFound) {
		return fmt.Errorf("mark cleaned up: %w", err)
	}
	return nil
}

// discard deletes a blob no entry refers to. Failures are logged only.
func (s *Store) discard(namespace, id, key string) {
	ctx, cancel := context.WithTimeout(context.Background(), s.cleanupTimeout)
	defer cancel()

	if err := s.blobs.Delete(ctx, key); err != nil && !errors.Is(err, ErrNotFound) {
		slog.Warn("failed to remove unreferenced content", "namespace", namespace, "id", id, "err", err)
	}
}

func (s *Store) normalize(q ListQuery) ListQuery {
	if q.Limit <= 0 {
		q.Limit = s.defaultLimit
	}
	if q.Limit > s.maxLimit {
		q.Limit = s.maxLimit
	}
	if q.Skip < 0 {
		q.Skip = 0
	}
	return q
}

func (s *Store) record(e Entry) *Record {
	r := &Record{
		ID:        e.ID,
		Namespace: e.Namespace,
		Meta:      e.Meta,
		Size:      e.Size,
		ETag:      e.ETag,
		CreatedAt: e.CreatedAt,
		UpdatedAt: e.UpdatedAt,
	}
	if r.Meta == nil {
		r.Meta = Metadata{}
	}
	if e.HasContent {
		r.Data = &blobContent{blobs: s.blobs, key: e.Key}
	}
	return r
}

func checkIdentity(namespace, id string) error {
	if !IsValidNamespace(namespace) {
		return fmt.Errorf("%w: invalid namespace %q", ErrInvalidInput, namespace)
	}
	if id == "" {
		return fmt.Errorf("%w: id cannot be empty", ErrInvalidInput)
	}
	return nil
}

type blobContent struct {
	blobs BlobStore
	key   string
}

func (c *blobContent) Open(ctx context.Context) (io.ReadCloser, error) {
	rc, err := c.blobs.Get(ctx, c.key)
	if err != nil {
		return nil, &StorageError{Op: "read", Err: err}
	}
	return rc, nil
}
