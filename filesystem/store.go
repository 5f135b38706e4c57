// Package filesystem provides a file system blob backend for cellar.
// It supports atomic writes using temp files and SHA256-based etags.
package filesystem

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path"

	"github.com/google/uuid"
	"github.com/sagarc03/cellar"
)

// Store provides file system blob operations.
type Store struct {
	root *os.Root
}

// NewBlobStore creates a new Store with the given root directory.
// The root provides sandboxed file operations preventing path traversal.
func NewBlobStore(root *os.Root) *Store {
	return &Store{root: root}
}

// Get opens a blob for reading. Returns cellar.ErrNotFound if the blob does not exist.
func (s *Store) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	f, err := s.root.Open(key)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, cellar.ErrNotFound
		}
		return nil, fmt.Errorf("failed to open blob: %w", err)
	}

	return f, nil
}

type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (r *ctxReader) Read(p []byte) (n int, err error) {
	if err := r.ctx.Err(); err != nil {
		return 0, err
	}
	return r.r.Read(p)
}

// Write atomically writes content to key using a temp file and rename.
// It creates the shard directories as needed and returns a SaveResult containing
// the number of bytes written and SHA256-based etag. The operation respects context cancellation.
func (s *Store) Write(ctx context.Context, key string, content io.Reader) (cellar.SaveResult, error) {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return cellar.SaveResult{}, ctxErr
	}

	tmpFile := tmpFileName()
	t, createErr := s.root.Create(tmpFile)
	if createErr != nil {
		return cellar.SaveResult{}, fmt.Errorf("could not open temp file: %w", createErr)
	}

	success := false
	defer func() {
		if closeErr := t.Close(); closeErr != nil {
			slog.Warn("failed to close tmp file", "err", closeErr)
		}
		if !success {
			if rmErr := s.root.Remove(tmpFile); rmErr != nil {
				slog.Warn("failed to remove tmp file", "err", rmErr)
			}
		}
	}()

	h := sha256.New()
	w := io.MultiWriter(h, t)

	size, err := io.Copy(w, &ctxReader{ctx: ctx, r: content})
	if err != nil {
		return cellar.SaveResult{}, fmt.Errorf("could not copy blob contents: %w", err)
	}

	if err := t.Sync(); err != nil {
		return cellar.SaveResult{}, fmt.Errorf("could not sync written blob: %w", err)
	}

	if dir := path.Dir(key); dir != "." {
		if err := s.root.MkdirAll(dir, 0o755); err != nil {
			return cellar.SaveResult{}, fmt.Errorf("could not create shard directories: %w", err)
		}
	}

	if renameErr := s.root.Rename(tmpFile, key); renameErr != nil {
		return cellar.SaveResult{}, fmt.Errorf("failed to rename blob: %w", renameErr)
	}

	success = true

	return cellar.SaveResult{BytesWritten: size, Etag: hex.EncodeToString(h.Sum(nil))}, nil
}

// Delete removes a blob and any shard directories it leaves empty.
// Returns cellar.ErrNotFound if the blob does not exist.
func (s *Store) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if err := s.root.Remove(key); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cellar.ErrNotFound
		}
		return fmt.Errorf("could not delete blob: %w", err)
	}

	s.pruneEmptyDirs(path.Dir(key))
	return nil
}

// pruneEmptyDirs removes dir and its parents up to the root while they are
// empty. Removing a non-empty directory fails, which ends the walk.
func (s *Store) pruneEmptyDirs(dir string) {
	for dir != "." && dir != "/" {
		if err := s.root.Remove(dir); err != nil {
			return
		}
		dir = path.Dir(dir)
	}
}

func tmpFileName() string {
	return fmt.Sprintf(".t%s", uuid.New().String())
}
