package cellar

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"regexp"
	"time"
)

// DirectoryType is the content type of zero-byte directory markers.
const DirectoryType = "inode/directory"

// Well-known metadata fields every record carries.
const (
	FieldName = "name"
	FieldDir  = "dir"
	FieldType = "type"
	FieldData = "data"
)

// Metadata holds the transformed schema fields of a record.
type Metadata map[string]any

// String returns the field as a string, or "" when it is absent or not a string.
func (m Metadata) String(key string) string {
	s, _ := m[key].(string)
	return s
}

// Clone returns a shallow copy of m.
func (m Metadata) Clone() Metadata {
	out := make(Metadata, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// Content is a restartable accessor for a record's payload. Every call to
// Open yields a fresh reader positioned at the first byte; the caller closes it.
type Content interface {
	Open(ctx context.Context) (io.ReadCloser, error)
}

// Record is the canonical representation of a stored object.
type Record struct {
	ID        string
	Namespace string
	Meta      Metadata
	Size      int64
	ETag      string
	CreatedAt time.Time
	UpdatedAt time.Time

	// Data is nil for directories and for snapshots returned by Remove.
	Data Content
}

func (r *Record) Name() string { return r.Meta.String(FieldName) }
func (r *Record) Dir() string  { return r.Meta.String(FieldDir) }
func (r *Record) Type() string { return r.Meta.String(FieldType) }

// IsDirectory reports whether the record is a directory marker.
func (r *Record) IsDirectory() bool {
	return r.Type() == DirectoryType
}

// MarshalJSON flattens the metadata fields next to the bookkeeping fields.
func (r *Record) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(r.Meta)+5)
	for k, v := range r.Meta {
		out[k] = v
	}
	out["id"] = r.ID
	out["size"] = r.Size
	if r.ETag != "" {
		out["etag"] = r.ETag
	}
	out["created_at"] = r.CreatedAt
	out["updated_at"] = r.UpdatedAt
	return json.Marshal(out)
}

// Entry is the persisted metadata row of a record. Key is the opaque blob
// placement derived from the store secret.
type Entry struct {
	ID         string
	Namespace  string
	Key        string
	Meta       Metadata
	HasContent bool
	Size       int64
	ETag       string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// EntryUpdate describes a change to a stored entry. Content fields, Key
// included, are only applied when SetContent is true.
type EntryUpdate struct {
	Meta       Metadata
	SetContent bool
	Key        string
	HasContent bool
	Size       int64
	ETag       string
}

type ListQuery struct {
	Limit int
	Skip  int
}

type ListResult struct {
	Total int       `json:"total"`
	Limit int       `json:"limit"`
	Skip  int       `json:"skip"`
	Data  []*Record `json:"data"`
}

type SaveResult struct {
	BytesWritten int64
	Etag         string
}

// Tables holds configurable table names for metadata storage.
// This allows multi-tenant deployments to use different table names.
type Tables struct {
	MetaData string `mapstructure:"meta_data" yaml:"meta_data"`
}

var validTableNameRegex = regexp.MustCompile(`^[a-z_][a-z0-9_]*$`)

// IsValidTableName checks if a table name is valid (lowercase, alphanumeric with underscores, max 63 chars).
func IsValidTableName(name string) bool {
	return validTableNameRegex.MatchString(name) && len(name) <= 63
}

// Validate checks that all required table names are set and valid.
func (t Tables) Validate() error {
	if t.MetaData == "" {
		return errors.New("validate tables: metadata table name cannot be empty")
	}

	if !IsValidTableName(t.MetaData) {
		return fmt.Errorf("validate tables: invalid metadata table name: %s (must match ^[a-z_][a-z0-9_]*$ and be <= 63 chars)", t.MetaData)
	}

	return nil
}

var validNamespaceRegex = regexp.MustCompile(`^[a-z0-9][a-z0-9_-]{0,62}$`)

// IsValidNamespace reports whether name can partition records in a store.
func IsValidNamespace(name string) bool {
	return validNamespaceRegex.MatchString(name)
}
