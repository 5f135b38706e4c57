package client

import (
	"encoding/json"
	"fmt"
	"io"
	"time"
)

// Record is a stored record as returned by the server. Fields holds every
// metadata field beyond name, dir and type.
type Record struct {
	ID        string
	Name      string
	Dir       string
	Type      string
	Size      int64
	ETag      string
	CreatedAt time.Time
	UpdatedAt time.Time
	Fields    map[string]any
}

// IsDirectory reports whether the record is a directory marker.
func (r *Record) IsDirectory() bool {
	return r.Type == DirectoryType
}

// DirectoryType is the type of directory records.
const DirectoryType = "inode/directory"

func (r *Record) UnmarshalJSON(b []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}

	known := map[string]any{
		"id":         &r.ID,
		"name":       &r.Name,
		"dir":        &r.Dir,
		"type":       &r.Type,
		"size":       &r.Size,
		"etag":       &r.ETag,
		"created_at": &r.CreatedAt,
		"updated_at": &r.UpdatedAt,
	}

	r.Fields = make(map[string]any)
	for k, v := range raw {
		if dst, ok := known[k]; ok {
			if err := json.Unmarshal(v, dst); err != nil {
				return fmt.Errorf("decode %s: %w", k, err)
			}
			continue
		}
		var value any
		if err := json.Unmarshal(v, &value); err != nil {
			return fmt.Errorf("decode %s: %w", k, err)
		}
		r.Fields[k] = value
	}
	return nil
}

// ListResult is a page of records.
type ListResult struct {
	Total int      `json:"total"`
	Limit int      `json:"limit"`
	Skip  int      `json:"skip"`
	Data  []Record `json:"data"`
}

// Next returns the skip of the following page, or -1 on the last page.
func (r *ListResult) Next() int {
	next := r.Skip + len(r.Data)
	if len(r.Data) == 0 || next >= r.Total {
		return -1
	}
	return next
}

// ListOptions selects a page. Zero values use the server defaults.
type ListOptions struct {
	Limit int
	Skip  int
}

// CreateRequest describes a record to create. Data is required unless Type
// is DirectoryType.
type CreateRequest struct {
	Name   string
	Dir    string
	Type   string
	Fields map[string]any
	Data   io.Reader
}

// ContentInfo describes downloaded content.
type ContentInfo struct {
	Type         string
	Size         int64
	ETag         string
	LastModified time.Time
}
