// Package cellar provides a schema-driven object store with pluggable
// metadata and blob backends.
//
// Cellar persists binary payloads (or zero-byte directory markers) together
// with structured metadata. Callers address records only by id; the store
// decides where payloads live, what they are named and what type they carry.
//
// # Key Components
//
//   - Store: Persists records in a MetaDataRepo (PostgreSQL, SQLite) and a
//     BlobStore (filesystem, S3) under keys derived from a secret
//   - Registry: Named field types (JSON, text, datetime, password) and any
//     types registered with Use
//   - Model: Validates input, sniffs payload types and runs schema fields
//     through the registry before handing records to the Store
//
// # Content Types
//
// The type of a payload is detected from its leading bytes. A detected type
// always replaces the declared one; the declared type is kept only for
// payloads without a recognizable signature (plain text, for example).
// Records of type DirectoryType carry no payload.
//
// # Example Usage
//
//	store, err := cellar.NewStore(repo, blobs, cellar.StoreConfig{Secret: secret})
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	files, err := cellar.NewModel(store, "files", cellar.Schema{
//	    "meta": {Type: "JSON"},
//	})
//
//	rec, err := files.Create(ctx, cellar.Input{Data: f, Name: "logo.png"})
//
//	rec, err = files.Patch(ctx, rec.ID, map[string]any{"dir": "images"})
//
// See the storage package for a one-call constructor, and the database,
// filesystem and s3blob packages for the backends.
package cellar
