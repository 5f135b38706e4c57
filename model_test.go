package cellar_test

import (
	"bytes"
	"context"
	"image"
	"image/png"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/sagarc03/cellar"
	"github.com/sagarc03/cellar/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func newTestModel(t *testing.T, schema cellar.Schema, opts ...cellar.ModelOption) (*cellar.Model, *memory.Blobs) {
	t.Helper()
	blobs := memory.NewBlobs()
	store, err := cellar.NewStore(memory.NewRepo(), blobs, cellar.StoreConfig{
		Secret:   "0123456789abcdef0123456789abcdef",
		Registry: newTestRegistry(),
	})
	require.NoError(t, err)

	m, err := cellar.NewModel(store, "tests", schema, opts...)
	require.NoError(t, err)
	return m, blobs
}

func readAll(t *testing.T, c cellar.Content) string {
	t.Helper()
	require.NotNil(t, c)
	rc, err := c.Open(context.Background())
	require.NoError(t, err)
	defer func() { _ = rc.Close() }()

	b, err := io.ReadAll(rc)
	require.NoError(t, err)
	return string(b)
}

func pngBytes(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, 100, 100))))
	return buf.Bytes()
}

func TestNewModel(t *testing.T) {
	store, err := cellar.NewStore(memory.NewRepo(), memory.NewBlobs(), cellar.StoreConfig{Secret: "x"})
	require.NoError(t, err)

	t.Run("invalid namespace", func(t *testing.T) {
		_, err := cellar.NewModel(store, "Not Valid", nil)
		assert.ErrorIs(t, err, cellar.ErrInvalidInput)
	})

	t.Run("field without type", func(t *testing.T) {
		_, err := cellar.NewModel(store, "files", cellar.Schema{"meta": {}})
		assert.ErrorIs(t, err, cellar.ErrInvalidInput)
	})

	t.Run("file fields are always present", func(t *testing.T) {
		m, err := cellar.NewModel(store, "files", cellar.Schema{"meta": {Type: "JSON"}})
		require.NoError(t, err)
		assert.Equal(t, []string{"dir", "meta", "name", "type"}, m.Schema().Fields())
	})

	t.Run("models share the store registry", func(t *testing.T) {
		a, err := cellar.NewModel(store, "a", nil)
		require.NoError(t, err)
		b, err := cellar.NewModel(store, "b", nil)
		require.NoError(t, err)

		a.Use("Permission", cellar.Identity())
		_, ok := b.Registry().Resolve("permission")
		assert.True(t, ok)
	})
}

func TestModel_ID(t *testing.T) {
	m, _ := newTestModel(t, nil)
	a, b := m.ID(), m.ID()
	assert.NotEmpty(t, a)
	assert.NotEqual(t, a, b)
}

func TestModel_Create(t *testing.T) {
	ctx := context.Background()

	t.Run("text file with declared type", func(t *testing.T) {
		m, _ := newTestModel(t, nil)

		rec, err := m.Create(ctx, cellar.Input{Data: strings.NewReader("hello world"), Type: "text/plain"})
		require.NoError(t, err)
		assert.NotEmpty(t, rec.ID)
		assert.Equal(t, "text/plain", rec.Type())
		assert.NotEmpty(t, rec.Name())
		assert.Equal(t, int64(11), rec.Size)
		assert.Equal(t, "hello world", readAll(t, rec.Data))
	})

	t.Run("content can be read more than once", func(t *testing.T) {
		m, _ := newTestModel(t, nil)

		rec, err := m.Create(ctx, cellar.Input{Data: strings.NewReader("hello world"), Type: "text/plain"})
		require.NoError(t, err)
		assert.Equal(t, "hello world", readAll(t, rec.Data))
		assert.Equal(t, "hello world", readAll(t, rec.Data))
	})

	t.Run("detected type wins over declared", func(t *testing.T) {
		m, _ := newTestModel(t, nil)
		img := pngBytes(t)

		rec, err := m.Create(ctx, cellar.Input{Data: bytes.NewReader(img), Type: "text/plain"})
		require.NoError(t, err)
		assert.Equal(t, "image/png", rec.Type())
		assert.Equal(t, string(img), readAll(t, rec.Data))
	})

	t.Run("detected type without declared type", func(t *testing.T) {
		m, _ := newTestModel(t, nil)

		rec, err := m.Create(ctx, cellar.Input{Data: bytes.NewReader(pngBytes(t))})
		require.NoError(t, err)
		assert.Equal(t, "image/png", rec.Type())
	})

	t.Run("payload larger than the sniff window", func(t *testing.T) {
		m, _ := newTestModel(t, nil)
		payload := strings.Repeat("a", cellar.SniffLimit*3+7)

		rec, err := m.Create(ctx, cellar.Input{Data: strings.NewReader(payload), Type: "text/plain"})
		require.NoError(t, err)
		assert.Equal(t, int64(len(payload)), rec.Size)
		assert.Equal(t, payload, readAll(t, rec.Data))
	})

	t.Run("specific name", func(t *testing.T) {
		m, _ := newTestModel(t, nil)

		rec, err := m.Create(ctx, cellar.Input{Data: strings.NewReader("hello world"), Name: "hello", Type: "text/plain"})
		require.NoError(t, err)
		assert.Equal(t, "hello", rec.Name())
		assert.Equal(t, "text/plain", rec.Type())
		assert.Equal(t, "hello world", readAll(t, rec.Data))
	})

	t.Run("specific name and dir", func(t *testing.T) {
		m, _ := newTestModel(t, nil)

		rec, err := m.Create(ctx, cellar.Input{Data: strings.NewReader("hello world"), Name: "hello", Dir: "foo/bar", Type: "text/plain"})
		require.NoError(t, err)
		assert.Equal(t, "hello", rec.Name())
		assert.Equal(t, "foo/bar", rec.Dir())
		assert.Equal(t, "hello world", readAll(t, rec.Data))
	})

	t.Run("no data", func(t *testing.T) {
		m, blobs := newTestModel(t, nil)

		_, err := m.Create(ctx, cellar.Input{Type: "text/plain"})
		assert.EqualError(t, err, "No file data")
		assert.ErrorIs(t, err, cellar.ErrNoFileData)
		assert.ErrorIs(t, err, cellar.ErrValidation)
		assert.Equal(t, 0, blobs.Len())
	})

	t.Run("no data is checked before the type", func(t *testing.T) {
		m, _ := newTestModel(t, nil)

		_, err := m.Create(ctx, cellar.Input{})
		assert.ErrorIs(t, err, cellar.ErrNoFileData)
	})

	t.Run("cannot detect type", func(t *testing.T) {
		m, blobs := newTestModel(t, nil)

		_, err := m.Create(ctx, cellar.Input{Data: strings.NewReader("hello world")})
		assert.EqualError(t, err, "Cannot detect file type")
		assert.ErrorIs(t, err, cellar.ErrUndetectableType)
		assert.Equal(t, 0, blobs.Len())
	})

	t.Run("directory", func(t *testing.T) {
		m, blobs := newTestModel(t, nil)

		rec, err := m.Create(ctx, cellar.Input{Type: cellar.DirectoryType})
		require.NoError(t, err)
		assert.Nil(t, rec.Data)
		assert.Equal(t, cellar.DirectoryType, rec.Type())
		assert.True(t, rec.IsDirectory())
		assert.Equal(t, 0, blobs.Len())
	})

	t.Run("directory with data", func(t *testing.T) {
		m, _ := newTestModel(t, nil)

		_, err := m.Create(ctx, cellar.Input{Type: cellar.DirectoryType, Data: strings.NewReader("x")})
		assert.ErrorIs(t, err, cellar.ErrDirectoryData)
	})

	t.Run("name, dir and type are normalized", func(t *testing.T) {
		m, _ := newTestModel(t, nil)

		rec, err := m.Create(ctx, cellar.Input{Data: strings.NewReader("x"), Name: "  a.txt ", Dir: " docs ", Type: " Text/Plain "})
		require.NoError(t, err)
		assert.Equal(t, "a.txt", rec.Name())
		assert.Equal(t, "docs", rec.Dir())
		assert.Equal(t, "text/plain", rec.Type())
	})

	t.Run("generated name", func(t *testing.T) {
		m, _ := newTestModel(t, nil, cellar.WithNameGenerator(func() string { return "generated" }))

		rec, err := m.Create(ctx, cellar.Input{Data: strings.NewReader("x"), Type: "text/plain"})
		require.NoError(t, err)
		assert.Equal(t, "generated", rec.Name())
	})

	t.Run("schema fields", func(t *testing.T) {
		m, _ := newTestModel(t, cellar.Schema{
			"meta":     {Type: "JSON"},
			"password": {Type: "password"},
			"taken":    {Type: "datetime"},
			"label":    {Type: "text", Default: "none"},
		})

		rec, err := m.Create(ctx, cellar.Input{
			Data: strings.NewReader("x"),
			Type: "text/plain",
			Fields: map[string]any{
				"meta":     `{"foo":"bar"}`,
				"password": "helloworld",
				"taken":    "Mon Jan 25 2021 12:09:23 GMT+0700 (Indochina Time)",
			},
		})
		require.NoError(t, err)
		assert.Equal(t, map[string]any{"foo": "bar"}, rec.Meta["meta"])
		assert.Equal(t, "none", rec.Meta["label"])
		assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(rec.Meta.String("password")), []byte("helloworld")))

		taken, ok := rec.Meta["taken"].(time.Time)
		require.True(t, ok)
		assert.True(t, taken.Equal(time.Date(2021, 1, 25, 5, 9, 23, 0, time.UTC)))
	})

	t.Run("non-string name is converted as text", func(t *testing.T) {
		m, _ := newTestModel(t, nil)

		rec, err := m.Create(ctx, cellar.Input{
			Data:   strings.NewReader("x"),
			Type:   "text/plain",
			Fields: map[string]any{"name": 2024},
		})
		require.NoError(t, err)
		assert.Equal(t, "2024", rec.Name())
	})

	t.Run("absent optional password is omitted", func(t *testing.T) {
		m, _ := newTestModel(t, cellar.Schema{"password": {Type: "password"}})

		rec, err := m.Create(ctx, cellar.Input{Data: strings.NewReader("x"), Type: "text/plain"})
		require.NoError(t, err)
		assert.NotContains(t, rec.Meta, "password")
	})

	t.Run("required field", func(t *testing.T) {
		m, _ := newTestModel(t, cellar.Schema{"owner": {Type: "text", Required: true}})

		_, err := m.Create(ctx, cellar.Input{Data: strings.NewReader("x"), Type: "text/plain"})
		assert.ErrorIs(t, err, cellar.ErrValidation)

		var ve *cellar.ValidationError
		require.ErrorAs(t, err, &ve)
		assert.Equal(t, "owner", ve.Field)
	})

	t.Run("unknown field", func(t *testing.T) {
		m, _ := newTestModel(t, nil)

		_, err := m.Create(ctx, cellar.Input{Data: strings.NewReader("x"), Type: "text/plain", Fields: map[string]any{"color": "red"}})
		assert.ErrorIs(t, err, cellar.ErrValidation)
	})

	t.Run("unregistered schema type", func(t *testing.T) {
		m, blobs := newTestModel(t, cellar.Schema{"role": {Type: "John"}})

		_, err := m.Create(ctx, cellar.Input{Data: strings.NewReader("x"), Type: "text/plain"})
		assert.EqualError(t, err, `wrong schema type "john"`)
		assert.Equal(t, 0, blobs.Len())
	})

	t.Run("custom type", func(t *testing.T) {
		m, _ := newTestModel(t, cellar.Schema{"role": {Type: "Permission"}})
		m.Use("Permission", cellar.Identity())

		rec, err := m.Create(ctx, cellar.Input{Data: strings.NewReader("x"), Type: "text/plain", Fields: map[string]any{"role": "123"}})
		require.NoError(t, err)
		assert.Equal(t, "123", rec.Meta["role"])
	})

	t.Run("data field handler wraps the stream", func(t *testing.T) {
		m, _ := newTestModel(t, cellar.Schema{"data": {Type: "upper"}})
		m.Use("upper", cellar.HandlerFunc(func(_ context.Context, _ *cellar.Model, _ cellar.FieldDef, v any) (any, error) {
			b, err := io.ReadAll(v.(io.Reader))
			if err != nil {
				return nil, err
			}
			return bytes.NewReader(bytes.ToUpper(b)), nil
		}))

		rec, err := m.Create(ctx, cellar.Input{Data: strings.NewReader("hello"), Type: "text/plain"})
		require.NoError(t, err)
		assert.Equal(t, "HELLO", readAll(t, rec.Data))
		assert.NotContains(t, rec.Meta, "data")
	})

	t.Run("context cancelled", func(t *testing.T) {
		m, _ := newTestModel(t, nil)
		cctx, cancel := context.WithCancel(ctx)
		cancel()

		_, err := m.Create(cctx, cellar.Input{Data: strings.NewReader("x"), Type: "text/plain"})
		assert.ErrorIs(t, err, context.Canceled)
	})
}

func TestModel_Get(t *testing.T) {
	ctx := context.Background()
	m, _ := newTestModel(t, cellar.Schema{"taken": {Type: "datetime"}})

	created, err := m.Create(ctx, cellar.Input{
		Data:   strings.NewReader("hello world"),
		Type:   "text/plain",
		Fields: map[string]any{"taken": "2021-01-25T05:09:23Z"},
	})
	require.NoError(t, err)

	t.Run("existing", func(t *testing.T) {
		rec, err := m.Get(ctx, created.ID)
		require.NoError(t, err)
		require.NotNil(t, rec)
		assert.Equal(t, created.ID, rec.ID)
		assert.Equal(t, "hello world", readAll(t, rec.Data))
		assert.IsType(t, time.Time{}, rec.Meta["taken"])
	})

	t.Run("missing", func(t *testing.T) {
		rec, err := m.Get(ctx, m.ID())
		assert.NoError(t, err)
		assert.Nil(t, rec)
	})
}

func TestModel_List(t *testing.T) {
	ctx := context.Background()
	m, _ := newTestModel(t, nil)

	var ids []string
	for i := 0; i < 5; i++ {
		rec, err := m.Create(ctx, cellar.Input{Type: cellar.DirectoryType})
		require.NoError(t, err)
		ids = append(ids, rec.ID)
	}

	t.Run("defaults", func(t *testing.T) {
		res, err := m.List(ctx, cellar.ListQuery{})
		require.NoError(t, err)
		assert.Equal(t, 5, res.Total)
		assert.Equal(t, cellar.DefaultListLimit, res.Limit)
		assert.Equal(t, 0, res.Skip)
		assert.Len(t, res.Data, 5)
	})

	t.Run("page", func(t *testing.T) {
		res, err := m.List(ctx, cellar.ListQuery{Limit: 2, Skip: 1})
		require.NoError(t, err)
		assert.Equal(t, 5, res.Total)
		require.Len(t, res.Data, 2)
		assert.Equal(t, ids[1], res.Data[0].ID)
		assert.Equal(t, ids[2], res.Data[1].ID)
	})

	t.Run("skip past the end", func(t *testing.T) {
		res, err := m.List(ctx, cellar.ListQuery{Skip: 50})
		require.NoError(t, err)
		assert.Equal(t, 5, res.Total)
		assert.Empty(t, res.Data)
	})
}

func TestModel_Patch(t *testing.T) {
	ctx := context.Background()

	t.Run("metadata only keeps content", func(t *testing.T) {
		m, _ := newTestModel(t, nil)
		rec, err := m.Create(ctx, cellar.Input{Data: strings.NewReader("hello world"), Name: "patchme", Type: "text/plain"})
		require.NoError(t, err)

		patched, err := m.Patch(ctx, rec.ID, map[string]any{"name": "me", "dir": "foo/bar", "type": "text/html"})
		require.NoError(t, err)
		require.NotNil(t, patched)
		assert.Equal(t, "me", patched.Name())
		assert.Equal(t, "foo/bar", patched.Dir())
		assert.Equal(t, "text/html", patched.Type())
		assert.Equal(t, "hello world", readAll(t, patched.Data))
	})

	t.Run("unnamed fields are unchanged", func(t *testing.T) {
		m, _ := newTestModel(t, nil)
		rec, err := m.Create(ctx, cellar.Input{Data: strings.NewReader("x"), Name: "a", Dir: "d", Type: "text/plain"})
		require.NoError(t, err)

		patched, err := m.Patch(ctx, rec.ID, map[string]any{"name": "b"})
		require.NoError(t, err)
		assert.Equal(t, "b", patched.Name())
		assert.Equal(t, "d", patched.Dir())
		assert.Equal(t, "text/plain", patched.Type())
	})

	t.Run("patched fields are transformed", func(t *testing.T) {
		m, _ := newTestModel(t, nil)
		rec, err := m.Create(ctx, cellar.Input{Data: strings.NewReader("x"), Type: "text/plain"})
		require.NoError(t, err)

		patched, err := m.Patch(ctx, rec.ID, map[string]any{"type": "  TEXT/HTML "})
		require.NoError(t, err)
		assert.Equal(t, "text/html", patched.Type())
	})

	t.Run("new data is sniffed", func(t *testing.T) {
		m, _ := newTestModel(t, nil)
		rec, err := m.Create(ctx, cellar.Input{Data: strings.NewReader("hello"), Type: "text/plain"})
		require.NoError(t, err)

		img := pngBytes(t)
		patched, err := m.Patch(ctx, rec.ID, map[string]any{"data": bytes.NewReader(img), "type": "text/plain"})
		require.NoError(t, err)
		assert.Equal(t, "image/png", patched.Type())
		assert.Equal(t, int64(len(img)), patched.Size)
		assert.Equal(t, string(img), readAll(t, patched.Data))
	})

	t.Run("new undetectable data keeps stored type", func(t *testing.T) {
		m, blobs := newTestModel(t, nil)
		rec, err := m.Create(ctx, cellar.Input{Data: strings.NewReader("hello"), Type: "text/markdown"})
		require.NoError(t, err)

		patched, err := m.Patch(ctx, rec.ID, map[string]any{"data": strings.NewReader("# title")})
		require.NoError(t, err)
		assert.Equal(t, "text/markdown", patched.Type())
		assert.Equal(t, "# title", readAll(t, patched.Data))
		assert.Equal(t, 1, blobs.Len(), "previous content is removed")
	})

	t.Run("retype to directory drops content", func(t *testing.T) {
		m, blobs := newTestModel(t, nil)
		rec, err := m.Create(ctx, cellar.Input{Data: strings.NewReader("hello"), Type: "text/plain"})
		require.NoError(t, err)
		require.Equal(t, 1, blobs.Len())

		patched, err := m.Patch(ctx, rec.ID, map[string]any{"type": cellar.DirectoryType})
		require.NoError(t, err)
		assert.True(t, patched.IsDirectory())
		assert.Nil(t, patched.Data)
		assert.Equal(t, 0, blobs.Len())
	})

	t.Run("data on a directory", func(t *testing.T) {
		m, _ := newTestModel(t, nil)
		rec, err := m.Create(ctx, cellar.Input{Type: cellar.DirectoryType})
		require.NoError(t, err)

		_, err = m.Patch(ctx, rec.ID, map[string]any{"data": strings.NewReader("x")})
		assert.ErrorIs(t, err, cellar.ErrDirectoryData)
	})

	t.Run("directory retyped without data", func(t *testing.T) {
		m, _ := newTestModel(t, nil)
		rec, err := m.Create(ctx, cellar.Input{Type: cellar.DirectoryType})
		require.NoError(t, err)

		_, err = m.Patch(ctx, rec.ID, map[string]any{"type": "text/plain"})
		assert.ErrorIs(t, err, cellar.ErrNoFileData)
	})

	t.Run("directory becomes a file with data", func(t *testing.T) {
		m, _ := newTestModel(t, nil)
		rec, err := m.Create(ctx, cellar.Input{Type: cellar.DirectoryType})
		require.NoError(t, err)

		patched, err := m.Patch(ctx, rec.ID, map[string]any{"type": "text/plain", "data": strings.NewReader("now a file")})
		require.NoError(t, err)
		assert.Equal(t, "text/plain", patched.Type())
		assert.Equal(t, "now a file", readAll(t, patched.Data))
	})

	t.Run("unknown field", func(t *testing.T) {
		m, _ := newTestModel(t, nil)
		rec, err := m.Create(ctx, cellar.Input{Type: cellar.DirectoryType})
		require.NoError(t, err)

		_, err = m.Patch(ctx, rec.ID, map[string]any{"color": "red"})
		assert.ErrorIs(t, err, cellar.ErrValidation)
	})

	t.Run("missing record", func(t *testing.T) {
		m, _ := newTestModel(t, nil)

		rec, err := m.Patch(ctx, m.ID(), map[string]any{})
		assert.NoError(t, err)
		assert.Nil(t, rec)
	})
}

func TestModel_Remove(t *testing.T) {
	ctx := context.Background()

	t.Run("directory", func(t *testing.T) {
		m, _ := newTestModel(t, nil)
		rec, err := m.Create(ctx, cellar.Input{Name: "removeme", Dir: "/foo", Type: cellar.DirectoryType})
		require.NoError(t, err)

		removed, err := m.Remove(ctx, rec.ID)
		require.NoError(t, err)
		require.NotNil(t, removed)
		assert.Nil(t, removed.Data)
		assert.Equal(t, "removeme", removed.Name())
		assert.Equal(t, "/foo", removed.Dir())
		assert.Equal(t, cellar.DirectoryType, removed.Type())

		again, err := m.Get(ctx, rec.ID)
		require.NoError(t, err)
		assert.Nil(t, again)
	})

	// Content-bearing records follow the directory semantics: the content is
	// deleted along with the metadata and the snapshot carries no data.
	t.Run("file deletes content", func(t *testing.T) {
		m, blobs := newTestModel(t, nil)
		rec, err := m.Create(ctx, cellar.Input{Data: strings.NewReader("hello"), Name: "a", Type: "text/plain"})
		require.NoError(t, err)
		require.Equal(t, 1, blobs.Len())

		removed, err := m.Remove(ctx, rec.ID)
		require.NoError(t, err)
		assert.Equal(t, "a", removed.Name())
		assert.Equal(t, int64(5), removed.Size)
		assert.Nil(t, removed.Data)
		assert.Equal(t, 0, blobs.Len())

		res, err := m.List(ctx, cellar.ListQuery{})
		require.NoError(t, err)
		assert.Equal(t, 0, res.Total)
	})

	t.Run("missing record", func(t *testing.T) {
		m, _ := newTestModel(t, nil)

		rec, err := m.Remove(ctx, m.ID())
		assert.NoError(t, err)
		assert.Nil(t, rec)
	})

	t.Run("removed twice", func(t *testing.T) {
		m, _ := newTestModel(t, nil)
		rec, err := m.Create(ctx, cellar.Input{Type: cellar.DirectoryType})
		require.NoError(t, err)

		_, err = m.Remove(ctx, rec.ID)
		require.NoError(t, err)

		again, err := m.Remove(ctx, rec.ID)
		assert.NoError(t, err)
		assert.Nil(t, again)
	})
}

func TestModel_NamespacesAreIsolated(t *testing.T) {
	ctx := context.Background()
	store, err := cellar.NewStore(memory.NewRepo(), memory.NewBlobs(), cellar.StoreConfig{Secret: "x"})
	require.NoError(t, err)

	a, err := cellar.NewModel(store, "a", nil)
	require.NoError(t, err)
	b, err := cellar.NewModel(store, "b", nil)
	require.NoError(t, err)

	rec, err := a.Create(ctx, cellar.Input{Type: cellar.DirectoryType})
	require.NoError(t, err)

	got, err := b.Get(ctx, rec.ID)
	require.NoError(t, err)
	assert.Nil(t, got)
}
