package cellar

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strings"
	"time"
)

// Input is the payload and metadata of a record to create. Name, Dir and
// Type take precedence over the same keys in Fields.
type Input struct {
	Data   io.Reader
	Name   string
	Dir    string
	Type   string
	Fields map[string]any
}

// Model validates and transforms records of one namespace before handing
// them to a Store.
type Model struct {
	store     *Store
	namespace string
	schema    Schema
	registry  *Registry
	ids       IDGenerator
	sniffer   Sniffer
	names     NameGenerator
}

type ModelOption func(*Model)

// WithRegistry makes the model resolve types in r instead of the store's registry.
func WithRegistry(r *Registry) ModelOption {
	return func(m *Model) {
		m.registry = r
	}
}

func WithSniffer(s Sniffer) ModelOption {
	return func(m *Model) {
		m.sniffer = s
	}
}

func WithIDGenerator(g IDGenerator) ModelOption {
	return func(m *Model) {
		m.ids = g
	}
}

func WithNameGenerator(g NameGenerator) ModelOption {
	return func(m *Model) {
		m.names = g
	}
}

// NewModel binds a schema to a namespace of store. The file fields name, dir
// and type are added from FileSchema unless schema defines them.
func NewModel(store *Store, namespace string, schema Schema, opts ...ModelOption) (*Model, error) {
	if !IsValidNamespace(namespace) {
		return nil, fmt.Errorf("new model: %w: invalid namespace %q", ErrInvalidInput, namespace)
	}

	full := FileSchema().With(schema)
	if err := full.validate(); err != nil {
		return nil, fmt.Errorf("new model: %w", err)
	}

	m := &Model{
		store:     store,
		namespace: namespace,
		schema:    full,
		registry:  store.Registry(),
		ids:       UUIDGenerator{},
		sniffer:   MimeSniffer{},
		names:     RandomName,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

func (m *Model) Namespace() string { return m.namespace }

// Schema returns a copy of the model's schema.
func (m *Model) Schema() Schema { return Schema{}.With(m.schema) }

// Registry returns the registry the model resolves field types in.
func (m *Model) Registry() *Registry { return m.registry }

// ID returns a fresh record identifier.
func (m *Model) ID() string {
	return m.ids.NewID()
}

// Use registers a field type on the model's registry. Every model sharing
// the registry sees it.
func (m *Model) Use(name string, h Handler) {
	m.registry.Use(name, h)
}

// Create validates, transforms and stores a new record.
//
// Records typed DirectoryType carry no payload. Every other record needs
// one; its type is sniffed from the leading bytes and a detected type wins
// over the declared one. The declared type is used only when nothing is
// detected, and a record with neither is rejected.
func (m *Model) Create(ctx context.Context, in Input) (*Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("create record: %w", err)
	}

	typ := in.Type
	var data io.Reader
	if isDirectoryType(in.Type) {
		if in.Data != nil {
			return nil, ErrDirectoryData
		}
		typ = DirectoryType
	} else {
		if in.Data == nil {
			return nil, ErrNoFileData
		}
		detected, r, err := m.detect(in.Data, in.Type)
		if err != nil {
			return nil, err
		}
		typ, data = detected, r
	}

	raw := make(map[string]any, len(in.Fields)+3)
	for k, v := range in.Fields {
		raw[k] = v
	}
	if in.Name != "" {
		raw[FieldName] = in.Name
	}
	if in.Dir != "" {
		raw[FieldDir] = in.Dir
	}
	raw[FieldType] = typ
	switch name := raw[FieldName].(type) {
	case nil:
		raw[FieldName] = m.names()
	case string:
		if strings.TrimSpace(name) == "" {
			raw[FieldName] = m.names()
		}
	}

	if err := m.checkFields(raw); err != nil {
		return nil, err
	}

	meta, err := m.transform(ctx, raw, m.schema.Fields(), true)
	if err != nil {
		return nil, err
	}

	if data != nil {
		if data, err = m.transformData(ctx, data); err != nil {
			return nil, err
		}
	}

	rec, err := m.store.Create(ctx, m.namespace, m.ID(), meta, data)
	if err != nil {
		return nil, err
	}
	return m.hydrate(rec), nil
}

// Get returns the record, or nil when it does not exist.
func (m *Model) Get(ctx context.Context, id string) (*Record, error) {
	rec, err := m.store.Get(ctx, m.namespace, id)
	if err != nil || rec == nil {
		return nil, err
	}
	return m.hydrate(rec), nil
}

func (m *Model) List(ctx context.Context, q ListQuery) (ListResult, error) {
	res, err := m.store.List(ctx, m.namespace, q)
	if err != nil {
		return ListResult{}, err
	}
	for i, rec := range res.Data {
		res.Data[i] = m.hydrate(rec)
	}
	return res, nil
}

// Patch re-transforms the given fields and merges them into the record.
// Fields not named keep their stored values. A "data" field holding an
// io.Reader replaces the content and is sniffed like on Create. Patching the
// type to DirectoryType drops the content. Returns nil when the record does
// not exist.
func (m *Model) Patch(ctx context.Context, id string, fields map[string]any) (*Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("patch record: %w", err)
	}

	current, err := m.store.Get(ctx, m.namespace, id)
	if err != nil || current == nil {
		return nil, err
	}

	delta := make(map[string]any, len(fields))
	var data io.Reader
	for k, v := range fields {
		if k != FieldData {
			delta[k] = v
			continue
		}
		if v == nil {
			continue
		}
		r, ok := v.(io.Reader)
		if !ok {
			return nil, &ValidationError{Field: FieldData, Message: fmt.Sprintf("data must be a byte stream, got %T", v)}
		}
		data = r
	}

	if err := m.checkFields(delta); err != nil {
		return nil, err
	}

	typ := current.Type()
	if t, ok := delta[FieldType].(string); ok {
		typ = t
	}

	req := PatchRequest{}
	switch {
	case isDirectoryType(typ):
		if data != nil {
			return nil, ErrDirectoryData
		}
		if _, ok := delta[FieldType]; ok {
			delta[FieldType] = DirectoryType
		}
		req.DropData = !current.IsDirectory()
	case data != nil:
		detected, r, detectErr := m.detect(data, typ)
		if detectErr != nil {
			return nil, detectErr
		}
		delta[FieldType] = detected
		if req.Data, err = m.transformData(ctx, r); err != nil {
			return nil, err
		}
	case current.IsDirectory():
		return nil, ErrNoFileData
	}

	names := make([]string, 0, len(delta))
	for k := range delta {
		names = append(names, k)
	}
	sort.Strings(names)

	req.Meta, err = m.transform(ctx, delta, names, false)
	if err != nil {
		return nil, err
	}

	rec, err := m.store.Patch(ctx, m.namespace, id, req)
	if err != nil || rec == nil {
		return nil, err
	}
	return m.hydrate(rec), nil
}

// Remove deletes the record and returns it as it was, or nil when it does
// not exist.
func (m *Model) Remove(ctx context.Context, id string) (*Record, error) {
	rec, err := m.store.Remove(ctx, m.namespace, id)
	if err != nil || rec == nil {
		return nil, err
	}
	return m.hydrate(rec), nil
}

func (m *Model) detect(r io.Reader, declared string) (string, io.Reader, error) {
	head, full, err := peek(r)
	if err != nil {
		return "", nil, fmt.Errorf("read content: %w", err)
	}

	if detected, ok := m.sniffer.Sniff(head); ok {
		if declared != "" && !strings.EqualFold(strings.TrimSpace(declared), detected) {
			slog.Debug("detected content type overrides declared", "declared", declared, "detected", detected)
		}
		return detected, full, nil
	}

	if strings.TrimSpace(declared) == "" {
		return "", nil, ErrUndetectableType
	}
	return declared, full, nil
}

func (m *Model) checkFields(raw map[string]any) error {
	for k := range raw {
		if _, ok := m.schema[k]; !ok || k == FieldData {
			return &ValidationError{Field: k, Message: fmt.Sprintf("unknown field %q", k)}
		}
	}
	return nil
}

// transform runs the named fields through their handlers. With
// applyDefaults, absent fields get their Default and required fields must
// be present.
func (m *Model) transform(ctx context.Context, raw map[string]any, fields []string, applyDefaults bool) (Metadata, error) {
	meta := make(Metadata, len(fields))
	for _, f := range fields {
		if f == FieldData {
			continue
		}
		def := m.schema[f]

		v, present := raw[f]
		if !present && applyDefaults {
			if def.Default != nil {
				v, present = def.Default, true
			} else if def.Required {
				return nil, &ValidationError{Field: f, Message: fmt.Sprintf("field %q is required", f)}
			}
		}

		out, err := m.registry.Transform(ctx, m, f, def, v)
		if err != nil {
			return nil, err
		}
		if out == nil {
			continue
		}
		meta[f] = out
	}

	for _, f := range []string{FieldName, FieldDir, FieldType} {
		v, ok := meta[f]
		if !ok {
			continue
		}
		if _, isString := v.(string); !isString {
			return nil, &TransformError{Field: f, Message: fmt.Sprintf("field %q must be text, got %T", f, v)}
		}
	}
	return meta, nil
}

func (m *Model) transformData(ctx context.Context, data io.Reader) (io.Reader, error) {
	def, ok := m.schema[FieldData]
	if !ok {
		return data, nil
	}

	out, err := m.registry.Transform(ctx, m, FieldData, def, data)
	if err != nil {
		return nil, err
	}
	r, ok := out.(io.Reader)
	if !ok {
		return nil, &TransformError{Field: FieldData, Message: fmt.Sprintf("data must remain a byte stream, got %T", out)}
	}
	return r, nil
}

// hydrate restores datetime fields, which are persisted as RFC 3339 text.
func (m *Model) hydrate(rec *Record) *Record {
	for f, def := range m.schema {
		if !strings.EqualFold(def.Type, "datetime") {
			continue
		}
		s, ok := rec.Meta[f].(string)
		if !ok {
			continue
		}
		if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
			rec.Meta[f] = t
		}
	}
	return rec
}

func isDirectoryType(typ string) bool {
	return strings.EqualFold(strings.TrimSpace(typ), DirectoryType)
}
