package cellar

import (
	"fmt"
	"sort"
)

// FieldDef declares one schema field: the registered type its values are
// transformed with, and the options handed to that type's handler.
type FieldDef struct {
	Type     string         `mapstructure:"type" yaml:"type"`
	Required bool           `mapstructure:"required" yaml:"required,omitempty"`
	Default  any            `mapstructure:"default" yaml:"default,omitempty"`
	Trim     bool           `mapstructure:"trim" yaml:"trim,omitempty"`
	Lower    bool           `mapstructure:"lowercase" yaml:"lowercase,omitempty"`
	Upper    bool           `mapstructure:"uppercase" yaml:"uppercase,omitempty"`
	Options  map[string]any `mapstructure:"options" yaml:"options,omitempty"`
}

// Option returns a handler specific option.
func (d FieldDef) Option(name string) (any, bool) {
	v, ok := d.Options[name]
	return v, ok
}

// Schema maps field names to their definitions.
type Schema map[string]FieldDef

// FileSchema returns the schema every file record needs: trimmed name and
// dir, and a trimmed lowercase type.
func FileSchema() Schema {
	return Schema{
		FieldName: {Type: "text", Trim: true},
		FieldDir:  {Type: "text", Trim: true},
		FieldType: {Type: "text", Trim: true, Lower: true},
	}
}

// With returns a copy of s extended by fields. Fields already present are replaced.
func (s Schema) With(fields Schema) Schema {
	out := make(Schema, len(s)+len(fields))
	for k, v := range s {
		out[k] = v
	}
	for k, v := range fields {
		out[k] = v
	}
	return out
}

// Fields returns the field names in a stable order.
func (s Schema) Fields() []string {
	names := make([]string, 0, len(s))
	for k := range s {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

func (s Schema) validate() error {
	for name, def := range s {
		if def.Type == "" {
			return fmt.Errorf("validate schema: %w: field %q has no type", ErrInvalidInput, name)
		}
	}
	return nil
}
