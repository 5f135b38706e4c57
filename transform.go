package cellar

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Transform runs raw through the handler registered for def.Type. An
// unregistered type fails with a *TransformError; handler failures are
// reported as *TransformError as well.
func (r *Registry) Transform(ctx context.Context, m *Model, field string, def FieldDef, raw any) (any, error) {
	h, ok := r.Resolve(def.Type)
	if !ok {
		return nil, &TransformError{
			Field:   field,
			Message: fmt.Sprintf("wrong schema type %q", strings.ToLower(def.Type)),
		}
	}

	v, err := h.Transform(ctx, m, def, raw)
	if err != nil {
		var te *TransformError
		if errors.As(err, &te) {
			if te.Field != "" {
				return nil, err
			}
			withField := *te
			withField.Field = field
			return nil, &withField
		}
		return nil, &TransformError{Field: field, Message: "transform " + field, Err: err}
	}

	return v, nil
}
