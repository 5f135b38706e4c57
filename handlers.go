package cellar

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/spf13/cast"
	"golang.org/x/crypto/bcrypt"
)

func jsonHandler(_ context.Context, _ *Model, _ FieldDef, value any) (any, error) {
	var raw []byte
	switch v := value.(type) {
	case nil:
		return map[string]any{}, nil
	case string:
		raw = []byte(v)
	case []byte:
		raw = v
	case json.RawMessage:
		raw = v
	default:
		return value, nil
	}

	var out any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, &TransformError{Message: "malformed JSON", Err: err}
	}
	return out, nil
}

func textHandler(_ context.Context, _ *Model, def FieldDef, value any) (any, error) {
	s, err := cast.ToStringE(value)
	if err != nil {
		return nil, &TransformError{Message: fmt.Sprintf("cannot use %T as text", value)}
	}

	if def.Trim {
		s = strings.TrimSpace(s)
	}
	if def.Lower {
		s = strings.ToLower(s)
	}
	if def.Upper {
		s = strings.ToUpper(s)
	}
	return s, nil
}

// JavaScriptDateLayout is the layout of Date.prototype.toString without the
// trailing parenthesized zone name.
const JavaScriptDateLayout = "Mon Jan 02 2006 15:04:05 GMT-0700"

var zoneNameSuffix = regexp.MustCompile(`\s*\([^)]*\)\s*$`)

var datetimeLayouts = []string{
	JavaScriptDateLayout,
	time.RFC3339Nano,
	time.RFC1123Z,
	time.RFC1123,
	time.UnixDate,
}

func datetimeHandler(_ context.Context, _ *Model, def FieldDef, value any) (any, error) {
	switch v := value.(type) {
	case nil:
		return time.Now().UTC(), nil
	case time.Time:
		return v, nil
	case string:
		t, err := parseDatetime(v, def)
		if err != nil {
			return nil, &TransformError{Message: fmt.Sprintf("invalid datetime %q", v), Err: err}
		}
		return t, nil
	}

	ms, err := cast.ToInt64E(value)
	if err != nil {
		return nil, &TransformError{Message: fmt.Sprintf("cannot use %T as datetime", value)}
	}
	return time.UnixMilli(ms).UTC(), nil
}

func parseDatetime(s string, def FieldDef) (time.Time, error) {
	s = zoneNameSuffix.ReplaceAllString(strings.TrimSpace(s), "")

	layouts := datetimeLayouts
	if layout, ok := def.Option("layout"); ok {
		if l, isString := layout.(string); isString && l != "" {
			layouts = append([]string{l}, layouts...)
		}
	}

	for _, layout := range layouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return cast.ToTimeE(s)
}

// Hasher computes one-way password digests.
type Hasher interface {
	Hash(raw string) (string, error)
	Verify(digest, candidate string) bool
}

// DefaultBcryptCost is the work factor used by NewRegistry.
const DefaultBcryptCost = bcrypt.DefaultCost

// BcryptHasher hashes passwords with bcrypt.
type BcryptHasher struct {
	cost int
}

func NewBcryptHasher(cost int) *BcryptHasher {
	return &BcryptHasher{cost: cost}
}

func (h *BcryptHasher) Hash(raw string) (string, error) {
	digest, err := bcrypt.GenerateFromPassword([]byte(raw), h.cost)
	if err != nil {
		return "", fmt.Errorf("bcrypt hash: %w", err)
	}
	return string(digest), nil
}

func (h *BcryptHasher) Verify(digest, candidate string) bool {
	return bcrypt.CompareHashAndPassword([]byte(digest), []byte(candidate)) == nil
}

func passwordHandler(hasher Hasher) Handler {
	return HandlerFunc(func(_ context.Context, _ *Model, _ FieldDef, value any) (any, error) {
		var raw string
		switch v := value.(type) {
		case nil:
			return nil, nil
		case string:
			raw = v
		case []byte:
			raw = string(v)
		default:
			return nil, &TransformError{Message: fmt.Sprintf("cannot use %T as password", value)}
		}

		if raw == "" {
			return nil, &TransformError{Message: "password cannot be empty"}
		}

		digest, err := hasher.Hash(raw)
		if err != nil {
			return nil, &TransformError{Message: "hash password", Err: err}
		}
		return digest, nil
	})
}
