// Package config resolves and validates per-layer shader configuration.
package config

import (
	"fmt"
	"math"
	"sort"
	"strings"

	colorful "github.com/lucasb-eyer/go-colorful"
)

// Values is one layer's configuration, keyed by field name.
type Values map[string]any

// FieldType is the declared type of a schema field.
type FieldType string

const (
	Number  FieldType = "number"
	Color   FieldType = "color"
	Boolean FieldType = "boolean"
	String  FieldType = "string"
	Array   FieldType = "array"
	Select  FieldType = "select"
)

// Field declares one configurable value. Min, Max and Step apply to
// numbers; Step is a UI hint and is not enforced. Options lists the allowed
// values of a select field.
type Field struct {
	Type    FieldType
	Min     *float64
	Max     *float64
	Step    *float64
	Options []any
	Label   string
}

// Schema maps field names to their declarations.
type Schema map[string]Field

// Bound is a convenience for building Min/Max/Step pointers.
func Bound(v float64) *float64 { return &v }

// FieldError describes one invalid field.
type FieldError struct {
	Field   string
	Message string
	Value   any
}

func (e FieldError) String() string {
	return fmt.Sprintf("%s: %s (got %v)", e.Field, e.Message, e.Value)
}

// Result is the outcome of Validate.
type Result struct {
	Valid  bool
	Errors []FieldError
}

// InvalidConfigError carries every field error of a failed validation.
type InvalidConfigError struct {
	Shader string
	Errors []FieldError
}

func (e *InvalidConfigError) Error() string {
	parts := make([]string, len(e.Errors))
	for i, fe := range e.Errors {
		parts[i] = fe.String()
	}
	if e.Shader != "" {
		return fmt.Sprintf("invalid config for shader %q: %s", e.Shader, strings.Join(parts, "; "))
	}
	return "invalid config: " + strings.Join(parts, "; ")
}

// Resolve merges user over defaults into a new map. Nil user values are
// ignored. defaults is never mutated.
func Resolve(defaults, user Values) Values {
	out := make(Values, len(defaults)+len(user))
	for k, v := range defaults {
		out[k] = clone(v)
	}
	for k, v := range user {
		if v == nil {
			continue
		}
		out[k] = clone(v)
	}
	return out
}

func clone(v any) any {
	switch t := v.(type) {
	case []any:
		return append([]any(nil), t...)
	case []float64:
		return append([]float64(nil), t...)
	case []float32:
		return append([]float32(nil), t...)
	case map[string]any:
		m := make(map[string]any, len(t))
		for k, x := range t {
			m[k] = clone(x)
		}
		return m
	default:
		return v
	}
}

// Validate checks values against schema and reports every violation,
// ordered by field name. Fields absent from values, and values absent from
// the schema, are not errors.
func Validate(values Values, schema Schema) Result {
	names := make([]string, 0, len(schema))
	for name := range schema {
		names = append(names, name)
	}
	sort.Strings(names)

	var errs []FieldError
	for _, name := range names {
		v, ok := values[name]
		if !ok || v == nil {
			continue
		}
		if msg := validateField(schema[name], v); msg != "" {
			errs = append(errs, FieldError{Field: name, Message: msg, Value: v})
		}
	}
	return Result{Valid: len(errs) == 0, Errors: errs}
}

func validateField(f Field, v any) string {
	switch f.Type {
	case Number:
		n, ok := ToFloat(v)
		if !ok {
			return "must be a number"
		}
		if math.IsNaN(n) || math.IsInf(n, 0) {
			return "must be a finite number"
		}
		if f.Min != nil && n < *f.Min {
			return fmt.Sprintf("must be >= %v", *f.Min)
		}
		if f.Max != nil && n > *f.Max {
			return fmt.Sprintf("must be <= %v", *f.Max)
		}
	case Color:
		if _, err := ColorVec4(v); err != nil {
			return err.Error()
		}
	case Boolean:
		if _, ok := v.(bool); !ok {
			return "must be a boolean"
		}
	case String:
		if _, ok := v.(string); !ok {
			return "must be a string"
		}
	case Array:
		if !isArray(v) {
			return "must be an array"
		}
	case Select:
		for _, opt := range f.Options {
			if equalOption(opt, v) {
				return ""
			}
		}
		return fmt.Sprintf("must be one of %v", f.Options)
	}
	return ""
}

func equalOption(opt, v any) bool {
	if a, ok := ToFloat(opt); ok {
		b, ok := ToFloat(v)
		return ok && a == b
	}
	return opt == v
}

// ToFloat converts the numeric kinds found in decoded configs to float64.
func ToFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	default:
		return 0, false
	}
}

func isArray(v any) bool {
	switch v.(type) {
	case []float64, []float32, []any:
		return true
	}
	return false
}

// toFloats returns the components of a numeric array. It reports false for
// non-arrays and for arrays holding any non-numeric element.
func toFloats(v any) ([]float64, bool) {
	switch s := v.(type) {
	case []float64:
		return s, true
	case []float32:
		out := make([]float64, len(s))
		for i, x := range s {
			out[i] = float64(x)
		}
		return out, true
	case []any:
		out := make([]float64, 0, len(s))
		for _, x := range s {
			n, ok := ToFloat(x)
			if !ok {
				return nil, false
			}
			out = append(out, n)
		}
		return out, true
	default:
		return nil, false
	}
}

// ColorVec4 converts a color config value to sRGB RGBA components in [0,1].
// Accepted forms are hex strings (#rgb, #rrggbb, #rrggbbaa) and numeric
// arrays of 3 or 4 components in [0,1].
func ColorVec4(v any) ([4]float32, error) {
	switch c := v.(type) {
	case string:
		return parseHex(c)
	case [4]float32:
		return c, nil
	case [3]float32:
		return [4]float32{c[0], c[1], c[2], 1}, nil
	}
	comps, ok := toFloats(v)
	if !ok || (len(comps) != 3 && len(comps) != 4) {
		return [4]float32{}, fmt.Errorf("must be a hex color or an array of 3 or 4 components")
	}
	out := [4]float32{0, 0, 0, 1}
	for i, x := range comps {
		if math.IsNaN(x) || x < 0 || x > 1 {
			return [4]float32{}, fmt.Errorf("color components must be within [0,1]")
		}
		out[i] = float32(x)
	}
	return out, nil
}

func parseHex(s string) ([4]float32, error) {
	s = strings.TrimSpace(s)
	alpha := 1.0
	if len(s) == 9 && strings.HasPrefix(s, "#") {
		var a uint8
		if _, err := fmt.Sscanf(s[7:], "%02x", &a); err != nil {
			return [4]float32{}, fmt.Errorf("invalid hex color %q", s)
		}
		alpha = float64(a) / 255
		s = s[:7]
	}
	c, err := colorful.Hex(s)
	if err != nil {
		return [4]float32{}, fmt.Errorf("invalid hex color %q", s)
	}
	return [4]float32{float32(c.R), float32(c.G), float32(c.B), float32(alpha)}, nil
}
