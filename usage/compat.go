package usage

import (
	"errors"
	"fmt"
	"reflect"

	"github.com/hashicorp/go-multierror"
	"github.com/mitchellh/mapstructure"
)

// ErrIncompatible is matched by every FieldError.
var ErrIncompatible = errors.New("incompatible usage value")

// FieldError reports a value that lacks one of the usage counters.
type FieldError struct {
	// Type is the Go type of the offending value.
	Type string
	// Field is the first missing counter.
	Field string
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("%s has no attribute %q", e.Type, e.Field)
}

func (e *FieldError) Unwrap() error {
	return ErrIncompatible
}

// structFields maps payload keys to the Go field names checked on structs.
var structFields = []struct {
	key   string
	field string
}{
	{FieldPromptTokens, "PromptTokens"},
	{FieldCompletionTokens, "CompletionTokens"},
	{FieldTotalTokens, "TotalTokens"},
}

// ValidateCompatible checks that v exposes the three usage counters.
// Accepted shapes are Counters implementations, maps keyed by the payload
// field names and structs with PromptTokens, CompletionTokens and
// TotalTokens fields.
func ValidateCompatible(v any) error {
	_, err := Coerce(v)
	return err
}

// Coerce converts a compatible value into a Usage. Map values are decoded
// weakly so JSON numbers and numeric strings are accepted; nil values are
// unknown.
func Coerce(v any) (Usage, error) {
	if c, ok := v.(Counters); ok {
		return Usage{prompt: c.PromptTokens(), completion: c.CompletionTokens(), total: c.TotalTokens()}, nil
	}

	rv := reflect.ValueOf(v)
	for rv.Kind() == reflect.Pointer && !rv.IsNil() {
		rv = rv.Elem()
	}

	switch {
	case rv.Kind() == reflect.Map && rv.Type().Key().Kind() == reflect.String:
		return coerceMap(v, rv)
	case rv.Kind() == reflect.Struct:
		return coerceStruct(rv)
	default:
		return Usage{}, &FieldError{Type: typeName(v), Field: FieldPromptTokens}
	}
}

// mapCounters is the decode target for usage maps.
type mapCounters struct {
	PromptTokens     *int `mapstructure:"prompt_tokens"`
	CompletionTokens *int `mapstructure:"completion_tokens"`
	TotalTokens      *int `mapstructure:"total_tokens"`
}

func coerceMap(v any, rv reflect.Value) (Usage, error) {
	for _, f := range structFields {
		if !rv.MapIndex(reflect.ValueOf(f.key).Convert(rv.Type().Key())).IsValid() {
			return Usage{}, &FieldError{Type: typeName(v), Field: f.key}
		}
	}

	counters, err := decodeCounters(rv.Interface())
	if err != nil {
		return Usage{}, err
	}
	return Usage{
		prompt:     Of(counters.PromptTokens),
		completion: Of(counters.CompletionTokens),
		total:      Of(counters.TotalTokens),
	}, nil
}

func coerceStruct(rv reflect.Value) (Usage, error) {
	counts := make([]Count, 0, len(structFields))
	for _, f := range structFields {
		fv := rv.FieldByName(f.field)
		if !fv.IsValid() {
			return Usage{}, &FieldError{Type: rv.Type().String(), Field: f.key}
		}
		c, err := countFromValue(fv)
		if err != nil {
			return Usage{}, fmt.Errorf("field %s: %w", f.field, err)
		}
		counts = append(counts, c)
	}
	return Usage{prompt: counts[0], completion: counts[1], total: counts[2]}, nil
}

// countFromValue reads an integer-like struct field.
func countFromValue(fv reflect.Value) (Count, error) {
	if c, ok := fv.Interface().(Count); ok {
		return c, nil
	}
	if fv.Kind() == reflect.Pointer {
		if fv.IsNil() {
			return Unknown(), nil
		}
		fv = fv.Elem()
	}
	var n int
	if err := mapstructure.WeakDecode(fv.Interface(), &n); err != nil {
		return Unknown(), err
	}
	return Known(n), nil
}

func decodeCounters(input any) (mapCounters, error) {
	var out mapCounters
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &out,
		WeaklyTypedInput: true,
		TagName:          "mapstructure",
	})
	if err != nil {
		return out, err
	}
	if err := decoder.Decode(input); err != nil {
		return out, fmt.Errorf("decode usage fields: %w", err)
	}
	return out, nil
}

// FromFields builds the per-sample usage from a post-processor's usage
// mapping. Missing or nil prompt and completion counts are zero; a missing
// total is derived from the other two. Each key is decoded on its own: a
// value that cannot be read as an integer is reported in the returned error
// while the counters that did decode are still set.
func FromFields(fields map[string]any) (Usage, error) {
	var errs *multierror.Error
	counts := make(map[string]*int, len(structFields))
	for _, f := range structFields {
		v, ok := fields[f.key]
		if !ok || v == nil {
			continue
		}
		var n int
		if err := mapstructure.WeakDecode(v, &n); err != nil {
			errs = multierror.Append(errs, fmt.Errorf("usage field %s: %w", f.key, err))
			continue
		}
		counts[f.key] = &n
	}

	zero := 0
	prompt, completion := counts[FieldPromptTokens], counts[FieldCompletionTokens]
	if prompt == nil {
		prompt = &zero
	}
	if completion == nil {
		completion = &zero
	}
	return FromInts(prompt, completion, counts[FieldTotalTokens]), errs.ErrorOrNil()
}

func typeName(v any) string {
	if v == nil {
		return "nil"
	}
	return reflect.TypeOf(v).String()
}
