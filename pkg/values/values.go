// Package values converts between the runtime's typed value model (cty) and
// JSON-shaped dynamic values. Primitive numerics map to JSON numbers, bool
// to bool, char/string to string, lists and tuples to arrays, records to
// objects keyed by field name, and option to null-or-inner. The same shapes
// are accepted on input.
package values

import (
	"github.com/davidthor/pypes/pkg/errors"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/convert"
	ctyjson "github.com/zclconf/go-cty/cty/json"
)

// ToJSON encodes a typed value as JSON.
func ToJSON(v cty.Value) ([]byte, error) {
	data, err := ctyjson.Marshal(v, v.Type())
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeUnsupportedType, "cannot encode value as JSON", err)
	}
	return data, nil
}

// FromJSON decodes JSON into a value of the given type. The dynamic
// pseudo-type accepts any JSON shape; concrete types attempt conversion
// before failing.
func FromJSON(data []byte, ty cty.Type) (cty.Value, error) {
	if ty == cty.NilType || ty == cty.DynamicPseudoType {
		implied, err := ctyjson.ImpliedType(data)
		if err != nil {
			return cty.NilVal, errors.Wrap(errors.ErrCodeArgTypeMismatch, "cannot decode JSON value", err)
		}
		ty = implied
	}

	v, err := ctyjson.Unmarshal(data, ty)
	if err == nil {
		return v, nil
	}

	// Shapes that don't decode directly may still convert: a JSON number
	// into a string slot, a tuple into a list, and so on.
	implied, impliedErr := ctyjson.ImpliedType(data)
	if impliedErr == nil {
		if raw, rawErr := ctyjson.Unmarshal(data, implied); rawErr == nil {
			if converted, convErr := convert.Convert(raw, ty); convErr == nil {
				return converted, nil
			}
		}
	}

	return cty.NilVal, errors.Wrap(errors.ErrCodeArgTypeMismatch,
		"JSON value does not fit the target type", err)
}

// EncodeArgs encodes an argument vector as a JSON array.
func EncodeArgs(args []cty.Value) ([]byte, error) {
	elems := make([]cty.Value, len(args))
	copy(elems, args)
	if len(elems) == 0 {
		return []byte("[]"), nil
	}
	return ToJSON(cty.TupleVal(elems))
}

// DecodeResults decodes a JSON array into a result vector typed by the
// declared result list. Extra declared types beyond the array's length
// yield null values.
func DecodeResults(data []byte, types []cty.Type) ([]cty.Value, error) {
	if len(types) == 0 {
		return nil, nil
	}

	implied, err := ctyjson.ImpliedType(data)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeArgTypeMismatch, "cannot decode result array", err)
	}
	raw, err := ctyjson.Unmarshal(data, implied)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeArgTypeMismatch, "cannot decode result array", err)
	}
	if !raw.Type().IsTupleType() && !raw.Type().IsListType() {
		return nil, errors.New(errors.ErrCodeArgTypeMismatch, "result payload is not an array")
	}

	elems := raw.AsValueSlice()
	results := make([]cty.Value, len(types))
	for i, ty := range types {
		if i >= len(elems) {
			results[i] = cty.NullVal(ty)
			continue
		}
		elem := elems[i]
		if ty != cty.DynamicPseudoType {
			converted, convErr := convert.Convert(elem, ty)
			if convErr != nil {
				return nil, errors.Wrap(errors.ErrCodeArgTypeMismatch,
					"result value does not fit declared type", convErr)
			}
			elem = converted
		}
		results[i] = elem
	}
	return results, nil
}
