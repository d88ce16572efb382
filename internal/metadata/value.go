package metadata

import (
	"bytes"
	"encoding/json"
	"fmt"
	"slices"
	"strconv"
	"strings"
)

// Value is a field value. Exactly one of Text, List or Number is meaningful
// for a given field; the field decides which.
type Value struct {
	Text   string
	List   []string
	Number *float64
}

func TextValue(s string) Value { return Value{Text: s} }

func ListValue(items []string) Value {
	if items == nil {
		items = []string{}
	}
	return Value{List: slices.Clone(items)}
}

func NumberValue(n float64) Value { return Value{Number: &n} }

// IsEmpty reports whether the value carries no data. Blank text and empty
// lists are empty; any number, including zero, is present.
func (v Value) IsEmpty() bool {
	if v.Number != nil {
		return false
	}
	if len(v.List) > 0 {
		for _, item := range v.List {
			if strings.TrimSpace(item) != "" {
				return false
			}
		}
		return true
	}
	return strings.TrimSpace(v.Text) == ""
}

// Equal reports exact equality of two values.
func (v Value) Equal(other Value) bool {
	switch {
	case v.Number != nil || other.Number != nil:
		return v.Number != nil && other.Number != nil && *v.Number == *other.Number
	case v.List != nil || other.List != nil:
		return slices.Equal(v.List, other.List)
	default:
		return v.Text == other.Text
	}
}

// Clone returns a deep copy.
func (v Value) Clone() Value {
	out := Value{Text: v.Text}
	if v.List != nil {
		out.List = slices.Clone(v.List)
	}
	if v.Number != nil {
		n := *v.Number
		out.Number = &n
	}
	return out
}

// String renders the value for reports and logs.
func (v Value) String() string {
	switch {
	case v.Number != nil:
		return strconv.FormatFloat(*v.Number, 'f', -1, 64)
	case v.IsEmpty():
		return "(empty)"
	case v.List != nil:
		return strings.Join(v.List, ", ")
	default:
		return v.Text
	}
}

// MarshalJSON encodes the value as a JSON string, array, number or null.
func (v Value) MarshalJSON() ([]byte, error) {
	switch {
	case v.Number != nil:
		return json.Marshal(*v.Number)
	case v.List != nil:
		return json.Marshal(v.List)
	case v.Text != "":
		return json.Marshal(v.Text)
	default:
		return []byte("null"), nil
	}
}

// UnmarshalJSON accepts a JSON string, array of strings, number or null.
func (v *Value) UnmarshalJSON(data []byte) error {
	*v = Value{}
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil
	}
	switch trimmed[0] {
	case '"':
		return json.Unmarshal(trimmed, &v.Text)
	case '[':
		var items []string
		if err := json.Unmarshal(trimmed, &items); err != nil {
			return err
		}
		*v = ListValue(items)
		return nil
	default:
		var n float64
		if err := json.Unmarshal(trimmed, &n); err != nil {
			return fmt.Errorf("decode metadata value: %w", err)
		}
		v.Number = &n
		return nil
	}
}

// MarshalYAML renders values the same way as JSON.
func (v Value) MarshalYAML() (any, error) {
	switch {
	case v.Number != nil:
		return *v.Number, nil
	case v.List != nil:
		return v.List, nil
	case v.Text != "":
		return v.Text, nil
	default:
		return nil, nil
	}
}
