package catalog

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// ValueKind is the concrete kind of a bound parameter value.
type ValueKind string

const (
	ValueArtifact ValueKind = "artifact"
	ValueInteger  ValueKind = "integer"
	ValueFloat    ValueKind = "float"
	ValueString   ValueKind = "string"
	ValueBoolean  ValueKind = "boolean"
)

// Value is a strongly typed parameter value. The zero Value is invalid.
type Value struct {
	kind ValueKind
	i    int64
	f    float64
	s    string
	b    bool
}

// ArtifactValue references an artifact by id.
func ArtifactValue(id int64) Value { return Value{kind: ValueArtifact, i: id} }

// IntegerValue wraps an integer.
func IntegerValue(v int64) Value { return Value{kind: ValueInteger, i: v} }

// FloatValue wraps a float.
func FloatValue(v float64) Value { return Value{kind: ValueFloat, f: v} }

// StringValue wraps a string.
func StringValue(v string) Value { return Value{kind: ValueString, s: v} }

// BooleanValue wraps a boolean.
func BooleanValue(v bool) Value { return Value{kind: ValueBoolean, b: v} }

// Kind returns the value kind.
func (v Value) Kind() ValueKind { return v.kind }

// IsZero reports whether v was never assigned.
func (v Value) IsZero() bool { return v.kind == "" }

// ArtifactID returns the referenced artifact id.
func (v Value) ArtifactID() (int64, bool) { return v.i, v.kind == ValueArtifact }

// Integer returns the integer payload.
func (v Value) Integer() (int64, bool) { return v.i, v.kind == ValueInteger }

// Float returns the float payload.
func (v Value) Float() (float64, bool) { return v.f, v.kind == ValueFloat }

// Str returns the string payload.
func (v Value) Str() (string, bool) { return v.s, v.kind == ValueString }

// Boolean returns the boolean payload.
func (v Value) Boolean() (bool, bool) { return v.b, v.kind == ValueBoolean }

// String renders the value for display and logs.
func (v Value) String() string {
	switch v.kind {
	case ValueArtifact:
		return fmt.Sprintf("artifact:%d", v.i)
	case ValueInteger:
		return strconv.FormatInt(v.i, 10)
	case ValueFloat:
		return strconv.FormatFloat(v.f, 'g', -1, 64)
	case ValueString:
		return v.s
	case ValueBoolean:
		return strconv.FormatBool(v.b)
	default:
		return "<unset>"
	}
}

// Matches reports whether the value may be bound to a parameter of type t.
func (v Value) Matches(t ParameterType) bool {
	if t.IsArtifact() {
		return v.kind == ValueArtifact
	}
	return string(v.kind) == string(t.Primitive())
}

type valueJSON struct {
	Type  ValueKind       `json:"type"`
	Value json.RawMessage `json:"value"`
}

// MarshalJSON encodes the value as {"type": kind, "value": payload}.
func (v Value) MarshalJSON() ([]byte, error) {
	var payload any
	switch v.kind {
	case ValueArtifact, ValueInteger:
		payload = v.i
	case ValueFloat:
		payload = v.f
	case ValueString:
		payload = v.s
	case ValueBoolean:
		payload = v.b
	default:
		return nil, fmt.Errorf("marshal unset value")
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(valueJSON{Type: v.kind, Value: raw})
}

// UnmarshalJSON decodes the representation produced by MarshalJSON.
func (v *Value) UnmarshalJSON(data []byte) error {
	var raw valueJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	out := Value{kind: raw.Type}
	var err error
	switch raw.Type {
	case ValueArtifact, ValueInteger:
		err = json.Unmarshal(raw.Value, &out.i)
	case ValueFloat:
		err = json.Unmarshal(raw.Value, &out.f)
	case ValueString:
		err = json.Unmarshal(raw.Value, &out.s)
	case ValueBoolean:
		err = json.Unmarshal(raw.Value, &out.b)
	default:
		return fmt.Errorf("unknown value type %q", raw.Type)
	}
	if err != nil {
		return fmt.Errorf("decode %s value: %w", raw.Type, err)
	}
	*v = out
	return nil
}

// ParseValue converts text into a value of the given primitive kind.
func ParseValue(kind PrimitiveKind, text string) (Value, error) {
	text = strings.TrimSpace(text)
	switch kind {
	case KindInteger:
		i, err := strconv.ParseInt(text, 10, 64)
		if err != nil {
			return Value{}, fmt.Errorf("%w: %q is not an integer", ErrValueType, text)
		}
		return IntegerValue(i), nil
	case KindFloat:
		f, err := strconv.ParseFloat(text, 64)
		if err != nil {
			return Value{}, fmt.Errorf("%w: %q is not a float", ErrValueType, text)
		}
		return FloatValue(f), nil
	case KindBoolean:
		b, err := strconv.ParseBool(text)
		if err != nil {
			return Value{}, fmt.Errorf("%w: %q is not a boolean", ErrValueType, text)
		}
		return BooleanValue(b), nil
	case KindString:
		return StringValue(text), nil
	default:
		return Value{}, fmt.Errorf("%w: unknown primitive kind %q", ErrValueType, kind)
	}
}

// Binding maps parameter names to concrete values.
type Binding map[string]Value

// Names returns the bound parameter names in sorted order.
func (b Binding) Names() []string {
	names := make([]string, 0, len(b))
	for n := range b {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// ArtifactIDs returns the artifact ids referenced by the binding, ordered by
// parameter name.
func (b Binding) ArtifactIDs() []int64 {
	var ids []int64
	for _, n := range b.Names() {
		if id, ok := b[n].ArtifactID(); ok {
			ids = append(ids, id)
		}
	}
	return ids
}
