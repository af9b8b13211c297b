package plans

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// FeatureKind identifies which member of the FeatureValue union is set.
type FeatureKind string

const (
	FeatureKindBool       FeatureKind = "boolean"
	FeatureKindNumber     FeatureKind = "number"
	FeatureKindString     FeatureKind = "string"
	FeatureKindStringList FeatureKind = "string_list"
)

// FeatureValue is a closed union over the value shapes a plan feature may take.
// The zero value has no kind and is rejected by validation.
type FeatureValue struct {
	kind FeatureKind
	b    bool
	n    float64
	s    string
	list []string
}

// FeatureMap is a plan's feature set keyed by catalog key.
type FeatureMap map[string]FeatureValue

func BoolFeature(v bool) FeatureValue {
	return FeatureValue{kind: FeatureKindBool, b: v}
}

func NumberFeature(v float64) FeatureValue {
	return FeatureValue{kind: FeatureKindNumber, n: v}
}

func StringFeature(v string) FeatureValue {
	return FeatureValue{kind: FeatureKindString, s: v}
}

func StringListFeature(v ...string) FeatureValue {
	list := make([]string, len(v))
	copy(list, v)
	return FeatureValue{kind: FeatureKindStringList, list: list}
}

func (v FeatureValue) Kind() FeatureKind { return v.kind }

func (v FeatureValue) BoolValue() (bool, bool) {
	return v.b, v.kind == FeatureKindBool
}

func (v FeatureValue) NumberValue() (float64, bool) {
	return v.n, v.kind == FeatureKindNumber
}

func (v FeatureValue) StringValue() (string, bool) {
	return v.s, v.kind == FeatureKindString
}

func (v FeatureValue) ListValue() ([]string, bool) {
	if v.kind != FeatureKindStringList {
		return nil, false
	}
	out := make([]string, len(v.list))
	copy(out, v.list)
	return out, true
}

// Equal reports whether both values have the same kind and payload.
func (v FeatureValue) Equal(other FeatureValue) bool {
	if v.kind != other.kind {
		return false
	}
	switch v.kind {
	case FeatureKindBool:
		return v.b == other.b
	case FeatureKindNumber:
		return v.n == other.n
	case FeatureKindString:
		return v.s == other.s
	case FeatureKindStringList:
		if len(v.list) != len(other.list) {
			return false
		}
		for i := range v.list {
			if v.list[i] != other.list[i] {
				return false
			}
		}
		return true
	}
	return true
}

func (v FeatureValue) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case FeatureKindBool:
		return json.Marshal(v.b)
	case FeatureKindNumber:
		return json.Marshal(v.n)
	case FeatureKindString:
		return json.Marshal(v.s)
	case FeatureKindStringList:
		if v.list == nil {
			return []byte("[]"), nil
		}
		return json.Marshal(v.list)
	}
	return nil, fmt.Errorf("feature value has no kind")
}

// UnmarshalJSON maps a JSON scalar or string array onto the union. Values are
// kept as sent: "10" stays a string and 1 never becomes true.
func (v *FeatureValue) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return fmt.Errorf("empty feature value")
	}
	switch trimmed[0] {
	case 't', 'f':
		var b bool
		if err := json.Unmarshal(trimmed, &b); err != nil {
			return err
		}
		*v = BoolFeature(b)
	case '"':
		var s string
		if err := json.Unmarshal(trimmed, &s); err != nil {
			return err
		}
		*v = StringFeature(s)
	case '[':
		var list []string
		if err := json.Unmarshal(trimmed, &list); err != nil {
			return fmt.Errorf("feature lists must contain only strings: %w", err)
		}
		*v = StringListFeature(list...)
	case 'n':
		return fmt.Errorf("feature value must not be null")
	case '{':
		return fmt.Errorf("feature value must be a boolean, number, string or string list")
	default:
		var n float64
		if err := json.Unmarshal(trimmed, &n); err != nil {
			return err
		}
		*v = NumberFeature(n)
	}
	return nil
}
