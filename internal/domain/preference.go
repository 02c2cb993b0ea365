package domain

import (
	"strconv"
)

// PreferenceKind is the type tag of a preference value. The wiki platform
// stores preferences as loosely typed scalars, the remote property store only
// knows strings. The explicit tag makes the normalization rules testable.
type PreferenceKind int

const (
	KindNull PreferenceKind = iota
	KindString
	KindInt
	KindFloat
	KindBool
)

// PreferenceValue is a tagged scalar preference value.
type PreferenceValue struct {
	Kind PreferenceKind

	StringVal string
	IntVal    int64
	FloatVal  float64
	BoolVal   bool
}

func NullValue() PreferenceValue {
	return PreferenceValue{Kind: KindNull}
}

func StringValue(v string) PreferenceValue {
	return PreferenceValue{Kind: KindString, StringVal: v}
}

func IntValue(v int64) PreferenceValue {
	return PreferenceValue{Kind: KindInt, IntVal: v}
}

func FloatValue(v float64) PreferenceValue {
	return PreferenceValue{Kind: KindFloat, FloatVal: v}
}

func BoolValue(v bool) PreferenceValue {
	return PreferenceValue{Kind: KindBool, BoolVal: v}
}

// Normalize converts the value to its canonical remote string representation.
// Integers and floats become decimal strings, booleans become "1" or "0" and
// null becomes the empty string.
func (v PreferenceValue) Normalize() string {
	switch v.Kind {
	case KindString:
		return v.StringVal
	case KindInt:
		return strconv.FormatInt(v.IntVal, 10)
	case KindFloat:
		return strconv.FormatFloat(v.FloatVal, 'f', -1, 64)
	case KindBool:
		if v.BoolVal {
			return "1"
		}
		return "0"
	default:
		return ""
	}
}

// NormalizeAsDefault converts a default value to the canonical string it must
// be compared against, given the incoming candidate value. A null default
// paired with a boolean candidate normalizes to "0": an unchecked checkbox
// reports false, not null, so the comparison baseline has to match that.
func (v PreferenceValue) NormalizeAsDefault(incoming PreferenceValue) string {
	if v.Kind == KindNull {
		if incoming.Kind == KindBool {
			return "0"
		}
		return ""
	}
	return v.Normalize()
}

// IsZero returns true for the null value and for empty strings and false
// booleans. Settings with zero values are treated as deletion requests.
func (v PreferenceValue) IsZero() bool {
	switch v.Kind {
	case KindNull:
		return true
	case KindString:
		return v.StringVal == ""
	case KindBool:
		return !v.BoolVal
	default:
		return false
	}
}

// DefaultPreferences is the platform-defined default value table. It is only
// consulted to decide whether a value is noteworthy enough to persist
// remotely; keys missing from the table default to null.
type DefaultPreferences map[string]PreferenceValue

// Get returns the default for the given preference key, or the null value.
func (d DefaultPreferences) Get(key string) PreferenceValue {
	if v, ok := d[key]; ok {
		return v
	}
	return NullValue()
}

// DefaultPreferencesFromConfig converts a raw scalar map, as decoded from
// the YAML configuration, into the typed default table. Unsupported value
// types collapse to the null value.
func DefaultPreferencesFromConfig(raw map[string]any) DefaultPreferences {
	defaults := make(DefaultPreferences, len(raw))
	for key, value := range raw {
		switch v := value.(type) {
		case string:
			defaults[key] = StringValue(v)
		case int:
			defaults[key] = IntValue(int64(v))
		case int64:
			defaults[key] = IntValue(v)
		case float64:
			defaults[key] = FloatValue(v)
		case bool:
			defaults[key] = BoolValue(v)
		default:
			defaults[key] = NullValue()
		}
	}
	return defaults
}

// ParseBoolProperty interprets a remote property value as a boolean flag.
// Values are written canonically as "1"/"0", but older consumers of the same
// property store also used "true"/"false".
func ParseBoolProperty(raw string) bool {
	switch raw {
	case "1", "true", "True":
		return true
	default:
		return false
	}
}
