package entitlement

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Unlimited is the sole "no cap" sentinel for limit values.
const Unlimited int64 = -1

type valueKind uint8

const (
	kindAbsent valueKind = iota
	kindBoolean
	kindLimit
	kindUnlimited
)

// Value is a decoded plan limit, override or allocation value.
// It is exactly one of: absent (zero value), a boolean flag, a
// non-negative limit, or unlimited.
type Value struct {
	kind valueKind
	flag bool
	n    int64
}

// Absent returns the value of a feature that is not granted at all.
func Absent() Value { return Value{} }

// Bool returns a boolean flag value.
func Bool(b bool) Value { return Value{kind: kindBoolean, flag: b} }

// UnlimitedValue returns the unlimited value.
func UnlimitedValue() Value { return Value{kind: kindUnlimited} }

// Limit returns a numeric limit value. Unlimited (-1) yields the unlimited
// value; anything below -1 is not a valid limit and yields an absent value.
func Limit(n int64) Value {
	switch {
	case n == Unlimited:
		return UnlimitedValue()
	case n < 0:
		return Absent()
	default:
		return Value{kind: kindLimit, n: n}
	}
}

// ParseValue decodes the stored string form: "true", "false", a
// non-negative integer, "-1" or "unlimited".
func ParseValue(raw string) (Value, error) {
	s := strings.ToLower(strings.TrimSpace(raw))
	switch s {
	case "":
		return Absent(), errors.Join(ErrInvalidValue, errors.New("empty value"))
	case "true":
		return Bool(true), nil
	case "false":
		return Bool(false), nil
	case "unlimited":
		return UnlimitedValue(), nil
	}

	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return Absent(), errors.Join(ErrInvalidValue, fmt.Errorf("value %q", raw), err)
	}
	if n < Unlimited {
		return Absent(), errors.Join(ErrInvalidValue, fmt.Errorf("negative limit %d", n))
	}
	return Limit(n), nil
}

// MustParseValue is like ParseValue but panics on error. Intended for fixtures.
func MustParseValue(raw string) Value {
	v, err := ParseValue(raw)
	if err != nil {
		panic(err)
	}
	return v
}

func (v Value) IsAbsent() bool    { return v.kind == kindAbsent }
func (v Value) IsBoolean() bool   { return v.kind == kindBoolean }
func (v Value) IsLimit() bool     { return v.kind == kindLimit }
func (v Value) IsUnlimited() bool { return v.kind == kindUnlimited }

// Enabled reports whether the value grants anything: a true flag, a
// non-zero limit or unlimited.
func (v Value) Enabled() bool {
	switch v.kind {
	case kindBoolean:
		return v.flag
	case kindLimit:
		return v.n != 0
	case kindUnlimited:
		return true
	default:
		return false
	}
}

// Int returns the numeric form: the limit, or Unlimited.
// Booleans and absent values report false.
func (v Value) Int() (int64, bool) {
	switch v.kind {
	case kindLimit:
		return v.n, true
	case kindUnlimited:
		return Unlimited, true
	default:
		return 0, false
	}
}

// String returns the storage encoding. Absent values encode as "".
func (v Value) String() string {
	switch v.kind {
	case kindBoolean:
		return strconv.FormatBool(v.flag)
	case kindLimit:
		return strconv.FormatInt(v.n, 10)
	case kindUnlimited:
		return strconv.FormatInt(Unlimited, 10)
	default:
		return ""
	}
}

// normalize coerces the value to the shape expected by the feature type.
// Boolean features become a flag; for limit features "true" means
// unlimited and "false" means not granted.
func (v Value) normalize(t Type) Value {
	if v.IsAbsent() {
		return v
	}
	if t == TypeBoolean {
		return Bool(v.Enabled())
	}
	if v.IsBoolean() {
		if v.flag {
			return UnlimitedValue()
		}
		return Absent()
	}
	return v
}

// MarshalJSON encodes absent as null, flags as booleans and limits as numbers.
func (v Value) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case kindBoolean:
		return json.Marshal(v.flag)
	case kindLimit, kindUnlimited:
		n, _ := v.Int()
		return json.Marshal(n)
	default:
		return []byte("null"), nil
	}
}

// UnmarshalJSON accepts null, booleans, numbers and the string encoding.
func (v *Value) UnmarshalJSON(data []byte) error {
	raw := strings.TrimSpace(string(data))
	if raw == "null" {
		*v = Absent()
		return nil
	}
	if unquoted, err := strconv.Unquote(raw); err == nil {
		raw = unquoted
	}
	parsed, err := ParseValue(raw)
	if err != nil {
		return err
	}
	*v = parsed
	return nil
}
