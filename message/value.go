package message

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math/big"
	"strings"
)

// Value is a tagged field value. The zero Value is invalid and reported as a
// missing field by Build.
type Value struct {
	tag  TypeTag
	str  string
	raw  []byte
	num  *big.Int
	flag bool
}

// Fields carries caller input keyed by field name. Order comes from the
// schema, never from the map.
type Fields map[string]Value

func String(s string) Value { return Value{tag: TagString, str: s} }

// Bytes copies b into a byte-array value.
func Bytes(b []byte) Value {
	out := make([]byte, len(b))
	copy(out, b)
	return Value{tag: TagBytes, raw: out}
}

func Uint64(v uint64) Value { return Value{tag: TagUint, num: new(big.Int).SetUint64(v)} }

// Int64 admits negative input so that range checks can reject it.
func Int64(v int64) Value { return Value{tag: TagUint, num: big.NewInt(v)} }

// BigUint copies v. A nil v is treated as zero.
func BigUint(v *big.Int) Value {
	n := new(big.Int)
	if v != nil {
		n.Set(v)
	}
	return Value{tag: TagUint, num: n}
}

func Bool(v bool) Value { return Value{tag: TagBool, flag: v} }

// Tag reports the value's variant.
func (v Value) Tag() TypeTag { return v.tag }

// IsZero reports whether v was never assigned.
func (v Value) IsZero() bool { return v.tag == 0 }

// Str returns the string payload.
func (v Value) Str() string { return v.str }

// Raw returns a copy of the byte payload.
func (v Value) Raw() []byte {
	out := make([]byte, len(v.raw))
	copy(out, v.raw)
	return out
}

// Big returns a copy of the integer payload.
func (v Value) Big() *big.Int {
	if v.num == nil {
		return new(big.Int)
	}
	return new(big.Int).Set(v.num)
}

// Uint64 returns the integer payload truncated to 64 bits. Callers should
// only use it for fields declared u64 or narrower.
func (v Value) Uint64() uint64 {
	if v.num == nil {
		return 0
	}
	return v.num.Uint64()
}

// Flag returns the bool payload.
func (v Value) Flag() bool { return v.flag }

// Equal reports whether two values have the same variant and payload.
func (v Value) Equal(o Value) bool {
	if v.tag != o.tag {
		return false
	}
	switch v.tag {
	case TagString:
		return v.str == o.str
	case TagBytes:
		return bytes.Equal(v.raw, o.raw)
	case TagUint:
		return v.Big().Cmp(o.Big()) == 0
	case TagBool:
		return v.flag == o.flag
	default:
		return true
	}
}

func (v Value) String() string {
	switch v.tag {
	case TagString:
		return v.str
	case TagBytes:
		return hex.EncodeToString(v.raw)
	case TagUint:
		return v.Big().String()
	case TagBool:
		if v.flag {
			return "true"
		}
		return "false"
	default:
		return "<unset>"
	}
}

// MarshalJSON renders integers as decimal strings and bytes as lowercase hex
// without a 0x prefix.
func (v Value) MarshalJSON() ([]byte, error) {
	switch v.tag {
	case TagBool:
		return json.Marshal(v.flag)
	case 0:
		return []byte("null"), nil
	default:
		return json.Marshal(v.String())
	}
}

// DecodeValue parses a JSON value according to the declared field type.
func DecodeValue(t FieldType, raw json.RawMessage) (Value, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return Value{}, ErrMissingField
	}
	switch t.Tag {
	case TagString:
		var s string
		if err := json.Unmarshal(trimmed, &s); err != nil {
			return Value{}, fmt.Errorf("%w: expected string", ErrFieldType)
		}
		return String(s), nil
	case TagBytes:
		var s string
		if err := json.Unmarshal(trimmed, &s); err != nil {
			return Value{}, fmt.Errorf("%w: expected hex string", ErrFieldType)
		}
		b, err := hex.DecodeString(strings.TrimPrefix(s, "0x"))
		if err != nil {
			return Value{}, fmt.Errorf("%w: %v", ErrFieldType, err)
		}
		return Bytes(b), nil
	case TagUint:
		text := string(trimmed)
		if trimmed[0] == '"' {
			if err := json.Unmarshal(trimmed, &text); err != nil {
				return Value{}, fmt.Errorf("%w: expected integer", ErrFieldType)
			}
		}
		n, ok := new(big.Int).SetString(strings.TrimSpace(text), 10)
		if !ok {
			return Value{}, fmt.Errorf("%w: expected decimal integer", ErrFieldType)
		}
		return BigUint(n), nil
	case TagBool:
		var b bool
		if err := json.Unmarshal(trimmed, &b); err != nil {
			return Value{}, fmt.Errorf("%w: expected boolean", ErrFieldType)
		}
		return Bool(b), nil
	default:
		return Value{}, fmt.Errorf("%w: unsupported type", ErrFieldType)
	}
}

// DecodeFieldsJSON maps API input onto the kind's schema. The discriminant may
// be omitted. Range checks are left to Build.
func DecodeFieldsJSON(kind Kind, raw map[string]json.RawMessage) (Fields, error) {
	schema, err := SchemaFor(kind)
	if err != nil {
		return nil, err
	}
	types := make(map[string]FieldType, len(schema))
	for _, f := range schema {
		types[f.Name] = f.Type
	}
	out := make(Fields, len(raw))
	for name, value := range raw {
		t, ok := types[name]
		if !ok {
			return nil, &FieldError{Field: name, Err: ErrUnknownField}
		}
		decoded, err := DecodeValue(t, value)
		if err != nil {
			return nil, &FieldError{Field: name, Err: err}
		}
		out[name] = decoded
	}
	return out, nil
}
