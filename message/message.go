package message

import (
	"errors"
	"fmt"
	"math/big"
	"unicode/utf8"
)

// Construction errors. They indicate a bug at the call site and are never
// worth retrying.
var (
	ErrMissingField         = errors.New("missing field")
	ErrUnknownField         = errors.New("unknown field")
	ErrFieldType            = errors.New("field type mismatch")
	ErrInvalidFieldWidth    = errors.New("invalid field width")
	ErrIntegerOutOfRange    = errors.New("integer out of range")
	ErrDiscriminantMismatch = errors.New("discriminant mismatch")
)

// FieldError ties a construction error to the offending field.
type FieldError struct {
	Field string
	Err   error
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("message: field %q: %v", e.Field, e.Err)
}

func (e *FieldError) Unwrap() error { return e.Err }

// CanonicalMessage is a validated message whose values sit in schema order.
// It is never mutated after Build returns.
type CanonicalMessage struct {
	kind   Kind
	schema []FieldSpec
	values []Value
}

// Build validates fields against the kind's schema and returns the canonical
// message. The discriminant may be omitted and is then filled in.
func Build(kind Kind, fields Fields) (*CanonicalMessage, error) {
	schema, err := SchemaFor(kind)
	if err != nil {
		return nil, err
	}
	known := make(map[string]struct{}, len(schema))
	values := make([]Value, len(schema))
	for i, spec := range schema {
		known[spec.Name] = struct{}{}
		v, ok := fields[spec.Name]
		if spec.Role == RoleDiscriminant {
			if !ok || v.IsZero() {
				values[i] = String(kind.Discriminant())
				continue
			}
			if v.tag != TagString || v.str != kind.Discriminant() {
				return nil, &FieldError{Field: spec.Name, Err: fmt.Errorf("%w: want %q", ErrDiscriminantMismatch, kind.Discriminant())}
			}
			values[i] = v
			continue
		}
		if !ok || v.IsZero() {
			return nil, &FieldError{Field: spec.Name, Err: ErrMissingField}
		}
		if err := checkValue(spec.Type, v); err != nil {
			return nil, &FieldError{Field: spec.Name, Err: err}
		}
		values[i] = copyValue(v)
	}
	for name := range fields {
		if _, ok := known[name]; !ok {
			return nil, &FieldError{Field: name, Err: ErrUnknownField}
		}
	}
	return &CanonicalMessage{kind: kind, schema: schema, values: values}, nil
}

// Validate reports whether v is an admissible value of type t.
func (t FieldType) Validate(v Value) error { return checkValue(t, v) }

func checkValue(t FieldType, v Value) error {
	if v.tag != t.Tag {
		return fmt.Errorf("%w: want %s", ErrFieldType, t)
	}
	switch t.Tag {
	case TagString:
		if !utf8.ValidString(v.str) {
			return fmt.Errorf("%w: string is not valid UTF-8", ErrFieldType)
		}
	case TagBytes:
		if len(v.raw) != t.Size {
			return fmt.Errorf("%w: want %d bytes, got %d", ErrInvalidFieldWidth, t.Size, len(v.raw))
		}
	case TagUint:
		n := v.Big()
		if n.Sign() < 0 || n.BitLen() > t.Size {
			return fmt.Errorf("%w: %s does not fit u%d", ErrIntegerOutOfRange, n, t.Size)
		}
	}
	return nil
}

func copyValue(v Value) Value {
	switch v.tag {
	case TagBytes:
		return Bytes(v.raw)
	case TagUint:
		return BigUint(v.num)
	default:
		return v
	}
}

// Kind returns the message kind.
func (m *CanonicalMessage) Kind() Kind { return m.kind }

// Schema returns a copy of the field list the message was built against.
func (m *CanonicalMessage) Schema() []FieldSpec {
	out := make([]FieldSpec, len(m.schema))
	copy(out, m.schema)
	return out
}

// Field looks up a value by name.
func (m *CanonicalMessage) Field(name string) (Value, bool) {
	for i, spec := range m.schema {
		if spec.Name == name {
			return copyValue(m.values[i]), true
		}
	}
	return Value{}, false
}

// Fields returns a copy of every value keyed by name, discriminant included.
func (m *CanonicalMessage) Fields() Fields {
	out := make(Fields, len(m.schema))
	for i, spec := range m.schema {
		out[spec.Name] = copyValue(m.values[i])
	}
	return out
}

// Caller returns the 32-byte address bound to the transaction sender.
func (m *CanonicalMessage) Caller() []byte {
	for i, spec := range m.schema {
		if spec.Role == RoleCaller {
			return m.values[i].Raw()
		}
	}
	return nil
}

// Timestamp returns the embedded Unix-seconds issuance time.
func (m *CanonicalMessage) Timestamp() uint64 {
	for i, spec := range m.schema {
		if spec.Role == RoleTimestamp {
			return m.values[i].Uint64()
		}
	}
	return 0
}

// Equal reports whether two messages have the same kind and values.
func (m *CanonicalMessage) Equal(o *CanonicalMessage) bool {
	if m == nil || o == nil {
		return m == o
	}
	if m.kind != o.kind || len(m.values) != len(o.values) {
		return false
	}
	for i := range m.values {
		if !m.values[i].Equal(o.values[i]) {
			return false
		}
	}
	return true
}

var maxUint = map[int]*big.Int{}

func init() {
	for _, bits := range []int{8, 16, 32, 64, 128, 256} {
		maxUint[bits] = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), uint(bits)), big.NewInt(1))
	}
}

// MaxUint returns 2^bits - 1 for a supported integer width.
func MaxUint(bits int) *big.Int {
	if m, ok := maxUint[bits]; ok {
		return new(big.Int).Set(m)
	}
	return nil
}
