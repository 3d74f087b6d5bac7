package message

import "fmt"

// TypeTag enumerates the encodable field types.
type TypeTag uint8

const (
	TagString TypeTag = iota + 1
	TagBytes
	TagUint
	TagBool
)

// FieldType describes how a single field is encoded. Size is the byte length
// for fixed byte arrays and the bit width for unsigned integers.
type FieldType struct {
	Tag  TypeTag
	Size int
}

func FixedString() FieldType { return FieldType{Tag: TagString} }
func FixedBytes(n int) FieldType { return FieldType{Tag: TagBytes, Size: n} }
func UnsignedInt(bits int) FieldType { return FieldType{Tag: TagUint, Size: bits} }
func BoolType() FieldType { return FieldType{Tag: TagBool} }

func (t FieldType) String() string {
	switch t.Tag {
	case TagString:
		return "string"
	case TagBytes:
		return fmt.Sprintf("bytes(%d)", t.Size)
	case TagUint:
		return fmt.Sprintf("u%d", t.Size)
	case TagBool:
		return "bool"
	default:
		return "invalid"
	}
}

// MarshalText renders the type in the same notation as String.
func (t FieldType) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

// Role records where the on-chain verifier sources a field when it rebuilds
// the message.
type Role uint8

const (
	// RoleDiscriminant is the literal kind tag, always the first field.
	RoleDiscriminant Role = iota + 1
	// RoleCaller is the transaction sender's 32-byte address.
	RoleCaller
	// RoleTimestamp is the Unix-seconds issuance time checked for freshness.
	RoleTimestamp
	// RoleParam is supplied by the caller as a call argument.
	RoleParam
)

func (r Role) String() string {
	switch r {
	case RoleDiscriminant:
		return "discriminant"
	case RoleCaller:
		return "caller"
	case RoleTimestamp:
		return "timestamp"
	case RoleParam:
		return "param"
	default:
		return "invalid"
	}
}

// MarshalText renders the role name.
func (r Role) MarshalText() ([]byte, error) {
	return []byte(r.String()), nil
}

// FieldSpec is one entry of a kind's ordered schema.
type FieldSpec struct {
	Name string    `json:"name"`
	Type FieldType `json:"type"`
	Role Role      `json:"role"`
}

// AddressLength is the byte length of an account or object address.
const AddressLength = 32

const (
	FieldFunc      = "func"
	FieldTimestamp = "ts"
)

func discriminantField() FieldSpec {
	return FieldSpec{Name: FieldFunc, Type: FixedString(), Role: RoleDiscriminant}
}

func callerField(name string) FieldSpec {
	return FieldSpec{Name: name, Type: FixedBytes(AddressLength), Role: RoleCaller}
}

func timestampField() FieldSpec {
	return FieldSpec{Name: FieldTimestamp, Type: UnsignedInt(64), Role: RoleTimestamp}
}

func param(name string, t FieldType) FieldSpec {
	return FieldSpec{Name: name, Type: t, Role: RoleParam}
}

// schemas is the deployed message layout table. Entries are append-only: the
// verifier already on chain rebuilds exactly these layouts, so field order and
// widths of an existing kind must never change.
var schemas = map[Kind][]FieldSpec{
	CheckIn: {
		discriminantField(),
		callerField("addr"),
		timestampField(),
	},
	Claim: {
		discriminantField(),
		callerField("addr"),
		param("coin_type", FixedString()),
		param("amount", UnsignedInt(64)),
		timestampField(),
	},
	Roll: {
		discriminantField(),
		callerField("addr"),
		param("season_id", UnsignedInt(64)),
		param("pool_id", UnsignedInt(64)),
		param("start", UnsignedInt(64)),
		timestampField(),
	},
	RollProfileBy: {
		discriminantField(),
		callerField("addr"),
		param("asset_type", UnsignedInt(64)),
		timestampField(),
	},
	ImportSigTokenV2: {
		discriminantField(),
		callerField("owner"),
		param("asset_addr", FixedBytes(AddressLength)),
		param("is_import", BoolType()),
		timestampField(),
	},
}

func init() {
	for kind, fields := range schemas {
		if err := checkSchema(kind, fields); err != nil {
			panic(err)
		}
	}
}

func checkSchema(kind Kind, fields []FieldSpec) error {
	if len(fields) == 0 || fields[0].Role != RoleDiscriminant || fields[0].Type.Tag != TagString {
		return fmt.Errorf("message: schema %s must start with a string discriminant", kind)
	}
	seen := make(map[string]struct{}, len(fields))
	var callers, timestamps int
	for _, f := range fields {
		if _, dup := seen[f.Name]; dup {
			return fmt.Errorf("message: schema %s repeats field %q", kind, f.Name)
		}
		seen[f.Name] = struct{}{}
		switch f.Type.Tag {
		case TagUint:
			switch f.Type.Size {
			case 8, 16, 32, 64, 128, 256:
			default:
				return fmt.Errorf("message: schema %s field %q has unsupported width %d", kind, f.Name, f.Type.Size)
			}
		case TagBytes:
			if f.Type.Size <= 0 {
				return fmt.Errorf("message: schema %s field %q has invalid length", kind, f.Name)
			}
		}
		switch f.Role {
		case RoleCaller:
			callers++
		case RoleTimestamp:
			timestamps++
			if f.Type != UnsignedInt(64) {
				return fmt.Errorf("message: schema %s timestamp must be u64", kind)
			}
		}
	}
	if callers != 1 || timestamps != 1 {
		return fmt.Errorf("message: schema %s needs exactly one caller and one timestamp field", kind)
	}
	return nil
}

// SchemaFor returns a copy of the ordered field list for kind.
func SchemaFor(kind Kind) ([]FieldSpec, error) {
	fields, ok := schemas[kind]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrUnknownKind, uint8(kind))
	}
	out := make([]FieldSpec, len(fields))
	copy(out, fields)
	return out, nil
}

// MustSchema is SchemaFor for kinds known at compile time.
func MustSchema(kind Kind) []FieldSpec {
	fields, err := SchemaFor(kind)
	if err != nil {
		panic(err)
	}
	return fields
}

func fieldWithRole(kind Kind, role Role) FieldSpec {
	for _, f := range schemas[kind] {
		if f.Role == role {
			return f
		}
	}
	return FieldSpec{}
}

// CallerField returns the name of the schema field bound to the sender.
func CallerField(kind Kind) string {
	return fieldWithRole(kind, RoleCaller).Name
}
