package message

import (
	"bytes"
	"crypto/sha256"
	"errors"
	"fmt"

	"github.com/aptos-labs/aptos-go-sdk/bcs"
)

// ErrTrailingBytes is returned by Decode when input remains after the last
// schema field.
var ErrTrailingBytes = errors.New("message: trailing bytes after last field")

// ErrNonCanonical is returned by Decode when the input parses but is not the
// unique encoding of the resulting message, e.g. a padded length prefix.
var ErrNonCanonical = errors.New("message: non-canonical encoding")

// DigestLength is the byte length of a message digest.
const DigestLength = sha256.Size

// Encode serialises the message in schema order using BCS: strings carry a
// ULEB128 length prefix, byte arrays are raw, integers are little-endian at
// their declared width and bools are a single byte.
func (m *CanonicalMessage) Encode() ([]byte, error) {
	ser := &bcs.Serializer{}
	for i, spec := range m.schema {
		v := m.values[i]
		switch spec.Type.Tag {
		case TagString:
			ser.WriteString(v.str)
		case TagBytes:
			ser.FixedBytes(v.raw)
		case TagBool:
			ser.Bool(v.flag)
		case TagUint:
			if err := writeUint(ser, spec.Type.Size, v); err != nil {
				return nil, &FieldError{Field: spec.Name, Err: err}
			}
		default:
			return nil, &FieldError{Field: spec.Name, Err: ErrFieldType}
		}
		if err := ser.Error(); err != nil {
			return nil, &FieldError{Field: spec.Name, Err: err}
		}
	}
	return ser.ToBytes(), nil
}

func writeUint(ser *bcs.Serializer, bits int, v Value) error {
	switch bits {
	case 8:
		ser.U8(uint8(v.Uint64()))
	case 16:
		ser.U16(uint16(v.Uint64()))
	case 32:
		ser.U32(uint32(v.Uint64()))
	case 64:
		ser.U64(v.Uint64())
	case 128:
		ser.U128(*v.Big())
	case 256:
		ser.U256(*v.Big())
	default:
		return fmt.Errorf("%w: u%d", ErrInvalidFieldWidth, bits)
	}
	return nil
}

// Digest encodes the message and hashes the canonical bytes.
func (m *CanonicalMessage) Digest() ([DigestLength]byte, error) {
	encoded, err := m.Encode()
	if err != nil {
		return [DigestLength]byte{}, err
	}
	return Digest(encoded), nil
}

// Digest is the fixed SHA-256 hash the on-chain verifier applies to canonical
// bytes.
func Digest(canonical []byte) [DigestLength]byte {
	return sha256.Sum256(canonical)
}

// Decode parses canonical bytes of the given kind back into a message. The
// result is validated exactly like Build output and must re-encode to data.
func Decode(kind Kind, data []byte) (*CanonicalMessage, error) {
	schema, err := SchemaFor(kind)
	if err != nil {
		return nil, err
	}
	des := bcs.NewDeserializer(data)
	fields := make(Fields, len(schema))
	for _, spec := range schema {
		var v Value
		switch spec.Type.Tag {
		case TagString:
			v = String(des.ReadString())
		case TagBytes:
			v = Bytes(des.ReadFixedBytes(spec.Type.Size))
		case TagBool:
			v = Bool(des.Bool())
		case TagUint:
			v = readUint(des, spec.Type.Size)
		}
		if err := des.Error(); err != nil {
			return nil, &FieldError{Field: spec.Name, Err: err}
		}
		fields[spec.Name] = v
	}
	if des.Remaining() > 0 {
		return nil, fmt.Errorf("%w: %d", ErrTrailingBytes, des.Remaining())
	}
	msg, err := Build(kind, fields)
	if err != nil {
		return nil, err
	}
	reencoded, err := msg.Encode()
	if err != nil {
		return nil, err
	}
	if !bytes.Equal(reencoded, data) {
		return nil, ErrNonCanonical
	}
	return msg, nil
}

func readUint(des *bcs.Deserializer, bits int) Value {
	switch bits {
	case 8:
		return Uint64(uint64(des.U8()))
	case 16:
		return Uint64(uint64(des.U16()))
	case 32:
		return Uint64(uint64(des.U32()))
	case 64:
		return Uint64(des.U64())
	case 128:
		n := des.U128()
		return BigUint(&n)
	default:
		n := des.U256()
		return BigUint(&n)
	}
}
