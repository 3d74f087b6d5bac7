package message

import (
	"bytes"
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"errors"
	"math/big"
	"testing"
)

const claimVectorHex = "05636c61696d1111111111111111111111111111111111111111111111111111111111111111" +
	"1a3078313a3a6170746f735f636f696e3a3a4170746f73436f696e" +
	"a086010000000000" +
	"8099666600000000"

const claimVectorDigest = "09b0a515d837c61b505fa19306bd818bdfb679ced58dff08748995984f8ca77a"

func claimFields() Fields {
	return Fields{
		"func":      String("claim"),
		"addr":      Bytes(bytes.Repeat([]byte{0x11}, 32)),
		"coin_type": String("0x1::aptos_coin::AptosCoin"),
		"amount":    Uint64(100000),
		"ts":        Uint64(1718000000),
	}
}

func TestClaimLayout(t *testing.T) {
	msg, err := Build(Claim, claimFields())
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	encoded, err := msg.Encode()
	if err != nil {
		t.Fatalf("encode: %v", err)
	}

	var want bytes.Buffer
	want.WriteByte(5)
	want.WriteString("claim")
	want.Write(bytes.Repeat([]byte{0x11}, 32))
	want.WriteByte(26)
	want.WriteString("0x1::aptos_coin::AptosCoin")
	_ = binary.Write(&want, binary.LittleEndian, uint64(100000))
	_ = binary.Write(&want, binary.LittleEndian, uint64(1718000000))

	if !bytes.Equal(encoded, want.Bytes()) {
		t.Fatalf("layout mismatch\n got %x\nwant %x", encoded, want.Bytes())
	}
	if got := hex.EncodeToString(encoded); got != claimVectorHex {
		t.Fatalf("vector mismatch: %s", got)
	}
	digest, err := msg.Digest()
	if err != nil {
		t.Fatalf("digest: %v", err)
	}
	if got := hex.EncodeToString(digest[:]); got != claimVectorDigest {
		t.Fatalf("digest mismatch: %s", got)
	}
}

func TestBuildFillsDiscriminant(t *testing.T) {
	fields := claimFields()
	delete(fields, "func")
	msg, err := Build(Claim, fields)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	v, ok := msg.Field("func")
	if !ok || v.Str() != "claim" {
		t.Fatalf("discriminant not filled: %v", v)
	}
}

func TestBuildRejectsForeignDiscriminant(t *testing.T) {
	fields := claimFields()
	fields["func"] = String("roll")
	_, err := Build(Claim, fields)
	if !errors.Is(err, ErrDiscriminantMismatch) {
		t.Fatalf("expected discriminant mismatch, got %v", err)
	}
}

func TestBuildMissingField(t *testing.T) {
	fields := claimFields()
	delete(fields, "amount")
	_, err := Build(Claim, fields)
	if !errors.Is(err, ErrMissingField) {
		t.Fatalf("expected missing field, got %v", err)
	}
	var fieldErr *FieldError
	if !errors.As(err, &fieldErr) || fieldErr.Field != "amount" {
		t.Fatalf("expected field error naming amount, got %v", err)
	}
}

func TestBuildUnknownField(t *testing.T) {
	fields := claimFields()
	fields["memo"] = String("x")
	if _, err := Build(Claim, fields); !errors.Is(err, ErrUnknownField) {
		t.Fatalf("expected unknown field, got %v", err)
	}
}

func TestBuildTypeMismatch(t *testing.T) {
	fields := claimFields()
	fields["amount"] = String("100000")
	if _, err := Build(Claim, fields); !errors.Is(err, ErrFieldType) {
		t.Fatalf("expected type mismatch, got %v", err)
	}
}

func TestWidthEnforcement(t *testing.T) {
	overflow := new(big.Int).Add(MaxUint(64), big.NewInt(1))
	cases := []struct {
		name  string
		field string
		value Value
		want  error
	}{
		{"u64 at 2^64", "amount", BigUint(overflow), ErrIntegerOutOfRange},
		{"negative u64", "amount", Int64(-1), ErrIntegerOutOfRange},
		{"negative ts", "ts", Int64(-5), ErrIntegerOutOfRange},
		{"short address", "addr", Bytes(make([]byte, 31)), ErrInvalidFieldWidth},
		{"long address", "addr", Bytes(make([]byte, 33)), ErrInvalidFieldWidth},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			fields := claimFields()
			fields[tc.field] = tc.value
			if _, err := Build(Claim, fields); !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}

	fields := claimFields()
	fields["amount"] = BigUint(MaxUint(64))
	if _, err := Build(Claim, fields); err != nil {
		t.Fatalf("max u64 must be accepted: %v", err)
	}
}

func TestImportAssetLayout(t *testing.T) {
	owner := bytes.Repeat([]byte{0xaa}, 32)
	asset := bytes.Repeat([]byte{0xbb}, 32)
	msg, err := Build(ImportSigTokenV2, Fields{
		"owner":      Bytes(owner),
		"asset_addr": Bytes(asset),
		"is_import":  Bool(true),
		"ts":         Uint64(7),
	})
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	encoded, err := msg.Encode()
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	var want []byte
	want = append(want, 19)
	want = append(want, "import_sig_token_v2"...)
	want = append(want, owner...)
	want = append(want, asset...)
	want = append(want, 1)
	want = append(want, 7, 0, 0, 0, 0, 0, 0, 0)
	if !bytes.Equal(encoded, want) {
		t.Fatalf("layout mismatch\n got %x\nwant %x", encoded, want)
	}
	if !bytes.Equal(msg.Caller(), owner) {
		t.Fatalf("caller should be the owner field")
	}
}

func TestDecodeInverse(t *testing.T) {
	raw, err := hex.DecodeString(claimVectorHex)
	if err != nil {
		t.Fatal(err)
	}
	msg, err := Decode(Claim, raw)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	built, err := Build(Claim, claimFields())
	if err != nil {
		t.Fatal(err)
	}
	if !msg.Equal(built) {
		t.Fatalf("decoded message differs from built message")
	}
	if msg.Timestamp() != 1718000000 {
		t.Fatalf("timestamp: %d", msg.Timestamp())
	}

	if _, err := Decode(Claim, append(raw, 0x00)); !errors.Is(err, ErrTrailingBytes) {
		t.Fatalf("expected trailing bytes error, got %v", err)
	}
	if _, err := Decode(Claim, raw[:len(raw)-1]); err == nil {
		t.Fatalf("expected truncated input to fail")
	}
	if _, err := Decode(Roll, raw); err == nil {
		t.Fatalf("claim bytes must not decode as roll")
	}
}

func TestDecodeRejectsPaddedLengthPrefix(t *testing.T) {
	raw, err := hex.DecodeString(claimVectorHex)
	if err != nil {
		t.Fatal(err)
	}
	padded := append([]byte{0x85, 0x00}, raw[1:]...)
	if _, err := Decode(Claim, padded); !errors.Is(err, ErrNonCanonical) {
		t.Fatalf("expected non-canonical error, got %v", err)
	}
}

func TestStringFieldsMustBeUTF8(t *testing.T) {
	fields := claimFields()
	fields["coin_type"] = String("\xff\xfe")
	if _, err := Build(Claim, fields); !errors.Is(err, ErrFieldType) {
		t.Fatalf("expected type error for invalid UTF-8, got %v", err)
	}

	var encoded []byte
	encoded = append(encoded, 5)
	encoded = append(encoded, "claim"...)
	encoded = append(encoded, bytes.Repeat([]byte{0x11}, 32)...)
	encoded = append(encoded, 2, 0xff, 0xfe)
	encoded = binary.LittleEndian.AppendUint64(encoded, 100000)
	encoded = binary.LittleEndian.AppendUint64(encoded, 1718000000)
	_, err := Decode(Claim, encoded)
	var fieldErr *FieldError
	if !errors.As(err, &fieldErr) || fieldErr.Field != "coin_type" || !errors.Is(err, ErrFieldType) {
		t.Fatalf("expected coin_type type error on decode, got %v", err)
	}
}

func TestDecodeFieldsJSON(t *testing.T) {
	raw := map[string]json.RawMessage{
		"addr":      json.RawMessage(`"0x` + hex.EncodeToString(bytes.Repeat([]byte{0x11}, 32)) + `"`),
		"season_id": json.RawMessage(`3`),
		"pool_id":   json.RawMessage(`"18446744073709551615"`),
		"start":     json.RawMessage(`1718000000`),
		"ts":        json.RawMessage(`1718003600`),
	}
	fields, err := DecodeFieldsJSON(Roll, raw)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	msg, err := Build(Roll, fields)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	pool, _ := msg.Field("pool_id")
	if pool.Uint64() != ^uint64(0) {
		t.Fatalf("pool id: %s", pool)
	}

	raw["season_id"] = json.RawMessage(`"three"`)
	if _, err := DecodeFieldsJSON(Roll, raw); !errors.Is(err, ErrFieldType) {
		t.Fatalf("expected type error, got %v", err)
	}
	delete(raw, "season_id")
	raw["bogus"] = json.RawMessage(`1`)
	if _, err := DecodeFieldsJSON(Roll, raw); !errors.Is(err, ErrUnknownField) {
		t.Fatalf("expected unknown field, got %v", err)
	}
}

func TestValueJSON(t *testing.T) {
	out, err := json.Marshal(map[string]Value{
		"amount": Uint64(100000),
		"addr":   Bytes([]byte{0xab, 0xcd}),
		"ok":     Bool(true),
	})
	if err != nil {
		t.Fatal(err)
	}
	if string(out) != `{"addr":"abcd","amount":"100000","ok":true}` {
		t.Fatalf("unexpected json: %s", out)
	}
}

func TestParseKind(t *testing.T) {
	for _, k := range Kinds() {
		parsed, err := ParseKind(k.Discriminant())
		if err != nil || parsed != k {
			t.Fatalf("round trip %s: %v", k, err)
		}
		schema := MustSchema(k)
		if schema[0].Role != RoleDiscriminant {
			t.Fatalf("%s: first field must be the discriminant", k)
		}
	}
	if _, err := ParseKind("Claim"); !errors.Is(err, ErrUnknownKind) {
		t.Fatalf("matching must be exact, got %v", err)
	}
}

func TestSchemaForReturnsCopy(t *testing.T) {
	fields := MustSchema(Claim)
	fields[0].Name = "mutated"
	if MustSchema(Claim)[0].Name != FieldFunc {
		t.Fatalf("schema table must not be mutable through SchemaFor")
	}
}
