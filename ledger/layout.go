package ledger

import (
	"encoding/json"
	"fmt"

	"eragonauth/crypto"
	"eragonauth/message"
)

// ArgSource says where a positional call argument comes from.
type ArgSource uint8

const (
	// FromMessage arguments repeat a signed message field.
	FromMessage ArgSource = iota + 1
	// FromExtra arguments are passed alongside the signature but not signed.
	FromExtra
	FromRecoveryID
	FromSignature
)

func (s ArgSource) String() string {
	switch s {
	case FromMessage:
		return "message"
	case FromExtra:
		return "extra"
	case FromRecoveryID:
		return "recovery_id"
	case FromSignature:
		return "signature"
	default:
		return fmt.Sprintf("source(%d)", uint8(s))
	}
}

func (s ArgSource) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// Arg is one positional entry-function argument.
type Arg struct {
	Name    string            `json:"name"`
	Source  ArgSource         `json:"source"`
	Type    message.FieldType `json:"type"`
	Default *message.Value    `json:"default,omitempty"`
}

// TypeArg is one generic type argument. Field, when set, binds the type
// argument to a signed string field.
type TypeArg struct {
	Name    string `json:"name"`
	Field   string `json:"field,omitempty"`
	Default string `json:"default,omitempty"`
}

// Layout describes how an action of one kind is submitted and how its result
// is read back.
type Layout struct {
	Kind     message.Kind   `json:"kind"`
	Module   string         `json:"module"`
	Function string         `json:"function"`
	TypeArgs []TypeArg      `json:"type_args,omitempty"`
	Args     []Arg          `json:"args"`
	Implied  message.Fields `json:"implied,omitempty"`
	View     string         `json:"view"`
	ViewArgs []string       `json:"view_args"`
}

// Entry returns the entry function published under contract.
func (l Layout) Entry(contract crypto.AccountAddress) FunctionRef {
	return FunctionRef{Address: contract, Module: l.Module, Function: l.Function}
}

// ViewRef returns the result view published under contract.
func (l Layout) ViewRef(contract crypto.AccountAddress) FunctionRef {
	return FunctionRef{Address: contract, Module: l.Module, Function: l.View}
}

// DecodeExtras parses JSON extras for the layout. Keys naming a type argument
// must be strings; every other key must be a FromExtra argument.
func (l Layout) DecodeExtras(raw map[string]json.RawMessage) (Extras, error) {
	extras := Extras{Values: message.Fields{}, TypeArgs: map[string]string{}}
	for name, value := range raw {
		if ta, ok := l.typeArg(name); ok && ta.Field == "" {
			var s string
			if err := json.Unmarshal(value, &s); err != nil {
				return Extras{}, &message.FieldError{Field: name, Err: message.ErrFieldType}
			}
			extras.TypeArgs[name] = s
			continue
		}
		arg, ok := l.extraArg(name)
		if !ok {
			return Extras{}, &message.FieldError{Field: name, Err: ErrUnknownExtra}
		}
		v, err := message.DecodeValue(arg.Type, value)
		if err != nil {
			return Extras{}, &message.FieldError{Field: name, Err: err}
		}
		extras.Values[name] = v
	}
	return extras, nil
}

// ApplyImplied fills the layout's implied fields into fields and rejects
// values that contradict them, so actions the entry function cannot accept
// are never signed.
func (l Layout) ApplyImplied(fields message.Fields) error {
	for name, want := range l.Implied {
		got, ok := fields[name]
		if !ok || got.IsZero() {
			fields[name] = want
			continue
		}
		if !got.Equal(want) {
			return &message.FieldError{Field: name, Err: fmt.Errorf("%w: want %s", ErrImpliedMismatch, want)}
		}
	}
	return nil
}

func (l Layout) typeArg(name string) (TypeArg, bool) {
	for _, ta := range l.TypeArgs {
		if ta.Name == name {
			return ta, true
		}
	}
	return TypeArg{}, false
}

func (l Layout) extraArg(name string) (Arg, bool) {
	for _, arg := range l.Args {
		if arg.Source == FromExtra && arg.Name == name {
			return arg, true
		}
	}
	return Arg{}, false
}

// Extras carries unsigned call inputs.
type Extras struct {
	Values   message.Fields
	TypeArgs map[string]string
}

// DefaultTokenType is the token standard passed to import_sig_token_v2 when
// the caller does not name one.
const DefaultTokenType = "0x4::token::Token"

// DefaultUseWith is the import purpose code used by the game client.
const DefaultUseWith = 2

func field(name string) Arg {
	return Arg{Name: name, Source: FromMessage}
}

func signatureArgs() []Arg {
	return []Arg{
		{Name: "recid", Source: FromRecoveryID, Type: message.UnsignedInt(8)},
		{Name: "signature", Source: FromSignature, Type: message.FixedBytes(64)},
	}
}

func args(in ...Arg) []Arg { return append(in, signatureArgs()...) }

func defaultValue(v message.Value) *message.Value { return &v }

var layouts = map[message.Kind]Layout{
	message.CheckIn: {
		Kind:     message.CheckIn,
		Module:   "eragon_checkin",
		Function: "check_in",
		Args:     args(field("ts")),
		View:     "get_player_checkins",
		ViewArgs: []string{"addr"},
	},
	message.Claim: {
		Kind:     message.Claim,
		Module:   "eragon_claim",
		Function: "claim",
		TypeArgs: []TypeArg{{Name: "coin_type", Field: "coin_type"}},
		Args:     args(field("amount"), field("ts")),
		View:     "get_claim_result",
		ViewArgs: []string{"addr", "ts"},
	},
	message.Roll: {
		Kind:     message.Roll,
		Module:   "eragon_lucky_wheel",
		Function: "roll",
		Args:     args(field("season_id"), field("pool_id"), field("start"), field("ts")),
		View:     "get_roll_result",
		ViewArgs: []string{"addr", "ts"},
	},
	message.RollProfileBy: {
		Kind:     message.RollProfileBy,
		Module:   "eragon_avatar",
		Function: "roll_profile_by",
		Args:     args(field("asset_type"), field("ts")),
		View:     "get_profile_result",
		ViewArgs: []string{"addr", "ts"},
	},
	message.ImportSigTokenV2: {
		Kind:     message.ImportSigTokenV2,
		Module:   "eragon_asset",
		Function: "import_sig_token_v2",
		TypeArgs: []TypeArg{{Name: "asset_type_tag", Default: DefaultTokenType}},
		Args: args(
			field("asset_addr"),
			Arg{Name: "use_with", Source: FromExtra, Type: message.UnsignedInt(8), Default: defaultValue(message.Uint64(DefaultUseWith))},
			field("ts"),
		),
		Implied:  message.Fields{"is_import": message.Bool(true)},
		View:     "get_import_asset",
		ViewArgs: []string{"owner"},
	},
}

func init() {
	for kind, l := range layouts {
		schema := message.MustSchema(kind)
		types := make(map[string]message.FieldType, len(schema))
		for _, f := range schema {
			types[f.Name] = f.Type
		}
		for i, arg := range l.Args {
			if arg.Source != FromMessage {
				continue
			}
			t, ok := types[arg.Name]
			if !ok {
				panic(fmt.Sprintf("ledger: %s argument %q is not a message field", kind, arg.Name))
			}
			l.Args[i].Type = t
		}
		for _, name := range l.ViewArgs {
			if _, ok := types[name]; !ok {
				panic(fmt.Sprintf("ledger: %s view argument %q is not a message field", kind, name))
			}
		}
	}
}

// LayoutFor returns a copy of the call layout of kind.
func LayoutFor(kind message.Kind) (Layout, error) {
	l, ok := layouts[kind]
	if !ok {
		return Layout{}, fmt.Errorf("%w: %s", message.ErrUnknownKind, kind)
	}
	return l.clone(), nil
}

// Layouts lists a copy of every layout in kind order.
func Layouts() []Layout {
	out := make([]Layout, 0, len(layouts))
	for _, kind := range message.Kinds() {
		out = append(out, layouts[kind].clone())
	}
	return out
}

func (l Layout) clone() Layout {
	out := l
	out.TypeArgs = append([]TypeArg(nil), l.TypeArgs...)
	out.Args = make([]Arg, len(l.Args))
	for i, arg := range l.Args {
		if arg.Default != nil {
			v := *arg.Default
			arg.Default = &v
		}
		out.Args[i] = arg
	}
	if l.Implied != nil {
		out.Implied = make(message.Fields, len(l.Implied))
		for name, v := range l.Implied {
			out.Implied[name] = v
		}
	}
	out.ViewArgs = append([]string(nil), l.ViewArgs...)
	return out
}

func layoutByFunction(module, function string) (Layout, bool) {
	for _, l := range layouts {
		if l.Module == module && l.Function == function {
			return l, true
		}
	}
	return Layout{}, false
}

func layoutByView(module, view string) (Layout, bool) {
	for _, l := range layouts {
		if l.Module == module && l.View == view {
			return l, true
		}
	}
	return Layout{}, false
}
