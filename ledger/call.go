package ledger

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"

	"eragonauth/authorizer"
	"eragonauth/crypto"
	"eragonauth/message"
)

var (
	ErrInvalidFunction = errors.New("ledger: invalid function reference")
	ErrUnknownExtra    = errors.New("ledger: unknown extra argument")
	ErrMissingTypeArg  = errors.New("ledger: missing type argument")
	ErrImpliedMismatch = errors.New("ledger: message contradicts implied call field")
	ErrArgumentCount   = errors.New("ledger: argument count mismatch")
	ErrUnknownFunction = errors.New("ledger: unknown function")
)

// Call is an entry-function invocation ready to be wrapped in a transaction.
type Call struct {
	Function FunctionRef
	TypeArgs []string
	Args     []message.Value
}

// MarshalJSON renders the call as an entry_function_payload: integers as
// decimal strings and byte vectors as 0x-prefixed hex.
func (c Call) MarshalJSON() ([]byte, error) {
	args := make([]any, len(c.Args))
	for i, v := range c.Args {
		switch v.Tag() {
		case message.TagBytes:
			args[i] = "0x" + hex.EncodeToString(v.Raw())
		case message.TagBool:
			args[i] = v.Flag()
		default:
			args[i] = v.String()
		}
	}
	typeArgs := c.TypeArgs
	if typeArgs == nil {
		typeArgs = []string{}
	}
	return json.Marshal(struct {
		Type          string   `json:"type"`
		Function      string   `json:"function"`
		TypeArguments []string `json:"type_arguments"`
		Arguments     []any    `json:"arguments"`
	}{
		Type:          "entry_function_payload",
		Function:      c.Function.String(),
		TypeArguments: typeArgs,
		Arguments:     args,
	})
}

// BuildCall lays out a signed action as the entry-function call published
// under contract. The transaction sender must be the message's caller.
func BuildCall(contract crypto.AccountAddress, action *authorizer.SignedAction, extras Extras) (Call, error) {
	msg := action.Message
	layout, err := LayoutFor(msg.Kind())
	if err != nil {
		return Call{}, err
	}
	for name, want := range layout.Implied {
		got, ok := msg.Field(name)
		if !ok || !got.Equal(want) {
			return Call{}, &message.FieldError{Field: name, Err: ErrImpliedMismatch}
		}
	}
	for name := range extras.Values {
		if _, ok := layout.extraArg(name); !ok {
			return Call{}, &message.FieldError{Field: name, Err: ErrUnknownExtra}
		}
	}
	for name := range extras.TypeArgs {
		if ta, ok := layout.typeArg(name); !ok || ta.Field != "" {
			return Call{}, &message.FieldError{Field: name, Err: ErrUnknownExtra}
		}
	}

	call := Call{Function: layout.Entry(contract)}
	for _, ta := range layout.TypeArgs {
		var tag string
		switch {
		case ta.Field != "":
			v, _ := msg.Field(ta.Field)
			tag = v.Str()
		case extras.TypeArgs[ta.Name] != "":
			tag = extras.TypeArgs[ta.Name]
		default:
			tag = ta.Default
		}
		if tag == "" {
			return Call{}, &message.FieldError{Field: ta.Name, Err: ErrMissingTypeArg}
		}
		call.TypeArgs = append(call.TypeArgs, tag)
	}
	for _, arg := range layout.Args {
		switch arg.Source {
		case FromMessage:
			v, _ := msg.Field(arg.Name)
			call.Args = append(call.Args, v)
		case FromExtra:
			v, ok := extras.Values[arg.Name]
			if !ok {
				if arg.Default == nil {
					return Call{}, &message.FieldError{Field: arg.Name, Err: message.ErrMissingField}
				}
				v = *arg.Default
			}
			if err := arg.Type.Validate(v); err != nil {
				return Call{}, &message.FieldError{Field: arg.Name, Err: err}
			}
			call.Args = append(call.Args, v)
		case FromRecoveryID:
			call.Args = append(call.Args, message.Uint64(uint64(action.Payload.RecoveryID)))
		case FromSignature:
			call.Args = append(call.Args, message.Bytes(action.Payload.Signature[:]))
		}
	}
	return call, nil
}

// Rebuild reconstructs the signed message and signature from a submitted
// call the way the on-chain module does: the caller field comes from the
// transaction sender, never from the arguments.
func Rebuild(sender crypto.AccountAddress, call Call) (*message.CanonicalMessage, crypto.SignaturePayload, error) {
	var payload crypto.SignaturePayload
	layout, ok := layoutByFunction(call.Function.Module, call.Function.Function)
	if !ok {
		return nil, payload, fmt.Errorf("%w: %s", ErrUnknownFunction, call.Function)
	}
	if len(call.Args) != len(layout.Args) || len(call.TypeArgs) != len(layout.TypeArgs) {
		return nil, payload, fmt.Errorf("%w: %s", ErrArgumentCount, call.Function)
	}
	fields := message.Fields{message.CallerField(layout.Kind): message.Bytes(sender[:])}
	for name, v := range layout.Implied {
		fields[name] = v
	}
	for i, ta := range layout.TypeArgs {
		if ta.Field != "" {
			fields[ta.Field] = message.String(call.TypeArgs[i])
		}
	}
	for i, arg := range layout.Args {
		v := call.Args[i]
		if err := arg.Type.Validate(v); err != nil {
			return nil, payload, &message.FieldError{Field: arg.Name, Err: err}
		}
		switch arg.Source {
		case FromMessage:
			fields[arg.Name] = v
		case FromRecoveryID:
			if v.Uint64() > crypto.MaxRecoveryID {
				return nil, payload, fmt.Errorf("%w: recovery id %d", crypto.ErrInvalidSignature, v.Uint64())
			}
			payload.RecoveryID = uint8(v.Uint64())
		case FromSignature:
			copy(payload.Signature[:], v.Raw())
		}
	}
	msg, err := message.Build(layout.Kind, fields)
	if err != nil {
		return nil, payload, err
	}
	return msg, payload, nil
}
