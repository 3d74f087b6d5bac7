package main

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"eragonauth/authorizer"
	"eragonauth/crypto"
	"eragonauth/ledger"
	"eragonauth/message"
)

var now = time.Now

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// parseAssignments turns field=value pairs into typed values for kind.
func parseAssignments(kind message.Kind, pairs []string) (message.Fields, error) {
	schema, err := message.SchemaFor(kind)
	if err != nil {
		return nil, err
	}
	types := make(map[string]message.FieldType, len(schema))
	for _, f := range schema {
		types[f.Name] = f.Type
	}
	raw := make(map[string]json.RawMessage, len(pairs))
	for _, pair := range pairs {
		name, value, ok := strings.Cut(pair, "=")
		if !ok || name == "" {
			return nil, fmt.Errorf("expected field=value, got %q", pair)
		}
		if t, known := types[name]; known && t.Tag == message.TagBool {
			raw[name] = json.RawMessage(value)
			continue
		}
		encoded, err := json.Marshal(value)
		if err != nil {
			return nil, err
		}
		raw[name] = encoded
	}
	return message.DecodeFieldsJSON(kind, raw)
}

type signOutput struct {
	Kind       message.Kind   `json:"kind"`
	Fields     message.Fields `json:"fields"`
	Message    string         `json:"message"`
	Digest     string         `json:"digest"`
	Signature  string         `json:"signature"`
	RecoveryID uint8          `json:"recovery_id"`
	Call       *ledger.Call   `json:"call,omitempty"`
}

func runSign(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("sign", flag.ContinueOnError)
	fs.SetOutput(stderr)
	var keys keyFlags
	keys.register(fs)
	var contract string
	fs.StringVar(&contract, "contract", "", "module address; when set the entry-function call is printed")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	if fs.NArg() < 1 {
		fmt.Fprintln(stderr, "Error: sign requires a kind")
		return 1
	}
	kind, err := message.ParseKind(fs.Arg(0))
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	fields, err := parseAssignments(kind, fs.Args()[1:])
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	layout, err := ledger.LayoutFor(kind)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	if err := layout.ApplyImplied(fields); err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	if _, ok := fields[message.FieldTimestamp]; !ok {
		fields[message.FieldTimestamp] = message.Int64(now().Unix())
	}
	key, err := keys.load()
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	auth, err := authorizer.New(key, authorizer.WithClock(now), authorizer.WithLogger(discardLogger()))
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	action, err := auth.Authorize(kind, fields)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	out := signOutput{
		Kind:       kind,
		Fields:     action.Message.Fields(),
		Message:    action.CanonicalHex(),
		Digest:     action.DigestHex(),
		Signature:  action.Payload.SignatureHex(),
		RecoveryID: action.Payload.RecoveryID,
	}
	if contract != "" {
		addr, err := crypto.ParseAccountAddressRelaxed(contract)
		if err != nil {
			fmt.Fprintf(stderr, "Error: %v\n", err)
			return 1
		}
		call, err := ledger.BuildCall(addr, action, ledger.Extras{})
		if err != nil {
			fmt.Fprintf(stderr, "Error: %v\n", err)
			return 1
		}
		out.Call = &call
	}
	return writeJSON(stdout, stderr, out)
}

func runInspect(args []string, stdout, stderr io.Writer) int {
	if len(args) != 2 {
		fmt.Fprintln(stderr, "Error: inspect requires <kind> <message-hex>")
		return 1
	}
	msg, err := decodeMessage(args[0], args[1])
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	digest, err := msg.Digest()
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	return writeJSON(stdout, stderr, map[string]any{
		"kind":   msg.Kind(),
		"fields": msg.Fields(),
		"digest": hex.EncodeToString(digest[:]),
	})
}

func runRecover(args []string, stdout, stderr io.Writer) int {
	if len(args) != 4 {
		fmt.Fprintln(stderr, "Error: recover requires <kind> <message-hex> <signature> <recid>")
		return 1
	}
	msg, err := decodeMessage(args[0], args[1])
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	recid, err := strconv.Atoi(args[3])
	if err != nil {
		fmt.Fprintf(stderr, "Error: invalid recovery id %q\n", args[3])
		return 1
	}
	payload, err := crypto.ParseSignature(args[2], recid)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	digest, err := msg.Digest()
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	pub, err := crypto.RecoverPublicKey(digest[:], payload)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	fmt.Fprintln(stdout, pub.Hex())
	return 0
}

func runSchemas(args []string, stdout, stderr io.Writer) int {
	if len(args) != 0 {
		fmt.Fprintln(stderr, "Error: schemas takes no arguments")
		return 1
	}
	return writeJSON(stdout, stderr, ledger.Layouts())
}

func decodeMessage(kindName, messageHex string) (*message.CanonicalMessage, error) {
	kind, err := message.ParseKind(kindName)
	if err != nil {
		return nil, err
	}
	raw, err := hex.DecodeString(strings.TrimPrefix(strings.TrimSpace(messageHex), "0x"))
	if err != nil {
		return nil, errors.New("message must be hex encoded")
	}
	return message.Decode(kind, raw)
}

func writeJSON(stdout, stderr io.Writer, v any) int {
	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}
