package ledger

import (
	"context"
	"encoding/binary"
	"fmt"
	"sync"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"eragonauth/crypto"
	"eragonauth/message"
	"eragonauth/verifier"
)

// Record is one accepted authorisation.
type Record struct {
	Kind    message.Kind              `json:"kind"`
	Sender  crypto.AccountAddress     `json:"sender"`
	Message *message.CanonicalMessage `json:"-"`
	Fields  message.Fields            `json:"fields"`
	Version uint64                    `json:"version"`
	Hash    string                    `json:"hash"`
}

// Simulated is an in-process ledger for one contract address. It applies the
// same rebuild-and-verify sequence as the deployed modules and keeps accepted
// calls for the result views.
type Simulated struct {
	contract crypto.AccountAddress
	verifier *verifier.Verifier

	mu      sync.Mutex
	version uint64
	records []Record
}

// NewSimulated returns a ledger that accepts calls addressed to contract.
func NewSimulated(contract crypto.AccountAddress, v *verifier.Verifier) *Simulated {
	return &Simulated{contract: contract, verifier: v}
}

// SubmitCall implements Submitter.
func (s *Simulated) SubmitCall(ctx context.Context, sender crypto.AccountAddress, call Call) (Receipt, error) {
	if err := ctx.Err(); err != nil {
		return Receipt{}, err
	}
	if call.Function.Address != s.contract {
		return Receipt{}, fmt.Errorf("%w: %s is not deployed here", ErrUnknownFunction, call.Function)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.version++
	receipt := Receipt{Version: s.version, Hash: txHash(sender, call, s.version)}

	msg, payload, err := Rebuild(sender, call)
	if err != nil {
		receipt.VMStatus = err.Error()
		return receipt, err
	}
	if _, err := s.verifier.Verify(msg, payload); err != nil {
		receipt.VMStatus = err.Error()
		return receipt, err
	}
	receipt.Success = true
	receipt.VMStatus = "Executed successfully"
	s.records = append(s.records, Record{
		Kind:    msg.Kind(),
		Sender:  sender,
		Message: msg,
		Fields:  msg.Fields(),
		Version: receipt.Version,
		Hash:    receipt.Hash,
	})
	return receipt, nil
}

// ReadView implements Submitter. Every result view returns the accepted
// records whose view arguments match, oldest first.
func (s *Simulated) ReadView(ctx context.Context, fn FunctionRef, args []message.Value) ([]any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if fn.Address != s.contract {
		return nil, fmt.Errorf("%w: %s is not deployed here", ErrUnknownFunction, fn)
	}
	layout, ok := layoutByView(fn.Module, fn.Function)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownFunction, fn)
	}
	if len(args) != len(layout.ViewArgs) {
		return nil, fmt.Errorf("%w: %s", ErrArgumentCount, fn)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	matches := []Record{}
	for _, rec := range s.records {
		if rec.Kind != layout.Kind || !viewMatches(rec.Message, layout.ViewArgs, args) {
			continue
		}
		matches = append(matches, rec)
	}
	return []any{matches}, nil
}

func viewMatches(msg *message.CanonicalMessage, names []string, args []message.Value) bool {
	for i, name := range names {
		v, ok := msg.Field(name)
		if !ok || !v.Equal(args[i]) {
			return false
		}
	}
	return true
}

// Records returns a snapshot of every accepted call.
func (s *Simulated) Records() []Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Record, len(s.records))
	copy(out, s.records)
	return out
}

func txHash(sender crypto.AccountAddress, call Call, version uint64) string {
	var v [8]byte
	binary.BigEndian.PutUint64(v[:], version)
	parts := [][]byte{sender[:], []byte(call.Function.String()), v[:]}
	for _, arg := range call.Args {
		parts = append(parts, []byte(arg.String()))
	}
	return ethcrypto.Keccak256Hash(parts...).Hex()
}
