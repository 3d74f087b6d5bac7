// Package ledger binds signed authorisations to the entry functions that
// consume them. Submitter is the transport seam; Simulated runs the on-chain
// checks in process.
package ledger

import (
	"context"

	"eragonauth/crypto"
	"eragonauth/message"
)

// Receipt reports the ledger's verdict on a submitted call.
type Receipt struct {
	Hash     string `json:"hash"`
	Version  uint64 `json:"version"`
	Success  bool   `json:"success"`
	VMStatus string `json:"vm_status,omitempty"`
}

// Submitter sends calls on behalf of a player account and reads views. A
// rejected call returns its receipt together with an error that wraps the
// verifier's reason.
type Submitter interface {
	SubmitCall(ctx context.Context, sender crypto.AccountAddress, call Call) (Receipt, error)
	ReadView(ctx context.Context, fn FunctionRef, args []message.Value) ([]any, error)
}
