package ledger

import (
	"errors"
	"fmt"
	"strings"

	"github.com/gagliardetto/solana-go/rpc"
)

var (
	ErrAccountNotFound = errors.New("ledger: account not found")
	ErrInvalidAddress  = errors.New("ledger: invalid address")
	ErrConfirmTimeout  = errors.New("ledger: confirmation timed out")
)

// TxError is returned when the ledger reports a failed transaction.
type TxError struct {
	Signature string
	Reason    string
}

func (e *TxError) Error() string {
	return fmt.Sprintf("transaction %s failed: %s", e.Signature, e.Reason)
}

// RPC nodes report a missing token account as an invalid param rather than a
// null value, so both shapes are treated as not found.
func isAccountMissing(err error) bool {
	if errors.Is(err, rpc.ErrNotFound) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "could not find account") ||
		strings.Contains(msg, "account not found")
}
