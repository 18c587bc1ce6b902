// Package payment drives the pay-to-join and stake flows from balance checks
// through signing to ledger confirmation.
package payment

import (
	"errors"
	"fmt"

	"github.com/xueqianLu/contestpay/internal/ledger"
)

// State is a step of a payment flow.
type State int

const (
	Idle State = iota
	CheckingParticipation
	AlreadyParticipating
	CheckingBalance
	InsufficientBalance
	Building
	Signing
	DuplicateOrAlreadyProcessed
	SignError
	Submitted
	Confirming
	Confirmed
	ConfirmError
	CheckError
	BuildError
	SubmitError
)

var stateNames = map[State]string{
	Idle:                        "idle",
	CheckingParticipation:       "checking_participation",
	AlreadyParticipating:        "already_participating",
	CheckingBalance:             "checking_balance",
	InsufficientBalance:         "insufficient_balance",
	Building:                    "building",
	Signing:                     "signing",
	DuplicateOrAlreadyProcessed: "duplicate_or_already_processed",
	SignError:                   "sign_error",
	Submitted:                   "submitted",
	Confirming:                  "confirming",
	Confirmed:                   "confirmed",
	ConfirmError:                "confirm_error",
	CheckError:                  "check_error",
	BuildError:                  "build_error",
	SubmitError:                 "submit_error",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Terminal reports whether no further transition follows s.
func (s State) Terminal() bool {
	switch s {
	case AlreadyParticipating, InsufficientBalance, DuplicateOrAlreadyProcessed,
		SignError, Confirmed, ConfirmError, CheckError, BuildError, SubmitError:
		return true
	}
	return false
}

var (
	ErrAlreadyParticipating = errors.New("payment: already joined this contest")
	ErrFlowPanicked         = errors.New("payment: flow aborted unexpectedly")

	ErrNoParticipationChecker = errors.New("payment: no participation checker configured")
)

// InsufficientBalanceError reports the exact amounts of a failed balance check.
type InsufficientBalanceError struct {
	Required uint64
	Actual   uint64
	Decimals uint8
}

func (e *InsufficientBalanceError) Shortfall() uint64 {
	return e.Required - e.Actual
}

func (e *InsufficientBalanceError) Error() string {
	return fmt.Sprintf("insufficient balance: required %s, available %s, short by %s",
		ledger.FormatAmount(e.Required, e.Decimals),
		ledger.FormatAmount(e.Actual, e.Decimals),
		ledger.FormatAmount(e.Shortfall(), e.Decimals))
}

// Outcome is the single result of a flow. Amounts are in the smallest unit.
type Outcome struct {
	State     State
	Success   bool
	Signature string
	Required  uint64
	Actual    uint64
	Shortfall uint64
	Err       error
	Trail     []State
}

func newOutcome() *Outcome {
	return &Outcome{State: Idle, Trail: []State{Idle}}
}

func (o *Outcome) enter(s State) {
	o.State = s
	o.Trail = append(o.Trail, s)
}

func (o *Outcome) succeed(s State) {
	o.enter(s)
	o.Success = true
	o.Err = nil
}

func (o *Outcome) fail(s State, err error) {
	if s != o.State {
		o.enter(s)
	}
	o.Success = false
	o.Err = err
}
