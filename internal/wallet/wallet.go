// Package wallet adapts a custodial wallet, reachable only through an
// asynchronous request capability, to a synchronous signing interface.
package wallet

import (
	"context"
	"errors"
)

var (
	ErrInvalidWalletState          = errors.New("wallet: invalid wallet state")
	ErrDuplicateTransaction        = errors.New("wallet: duplicate transaction")
	ErrProviderRequestFailed       = errors.New("wallet: provider request failed")
	ErrUnsupportedTransactionShape = errors.New("wallet: unsupported transaction shape")
)

// Methods understood by providers.
const (
	MethodSignTransaction = "signTransaction"
	MethodSign            = "sign"
)

// Wallet is a reference to a remotely held signing key. The private key never
// passes through it.
type Wallet interface {
	// Address returns the base58 public address, or "" if the wallet is not ready.
	Address() string
	// Provider returns the channel through which signing requests are dispatched.
	Provider(ctx context.Context) (Provider, error)
}

// Provider dispatches signing requests to wherever the key lives.
type Provider interface {
	Request(ctx context.Context, args RequestArgs) (*RequestResult, error)
}

// RequestArgs is a single provider request.
type RequestArgs struct {
	Method string        `json:"method"`
	Params RequestParams `json:"params"`
}

// RequestParams carries the payload to sign.
type RequestParams struct {
	Address string `json:"address"`
	// Message is the base64 encoded payload: the serialized transaction message
	// for signTransaction, raw bytes for sign.
	Message string         `json:"message"`
	Options RequestOptions `json:"options"`
}

// RequestOptions are submission hints forwarded to providers that also send.
type RequestOptions struct {
	SkipPreflight bool `json:"skipPreflight"`
	MaxRetries    uint `json:"maxRetries"`
}

// RequestResult is what a provider returns.
type RequestResult struct {
	// Signature is the base58 signature by Address over the message.
	Signature string `json:"signature"`
	// SignedTransaction optionally carries the full base64 wire transaction when
	// the provider adds signatures of its own (for example a sponsored fee payer).
	SignedTransaction string `json:"signedTransaction,omitempty"`
}
