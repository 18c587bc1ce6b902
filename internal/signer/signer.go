package signer

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
	"github.com/xueqianLu/contestpay/internal/wallet"
)

var (
	ErrInvalidMessage = errors.New("signer: invalid transaction message")
	ErrNotASigner     = errors.New("signer: address is not a required signer of the message")
)

// Signer provides transaction and message signing functionality.
type Signer struct {
	keyManager KeyManager
}

// NewSigner creates a new Signer with a given KeyManager.
func NewSigner(keyManager KeyManager) *Signer {
	return &Signer{
		keyManager: keyManager,
	}
}

// GetAccounts returns the list of accounts managed by the underlying KeyManager.
func (s *Signer) GetAccounts() []solana.PublicKey {
	return s.keyManager.GetAccounts()
}

// CreateKey creates a new account in the KeyManager and returns its address.
func (s *Signer) CreateKey() (solana.PublicKey, error) {
	return s.keyManager.CreateKey()
}

// SignTransaction signs a serialized transaction message. The message must
// parse and must list address among its required signers.
func (s *Signer) SignTransaction(address solana.PublicKey, message []byte) (solana.Signature, error) {
	var msg solana.Message
	if err := msg.UnmarshalWithDecoder(bin.NewBinDecoder(message)); err != nil {
		return solana.Signature{}, fmt.Errorf("%w: %v", ErrInvalidMessage, err)
	}
	if !requiredSigner(&msg, address) {
		return solana.Signature{}, fmt.Errorf("%w: %s", ErrNotASigner, address)
	}
	return s.keyManager.Sign(address, message)
}

// SignMessage signs arbitrary bytes with the specified account.
func (s *Signer) SignMessage(address solana.PublicKey, message []byte) (solana.Signature, error) {
	return s.keyManager.Sign(address, message)
}

func requiredSigner(msg *solana.Message, address solana.PublicKey) bool {
	n := int(msg.Header.NumRequiredSignatures)
	for i := 0; i < n && i < len(msg.AccountKeys); i++ {
		if msg.AccountKeys[i].Equals(address) {
			return true
		}
	}
	return false
}

// EmbeddedWallet serves provider requests in process from a KeyManager.
type EmbeddedWallet struct {
	signer  *Signer
	address solana.PublicKey
}

// NewEmbeddedWallet binds a wallet to address. An empty address selects the
// first managed account.
func NewEmbeddedWallet(s *Signer, address string) (*EmbeddedWallet, error) {
	if address == "" {
		accounts := s.GetAccounts()
		if len(accounts) == 0 {
			return nil, fmt.Errorf("no accounts available in key manager")
		}
		return &EmbeddedWallet{signer: s, address: accounts[0]}, nil
	}
	pk, err := solana.PublicKeyFromBase58(address)
	if err != nil {
		return nil, fmt.Errorf("invalid wallet address %q: %w", address, err)
	}
	return &EmbeddedWallet{signer: s, address: pk}, nil
}

func (w *EmbeddedWallet) Address() string {
	return w.address.String()
}

func (w *EmbeddedWallet) Provider(ctx context.Context) (wallet.Provider, error) {
	return w, nil
}

// Request implements wallet.Provider.
func (w *EmbeddedWallet) Request(ctx context.Context, args wallet.RequestArgs) (*wallet.RequestResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if args.Params.Address != w.address.String() {
		return nil, fmt.Errorf("%w: %s", ErrAccountNotFound, args.Params.Address)
	}
	payload, err := base64.StdEncoding.DecodeString(args.Params.Message)
	if err != nil {
		return nil, fmt.Errorf("invalid message encoding: %w", err)
	}

	var sig solana.Signature
	switch args.Method {
	case wallet.MethodSignTransaction:
		sig, err = w.signer.SignTransaction(w.address, payload)
	case wallet.MethodSign:
		sig, err = w.signer.SignMessage(w.address, payload)
	default:
		return nil, fmt.Errorf("unsupported method %q", args.Method)
	}
	if err != nil {
		return nil, err
	}
	return &wallet.RequestResult{Signature: sig.String()}, nil
}

var (
	_ wallet.Wallet   = (*EmbeddedWallet)(nil)
	_ wallet.Provider = (*EmbeddedWallet)(nil)
)
