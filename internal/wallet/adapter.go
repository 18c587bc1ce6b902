package wallet

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
	"github.com/xueqianLu/contestpay/internal/logx"
	"github.com/xueqianLu/contestpay/internal/txbuilder"
	"golang.org/x/sync/errgroup"
)

// Transaction is either a *txbuilder.Draft (legacy form, anchor and fee payer
// attached at signing time) or a precompiled *solana.Transaction.
type Transaction interface{}

// Cosigner adds the fee payer's signature when fees are sponsored.
type Cosigner interface {
	PublicKey() solana.PublicKey
	SignMessage(message []byte) (solana.Signature, error)
}

// KeypairCosigner signs with a locally held keypair.
type KeypairCosigner struct {
	key solana.PrivateKey
}

func NewKeypairCosigner(key solana.PrivateKey) *KeypairCosigner {
	return &KeypairCosigner{key: key}
}

// LoadKeypairCosigner reads a keypair file in the solana-keygen JSON format.
func LoadKeypairCosigner(path string) (*KeypairCosigner, error) {
	key, err := solana.PrivateKeyFromSolanaKeygenFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load fee payer keypair: %w", err)
	}
	return NewKeypairCosigner(key), nil
}

func (c *KeypairCosigner) PublicKey() solana.PublicKey {
	return c.key.PublicKey()
}

func (c *KeypairCosigner) SignMessage(message []byte) (solana.Signature, error) {
	return c.key.Sign(message)
}

// Adapter presents a custodial wallet as a synchronous signer. Identical
// transactions are signed at most once per PendingSet.
type Adapter struct {
	wallet   Wallet
	anchors  txbuilder.AnchorSource
	pending  *PendingSet
	options  RequestOptions
	cosigner Cosigner
}

// AdapterOption configures an Adapter.
type AdapterOption func(*Adapter)

// WithRequestOptions sets the submission hints forwarded to the provider.
func WithRequestOptions(o RequestOptions) AdapterOption {
	return func(a *Adapter) { a.options = o }
}

// WithCosigner adds a fee payer cosigner.
func WithCosigner(c Cosigner) AdapterOption {
	return func(a *Adapter) { a.cosigner = c }
}

// NewAdapter binds w to a pending set. A nil set gets a private one.
func NewAdapter(w Wallet, anchors txbuilder.AnchorSource, pending *PendingSet, opts ...AdapterOption) *Adapter {
	if pending == nil {
		pending = NewPendingSet()
	}
	a := &Adapter{
		wallet:  w,
		anchors: anchors,
		pending: pending,
		options: RequestOptions{SkipPreflight: true, MaxRetries: 3},
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Address returns the wallet address.
func (a *Adapter) Address() string {
	return a.wallet.Address()
}

// Pending exposes the set the adapter guards with.
func (a *Adapter) Pending() *PendingSet {
	return a.pending
}

func (a *Adapter) walletKey() (solana.PublicKey, error) {
	addr := a.wallet.Address()
	if addr == "" {
		return solana.PublicKey{}, fmt.Errorf("%w: wallet has no address", ErrInvalidWalletState)
	}
	pk, err := solana.PublicKeyFromBase58(addr)
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("%w: malformed address %q", ErrInvalidWalletState, addr)
	}
	return pk, nil
}

// prepare turns tx into a compiled, anchored transaction.
func (a *Adapter) prepare(ctx context.Context, tx Transaction) (*solana.Transaction, error) {
	switch t := tx.(type) {
	case *txbuilder.Draft:
		if t == nil {
			return nil, ErrUnsupportedTransactionShape
		}
		return txbuilder.Build(ctx, a.anchors, t)
	case *solana.Transaction:
		if t == nil {
			return nil, ErrUnsupportedTransactionShape
		}
		if !t.Message.IsVersioned() && t.Message.RecentBlockhash == (solana.Hash{}) {
			anchor, err := a.anchors.LatestAnchor(ctx)
			if err != nil {
				return nil, err
			}
			t.Message.RecentBlockhash = anchor
		}
		return t, nil
	default:
		return nil, fmt.Errorf("%w: %T", ErrUnsupportedTransactionShape, tx)
	}
}

// SignTransaction signs tx with the wallet through its provider.
//
// The fingerprint is recorded before the provider is called and removed if the
// request fails or the caller later Releases the transaction, so a second
// identical request fails fast with ErrDuplicateTransaction while the first is
// in flight or after it succeeded.
func (a *Adapter) SignTransaction(ctx context.Context, tx Transaction) (*solana.Transaction, error) {
	pk, err := a.walletKey()
	if err != nil {
		return nil, err
	}
	unsigned, err := a.prepare(ctx, tx)
	if err != nil {
		return nil, err
	}
	idx := signerIndex(unsigned, pk)
	if idx < 0 {
		return nil, fmt.Errorf("%w: %s is not a required signer", ErrInvalidWalletState, pk)
	}

	fp, err := txbuilder.Fingerprint(unsigned)
	if err != nil {
		return nil, err
	}
	if !a.pending.TryAdd(fp) {
		logx.Warn("WALLET", "duplicate sign request rejected for ", pk.String())
		return nil, ErrDuplicateTransaction
	}

	signed, err := a.dispatch(ctx, unsigned, pk, idx, fp)
	if err != nil {
		a.pending.Remove(fp)
		return nil, err
	}
	return signed, nil
}

func (a *Adapter) dispatch(ctx context.Context, unsigned *solana.Transaction, pk solana.PublicKey, idx int, fp string) (*solana.Transaction, error) {
	provider, err := a.wallet.Provider(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrProviderRequestFailed, err)
	}
	res, err := provider.Request(ctx, RequestArgs{
		Method: MethodSignTransaction,
		Params: RequestParams{
			Address: pk.String(),
			Message: fp,
			Options: a.options,
		},
	})
	if err != nil {
		logx.Error("WALLET", "sign request failed: ", err)
		return nil, fmt.Errorf("%w: %w", ErrProviderRequestFailed, err)
	}
	if res == nil {
		return nil, fmt.Errorf("%w: empty response", ErrProviderRequestFailed)
	}

	msg, err := base64.StdEncoding.DecodeString(fp)
	if err != nil {
		return nil, err
	}
	signed, err := applyResult(unsigned, msg, pk, idx, res)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrProviderRequestFailed, err)
	}
	if err := a.cosign(signed, msg); err != nil {
		return nil, err
	}
	return signed, nil
}

func applyResult(unsigned *solana.Transaction, msg []byte, pk solana.PublicKey, idx int, res *RequestResult) (*solana.Transaction, error) {
	if res.SignedTransaction != "" {
		raw, err := base64.StdEncoding.DecodeString(res.SignedTransaction)
		if err != nil {
			return nil, fmt.Errorf("invalid signed transaction encoding: %w", err)
		}
		signed, err := solana.TransactionFromDecoder(bin.NewBinDecoder(raw))
		if err != nil {
			return nil, fmt.Errorf("invalid signed transaction: %w", err)
		}
		got, err := signed.Message.MarshalBinary()
		if err != nil {
			return nil, err
		}
		if !bytes.Equal(got, msg) {
			return nil, fmt.Errorf("provider returned a different message")
		}
		if idx >= len(signed.Signatures) || !signed.Signatures[idx].Verify(pk, msg) {
			return nil, fmt.Errorf("provider returned transaction without a valid wallet signature")
		}
		return signed, nil
	}

	sig, err := solana.SignatureFromBase58(res.Signature)
	if err != nil {
		return nil, fmt.Errorf("invalid signature: %w", err)
	}
	if !sig.Verify(pk, msg) {
		return nil, fmt.Errorf("signature does not verify for %s", pk)
	}
	setSignature(unsigned, idx, sig)
	return unsigned, nil
}

func (a *Adapter) cosign(tx *solana.Transaction, msg []byte) error {
	if a.cosigner == nil {
		return nil
	}
	idx := signerIndex(tx, a.cosigner.PublicKey())
	if idx < 0 {
		return nil
	}
	if idx < len(tx.Signatures) && tx.Signatures[idx] != (solana.Signature{}) {
		return nil
	}
	sig, err := a.cosigner.SignMessage(msg)
	if err != nil {
		return fmt.Errorf("fee payer signature: %w", err)
	}
	setSignature(tx, idx, sig)
	return nil
}

func signerIndex(tx *solana.Transaction, pk solana.PublicKey) int {
	n := int(tx.Message.Header.NumRequiredSignatures)
	for i := 0; i < n && i < len(tx.Message.AccountKeys); i++ {
		if tx.Message.AccountKeys[i].Equals(pk) {
			return i
		}
	}
	return -1
}

func setSignature(tx *solana.Transaction, idx int, sig solana.Signature) {
	n := int(tx.Message.Header.NumRequiredSignatures)
	if len(tx.Signatures) < n {
		sigs := make([]solana.Signature, n)
		copy(sigs, tx.Signatures)
		tx.Signatures = sigs
	}
	tx.Signatures[idx] = sig
}

// Release forgets the fingerprint of tx so an identical transaction may be
// signed again. Callers use it once the ledger has definitively rejected tx.
func (a *Adapter) Release(tx *solana.Transaction) {
	if tx == nil {
		return
	}
	fp, err := txbuilder.Fingerprint(tx)
	if err != nil {
		logx.Warn("WALLET", "cannot release transaction: ", err)
		return
	}
	a.pending.Remove(fp)
}

// BatchResult is the outcome of one element of SignAllTransactions.
type BatchResult struct {
	Tx  *solana.Transaction
	Err error
}

// SignAllTransactions signs every element concurrently. Each element is
// deduplicated on its own and a failure never affects the others.
func (a *Adapter) SignAllTransactions(ctx context.Context, txs []Transaction) []BatchResult {
	results := make([]BatchResult, len(txs))
	var g errgroup.Group
	for i, tx := range txs {
		i, tx := i, tx
		g.Go(func() error {
			signed, err := a.SignTransaction(ctx, tx)
			results[i] = BatchResult{Tx: signed, Err: err}
			return nil
		})
	}
	_ = g.Wait()
	return results
}

// SignMessage signs arbitrary bytes with the wallet. It is not deduplicated.
func (a *Adapter) SignMessage(ctx context.Context, message []byte) (solana.Signature, error) {
	pk, err := a.walletKey()
	if err != nil {
		return solana.Signature{}, err
	}
	provider, err := a.wallet.Provider(ctx)
	if err != nil {
		return solana.Signature{}, fmt.Errorf("%w: %w", ErrProviderRequestFailed, err)
	}
	res, err := provider.Request(ctx, RequestArgs{
		Method: MethodSign,
		Params: RequestParams{
			Address: pk.String(),
			Message: base64.StdEncoding.EncodeToString(message),
		},
	})
	if err != nil {
		return solana.Signature{}, fmt.Errorf("%w: %w", ErrProviderRequestFailed, err)
	}
	if res == nil {
		return solana.Signature{}, fmt.Errorf("%w: empty response", ErrProviderRequestFailed)
	}
	sig, err := solana.SignatureFromBase58(res.Signature)
	if err != nil {
		return solana.Signature{}, fmt.Errorf("%w: invalid signature: %w", ErrProviderRequestFailed, err)
	}
	if !sig.Verify(pk, message) {
		return solana.Signature{}, fmt.Errorf("%w: signature does not verify", ErrProviderRequestFailed)
	}
	return sig, nil
}
