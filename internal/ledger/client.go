package ledger

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/xueqianLu/contestpay/internal/logx"
)

// RPC is the subset of the ledger JSON-RPC surface this package needs.
// *rpc.Client satisfies it.
type RPC interface {
	GetBalance(ctx context.Context, account solana.PublicKey, commitment rpc.CommitmentType) (*rpc.GetBalanceResult, error)
	GetTokenAccountBalance(ctx context.Context, account solana.PublicKey, commitment rpc.CommitmentType) (*rpc.GetTokenAccountBalanceResult, error)
	GetAccountInfo(ctx context.Context, account solana.PublicKey) (*rpc.GetAccountInfoResult, error)
	GetLatestBlockhash(ctx context.Context, commitment rpc.CommitmentType) (*rpc.GetLatestBlockhashResult, error)
	SendTransactionWithOpts(ctx context.Context, transaction *solana.Transaction, opts rpc.TransactionOpts) (solana.Signature, error)
	GetSignatureStatuses(ctx context.Context, searchTransactionHistory bool, transactionSignatures ...solana.Signature) (*rpc.GetSignatureStatusesResult, error)
}

// SendOptions are passed to the ledger on submission.
type SendOptions struct {
	SkipPreflight bool
	MaxRetries    uint
}

// Client reads balances and submits transactions. No results are cached.
type Client struct {
	rpc             RPC
	commitment      rpc.CommitmentType
	confirmTimeout  time.Duration
	confirmInterval time.Duration
}

// Option configures a Client.
type Option func(*Client)

// WithCommitment sets the commitment used for reads and confirmation.
func WithCommitment(c string) Option {
	return func(cl *Client) {
		if c != "" {
			cl.commitment = rpc.CommitmentType(c)
		}
	}
}

// WithConfirmation sets how long and how often Confirm polls.
func WithConfirmation(timeout, interval time.Duration) Option {
	return func(cl *Client) {
		if timeout > 0 {
			cl.confirmTimeout = timeout
		}
		if interval > 0 {
			cl.confirmInterval = interval
		}
	}
}

// NewClient dials nothing; the RPC endpoint is contacted lazily per call.
func NewClient(endpoint string, opts ...Option) *Client {
	return NewClientWithRPC(rpc.New(endpoint), opts...)
}

// NewClientWithRPC wraps an existing RPC implementation.
func NewClientWithRPC(r RPC, opts ...Option) *Client {
	c := &Client{
		rpc:             r,
		commitment:      rpc.CommitmentConfirmed,
		confirmTimeout:  60 * time.Second,
		confirmInterval: 2 * time.Second,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func parseAddress(addr string) (solana.PublicKey, error) {
	if addr == "" {
		return solana.PublicKey{}, fmt.Errorf("%w: empty", ErrInvalidAddress)
	}
	pk, err := solana.PublicKeyFromBase58(addr)
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("%w: %q: %v", ErrInvalidAddress, addr, err)
	}
	return pk, nil
}

// NativeBalance returns the native balance of address in lamports.
func (c *Client) NativeBalance(ctx context.Context, address string) (uint64, error) {
	pk, err := parseAddress(address)
	if err != nil {
		return 0, err
	}
	res, err := c.rpc.GetBalance(ctx, pk, c.commitment)
	if err != nil {
		return 0, fmt.Errorf("failed to get balance for %s: %w", address, err)
	}
	return res.Value, nil
}

// TokenBalance returns the owner's balance of mint in the token's smallest unit.
// It fails with ErrAccountNotFound when the associated token account does not exist.
func (c *Client) TokenBalance(ctx context.Context, owner, mint string) (uint64, error) {
	ata, err := c.associatedAccount(owner, mint)
	if err != nil {
		return 0, err
	}
	res, err := c.rpc.GetTokenAccountBalance(ctx, ata, c.commitment)
	if err != nil {
		if isAccountMissing(err) {
			return 0, fmt.Errorf("%w: token account %s", ErrAccountNotFound, ata)
		}
		return 0, fmt.Errorf("failed to get token balance for %s: %w", ata, err)
	}
	if res == nil || res.Value == nil {
		return 0, fmt.Errorf("%w: token account %s", ErrAccountNotFound, ata)
	}
	amount, err := strconv.ParseUint(res.Value.Amount, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("unexpected token amount %q: %w", res.Value.Amount, err)
	}
	return amount, nil
}

// TokenAccountExists reports whether the owner's associated token account for mint exists.
func (c *Client) TokenAccountExists(ctx context.Context, owner, mint string) (bool, error) {
	ata, err := c.associatedAccount(owner, mint)
	if err != nil {
		return false, err
	}
	res, err := c.rpc.GetAccountInfo(ctx, ata)
	if err != nil {
		if isAccountMissing(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to get account %s: %w", ata, err)
	}
	return res != nil && res.Value != nil, nil
}

func (c *Client) associatedAccount(owner, mint string) (solana.PublicKey, error) {
	ownerPK, err := parseAddress(owner)
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("owner: %w", err)
	}
	mintPK, err := parseAddress(mint)
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("mint: %w", err)
	}
	ata, _, err := solana.FindAssociatedTokenAddress(ownerPK, mintPK)
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("failed to derive token account: %w", err)
	}
	return ata, nil
}

// LatestAnchor returns a recent blockhash.
func (c *Client) LatestAnchor(ctx context.Context) (solana.Hash, error) {
	res, err := c.rpc.GetLatestBlockhash(ctx, c.commitment)
	if err != nil {
		return solana.Hash{}, fmt.Errorf("failed to get latest blockhash: %w", err)
	}
	if res == nil || res.Value == nil {
		return solana.Hash{}, fmt.Errorf("failed to get latest blockhash: empty result")
	}
	return res.Value.Blockhash, nil
}

// Submit sends a signed transaction and returns its signature.
func (c *Client) Submit(ctx context.Context, tx *solana.Transaction, opts SendOptions) (solana.Signature, error) {
	maxRetries := opts.MaxRetries
	sig, err := c.rpc.SendTransactionWithOpts(ctx, tx, rpc.TransactionOpts{
		SkipPreflight:       opts.SkipPreflight,
		PreflightCommitment: c.commitment,
		MaxRetries:          &maxRetries,
	})
	if err != nil {
		return solana.Signature{}, fmt.Errorf("failed to send transaction: %w", err)
	}
	logx.Debug("LEDGER", "submitted ", sig.String())
	return sig, nil
}

// Confirm polls the signature status until the transaction reaches the
// configured commitment, the ledger reports an error, or the timeout expires.
func (c *Client) Confirm(ctx context.Context, sig solana.Signature) error {
	ctx, cancel := context.WithTimeout(ctx, c.confirmTimeout)
	defer cancel()

	ticker := time.NewTicker(c.confirmInterval)
	defer ticker.Stop()

	for {
		done, err := c.checkStatus(ctx, sig)
		if done || err != nil {
			return err
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("%w: %s", ErrConfirmTimeout, sig)
		case <-ticker.C:
		}
	}
}

func (c *Client) checkStatus(ctx context.Context, sig solana.Signature) (bool, error) {
	res, err := c.rpc.GetSignatureStatuses(ctx, true, sig)
	if err != nil {
		// Transient; keep polling until the deadline.
		logx.Warn("LEDGER", "signature status for ", sig.String(), ": ", err)
		return false, nil
	}
	if res == nil || len(res.Value) == 0 || res.Value[0] == nil {
		return false, nil
	}
	st := res.Value[0]
	if st.Err != nil {
		return true, &TxError{Signature: sig.String(), Reason: fmt.Sprint(st.Err)}
	}
	return reached(st.ConfirmationStatus, c.commitment), nil
}

func reached(status rpc.ConfirmationStatusType, want rpc.CommitmentType) bool {
	switch status {
	case rpc.ConfirmationStatusFinalized:
		return true
	case rpc.ConfirmationStatusConfirmed:
		return want != rpc.CommitmentFinalized
	case rpc.ConfirmationStatusProcessed:
		return want == rpc.CommitmentProcessed
	}
	return false
}
