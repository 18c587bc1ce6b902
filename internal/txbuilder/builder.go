// Package txbuilder assembles unsigned ledger transactions.
package txbuilder

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"

	"github.com/gagliardetto/solana-go"
	associatedtokenaccount "github.com/gagliardetto/solana-go/programs/associated-token-account"
	"github.com/gagliardetto/solana-go/programs/system"
	"github.com/gagliardetto/solana-go/programs/token"
)

var (
	ErrMissingFeePayer  = errors.New("txbuilder: fee payer is required")
	ErrInvalidAddress   = errors.New("txbuilder: invalid address")
	ErrNoInstructions   = errors.New("txbuilder: no instructions")
	ErrInvalidAmount    = errors.New("txbuilder: amount must be > 0")
	ErrMissingContestID = errors.New("txbuilder: contest id is required")
)

// MemoProgramID is the SPL memo program.
var MemoProgramID = solana.MustPublicKeyFromBase58("MemoSq4gqABAXKb96qnH8TysNcWxMyWCqXgDLGmfcHr")

// AnchorSource yields a recent blockhash.
type AnchorSource interface {
	LatestAnchor(ctx context.Context) (solana.Hash, error)
}

// ValidateAddress parses a base58 ledger address.
func ValidateAddress(addr string) (solana.PublicKey, error) {
	if addr == "" {
		return solana.PublicKey{}, fmt.Errorf("%w: empty", ErrInvalidAddress)
	}
	pk, err := solana.PublicKeyFromBase58(addr)
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("%w: %q", ErrInvalidAddress, addr)
	}
	return pk, nil
}

// Draft is the mutable legacy form of a transaction: instructions and a fee
// payer, without a recent anchor. Compile fixes the message bytes.
type Draft struct {
	Instructions []solana.Instruction
	FeePayer     solana.PublicKey
}

// NewDraft validates the fee payer and wraps the instructions.
func NewDraft(feePayer string, instructions ...solana.Instruction) (*Draft, error) {
	if feePayer == "" {
		return nil, ErrMissingFeePayer
	}
	payer, err := ValidateAddress(feePayer)
	if err != nil {
		return nil, fmt.Errorf("fee payer: %w", err)
	}
	if len(instructions) == 0 {
		return nil, ErrNoInstructions
	}
	return &Draft{Instructions: instructions, FeePayer: payer}, nil
}

// Compile attaches the anchor and fee payer and returns the unsigned transaction.
// The serialized message of the result is the exact unit that gets signed.
func (d *Draft) Compile(anchor solana.Hash) (*solana.Transaction, error) {
	if d.FeePayer.IsZero() {
		return nil, ErrMissingFeePayer
	}
	tx, err := solana.NewTransaction(d.Instructions, anchor, solana.TransactionPayer(d.FeePayer))
	if err != nil {
		return nil, fmt.Errorf("failed to compile transaction: %w", err)
	}
	return tx, nil
}

// Build fetches a recent anchor and compiles the draft.
func Build(ctx context.Context, anchors AnchorSource, d *Draft) (*solana.Transaction, error) {
	anchor, err := anchors.LatestAnchor(ctx)
	if err != nil {
		return nil, err
	}
	return d.Compile(anchor)
}

// Fingerprint returns the base64 encoding of the serialized message. Two
// fingerprints are equal iff instructions, fee payer and anchor are equal.
func Fingerprint(tx *solana.Transaction) (string, error) {
	if tx == nil {
		return "", fmt.Errorf("txbuilder: nil transaction")
	}
	msg, err := tx.Message.MarshalBinary()
	if err != nil {
		return "", fmt.Errorf("failed to serialize message: %w", err)
	}
	return base64.StdEncoding.EncodeToString(msg), nil
}

// Builder produces drafts for the contest program calls. Fees are sponsored by
// a separate payer, so every draft carries the configured fee payer.
type Builder struct {
	feePayer string
}

// New returns a Builder that uses feePayer on every draft.
func New(feePayer string) *Builder {
	return &Builder{feePayer: feePayer}
}

// FeePayer returns the configured fee payer address.
func (b *Builder) FeePayer() string {
	return b.feePayer
}

// Transfer moves lamports between two native accounts.
func (b *Builder) Transfer(from, to string, lamports uint64) (*Draft, error) {
	if b.feePayer == "" {
		return nil, ErrMissingFeePayer
	}
	fromPK, err := ValidateAddress(from)
	if err != nil {
		return nil, fmt.Errorf("from: %w", err)
	}
	toPK, err := ValidateAddress(to)
	if err != nil {
		return nil, fmt.Errorf("to: %w", err)
	}
	if lamports == 0 {
		return nil, ErrInvalidAmount
	}
	ix := system.NewTransferInstruction(lamports, fromPK, toPK).Build()
	return NewDraft(b.feePayer, ix)
}

// EnterContest pays the entry fee from player to the contest escrow and tags
// the transaction with the contest id.
func (b *Builder) EnterContest(player, escrow, contestID string, fee uint64) (*Draft, error) {
	if b.feePayer == "" {
		return nil, ErrMissingFeePayer
	}
	if contestID == "" {
		return nil, ErrMissingContestID
	}
	playerPK, err := ValidateAddress(player)
	if err != nil {
		return nil, fmt.Errorf("player: %w", err)
	}
	escrowPK, err := ValidateAddress(escrow)
	if err != nil {
		return nil, fmt.Errorf("contest escrow: %w", err)
	}
	if fee == 0 {
		return nil, ErrInvalidAmount
	}

	transfer := system.NewTransferInstruction(fee, playerPK, escrowPK).Build()
	return NewDraft(b.feePayer, transfer, memo(playerPK, "contest:"+contestID))
}

// StakeParams describes a token stake into the staking vault.
type StakeParams struct {
	Owner    string
	Mint     string
	Vault    string
	Amount   uint64
	Decimals uint8
	// CreateVaultAccount prepends creation of the vault's associated token
	// account, paid by the fee payer. Set it only when that account is missing.
	CreateVaultAccount bool
	Memo               string
}

// Stake transfers tokens from the owner's associated token account to the vault's.
func (b *Builder) Stake(p StakeParams) (*Draft, error) {
	if b.feePayer == "" {
		return nil, ErrMissingFeePayer
	}
	ownerPK, err := ValidateAddress(p.Owner)
	if err != nil {
		return nil, fmt.Errorf("owner: %w", err)
	}
	mintPK, err := ValidateAddress(p.Mint)
	if err != nil {
		return nil, fmt.Errorf("token mint: %w", err)
	}
	vaultPK, err := ValidateAddress(p.Vault)
	if err != nil {
		return nil, fmt.Errorf("stake vault: %w", err)
	}
	payerPK, err := ValidateAddress(b.feePayer)
	if err != nil {
		return nil, fmt.Errorf("fee payer: %w", err)
	}
	if p.Amount == 0 {
		return nil, ErrInvalidAmount
	}

	source, _, err := solana.FindAssociatedTokenAddress(ownerPK, mintPK)
	if err != nil {
		return nil, fmt.Errorf("failed to derive owner token account: %w", err)
	}
	dest, _, err := solana.FindAssociatedTokenAddress(vaultPK, mintPK)
	if err != nil {
		return nil, fmt.Errorf("failed to derive vault token account: %w", err)
	}

	var ixs []solana.Instruction
	if p.CreateVaultAccount {
		ixs = append(ixs, associatedtokenaccount.NewCreateInstruction(payerPK, vaultPK, mintPK).Build())
	}
	ixs = append(ixs, token.NewTransferCheckedInstruction(
		p.Amount,
		p.Decimals,
		source,
		mintPK,
		dest,
		ownerPK,
		nil,
	).Build())
	if p.Memo != "" {
		ixs = append(ixs, memo(ownerPK, p.Memo))
	}
	return NewDraft(b.feePayer, ixs...)
}

func memo(signer solana.PublicKey, text string) solana.Instruction {
	return solana.NewInstruction(
		MemoProgramID,
		solana.AccountMetaSlice{solana.Meta(signer).SIGNER()},
		[]byte(text),
	)
}
