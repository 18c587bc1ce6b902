package txbuilder

import (
	"context"
	"errors"
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	player   = "9xQeWvG816bUx9EPjHmaT23yvVM2ZWbrrpZb9PusVFin"
	escrow   = "SysvarC1ock11111111111111111111111111111111"
	feePayer = "TokenkegQfeZyiNwAJbNbGKPFXCWuBvf9Ss623VQ5DA"
	mint     = "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v"
)

type fixedAnchor struct {
	hash  solana.Hash
	err   error
	calls int
}

func (f *fixedAnchor) LatestAnchor(ctx context.Context) (solana.Hash, error) {
	f.calls++
	return f.hash, f.err
}

func TestNewDraft_MissingFeePayer(t *testing.T) {
	ix := solana.NewInstruction(MemoProgramID, nil, []byte("x"))
	_, err := NewDraft("", ix)
	assert.ErrorIs(t, err, ErrMissingFeePayer)

	_, err = New("").EnterContest(player, escrow, "c1", 1)
	assert.ErrorIs(t, err, ErrMissingFeePayer)
}

func TestEnterContest_InvalidAddress(t *testing.T) {
	b := New(feePayer)
	tests := []struct {
		name   string
		player string
		escrow string
	}{
		{"bad player", "0xdeadbeef", escrow},
		{"bad escrow", player, "not base58 !"},
		{"empty escrow", player, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := b.EnterContest(tt.player, tt.escrow, "c1", 200_000_000)
			assert.ErrorIs(t, err, ErrInvalidAddress)
		})
	}

	_, err := New("bogus").EnterContest(player, escrow, "c1", 1)
	assert.ErrorIs(t, err, ErrInvalidAddress)
}

func TestEnterContest_Compile(t *testing.T) {
	d, err := New(feePayer).EnterContest(player, escrow, "c1", 200_000_000)
	require.NoError(t, err)
	require.Len(t, d.Instructions, 2)

	anchor := solana.Hash{1, 2, 3}
	tx, err := d.Compile(anchor)
	require.NoError(t, err)

	assert.Equal(t, anchor, tx.Message.RecentBlockhash)
	assert.Equal(t, solana.MustPublicKeyFromBase58(feePayer), tx.Message.AccountKeys[0])
	assert.Equal(t, uint8(2), tx.Message.Header.NumRequiredSignatures, "fee payer and player sign")
	assert.Empty(t, tx.Signatures)
}

func TestFingerprint_Deterministic(t *testing.T) {
	d, err := New(feePayer).EnterContest(player, escrow, "c1", 200_000_000)
	require.NoError(t, err)
	anchor := solana.Hash{9}

	tx1, err := d.Compile(anchor)
	require.NoError(t, err)
	tx2, err := d.Compile(anchor)
	require.NoError(t, err)

	fp1, err := Fingerprint(tx1)
	require.NoError(t, err)
	fp1again, err := Fingerprint(tx1)
	require.NoError(t, err)
	fp2, err := Fingerprint(tx2)
	require.NoError(t, err)

	assert.Equal(t, fp1, fp1again)
	assert.Equal(t, fp1, fp2)
}

func TestFingerprint_Differs(t *testing.T) {
	b := New(feePayer)
	base, err := b.EnterContest(player, escrow, "c1", 200_000_000)
	require.NoError(t, err)
	otherFee, err := b.EnterContest(player, escrow, "c1", 300_000_000)
	require.NoError(t, err)
	otherPayer, err := New(escrow).EnterContest(player, escrow, "c1", 200_000_000)
	require.NoError(t, err)

	fp := func(d *Draft, h solana.Hash) string {
		tx, err := d.Compile(h)
		require.NoError(t, err)
		s, err := Fingerprint(tx)
		require.NoError(t, err)
		return s
	}

	ref := fp(base, solana.Hash{1})
	assert.NotEqual(t, ref, fp(base, solana.Hash{2}), "anchor")
	assert.NotEqual(t, ref, fp(otherFee, solana.Hash{1}), "instructions")
	assert.NotEqual(t, ref, fp(otherPayer, solana.Hash{1}), "fee payer")
}

func TestBuild_FetchesAnchor(t *testing.T) {
	d, err := New(feePayer).Transfer(player, escrow, 5)
	require.NoError(t, err)

	anchors := &fixedAnchor{hash: solana.Hash{4}}
	tx, err := Build(context.Background(), anchors, d)
	require.NoError(t, err)
	assert.Equal(t, 1, anchors.calls)
	assert.Equal(t, solana.Hash{4}, tx.Message.RecentBlockhash)

	anchors = &fixedAnchor{err: errors.New("rpc down")}
	_, err = Build(context.Background(), anchors, d)
	assert.EqualError(t, err, "rpc down")
}

func TestTransfer_ZeroAmount(t *testing.T) {
	_, err := New(feePayer).Transfer(player, escrow, 0)
	assert.ErrorIs(t, err, ErrInvalidAmount)
}

func TestStake(t *testing.T) {
	b := New(feePayer)

	d, err := b.Stake(StakeParams{Owner: player, Mint: mint, Vault: escrow, Amount: 10, Decimals: 6})
	require.NoError(t, err)
	assert.Len(t, d.Instructions, 1)

	d, err = b.Stake(StakeParams{Owner: player, Mint: mint, Vault: escrow, Amount: 10, Decimals: 6, CreateVaultAccount: true, Memo: "stake:c1"})
	require.NoError(t, err)
	assert.Len(t, d.Instructions, 3)

	_, err = b.Stake(StakeParams{Owner: player, Mint: "mint?", Vault: escrow, Amount: 10})
	assert.ErrorIs(t, err, ErrInvalidAddress)
}
