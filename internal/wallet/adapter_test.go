package wallet

import (
	"context"
	"encoding/base64"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xueqianLu/contestpay/internal/txbuilder"
)

const escrow = "SysvarC1ock11111111111111111111111111111111"

type fixedAnchor struct{ hash solana.Hash }

func (f fixedAnchor) LatestAnchor(ctx context.Context) (solana.Hash, error) {
	return f.hash, nil
}

// keyProvider signs with an in-memory key. gate, when set, blocks each
// request until it is closed. failures makes the next N requests fail.
type keyProvider struct {
	key      solana.PrivateKey
	calls    atomic.Int32
	gate     chan struct{}
	entered  chan struct{}
	failures atomic.Int32
	failErr  error
}

func (p *keyProvider) Request(ctx context.Context, args RequestArgs) (*RequestResult, error) {
	p.calls.Add(1)
	if p.entered != nil {
		p.entered <- struct{}{}
	}
	if p.gate != nil {
		<-p.gate
	}
	if p.failures.Add(-1) >= 0 {
		return nil, p.failErr
	}
	msg, err := base64.StdEncoding.DecodeString(args.Params.Message)
	if err != nil {
		return nil, err
	}
	sig, err := p.key.Sign(msg)
	if err != nil {
		return nil, err
	}
	return &RequestResult{Signature: sig.String()}, nil
}

type testWallet struct {
	address  string
	provider Provider
}

func (w *testWallet) Address() string { return w.address }
func (w *testWallet) Provider(ctx context.Context) (Provider, error) {
	return w.provider, nil
}

func newTestWallet(t *testing.T) (*testWallet, *keyProvider) {
	t.Helper()
	key, err := solana.NewRandomPrivateKey()
	require.NoError(t, err)
	p := &keyProvider{key: key}
	return &testWallet{address: key.PublicKey().String(), provider: p}, p
}

func newFeePayer(t *testing.T) solana.PrivateKey {
	t.Helper()
	key, err := solana.NewRandomPrivateKey()
	require.NoError(t, err)
	return key
}

func draftFor(t *testing.T, w Wallet, feePayer solana.PublicKey, contestID string) *txbuilder.Draft {
	t.Helper()
	d, err := txbuilder.New(feePayer.String()).EnterContest(w.Address(), escrow, contestID, 200_000_000)
	require.NoError(t, err)
	return d
}

func TestSignTransaction_AttachesAnchorAndSignature(t *testing.T) {
	w, p := newTestWallet(t)
	payer := newFeePayer(t)
	a := NewAdapter(w, fixedAnchor{solana.Hash{5}}, nil)

	tx, err := a.SignTransaction(context.Background(), draftFor(t, w, payer.PublicKey(), "c1"))
	require.NoError(t, err)

	assert.Equal(t, solana.Hash{5}, tx.Message.RecentBlockhash)
	assert.Equal(t, payer.PublicKey(), tx.Message.AccountKeys[0])
	require.Len(t, tx.Signatures, 2)

	msg, err := tx.Message.MarshalBinary()
	require.NoError(t, err)
	assert.True(t, tx.Signatures[1].Verify(p.key.PublicKey(), msg))
	assert.Equal(t, int32(1), p.calls.Load())

	fp, err := txbuilder.Fingerprint(tx)
	require.NoError(t, err)
	assert.True(t, a.Pending().Contains(fp), "accepted fingerprint stays in the set")
}

func TestSignTransaction_ConcurrentDuplicate(t *testing.T) {
	w, p := newTestWallet(t)
	p.gate = make(chan struct{})
	p.entered = make(chan struct{}, 2)
	payer := newFeePayer(t)
	a := NewAdapter(w, fixedAnchor{solana.Hash{1}}, nil)

	first := draftFor(t, w, payer.PublicKey(), "c1")
	var wg sync.WaitGroup
	var firstErr error
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, firstErr = a.SignTransaction(context.Background(), first)
	}()

	// Wait until the first request is inside the provider.
	<-p.entered

	_, err := a.SignTransaction(context.Background(), draftFor(t, w, payer.PublicKey(), "c1"))
	assert.ErrorIs(t, err, ErrDuplicateTransaction)

	close(p.gate)
	wg.Wait()
	require.NoError(t, firstErr)
	assert.Equal(t, int32(1), p.calls.Load())
}

func TestSignTransaction_RollbackOnProviderError(t *testing.T) {
	w, p := newTestWallet(t)
	p.failErr = errors.New("user rejected the request")
	p.failures.Store(1)
	payer := newFeePayer(t)
	a := NewAdapter(w, fixedAnchor{solana.Hash{1}}, nil)

	_, err := a.SignTransaction(context.Background(), draftFor(t, w, payer.PublicKey(), "c1"))
	assert.ErrorIs(t, err, ErrProviderRequestFailed)
	assert.ErrorIs(t, err, p.failErr)
	assert.Contains(t, err.Error(), "user rejected the request")
	assert.Equal(t, 0, a.Pending().Len())

	_, err = a.SignTransaction(context.Background(), draftFor(t, w, payer.PublicKey(), "c1"))
	require.NoError(t, err)
	assert.Equal(t, int32(2), p.calls.Load())
}

func TestRelease_AllowsIdenticalResign(t *testing.T) {
	w, p := newTestWallet(t)
	payer := newFeePayer(t)
	a := NewAdapter(w, fixedAnchor{solana.Hash{4}}, nil)

	tx, err := a.SignTransaction(context.Background(), draftFor(t, w, payer.PublicKey(), "c1"))
	require.NoError(t, err)
	_, err = a.SignTransaction(context.Background(), draftFor(t, w, payer.PublicKey(), "c1"))
	require.ErrorIs(t, err, ErrDuplicateTransaction)

	a.Release(tx)
	assert.Equal(t, 0, a.Pending().Len())

	_, err = a.SignTransaction(context.Background(), draftFor(t, w, payer.PublicKey(), "c1"))
	require.NoError(t, err)
	assert.Equal(t, int32(2), p.calls.Load())

	a.Release(nil)
	assert.Equal(t, 1, a.Pending().Len())
}

func TestSignTransaction_InvalidWalletState(t *testing.T) {
	payer := newFeePayer(t)
	_, p := newTestWallet(t)

	tests := []struct {
		name    string
		address string
	}{
		{"empty address", ""},
		{"malformed address", "0xabc"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := &testWallet{address: tt.address, provider: p}
			a := NewAdapter(w, fixedAnchor{}, nil)
			d, err := txbuilder.NewDraft(payer.PublicKey().String(),
				solana.NewInstruction(txbuilder.MemoProgramID, nil, []byte("x")))
			require.NoError(t, err)

			_, err = a.SignTransaction(context.Background(), d)
			assert.ErrorIs(t, err, ErrInvalidWalletState)
		})
	}
	assert.Equal(t, int32(0), p.calls.Load())
}

func TestSignTransaction_WalletNotSigner(t *testing.T) {
	w, p := newTestWallet(t)
	payer := newFeePayer(t)
	other, _ := newTestWallet(t)
	a := NewAdapter(w, fixedAnchor{}, nil)

	_, err := a.SignTransaction(context.Background(), draftFor(t, other, payer.PublicKey(), "c1"))
	assert.ErrorIs(t, err, ErrInvalidWalletState)
	assert.Equal(t, int32(0), p.calls.Load())
}

func TestSignTransaction_UnsupportedShape(t *testing.T) {
	w, _ := newTestWallet(t)
	a := NewAdapter(w, fixedAnchor{}, nil)

	for _, tx := range []Transaction{"raw bytes", 42, (*txbuilder.Draft)(nil), (*solana.Transaction)(nil)} {
		_, err := a.SignTransaction(context.Background(), tx)
		assert.ErrorIs(t, err, ErrUnsupportedTransactionShape)
	}
}

func TestSignTransaction_PrecompiledKeepsAnchor(t *testing.T) {
	w, _ := newTestWallet(t)
	payer := newFeePayer(t)
	a := NewAdapter(w, fixedAnchor{solana.Hash{9}}, nil)

	tx, err := draftFor(t, w, payer.PublicKey(), "c1").Compile(solana.Hash{3})
	require.NoError(t, err)

	signed, err := a.SignTransaction(context.Background(), tx)
	require.NoError(t, err)
	assert.Equal(t, solana.Hash{3}, signed.Message.RecentBlockhash)
}

func TestSignTransaction_Cosigner(t *testing.T) {
	w, _ := newTestWallet(t)
	payer := newFeePayer(t)
	a := NewAdapter(w, fixedAnchor{solana.Hash{1}}, nil, WithCosigner(NewKeypairCosigner(payer)))

	tx, err := a.SignTransaction(context.Background(), draftFor(t, w, payer.PublicKey(), "c1"))
	require.NoError(t, err)
	assert.NoError(t, tx.VerifySignatures())
}

// alteringProvider returns a signed transaction over a different message.
type alteringProvider struct {
	key   solana.PrivateKey
	other *solana.Transaction
}

func (p *alteringProvider) Request(ctx context.Context, args RequestArgs) (*RequestResult, error) {
	msg, _ := p.other.Message.MarshalBinary()
	sig, _ := p.key.Sign(msg)
	p.other.Signatures = []solana.Signature{{}, sig}
	raw, err := p.other.MarshalBinary()
	if err != nil {
		return nil, err
	}
	return &RequestResult{SignedTransaction: base64.StdEncoding.EncodeToString(raw)}, nil
}

func TestSignTransaction_RejectsAlteredMessage(t *testing.T) {
	w, p := newTestWallet(t)
	payer := newFeePayer(t)
	other, err := draftFor(t, w, payer.PublicKey(), "c2").Compile(solana.Hash{1})
	require.NoError(t, err)
	w.provider = &alteringProvider{key: p.key, other: other}
	a := NewAdapter(w, fixedAnchor{solana.Hash{1}}, nil)

	_, err = a.SignTransaction(context.Background(), draftFor(t, w, payer.PublicKey(), "c1"))
	assert.ErrorIs(t, err, ErrProviderRequestFailed)
	assert.Equal(t, 0, a.Pending().Len())
}

func TestSignAllTransactions(t *testing.T) {
	w, p := newTestWallet(t)
	payer := newFeePayer(t)
	a := NewAdapter(w, fixedAnchor{solana.Hash{1}}, nil)

	// Pre-register c2 so that element fails as a duplicate.
	dup, err := draftFor(t, w, payer.PublicKey(), "c2").Compile(solana.Hash{1})
	require.NoError(t, err)
	fp, err := txbuilder.Fingerprint(dup)
	require.NoError(t, err)
	a.Pending().TryAdd(fp)

	results := a.SignAllTransactions(context.Background(), []Transaction{
		draftFor(t, w, payer.PublicKey(), "c1"),
		draftFor(t, w, payer.PublicKey(), "c2"),
		"junk",
		draftFor(t, w, payer.PublicKey(), "c3"),
	})
	require.Len(t, results, 4)

	assert.NoError(t, results[0].Err)
	assert.NotNil(t, results[0].Tx)
	assert.ErrorIs(t, results[1].Err, ErrDuplicateTransaction)
	assert.ErrorIs(t, results[2].Err, ErrUnsupportedTransactionShape)
	assert.NoError(t, results[3].Err)
	assert.Equal(t, int32(2), p.calls.Load())
}

func TestSignAllTransactions_FailureIsolated(t *testing.T) {
	w, p := newTestWallet(t)
	p.failErr = errors.New("enclave timeout")
	p.failures.Store(1)
	payer := newFeePayer(t)
	a := NewAdapter(w, fixedAnchor{solana.Hash{1}}, nil)

	results := a.SignAllTransactions(context.Background(), []Transaction{
		draftFor(t, w, payer.PublicKey(), "c1"),
		draftFor(t, w, payer.PublicKey(), "c2"),
		draftFor(t, w, payer.PublicKey(), "c3"),
	})

	failed := 0
	for _, r := range results {
		if r.Err != nil {
			failed++
			assert.ErrorIs(t, r.Err, ErrProviderRequestFailed)
		}
	}
	assert.Equal(t, 1, failed)
	assert.Equal(t, 2, a.Pending().Len(), "failed element rolled back")
}

func TestSignMessage(t *testing.T) {
	w, p := newTestWallet(t)
	a := NewAdapter(w, fixedAnchor{}, nil)

	sig, err := a.SignMessage(context.Background(), []byte("login nonce 42"))
	require.NoError(t, err)
	assert.True(t, sig.Verify(p.key.PublicKey(), []byte("login nonce 42")))
}

func TestPendingSet(t *testing.T) {
	s := NewPendingSet()
	assert.True(t, s.TryAdd("a"))
	assert.False(t, s.TryAdd("a"))
	assert.True(t, s.Contains("a"))
	s.Remove("a")
	assert.False(t, s.Contains("a"))
	s.TryAdd("b")
	s.Reset()
	assert.Equal(t, 0, s.Len())
}
