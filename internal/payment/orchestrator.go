package payment

import (
	"context"
	"errors"
	"fmt"

	"github.com/gagliardetto/solana-go"
	"github.com/xueqianLu/contestpay/internal/ledger"
	"github.com/xueqianLu/contestpay/internal/logx"
	"github.com/xueqianLu/contestpay/internal/txbuilder"
	"github.com/xueqianLu/contestpay/internal/wallet"
)

// ParticipationChecker asks the backend whether the user joined a contest.
type ParticipationChecker interface {
	HasJoined(ctx context.Context, contestID string) (bool, error)
}

// EntryRecorder tells the backend about a confirmed entry.
type EntryRecorder interface {
	RecordEntry(ctx context.Context, contestID, signature string) error
}

// BalanceReader fetches fresh balances from the ledger.
type BalanceReader interface {
	NativeBalance(ctx context.Context, address string) (uint64, error)
	TokenBalance(ctx context.Context, owner, mint string) (uint64, error)
	TokenAccountExists(ctx context.Context, owner, mint string) (bool, error)
}

// DraftBuilder produces the unsigned drafts. *txbuilder.Builder satisfies it.
type DraftBuilder interface {
	EnterContest(player, escrow, contestID string, fee uint64) (*txbuilder.Draft, error)
	Stake(p txbuilder.StakeParams) (*txbuilder.Draft, error)
}

// Signer signs drafts with the user's wallet. *wallet.Adapter satisfies it.
// Release forgets a signed transaction the ledger rejected, so an identical
// retry is signed again instead of hitting the duplicate guard.
type Signer interface {
	Address() string
	SignTransaction(ctx context.Context, tx wallet.Transaction) (*solana.Transaction, error)
	Release(tx *solana.Transaction)
}

// Submitter sends and confirms signed transactions. *ledger.Client satisfies it.
type Submitter interface {
	Submit(ctx context.Context, tx *solana.Transaction, opts ledger.SendOptions) (solana.Signature, error)
	Confirm(ctx context.Context, sig solana.Signature) error
}

// Tracker receives joined contests. Writes are dropped when the ticket taken
// at the start of the flow is no longer current. *store.ContestStore satisfies it.
type Tracker interface {
	Ticket() uint64
	MarkJoined(ticket uint64, contestID string) bool
}

// Deps are the collaborators of an Orchestrator.
type Deps struct {
	Participation ParticipationChecker
	Balances      BalanceReader
	Builder       DraftBuilder
	Signer        Signer
	Ledger        Submitter
}

// StakeToken identifies the staked token and its vault.
type StakeToken struct {
	Mint     string
	Vault    string
	Decimals uint8
}

// JoinRequest pays EntryFee lamports from the wallet to the contest escrow.
type JoinRequest struct {
	ContestID string
	Escrow    string
	EntryFee  uint64
}

// StakeRequest stakes Amount of the stake token. ContestID only tags the memo.
type StakeRequest struct {
	Amount    uint64
	ContestID string
}

// Orchestrator runs payment flows. It is safe for concurrent use; concurrent
// identical flows are serialized by the signer's duplicate guard.
type Orchestrator struct {
	deps        Deps
	classifier  *Classifier
	send        ledger.SendOptions
	anchorRetry bool
	stake       StakeToken
	recorder    EntryRecorder
	tracker     Tracker
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

func WithClassifier(c *Classifier) Option {
	return func(o *Orchestrator) { o.classifier = c }
}

func WithSendOptions(opts ledger.SendOptions) Option {
	return func(o *Orchestrator) { o.send = opts }
}

// WithAnchorRetry enables one rebuild and resubmit when the ledger rejects a
// submission for an expired blockhash.
func WithAnchorRetry(enabled bool) Option {
	return func(o *Orchestrator) { o.anchorRetry = enabled }
}

func WithStakeToken(t StakeToken) Option {
	return func(o *Orchestrator) { o.stake = t }
}

func WithEntryRecorder(r EntryRecorder) Option {
	return func(o *Orchestrator) { o.recorder = r }
}

func WithTracker(t Tracker) Option {
	return func(o *Orchestrator) { o.tracker = t }
}

// New returns an Orchestrator over deps.
func New(deps Deps, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		deps:        deps,
		classifier:  NewClassifier(nil, nil),
		send:        ledger.SendOptions{SkipPreflight: true, MaxRetries: 3},
		anchorRetry: true,
		stake:       StakeToken{Decimals: ledger.NativeDecimals},
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Join pays the entry fee of a contest. The returned outcome is never nil and
// its Err is set exactly when Success is false.
func (o *Orchestrator) Join(ctx context.Context, req JoinRequest) *Outcome {
	out := newOutcome()
	o.guarded(ctx, out, func(ctx context.Context, out *Outcome) { o.join(ctx, req, out) })
	return out
}

func (o *Orchestrator) join(ctx context.Context, req JoinRequest, out *Outcome) {
	if req.ContestID == "" {
		out.fail(BuildError, txbuilder.ErrMissingContestID)
		return
	}
	var ticket uint64
	if o.tracker != nil {
		ticket = o.tracker.Ticket()
	}
	out.Required = req.EntryFee

	out.enter(CheckingParticipation)
	if o.deps.Participation == nil {
		out.fail(CheckError, ErrNoParticipationChecker)
		return
	}
	joined, err := o.deps.Participation.HasJoined(ctx, req.ContestID)
	if err != nil {
		out.fail(CheckError, fmt.Errorf("participation check: %w", err))
		return
	}
	if joined {
		o.markJoined(ticket, req.ContestID)
		out.fail(AlreadyParticipating, ErrAlreadyParticipating)
		return
	}

	address := o.deps.Signer.Address()
	out.enter(CheckingBalance)
	balance, err := o.deps.Balances.NativeBalance(ctx, address)
	if err != nil {
		out.fail(CheckError, fmt.Errorf("balance check: %w", err))
		return
	}
	out.Actual = balance
	if !o.sufficient(out, ledger.NativeDecimals) {
		return
	}

	out.enter(Building)
	draft, err := o.deps.Builder.EnterContest(address, req.Escrow, req.ContestID, req.EntryFee)
	if err != nil {
		out.fail(BuildError, err)
		return
	}

	o.signAndSubmit(ctx, out, draft)
	if !out.Success {
		return
	}
	o.markJoined(ticket, req.ContestID)
	if out.State == Confirmed && o.recorder != nil {
		if err := o.recorder.RecordEntry(ctx, req.ContestID, out.Signature); err != nil {
			logx.Warn("PAYMENT", "failed to record entry for contest ", req.ContestID, ": ", err)
		}
	}
}

// Stake moves tokens from the wallet's token account to the staking vault.
func (o *Orchestrator) Stake(ctx context.Context, req StakeRequest) *Outcome {
	out := newOutcome()
	o.guarded(ctx, out, func(ctx context.Context, out *Outcome) { o.stakeFlow(ctx, req, out) })
	return out
}

func (o *Orchestrator) stakeFlow(ctx context.Context, req StakeRequest, out *Outcome) {
	if req.Amount == 0 {
		out.fail(BuildError, txbuilder.ErrInvalidAmount)
		return
	}
	address := o.deps.Signer.Address()
	out.Required = req.Amount

	out.enter(CheckingBalance)
	balance, err := o.deps.Balances.TokenBalance(ctx, address, o.stake.Mint)
	if err != nil && !errors.Is(err, ledger.ErrAccountNotFound) {
		out.fail(CheckError, fmt.Errorf("token balance check: %w", err))
		return
	}
	out.Actual = balance
	if !o.sufficient(out, o.stake.Decimals) {
		return
	}

	out.enter(Building)
	exists, err := o.deps.Balances.TokenAccountExists(ctx, o.stake.Vault, o.stake.Mint)
	if err != nil {
		out.fail(CheckError, fmt.Errorf("vault account check: %w", err))
		return
	}
	var memo string
	if req.ContestID != "" {
		memo = "stake:" + req.ContestID
	}
	draft, err := o.deps.Builder.Stake(txbuilder.StakeParams{
		Owner:              address,
		Mint:               o.stake.Mint,
		Vault:              o.stake.Vault,
		Amount:             req.Amount,
		Decimals:           o.stake.Decimals,
		CreateVaultAccount: !exists,
		Memo:               memo,
	})
	if err != nil {
		out.fail(BuildError, err)
		return
	}

	o.signAndSubmit(ctx, out, draft)
}

func (o *Orchestrator) sufficient(out *Outcome, decimals uint8) bool {
	if out.Actual >= out.Required {
		return true
	}
	e := &InsufficientBalanceError{Required: out.Required, Actual: out.Actual, Decimals: decimals}
	out.Shortfall = e.Shortfall()
	out.fail(InsufficientBalance, e)
	return false
}

// signAndSubmit signs, submits and confirms draft. Each attempt signs with a
// fresh anchor, so a retry after a stale anchor produces a new transaction.
//
// Transactions the ledger definitively rejected are released from the signer's
// duplicate guard when the flow ends. A confirmation timeout keeps the entry,
// since the transaction may still land.
func (o *Orchestrator) signAndSubmit(ctx context.Context, out *Outcome, draft *txbuilder.Draft) {
	var rejected []*solana.Transaction
	defer func() {
		for _, tx := range rejected {
			o.deps.Signer.Release(tx)
		}
	}()

	attempts := 1
	if o.anchorRetry {
		attempts = 2
	}
	for attempt := 1; ; attempt++ {
		out.enter(Signing)
		tx, err := o.deps.Signer.SignTransaction(ctx, draft)
		if err != nil {
			// On a retry the duplicate guard only means the anchor has not
			// moved yet, not that the ledger accepted anything.
			if attempt > 1 && errors.Is(err, wallet.ErrDuplicateTransaction) {
				out.fail(SubmitError, fmt.Errorf("retry with fresh blockhash: %w", err))
				return
			}
			if o.classifier.AlreadyProcessed(err) {
				logx.Info("PAYMENT", "sign request resolved as already processed: ", err)
				out.succeed(DuplicateOrAlreadyProcessed)
				return
			}
			out.fail(SignError, err)
			return
		}

		sig, err := o.deps.Ledger.Submit(ctx, tx, o.send)
		if err != nil {
			if o.classifier.AlreadyProcessed(err) {
				logx.Info("PAYMENT", "submission resolved as already processed: ", err)
				out.succeed(DuplicateOrAlreadyProcessed)
				return
			}
			rejected = append(rejected, tx)
			if attempt < attempts && o.classifier.StaleAnchor(err) {
				logx.Warn("PAYMENT", "stale blockhash, rebuilding: ", err)
				continue
			}
			out.fail(SubmitError, err)
			return
		}
		out.Signature = sig.String()
		out.enter(Submitted)

		out.enter(Confirming)
		if err := o.deps.Ledger.Confirm(ctx, sig); err != nil {
			if o.classifier.AlreadyProcessed(err) {
				out.succeed(DuplicateOrAlreadyProcessed)
				return
			}
			var txErr *ledger.TxError
			if errors.As(err, &txErr) {
				rejected = append(rejected, tx)
			}
			out.fail(ConfirmError, err)
			return
		}
		logx.Info("PAYMENT", "confirmed ", out.Signature)
		out.succeed(Confirmed)
		return
	}
}

func (o *Orchestrator) markJoined(ticket uint64, contestID string) {
	if o.tracker == nil {
		return
	}
	if !o.tracker.MarkJoined(ticket, contestID) {
		logx.Debug("PAYMENT", "discarded stale join result for contest ", contestID)
	}
}

// JoinAsync runs Join detached from ctx's cancellation and delivers the
// outcome on the returned channel. A panic in the flow becomes a failed outcome.
func (o *Orchestrator) JoinAsync(ctx context.Context, req JoinRequest) <-chan *Outcome {
	return o.async(ctx, func(ctx context.Context, out *Outcome) { o.join(ctx, req, out) })
}

// StakeAsync is the detached form of Stake.
func (o *Orchestrator) StakeAsync(ctx context.Context, req StakeRequest) <-chan *Outcome {
	return o.async(ctx, func(ctx context.Context, out *Outcome) { o.stakeFlow(ctx, req, out) })
}

func (o *Orchestrator) async(ctx context.Context, run func(context.Context, *Outcome)) <-chan *Outcome {
	ch := make(chan *Outcome, 1)
	ctx = context.WithoutCancel(ctx)
	go func() {
		out := newOutcome()
		defer func() {
			ch <- out
			close(ch)
		}()
		o.guarded(ctx, out, run)
	}()
	return ch
}

// guarded runs a flow and turns a panic into a failed outcome in the terminal
// state matching the step that panicked.
func (o *Orchestrator) guarded(ctx context.Context, out *Outcome, run func(context.Context, *Outcome)) {
	defer func() {
		if r := recover(); r != nil {
			logx.Error("PAYMENT", "flow panicked in ", out.State, ": ", r)
			if out.Success {
				// The payment already went through; only follow-up work failed.
				return
			}
			out.fail(panicState(out.State), fmt.Errorf("%w: %v", ErrFlowPanicked, r))
		}
	}()
	run(ctx, out)
}

func panicState(s State) State {
	switch s {
	case CheckingParticipation, CheckingBalance:
		return CheckError
	case Idle, Building:
		return BuildError
	case Signing:
		return SignError
	case Submitted, Confirming:
		return ConfirmError
	}
	return s
}
