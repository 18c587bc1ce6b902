package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"github.com/xueqianLu/contestpay/internal/backend"
	"github.com/xueqianLu/contestpay/internal/config"
	"github.com/xueqianLu/contestpay/internal/ledger"
	"github.com/xueqianLu/contestpay/internal/logx"
	"github.com/xueqianLu/contestpay/internal/payment"
	"github.com/xueqianLu/contestpay/internal/session"
	"github.com/xueqianLu/contestpay/internal/signer"
	"github.com/xueqianLu/contestpay/internal/store"
	"github.com/xueqianLu/contestpay/internal/txbuilder"
	"github.com/xueqianLu/contestpay/internal/wallet"
	"github.com/xueqianLu/contestpay/pkg/client"
)

var configPath string

// app holds the collaborators shared by every command.
type app struct {
	cfg          config.Config
	ledger       *ledger.Client
	backend      *backend.Client
	session      session.Store
	adapter      *wallet.Adapter
	contests     *store.ContestStore
	users        *store.UserStore
	orchestrator *payment.Orchestrator
}

var current *app

var rootCmd = &cobra.Command{
	Use:   "contestpay",
	Short: "Contest payments from a custodial wallet",
	Long: `Command line client for contest entry and staking payments.

Transactions are built locally, signed by the custodial wallet (embedded
keystore or remote signer service), co-signed by the fee sponsor and
submitted to the ledger.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		switch cmd.Name() {
		case "help", "completion", "version":
			return nil
		}
		a, err := newApp(cmd.Context(), configPath)
		if err != nil {
			return err
		}
		current = a
		return nil
	},
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		if current == nil {
			return nil
		}
		return current.Close()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to config file (default ./config.yaml)")
}

func newApp(ctx context.Context, path string) (*app, error) {
	cfg, err := config.LoadConfig(path)
	if err != nil {
		return nil, err
	}
	logx.Init(cfg.LogOptions())

	sess, err := session.Open(cfg.Session.Backend, cfg.Session.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open session store: %w", err)
	}

	a := &app{
		cfg:      cfg,
		session:  sess,
		contests: store.NewContestStore(),
		users:    store.NewUserStore(),
		ledger: ledger.NewClient(cfg.Ledger.RPCURL,
			ledger.WithCommitment(cfg.Ledger.Commitment),
			ledger.WithConfirmation(cfg.Ledger.ConfirmTimeout, cfg.Ledger.ConfirmInterval)),
	}
	if cfg.Backend.BaseURL != "" {
		a.backend = backend.NewClient(cfg.Backend.BaseURL, cfg.Backend.Timeout,
			backend.WithTokenSource(session.NewTokenSource(sess)))
	}

	w, err := openWallet(ctx, cfg)
	if err != nil {
		a.Close()
		return nil, err
	}

	adapterOpts := []wallet.AdapterOption{
		wallet.WithRequestOptions(wallet.RequestOptions{
			SkipPreflight: cfg.Signing.SkipPreflight,
			MaxRetries:    cfg.Signing.MaxRetries,
		}),
	}
	if cfg.FeePayer.KeypairPath != "" {
		cosigner, err := wallet.LoadKeypairCosigner(cfg.FeePayer.KeypairPath)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("failed to load fee payer keypair: %w", err)
		}
		adapterOpts = append(adapterOpts, wallet.WithCosigner(cosigner))
	}
	a.adapter = wallet.NewAdapter(w, a.ledger, wallet.NewPendingSet(), adapterOpts...)

	feePayer := cfg.FeePayer.Address
	if feePayer == "" {
		// Without a sponsor the wallet pays its own fees.
		feePayer = w.Address()
	}

	opts := []payment.Option{
		payment.WithClassifier(payment.NewClassifier(cfg.Signing.AlreadyProcessedMarkers, cfg.Signing.StaleAnchorMarkers)),
		payment.WithSendOptions(ledger.SendOptions{
			SkipPreflight: cfg.Signing.SkipPreflight,
			MaxRetries:    cfg.Signing.MaxRetries,
		}),
		payment.WithAnchorRetry(cfg.Signing.AnchorRetry),
		payment.WithStakeToken(payment.StakeToken{
			Mint:     cfg.Tokens.StakeMint,
			Vault:    cfg.Tokens.StakeVault,
			Decimals: cfg.Tokens.StakeDecimals,
		}),
		payment.WithTracker(a.contests),
	}
	deps := payment.Deps{
		Balances: a.ledger,
		Builder:  txbuilder.New(feePayer),
		Signer:   a.adapter,
		Ledger:   a.ledger,
	}
	if a.backend != nil {
		deps.Participation = a.backend
		opts = append(opts, payment.WithEntryRecorder(a.backend))
	}
	a.orchestrator = payment.New(deps, opts...)
	return a, nil
}

func openWallet(ctx context.Context, cfg config.Config) (wallet.Wallet, error) {
	switch cfg.Wallet.Type {
	case "remote":
		c := client.NewClient(cfg.Wallet.Remote.URL, cfg.Wallet.Remote.APIKey, cfg.Wallet.Remote.APISecret)
		if cfg.Wallet.Address != "" {
			return client.NewRemoteWallet(c, cfg.Wallet.Address), nil
		}
		w, err := client.DiscoverRemoteWallet(ctx, c)
		if err != nil {
			return nil, fmt.Errorf("failed to discover remote wallet: %w", err)
		}
		return w, nil
	case "embedded":
		km, err := signer.OpenKeyManager(cfg.KeyManager)
		if err != nil {
			return nil, err
		}
		w, err := signer.NewEmbeddedWallet(signer.NewSigner(km), cfg.Wallet.Address)
		if err != nil {
			return nil, err
		}
		return w, nil
	default:
		return nil, fmt.Errorf("unknown wallet type %q", cfg.Wallet.Type)
	}
}

func (a *app) requireBackend() error {
	if a.backend == nil {
		return fmt.Errorf("backend.base_url is not configured")
	}
	return nil
}

// Close releases the session store.
func (a *app) Close() error {
	if c, ok := a.session.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

func Execute(ctx context.Context) {
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		logx.Error("CMD", "Command execution failed: ", err)
		os.Exit(1)
	}
}
