package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/xueqianLu/contestpay/internal/config"
	"github.com/xueqianLu/contestpay/internal/logx"
	"github.com/xueqianLu/contestpay/internal/middleware"
	"github.com/xueqianLu/contestpay/internal/server"
	"github.com/xueqianLu/contestpay/internal/signer"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "signer",
	Short: "Custodial wallet signing service",
	Long: `Serves the custodial wallet over HTTP. Keys live in a local encrypted
keystore or in the Vault transit engine; every endpoint except /health
requires HMAC request authentication.`,
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return serve(cmd.Context())
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to config file (default ./config.yaml)")
}

func serve(ctx context.Context) error {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return err
	}
	logx.Init(cfg.LogOptions())

	keyManager, err := signer.OpenKeyManager(cfg.KeyManager)
	if err != nil {
		return err
	}
	authMiddleware := middleware.NewAuthMiddleware(cfg.Auth.APIKey, cfg.Auth.APISecret)
	srv := server.NewServer(server.NewRouter(signer.NewSigner(keyManager), authMiddleware), cfg.Server.Address, cfg.Server.Port)

	errCh := make(chan error, 1)
	go func() {
		logx.Info("SERVER", "listening on ", srv.Addr, " with ", cfg.KeyManager.Type, " key manager")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	logx.Info("SERVER", "shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		logx.Error("CMD", "Command execution failed: ", err)
		os.Exit(1)
	}
}
