package server

import (
	"net/http"
	"time"

	"github.com/xueqianLu/contestpay/internal/handler"
	"github.com/xueqianLu/contestpay/internal/middleware"
	"github.com/xueqianLu/contestpay/internal/signer"
)

// NewRouter wires the signer endpoints. Everything except /health requires
// HMAC authentication.
func NewRouter(s *signer.Signer, auth *middleware.AuthMiddleware) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/health", handler.NewHealthHandler(s))
	mux.Handle("/accounts", auth.Wrap(handler.NewAccountsHandler(s)))
	mux.Handle("/create-account", auth.Wrap(handler.NewCreateAccountHandler(s)))
	mux.Handle("/sign-transaction", auth.Wrap(handler.NewSignTransactionHandler(s)))
	mux.Handle("/sign", auth.Wrap(handler.NewSignHandler(s)))
	return mux
}

// NewServer creates and configures an HTTP server.
func NewServer(handler http.Handler, address, port string) *http.Server {
	return &http.Server{
		Addr:         address + ":" + port,
		Handler:      handler,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
	}
}
