package handler

import (
	"net/http"

	"github.com/xueqianLu/contestpay/internal/signer"
)

// HealthResponse reports liveness and how many accounts the service holds.
type HealthResponse struct {
	Status   string `json:"status"`
	Accounts int    `json:"accounts"`
}

// HealthHandler handles health checks.
type HealthHandler struct {
	signer *signer.Signer
}

// NewHealthHandler creates a new HealthHandler.
func NewHealthHandler(s *signer.Signer) *HealthHandler {
	return &HealthHandler{signer: s}
}

// ServeHTTP implements the http.Handler interface.
func (h *HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{Status: "ok", Accounts: len(h.signer.GetAccounts())})
}
