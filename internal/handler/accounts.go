package handler

import (
	"net/http"

	"github.com/xueqianLu/contestpay/internal/signer"
)

// AccountsHandler handles requests for the list of accounts.
type AccountsHandler struct {
	signer *signer.Signer
}

// NewAccountsHandler creates a new AccountsHandler.
func NewAccountsHandler(s *signer.Signer) *AccountsHandler {
	return &AccountsHandler{signer: s}
}

// ServeHTTP implements the http.Handler interface.
func (h *AccountsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	accounts := h.signer.GetAccounts()
	accStrs := make([]string, 0, len(accounts))
	for _, acc := range accounts {
		accStrs = append(accStrs, acc.String())
	}
	writeJSON(w, http.StatusOK, accStrs)
}
