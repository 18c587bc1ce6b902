package handler

import (
	"net/http"

	"github.com/xueqianLu/contestpay/internal/logx"
	"github.com/xueqianLu/contestpay/internal/signer"
)

// CreateAccountHandler handles requests to create a new account.
type CreateAccountHandler struct {
	signer *signer.Signer
}

// NewCreateAccountHandler creates a new CreateAccountHandler.
func NewCreateAccountHandler(s *signer.Signer) *CreateAccountHandler {
	return &CreateAccountHandler{signer: s}
}

// ServeHTTP implements the http.Handler interface.
func (h *CreateAccountHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	address, err := h.signer.CreateKey()
	if err != nil {
		logx.Error("HANDLER", "create account: ", err)
		writeError(w, http.StatusInternalServerError, "failed to create new account: "+err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, CreateAccountResponse{Address: address.String()})
}
