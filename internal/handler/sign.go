package handler

import (
	"encoding/base64"
	"errors"
	"net/http"

	"github.com/gagliardetto/solana-go"
	"github.com/xueqianLu/contestpay/internal/jsonx"
	"github.com/xueqianLu/contestpay/internal/logx"
	"github.com/xueqianLu/contestpay/internal/signer"
)

// SignTransactionHandler signs serialized transaction messages.
type SignTransactionHandler struct {
	signer *signer.Signer
}

// NewSignTransactionHandler creates a new SignTransactionHandler.
func NewSignTransactionHandler(s *signer.Signer) *SignTransactionHandler {
	return &SignTransactionHandler{signer: s}
}

// ServeHTTP implements the http.Handler interface.
func (h *SignTransactionHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var req SignTransactionRequest
	if err := jsonx.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	address, message, ok := decodeSignInput(w, req.Address, req.Message)
	if !ok {
		return
	}

	sig, err := h.signer.SignTransaction(address, message)
	if err != nil {
		writeSignError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, SignResponse{Signature: sig.String()})
}

// SignHandler signs arbitrary bytes.
type SignHandler struct {
	signer *signer.Signer
}

// NewSignHandler creates a new SignHandler.
func NewSignHandler(s *signer.Signer) *SignHandler {
	return &SignHandler{signer: s}
}

// ServeHTTP implements the http.Handler interface.
func (h *SignHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var req SignRequest
	if err := jsonx.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	address, message, ok := decodeSignInput(w, req.Address, req.Message)
	if !ok {
		return
	}

	sig, err := h.signer.SignMessage(address, message)
	if err != nil {
		writeSignError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, SignResponse{Signature: sig.String()})
}

func decodeSignInput(w http.ResponseWriter, addr, msg string) (solana.PublicKey, []byte, bool) {
	address, err := solana.PublicKeyFromBase58(addr)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid address")
		return solana.PublicKey{}, nil, false
	}
	message, err := base64.StdEncoding.DecodeString(msg)
	if err != nil || len(message) == 0 {
		writeError(w, http.StatusBadRequest, "message must be non-empty base64")
		return solana.PublicKey{}, nil, false
	}
	return address, message, true
}

func writeSignError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, signer.ErrAccountNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, signer.ErrInvalidMessage), errors.Is(err, signer.ErrNotASigner):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		logx.Error("HANDLER", "sign: ", err)
		writeError(w, http.StatusInternalServerError, "failed to sign: "+err.Error())
	}
}
