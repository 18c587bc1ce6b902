package handler

import (
	"net/http"

	"github.com/xueqianLu/contestpay/internal/jsonx"
	"github.com/xueqianLu/contestpay/internal/wallet"
)

// SignTransactionRequest asks for a signature over a serialized transaction message.
type SignTransactionRequest struct {
	Address string `json:"address"`
	// Message is the base64 encoded message bytes.
	Message string                `json:"message"`
	Options wallet.RequestOptions `json:"options"`
}

// SignRequest asks for a signature over arbitrary bytes.
type SignRequest struct {
	Address string `json:"address"`
	Message string `json:"message"` // base64
}

// SignResponse carries a base58 signature.
type SignResponse struct {
	Signature string `json:"signature"`
}

// CreateAccountResponse represents the response for a new account creation.
type CreateAccountResponse struct {
	Address string `json:"address"`
}

// ErrorResponse represents a standard error response.
type ErrorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	jsonx.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, ErrorResponse{Error: msg})
}
