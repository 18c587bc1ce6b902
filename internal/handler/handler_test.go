package handler

import (
	"bytes"
	"encoding/base64"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ethereum/go-ethereum/accounts/keystore"
	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xueqianLu/contestpay/internal/jsonx"
	"github.com/xueqianLu/contestpay/internal/signer"
	"github.com/xueqianLu/contestpay/internal/txbuilder"
)

func newTestSigner(t *testing.T) (*signer.Signer, solana.PublicKey) {
	t.Helper()
	km, err := signer.NewLocalKeyManager(t.TempDir(), "pw", signer.WithScrypt(keystore.LightScryptN, keystore.LightScryptP))
	require.NoError(t, err)
	addr, err := km.CreateKey()
	require.NoError(t, err)
	return signer.NewSigner(km), addr
}

func post(t *testing.T, h http.Handler, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	raw, err := jsonx.Marshal(body)
	require.NoError(t, err)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/", bytes.NewReader(raw)))
	return rec
}

func TestHealthHandler(t *testing.T) {
	s, _ := newTestSigner(t)
	rec := httptest.NewRecorder()
	NewHealthHandler(s).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok","accounts":1}`, rec.Body.String())
}

func TestAccountsAndCreate(t *testing.T) {
	s, addr := newTestSigner(t)

	rec := httptest.NewRecorder()
	NewAccountsHandler(s).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/accounts", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var accounts []string
	require.NoError(t, jsonx.Unmarshal(rec.Body.Bytes(), &accounts))
	assert.Equal(t, []string{addr.String()}, accounts)

	rec = httptest.NewRecorder()
	NewCreateAccountHandler(s).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/create-account", nil))
	require.Equal(t, http.StatusCreated, rec.Code)
	var created CreateAccountResponse
	require.NoError(t, jsonx.Unmarshal(rec.Body.Bytes(), &created))
	assert.NotEmpty(t, created.Address)
	assert.Len(t, s.GetAccounts(), 2)

	rec = httptest.NewRecorder()
	NewCreateAccountHandler(s).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/create-account", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestSignTransactionHandler(t *testing.T) {
	s, addr := newTestSigner(t)
	h := NewSignTransactionHandler(s)

	d, err := txbuilder.New(txbuilder.MemoProgramID.String()).EnterContest(addr.String(), "SysvarC1ock11111111111111111111111111111111", "c1", 7)
	require.NoError(t, err)
	tx, err := d.Compile(solana.Hash{2})
	require.NoError(t, err)
	msg, err := tx.Message.MarshalBinary()
	require.NoError(t, err)

	rec := post(t, h, SignTransactionRequest{Address: addr.String(), Message: base64.StdEncoding.EncodeToString(msg)})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var resp SignResponse
	require.NoError(t, jsonx.Unmarshal(rec.Body.Bytes(), &resp))
	sig, err := solana.SignatureFromBase58(resp.Signature)
	require.NoError(t, err)
	assert.True(t, sig.Verify(addr, msg))

	tests := []struct {
		name   string
		req    SignTransactionRequest
		status int
	}{
		{"bad address", SignTransactionRequest{Address: "0x12", Message: base64.StdEncoding.EncodeToString(msg)}, http.StatusBadRequest},
		{"bad base64", SignTransactionRequest{Address: addr.String(), Message: "%%%"}, http.StatusBadRequest},
		{"not a message", SignTransactionRequest{Address: addr.String(), Message: base64.StdEncoding.EncodeToString([]byte{1})}, http.StatusBadRequest},
		{"unknown account", SignTransactionRequest{Address: txbuilder.MemoProgramID.String(), Message: base64.StdEncoding.EncodeToString(msg)}, http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := post(t, h, tt.req)
			assert.Equal(t, tt.status, rec.Code, rec.Body.String())
			var e ErrorResponse
			require.NoError(t, jsonx.Unmarshal(rec.Body.Bytes(), &e))
			assert.NotEmpty(t, e.Error)
		})
	}
}

func TestSignHandler(t *testing.T) {
	s, addr := newTestSigner(t)
	rec := post(t, NewSignHandler(s), SignRequest{Address: addr.String(), Message: base64.StdEncoding.EncodeToString([]byte("login"))})
	require.Equal(t, http.StatusOK, rec.Code)

	var resp SignResponse
	require.NoError(t, jsonx.Unmarshal(rec.Body.Bytes(), &resp))
	sig, err := solana.SignatureFromBase58(resp.Signature)
	require.NoError(t, err)
	assert.True(t, sig.Verify(addr, []byte("login")))

	rec = httptest.NewRecorder()
	NewSignHandler(s).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/sign", bytes.NewReader([]byte("{"))))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
