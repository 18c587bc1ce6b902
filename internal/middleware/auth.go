package middleware

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/xueqianLu/contestpay/internal/logx"
)

const (
	APIKeyHeader    = "X-API-Key"
	SignatureHeader = "X-Signature"
	TimestampHeader = "X-Timestamp"
	maxTimeSkew     = 60 // seconds
	maxBodyBytes    = 1 << 20
)

// ComputeSignature returns the hex HMAC-SHA256 of timestamp followed by body.
func ComputeSignature(secret, timestamp string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(timestamp))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// AuthMiddleware provides HMAC-based authentication.
type AuthMiddleware struct {
	apiKey    string
	apiSecret string
	now       func() time.Time
}

// NewAuthMiddleware creates a new AuthMiddleware.
func NewAuthMiddleware(apiKey, apiSecret string) *AuthMiddleware {
	return &AuthMiddleware{
		apiKey:    apiKey,
		apiSecret: apiSecret,
		now:       time.Now,
	}
}

// Wrap wraps an http.Handler with authentication.
func (m *AuthMiddleware) Wrap(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// 1. Check API Key
		requestAPIKey := r.Header.Get(APIKeyHeader)
		if !hmac.Equal([]byte(requestAPIKey), []byte(m.apiKey)) {
			m.reject(w, r, "Invalid API Key")
			return
		}

		// 2. Check Timestamp
		timestampStr := r.Header.Get(TimestampHeader)
		if timestampStr == "" {
			m.reject(w, r, "Missing timestamp header")
			return
		}
		timestamp, err := strconv.ParseInt(timestampStr, 10, 64)
		if err != nil {
			m.reject(w, r, "Invalid timestamp format")
			return
		}
		skew := m.now().Unix() - timestamp
		if skew > maxTimeSkew || skew < -maxTimeSkew {
			m.reject(w, r, "Timestamp expired")
			return
		}

		// 3. Check Signature
		requestSignature := r.Header.Get(SignatureHeader)
		if requestSignature == "" {
			m.reject(w, r, "Missing signature header")
			return
		}

		body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
		if err != nil {
			http.Error(w, "Failed to read request body", http.StatusInternalServerError)
			return
		}
		// Restore the body so the next handler can read it
		r.Body = io.NopCloser(bytes.NewReader(body))

		expectedSignature := ComputeSignature(m.apiSecret, timestampStr, body)
		if !hmac.Equal([]byte(requestSignature), []byte(expectedSignature)) {
			m.reject(w, r, "Invalid signature")
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (m *AuthMiddleware) reject(w http.ResponseWriter, r *http.Request, reason string) {
	logx.Warn("AUTH", r.Method, " ", r.URL.Path, " rejected: ", reason)
	http.Error(w, reason, http.StatusUnauthorized)
}
