// Package client is a client for the contestpay signer service. It also serves
// as a wallet provider, so a remote custodial signer can back the wallet adapter.
package client

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/xueqianLu/contestpay/internal/handler"
	"github.com/xueqianLu/contestpay/internal/jsonx"
	"github.com/xueqianLu/contestpay/internal/middleware"
	"github.com/xueqianLu/contestpay/internal/wallet"
)

// Client is a client for the signer service.
type Client struct {
	baseURL    string
	apiKey     string
	apiSecret  string
	httpClient *http.Client
}

// NewClient creates a new signer client.
func NewClient(baseURL, apiKey, apiSecret string) *Client {
	return &Client{
		baseURL:   strings.TrimRight(baseURL, "/"),
		apiKey:    apiKey,
		apiSecret: apiSecret,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// Health checks the health of the signer service. It needs no credentials.
func (c *Client) Health(ctx context.Context) (*handler.HealthResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("service returned non-OK status: %s, body: %s", resp.Status, string(body))
	}

	var health handler.HealthResponse
	if err := jsonx.NewDecoder(resp.Body).Decode(&health); err != nil {
		return nil, fmt.Errorf("failed to decode health response: %w", err)
	}
	return &health, nil
}

// GetAccounts retrieves the list of accounts managed by the signer.
func (c *Client) GetAccounts(ctx context.Context) ([]string, error) {
	var accounts []string
	err := c.doRequest(ctx, http.MethodGet, "/accounts", nil, &accounts)
	return accounts, err
}

// CreateAccount requests the creation of a new account in the signer.
func (c *Client) CreateAccount(ctx context.Context) (*handler.CreateAccountResponse, error) {
	var resp handler.CreateAccountResponse
	if err := c.doRequest(ctx, http.MethodPost, "/create-account", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// SignTransaction asks the service to sign a serialized transaction message.
func (c *Client) SignTransaction(ctx context.Context, req handler.SignTransactionRequest) (*handler.SignResponse, error) {
	var resp handler.SignResponse
	if err := c.doRequest(ctx, http.MethodPost, "/sign-transaction", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Sign asks the service to sign arbitrary bytes.
func (c *Client) Sign(ctx context.Context, req handler.SignRequest) (*handler.SignResponse, error) {
	var resp handler.SignResponse
	if err := c.doRequest(ctx, http.MethodPost, "/sign", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Request implements wallet.Provider.
func (c *Client) Request(ctx context.Context, args wallet.RequestArgs) (*wallet.RequestResult, error) {
	var (
		resp *handler.SignResponse
		err  error
	)
	switch args.Method {
	case wallet.MethodSignTransaction:
		resp, err = c.SignTransaction(ctx, handler.SignTransactionRequest{
			Address: args.Params.Address,
			Message: args.Params.Message,
			Options: args.Params.Options,
		})
	case wallet.MethodSign:
		resp, err = c.Sign(ctx, handler.SignRequest{
			Address: args.Params.Address,
			Message: args.Params.Message,
		})
	default:
		return nil, fmt.Errorf("unsupported method %q", args.Method)
	}
	if err != nil {
		return nil, err
	}
	return &wallet.RequestResult{Signature: resp.Signature}, nil
}

func (c *Client) doRequest(ctx context.Context, method, path string, data, result interface{}) error {
	var reqBody []byte
	var err error

	if data != nil {
		reqBody, err = jsonx.Marshal(data)
		if err != nil {
			return fmt.Errorf("failed to marshal request data: %w", err)
		}
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bytes.NewReader(reqBody))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	timestamp := strconv.FormatInt(time.Now().Unix(), 10)

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Request-ID", uuid.NewString())
	req.Header.Set(middleware.APIKeyHeader, c.apiKey)
	req.Header.Set(middleware.TimestampHeader, timestamp)
	req.Header.Set(middleware.SignatureHeader, middleware.ComputeSignature(c.apiSecret, timestamp, reqBody))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		msg := strings.TrimSpace(string(respBody))
		var e handler.ErrorResponse
		if jsonx.Unmarshal(respBody, &e) == nil && e.Error != "" {
			msg = e.Error
		}
		return fmt.Errorf("request failed with status %d: %s", resp.StatusCode, msg)
	}

	if result != nil {
		if err := jsonx.Unmarshal(respBody, result); err != nil {
			return fmt.Errorf("failed to unmarshal response: %w", err)
		}
	}

	return nil
}

// RemoteWallet is a wallet whose key lives in the signer service.
type RemoteWallet struct {
	client  *Client
	address string
}

// NewRemoteWallet binds address to the service behind c.
func NewRemoteWallet(c *Client, address string) *RemoteWallet {
	return &RemoteWallet{client: c, address: address}
}

// DiscoverRemoteWallet picks the first account the service manages.
func DiscoverRemoteWallet(ctx context.Context, c *Client) (*RemoteWallet, error) {
	accounts, err := c.GetAccounts(ctx)
	if err != nil {
		return nil, err
	}
	if len(accounts) == 0 {
		return nil, fmt.Errorf("signer service manages no accounts")
	}
	return NewRemoteWallet(c, accounts[0]), nil
}

func (w *RemoteWallet) Address() string {
	return w.address
}

func (w *RemoteWallet) Provider(ctx context.Context) (wallet.Provider, error) {
	return w.client, nil
}

var (
	_ wallet.Wallet   = (*RemoteWallet)(nil)
	_ wallet.Provider = (*Client)(nil)
)
