package backend

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"
)

// User is the logged-in account.
type User struct {
	ID            string `json:"id"`
	Username      string `json:"username"`
	WalletAddress string `json:"walletAddress"`
}

// Contest is a contest as listed by the backend. EntryFee is in lamports.
type Contest struct {
	ID       string    `json:"id"`
	Title    string    `json:"title"`
	EntryFee uint64    `json:"entryFee"`
	Escrow   string    `json:"escrow"`
	Status   string    `json:"status"`
	StartsAt time.Time `json:"startsAt"`
}

// LoginRequest proves control of the wallet by a signature over Message.
type LoginRequest struct {
	Address   string `json:"address"`
	Message   string `json:"message"`
	Signature string `json:"signature"`
}

type LoginResponse struct {
	Token string `json:"token"`
	User  User   `json:"user"`
}

type participation struct {
	Joined bool `json:"joined"`
}

type entryRequest struct {
	Signature string `json:"signature"`
}

// Login exchanges a wallet signature for a session token.
func (c *Client) Login(ctx context.Context, req LoginRequest) (*LoginResponse, error) {
	var resp LoginResponse
	if err := c.Request(ctx, http.MethodPost, "/auth/login", req).Decode(&resp); err != nil {
		return nil, err
	}
	if resp.Token == "" {
		return nil, fmt.Errorf("login response carried no token")
	}
	return &resp, nil
}

// Me returns the current user.
func (c *Client) Me(ctx context.Context) (*User, error) {
	var u User
	if err := c.Request(ctx, http.MethodGet, "/users/me", nil).Decode(&u); err != nil {
		return nil, err
	}
	return &u, nil
}

// Contests lists open contests.
func (c *Client) Contests(ctx context.Context) ([]Contest, error) {
	var list []Contest
	if err := c.Request(ctx, http.MethodGet, "/contests", nil).Decode(&list); err != nil {
		return nil, err
	}
	return list, nil
}

// Contest fetches one contest.
func (c *Client) Contest(ctx context.Context, id string) (*Contest, error) {
	var ct Contest
	if err := c.Request(ctx, http.MethodGet, "/contests/"+url.PathEscape(id), nil).Decode(&ct); err != nil {
		return nil, err
	}
	return &ct, nil
}

// HasJoined reports whether the current user already entered the contest.
func (c *Client) HasJoined(ctx context.Context, contestID string) (bool, error) {
	var p participation
	if err := c.Request(ctx, http.MethodGet, "/contests/"+url.PathEscape(contestID)+"/participation", nil).Decode(&p); err != nil {
		return false, err
	}
	return p.Joined, nil
}

// RecordEntry registers a confirmed entry transaction.
func (c *Client) RecordEntry(ctx context.Context, contestID, signature string) error {
	return c.Request(ctx, http.MethodPost, "/contests/"+url.PathEscape(contestID)+"/entries", entryRequest{Signature: signature}).Err()
}
