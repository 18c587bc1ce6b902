// Package session keeps the backend session token in secure storage.
package session

import (
	"context"
	"errors"
	"fmt"
)

const (
	// ServiceName is the keychain service identifier.
	ServiceName = "contestpay"
	// TokenKey holds the backend session token.
	TokenKey = "session_token"
	// AddressKey holds the wallet address the session belongs to.
	AddressKey = "wallet_address"
)

var (
	ErrNotFound    = errors.New("session: key not found")
	ErrUnavailable = errors.New("session: storage unavailable")
)

// Store is a small key-value store for credentials.
type Store interface {
	Set(ctx context.Context, key, value string) error
	Get(ctx context.Context, key string) (string, error)
	Delete(ctx context.Context, key string) error
}

// Open returns the store selected by backend ("keychain" or "bolt").
// path is only used by the bolt store.
func Open(backend, path string) (Store, error) {
	switch backend {
	case "", "keychain":
		return NewKeychainStore(), nil
	case "bolt":
		s, err := NewBoltStore(path)
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unsupported session backend: %s", backend)
	}
}

// TokenSource reads the session token from a Store. A missing token is
// reported as "" without error.
type TokenSource struct {
	store Store
}

func NewTokenSource(s Store) *TokenSource {
	return &TokenSource{store: s}
}

func (t *TokenSource) Token(ctx context.Context) (string, error) {
	v, err := t.store.Get(ctx, TokenKey)
	if errors.Is(err, ErrNotFound) {
		return "", nil
	}
	return v, err
}

// Save stores the token and the address it was issued for.
func Save(ctx context.Context, s Store, token, address string) error {
	if err := s.Set(ctx, TokenKey, token); err != nil {
		return err
	}
	return s.Set(ctx, AddressKey, address)
}

// Clear removes the session. Missing keys are not an error.
func Clear(ctx context.Context, s Store) error {
	for _, key := range []string{TokenKey, AddressKey} {
		if err := s.Delete(ctx, key); err != nil && !errors.Is(err, ErrNotFound) {
			return err
		}
	}
	return nil
}
