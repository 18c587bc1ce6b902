package session

import (
	"context"
	"errors"
	"fmt"

	"github.com/zalando/go-keyring"
)

// KeychainStore stores credentials in the system keychain.
type KeychainStore struct {
	serviceName string
}

func NewKeychainStore() *KeychainStore {
	return &KeychainStore{serviceName: ServiceName}
}

func (s *KeychainStore) Get(ctx context.Context, key string) (string, error) {
	value, err := keyring.Get(s.serviceName, key)
	if err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return value, nil
}

func (s *KeychainStore) Set(ctx context.Context, key, value string) error {
	if err := keyring.Set(s.serviceName, key, value); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

func (s *KeychainStore) Delete(ctx context.Context, key string) error {
	if err := keyring.Delete(s.serviceName, key); err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return ErrNotFound
		}
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

var _ Store = (*KeychainStore)(nil)
