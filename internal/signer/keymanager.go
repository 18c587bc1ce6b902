package signer

import (
	"errors"
	"fmt"

	"github.com/gagliardetto/solana-go"
	"github.com/hashicorp/vault/api"
	"github.com/xueqianLu/contestpay/internal/config"
	"github.com/xueqianLu/contestpay/internal/logx"
)

// ErrAccountNotFound is returned when no key is held for an address.
var ErrAccountNotFound = errors.New("signer: account not found or not managed by this signer")

// KeyManager defines the interface for managing ed25519 keys and signing with them.
// It abstracts the underlying key storage, which can be a local keystore or a remote service like Vault.
type KeyManager interface {
	// GetAccounts returns all ledger addresses managed by the KeyManager.
	GetAccounts() []solana.PublicKey

	// CreateKey generates a new key pair in the underlying storage backend and
	// returns its address.
	CreateKey() (solana.PublicKey, error)

	// Sign signs payload with the key of address. The payload is signed as is,
	// without hashing or prefixing.
	Sign(address solana.PublicKey, payload []byte) (solana.Signature, error)
}

// OpenKeyManager builds the key manager selected by cfg.Type.
func OpenKeyManager(cfg config.KeyManagerConfig) (KeyManager, error) {
	switch cfg.Type {
	case "local":
		km, err := NewLocalKeyManager(cfg.Local.KeyDir, cfg.Local.Password)
		if err != nil {
			return nil, err
		}
		return km, nil
	case "vault":
		vaultConfig := api.DefaultConfig()
		if err := vaultConfig.ReadEnvironment(); err != nil {
			logx.Warn("SIGNER", "could not read Vault environment variables: ", err)
		}
		if cfg.Vault.Address != "" {
			vaultConfig.Address = cfg.Vault.Address
		}
		vaultClient, err := api.NewClient(vaultConfig)
		if err != nil {
			return nil, fmt.Errorf("failed to create Vault client: %w", err)
		}
		if cfg.Vault.Token != "" {
			vaultClient.SetToken(cfg.Vault.Token)
		}
		km, err := NewVaultKeyManager(vaultClient, cfg.Vault.TransitPath)
		if err != nil {
			return nil, err
		}
		return km, nil
	default:
		return nil, fmt.Errorf("unknown key manager type %q", cfg.Type)
	}
}
