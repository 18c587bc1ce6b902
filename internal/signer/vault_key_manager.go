package signer

import (
	"crypto/ed25519"
	"encoding/base64"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/gagliardetto/solana-go"
	"github.com/google/uuid"
	"github.com/hashicorp/vault/api"
	"github.com/xueqianLu/contestpay/internal/logx"
)

// VaultKeyManager manages ed25519 keys stored in the Vault transit engine.
type VaultKeyManager struct {
	vaultClient  *api.Client
	transitPath  string
	addressToKey map[solana.PublicKey]string // ledger address to Vault key name
	mu           sync.RWMutex
}

// NewVaultKeyManager creates a new VaultKeyManager and initializes it with keys from Vault.
func NewVaultKeyManager(vaultClient *api.Client, transitPath string) (*VaultKeyManager, error) {
	km := &VaultKeyManager{
		vaultClient:  vaultClient,
		transitPath:  transitPath,
		addressToKey: make(map[solana.PublicKey]string),
	}

	if err := km.enableTransitEngine(); err != nil {
		return nil, fmt.Errorf("failed to enable transit secrets engine: %w", err)
	}

	if err := km.loadExistingKeys(); err != nil {
		return nil, fmt.Errorf("failed to load existing keys from vault: %w", err)
	}

	return km, nil
}

func (km *VaultKeyManager) enableTransitEngine() error {
	mounts, err := km.vaultClient.Sys().ListMounts()
	if err != nil {
		return err
	}

	mountPath := km.transitPath + "/"
	if _, ok := mounts[mountPath]; !ok {
		logx.Info("SIGNER", "transit secrets engine not found at '", km.transitPath, "', enabling it now")
		return km.vaultClient.Sys().Mount(km.transitPath, &api.MountInput{
			Type: "transit",
		})
	}
	logx.Debug("SIGNER", "transit secrets engine already enabled at '", km.transitPath, "'")
	return nil
}

func (km *VaultKeyManager) loadExistingKeys() error {
	path := fmt.Sprintf("%s/keys", km.transitPath)
	secret, err := km.vaultClient.Logical().List(path)
	if err != nil {
		return err
	}

	if secret == nil || secret.Data["keys"] == nil {
		logx.Info("SIGNER", "no existing keys found in Vault transit engine")
		return nil
	}

	keys, ok := secret.Data["keys"].([]interface{})
	if !ok {
		return fmt.Errorf("unexpected format for keys from vault")
	}

	km.mu.Lock()
	defer km.mu.Unlock()

	for _, k := range keys {
		keyName, ok := k.(string)
		if !ok {
			continue
		}

		address, err := km.getAddressForKey(keyName)
		if err != nil {
			// Keys of other types share the mount.
			logx.Warn("SIGNER", "could not get address for key '", keyName, "': ", err)
			continue
		}
		km.addressToKey[address] = keyName
		logx.Info("SIGNER", "loaded key '", keyName, "' for address ", address.String())
	}

	return nil
}

// CreateKey creates a new ed25519 key in Vault and returns its address.
func (km *VaultKeyManager) CreateKey() (solana.PublicKey, error) {
	keyName := "sol-key-" + uuid.NewString()

	path := fmt.Sprintf("%s/keys/%s", km.transitPath, keyName)
	_, err := km.vaultClient.Logical().Write(path, map[string]interface{}{
		"type": "ed25519",
	})
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("failed to create key in vault: %w", err)
	}

	address, err := km.getAddressForKey(keyName)
	if err != nil {
		deletePath := fmt.Sprintf("%s/keys/%s/config", km.transitPath, keyName)
		_, delErr := km.vaultClient.Logical().Write(deletePath, map[string]interface{}{"deletion_allowed": true})
		if delErr == nil {
			km.vaultClient.Logical().Delete(path)
		}
		return solana.PublicKey{}, fmt.Errorf("failed to get address for new key: %w", err)
	}

	km.mu.Lock()
	defer km.mu.Unlock()
	km.addressToKey[address] = keyName

	logx.Info("SIGNER", "created key '", keyName, "' for address ", address.String())
	return address, nil
}

// GetAccounts returns all managed account addresses.
func (km *VaultKeyManager) GetAccounts() []solana.PublicKey {
	km.mu.RLock()
	defer km.mu.RUnlock()

	addresses := make([]solana.PublicKey, 0, len(km.addressToKey))
	for addr := range km.addressToKey {
		addresses = append(addresses, addr)
	}
	sort.Slice(addresses, func(i, j int) bool {
		return addresses[i].String() < addresses[j].String()
	})
	return addresses
}

func (km *VaultKeyManager) getAddressForKey(keyName string) (solana.PublicKey, error) {
	path := fmt.Sprintf("%s/keys/%s", km.transitPath, keyName)
	secret, err := km.vaultClient.Logical().Read(path)
	if err != nil {
		return solana.PublicKey{}, err
	}
	if secret == nil || secret.Data["keys"] == nil {
		return solana.PublicKey{}, fmt.Errorf("key '%s' not found in vault", keyName)
	}
	if t, _ := secret.Data["type"].(string); t != "" && t != "ed25519" {
		return solana.PublicKey{}, fmt.Errorf("key '%s' has type %s, want ed25519", keyName, t)
	}

	keysData, ok := secret.Data["keys"].(map[string]interface{})
	if !ok {
		return solana.PublicKey{}, fmt.Errorf("unexpected format for key data")
	}

	latestVersion, latest := "", -1
	for v := range keysData {
		n, err := strconv.Atoi(v)
		if err == nil && n > latest {
			latestVersion, latest = v, n
		}
	}

	keyData, ok := keysData[latestVersion].(map[string]interface{})
	if !ok {
		return solana.PublicKey{}, fmt.Errorf("unexpected format for key version data")
	}

	pubKeyBase64, ok := keyData["public_key"].(string)
	if !ok {
		return solana.PublicKey{}, fmt.Errorf("public key not found in key data")
	}

	pub, err := base64.StdEncoding.DecodeString(pubKeyBase64)
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("failed to decode public key: %w", err)
	}
	if len(pub) != ed25519.PublicKeySize {
		return solana.PublicKey{}, fmt.Errorf("key is not an ed25519 public key")
	}
	return solana.PublicKeyFromBytes(pub), nil
}

// Sign signs payload using a key stored in Vault. Vault returns the signature
// as "vault:v<version>:<base64>".
func (km *VaultKeyManager) Sign(address solana.PublicKey, payload []byte) (solana.Signature, error) {
	keyName, err := km.getKeyName(address)
	if err != nil {
		return solana.Signature{}, err
	}

	path := fmt.Sprintf("%s/sign/%s", km.transitPath, keyName)
	resp, err := km.vaultClient.Logical().Write(path, map[string]interface{}{
		"input": base64.StdEncoding.EncodeToString(payload),
	})
	if err != nil {
		return solana.Signature{}, fmt.Errorf("failed to sign with vault: %w", err)
	}
	if resp == nil {
		return solana.Signature{}, fmt.Errorf("empty response from vault")
	}

	signature, ok := resp.Data["signature"].(string)
	if !ok {
		return solana.Signature{}, fmt.Errorf("signature not found in vault response")
	}

	parts := strings.Split(signature, ":")
	if len(parts) < 3 {
		return solana.Signature{}, fmt.Errorf("invalid signature format from vault: %s", signature)
	}
	raw, err := base64.StdEncoding.DecodeString(parts[2])
	if err != nil {
		return solana.Signature{}, fmt.Errorf("failed to decode signature: %w", err)
	}
	if len(raw) != ed25519.SignatureSize {
		return solana.Signature{}, fmt.Errorf("unexpected signature length %d", len(raw))
	}

	sig := solana.SignatureFromBytes(raw)
	if !sig.Verify(address, payload) {
		return solana.Signature{}, fmt.Errorf("vault signature does not verify for %s", address)
	}
	return sig, nil
}

func (km *VaultKeyManager) getKeyName(address solana.PublicKey) (string, error) {
	km.mu.RLock()
	defer km.mu.RUnlock()

	keyName, ok := km.addressToKey[address]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrAccountNotFound, address)
	}
	return keyName, nil
}
