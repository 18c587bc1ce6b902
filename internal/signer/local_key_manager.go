package signer

import (
	"crypto/ed25519"
	"crypto/rand"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/ethereum/go-ethereum/accounts/keystore"
	"github.com/gagliardetto/solana-go"
	"github.com/xueqianLu/contestpay/internal/jsonx"
	"github.com/xueqianLu/contestpay/internal/logx"
)

const keyFileVersion = 1

// keyFile is the on-disk form of a local key: the ed25519 seed encrypted with
// the keystore v3 cipher.
type keyFile struct {
	Address string              `json:"address"`
	Crypto  keystore.CryptoJSON `json:"crypto"`
	Version int                 `json:"version"`
}

// LocalKeyManager manages keys stored locally on disk.
type LocalKeyManager struct {
	keyDir   string
	password string
	scryptN  int
	scryptP  int
	keys     map[solana.PublicKey]solana.PrivateKey
	mu       sync.RWMutex
}

// LocalOption configures a LocalKeyManager.
type LocalOption func(*LocalKeyManager)

// WithScrypt overrides the scrypt cost parameters used for new key files.
func WithScrypt(n, p int) LocalOption {
	return func(km *LocalKeyManager) {
		km.scryptN = n
		km.scryptP = p
	}
}

// NewLocalKeyManager creates a new LocalKeyManager and loads existing keys from disk.
func NewLocalKeyManager(keyDir, password string, opts ...LocalOption) (*LocalKeyManager, error) {
	if err := os.MkdirAll(keyDir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create key directory: %w", err)
	}

	km := &LocalKeyManager{
		keyDir:   keyDir,
		password: password,
		scryptN:  keystore.StandardScryptN,
		scryptP:  keystore.StandardScryptP,
		keys:     make(map[solana.PublicKey]solana.PrivateKey),
	}
	for _, opt := range opts {
		opt(km)
	}

	files, err := os.ReadDir(keyDir)
	if err != nil {
		return nil, fmt.Errorf("failed to read key directory: %w", err)
	}

	for _, file := range files {
		if file.IsDir() || filepath.Ext(file.Name()) != ".json" {
			continue
		}
		key, err := km.loadKeyFile(filepath.Join(keyDir, file.Name()))
		if err != nil {
			logx.Warn("SIGNER", "skipping key file ", file.Name(), ": ", err)
			continue
		}
		km.keys[key.PublicKey()] = key
		logx.Info("SIGNER", "loaded local key for address ", key.PublicKey().String())
	}

	return km, nil
}

func (km *LocalKeyManager) loadKeyFile(path string) (solana.PrivateKey, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var kf keyFile
	if err := jsonx.Unmarshal(raw, &kf); err != nil {
		return nil, fmt.Errorf("invalid key file: %w", err)
	}
	seed, err := keystore.DecryptDataV3(kf.Crypto, km.password)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt: %w", err)
	}
	if len(seed) != ed25519.SeedSize {
		return nil, fmt.Errorf("unexpected seed length %d", len(seed))
	}
	key := solana.PrivateKey(ed25519.NewKeyFromSeed(seed))
	if kf.Address != "" && kf.Address != key.PublicKey().String() {
		return nil, fmt.Errorf("address mismatch: file says %s", kf.Address)
	}
	return key, nil
}

// CreateKey generates a new key pair and saves it to disk (encrypted).
func (km *LocalKeyManager) CreateKey() (solana.PublicKey, error) {
	seed := make([]byte, ed25519.SeedSize)
	if _, err := rand.Read(seed); err != nil {
		return solana.PublicKey{}, fmt.Errorf("failed to generate private key: %w", err)
	}
	key := solana.PrivateKey(ed25519.NewKeyFromSeed(seed))
	address := key.PublicKey()

	cj, err := keystore.EncryptDataV3(seed, []byte(km.password), km.scryptN, km.scryptP)
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("failed to encrypt private key: %w", err)
	}
	keyJSON, err := jsonx.Marshal(keyFile{Address: address.String(), Crypto: cj, Version: keyFileVersion})
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("failed to encode key file: %w", err)
	}
	filePath := filepath.Join(km.keyDir, address.String()+".json")
	if err := os.WriteFile(filePath, keyJSON, 0600); err != nil {
		return solana.PublicKey{}, fmt.Errorf("failed to save encrypted key: %w", err)
	}

	km.mu.Lock()
	defer km.mu.Unlock()
	km.keys[address] = key

	logx.Info("SIGNER", "created and saved encrypted local key for address ", address.String())
	return address, nil
}

// GetAccounts returns all managed account addresses.
func (km *LocalKeyManager) GetAccounts() []solana.PublicKey {
	km.mu.RLock()
	defer km.mu.RUnlock()

	addresses := make([]solana.PublicKey, 0, len(km.keys))
	for addr := range km.keys {
		addresses = append(addresses, addr)
	}
	sort.Slice(addresses, func(i, j int) bool {
		return addresses[i].String() < addresses[j].String()
	})
	return addresses
}

// Sign signs payload using a locally stored private key.
func (km *LocalKeyManager) Sign(address solana.PublicKey, payload []byte) (solana.Signature, error) {
	km.mu.RLock()
	key, ok := km.keys[address]
	km.mu.RUnlock()

	if !ok {
		return solana.Signature{}, fmt.Errorf("%w: %s", ErrAccountNotFound, address)
	}
	sig, err := key.Sign(payload)
	if err != nil {
		return solana.Signature{}, fmt.Errorf("failed to sign: %w", err)
	}
	return sig, nil
}
