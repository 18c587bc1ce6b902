package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
	"github.com/xueqianLu/contestpay/internal/logx"
)

// Config holds the application configuration.
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Auth       AuthConfig       `mapstructure:"auth"`
	KeyManager KeyManagerConfig `mapstructure:"key_manager"`
	Ledger     LedgerConfig     `mapstructure:"ledger"`
	Backend    BackendConfig    `mapstructure:"backend"`
	Wallet     WalletConfig     `mapstructure:"wallet"`
	FeePayer   FeePayerConfig   `mapstructure:"fee_payer"`
	Tokens     TokensConfig     `mapstructure:"tokens"`
	Signing    SigningConfig    `mapstructure:"signing"`
	Session    SessionConfig    `mapstructure:"session"`
	Log        LogConfig        `mapstructure:"log"`
}

// ServerConfig holds the signer service configuration.
type ServerConfig struct {
	Port    string `mapstructure:"port"`
	Address string `mapstructure:"address"`
}

// AuthConfig holds the HMAC credentials shared by the signer service and its clients.
type AuthConfig struct {
	APIKey    string `mapstructure:"api_key"`
	APISecret string `mapstructure:"api_secret"`
}

// KeyManagerConfig holds the configuration for the key manager.
type KeyManagerConfig struct {
	Type  string      `mapstructure:"type"` // "local" or "vault"
	Local LocalConfig `mapstructure:"local"`
	Vault VaultConfig `mapstructure:"vault"`
}

// LocalConfig holds the configuration for the local key manager.
type LocalConfig struct {
	KeyDir   string `mapstructure:"key_dir"`
	Password string `mapstructure:"password"`
}

// VaultConfig holds the Vault configuration.
type VaultConfig struct {
	Address     string `mapstructure:"address"`
	Token       string `mapstructure:"token"`
	TransitPath string `mapstructure:"transit_path"`
}

// LedgerConfig points at the ledger RPC endpoint.
type LedgerConfig struct {
	RPCURL          string        `mapstructure:"rpc_url"`
	Commitment      string        `mapstructure:"commitment"`
	ConfirmTimeout  time.Duration `mapstructure:"confirm_timeout"`
	ConfirmInterval time.Duration `mapstructure:"confirm_interval"`
}

// BackendConfig points at the contest REST backend.
type BackendConfig struct {
	BaseURL string        `mapstructure:"base_url"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// WalletConfig selects how the user's custodial wallet is reached.
type WalletConfig struct {
	Type    string             `mapstructure:"type"` // "embedded" or "remote"
	Address string             `mapstructure:"address"`
	Remote  RemoteSignerConfig `mapstructure:"remote"`
}

// RemoteSignerConfig holds the signer service endpoint and credentials.
type RemoteSignerConfig struct {
	URL       string `mapstructure:"url"`
	APIKey    string `mapstructure:"api_key"`
	APISecret string `mapstructure:"api_secret"`
}

// FeePayerConfig names the sponsor that pays network fees.
type FeePayerConfig struct {
	Address     string `mapstructure:"address"`
	KeypairPath string `mapstructure:"keypair_path"`
}

// TokensConfig holds token mint and staking vault addresses.
type TokensConfig struct {
	StakeMint     string `mapstructure:"stake_mint"`
	StakeVault    string `mapstructure:"stake_vault"`
	StakeDecimals uint8  `mapstructure:"stake_decimals"`
}

// SigningConfig holds submission options and error marker patterns.
type SigningConfig struct {
	SkipPreflight           bool     `mapstructure:"skip_preflight"`
	MaxRetries              uint     `mapstructure:"max_retries"`
	AnchorRetry             bool     `mapstructure:"anchor_retry"`
	AlreadyProcessedMarkers []string `mapstructure:"already_processed_markers"`
	StaleAnchorMarkers      []string `mapstructure:"stale_anchor_markers"`
}

// SessionConfig selects the session token store.
type SessionConfig struct {
	Backend string `mapstructure:"backend"` // "keychain" or "bolt"
	Path    string `mapstructure:"path"`
}

// LogConfig controls log output.
type LogConfig struct {
	File       string `mapstructure:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
	Debug      bool   `mapstructure:"debug"`
}

// DefaultAlreadyProcessedMarkers are substrings the ledger and wallet providers
// use to report that an equivalent transaction was already accepted.
var DefaultAlreadyProcessedMarkers = []string{
	"already been processed",
	"already processed",
	"AlreadyProcessed",
}

// DefaultStaleAnchorMarkers are substrings reported for an expired blockhash.
var DefaultStaleAnchorMarkers = []string{
	"Blockhash not found",
	"BlockhashNotFound",
	"block height exceeded",
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", "8080")
	v.SetDefault("key_manager.type", "local")
	v.SetDefault("key_manager.local.key_dir", "./keys")
	v.SetDefault("key_manager.vault.address", "http://127.0.0.1:8200")
	v.SetDefault("key_manager.vault.transit_path", "transit")
	v.SetDefault("ledger.rpc_url", "https://api.devnet.solana.com")
	v.SetDefault("ledger.commitment", "confirmed")
	v.SetDefault("ledger.confirm_timeout", 60*time.Second)
	v.SetDefault("ledger.confirm_interval", 2*time.Second)
	v.SetDefault("backend.timeout", 15*time.Second)
	v.SetDefault("wallet.type", "remote")
	v.SetDefault("tokens.stake_decimals", 9)
	v.SetDefault("signing.skip_preflight", true)
	v.SetDefault("signing.max_retries", 3)
	v.SetDefault("signing.anchor_retry", true)
	v.SetDefault("signing.already_processed_markers", DefaultAlreadyProcessedMarkers)
	v.SetDefault("signing.stale_anchor_markers", DefaultStaleAnchorMarkers)
	v.SetDefault("session.backend", "keychain")
	v.SetDefault("session.path", "./session.db")
	v.SetDefault("log.max_size_mb", 50)
	v.SetDefault("log.max_age_days", 7)
}

// LoadConfig reads configuration from file or environment variables.
// An empty path searches for config.yaml in the working directory.
func LoadConfig(path string) (config Config, err error) {
	v := viper.New()
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.AddConfigPath(".")
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}
	v.SetEnvPrefix("contestpay")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err = v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			// Config file was found but another error was produced
			return config, fmt.Errorf("failed to read config: %w", err)
		}
	}

	if err = v.Unmarshal(&config); err != nil {
		return config, fmt.Errorf("failed to decode config: %w", err)
	}
	if err = config.Validate(); err != nil {
		return config, err
	}
	logx.Debug("CONFIG", fmt.Sprintf("loaded config from %q", v.ConfigFileUsed()))
	return config, nil
}

// Validate rejects configurations that cannot work.
func (c Config) Validate() error {
	switch c.KeyManager.Type {
	case "local", "vault":
	default:
		return fmt.Errorf("unknown key manager type %q", c.KeyManager.Type)
	}
	switch c.Wallet.Type {
	case "embedded", "remote":
	default:
		return fmt.Errorf("unknown wallet type %q", c.Wallet.Type)
	}
	switch c.Session.Backend {
	case "keychain", "bolt":
	default:
		return fmt.Errorf("unknown session backend %q", c.Session.Backend)
	}
	if c.Ledger.RPCURL == "" {
		return fmt.Errorf("ledger.rpc_url is required")
	}
	return nil
}

// LogOptions converts the log section for logx.Init.
func (c Config) LogOptions() logx.Options {
	return logx.Options{
		File:       c.Log.File,
		MaxSizeMB:  c.Log.MaxSizeMB,
		MaxAgeDays: c.Log.MaxAgeDays,
		Debug:      c.Log.Debug,
	}
}
