// Package config loads and saves the entr configuration file.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"

	"github.com/vault-cli/entr/internal/domain"
	"github.com/vault-cli/entr/internal/vault"
)

// AllowTestKDFEnv must be set to "1" before the stub KDF strategy is used.
const AllowTestKDFEnv = "ENTR_ALLOW_TEST_KDF"

// ErrInvalidConfig is returned for configuration values that cannot be used.
var ErrInvalidConfig = errors.New("invalid configuration")

// Config represents the entr configuration
type Config struct {
	VaultPath         string        `yaml:"vault_path"`
	KeyStorePath      string        `yaml:"keystore_path"`
	MinPasswordLength int           `yaml:"min_password_length"`
	ClipboardTTL      time.Duration `yaml:"clipboard_ttl"`
	LogLevel          string        `yaml:"log_level"`
	KDF               KDFConfig     `yaml:"kdf"`
	TOTP              TOTPConfig    `yaml:"totp"`
}

// KDFConfig selects the derivation strategy and the parameters for new
// vaults. Existing vaults keep the parameters they were created with.
type KDFConfig struct {
	Strategy    string `yaml:"strategy"`
	MemoryKiB   uint32 `yaml:"memory_kib"`
	Iterations  uint32 `yaml:"iterations"`
	Parallelism uint8  `yaml:"parallelism"`
	SaltLength  uint8  `yaml:"salt_length"`
}

// TOTPConfig holds defaults for new OTP blocks.
type TOTPConfig struct {
	DefaultDigits    int    `yaml:"default_digits"`
	DefaultPeriod    int    `yaml:"default_period"`
	DefaultAlgorithm string `yaml:"default_algorithm"`
}

// DefaultPath returns $HOME/.config/entr/config.yaml.
func DefaultPath() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "entr", "config.yaml")
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	home, _ := os.UserHomeDir()
	dataDir := filepath.Join(home, ".local", "share", "entr")
	params := vault.DefaultKDFParams()
	return &Config{
		VaultPath:         filepath.Join(dataDir, "vault.entr"),
		KeyStorePath:      filepath.Join(dataDir, "keys.db"),
		MinPasswordLength: vault.DefaultMinPasswordLength,
		ClipboardTTL:      30 * time.Second,
		LogLevel:          "warn",
		KDF: KDFConfig{
			Strategy:    vault.AlgorithmArgon2id,
			MemoryKiB:   params.MemoryKiB,
			Iterations:  params.Iterations,
			Parallelism: params.Parallelism,
			SaltLength:  params.SaltLength,
		},
		TOTP: TOTPConfig{
			DefaultDigits:    6,
			DefaultPeriod:    30,
			DefaultAlgorithm: string(domain.OTPSHA1),
		},
	}
}

// LoadConfig loads configuration from file, creating it with defaults when
// it does not exist yet.
func LoadConfig(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	if configPath == "" {
		return cfg, nil
	}

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		if err := SaveConfig(cfg, configPath); err != nil {
			return cfg, fmt.Errorf("failed to create default config: %w", err)
		}
		return cfg, nil
	}

	data, err := os.ReadFile(filepath.Clean(configPath))
	if err != nil {
		return cfg, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return cfg, fmt.Errorf("failed to parse config file: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// SaveConfig saves configuration to file
func SaveConfig(cfg *Config, configPath string) error {
	cleanPath := filepath.Clean(configPath)

	if err := os.MkdirAll(filepath.Dir(cleanPath), 0o700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(cleanPath, data, 0o600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Validate checks values that would otherwise fail later in less obvious
// places.
func (c *Config) Validate() error {
	if c.MinPasswordLength < 8 {
		return fmt.Errorf("%w: min_password_length %d is below 8", ErrInvalidConfig, c.MinPasswordLength)
	}
	if c.ClipboardTTL < 0 {
		return fmt.Errorf("%w: clipboard_ttl must not be negative", ErrInvalidConfig)
	}
	if _, err := zerolog.ParseLevel(strings.ToLower(c.LogLevel)); err != nil {
		return fmt.Errorf("%w: log_level %q", ErrInvalidConfig, c.LogLevel)
	}
	if err := vault.ValidateKDFParams(c.KDFParams()); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	block := domain.OTPBlock{
		Algorithm: domain.OTPAlgorithm(strings.ToUpper(c.TOTP.DefaultAlgorithm)),
		Digits:    c.TOTP.DefaultDigits,
		Period:    c.TOTP.DefaultPeriod,
	}
	if err := block.Validate(); err != nil {
		return fmt.Errorf("%w: totp: %w", ErrInvalidConfig, err)
	}
	return nil
}

// KDFParams returns the parameters used for new vaults and password changes.
func (c *Config) KDFParams() vault.KDFParams {
	return vault.KDFParams{
		Algorithm:    vault.AlgorithmArgon2id,
		MemoryKiB:    c.KDF.MemoryKiB,
		Iterations:   c.KDF.Iterations,
		Parallelism:  c.KDF.Parallelism,
		SaltLength:   c.KDF.SaltLength,
		OutputLength: vault.OutputLength,
	}
}

// Deriver returns the configured KDF strategy. The stub strategy is refused
// unless AllowTestKDFEnv is set to "1".
func (c *Config) Deriver(logger zerolog.Logger) (vault.KeyDeriver, error) {
	if c.KDF.Strategy == "stub" && os.Getenv(AllowTestKDFEnv) != "1" {
		return nil, fmt.Errorf("%w: kdf strategy \"stub\" requires %s=1", ErrInvalidConfig, AllowTestKDFEnv)
	}
	return vault.DeriverByName(c.KDF.Strategy, logger)
}
