package contract

import (
	"encoding/hex"
	"fmt"

	"github.com/kelseyhightower/envconfig"
)

// Config carries deployment settings for the chaincode. Both keys are shared
// with the off-chain decryption gateway: the sealing key protects stored
// values, the gateway secret authenticates reveal attestations.
type Config struct {
	SealingKey    string `envconfig:"SEALING_KEY" required:"true"`
	GatewaySecret string `envconfig:"GATEWAY_SECRET" required:"true"`
}

// LoadConfig reads PROVTRACE_* settings from the environment.
func LoadConfig() (Config, error) {
	var cfg Config
	if err := envconfig.Process("provtrace", &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to load config from environment: %w", err)
	}
	if _, err := cfg.sealingKeyBytes(); err != nil {
		return Config{}, err
	}
	if _, err := cfg.gatewaySecretBytes(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) sealingKeyBytes() ([]byte, error) {
	key, err := hex.DecodeString(c.SealingKey)
	if err != nil {
		return nil, fmt.Errorf("sealing key is not valid hex: %w", err)
	}
	switch len(key) {
	case 16, 24, 32:
		return key, nil
	}
	return nil, fmt.Errorf("sealing key must be 16, 24 or 32 bytes, got %d", len(key))
}

func (c Config) gatewaySecretBytes() ([]byte, error) {
	secret, err := hex.DecodeString(c.GatewaySecret)
	if err != nil {
		return nil, fmt.Errorf("gateway secret is not valid hex: %w", err)
	}
	if len(secret) == 0 {
		return nil, fmt.Errorf("gateway secret cannot be empty")
	}
	return secret, nil
}
